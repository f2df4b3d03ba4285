package broadcast

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/wfunc/quizserver/logger"
	"github.com/wfunc/quizserver/models"
)

// relayEnvelope is what travels over the redis channel between instances.
type relayEnvelope struct {
	Origin  string           `json:"origin"`
	User    bool             `json:"user"`
	Target  string           `json:"target"`
	Kind    models.EventKind `json:"kind"`
	Payload json.RawMessage  `json:"payload,omitempty"`
}

// RedisRelay fans lobby and user events out to other server instances.
// Room events stay local: a room lives on exactly one instance.
type RedisRelay struct {
	*Hub
	client  *redis.Client
	channel string
	origin  string
	log     *zap.SugaredLogger
}

func NewRedisRelay(hub *Hub, client *redis.Client, channel string) *RedisRelay {
	return &RedisRelay{
		Hub:     hub,
		client:  client,
		channel: channel,
		origin:  uuid.NewString(),
		log:     logger.Log,
	}
}

func (r *RedisRelay) PublishToRoom(roomCode string, kind models.EventKind, payload interface{}) {
	r.Hub.PublishToRoom(roomCode, kind, payload)
	if roomCode == LobbyChannel {
		r.forward(false, roomCode, kind, payload)
	}
}

func (r *RedisRelay) PublishToUser(userID string, kind models.EventKind, payload interface{}) {
	r.Hub.PublishToUser(userID, kind, payload)
	r.forward(true, userID, kind, payload)
}

func (r *RedisRelay) forward(user bool, target string, kind models.EventKind, payload interface{}) {
	env := relayEnvelope{Origin: r.origin, User: user, Target: target, Kind: kind}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			r.log.Errorf("Relay encode %s failed: %v", kind, err)
			return
		}
		env.Payload = raw
	}
	data, err := json.Marshal(env)
	if err != nil {
		r.log.Errorf("Relay encode envelope failed: %v", err)
		return
	}
	if err := r.client.Publish(context.Background(), r.channel, data).Err(); err != nil {
		r.log.Warnf("Relay publish %s failed: %v", kind, err)
	}
}

// Listen delivers events published by other instances until ctx is done.
func (r *RedisRelay) Listen(ctx context.Context) error {
	sub := r.client.Subscribe(ctx, r.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return err
	}
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			r.deliver([]byte(msg.Payload))
		}
	}
}

func (r *RedisRelay) deliver(data []byte) {
	var env relayEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		r.log.Warnf("Relay dropped malformed message: %v", err)
		return
	}
	if env.Origin == r.origin {
		return
	}
	var payload interface{}
	if len(env.Payload) > 0 {
		payload = env.Payload
	}
	if env.User {
		r.Hub.PublishToUser(env.Target, env.Kind, payload)
		return
	}
	r.Hub.PublishToRoom(env.Target, env.Kind, payload)
}
