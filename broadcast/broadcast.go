// broadcast/broadcast.go
package broadcast

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/wfunc/quizserver/logger"
	"github.com/wfunc/quizserver/models"
)

// LobbyChannel carries room_created / room_removed for lobby listings.
const LobbyChannel = "*lobby"

// Handler receives events for one subscription, one at a time, in publish order.
type Handler func(evt models.Event)

type Subscription interface {
	Unsubscribe()
}

// 广播接口
// 只保证投递给当前在线的订阅者；断线的客户端通过 REST 快照对齐状态
type Bus interface {
	PublishToRoom(roomCode string, kind models.EventKind, payload interface{})
	PublishToUser(userID string, kind models.EventKind, payload interface{})
	Subscribe(roomCode string, handler Handler, onOverflow func()) Subscription
	SubscribeUser(userID string, handler Handler, onOverflow func()) Subscription
	CloseRoom(roomCode string)
}

type channelKey struct {
	user bool
	id   string
}

// Hub 进程内的广播实现，每个订阅者一个有界队列和一个投递协程
type Hub struct {
	mutex  sync.Mutex
	subs   map[channelKey]map[*subscriber]struct{}
	seqs   map[channelKey]uint64
	buffer int
	log    *zap.SugaredLogger
	now    func() time.Time
}

func NewHub(buffer int, log *zap.SugaredLogger) *Hub {
	if buffer <= 0 {
		buffer = 256
	}
	if log == nil {
		log = logger.Log
	}
	return &Hub{
		subs:   make(map[channelKey]map[*subscriber]struct{}),
		seqs:   make(map[channelKey]uint64),
		buffer: buffer,
		log:    log,
		now:    time.Now,
	}
}

type subscriber struct {
	hub        *Hub
	key        channelKey
	queue      chan models.Event
	handler    Handler
	onOverflow func()
	done       chan struct{}
	drain      bool
	once       sync.Once
}

func (s *subscriber) run() {
	for {
		select {
		case evt := <-s.queue:
			s.handler(evt)
		case <-s.done:
			if s.drain {
				for {
					select {
					case evt := <-s.queue:
						s.handler(evt)
					default:
						return
					}
				}
			}
			return
		}
	}
}

func (s *subscriber) stop(drain bool) {
	s.once.Do(func() {
		s.drain = drain
		close(s.done)
	})
}

func (s *subscriber) Unsubscribe() {
	s.hub.mutex.Lock()
	s.hub.remove(s)
	s.hub.mutex.Unlock()
	s.stop(false)
}

func (h *Hub) Subscribe(roomCode string, handler Handler, onOverflow func()) Subscription {
	return h.subscribe(channelKey{id: roomCode}, handler, onOverflow)
}

func (h *Hub) SubscribeUser(userID string, handler Handler, onOverflow func()) Subscription {
	return h.subscribe(channelKey{user: true, id: userID}, handler, onOverflow)
}

func (h *Hub) subscribe(key channelKey, handler Handler, onOverflow func()) Subscription {
	s := &subscriber{
		hub:        h,
		key:        key,
		queue:      make(chan models.Event, h.buffer),
		handler:    handler,
		onOverflow: onOverflow,
		done:       make(chan struct{}),
	}
	h.mutex.Lock()
	if _, ok := h.subs[key]; !ok {
		h.subs[key] = make(map[*subscriber]struct{})
	}
	h.subs[key][s] = struct{}{}
	h.mutex.Unlock()

	go s.run()
	return s
}

// remove must be called with the mutex held.
func (h *Hub) remove(s *subscriber) {
	set, ok := h.subs[s.key]
	if !ok {
		return
	}
	delete(set, s)
	if len(set) == 0 {
		delete(h.subs, s.key)
	}
}

func (h *Hub) PublishToRoom(roomCode string, kind models.EventKind, payload interface{}) {
	h.publish(channelKey{id: roomCode}, roomCode, kind, payload)
}

func (h *Hub) PublishToUser(userID string, kind models.EventKind, payload interface{}) {
	h.publish(channelKey{user: true, id: userID}, "", kind, payload)
}

func (h *Hub) publish(key channelKey, room string, kind models.EventKind, payload interface{}) {
	var overflowed []*subscriber

	h.mutex.Lock()
	h.seqs[key]++
	evt := models.Event{
		Kind:    kind,
		Room:    room,
		Seq:     h.seqs[key],
		At:      h.now(),
		Payload: payload,
	}
	for s := range h.subs[key] {
		select {
		case s.queue <- evt:
		default:
			overflowed = append(overflowed, s)
			h.remove(s)
		}
	}
	h.mutex.Unlock()

	for _, s := range overflowed {
		h.log.Warnf("Subscriber queue full on %s, dropping subscriber", key.id)
		s.stop(false)
		if s.onOverflow != nil {
			s.onOverflow()
		}
	}
}

// CloseRoom delivers room_closed to every room subscriber and then drops them.
func (h *Hub) CloseRoom(roomCode string) {
	h.PublishToRoom(roomCode, models.EventRoomClosed, nil)

	key := channelKey{id: roomCode}
	h.mutex.Lock()
	subs := h.subs[key]
	delete(h.subs, key)
	delete(h.seqs, key)
	h.mutex.Unlock()

	for s := range subs {
		s.stop(true)
	}
}

// Subscribers returns how many subscriptions a room currently has.
func (h *Hub) Subscribers(roomCode string) int {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return len(h.subs[channelKey{id: roomCode}])
}
