package room

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCodes reserves room codes with SETNX so codes stay unique across instances.
type RedisCodes struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisCodes(client *redis.Client, prefix string, ttl time.Duration) *RedisCodes {
	return &RedisCodes{client: client, prefix: prefix, ttl: ttl}
}

func (c *RedisCodes) Reserve(ctx context.Context, code string) (bool, error) {
	return c.client.SetNX(ctx, c.prefix+code, time.Now().Unix(), c.ttl).Result()
}

// Refresh pushes the expiry forward and takes the key back if it already lapsed.
func (c *RedisCodes) Refresh(ctx context.Context, code string) error {
	key := c.prefix + code
	ok, err := c.client.Expire(ctx, key, c.ttl).Result()
	if err != nil || ok {
		return err
	}
	ok, err = c.client.SetNX(ctx, key, time.Now().Unix(), c.ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("code %s is held by another instance", code)
	}
	return nil
}

func (c *RedisCodes) Release(ctx context.Context, code string) error {
	return c.client.Del(ctx, c.prefix+code).Err()
}
