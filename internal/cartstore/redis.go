package cartstore

import (
	"context"
	"errors"
	"time"

	"github.com/angelmondragon/webstore-backend/internal/cart"
	"github.com/redis/go-redis/v9"
)

type redisKV interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	CartKey(deviceID, slot string) string
}

// RedisSlot stores one serialized cart under a single key.
type RedisSlot struct {
	client redisKV
	key    string
	ttl    time.Duration
}

func (s *RedisSlot) Read(ctx context.Context) ([]byte, error) {
	value, err := s.client.Get(ctx, s.key)
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, cart.ErrSlotEmpty
		}
		return nil, err
	}
	return []byte(value), nil
}

// Write overwrites the slot. A zero ttl keeps the key until it is cleared.
func (s *RedisSlot) Write(ctx context.Context, payload []byte) error {
	return s.client.Set(ctx, s.key, string(payload), s.ttl)
}

func (s *RedisSlot) Delete(ctx context.Context) error {
	return s.client.Del(ctx, s.key)
}

// RedisFactory hands out Redis-backed slots keyed by device.
type RedisFactory struct {
	client   redisKV
	slotName string
	ttl      time.Duration
}

func NewRedisFactory(client redisKV, slotName string, ttl time.Duration) *RedisFactory {
	return &RedisFactory{client: client, slotName: slotName, ttl: ttl}
}

func (f *RedisFactory) Slot(deviceID string) cart.Slot {
	return &RedisSlot{client: f.client, key: f.client.CartKey(deviceID, f.slotName), ttl: f.ttl}
}

func (f *RedisFactory) Backend() string {
	return BackendRedis
}
