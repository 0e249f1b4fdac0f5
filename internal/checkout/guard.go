package checkout

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const defaultGuardTTL = time.Minute

// ErrInFlight is returned by a Guard when the key is already held.
var ErrInFlight = errors.New("checkout already in flight")

// ReleaseFunc frees a held guard.
type ReleaseFunc func(ctx context.Context) error

// Guard rejects a second checkout for the same device while one is running.
// It never queues or coalesces callers.
type Guard interface {
	Acquire(ctx context.Context, key string) (ReleaseFunc, error)
}

// LocalGuard keeps in-flight keys in process memory.
type LocalGuard struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewLocalGuard() *LocalGuard {
	return &LocalGuard{held: map[string]struct{}{}}
}

func (g *LocalGuard) Acquire(_ context.Context, key string) (ReleaseFunc, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.held[key]; ok {
		return nil, ErrInFlight
	}
	g.held[key] = struct{}{}

	var once sync.Once
	return func(context.Context) error {
		once.Do(func() {
			g.mu.Lock()
			delete(g.held, key)
			g.mu.Unlock()
		})
		return nil
	}, nil
}

// redisLockStore defines the operations used by RedisGuard.
type redisLockStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
	CheckoutLockKey(deviceID string) string
}

// RedisGuard shares the in-flight state across replicas using SETNX + TTL.
// The TTL bounds how long a crashed replica can block a device.
type RedisGuard struct {
	client redisLockStore
	ttl    time.Duration
}

// NewRedisGuard constructs a Redis-backed guard.
func NewRedisGuard(client redisLockStore, ttl time.Duration) (*RedisGuard, error) {
	if client == nil {
		return nil, errors.New("redis client required for checkout guard")
	}
	if ttl <= 0 {
		ttl = defaultGuardTTL
	}
	return &RedisGuard{client: client, ttl: ttl}, nil
}

func (g *RedisGuard) Acquire(ctx context.Context, key string) (ReleaseFunc, error) {
	lockKey := g.client.CheckoutLockKey(key)
	owner := uuid.NewString()
	ok, err := g.client.SetNX(ctx, lockKey, owner, g.ttl)
	if err != nil {
		return nil, fmt.Errorf("setnx: %w", err)
	}
	if !ok {
		return nil, ErrInFlight
	}
	return func(ctx context.Context) error {
		return g.release(ctx, lockKey, owner)
	}, nil
}

// release frees the lock only if the owner value still matches.
func (g *RedisGuard) release(ctx context.Context, lockKey, owner string) error {
	value, err := g.client.Get(ctx, lockKey)
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("read lock owner: %w", err)
	}
	if value != owner {
		return nil
	}
	if err := g.client.Del(ctx, lockKey); err != nil {
		return fmt.Errorf("delete lock: %w", err)
	}
	return nil
}
