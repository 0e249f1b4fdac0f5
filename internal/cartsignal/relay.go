package cartsignal

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/angelmondragon/webstore-backend/internal/cart"
	"github.com/angelmondragon/webstore-backend/pkg/logger"
	"github.com/redis/go-redis/v9"
)

type pubSubClient interface {
	Publish(ctx context.Context, channel string, message any) error
	PSubscribe(ctx context.Context, patterns ...string) (*redis.PubSub, error)
}

// Relay carries cart signals between API replicas over Redis pub/sub. Each
// slot has a local Hub; publishing fans out locally and to Redis, and signals
// from other replicas are replayed into the matching Hub. The payload is the
// origin replica id so a replica ignores its own echo.
type Relay struct {
	client  pubSubClient
	pattern string
	origin  string
	logg    *logger.Logger

	mu    sync.RWMutex
	hubs  map[string]*Hub
	ready chan struct{}
	once  sync.Once
}

// NewRelay builds a relay listening on pattern once Run is called.
func NewRelay(client pubSubClient, pattern, origin string, logg *logger.Logger) (*Relay, error) {
	if client == nil {
		return nil, errors.New("redis client required for cart signal relay")
	}
	if pattern == "" || origin == "" {
		return nil, errors.New("relay pattern and origin are required")
	}
	return &Relay{
		client:  client,
		pattern: pattern,
		origin:  origin,
		logg:    logg,
		hubs:    make(map[string]*Hub),
		ready:   make(chan struct{}),
	}, nil
}

// Notifier returns the cart.Notifier bound to channel, creating its Hub on first use.
func (r *Relay) Notifier(channel string) cart.Notifier {
	r.mu.Lock()
	hub, ok := r.hubs[channel]
	if !ok {
		hub = NewHub(r.logg)
		r.hubs[channel] = hub
	}
	r.mu.Unlock()
	return &redisNotifier{relay: r, channel: channel, hub: hub}
}

// Forget drops the Hub for channel; remote signals for it are ignored afterwards.
func (r *Relay) Forget(channel string) {
	r.mu.Lock()
	delete(r.hubs, channel)
	r.mu.Unlock()
}

// Ready is closed once the pattern subscription is confirmed.
func (r *Relay) Ready() <-chan struct{} {
	return r.ready
}

// Run subscribes to the signal pattern and dispatches remote signals until ctx
// is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	ps, err := r.client.PSubscribe(ctx, r.pattern)
	if err != nil {
		return fmt.Errorf("subscribe cart signals: %w", err)
	}
	defer ps.Close()

	if _, err := ps.Receive(ctx); err != nil {
		return fmt.Errorf("confirm cart signal subscription: %w", err)
	}
	r.once.Do(func() { close(r.ready) })

	messages := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			r.dispatch(ctx, msg)
		}
	}
}

func (r *Relay) dispatch(ctx context.Context, msg *redis.Message) {
	if msg == nil || msg.Payload == r.origin {
		return
	}
	r.mu.RLock()
	hub, ok := r.hubs[msg.Channel]
	r.mu.RUnlock()
	if ok {
		hub.Publish(ctx)
	}
}

type redisNotifier struct {
	relay   *Relay
	channel string
	hub     *Hub
}

func (n *redisNotifier) Publish(ctx context.Context) {
	n.hub.Publish(ctx)
	if err := n.relay.client.Publish(ctx, n.channel, n.relay.origin); err != nil && n.relay.logg != nil {
		logCtx := n.relay.logg.WithField(ctx, "channel", n.channel)
		n.relay.logg.Warn(logCtx, fmt.Sprintf("cart signal publish failed: %v", err))
	}
}

func (n *redisNotifier) Subscribe(handler func()) func() {
	return n.hub.Subscribe(handler)
}
