package storefront

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/angelmondragon/webstore-backend/internal/cart"
	"github.com/angelmondragon/webstore-backend/internal/cartsignal"
	"github.com/angelmondragon/webstore-backend/internal/cartstore"
	"github.com/angelmondragon/webstore-backend/internal/coupons"
	"github.com/angelmondragon/webstore-backend/pkg/logger"
)

// Signals hands out the change notifier of a device's cart.
type Signals interface {
	Notifier(deviceID string) cart.Notifier
	Forget(deviceID string)
}

// ReadFailureRecorder counts cart slot reads recovered as an empty cart.
type ReadFailureRecorder interface {
	IncStoreReadFailure(backend string)
	cart.MutationRecorder
}

// Params wires a Registry.
type Params struct {
	Factory           cartstore.Factory
	Signals           Signals
	Pricing           cart.Pricing
	Coupons           *coupons.Engine
	DefaultStockLimit int
	Metrics           ReadFailureRecorder
	Logger            *logger.Logger
	Now               func() time.Time
}

// Registry binds every device to its cart service and coupon session.
type Registry struct {
	factory      cartstore.Factory
	signals      Signals
	pricing      cart.Pricing
	engine       *coupons.Engine
	defaultStock int
	metrics      ReadFailureRecorder
	logg         *logger.Logger
	now          func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewRegistry validates params and returns an empty registry.
func NewRegistry(p Params) (*Registry, error) {
	if p.Factory == nil {
		return nil, fmt.Errorf("cart store factory required")
	}
	if p.Coupons == nil {
		return nil, fmt.Errorf("coupon engine required")
	}
	if p.Signals == nil {
		p.Signals = NewLocalSignals(p.Logger)
	}
	if p.Now == nil {
		p.Now = time.Now
	}
	return &Registry{
		factory:      p.Factory,
		signals:      p.Signals,
		pricing:      p.Pricing,
		engine:       p.Coupons,
		defaultStock: p.DefaultStockLimit,
		metrics:      p.Metrics,
		logg:         p.Logger,
		now:          p.Now,
		sessions:     make(map[string]*Session),
	}, nil
}

// Session returns the device's session, creating it on first use.
func (r *Registry) Session(deviceID string) (*Session, error) {
	if deviceID == "" {
		return nil, fmt.Errorf("device id required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[deviceID]; ok {
		s.touch(r.now())
		return s, nil
	}

	store := cart.NewSlotStore(r.factory.Slot(deviceID), cart.StoreOptions{
		Backend:           r.factory.Backend(),
		DefaultStockLimit: r.defaultStock,
		OnReadError:       r.readFailed,
	})
	var recorder cart.MutationRecorder
	if r.metrics != nil {
		recorder = r.metrics
	}
	svc, err := cart.NewService(store, r.signals.Notifier(deviceID), r.pricing, recorder)
	if err != nil {
		return nil, err
	}
	s := &Session{
		deviceID: deviceID,
		cart:     svc,
		coupons:  coupons.NewSession(r.engine),
	}
	s.touch(r.now())
	r.sessions[deviceID] = s
	return s, nil
}

// Evict drops sessions idle for longer than idle that have no live watchers.
// Their carts stay in the store; only the in-memory coupon state is lost.
func (r *Registry) Evict(idle time.Duration) int {
	cutoff := r.now().Add(-idle)
	r.mu.Lock()
	defer r.mu.Unlock()

	evicted := 0
	for id, s := range r.sessions {
		if s.Watchers() > 0 || s.LastSeen().After(cutoff) {
			continue
		}
		delete(r.sessions, id)
		r.signals.Forget(id)
		evicted++
	}
	return evicted
}

// Len reports the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// RunJanitor evicts idle sessions every interval until ctx is cancelled.
func (r *Registry) RunJanitor(ctx context.Context, interval, idle time.Duration) {
	if interval <= 0 || idle <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.Evict(idle); n > 0 {
				r.logg.Debug(r.logg.WithField(ctx, "evicted", n), "storefront.sessions_evicted")
			}
		}
	}
}

func (r *Registry) readFailed(ctx context.Context, err *cart.StoreReadError) {
	if r.metrics != nil {
		r.metrics.IncStoreReadFailure(err.Backend)
	}
	logCtx := r.logg.WithField(ctx, "backend", err.Backend)
	r.logg.Warn(logCtx, fmt.Sprintf("cart slot unreadable, serving empty cart: %v", err.Err))
}

// Session is the storefront state of one device.
type Session struct {
	deviceID string
	cart     *cart.Service
	coupons  *coupons.Session

	mu       sync.Mutex
	lastSeen time.Time
	watchers int
}

func (s *Session) DeviceID() string { return s.deviceID }

func (s *Session) Cart() *cart.Service { return s.cart }

func (s *Session) Coupons() *coupons.Session { return s.coupons }

// Summary is the cart summary with the applied coupon's discount.
func (s *Session) Summary(ctx context.Context) CartView {
	current := s.cart.Cart(ctx)
	discount := coupons.Discount(cart.Subtotal(current), s.coupons.Rate())
	view := CartView{Summary: s.cart.Pricing().Summarize(current, discount)}
	if rule, ok := s.coupons.Applied(); ok {
		view.Coupon = &rule
	}
	return view
}

// Watch subscribes handler to cart changes and keeps the session alive until
// the returned func is called.
func (s *Session) Watch(handler func()) func() {
	unsubscribe := s.cart.Notifier().Subscribe(handler)
	s.mu.Lock()
	s.watchers++
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			unsubscribe()
			s.mu.Lock()
			s.watchers--
			s.mu.Unlock()
		})
	}
}

func (s *Session) Watchers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.watchers
}

func (s *Session) LastSeen() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

func (s *Session) touch(at time.Time) {
	s.mu.Lock()
	s.lastSeen = at
	s.mu.Unlock()
}

// CartView is the cart page payload: summary plus the applied coupon.
type CartView struct {
	cart.Summary
	Coupon *coupons.Rule `json:"coupon"`
}

// LocalSignals keeps one Hub per device in process memory.
type LocalSignals struct {
	mu   sync.Mutex
	hubs map[string]*cartsignal.Hub
	logg *logger.Logger
}

func NewLocalSignals(logg *logger.Logger) *LocalSignals {
	return &LocalSignals{hubs: make(map[string]*cartsignal.Hub), logg: logg}
}

func (l *LocalSignals) Notifier(deviceID string) cart.Notifier {
	l.mu.Lock()
	defer l.mu.Unlock()
	hub, ok := l.hubs[deviceID]
	if !ok {
		hub = cartsignal.NewHub(l.logg)
		l.hubs[deviceID] = hub
	}
	return hub
}

func (l *LocalSignals) Forget(deviceID string) {
	l.mu.Lock()
	delete(l.hubs, deviceID)
	l.mu.Unlock()
}

// RelaySignals routes notifiers through a cross-replica Relay.
type RelaySignals struct {
	relay   *cartsignal.Relay
	channel func(deviceID string) string
}

// NewRelaySignals maps each device to its Redis channel via channel.
func NewRelaySignals(relay *cartsignal.Relay, channel func(deviceID string) string) *RelaySignals {
	return &RelaySignals{relay: relay, channel: channel}
}

func (s *RelaySignals) Notifier(deviceID string) cart.Notifier {
	return s.relay.Notifier(s.channel(deviceID))
}

func (s *RelaySignals) Forget(deviceID string) {
	s.relay.Forget(s.channel(deviceID))
}
