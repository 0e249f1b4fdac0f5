package cartsignal

import (
	"context"
	"fmt"
	"sync"

	"github.com/angelmondragon/webstore-backend/pkg/logger"
)

// Hub fans a change signal out to the in-process subscribers of one cart slot.
// Handlers run synchronously on the publishing goroutine and must not block.
type Hub struct {
	mu   sync.RWMutex
	next uint64
	subs map[uint64]func()
	logg *logger.Logger
}

// NewHub returns a hub with no subscribers. logg may be nil.
func NewHub(logg *logger.Logger) *Hub {
	return &Hub{subs: make(map[uint64]func()), logg: logg}
}

// Publish invokes every current subscriber once. A panicking handler is
// isolated so the remaining subscribers still run.
func (h *Hub) Publish(ctx context.Context) {
	h.mu.RLock()
	handlers := make([]func(), 0, len(h.subs))
	for _, handler := range h.subs {
		handlers = append(handlers, handler)
	}
	h.mu.RUnlock()

	for _, handler := range handlers {
		h.invoke(ctx, handler)
	}
}

// Subscribe registers handler until the returned func is called.
func (h *Hub) Subscribe(handler func()) func() {
	if handler == nil {
		return func() {}
	}
	h.mu.Lock()
	id := h.next
	h.next++
	h.subs[id] = handler
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
		})
	}
}

// Subscribers reports the number of registered handlers.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

func (h *Hub) invoke(ctx context.Context, handler func()) {
	defer func() {
		if rec := recover(); rec != nil {
			logCtx := h.logg.WithField(ctx, "panic", rec)
			h.logg.Error(logCtx, "cart_signal.subscriber_panic", fmt.Errorf("panic: %v", rec))
		}
	}()
	handler()
}
