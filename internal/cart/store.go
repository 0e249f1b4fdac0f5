package cart

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrSlotEmpty is returned by a Slot that holds no payload.
var ErrSlotEmpty = errors.New("cart slot empty")

// Store is durable storage of one cart slot. Load never fails: missing or
// unreadable data yields an empty cart. Save overwrites the whole cart.
type Store interface {
	Load(ctx context.Context) Cart
	Save(ctx context.Context, c Cart) error
	Clear(ctx context.Context) error
}

// Slot is the raw byte storage behind a Store.
type Slot interface {
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, payload []byte) error
	Delete(ctx context.Context) error
}

// StoreReadError describes a slot read that was recovered as an empty cart.
type StoreReadError struct {
	Backend string
	Err     error
}

func (e *StoreReadError) Error() string {
	return fmt.Sprintf("read %s cart slot: %v", e.Backend, e.Err)
}

func (e *StoreReadError) Unwrap() error {
	return e.Err
}

// ReadErrorHook observes recovered read failures, typically to log and count them.
type ReadErrorHook func(ctx context.Context, err *StoreReadError)

// StoreOptions configures a SlotStore.
type StoreOptions struct {
	Backend           string
	DefaultStockLimit int
	OnReadError       ReadErrorHook
}

// SlotStore implements Store over a Slot using the persisted JSON layout.
type SlotStore struct {
	slot Slot
	opts StoreOptions
}

// NewSlotStore wraps slot with the cart codec.
func NewSlotStore(slot Slot, opts StoreOptions) *SlotStore {
	if opts.Backend == "" {
		opts.Backend = "unknown"
	}
	if opts.DefaultStockLimit < 1 {
		opts.DefaultStockLimit = DefaultStockLimit
	}
	return &SlotStore{slot: slot, opts: opts}
}

func (s *SlotStore) Load(ctx context.Context) Cart {
	payload, err := s.slot.Read(ctx)
	if err != nil {
		if !errors.Is(err, ErrSlotEmpty) {
			s.readFailed(ctx, err)
		}
		return Cart{Items: []LineItem{}}
	}
	c, err := Decode(payload, s.opts.DefaultStockLimit)
	if err != nil {
		s.readFailed(ctx, err)
		return Cart{Items: []LineItem{}}
	}
	return c
}

func (s *SlotStore) Save(ctx context.Context, c Cart) error {
	payload, err := Encode(c)
	if err != nil {
		return fmt.Errorf("encode cart: %w", err)
	}
	if err := s.slot.Write(ctx, payload); err != nil {
		return fmt.Errorf("write %s cart slot: %w", s.opts.Backend, err)
	}
	return nil
}

func (s *SlotStore) Clear(ctx context.Context) error {
	if err := s.slot.Delete(ctx); err != nil {
		return fmt.Errorf("delete %s cart slot: %w", s.opts.Backend, err)
	}
	return nil
}

func (s *SlotStore) readFailed(ctx context.Context, err error) {
	if s.opts.OnReadError == nil {
		return
	}
	s.opts.OnReadError(ctx, &StoreReadError{Backend: s.opts.Backend, Err: err})
}

// MemorySlot keeps the serialized cart in process memory.
type MemorySlot struct {
	mu      sync.Mutex
	payload []byte
}

// NewMemorySlot returns an empty in-memory slot, optionally seeded with payload.
func NewMemorySlot(payload []byte) *MemorySlot {
	s := &MemorySlot{}
	if payload != nil {
		s.payload = append([]byte(nil), payload...)
	}
	return s
}

func (s *MemorySlot) Read(context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.payload == nil {
		return nil, ErrSlotEmpty
	}
	return append([]byte(nil), s.payload...), nil
}

func (s *MemorySlot) Write(_ context.Context, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payload = append([]byte(nil), payload...)
	return nil
}

func (s *MemorySlot) Delete(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payload = nil
	return nil
}
