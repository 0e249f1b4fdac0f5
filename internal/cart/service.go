package cart

import (
	"context"
	"sync"

	pkgerrors "github.com/angelmondragon/webstore-backend/pkg/errors"
	"github.com/shopspring/decimal"
)

const (
	OpAddItem        = "add_item"
	OpUpdateQuantity = "update_quantity"
	OpRemoveItem     = "remove_item"
	OpClear          = "clear"
)

// MutationRecorder counts persisted mutations.
type MutationRecorder interface {
	IncMutation(op string)
}

// Service is the cart domain logic for one slot. Every mutation is a
// read-modify-write against the Store serialized by a per-slot mutex, and a
// successful write publishes exactly one change signal.
type Service struct {
	mu       sync.Mutex
	store    Store
	notifier Notifier
	pricing  Pricing
	metrics  MutationRecorder
}

// NewService wires the cart logic for a slot. notifier and metrics may be nil.
func NewService(store Store, notifier Notifier, pricing Pricing, metrics MutationRecorder) (*Service, error) {
	if store == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "cart store required")
	}
	if notifier == nil {
		notifier = NopNotifier()
	}
	return &Service{
		store:    store,
		notifier: notifier,
		pricing:  pricing,
		metrics:  metrics,
	}, nil
}

// Cart returns the current contents of the slot.
func (s *Service) Cart(ctx context.Context) Cart {
	return s.store.Load(ctx)
}

// Notifier exposes the change signal for subscribers.
func (s *Service) Notifier() Notifier {
	return s.notifier
}

// Pricing returns the shipping rule applied to this slot.
func (s *Service) Pricing() Pricing {
	return s.pricing
}

// AddItem merges product into the cart. An existing line gains qty up to its
// stock limit and keeps its original variant; otherwise a new line is appended.
// qty below 1 counts as 1.
func (s *Service) AddItem(ctx context.Context, product Product, variant Variant, qty int) (Cart, error) {
	if product.ID <= 0 {
		return Cart{}, pkgerrors.New(pkgerrors.CodeValidation, "product id must be positive")
	}
	if product.Price.IsNegative() {
		return Cart{}, pkgerrors.New(pkgerrors.CodeValidation, "product price must not be negative")
	}
	if qty < 1 {
		qty = 1
	}

	return s.mutate(ctx, OpAddItem, func(c Cart) (Cart, bool) {
		if idx := c.Find(product.ID); idx >= 0 {
			item := &c.Items[idx]
			item.Quantity = clampQuantity(item.Quantity+qty, item.StockLimit)
			return c, true
		}
		limit := product.Stock
		if limit < 1 {
			limit = DefaultStockLimit
		}
		c.Items = append(c.Items, LineItem{
			ProductID:  product.ID,
			Name:       product.Name,
			Image:      product.Image,
			Category:   product.Category,
			UnitPrice:  product.Price,
			Quantity:   clampQuantity(qty, limit),
			StockLimit: limit,
			Variant:    variant.normalized(),
		})
		return c, true
	})
}

// UpdateQuantity sets the quantity of productID, clamped to its stock limit.
// A quantity below 1 removes the line; an absent product is a silent no-op.
func (s *Service) UpdateQuantity(ctx context.Context, productID int64, qty int) (Cart, error) {
	if qty < 1 {
		return s.RemoveItem(ctx, productID)
	}
	return s.mutate(ctx, OpUpdateQuantity, func(c Cart) (Cart, bool) {
		idx := c.Find(productID)
		if idx < 0 {
			return c, false
		}
		c.Items[idx].Quantity = clampQuantity(qty, c.Items[idx].StockLimit)
		return c, true
	})
}

// RemoveItem deletes the line for productID if present.
func (s *Service) RemoveItem(ctx context.Context, productID int64) (Cart, error) {
	return s.mutate(ctx, OpRemoveItem, func(c Cart) (Cart, bool) {
		idx := c.Find(productID)
		if idx < 0 {
			return c, false
		}
		c.Items = append(c.Items[:idx], c.Items[idx+1:]...)
		return c, true
	})
}

// Clear empties the slot and publishes a change signal.
func (s *Service) Clear(ctx context.Context) error {
	s.mu.Lock()
	err := s.store.Clear(ctx)
	s.mu.Unlock()
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear cart")
	}
	s.recordMutation(OpClear)
	s.notifier.Publish(ctx)
	return nil
}

// Summary loads the cart and derives its totals for the given discount amount.
func (s *Service) Summary(ctx context.Context, discount decimal.Decimal) Summary {
	return s.pricing.Summarize(s.store.Load(ctx), discount)
}

// mutate runs fn inside the slot's critical section. The signal is published
// after the lock is released so subscribers can re-read without contention.
func (s *Service) mutate(ctx context.Context, op string, fn func(Cart) (Cart, bool)) (Cart, error) {
	s.mu.Lock()
	current := s.store.Load(ctx)
	next, changed := fn(current.clone())
	if !changed {
		s.mu.Unlock()
		return current, nil
	}
	if err := s.store.Save(ctx, next); err != nil {
		s.mu.Unlock()
		return current, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save cart")
	}
	s.mu.Unlock()

	s.recordMutation(op)
	s.notifier.Publish(ctx)
	return next, nil
}

func (s *Service) recordMutation(op string) {
	if s.metrics != nil {
		s.metrics.IncMutation(op)
	}
}
