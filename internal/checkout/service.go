package checkout

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/angelmondragon/webstore-backend/internal/cart"
	"github.com/angelmondragon/webstore-backend/internal/coupons"
	pkgerrors "github.com/angelmondragon/webstore-backend/pkg/errors"
	"github.com/angelmondragon/webstore-backend/pkg/logger"
	"github.com/go-playground/validator/v10"
)

const (
	defaultTimeout = 10 * time.Second

	OutcomeDelivered = "delivered"
	OutcomeFailed    = "failed"
	OutcomeTimeout   = "timeout"
)

// Document is what a Channel delivers: the rendered text plus the snapshot it came from.
type Document struct {
	OrderID  string
	Text     string
	Snapshot OrderSnapshot
}

// Receipt is a channel's affirmative acknowledgement.
type Receipt struct {
	Reference string
}

// Channel delivers a rendered order to the shop. A nil error is an
// affirmative acknowledgement; anything else means the order was not taken.
type Channel interface {
	Name() string
	Send(ctx context.Context, doc Document) (Receipt, error)
}

// OutcomeRecorder observes checkout attempts.
type OutcomeRecorder interface {
	ObserveCheckout(channel, outcome string, duration time.Duration)
}

// Options configures the checkout service.
type Options struct {
	Channel   Channel
	Guard     Guard
	Timeout   time.Duration
	StoreName string
	Currency  string
	Metrics   OutcomeRecorder
	Logger    *logger.Logger
	Now       func() time.Time
}

// SubmitInput is one checkout request for a device's cart.
type SubmitInput struct {
	DeviceID string
	Buyer    Buyer
	Cart     *cart.Service
	Coupons  *coupons.Session
}

// Confirmation is returned once the channel accepted the order.
type Confirmation struct {
	OrderID   string    `json:"order_id"`
	Channel   string    `json:"channel"`
	Reference string    `json:"reference,omitempty"`
	PlacedAt  time.Time `json:"placed_at"`
	Total     string    `json:"total"`
}

// Service turns a cart into an order delivered through a Channel.
type Service struct {
	channel   Channel
	guard     Guard
	timeout   time.Duration
	storeName string
	currency  string
	metrics   OutcomeRecorder
	logg      *logger.Logger
	now       func() time.Time
	validate  *validator.Validate
}

// NewService builds the checkout service.
func NewService(opts Options) (*Service, error) {
	if opts.Channel == nil {
		return nil, fmt.Errorf("checkout channel required")
	}
	if opts.Guard == nil {
		opts.Guard = NewLocalGuard()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		channel:   opts.Channel,
		guard:     opts.Guard,
		timeout:   opts.Timeout,
		storeName: opts.StoreName,
		currency:  opts.Currency,
		metrics:   opts.Metrics,
		logg:      opts.Logger,
		now:       opts.Now,
		validate:  newValidator(),
	}, nil
}

// ChannelName reports the configured delivery channel.
func (s *Service) ChannelName() string {
	return s.channel.Name()
}

// Submit validates the buyer, delivers the order and empties the cart once the
// channel acknowledges. Any failure leaves the cart and coupon untouched.
func (s *Service) Submit(ctx context.Context, input SubmitInput) (*Confirmation, error) {
	if input.Cart == nil || input.Coupons == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "checkout requires a cart and coupon session")
	}
	buyer := input.Buyer.trimmed()
	if err := s.validateBuyer(buyer); err != nil {
		return nil, err
	}
	if input.Cart.Cart(ctx).Empty() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")
	}

	release, err := s.guard.Acquire(ctx, input.DeviceID)
	if err != nil {
		if errors.Is(err, ErrInFlight) {
			return nil, pkgerrors.New(pkgerrors.CodeCheckoutInProgress, "a checkout is already in progress")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "acquire checkout guard")
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			s.logg.Error(ctx, "checkout.guard_release_failed", err)
		}
	}()

	// Re-read under the guard so the snapshot reflects the latest cart.
	current := input.Cart.Cart(ctx)
	if current.Empty() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")
	}

	couponCode := ""
	discount := coupons.Discount(cart.Subtotal(current), input.Coupons.Rate())
	if rule, ok := input.Coupons.Applied(); ok {
		couponCode = rule.Code
	}
	summary := input.Cart.Pricing().Summarize(current, discount)

	placedAt := s.now()
	orderID := NewOrderID(placedAt)
	snapshot := BuildSnapshot(orderID, placedAt, buyer, summary, couponCode)
	doc := Document{
		OrderID:  orderID,
		Text:     Render(snapshot, s.storeName, s.currency),
		Snapshot: snapshot,
	}

	ctx = s.logg.WithOrderID(ctx, orderID)
	receipt, err := s.deliver(ctx, doc)
	if err != nil {
		return nil, err
	}

	if err := input.Cart.Clear(ctx); err != nil {
		// The shop already has the order; failing here would invite a duplicate.
		s.logg.Error(ctx, "checkout.clear_cart_failed", err)
	}
	input.Coupons.Remove()
	s.logg.Info(ctx, "checkout.delivered")

	return &Confirmation{
		OrderID:   orderID,
		Channel:   s.channel.Name(),
		Reference: receipt.Reference,
		PlacedAt:  snapshot.PlacedAt,
		Total:     snapshot.Total.StringFixed(2),
	}, nil
}

func (s *Service) deliver(ctx context.Context, doc Document) (Receipt, error) {
	sendCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	started := time.Now()
	receipt, err := s.channel.Send(sendCtx, doc)
	elapsed := time.Since(started)
	if err == nil {
		s.observe(OutcomeDelivered, elapsed)
		return receipt, nil
	}

	outcome := OutcomeFailed
	message := "order submission failed"
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(sendCtx.Err(), context.DeadlineExceeded) {
		outcome = OutcomeTimeout
		message = "order submission timed out"
	}
	s.observe(outcome, elapsed)
	s.logg.Error(ctx, "checkout.delivery_failed", err)
	return Receipt{}, pkgerrors.Wrap(pkgerrors.CodeSubmission, err, message).
		WithDetails(map[string]any{"channel": s.channel.Name()})
}

func (s *Service) observe(outcome string, elapsed time.Duration) {
	if s.metrics != nil {
		s.metrics.ObserveCheckout(s.channel.Name(), outcome, elapsed)
	}
}

func (s *Service) validateBuyer(buyer Buyer) error {
	err := s.validate.Struct(buyer)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid buyer details")
	}
	details := map[string]string{}
	for _, fe := range fieldErrs {
		switch fe.Tag() {
		case "required":
			details[fe.Field()] = "is required"
		case "max":
			details[fe.Field()] = fmt.Sprintf("must be at most %s characters", fe.Param())
		default:
			details[fe.Field()] = "is invalid"
		}
	}
	return pkgerrors.New(pkgerrors.CodeValidation, "invalid buyer details").WithDetails(details)
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		tag := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if tag == "" {
			return f.Name
		}
		return tag
	})
	return v
}
