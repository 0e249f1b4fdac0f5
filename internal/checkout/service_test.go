package checkout

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/angelmondragon/webstore-backend/internal/cart"
	"github.com/angelmondragon/webstore-backend/internal/coupons"
	pkgerrors "github.com/angelmondragon/webstore-backend/pkg/errors"
	"github.com/shopspring/decimal"
)

type countingNotifier struct {
	mu    sync.Mutex
	count int
}

func (n *countingNotifier) Publish(context.Context) {
	n.mu.Lock()
	n.count++
	n.mu.Unlock()
}

func (n *countingNotifier) Subscribe(func()) func() { return func() {} }

func (n *countingNotifier) Count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.count
}

type stubChannel struct {
	mu    sync.Mutex
	docs  []Document
	send  func(ctx context.Context, doc Document) (Receipt, error)
	calls int
}

func (c *stubChannel) Name() string { return "stub" }

func (c *stubChannel) Send(ctx context.Context, doc Document) (Receipt, error) {
	c.mu.Lock()
	c.calls++
	c.docs = append(c.docs, doc)
	send := c.send
	c.mu.Unlock()
	if send != nil {
		return send(ctx, doc)
	}
	return Receipt{Reference: "ack-1"}, nil
}

func (c *stubChannel) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

type outcomeRecord struct {
	channel string
	outcome string
}

type stubOutcomes struct {
	mu      sync.Mutex
	records []outcomeRecord
}

func (s *stubOutcomes) ObserveCheckout(channel, outcome string, _ time.Duration) {
	s.mu.Lock()
	s.records = append(s.records, outcomeRecord{channel: channel, outcome: outcome})
	s.mu.Unlock()
}

type fixture struct {
	cart     *cart.Service
	notifier *countingNotifier
	coupons  *coupons.Session
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	notifier := &countingNotifier{}
	svc, err := cart.NewService(
		cart.NewSlotStore(cart.NewMemorySlot(nil), cart.StoreOptions{Backend: "memory"}),
		notifier, cart.DefaultPricing(), nil)
	if err != nil {
		t.Fatalf("new cart service: %v", err)
	}
	engine, err := coupons.NewEngine(map[string]string{"WEBSTORE10": "10"})
	if err != nil {
		t.Fatalf("new coupon engine: %v", err)
	}
	return fixture{cart: svc, notifier: notifier, coupons: coupons.NewSession(engine)}
}

func (f fixture) addTShirt(t *testing.T) {
	t.Helper()
	_, err := f.cart.AddItem(context.Background(), cart.Product{
		ID:    2,
		Name:  "Mens Casual Premium Slim Fit T-Shirts",
		Price: decimal.RequireFromString("19.99"),
		Stock: 10,
	}, cart.Variant{}, 1)
	if err != nil {
		t.Fatalf("add item: %v", err)
	}
}

func (f fixture) input(buyer Buyer) SubmitInput {
	return SubmitInput{DeviceID: "device-1", Buyer: buyer, Cart: f.cart, Coupons: f.coupons}
}

func validBuyer() Buyer {
	return Buyer{Name: "Ada Lovelace", Phone: "+1 555 0100", Address: "12 Analytical St"}
}

func newTestService(t *testing.T, channel Channel, opts Options) *Service {
	t.Helper()
	opts.Channel = channel
	if opts.StoreName == "" {
		opts.StoreName = "WEBSTORE"
	}
	if opts.Currency == "" {
		opts.Currency = "USD"
	}
	svc, err := NewService(opts)
	if err != nil {
		t.Fatalf("new checkout service: %v", err)
	}
	return svc
}

func TestSubmitRejectsMissingPhone(t *testing.T) {
	f := newFixture(t)
	f.addTShirt(t)
	channel := &stubChannel{}
	svc := newTestService(t, channel, Options{})

	buyer := validBuyer()
	buyer.Phone = "   "
	_, err := svc.Submit(context.Background(), f.input(buyer))
	if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	details, ok := pkgerrors.As(err).Details().(map[string]string)
	if !ok || details["phone"] != "is required" {
		t.Fatalf("expected phone detail, got %#v", pkgerrors.As(err).Details())
	}
	if channel.Calls() != 0 {
		t.Fatalf("expected no channel call, got %d", channel.Calls())
	}
	if got := f.cart.Cart(context.Background()).Count(); got != 1 {
		t.Fatalf("expected cart untouched, count %d", got)
	}
}

func TestSubmitRejectsEmptyCart(t *testing.T) {
	f := newFixture(t)
	channel := &stubChannel{}
	svc := newTestService(t, channel, Options{})

	_, err := svc.Submit(context.Background(), f.input(validBuyer()))
	if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if channel.Calls() != 0 {
		t.Fatalf("expected no channel call")
	}
}

func TestSubmitDeliversAndClearsCart(t *testing.T) {
	f := newFixture(t)
	f.addTShirt(t)
	channel := &stubChannel{}
	outcomes := &stubOutcomes{}
	placed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := newTestService(t, channel, Options{Metrics: outcomes, Now: func() time.Time { return placed }})

	before := f.notifier.Count()
	conf, err := svc.Submit(context.Background(), f.input(validBuyer()))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !strings.HasPrefix(conf.OrderID, "ORD-") || len(conf.OrderID) != len("ORD-")+26 {
		t.Fatalf("unexpected order id %q", conf.OrderID)
	}
	if conf.Total != "25.98" || conf.Reference != "ack-1" || conf.Channel != "stub" {
		t.Fatalf("unexpected confirmation %+v", conf)
	}
	if !f.cart.Cart(context.Background()).Empty() {
		t.Fatal("expected cart to be emptied after acknowledgement")
	}
	if got := f.notifier.Count() - before; got != 1 {
		t.Fatalf("expected exactly one change signal, got %d", got)
	}

	doc := channel.docs[0]
	if doc.OrderID != conf.OrderID {
		t.Fatalf("document order id mismatch: %q vs %q", doc.OrderID, conf.OrderID)
	}
	for _, want := range []string{
		"Order: " + conf.OrderID,
		"Phone: +1 555 0100",
		"x1 @ 19.99 USD = 19.99 USD",
		"Shipping: 5.99 USD",
		"Total: 25.98 USD",
	} {
		if !strings.Contains(doc.Text, want) {
			t.Fatalf("expected document to contain %q:\n%s", want, doc.Text)
		}
	}
	if len(outcomes.records) != 1 || outcomes.records[0].outcome != OutcomeDelivered {
		t.Fatalf("unexpected outcomes %+v", outcomes.records)
	}
}

func TestSubmitResetsAppliedCoupon(t *testing.T) {
	f := newFixture(t)
	f.addTShirt(t)
	if _, err := f.coupons.Apply("webstore10"); err != nil {
		t.Fatalf("apply coupon: %v", err)
	}
	channel := &stubChannel{}
	svc := newTestService(t, channel, Options{})

	if _, err := svc.Submit(context.Background(), f.input(validBuyer())); err != nil {
		t.Fatalf("submit: %v", err)
	}
	snap := channel.docs[0].Snapshot
	if snap.Coupon != "WEBSTORE10" || !snap.Discount.Equal(decimal.RequireFromString("2.00")) {
		t.Fatalf("unexpected discount in snapshot: %s %s", snap.Coupon, snap.Discount)
	}
	if !snap.Total.Equal(decimal.RequireFromString("23.98")) {
		t.Fatalf("expected total 23.98, got %s", snap.Total)
	}
	if _, ok := f.coupons.Applied(); ok {
		t.Fatal("expected coupon session reset after checkout")
	}
}

func TestSubmitChannelFailureKeepsCart(t *testing.T) {
	f := newFixture(t)
	f.addTShirt(t)
	if _, err := f.coupons.Apply("WEBSTORE10"); err != nil {
		t.Fatalf("apply coupon: %v", err)
	}
	channel := &stubChannel{send: func(context.Context, Document) (Receipt, error) {
		return Receipt{}, errors.New("connection refused")
	}}
	outcomes := &stubOutcomes{}
	svc := newTestService(t, channel, Options{Metrics: outcomes})

	before := f.notifier.Count()
	_, err := svc.Submit(context.Background(), f.input(validBuyer()))
	if !pkgerrors.IsCode(err, pkgerrors.CodeSubmission) {
		t.Fatalf("expected submission error, got %v", err)
	}
	if !pkgerrors.Retryable(err) {
		t.Fatal("expected submission error to be retryable")
	}
	if got := f.cart.Cart(context.Background()).Count(); got != 1 {
		t.Fatalf("expected cart preserved, count %d", got)
	}
	if f.notifier.Count() != before {
		t.Fatal("expected no change signal on failure")
	}
	if _, ok := f.coupons.Applied(); !ok {
		t.Fatal("expected coupon to stay applied on failure")
	}
	if len(outcomes.records) != 1 || outcomes.records[0].outcome != OutcomeFailed {
		t.Fatalf("unexpected outcomes %+v", outcomes.records)
	}
}

func TestSubmitTimeoutIsSubmissionError(t *testing.T) {
	f := newFixture(t)
	f.addTShirt(t)
	channel := &stubChannel{send: func(ctx context.Context, _ Document) (Receipt, error) {
		<-ctx.Done()
		return Receipt{}, ctx.Err()
	}}
	outcomes := &stubOutcomes{}
	svc := newTestService(t, channel, Options{Timeout: 20 * time.Millisecond, Metrics: outcomes})

	_, err := svc.Submit(context.Background(), f.input(validBuyer()))
	if !pkgerrors.IsCode(err, pkgerrors.CodeSubmission) {
		t.Fatalf("expected submission error, got %v", err)
	}
	if got := f.cart.Cart(context.Background()).Count(); got != 1 {
		t.Fatalf("expected cart preserved, count %d", got)
	}
	if len(outcomes.records) != 1 || outcomes.records[0].outcome != OutcomeTimeout {
		t.Fatalf("unexpected outcomes %+v", outcomes.records)
	}
}

func TestSubmitRejectsSecondInFlight(t *testing.T) {
	f := newFixture(t)
	f.addTShirt(t)
	started := make(chan struct{})
	unblock := make(chan struct{})
	channel := &stubChannel{send: func(context.Context, Document) (Receipt, error) {
		close(started)
		<-unblock
		return Receipt{Reference: "ack"}, nil
	}}
	svc := newTestService(t, channel, Options{Timeout: 5 * time.Second})

	done := make(chan error, 1)
	go func() {
		_, err := svc.Submit(context.Background(), f.input(validBuyer()))
		done <- err
	}()
	<-started

	_, err := svc.Submit(context.Background(), f.input(validBuyer()))
	if !pkgerrors.IsCode(err, pkgerrors.CodeCheckoutInProgress) {
		t.Fatalf("expected checkout in progress, got %v", err)
	}

	close(unblock)
	if err := <-done; err != nil {
		t.Fatalf("first submit failed: %v", err)
	}
	if channel.Calls() != 1 {
		t.Fatalf("expected one delivery, got %d", channel.Calls())
	}
}

func TestNewServiceRequiresChannel(t *testing.T) {
	if _, err := NewService(Options{}); err == nil {
		t.Fatal("expected error without channel")
	}
}
