package checkout

import (
	"strings"
	"testing"
	"time"

	"github.com/angelmondragon/webstore-backend/internal/cart"
	"github.com/shopspring/decimal"
)

func TestNewOrderIDIsTimeOrdered(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	first := NewOrderID(at)
	second := NewOrderID(at.Add(time.Millisecond))

	if !strings.HasPrefix(first, "ORD-") {
		t.Fatalf("expected ORD- prefix, got %q", first)
	}
	if first == second || first > second {
		t.Fatalf("expected increasing ids, got %q then %q", first, second)
	}
}

func TestRenderFreeShippingAndDiscount(t *testing.T) {
	pricing := cart.DefaultPricing()
	c := cart.Cart{Items: []cart.LineItem{{
		ProductID:  1,
		Name:       "Fjallraven Backpack",
		UnitPrice:  decimal.RequireFromString("109.95"),
		Quantity:   1,
		StockLimit: 10,
		Variant:    cart.Variant{Size: "L", Color: "Blue"},
	}}}
	discount := decimal.RequireFromString("11.00")
	summary := pricing.Summarize(c, discount)

	snap := BuildSnapshot("ORD-TEST", time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Buyer{Name: "Ada", Phone: "555", Address: "Main St", Notes: "ring twice"}, summary, "WEBSTORE10")
	text := Render(snap, "WEBSTORE", "USD")

	for _, want := range []string{
		"New order WEBSTORE",
		"Placed: 2026-03-01T12:00:00Z",
		"Notes: ring twice",
		"1. Fjallraven Backpack (L / Blue) x1 @ 109.95 USD = 109.95 USD",
		"Shipping: free",
		"Discount (WEBSTORE10): -11.00 USD",
		"Total: 98.95 USD",
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("expected %q in:\n%s", want, text)
		}
	}
	if len(snap.Items) != 1 || !snap.Items[0].LineTotal.Equal(decimal.RequireFromString("109.95")) {
		t.Fatalf("unexpected snapshot lines %+v", snap.Items)
	}
}

func TestRenderOmitsEmptyOptionalLines(t *testing.T) {
	snap := OrderSnapshot{
		OrderID:  "ORD-X",
		Buyer:    Buyer{Name: "A", Phone: "1", Address: "B"},
		Subtotal: decimal.RequireFromString("10"),
		Shipping: decimal.RequireFromString("5.99"),
		Total:    decimal.RequireFromString("15.99"),
	}
	text := Render(snap, "WEBSTORE", "USD")
	if strings.Contains(text, "Notes:") || strings.Contains(text, "Discount") {
		t.Fatalf("unexpected optional lines:\n%s", text)
	}
	if !strings.Contains(text, "Subtotal: 10.00 USD") {
		t.Fatalf("expected fixed-point subtotal:\n%s", text)
	}
}
