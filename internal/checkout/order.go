package checkout

import (
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/webstore-backend/internal/cart"
	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
)

const orderIDPrefix = "ORD-"

// Buyer is the contact form captured at checkout.
type Buyer struct {
	Name    string `json:"name" validate:"required,max=120"`
	Phone   string `json:"phone" validate:"required,max=40"`
	Address string `json:"address" validate:"required,max=500"`
	Notes   string `json:"notes,omitempty" validate:"max=1000"`
}

func (b Buyer) trimmed() Buyer {
	return Buyer{
		Name:    strings.TrimSpace(b.Name),
		Phone:   strings.TrimSpace(b.Phone),
		Address: strings.TrimSpace(b.Address),
		Notes:   strings.TrimSpace(b.Notes),
	}
}

// OrderLine is one cart line frozen into an order.
type OrderLine struct {
	ProductID int64           `json:"product_id"`
	Name      string          `json:"name"`
	Size      string          `json:"size"`
	Color     string          `json:"color"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	LineTotal decimal.Decimal `json:"line_total"`
}

// OrderSnapshot is the immutable record handed to a checkout channel.
type OrderSnapshot struct {
	OrderID  string          `json:"order_id"`
	PlacedAt time.Time       `json:"placed_at"`
	Buyer    Buyer           `json:"buyer"`
	Items    []OrderLine     `json:"items"`
	Coupon   string          `json:"coupon,omitempty"`
	Subtotal decimal.Decimal `json:"subtotal"`
	Shipping decimal.Decimal `json:"shipping"`
	Discount decimal.Decimal `json:"discount"`
	Total    decimal.Decimal `json:"total"`
}

// NewOrderID returns a time-ordered order reference.
func NewOrderID(at time.Time) string {
	return orderIDPrefix + ulid.MustNew(ulid.Timestamp(at), ulid.DefaultEntropy()).String()
}

// BuildSnapshot freezes summary into an order placed by buyer.
func BuildSnapshot(orderID string, placedAt time.Time, buyer Buyer, summary cart.Summary, coupon string) OrderSnapshot {
	lines := make([]OrderLine, 0, len(summary.Items))
	for _, item := range summary.Items {
		lines = append(lines, OrderLine{
			ProductID: item.ProductID,
			Name:      item.Name,
			Size:      item.Variant.Size,
			Color:     item.Variant.Color,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			LineTotal: item.LineTotal(),
		})
	}
	return OrderSnapshot{
		OrderID:  orderID,
		PlacedAt: placedAt.UTC(),
		Buyer:    buyer,
		Items:    lines,
		Coupon:   coupon,
		Subtotal: summary.Subtotal,
		Shipping: summary.Shipping,
		Discount: summary.Discount,
		Total:    summary.Total,
	}
}

// Render formats the snapshot as the plain-text message delivered to the shop.
func Render(snapshot OrderSnapshot, storeName, currency string) string {
	var b strings.Builder
	money := func(d decimal.Decimal) string {
		return strings.TrimSpace(d.StringFixed(2) + " " + currency)
	}

	fmt.Fprintf(&b, "New order %s\n", storeName)
	fmt.Fprintf(&b, "Order: %s\n", snapshot.OrderID)
	fmt.Fprintf(&b, "Placed: %s\n\n", snapshot.PlacedAt.Format(time.RFC3339))

	b.WriteString("Customer\n")
	fmt.Fprintf(&b, "Name: %s\n", snapshot.Buyer.Name)
	fmt.Fprintf(&b, "Phone: %s\n", snapshot.Buyer.Phone)
	fmt.Fprintf(&b, "Address: %s\n", snapshot.Buyer.Address)
	if snapshot.Buyer.Notes != "" {
		fmt.Fprintf(&b, "Notes: %s\n", snapshot.Buyer.Notes)
	}

	b.WriteString("\nItems\n")
	for i, line := range snapshot.Items {
		fmt.Fprintf(&b, "%d. %s (%s / %s) x%d @ %s = %s\n",
			i+1, line.Name, line.Size, line.Color, line.Quantity,
			money(line.UnitPrice), money(line.LineTotal))
	}

	b.WriteString("\n")
	fmt.Fprintf(&b, "Subtotal: %s\n", money(snapshot.Subtotal))
	if snapshot.Shipping.IsZero() {
		b.WriteString("Shipping: free\n")
	} else {
		fmt.Fprintf(&b, "Shipping: %s\n", money(snapshot.Shipping))
	}
	if snapshot.Coupon != "" {
		fmt.Fprintf(&b, "Discount (%s): -%s\n", snapshot.Coupon, money(snapshot.Discount))
	}
	fmt.Fprintf(&b, "Total: %s\n", money(snapshot.Total))
	return b.String()
}
