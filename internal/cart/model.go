package cart

import (
	"strings"

	"github.com/shopspring/decimal"
)

const (
	// DefaultStockLimit caps quantities when the catalog does not report stock.
	DefaultStockLimit = 10
	DefaultSize       = "M"
	DefaultColor      = "Default"
)

// Variant is the size/color selection made when a product was added.
type Variant struct {
	Size  string `json:"size"`
	Color string `json:"color"`
}

// normalized fills blank selections with the storefront defaults.
func (v Variant) normalized() Variant {
	v.Size = strings.TrimSpace(v.Size)
	v.Color = strings.TrimSpace(v.Color)
	if v.Size == "" {
		v.Size = DefaultSize
	}
	if v.Color == "" {
		v.Color = DefaultColor
	}
	return v
}

// Product is the catalog snapshot captured when an item is added. Name, image
// and price are denormalized into the line and never refreshed.
type Product struct {
	ID       int64
	Name     string
	Image    string
	Category string
	Price    decimal.Decimal
	Stock    int
}

// LineItem is one product row in the cart. There is at most one row per
// ProductID and Quantity stays within [1, StockLimit].
type LineItem struct {
	ProductID  int64           `json:"product_id"`
	Name       string          `json:"name"`
	Image      string          `json:"image"`
	Category   string          `json:"category"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
	Quantity   int             `json:"quantity"`
	StockLimit int             `json:"stock_limit"`
	Variant    Variant         `json:"variant"`
}

// LineTotal is UnitPrice multiplied by Quantity.
func (l LineItem) LineTotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Cart is the ordered list of line items; insertion order is display order.
type Cart struct {
	Items []LineItem `json:"items"`
}

// Empty reports whether the cart holds no items.
func (c Cart) Empty() bool {
	return len(c.Items) == 0
}

// Find returns the index of productID, or -1 when absent.
func (c Cart) Find(productID int64) int {
	for i, item := range c.Items {
		if item.ProductID == productID {
			return i
		}
	}
	return -1
}

// Count is the sum of quantities, the figure shown on the navbar badge.
func (c Cart) Count() int {
	total := 0
	for _, item := range c.Items {
		total += item.Quantity
	}
	return total
}

// clone copies the item slice so mutations never alias a loaded cart.
func (c Cart) clone() Cart {
	if len(c.Items) == 0 {
		return Cart{Items: []LineItem{}}
	}
	items := make([]LineItem, len(c.Items))
	copy(items, c.Items)
	return Cart{Items: items}
}

func clampQuantity(qty, limit int) int {
	if limit < 1 {
		limit = DefaultStockLimit
	}
	if qty > limit {
		return limit
	}
	return qty
}
