package cart

import "github.com/shopspring/decimal"

// Pricing holds the shipping rule applied to every cart.
type Pricing struct {
	FreeShippingThreshold decimal.Decimal
	ShippingFee           decimal.Decimal
}

// DefaultPricing charges 5.99 shipping unless the subtotal exceeds 50.00.
func DefaultPricing() Pricing {
	return Pricing{
		FreeShippingThreshold: decimal.NewFromInt(50),
		ShippingFee:           decimal.RequireFromString("5.99"),
	}
}

// Subtotal is the sum of unit price times quantity over all lines.
func Subtotal(c Cart) decimal.Decimal {
	total := decimal.Zero
	for _, item := range c.Items {
		total = total.Add(item.LineTotal())
	}
	return total
}

// Shipping is free strictly above the threshold; exactly the threshold pays the fee.
func (p Pricing) Shipping(subtotal decimal.Decimal) decimal.Decimal {
	if subtotal.GreaterThan(p.FreeShippingThreshold) {
		return decimal.Zero
	}
	return p.ShippingFee
}

// Total is subtotal + shipping - discount, rounded to cents and never negative.
func Total(subtotal, shipping, discount decimal.Decimal) decimal.Decimal {
	total := subtotal.Add(shipping).Sub(discount).Round(2)
	if total.IsNegative() {
		return decimal.Zero
	}
	return total
}

// Summary is the derived view of a cart shown on the cart page and checkout.
type Summary struct {
	Items    []LineItem      `json:"items"`
	Count    int             `json:"count"`
	Subtotal decimal.Decimal `json:"subtotal"`
	Shipping decimal.Decimal `json:"shipping"`
	Discount decimal.Decimal `json:"discount"`
	Total    decimal.Decimal `json:"total"`
}

// Summarize derives totals for c. An empty cart owes no shipping.
func (p Pricing) Summarize(c Cart, discount decimal.Decimal) Summary {
	subtotal := Subtotal(c)
	shipping := decimal.Zero
	if !c.Empty() {
		shipping = p.Shipping(subtotal)
	}
	items := c.Items
	if items == nil {
		items = []LineItem{}
	}
	return Summary{
		Items:    items,
		Count:    c.Count(),
		Subtotal: subtotal,
		Shipping: shipping,
		Discount: discount,
		Total:    Total(subtotal, shipping, discount),
	}
}
