package cart

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// storedItem is the persisted row layout. Price is written as a JSON number
// so existing slots written by the browser storefront stay readable.
type storedItem struct {
	ID       int64       `json:"id"`
	Name     string      `json:"name"`
	Price    json.Number `json:"price"`
	Quantity int         `json:"quantity"`
	Size     string      `json:"size"`
	Color    string      `json:"color"`
	Image    string      `json:"image"`
	Category string      `json:"category"`
	Stock    int         `json:"stock"`
}

// Encode serializes the cart into the persisted array layout.
func Encode(c Cart) ([]byte, error) {
	rows := make([]storedItem, 0, len(c.Items))
	for _, item := range c.Items {
		rows = append(rows, storedItem{
			ID:       item.ProductID,
			Name:     item.Name,
			Price:    json.Number(item.UnitPrice.String()),
			Quantity: item.Quantity,
			Size:     item.Variant.Size,
			Color:    item.Variant.Color,
			Image:    item.Image,
			Category: item.Category,
			Stock:    item.StockLimit,
		})
	}
	return json.Marshal(rows)
}

// Decode parses a persisted slot. Structurally invalid payloads return an
// error; rows that violate line invariants are dropped, duplicate product
// rows are merged and quantities are clamped to the stock limit.
func Decode(data []byte, defaultStock int) (Cart, error) {
	if defaultStock < 1 {
		defaultStock = DefaultStockLimit
	}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return Cart{Items: []LineItem{}}, nil
	}

	var rows []storedItem
	if err := json.Unmarshal(trimmed, &rows); err != nil {
		return Cart{}, fmt.Errorf("decode cart slot: %w", err)
	}

	out := Cart{Items: make([]LineItem, 0, len(rows))}
	for _, row := range rows {
		if row.ID <= 0 || row.Quantity < 1 {
			continue
		}
		price, err := decimal.NewFromString(row.Price.String())
		if err != nil {
			return Cart{}, fmt.Errorf("decode price for product %d: %w", row.ID, err)
		}
		if price.IsNegative() {
			return Cart{}, fmt.Errorf("negative price for product %d", row.ID)
		}
		stock := row.Stock
		if stock < 1 {
			stock = defaultStock
		}

		if idx := out.Find(row.ID); idx >= 0 {
			existing := &out.Items[idx]
			existing.Quantity = clampQuantity(existing.Quantity+row.Quantity, existing.StockLimit)
			continue
		}
		out.Items = append(out.Items, LineItem{
			ProductID:  row.ID,
			Name:       row.Name,
			Image:      row.Image,
			Category:   row.Category,
			UnitPrice:  price,
			Quantity:   clampQuantity(row.Quantity, stock),
			StockLimit: stock,
			Variant:    Variant{Size: row.Size, Color: row.Color}.normalized(),
		})
	}
	return out, nil
}
