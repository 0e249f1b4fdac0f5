package cart

import (
	"github.com/angelmondragon/webstore-backend/internal/storefront"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

type lineResponse struct {
	ProductID  int64           `json:"product_id"`
	Name       string          `json:"name"`
	Image      string          `json:"image"`
	Category   string          `json:"category"`
	Size       string          `json:"size"`
	Color      string          `json:"color"`
	Quantity   int             `json:"quantity"`
	StockLimit int             `json:"stock_limit"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
	LineTotal  decimal.Decimal `json:"line_total"`
}

type couponResponse struct {
	Code    string          `json:"code"`
	Percent decimal.Decimal `json:"percent"`
}

type cartResponse struct {
	Items    []lineResponse  `json:"items"`
	Count    int             `json:"count"`
	Subtotal decimal.Decimal `json:"subtotal"`
	Shipping decimal.Decimal `json:"shipping"`
	Discount decimal.Decimal `json:"discount"`
	Total    decimal.Decimal `json:"total"`
	Coupon   *couponResponse `json:"coupon"`
}

func toCartResponse(view storefront.CartView) cartResponse {
	items := make([]lineResponse, 0, len(view.Items))
	for _, item := range view.Items {
		items = append(items, lineResponse{
			ProductID:  item.ProductID,
			Name:       item.Name,
			Image:      item.Image,
			Category:   item.Category,
			Size:       item.Variant.Size,
			Color:      item.Variant.Color,
			Quantity:   item.Quantity,
			StockLimit: item.StockLimit,
			UnitPrice:  item.UnitPrice.Round(2),
			LineTotal:  item.LineTotal().Round(2),
		})
	}
	resp := cartResponse{
		Items:    items,
		Count:    view.Count,
		Subtotal: view.Subtotal.Round(2),
		Shipping: view.Shipping.Round(2),
		Discount: view.Discount.Round(2),
		Total:    view.Total.Round(2),
	}
	if view.Coupon != nil {
		resp.Coupon = &couponResponse{
			Code:    view.Coupon.Code,
			Percent: view.Coupon.Rate.Mul(hundred),
		}
	}
	return resp
}
