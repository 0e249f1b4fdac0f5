package cart

import (
	"strings"

	"github.com/angelmondragon/webstore-backend/api/validators"
	domain "github.com/angelmondragon/webstore-backend/internal/cart"
)

const maxVariantLength = 40

type addItemRequest struct {
	ProductID int64  `json:"product_id" validate:"required,gt=0"`
	Quantity  int    `json:"quantity" validate:"omitempty,min=0,max=1000"`
	Size      string `json:"size" validate:"max=40"`
	Color     string `json:"color" validate:"max=40"`
}

func (r addItemRequest) variant() domain.Variant {
	return domain.Variant{
		Size:  validators.SanitizeString(r.Size, maxVariantLength),
		Color: validators.SanitizeString(r.Color, maxVariantLength),
	}
}

type updateItemRequest struct {
	Quantity *int `json:"quantity" validate:"required,min=0,max=1000"`
}

type couponRequest struct {
	Code string `json:"code" validate:"required,max=64"`
}

func (r couponRequest) normalized() string {
	return strings.TrimSpace(r.Code)
}
