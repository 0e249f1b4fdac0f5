package controllers

import (
	"context"
	"net/http"

	"github.com/angelmondragon/webstore-backend/api/middleware"
	"github.com/angelmondragon/webstore-backend/api/responses"
	"github.com/angelmondragon/webstore-backend/api/validators"
	"github.com/angelmondragon/webstore-backend/internal/checkout"
	"github.com/angelmondragon/webstore-backend/internal/storefront"
	pkgerrors "github.com/angelmondragon/webstore-backend/pkg/errors"
	"github.com/angelmondragon/webstore-backend/pkg/logger"
)

// CheckoutSubmitter delivers an order for a device's cart.
type CheckoutSubmitter interface {
	Submit(ctx context.Context, input checkout.SubmitInput) (*checkout.Confirmation, error)
}

// SessionResolver resolves the storefront session of a device.
type SessionResolver interface {
	Session(deviceID string) (*storefront.Session, error)
}

type checkoutRequest struct {
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
	Notes   string `json:"notes"`
}

// CheckoutSubmit places the device's cart as an order. Buyer fields are
// validated by the checkout service so trimming applies before checks.
func CheckoutSubmit(svc CheckoutSubmitter, sessions SessionResolver, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil || sessions == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout unavailable"))
			return
		}
		deviceID := middleware.DeviceIDFromContext(ctx)
		if deviceID == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "device token required"))
			return
		}

		var req checkoutRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		session, err := sessions.Session(deviceID)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "resolve cart session"))
			return
		}

		confirmation, err := svc.Submit(ctx, checkout.SubmitInput{
			DeviceID: deviceID,
			Buyer: checkout.Buyer{
				Name:    req.Name,
				Phone:   req.Phone,
				Address: req.Address,
				Notes:   req.Notes,
			},
			Cart:    session.Cart(),
			Coupons: session.Coupons(),
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, confirmation)
	}
}
