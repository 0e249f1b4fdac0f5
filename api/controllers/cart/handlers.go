package cart

import (
	"context"
	"net/http"

	"github.com/angelmondragon/webstore-backend/api/middleware"
	"github.com/angelmondragon/webstore-backend/api/responses"
	"github.com/angelmondragon/webstore-backend/api/validators"
	domain "github.com/angelmondragon/webstore-backend/internal/cart"
	"github.com/angelmondragon/webstore-backend/internal/catalog"
	"github.com/angelmondragon/webstore-backend/internal/storefront"
	pkgerrors "github.com/angelmondragon/webstore-backend/pkg/errors"
	"github.com/angelmondragon/webstore-backend/pkg/logger"
)

// Sessions resolves the storefront session of a device.
type Sessions interface {
	Session(deviceID string) (*storefront.Session, error)
}

// ProductLookup fetches the catalog entry added to a cart.
type ProductLookup interface {
	Get(ctx context.Context, id int64) (*catalog.Product, error)
}

func resolveSession(r *http.Request, sessions Sessions) (*storefront.Session, error) {
	if sessions == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "cart sessions unavailable")
	}
	deviceID := middleware.DeviceIDFromContext(r.Context())
	if deviceID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "device token required")
	}
	session, err := sessions.Session(deviceID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "resolve cart session")
	}
	return session, nil
}

func writeCart(w http.ResponseWriter, r *http.Request, session *storefront.Session) {
	responses.WriteSuccess(w, toCartResponse(session.Summary(r.Context())))
}

// CartFetch returns the device's cart with totals.
func CartFetch(sessions Sessions, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, err := resolveSession(r, sessions)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		writeCart(w, r, session)
	}
}

// CartAddItem adds a catalog product to the cart. Repeated adds merge into the
// existing line.
func CartAddItem(sessions Sessions, products ProductLookup, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, err := resolveSession(r, sessions)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if products == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "catalog unavailable"))
			return
		}

		var req addItemRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		product, err := products.Get(r.Context(), req.ProductID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if _, err := session.Cart().AddItem(r.Context(), domain.Product{
			ID:       product.ID,
			Name:     product.Title,
			Image:    product.Image,
			Category: product.Category,
			Price:    product.Price,
			Stock:    product.Stock,
		}, req.variant(), req.Quantity); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		writeCart(w, r, session)
	}
}

// CartUpdateItem sets a line's quantity; zero removes the line.
func CartUpdateItem(sessions Sessions, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, err := resolveSession(r, sessions)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		productID, err := validators.ParsePositiveIDParam(r, "productId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req updateItemRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if _, err := session.Cart().UpdateQuantity(r.Context(), productID, *req.Quantity); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		writeCart(w, r, session)
	}
}

func CartRemoveItem(sessions Sessions, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, err := resolveSession(r, sessions)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		productID, err := validators.ParsePositiveIDParam(r, "productId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if _, err := session.Cart().RemoveItem(r.Context(), productID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		writeCart(w, r, session)
	}
}

func CartClear(sessions Sessions, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, err := resolveSession(r, sessions)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := session.Cart().Clear(r.Context()); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		writeCart(w, r, session)
	}
}

// CouponApply validates a code and attaches it to the session. Only one coupon
// may be applied at a time.
func CouponApply(sessions Sessions, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, err := resolveSession(r, sessions)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req couponRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if _, err := session.Coupons().Apply(req.normalized()); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		session.Cart().Notifier().Publish(r.Context())
		writeCart(w, r, session)
	}
}

func CouponRemove(sessions Sessions, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, err := resolveSession(r, sessions)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		session.Coupons().Remove()
		session.Cart().Notifier().Publish(r.Context())
		writeCart(w, r, session)
	}
}
