package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/webstore-backend/api/controllers"
	cartcontrollers "github.com/angelmondragon/webstore-backend/api/controllers/cart"
	"github.com/angelmondragon/webstore-backend/api/middleware"
	"github.com/angelmondragon/webstore-backend/internal/storefront"
	"github.com/angelmondragon/webstore-backend/pkg/config"
	"github.com/angelmondragon/webstore-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/webstore-backend/pkg/redis"
)

// Deps are the services mounted by NewRouter. Idempotency and RateLimiter
// may be nil when Redis is not configured.
type Deps struct {
	Sessions    *storefront.Registry
	Catalog     controllers.CatalogReader
	Checkout    controllers.CheckoutSubmitter
	Idempotency pkgredis.IdempotencyStore
	RateLimiter middleware.RateLimitStore
	Ready       []controllers.Dependency
	Metrics     http.Handler
}

func NewRouter(cfg *config.Config, logg *logger.Logger, deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	checkoutPolicy := middleware.NewRateLimitPolicy(
		"checkout",
		cfg.Checkout.RateWindow,
		cfg.Checkout.RateLimit,
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg.App.Env))
		r.Get("/ready", controllers.HealthReady(cfg.App.Env, logg, deps.Ready...))
	})

	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics)
	}

	r.Route("/api/v1", func(r chi.Router) {
		device := middleware.Device(cfg.Device, logg)

		r.With(device).Route("/products", func(r chi.Router) {
			r.Get("/", controllers.ProductsList(deps.Catalog, logg))
			r.Get("/categories", controllers.ProductCategories(deps.Catalog, logg))
			r.Get("/categories/{category}", controllers.ProductsByCategory(deps.Catalog, logg))
			r.Get("/{productId}", controllers.ProductGet(deps.Catalog, logg))
		})

		r.Route("/cart", func(r chi.Router) {
			// EventSource cannot send headers.
			r.With(middleware.Device(cfg.Device, logg, middleware.WithQueryToken())).
				Get("/events", cartcontrollers.CartEvents(deps.Sessions, cfg.Cart.EventsHeartbeat, logg))

			r.Group(func(r chi.Router) {
				r.Use(device)
				r.Get("/", cartcontrollers.CartFetch(deps.Sessions, logg))
				r.Delete("/", cartcontrollers.CartClear(deps.Sessions, logg))
				r.Post("/items", cartcontrollers.CartAddItem(deps.Sessions, deps.Catalog, logg))
				r.Patch("/items/{productId}", cartcontrollers.CartUpdateItem(deps.Sessions, logg))
				r.Delete("/items/{productId}", cartcontrollers.CartRemoveItem(deps.Sessions, logg))
				r.Post("/coupon", cartcontrollers.CouponApply(deps.Sessions, logg))
				r.Delete("/coupon", cartcontrollers.CouponRemove(deps.Sessions, logg))
			})
		})

		r.With(
			device,
			middleware.RateLimit(checkoutPolicy, deps.RateLimiter, logg),
			middleware.Idempotency(deps.Idempotency, cfg.Checkout.ReplayWindow, logg),
		).Post("/checkout", controllers.CheckoutSubmit(deps.Checkout, deps.Sessions, logg))
	})

	return r
}
