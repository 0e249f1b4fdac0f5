package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/multierr"

	"github.com/angelmondragon/webstore-backend/api/controllers"
	"github.com/angelmondragon/webstore-backend/api/routes"
	"github.com/angelmondragon/webstore-backend/internal/cart"
	"github.com/angelmondragon/webstore-backend/internal/cartsignal"
	"github.com/angelmondragon/webstore-backend/internal/cartstore"
	"github.com/angelmondragon/webstore-backend/internal/catalog"
	"github.com/angelmondragon/webstore-backend/internal/checkout"
	"github.com/angelmondragon/webstore-backend/internal/checkout/channels"
	"github.com/angelmondragon/webstore-backend/internal/coupons"
	"github.com/angelmondragon/webstore-backend/internal/storefront"
	"github.com/angelmondragon/webstore-backend/pkg/config"
	"github.com/angelmondragon/webstore-backend/pkg/db"
	"github.com/angelmondragon/webstore-backend/pkg/instance"
	"github.com/angelmondragon/webstore-backend/pkg/logger"
	"github.com/angelmondragon/webstore-backend/pkg/metrics"
	"github.com/angelmondragon/webstore-backend/pkg/migrate"
	"github.com/angelmondragon/webstore-backend/pkg/pubsub"
	"github.com/angelmondragon/webstore-backend/pkg/redis"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	if err := run(cfg, logg); err != nil {
		logg.Error(context.Background(), "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logg *logger.Logger) (err error) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var closers []func() error
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			err = multierr.Append(err, closers[i]())
		}
	}()

	var ready []controllers.Dependency

	var redisClient *redis.Client
	if cfg.Redis.Enabled() {
		redisClient, err = redis.New(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		closers = append(closers, redisClient.Close)
		ready = append(ready, controllers.Dependency{Name: "redis", Pinger: redisClient})
	}

	var dbClient *db.Client
	if strings.EqualFold(cfg.Cart.Store, config.CartStoreSQL) {
		dbClient, err = db.New(ctx, cfg.DB, logg)
		if err != nil {
			return err
		}
		closers = append(closers, dbClient.Close)
		ready = append(ready, controllers.Dependency{Name: "database", Pinger: dbClient})

		if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
			return err
		}
	}

	var ordersPublisher channels.Publisher
	if strings.EqualFold(cfg.Checkout.Channel, config.ChannelPubSub) {
		psClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
		if err != nil {
			return err
		}
		closers = append(closers, psClient.Close)
		ready = append(ready, controllers.Dependency{Name: "pubsub", Pinger: psClient})
		ordersPublisher = channels.NewGCPPublisher(psClient.OrdersPublisher())
	}

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	cartMetrics := metrics.NewCartMetrics(promReg)

	factory, err := cartFactory(cfg, redisClient, dbClient)
	if err != nil {
		return err
	}

	signals, relay, err := cartSignals(cfg, redisClient, logg)
	if err != nil {
		return err
	}
	if relay != nil {
		go func() {
			if err := relay.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logg.Error(ctx, "cart signal relay stopped", err)
			}
		}()
	}

	engine, err := coupons.NewEngine(cfg.Coupons.Codes)
	if err != nil {
		return err
	}

	registry, err := storefront.NewRegistry(storefront.Params{
		Factory: factory,
		Signals: signals,
		Pricing: cart.Pricing{
			FreeShippingThreshold: cfg.Cart.FreeShippingThreshold,
			ShippingFee:           cfg.Cart.ShippingFee,
		},
		Coupons:           engine,
		DefaultStockLimit: cfg.Cart.DefaultStockLimit,
		Metrics:           cartMetrics,
		Logger:            logg,
	})
	if err != nil {
		return err
	}
	go registry.RunJanitor(ctx, cfg.Cart.SessionSweep, cfg.Cart.SessionIdle)

	channel, err := channels.FromConfig(cfg, channels.Deps{
		HTTPClient:      &http.Client{Timeout: cfg.Checkout.Timeout},
		OrdersPublisher: ordersPublisher,
		Logger:          logg,
	})
	if err != nil {
		return err
	}

	var guard checkout.Guard = checkout.NewLocalGuard()
	if redisClient != nil {
		redisGuard, err := checkout.NewRedisGuard(redisClient, cfg.Checkout.Timeout*2)
		if err != nil {
			return err
		}
		guard = redisGuard
	}

	checkoutService, err := checkout.NewService(checkout.Options{
		Channel:   channel,
		Guard:     guard,
		Timeout:   cfg.Checkout.Timeout,
		StoreName: cfg.Checkout.StoreName,
		Currency:  cfg.Checkout.Currency,
		Metrics:   cartMetrics,
		Logger:    logg,
	})
	if err != nil {
		return err
	}

	catalogClient := catalog.NewClient(
		catalog.WithBaseURL(cfg.Catalog.BaseURL),
		catalog.WithTimeout(cfg.Catalog.Timeout),
	)

	deps := routes.Deps{
		Sessions: registry,
		Catalog:  catalogClient,
		Checkout: checkoutService,
		Ready:    ready,
		Metrics:  promhttp.HandlerFor(promReg, promhttp.HandlerOpts{}),
	}
	if redisClient != nil {
		deps.Idempotency = redisClient
		deps.RateLimiter = redisClient
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	logCtx := logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": instance.GetID(),
		"store":    factory.Backend(),
		"channel":  checkoutService.ChannelName(),
	})
	logg.Info(logCtx, "starting api server")

	// No WriteTimeout: cart event streams stay open for the life of the tab.
	server := &http.Server{
		Addr:              addr,
		Handler:           routes.NewRouter(cfg, logg, deps),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	logg.Info(logCtx, "shutting down api server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func cartFactory(cfg *config.Config, redisClient *redis.Client, dbClient *db.Client) (cartstore.Factory, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Cart.Store)) {
	case config.CartStoreRedis:
		if redisClient == nil {
			return nil, errors.New("redis cart store requires a redis connection")
		}
		return cartstore.NewRedisFactory(redisClient, cfg.Cart.SlotName, cfg.Cart.SlotTTL), nil
	case config.CartStoreSQL:
		if dbClient == nil {
			return nil, errors.New("sql cart store requires a database connection")
		}
		return cartstore.NewSQLFactory(dbClient.DB(), cfg.Cart.SlotName), nil
	default:
		return cartstore.NewMemoryFactory(), nil
	}
}

func cartSignals(cfg *config.Config, redisClient *redis.Client, logg *logger.Logger) (storefront.Signals, *cartsignal.Relay, error) {
	if redisClient == nil || !cfg.Cart.CrossDeviceSignal {
		return storefront.NewLocalSignals(logg), nil, nil
	}
	relay, err := cartsignal.NewRelay(redisClient, redisClient.CartSignalPattern(), instance.GetID(), logg)
	if err != nil {
		return nil, nil, err
	}
	channel := func(deviceID string) string {
		return redisClient.CartSignalChannel(deviceID, cfg.Cart.SlotName)
	}
	return storefront.NewRelaySignals(relay, channel), relay, nil
}
