package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/webstore-backend/internal/checkout/channels"
	"github.com/angelmondragon/webstore-backend/internal/orderrelay"
	"github.com/angelmondragon/webstore-backend/pkg/config"
	"github.com/angelmondragon/webstore-backend/pkg/instance"
	"github.com/angelmondragon/webstore-backend/pkg/logger"
	"github.com/angelmondragon/webstore-backend/pkg/pubsub"
	"github.com/angelmondragon/webstore-backend/pkg/redis"
)

func main() {
	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: "order-relay"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(ctx, ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	requireResource(ctx, logg, "config", err)

	logg = logger.New(logger.Options{
		ServiceName: "order-relay",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	pubsubClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
	requireResource(ctx, logg, "pubsub", err)
	defer pubsubClient.Close()
	requireResource(ctx, logg, "orders subscription", pubsubClient.EnsureOrdersSubscription(ctx))

	var dedup orderrelay.Deduper
	if cfg.Redis.Enabled() {
		redisClient, err := redis.New(ctx, cfg.Redis)
		requireResource(ctx, logg, "redis", err)
		defer redisClient.Close()
		dedup = redisClient
	} else {
		logg.Warn(ctx, "redis not configured, redelivered orders may be relayed twice")
	}

	channel, err := channels.Build(cfg.Relay.Channel, cfg, channels.Deps{
		HTTPClient: &http.Client{Timeout: cfg.Checkout.Timeout},
		Logger:     logg,
	})
	requireResource(ctx, logg, "relay channel", err)

	consumer, err := orderrelay.NewConsumer(orderrelay.Params{
		Subscription: pubsubClient.OrdersSubscription(),
		Channel:      channel,
		Deduper:      dedup,
		SendTimeout:  cfg.Checkout.Timeout,
		DedupWindow:  cfg.Relay.DedupWindow,
		Logger:       logg,
	})
	requireResource(ctx, logg, "order relay consumer", err)

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	runCtx = logg.WithFields(runCtx, map[string]any{
		"env":          cfg.App.Env,
		"instance":     instance.GetID(),
		"channel":      channel.Name(),
		"subscription": cfg.PubSub.OrdersSubscription,
	})
	logg.Info(runCtx, "order relay ready")

	if err := consumer.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(runCtx, "order relay not working", err)
		os.Exit(1)
	}
	logg.Info(runCtx, "order relay shutting down")
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
