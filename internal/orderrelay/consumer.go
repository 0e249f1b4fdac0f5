package orderrelay

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/angelmondragon/webstore-backend/internal/checkout"
	"github.com/angelmondragon/webstore-backend/internal/checkout/channels"
	"github.com/angelmondragon/webstore-backend/pkg/logger"
)

const (
	defaultSendTimeout = 10 * time.Second
	defaultDedupWindow = 72 * time.Hour
	dedupScope         = "order-relay"
)

// Receiver is the subset of a Pub/Sub subscriber the consumer needs.
type Receiver interface {
	Receive(ctx context.Context, f func(context.Context, *pubsub.Message)) error
}

// Deduper remembers relayed order ids across redeliveries.
type Deduper interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	IdempotencyKey(scope, id string) string
}

// Params wires a Consumer. Deduper is optional.
type Params struct {
	Subscription Receiver
	Channel      checkout.Channel
	Deduper      Deduper
	SendTimeout  time.Duration
	DedupWindow  time.Duration
	Logger       *logger.Logger
}

// Consumer forwards order.submitted messages to a delivery channel. Delivery
// failures are nacked so Pub/Sub redelivers; malformed messages are acked and
// dropped.
type Consumer struct {
	subscription Receiver
	channel      checkout.Channel
	dedup        Deduper
	sendTimeout  time.Duration
	dedupWindow  time.Duration
	logg         *logger.Logger
}

func NewConsumer(p Params) (*Consumer, error) {
	if p.Subscription == nil {
		return nil, errors.New("orders subscription is required")
	}
	if p.Channel == nil {
		return nil, errors.New("relay channel is required")
	}
	if p.Channel.Name() == "pubsub" {
		return nil, errors.New("relay channel must not publish back to pubsub")
	}
	if p.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if p.SendTimeout <= 0 {
		p.SendTimeout = defaultSendTimeout
	}
	if p.DedupWindow <= 0 {
		p.DedupWindow = defaultDedupWindow
	}
	return &Consumer{
		subscription: p.Subscription,
		channel:      p.Channel,
		dedup:        p.Deduper,
		sendTimeout:  p.SendTimeout,
		dedupWindow:  p.DedupWindow,
		logg:         p.Logger,
	}, nil
}

// Run processes messages until the context is canceled or the subscription errors.
func (c *Consumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		if c.process(ctx, msg).nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

type processResult struct {
	nack bool
}

func (c *Consumer) process(ctx context.Context, msg *pubsub.Message) processResult {
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"message_id": msg.ID,
		"event_type": msg.Attributes["event_type"],
		"channel":    c.channel.Name(),
	})

	if msg.Attributes["event_type"] != channels.OrderSubmittedEvent {
		c.logg.Info(logCtx, "skipping non-order event")
		return processResult{}
	}

	var order channels.OrderMessage
	if err := json.Unmarshal(msg.Data, &order); err != nil {
		c.logg.Error(logCtx, "failed to decode order message", err)
		return processResult{}
	}
	if order.OrderID == "" || order.Text == "" {
		c.logg.Warn(logCtx, "order message missing id or text")
		return processResult{}
	}
	logCtx = c.logg.WithOrderID(logCtx, order.OrderID)

	key, fresh, err := c.claim(logCtx, order.OrderID)
	if err != nil {
		c.logg.Error(logCtx, "order relay dedup unavailable", err)
		return processResult{nack: true}
	}
	if !fresh {
		c.logg.Info(logCtx, "order already relayed")
		return processResult{}
	}

	sendCtx, cancel := context.WithTimeout(ctx, c.sendTimeout)
	defer cancel()
	receipt, err := c.channel.Send(sendCtx, checkout.Document{
		OrderID:  order.OrderID,
		Text:     order.Text,
		Snapshot: order.Order,
	})
	if err != nil {
		c.release(logCtx, key)
		c.logg.Error(logCtx, "order relay delivery failed", err)
		return processResult{nack: true}
	}

	c.logg.Info(c.logg.WithField(logCtx, "reference", receipt.Reference), "order relayed")
	return processResult{}
}

// claim marks orderID as in flight. Without a deduper every message is fresh.
func (c *Consumer) claim(ctx context.Context, orderID string) (string, bool, error) {
	if c.dedup == nil {
		return "", true, nil
	}
	key := c.dedup.IdempotencyKey(dedupScope, orderID)
	ok, err := c.dedup.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339), c.dedupWindow)
	if err != nil {
		return "", false, err
	}
	return key, ok, nil
}

func (c *Consumer) release(ctx context.Context, key string) {
	if c.dedup == nil || key == "" {
		return
	}
	if err := c.dedup.Del(context.WithoutCancel(ctx), key); err != nil {
		c.logg.Warn(ctx, "failed to release order relay claim")
	}
}
