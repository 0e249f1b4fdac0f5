package channels

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/angelmondragon/webstore-backend/internal/checkout"
)

// OrderSubmittedEvent is the event_type attribute of published orders.
const OrderSubmittedEvent = "order.submitted"

// Publisher is the subset of a Pub/Sub publisher used by the channel.
type Publisher interface {
	Publish(context.Context, *gcppubsub.Message) PublishResult
}

// PublishResult resolves to the server-assigned message id.
type PublishResult interface {
	Get(context.Context) (string, error)
}

// PubSub publishes orders to a topic; the server message id is the ack.
type PubSub struct {
	publisher Publisher
}

func NewPubSub(publisher Publisher) (*PubSub, error) {
	if publisher == nil {
		return nil, errors.New("pubsub publisher required")
	}
	return &PubSub{publisher: publisher}, nil
}

func (p *PubSub) Name() string { return "pubsub" }

// OrderMessage is the JSON body of an order.submitted message.
type OrderMessage struct {
	OrderID string                 `json:"order_id"`
	Text    string                 `json:"text"`
	Order   checkout.OrderSnapshot `json:"order"`
}

func (p *PubSub) Send(ctx context.Context, doc checkout.Document) (checkout.Receipt, error) {
	data, err := json.Marshal(OrderMessage{OrderID: doc.OrderID, Text: doc.Text, Order: doc.Snapshot})
	if err != nil {
		return checkout.Receipt{}, fmt.Errorf("encode order message: %w", err)
	}
	result := p.publisher.Publish(ctx, &gcppubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"event_type": OrderSubmittedEvent,
			"order_id":   doc.OrderID,
		},
	})
	if result == nil {
		return checkout.Receipt{}, errors.New("publish result is nil")
	}
	serverID, err := result.Get(ctx)
	if err != nil {
		return checkout.Receipt{}, fmt.Errorf("publish order: %w", err)
	}
	return checkout.Receipt{Reference: serverID}, nil
}

// NewGCPPublisher adapts a Pub/Sub v2 publisher handle.
func NewGCPPublisher(p *gcppubsub.Publisher) Publisher {
	if p == nil {
		return nil
	}
	return &gcpPublisher{Publisher: p}
}

type gcpPublisher struct {
	*gcppubsub.Publisher
}

func (p *gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) PublishResult {
	return &gcpPublishResult{PublishResult: p.Publisher.Publish(ctx, msg)}
}

type gcpPublishResult struct {
	*gcppubsub.PublishResult
}

func (r *gcpPublishResult) Get(ctx context.Context) (string, error) {
	if r == nil || r.PublishResult == nil {
		return "", errors.New("publish result is nil")
	}
	return r.PublishResult.Get(ctx)
}
