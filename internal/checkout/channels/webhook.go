package channels

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/angelmondragon/webstore-backend/internal/checkout"
)

const (
	webhookSecretHeader      = "X-Webstore-Secret"
	webhookIdempotencyHeader = "Idempotency-Key"
)

// Webhook POSTs orders as JSON to a configured endpoint. Any 2xx is an ack.
type Webhook struct {
	httpClient *http.Client
	url        string
	secret     string
}

func NewWebhook(httpClient *http.Client, endpoint, secret string) (*Webhook, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil, errors.New("webhook url is required")
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Webhook{httpClient: httpClient, url: endpoint, secret: secret}, nil
}

func (w *Webhook) Name() string { return "webhook" }

type webhookPayload struct {
	OrderID string                 `json:"order_id"`
	Text    string                 `json:"text"`
	Order   checkout.OrderSnapshot `json:"order"`
}

func (w *Webhook) Send(ctx context.Context, doc checkout.Document) (checkout.Receipt, error) {
	body, err := json.Marshal(webhookPayload{OrderID: doc.OrderID, Text: doc.Text, Order: doc.Snapshot})
	if err != nil {
		return checkout.Receipt{}, fmt.Errorf("encode webhook payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return checkout.Receipt{}, fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(webhookIdempotencyHeader, doc.OrderID)
	if w.secret != "" {
		req.Header.Set(webhookSecretHeader, w.secret)
	}

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return checkout.Receipt{}, fmt.Errorf("webhook post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return checkout.Receipt{}, fmt.Errorf("webhook post: status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))
	return checkout.Receipt{Reference: doc.OrderID}, nil
}
