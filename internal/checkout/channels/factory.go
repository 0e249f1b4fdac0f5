package channels

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/angelmondragon/webstore-backend/internal/checkout"
	"github.com/angelmondragon/webstore-backend/pkg/config"
	"github.com/angelmondragon/webstore-backend/pkg/logger"
)

// Deps carries the shared clients a channel may need.
type Deps struct {
	HTTPClient      *http.Client
	OrdersPublisher Publisher
	Logger          *logger.Logger
}

// FromConfig builds the channel selected by WEBSTORE_CHECKOUT_CHANNEL.
func FromConfig(cfg *config.Config, deps Deps) (checkout.Channel, error) {
	return Build(cfg.Checkout.Channel, cfg, deps)
}

// Build constructs the named channel from its credentials in cfg.
func Build(name string, cfg *config.Config, deps Deps) (checkout.Channel, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case config.ChannelLog:
		return NewLog(deps.Logger), nil
	case config.ChannelTelegram:
		ch, err := NewTelegram(deps.HTTPClient, cfg.Telegram.BaseURL, cfg.Telegram.BotToken, cfg.Telegram.ChatID)
		if err != nil {
			return nil, err
		}
		return ch, nil
	case config.ChannelWebhook:
		ch, err := NewWebhook(deps.HTTPClient, cfg.Webhook.URL, cfg.Webhook.Secret)
		if err != nil {
			return nil, err
		}
		return ch, nil
	case config.ChannelPubSub:
		ch, err := NewPubSub(deps.OrdersPublisher)
		if err != nil {
			return nil, err
		}
		return ch, nil
	default:
		return nil, fmt.Errorf("unsupported checkout channel %q", name)
	}
}
