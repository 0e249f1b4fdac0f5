package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

type Config struct {
	App      AppConfig
	DB       DBConfig
	Redis    RedisConfig
	Device   DeviceConfig
	Cart     CartConfig
	Coupons  CouponConfig
	Catalog  CatalogConfig
	Checkout CheckoutConfig
	Telegram TelegramConfig
	Webhook  WebhookConfig
	GCP      GCPConfig
	PubSub   PubSubConfig
	Relay    RelayConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string   `envconfig:"WEBSTORE_APP_ENV" required:"true"`
	Port         string   `envconfig:"WEBSTORE_APP_PORT" default:"8080"`
	LogLevel     string   `envconfig:"WEBSTORE_LOG_LEVEL" default:"info"`
	LogWarnStack bool     `envconfig:"WEBSTORE_LOG_WARN_STACK" default:"false"`
	AutoMigrate  bool     `envconfig:"WEBSTORE_AUTO_MIGRATE" default:"false"`
	CORSOrigins  []string `envconfig:"WEBSTORE_CORS_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"WEBSTORE_DB_DSN"`
	Driver string `envconfig:"WEBSTORE_DB_DRIVER" default:"postgres"`

	MaxOpenConns    int           `envconfig:"WEBSTORE_DB_MAX_OPEN_CONNS" default:"10"`
	MaxIdleConns    int           `envconfig:"WEBSTORE_DB_MAX_IDLE_CONNS" default:"5"`
	ConnMaxLifetime time.Duration `envconfig:"WEBSTORE_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"WEBSTORE_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"WEBSTORE_REDIS_URL"`
	Address      string        `envconfig:"WEBSTORE_REDIS_ADDR"`
	Password     string        `envconfig:"WEBSTORE_REDIS_PASSWORD"`
	DB           int           `envconfig:"WEBSTORE_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"WEBSTORE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"WEBSTORE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"WEBSTORE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"WEBSTORE_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"WEBSTORE_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// Enabled reports whether any Redis endpoint is configured.
func (r RedisConfig) Enabled() bool {
	return strings.TrimSpace(r.URL) != "" || strings.TrimSpace(r.Address) != ""
}

// DeviceConfig signs the anonymous device tokens that scope a cart slot.
type DeviceConfig struct {
	Secret   string        `envconfig:"WEBSTORE_DEVICE_SECRET" required:"true"`
	Issuer   string        `envconfig:"WEBSTORE_DEVICE_ISSUER" default:"webstore"`
	TokenTTL time.Duration `envconfig:"WEBSTORE_DEVICE_TOKEN_TTL" default:"8760h"`
}

type CartConfig struct {
	Store                 string          `envconfig:"WEBSTORE_CART_STORE" default:"memory"`
	SlotName              string          `envconfig:"WEBSTORE_CART_SLOT" default:"webstore_cart"`
	SlotTTL               time.Duration   `envconfig:"WEBSTORE_CART_SLOT_TTL" default:"0s"`
	DefaultStockLimit     int             `envconfig:"WEBSTORE_CART_DEFAULT_STOCK" default:"10"`
	FreeShippingThreshold decimal.Decimal `envconfig:"WEBSTORE_FREE_SHIPPING_THRESHOLD" default:"50.00"`
	ShippingFee           decimal.Decimal `envconfig:"WEBSTORE_SHIPPING_FEE" default:"5.99"`
	CrossDeviceSignal     bool            `envconfig:"WEBSTORE_CART_REDIS_SIGNAL" default:"true"`
	SessionIdle           time.Duration   `envconfig:"WEBSTORE_CART_SESSION_IDLE" default:"30m"`
	SessionSweep          time.Duration   `envconfig:"WEBSTORE_CART_SESSION_SWEEP" default:"5m"`
	EventsHeartbeat       time.Duration   `envconfig:"WEBSTORE_CART_EVENTS_HEARTBEAT" default:"25s"`
}

// CouponConfig maps coupon codes to a percentage, e.g. "WEBSTORE10:10".
type CouponConfig struct {
	Codes map[string]string `envconfig:"WEBSTORE_COUPON_CODES" default:"WEBSTORE10:10"`
}

type CatalogConfig struct {
	BaseURL string        `envconfig:"WEBSTORE_CATALOG_BASE_URL" default:"https://fakestoreapi.com"`
	Timeout time.Duration `envconfig:"WEBSTORE_CATALOG_TIMEOUT" default:"10s"`
}

type CheckoutConfig struct {
	Channel      string        `envconfig:"WEBSTORE_CHECKOUT_CHANNEL" default:"log"`
	Timeout      time.Duration `envconfig:"WEBSTORE_CHECKOUT_TIMEOUT" default:"10s"`
	StoreName    string        `envconfig:"WEBSTORE_CHECKOUT_STORE_NAME" default:"WEBSTORE"`
	Currency     string        `envconfig:"WEBSTORE_CHECKOUT_CURRENCY" default:"USD"`
	ReplayWindow time.Duration `envconfig:"WEBSTORE_CHECKOUT_REPLAY_WINDOW" default:"24h"`
	RateLimit    int           `envconfig:"WEBSTORE_CHECKOUT_RATE_LIMIT" default:"5"`
	RateWindow   time.Duration `envconfig:"WEBSTORE_CHECKOUT_RATE_WINDOW" default:"1m"`
}

// TelegramConfig holds the bot credentials. They stay server-side and are never rendered to clients.
type TelegramConfig struct {
	BotToken string `envconfig:"WEBSTORE_TELEGRAM_BOT_TOKEN"`
	ChatID   string `envconfig:"WEBSTORE_TELEGRAM_CHAT_ID"`
	BaseURL  string `envconfig:"WEBSTORE_TELEGRAM_BASE_URL" default:"https://api.telegram.org"`
}

type WebhookConfig struct {
	URL    string `envconfig:"WEBSTORE_WEBHOOK_URL"`
	Secret string `envconfig:"WEBSTORE_WEBHOOK_SECRET"`
}

type GCPConfig struct {
	ProjectID string `envconfig:"WEBSTORE_GCP_PROJECT_ID"`
}

type PubSubConfig struct {
	OrdersTopic        string `envconfig:"WEBSTORE_PUBSUB_ORDERS_TOPIC" default:"webstore-orders"`
	OrdersSubscription string `envconfig:"WEBSTORE_PUBSUB_ORDERS_SUBSCRIPTION" default:"webstore-orders-relay"`
}

// RelayConfig drives cmd/order-relay, which forwards published orders to a
// human-facing channel.
type RelayConfig struct {
	Channel     string        `envconfig:"WEBSTORE_RELAY_CHANNEL" default:"telegram"`
	DedupWindow time.Duration `envconfig:"WEBSTORE_RELAY_DEDUP_WINDOW" default:"72h"`
}

func (c *Config) validate() error {
	switch strings.ToLower(strings.TrimSpace(c.Cart.Store)) {
	case CartStoreMemory:
	case CartStoreRedis:
		if !c.Redis.Enabled() {
			return fmt.Errorf("%s=%s requires %s or %s", EnvCartStore, CartStoreRedis, EnvRedisURL, EnvRedisAddr)
		}
	case CartStoreSQL:
		if strings.TrimSpace(c.DB.DSN) == "" {
			return fmt.Errorf("%s=%s requires %s", EnvCartStore, CartStoreSQL, EnvDBDSN)
		}
	default:
		return fmt.Errorf("unsupported %s %q", EnvCartStore, c.Cart.Store)
	}

	switch strings.ToLower(strings.TrimSpace(c.Checkout.Channel)) {
	case ChannelLog:
	case ChannelTelegram:
		if c.Telegram.BotToken == "" || c.Telegram.ChatID == "" {
			return fmt.Errorf("telegram channel requires %s and %s", EnvTelegramBotToken, EnvTelegramChatID)
		}
	case ChannelWebhook:
		if strings.TrimSpace(c.Webhook.URL) == "" {
			return fmt.Errorf("webhook channel requires %s", EnvWebhookURL)
		}
	case ChannelPubSub:
		if strings.TrimSpace(c.GCP.ProjectID) == "" {
			return fmt.Errorf("pubsub channel requires %s", EnvGCPProjectID)
		}
	default:
		return fmt.Errorf("unsupported %s %q", EnvCheckoutChannel, c.Checkout.Channel)
	}

	if c.Cart.DefaultStockLimit < 1 {
		return fmt.Errorf("%s must be at least 1", EnvCartDefaultStock)
	}
	if c.Cart.ShippingFee.IsNegative() || c.Cart.FreeShippingThreshold.IsNegative() {
		return fmt.Errorf("shipping fee and threshold must be non-negative")
	}
	return nil
}
