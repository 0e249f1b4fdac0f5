package config

const EnvPrefix = "WEBSTORE"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	CartStoreMemory = "memory"
	CartStoreRedis  = "redis"
	CartStoreSQL    = "sql"
)

const (
	ChannelLog      = "log"
	ChannelTelegram = "telegram"
	ChannelWebhook  = "webhook"
	ChannelPubSub   = "pubsub"
)

const (
	EnvAppEnv           = "WEBSTORE_APP_ENV"
	EnvPort             = "WEBSTORE_APP_PORT"
	EnvDBDSN            = "WEBSTORE_DB_DSN"
	EnvDBDriver         = "WEBSTORE_DB_DRIVER"
	EnvRedisURL         = "WEBSTORE_REDIS_URL"
	EnvRedisAddr        = "WEBSTORE_REDIS_ADDR"
	EnvDeviceSecret     = "WEBSTORE_DEVICE_SECRET"
	EnvCartStore        = "WEBSTORE_CART_STORE"
	EnvCartDefaultStock = "WEBSTORE_CART_DEFAULT_STOCK"
	EnvShippingFee      = "WEBSTORE_SHIPPING_FEE"
	EnvCouponCodes      = "WEBSTORE_COUPON_CODES"
	EnvCheckoutChannel  = "WEBSTORE_CHECKOUT_CHANNEL"
	EnvTelegramBotToken = "WEBSTORE_TELEGRAM_BOT_TOKEN"
	EnvTelegramChatID   = "WEBSTORE_TELEGRAM_CHAT_ID"
	EnvWebhookURL       = "WEBSTORE_WEBHOOK_URL"
	EnvGCPProjectID     = "WEBSTORE_GCP_PROJECT_ID"
)
