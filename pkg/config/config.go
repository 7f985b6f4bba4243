package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	Platform     PlatformConfig
	Checkout     CheckoutConfig
	Khalti       KhaltiConfig
	Stripe       StripeConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	Cron         CronConfig
	Webhooks     WebhookConfig
	RateLimit    RateLimitConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if _, err := cfg.Platform.FeeRate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string   `envconfig:"PUSTAK_APP_ENV" required:"true"`
	Port         string   `envconfig:"PUSTAK_APP_PORT" required:"true"`
	LogLevel     string   `envconfig:"PUSTAK_LOG_LEVEL" default:"info"`
	LogWarnStack bool     `envconfig:"PUSTAK_LOG_WARN_STACK" default:"false"`
	CORSOrigins  []string `envconfig:"PUSTAK_CORS_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"PUSTAK_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN string `envconfig:"PUSTAK_DB_DSN"`

	Host     string `envconfig:"PUSTAK_DB_HOST"`
	Port     int    `envconfig:"PUSTAK_DB_PORT" default:"5432"`
	User     string `envconfig:"PUSTAK_DB_USER"`
	Password string `envconfig:"PUSTAK_DB_PASSWORD"`
	Name     string `envconfig:"PUSTAK_DB_NAME"`
	SSLMode  string `envconfig:"PUSTAK_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"PUSTAK_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"PUSTAK_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"PUSTAK_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"PUSTAK_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"PUSTAK_REDIS_URL" required:"true"`
	Address      string        `envconfig:"PUSTAK_REDIS_ADDR"`
	Password     string        `envconfig:"PUSTAK_REDIS_PASSWORD"`
	DB           int           `envconfig:"PUSTAK_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"PUSTAK_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"PUSTAK_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"PUSTAK_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"PUSTAK_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"PUSTAK_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"PUSTAK_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"PUSTAK_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"PUSTAK_JWT_EXPIRATION_MINUTES" default:"60"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"PUSTAK_AUTO_MIGRATE" default:"false"`
}

// PlatformConfig carries the marketplace commercial policy.
type PlatformConfig struct {
	FeePercent           string `envconfig:"PUSTAK_PLATFORM_FEE_PERCENT" default:"0.10"`
	Currency             string `envconfig:"PUSTAK_PLATFORM_CURRENCY" default:"NPR"`
	MinimumPayoutCents   int64  `envconfig:"PUSTAK_PLATFORM_MINIMUM_PAYOUT_CENTS" default:"100000"`
	PayoutProcessingDays int    `envconfig:"PUSTAK_PLATFORM_PAYOUT_PROCESSING_DAYS" default:"7"`
}

// FeeRate parses the configured fee percentage; it must lie in [0,1).
func (p PlatformConfig) FeeRate() (decimal.Decimal, error) {
	raw := strings.TrimSpace(p.FeePercent)
	if raw == "" {
		raw = DefaultFeePercent
	}
	rate, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parsing %s: %w", EnvPlatformFeePercent, err)
	}
	if rate.IsNegative() || rate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return decimal.Zero, fmt.Errorf("%s must be within [0,1), got %s", EnvPlatformFeePercent, raw)
	}
	return rate, nil
}

type CheckoutConfig struct {
	GatewayTimeout time.Duration `envconfig:"PUSTAK_CHECKOUT_GATEWAY_TIMEOUT" default:"10s"`
	LockTTL        time.Duration `envconfig:"PUSTAK_CHECKOUT_LOCK_TTL" default:"30s"`
	WebsiteURL     string        `envconfig:"PUSTAK_CHECKOUT_WEBSITE_URL" default:"http://localhost:3000"`
	ReturnURL      string        `envconfig:"PUSTAK_CHECKOUT_RETURN_URL" default:"http://localhost:3000/payment/verify"`
	SuccessURL     string        `envconfig:"PUSTAK_CHECKOUT_SUCCESS_URL" default:"http://localhost:3000/payment/success?session_id={CHECKOUT_SESSION_ID}"`
	CancelURL      string        `envconfig:"PUSTAK_CHECKOUT_CANCEL_URL" default:"http://localhost:3000/payment/cancelled"`
}

type KhaltiConfig struct {
	SecretKey string `envconfig:"PUSTAK_KHALTI_SECRET_KEY"`
	BaseURL   string `envconfig:"PUSTAK_KHALTI_BASE_URL" default:"https://a.khalti.com/api/v2"`
}

type StripeConfig struct {
	APIKey string `envconfig:"PUSTAK_STRIPE_API_KEY"`
	Secret string `envconfig:"PUSTAK_STRIPE_SECRET"`
	Env    string `envconfig:"PUSTAK_STRIPE_ENV" default:"test"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

type GCPConfig struct {
	ProjectID string `envconfig:"PUSTAK_GCP_PROJECT_ID"`
}

type PubSubConfig struct {
	NotificationTopic string `envconfig:"PUSTAK_PUBSUB_NOTIFICATION_TOPIC" default:"pb-notification-events"`
}

type OutboxConfig struct {
	BatchSize      int           `envconfig:"PUSTAK_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int           `envconfig:"PUSTAK_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int           `envconfig:"PUSTAK_OUTBOX_MAX_ATTEMPTS" default:"10"`
	DeliveryTTL    time.Duration `envconfig:"PUSTAK_OUTBOX_DELIVERY_TTL" default:"72h"`
}

type CronConfig struct {
	Interval time.Duration `envconfig:"PUSTAK_CRON_INTERVAL" default:"24h"`
	LockTTL  time.Duration `envconfig:"PUSTAK_CRON_LOCK_TTL" default:"1h"`
	// OutboxRetention bounds how long published outbox rows are kept.
	OutboxRetention time.Duration `envconfig:"PUSTAK_CRON_OUTBOX_RETENTION" default:"720h"`
}

type RateLimitConfig struct {
	PaymentWindow    time.Duration `envconfig:"PUSTAK_RATE_LIMIT_PAYMENT_WINDOW" default:"1m"`
	PaymentIPLimit   int           `envconfig:"PUSTAK_RATE_LIMIT_PAYMENT_IP" default:"30"`
	PaymentUserLimit int           `envconfig:"PUSTAK_RATE_LIMIT_PAYMENT_USER" default:"10"`
}

type WebhookConfig struct {
	IdempotencyTTL time.Duration `envconfig:"PUSTAK_WEBHOOK_IDEMPOTENCY_TTL" default:"720h"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	values := map[string]string{
		EnvDBHost: db.Host,
		EnvDBUser: db.User,
		EnvDBName: db.Name,
	}
	for _, env := range dsnPartEnvVars {
		if values[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.User)
	if db.Password != "" {
		userInfo = url.UserPassword(db.User, db.Password)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.Host, db.Port),
		Path:   db.Name,
	}

	if db.SSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.SSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
