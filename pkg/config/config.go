package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	Eventing     EventingConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	Stripe       StripeConfig
	Sendgrid     SendgridConfig
	Checkout     CheckoutConfig
	Bookings     BookingsConfig
	Cron         CronConfig
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
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"ACTIVITYHUB_APP_ENV" required:"true"`
	Port         string `envconfig:"ACTIVITYHUB_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"ACTIVITYHUB_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"ACTIVITYHUB_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"ACTIVITYHUB_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"ACTIVITYHUB_DB_DSN"`
	Driver string `envconfig:"ACTIVITYHUB_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"ACTIVITYHUB_DB_HOST"`
	LegacyPort     int    `envconfig:"ACTIVITYHUB_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"ACTIVITYHUB_DB_USER"`
	LegacyPassword string `envconfig:"ACTIVITYHUB_DB_PASSWORD"`
	LegacyName     string `envconfig:"ACTIVITYHUB_DB_NAME"`
	LegacySSLMode  string `envconfig:"ACTIVITYHUB_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"ACTIVITYHUB_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"ACTIVITYHUB_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"ACTIVITYHUB_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"ACTIVITYHUB_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	SlowQueryThreshold time.Duration `envconfig:"ACTIVITYHUB_DB_SLOW_QUERY_THRESHOLD" default:"500ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"ACTIVITYHUB_REDIS_URL" required:"true"`
	Address      string        `envconfig:"ACTIVITYHUB_REDIS_ADDR"`
	Password     string        `envconfig:"ACTIVITYHUB_REDIS_PASSWORD"`
	DB           int           `envconfig:"ACTIVITYHUB_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"ACTIVITYHUB_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"ACTIVITYHUB_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"ACTIVITYHUB_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"ACTIVITYHUB_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"ACTIVITYHUB_REDIS_WRITE_TIMEOUT" default:"5s"`
	KeyPrefix    string        `envconfig:"ACTIVITYHUB_REDIS_KEY_PREFIX" default:"ah"`
}

// JWTConfig carries what the API needs to verify customer access tokens minted by the
// account service.
type JWTConfig struct {
	Secret string `envconfig:"ACTIVITYHUB_JWT_SECRET" required:"true"`
	Issuer string `envconfig:"ACTIVITYHUB_JWT_ISSUER" required:"true"`
	// Leeway tolerates clock skew against the account service.
	Leeway time.Duration `envconfig:"ACTIVITYHUB_JWT_LEEWAY" default:"30s"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"ACTIVITYHUB_AUTO_MIGRATE" default:"false"`
}

type EventingConfig struct {
	WebhookIdempotencyTTL time.Duration `envconfig:"ACTIVITYHUB_WEBHOOK_IDEMPOTENCY_TTL" default:"720h"`
	NotificationClaimTTL  time.Duration `envconfig:"ACTIVITYHUB_NOTIFICATION_CLAIM_TTL" default:"168h"`
}

type GCPConfig struct {
	ProjectID string `envconfig:"ACTIVITYHUB_GCP_PROJECT_ID"`
}

type PubSubConfig struct {
	SettlementTopic string `envconfig:"ACTIVITYHUB_PUBSUB_SETTLEMENT_TOPIC" default:"ah-booking-settlements"`
	// OrderedDelivery keys settlement messages by booking id.
	OrderedDelivery bool `envconfig:"ACTIVITYHUB_PUBSUB_ORDERED" default:"true"`
	// CreateTopics creates missing topics at boot; meant for the local emulator.
	CreateTopics bool `envconfig:"ACTIVITYHUB_PUBSUB_CREATE_TOPICS" default:"false"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"ACTIVITYHUB_OUTBOX_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"ACTIVITYHUB_OUTBOX_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"ACTIVITYHUB_OUTBOX_MAX_ATTEMPTS" default:"10"`
	RetentionDays  int `envconfig:"ACTIVITYHUB_OUTBOX_RETENTION_DAYS" default:"30"`

	// RetryBaseDelay doubles per failed attempt up to RetryMaxDelay.
	RetryBaseDelay time.Duration `envconfig:"ACTIVITYHUB_OUTBOX_RETRY_BASE_DELAY" default:"5s"`
	RetryMaxDelay  time.Duration `envconfig:"ACTIVITYHUB_OUTBOX_RETRY_MAX_DELAY" default:"30m"`

	// DLQRetentionDays keeps dead letters longer than delivered rows so operators can replay them.
	DLQRetentionDays int `envconfig:"ACTIVITYHUB_OUTBOX_DLQ_RETENTION_DAYS" default:"90"`
}

type StripeConfig struct {
	APIKey string `envconfig:"ACTIVITYHUB_STRIPE_API_KEY"`
	Secret string `envconfig:"ACTIVITYHUB_STRIPE_SECRET"`
	Env    string `envconfig:"ACTIVITYHUB_STRIPE_ENV" default:"test"`

	MaxNetworkRetries int64 `envconfig:"ACTIVITYHUB_STRIPE_MAX_NETWORK_RETRIES" default:"2"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

type SendgridConfig struct {
	APIKey      string `envconfig:"ACTIVITYHUB_SENDGRID_API_KEY"`
	DefaultFrom string `envconfig:"ACTIVITYHUB_SENDGRID_FROM_EMAIL" default:"bookings@activityhub.app"`
	FromName    string `envconfig:"ACTIVITYHUB_SENDGRID_FROM_NAME" default:"ActivityHub"`
}

type CheckoutConfig struct {
	DefaultCurrency   string   `envconfig:"ACTIVITYHUB_CHECKOUT_DEFAULT_CURRENCY" default:"eur"`
	AllowedCurrencies []string `envconfig:"ACTIVITYHUB_CHECKOUT_ALLOWED_CURRENCIES" default:"eur,usd,gbp"`
	VisitorCookieName string   `envconfig:"ACTIVITYHUB_VISITOR_COOKIE_NAME" default:"ah_visitor"`

	IdempotencyTTL time.Duration `envconfig:"ACTIVITYHUB_CHECKOUT_IDEMPOTENCY_TTL" default:"168h"`
}

// CurrencyAllowed reports whether the lower-cased currency code is accepted for checkout.
func (c CheckoutConfig) CurrencyAllowed(code string) bool {
	code = strings.ToLower(strings.TrimSpace(code))
	for _, allowed := range c.AllowedCurrencies {
		if strings.ToLower(strings.TrimSpace(allowed)) == code {
			return true
		}
	}
	return false
}

type BookingsConfig struct {
	DetailRecencyWindow time.Duration `envconfig:"ACTIVITYHUB_BOOKING_DETAIL_RECENCY_WINDOW" default:"30m"`
}

type CronConfig struct {
	Interval           time.Duration `envconfig:"ACTIVITYHUB_CRON_INTERVAL" default:"15m"`
	BackfillMinAge     time.Duration `envconfig:"ACTIVITYHUB_CRON_BACKFILL_MIN_AGE" default:"10m"`
	LinkPurgeAfterDays int           `envconfig:"ACTIVITYHUB_CRON_LINK_PURGE_AFTER_DAYS" default:"30"`
	JobTimeout         time.Duration `envconfig:"ACTIVITYHUB_CRON_JOB_TIMEOUT" default:"5m"`
	// RunOnce runs a single cycle and exits, for platform schedulers.
	RunOnce bool `envconfig:"ACTIVITYHUB_CRON_RUN_ONCE" default:"false"`
}

// RateLimitConfig throttles anonymous write surfaces such as referral visit tracking.
type RateLimitConfig struct {
	VisitWindow       time.Duration `envconfig:"ACTIVITYHUB_RATE_LIMIT_VISIT_WINDOW" default:"1m"`
	VisitIPLimit      int           `envconfig:"ACTIVITYHUB_RATE_LIMIT_VISIT_IP" default:"60"`
	VisitSubjectLimit int           `envconfig:"ACTIVITYHUB_RATE_LIMIT_VISIT_SUBJECT" default:"20"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
