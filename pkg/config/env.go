package config

const (
	EnvPrefix = "ACTIVITYHUB"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv    = "ACTIVITYHUB_APP_ENV"
	EnvPort      = "ACTIVITYHUB_APP_PORT"
	EnvDBDSN     = "ACTIVITYHUB_DB_DSN"
	EnvDBHost    = "ACTIVITYHUB_DB_HOST"
	EnvDBUser    = "ACTIVITYHUB_DB_USER"
	EnvDBName    = "ACTIVITYHUB_DB_NAME"
	EnvRedisURL  = "ACTIVITYHUB_REDIS_URL"
	EnvJWTSecret = "ACTIVITYHUB_JWT_SECRET"
	EnvJWTIssuer = "ACTIVITYHUB_JWT_ISSUER"

	EnvCheckoutCurrencies = "ACTIVITYHUB_CHECKOUT_ALLOWED_CURRENCIES"
	EnvDetailWindow       = "ACTIVITYHUB_BOOKING_DETAIL_RECENCY_WINDOW"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
