package config

const EnvPrefix = "PUSTAK"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DefaultFeePercent = "0.10"
)

const (
	EnvAppEnv   = "PUSTAK_APP_ENV"
	EnvPort     = "PUSTAK_APP_PORT"
	EnvDBDSN    = "PUSTAK_DB_DSN"
	EnvDBHost   = "PUSTAK_DB_HOST"
	EnvDBUser   = "PUSTAK_DB_USER"
	EnvDBName   = "PUSTAK_DB_NAME"
	EnvRedisURL = "PUSTAK_REDIS_URL"

	EnvJWTSecret = "PUSTAK_JWT_SECRET"
	EnvJWTIssuer = "PUSTAK_JWT_ISSUER"

	EnvPlatformFeePercent     = "PUSTAK_PLATFORM_FEE_PERCENT"
	EnvPlatformMinimumPayout  = "PUSTAK_PLATFORM_MINIMUM_PAYOUT_CENTS"
	EnvCheckoutGatewayTimeout = "PUSTAK_CHECKOUT_GATEWAY_TIMEOUT"
)

var dsnPartEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
