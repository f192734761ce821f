package config

const EnvPrefix = "FARMLINK"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DBDriverPostgres = "postgres"
	DBDriverSQLite   = "sqlite"
)

const (
	EnvAppEnv   = "FARMLINK_APP_ENV"
	EnvPort     = "FARMLINK_APP_PORT"
	EnvLogLevel = "FARMLINK_LOG_LEVEL"

	EnvDBDSN    = "FARMLINK_DB_DSN"
	EnvDBDriver = "FARMLINK_DB_DRIVER"
	EnvDBHost   = "FARMLINK_DB_HOST"
	EnvDBPort   = "FARMLINK_DB_PORT"
	EnvDBUser   = "FARMLINK_DB_USER"
	EnvDBPass   = "FARMLINK_DB_PASSWORD"
	EnvDBName   = "FARMLINK_DB_NAME"

	EnvRedisURL = "FARMLINK_REDIS_URL"

	EnvJWTSecret = "FARMLINK_JWT_SECRET"
	EnvJWTIssuer = "FARMLINK_JWT_ISSUER"

	EnvRazorpayKeyID         = "FARMLINK_RAZORPAY_KEY_ID"
	EnvRazorpayKeySecret     = "FARMLINK_RAZORPAY_KEY_SECRET"
	EnvRazorpayWebhookSecret = "FARMLINK_RAZORPAY_WEBHOOK_SECRET"
	EnvRazorpayTimeout       = "FARMLINK_RAZORPAY_TIMEOUT"

	EnvCORSAllowedOrigins = "FARMLINK_CORS_ALLOWED_ORIGINS"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
