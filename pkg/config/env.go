package config

// EnvPrefix namespaces every variable read by Load.
const EnvPrefix = "STOREFRONT"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	StorageDriverLocal = "local"
	StorageDriverS3    = "s3"
)

const (
	EnvAppEnv                 = "STOREFRONT_APP_ENV"
	EnvPort                   = "STOREFRONT_APP_PORT"
	EnvLogLevel               = "STOREFRONT_LOG_LEVEL"
	EnvDBDSN                  = "STOREFRONT_DB_DSN"
	EnvDBHost                 = "STOREFRONT_DB_HOST"
	EnvDBUser                 = "STOREFRONT_DB_USER"
	EnvDBName                 = "STOREFRONT_DB_NAME"
	EnvRedisURL               = "STOREFRONT_REDIS_URL"
	EnvJWTSecret              = "STOREFRONT_JWT_SECRET"
	EnvJWTIssuer              = "STOREFRONT_JWT_ISSUER"
	EnvJWTExpMins             = "STOREFRONT_JWT_EXPIRATION_MINUTES"
	EnvRefreshTokenTTLMinutes = "STOREFRONT_REFRESH_TOKEN_TTL_MINUTES"
	EnvRazorpayKeyID          = "STOREFRONT_RAZORPAY_KEY_ID"
	EnvRazorpayKeySecret      = "STOREFRONT_RAZORPAY_KEY_SECRET"
	EnvStorageDriver          = "STOREFRONT_STORAGE_DRIVER"
	EnvS3Bucket               = "STOREFRONT_S3_BUCKET"
	EnvKafkaBrokers           = "STOREFRONT_KAFKA_BROKERS"
	EnvOTPTTL                 = "STOREFRONT_OTP_TTL"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
