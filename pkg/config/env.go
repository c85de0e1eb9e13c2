package config

const (
	EnvPrefix = "SACRED"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	StorageDriverGCS   = "gcs"
	StorageDriverLocal = "local"
)

const (
	EnvAppEnv                 = "SACRED_APP_ENV"
	EnvPort                   = "SACRED_APP_PORT"
	EnvDBDSN                  = "SACRED_DB_DSN"
	EnvDBDriver               = "SACRED_DB_DRIVER"
	EnvDBHost                 = "SACRED_DB_HOST"
	EnvDBUser                 = "SACRED_DB_USER"
	EnvDBPassword             = "SACRED_DB_PASSWORD"
	EnvDBName                 = "SACRED_DB_NAME"
	EnvRedisURL               = "SACRED_REDIS_URL"
	EnvJWTSecret              = "SACRED_JWT_SECRET"
	EnvJWTIssuer              = "SACRED_JWT_ISSUER"
	EnvJWTExpMins             = "SACRED_JWT_EXPIRATION_MINUTES"
	EnvRefreshTokenTTLMinutes = "SACRED_REFRESH_TOKEN_TTL_MINUTES"
	EnvUseSQLite              = "SACRED_USE_SQLITE"
	EnvStorageDriver          = "SACRED_STORAGE_DRIVER"
	EnvStorageLocalDir        = "SACRED_STORAGE_LOCAL_DIR"
	EnvGCSProofBucket         = "SACRED_GCS_PROOF_BUCKET"
	EnvGCSAssetBucket         = "SACRED_GCS_ASSET_BUCKET"
	EnvOTPMaxAttempts         = "SACRED_OTP_MAX_ATTEMPTS"
	EnvOTPTTL                 = "SACRED_OTP_TTL"
	EnvStreamTicketTTL        = "SACRED_STREAM_TICKET_TTL"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
