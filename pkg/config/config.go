package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App           AppConfig
	Service       ServiceConfig
	DB            DBConfig
	Redis         RedisConfig
	JWT           JWTConfig
	Password      PasswordConfig
	AuthRateLimit AuthRateLimitConfig
	FeatureFlags  FeatureFlagsConfig
	Eventing      EventingConfig
	GCP           GCPConfig
	GCS           GCSConfig
	Storage       StorageConfig
	Proof         ProofConfig
	OTP           OTPConfig
	Stream        StreamConfig
	Notify        NotifyConfig
	Moderation    ModerationConfig
	PubSub        PubSubConfig
	BigQuery      BigQueryConfig
	Outbox        OutboxConfig
	CORS          CORSConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(cfg.FeatureFlags.UseSQLite); err != nil {
		return nil, err
	}
	if err := cfg.Storage.validate(cfg.GCS); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"SACRED_APP_ENV" required:"true"`
	Port         string `envconfig:"SACRED_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"SACRED_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"SACRED_LOG_WARN_STACK" default:"false"`
	PublicURL    string `envconfig:"SACRED_PUBLIC_URL" default:"http://localhost:8080"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev) || strings.EqualFold(a.Env, "development")
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd) || strings.EqualFold(a.Env, "production")
}

type ServiceConfig struct {
	Kind string `envconfig:"SACRED_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"SACRED_DB_DSN"`
	Driver string `envconfig:"SACRED_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"SACRED_DB_HOST"`
	LegacyPort     int    `envconfig:"SACRED_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"SACRED_DB_USER"`
	LegacyPassword string `envconfig:"SACRED_DB_PASSWORD"`
	LegacyName     string `envconfig:"SACRED_DB_NAME"`
	LegacySSLMode  string `envconfig:"SACRED_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"SACRED_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"SACRED_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"SACRED_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"SACRED_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	SlowQuery       time.Duration `envconfig:"SACRED_DB_SLOW_QUERY" default:"500ms"`
}

// IsSQLite reports whether the configured driver targets sqlite.
func (db DBConfig) IsSQLite() bool {
	return strings.EqualFold(db.Driver, DriverSQLite)
}

type RedisConfig struct {
	URL          string        `envconfig:"SACRED_REDIS_URL" required:"true"`
	Address      string        `envconfig:"SACRED_REDIS_ADDR"`
	Password     string        `envconfig:"SACRED_REDIS_PASSWORD"`
	DB           int           `envconfig:"SACRED_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"SACRED_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"SACRED_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"SACRED_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"SACRED_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"SACRED_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret                 string `envconfig:"SACRED_JWT_SECRET" required:"true"`
	Issuer                 string `envconfig:"SACRED_JWT_ISSUER" required:"true"`
	ExpirationMinutes      int    `envconfig:"SACRED_JWT_EXPIRATION_MINUTES" default:"60"`
	RefreshTokenTTLMinutes int    `envconfig:"SACRED_REFRESH_TOKEN_TTL_MINUTES" default:"43200"`
}

// RefreshTokenTTL returns the refresh token TTL configured in minutes.
func (j JWTConfig) RefreshTokenTTL() time.Duration {
	if j.RefreshTokenTTLMinutes <= 0 {
		return 0
	}
	return time.Duration(j.RefreshTokenTTLMinutes) * time.Minute
}

type PasswordConfig struct {
	ArgonMemoryKB    int `envconfig:"SACRED_ARGON_MEMORY_KB" default:"65536"`
	ArgonTime        int `envconfig:"SACRED_ARGON_TIME" default:"3"`
	ArgonParallelism int `envconfig:"SACRED_ARGON_PARALLELISM" default:"2"`
	ArgonSaltLen     int `envconfig:"SACRED_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen      int `envconfig:"SACRED_ARGON_KEY_LEN" default:"32"`
}

type AuthRateLimitConfig struct {
	LoginWindow     time.Duration `envconfig:"SACRED_AUTH_RATE_LIMIT_LOGIN_WINDOW" default:"1m"`
	LoginEmailLimit int           `envconfig:"SACRED_AUTH_RATE_LIMIT_LOGIN_EMAIL_LIMIT" default:"5"`
	LoginIPLimit    int           `envconfig:"SACRED_AUTH_RATE_LIMIT_LOGIN_IP_LIMIT" default:"20"`
	OTPWindow       time.Duration `envconfig:"SACRED_AUTH_RATE_LIMIT_OTP_WINDOW" default:"10m"`
	OTPEmailLimit   int           `envconfig:"SACRED_AUTH_RATE_LIMIT_OTP_EMAIL_LIMIT" default:"5"`
	OTPIPLimit      int           `envconfig:"SACRED_AUTH_RATE_LIMIT_OTP_IP_LIMIT" default:"30"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"SACRED_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"SACRED_AUTO_MIGRATE" default:"false"`
}

type EventingConfig struct {
	OutboxIdempotencyTTL time.Duration `envconfig:"SACRED_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"SACRED_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"SACRED_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"SACRED_GOOGLE_APPLICATION_CREDENTIALS"`
}

type GCSConfig struct {
	ProofBucket string `envconfig:"SACRED_GCS_PROOF_BUCKET"`
	AssetBucket string `envconfig:"SACRED_GCS_ASSET_BUCKET"`
}

// StorageConfig selects the object store backing proofs and protected assets.
type StorageConfig struct {
	Driver   string `envconfig:"SACRED_STORAGE_DRIVER" default:"gcs"`
	LocalDir string `envconfig:"SACRED_STORAGE_LOCAL_DIR" default:"./var/objects"`
}

func (s StorageConfig) validate(gcs GCSConfig) error {
	switch strings.ToLower(s.Driver) {
	case StorageDriverLocal:
		if strings.TrimSpace(s.LocalDir) == "" {
			return fmt.Errorf("%s is required when storage driver is local", EnvStorageLocalDir)
		}
		return nil
	case StorageDriverGCS:
		if gcs.ProofBucket == "" || gcs.AssetBucket == "" {
			return fmt.Errorf("%s and %s are required when storage driver is gcs", EnvGCSProofBucket, EnvGCSAssetBucket)
		}
		return nil
	default:
		return fmt.Errorf("unsupported storage driver %q", s.Driver)
	}
}

type ProofConfig struct {
	MaxUploadMB int `envconfig:"SACRED_PROOF_MAX_UPLOAD_MB" default:"10"`
}

// MaxUploadBytes converts the configured upload cap to bytes.
func (p ProofConfig) MaxUploadBytes() int64 {
	if p.MaxUploadMB <= 0 {
		return 10 << 20
	}
	return int64(p.MaxUploadMB) << 20
}

type OTPConfig struct {
	Length      int           `envconfig:"SACRED_OTP_LENGTH" default:"6"`
	TTL         time.Duration `envconfig:"SACRED_OTP_TTL" default:"10m"`
	MaxAttempts int           `envconfig:"SACRED_OTP_MAX_ATTEMPTS" default:"3"`
	LockTimeout time.Duration `envconfig:"SACRED_OTP_LOCK_TIMEOUT" default:"5s"`
}

type StreamConfig struct {
	TicketTTL time.Duration `envconfig:"SACRED_STREAM_TICKET_TTL" default:"60s"`
	Secret    string        `envconfig:"SACRED_STREAM_TICKET_SECRET"`
}

type NotifyConfig struct {
	WhatsAppNumber string        `envconfig:"SACRED_NOTIFY_WHATSAPP_NUMBER" default:"919067690333"`
	AdminEmail     string        `envconfig:"SACRED_NOTIFY_ADMIN_EMAIL"`
	SMTPHost       string        `envconfig:"SACRED_SMTP_HOST"`
	SMTPPort       int           `envconfig:"SACRED_SMTP_PORT" default:"587"`
	SMTPUsername   string        `envconfig:"SACRED_SMTP_USERNAME"`
	SMTPPassword   string        `envconfig:"SACRED_SMTP_PASSWORD"`
	SMTPFrom       string        `envconfig:"SACRED_SMTP_FROM"`
	SMTPUseTLS     bool          `envconfig:"SACRED_SMTP_USE_TLS" default:"false"`
	SMTPTimeout    time.Duration `envconfig:"SACRED_SMTP_TIMEOUT" default:"10s"`
	SMTPRetries    int           `envconfig:"SACRED_SMTP_RETRIES" default:"3"`
}

// SMTPEnabled reports whether enough SMTP settings are present to send mail.
func (n NotifyConfig) SMTPEnabled() bool {
	return n.SMTPHost != "" && n.SMTPFrom != ""
}

type ModerationConfig struct {
	ReminderAfter         time.Duration `envconfig:"SACRED_MODERATION_REMINDER_AFTER" default:"24h"`
	ReminderBatch         int           `envconfig:"SACRED_MODERATION_REMINDER_BATCH" default:"100"`
	OTPRetention          time.Duration `envconfig:"SACRED_OTP_RETENTION" default:"168h"`
	OutboxRetention       time.Duration `envconfig:"SACRED_OUTBOX_RETENTION" default:"720h"`
	NotificationRetention time.Duration `envconfig:"SACRED_NOTIFICATION_RETENTION" default:"2160h"`
	CronInterval          time.Duration `envconfig:"SACRED_CRON_INTERVAL" default:"15m"`
	CronLockTTL           time.Duration `envconfig:"SACRED_CRON_LOCK_TTL" default:"10m"`
	QueueDefaultSize      int           `envconfig:"SACRED_MODERATION_QUEUE_SIZE" default:"50"`
}

type PubSubConfig struct {
	PurchaseEventsTopic       string `envconfig:"SACRED_PUBSUB_PURCHASE_EVENTS_TOPIC" default:"sn-purchase-events"`
	NotificationSubscription  string `envconfig:"SACRED_PUBSUB_NOTIFICATION_SUBSCRIPTION" default:"sn-purchase-notifications"`
	AuditSubscription         string `envconfig:"SACRED_PUBSUB_AUDIT_SUBSCRIPTION" default:"sn-purchase-audit"`
	MaxOutstandingMessages    int    `envconfig:"SACRED_PUBSUB_MAX_OUTSTANDING" default:"10"`
	EnsureSubscriptionsOnBoot bool   `envconfig:"SACRED_PUBSUB_ENSURE_SUBSCRIPTIONS" default:"true"`
}

type BigQueryConfig struct {
	Dataset        string `envconfig:"SACRED_BIGQUERY_DATASET" default:"sacred_numerology"`
	DecisionsTable string `envconfig:"SACRED_BIGQUERY_DECISIONS_TABLE" default:"purchase_decisions"`
	CreateTables   bool   `envconfig:"SACRED_BIGQUERY_CREATE_TABLES" default:"false"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"SACRED_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"SACRED_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"SACRED_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

type CORSConfig struct {
	AllowedOrigins []string `envconfig:"SACRED_CORS_ALLOWED_ORIGINS" default:"http://localhost:5173"`
}

func (db *DBConfig) ensureDSN(useSQLite bool) error {
	if useSQLite && db.Driver != DriverSQLite {
		db.Driver = DriverSQLite
	}
	if db.DSN != "" {
		return nil
	}
	if db.IsSQLite() {
		db.DSN = "file:sacred.db?cache=shared"
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
