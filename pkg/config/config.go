package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App        AppConfig
	DB         DBConfig
	Redis      RedisConfig
	Eventing   EventingConfig
	GCP        GCPConfig
	GCS        GCSConfig
	PubSub     PubSubConfig
	PDFEngine  PDFEngineConfig
	Tokenizer  TokenizerConfig
	Generation GenerationConfig
	Recovery   RecoveryConfig
	Auth       AuthConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Generation.validate(); err != nil {
		return nil, err
	}
	if err := cfg.Eventing.validate(); err != nil {
		return nil, err
	}
	if err := cfg.Recovery.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"RECEIPTS_APP_ENV" required:"true"`
	Port         string `envconfig:"RECEIPTS_APP_PORT" default:"8080"`
	MetricsPort  string `envconfig:"RECEIPTS_METRICS_PORT" default:"9090"`
	LogLevel     string `envconfig:"RECEIPTS_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"RECEIPTS_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN         string `envconfig:"RECEIPTS_DB_DSN"`
	AutoMigrate bool   `envconfig:"RECEIPTS_DB_AUTO_MIGRATE" default:"false"`

	LegacyHost     string `envconfig:"RECEIPTS_DB_HOST"`
	LegacyPort     int    `envconfig:"RECEIPTS_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"RECEIPTS_DB_USER"`
	LegacyPassword string `envconfig:"RECEIPTS_DB_PASSWORD"`
	LegacyName     string `envconfig:"RECEIPTS_DB_NAME"`
	LegacySSLMode  string `envconfig:"RECEIPTS_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"RECEIPTS_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"RECEIPTS_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"RECEIPTS_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"RECEIPTS_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"RECEIPTS_REDIS_URL" required:"true"`
	Address      string        `envconfig:"RECEIPTS_REDIS_ADDR"`
	Password     string        `envconfig:"RECEIPTS_REDIS_PASSWORD"`
	DB           int           `envconfig:"RECEIPTS_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"RECEIPTS_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"RECEIPTS_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"RECEIPTS_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"RECEIPTS_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"RECEIPTS_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type EventingConfig struct {
	IdempotencyTTL time.Duration `envconfig:"RECEIPTS_EVENTING_IDEMPOTENCY_TTL" default:"24h"`
	InFlightTTL    time.Duration `envconfig:"RECEIPTS_EVENTING_INFLIGHT_TTL" default:"2m"`
	MaxOutstanding int           `envconfig:"RECEIPTS_EVENTING_MAX_OUTSTANDING" default:"100"`
	NumGoroutines  int           `envconfig:"RECEIPTS_EVENTING_NUM_GOROUTINES" default:"4"`
}

func (e EventingConfig) validate() error {
	if e.InFlightTTL <= 0 {
		return fmt.Errorf("%s must be positive", EnvEventingInFlightTTL)
	}
	if e.IdempotencyTTL < e.InFlightTTL {
		return fmt.Errorf("%s must not be shorter than %s", EnvEventingIdempotencyTTL, EnvEventingInFlightTTL)
	}
	return nil
}

type GCPConfig struct {
	ProjectID              string `envconfig:"RECEIPTS_GCP_PROJECT_ID" required:"true"`
	CredentialsJSON        string `envconfig:"RECEIPTS_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"RECEIPTS_GOOGLE_APPLICATION_CREDENTIALS"`
}

type GCSConfig struct {
	BucketName    string        `envconfig:"RECEIPTS_GCS_BUCKET_NAME" required:"true"`
	Endpoint      string        `envconfig:"RECEIPTS_GCS_ENDPOINT" default:"https://storage.googleapis.com"`
	UploadTimeout time.Duration `envconfig:"RECEIPTS_GCS_UPLOAD_TIMEOUT" default:"30s"`
}

type PubSubConfig struct {
	BizEventsSubscription string `envconfig:"RECEIPTS_PUBSUB_BIZ_EVENTS_SUBSCRIPTION" required:"true"`
	RetryTopic            string `envconfig:"RECEIPTS_PUBSUB_RETRY_TOPIC" required:"true"`
	RetrySubscription     string `envconfig:"RECEIPTS_PUBSUB_RETRY_SUBSCRIPTION" required:"true"`
}

type PDFEngineConfig struct {
	URL            string        `envconfig:"RECEIPTS_PDF_ENGINE_URL" required:"true"`
	APIKey         string        `envconfig:"RECEIPTS_PDF_ENGINE_API_KEY"`
	TemplateID     string        `envconfig:"RECEIPTS_PDF_TEMPLATE_ID" default:"pagopa-ricevuta"`
	ApplySignature bool          `envconfig:"RECEIPTS_PDF_APPLY_SIGNATURE" default:"false"`
	Timeout        time.Duration `envconfig:"RECEIPTS_PDF_ENGINE_TIMEOUT" default:"60s"`
}

type TokenizerConfig struct {
	URL     string        `envconfig:"RECEIPTS_TOKENIZER_URL"`
	APIKey  string        `envconfig:"RECEIPTS_TOKENIZER_API_KEY"`
	Timeout time.Duration `envconfig:"RECEIPTS_TOKENIZER_TIMEOUT" default:"10s"`
}

// GenerationConfig bounds the orchestrator's retry behaviour.
type GenerationConfig struct {
	MaxRetry           int    `envconfig:"RECEIPTS_GENERATION_MAX_RETRY" default:"5"`
	QueueMaxAttempts   int    `envconfig:"RECEIPTS_GENERATION_QUEUE_MAX_ATTEMPTS" default:"3"`
	ConflictMaxRetries int    `envconfig:"RECEIPTS_GENERATION_CONFLICT_MAX_RETRIES" default:"5"`
	BlobPrefix         string `envconfig:"RECEIPTS_GENERATION_BLOB_PREFIX" default:"pagopa-ricevuta"`
}

func (g GenerationConfig) validate() error {
	if g.MaxRetry <= 0 {
		return fmt.Errorf("%s must be positive", EnvGenerationMaxRetry)
	}
	if g.QueueMaxAttempts <= 0 {
		return fmt.Errorf("%s must be positive", EnvGenerationQueueMaxAttempts)
	}
	return nil
}

// AuthConfig secures the helpdesk API. An empty secret disables the check,
// which cmd/api only accepts in dev.
type AuthConfig struct {
	JWTSecret string        `envconfig:"RECEIPTS_HELPDESK_JWT_SECRET"`
	JWTIssuer string        `envconfig:"RECEIPTS_HELPDESK_JWT_ISSUER" default:"receipts-helpdesk"`
	TokenTTL  time.Duration `envconfig:"RECEIPTS_HELPDESK_TOKEN_TTL" default:"8h"`
}

// Enabled reports whether bearer tokens are required.
func (a AuthConfig) Enabled() bool {
	return a.JWTSecret != ""
}

// RecoveryConfig drives the scheduled sweeps of the cron worker.
type RecoveryConfig struct {
	Interval           time.Duration `envconfig:"RECEIPTS_RECOVERY_INTERVAL" default:"15m"`
	StaleAfter         time.Duration `envconfig:"RECEIPTS_RECOVERY_STALE_AFTER" default:"1h"`
	BatchSize          int           `envconfig:"RECEIPTS_RECOVERY_BATCH_SIZE" default:"100"`
	ErrorRetentionDays int           `envconfig:"RECEIPTS_RECOVERY_ERROR_RETENTION_DAYS" default:"30"`
}

func (r RecoveryConfig) validate() error {
	if r.Interval <= 0 {
		return fmt.Errorf("%s must be positive", EnvRecoveryInterval)
	}
	if r.StaleAfter < r.Interval {
		return fmt.Errorf("%s must not be shorter than %s", EnvRecoveryStaleAfter, EnvRecoveryInterval)
	}
	return nil
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
