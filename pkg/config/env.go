package config

const (
	EnvPrefix = "RECEIPTS"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv       = "RECEIPTS_APP_ENV"
	EnvPort         = "RECEIPTS_APP_PORT"
	EnvMetricsPort  = "RECEIPTS_METRICS_PORT"
	EnvLogLevel     = "RECEIPTS_LOG_LEVEL"
	EnvLogWarnStack = "RECEIPTS_LOG_WARN_STACK"

	EnvDBDSN         = "RECEIPTS_DB_DSN"
	EnvDBHost        = "RECEIPTS_DB_HOST"
	EnvDBPort        = "RECEIPTS_DB_PORT"
	EnvDBUser        = "RECEIPTS_DB_USER"
	EnvDBPassword    = "RECEIPTS_DB_PASSWORD"
	EnvDBName        = "RECEIPTS_DB_NAME"
	EnvDBSSLMode     = "RECEIPTS_DB_SSLMODE"
	EnvDBAutoMigrate = "RECEIPTS_DB_AUTO_MIGRATE"

	EnvRedisURL = "RECEIPTS_REDIS_URL"

	EnvGCPProjectID = "RECEIPTS_GCP_PROJECT_ID"
	EnvGCSBucket    = "RECEIPTS_GCS_BUCKET_NAME"

	EnvPubSubBizEventsSub = "RECEIPTS_PUBSUB_BIZ_EVENTS_SUBSCRIPTION"
	EnvPubSubRetryTopic   = "RECEIPTS_PUBSUB_RETRY_TOPIC"
	EnvPubSubRetrySub     = "RECEIPTS_PUBSUB_RETRY_SUBSCRIPTION"

	EnvPDFEngineURL    = "RECEIPTS_PDF_ENGINE_URL"
	EnvPDFEngineAPIKey = "RECEIPTS_PDF_ENGINE_API_KEY"
	EnvPDFTemplateID   = "RECEIPTS_PDF_TEMPLATE_ID"

	EnvTokenizerURL    = "RECEIPTS_TOKENIZER_URL"
	EnvTokenizerAPIKey = "RECEIPTS_TOKENIZER_API_KEY"

	EnvGenerationMaxRetry         = "RECEIPTS_GENERATION_MAX_RETRY"
	EnvGenerationQueueMaxAttempts = "RECEIPTS_GENERATION_QUEUE_MAX_ATTEMPTS"

	EnvHelpdeskJWTSecret = "RECEIPTS_HELPDESK_JWT_SECRET"

	EnvEventingIdempotencyTTL = "RECEIPTS_EVENTING_IDEMPOTENCY_TTL"
	EnvEventingInFlightTTL    = "RECEIPTS_EVENTING_INFLIGHT_TTL"

	EnvRecoveryInterval   = "RECEIPTS_RECOVERY_INTERVAL"
	EnvRecoveryStaleAfter = "RECEIPTS_RECOVERY_STALE_AFTER"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
