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
	RateLimit    RateLimitConfig
	FeatureFlags FeatureFlagsConfig
	Eventing     EventingConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	BigQuery     BigQueryConfig
	Storage      StorageConfig
	Paddle       PaddleConfig
	Viva         VivaConfig
	Stripe       StripeConfig
	SendPulse    SendPulseConfig
	Push         PushConfig
	Warmup       WarmupConfig
	Extension    ExtensionConfig
	Agent        AgentConfig
	PDF          PDFConfig
	Security     SecurityConfig
	Outbox       OutboxConfig
	Cron         CronConfig
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
	Env          string `envconfig:"SIMCHECK_APP_ENV" required:"true"`
	Port         string `envconfig:"SIMCHECK_APP_PORT" required:"true"`
	PublicURL    string `envconfig:"SIMCHECK_APP_PUBLIC_URL" default:"http://localhost:3000"`
	LogLevel     string `envconfig:"SIMCHECK_LOG_LEVEL" default:"info"`
	LogFormat    string `envconfig:"SIMCHECK_LOG_FORMAT" default:"json"`
	LogWarnStack bool   `envconfig:"SIMCHECK_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"SIMCHECK_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"SIMCHECK_DB_DSN"`
	Driver string `envconfig:"SIMCHECK_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"SIMCHECK_DB_HOST"`
	LegacyPort     int    `envconfig:"SIMCHECK_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"SIMCHECK_DB_USER"`
	LegacyPassword string `envconfig:"SIMCHECK_DB_PASSWORD"`
	LegacyName     string `envconfig:"SIMCHECK_DB_NAME"`
	LegacySSLMode  string `envconfig:"SIMCHECK_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"SIMCHECK_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"SIMCHECK_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"SIMCHECK_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"SIMCHECK_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	SlowQuery       time.Duration `envconfig:"SIMCHECK_DB_SLOW_QUERY" default:"500ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"SIMCHECK_REDIS_URL" required:"true"`
	Address      string        `envconfig:"SIMCHECK_REDIS_ADDR"`
	Password     string        `envconfig:"SIMCHECK_REDIS_PASSWORD"`
	DB           int           `envconfig:"SIMCHECK_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"SIMCHECK_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"SIMCHECK_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"SIMCHECK_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"SIMCHECK_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"SIMCHECK_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// JWTConfig describes the access tokens minted by the external auth provider.
type JWTConfig struct {
	Secret   string `envconfig:"SIMCHECK_JWT_SECRET" required:"true"`
	Issuer   string `envconfig:"SIMCHECK_JWT_ISSUER"`
	Audience string `envconfig:"SIMCHECK_JWT_AUDIENCE" default:"authenticated"`
}

type RateLimitConfig struct {
	GuestUploadWindow time.Duration `envconfig:"SIMCHECK_RATE_LIMIT_GUEST_UPLOAD_WINDOW" default:"1m"`
	GuestUploadLimit  int           `envconfig:"SIMCHECK_RATE_LIMIT_GUEST_UPLOAD_LIMIT" default:"10"`
	CheckoutWindow    time.Duration `envconfig:"SIMCHECK_RATE_LIMIT_CHECKOUT_WINDOW" default:"1m"`
	CheckoutLimit     int           `envconfig:"SIMCHECK_RATE_LIMIT_CHECKOUT_LIMIT" default:"10"`
}

type FeatureFlagsConfig struct {
	UseSQLite    bool `envconfig:"SIMCHECK_USE_SQLITE" default:"false"`
	AutoMigrate  bool `envconfig:"SIMCHECK_AUTO_MIGRATE" default:"false"`
	EnableViva   bool `envconfig:"SIMCHECK_FEATURE_VIVA" default:"true"`
	EnableStripe bool `envconfig:"SIMCHECK_FEATURE_STRIPE" default:"false"`
}

type EventingConfig struct {
	OutboxIdempotencyTTL time.Duration `envconfig:"SIMCHECK_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
	WebhookGuardTTL      time.Duration `envconfig:"SIMCHECK_EVENTING_WEBHOOK_GUARD_TTL" default:"720h"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"SIMCHECK_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"SIMCHECK_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"SIMCHECK_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	DomainTopic              string `envconfig:"SIMCHECK_PUBSUB_DOMAIN_TOPIC" default:"simcheck-domain-events"`
	NotificationSubscription string `envconfig:"SIMCHECK_PUBSUB_NOTIFICATION_SUBSCRIPTION" default:"simcheck-notifications"`
	AnalyticsSubscription    string `envconfig:"SIMCHECK_PUBSUB_ANALYTICS_SUBSCRIPTION" default:"simcheck-analytics"`
}

type BigQueryConfig struct {
	Dataset         string `envconfig:"SIMCHECK_BIGQUERY_DATASET" default:"simcheck"`
	ScanEventsTable string `envconfig:"SIMCHECK_BIGQUERY_SCAN_EVENTS_TABLE" default:"scan_events"`
}

// StorageConfig targets any S3-compatible object store.
type StorageConfig struct {
	Endpoint          string        `envconfig:"SIMCHECK_STORAGE_ENDPOINT"`
	Region            string        `envconfig:"SIMCHECK_STORAGE_REGION" default:"us-east-1"`
	Bucket            string        `envconfig:"SIMCHECK_STORAGE_BUCKET" required:"true"`
	AccessKeyID       string        `envconfig:"SIMCHECK_STORAGE_ACCESS_KEY_ID"`
	SecretAccessKey   string        `envconfig:"SIMCHECK_STORAGE_SECRET_ACCESS_KEY"`
	UsePathStyle      bool          `envconfig:"SIMCHECK_STORAGE_USE_PATH_STYLE" default:"true"`
	DownloadURLExpiry time.Duration `envconfig:"SIMCHECK_STORAGE_DOWNLOAD_URL_EXPIRY" default:"1h"`
	MaxUploadMB       int           `envconfig:"SIMCHECK_MAX_UPLOAD_MB" default:"50"`
}

// MaxUploadBytes returns the configured upload ceiling in bytes.
func (s StorageConfig) MaxUploadBytes() int64 {
	if s.MaxUploadMB <= 0 {
		return 50 << 20
	}
	return int64(s.MaxUploadMB) << 20
}

type PaddleConfig struct {
	WebhookSecret   string        `envconfig:"SIMCHECK_PADDLE_WEBHOOK_SECRET"`
	ClientToken     string        `envconfig:"SIMCHECK_PADDLE_CLIENT_TOKEN"`
	SignatureMaxAge time.Duration `envconfig:"SIMCHECK_PADDLE_SIGNATURE_MAX_AGE" default:"5m"`
}

type VivaConfig struct {
	VerificationKey string `envconfig:"SIMCHECK_VIVA_VERIFICATION_KEY"`
	ClientID        string `envconfig:"SIMCHECK_VIVA_CLIENT_ID"`
	ClientSecret    string `envconfig:"SIMCHECK_VIVA_CLIENT_SECRET"`
	SourceCode      string `envconfig:"SIMCHECK_VIVA_SOURCE_CODE"`
	AccountsURL     string `envconfig:"SIMCHECK_VIVA_ACCOUNTS_URL" default:"https://demo-accounts.vivapayments.com"`
	APIURL          string `envconfig:"SIMCHECK_VIVA_API_URL" default:"https://demo-api.vivapayments.com"`
	CheckoutURL     string `envconfig:"SIMCHECK_VIVA_CHECKOUT_URL" default:"https://demo.vivapayments.com/web/checkout"`
}

type StripeConfig struct {
	APIKey        string `envconfig:"SIMCHECK_STRIPE_API_KEY"`
	WebhookSecret string `envconfig:"SIMCHECK_STRIPE_WEBHOOK_SECRET"`
	Env           string `envconfig:"SIMCHECK_STRIPE_ENV" default:"test"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

type SendPulseConfig struct {
	ClientID     string `envconfig:"SIMCHECK_SENDPULSE_CLIENT_ID"`
	ClientSecret string `envconfig:"SIMCHECK_SENDPULSE_CLIENT_SECRET"`
	BaseURL      string `envconfig:"SIMCHECK_SENDPULSE_BASE_URL" default:"https://api.sendpulse.com"`
	FromEmail    string `envconfig:"SIMCHECK_SENDPULSE_FROM_EMAIL"`
	FromName     string `envconfig:"SIMCHECK_SENDPULSE_FROM_NAME" default:"SimCheck"`
}

type PushConfig struct {
	VAPIDPublicKey  string `envconfig:"SIMCHECK_PUSH_VAPID_PUBLIC_KEY"`
	VAPIDPrivateKey string `envconfig:"SIMCHECK_PUSH_VAPID_PRIVATE_KEY"`
	Subscriber      string `envconfig:"SIMCHECK_PUSH_SUBSCRIBER" default:"mailto:support@simcheck.app"`
	TTLSeconds      int    `envconfig:"SIMCHECK_PUSH_TTL_SECONDS" default:"86400"`
}

// WarmupConfig ramps the daily email allowance while a sending domain builds reputation.
type WarmupConfig struct {
	StartDate string  `envconfig:"SIMCHECK_WARMUP_START_DATE"`
	BaseLimit int     `envconfig:"SIMCHECK_WARMUP_BASE_LIMIT" default:"50"`
	Growth    float64 `envconfig:"SIMCHECK_WARMUP_GROWTH" default:"1.5"`
	MaxLimit  int     `envconfig:"SIMCHECK_WARMUP_MAX_LIMIT" default:"10000"`
}

type ExtensionConfig struct {
	LeaseDuration    time.Duration `envconfig:"SIMCHECK_EXTENSION_LEASE_DURATION" default:"15m"`
	MaxAttempts      int           `envconfig:"SIMCHECK_EXTENSION_MAX_ATTEMPTS" default:"3"`
	TokenTTL         time.Duration `envconfig:"SIMCHECK_EXTENSION_TOKEN_TTL" default:"8760h"`
	DefaultSlotLimit int           `envconfig:"SIMCHECK_EXTENSION_DEFAULT_SLOT_LIMIT" default:"20"`
}

// AgentConfig drives cmd/scan-agent.
type AgentConfig struct {
	Enabled           bool          `envconfig:"SIMCHECK_AGENT_ENABLED" default:"true"`
	APIBaseURL        string        `envconfig:"SIMCHECK_AGENT_API_BASE_URL"`
	Token             string        `envconfig:"SIMCHECK_AGENT_TOKEN"`
	CheckerURL        string        `envconfig:"SIMCHECK_AGENT_CHECKER_URL"`
	PollInterval      time.Duration `envconfig:"SIMCHECK_AGENT_POLL_INTERVAL" default:"10s"`
	MaxProcessingTime time.Duration `envconfig:"SIMCHECK_AGENT_MAX_PROCESSING_TIME" default:"10m"`
	Version           string        `envconfig:"SIMCHECK_AGENT_VERSION" default:"go-agent"`
}

type PDFConfig struct {
	PDFToTextBin string        `envconfig:"SIMCHECK_PDFTOTEXT_BIN" default:"pdftotext"`
	Timeout      time.Duration `envconfig:"SIMCHECK_PDFTOTEXT_TIMEOUT" default:"30s"`
}

type SecurityConfig struct {
	TokenPepper string `envconfig:"SIMCHECK_TOKEN_PEPPER" required:"true"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"SIMCHECK_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"SIMCHECK_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"SIMCHECK_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

// CronConfig sets the cron worker tick and per-job retention.
type CronConfig struct {
	Tick                      time.Duration `envconfig:"SIMCHECK_CRON_TICK" default:"1m"`
	LeaseReleaseEvery         time.Duration `envconfig:"SIMCHECK_CRON_LEASE_RELEASE_EVERY" default:"1m"`
	MagicLinkExpiryEvery      time.Duration `envconfig:"SIMCHECK_CRON_MAGIC_LINK_EXPIRY_EVERY" default:"15m"`
	OutboxRetentionDays       int           `envconfig:"SIMCHECK_CRON_OUTBOX_RETENTION_DAYS" default:"30"`
	NotificationRetentionDays int           `envconfig:"SIMCHECK_CRON_NOTIFICATION_RETENTION_DAYS" default:"90"`
}

// AgentRuntime is everything cmd/scan-agent needs. The agent runs next to
// the checker, away from the database and brokers.
type AgentRuntime struct {
	Agent        AgentConfig
	LogLevel     string `envconfig:"SIMCHECK_LOG_LEVEL" default:"info"`
	LogFormat    string `envconfig:"SIMCHECK_LOG_FORMAT" default:"json"`
	LogWarnStack bool   `envconfig:"SIMCHECK_LOG_WARN_STACK" default:"false"`
}

// LoadAgent reads the agent settings only.
func LoadAgent() (*AgentRuntime, error) {
	var cfg AgentRuntime
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing agent config: %w", err)
	}
	if cfg.Agent.APIBaseURL == "" {
		return nil, fmt.Errorf("%s is required", EnvAgentURL)
	}
	if cfg.Agent.Token == "" {
		return nil, fmt.Errorf("%s is required", EnvAgentToken)
	}
	return &cfg, nil
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
