package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"go.uber.org/multierr"
)

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	FeatureFlags FeatureFlagsConfig
	Fees         FeesConfig
	Revenue      RevenueConfig
	GCP          GCPConfig
	GCS          GCSConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	Eventing     EventingConfig
	Cron         CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if !cfg.FeatureFlags.UseSQLite {
		if err := cfg.DB.ensureDSN(); err != nil {
			return nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports every semantic problem at once instead of stopping at the first.
func (c *Config) Validate() error {
	var errs error
	if c.Fees.AdminFeeBPS < 0 || c.Fees.AdminFeeBPS > 10000 {
		errs = multierr.Append(errs, fmt.Errorf("%s must be between 0 and 10000, got %d", EnvAdminFeeBPS, c.Fees.AdminFeeBPS))
	}
	switch strings.ToLower(strings.TrimSpace(c.Fees.SplitPolicy)) {
	case "", "equal", "proportional":
	default:
		errs = multierr.Append(errs, fmt.Errorf("%s must be equal or proportional, got %q", EnvSplitPolicy, c.Fees.SplitPolicy))
	}
	if _, err := c.Revenue.Location(); err != nil {
		errs = multierr.Append(errs, err)
	}
	if c.FeatureFlags.UseSQLite && c.App.IsProd() {
		errs = multierr.Append(errs, fmt.Errorf("%s cannot be enabled in prod", EnvUseSQLite))
	}
	return errs
}

type AppConfig struct {
	Env          string `envconfig:"ORDERFLOW_APP_ENV" required:"true"`
	Port         string `envconfig:"ORDERFLOW_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"ORDERFLOW_LOG_LEVEL" default:"info"`
	LogFormat    string `envconfig:"ORDERFLOW_LOG_FORMAT" default:"json"`
	LogWarnStack bool   `envconfig:"ORDERFLOW_LOG_WARN_STACK" default:"false"`

	RateLimitPerMinute int           `envconfig:"ORDERFLOW_RATE_LIMIT_PER_MINUTE" default:"120"`
	ShutdownTimeout    time.Duration `envconfig:"ORDERFLOW_SHUTDOWN_TIMEOUT" default:"15s"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN        string `envconfig:"ORDERFLOW_DB_DSN"`
	SQLitePath string `envconfig:"ORDERFLOW_SQLITE_PATH" default:"orderflow.db"`

	LegacyHost     string `envconfig:"ORDERFLOW_DB_HOST"`
	LegacyPort     int    `envconfig:"ORDERFLOW_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"ORDERFLOW_DB_USER"`
	LegacyPassword string `envconfig:"ORDERFLOW_DB_PASSWORD"`
	LegacyName     string `envconfig:"ORDERFLOW_DB_NAME"`
	LegacySSLMode  string `envconfig:"ORDERFLOW_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"ORDERFLOW_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"ORDERFLOW_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"ORDERFLOW_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"ORDERFLOW_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"ORDERFLOW_REDIS_URL"`
	Address      string        `envconfig:"ORDERFLOW_REDIS_ADDR"`
	Password     string        `envconfig:"ORDERFLOW_REDIS_PASSWORD"`
	DB           int           `envconfig:"ORDERFLOW_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"ORDERFLOW_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"ORDERFLOW_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"ORDERFLOW_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"ORDERFLOW_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"ORDERFLOW_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// Enabled reports whether enough redis settings exist to dial a server.
func (r RedisConfig) Enabled() bool {
	return r.URL != "" || r.Address != ""
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"ORDERFLOW_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"ORDERFLOW_AUTO_MIGRATE" default:"false"`
}

// FeesConfig controls the admin fee applied to new transfer orders.
// Changing it never touches orders that already exist.
type FeesConfig struct {
	AdminFeeBPS int    `envconfig:"ORDERFLOW_ADMIN_FEE_BPS" default:"150"`
	SplitPolicy string `envconfig:"ORDERFLOW_SPLIT_POLICY" default:"equal"`
}

type RevenueConfig struct {
	Timezone string `envconfig:"ORDERFLOW_REVENUE_TIMEZONE" default:"UTC"`
}

// Location resolves the configured time zone used for day/week/month buckets.
func (r RevenueConfig) Location() (*time.Location, error) {
	name := strings.TrimSpace(r.Timezone)
	if name == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", EnvRevenueTZ, err)
	}
	return loc, nil
}

type GCPConfig struct {
	ProjectID              string `envconfig:"ORDERFLOW_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"ORDERFLOW_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"ORDERFLOW_GOOGLE_APPLICATION_CREDENTIALS"`
}

// GCSConfig points at the bucket holding payment and transfer proof attachments.
type GCSConfig struct {
	BucketName        string        `envconfig:"ORDERFLOW_GCS_BUCKET_NAME"`
	DownloadURLExpiry time.Duration `envconfig:"ORDERFLOW_GCS_DOWNLOAD_URL_EXPIRY" default:"15m"`
}

// Enabled reports whether proof attachments can be resolved to signed URLs.
func (g GCSConfig) Enabled() bool {
	return strings.TrimSpace(g.BucketName) != ""
}

// PubSubConfig names the topics the outbox publisher relays domain events to.
type PubSubConfig struct {
	OrdersTopic      string `envconfig:"ORDERFLOW_PUBSUB_ORDERS_TOPIC" default:"orderflow-orders"`
	SettlementsTopic string `envconfig:"ORDERFLOW_PUBSUB_SETTLEMENTS_TOPIC" default:"orderflow-settlements"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"ORDERFLOW_OUTBOX_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"ORDERFLOW_OUTBOX_POLL_INTERVAL_MS" default:"500"`
	MaxAttempts    int `envconfig:"ORDERFLOW_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

// CronConfig drives the maintenance worker that prunes relayed outbox rows.
type CronConfig struct {
	Interval            time.Duration `envconfig:"ORDERFLOW_CRON_INTERVAL" default:"24h"`
	LockTTL             time.Duration `envconfig:"ORDERFLOW_CRON_LOCK_TTL" default:"25h"`
	OutboxRetentionDays int           `envconfig:"ORDERFLOW_CRON_OUTBOX_RETENTION_DAYS" default:"30"`
	DLQRetentionDays    int           `envconfig:"ORDERFLOW_CRON_DLQ_RETENTION_DAYS" default:"90"`
}

type EventingConfig struct {
	IdempotencyTTL time.Duration `envconfig:"ORDERFLOW_EVENTING_IDEMPOTENCY_TTL" default:"24h"`
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
