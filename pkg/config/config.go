package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	// EnvPrefix scopes every environment variable the service reads.
	EnvPrefix = "SETTLEMENTS"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvDBDSN  = "SETTLEMENTS_DB_DSN"
	EnvDBHost = "SETTLEMENTS_DB_HOST"
	EnvDBUser = "SETTLEMENTS_DB_USER"
	EnvDBName = "SETTLEMENTS_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	Eventing     EventingConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Payouts      PayoutsConfig
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
	Env          string `envconfig:"SETTLEMENTS_APP_ENV" required:"true"`
	Port         string `envconfig:"SETTLEMENTS_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"SETTLEMENTS_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"SETTLEMENTS_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"SETTLEMENTS_DB_DSN"`
	Driver string `envconfig:"SETTLEMENTS_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"SETTLEMENTS_DB_HOST"`
	LegacyPort     int    `envconfig:"SETTLEMENTS_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"SETTLEMENTS_DB_USER"`
	LegacyPassword string `envconfig:"SETTLEMENTS_DB_PASSWORD"`
	LegacyName     string `envconfig:"SETTLEMENTS_DB_NAME"`
	LegacySSLMode  string `envconfig:"SETTLEMENTS_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"SETTLEMENTS_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"SETTLEMENTS_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"SETTLEMENTS_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"SETTLEMENTS_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"SETTLEMENTS_REDIS_URL" required:"true"`
	Address      string        `envconfig:"SETTLEMENTS_REDIS_ADDR"`
	Password     string        `envconfig:"SETTLEMENTS_REDIS_PASSWORD"`
	DB           int           `envconfig:"SETTLEMENTS_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"SETTLEMENTS_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"SETTLEMENTS_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"SETTLEMENTS_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"SETTLEMENTS_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"SETTLEMENTS_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"SETTLEMENTS_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"SETTLEMENTS_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"SETTLEMENTS_JWT_EXPIRATION_MINUTES" required:"true"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"SETTLEMENTS_AUTO_MIGRATE" default:"false"`
}

type EventingConfig struct {
	ConsumerIdempotencyTTL time.Duration `envconfig:"SETTLEMENTS_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
}

type GCPConfig struct {
	ProjectID string `envconfig:"SETTLEMENTS_GCP_PROJECT_ID"`
}

type PubSubConfig struct {
	OrdersTopic        string `envconfig:"SETTLEMENTS_PUBSUB_ORDERS_TOPIC" default:"marketplace-order-events"`
	OrdersSubscription string `envconfig:"SETTLEMENTS_PUBSUB_ORDERS_SUBSCRIPTION" default:"settlements-order-events"`
}

// PayoutsConfig tunes the withdrawal surface: pagination bounds, the dashboard
// recent-payments count and the stale-pending reconciliation sweep.
type PayoutsConfig struct {
	DefaultPageSize     int           `envconfig:"SETTLEMENTS_PAYOUTS_DEFAULT_PAGE_SIZE" default:"10"`
	MaxPageSize         int           `envconfig:"SETTLEMENTS_PAYOUTS_MAX_PAGE_SIZE" default:"100"`
	RecentPaymentsLimit int           `envconfig:"SETTLEMENTS_PAYOUTS_RECENT_LIMIT" default:"5"`
	StalePendingAfter   time.Duration `envconfig:"SETTLEMENTS_PAYOUTS_STALE_PENDING_AFTER" default:"72h"`
	SweepInterval       time.Duration `envconfig:"SETTLEMENTS_PAYOUTS_SWEEP_INTERVAL" default:"1h"`
	SweepBatchSize      int           `envconfig:"SETTLEMENTS_PAYOUTS_SWEEP_BATCH_SIZE" default:"200"`
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
