package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	ierr "github.com/revuo/revuo/internal/errors"
	"github.com/revuo/revuo/internal/types"
	"github.com/spf13/viper"
)

type DeploymentMode string

const (
	ModeLocal      DeploymentMode = "local"
	ModeProduction DeploymentMode = "production"
)

type Configuration struct {
	Deployment DeploymentConfig `mapstructure:"deployment"`
	Server     ServerConfig     `mapstructure:"server"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Postgres   PostgresConfig   `mapstructure:"postgres"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Cache      CacheConfig      `mapstructure:"cache"`
	Stripe     StripeConfig     `mapstructure:"stripe"`
	Billing    BillingConfig    `mapstructure:"billing"`
	Webhook    WebhookConfig    `mapstructure:"webhook"`
	Sentry     SentryConfig     `mapstructure:"sentry"`
}

type DeploymentConfig struct {
	Mode DeploymentMode `mapstructure:"mode"`
}

type ServerConfig struct {
	Address         string        `mapstructure:"address"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type LoggingConfig struct {
	Level          types.LogLevel `mapstructure:"level"`
	FluentdEnabled bool           `mapstructure:"fluentd_enabled"`
	FluentdHost    string         `mapstructure:"fluentd_host"`
	FluentdPort    int            `mapstructure:"fluentd_port"`
}

type PostgresConfig struct {
	Host                   string        `mapstructure:"host"`
	Port                   int           `mapstructure:"port"`
	User                   string        `mapstructure:"user"`
	Password               string        `mapstructure:"password"`
	DBName                 string        `mapstructure:"dbname"`
	SSLMode                string        `mapstructure:"sslmode"`
	MaxOpenConns           int           `mapstructure:"max_open_conns"`
	MaxIdleConns           int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetimeMinutes int           `mapstructure:"conn_max_lifetime_minutes"`
	AutoMigrate            bool          `mapstructure:"auto_migrate"`
	QueryTimeout           time.Duration `mapstructure:"query_timeout"`
}

func (c PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

type RedisConfig struct {
	Host     string        `mapstructure:"host"`
	Port     int           `mapstructure:"port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	UseTLS   bool          `mapstructure:"use_tls"`
	PoolSize int           `mapstructure:"pool_size"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

type CacheConfig struct {
	// Type selects the processed-event store backend: inmemory or redis.
	Type string `mapstructure:"type"`
}

type StripeConfig struct {
	SecretKey         string        `mapstructure:"secret_key"`
	WebhookSecret     string        `mapstructure:"webhook_secret"`
	WebhookTolerance  time.Duration `mapstructure:"webhook_tolerance"`
	MaxNetworkRetries int64         `mapstructure:"max_network_retries"`
}

type BillingConfig struct {
	MaxPaymentFailures int    `mapstructure:"max_payment_failures"`
	DefaultCurrency    string `mapstructure:"default_currency"`
	InvoiceHistorySize int64  `mapstructure:"invoice_history_size"`
}

type WebhookConfig struct {
	// ProcessedEventTTL bounds how long delivered event ids are remembered for deduplication.
	ProcessedEventTTL time.Duration `mapstructure:"processed_event_ttl"`
	MaxBodyBytes      int64         `mapstructure:"max_body_bytes"`
	ConflictRetries   uint64        `mapstructure:"conflict_retries"`
}

type SentryConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	DSN         string  `mapstructure:"dsn"`
	Environment string  `mapstructure:"environment"`
	SampleRate  float64 `mapstructure:"sample_rate"`
}

// NewConfig loads configuration from config.yaml (optional), .env (optional) and REVUO_* env vars.
func NewConfig() (*Configuration, error) {
	// .env is a convenience for local runs; its absence is not an error
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./internal/config")
	v.AddConfigPath(".")

	v.SetEnvPrefix("REVUO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Configuration
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into config struct: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("deployment.mode", string(ModeLocal))
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.shutdown_timeout", 15*time.Second)
	v.SetDefault("logging.level", string(types.LogLevelInfo))
	v.SetDefault("logging.fluentd_enabled", false)
	v.SetDefault("logging.fluentd_host", "")
	v.SetDefault("logging.fluentd_port", 24224)
	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "revuo")
	v.SetDefault("postgres.dbname", "revuo")
	v.SetDefault("postgres.sslmode", "disable")
	v.SetDefault("postgres.max_open_conns", 10)
	v.SetDefault("postgres.max_idle_conns", 5)
	v.SetDefault("postgres.conn_max_lifetime_minutes", 30)
	v.SetDefault("postgres.auto_migrate", true)
	v.SetDefault("postgres.query_timeout", 10*time.Second)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.timeout", 5*time.Second)
	v.SetDefault("cache.type", "inmemory")
	v.SetDefault("postgres.password", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.use_tls", false)
	v.SetDefault("stripe.secret_key", "")
	v.SetDefault("stripe.webhook_secret", "")
	v.SetDefault("stripe.webhook_tolerance", 300*time.Second)
	v.SetDefault("stripe.max_network_retries", 2)
	v.SetDefault("billing.max_payment_failures", 3)
	v.SetDefault("billing.default_currency", types.DefaultCurrency)
	v.SetDefault("billing.invoice_history_size", 10)
	v.SetDefault("webhook.processed_event_ttl", 72*time.Hour)
	v.SetDefault("webhook.max_body_bytes", 1<<20)
	v.SetDefault("webhook.conflict_retries", 5)
	v.SetDefault("sentry.enabled", false)
	v.SetDefault("sentry.dsn", "")
	v.SetDefault("sentry.environment", string(ModeLocal))
	v.SetDefault("sentry.sample_rate", 1.0)
}

// Validate checks the settings the engine cannot start without.
func (c *Configuration) Validate() error {
	missing := []string{}
	if strings.TrimSpace(c.Stripe.SecretKey) == "" {
		missing = append(missing, "stripe.secret_key")
	}
	if strings.TrimSpace(c.Stripe.WebhookSecret) == "" {
		missing = append(missing, "stripe.webhook_secret")
	}
	if len(missing) > 0 {
		return ierr.NewError("missing required configuration").
			WithHint("Set the billing processor API key and webhook signing secret").
			WithReportableDetails(map[string]any{
				"missing": missing,
			}).
			Mark(ierr.ErrValidation)
	}

	if c.Billing.MaxPaymentFailures < 1 {
		return ierr.NewError("billing.max_payment_failures must be at least 1").
			WithHint("Invalid payment failure threshold").
			Mark(ierr.ErrValidation)
	}
	if c.Cache.Type != "inmemory" && c.Cache.Type != "redis" {
		return ierr.NewErrorf("unsupported cache type %q", c.Cache.Type).
			WithHint("cache.type must be inmemory or redis").
			Mark(ierr.ErrValidation)
	}
	return nil
}

// GetDefaultConfig returns a configuration suitable for tests and scripts. Secrets are left
// empty so it never validates on its own.
func GetDefaultConfig() *Configuration {
	v := viper.New()
	setDefaults(v)
	var cfg Configuration
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("default config: %v", err))
	}
	return &cfg
}
