package config

import (
	"crypto/tls"
	"errors"
	"fmt"
	"strings"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/Shopify/sarama"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/usagebilling/core/internal/types"
	"github.com/usagebilling/core/internal/validator"
)

// Configuration aggregates every ambient and domain-stack section the
// engine needs. Only sections the core actually consumes are present;
// there is no HTTP/auth/webhook section since those are non-goals.
type Configuration struct {
	Logging    LoggingConfig    `validate:"required"`
	Postgres   PostgresConfig   `validate:"required"`
	Cache      CacheConfig      `validate:"required"`
	Redis      RedisConfig      `validate:"omitempty"`
	ClickHouse ClickHouseConfig `validate:"required"`
	Kafka      KafkaConfig      `validate:"required"`
	Scheduler  SchedulerConfig  `validate:"required"`
	Provider   ProviderConfig   `validate:"omitempty"`
}

type LoggingConfig struct {
	Level types.LogLevel `mapstructure:"level" validate:"required"`
}

type PostgresConfig struct {
	Host                   string `mapstructure:"host" validate:"required"`
	Port                   int    `mapstructure:"port" validate:"required"`
	User                   string `mapstructure:"user" validate:"required"`
	Password               string `mapstructure:"password" validate:"required"`
	DBName                 string `mapstructure:"dbname" validate:"required"`
	SSLMode                string `mapstructure:"sslmode" validate:"required"`
	MaxOpenConns           int    `mapstructure:"max_open_conns" default:"10"`
	MaxIdleConns           int    `mapstructure:"max_idle_conns" default:"5"`
	ConnMaxLifetimeMinutes int    `mapstructure:"conn_max_lifetime_minutes" default:"60"`
}

func (c PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"user=%s password=%s dbname=%s host=%s port=%d sslmode=%s",
		c.User, c.Password, c.DBName, c.Host, c.Port, c.SSLMode,
	)
}

// CacheConfig chooses between the in-memory (single process) and redis
// (horizontally scaled workers) entitlement cache backends.
type CacheConfig struct {
	Enabled bool   `mapstructure:"enabled" validate:"required"`
	Backend string `mapstructure:"backend" validate:"omitempty,oneof=inmemory redis"` // "inmemory" | "redis"
	TTLMs   int64  `mapstructure:"ttl_ms" default:"60000"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type ClickHouseConfig struct {
	Address  string `mapstructure:"address" validate:"required"`
	TLS      bool   `mapstructure:"tls"`
	Username string `mapstructure:"username" validate:"required"`
	Password string `mapstructure:"password" validate:"required"`
	Database string `mapstructure:"database" validate:"required"`
}

func (c ClickHouseConfig) GetClientOptions() *clickhouse.Options {
	options := &clickhouse.Options{
		Addr: []string{c.Address},
		Auth: clickhouse.Auth{
			Database: c.Database,
			Username: c.Username,
			Password: c.Password,
		},
		ConnOpenStrategy: clickhouse.ConnOpenInOrder,
	}
	if c.TLS {
		options.TLS = &tls.Config{}
	}
	return options
}

// KafkaConfig configures the analytics ingestion transport that
// EntitlementEvaluator fans verify/reportUsage events out to.
type KafkaConfig struct {
	Brokers       []string             `mapstructure:"brokers" validate:"required"`
	Topic         string               `mapstructure:"topic" validate:"required"`
	UseSASL       bool                 `mapstructure:"use_sasl"`
	SASLMechanism sarama.SASLMechanism `mapstructure:"sasl_mechanism"`
	SASLUser      string               `mapstructure:"sasl_user"`
	SASLPassword  string               `mapstructure:"sasl_password"`
	ClientID      string               `mapstructure:"client_id" validate:"required"`
}

// SchedulerConfig holds the five cron expressions and batch caps of
// spec.md §4.11/§6, plus the default lock TTL of §4.2/§5.
type SchedulerConfig struct {
	PeriodsCron   string `mapstructure:"periods_cron" default:"0 */12 * * *"`
	RenewCron     string `mapstructure:"renew_cron" default:"0 */12 * * *"`
	InvoicingCron string `mapstructure:"invoicing_cron" default:"0 */12 * * *"`
	FinalizeCron  string `mapstructure:"finalize_cron" default:"0 */12 * * *"`
	BillingCron   string `mapstructure:"billing_cron" default:"0 */12 * * *"`

	PeriodsBatchCap   int `mapstructure:"periods_batch_cap" default:"100"`
	RenewBatchCap     int `mapstructure:"renew_batch_cap" default:"200"`
	InvoicingBatchCap int `mapstructure:"invoicing_batch_cap" default:"500"`
	FinalizeBatchCap  int `mapstructure:"finalize_batch_cap" default:"100"`
	BillingBatchCap   int `mapstructure:"billing_batch_cap" default:"100"`

	LockTTLMs           int64 `mapstructure:"lock_ttl_ms" default:"60000"`
	ProviderConcurrency int   `mapstructure:"provider_concurrency" default:"5"`
}

// ProviderConfig holds payment-provider credentials. The core only calls
// the provider interface of spec.md §1; this section exists so the one
// concrete adapter (Stripe) can be constructed.
type ProviderConfig struct {
	StripeAPIKey        string `mapstructure:"stripe_api_key"`
	StripeWebhookSecret string `mapstructure:"stripe_webhook_secret"`
}

func NewConfig() (*Configuration, error) {
	v := viper.New()

	_ = godotenv.Load()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./internal/config")
	v.AddConfigPath("./config")

	v.SetEnvPrefix("LIFECYCLE")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	var cfg Configuration
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into config struct: %w", err)
	}

	return &cfg, nil
}

func (c Configuration) Validate() error {
	return validator.ValidateRequest(c)
}

// GetDefaultConfig returns sane development defaults, e.g. for tests that
// construct a Configuration without reading a file.
func GetDefaultConfig() *Configuration {
	return &Configuration{
		Logging: LoggingConfig{Level: types.LogLevelDebug},
		Cache:   CacheConfig{Enabled: true, Backend: "inmemory", TTLMs: 60000},
		Scheduler: SchedulerConfig{
			PeriodsCron: "*/5 * * * *", RenewCron: "*/5 * * * *",
			InvoicingCron: "*/5 * * * *", FinalizeCron: "*/5 * * * *", BillingCron: "*/5 * * * *",
			PeriodsBatchCap: 100, RenewBatchCap: 200, InvoicingBatchCap: 500,
			FinalizeBatchCap: 100, BillingBatchCap: 100,
			LockTTLMs: 60000, ProviderConcurrency: 5,
		},
	}
}
