package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/entbill/entbill/internal/types"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

type Configuration struct {
	Deployment DeploymentConfig `validate:"required"`
	Server     ServerConfig     `validate:"required"`
	Logging    LoggingConfig    `validate:"required"`
	Postgres   PostgresConfig   `validate:"required"`
	Cache      CacheConfig
	Stripe     StripeConfig
	Verifier   VerifierConfig
}

type DeploymentConfig struct {
	Mode types.RunMode `validate:"required"`
}

type ServerConfig struct {
	Address string `validate:"required"`
}

type LoggingConfig struct {
	Level types.LogLevel `validate:"required"`
}

type PostgresConfig struct {
	Host                   string `validate:"required"`
	Port                   int    `validate:"required"`
	User                   string `validate:"required"`
	Password               string
	DBName                 string `validate:"required"`
	SSLMode                string `validate:"required"`
	MaxOpenConns           int    `mapstructure:"max_open_conns" default:"10"`
	MaxIdleConns           int    `mapstructure:"max_idle_conns" default:"5"`
	ConnMaxLifetimeMinutes int    `mapstructure:"conn_max_lifetime_minutes" default:"60"`
	AutoMigrate            bool   `mapstructure:"auto_migrate" default:"false"`
}

type CacheConfig struct {
	Enabled bool `default:"true"`
	// ProjectionTTL bounds how long a customer balance projection may be
	// served before it must be recomputed.
	ProjectionTTLSeconds int `mapstructure:"projection_ttl_seconds" default:"300"`
}

type StripeConfig struct {
	SecretKey string `mapstructure:"secret_key"`
	// Enabled gates outbound processor calls. When false the gateway is
	// replaced by a no-op and plans execute local mutations only.
	Enabled bool
}

type VerifierConfig struct {
	// MaxRetries bounds re-reads when the verifier sees a mismatch that may
	// be a stale projection rather than a real inconsistency.
	MaxRetries int `mapstructure:"max_retries" default:"3"`
	// RetryBaseDelayMs is the initial backoff between verifier re-reads.
	RetryBaseDelayMs int `mapstructure:"retry_base_delay_ms" default:"100"`
}

func NewConfig() (*Configuration, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./internal/config")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/entbill")

	v.SetEnvPrefix("ENTBILL")
	v.SetEnvKeyReplacer(strings.NewReplacer(
		".", "_",
		"-", "_",
	))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, err
		}
	}

	var config Configuration
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *Configuration) applyDefaults() {
	if c.Postgres.MaxOpenConns == 0 {
		c.Postgres.MaxOpenConns = 10
	}
	if c.Postgres.MaxIdleConns == 0 {
		c.Postgres.MaxIdleConns = 5
	}
	if c.Postgres.ConnMaxLifetimeMinutes == 0 {
		c.Postgres.ConnMaxLifetimeMinutes = 60
	}
	if c.Cache.ProjectionTTLSeconds == 0 {
		c.Cache.ProjectionTTLSeconds = 300
	}
	if c.Verifier.MaxRetries == 0 {
		c.Verifier.MaxRetries = 3
	}
	if c.Verifier.RetryBaseDelayMs == 0 {
		c.Verifier.RetryBaseDelayMs = 100
	}
}

func (c Configuration) Validate() error {
	validate := validator.New()
	return validate.Struct(c)
}

// GetDefaultConfig returns a default configuration for local development
// and tests, where no config file is present.
func GetDefaultConfig() *Configuration {
	return &Configuration{
		Deployment: DeploymentConfig{Mode: types.ModeLocal},
		Server:     ServerConfig{Address: ":8080"},
		Logging:    LoggingConfig{Level: types.LogLevelDebug},
		Postgres: PostgresConfig{
			Host:                   "localhost",
			Port:                   5432,
			User:                   "entbill",
			DBName:                 "entbill",
			SSLMode:                "disable",
			MaxOpenConns:           10,
			MaxIdleConns:           5,
			ConnMaxLifetimeMinutes: 60,
		},
		Cache: CacheConfig{
			Enabled:              true,
			ProjectionTTLSeconds: 300,
		},
		Verifier: VerifierConfig{
			MaxRetries:       3,
			RetryBaseDelayMs: 100,
		},
	}
}

func (c PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"user=%s password=%s dbname=%s host=%s port=%d sslmode=%s",
		c.User,
		c.Password,
		c.DBName,
		c.Host,
		c.Port,
		c.SSLMode,
	)
}

func (c CacheConfig) ProjectionTTL() time.Duration {
	return time.Duration(c.ProjectionTTLSeconds) * time.Second
}

func (c VerifierConfig) RetryBaseDelay() time.Duration {
	return time.Duration(c.RetryBaseDelayMs) * time.Millisecond
}
