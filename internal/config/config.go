// Package config provides application configuration loading from a YAML file
// and the environment.
package config

import (
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Storage backends.
const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

// Telemetry exporters.
const (
	ExporterNone     = "none"
	ExporterStdout   = "stdout"
	ExporterOTLPGRPC = "otlp-grpc"
	ExporterOTLPHTTP = "otlp-http"
)

// Config holds all configuration for the application.
type Config struct {
	DatabaseURL        string        `yaml:"database_url"`
	Storage            string        `yaml:"storage"`
	HTTPAddr           string        `yaml:"http_addr"`
	JWTSecret          string        `yaml:"jwt_secret"`
	TokenTTL           time.Duration `yaml:"token_ttl"`
	LogLevel           string        `yaml:"log_level"`
	LogFormat          string        `yaml:"log_format"`
	DefaultCountryCode string        `yaml:"default_country_code"`
	ReconcileInterval  time.Duration `yaml:"reconcile_interval"`
	AMQPURL            string        `yaml:"amqp_url"`
	AMQPExchange       string        `yaml:"amqp_exchange"`
	OTelExporter       string        `yaml:"otel_exporter"`
	OTelEndpoint       string        `yaml:"otel_endpoint"`
	ServiceName        string        `yaml:"service_name"`

	problems []string
}

func defaults() *Config {
	return &Config{
		Storage:            StoragePostgres,
		HTTPAddr:           ":8080",
		TokenTTL:           24 * time.Hour,
		LogLevel:           "info",
		LogFormat:          "console",
		DefaultCountryCode: "358",
		ReconcileInterval:  15 * time.Minute,
		AMQPExchange:       "sharedbudget.events",
		OTelExporter:       ExporterNone,
		ServiceName:        "sharedbudget",
	}
}

// Load reads configuration from .env, the optional CONFIG_FILE and the
// environment, in increasing order of precedence.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.loadEnv()

	// Validate required configuration.
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) loadEnv() {
	setString(&c.DatabaseURL, "DATABASE_URL")
	setString(&c.Storage, "STORAGE")
	setString(&c.HTTPAddr, "HTTP_ADDR")
	setString(&c.JWTSecret, "JWT_SECRET")
	setString(&c.LogLevel, "LOG_LEVEL")
	setString(&c.LogFormat, "LOG_FORMAT")
	setString(&c.DefaultCountryCode, "DEFAULT_COUNTRY_CODE")
	setString(&c.AMQPURL, "AMQP_URL")
	setString(&c.AMQPExchange, "AMQP_EXCHANGE")
	setString(&c.OTelExporter, "OTEL_EXPORTER")
	setString(&c.OTelEndpoint, "OTEL_ENDPOINT")
	setString(&c.ServiceName, "SERVICE_NAME")

	c.setDuration(&c.TokenTTL, "TOKEN_TTL")
	c.setDuration(&c.ReconcileInterval, "RECONCILE_INTERVAL")

	c.Storage = strings.ToLower(c.Storage)
	c.OTelExporter = strings.ToLower(c.OTelExporter)
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func (c *Config) setDuration(dst *time.Duration, key string) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		c.problems = append(c.problems, fmt.Sprintf("%s is not a duration: %q", key, v))
		return
	}
	*dst = d
}

// validate checks that all required configuration is present.
func (c *Config) validate() error {
	errs := slices.Clone(c.problems)

	switch c.Storage {
	case StoragePostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, "DATABASE_URL is required when STORAGE=postgres")
		}
	case StorageMemory:
	default:
		errs = append(errs, fmt.Sprintf("STORAGE must be %q or %q", StoragePostgres, StorageMemory))
	}

	if len(c.JWTSecret) < 32 {
		errs = append(errs, "JWT_SECRET must be at least 32 characters")
	}

	if c.TokenTTL <= 0 {
		errs = append(errs, "TOKEN_TTL must be positive")
	}

	if c.ReconcileInterval < 0 {
		errs = append(errs, "RECONCILE_INTERVAL must not be negative")
	}

	if c.DefaultCountryCode == "" || strings.Trim(c.DefaultCountryCode, "0123456789") != "" {
		errs = append(errs, "DEFAULT_COUNTRY_CODE must contain digits only")
	}

	switch c.OTelExporter {
	case ExporterNone, ExporterStdout:
	case ExporterOTLPGRPC, ExporterOTLPHTTP:
		if c.OTelEndpoint == "" {
			errs = append(errs, "OTEL_ENDPOINT is required for OTLP exporters")
		}
	default:
		errs = append(errs, fmt.Sprintf("unknown OTEL_EXPORTER %q", c.OTelExporter))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// UsesPostgres reports whether the PostgreSQL backend is selected.
func (c *Config) UsesPostgres() bool {
	return c.Storage == StoragePostgres
}

// EventsEnabled reports whether chat events are published to RabbitMQ.
func (c *Config) EventsEnabled() bool {
	return c.AMQPURL != ""
}
