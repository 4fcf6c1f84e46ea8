package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// Store drivers accepted in STORE_DRIVER.
const (
	DriverMemory    = "memory"
	DriverBolt      = "bolt"
	DriverCouchbase = "couchbase"
	DriverPostgres  = "postgres"
)

type Config struct {
	Port             string `mapstructure:"API_PORT"`
	LogLevel         string `mapstructure:"API_LOG_LEVEL"`
	ElasticsearchURL string `mapstructure:"ELASTICSEARCH_URL"`
	LogIndex         string `mapstructure:"LOG_INDEX"`

	StoreDriver string `mapstructure:"STORE_DRIVER"`
	BoltPath    string `mapstructure:"BOLT_PATH"`

	CouchbaseURL      string `mapstructure:"COUCHBASE_URL"`
	CouchbaseUsername string `mapstructure:"COUCHBASE_USERNAME"`
	CouchbasePassword string `mapstructure:"COUCHBASE_PASSWORD"`
	CouchbaseBucket   string `mapstructure:"COUCHBASE_BUCKET"`
	CouchbaseScope    string `mapstructure:"COUCHBASE_SCOPE"`

	DatabaseURL string `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32  `mapstructure:"DB_MIN_CONNS"`
	AutoMigrate bool   `mapstructure:"AUTO_MIGRATE"`

	EnableSystemMetrics   bool          `mapstructure:"ENABLE_SYSTEM_METRICS"`
	SystemMetricsInterval time.Duration `mapstructure:"SYSTEM_METRICS_INTERVAL"`
	ShutdownTimeout       time.Duration `mapstructure:"SHUTDOWN_TIMEOUT"`
	CORSOrigins           []string      `mapstructure:"CORS_ORIGINS"`
}

var defaults = map[string]any{
	"API_PORT":                "5000",
	"API_LOG_LEVEL":           "info",
	"ELASTICSEARCH_URL":       "",
	"LOG_INDEX":               "logs",
	"STORE_DRIVER":            DriverBolt,
	"BOLT_PATH":               "data/mooshu.db",
	"COUCHBASE_URL":           "couchbase://localhost",
	"COUCHBASE_USERNAME":      "",
	"COUCHBASE_PASSWORD":      "",
	"COUCHBASE_BUCKET":        "mooshu",
	"COUCHBASE_SCOPE":         "_default",
	"DATABASE_URL":            "",
	"DB_MAX_CONNS":            10,
	"DB_MIN_CONNS":            1,
	"AUTO_MIGRATE":            true,
	"ENABLE_SYSTEM_METRICS":   false,
	"SYSTEM_METRICS_INTERVAL": "15s",
	"SHUTDOWN_TIMEOUT":        "30s",
	"CORS_ORIGINS":            "*",
}

// loadDotEnv reads ../.env then .env. Variables already set in the
// environment win, and missing files are fine.
func loadDotEnv() {
	if err := godotenv.Load("../.env"); err != nil {
		log.Debug().Msg("Not found .env file in parent directory, trying current directory")
		if err := godotenv.Load(".env"); err != nil {
			log.Debug().Msg("Not found .env file in current directory, assuming environment variables are set")
		}
	}
}

// Load reads the configuration from .env files and the environment.
func Load() (*Config, error) {
	loadDotEnv()

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
		// Bind explicitly so Unmarshal picks them up
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("bind %s: %w", key, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.StoreDriver = strings.ToLower(strings.TrimSpace(cfg.StoreDriver))
	cfg.CORSOrigins = splitOrigins(cfg.CORSOrigins)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// splitOrigins accepts both an already split list and a single comma separated value.
func splitOrigins(in []string) []string {
	var out []string
	for _, item := range in {
		for _, origin := range strings.Split(item, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				out = append(out, origin)
			}
		}
	}
	return out
}

// Validate checks that the configuration can start the selected store.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("API_PORT must not be empty")
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("API_LOG_LEVEL %q: %w", c.LogLevel, err)
	}

	switch c.StoreDriver {
	case DriverMemory:
	case DriverBolt:
		if c.BoltPath == "" {
			return fmt.Errorf("BOLT_PATH is required when STORE_DRIVER is %q", DriverBolt)
		}
	case DriverCouchbase:
		if c.CouchbaseBucket == "" {
			return fmt.Errorf("COUCHBASE_BUCKET is required when STORE_DRIVER is %q", DriverCouchbase)
		}
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when STORE_DRIVER is %q", DriverPostgres)
		}
		if c.DBMaxConns < 1 {
			return fmt.Errorf("DB_MAX_CONNS must be positive, got %d", c.DBMaxConns)
		}
		if c.DBMinConns < 0 || c.DBMinConns > c.DBMaxConns {
			return fmt.Errorf("DB_MIN_CONNS must be between 0 and DB_MAX_CONNS, got %d", c.DBMinConns)
		}
	default:
		return fmt.Errorf("STORE_DRIVER must be one of %q, %q, %q or %q, got %q",
			DriverMemory, DriverBolt, DriverCouchbase, DriverPostgres, c.StoreDriver)
	}

	if c.EnableSystemMetrics && c.SystemMetricsInterval <= 0 {
		return fmt.Errorf("SYSTEM_METRICS_INTERVAL must be positive, got %s", c.SystemMetricsInterval)
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("SHUTDOWN_TIMEOUT must be positive, got %s", c.ShutdownTimeout)
	}
	return nil
}

// Addr is the listen address of the HTTP server.
func (c *Config) Addr() string {
	return ":" + c.Port
}
