// Package config loads the service configuration from config.yaml, .env and LOANLENS_* variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. LOANLENS_SERVER_ADDR
const EnvPrefix = "LOANLENS"

// Reference data sources
const (
	SourceFile     = "file"
	SourcePostgres = "postgres"
)

// Config is the complete service configuration.
// The structure matches config.yaml and can be overridden by environment variables.
type Config struct {
	Server    ServerConfig    `json:"server" mapstructure:"server"`
	Database  DatabaseConfig  `json:"database" mapstructure:"database"`
	Reference ReferenceConfig `json:"reference" mapstructure:"reference"`
	Analysis  AnalysisConfig  `json:"analysis" mapstructure:"analysis"`
	Log       LogConfig       `json:"log" mapstructure:"log"`
	Metrics   MetricsConfig   `json:"metrics" mapstructure:"metrics"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Addr            string        `json:"addr" mapstructure:"addr"`
	RequestTimeout  time.Duration `json:"request_timeout" mapstructure:"request_timeout"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout" mapstructure:"shutdown_timeout"`
	MaxBodyBytes    int64         `json:"max_body_bytes" mapstructure:"max_body_bytes"`
}

// DatabaseConfig points at the rule set database. An empty URL runs without one.
type DatabaseConfig struct {
	URL        string `json:"-" mapstructure:"url"`
	Migrations string `json:"migrations" mapstructure:"migrations"`
}

// ReferenceConfig selects where reference data and rule sets come from
type ReferenceConfig struct {
	Source    string   `json:"source" mapstructure:"source"`
	Paths     []string `json:"paths" mapstructure:"paths"`
	MarketXML string   `json:"market_xml" mapstructure:"market_xml"`
	RuleSets  []string `json:"rule_sets" mapstructure:"rule_sets"`
	// Seed copies the file rules into an empty database rule set at start-up
	Seed bool `json:"seed" mapstructure:"seed"`
}

// AnalysisConfig bounds batch work
type AnalysisConfig struct {
	BatchConcurrency int `json:"batch_concurrency" mapstructure:"batch_concurrency"`
	MaxBatchSize     int `json:"max_batch_size" mapstructure:"max_batch_size"`
}

// LogConfig overrides the logger's environment defaults
type LogConfig struct {
	Level      string `json:"level" mapstructure:"level"`
	SampleRate int    `json:"sample_rate" mapstructure:"sample_rate"`
}

// MetricsConfig controls the Prometheus endpoint
type MetricsConfig struct {
	Enabled   bool   `json:"enabled" mapstructure:"enabled"`
	Namespace string `json:"namespace" mapstructure:"namespace"`
}

// Load reads .env (if present), then the config file, then LOANLENS_* variables.
// With no path, config.yaml is searched in the working directory and /etc/loanlens;
// a missing file is not an error.
func Load(path string) (*Config, error) {
	// Load .env first (ignore error if not present)
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/loanlens")
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("database.url", EnvPrefix+"_DATABASE_URL", "DATABASE_URL")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if cfg.Reference.Source == "" {
		cfg.Reference.Source = SourceFile
		if cfg.Database.URL != "" {
			cfg.Reference.Source = SourcePostgres
		}
	}
	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.request_timeout", "60s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.max_body_bytes", 5<<20)

	v.SetDefault("database.migrations", "file://migrations")

	v.SetDefault("reference.source", "")
	v.SetDefault("reference.paths", []string{})
	v.SetDefault("reference.market_xml", "")
	v.SetDefault("reference.rule_sets", []string{"default"})
	v.SetDefault("reference.seed", false)

	v.SetDefault("analysis.batch_concurrency", 4)
	v.SetDefault("analysis.max_batch_size", 50)

	v.SetDefault("log.level", "")
	v.SetDefault("log.sample_rate", 0)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.namespace", "loanlens")
}
