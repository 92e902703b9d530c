package config

import (
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/liamcoop/loanlens/internal/logger"
)

// Validate checks the configuration for errors. Every problem is reported, not just the first.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server address cannot be empty"))
	} else if _, err := net.ResolveTCPAddr("tcp", c.Server.Addr); err != nil {
		errs = append(errs, fmt.Errorf("invalid server address: %v", err))
	}
	if c.Server.RequestTimeout <= 0 {
		errs = append(errs, errors.New("server request_timeout must be positive"))
	}
	if c.Server.MaxBodyBytes <= 0 {
		errs = append(errs, errors.New("server max_body_bytes must be positive"))
	}

	switch c.Reference.Source {
	case SourceFile:
	case SourcePostgres:
		if c.Database.URL == "" {
			errs = append(errs, errors.New("database url is required when reference source is postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown reference source %q (want %s or %s)", c.Reference.Source, SourceFile, SourcePostgres))
	}
	if len(c.Reference.RuleSets) == 0 {
		errs = append(errs, errors.New("at least one rule set must be configured"))
	}
	for _, rs := range c.Reference.RuleSets {
		if strings.TrimSpace(rs) == "" {
			errs = append(errs, errors.New("rule_sets contains an empty name"))
		}
	}
	if c.Reference.Seed && c.Reference.Source != SourcePostgres {
		errs = append(errs, errors.New("reference seed requires the postgres source"))
	}

	if c.Analysis.BatchConcurrency <= 0 {
		errs = append(errs, errors.New("analysis batch_concurrency must be positive"))
	}
	if c.Analysis.MaxBatchSize <= 0 {
		errs = append(errs, errors.New("analysis max_batch_size must be positive"))
	}

	if c.Log.Level != "" {
		if _, err := logger.ParseLevel(c.Log.Level); err != nil {
			errs = append(errs, err)
		}
	}
	if c.Log.SampleRate < 0 {
		errs = append(errs, errors.New("log sample_rate cannot be negative"))
	}

	if c.Metrics.Enabled && c.Metrics.Namespace == "" {
		errs = append(errs, errors.New("metrics namespace cannot be empty when metrics are enabled"))
	}

	return errors.Join(errs...)
}
