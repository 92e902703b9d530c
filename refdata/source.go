package refdata

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"github.com/liamcoop/loanlens/rules"
)

// FileSource loads reference data from YAML files and an optional XML rate sheet.
// Rules come from the files, so every rule set name resolves to the same data.
type FileSource struct {
	Paths     []string
	MarketXML string
}

// Config reads and merges the source's files
func (s FileSource) Config() (Config, error) {
	cfg, err := LoadConfig(s.Paths...)
	if err != nil {
		return Config{}, err
	}
	if s.MarketXML == "" {
		return cfg, nil
	}

	f, err := os.Open(s.MarketXML)
	if err != nil {
		return Config{}, fmt.Errorf("failed to open rate sheet: %w", err)
	}
	defer f.Close()

	upd, err := LoadMarketXML(f)
	if err != nil {
		return Config{}, err
	}
	return upd.Apply(cfg), nil
}

// Load implements Source
func (s FileSource) Load(ctx context.Context, ruleSet string) (*Reference, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cfg, err := s.Config()
	if err != nil {
		return nil, err
	}
	if cfg.Version == "" {
		cfg.Version = ruleSet
	}
	return Build(cfg)
}

// PostgresSource takes market data from files and the rule sets from PostgreSQL
type PostgresSource struct {
	DB    *sql.DB
	Files FileSource
}

// Load implements Source
func (s PostgresSource) Load(ctx context.Context, ruleSet string) (*Reference, error) {
	if err := s.DB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("rule database unavailable: %w", err)
	}
	cfg, err := s.Files.Config()
	if err != nil {
		return nil, err
	}
	cfg.Version = ruleSet
	return BuildWithStore(cfg, rules.NewPostgresRuleStore(s.DB, ruleSet))
}

// Check applies change to a copy of the stored rule set and builds the result.
// The database is not touched, so a change can be rejected before it is written.
func (s PostgresSource) Check(ctx context.Context, ruleSet string, change func(rules.RuleStore) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	cfg, err := s.Files.Config()
	if err != nil {
		return err
	}
	stored, err := rules.NewPostgresRuleStore(s.DB, ruleSet).ListAll()
	if err != nil {
		return err
	}
	candidate, err := rules.NewInMemoryRuleStoreFrom(stored)
	if err != nil {
		return err
	}
	if err := change(candidate); err != nil {
		return err
	}
	cfg.Version = ruleSet
	_, err = BuildWithStore(cfg, candidate)
	return err
}

// RuleSets lists the rule sets stored in the database
func (s PostgresSource) RuleSets(ctx context.Context) ([]string, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT name FROM rule_sets ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list rule sets: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan rule set: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// Seed copies the rules of cfg into an empty rule set so a fresh database starts from the shipped defaults
func (s PostgresSource) Seed(ruleSet string, cfg Config) error {
	store := rules.NewPostgresRuleStore(s.DB, ruleSet)
	if err := store.EnsureRuleSet("seeded from reference files"); err != nil {
		return err
	}
	mem, err := StoreFromConfig(cfg)
	if err != nil {
		return err
	}
	for _, kind := range []rules.Kind{rules.KindRedFlag, rules.KindNarrative, rules.KindDecision} {
		list, err := mem.ListActive(kind)
		if err != nil {
			return err
		}
		for _, r := range list {
			if _, err := store.Get(r.ID); err == nil {
				continue
			}
			if err := store.Add(r); err != nil {
				return fmt.Errorf("failed to seed rule %s: %w", r.ID, err)
			}
		}
	}
	return nil
}
