package rules

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// PostgresRuleStore implements RuleStore backed by PostgreSQL.
// Each store is scoped to one named rule set so several versions can live side by side.
type PostgresRuleStore struct {
	db      *sql.DB
	ruleSet string
}

// NewPostgresRuleStore creates a new PostgreSQL-backed RuleStore for a rule set
func NewPostgresRuleStore(db *sql.DB, ruleSet string) *PostgresRuleStore {
	return &PostgresRuleStore{
		db:      db,
		ruleSet: ruleSet,
	}
}

// EnsureRuleSet creates the rule set row if it does not exist yet
func (s *PostgresRuleStore) EnsureRuleSet(description string) error {
	_, err := s.db.Exec(`
		INSERT INTO rule_sets (name, description) VALUES ($1, $2)
		ON CONFLICT (name) DO NOTHING
	`, s.ruleSet, description)
	if err != nil {
		return fmt.Errorf("failed to create rule set %s: %w", s.ruleSet, err)
	}
	return nil
}

const ruleColumns = `id, kind, name, expression, priority, active, version,
	severity, category, fields, impact, advice,
	section, template, exclusive, grp, requires, outcome,
	created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanRule(row scanner) (*Rule, error) {
	var r Rule
	var kind string
	err := row.Scan(
		&r.ID, &kind, &r.Name, &r.Expression, &r.Priority, &r.Active, &r.Version,
		&r.Severity, &r.Category, pq.Array(&r.Fields), &r.Impact, &r.Advice,
		&r.Section, &r.Template, &r.Exclusive, &r.Group, pq.Array(&r.Requires), &r.Outcome,
		&r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	r.Kind = Kind(kind)
	return &r, nil
}

// Add inserts a new rule into the database
func (s *PostgresRuleStore) Add(rule *Rule) error {
	var exists bool
	err := s.db.QueryRow(`
		SELECT EXISTS(SELECT 1 FROM rules WHERE id = $1 AND rule_set = $2)
	`, rule.ID, s.ruleSet).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check rule existence: %w", err)
	}
	if exists {
		return fmt.Errorf("%w: %s", ErrDuplicate, rule.ID)
	}

	now := time.Now()
	rule.CreatedAt = now
	rule.UpdatedAt = now
	if rule.Version == 0 {
		rule.Version = 1
	}

	_, err = s.db.Exec(`
		INSERT INTO rules (rule_set, `+ruleColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)
	`, s.ruleSet,
		rule.ID, string(rule.Kind), rule.Name, rule.Expression, rule.Priority, rule.Active, rule.Version,
		rule.Severity, rule.Category, pq.Array(rule.Fields), rule.Impact, rule.Advice,
		rule.Section, rule.Template, rule.Exclusive, rule.Group, pq.Array(rule.Requires), rule.Outcome,
		rule.CreatedAt, rule.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert rule: %w", err)
	}

	return nil
}

// Get retrieves a rule by ID
func (s *PostgresRuleStore) Get(id string) (*Rule, error) {
	row := s.db.QueryRow(`
		SELECT `+ruleColumns+`
		FROM rules
		WHERE id = $1 AND rule_set = $2
	`, id, s.ruleSet)

	rule, err := scanRule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get rule: %w", err)
	}
	return rule, nil
}

// ListActive returns the active rules of one kind in the rule set
func (s *PostgresRuleStore) ListActive(kind Kind) ([]*Rule, error) {
	rows, err := s.db.Query(`
		SELECT `+ruleColumns+`
		FROM rules
		WHERE rule_set = $1 AND kind = $2 AND active = true
		ORDER BY id ASC
	`, s.ruleSet, string(kind))
	if err != nil {
		return nil, fmt.Errorf("failed to list active rules: %w", err)
	}
	defer rows.Close()

	var rulesList []*Rule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}
		rulesList = append(rulesList, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rules: %w", err)
	}

	return rulesList, nil
}

// Update modifies an existing rule and bumps its version
func (s *PostgresRuleStore) Update(rule *Rule) error {
	rule.UpdatedAt = time.Now()

	err := s.db.QueryRow(`
		UPDATE rules
		SET kind = $1, name = $2, expression = $3, priority = $4, active = $5,
			severity = $6, category = $7, fields = $8, impact = $9, advice = $10,
			section = $11, template = $12, exclusive = $13, grp = $14, requires = $15, outcome = $16,
			version = version + 1, updated_at = $17
		WHERE id = $18 AND rule_set = $19
		RETURNING version, created_at
	`, string(rule.Kind), rule.Name, rule.Expression, rule.Priority, rule.Active,
		rule.Severity, rule.Category, pq.Array(rule.Fields), rule.Impact, rule.Advice,
		rule.Section, rule.Template, rule.Exclusive, rule.Group, pq.Array(rule.Requires), rule.Outcome,
		rule.UpdatedAt, rule.ID, s.ruleSet).Scan(&rule.Version, &rule.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", ErrNotFound, rule.ID)
	}
	if err != nil {
		return fmt.Errorf("failed to update rule: %w", err)
	}

	return nil
}

// Delete removes a rule from the database
func (s *PostgresRuleStore) Delete(id string) error {
	result, err := s.db.Exec(`
		DELETE FROM rules
		WHERE id = $1 AND rule_set = $2
	`, id, s.ruleSet)
	if err != nil {
		return fmt.Errorf("failed to delete rule: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	return nil
}

// ListAll returns every rule in the set regardless of kind or status, for export
func (s *PostgresRuleStore) ListAll() ([]*Rule, error) {
	rows, err := s.db.Query(`
		SELECT `+ruleColumns+`
		FROM rules
		WHERE rule_set = $1
		ORDER BY kind, id
	`, s.ruleSet)
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	defer rows.Close()

	var out []*Rule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
