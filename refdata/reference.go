// Package refdata builds the immutable reference data snapshot consumed by every
// analysis component: market benchmarks, index projections, risk weights and the
// compiled red-flag, narrative and decision rule sets.
package refdata

import (
	"errors"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/liamcoop/loanlens/rules"
)

// Reference is a validated, compiled reference data snapshot.
// It is never modified after Build returns and is safe for concurrent reads.
type Reference struct {
	Version         string
	LoadedAt        time.Time
	ReviewThreshold float64
	Extraction      ExtractionConfig
	Market          MarketTable
	SensitivityBps  []float64
	Solver          SolverConfig
	Weights         map[string]float64
	SeverityPenalty map[string]float64
	Levels          []LevelBand
	Thresholds      map[string]float64
	Fallback        string
	Report          ReportConfig

	RedFlags  *rules.Engine
	Narrative *rules.Engine
	Decisions *rules.Engine

	indexCurves map[string][]float64
	templates   map[string]*template.Template
}

// IndexCurve returns the projected annual levels of a rate index
func (r *Reference) IndexCurve(index string) ([]float64, bool) {
	c, ok := r.indexCurves[strings.ToUpper(index)]
	return c, ok
}

// Template returns the parsed fragment template of a narrative rule
func (r *Reference) Template(ruleID string) (*template.Template, bool) {
	t, ok := r.templates[ruleID]
	return t, ok
}

// Level names the band an aggregate risk score falls into
func (r *Reference) Level(score float64) string {
	for _, l := range r.Levels {
		if score <= l.Max {
			return l.Name
		}
	}
	return r.Levels[len(r.Levels)-1].Name
}

// ToRule converts a rule as written in a file into a store record
func (s RuleSpec) ToRule(kind rules.Kind) *rules.Rule {
	name := s.Name
	if name == "" {
		name = s.ID
	}
	return &rules.Rule{
		ID:         s.ID,
		Name:       name,
		Kind:       kind,
		Expression: s.Expression,
		Priority:   s.Priority,
		Active:     !s.Disabled,
		Severity:   s.Severity,
		Category:   s.Category,
		Fields:     s.Fields,
		Impact:     s.Impact,
		Advice:     s.Advice,
		Section:    s.Section,
		Template:   s.Template,
		Exclusive:  s.Exclusive,
		Group:      s.Group,
		Requires:   s.Requires,
		Outcome:    s.Outcome,
	}
}

// SpecFromRule converts a stored rule back into its file form
func SpecFromRule(r *rules.Rule) RuleSpec {
	return RuleSpec{
		ID:         r.ID,
		Name:       r.Name,
		Expression: r.Expression,
		Priority:   r.Priority,
		Disabled:   !r.Active,
		Severity:   r.Severity,
		Category:   r.Category,
		Fields:     r.Fields,
		Impact:     r.Impact,
		Advice:     r.Advice,
		Section:    r.Section,
		Template:   r.Template,
		Exclusive:  r.Exclusive,
		Group:      r.Group,
		Requires:   r.Requires,
		Outcome:    r.Outcome,
	}
}

// StoreFromConfig loads the rule lists of a configuration into an in-memory store
func StoreFromConfig(cfg Config) (*rules.InMemoryRuleStore, error) {
	store := rules.NewInMemoryRuleStore()
	add := func(specs []RuleSpec, kind rules.Kind) error {
		for _, s := range specs {
			if err := store.Add(s.ToRule(kind)); err != nil {
				return err
			}
		}
		return nil
	}
	if err := add(cfg.RedFlags, rules.KindRedFlag); err != nil {
		return nil, err
	}
	if err := add(cfg.Narrative, rules.KindNarrative); err != nil {
		return nil, err
	}
	if err := add(cfg.Decisions.Rules, rules.KindDecision); err != nil {
		return nil, err
	}
	return store, nil
}

// Build validates cfg and compiles its rule lists
func Build(cfg Config) (*Reference, error) {
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	store, err := StoreFromConfig(cfg)
	if err != nil {
		return nil, &ConfigurationError{Problems: []string{err.Error()}}
	}
	return BuildWithStore(cfg, store)
}

// BuildWithStore validates cfg and compiles the rule sets held in store,
// which replace any rules listed in cfg itself.
func BuildWithStore(cfg Config, store rules.RuleStore) (*Reference, error) {
	var err error
	if cfg, err = withStoredRules(cfg, store); err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}

	env, err := rules.NewEnv()
	if err != nil {
		return nil, err
	}

	ref := &Reference{
		Version:         cfg.Version,
		LoadedAt:        time.Now().UTC(),
		ReviewThreshold: cfg.ReviewThreshold,
		Extraction:      cfg.Extraction,
		Market:          newMarketTable(cfg.Market),
		SensitivityBps:  append([]float64(nil), cfg.SensitivityBps...),
		Solver:          cfg.Solver,
		Weights:         copyMap(cfg.Risk.Weights),
		SeverityPenalty: copyMap(cfg.Risk.SeverityPenalty),
		Levels:          append([]LevelBand(nil), cfg.Risk.Levels...),
		Thresholds:      copyMap(cfg.Decisions.Thresholds),
		Fallback:        cfg.Decisions.Fallback,
		Report:          cfg.Report,
		indexCurves:     make(map[string][]float64, len(cfg.IndexCurves)),
		templates:       make(map[string]*template.Template, len(cfg.Narrative)),
	}
	for name, curve := range cfg.IndexCurves {
		ref.indexCurves[strings.ToUpper(name)] = append([]float64(nil), curve...)
	}

	var p problems
	compileKind := func(kind rules.Kind) *rules.Engine {
		en, err := rules.NewEngineWithEnv(env, store, kind)
		if err != nil {
			p.add("%s: %v", kind, err)
			return nil
		}
		return en
	}
	ref.RedFlags = compileKind(rules.KindRedFlag)
	ref.Narrative = compileKind(rules.KindNarrative)
	ref.Decisions = compileKind(rules.KindDecision)

	for _, s := range cfg.Narrative {
		if s.Disabled {
			continue
		}
		t, err := parseTemplate(s.ID, s.Template)
		if err != nil {
			p.add("narrative %s template: %v", s.ID, err)
			continue
		}
		ref.templates[s.ID] = t
	}

	if err := p.err(); err != nil {
		return nil, err
	}
	return ref, nil
}

// withStoredRules replaces the rule lists of cfg with the active rules held in store
func withStoredRules(cfg Config, store rules.RuleStore) (Config, error) {
	list := func(kind rules.Kind) ([]RuleSpec, error) {
		stored, err := store.ListActive(kind)
		if err != nil {
			return nil, fmt.Errorf("failed to list %s rules: %w", kind, err)
		}
		specs := make([]RuleSpec, 0, len(stored))
		for _, r := range stored {
			specs = append(specs, SpecFromRule(r))
		}
		return specs, nil
	}

	var err error
	if cfg.RedFlags, err = list(rules.KindRedFlag); err != nil {
		return cfg, err
	}
	if cfg.Narrative, err = list(rules.KindNarrative); err != nil {
		return cfg, err
	}
	if cfg.Decisions.Rules, err = list(rules.KindDecision); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func copyMap(m map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// IsConfigurationError reports whether err is a reference data problem
func IsConfigurationError(err error) bool {
	var cfgErr *ConfigurationError
	return errors.As(err, &cfgErr)
}
