package rules

import "time"

// Kind separates the rule sets sharing one store
type Kind string

const (
	KindRedFlag   Kind = "red_flag"
	KindNarrative Kind = "narrative"
	KindDecision  Kind = "decision"
)

// Rule is a declarative condition plus the content it produces when it matches.
// Which optional fields matter depends on Kind.
type Rule struct {
	ID         string `json:"id" mapstructure:"id"`
	Name       string `json:"name" mapstructure:"name"`
	Kind       Kind   `json:"kind" mapstructure:"kind"`
	Expression string `json:"expression" mapstructure:"expression"`
	Priority   int    `json:"priority" mapstructure:"priority"`
	Active     bool   `json:"active" mapstructure:"active"`
	Version    int    `json:"version" mapstructure:"version"`

	// red flags
	Severity string   `json:"severity,omitempty" mapstructure:"severity"`
	Category string   `json:"category,omitempty" mapstructure:"category"`
	Fields   []string `json:"fields,omitempty" mapstructure:"fields"`
	Impact   string   `json:"impact,omitempty" mapstructure:"impact"` // CEL expression returning a number
	Advice   string   `json:"advice,omitempty" mapstructure:"advice"`

	// narrative fragments
	Section   string   `json:"section,omitempty" mapstructure:"section"`
	Template  string   `json:"template,omitempty" mapstructure:"template"`
	Exclusive bool     `json:"exclusive,omitempty" mapstructure:"exclusive"`
	Group     string   `json:"group,omitempty" mapstructure:"group"`
	Requires  []string `json:"requires,omitempty" mapstructure:"requires"`

	// decisions
	Outcome string `json:"outcome,omitempty" mapstructure:"outcome"`

	CreatedAt time.Time `json:"created_at" mapstructure:"-"`
	UpdatedAt time.Time `json:"updated_at" mapstructure:"-"`
}

// EvaluationResult contains the outcome of evaluating a rule
type EvaluationResult struct {
	RuleID   string  `json:"rule_id"`
	RuleName string  `json:"rule_name"`
	Matched  bool    `json:"matched"`
	Impact   float64 `json:"impact"`
	Error    error   `json:"-"`
	Trace    any     `json:"-"` // CEL evaluation state
}
