package rules

import (
	"fmt"
	"sort"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types/ref"
)

// Variables are the top-level fact objects every rule environment declares
var Variables = []string{"terms", "market", "metrics", "risk", "flags", "thresholds", "decision"}

// costLimit bounds the work a single expression may do
const costLimit = 1000000

// Engine holds one compiled rule set of a single kind.
// It is built once and never modified afterwards, so concurrent evaluation needs no locking.
type Engine struct {
	env      *cel.Env
	kind     Kind
	rules    []*Rule
	programs map[string]cel.Program // ruleID -> condition
	impacts  map[string]cel.Program // ruleID -> impact expression
}

// NewEnv creates a CEL environment declaring the given fact objects as dynamic values
func NewEnv(variables ...string) (*cel.Env, error) {
	if len(variables) == 0 {
		variables = Variables
	}
	opts := make([]cel.EnvOption, 0, len(variables)+1)
	opts = append(opts, cel.CrossTypeNumericComparisons(true))
	for _, v := range variables {
		opts = append(opts, cel.Variable(v, cel.DynType))
	}
	env, err := cel.NewEnv(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}
	return env, nil
}

// NewEngine compiles every active rule of kind from store using the default environment
func NewEngine(store RuleStore, kind Kind) (*Engine, error) {
	env, err := NewEnv()
	if err != nil {
		return nil, err
	}
	return NewEngineWithEnv(env, store, kind)
}

// NewEngineWithEnv compiles every active rule of kind from store with a custom environment
func NewEngineWithEnv(env *cel.Env, store RuleStore, kind Kind) (*Engine, error) {
	active, err := store.ListActive(kind)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s rules: %w", kind, err)
	}

	en := &Engine{
		env:      env,
		kind:     kind,
		programs: make(map[string]cel.Program, len(active)),
		impacts:  make(map[string]cel.Program),
	}

	for _, r := range active {
		prog, err := compile(env, r.Expression)
		if err != nil {
			return nil, fmt.Errorf("failed to compile rule %s: %w", r.ID, err)
		}
		en.programs[r.ID] = prog

		if r.Impact != "" {
			impact, err := compile(env, r.Impact)
			if err != nil {
				return nil, fmt.Errorf("failed to compile impact of rule %s: %w", r.ID, err)
			}
			en.impacts[r.ID] = impact
		}
		en.rules = append(en.rules, r)
	}

	// highest priority first, ties broken by ID so evaluation order is stable
	sort.SliceStable(en.rules, func(i, j int) bool {
		if en.rules[i].Priority != en.rules[j].Priority {
			return en.rules[i].Priority > en.rules[j].Priority
		}
		return en.rules[i].ID < en.rules[j].ID
	})

	return en, nil
}

// CompileRule checks that a rule's expressions compile in the given environment
func CompileRule(env *cel.Env, r *Rule) error {
	if _, err := compile(env, r.Expression); err != nil {
		return err
	}
	if r.Impact != "" {
		if _, err := compile(env, r.Impact); err != nil {
			return fmt.Errorf("impact: %w", err)
		}
	}
	return nil
}

func compile(env *cel.Env, expression string) (cel.Program, error) {
	ast, issues := env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile error: %w", issues.Err())
	}

	prog, err := env.Program(ast,
		cel.EvalOptions(cel.OptTrackState),
		cel.CostLimit(costLimit),
	)
	if err != nil {
		return nil, fmt.Errorf("program creation error: %w", err)
	}
	return prog, nil
}

// Kind returns the rule kind this engine evaluates
func (en *Engine) Kind() Kind {
	return en.kind
}

// Rules returns the compiled rules in evaluation order
func (en *Engine) Rules() []*Rule {
	out := make([]*Rule, len(en.rules))
	copy(out, en.rules)
	return out
}

// Rule returns a compiled rule by ID
func (en *Engine) Rule(ruleID string) (*Rule, bool) {
	for _, r := range en.rules {
		if r.ID == ruleID {
			return r, true
		}
	}
	return nil, false
}

// Evaluate evaluates a single rule against the provided facts.
// Non-boolean results count as not matched.
func (en *Engine) Evaluate(ruleID string, facts map[string]any) (*EvaluationResult, error) {
	rule, ok := en.Rule(ruleID)
	if !ok {
		return nil, fmt.Errorf("rule %s is not compiled", ruleID)
	}
	res := en.evaluate(rule, facts)
	return res, res.Error
}

// EvaluateAll evaluates every rule in priority order.
// A failing rule is reported in its result and does not stop the others.
func (en *Engine) EvaluateAll(facts map[string]any) []*EvaluationResult {
	results := make([]*EvaluationResult, 0, len(en.rules))
	for _, r := range en.rules {
		results = append(results, en.evaluate(r, facts))
	}
	return results
}

func (en *Engine) evaluate(rule *Rule, facts map[string]any) *EvaluationResult {
	res := &EvaluationResult{RuleID: rule.ID, RuleName: rule.Name}

	out, details, err := en.programs[rule.ID].Eval(facts)
	if err != nil {
		res.Error = fmt.Errorf("rule %s: %w", rule.ID, err)
		return res
	}
	if details != nil {
		res.Trace = details.State()
	}
	if b, ok := out.Value().(bool); ok {
		res.Matched = b
	}

	if !res.Matched {
		return res
	}
	if impact, ok := en.impacts[rule.ID]; ok {
		val, _, err := impact.Eval(facts)
		if err != nil {
			res.Error = fmt.Errorf("rule %s impact: %w", rule.ID, err)
			return res
		}
		res.Impact = toFloat(val)
	}
	return res
}

func toFloat(v ref.Val) float64 {
	switch n := v.Value().(type) {
	case float64:
		return n
	case int64:
		return float64(n)
	case uint64:
		return float64(n)
	default:
		return 0
	}
}
