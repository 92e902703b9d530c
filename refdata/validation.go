package refdata

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"
)

// Categories are the risk categories every weight table must cover
var Categories = []string{"liquidity", "interest_rate", "operational", "legal", "prepayment"}

// Severities ranked from most to least severe
var Severities = []string{"critical", "high", "medium"}

// Sections is the fixed narrative taxonomy, in report order
var Sections = []string{
	"rate_evaluation",
	"guarantee_evaluation",
	"risk_evaluation",
	"benchmark_comparison",
	"recommendation_justification",
}

// Outcomes are the recommendations a decision rule may produce
var Outcomes = []string{"accept", "reject", "negotiate"}

// ConfigurationError lists every problem found in a reference data set.
// It is fatal: no analysis runs on a configuration that produced one.
type ConfigurationError struct {
	Problems []string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid reference data (%d problems): %s", len(e.Problems), strings.Join(e.Problems, "; "))
}

type problems []string

func (p *problems) add(format string, args ...any) {
	*p = append(*p, fmt.Sprintf(format, args...))
}

func (p problems) err() error {
	if len(p) == 0 {
		return nil
	}
	return &ConfigurationError{Problems: p}
}

var identifierPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// validateIdentifier checks rule IDs and bracket names
func validateIdentifier(name string) error {
	if len(name) == 0 {
		return fmt.Errorf("identifier cannot be empty")
	}
	if len(name) > 100 {
		return fmt.Errorf("identifier length %d exceeds maximum of 100 characters", len(name))
	}
	if !identifierPattern.MatchString(name) {
		return fmt.Errorf("must match pattern ^[a-zA-Z_][a-zA-Z0-9_]*$")
	}
	if isReservedKeyword(name) {
		return fmt.Errorf("cannot use reserved keyword %q as identifier", name)
	}
	return nil
}

// isReservedKeyword checks if a name collides with a CEL keyword or fact variable
func isReservedKeyword(name string) bool {
	switch name {
	case "true", "false", "null", "in", "as", "import", "package", "namespace",
		"if", "else", "for", "while", "break", "continue", "return", "var", "let", "const", "function", "loop", "void",
		"terms", "market", "metrics", "risk", "flags", "thresholds", "decision":
		return true
	}
	return false
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

// Validate checks a raw configuration without compiling its rules.
// Every problem is collected so one load reports the whole picture.
func Validate(cfg Config) error {
	var p problems

	if cfg.ReviewThreshold <= 0 || cfg.ReviewThreshold > 1 {
		p.add("review_threshold %.3f must be in (0, 1]", cfg.ReviewThreshold)
	}

	if cfg.Extraction.AmountTolerance < 0 || cfg.Extraction.AmountTolerance >= 0.5 {
		p.add("extraction.amount_tolerance %.4f must be in [0, 0.5)", cfg.Extraction.AmountTolerance)
	}
	if cfg.Extraction.RateToleranceBps < 0 {
		p.add("extraction.rate_tolerance_bps must not be negative")
	}
	if cfg.Extraction.AmbiguityFactor <= 0 || cfg.Extraction.AmbiguityFactor >= 1 {
		p.add("extraction.ambiguity_factor %.3f must be in (0, 1)", cfg.Extraction.AmbiguityFactor)
	}

	validateMarket(&p, cfg.Market)

	for name, curve := range cfg.IndexCurves {
		if len(curve) == 0 {
			p.add("index_curves.%s has no levels", name)
		}
		for i, lvl := range curve {
			if lvl < -0.05 || lvl >= 1 {
				p.add("index_curves.%s[%d] = %.4f is not an annual fraction", name, i, lvl)
			}
		}
	}

	if len(cfg.SensitivityBps) == 0 {
		p.add("sensitivity_bps must list at least one delta")
	}
	for _, d := range cfg.SensitivityBps {
		if d == 0 {
			p.add("sensitivity_bps must not contain 0")
		}
	}

	if cfg.Solver.MaxIterations < 1 || cfg.Solver.MaxIterations > 10000 {
		p.add("solver.max_iterations %d must be in [1, 10000]", cfg.Solver.MaxIterations)
	}
	if cfg.Solver.Tolerance <= 0 || cfg.Solver.Tolerance > 1e-2 {
		p.add("solver.tolerance %g must be in (0, 0.01]", cfg.Solver.Tolerance)
	}

	validateRisk(&p, cfg.Risk)

	ids := make(map[string]string)
	validateRules(&p, "red_flags", cfg.RedFlags, ids, validateRedFlag)
	validateRules(&p, "narrative", cfg.Narrative, ids, validateNarrative)
	validateRules(&p, "decisions.rules", cfg.Decisions.Rules, ids, validateDecision)

	if !contains(Outcomes, cfg.Decisions.Fallback) {
		p.add("decisions.fallback %q must be one of %v", cfg.Decisions.Fallback, Outcomes)
	}
	for name, v := range cfg.Decisions.Thresholds {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			p.add("decisions.thresholds.%s is not a finite number", name)
		}
	}

	if cfg.Report.SummaryCap < 1 {
		p.add("report.summary_cap must be at least 1")
	}
	if cfg.Report.CriticalPeriodFactor <= 1 {
		p.add("report.critical_period_factor must be greater than 1")
	}
	if cfg.Report.PrepaymentMonth < 1 {
		p.add("report.prepayment_month must be at least 1")
	}

	return p.err()
}

func validateBrackets(p *problems, name string, brackets []Bracket) map[string]bool {
	names := make(map[string]bool)
	if len(brackets) == 0 {
		p.add("market.%s must define at least one bracket", name)
		return names
	}
	prev := 0.0
	for i, b := range brackets {
		if err := validateIdentifier(b.Name); err != nil {
			p.add("market.%s[%d] name %q: %v", name, i, b.Name, err)
		}
		if names[b.Name] {
			p.add("market.%s has duplicate bracket %q", name, b.Name)
		}
		names[b.Name] = true
		if b.Max == 0 {
			if i != len(brackets)-1 {
				p.add("market.%s[%d] is unbounded but not last", name, i)
			}
			continue
		}
		if b.Max <= prev {
			p.add("market.%s[%d] max %.2f must be greater than %.2f", name, i, b.Max, prev)
		}
		prev = b.Max
	}
	return names
}

func validateMarket(p *problems, m MarketConfig) {
	sizes := validateBrackets(p, "size_brackets", m.SizeBrackets)
	terms := validateBrackets(p, "term_brackets", m.TermBrackets)

	seen := make(map[segment]bool)
	for i, r := range m.Rates {
		if strings.TrimSpace(r.Sector) == "" {
			p.add("market.rates[%d] has no sector", i)
		}
		if !sizes[r.Size] {
			p.add("market.rates[%d] references unknown size bracket %q", i, r.Size)
		}
		if !terms[r.Term] {
			p.add("market.rates[%d] references unknown term bracket %q", i, r.Term)
		}
		if r.Rate <= 0 || r.Rate >= 1 {
			p.add("market.rates[%d] rate %.4f must be an annual fraction in (0, 1)", i, r.Rate)
		}
		key := segment{normalizeSector(r.Sector), r.Size, r.Term}
		if seen[key] {
			p.add("market.rates[%d] duplicates segment %s/%s/%s", i, r.Sector, r.Size, r.Term)
		}
		seen[key] = true
	}
	if m.DefaultDiscountRate <= 0 || m.DefaultDiscountRate >= 1 {
		p.add("market.default_discount_rate %.4f must be in (0, 1)", m.DefaultDiscountRate)
	}
}

func validateRisk(p *problems, r RiskConfig) {
	sum := 0.0
	for _, c := range Categories {
		w, ok := r.Weights[c]
		if !ok {
			p.add("risk.weights is missing category %q", c)
			continue
		}
		if w < 0 || w > 1 {
			p.add("risk.weights.%s %.3f must be in [0, 1]", c, w)
		}
		sum += w
	}
	extra := make([]string, 0)
	for c := range r.Weights {
		if !contains(Categories, c) {
			extra = append(extra, c)
		}
	}
	sort.Strings(extra)
	for _, c := range extra {
		p.add("risk.weights has unknown category %q", c)
	}
	if math.Abs(sum-1.0) > 1e-6 {
		p.add("risk.weights sum to %.4f, must sum to 1.0", sum)
	}

	for _, s := range Severities {
		v, ok := r.SeverityPenalty[s]
		if !ok {
			p.add("risk.severity_penalty is missing severity %q", s)
			continue
		}
		if v < 0 {
			p.add("risk.severity_penalty.%s must not be negative", s)
		}
	}

	if len(r.Levels) == 0 {
		p.add("risk.levels must define at least one band")
	}
	prev := -1.0
	for i, l := range r.Levels {
		if l.Name == "" {
			p.add("risk.levels[%d] has no name", i)
		}
		if l.Max <= prev {
			p.add("risk.levels[%d] max %.1f must be greater than %.1f", i, l.Max, prev)
		}
		prev = l.Max
	}
	if len(r.Levels) > 0 && r.Levels[len(r.Levels)-1].Max < 100 {
		p.add("risk.levels must cover scores up to 100")
	}
}

func validateRules(p *problems, list string, specs []RuleSpec, ids map[string]string, check func(*problems, string, RuleSpec)) {
	for i, s := range specs {
		where := fmt.Sprintf("%s[%d]", list, i)
		if err := validateIdentifier(s.ID); err != nil {
			p.add("%s id %q: %v", where, s.ID, err)
		} else if prev, dup := ids[s.ID]; dup {
			p.add("%s id %q already used by %s", where, s.ID, prev)
		} else {
			ids[s.ID] = where
		}
		if strings.TrimSpace(s.Expression) == "" {
			p.add("%s (%s) has no expression", where, s.ID)
		}
		check(p, where, s)
	}
}

func validateRedFlag(p *problems, where string, s RuleSpec) {
	if !contains(Severities, s.Severity) {
		p.add("%s (%s) severity %q must be one of %v", where, s.ID, s.Severity, Severities)
	}
	if !contains(Categories, s.Category) {
		p.add("%s (%s) category %q must be one of %v", where, s.ID, s.Category, Categories)
	}
	if len(s.Fields) == 0 {
		p.add("%s (%s) must name the contract fields it inspects", where, s.ID)
	}
}

func validateNarrative(p *problems, where string, s RuleSpec) {
	if !contains(Sections, s.Section) {
		p.add("%s (%s) section %q must be one of %v", where, s.ID, s.Section, Sections)
	}
	if strings.TrimSpace(s.Template) == "" {
		p.add("%s (%s) has no template", where, s.ID)
	} else if _, err := parseTemplate(s.ID, s.Template); err != nil {
		p.add("%s (%s) template: %v", where, s.ID, err)
	}
}

func validateDecision(p *problems, where string, s RuleSpec) {
	if !contains(Outcomes, s.Outcome) {
		p.add("%s (%s) outcome %q must be one of %v", where, s.ID, s.Outcome, Outcomes)
	}
}
