package risk

import (
	"fmt"
	"sort"
	"strings"

	"github.com/liamcoop/loanlens/contract"
	"github.com/liamcoop/loanlens/finance"
	"github.com/liamcoop/loanlens/refdata"
	"github.com/liamcoop/loanlens/rules"
)

// ConsistencyCategory is the category of flags raised for contradictory terms
const ConsistencyCategory = "consistency"

// Assessor scores contracts against one reference snapshot
type Assessor struct {
	ref *refdata.Reference
}

// New creates an assessor bound to ref
func New(ref *refdata.Reference) *Assessor {
	return &Assessor{ref: ref}
}

// Assess scores every category, fires the red-flag rules and combines both into the aggregate score.
// The aggregate is the weighted sum of category scores plus the severity penalty of every fired flag,
// clamped to [0, 100].
func (a *Assessor) Assess(terms *contract.ContractTerms) Assessment {
	market := finance.CompareToMarket(terms, a.ref)

	out := Assessment{
		Categories: make(map[Category]CategoryScore, len(Categories)),
		Market:     market,
	}

	var weighted float64
	for _, c := range Categories {
		cs := scorers[c](terms, market)
		cs.Weight = a.ref.Weights[string(c)]
		cs.Level = a.ref.Level(cs.Score)
		out.Categories[c] = cs
		weighted += cs.Weight * cs.Score
	}

	out.Inconsistencies = contract.CheckConsistency(terms, a.ref.Extraction.AmountTolerance)
	if out.Inconsistencies == nil {
		out.Inconsistencies = []contract.Inconsistency{}
	}
	flags := inconsistencyFlags(out.Inconsistencies)

	fired, warnings := a.redFlags(terms, market)
	flags = append(flags, fired...)
	out.Warnings = warnings
	sortFlags(flags)
	out.RedFlags = flags

	penalty := 0.0
	for _, f := range flags {
		penalty += a.ref.SeverityPenalty[string(f.Severity)]
	}
	out.Aggregate = clamp(weighted + penalty)
	out.Level = a.ref.Level(out.Aggregate)

	out.Strengths = strengths(terms, market, out.Categories)
	out.Weaknesses = weaknesses(terms, flags)
	return out
}

// redFlags evaluates the red-flag rule set. A rule that fails to evaluate is reported as a warning.
func (a *Assessor) redFlags(terms *contract.ContractTerms, market finance.MarketComparison) ([]RedFlag, []string) {
	if a.ref.RedFlags == nil {
		return nil, nil
	}
	facts := map[string]any{
		"terms":      terms.Facts(),
		"market":     market.Facts(),
		"thresholds": thresholdFacts(a.ref.Thresholds),
	}

	var flags []RedFlag
	var warnings []string
	for _, res := range a.ref.RedFlags.EvaluateAll(facts) {
		if res.Error != nil {
			warnings = append(warnings, res.Error.Error())
			continue
		}
		if !res.Matched {
			continue
		}
		r, _ := a.ref.RedFlags.Rule(res.RuleID)
		flags = append(flags, flagFromRule(r, res))
	}
	return flags, warnings
}

func flagFromRule(r *rules.Rule, res *rules.EvaluationResult) RedFlag {
	name := r.Name
	if name == "" {
		name = r.ID
	}
	fields := append([]string{}, r.Fields...)
	return RedFlag{
		RuleID:   r.ID,
		Name:     name,
		Category: r.Category,
		Severity: Severity(r.Severity),
		Fields:   fields,
		Impact:   res.Impact,
		Advice:   r.Advice,
	}
}

// thresholdFacts exposes the decision thresholds to rule expressions
func thresholdFacts(t map[string]float64) map[string]any {
	out := make(map[string]any, len(t))
	for k, v := range t {
		out[k] = v
	}
	return out
}

// ThresholdFacts is the "thresholds" object seen by rule expressions
func ThresholdFacts(ref *refdata.Reference) map[string]any {
	return thresholdFacts(ref.Thresholds)
}

func inconsistencyFlags(found []contract.Inconsistency) []RedFlag {
	out := make([]RedFlag, 0, len(found))
	for _, inc := range found {
		out = append(out, RedFlag{
			RuleID:   "inconsistent_terms." + inc.Code,
			Name:     "Contradictory terms: " + inc.Detail,
			Category: ConsistencyCategory,
			Severity: SeverityCritical,
			Fields:   append([]string{}, inc.Fields...),
			Advice:   "Clarify " + strings.Join(inc.Fields, ", ") + " with the lender before relying on any figure.",
		})
	}
	return out
}

// sortFlags orders flags by severity, then impact, highest first. Ties keep rule order.
func sortFlags(flags []RedFlag) {
	sort.SliceStable(flags, func(i, j int) bool {
		a, b := flags[i], flags[j]
		if a.Severity.Rank() != b.Severity.Rank() {
			return a.Severity.Rank() > b.Severity.Rank()
		}
		return a.Impact > b.Impact
	})
}

func strengths(t *contract.ContractTerms, m finance.MarketComparison, scores map[Category]CategoryScore) []string {
	out := []string{}
	if m.Available && m.DeltaBps < 0 {
		out = append(out, fmt.Sprintf("Rate %.0f bps below the market reference", -m.DeltaBps))
	}
	if t.Rate.Known() && t.Rate.Value.Behavior == contract.RateFixed {
		out = append(out, "Fixed rate gives predictable costs")
	}
	if t.IsVariable() && t.Rate.Value.Formula != nil && t.Rate.Value.Formula.Cap != nil {
		out = append(out, fmt.Sprintf("Cap at %.2f%% protects against rate increases", *t.Rate.Value.Formula.Cap*100))
	}
	if t.Prepayment.Known() && t.Prepayment.Value.Allowed && t.Prepayment.Value.PenaltyPct == 0 {
		out = append(out, "Prepayment allowed without penalty")
	}
	if t.GraceMonths.Known() && t.GraceMonths.Value > 0 {
		out = append(out, fmt.Sprintf("Grace period of %d months", t.GraceMonths.Value))
	}
	if t.TermMonths.Known() && t.TermMonths.Value >= 36 {
		out = append(out, "Long term spreads repayment over time")
	}
	for _, c := range Categories {
		if cs := scores[c]; cs.Score <= 20 && len(cs.MissingInputs) == 0 {
			out = append(out, "Low "+strings.ReplaceAll(string(c), "_", " ")+" risk")
		}
	}
	return out
}

func weaknesses(t *contract.ContractTerms, flags []RedFlag) []string {
	out := []string{}
	for _, f := range flags {
		out = append(out, f.Name)
	}
	if t.Guarantee.Known() && t.Guarantee.Value.Type == contract.GuaranteeMixed {
		out = append(out, "Both collateral and personal guarantees are required")
	}
	for _, c := range t.Covenants() {
		if c.Metric == "dscr" && c.Threshold >= 1.5 {
			out = append(out, fmt.Sprintf("DSCR covenant of at least %.2f is demanding", c.Threshold))
		}
	}
	if len(t.Tranches) > 2 {
		out = append(out, fmt.Sprintf("Complex structure with %d tranches", len(t.Tranches)))
	}
	return out
}
