package narrative

import (
	"fmt"
	"sort"

	"github.com/liamcoop/loanlens/risk"
	"github.com/liamcoop/loanlens/rules"
)

// Outcome is the final recommendation
type Outcome string

const (
	Accept    Outcome = "accept"
	Negotiate Outcome = "negotiate"
	Reject    Outcome = "reject"
)

// Valid reports whether o is a known outcome
func (o Outcome) Valid() bool {
	return o == Accept || o == Negotiate || o == Reject
}

// RenegotiationItem is a red-flagged term the borrower should push back on
type RenegotiationItem struct {
	Term     string        `json:"term"`
	RuleID   string        `json:"rule_id"`
	Fields   []string      `json:"fields"`
	Severity risk.Severity `json:"severity"`
	Impact   float64       `json:"impact"`
	Advice   string        `json:"advice,omitempty"`
}

// Recommendation is the decision with the rule that produced it
type Recommendation struct {
	Decision      Outcome             `json:"decision"`
	RuleID        string              `json:"rule_id"`
	Justification []string            `json:"justification"`
	Renegotiate   []RenegotiationItem `json:"renegotiate"`
}

// FallbackRuleID marks a decision taken because no decision rule matched
const FallbackRuleID = "fallback"

// decide runs the decision rules in priority order; the first match wins.
// Rules that fail to evaluate are skipped and reported.
func decide(en *rules.Engine, fallback string, facts map[string]any) (Outcome, string, []string) {
	var warnings []string
	if en != nil {
		for _, r := range en.Rules() {
			res, err := en.Evaluate(r.ID, facts)
			if err != nil {
				warnings = append(warnings, err.Error())
				continue
			}
			if !res.Matched {
				continue
			}
			o := Outcome(r.Outcome)
			if !o.Valid() {
				warnings = append(warnings, fmt.Sprintf("decision rule %s has unknown outcome %q", r.ID, r.Outcome))
				continue
			}
			return o, r.ID, warnings
		}
	}
	return Outcome(fallback), FallbackRuleID, warnings
}

// renegotiation lists every fired red flag, most severe first and then by financial impact
func renegotiation(flags []risk.RedFlag) []RenegotiationItem {
	items := make([]RenegotiationItem, 0, len(flags))
	for _, f := range flags {
		items = append(items, RenegotiationItem{
			Term:     f.Name,
			RuleID:   f.RuleID,
			Fields:   f.Fields,
			Severity: f.Severity,
			Impact:   f.Impact,
			Advice:   f.Advice,
		})
	}
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if a.Severity.Rank() != b.Severity.Rank() {
			return a.Severity.Rank() > b.Severity.Rank()
		}
		return a.Impact > b.Impact
	})
	return items
}
