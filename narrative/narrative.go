// Package narrative turns terms, costs and risk into report text and a recommendation.
// Fragments and decisions come from declarative rule sets in the reference data.
package narrative

import (
	"errors"
	"strings"

	"github.com/liamcoop/loanlens/contract"
	"github.com/liamcoop/loanlens/finance"
	"github.com/liamcoop/loanlens/refdata"
	"github.com/liamcoop/loanlens/risk"
	"github.com/liamcoop/loanlens/rules"
)

// Report sections, in the order they are rendered
const (
	SectionRate           = "rate_evaluation"
	SectionGuarantee      = "guarantee_evaluation"
	SectionRisk           = "risk_evaluation"
	SectionBenchmark      = "benchmark_comparison"
	SectionRecommendation = "recommendation_justification"
)

// Sections lists the section taxonomy in render order
var Sections = []string{SectionRate, SectionGuarantee, SectionRisk, SectionBenchmark, SectionRecommendation}

var errNoTemplate = errors.New("no template")

// Fragment is one rendered narrative rule
type Fragment struct {
	RuleID   string `json:"rule_id"`
	Priority int    `json:"priority"`
	Text     string `json:"text"`
}

// Section groups fragments, highest priority first
type Section struct {
	Name      string     `json:"name"`
	Fragments []Fragment `json:"fragments"`
}

// Suppression records a matched rule that produced no text
type Suppression struct {
	RuleID string `json:"rule_id"`
	Reason string `json:"reason"`
}

// Narrative is the composed text and recommendation of one analysis
type Narrative struct {
	Sections       []Section      `json:"sections"`
	Recommendation Recommendation `json:"recommendation"`
	Suppressed     []Suppression  `json:"suppressed,omitempty"`
	Warnings       []string       `json:"warnings,omitempty"`
}

// Section returns the named section
func (n *Narrative) Section(name string) (Section, bool) {
	for _, s := range n.Sections {
		if s.Name == name {
			return s, true
		}
	}
	return Section{}, false
}

// Engine composes narratives against one reference snapshot
type Engine struct {
	ref *refdata.Reference
}

// New creates a narrative engine bound to ref
func New(ref *refdata.Reference) *Engine {
	return &Engine{ref: ref}
}

// Compose decides the recommendation, then renders every matching fragment into its section.
// A fragment whose required fields are not certain is suppressed, as are lower-priority
// exclusive fragments of a group that already produced text.
func (e *Engine) Compose(terms *contract.ContractTerms, costs finance.CostMetrics, assessment risk.Assessment) Narrative {
	facts := map[string]any{
		"terms":      terms.Facts(),
		"market":     assessment.Market.Facts(),
		"metrics":    costs.Facts(),
		"risk":       assessment.Facts(),
		"flags":      assessment.FlagFacts(),
		"thresholds": risk.ThresholdFacts(e.ref),
	}

	var n Narrative
	outcome, ruleID, warnings := decide(e.ref.Decisions, e.ref.Fallback, facts)
	n.Warnings = append(n.Warnings, warnings...)

	rec := Recommendation{Decision: outcome, RuleID: ruleID, Renegotiate: []RenegotiationItem{}}
	if outcome == Negotiate {
		rec.Renegotiate = renegotiation(assessment.RedFlags)
	}
	firstTerm := ""
	if len(rec.Renegotiate) > 0 {
		firstTerm = strings.ToLower(rec.Renegotiate[0].Term)
	}
	facts["decision"] = map[string]any{
		"outcome":           string(outcome),
		"rule_id":           ruleID,
		"renegotiate_count": len(rec.Renegotiate),
		"first_term":        firstTerm,
		"review_count":      len(terms.NeedsReview(e.ref.ReviewThreshold)),
	}

	sections := e.fragments(terms, facts, &n)
	for _, name := range Sections {
		n.Sections = append(n.Sections, Section{Name: name, Fragments: sections[name]})
	}

	rec.Justification = []string{}
	for _, f := range sections[SectionRecommendation] {
		rec.Justification = append(rec.Justification, f.Text)
	}
	n.Recommendation = rec
	return n
}

func (e *Engine) fragments(terms *contract.ContractTerms, facts map[string]any, n *Narrative) map[string][]Fragment {
	out := make(map[string][]Fragment, len(Sections))
	for _, s := range Sections {
		out[s] = []Fragment{}
	}
	if e.ref.Narrative == nil {
		return out
	}

	certain := certainFields(terms, e.ref.ReviewThreshold)
	taken := map[string]string{}

	// rules come back highest priority first, so the first exclusive match of a group wins
	for _, res := range e.ref.Narrative.EvaluateAll(facts) {
		if res.Error != nil {
			n.Warnings = append(n.Warnings, res.Error.Error())
			continue
		}
		if !res.Matched {
			continue
		}
		r, _ := e.ref.Narrative.Rule(res.RuleID)

		if field, ok := uncertainRequirement(r, certain); ok {
			n.Suppressed = append(n.Suppressed, Suppression{RuleID: r.ID, Reason: "requires " + field + " which is not certain"})
			continue
		}
		group := exclusionGroup(r)
		if group != "" {
			if winner, ok := taken[group]; ok {
				n.Suppressed = append(n.Suppressed, Suppression{RuleID: r.ID, Reason: "excluded by " + winner})
				continue
			}
		}

		text, err := e.render(r.ID, facts)
		if err != nil {
			n.Warnings = append(n.Warnings, "narrative "+r.ID+": "+err.Error())
			continue
		}
		if group != "" {
			taken[group] = r.ID
		}
		section, ok := out[r.Section]
		if !ok {
			n.Warnings = append(n.Warnings, "narrative "+r.ID+": unknown section "+r.Section)
			continue
		}
		out[r.Section] = append(section, Fragment{RuleID: r.ID, Priority: r.Priority, Text: text})
	}
	return out
}

func (e *Engine) render(ruleID string, facts map[string]any) (string, error) {
	t, ok := e.ref.Template(ruleID)
	if !ok {
		return "", errNoTemplate
	}
	var b strings.Builder
	if err := t.Execute(&b, facts); err != nil {
		return "", err
	}
	return strings.TrimSpace(b.String()), nil
}

// exclusionGroup is the scope in which an exclusive rule suppresses lower-priority ones
func exclusionGroup(r *rules.Rule) string {
	if !r.Exclusive {
		return ""
	}
	if r.Group != "" {
		return r.Section + "/" + r.Group
	}
	return r.Section
}

func certainFields(terms *contract.ContractTerms, threshold float64) map[string]bool {
	out := map[string]bool{}
	for _, fi := range terms.Fields() {
		out[fi.Name] = fi.Status == contract.StatusFound && fi.Confidence >= threshold && !fi.NeedsReview
	}
	return out
}

func uncertainRequirement(r *rules.Rule, certain map[string]bool) (string, bool) {
	for _, f := range r.Requires {
		if !certain[f] {
			return f, true
		}
	}
	return "", false
}
