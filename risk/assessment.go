// Package risk scores the risk categories of a contract and raises red flags
// from the rule set held in the reference data.
package risk

import (
	"github.com/liamcoop/loanlens/contract"
	"github.com/liamcoop/loanlens/finance"
)

// Category is a risk dimension scored from 0 (no risk) to 100 (maximum risk)
type Category string

const (
	Liquidity    Category = "liquidity"
	InterestRate Category = "interest_rate"
	Operational  Category = "operational"
	Legal        Category = "legal"
	Prepayment   Category = "prepayment"
)

// Categories lists every scored category in report order
var Categories = []Category{Liquidity, InterestRate, Operational, Legal, Prepayment}

// Severity grades a red flag
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
)

// Rank orders severities, critical highest
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 3
	case SeverityHigh:
		return 2
	case SeverityMedium:
		return 1
	default:
		return 0
	}
}

// Driver is one input that moved a category score, with the points it added or removed
type Driver struct {
	Factor string  `json:"factor"`
	Points float64 `json:"points"`
}

// CategoryScore is the score of one category and what produced it
type CategoryScore struct {
	Score         float64  `json:"score"`
	Level         string   `json:"level"`
	Weight        float64  `json:"weight"`
	Drivers       []Driver `json:"drivers"`
	MissingInputs []string `json:"missing_inputs"`
}

// RedFlag is a fired red-flag rule
type RedFlag struct {
	RuleID   string   `json:"rule_id"`
	Name     string   `json:"name"`
	Category string   `json:"category"`
	Severity Severity `json:"severity"`
	Fields   []string `json:"fields"`
	Impact   float64  `json:"impact"`
	Advice   string   `json:"advice,omitempty"`
}

// Assessment is the full risk view of one contract
type Assessment struct {
	Categories      map[Category]CategoryScore `json:"categories"`
	Aggregate       float64                    `json:"aggregate"`
	Level           string                     `json:"level"`
	RedFlags        []RedFlag                  `json:"red_flags"`
	Inconsistencies []contract.Inconsistency   `json:"inconsistencies"`
	Market          finance.MarketComparison   `json:"market"`
	Strengths       []string                   `json:"strengths"`
	Weaknesses      []string                   `json:"weaknesses"`
	Warnings        []string                   `json:"warnings,omitempty"`
}

// CountBySeverity counts fired flags of one severity
func (a *Assessment) CountBySeverity(s Severity) int {
	n := 0
	for _, f := range a.RedFlags {
		if f.Severity == s {
			n++
		}
	}
	return n
}

// Facts flattens the scores into the "risk" object seen by rule expressions
func (a *Assessment) Facts() map[string]any {
	f := map[string]any{
		"aggregate":       a.Aggregate,
		"level":           a.Level,
		"inconsistencies": len(a.Inconsistencies),
	}
	for _, c := range Categories {
		f[string(c)] = a.Categories[c].Score
	}
	return f
}

// FlagFacts summarizes the fired flags into the "flags" object seen by rule expressions
func (a *Assessment) FlagFacts() map[string]any {
	ids := make([]string, 0, len(a.RedFlags))
	for _, f := range a.RedFlags {
		ids = append(ids, f.RuleID)
	}
	return map[string]any{
		"total":    len(a.RedFlags),
		"critical": a.CountBySeverity(SeverityCritical),
		"high":     a.CountBySeverity(SeverityHigh),
		"medium":   a.CountBySeverity(SeverityMedium),
		"ids":      ids,
	}
}
