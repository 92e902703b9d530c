// Package report assembles the outputs of one analysis into a single serializable record
// and renders it for people (Markdown) and spreadsheets (CSV).
package report

import (
	"time"

	"github.com/google/uuid"

	"github.com/liamcoop/loanlens/contract"
	"github.com/liamcoop/loanlens/finance"
	"github.com/liamcoop/loanlens/narrative"
	"github.com/liamcoop/loanlens/risk"
)

// Status tells whether every field and metric of the report could be produced
type Status string

const (
	StatusComplete Status = "complete"
	StatusPartial  Status = "partial"
)

// Finding kinds
const (
	FindingRedFlag       = "red_flag"
	FindingExtractionGap = "extraction_gap"
	FindingSensitivity   = "rate_sensitivity"
)

// Item kinds of the unavailable list
const (
	KindField  = "field"
	KindMetric = "metric"
)

// Finding is one line of the executive summary
type Finding struct {
	Kind     string        `json:"kind"`
	RuleID   string        `json:"rule_id,omitempty"`
	Title    string        `json:"title"`
	Severity risk.Severity `json:"severity"`
	Impact   float64       `json:"impact"`
	Detail   string        `json:"detail,omitempty"`
}

// Unavailable names a field or metric the report could not provide, and why
type Unavailable struct {
	Item   string `json:"item"`
	Kind   string `json:"kind"`
	Reason string `json:"reason"`
}

// Financial is the detailed financial section
type Financial struct {
	Schedules []finance.Schedule  `json:"schedules"`
	Costs     finance.CostMetrics `json:"costs"`
}

// AnalysisReport is the complete result of analyzing one contract
type AnalysisReport struct {
	ID               uuid.UUID                `json:"id"`
	ContractID       uuid.UUID                `json:"contract_id"`
	GeneratedAt      time.Time                `json:"generated_at"`
	ReferenceVersion string                   `json:"reference_version"`
	Status           Status                   `json:"status"`
	Terms            *contract.ContractTerms  `json:"terms"`
	Financial        Financial                `json:"financial"`
	Risk             risk.Assessment          `json:"risk"`
	Sections         []narrative.Section      `json:"sections"`
	Recommendation   narrative.Recommendation `json:"recommendation"`
	ExecutiveSummary []Finding                `json:"executive_summary"`
	NeedsReview      []contract.ReviewItem    `json:"needs_review"`
	Unavailable      []Unavailable            `json:"unavailable"`
	Suppressed       []narrative.Suppression  `json:"suppressed,omitempty"`
	Warnings         []string                 `json:"warnings,omitempty"`
}

// Section returns the named narrative section
func (r *AnalysisReport) Section(name string) (narrative.Section, bool) {
	for _, s := range r.Sections {
		if s.Name == name {
			return s, true
		}
	}
	return narrative.Section{}, false
}

// IsUnavailable reports whether item is in the unavailable list
func (r *AnalysisReport) IsUnavailable(item string) bool {
	for _, u := range r.Unavailable {
		if u.Item == item {
			return true
		}
	}
	return false
}
