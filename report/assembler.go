package report

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/liamcoop/loanlens/contract"
	"github.com/liamcoop/loanlens/finance"
	"github.com/liamcoop/loanlens/narrative"
	"github.com/liamcoop/loanlens/refdata"
	"github.com/liamcoop/loanlens/risk"
)

// Inputs are the outputs of the pipeline stages for one contract
type Inputs struct {
	Terms     *contract.ContractTerms
	Financial finance.Result
	Risk      risk.Assessment
	Narrative narrative.Narrative
}

const reasonNotFound = "not found in the contract text"

// criticalFields are the inputs every schedule-derived figure depends on
var criticalFields = []string{"principal", "rate", "term_months", "frequency"}

// dependencies lists, per metric, the fields it cannot be computed without
var dependencies = []struct {
	metric string
	fields []string
}{
	{"effective_annual_cost", criticalFields},
	{"nominal_effective_rate", criticalFields},
	{"npv_financing_cost", criticalFields},
	{"total_interest", criticalFields},
	{"total_fees", criticalFields},
	{"total_paid", criticalFields},
	{"benchmark", []string{"principal", "rate", "term_months"}},
	{"sensitivity", []string{"rate"}},
	{"prepayment_scenario", []string{"prepayment", "principal", "rate", "term_months"}},
}

// Assembler merges stage outputs into an AnalysisReport
type Assembler struct {
	ref   *refdata.Reference
	now   func() time.Time // Injectable clock for deterministic output
	newID func() uuid.UUID
}

// New creates an assembler bound to ref
func New(ref *refdata.Reference) *Assembler {
	return &Assembler{
		ref:   ref,
		now:   func() time.Time { return time.Now().UTC() },
		newID: uuid.New,
	}
}

// WithClock sets a custom clock function for deterministic output.
func (a *Assembler) WithClock(now func() time.Time) *Assembler {
	a.now = now
	return a
}

// WithIDs sets the source of report ids
func (a *Assembler) WithIDs(newID func() uuid.UUID) *Assembler {
	a.newID = newID
	return a
}

// Assemble builds the report. Metrics whose critical inputs are missing are forced unavailable,
// and every missing field or unavailable metric is listed with its reason.
func (a *Assembler) Assemble(in Inputs) *AnalysisReport {
	terms := in.Terms
	if terms == nil {
		terms = &contract.ContractTerms{}
	}

	costs := in.Financial.Costs
	schedules := in.Financial.Schedules
	missing := missingCritical(terms)
	if len(missing) > 0 {
		costs = enforceDependencies(costs, missing)
		if !costs.TotalPaid.Available {
			schedules = nil
		}
	}
	if schedules == nil {
		schedules = []finance.Schedule{}
	}
	if costs.CriticalPeriods == nil {
		costs.CriticalPeriods = []finance.CriticalPeriod{}
	}

	r := &AnalysisReport{
		ID:               a.newID(),
		ContractID:       terms.ContractID,
		GeneratedAt:      a.now(),
		ReferenceVersion: a.ref.Version,
		Terms:            terms,
		Financial:        Financial{Schedules: schedules, Costs: costs},
		Risk:             in.Risk,
		Sections:         in.Narrative.Sections,
		Recommendation:   in.Narrative.Recommendation,
		NeedsReview:      terms.NeedsReview(a.ref.ReviewThreshold),
		Suppressed:       in.Narrative.Suppressed,
	}
	if r.NeedsReview == nil {
		r.NeedsReview = []contract.ReviewItem{}
	}
	if r.Sections == nil {
		r.Sections = []narrative.Section{}
	}

	r.Unavailable = unavailableItems(terms, costs)
	r.Status = StatusComplete
	if len(r.Unavailable) > 0 {
		r.Status = StatusPartial
	}
	r.ExecutiveSummary = summarize(findings(in.Risk, costs, missing), a.ref.Report.SummaryCap)

	r.Warnings = append(r.Warnings, terms.Warnings...)
	r.Warnings = append(r.Warnings, in.Financial.Warnings...)
	r.Warnings = append(r.Warnings, in.Risk.Warnings...)
	r.Warnings = append(r.Warnings, in.Narrative.Warnings...)
	return r
}

// missingCritical maps each critical field that cannot be resolved to the reason why.
// Tranches stand in for a contract-level value only when every tranche has one;
// once tranches exist each of them needs its own principal.
func missingCritical(t *contract.ContractTerms) map[string]string {
	out := map[string]string{}
	tranchesHave := func(ok func(contract.Tranche) bool) bool {
		if len(t.Tranches) == 0 {
			return false
		}
		for _, tr := range t.Tranches {
			if !ok(tr) {
				return false
			}
		}
		return true
	}
	for _, tr := range t.Tranches {
		if !tr.Principal.Known() {
			out["principal"] = "tranche " + tr.Label + " principal unknown"
			break
		}
	}
	if len(t.Tranches) == 0 && !t.Principal.Known() {
		out["principal"] = reasonNotFound
	}
	if !t.Rate.Known() && !tranchesHave(func(tr contract.Tranche) bool { return tr.Rate.Known() }) {
		out["rate"] = reasonNotFound
	}
	if !t.TermMonths.Known() && !tranchesHave(func(tr contract.Tranche) bool { return tr.TermMonths.Known() }) {
		out["term_months"] = reasonNotFound
	}
	if !t.Frequency.Known() && !tranchesHave(func(tr contract.Tranche) bool { return tr.Frequency.Known() }) {
		out["frequency"] = reasonNotFound
	}
	if !t.Prepayment.Known() {
		out["prepayment"] = reasonNotFound
	}
	return out
}

// enforceDependencies marks every metric with a missing input unavailable, whatever the calculator returned
func enforceDependencies(c finance.CostMetrics, missing map[string]string) finance.CostMetrics {
	for _, d := range dependencies {
		field := firstMissing(d.fields, missing)
		if field == "" {
			continue
		}
		reason := "depends on " + field + ", which was not found"
		if why := missing[field]; why != reasonNotFound {
			reason = "depends on " + field + ": " + why
		}
		switch d.metric {
		case "effective_annual_cost":
			c.EffectiveAnnualCost = forceUnavailable(c.EffectiveAnnualCost, reason)
		case "nominal_effective_rate":
			c.NominalEffectiveRate = forceUnavailable(c.NominalEffectiveRate, reason)
		case "npv_financing_cost":
			c.NPVFinancingCost = forceUnavailable(c.NPVFinancingCost, reason)
		case "total_interest":
			c.TotalInterest = forceUnavailable(c.TotalInterest, reason)
		case "total_fees":
			c.TotalFees = forceUnavailable(c.TotalFees, reason)
		case "total_paid":
			c.TotalPaid = forceUnavailable(c.TotalPaid, reason)
		case "benchmark":
			if c.Benchmark.Available {
				c.Benchmark = finance.MarketComparison{Reason: reason}
			}
		case "sensitivity":
			if c.Sensitivity.Available {
				c.Sensitivity = finance.Sensitivity{Reason: reason}
			}
		case "prepayment_scenario":
			if c.Prepayment.Available {
				c.Prepayment = finance.PrepaymentScenario{Month: c.Prepayment.Month, Reason: reason}
			}
		}
	}
	if !c.TotalPaid.Available {
		c.CriticalPeriods = []finance.CriticalPeriod{}
	}
	return c
}

func firstMissing(fields []string, missing map[string]string) string {
	for _, f := range fields {
		if missing[f] != "" {
			return f
		}
	}
	return ""
}

func forceUnavailable(m finance.Metric, reason string) finance.Metric {
	if !m.Available {
		return m
	}
	return finance.Metric{Reason: reason}
}

// unavailableItems lists missing fields first, in field order, then unavailable metrics.
// Figures that do not apply to the contract (sensitivity of a fixed rate) are not gaps.
func unavailableItems(t *contract.ContractTerms, c finance.CostMetrics) []Unavailable {
	out := []Unavailable{}
	for _, fi := range t.Fields() {
		if fi.Status == contract.StatusFound || fi.Status == contract.StatusAmbiguous || contract.IsOptional(fi.Name) {
			continue
		}
		out = append(out, Unavailable{Item: fi.Name, Kind: KindField, Reason: reasonNotFound})
	}

	metric := func(name string, available bool, reason string) {
		if available || finance.NotApplicable(reason) {
			return
		}
		if reason == "" {
			reason = "not computed"
		}
		out = append(out, Unavailable{Item: name, Kind: KindMetric, Reason: reason})
	}
	metric("effective_annual_cost", c.EffectiveAnnualCost.Available, c.EffectiveAnnualCost.Reason)
	metric("nominal_effective_rate", c.NominalEffectiveRate.Available, c.NominalEffectiveRate.Reason)
	metric("npv_financing_cost", c.NPVFinancingCost.Available, c.NPVFinancingCost.Reason)
	metric("total_interest", c.TotalInterest.Available, c.TotalInterest.Reason)
	metric("total_fees", c.TotalFees.Available, c.TotalFees.Reason)
	metric("total_paid", c.TotalPaid.Available, c.TotalPaid.Reason)
	metric("benchmark", c.Benchmark.Available, c.Benchmark.Reason)
	metric("sensitivity", c.Sensitivity.Available, c.Sensitivity.Reason)
	metric("prepayment_scenario", c.Prepayment.Available, c.Prepayment.Reason)
	return out
}

// findings collects summary candidates: red flags, gaps in critical fields and a steep rate sensitivity
func findings(a risk.Assessment, c finance.CostMetrics, missing map[string]string) []Finding {
	out := make([]Finding, 0, len(a.RedFlags)+len(criticalFields)+1)
	for _, f := range a.RedFlags {
		out = append(out, Finding{
			Kind:     FindingRedFlag,
			RuleID:   f.RuleID,
			Title:    f.Name,
			Severity: f.Severity,
			Impact:   f.Impact,
			Detail:   f.Advice,
		})
	}
	for _, field := range criticalFields {
		why := missing[field]
		if why == "" {
			continue
		}
		out = append(out, Finding{
			Kind:     FindingExtractionGap,
			Title:    strings.ReplaceAll(field, "_", " ") + " could not be determined",
			Severity: risk.SeverityHigh,
			Detail:   "Metrics that depend on it are reported as unavailable (" + why + ").",
		})
	}
	if w, ok := c.Sensitivity.Worst(); ok && c.Sensitivity.Available && w.PaymentChangePct >= 10 {
		base := c.TotalInterest.Value
		out = append(out, Finding{
			Kind:     FindingSensitivity,
			Title:    fmt.Sprintf("Payments rise %.1f%% if the index rises %.0f bps", w.PaymentChangePct, w.DeltaBps),
			Severity: risk.SeverityMedium,
			Impact:   w.TotalInterest - base,
			Detail:   "Consider negotiating a rate cap.",
		})
	}
	return out
}

// summarize orders findings by severity then impact, highest first, and keeps the first limit.
// A non-positive limit keeps everything.
func summarize(in []Finding, limit int) []Finding {
	sort.SliceStable(in, func(i, j int) bool {
		a, b := in[i], in[j]
		if a.Severity.Rank() != b.Severity.Rank() {
			return a.Severity.Rank() > b.Severity.Rank()
		}
		return a.Impact > b.Impact
	})
	if limit > 0 && len(in) > limit {
		in = in[:limit]
	}
	return in
}
