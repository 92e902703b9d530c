package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/liamcoop/loanlens/finance"
	"github.com/liamcoop/loanlens/narrative"
	"github.com/liamcoop/loanlens/risk"
)

var sectionTitles = map[string]string{
	narrative.SectionRate:           "Rate Evaluation",
	narrative.SectionGuarantee:      "Guarantee Evaluation",
	narrative.SectionRisk:           "Risk Evaluation",
	narrative.SectionBenchmark:      "Benchmark Comparison",
	narrative.SectionRecommendation: "Recommendation",
}

// RenderMarkdown renders report as Markdown string.
func RenderMarkdown(r *AnalysisReport) string {
	var sb strings.Builder

	sb.WriteString("# Contract Analysis\n\n")
	sb.WriteString(fmt.Sprintf("Report: %s | Contract: %s\n\n", r.ID, r.ContractID))
	sb.WriteString(fmt.Sprintf("Generated: %s | Reference data: %s | Status: %s\n\n",
		r.GeneratedAt.Format(time.RFC3339), r.ReferenceVersion, r.Status))
	sb.WriteString(fmt.Sprintf("**Recommendation: %s**\n\n", strings.ToUpper(string(r.Recommendation.Decision))))

	// Executive summary
	sb.WriteString("## Executive Summary\n\n")
	if len(r.ExecutiveSummary) > 0 {
		sb.WriteString("| Severity | Finding | Impact |\n")
		sb.WriteString("|----------|---------|--------|\n")
		for _, f := range r.ExecutiveSummary {
			sb.WriteString(fmt.Sprintf("| %s | %s | %.2f |\n", f.Severity, escape(f.Title), f.Impact))
		}
	} else {
		sb.WriteString("No significant findings.\n")
	}
	sb.WriteString("\n")

	// Narrative
	for _, s := range r.Sections {
		title, ok := sectionTitles[s.Name]
		if !ok {
			title = s.Name
		}
		sb.WriteString(fmt.Sprintf("## %s\n\n", title))
		if len(s.Fragments) == 0 {
			sb.WriteString("Nothing to report.\n\n")
			continue
		}
		for _, f := range s.Fragments {
			sb.WriteString(f.Text)
			sb.WriteString("\n\n")
		}
	}

	if len(r.Recommendation.Renegotiate) > 0 {
		sb.WriteString("### Terms to Renegotiate\n\n")
		for i, it := range r.Recommendation.Renegotiate {
			sb.WriteString(fmt.Sprintf("%d. %s (%s)", i+1, it.Term, it.Severity))
			if it.Advice != "" {
				sb.WriteString(": " + it.Advice)
			}
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}

	// Financial
	c := r.Financial.Costs
	sb.WriteString("## Financial Metrics\n\n")
	sb.WriteString("| Metric | Value |\n")
	sb.WriteString("|--------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Effective annual cost | %s |\n", percent(c.EffectiveAnnualCost)))
	sb.WriteString(fmt.Sprintf("| Nominal rate | %s |\n", percent(c.NominalEffectiveRate)))
	sb.WriteString(fmt.Sprintf("| NPV of financing cost | %s |\n", amount(c.NPVFinancingCost)))
	sb.WriteString(fmt.Sprintf("| Total interest | %s |\n", amount(c.TotalInterest)))
	sb.WriteString(fmt.Sprintf("| Total fees | %s |\n", amount(c.TotalFees)))
	sb.WriteString(fmt.Sprintf("| Total paid | %s |\n", amount(c.TotalPaid)))
	if c.Benchmark.Available {
		segment := c.Benchmark.Benchmark.Sector
		if c.Benchmark.SectorDefaulted {
			segment += ", no sector in contract"
		}
		sb.WriteString(fmt.Sprintf("| Market reference | %.2f%% (%+.0f bps, %s) |\n", c.Benchmark.Benchmark.Rate*100, c.Benchmark.DeltaBps, escape(segment)))
	} else {
		sb.WriteString(fmt.Sprintf("| Market reference | unavailable (%s) |\n", escape(c.Benchmark.Reason)))
	}
	sb.WriteString("\n")

	if c.Sensitivity.Available {
		sb.WriteString("### Rate Sensitivity\n\n")
		sb.WriteString("| Shift (bps) | Average payment | Total interest | Payment change % | Effective annual cost | Final balance |\n")
		sb.WriteString("|-------------|-----------------|----------------|------------------|-----------------------|---------------|\n")
		for _, s := range c.Sensitivity.Scenarios {
			sb.WriteString(fmt.Sprintf("| %+.0f | %.2f | %.2f | %+.2f | %s | %.2f |\n",
				s.DeltaBps, s.AveragePayment, s.TotalInterest, s.PaymentChangePct, percent(s.EffectiveAnnualCost), s.FinalBalance))
		}
		sb.WriteString("\n")
	}

	if len(c.CriticalPeriods) > 0 {
		sb.WriteString("### Critical Periods\n\n")
		sb.WriteString("| Schedule | Month | Outflow | x Average |\n")
		sb.WriteString("|----------|-------|---------|-----------|\n")
		for _, p := range c.CriticalPeriods {
			sb.WriteString(fmt.Sprintf("| %s | %d | %.2f | %.2f |\n", p.Schedule, p.Month, p.Outflow, p.Ratio))
		}
		sb.WriteString("\n")
	}

	// Risk
	sb.WriteString("## Risk Scores\n\n")
	sb.WriteString(fmt.Sprintf("Aggregate: %.1f (%s)\n\n", r.Risk.Aggregate, r.Risk.Level))
	if len(r.Risk.Categories) > 0 {
		sb.WriteString("| Category | Score | Weight | Missing inputs |\n")
		sb.WriteString("|----------|-------|--------|----------------|\n")
		for _, cat := range risk.Categories {
			cs := r.Risk.Categories[cat]
			sb.WriteString(fmt.Sprintf("| %s | %.1f | %.2f | %s |\n", cat, cs.Score, cs.Weight, strings.Join(cs.MissingInputs, ", ")))
		}
		sb.WriteString("\n")
	}
	if len(r.Risk.RedFlags) > 0 {
		sb.WriteString("### Red Flags\n\n")
		sb.WriteString("| Severity | Flag | Fields | Impact |\n")
		sb.WriteString("|----------|------|--------|--------|\n")
		for _, f := range r.Risk.RedFlags {
			sb.WriteString(fmt.Sprintf("| %s | %s | %s | %.2f |\n", f.Severity, escape(f.Name), strings.Join(f.Fields, ", "), f.Impact))
		}
		sb.WriteString("\n")
	}

	// Gaps
	sb.WriteString("## Needs Review\n\n")
	if len(r.NeedsReview) > 0 {
		sb.WriteString("| Field | Status | Confidence |\n")
		sb.WriteString("|-------|--------|------------|\n")
		for _, it := range r.NeedsReview {
			sb.WriteString(fmt.Sprintf("| %s | %s | %.2f |\n", it.Field, it.Status, it.Confidence))
		}
	} else {
		sb.WriteString("Every field was extracted with high confidence.\n")
	}
	sb.WriteString("\n")

	if len(r.Unavailable) > 0 {
		sb.WriteString("## Unavailable\n\n")
		for _, u := range r.Unavailable {
			sb.WriteString(fmt.Sprintf("- %s (%s): %s\n", u.Item, u.Kind, u.Reason))
		}
		sb.WriteString("\n")
	}

	return sb.String()
}

func percent(m finance.Metric) string {
	if !m.Available {
		return "unavailable (" + escape(m.Reason) + ")"
	}
	return fmt.Sprintf("%.2f%%", m.Value*100)
}

func amount(m finance.Metric) string {
	if !m.Available {
		return "unavailable (" + escape(m.Reason) + ")"
	}
	return fmt.Sprintf("%.2f", m.Value)
}

func escape(s string) string {
	return strings.ReplaceAll(s, "|", "\\|")
}
