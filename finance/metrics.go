package finance

import "strings"

// Metric is a computed figure that may be unavailable. Reason explains why when it is.
type Metric struct {
	Value     float64 `json:"value"`
	Available bool    `json:"available"`
	Reason    string  `json:"reason,omitempty"`
}

const notApplicable = "not applicable: "

// NotApplicable reports whether an unavailable reason means the figure does not apply to
// the contract, as opposed to an input that could not be determined
func NotApplicable(reason string) bool {
	return strings.HasPrefix(reason, notApplicable)
}

func known(v float64) Metric {
	return Metric{Value: v, Available: true}
}

func unavailable(reason string) Metric {
	return Metric{Reason: reason}
}

// SensitivityScenario is the effect of shifting the index path by DeltaBps
type SensitivityScenario struct {
	DeltaBps         float64 `json:"delta_bps"`
	AveragePayment   float64 `json:"average_payment"`
	TotalInterest    float64 `json:"total_interest"`
	PaymentChangePct float64 `json:"payment_change_pct"`
	// EffectiveAnnualCost is unavailable when the shifted flows have no rate of return
	EffectiveAnnualCost Metric `json:"effective_annual_cost"`
	// FinalBalance is the principal still owed after the last scheduled period
	FinalBalance float64 `json:"final_balance"`
}

// Sensitivity is the rate sensitivity table of a variable-rate contract
type Sensitivity struct {
	Available bool                  `json:"available"`
	Reason    string                `json:"reason,omitempty"`
	Scenarios []SensitivityScenario `json:"scenarios,omitempty"`
}

// Worst returns the scenario with the largest upward shift
func (s Sensitivity) Worst() (SensitivityScenario, bool) {
	var worst SensitivityScenario
	found := false
	for _, sc := range s.Scenarios {
		if sc.DeltaBps > 0 && (!found || sc.DeltaBps > worst.DeltaBps) {
			worst, found = sc, true
		}
	}
	return worst, found
}

// PrepaymentScenario prices a full early repayment at Month.
// InterestSaved counts the interest and periodic fees that are no longer due.
type PrepaymentScenario struct {
	Available      bool    `json:"available"`
	Reason         string  `json:"reason,omitempty"`
	Month          int     `json:"month"`
	Balance        float64 `json:"balance"`
	InterestSaved  float64 `json:"interest_saved"`
	Penalty        float64 `json:"penalty"`
	PenaltyApplies bool    `json:"penalty_applies"`
	NetSaving      float64 `json:"net_saving"`
}

// CriticalPeriod is a payment well above the average of its schedule
type CriticalPeriod struct {
	Schedule string  `json:"schedule,omitempty"`
	Index    int     `json:"index"`
	Month    int     `json:"month"`
	Outflow  float64 `json:"outflow"`
	Ratio    float64 `json:"ratio"`
}

// CostMetrics are the contract-level cost figures. Rates are annual fractions.
type CostMetrics struct {
	EffectiveAnnualCost  Metric             `json:"effective_annual_cost"`
	NominalEffectiveRate Metric             `json:"nominal_effective_rate"`
	NPVFinancingCost     Metric             `json:"npv_financing_cost"`
	DiscountRate         float64            `json:"discount_rate"`
	TotalInterest        Metric             `json:"total_interest"`
	TotalFees            Metric             `json:"total_fees"`
	TotalPaid            Metric             `json:"total_paid"`
	Sensitivity          Sensitivity        `json:"sensitivity"`
	Benchmark            MarketComparison   `json:"benchmark"`
	Prepayment           PrepaymentScenario `json:"prepayment"`
	CriticalPeriods      []CriticalPeriod   `json:"critical_periods"`
}

// Unavailable marks every schedule-derived metric unavailable for the same reason
func Unavailable(reason string) CostMetrics {
	return CostMetrics{
		EffectiveAnnualCost:  unavailable(reason),
		NominalEffectiveRate: unavailable(reason),
		NPVFinancingCost:     unavailable(reason),
		TotalInterest:        unavailable(reason),
		TotalFees:            unavailable(reason),
		TotalPaid:            unavailable(reason),
		Sensitivity:          Sensitivity{Reason: reason},
		Prepayment:           PrepaymentScenario{Reason: reason},
		CriticalPeriods:      []CriticalPeriod{},
	}
}

// Facts flattens the metrics into the "metrics" object seen by rule expressions.
// Percent keys are in percent units; every key is present whether or not the metric is available.
func (m CostMetrics) Facts() map[string]any {
	f := map[string]any{
		"eac_available":     m.EffectiveAnnualCost.Available,
		"eac_pct":           m.EffectiveAnnualCost.Value * 100,
		"eac_reason":        m.EffectiveAnnualCost.Reason,
		"nominal_rate_pct":  m.NominalEffectiveRate.Value * 100,
		"npv_available":     m.NPVFinancingCost.Available,
		"npv_cost":          m.NPVFinancingCost.Value,
		"discount_rate_pct": m.DiscountRate * 100,

		"total_interest": m.TotalInterest.Value,
		"total_fees":     m.TotalFees.Value,
		"total_paid":     m.TotalPaid.Value,

		"benchmark_available": m.Benchmark.Available,
		"benchmark_delta_bps": m.Benchmark.DeltaBps,
		"benchmark_rate_pct":  m.Benchmark.Benchmark.Rate * 100,
		"benchmark_reason":    m.Benchmark.Reason,

		"benchmark_sector_defaulted": m.Benchmark.SectorDefaulted,

		"sensitivity_available":    m.Sensitivity.Available,
		"max_delta_bps":            0.0,
		"max_payment_increase_pct": 0.0,

		"prepayment_available":  m.Prepayment.Available,
		"prepayment_penalty":    m.Prepayment.Penalty,
		"prepayment_net_saving": m.Prepayment.NetSaving,

		"critical_period_count": len(m.CriticalPeriods),
	}
	if w, ok := m.Sensitivity.Worst(); ok {
		f["max_delta_bps"] = w.DeltaBps
		f["max_payment_increase_pct"] = w.PaymentChangePct
	}
	return f
}

// criticalPeriods lists periods whose outflow exceeds factor times the schedule average
func criticalPeriods(schedules []Schedule, factor float64) []CriticalPeriod {
	out := []CriticalPeriod{}
	if factor <= 0 {
		return out
	}
	for _, s := range schedules {
		avg := s.AveragePayment()
		if avg <= 0 {
			continue
		}
		for i, p := range s.Periods {
			outflow := p.Outflow()
			if i == len(s.Periods)-1 {
				outflow += s.Balloon
			}
			if outflow > factor*avg {
				out = append(out, CriticalPeriod{
					Schedule: s.Label,
					Index:    p.Index,
					Month:    p.Month,
					Outflow:  outflow,
					Ratio:    outflow / avg,
				})
			}
		}
	}
	return out
}

// cashFlows merges schedules into one monthly vector from the borrower's side:
// flows[0] is the net amount received, later entries are payments (negative).
func cashFlows(schedules []Schedule) []float64 {
	months := 0
	for _, s := range schedules {
		if len(s.Periods) > 0 {
			months = max(months, s.Periods[len(s.Periods)-1].Month)
		}
	}
	flows := make([]float64, months+1)
	for _, s := range schedules {
		flows[0] += s.Disbursement() - s.UpfrontFees
		for _, p := range s.Periods {
			flows[p.Month] -= p.Outflow()
		}
		if n := len(s.Periods); n > 0 {
			flows[s.Periods[n-1].Month] -= s.Balloon
		}
	}
	return flows
}

// presentCost is the present value of all payments at an annual effective discount
// rate, less the net amount received
func presentCost(flows []float64, annual float64) float64 {
	payments := make([]float64, len(flows))
	for k := 1; k < len(flows); k++ {
		payments[k] = -flows[k]
	}
	return NPV(monthlyRate(annual), payments) - flows[0]
}
