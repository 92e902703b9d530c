package contract

import (
	"fmt"
	"math"
)

// Inconsistency is a contradiction between two or more extracted terms
type Inconsistency struct {
	Code   string   `json:"code"`
	Fields []string `json:"fields"`
	Detail string   `json:"detail"`
}

// CheckConsistency cross-checks extracted terms against each other.
// amountTolerance is relative (0.005 = 0.5%).
func CheckConsistency(t *ContractTerms, amountTolerance float64) []Inconsistency {
	var out []Inconsistency

	if t.PaymentCount.Known() && t.TermMonths.Known() && t.Frequency.Known() && t.Frequency.Value != Bullet {
		ppy := t.Frequency.Value.PeriodsPerYear()
		if ppy > 0 && t.TermMonths.Value*ppy%12 == 0 {
			implied := t.TermMonths.Value * ppy / 12
			if implied != t.PaymentCount.Value {
				out = append(out, Inconsistency{
					Code:   "payment_count_mismatch",
					Fields: []string{"payment_count", "term_months", "frequency"},
					Detail: fmt.Sprintf("%d %s payments stated but a %d-month term implies %d",
						t.PaymentCount.Value, t.Frequency.Value, t.TermMonths.Value, implied),
				})
			}
		}
	}

	if t.GraceMonths.Known() && t.TermMonths.Known() && t.GraceMonths.Value >= t.TermMonths.Value {
		out = append(out, Inconsistency{
			Code:   "grace_exceeds_term",
			Fields: []string{"grace_months", "term_months"},
			Detail: fmt.Sprintf("grace period of %d months is not shorter than the %d-month term",
				t.GraceMonths.Value, t.TermMonths.Value),
		})
	}

	if t.Rate.Known() && t.Rate.Value.Behavior == RateFixed && (t.Rate.Value.Annual <= 0 || t.Rate.Value.Annual >= 1) {
		out = append(out, Inconsistency{
			Code:   "rate_out_of_range",
			Fields: []string{"rate"},
			Detail: fmt.Sprintf("annual rate %.2f%% is outside the plausible range", t.Rate.Value.Annual*100),
		})
	}

	if t.Balloon.Known() && t.Principal.Known() && t.Balloon.Value.Amount.GreaterThan(t.Principal.Value.Amount) {
		out = append(out, Inconsistency{
			Code:   "balloon_exceeds_principal",
			Fields: []string{"balloon", "principal"},
			Detail: fmt.Sprintf("balloon of %s exceeds principal of %s",
				t.Balloon.Value.Amount.StringFixed(2), t.Principal.Value.Amount.StringFixed(2)),
		})
	}

	if len(t.Tranches) > 1 && t.Principal.Known() {
		sum := 0.0
		complete := true
		for _, tr := range t.Tranches {
			if !tr.Principal.Known() {
				complete = false
				break
			}
			sum += tr.Principal.Value.Float()
		}
		total := t.Principal.Value.Float()
		if complete && total > 0 && math.Abs(sum-total)/total > amountTolerance {
			out = append(out, Inconsistency{
				Code:   "tranche_sum_mismatch",
				Fields: []string{"principal", "tranches"},
				Detail: fmt.Sprintf("tranches add up to %.2f but the stated total is %.2f", sum, total),
			})
		}
	}

	return out
}
