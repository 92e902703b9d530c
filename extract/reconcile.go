package extract

import (
	"math"
	"sort"
	"strings"

	"github.com/liamcoop/loanlens/contract"
	"github.com/liamcoop/loanlens/refdata"
)

// merge combines the two strategies' candidates for one field.
// a wins ties; the result depends only on the candidates, never on which strategy finished first.
func merge[T any](a, b *contract.Candidate[T], agree func(x, y T) bool, factor float64) contract.Field[T] {
	switch {
	case a == nil && b == nil:
		return contract.Missing[T]()
	case b == nil:
		return contract.Found(a.Value, a.Confidence, a.Source)
	case a == nil:
		return contract.Found(b.Value, b.Confidence, b.Source)
	}

	primary, other := a, b
	if b.Confidence > a.Confidence {
		primary, other = b, a
	}

	if agree(a.Value, b.Value) {
		conf := 1 - (1-a.Confidence)*(1-b.Confidence)
		return contract.Found(primary.Value, round(conf), primary.Source)
	}

	return contract.Field[T]{
		Value:        primary.Value,
		Status:       contract.StatusAmbiguous,
		Confidence:   round(primary.Confidence * factor),
		Source:       primary.Source,
		Alternatives: []contract.Candidate[T]{*primary, *other},
	}
}

func round(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}

// Reconcile merges the findings of the pattern and semantic strategies into one terms record.
// Tolerances come from reference data. Tranches, the contract id and review flags are set by the Extractor.
func Reconcile(pattern, semantic Findings, tol refdata.ExtractionConfig) *contract.ContractTerms {
	f := tol.AmbiguityFactor
	amounts := func(x, y float64) bool { return relClose(x, y, tol.AmountTolerance) }

	return &contract.ContractTerms{
		Principal: merge(pattern.Principal, semantic.Principal, func(x, y contract.Money) bool {
			return sameCurrency(x.Currency, y.Currency) && amounts(x.Float(), y.Float())
		}, f),
		Rate: merge(pattern.Rate, semantic.Rate, func(x, y contract.Rate) bool {
			return ratesAgree(x, y, tol.RateToleranceBps)
		}, f),
		TermMonths: merge(pattern.TermMonths, semantic.TermMonths, equal[int], f),
		Frequency:  merge(pattern.Frequency, semantic.Frequency, equal[contract.Frequency], f),
		Guarantee: merge(pattern.Guarantee, semantic.Guarantee, func(x, y contract.Guarantee) bool {
			return x.Type == y.Type
		}, f),
		Fees: merge(pattern.Fees, semantic.Fees, func(x, y []contract.Fee) bool {
			return feesAgree(x, y, tol.AmountTolerance)
		}, f),
		Prepayment: merge(pattern.Prepayment, semantic.Prepayment, func(x, y contract.Prepayment) bool {
			return x.Allowed == y.Allowed && math.Abs(x.PenaltyPct-y.PenaltyPct) < 0.01
		}, f),
		Default: merge(pattern.Default, semantic.Default, func(x, y contract.DefaultClause) bool {
			return x.Acceleration == y.Acceleration && x.TriggerCount == y.TriggerCount
		}, f),
		SpecialClauses: merge(pattern.SpecialClauses, semantic.SpecialClauses, clausesAgree, f),
		GraceMonths:    merge(pattern.GraceMonths, semantic.GraceMonths, equal[int], f),
		Balloon: merge(pattern.Balloon, semantic.Balloon, func(x, y contract.Balloon) bool {
			return amounts(x.Amount.InexactFloat64(), y.Amount.InexactFloat64())
		}, f),
		PaymentCount: merge(pattern.PaymentCount, semantic.PaymentCount, equal[int], f),
		Lender:       merge(pattern.Lender, semantic.Lender, sameText, f),
		Borrower:     merge(pattern.Borrower, semantic.Borrower, sameText, f),
		Sector:       merge(pattern.Sector, semantic.Sector, sameText, f),
		Jurisdiction: merge(pattern.Jurisdiction, semantic.Jurisdiction, sameText, f),
	}
}

func equal[T comparable](x, y T) bool {
	return x == y
}

func relClose(x, y, tol float64) bool {
	m := math.Max(math.Abs(x), math.Abs(y))
	if m == 0 {
		return true
	}
	return math.Abs(x-y)/m <= tol
}

func sameCurrency(x, y string) bool {
	return x == "" || y == "" || strings.EqualFold(x, y)
}

func sameText(x, y string) bool {
	return fold(strings.TrimSpace(x)) == fold(strings.TrimSpace(y))
}

func ratesAgree(x, y contract.Rate, bps float64) bool {
	if x.Behavior != y.Behavior {
		return false
	}
	tol := bps/10000 + 1e-12
	if x.Behavior == contract.RateFixed {
		return math.Abs(x.Annual-y.Annual) <= tol
	}
	if x.Formula == nil || y.Formula == nil {
		return x.Formula == nil && y.Formula == nil && math.Abs(x.Annual-y.Annual) <= tol
	}
	return strings.EqualFold(x.Formula.Index, y.Formula.Index) &&
		math.Abs(x.Formula.SpreadBps-y.Formula.SpreadBps) <= bps+1e-9 &&
		boundsAgree(x.Formula.Cap, y.Formula.Cap, tol) &&
		boundsAgree(x.Formula.Floor, y.Formula.Floor, tol)
}

// boundsAgree compares caps or floors; a bound only one strategy saw is not a disagreement
func boundsAgree(x, y *float64, tol float64) bool {
	if x == nil || y == nil {
		return true
	}
	return math.Abs(*x-*y) <= tol
}

func feesAgree(x, y []contract.Fee, tol float64) bool {
	if len(x) != len(y) {
		return false
	}
	xs := sortedFees(x)
	ys := sortedFees(y)
	for i := range xs {
		a, b := xs[i], ys[i]
		if a.Label != b.Label || a.Kind != b.Kind {
			return false
		}
		if a.Kind == contract.FeePercent && math.Abs(a.Percent-b.Percent) > 0.005 {
			return false
		}
		if a.Kind == contract.FeeFixed && !relClose(a.Amount.InexactFloat64(), b.Amount.InexactFloat64(), tol) {
			return false
		}
	}
	return true
}

func sortedFees(fees []contract.Fee) []contract.Fee {
	out := append([]contract.Fee(nil), fees...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Label < out[j].Label })
	return out
}

func clausesAgree(x, y []contract.SpecialClause) bool {
	count := func(cs []contract.SpecialClause) map[contract.ClauseKind]int {
		m := make(map[contract.ClauseKind]int)
		for _, c := range cs {
			m[c.Kind]++
		}
		return m
	}
	cx, cy := count(x), count(y)
	if len(cx) != len(cy) {
		return false
	}
	for k, n := range cx {
		if cy[k] != n {
			return false
		}
	}
	return true
}
