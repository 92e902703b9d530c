package finance

import (
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liamcoop/loanlens/contract"
	"github.com/liamcoop/loanlens/refdata"
)

func fixedRate(annual float64) contract.Rate {
	return contract.Rate{Annual: annual, Basis: contract.BasisNominal, Behavior: contract.RateFixed}
}

func loanTerms(principal, annual float64, months int) *contract.ContractTerms {
	return &contract.ContractTerms{
		Principal:  contract.Found(contract.NewMoney(principal, "USD"), 0.95, nil),
		Rate:       contract.Found(fixedRate(annual), 0.95, nil),
		TermMonths: contract.Found(months, 0.95, nil),
		Frequency:  contract.Found(contract.Monthly, 0.95, nil),
	}
}

func TestAmortizeFrenchAnnuity(t *testing.T) {
	s, err := Amortize(Loan{Principal: 1_000_000, Rate: fixedRate(0.12), TermMonths: 60, Frequency: contract.Monthly})
	require.NoError(t, err)
	require.Len(t, s.Periods, 60)

	assert.InDelta(t, 22_244.45, s.Periods[0].Payment, 0.01)
	assert.InDelta(t, 10_000, s.Periods[0].Interest, 1e-6)
	assert.InDelta(t, 22_244.45, s.Periods[59].Payment, 0.01)

	var principal float64
	for i, p := range s.Periods {
		principal += p.Principal
		if i > 0 {
			assert.InDelta(t, s.Periods[i-1].ClosingBalance, p.OpeningBalance, 1e-9)
		}
	}
	assert.InDelta(t, 1_000_000, principal, 1e-6)
	assert.Zero(t, s.Periods[59].ClosingBalance)
	assert.Zero(t, s.Balloon)
}

func TestAmortizeGracePeriod(t *testing.T) {
	s, err := Amortize(Loan{Principal: 120_000, Rate: fixedRate(0.12), TermMonths: 24, Frequency: contract.Monthly, GraceMonths: 6})
	require.NoError(t, err)

	for _, p := range s.Periods[:6] {
		assert.Zero(t, p.Principal)
		assert.InDelta(t, 1200, p.Payment, 1e-9)
	}
	assert.Greater(t, s.Periods[6].Principal, 0.0)
	assert.Zero(t, s.Periods[23].ClosingBalance)
}

func TestAmortizeBullet(t *testing.T) {
	s, err := Amortize(Loan{Principal: 100_000, Rate: fixedRate(0.12), TermMonths: 12, Frequency: contract.Bullet})
	require.NoError(t, err)
	require.Len(t, s.Periods, 12)

	for _, p := range s.Periods {
		assert.InDelta(t, 1000, p.Interest, 1e-9)
		assert.Zero(t, p.Principal)
	}
	assert.InDelta(t, 100_000, s.Balloon, 1e-9)
	assert.InDelta(t, 100_000, s.Periods[11].ClosingBalance, 1e-9)
	assert.InDelta(t, 112_000, s.TotalPaid(), 1e-6)
}

func TestAmortizeBalloon(t *testing.T) {
	s, err := Amortize(Loan{Principal: 1_000_000, Rate: fixedRate(0.10), TermMonths: 36, Frequency: contract.Quarterly, Balloon: 300_000})
	require.NoError(t, err)
	require.Len(t, s.Periods, 12)

	var principal float64
	for _, p := range s.Periods {
		principal += p.Principal
	}
	assert.InDelta(t, 700_000, principal, 1e-6)
	assert.InDelta(t, 300_000, s.Periods[11].ClosingBalance, 1e-9)
	assert.InDelta(t, s.Periods[0].Payment, s.Periods[11].Payment, 0.01)
}

func TestAmortizeVariableRateResets(t *testing.T) {
	limit := 0.136
	l := Loan{
		Principal:  500_000,
		TermMonths: 36,
		Frequency:  contract.Monthly,
		Rate: contract.Rate{
			Behavior: contract.RateVariable,
			Basis:    contract.BasisNominal,
			Formula:  &contract.RateFormula{Index: "TIIE", SpreadBps: 250, ResetMonths: 12, Cap: &limit},
		},
		Curve: []float64{0.1125, 0.1100, 0.1050},
	}
	s, err := Amortize(l)
	require.NoError(t, err)

	assert.InDelta(t, 0.136, s.Periods[0].Rate, 1e-12)
	assert.InDelta(t, 0.136, s.Periods[11].Rate, 1e-12)
	assert.InDelta(t, 0.135, s.Periods[12].Rate, 1e-12)
	assert.InDelta(t, 0.130, s.Periods[24].Rate, 1e-12)

	assert.InDelta(t, s.Periods[0].Payment, s.Periods[11].Payment, 1e-6)
	assert.Less(t, s.Periods[12].Payment, s.Periods[11].Payment)
	assert.InDelta(t, 0, s.Periods[35].ClosingBalance, 1e-9)
}

func TestAmortizeFees(t *testing.T) {
	fees := []contract.Fee{
		{Label: "opening", Kind: contract.FeePercent, Percent: 2, Timing: contract.FeeUpfront},
		{Label: "administration", Kind: contract.FeeFixed, Amount: decimal.NewFromInt(50), Timing: contract.FeePeriodic},
		{Label: "annual", Kind: contract.FeeFixed, Amount: decimal.NewFromInt(500), Timing: contract.FeeAnnual},
	}
	s, err := Amortize(Loan{Principal: 100_000, Rate: fixedRate(0.12), TermMonths: 24, Frequency: contract.Monthly, Fees: fees})
	require.NoError(t, err)

	assert.InDelta(t, 2000, s.UpfrontFees, 1e-9)
	assert.InDelta(t, 50, s.Periods[0].Fees, 1e-9)
	assert.InDelta(t, 550, s.Periods[11].Fees, 1e-9)
	assert.InDelta(t, 2000+24*50+2*500, s.TotalFees(), 1e-9)
}

func TestAmortizeInvalidInput(t *testing.T) {
	cases := map[string]Loan{
		"zero term":        {Principal: 1000, Rate: fixedRate(0.1), Frequency: contract.Monthly},
		"no principal":     {Rate: fixedRate(0.1), TermMonths: 12, Frequency: contract.Monthly},
		"grace over term":  {Principal: 1000, Rate: fixedRate(0.1), TermMonths: 12, GraceMonths: 12, Frequency: contract.Monthly},
		"unknown schedule": {Principal: 1000, Rate: fixedRate(0.1), TermMonths: 12},
		"balloon too big":  {Principal: 1000, Rate: fixedRate(0.1), TermMonths: 12, Frequency: contract.Monthly, Balloon: 2000},
	}
	for name, l := range cases {
		_, err := Amortize(l)
		assert.ErrorIs(t, err, ErrInvalidInput, name)
	}
}

func TestIRR(t *testing.T) {
	flows := []float64{-1000, 0, 0, 1331}
	r, err := Solver{MaxIterations: 100, Tolerance: 1e-10}.IRR(flows)
	require.NoError(t, err)
	assert.InDelta(t, 0.10, r, 1e-8)
	assert.InDelta(t, 0, NPV(r, flows), 1e-6)
}

func TestIRRNoConvergence(t *testing.T) {
	_, err := Solver{MaxIterations: 100, Tolerance: 1e-8}.IRR([]float64{-100, -10, -10})
	assert.ErrorIs(t, err, ErrNoConvergence)

	_, err = Solver{}.IRR([]float64{100})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestCalculateFixedRate(t *testing.T) {
	ref := refdata.MustDefault()
	res := New(ref).Calculate(loanTerms(1_000_000, 0.12, 60))

	require.Len(t, res.Schedules, 1)
	c := res.Costs
	require.True(t, c.EffectiveAnnualCost.Available)
	assert.InDelta(t, math.Pow(1.01, 12)-1, c.EffectiveAnnualCost.Value, 1e-6)
	assert.InDelta(t, 0.12, c.NominalEffectiveRate.Value, 1e-6)
	assert.InDelta(t, 22_244.45*60-1_000_000, c.TotalInterest.Value, 1)

	assert.False(t, c.Sensitivity.Available)
	assert.Equal(t, "not applicable: fixed rate", c.Sensitivity.Reason)
	assert.Empty(t, c.CriticalPeriods)

	require.True(t, c.Benchmark.Available)
	assert.InDelta(t, 0.130, c.Benchmark.Benchmark.Rate, 1e-12)
	assert.InDelta(t, -100, c.Benchmark.DeltaBps, 1e-6)
	assert.True(t, c.Benchmark.SectorDefaulted)
	assert.Contains(t, c.Benchmark.Note, "general market segment")
	assert.Equal(t, true, c.Facts()["benchmark_sector_defaulted"])
	assert.InDelta(t, 0.130, c.DiscountRate, 1e-12)
	// discounting above the contract rate makes the financing cost negative
	assert.Less(t, c.NPVFinancingCost.Value, 0.0)
}

func TestUpfrontFeesRaiseEffectiveCost(t *testing.T) {
	ref := refdata.MustDefault()
	plain := New(ref).Calculate(loanTerms(1_000_000, 0.12, 60))

	withFee := loanTerms(1_000_000, 0.12, 60)
	withFee.Fees = contract.Found([]contract.Fee{
		{Label: "opening", Kind: contract.FeePercent, Percent: 2, Timing: contract.FeeUpfront},
	}, 0.95, nil)
	res := New(ref).Calculate(withFee)

	assert.Greater(t, res.Costs.EffectiveAnnualCost.Value, plain.Costs.EffectiveAnnualCost.Value)
	assert.InDelta(t, 20_000, res.Costs.TotalFees.Value, 1e-6)
}

func TestCalculateEffectiveBasis(t *testing.T) {
	terms := loanTerms(250_000, 0.12, 24)
	terms.Rate.Value.Basis = contract.BasisEffective
	res := New(refdata.MustDefault()).Calculate(terms)

	require.True(t, res.Costs.EffectiveAnnualCost.Available)
	assert.InDelta(t, 0.12, res.Costs.EffectiveAnnualCost.Value, 1e-6)
}

func TestBenchmarkUnavailableForMissingSegment(t *testing.T) {
	terms := loanTerms(1_000_000, 0.12, 60)
	terms.Sector = contract.Found("manufacturing", 0.9, nil)
	res := New(refdata.MustDefault()).Calculate(terms)

	b := res.Costs.Benchmark
	assert.False(t, b.Available)
	assert.Equal(t, "no market data for segment manufacturing/medium/long", b.Reason)
	assert.Equal(t, refdata.MustDefault().Market.DefaultDiscountRate(), res.Costs.DiscountRate)

	facts := res.Costs.Facts()
	assert.Equal(t, false, facts["benchmark_available"])
	assert.Equal(t, b.Reason, facts["benchmark_reason"])
}

func TestNamedSectorIsNotDefaulted(t *testing.T) {
	terms := loanTerms(1_000_000, 0.12, 24)
	terms.Sector = contract.Found("services", 0.95, nil)
	b := New(refdata.MustDefault()).Calculate(terms).Costs.Benchmark

	require.True(t, b.Available)
	assert.Equal(t, "services", b.Benchmark.Sector)
	assert.False(t, b.SectorDefaulted)
	assert.Empty(t, b.Note)
	assert.Equal(t, false, b.Facts()["sector_defaulted"])
}

func TestCalculateMissingRate(t *testing.T) {
	terms := loanTerms(1_000_000, 0.12, 60)
	terms.Rate = contract.Missing[contract.Rate]()
	res := New(refdata.MustDefault()).Calculate(terms)

	assert.Empty(t, res.Schedules)
	assert.False(t, res.Costs.EffectiveAnnualCost.Available)
	assert.Contains(t, res.Costs.EffectiveAnnualCost.Reason, "rate unknown")
	assert.False(t, res.Costs.TotalInterest.Available)

	facts := res.Costs.Facts()
	assert.Equal(t, false, facts["eac_available"])
	assert.Equal(t, 0.0, facts["eac_pct"])
}

func TestSensitivityForVariableRate(t *testing.T) {
	terms := loanTerms(2_000_000, 0, 48)
	terms.Rate = contract.Found(contract.Rate{
		Behavior: contract.RateVariable,
		Basis:    contract.BasisNominal,
		Formula:  &contract.RateFormula{Index: "TIIE", SpreadBps: 250, ResetMonths: 1},
	}, 0.95, nil)
	res := New(refdata.MustDefault()).Calculate(terms)

	s := res.Costs.Sensitivity
	require.True(t, s.Available)
	require.Len(t, s.Scenarios, 4)
	for _, sc := range s.Scenarios {
		if sc.DeltaBps > 0 {
			assert.Greater(t, sc.PaymentChangePct, 0.0)
		} else {
			assert.Less(t, sc.PaymentChangePct, 0.0)
		}
	}
	base := res.Costs.EffectiveAnnualCost
	require.True(t, base.Available)
	for _, sc := range s.Scenarios {
		require.True(t, sc.EffectiveAnnualCost.Available, "%+.0f bps", sc.DeltaBps)
		if sc.DeltaBps > 0 {
			assert.Greater(t, sc.EffectiveAnnualCost.Value, base.Value)
		} else {
			assert.Less(t, sc.EffectiveAnnualCost.Value, base.Value)
		}
		assert.InDelta(t, 0, sc.FinalBalance, 0.01)
	}

	worst, ok := s.Worst()
	require.True(t, ok)
	assert.Equal(t, 200.0, worst.DeltaBps)
	assert.Equal(t, 200.0, res.Costs.Facts()["max_delta_bps"])

	require.True(t, res.Costs.Benchmark.Available)
	assert.InDelta(t, 0.1375, res.Costs.Benchmark.ContractRate, 1e-12)
}

func TestPrepaymentScenario(t *testing.T) {
	terms := loanTerms(1_000_000, 0.12, 60)
	terms.Prepayment = contract.Found(contract.Prepayment{Allowed: true, PenaltyPct: 5}, 0.95, nil)
	res := New(refdata.MustDefault()).Calculate(terms)

	p := res.Costs.Prepayment
	require.True(t, p.Available)
	assert.Equal(t, 12, p.Month)
	assert.InDelta(t, res.Schedules[0].Periods[11].ClosingBalance, p.Balance, 1e-9)
	assert.True(t, p.PenaltyApplies)
	assert.InDelta(t, p.Balance*0.05, p.Penalty, 1e-9)
	assert.InDelta(t, p.InterestSaved-p.Penalty, p.NetSaving, 1e-9)

	terms.Prepayment = contract.Found(contract.Prepayment{Allowed: true, PenaltyPct: 5, PenaltyMonths: 6}, 0.95, nil)
	p = New(refdata.MustDefault()).Calculate(terms).Costs.Prepayment
	assert.False(t, p.PenaltyApplies)
	assert.Zero(t, p.Penalty)

	terms.Prepayment = contract.Found(contract.Prepayment{Allowed: false}, 0.95, nil)
	p = New(refdata.MustDefault()).Calculate(terms).Costs.Prepayment
	assert.False(t, p.Available)
	assert.Equal(t, "not applicable: prepayment not permitted", p.Reason)
	assert.True(t, NotApplicable(p.Reason))
}

func TestCriticalPeriodsFlagBalloon(t *testing.T) {
	terms := loanTerms(1_000_000, 0.10, 24)
	terms.Balloon = contract.Found(contract.Balloon{Amount: decimal.NewFromInt(500_000)}, 0.95, nil)
	res := New(refdata.MustDefault()).Calculate(terms)

	require.Len(t, res.Costs.CriticalPeriods, 1)
	assert.Equal(t, 24, res.Costs.CriticalPeriods[0].Month)
	assert.Greater(t, res.Costs.CriticalPeriods[0].Ratio, 1.5)
}

func TestCalculateTranches(t *testing.T) {
	terms := &contract.ContractTerms{
		Principal: contract.Found(contract.NewMoney(10_000_000, "USD"), 0.95, nil),
		Fees: contract.Found([]contract.Fee{
			{Label: "opening", Kind: contract.FeePercent, Percent: 1, Timing: contract.FeeUpfront},
			{Label: "structuring", Kind: contract.FeeFixed, Amount: decimal.NewFromInt(10_000), Timing: contract.FeeUpfront},
		}, 0.9, nil),
		Tranches: []contract.Tranche{
			{
				Label:      "A",
				Principal:  contract.Found(contract.NewMoney(6_000_000, "USD"), 0.9, nil),
				Rate:       contract.Found(fixedRate(0.10), 0.9, nil),
				TermMonths: contract.Found(36, 0.9, nil),
				Frequency:  contract.Found(contract.Monthly, 0.9, nil),
			},
			{
				Label:      "B",
				Principal:  contract.Found(contract.NewMoney(4_000_000, "USD"), 0.9, nil),
				Rate:       contract.Found(fixedRate(0.11), 0.9, nil),
				TermMonths: contract.Found(60, 0.9, nil),
				Frequency:  contract.Found(contract.Quarterly, 0.9, nil),
			},
		},
	}
	res := New(refdata.MustDefault()).Calculate(terms)

	require.Len(t, res.Schedules, 2)
	assert.Equal(t, "A", res.Schedules[0].Label)
	assert.Len(t, res.Schedules[0].Periods, 36)
	assert.Len(t, res.Schedules[1].Periods, 20)
	assert.InDelta(t, 70_000, res.Schedules[0].UpfrontFees, 1e-6)
	assert.InDelta(t, 40_000, res.Schedules[1].UpfrontFees, 1e-6)

	eac := res.Costs.EffectiveAnnualCost
	require.True(t, eac.Available)
	assert.Greater(t, eac.Value, 0.10)
	assert.Less(t, eac.Value, 0.13)
	assert.Empty(t, res.Warnings)
}

func TestCalculateRefusesMissingInputs(t *testing.T) {
	tranche := func(label string, principal float64) contract.Tranche {
		tr := contract.Tranche{
			Label:      label,
			Rate:       contract.Found(fixedRate(0.10), 0.9, nil),
			TermMonths: contract.Found(36, 0.9, nil),
			Frequency:  contract.Found(contract.Monthly, 0.9, nil),
		}
		if principal > 0 {
			tr.Principal = contract.Found(contract.NewMoney(principal, "USD"), 0.9, nil)
		}
		return tr
	}

	testCases := map[string]struct {
		terms  func() *contract.ContractTerms
		reason string
	}{
		"frequency missing": {
			terms: func() *contract.ContractTerms {
				terms := loanTerms(1_000_000, 0.12, 60)
				terms.Frequency = contract.Missing[contract.Frequency]()
				return terms
			},
			reason: "frequency unknown",
		},
		"tranche principal missing": {
			terms: func() *contract.ContractTerms {
				terms := loanTerms(10_000_000, 0.10, 36)
				terms.Tranches = []contract.Tranche{tranche("A", 6_000_000), tranche("B", 0)}
				return terms
			},
			reason: "tranche B principal unknown",
		},
		"tranche frequency missing": {
			terms: func() *contract.ContractTerms {
				terms := loanTerms(10_000_000, 0.10, 36)
				terms.Frequency = contract.Missing[contract.Frequency]()
				b := tranche("B", 4_000_000)
				b.Frequency = contract.Missing[contract.Frequency]()
				terms.Tranches = []contract.Tranche{tranche("A", 6_000_000), b}
				return terms
			},
			reason: "tranche B frequency unknown",
		},
	}

	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			res := New(refdata.MustDefault()).Calculate(tc.terms())

			assert.Empty(t, res.Schedules)
			for _, m := range []Metric{res.Costs.EffectiveAnnualCost, res.Costs.NPVFinancingCost, res.Costs.TotalPaid} {
				assert.False(t, m.Available)
				assert.Contains(t, m.Reason, tc.reason)
			}
		})
	}
}

func TestCalculateIsDeterministic(t *testing.T) {
	calc := New(refdata.MustDefault())
	terms := loanTerms(750_000, 0.145, 36)
	first := calc.Calculate(terms)
	for i := 0; i < 3; i++ {
		assert.Equal(t, first, calc.Calculate(terms))
	}
}
