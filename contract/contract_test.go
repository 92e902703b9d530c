package contract

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleTerms() *ContractTerms {
	return &ContractTerms{
		Principal:  Found(NewMoney(1_000_000, "MXN"), 0.95, nil),
		Rate:       Found(Rate{Annual: 0.12, Basis: BasisNominal, Behavior: RateFixed}, 0.95, nil),
		TermMonths: Found(60, 0.95, nil),
		Frequency:  Found(Monthly, 0.95, nil),
		Guarantee: Found(Guarantee{
			Type:         GuaranteeMixed,
			Kinds:        []string{KindMortgage, KindGuarantor},
			MortgageRank: 1,
		}, 0.92, nil),
		Fees: Found([]Fee{
			{Label: "opening", Kind: FeePercent, Percent: 2, Timing: FeeUpfront},
			{Label: "study", Kind: FeePercent, Percent: 0.5, Timing: FeeUpfront},
		}, 0.91, nil),
		Prepayment: Found(Prepayment{Allowed: true, PenaltyPct: 5}, 0.93, nil),
		Default: Found(DefaultClause{
			Triggers:     []string{"non-payment", "insolvency", "change of control", "covenant breach", "false statements"},
			Acceleration: true,
			TriggerCount: 5,
		}, 0.9, nil),
		SpecialClauses: Found([]SpecialClause{
			{Kind: ClauseCrossDefault, Detail: "cross default"},
			{Kind: ClauseCovenant, Metric: "leverage", Operator: "<=", Threshold: 3},
		}, 0.9, nil),
		GraceMonths:  Missing[int](),
		Balloon:      Missing[Balloon](),
		PaymentCount: Missing[int](),
		Lender:       Found("Banco Uno", 0.95, nil),
		Borrower:     Found("Acme", 0.95, nil),
		Sector:       Missing[string](),
		Jurisdiction: Missing[string](),
	}
}

func TestFieldFlag(t *testing.T) {
	f := Found(10, 0.95, nil).Flag(0.9)
	assert.False(t, f.NeedsReview)
	assert.True(t, f.Certain())

	f = Found(10, 0.85, nil).Flag(0.9)
	assert.True(t, f.NeedsReview)
	assert.True(t, f.Known())
	assert.False(t, f.Certain())

	amb := Field[int]{Value: 10, Status: StatusAmbiguous, Confidence: 0.99}.Flag(0.9)
	assert.True(t, amb.NeedsReview, "ambiguous fields always need review")

	m := Missing[int]()
	assert.False(t, m.Known())
	assert.True(t, m.NeedsReview)
	assert.Zero(t, m.Confidence)
}

func TestNeedsReview(t *testing.T) {
	terms := sampleTerms()
	terms.Rate = Field[Rate]{
		Value:      Rate{Annual: 0.12, Behavior: RateFixed},
		Status:     StatusAmbiguous,
		Confidence: 0.57,
		Alternatives: []Candidate[Rate]{
			{Value: Rate{Annual: 0.12}, Strategy: "pattern", Confidence: 0.95},
			{Value: Rate{Annual: 0.14}, Strategy: "semantic", Confidence: 0.7},
		},
	}.Flag(DefaultReviewThreshold)
	terms.Lender = Found("Banco Uno", 0.6, nil).Flag(DefaultReviewThreshold)

	items := terms.NeedsReview(DefaultReviewThreshold)

	var names []string
	for _, it := range items {
		names = append(names, it.Field)
	}
	assert.Equal(t, []string{"rate", "lender"}, names)
	assert.Equal(t, StatusAmbiguous, items[0].Status)
	assert.Len(t, items[0].Alternatives, 2)
	assert.NotContains(t, names, "grace_months", "absent optional clauses are not review items")
}

func TestNeedsReviewMissingRequiredField(t *testing.T) {
	terms := sampleTerms()
	terms.Rate = Missing[Rate]()

	items := terms.NeedsReview(DefaultReviewThreshold)
	require.Len(t, items, 1)
	assert.Equal(t, "rate", items[0].Field)
	assert.Equal(t, StatusMissing, items[0].Status)
	assert.Zero(t, items[0].Confidence)
}

func TestNeedsReviewMissingSpecialClauses(t *testing.T) {
	terms := sampleTerms()
	terms.SpecialClauses = Missing[[]SpecialClause]()

	items := terms.NeedsReview(DefaultReviewThreshold)
	require.Len(t, items, 1)
	assert.Equal(t, "special_clauses", items[0].Field)
	assert.False(t, IsOptional("special_clauses"))
	assert.True(t, IsOptional("grace_months"))
}

func TestFieldsIncludeTranches(t *testing.T) {
	terms := sampleTerms()
	terms.Tranches = []Tranche{{
		Label:      "A",
		Principal:  Found(NewMoney(600_000, "MXN"), 0.9, nil),
		Rate:       Found(Rate{Annual: 0.11, Behavior: RateFixed}, 0.9, nil),
		TermMonths: Found(36, 0.9, nil),
		Frequency:  Found(Monthly, 0.9, nil),
	}}

	var names []string
	for _, fi := range terms.Fields() {
		names = append(names, fi.Name)
	}
	assert.Contains(t, names, "tranche_A.principal")
	assert.Contains(t, names, "tranche_A.frequency")
}

func TestCheckConsistency(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*ContractTerms)
		code   string
	}{
		{
			name:   "payment count",
			mutate: func(c *ContractTerms) { c.PaymentCount = Found(48, 0.9, nil) },
			code:   "payment_count_mismatch",
		},
		{
			name:   "grace",
			mutate: func(c *ContractTerms) { c.GraceMonths = Found(60, 0.9, nil) },
			code:   "grace_exceeds_term",
		},
		{
			name:   "rate range",
			mutate: func(c *ContractTerms) { c.Rate = Found(Rate{Annual: 1.2, Behavior: RateFixed}, 0.9, nil) },
			code:   "rate_out_of_range",
		},
		{
			name: "balloon",
			mutate: func(c *ContractTerms) {
				c.Balloon = Found(Balloon{Amount: decimal.NewFromInt(2_000_000)}, 0.9, nil)
			},
			code: "balloon_exceeds_principal",
		},
		{
			name: "tranches",
			mutate: func(c *ContractTerms) {
				c.Tranches = []Tranche{
					{Label: "A", Principal: Found(NewMoney(600_000, "MXN"), 0.9, nil)},
					{Label: "B", Principal: Found(NewMoney(300_000, "MXN"), 0.9, nil)},
				}
			},
			code: "tranche_sum_mismatch",
		},
	}

	assert.Empty(t, CheckConsistency(sampleTerms(), 0.005))

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			terms := sampleTerms()
			tt.mutate(terms)
			found := CheckConsistency(terms, 0.005)
			require.Len(t, found, 1)
			assert.Equal(t, tt.code, found[0].Code)
			assert.NotEmpty(t, found[0].Detail)
		})
	}
}

func TestCheckConsistencyMatchingPaymentCount(t *testing.T) {
	terms := sampleTerms()
	terms.PaymentCount = Found(60, 0.9, nil)
	assert.Empty(t, CheckConsistency(terms, 0.005))

	terms.Frequency = Found(Quarterly, 0.9, nil)
	terms.PaymentCount = Found(20, 0.9, nil)
	assert.Empty(t, CheckConsistency(terms, 0.005))
}

func TestFacts(t *testing.T) {
	f := sampleTerms().Facts()

	assert.Equal(t, 1_000_000.0, f["principal"])
	assert.InDelta(t, 12.0, f["rate_pct"], 1e-9)
	assert.Equal(t, false, f["variable"])
	assert.Equal(t, 60, f["term_months"])
	assert.Equal(t, true, f["has_mortgage"])
	assert.Equal(t, false, f["has_pledge"])
	assert.Equal(t, true, f["has_guarantor"])
	assert.Equal(t, 2.0, f["opening_fee_pct"])
	assert.Equal(t, 2.5, f["upfront_fee_pct"])
	assert.Equal(t, 5.0, f["prepayment_penalty_pct"])
	assert.Equal(t, 5, f["trigger_count"])
	assert.Equal(t, true, f["acceleration"])
	assert.Equal(t, true, f["cross_default"])
	assert.Equal(t, 1, f["covenant_count"])

	certain := f["certain"].(map[string]any)
	assert.Equal(t, true, certain["principal"])
	assert.Equal(t, false, certain["grace_months"])
}

func TestFactsMissingValuesKeepKeys(t *testing.T) {
	terms := &ContractTerms{
		Principal:      Missing[Money](),
		Rate:           Missing[Rate](),
		TermMonths:     Missing[int](),
		Frequency:      Missing[Frequency](),
		Guarantee:      Missing[Guarantee](),
		Fees:           Missing[[]Fee](),
		Prepayment:     Missing[Prepayment](),
		Default:        Missing[DefaultClause](),
		SpecialClauses: Missing[[]SpecialClause](),
	}
	f := terms.Facts()

	for _, key := range []string{"principal", "rate_pct", "variable", "has_cap", "term_months", "guarantee_type", "prepayment_penalty_pct"} {
		_, ok := f[key]
		assert.True(t, ok, key)
	}
	assert.Equal(t, false, f["rate_known"])
	assert.Equal(t, false, f["rate_certain"])
	assert.Equal(t, 0.0, f["rate_pct"])
}

func TestVariableRateFacts(t *testing.T) {
	capRate := 0.18
	terms := sampleTerms()
	terms.Rate = Found(Rate{
		Behavior: RateVariable,
		Formula:  &RateFormula{Index: "TIIE", SpreadBps: 350, ResetMonths: 12, Cap: &capRate},
	}, 0.95, nil)

	f := terms.Facts()
	assert.Equal(t, true, f["variable"])
	assert.Equal(t, "TIIE", f["index"])
	assert.Equal(t, 350.0, f["spread_bps"])
	assert.Equal(t, true, f["has_cap"])
	assert.InDelta(t, 18.0, f["cap_pct"], 1e-9)
	assert.True(t, terms.IsVariable())
}
