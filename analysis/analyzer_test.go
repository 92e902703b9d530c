package analysis

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liamcoop/loanlens/contract"
	"github.com/liamcoop/loanlens/extract"
	"github.com/liamcoop/loanlens/narrative"
	"github.com/liamcoop/loanlens/refdata"
	"github.com/liamcoop/loanlens/report"
	"github.com/liamcoop/loanlens/risk"
)

const penaltyContract = `LOAN AGREEMENT

LENDER: Banco Nacional
BORROWER: Industrias Norte
Sector: Manufacturing

1. Principal. The Lender grants the Borrower a loan in the principal amount of USD 1,000,000 (one million US dollars).
2. Interest. The loan bears interest at a fixed rate of 12% (twelve percent) per annum.
3. Term. The term of the loan is 60 (sixty) months.
4. Payments. The Borrower shall repay the loan in 60 equal monthly installments.
5. Guarantee. The loan is secured by a first-rank mortgage over the Borrower's plant and by the personal guarantee of Juan Perez as guarantor.
6. Fees. The Borrower shall pay an opening fee of 2% of the principal and a study fee of 0.5%, both upfront.
7. Prepayment. The Borrower may prepay the loan at any time subject to a penalty of 5% of the outstanding balance.
8. Covenants. The Borrower shall maintain a debt service coverage ratio of at least 1.25.
9. Events of Default. Each of the following is an event of default: (a) failure to pay any amount when due; (b) insolvency or bankruptcy of the Borrower; (c) breach of any covenant; (d) change of control of the Borrower; (e) any judgment against the Borrower exceeding USD 100,000.
Upon an event of default the Lender may accelerate the loan and declare all amounts immediately due and payable. The Borrower shall have 10 days to cure a payment default.
10. Jurisdiction. The parties submit to the courts of Mexico City.
`

const noRateContract = "The principal amount of the loan is USD 500,000. The term of the loan is 24 months."

var fixedNow = time.Date(2026, 5, 4, 9, 30, 0, 0, time.UTC)

func newAnalyzer(opts ...Option) *Analyzer {
	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)
	return New(refdata.MustDefault(), opts...)
}

func input(name, text string) Input {
	return Input{Name: name, Document: extract.NewDocument(text)}
}

func flag(r *report.AnalysisReport, id string) (risk.RedFlag, bool) {
	for _, f := range r.Risk.RedFlags {
		if f.RuleID == id {
			return f, true
		}
	}
	return risk.RedFlag{}, false
}

func TestPenaltyAndTriggersAreNeverAccepted(t *testing.T) {
	r, err := newAnalyzer().Analyze(context.Background(), input("penalty", penaltyContract))
	require.NoError(t, err)

	prepay, ok := flag(r, "prepayment_penalty_high")
	require.True(t, ok)
	assert.GreaterOrEqual(t, prepay.Severity.Rank(), risk.SeverityHigh.Rank())

	accel, ok := flag(r, "acceleration_triggers")
	require.True(t, ok)
	assert.GreaterOrEqual(t, accel.Severity.Rank(), risk.SeverityHigh.Rank())

	decision := r.Recommendation.Decision
	assert.NotEqual(t, narrative.Accept, decision)
	assert.Contains(t, []narrative.Outcome{narrative.Negotiate, narrative.Reject}, decision)
	if decision == narrative.Negotiate {
		assert.NotEmpty(t, r.Recommendation.Renegotiate)
	}

	assert.Equal(t, fixedNow, r.GeneratedAt)
	assert.Equal(t, r.Terms.ContractID, r.ContractID)
	assert.True(t, r.Financial.Costs.EffectiveAnnualCost.Available)
	assert.NotEmpty(t, r.ExecutiveSummary)
}

func TestMissingRateStillProducesReport(t *testing.T) {
	r, err := newAnalyzer().Analyze(context.Background(), input("no-rate", noRateContract))
	require.NoError(t, err)

	assert.Equal(t, contract.StatusMissing, r.Terms.Rate.Status)
	assert.Zero(t, r.Terms.Rate.Confidence)
	assert.False(t, r.Financial.Costs.EffectiveAnnualCost.Available)
	assert.NotEmpty(t, r.Financial.Costs.EffectiveAnnualCost.Reason)
	assert.Equal(t, report.StatusPartial, r.Status)
	assert.True(t, r.IsUnavailable("rate"))
	assert.True(t, r.IsUnavailable("effective_annual_cost"))
	assert.False(t, r.Financial.Costs.Benchmark.Available)

	assert.Len(t, r.Sections, len(narrative.Sections))
	assert.True(t, r.Recommendation.Decision.Valid())
	assert.NotEmpty(t, r.Risk.Categories)
}

func TestEveryLowConfidenceFieldNeedsReview(t *testing.T) {
	ref := refdata.MustDefault()
	r, err := newAnalyzer().Analyze(context.Background(), input("ambiguous",
		"The principal amount of the loan is USD 1,000,000 (one million fifty thousand US dollars)."))
	require.NoError(t, err)

	listed := map[string]bool{}
	for _, it := range r.NeedsReview {
		listed[it.Field] = true
	}
	for _, fi := range r.Terms.Fields() {
		if fi.Status == contract.StatusMissing && contract.IsOptional(fi.Name) {
			continue
		}
		if fi.Confidence < ref.ReviewThreshold {
			assert.True(t, listed[fi.Name], fi.Name)
		}
	}
	assert.True(t, listed["principal"])
	assert.True(t, listed["special_clauses"], "no clause found is a gap, not a normal outcome")
	assert.True(t, r.IsUnavailable("special_clauses"))
}

func TestCancelledAnalysisReturnsError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rec := &countingRecorder{}
	r, err := newAnalyzer(WithRecorder(rec)).Analyze(ctx, input("cancelled", penaltyContract))
	assert.Nil(t, r)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, 1, rec.abandoned)
}

func TestAnalyzeIsDeterministic(t *testing.T) {
	a := newAnalyzer()
	first, err := a.Analyze(context.Background(), input("one", penaltyContract))
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		again, err := a.Analyze(context.Background(), input("one", penaltyContract))
		require.NoError(t, err)
		assert.Equal(t, first.Recommendation, again.Recommendation)
		assert.Equal(t, first.Financial, again.Financial)
		assert.Equal(t, first.Risk, again.Risk)
		assert.Equal(t, first.Sections, again.Sections)
		assert.Equal(t, first.ExecutiveSummary, again.ExecutiveSummary)
	}
}

type countingRecorder struct {
	mu        sync.Mutex
	stages    map[string]int
	reports   int
	abandoned int
}

func (c *countingRecorder) ObserveStage(stage string, _ time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stages == nil {
		c.stages = map[string]int{}
	}
	c.stages[stage]++
}

func (c *countingRecorder) ObserveReport(*report.AnalysisReport, time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reports++
}

func (c *countingRecorder) ObserveAbandoned(string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.abandoned++
}

func TestRecorderSeesEveryStage(t *testing.T) {
	rec := &countingRecorder{}
	_, err := newAnalyzer(WithRecorder(rec)).Analyze(context.Background(), input("rec", penaltyContract))
	require.NoError(t, err)

	for _, stage := range []string{StageExtract, StageFinance, StageRisk, StageNarrative, StageReport} {
		assert.Equal(t, 1, rec.stages[stage], stage)
	}
	assert.Equal(t, 1, rec.reports)
	assert.Zero(t, rec.abandoned)
}

func TestAnalyzeBatchKeepsInputOrder(t *testing.T) {
	inputs := []Input{
		input("a", penaltyContract),
		input("b", noRateContract),
		input("c", penaltyContract),
		input("d", ""),
	}

	results := newAnalyzer().AnalyzeBatch(context.Background(), inputs, 2)
	require.Len(t, results, len(inputs))
	for i, res := range results {
		assert.Equal(t, i, res.Index)
		assert.Equal(t, inputs[i].Name, res.Name)
		require.NoError(t, res.Err)
		require.NotNil(t, res.Report)
	}
	assert.Equal(t, report.StatusPartial, results[1].Report.Status)
	assert.Contains(t, results[3].Report.Warnings, "document is empty")
	assert.NotEqual(t, results[0].Report.ContractID, results[2].Report.ContractID)
}

func TestAnalyzeBatchCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results := newAnalyzer().AnalyzeBatch(ctx, []Input{input("a", penaltyContract), input("b", noRateContract)}, 0)
	require.Len(t, results, 2)
	for _, res := range results {
		assert.Nil(t, res.Report)
		assert.ErrorIs(t, res.Err, context.Canceled)
		assert.NotEmpty(t, res.Error)
	}
}
