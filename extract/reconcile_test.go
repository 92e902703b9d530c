package extract

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liamcoop/loanlens/contract"
	"github.com/liamcoop/loanlens/refdata"
)

var tolerance = refdata.ExtractionConfig{AmountTolerance: 0.005, RateToleranceBps: 5, AmbiguityFactor: 0.6}

func fixed(annual float64) contract.Rate {
	return contract.Rate{Annual: annual, Basis: contract.BasisNominal, Behavior: contract.RateFixed}
}

func TestReconcileAgreementRaisesConfidence(t *testing.T) {
	pattern := Findings{Principal: candidate("pattern", contract.NewMoney(1_000_000, "USD"), 0.9, nil)}
	semantic := Findings{Principal: candidate("semantic", contract.NewMoney(1_002_000, "USD"), 0.75, nil)}

	terms := Reconcile(pattern, semantic, tolerance)

	assert.Equal(t, contract.StatusFound, terms.Principal.Status)
	assert.InDelta(t, 0.975, terms.Principal.Confidence, 1e-9)
	assert.InDelta(t, 1_000_000, terms.Principal.Value.Float(), 1e-9)
	assert.Empty(t, terms.Principal.Alternatives)
}

func TestReconcileDisagreementKeepsBothCandidates(t *testing.T) {
	pattern := Findings{Rate: candidate("pattern", fixed(0.12), 0.7, nil)}
	semantic := Findings{Rate: candidate("semantic", fixed(0.13), 0.85, nil)}

	terms := Reconcile(pattern, semantic, tolerance)

	require.Equal(t, contract.StatusAmbiguous, terms.Rate.Status)
	assert.InDelta(t, 0.13, terms.Rate.Value.Annual, 1e-12)
	assert.InDelta(t, 0.51, terms.Rate.Confidence, 1e-9)
	require.Len(t, terms.Rate.Alternatives, 2)
	assert.Equal(t, "semantic", terms.Rate.Alternatives[0].Strategy)
	assert.Equal(t, "pattern", terms.Rate.Alternatives[1].Strategy)
}

func TestReconcileSingleStrategy(t *testing.T) {
	semantic := Findings{TermMonths: candidate("semantic", 48, 0.75, nil)}

	terms := Reconcile(Findings{}, semantic, tolerance)

	assert.Equal(t, contract.StatusFound, terms.TermMonths.Status)
	assert.Equal(t, 48, terms.TermMonths.Value)
	assert.InDelta(t, 0.75, terms.TermMonths.Confidence, 1e-12)
	assert.Equal(t, contract.StatusMissing, terms.Rate.Status)
}

func TestReconcileTieFavoursPattern(t *testing.T) {
	pattern := Findings{TermMonths: candidate("pattern", 36, 0.8, nil)}
	semantic := Findings{TermMonths: candidate("semantic", 48, 0.8, nil)}

	terms := Reconcile(pattern, semantic, tolerance)

	assert.Equal(t, contract.StatusAmbiguous, terms.TermMonths.Status)
	assert.Equal(t, 36, terms.TermMonths.Value)
}

func TestReconcileRateTolerance(t *testing.T) {
	within := Reconcile(
		Findings{Rate: candidate("pattern", fixed(0.12), 0.9, nil)},
		Findings{Rate: candidate("semantic", fixed(0.1204), 0.8, nil)},
		tolerance)
	assert.Equal(t, contract.StatusFound, within.Rate.Status)

	outside := Reconcile(
		Findings{Rate: candidate("pattern", fixed(0.12), 0.9, nil)},
		Findings{Rate: candidate("semantic", fixed(0.1210), 0.8, nil)},
		tolerance)
	assert.Equal(t, contract.StatusAmbiguous, outside.Rate.Status)
}

func TestReconcileFeesIgnoreOrder(t *testing.T) {
	a := []contract.Fee{
		{Label: "opening", Kind: contract.FeePercent, Percent: 2},
		{Label: "study", Kind: contract.FeePercent, Percent: 0.5},
	}
	b := []contract.Fee{a[1], a[0]}

	terms := Reconcile(
		Findings{Fees: candidate("pattern", a, 0.88, nil)},
		Findings{Fees: candidate("semantic", b, 0.75, nil)},
		tolerance)

	assert.Equal(t, contract.StatusFound, terms.Fees.Status)
	assert.Equal(t, a, terms.Fees.Value)
}

func TestReconcileMissingCurrencyStillAgrees(t *testing.T) {
	terms := Reconcile(
		Findings{Principal: candidate("pattern", contract.NewMoney(750_000, ""), 0.9, nil)},
		Findings{Principal: candidate("semantic", contract.NewMoney(750_000, "MXN"), 0.85, nil)},
		tolerance)
	assert.Equal(t, contract.StatusFound, terms.Principal.Status)
}

const variableContract = `The loan bears interest at a variable rate equal to TIIE 28 days plus 2.5 percentage points.
The rate shall be reset monthly.
The rate is subject to a cap of 15%.`

func TestExtractVariableRate(t *testing.T) {
	terms := testExtractor(t).Extract(context.Background(), NewDocument(variableContract))

	require.Equal(t, contract.StatusFound, terms.Rate.Status)
	r := terms.Rate.Value
	assert.True(t, terms.IsVariable())
	assert.Equal(t, contract.RateVariable, r.Behavior)
	require.NotNil(t, r.Formula)
	assert.Equal(t, "TIIE", r.Formula.Index)
	assert.InDelta(t, 250, r.Formula.SpreadBps, 1e-9)
	assert.Equal(t, 1, r.Formula.ResetMonths)
	require.NotNil(t, r.Formula.Cap)
	assert.InDelta(t, 0.15, *r.Formula.Cap, 1e-12)
	assert.Nil(t, r.Formula.Floor)
}

const htmlContract = `<html><head><title>Loan</title><style>p { color: red }</style></head>
<body>
<h1>Loan Agreement</h1>
<p>The loan bears interest at a fixed rate of 12% per annum.</p>
<table>
  <tr><th>Term</th><th>Value</th></tr>
  <tr><td>Principal</td><td>USD 250,000</td></tr>
  <tr><td>Maturity</td><td>24 months</td></tr>
</table>
<script>var principal = 1;</script>
</body></html>`

func TestFromHTML(t *testing.T) {
	doc, err := FromHTML(strings.NewReader(htmlContract))
	require.NoError(t, err)

	assert.NotContains(t, doc.Text, "color: red")
	assert.NotContains(t, doc.Text, "var principal")
	assert.Contains(t, doc.Text, "Loan Agreement")
	assert.Contains(t, doc.Text, "Principal: USD 250,000")

	require.Len(t, doc.Regions, 1)
	table := doc.Regions[0]
	assert.Equal(t, "table", table.Kind)
	assert.Equal(t, "table-1", table.ID)
	assert.Len(t, table.Rows, 3)
	assert.Contains(t, doc.Text[table.Start:table.End], "Maturity: 24 months")

	terms := testExtractor(t).Extract(context.Background(), doc)
	assert.InDelta(t, 250_000, terms.Principal.Value.Float(), 1e-9)
	assert.InDelta(t, 0.12, terms.Rate.Value.Annual, 1e-12)
	assert.Equal(t, 24, terms.TermMonths.Value)
	require.NotNil(t, terms.Principal.Source)
}
