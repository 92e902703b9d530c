package narrative

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liamcoop/loanlens/contract"
	"github.com/liamcoop/loanlens/finance"
	"github.com/liamcoop/loanlens/refdata"
	"github.com/liamcoop/loanlens/risk"
)

func fixedTerms(annual float64) *contract.ContractTerms {
	return &contract.ContractTerms{
		Principal:  contract.Found(contract.NewMoney(1_000_000, "USD"), 0.95, nil),
		Rate:       contract.Found(contract.Rate{Annual: annual, Basis: contract.BasisNominal, Behavior: contract.RateFixed}, 0.95, nil),
		TermMonths: contract.Found(60, 0.95, nil),
		Frequency:  contract.Found(contract.Monthly, 0.95, nil),
		Fees:       contract.Found([]contract.Fee{}, 0.95, nil),
		Prepayment: contract.Found(contract.Prepayment{Allowed: true}, 0.95, nil),
		Guarantee:  contract.Found(contract.Guarantee{Type: contract.GuaranteePersonal, Kinds: []string{contract.KindGuarantor}}, 0.95, nil),
	}
}

func compose(t *testing.T, terms *contract.ContractTerms) Narrative {
	t.Helper()
	ref := refdata.MustDefault()
	costs := finance.New(ref).Calculate(terms).Costs
	assessment := risk.New(ref).Assess(terms)
	return New(ref).Compose(terms, costs, assessment)
}

func texts(n Narrative, section string) []string {
	s, _ := n.Section(section)
	out := make([]string, 0, len(s.Fragments))
	for _, f := range s.Fragments {
		out = append(out, f.Text)
	}
	return out
}

func ruleIDs(n Narrative, section string) []string {
	s, _ := n.Section(section)
	out := make([]string, 0, len(s.Fragments))
	for _, f := range s.Fragments {
		out = append(out, f.RuleID)
	}
	return out
}

func TestCleanContractIsAccepted(t *testing.T) {
	n := compose(t, fixedTerms(0.12))

	rec := n.Recommendation
	assert.Equal(t, Accept, rec.Decision)
	assert.Equal(t, "accept_clean", rec.RuleID)
	assert.Empty(t, rec.Renegotiate)
	require.NotEmpty(t, rec.Justification)
	assert.True(t, strings.HasPrefix(rec.Justification[0], "Recommendation: accept."))

	assert.Equal(t, []string{"rate_fixed", "eac_fixed"}, ruleIDs(n, SectionRate))
	assert.Contains(t, texts(n, SectionRate), "The loan carries a fixed rate of 12.00%, so the payment plan does not depend on market movements.")
	assert.Equal(t,
		[]string{
			"The rate is 100 bps below the 13.00% market reference, a favourable price.",
			"No sector was found in the contract, so the general market segment stands in for the borrower's own.",
		},
		texts(n, SectionBenchmark))
	assert.Empty(t, n.Warnings)
}

func TestFlaggedContractIsNeverAccepted(t *testing.T) {
	terms := fixedTerms(0.12)
	terms.Prepayment = contract.Found(contract.Prepayment{Allowed: true, PenaltyPct: 5}, 0.95, nil)
	terms.Default = contract.Found(contract.DefaultClause{
		Triggers:     []string{"non_payment", "insolvency", "covenant_breach", "change_of_control", "judgment"},
		TriggerCount: 5,
		Acceleration: true,
	}, 0.95, nil)

	n := compose(t, terms)

	rec := n.Recommendation
	assert.NotEqual(t, Accept, rec.Decision)
	require.Equal(t, Negotiate, rec.Decision)
	assert.Equal(t, "negotiate_flags", rec.RuleID)

	require.Len(t, rec.Renegotiate, 2)
	assert.Equal(t, "acceleration_triggers", rec.Renegotiate[0].RuleID)
	assert.Equal(t, "prepayment_penalty_high", rec.Renegotiate[1].RuleID)
	assert.Equal(t, risk.SeverityHigh, rec.Renegotiate[0].Severity)

	require.NotEmpty(t, rec.Justification)
	assert.Equal(t,
		"Recommendation: negotiate. 2 term(s) should be renegotiated, starting with more than three acceleration triggers.",
		rec.Justification[0])
	assert.Contains(t, texts(n, SectionRisk), "2 red flag(s) were raised, 2 of high and 0 of critical severity.")
	assert.Contains(t, n.Suppressed, Suppression{RuleID: "justify_negotiate", Reason: "excluded by justify_negotiate_terms"})
}

func TestFarAboveMarketIsRejected(t *testing.T) {
	n := compose(t, fixedTerms(0.20))

	assert.Equal(t, Reject, n.Recommendation.Decision)
	assert.Empty(t, n.Recommendation.Renegotiate)
	assert.Contains(t, ruleIDs(n, SectionBenchmark), "above_market")
	assert.Contains(t, ruleIDs(n, SectionRecommendation), "justify_reject")
}

func TestUncertainRateIsNotStatedAsFact(t *testing.T) {
	terms := fixedTerms(0.12)
	terms.Rate = contract.Field[contract.Rate]{
		Value:       contract.Rate{Annual: 0.12, Basis: contract.BasisNominal, Behavior: contract.RateFixed},
		Status:      contract.StatusAmbiguous,
		Confidence:  0.6,
		NeedsReview: true,
	}

	n := compose(t, terms)

	rate := ruleIDs(n, SectionRate)
	require.NotEmpty(t, rate)
	assert.Equal(t, "rate_uncertain", rate[0])
	assert.NotContains(t, rate, "rate_fixed")
	assert.NotContains(t, rate, "eac_fixed")
	assert.Contains(t, texts(n, SectionRate)[0], "confidence 0.60")

	assert.Equal(t, []string{"benchmark_rate_unconfirmed", "benchmark_general_segment"}, ruleIDs(n, SectionBenchmark))

	var suppressed []string
	for _, s := range n.Suppressed {
		suppressed = append(suppressed, s.RuleID)
	}
	assert.Contains(t, suppressed, "rate_fixed")
	assert.Contains(t, suppressed, "below_market")
}

func TestExclusiveGroupKeepsHighestPriority(t *testing.T) {
	n := compose(t, fixedTerms(0.12))

	var excluded []Suppression
	for _, s := range n.Suppressed {
		if strings.HasPrefix(s.Reason, "excluded by") {
			excluded = append(excluded, s)
		}
	}
	assert.Contains(t, excluded, Suppression{RuleID: "at_market", Reason: "excluded by below_market"})
	assert.NotContains(t, ruleIDs(n, SectionBenchmark), "at_market")
}

func TestMissingRateExplainsUnavailableCost(t *testing.T) {
	terms := fixedTerms(0.12)
	terms.Rate = contract.Missing[contract.Rate]()

	n := compose(t, terms)

	assert.Contains(t, ruleIDs(n, SectionRate), "eac_unavailable")
	for _, text := range texts(n, SectionRate) {
		assert.NotContains(t, text, "fixed rate of")
	}
	assert.Contains(t, texts(n, SectionBenchmark)[0], "No market benchmark is available (rate unknown)")
}

func TestMissingFeesKeepEACOutOfAllInWording(t *testing.T) {
	terms := fixedTerms(0.12)
	terms.Fees = contract.Missing[[]contract.Fee]()

	n := compose(t, terms)

	rate := ruleIDs(n, SectionRate)
	assert.NotContains(t, rate, "eac_fixed")
	assert.Contains(t, rate, "eac_fees_unconfirmed")
	for _, text := range texts(n, SectionRate) {
		assert.NotContains(t, text, "Including all fees")
	}
	assert.Contains(t, n.Suppressed, Suppression{RuleID: "eac_fixed", Reason: "requires fees which is not certain"})
}

func TestMissingTermKeepsBenchmarkQuiet(t *testing.T) {
	terms := fixedTerms(0.12)
	terms.TermMonths = contract.Missing[int]()

	n := compose(t, terms)

	assert.Equal(t, []string{"benchmark_unavailable"}, ruleIDs(n, SectionBenchmark))
	assert.NotContains(t, ruleIDs(n, SectionRate), "eac_fixed")
}

func TestEmptyContractIsNotCalledWorkable(t *testing.T) {
	n := compose(t, &contract.ContractTerms{})

	rec := n.Recommendation
	assert.Equal(t, Negotiate, rec.Decision)
	assert.Equal(t, "negotiate_incomplete", rec.RuleID)
	require.NotEmpty(t, rec.Justification)
	assert.True(t, strings.HasPrefix(rec.Justification[0], "Recommendation: negotiate. The cost of the loan could not be established ("))
	for _, text := range rec.Justification {
		assert.NotContains(t, text, "workable")
	}
}

func TestDecideFallsBackWithoutRules(t *testing.T) {
	outcome, ruleID, warnings := decide(nil, "negotiate", map[string]any{})
	assert.Equal(t, Negotiate, outcome)
	assert.Equal(t, FallbackRuleID, ruleID)
	assert.Empty(t, warnings)
}

func TestRenegotiationOrder(t *testing.T) {
	items := renegotiation([]risk.RedFlag{
		{RuleID: "small_medium", Severity: risk.SeverityMedium, Impact: 1_000},
		{RuleID: "big_medium", Severity: risk.SeverityMedium, Impact: 90_000},
		{RuleID: "small_high", Severity: risk.SeverityHigh, Impact: 10},
		{RuleID: "critical", Severity: risk.SeverityCritical},
	})

	var got []string
	for _, it := range items {
		got = append(got, it.RuleID)
	}
	assert.Equal(t, []string{"critical", "small_high", "big_medium", "small_medium"}, got)
}
