package contract

import "strings"

// Guarantee kinds recorded in Guarantee.Kinds
const (
	KindMortgage  = "mortgage"
	KindPledge    = "pledge"
	KindGuarantor = "guarantor"
)

// Facts flattens the terms into the "terms" object seen by rule expressions.
// Every key is always present; *_known and *_certain keys tell rules whether a value can be relied on.
func (t *ContractTerms) Facts() map[string]any {
	f := map[string]any{
		"principal":       0.0,
		"principal_known": t.Principal.Known(),
		"currency":        "",

		"rate_pct":     0.0,
		"rate_known":   t.Rate.Known(),
		"rate_certain": t.Rate.Certain(),
		"variable":     false,
		"index":        "",
		"spread_bps":   0.0,
		"has_cap":      false,
		"cap_pct":      0.0,
		"has_floor":    false,
		"floor_pct":    0.0,
		"reset_months": 0,

		"term_months": 0,
		"term_known":  t.TermMonths.Known(),
		"frequency":   "",
		"bullet":      false,

		"grace_months": 0,

		"guarantee_known":   t.Guarantee.Known(),
		"guarantee_certain": t.Guarantee.Certain(),
		"guarantee_type":    "",
		"guarantee_count":   0,
		"has_mortgage":      false,
		"has_pledge":        false,
		"has_guarantor":     false,
		"mortgage_rank":     0,

		"fee_count":       0,
		"opening_fee_pct": 0.0,
		"upfront_fee_pct": 0.0,

		"prepayment_known":          t.Prepayment.Known(),
		"prepayment_allowed":        true,
		"prepayment_penalty_pct":    0.0,
		"prepayment_penalty_months": 0,

		"acceleration":    false,
		"trigger_count":   0,
		"cure_days":       0,
		"cross_default":   t.HasClause(ClauseCrossDefault),
		"covenant_count":  len(t.Covenants()),
		"negative_pledge": t.HasClause(ClauseNegativePledge),

		"balloon":     0.0,
		"has_balloon": false,

		"tranche_count": len(t.Tranches),
	}

	if t.Principal.Known() {
		f["principal"] = t.Principal.Value.Float()
		f["currency"] = t.Principal.Value.Currency
	}

	if t.Rate.Known() {
		r := t.Rate.Value
		f["rate_pct"] = r.Annual * 100
		f["variable"] = r.Behavior == RateVariable
		if r.Formula != nil {
			f["index"] = r.Formula.Index
			f["spread_bps"] = r.Formula.SpreadBps
			f["reset_months"] = r.Formula.ResetMonths
			if r.Formula.Cap != nil {
				f["has_cap"] = true
				f["cap_pct"] = *r.Formula.Cap * 100
			}
			if r.Formula.Floor != nil {
				f["has_floor"] = true
				f["floor_pct"] = *r.Formula.Floor * 100
			}
		}
	}

	if t.TermMonths.Known() {
		f["term_months"] = t.TermMonths.Value
	}
	if t.Frequency.Known() {
		f["frequency"] = string(t.Frequency.Value)
		f["bullet"] = t.Frequency.Value == Bullet
	}
	if t.GraceMonths.Known() {
		f["grace_months"] = t.GraceMonths.Value
	}

	if t.Guarantee.Known() {
		g := t.Guarantee.Value
		f["guarantee_type"] = string(g.Type)
		f["guarantee_count"] = len(g.Kinds)
		f["mortgage_rank"] = g.MortgageRank
		for _, k := range g.Kinds {
			switch k {
			case KindMortgage:
				f["has_mortgage"] = true
			case KindPledge:
				f["has_pledge"] = true
			case KindGuarantor:
				f["has_guarantor"] = true
			}
		}
	}

	if t.Fees.Known() {
		f["fee_count"] = len(t.Fees.Value)
		upfront := 0.0
		for _, fee := range t.Fees.Value {
			if fee.Kind != FeePercent || fee.Timing != FeeUpfront {
				continue
			}
			upfront += fee.Percent
			if strings.Contains(fee.Label, "opening") {
				f["opening_fee_pct"] = fee.Percent
			}
		}
		f["upfront_fee_pct"] = upfront
	}

	if t.Prepayment.Known() {
		p := t.Prepayment.Value
		f["prepayment_allowed"] = p.Allowed
		f["prepayment_penalty_pct"] = p.PenaltyPct
		f["prepayment_penalty_months"] = p.PenaltyMonths
	}

	if t.Default.Known() {
		d := t.Default.Value
		f["acceleration"] = d.Acceleration || t.HasClause(ClauseAcceleration)
		f["trigger_count"] = d.TriggerCount
		f["cure_days"] = d.CureDays
	}

	if t.Balloon.Known() {
		f["balloon"] = t.Balloon.Value.Amount.InexactFloat64()
		f["has_balloon"] = true
	}

	certain := make(map[string]any)
	confidence := make(map[string]any)
	for _, fi := range t.Fields() {
		certain[fi.Name] = fi.Status == StatusFound && !fi.NeedsReview
		confidence[fi.Name] = fi.Confidence
	}
	f["certain"] = certain
	f["confidence"] = confidence

	return f
}
