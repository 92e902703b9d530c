// Package contract holds the structured model of an analyzed loan contract.
// A ContractTerms value is produced once by extraction and never mutated afterwards.
package contract

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Money is a currency-tagged decimal amount
type Money struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

// Float returns the amount as float64 for numeric routines
func (m Money) Float() float64 {
	return m.Amount.InexactFloat64()
}

// NewMoney builds a Money value from a float amount
func NewMoney(amount float64, currency string) Money {
	return Money{Amount: decimal.NewFromFloat(amount), Currency: currency}
}

// RateBasis distinguishes nominal from effective annual rates
type RateBasis string

const (
	BasisNominal   RateBasis = "nominal"
	BasisEffective RateBasis = "effective"
)

// RateBehavior distinguishes fixed from variable rates
type RateBehavior string

const (
	RateFixed    RateBehavior = "fixed"
	RateVariable RateBehavior = "variable"
)

// RateFormula is a variable-rate adjustment expression: index + spread, reset periodically
type RateFormula struct {
	Index       string   `json:"index"`
	Tenor       string   `json:"tenor,omitempty"`
	SpreadBps   float64  `json:"spread_bps"`
	ResetMonths int      `json:"reset_months"`
	Cap         *float64 `json:"cap,omitempty"`
	Floor       *float64 `json:"floor,omitempty"`
}

// Rate is an annual interest rate expressed as a fraction (0.12 = 12%).
// For variable rates Annual holds the stated initial all-in rate when present, otherwise zero.
type Rate struct {
	Annual   float64      `json:"annual"`
	Basis    RateBasis    `json:"basis"`
	Behavior RateBehavior `json:"behavior"`
	Formula  *RateFormula `json:"formula,omitempty"`
}

// Frequency is the payment frequency of a loan
type Frequency string

const (
	Monthly    Frequency = "monthly"
	Quarterly  Frequency = "quarterly"
	Semiannual Frequency = "semiannual"
	Annual     Frequency = "annual"
	Bullet     Frequency = "bullet"
)

// PeriodsPerYear returns the number of payments per year.
// Bullet loans service interest monthly.
func (f Frequency) PeriodsPerYear() int {
	switch f {
	case Monthly, Bullet:
		return 12
	case Quarterly:
		return 4
	case Semiannual:
		return 2
	case Annual:
		return 1
	default:
		return 0
	}
}

// GuaranteeType classifies the collateral package
type GuaranteeType string

const (
	GuaranteeReal     GuaranteeType = "real"
	GuaranteePersonal GuaranteeType = "personal"
	GuaranteeMixed    GuaranteeType = "mixed"
	GuaranteeNone     GuaranteeType = "none"
)

// Guarantee describes collateral and personal guarantees
type Guarantee struct {
	Type         GuaranteeType `json:"type"`
	Detail       string        `json:"detail"`
	Kinds        []string      `json:"kinds,omitempty"`
	MortgageRank int           `json:"mortgage_rank,omitempty"`
}

// FeeKind tells whether a fee is a fixed amount or a percentage
type FeeKind string

const (
	FeeFixed   FeeKind = "fixed"
	FeePercent FeeKind = "percent"
)

// FeeTiming tells when a fee is charged
type FeeTiming string

const (
	FeeUpfront  FeeTiming = "upfront"
	FeePeriodic FeeTiming = "periodic"
	FeeAnnual   FeeTiming = "annual"
)

// Fee is a single commission or cost line.
// Percent is in percent units (2 = 2%) of principal for upfront fees and of the opening balance for periodic fees.
type Fee struct {
	Label   string          `json:"label"`
	Kind    FeeKind         `json:"kind"`
	Amount  decimal.Decimal `json:"amount"`
	Percent float64         `json:"percent"`
	Timing  FeeTiming       `json:"timing"`
}

// Prepayment describes the early repayment clause. PenaltyPct is in percent units of the prepaid balance.
type Prepayment struct {
	Allowed       bool    `json:"allowed"`
	PenaltyPct    float64 `json:"penalty_pct"`
	PenaltyMonths int     `json:"penalty_months,omitempty"`
}

// DefaultClause describes events of default and their consequences
type DefaultClause struct {
	Triggers     []string `json:"triggers"`
	Acceleration bool     `json:"acceleration"`
	TriggerCount int      `json:"trigger_count"`
	CureDays     int      `json:"cure_days,omitempty"`
	Consequences []string `json:"consequences,omitempty"`
}

// ClauseKind tags special clauses
type ClauseKind string

const (
	ClauseAcceleration   ClauseKind = "acceleration"
	ClauseCrossDefault   ClauseKind = "cross_default"
	ClauseCovenant       ClauseKind = "covenant"
	ClauseNegativePledge ClauseKind = "negative_pledge"
)

// SpecialClause is a tagged clause such as a financial covenant
type SpecialClause struct {
	Kind      ClauseKind `json:"kind"`
	Detail    string     `json:"detail"`
	Metric    string     `json:"metric,omitempty"`
	Operator  string     `json:"operator,omitempty"`
	Threshold float64    `json:"threshold,omitempty"`
}

// Balloon is an explicit lump sum due with the last payment
type Balloon struct {
	Amount decimal.Decimal `json:"amount"`
}

// Tranche is one drawdown of a multi-tranche facility
type Tranche struct {
	Label      string           `json:"label"`
	Principal  Field[Money]     `json:"principal"`
	Rate       Field[Rate]      `json:"rate"`
	TermMonths Field[int]       `json:"term_months"`
	Frequency  Field[Frequency] `json:"frequency"`
}

// ContractTerms is the structured record of one analyzed contract
type ContractTerms struct {
	ContractID     uuid.UUID              `json:"contract_id"`
	Principal      Field[Money]           `json:"principal"`
	Rate           Field[Rate]            `json:"rate"`
	TermMonths     Field[int]             `json:"term_months"`
	Frequency      Field[Frequency]       `json:"frequency"`
	Guarantee      Field[Guarantee]       `json:"guarantee"`
	Fees           Field[[]Fee]           `json:"fees"`
	Prepayment     Field[Prepayment]      `json:"prepayment"`
	Default        Field[DefaultClause]   `json:"default_clause"`
	SpecialClauses Field[[]SpecialClause] `json:"special_clauses"`

	GraceMonths  Field[int]     `json:"grace_months"`
	Balloon      Field[Balloon] `json:"balloon"`
	PaymentCount Field[int]     `json:"payment_count"`
	Lender       Field[string]  `json:"lender"`
	Borrower     Field[string]  `json:"borrower"`
	Sector       Field[string]  `json:"sector"`
	Jurisdiction Field[string]  `json:"jurisdiction"`

	Tranches          []Tranche `json:"tranches,omitempty"`
	OverallConfidence float64   `json:"overall_confidence"`
	Warnings          []string  `json:"warnings,omitempty"`
}

// HasClause reports whether a special clause of the given kind was found
func (t *ContractTerms) HasClause(kind ClauseKind) bool {
	if !t.SpecialClauses.Known() {
		return false
	}
	for _, c := range t.SpecialClauses.Value {
		if c.Kind == kind {
			return true
		}
	}
	return false
}

// Covenants returns the financial covenant clauses
func (t *ContractTerms) Covenants() []SpecialClause {
	var out []SpecialClause
	if !t.SpecialClauses.Known() {
		return out
	}
	for _, c := range t.SpecialClauses.Value {
		if c.Kind == ClauseCovenant {
			out = append(out, c)
		}
	}
	return out
}

// IsVariable reports whether the rate is known to be variable
func (t *ContractTerms) IsVariable() bool {
	return t.Rate.Known() && t.Rate.Value.Behavior == RateVariable
}

// FeeByLabel returns the first fee with the given label
func (t *ContractTerms) FeeByLabel(label string) (Fee, bool) {
	if !t.Fees.Known() {
		return Fee{}, false
	}
	for _, f := range t.Fees.Value {
		if f.Label == label {
			return f, true
		}
	}
	return Fee{}, false
}
