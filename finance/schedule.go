// Package finance computes amortization schedules and cost metrics for extracted contract terms.
// Every function is pure: results depend only on the terms and the reference snapshot.
package finance

import (
	"errors"
	"fmt"
	"math"

	"github.com/liamcoop/loanlens/contract"
)

var (
	// ErrInvalidInput reports terms that cannot produce a schedule
	ErrInvalidInput = errors.New("invalid input")
	// ErrNoConvergence reports that the effective cost solver gave up
	ErrNoConvergence = errors.New("solver did not converge")
)

// Period is one row of an amortization schedule. Rate is the annual rate applied in the period.
type Period struct {
	Index          int     `json:"index"`
	Month          int     `json:"month"`
	OpeningBalance float64 `json:"opening_balance"`
	Payment        float64 `json:"payment"`
	Interest       float64 `json:"interest"`
	Principal      float64 `json:"principal"`
	Fees           float64 `json:"fees"`
	ClosingBalance float64 `json:"closing_balance"`
	Rate           float64 `json:"rate"`
}

// Outflow is everything the borrower pays in the period
func (p Period) Outflow() float64 {
	return p.Payment + p.Fees
}

// Schedule is the full repayment plan of one loan or tranche.
// The final closing balance equals Balloon, which is due together with the last payment.
type Schedule struct {
	Label          string   `json:"label,omitempty"`
	Currency       string   `json:"currency,omitempty"`
	PeriodsPerYear int      `json:"periods_per_year"`
	Periods        []Period `json:"periods"`
	Balloon        float64  `json:"balloon"`
	UpfrontFees    float64  `json:"upfront_fees"`
}

// Disbursement is the principal of the schedule
func (s Schedule) Disbursement() float64 {
	if len(s.Periods) == 0 {
		return 0
	}
	return s.Periods[0].OpeningBalance
}

// TotalInterest sums the interest column
func (s Schedule) TotalInterest() float64 {
	var t float64
	for _, p := range s.Periods {
		t += p.Interest
	}
	return t
}

// TotalFees sums upfront and periodic fees
func (s Schedule) TotalFees() float64 {
	t := s.UpfrontFees
	for _, p := range s.Periods {
		t += p.Fees
	}
	return t
}

// TotalPaid is every amount the borrower pays, balloon and upfront fees included
func (s Schedule) TotalPaid() float64 {
	t := s.Balloon + s.UpfrontFees
	for _, p := range s.Periods {
		t += p.Outflow()
	}
	return t
}

// AveragePayment is the mean outflow per period, balloon excluded
func (s Schedule) AveragePayment() float64 {
	if len(s.Periods) == 0 {
		return 0
	}
	var t float64
	for _, p := range s.Periods {
		t += p.Outflow()
	}
	return t / float64(len(s.Periods))
}

// Loan is the calculation input for one schedule
type Loan struct {
	Label       string
	Currency    string
	Principal   float64
	Rate        contract.Rate
	TermMonths  int
	Frequency   contract.Frequency
	GraceMonths int
	Balloon     float64
	Fees        []contract.Fee
	// Curve holds projected annual levels of the rate index, one per year
	Curve []float64
	// ShiftBps moves the index path, for sensitivity scenarios
	ShiftBps float64
}

func (l Loan) validate() error {
	switch {
	case l.Principal <= 0:
		return fmt.Errorf("%w: principal must be positive", ErrInvalidInput)
	case l.TermMonths <= 0:
		return fmt.Errorf("%w: term must be positive, got %d months", ErrInvalidInput, l.TermMonths)
	case l.Frequency.PeriodsPerYear() == 0:
		return fmt.Errorf("%w: unknown payment frequency %q", ErrInvalidInput, l.Frequency)
	case l.Balloon < 0 || l.Balloon > l.Principal:
		return fmt.Errorf("%w: balloon must be between zero and the principal", ErrInvalidInput)
	case l.Rate.Behavior == contract.RateVariable && l.Rate.Formula == nil && l.Rate.Annual <= 0:
		return fmt.Errorf("%w: variable rate without a formula", ErrInvalidInput)
	case l.Rate.Behavior != contract.RateVariable && (l.Rate.Annual < 0 || l.Rate.Annual >= 1):
		return fmt.Errorf("%w: annual rate %.4f out of range", ErrInvalidInput, l.Rate.Annual)
	}
	return nil
}

// annualRate returns the rate in force for a period starting at month
func (l Loan) annualRate(month int) (float64, error) {
	r := l.Rate
	if r.Behavior != contract.RateVariable {
		return r.Annual, nil
	}
	if r.Formula == nil {
		return math.Max(r.Annual+l.ShiftBps/10000, 0), nil
	}
	f := r.Formula
	var level float64
	switch {
	case len(l.Curve) > 0:
		reset := f.ResetMonths
		if reset <= 0 {
			reset = 12 / l.Frequency.PeriodsPerYear()
		}
		fixing := month / reset * reset
		year := fixing / 12
		if year >= len(l.Curve) {
			year = len(l.Curve) - 1
		}
		level = l.Curve[year] + f.SpreadBps/10000
	case r.Annual > 0:
		level = r.Annual
	default:
		return 0, fmt.Errorf("%w: no projection for index %s", ErrInvalidInput, f.Index)
	}
	level += l.ShiftBps / 10000
	if f.Cap != nil && level > *f.Cap {
		level = *f.Cap
	}
	if f.Floor != nil && level < *f.Floor {
		level = *f.Floor
	}
	return math.Max(level, 0), nil
}

// periodicRate converts an annual rate to the rate per period
func periodicRate(annual float64, basis contract.RateBasis, ppy int) float64 {
	if basis == contract.BasisEffective {
		return math.Pow(1+annual, 1/float64(ppy)) - 1
	}
	return annual / float64(ppy)
}

// annuity is the level payment that takes balance to residual over n periods at rate i
func annuity(balance, residual, i float64, n int) float64 {
	if n <= 0 {
		return balance - residual
	}
	if i == 0 {
		return (balance - residual) / float64(n)
	}
	v := math.Pow(1+i, -float64(n))
	return (balance - residual*v) * i / (1 - v)
}

// Amortize builds the repayment schedule of a loan: French annuity after an
// interest-only grace period, amortizing down to the balloon, or interest-only
// with the whole principal as balloon for bullet loans. Variable rates are
// re-fixed at every reset from the index curve and the payment is recomputed
// whenever the rate changes.
func Amortize(l Loan) (Schedule, error) {
	if err := l.validate(); err != nil {
		return Schedule{}, err
	}

	ppy := l.Frequency.PeriodsPerYear()
	step := 12 / ppy
	n := (l.TermMonths + step - 1) / step
	grace := l.GraceMonths / step
	residual := l.Balloon
	if l.Frequency == contract.Bullet {
		grace, residual = n, l.Principal
	} else if grace >= n {
		return Schedule{}, fmt.Errorf("%w: grace period covers the whole term", ErrInvalidInput)
	}

	s := Schedule{
		Label:          l.Label,
		Currency:       l.Currency,
		PeriodsPerYear: ppy,
		Periods:        make([]Period, 0, n),
		Balloon:        residual,
		UpfrontFees:    upfrontFees(l.Fees, l.Principal),
	}

	balance := l.Principal
	payment := 0.0
	lastRate := -1.0
	for k := 0; k < n; k++ {
		month := k * step
		annual, err := l.annualRate(month)
		if err != nil {
			return Schedule{}, err
		}
		i := periodicRate(annual, l.Rate.Basis, ppy)

		p := Period{Index: k + 1, Month: month + step, OpeningBalance: balance, Rate: annual}
		p.Interest = balance * i

		switch {
		case k < grace:
		case k == n-1:
			p.Principal = balance - residual
		default:
			if annual != lastRate || k == grace {
				payment = annuity(balance, residual, i, n-k)
			}
			p.Principal = payment - p.Interest
		}
		lastRate = annual

		p.Payment = p.Interest + p.Principal
		p.ClosingBalance = balance - p.Principal
		if k == n-1 {
			p.ClosingBalance = residual
		}
		p.Fees = periodicFees(l.Fees, balance, month+step)

		s.Periods = append(s.Periods, p)
		balance = p.ClosingBalance
	}
	return s, nil
}

// upfrontFees are deducted from the disbursement
func upfrontFees(fees []contract.Fee, principal float64) float64 {
	var t float64
	for _, f := range fees {
		if f.Timing != contract.FeeUpfront {
			continue
		}
		t += feeAmount(f, principal)
	}
	return t
}

// periodicFees charges periodic fees every period and annual fees on each anniversary.
// Percent fees apply to the opening balance of the period.
func periodicFees(fees []contract.Fee, opening float64, month int) float64 {
	var t float64
	for _, f := range fees {
		switch f.Timing {
		case contract.FeePeriodic:
			t += feeAmount(f, opening)
		case contract.FeeAnnual:
			if month%12 == 0 {
				t += feeAmount(f, opening)
			}
		}
	}
	return t
}

func feeAmount(f contract.Fee, base float64) float64 {
	if f.Kind == contract.FeePercent {
		return base * f.Percent / 100
	}
	return f.Amount.InexactFloat64()
}
