package finance

import (
	"errors"
	"fmt"

	"github.com/liamcoop/loanlens/contract"
	"github.com/liamcoop/loanlens/refdata"
)

// Result is the output of one calculation
type Result struct {
	Schedules []Schedule  `json:"schedules"`
	Costs     CostMetrics `json:"costs"`
	Warnings  []string    `json:"warnings,omitempty"`
}

// Calculator computes schedules and costs against one reference snapshot
type Calculator struct {
	ref    *refdata.Reference
	solver Solver
}

// New creates a calculator bound to ref
func New(ref *refdata.Reference) *Calculator {
	return &Calculator{
		ref:    ref,
		solver: Solver{MaxIterations: ref.Solver.MaxIterations, Tolerance: ref.Solver.Tolerance},
	}
}

// Calculate builds the amortization schedules of terms and the contract-level cost metrics.
// It never fails: figures that cannot be computed are returned unavailable with a reason.
func (c *Calculator) Calculate(terms *contract.ContractTerms) Result {
	var res Result
	market := CompareToMarket(terms, c.ref)

	loans, warnings, err := c.loans(terms)
	res.Warnings = warnings
	if err != nil {
		res.Costs = Unavailable(err.Error())
		res.Costs.Benchmark = market
		res.Costs.DiscountRate = c.discountRate(market)
		return res
	}

	schedules, err := amortizeAll(loans)
	if err != nil {
		res.Costs = Unavailable(err.Error())
		res.Costs.Benchmark = market
		res.Costs.DiscountRate = c.discountRate(market)
		return res
	}
	res.Schedules = schedules
	res.Costs = c.costs(terms, loans, schedules, market)
	return res
}

func amortizeAll(loans []Loan) ([]Schedule, error) {
	out := make([]Schedule, 0, len(loans))
	for _, l := range loans {
		s, err := Amortize(l)
		if err != nil {
			if l.Label != "" {
				return nil, fmt.Errorf("tranche %s: %w", l.Label, err)
			}
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func (c *Calculator) discountRate(m MarketComparison) float64 {
	if m.Available {
		return m.Benchmark.Rate
	}
	return c.ref.Market.DefaultDiscountRate()
}

func (c *Calculator) costs(terms *contract.ContractTerms, loans []Loan, schedules []Schedule, market MarketComparison) CostMetrics {
	m := CostMetrics{
		Benchmark:    market,
		DiscountRate: c.discountRate(market),
	}

	var interest, fees, paid float64
	for _, s := range schedules {
		interest += s.TotalInterest()
		fees += s.TotalFees()
		paid += s.TotalPaid()
	}
	m.TotalInterest = known(interest)
	m.TotalFees = known(fees)
	m.TotalPaid = known(paid)

	flows := cashFlows(schedules)
	if r, err := c.solver.IRR(flows); err != nil {
		reason := err.Error()
		if errors.Is(err, ErrNoConvergence) {
			reason = "effective cost did not converge: " + reason
		}
		m.EffectiveAnnualCost = unavailable(reason)
		m.NominalEffectiveRate = unavailable(reason)
	} else {
		m.EffectiveAnnualCost = known(Annualize(r))
		m.NominalEffectiveRate = known(r * 12)
	}
	m.NPVFinancingCost = known(presentCost(flows, m.DiscountRate))

	m.Sensitivity = c.sensitivity(terms, loans, schedules)
	m.Prepayment = c.prepayment(terms, schedules)
	m.CriticalPeriods = criticalPeriods(schedules, c.ref.Report.CriticalPeriodFactor)
	return m
}

// sensitivity replays the schedules with the index path shifted by each configured delta
func (c *Calculator) sensitivity(terms *contract.ContractTerms, loans []Loan, base []Schedule) Sensitivity {
	if !terms.IsVariable() {
		return Sensitivity{Reason: notApplicable + "fixed rate"}
	}
	if len(c.ref.SensitivityBps) == 0 {
		return Sensitivity{Reason: "no sensitivity deltas configured"}
	}

	baseAvg := averagePayment(base)
	out := Sensitivity{Available: true, Scenarios: make([]SensitivityScenario, 0, len(c.ref.SensitivityBps))}
	for _, delta := range c.ref.SensitivityBps {
		shifted := make([]Loan, len(loans))
		for i, l := range loans {
			l.ShiftBps = delta
			shifted[i] = l
		}
		schedules, err := amortizeAll(shifted)
		if err != nil {
			return Sensitivity{Reason: fmt.Sprintf("scenario %+.0f bps: %v", delta, err)}
		}
		sc := SensitivityScenario{DeltaBps: delta, AveragePayment: averagePayment(schedules)}
		for _, s := range schedules {
			sc.TotalInterest += s.TotalInterest()
			if n := len(s.Periods); n > 0 {
				sc.FinalBalance += s.Periods[n-1].ClosingBalance
			}
		}
		if r, err := c.solver.IRR(cashFlows(schedules)); err != nil {
			sc.EffectiveAnnualCost = unavailable(err.Error())
		} else {
			sc.EffectiveAnnualCost = known(Annualize(r))
		}
		if baseAvg > 0 {
			sc.PaymentChangePct = (sc.AveragePayment - baseAvg) / baseAvg * 100
		}
		out.Scenarios = append(out.Scenarios, sc)
	}
	return out
}

func averagePayment(schedules []Schedule) float64 {
	var t float64
	for _, s := range schedules {
		t += s.AveragePayment()
	}
	return t
}

// prepayment prices repaying everything outstanding at the configured month
func (c *Calculator) prepayment(terms *contract.ContractTerms, schedules []Schedule) PrepaymentScenario {
	month := c.ref.Report.PrepaymentMonth
	sc := PrepaymentScenario{Month: month}
	switch {
	case !terms.Prepayment.Known():
		sc.Reason = "prepayment clause not found"
		return sc
	case !terms.Prepayment.Value.Allowed:
		sc.Reason = notApplicable + "prepayment not permitted"
		return sc
	case month <= 0:
		sc.Reason = "no prepayment month configured"
		return sc
	}

	last := 0
	for _, s := range schedules {
		if n := len(s.Periods); n > 0 {
			last = max(last, s.Periods[n-1].Month)
		}
	}
	if month >= last {
		sc.Reason = fmt.Sprintf("month %d is not before maturity", month)
		return sc
	}

	for _, s := range schedules {
		balance := s.Disbursement()
		for _, p := range s.Periods {
			if p.Month <= month {
				balance = p.ClosingBalance
				continue
			}
			sc.InterestSaved += p.Interest + p.Fees
		}
		sc.Balance += balance
	}

	p := terms.Prepayment.Value
	sc.PenaltyApplies = p.PenaltyPct > 0 && (p.PenaltyMonths == 0 || month <= p.PenaltyMonths)
	if sc.PenaltyApplies {
		sc.Penalty = sc.Balance * p.PenaltyPct / 100
	}
	sc.NetSaving = sc.InterestSaved - sc.Penalty
	sc.Available = true
	return sc
}

// loans turns terms into calculation inputs, one per tranche or a single one for the whole contract
func (c *Calculator) loans(terms *contract.ContractTerms) ([]Loan, []string, error) {
	var warnings []string

	var fees []contract.Fee
	if terms.Fees.Known() {
		fees = terms.Fees.Value
	}
	grace := 0
	if terms.GraceMonths.Known() {
		grace = terms.GraceMonths.Value
	}

	if len(terms.Tranches) == 0 {
		switch {
		case !terms.Principal.Known():
			return nil, warnings, fmt.Errorf("%w: principal unknown", ErrInvalidInput)
		case !terms.Rate.Known():
			return nil, warnings, fmt.Errorf("%w: rate unknown", ErrInvalidInput)
		case !terms.TermMonths.Known():
			return nil, warnings, fmt.Errorf("%w: term unknown", ErrInvalidInput)
		case !terms.Frequency.Known():
			return nil, warnings, fmt.Errorf("%w: frequency unknown", ErrInvalidInput)
		}
		l := Loan{
			Currency:    terms.Principal.Value.Currency,
			Principal:   terms.Principal.Value.Float(),
			Rate:        terms.Rate.Value,
			TermMonths:  terms.TermMonths.Value,
			Frequency:   terms.Frequency.Value,
			GraceMonths: grace,
			Fees:        fees,
		}
		if terms.Balloon.Known() {
			l.Balloon = terms.Balloon.Value.Amount.InexactFloat64()
		}
		if w := c.attachCurve(&l); w != "" {
			warnings = append(warnings, w)
		}
		return []Loan{l}, warnings, nil
	}

	var out []Loan
	for i, t := range terms.Tranches {
		l := Loan{Label: t.Label, GraceMonths: grace}
		if !t.Principal.Known() {
			return nil, warnings, fmt.Errorf("%w: tranche %s principal unknown", ErrInvalidInput, t.Label)
		}
		l.Principal = t.Principal.Value.Float()
		l.Currency = t.Principal.Value.Currency

		switch {
		case t.Rate.Known():
			l.Rate = t.Rate.Value
		case terms.Rate.Known():
			l.Rate = terms.Rate.Value
		default:
			return nil, warnings, fmt.Errorf("%w: tranche %s rate unknown", ErrInvalidInput, t.Label)
		}
		switch {
		case t.TermMonths.Known():
			l.TermMonths = t.TermMonths.Value
		case terms.TermMonths.Known():
			l.TermMonths = terms.TermMonths.Value
		default:
			return nil, warnings, fmt.Errorf("%w: tranche %s term unknown", ErrInvalidInput, t.Label)
		}
		switch {
		case t.Frequency.Known():
			l.Frequency = t.Frequency.Value
		case terms.Frequency.Known():
			l.Frequency = terms.Frequency.Value
		default:
			return nil, warnings, fmt.Errorf("%w: tranche %s frequency unknown", ErrInvalidInput, t.Label)
		}
		l.Fees = trancheFees(fees, i == 0)
		if w := c.attachCurve(&l); w != "" {
			warnings = append(warnings, fmt.Sprintf("tranche %s: %s", t.Label, w))
		}
		out = append(out, l)
	}
	return out, warnings, nil
}

// trancheFees keeps percentage fees for every tranche and fixed amounts for the first one only
func trancheFees(fees []contract.Fee, first bool) []contract.Fee {
	if first {
		return fees
	}
	var out []contract.Fee
	for _, f := range fees {
		if f.Kind == contract.FeePercent {
			out = append(out, f)
		}
	}
	return out
}

// attachCurve sets the projected index path of a variable loan. Without one the stated
// current rate is held flat, which is reported as a warning.
func (c *Calculator) attachCurve(l *Loan) string {
	if l.Rate.Formula == nil {
		return ""
	}
	if curve, ok := c.ref.IndexCurve(l.Rate.Formula.Index); ok {
		l.Curve = curve
		return ""
	}
	if l.Rate.Annual > 0 {
		return fmt.Sprintf("no projection for index %s, current rate held flat", l.Rate.Formula.Index)
	}
	return ""
}
