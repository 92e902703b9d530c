package risk

import (
	"fmt"
	"math"

	"github.com/liamcoop/loanlens/contract"
	"github.com/liamcoop/loanlens/finance"
)

// scorecard accumulates the drivers of one category score
type scorecard struct {
	base    float64
	drivers []Driver
	missing []string
}

func (s *scorecard) add(points float64, format string, args ...any) {
	s.drivers = append(s.drivers, Driver{Factor: fmt.Sprintf(format, args...), Points: points})
}

func (s *scorecard) need(field string) {
	s.missing = append(s.missing, field)
}

func (s *scorecard) result() CategoryScore {
	total := s.base
	for _, d := range s.drivers {
		total += d.Points
	}
	drivers := s.drivers
	if drivers == nil {
		drivers = []Driver{}
	}
	missing := s.missing
	if missing == nil {
		missing = []string{}
	}
	return CategoryScore{Score: clamp(total), Drivers: drivers, MissingInputs: missing}
}

func clamp(v float64) float64 {
	return math.Max(0, math.Min(100, v))
}

type scorer func(t *contract.ContractTerms, m finance.MarketComparison) CategoryScore

var scorers = map[Category]scorer{
	Liquidity:    scoreLiquidity,
	InterestRate: scoreInterestRate,
	Operational:  scoreOperational,
	Legal:        scoreLegal,
	Prepayment:   scorePrepayment,
}

// scoreLiquidity reads the payment structure: frequency, bullet or balloon, grace, term and debt service burden
func scoreLiquidity(t *contract.ContractTerms, m finance.MarketComparison) CategoryScore {
	s := scorecard{base: 30}

	bullet := t.Frequency.Known() && t.Frequency.Value == contract.Bullet
	switch {
	case !t.Frequency.Known():
		s.need("frequency")
	case bullet:
		s.add(25, "principal repaid in a single payment at maturity")
	case t.Frequency.Value == contract.Annual:
		s.add(10, "annual payments concentrate cash needs")
	case t.Frequency.Value == contract.Monthly:
		s.add(-5, "monthly payments spread the cash burden")
	}

	if t.Balloon.Known() && t.Principal.Known() && t.Principal.Value.Float() > 0 {
		share := t.Balloon.Value.Amount.InexactFloat64() / t.Principal.Value.Float()
		if share >= 0.5 {
			s.add(20, "balloon of %.0f%% of principal", share*100)
		} else if share > 0 {
			s.add(10, "balloon of %.0f%% of principal", share*100)
		}
	}

	if t.GraceMonths.Known() && t.GraceMonths.Value > 0 {
		if t.GraceMonths.Value >= 12 {
			s.add(10, "%d-month grace period defers repayment", t.GraceMonths.Value)
		} else {
			s.add(-5, "%d-month grace period eases initial cash flow", t.GraceMonths.Value)
		}
	}

	if !t.TermMonths.Known() {
		s.need("term_months")
	} else if t.TermMonths.Value > 60 {
		s.add(-10, "%d-month term lowers the periodic burden", t.TermMonths.Value)
	} else if t.TermMonths.Value < 12 {
		s.add(15, "%d-month term leaves little time to repay", t.TermMonths.Value)
	}

	if !bullet {
		if burden, ok := annualBurden(t, m); ok {
			switch {
			case burden > 0.6:
				s.add(30, "annual debt service is %.0f%% of principal", burden*100)
			case burden > 0.4:
				s.add(15, "annual debt service is %.0f%% of principal", burden*100)
			}
		} else {
			if !t.Principal.Known() {
				s.need("principal")
			}
			if !t.Rate.Known() {
				s.need("rate")
			}
		}
	}

	if t.Fees.Known() {
		var upfront float64
		for _, f := range t.Fees.Value {
			if f.Kind == contract.FeePercent && f.Timing == contract.FeeUpfront {
				upfront += f.Percent
			}
		}
		if upfront > 2.5 {
			s.add(10, "upfront fees of %.2f%% reduce the net amount received", upfront)
		}
	}
	return s.result()
}

// annualBurden is twelve level monthly payments over the principal
func annualBurden(t *contract.ContractTerms, m finance.MarketComparison) (float64, bool) {
	if !t.Principal.Known() || !t.Rate.Known() || !t.TermMonths.Known() || t.TermMonths.Value <= 0 {
		return 0, false
	}
	p := t.Principal.Value.Float()
	if p <= 0 {
		return 0, false
	}
	annual := t.Rate.Value.Annual
	if m.ContractRate > 0 {
		annual = m.ContractRate
	}
	n := float64(t.TermMonths.Value)
	i := annual / 12
	pmt := p / n
	if i > 0 {
		pmt = p * i / (1 - math.Pow(1+i, -n))
	}
	return pmt * 12 / p, true
}

// scoreInterestRate reads rate behavior, cap/floor protection, spread and the gap to market
func scoreInterestRate(t *contract.ContractTerms, m finance.MarketComparison) CategoryScore {
	s := scorecard{base: 20}
	if !t.Rate.Known() {
		s.need("rate")
		s.add(30, "rate unknown")
		return s.result()
	}

	r := t.Rate.Value
	if r.Behavior == contract.RateVariable {
		s.add(25, "variable rate exposed to index movements")
		if f := r.Formula; f != nil {
			if f.Cap != nil {
				s.add(-10, "cap at %.2f%% limits increases", *f.Cap*100)
			}
			if f.Floor != nil {
				s.add(5, "floor at %.2f%% limits the benefit of decreases", *f.Floor*100)
			}
			switch {
			case f.SpreadBps > 400:
				s.add(15, "spread of %.0f bps is high", f.SpreadBps)
			case f.SpreadBps > 0 && f.SpreadBps < 200:
				s.add(-5, "spread of %.0f bps is competitive", f.SpreadBps)
			}
		}
	} else {
		s.add(-10, "fixed rate gives certain costs")
	}

	if !m.Available {
		s.need("benchmark")
		return s.result()
	}
	switch d := m.DeltaBps; {
	case d > 300:
		s.add(25, "rate %.0f bps above market", d)
	case d > 150:
		s.add(15, "rate %.0f bps above market", d)
	case d < -100:
		s.add(-10, "rate %.0f bps below market", -d)
	}
	return s.result()
}

// scoreOperational reads covenants, events of default and cross-default
func scoreOperational(t *contract.ContractTerms, _ finance.MarketComparison) CategoryScore {
	s := scorecard{base: 20}

	if !t.SpecialClauses.Known() {
		s.need("special_clauses")
	} else {
		covenants := t.Covenants()
		switch n := len(covenants); {
		case n > 4:
			s.add(20, "%d financial covenants", n)
		case n > 2:
			s.add(10, "%d financial covenants", n)
		}
		for _, c := range covenants {
			switch c.Metric {
			case "dscr":
				if c.Threshold >= 1.5 {
					s.add(15, "DSCR of at least %.2f is demanding", c.Threshold)
				} else if c.Threshold >= 1.25 {
					s.add(5, "DSCR of at least %.2f is standard", c.Threshold)
				}
			case "leverage":
				if c.Threshold > 0 && c.Threshold <= 2.5 {
					s.add(15, "leverage capped at %.1fx is restrictive", c.Threshold)
				} else if c.Threshold > 0 && c.Threshold <= 3.5 {
					s.add(5, "leverage capped at %.1fx is standard", c.Threshold)
				}
			}
		}
		if t.HasClause(contract.ClauseNegativePledge) {
			s.add(10, "negative pledge limits future financing")
		}
		if t.HasClause(contract.ClauseCrossDefault) {
			s.add(15, "cross-default links this loan to other debts")
		}
	}

	if !t.Default.Known() {
		s.need("default_clause")
		return s.result()
	}
	d := t.Default.Value
	switch n := d.TriggerCount; {
	case n > 5:
		s.add(20, "%d events of default", n)
	case n > 3:
		s.add(12, "%d events of default", n)
	case n > 0:
		s.add(float64(n)*2, "%d events of default", n)
	}
	if d.Acceleration || t.HasClause(contract.ClauseAcceleration) {
		s.add(5, "lender may accelerate the loan")
	}
	if d.CureDays > 0 && d.CureDays < 15 {
		s.add(5, "cure period of only %d days", d.CureDays)
	}
	return s.result()
}

// scoreLegal reads the guarantee package and jurisdiction
func scoreLegal(t *contract.ContractTerms, _ finance.MarketComparison) CategoryScore {
	s := scorecard{base: 20}

	if !t.Guarantee.Known() {
		s.need("guarantee")
	} else {
		g := t.Guarantee.Value
		switch g.Type {
		case contract.GuaranteeMixed:
			s.add(25, "business and personal assets both pledged")
		case contract.GuaranteeReal:
			s.add(20, "business assets pledged")
		case contract.GuaranteePersonal:
			s.add(10, "personal guarantee commits the guarantor's estate")
		case contract.GuaranteeNone:
			s.add(-10, "no guarantees required")
		}
		switch g.MortgageRank {
		case 1:
			s.add(10, "first-rank mortgage gives the lender full priority")
		case 2:
			s.add(5, "second-rank mortgage")
		}
		if len(g.Kinds) >= 3 {
			s.add(15, "%d guarantee instruments", len(g.Kinds))
		}
	}

	if !t.Jurisdiction.Known() {
		s.need("jurisdiction")
	}
	return s.result()
}

// scorePrepayment reads whether and at what cost the loan can be repaid early
func scorePrepayment(t *contract.ContractTerms, _ finance.MarketComparison) CategoryScore {
	s := scorecard{base: 10}
	if !t.Prepayment.Known() {
		s.need("prepayment")
		s.add(30, "prepayment terms unknown")
		return s.result()
	}

	p := t.Prepayment.Value
	if !p.Allowed {
		s.add(50, "early repayment not permitted")
		return s.result()
	}
	switch pct := p.PenaltyPct; {
	case pct > 2.5:
		s.add(35, "penalty of %.2f%% is very high", pct)
	case pct > 1.5:
		s.add(20, "penalty of %.2f%% limits flexibility", pct)
	case pct > 0:
		s.add(10, "penalty of %.2f%%", pct)
	default:
		s.add(-10, "no prepayment penalty")
	}
	switch m := p.PenaltyMonths; {
	case m > 18:
		s.add(10, "penalty applies for %d months", m)
	case m > 12:
		s.add(5, "penalty applies for %d months", m)
	}
	return s.result()
}
