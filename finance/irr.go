package finance

import (
	"fmt"
	"math"
)

// Solver bounds the root search of IRR
type Solver struct {
	MaxIterations int
	Tolerance     float64
}

// NPV discounts flows[k] at rate per period. flows[0] is undiscounted.
func NPV(rate float64, flows []float64) float64 {
	var v float64
	d := 1.0
	for _, f := range flows {
		v += f / d
		d *= 1 + rate
	}
	return v
}

func npvDerivative(rate float64, flows []float64) float64 {
	var v float64
	for k, f := range flows {
		if k == 0 {
			continue
		}
		v -= float64(k) * f / math.Pow(1+rate, float64(k+1))
	}
	return v
}

// IRR returns the rate per period at which the flows have zero present value.
// Newton's method runs first; when it leaves the search interval or stalls, bisection takes over
// on [-0.99, 10]. The returned error wraps ErrNoConvergence when neither settles within the bounds.
func (s Solver) IRR(flows []float64) (float64, error) {
	if len(flows) < 2 {
		return 0, fmt.Errorf("%w: at least two cash flows are required", ErrInvalidInput)
	}
	var pos, neg bool
	for _, f := range flows {
		pos = pos || f > 0
		neg = neg || f < 0
	}
	if !pos || !neg {
		return 0, fmt.Errorf("%w: cash flows never change sign", ErrNoConvergence)
	}

	maxIter := s.MaxIterations
	if maxIter <= 0 {
		maxIter = 100
	}
	tol := s.Tolerance
	if tol <= 0 {
		tol = 1e-8
	}

	const lo, hi = -0.99, 10.0

	r := 0.01
	for i := 0; i < maxIter; i++ {
		v := NPV(r, flows)
		if math.Abs(v) < tol*math.Max(1, math.Abs(flows[0])) {
			return r, nil
		}
		d := npvDerivative(r, flows)
		if d == 0 || math.IsNaN(d) {
			break
		}
		next := r - v/d
		if next <= lo || next >= hi || math.IsNaN(next) {
			break
		}
		if math.Abs(next-r) < tol {
			return next, nil
		}
		r = next
	}

	a, b := lo, hi
	fa := NPV(a, flows)
	if fa*NPV(b, flows) > 0 {
		return 0, fmt.Errorf("%w: no sign change in [%.2f, %.2f]", ErrNoConvergence, lo, hi)
	}
	for i := 0; i < maxIter; i++ {
		m := (a + b) / 2
		fm := NPV(m, flows)
		if math.Abs(fm) < tol*math.Max(1, math.Abs(flows[0])) || (b-a)/2 < tol {
			return m, nil
		}
		if fa*fm < 0 {
			b = m
		} else {
			a, fa = m, fm
		}
	}
	return 0, fmt.Errorf("%w after %d iterations", ErrNoConvergence, maxIter)
}

// Annualize compounds a monthly rate into an effective annual rate
func Annualize(monthly float64) float64 {
	return math.Pow(1+monthly, 12) - 1
}

// monthlyRate converts an annual effective rate to its monthly equivalent
func monthlyRate(annual float64) float64 {
	return math.Pow(1+annual, 1.0/12) - 1
}
