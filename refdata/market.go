package refdata

import "strings"

// Benchmark is a matched market reference rate
type Benchmark struct {
	Sector     string  `json:"sector"`
	Size       string  `json:"size"`
	Term       string  `json:"term"`
	Rate       float64 `json:"rate"`
	SampleDate string  `json:"sample_date"`
}

// MarketTable looks up reference rates by segment
type MarketTable struct {
	sizes    []Bracket
	terms    []Bracket
	rates    map[segment]MarketRate
	discount float64
}

type segment struct {
	sector, size, term string
}

func newMarketTable(cfg MarketConfig) MarketTable {
	mt := MarketTable{
		sizes:    cfg.SizeBrackets,
		terms:    cfg.TermBrackets,
		rates:    make(map[segment]MarketRate, len(cfg.Rates)),
		discount: cfg.DefaultDiscountRate,
	}
	for _, r := range cfg.Rates {
		mt.rates[segment{normalizeSector(r.Sector), r.Size, r.Term}] = r
	}
	return mt
}

func normalizeSector(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func bracketFor(brackets []Bracket, v float64) (string, bool) {
	for _, b := range brackets {
		if b.Max == 0 || v < b.Max {
			return b.Name, true
		}
	}
	return "", false
}

// SizeBracket returns the size bracket a principal amount falls into
func (m MarketTable) SizeBracket(amount float64) (string, bool) {
	return bracketFor(m.sizes, amount)
}

// TermBracket returns the term bracket a term in months falls into.
// Term bounds are inclusive: a 12-month loan with a bracket max of 12 is in that bracket.
func (m MarketTable) TermBracket(months int) (string, bool) {
	for _, b := range m.terms {
		if b.Max == 0 || float64(months) <= b.Max {
			return b.Name, true
		}
	}
	return "", false
}

// Match finds the reference rate for a segment. It never falls back to a
// neighbouring segment: when the exact band is absent the second result is false.
func (m MarketTable) Match(sector string, amount float64, months int) (Benchmark, bool) {
	size, ok := m.SizeBracket(amount)
	if !ok {
		return Benchmark{}, false
	}
	term, ok := m.TermBracket(months)
	if !ok {
		return Benchmark{}, false
	}
	r, ok := m.rates[segment{normalizeSector(sector), size, term}]
	if !ok {
		return Benchmark{Sector: sector, Size: size, Term: term}, false
	}
	return Benchmark{
		Sector:     r.Sector,
		Size:       size,
		Term:       term,
		Rate:       r.Rate,
		SampleDate: r.SampleDate,
	}, true
}

// DefaultDiscountRate is used for present values when no benchmark matches
func (m MarketTable) DefaultDiscountRate() float64 {
	return m.discount
}
