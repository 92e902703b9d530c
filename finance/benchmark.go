package finance

import (
	"github.com/liamcoop/loanlens/contract"
	"github.com/liamcoop/loanlens/refdata"
)

// GeneralSector is the market segment used when the contract names no sector
const GeneralSector = "general"

// MarketComparison places the contract rate against the market reference of its segment
type MarketComparison struct {
	Available bool              `json:"available"`
	Reason    string            `json:"reason,omitempty"`
	Benchmark refdata.Benchmark `json:"benchmark"`
	// ContractRate is the annual rate compared, the initial all-in rate for variable loans
	ContractRate float64 `json:"contract_rate"`
	DeltaBps     float64 `json:"delta_bps"`
	// SectorDefaulted is set when the contract names no sector and the general segment stood in
	SectorDefaulted bool   `json:"sector_defaulted"`
	Note            string `json:"note,omitempty"`
}

const sectorDefaultedNote = "no sector found in the contract, compared against the general market segment"

// CompareToMarket looks up the benchmark for the segment of terms. The lookup is exact:
// a segment missing from the market table yields an unavailable comparison, never a neighbour's rate.
func CompareToMarket(terms *contract.ContractTerms, ref *refdata.Reference) MarketComparison {
	switch {
	case !terms.Principal.Known():
		return MarketComparison{Reason: "principal unknown"}
	case !terms.TermMonths.Known():
		return MarketComparison{Reason: "term unknown"}
	case !terms.Rate.Known():
		return MarketComparison{Reason: "rate unknown"}
	}

	rate, err := initialRate(terms.Rate.Value, ref)
	if err != nil {
		return MarketComparison{Reason: "no projection for the rate index"}
	}

	sector, defaulted := GeneralSector, true
	if terms.Sector.Known() && terms.Sector.Value != "" {
		sector, defaulted = terms.Sector.Value, false
	}
	note := ""
	if defaulted {
		note = sectorDefaultedNote
	}

	b, ok := ref.Market.Match(sector, terms.Principal.Value.Float(), terms.TermMonths.Value)
	if !ok {
		reason := "no market data for segment"
		if b.Size != "" {
			reason = "no market data for segment " + sector + "/" + b.Size + "/" + b.Term
		}
		return MarketComparison{Reason: reason, Benchmark: b, ContractRate: rate, SectorDefaulted: defaulted, Note: note}
	}
	return MarketComparison{
		Available:       true,
		Benchmark:       b,
		ContractRate:    rate,
		DeltaBps:        (rate - b.Rate) * 10000,
		SectorDefaulted: defaulted,
		Note:            note,
	}
}

// initialRate is the annual rate of the first period
func initialRate(r contract.Rate, ref *refdata.Reference) (float64, error) {
	l := Loan{Rate: r, Frequency: contract.Monthly}
	if r.Formula != nil {
		l.Curve, _ = ref.IndexCurve(r.Formula.Index)
	}
	return l.annualRate(0)
}

// Facts flattens the comparison into the "market" object seen by rule expressions
func (m MarketComparison) Facts() map[string]any {
	return map[string]any{
		"available":          m.Available,
		"reason":             m.Reason,
		"reference_rate_pct": m.Benchmark.Rate * 100,
		"delta_bps":          m.DeltaBps,
		"sector":             m.Benchmark.Sector,
		"size":               m.Benchmark.Size,
		"term":               m.Benchmark.Term,
		"sample_date":        m.Benchmark.SampleDate,
		"sector_defaulted":   m.SectorDefaulted,
	}
}
