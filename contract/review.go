package contract

import (
	"fmt"
	"math"
)

// ReviewItem lists a field that must be checked by a person
type ReviewItem struct {
	Field        string   `json:"field"`
	Status       Status   `json:"status"`
	Confidence   float64  `json:"confidence"`
	Alternatives []string `json:"alternatives,omitempty"`
}

// FieldInfo is a type-erased view of a field's metadata
type FieldInfo struct {
	Name         string
	Status       Status
	Confidence   float64
	NeedsReview  bool
	Alternatives []string
}

func info[T any](name string, f Field[T]) FieldInfo {
	fi := FieldInfo{
		Name:        name,
		Status:      f.Status,
		Confidence:  f.Confidence,
		NeedsReview: f.NeedsReview,
	}
	for _, alt := range f.Alternatives {
		fi.Alternatives = append(fi.Alternatives, fmt.Sprintf("%v (%s, %.2f)", alt.Value, alt.Strategy, alt.Confidence))
	}
	return fi
}

// Fields enumerates metadata for every field in a stable order, tranches included
func (t *ContractTerms) Fields() []FieldInfo {
	out := []FieldInfo{
		info("principal", t.Principal),
		info("rate", t.Rate),
		info("term_months", t.TermMonths),
		info("frequency", t.Frequency),
		info("guarantee", t.Guarantee),
		info("fees", t.Fees),
		info("prepayment", t.Prepayment),
		info("default_clause", t.Default),
		info("special_clauses", t.SpecialClauses),
		info("grace_months", t.GraceMonths),
		info("balloon", t.Balloon),
		info("payment_count", t.PaymentCount),
		info("lender", t.Lender),
		info("borrower", t.Borrower),
		info("sector", t.Sector),
		info("jurisdiction", t.Jurisdiction),
	}
	for _, tr := range t.Tranches {
		prefix := "tranche_" + tr.Label + "."
		out = append(out,
			info(prefix+"principal", tr.Principal),
			info(prefix+"rate", tr.Rate),
			info(prefix+"term_months", tr.TermMonths),
			info(prefix+"frequency", tr.Frequency),
		)
	}
	return out
}

// optionalFields are clauses whose absence is a normal outcome rather than a gap
var optionalFields = map[string]bool{
	"grace_months":    true,
	"balloon":         true,
	"payment_count":   true,
	"jurisdiction":    true,
	"sector":          true,
}

// NeedsReview returns every field whose confidence is below threshold.
// Optional clauses that were simply not present are skipped.
func (t *ContractTerms) NeedsReview(threshold float64) []ReviewItem {
	var items []ReviewItem
	for _, fi := range t.Fields() {
		if fi.Status == StatusMissing && optionalFields[fi.Name] {
			continue
		}
		if fi.Status == StatusFound && fi.Confidence >= threshold && !fi.NeedsReview {
			continue
		}
		items = append(items, ReviewItem{
			Field:        fi.Name,
			Status:       fi.Status,
			Confidence:   math.Round(fi.Confidence*1000) / 1000,
			Alternatives: fi.Alternatives,
		})
	}
	return items
}

// IsOptional reports whether a missing field is a normal outcome
func IsOptional(name string) bool {
	return optionalFields[name]
}
