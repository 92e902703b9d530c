package extract

import "github.com/liamcoop/loanlens/contract"

// Findings holds what one strategy proposes for each field. A nil candidate means
// the strategy found nothing for that field.
type Findings struct {
	Strategy string

	Principal      *contract.Candidate[contract.Money]
	Rate           *contract.Candidate[contract.Rate]
	TermMonths     *contract.Candidate[int]
	Frequency      *contract.Candidate[contract.Frequency]
	Guarantee      *contract.Candidate[contract.Guarantee]
	Fees           *contract.Candidate[[]contract.Fee]
	Prepayment     *contract.Candidate[contract.Prepayment]
	Default        *contract.Candidate[contract.DefaultClause]
	SpecialClauses *contract.Candidate[[]contract.SpecialClause]

	GraceMonths  *contract.Candidate[int]
	Balloon      *contract.Candidate[contract.Balloon]
	PaymentCount *contract.Candidate[int]
	Lender       *contract.Candidate[string]
	Borrower     *contract.Candidate[string]
	Sector       *contract.Candidate[string]
	Jurisdiction *contract.Candidate[string]
}

// Strategy proposes field values from a document.
// Implementations must be safe for concurrent use and must not retain doc.
type Strategy interface {
	Name() string
	Extract(doc Document) Findings
}

func candidate[T any](strategy string, v T, conf float64, src *contract.SourceRef) *contract.Candidate[T] {
	return &contract.Candidate[T]{Value: v, Confidence: conf, Strategy: strategy, Source: src}
}
