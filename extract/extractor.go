// Package extract turns contract text into a contract.ContractTerms record.
//
// Two independent strategies read the same document concurrently: a pattern
// matcher for canonical numeric formats and a semantic matcher for the same
// concepts in looser phrasing. Their findings are reconciled field by field;
// agreement raises confidence, disagreement keeps both candidates and marks the
// field ambiguous. Extraction never fails: unreadable input yields missing fields.
package extract

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/liamcoop/loanlens/contract"
	"github.com/liamcoop/loanlens/refdata"
)

// Extractor runs the extraction strategies and reconciles their findings.
// It holds no per-document state and is safe for concurrent use.
type Extractor struct {
	pattern   Strategy
	semantic  Strategy
	tolerance refdata.ExtractionConfig
	threshold float64
}

// New returns an Extractor with the default strategies and the tolerances of ref
func New(ref *refdata.Reference) *Extractor {
	return NewWithStrategies(ref, PatternStrategy{}, SemanticStrategy{})
}

// NewWithStrategies returns an Extractor using the given strategies.
// The first strategy wins ties when reconciling.
func NewWithStrategies(ref *refdata.Reference, pattern, semantic Strategy) *Extractor {
	threshold := ref.ReviewThreshold
	if threshold <= 0 {
		threshold = contract.DefaultReviewThreshold
	}
	return &Extractor{
		pattern:   pattern,
		semantic:  semantic,
		tolerance: ref.Extraction,
		threshold: threshold,
	}
}

// coreFields contribute to the overall confidence of a terms record
var coreFields = map[string]bool{
	"principal":      true,
	"rate":           true,
	"term_months":    true,
	"frequency":      true,
	"guarantee":      true,
	"fees":           true,
	"prepayment":     true,
	"default_clause": true,
}

// Extract reads doc into a terms record. When ctx is done before both strategies
// finish, every field is returned missing with a warning.
func (e *Extractor) Extract(ctx context.Context, doc Document) contract.ContractTerms {
	terms, warnings := e.extract(ctx, doc)
	terms.ContractID = uuid.New()

	if strings.TrimSpace(doc.Text) == "" && len(doc.Regions) == 0 {
		warnings = append(warnings, "document is empty")
	}

	for _, sec := range trancheSections(doc) {
		if ctx.Err() != nil {
			break
		}
		sub, subWarnings := e.extract(ctx, sec.doc)
		for _, w := range subWarnings {
			warnings = append(warnings, "tranche "+sec.label+": "+w)
		}
		terms.Tranches = append(terms.Tranches, contract.Tranche{
			Label:      sec.label,
			Principal:  sub.Principal,
			Rate:       sub.Rate,
			TermMonths: sub.TermMonths,
			Frequency:  sub.Frequency,
		})
	}

	e.flag(terms)
	terms.OverallConfidence = overallConfidence(terms)
	terms.Warnings = append(warnings, fieldWarnings(terms)...)
	return *terms
}

// extract runs both strategies and waits for both before reconciling
func (e *Extractor) extract(ctx context.Context, doc Document) (*contract.ContractTerms, []string) {
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		results  [2]Findings
		warnings []string
	)
	run := func(i int, s Strategy) {
		defer wg.Done()
		defer func() {
			if r := recover(); r != nil {
				mu.Lock()
				warnings = append(warnings, fmt.Sprintf("%s strategy failed: %v", s.Name(), r))
				mu.Unlock()
			}
		}()
		results[i] = s.Extract(doc)
	}

	wg.Add(2)
	go run(0, e.pattern)
	go run(1, e.semantic)

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return Reconcile(Findings{}, Findings{}, e.tolerance), []string{"extraction abandoned: " + ctx.Err().Error()}
	}

	sort.Strings(warnings)
	return Reconcile(results[0], results[1], e.tolerance), warnings
}

func (e *Extractor) flag(t *contract.ContractTerms) {
	th := e.threshold
	t.Principal = t.Principal.Flag(th)
	t.Rate = t.Rate.Flag(th)
	t.TermMonths = t.TermMonths.Flag(th)
	t.Frequency = t.Frequency.Flag(th)
	t.Guarantee = t.Guarantee.Flag(th)
	t.Fees = t.Fees.Flag(th)
	t.Prepayment = t.Prepayment.Flag(th)
	t.Default = t.Default.Flag(th)
	t.SpecialClauses = t.SpecialClauses.Flag(th)
	t.GraceMonths = t.GraceMonths.Flag(th)
	t.Balloon = t.Balloon.Flag(th)
	t.PaymentCount = t.PaymentCount.Flag(th)
	t.Lender = t.Lender.Flag(th)
	t.Borrower = t.Borrower.Flag(th)
	t.Sector = t.Sector.Flag(th)
	t.Jurisdiction = t.Jurisdiction.Flag(th)
	for i := range t.Tranches {
		tr := &t.Tranches[i]
		tr.Principal = tr.Principal.Flag(th)
		tr.Rate = tr.Rate.Flag(th)
		tr.TermMonths = tr.TermMonths.Flag(th)
		tr.Frequency = tr.Frequency.Flag(th)
	}
}

// overallConfidence is the mean confidence of the core fields
func overallConfidence(t *contract.ContractTerms) float64 {
	var sum float64
	var n int
	for _, fi := range t.Fields() {
		if coreFields[fi.Name] {
			sum += fi.Confidence
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return math.Round(sum/float64(n)*1000) / 1000
}

func fieldWarnings(t *contract.ContractTerms) []string {
	var out []string
	for _, fi := range t.Fields() {
		switch {
		case fi.Status == contract.StatusMissing && !contract.IsOptional(fi.Name):
			out = append(out, fi.Name+": not found in the document")
		case fi.Status == contract.StatusAmbiguous:
			out = append(out, fi.Name+": extraction strategies disagree")
		}
	}
	return out
}
