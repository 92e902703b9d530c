// Package analysis runs the full pipeline for one contract or a batch of them:
// extraction, then the financial calculator and risk assessor side by side,
// then the narrative and the report.
package analysis

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/liamcoop/loanlens/extract"
	"github.com/liamcoop/loanlens/finance"
	"github.com/liamcoop/loanlens/internal/logger"
	"github.com/liamcoop/loanlens/narrative"
	"github.com/liamcoop/loanlens/refdata"
	"github.com/liamcoop/loanlens/report"
	"github.com/liamcoop/loanlens/risk"
)

// Pipeline stages reported to a Recorder
const (
	StageExtract   = "extract"
	StageFinance   = "finance"
	StageRisk      = "risk"
	StageNarrative = "narrative"
	StageReport    = "report"
)

// Input is one contract to analyze
type Input struct {
	// Name labels the contract in logs and batch results
	Name     string
	Document extract.Document
}

// Recorder observes analyses. Implementations must be safe for concurrent use.
type Recorder interface {
	ObserveStage(stage string, d time.Duration)
	ObserveReport(r *report.AnalysisReport, d time.Duration)
	ObserveAbandoned(stage string)
}

type nopRecorder struct{}

func (nopRecorder) ObserveStage(string, time.Duration)                  {}
func (nopRecorder) ObserveReport(*report.AnalysisReport, time.Duration) {}
func (nopRecorder) ObserveAbandoned(string)                             {}

// Analyzer runs the pipeline against one reference snapshot. It holds no per-contract
// state and is safe for concurrent use.
type Analyzer struct {
	ref        *refdata.Reference
	extractor  *extract.Extractor
	calculator *finance.Calculator
	assessor   *risk.Assessor
	narrator   *narrative.Engine
	assembler  *report.Assembler
	recorder   Recorder
}

// Option configures an Analyzer
type Option func(*Analyzer)

// WithRecorder reports stage timings and outcomes to r
func WithRecorder(r Recorder) Option {
	return func(a *Analyzer) {
		if r != nil {
			a.recorder = r
		}
	}
}

// WithClock sets the clock used to stamp reports
func WithClock(now func() time.Time) Option {
	return func(a *Analyzer) {
		a.assembler.WithClock(now)
	}
}

// WithExtractor replaces the default extractor
func WithExtractor(e *extract.Extractor) Option {
	return func(a *Analyzer) {
		a.extractor = e
	}
}

// New creates an analyzer bound to ref
func New(ref *refdata.Reference, opts ...Option) *Analyzer {
	a := &Analyzer{
		ref:        ref,
		extractor:  extract.New(ref),
		calculator: finance.New(ref),
		assessor:   risk.New(ref),
		narrator:   narrative.New(ref),
		assembler:  report.New(ref),
		recorder:   nopRecorder{},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Reference returns the snapshot the analyzer is bound to
func (a *Analyzer) Reference() *refdata.Reference {
	return a.ref
}

// Analyze produces the report for one contract. Gaps in the contract never fail the analysis;
// they are reported inside the report. The only error is ctx being done, in which case the
// analysis is abandoned without affecting any other.
func (a *Analyzer) Analyze(ctx context.Context, in Input) (*report.AnalysisReport, error) {
	start := time.Now()
	if err := ctx.Err(); err != nil {
		a.recorder.ObserveAbandoned(StageExtract)
		return nil, fmt.Errorf("analysis abandoned: %w", err)
	}

	t := time.Now()
	terms := a.extractor.Extract(ctx, in.Document)
	a.recorder.ObserveStage(StageExtract, time.Since(t))
	if err := ctx.Err(); err != nil {
		a.recorder.ObserveAbandoned(StageExtract)
		return nil, fmt.Errorf("analysis abandoned: %w", err)
	}

	var (
		fin        finance.Result
		assessment risk.Assessment
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		t := time.Now()
		fin = a.calculator.Calculate(&terms)
		a.recorder.ObserveStage(StageFinance, time.Since(t))
		return gctx.Err()
	})
	g.Go(func() error {
		t := time.Now()
		assessment = a.assessor.Assess(&terms)
		a.recorder.ObserveStage(StageRisk, time.Since(t))
		return gctx.Err()
	})
	if err := g.Wait(); err != nil {
		a.recorder.ObserveAbandoned(StageFinance)
		return nil, fmt.Errorf("analysis abandoned: %w", err)
	}

	t = time.Now()
	n := a.narrator.Compose(&terms, fin.Costs, assessment)
	a.recorder.ObserveStage(StageNarrative, time.Since(t))

	t = time.Now()
	r := a.assembler.Assemble(report.Inputs{
		Terms:     &terms,
		Financial: fin,
		Risk:      assessment,
		Narrative: n,
	})
	a.recorder.ObserveStage(StageReport, time.Since(t))

	elapsed := time.Since(start)
	a.recorder.ObserveReport(r, elapsed)

	logger.Debug("contract analyzed",
		"name", in.Name,
		"report_id", r.ID.String(),
		"contract_id", r.ContractID.String(),
		"reference_version", r.ReferenceVersion,
		"status", string(r.Status),
		"decision", string(r.Recommendation.Decision),
		"red_flags", len(r.Risk.RedFlags),
		"needs_review", len(r.NeedsReview),
		"duration_ms", elapsed.Milliseconds())
	if r.Status == report.StatusPartial {
		logger.WarnPartialReport("partial report",
			"name", in.Name,
			"report_id", r.ID.String(),
			"unavailable", len(r.Unavailable))
	}
	for _, w := range n.Warnings {
		logger.WarnRule("narrative rule warning", "report_id", r.ID.String(), "warning", w)
	}
	for _, w := range assessment.Warnings {
		logger.WarnRule("red flag rule warning", "report_id", r.ID.String(), "warning", w)
	}
	return r, nil
}
