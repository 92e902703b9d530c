package analysis

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/liamcoop/loanlens/report"
)

// BatchResult is the outcome of one contract of a batch, in input order
type BatchResult struct {
	Index  int                    `json:"index"`
	Name   string                 `json:"name,omitempty"`
	Report *report.AnalysisReport `json:"report,omitempty"`
	Err    error                  `json:"-"`
	Error  string                 `json:"error,omitempty"`
}

// AnalyzeBatch analyzes inputs with at most concurrency analyses in flight.
// A non-positive concurrency uses the number of CPUs. Contracts are independent:
// an abandoned analysis is reported in its own result and the others carry on.
func (a *Analyzer) AnalyzeBatch(ctx context.Context, inputs []Input, concurrency int) []BatchResult {
	if concurrency <= 0 {
		concurrency = runtime.NumCPU()
	}

	results := make([]BatchResult, len(inputs))
	var g errgroup.Group
	g.SetLimit(concurrency)

	for i, in := range inputs {
		g.Go(func() error {
			r, err := a.Analyze(ctx, in)
			res := BatchResult{Index: i, Name: in.Name, Report: r, Err: err}
			if err != nil {
				res.Error = err.Error()
			}
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()
	return results
}
