package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/liamcoop/loanlens/analysis"
	"github.com/liamcoop/loanlens/extract"
	"github.com/liamcoop/loanlens/narrative"
	"github.com/liamcoop/loanlens/refdata"
	"github.com/liamcoop/loanlens/report"
)

// Output formats
const (
	formatJSON     = "json"
	formatMarkdown = "markdown"
	formatCSV      = "csv"
)

// options holds the parsed command line of the contract command
type options struct {
	Files        []string
	Format       string
	HTML         bool
	Concurrency  int
	FailOnReject bool
	Reference    refdata.FileSource
}

// errRejected signals that at least one contract was rejected and -fail-on-reject was set
var errRejected = errors.New("at least one contract was rejected")

// readInput loads one contract. "-" reads standard input; .html and .htm files are parsed as HTML.
func readInput(path string, forceHTML bool, stdin io.Reader) (analysis.Input, error) {
	var r io.Reader = stdin
	name := "stdin"
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return analysis.Input{}, fmt.Errorf("failed to open contract: %w", err)
		}
		defer f.Close()
		r = f
		name = filepath.Base(path)
	}

	ext := strings.ToLower(filepath.Ext(path))
	if forceHTML || ext == ".html" || ext == ".htm" {
		doc, err := extract.FromHTML(r)
		if err != nil {
			return analysis.Input{}, fmt.Errorf("failed to parse %s: %w", name, err)
		}
		return analysis.Input{Name: name, Document: doc}, nil
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return analysis.Input{}, fmt.Errorf("failed to read %s: %w", name, err)
	}
	return analysis.Input{Name: name, Document: extract.NewDocument(string(data))}, nil
}

// run analyzes every file of opts and writes the reports to w in the requested format
func run(ctx context.Context, opts options, stdin io.Reader, w io.Writer) error {
	if len(opts.Files) == 0 {
		return fmt.Errorf("no contract given")
	}
	switch opts.Format {
	case formatJSON, formatMarkdown:
	case formatCSV:
		if len(opts.Files) > 1 {
			return fmt.Errorf("csv output takes a single contract, got %d", len(opts.Files))
		}
	default:
		return fmt.Errorf("unknown format %q (use json, markdown or csv)", opts.Format)
	}

	ref, err := opts.Reference.Load(ctx, refdata.DefaultRuleSet)
	if err != nil {
		return err
	}

	inputs := make([]analysis.Input, 0, len(opts.Files))
	for _, path := range opts.Files {
		in, err := readInput(path, opts.HTML, stdin)
		if err != nil {
			return err
		}
		inputs = append(inputs, in)
	}

	results := analysis.New(ref).AnalyzeBatch(ctx, inputs, opts.Concurrency)
	for _, res := range results {
		if res.Err != nil {
			return fmt.Errorf("%s: %w", res.Name, res.Err)
		}
	}

	if err := write(w, opts.Format, results); err != nil {
		return err
	}

	if opts.FailOnReject {
		for _, res := range results {
			if res.Report.Recommendation.Decision == narrative.Reject {
				return errRejected
			}
		}
	}
	return nil
}

func write(w io.Writer, format string, results []analysis.BatchResult) error {
	switch format {
	case formatCSV:
		body, err := report.RenderScheduleCSV(results[0].Report.Financial.Schedules)
		if err != nil {
			return err
		}
		_, err = io.WriteString(w, body)
		return err

	case formatMarkdown:
		for i, res := range results {
			if i > 0 {
				if _, err := io.WriteString(w, "\n---\n\n"); err != nil {
					return err
				}
			}
			if len(results) > 1 {
				if _, err := fmt.Fprintf(w, "<!-- %s -->\n", res.Name); err != nil {
					return err
				}
			}
			if _, err := io.WriteString(w, report.RenderMarkdown(res.Report)); err != nil {
				return err
			}
		}
		return nil

	default:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if len(results) == 1 {
			return enc.Encode(results[0].Report)
		}
		return enc.Encode(results)
	}
}

// checkReference validates reference data files and writes a one-line summary
func checkReference(src refdata.FileSource, w io.Writer) error {
	cfg, err := src.Config()
	if err != nil {
		return err
	}
	ref, err := refdata.Build(cfg)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "reference data %s is valid: %d red flags, %d narrative rules, %d decision rules\n",
		ref.Version, len(ref.RedFlags.Rules()), len(ref.Narrative.Rules()), len(ref.Decisions.Rules()))
	return err
}
