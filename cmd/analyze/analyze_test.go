package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liamcoop/loanlens/analysis"
	"github.com/liamcoop/loanlens/refdata"
	"github.com/liamcoop/loanlens/report"
)

const textContract = `LOAN AGREEMENT

1. Principal. The Lender grants the Borrower a loan in the principal amount of USD 1,000,000.
2. Interest. The loan bears interest at a fixed rate of 12% per annum.
3. Term. The term of the loan is 60 months, repaid in monthly installments.
4. Prepayment. The Borrower may prepay the loan subject to a penalty of 5% of the outstanding balance.
`

const htmlContract = `<html><body>
<p>The principal amount of the loan is USD 500,000.</p>
<p>The loan bears interest at a fixed rate of 10% per annum.</p>
<p>The term of the loan is 24 months, repaid in monthly installments.</p>
</body></html>`

func referenceFiles(paths ...string) refdata.FileSource {
	return refdata.FileSource{Paths: paths}
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestRunMarkdown(t *testing.T) {
	var out bytes.Buffer
	err := run(context.Background(), options{
		Files:  []string{writeFile(t, "loan.txt", textContract)},
		Format: formatMarkdown,
	}, nil, &out)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(out.String(), "# Contract Analysis"))
	assert.Contains(t, out.String(), "## Executive Summary")
}

func TestRunJSONBatchKeepsOrder(t *testing.T) {
	var out bytes.Buffer
	err := run(context.Background(), options{
		Files:       []string{writeFile(t, "a.txt", textContract), writeFile(t, "b.html", htmlContract)},
		Format:      formatJSON,
		Concurrency: 2,
	}, nil, &out)
	require.NoError(t, err)

	var results []analysis.BatchResult
	require.NoError(t, json.Unmarshal(out.Bytes(), &results))
	require.Len(t, results, 2)
	assert.Equal(t, "a.txt", results[0].Name)
	assert.Equal(t, "b.html", results[1].Name)
	for i, res := range results {
		assert.Equal(t, i, res.Index)
		require.NotNil(t, res.Report)
		assert.Equal(t, "defaults-2025.2", res.Report.ReferenceVersion)
	}
}

func TestRunSingleJSONIsAReport(t *testing.T) {
	var out bytes.Buffer
	err := run(context.Background(), options{
		Files:  []string{"-"},
		Format: formatJSON,
	}, strings.NewReader(textContract), &out)
	require.NoError(t, err)

	var r report.AnalysisReport
	require.NoError(t, json.Unmarshal(out.Bytes(), &r))
	assert.NotEmpty(t, r.ID)
	assert.True(t, r.Recommendation.Decision.Valid())
}

func TestRunCSVFromHTML(t *testing.T) {
	var out bytes.Buffer
	err := run(context.Background(), options{
		Files:  []string{writeFile(t, "loan.html", htmlContract)},
		Format: formatCSV,
	}, nil, &out)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	assert.Equal(t, "schedule,index,month,opening_balance,payment,interest,principal,fees,closing_balance,rate", lines[0])
	assert.Greater(t, len(lines), 1, "schedule rows")
}

func TestRunRejectsBadInvocations(t *testing.T) {
	file := writeFile(t, "loan.txt", textContract)

	testCases := []struct {
		name string
		opts options
		want string
	}{
		{"no files", options{Format: formatJSON}, "no contract given"},
		{"unknown format", options{Files: []string{file}, Format: "pdf"}, "unknown format"},
		{"csv batch", options{Files: []string{file, file}, Format: formatCSV}, "single contract"},
		{"missing file", options{Files: []string{filepath.Join(t.TempDir(), "absent.txt")}, Format: formatJSON}, "failed to open contract"},
		{"bad reference", options{Files: []string{file}, Format: formatJSON, Reference: referenceFiles(filepath.Join(t.TempDir(), "absent.yaml"))}, ""},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var out bytes.Buffer
			err := run(context.Background(), tc.opts, nil, &out)
			require.Error(t, err)
			if tc.want != "" {
				assert.Contains(t, err.Error(), tc.want)
			}
			assert.Empty(t, out.String())
		})
	}
}

func TestCheckReferenceDefaults(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, checkReference(referenceFiles(), &out))
	assert.Contains(t, out.String(), "reference data defaults-2025.2 is valid")
}

func TestCheckReferenceRejectsBrokenRule(t *testing.T) {
	path := writeFile(t, "broken.yaml", `
red_flags:
  - id: broken
    name: Broken
    expression: "terms.principal >"
    severity: high
    category: cost
`)
	var out bytes.Buffer
	err := checkReference(referenceFiles(path), &out)
	require.Error(t, err)
	assert.Empty(t, out.String())
}
