package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liamcoop/loanlens/internal/config"
	"github.com/liamcoop/loanlens/internal/observability"
)

const penaltyContract = `LOAN AGREEMENT

LENDER: Banco Nacional
BORROWER: Industrias Norte

1. Principal. The Lender grants the Borrower a loan in the principal amount of USD 1,000,000 (one million US dollars).
2. Interest. The loan bears interest at a fixed rate of 12% (twelve percent) per annum.
3. Term. The term of the loan is 60 (sixty) months.
4. Payments. The Borrower shall repay the loan in 60 equal monthly installments.
5. Prepayment. The Borrower may prepay the loan at any time subject to a penalty of 5% of the outstanding balance.
6. Events of Default. Each of the following is an event of default: (a) failure to pay any amount when due; (b) insolvency or bankruptcy of the Borrower; (c) breach of any covenant; (d) change of control of the Borrower.
Upon an event of default the Lender may accelerate the loan and declare all amounts immediately due and payable.
`

const htmlContract = `<html><body>
<h1>Loan Agreement</h1>
<p>The principal amount of the loan is USD 500,000.</p>
<p>The loan bears interest at a fixed rate of 10% per annum.</p>
<p>The term of the loan is 24 months, repaid in monthly installments.</p>
</body></html>`

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Addr:            ":0",
			RequestTimeout:  10 * time.Second,
			ShutdownTimeout: time.Second,
			MaxBodyBytes:    1 << 20,
		},
		Reference: config.ReferenceConfig{
			Source:   config.SourceFile,
			RuleSets: []string{"default"},
		},
		Analysis: config.AnalysisConfig{BatchConcurrency: 2, MaxBatchSize: 3},
		Metrics:  config.MetricsConfig{Enabled: true, Namespace: "test"},
	}
}

func newTestServer(t *testing.T, cfg *config.Config) *Server {
	t.Helper()
	metrics := observability.NewMetrics(cfg.Metrics.Namespace, prometheus.NewRegistry())
	s, err := NewServer(context.Background(), cfg, nil, metrics)
	require.NoError(t, err)
	return s
}

func do(t *testing.T, s *Server, method, target, contentType string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func doJSON(t *testing.T, s *Server, method, target string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	return do(t, s, method, target, "application/json", body)
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, testConfig())

	rec := do(t, s, http.MethodGet, "/api/v1/health", "", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, []string{"default"}, resp.RuleSets)
	assert.Empty(t, resp.Database)
}

func TestAnalyzeJSON(t *testing.T) {
	s := newTestServer(t, testConfig())

	rec := doJSON(t, s, http.MethodPost, "/api/v1/analyze", AnalyzeRequest{
		ContractRequest: ContractRequest{Name: "penalty", Text: penaltyContract},
	})

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	out := decode(t, rec)
	rec2 := out["recommendation"].(map[string]any)
	assert.NotEqual(t, "accept", rec2["decision"])
	assert.NotEmpty(t, out["id"])
	assert.Equal(t, "defaults-2025.2", out["reference_version"])
}

func TestAnalyzePlainTextAsMarkdown(t *testing.T) {
	s := newTestServer(t, testConfig())

	rec := do(t, s, http.MethodPost, "/api/v1/analyze?format=markdown&name=plain", "text/plain; charset=utf-8", []byte(penaltyContract))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "text/markdown"))
	assert.Contains(t, rec.Body.String(), "# Contract Analysis")
	assert.Contains(t, rec.Body.String(), "**Recommendation: ")
}

func TestAnalyzeHTMLAsCSV(t *testing.T) {
	s := newTestServer(t, testConfig())

	rec := do(t, s, http.MethodPost, "/api/v1/analyze?format=csv", "text/html", []byte(htmlContract))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, strings.HasPrefix(rec.Body.String(), "schedule,index,month,opening_balance,payment,interest,principal,fees,closing_balance,rate\n"))
}

func TestAnalyzeRejectsBadRequests(t *testing.T) {
	cfg := testConfig()
	cfg.Server.MaxBodyBytes = 64
	s := newTestServer(t, cfg)

	tests := []struct {
		name        string
		target      string
		contentType string
		body        string
		want        int
	}{
		{"unknown format", "/api/v1/analyze?format=pdf", "text/plain", "loan", http.StatusBadRequest},
		{"malformed json", "/api/v1/analyze", "application/json", "{", http.StatusBadRequest},
		{"text and html", "/api/v1/analyze", "application/json", `{"text":"a","html":"<p>b</p>"}`, http.StatusBadRequest},
		{"unknown rule set", "/api/v1/analyze?rule_set=conservative", "text/plain", "loan", http.StatusNotFound},
		{"unsupported media type", "/api/v1/analyze", "application/pdf", "%PDF", http.StatusUnsupportedMediaType},
		{"body too large", "/api/v1/analyze", "text/plain", strings.Repeat("x", 200), http.StatusRequestEntityTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, s, http.MethodPost, tt.target, tt.contentType, []byte(tt.body))
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())

			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.NotEmpty(t, resp.Error)
		})
	}
}

func TestAnalyzeEmptyContractStillReports(t *testing.T) {
	s := newTestServer(t, testConfig())

	rec := doJSON(t, s, http.MethodPost, "/api/v1/analyze", AnalyzeRequest{})

	require.Equal(t, http.StatusOK, rec.Code)
	out := decode(t, rec)
	assert.Equal(t, "partial", out["status"])
	assert.Contains(t, out["warnings"], "document is empty")
}

func TestAnalyzeBatch(t *testing.T) {
	s := newTestServer(t, testConfig())

	rec := doJSON(t, s, http.MethodPost, "/api/v1/analyze/batch", BatchRequest{
		Contracts: []ContractRequest{
			{Name: "first", Text: penaltyContract},
			{Name: "second", HTML: htmlContract},
		},
	})

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	out := decode(t, rec)
	assert.Equal(t, 2.0, out["completed"])
	assert.Equal(t, 0.0, out["failed"])

	results := out["results"].([]any)
	require.Len(t, results, 2)
	for i, name := range []string{"first", "second"} {
		res := results[i].(map[string]any)
		assert.Equal(t, float64(i), res["index"])
		assert.Equal(t, name, res["name"])
		assert.NotNil(t, res["report"])
	}
}

func TestAnalyzeBatchLimits(t *testing.T) {
	s := newTestServer(t, testConfig())

	rec := doJSON(t, s, http.MethodPost, "/api/v1/analyze/batch", BatchRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	tooMany := make([]ContractRequest, 4)
	rec = doJSON(t, s, http.MethodPost, "/api/v1/analyze/batch", BatchRequest{Contracts: tooMany})
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestRuleSetsAndRules(t *testing.T) {
	s := newTestServer(t, testConfig())

	rec := do(t, s, http.MethodGet, "/api/v1/rulesets", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list RuleSetsListResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.RuleSets, 1)
	assert.Equal(t, "default", list.RuleSets[0].Name)
	assert.Positive(t, list.RuleSets[0].RedFlags)
	assert.Positive(t, list.RuleSets[0].Decisions)

	rec = do(t, s, http.MethodGet, "/api/v1/rulesets/default/rules?kind=decision", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	out := decode(t, rec)
	ruleList := out["rules"].([]any)
	require.NotEmpty(t, ruleList)
	for _, r := range ruleList {
		assert.Equal(t, "decision", r.(map[string]any)["kind"])
	}

	rec = do(t, s, http.MethodGet, "/api/v1/rulesets/default/rules/prepayment_penalty_high", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "red_flag", decode(t, rec)["kind"])

	rec = do(t, s, http.MethodGet, "/api/v1/rulesets/default/rules/no_such_rule", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, s, http.MethodGet, "/api/v1/rulesets/conservative", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestFileRuleSetsAreReadOnly(t *testing.T) {
	s := newTestServer(t, testConfig())

	rec := doJSON(t, s, http.MethodPost, "/api/v1/rulesets/default/rules", RuleRequest{
		Name: "any", Kind: "red_flag", Expression: "true",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, s, http.MethodDelete, "/api/v1/rulesets/default/rules/prepayment_penalty_high", "", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestReload(t *testing.T) {
	s := newTestServer(t, testConfig())
	before, err := s.refs.Get("default")
	require.NoError(t, err)

	rec := do(t, s, http.MethodPost, "/api/v1/rulesets/default/reload", "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	after, err := s.refs.Get("default")
	require.NoError(t, err)
	assert.NotSame(t, before, after, "reload swaps in a new snapshot")

	rec = do(t, s, http.MethodPost, "/api/v1/rulesets/conservative/reload", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, testConfig())

	rec := do(t, s, http.MethodPost, "/api/v1/analyze", "text/plain", []byte(penaltyContract))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, s, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "test_analysis_reports_total")
	assert.Contains(t, body, `test_http_requests_total{code="200",route="/api/v1/analyze"} 1`)
	assert.Contains(t, body, `test_reference_reloads_total{rule_set="default",status="ok"} 1`)
}

func TestMetricsDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.Metrics.Enabled = false
	s, err := NewServer(context.Background(), cfg, nil, nil)
	require.NoError(t, err)

	rec := do(t, s, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
