package observability

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liamcoop/loanlens/analysis"
	"github.com/liamcoop/loanlens/narrative"
	"github.com/liamcoop/loanlens/report"
	"github.com/liamcoop/loanlens/risk"
)

var _ analysis.Recorder = (*Metrics)(nil)

func TestObserveReport(t *testing.T) {
	m := NewMetrics("test", prometheus.NewRegistry())

	r := &report.AnalysisReport{
		Status:         report.StatusPartial,
		Recommendation: narrative.Recommendation{Decision: narrative.Negotiate},
		Risk: risk.Assessment{
			Aggregate: 55,
			RedFlags: []risk.RedFlag{
				{RuleID: "acceleration_triggers", Severity: risk.SeverityHigh},
				{RuleID: "prepayment_penalty_high", Severity: risk.SeverityMedium},
			},
		},
		Unavailable: []report.Unavailable{{Item: "rate", Kind: report.KindField, Reason: "not found in the contract text"}},
	}
	m.ObserveReport(r, 20*time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.AnalysesTotal.WithLabelValues("partial", "negotiate")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RedFlagsTotal.WithLabelValues("acceleration_triggers", "high")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.UnavailableTotal.WithLabelValues("field", "rate")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.AnalysisDuration))
}

func TestObserveStageAndAbandoned(t *testing.T) {
	m := NewMetrics("test", prometheus.NewRegistry())

	m.ObserveStage(analysis.StageExtract, time.Millisecond)
	m.ObserveStage(analysis.StageRisk, time.Millisecond)
	m.ObserveAbandoned(analysis.StageFinance)

	assert.Equal(t, 2, testutil.CollectAndCount(m.StageDuration))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AbandonedTotal.WithLabelValues("finance")))
}

func TestRecordReload(t *testing.T) {
	m := NewMetrics("test", prometheus.NewRegistry())
	at := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	m.RecordReload("default", nil, at)
	m.RecordReload("default", errors.New("invalid rule"), at.Add(time.Hour))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ReferenceReloads.WithLabelValues("default", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ReferenceReloads.WithLabelValues("default", "error")))
	assert.Equal(t, float64(at.Unix()), testutil.ToFloat64(m.ReferenceLoaded.WithLabelValues("default")),
		"a failed reload keeps the previous snapshot timestamp")
}

func TestHandlerServesRegistry(t *testing.T) {
	m := NewMetrics("test", prometheus.NewRegistry())
	m.RecordRequest("/api/v1/analyze", http.StatusOK, 5*time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `test_http_requests_total{code="200",route="/api/v1/analyze"} 1`)
	assert.Contains(t, string(body), "test_log_partial_reports_total")
}
