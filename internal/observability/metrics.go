// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/liamcoop/loanlens/internal/logger"
	"github.com/liamcoop/loanlens/report"
)

// Metrics holds all Prometheus metrics for the application.
// It implements analysis.Recorder.
type Metrics struct {
	// Analysis metrics
	AnalysesTotal    *prometheus.CounterVec
	AnalysisDuration prometheus.Histogram
	StageDuration    *prometheus.HistogramVec
	AbandonedTotal   *prometheus.CounterVec
	RedFlagsTotal    *prometheus.CounterVec
	UnavailableTotal *prometheus.CounterVec
	NeedsReview      prometheus.Histogram
	AggregateRisk    prometheus.Histogram

	// Reference data metrics
	ReferenceReloads *prometheus.CounterVec
	ReferenceLoaded  *prometheus.GaugeVec

	// HTTP metrics
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	gatherer prometheus.Gatherer
}

// NewMetrics creates a Metrics instance registered with reg.
// A nil reg uses the default Prometheus registry.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "loanlens"
	}
	var gatherer prometheus.Gatherer = prometheus.DefaultGatherer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	} else if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}
	f := promauto.With(reg)

	m := &Metrics{
		AnalysesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "analysis",
			Name:      "reports_total",
			Help:      "Total number of reports produced by status and decision",
		}, []string{"status", "decision"}),
		AnalysisDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "analysis",
			Name:      "duration_seconds",
			Help:      "End-to-end analysis duration in seconds",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}),
		StageDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "analysis",
			Name:      "stage_duration_seconds",
			Help:      "Pipeline stage duration in seconds",
			Buckets:   []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5},
		}, []string{"stage"}),
		AbandonedTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "analysis",
			Name:      "abandoned_total",
			Help:      "Total number of analyses abandoned by the stage they stopped at",
		}, []string{"stage"}),
		RedFlagsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "risk",
			Name:      "red_flags_total",
			Help:      "Total number of red flags raised by rule and severity",
		}, []string{"rule_id", "severity"}),
		UnavailableTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "report",
			Name:      "unavailable_total",
			Help:      "Total number of unavailable fields and metrics by item",
		}, []string{"kind", "item"}),
		NeedsReview: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "report",
			Name:      "needs_review_fields",
			Help:      "Number of fields flagged for manual review per report",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13},
		}),
		AggregateRisk: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "risk",
			Name:      "aggregate_score",
			Help:      "Aggregate risk score per report",
			Buckets:   prometheus.LinearBuckets(10, 10, 9),
		}),

		ReferenceReloads: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reference",
			Name:      "reloads_total",
			Help:      "Total number of reference data reloads by rule set and status",
		}, []string{"rule_set", "status"}),
		ReferenceLoaded: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "reference",
			Name:      "loaded_timestamp",
			Help:      "Unix timestamp of the snapshot in service per rule set",
		}, []string{"rule_set"}),

		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by route and status code",
		}, []string{"route", "code"}),
		HTTPDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),

		gatherer: gatherer,
	}

	// Logger counters are incremented regardless of log sampling
	counters := []struct {
		name, help string
		value      func() int64
	}{
		{"errors_total", "Errors logged, before sampling", logger.TotalErrors.Load},
		{"warnings_total", "Warnings logged, before sampling", logger.TotalWarnings.Load},
		{"partial_reports_total", "Reports that list unavailable items", logger.PartialReports.Load},
		{"rule_warnings_total", "Rules that failed to evaluate or render", logger.RuleWarnings.Load},
		{"reload_failures_total", "Rejected reference data reloads", logger.ReloadFailures.Load},
	}
	for _, c := range counters {
		value := c.value
		f.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "log",
			Name:      c.name,
			Help:      c.help,
		}, func() float64 { return float64(value()) })
	}

	return m
}

// ObserveStage records the duration of one pipeline stage
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	m.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// ObserveReport records a finished analysis
func (m *Metrics) ObserveReport(r *report.AnalysisReport, d time.Duration) {
	m.AnalysesTotal.WithLabelValues(string(r.Status), string(r.Recommendation.Decision)).Inc()
	m.AnalysisDuration.Observe(d.Seconds())
	m.NeedsReview.Observe(float64(len(r.NeedsReview)))
	m.AggregateRisk.Observe(r.Risk.Aggregate)
	for _, f := range r.Risk.RedFlags {
		m.RedFlagsTotal.WithLabelValues(f.RuleID, string(f.Severity)).Inc()
	}
	for _, u := range r.Unavailable {
		m.UnavailableTotal.WithLabelValues(u.Kind, u.Item).Inc()
	}
}

// ObserveAbandoned records an analysis stopped by its context
func (m *Metrics) ObserveAbandoned(stage string) {
	m.AbandonedTotal.WithLabelValues(stage).Inc()
}

// RecordReload records a reference data reload attempt
func (m *Metrics) RecordReload(ruleSet string, err error, at time.Time) {
	if err != nil {
		m.ReferenceReloads.WithLabelValues(ruleSet, "error").Inc()
		return
	}
	m.ReferenceReloads.WithLabelValues(ruleSet, "ok").Inc()
	m.ReferenceLoaded.WithLabelValues(ruleSet).Set(float64(at.Unix()))
}

// RecordRequest records one HTTP request
func (m *Metrics) RecordRequest(route string, code int, d time.Duration) {
	m.HTTPRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
	m.HTTPDuration.WithLabelValues(route).Observe(d.Seconds())
}

// Handler returns an HTTP handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
