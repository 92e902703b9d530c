package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	_ "github.com/lib/pq"

	"github.com/liamcoop/loanlens/analysis"
	"github.com/liamcoop/loanlens/extract"
	"github.com/liamcoop/loanlens/internal/config"
	"github.com/liamcoop/loanlens/internal/logger"
	"github.com/liamcoop/loanlens/internal/observability"
	"github.com/liamcoop/loanlens/refdata"
	"github.com/liamcoop/loanlens/report"
)

type Server struct {
	cfg     *config.Config
	db      *sql.DB // nil when rule sets come from files
	files   refdata.FileSource
	refs    *refdata.Manager
	metrics *observability.Metrics // nil when metrics are disabled
	router  *chi.Mux

	// serializes rule changes so each is checked against the rule set it is applied to
	writeMu sync.Mutex
}

func NewServer(ctx context.Context, cfg *config.Config, db *sql.DB, metrics *observability.Metrics) (*Server, error) {
	files := refdata.FileSource{Paths: cfg.Reference.Paths, MarketXML: cfg.Reference.MarketXML}

	var source refdata.Source = files
	if cfg.Reference.Source == config.SourcePostgres {
		if db == nil {
			return nil, errors.New("postgres reference source requires a database")
		}
		source = refdata.PostgresSource{DB: db, Files: files}
	}

	s := &Server{
		cfg:     cfg,
		db:      db,
		files:   files,
		refs:    refdata.NewManager(source),
		metrics: metrics,
	}

	if err := s.loadRuleSets(ctx); err != nil {
		return nil, err
	}
	logger.Info("reference data loaded",
		"source", cfg.Reference.Source,
		"rule_sets", strings.Join(s.refs.RuleSets(), ","))

	s.setupRoutes()

	return s, nil
}

// loadRuleSets seeds the database if asked to, then loads every configured rule set.
// With the postgres source, rule sets found only in the database are loaded too;
// one of those failing is logged and skipped.
func (s *Server) loadRuleSets(ctx context.Context) error {
	pg, ok := s.postgres()
	if ok && s.cfg.Reference.Seed {
		fileCfg, err := s.files.Config()
		if err != nil {
			return fmt.Errorf("failed to read reference files for seeding: %w", err)
		}
		for _, rs := range s.cfg.Reference.RuleSets {
			if err := pg.Seed(rs, fileCfg); err != nil {
				return fmt.Errorf("failed to seed rule set %s: %w", rs, err)
			}
			logger.Info("rule set seeded", "rule_set", rs)
		}
	}

	for _, rs := range s.cfg.Reference.RuleSets {
		if err := s.reload(ctx, rs); err != nil {
			return err
		}
	}

	if !ok {
		return nil
	}
	stored, err := pg.RuleSets(ctx)
	if err != nil {
		return err
	}
	for _, rs := range stored {
		if _, err := s.refs.Get(rs); err == nil {
			continue
		}
		// reload already logged the failure
		_ = s.reload(ctx, rs)
	}
	return nil
}

// reload swaps in a fresh snapshot of a rule set. On error the previous snapshot stays in service.
func (s *Server) reload(ctx context.Context, ruleSet string) error {
	ref, err := s.refs.Load(ctx, ruleSet)
	if s.metrics != nil {
		var at time.Time
		if ref != nil {
			at = ref.LoadedAt
		}
		s.metrics.RecordReload(ruleSet, err, at)
	}
	if err != nil {
		logger.ErrorReload("reference data reload rejected", "rule_set", ruleSet, "error", err)
		return err
	}
	logger.Info("rule set loaded", "rule_set", ruleSet, "version", ref.Version)
	return nil
}

func (s *Server) postgres() (refdata.PostgresSource, bool) {
	if s.db == nil || s.cfg.Reference.Source != config.SourcePostgres {
		return refdata.PostgresSource{}, false
	}
	return refdata.PostgresSource{DB: s.db, Files: s.files}, true
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.cfg.Server.RequestTimeout))
	if s.metrics != nil {
		r.Use(s.instrument)
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	// Health check
	r.Get("/api/v1/health", s.handleHealth)

	// Analysis
	r.Group(func(r chi.Router) {
		r.Use(s.limitBody)
		r.Post("/api/v1/analyze", s.handleAnalyze)
		r.Post("/api/v1/analyze/batch", s.handleAnalyzeBatch)
	})

	// Rule set management
	r.Route("/api/v1/rulesets", func(r chi.Router) {
		r.Get("/", s.handleListRuleSets)

		r.Route("/{ruleSet}", func(r chi.Router) {
			r.Get("/", s.handleGetRuleSet)
			r.Post("/reload", s.handleReloadRuleSet)

			r.Get("/rules", s.handleListRules)
			r.Get("/rules/{ruleId}", s.handleGetRule)

			// stored rule sets only
			r.Group(func(r chi.Router) {
				r.Use(s.requireDatabase, s.limitBody)
				r.Post("/rules", s.handleCreateRule)
				r.Put("/rules/{ruleId}", s.handleUpdateRule)
				r.Delete("/rules/{ruleId}", s.handleDeleteRule)
			})
		})
	})

	s.router = r
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// instrument records every request by route pattern and status code
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		s.metrics.RecordRequest(route, status, time.Since(start))
	})
}

func (s *Server) limitBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Server.MaxBodyBytes)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requireDatabase(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := s.postgres(); !ok {
			respondError(w, http.StatusConflict, "rule sets are read-only without the postgres reference source", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Health check handler
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "healthy", RuleSets: s.refs.RuleSets()}

	status := http.StatusOK
	if len(resp.RuleSets) == 0 {
		status = http.StatusServiceUnavailable
		resp.Status = "unhealthy"
		resp.Error = "no rule set loaded"
	}
	if s.db != nil {
		resp.Database = "ok"
		if err := s.db.PingContext(r.Context()); err != nil {
			status = http.StatusServiceUnavailable
			resp.Status = "unhealthy"
			resp.Database = "unreachable"
			resp.Error = err.Error()
		}
	}

	respondJSON(w, status, resp)
}

// Analyze handler. Accepts a JSON AnalyzeRequest, or the raw contract as text/plain or text/html
// with rule_set and name in the query string. The format query parameter selects json, markdown or csv.
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	if format == "" {
		format = FormatJSON
	}
	if format != FormatJSON && format != FormatMarkdown && format != FormatCSV {
		respondError(w, http.StatusBadRequest, "format must be json, markdown or csv", nil)
		return
	}

	req, status, err := decodeAnalyzeRequest(r)
	if err != nil {
		respondError(w, status, "invalid request body", err)
		return
	}

	ref, err := s.refs.Get(req.RuleSet)
	if err != nil {
		respondError(w, http.StatusNotFound, "rule set not found", err)
		return
	}

	doc, err := req.document()
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid contract", err)
		return
	}

	rep, err := s.analyzer(ref).Analyze(r.Context(), analysis.Input{Name: req.Name, Document: doc})
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, "analysis abandoned", err)
		return
	}

	switch format {
	case FormatMarkdown:
		respondText(w, "text/markdown; charset=utf-8", report.RenderMarkdown(rep))
	case FormatCSV:
		body, err := report.RenderScheduleCSV(rep.Financial.Schedules)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "failed to render schedule", err)
			return
		}
		respondText(w, "text/csv; charset=utf-8", body)
	default:
		respondJSON(w, http.StatusOK, rep)
	}
}

// Batch analyze handler
func (s *Server) handleAnalyzeBatch(w http.ResponseWriter, r *http.Request) {
	var req BatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, bodyErrorStatus(err), "invalid request body", err)
		return
	}

	if len(req.Contracts) == 0 {
		respondError(w, http.StatusBadRequest, "contracts are required", nil)
		return
	}
	if len(req.Contracts) > s.cfg.Analysis.MaxBatchSize {
		respondError(w, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("batch of %d contracts exceeds the limit of %d", len(req.Contracts), s.cfg.Analysis.MaxBatchSize), nil)
		return
	}

	ref, err := s.refs.Get(req.RuleSet)
	if err != nil {
		respondError(w, http.StatusNotFound, "rule set not found", err)
		return
	}

	inputs := make([]analysis.Input, len(req.Contracts))
	for i, c := range req.Contracts {
		doc, err := c.document()
		if err != nil {
			respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid contract %d", i), err)
			return
		}
		inputs[i] = analysis.Input{Name: c.Name, Document: doc}
	}

	startTime := time.Now()
	results := s.analyzer(ref).AnalyzeBatch(r.Context(), inputs, s.cfg.Analysis.BatchConcurrency)

	resp := BatchResponse{
		RuleSet:  ref.Version,
		Results:  results,
		Duration: time.Since(startTime).String(),
	}
	for _, res := range results {
		if res.Err != nil {
			resp.Failed++
		} else {
			resp.Completed++
		}
	}

	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) analyzer(ref *refdata.Reference) *analysis.Analyzer {
	if s.metrics == nil {
		return analysis.New(ref)
	}
	return analysis.New(ref, analysis.WithRecorder(s.metrics))
}

// decodeAnalyzeRequest reads the contract from the body according to its content type.
// The returned status is meaningful only with a non-nil error.
func decodeAnalyzeRequest(r *http.Request) (AnalyzeRequest, int, error) {
	mediaType := "application/json"
	if ct := r.Header.Get("Content-Type"); ct != "" {
		mt, _, err := mime.ParseMediaType(ct)
		if err != nil {
			return AnalyzeRequest{}, http.StatusBadRequest, err
		}
		mediaType = mt
	}

	var req AnalyzeRequest
	switch mediaType {
	case "application/json":
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return req, bodyErrorStatus(err), err
		}
		return req, 0, nil
	case "text/plain", "text/html":
		body, err := io.ReadAll(r.Body)
		if err != nil {
			return req, bodyErrorStatus(err), err
		}
		q := r.URL.Query()
		req.RuleSet = q.Get("rule_set")
		req.Name = q.Get("name")
		if mediaType == "text/html" {
			req.HTML = string(body)
		} else {
			req.Text = string(body)
		}
		return req, 0, nil
	default:
		return req, http.StatusUnsupportedMediaType, fmt.Errorf("unsupported content type %s", mediaType)
	}
}

func (c ContractRequest) document() (extract.Document, error) {
	if c.Text != "" && c.HTML != "" {
		return extract.Document{}, errors.New("set only one of text and html")
	}
	if c.HTML != "" {
		return extract.FromHTML(strings.NewReader(c.HTML))
	}
	return extract.NewDocument(c.Text), nil
}

func bodyErrorStatus(err error) int {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return http.StatusRequestEntityTooLarge
	}
	return http.StatusBadRequest
}

// Helper functions
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Warn("failed to encode response", "error", err)
	}
}

func respondText(w http.ResponseWriter, contentType, body string) {
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, body)
}

func respondError(w http.ResponseWriter, status int, message string, err error) {
	response := ErrorResponse{Error: message}
	if err != nil {
		response.Details = err.Error()
	}

	if status >= 500 {
		logger.ErrorHttp5xx()
		logger.Error(message, "status", status, "error", err)
	} else {
		logger.WarnHttp4xx(status)
		logger.Debug(message, "status", status, "error", err)
	}

	respondJSON(w, status, response)
}

func main() {
	configPath := flag.String("config", "", "Path to config.yaml (default: ./config.yaml or /etc/loanlens/config.yaml)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("failed to load config", "error", err)
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid config", "error", err)
	}
	if err := logger.Configure(cfg.Log.Level, cfg.Log.SampleRate); err != nil {
		logger.Fatal("invalid log settings", "error", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = logger.Shutdown(ctx)
	}()

	var db *sql.DB
	if cfg.Database.URL != "" {
		db, err = sql.Open("postgres", cfg.Database.URL)
		if err != nil {
			logger.Fatal("failed to open database", "error", err)
		}
		defer db.Close()

		if err := db.Ping(); err != nil {
			logger.Fatal("failed to ping database", "error", err)
		}
	}

	var metrics *observability.Metrics
	if cfg.Metrics.Enabled {
		metrics = observability.NewMetrics(cfg.Metrics.Namespace, nil)
	}

	startCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.RequestTimeout)
	server, err := NewServer(startCtx, cfg, db, metrics)
	cancel()
	if err != nil {
		logger.Fatal("failed to create server", "error", err)
	}

	httpServer := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      server,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.Server.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown handling
	go func() {
		logger.Info("server starting", "addr", cfg.Server.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed to start", "error", err)
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	logger.Info("server stopped")
}
