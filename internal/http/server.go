// Package http serves the budget store as a JSON API.
package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"smartbudget/internal/analytics"
	"smartbudget/internal/assistant"
	"smartbudget/internal/budget"
	"smartbudget/internal/core"
	"smartbudget/internal/log"
	"smartbudget/internal/metrics"
	"smartbudget/internal/middleware/ratelimit"
	"smartbudget/internal/middleware/security"
	"smartbudget/internal/middleware/trace"
)

const maxBodyBytes = 1 << 20

// Budget is the store surface the handlers use. *budget.Store implements it.
type Budget interface {
	Add(ctx context.Context, draft core.TransactionDraft) (core.Transaction, error)
	Update(ctx context.Context, id string, patch core.TransactionPatch) (bool, error)
	Delete(ctx context.Context, id string) (bool, error)
	UpdateSettings(ctx context.Context, patch core.SettingsPatch) (core.Settings, error)

	Subscribe(buffer int) (<-chan core.ChangeEvent, func())

	Transaction(id string) (core.Transaction, bool)
	Transactions() []core.Transaction
	Filter(q analytics.Query) []core.Transaction
	TransactionsByMonth(year int, month time.Month) []core.Transaction
	Summary() core.FinancialSummary
	Breakdown() []core.CategorySummary
	Settings() core.Settings
	Versions() budget.Versions
	Location() *time.Location
}

// Options configures a Server. Logger and Metrics may be nil.
type Options struct {
	Logger             *log.Logger
	Metrics            *metrics.Metrics
	RateLimitPerMinute int
	ReadTimeout        time.Duration
	WriteTimeout       time.Duration
}

type Server struct {
	http.Server
	budget  Budget
	tools   *assistant.Toolbox
	logger  *log.Logger
	metrics *metrics.Metrics

	limiter  *ratelimit.Limiter
	detector *security.Detector
	upgrader websocket.Upgrader

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(addr string, b Budget, tools *assistant.Toolbox, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = 10 * time.Second
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 15 * time.Second
	}

	s := &Server{
		budget:   b,
		tools:    tools,
		logger:   logger.WithComponent(log.ComponentHTTP),
		metrics:  opts.Metrics,
		limiter:  ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: opts.RateLimitPerMinute}),
		detector: security.NewDetector(),
		upgrader: websocket.Upgrader{ReadBufferSize: 1024, WriteBufferSize: 4096},
	}

	api := http.NewServeMux()
	api.HandleFunc("GET /api/transactions", s.handleListTransactions)
	api.HandleFunc("POST /api/transactions", s.handleCreateTransaction)
	api.HandleFunc("GET /api/transactions/{id}", s.handleGetTransaction)
	api.HandleFunc("PATCH /api/transactions/{id}", s.handleUpdateTransaction)
	api.HandleFunc("DELETE /api/transactions/{id}", s.handleDeleteTransaction)
	api.HandleFunc("GET /api/transactions/month/{year}/{month}", s.handleMonth)
	api.HandleFunc("GET /api/summary", s.handleSummary)
	api.HandleFunc("GET /api/breakdown", s.handleBreakdown)
	api.HandleFunc("GET /api/settings", s.handleGetSettings)
	api.HandleFunc("PATCH /api/settings", s.handleUpdateSettings)
	api.HandleFunc("GET /api/tools", s.handleListTools)
	api.HandleFunc("GET /api/tools/{name}", s.handleCallTool)
	api.HandleFunc("GET /api/export/xlsx", s.handleExportWorkbook)
	api.HandleFunc("GET /api/events", s.handleEvents)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}
	mux.Handle("/api/", s.limiter.Middleware(s.detector.ExtractClientIP, s.onRateLimit)(api))

	var handler http.Handler = mux
	handler = s.detector.Middleware(logger, s.metrics)(handler)
	handler = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(handler)
	handler = trace.NewMiddleware(logger, s.detector.ExtractClientIP, s.metrics).Middleware(handler)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       opts.ReadTimeout,
		WriteTimeout:      opts.WriteTimeout,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

func (s *Server) onRateLimit(w http.ResponseWriter, r *http.Request) {
	s.metrics.Flagged("rate_limited")
	log.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
		log.FieldClientIP, s.detector.ExtractClientIP(r),
		log.FieldMethod, r.Method,
		log.FieldPath, r.URL.Path)
	writeError(w, http.StatusTooManyRequests, "rate limit exceeded, try again later")
}

// Shutdown gracefully shuts down the server and the limiter cleanup.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReady fails while the latest persistence attempt of either document
// has not succeeded. Writes still in flight do not count.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	v := s.budget.Versions()
	body := map[string]any{"versions": v, "lag": v.Lag()}
	if v.Durable < v.Attempted {
		body["status"] = "degraded"
		writeJSON(w, http.StatusServiceUnavailable, body)
		return
	}
	body["status"] = "ready"
	writeJSON(w, http.StatusOK, body)
}
