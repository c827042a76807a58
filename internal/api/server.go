package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/builditusa/scopecast/internal/hermes"
	"github.com/builditusa/scopecast/internal/ratelimit"
	"github.com/builditusa/scopecast/internal/schema"
	"github.com/builditusa/scopecast/internal/scope"
)

// Scoper runs the streamed exchanges. *scope.Service implements it.
type Scoper interface {
	Ask(ctx context.Context, projectID uuid.UUID, userInput string, sink io.Writer) (*scope.Outcome, error)
	Estimate(ctx context.Context, projectID uuid.UUID, sink io.Writer) (*scope.Outcome, error)
	Analyze(ctx context.Context, in scope.AnalyzeInput, sink io.Writer) (*scope.Outcome, error)
}

// Portfolio runs cross-project analysis. *portfolio.Service implements it.
type Portfolio interface {
	Analyze(ctx context.Context, ids []uuid.UUID, zip *string) (*schema.CrossProjectAnalysis, error)
}

// Admitter decides whether a caller may start another exchange.
type Admitter interface {
	Check(ctx context.Context, identity string, authenticated bool) (ratelimit.Decision, error)
}

type Config struct {
	Port          int
	AllowedOrigin string
	// APIToken marks callers presenting it as authenticated. Empty disables
	// authentication.
	APIToken string
}

type Option func(*Server)

func WithPortfolio(p Portfolio) Option {
	return func(s *Server) { s.portfolio = p }
}

func WithPublisher(p hermes.Publisher) Option {
	return func(s *Server) { s.publisher = p }
}

// WithHealthCheck adds a named dependency check to GET /health.
func WithHealthCheck(name string, check func(context.Context) error) Option {
	return func(s *Server) { s.checks = append(s.checks, healthCheck{name, check}) }
}

type healthCheck struct {
	name  string
	check func(context.Context) error
}

type Server struct {
	router    *chi.Mux
	httpSrv   *http.Server
	cfg       Config
	scoper    Scoper
	portfolio Portfolio
	limiter   Admitter
	publisher hermes.Publisher
	checks    []healthCheck
	logger    *slog.Logger
}

func NewServer(cfg Config, scoper Scoper, limiter Admitter, logger *slog.Logger, opts ...Option) *Server {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	s := &Server{
		router:    router,
		cfg:       cfg,
		scoper:    scoper,
		limiter:   limiter,
		publisher: hermes.Nop{},
		logger:    logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.httpSrv = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	router.Get("/health", s.health)

	router.Route("/api/v1", func(r chi.Router) {
		r.Use(corsMiddleware(cfg.AllowedOrigin))
		r.Use(authMiddleware(cfg.APIToken))
		r.Post("/scope", s.handleScope)
		r.Post("/analyze", s.handleAnalyze)
		if s.portfolio != nil {
			r.With(requireAuth(cfg.APIToken)).Post("/portfolio/analyze", s.handlePortfolio)
		}
	})
	router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})

	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("API server starting", "addr", s.httpSrv.Addr)
	if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	status, code := "ok", http.StatusOK
	failed := map[string]string{}
	for _, c := range s.checks {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		err := c.check(ctx)
		cancel()
		if err != nil {
			failed[c.name] = err.Error()
			status, code = "degraded", http.StatusServiceUnavailable
		}
	}

	body := map[string]any{"status": status}
	if len(failed) > 0 {
		body["failed"] = failed
	}
	writeJSON(w, code, body)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	ResetAt string `json:"resetAt,omitempty"`
}

// isoMillis matches the browser's Date.toISOString.
const isoMillis = "2006-01-02T15:04:05.000Z07:00"

func writeError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, errorBody{Error: message, Code: code})
}
