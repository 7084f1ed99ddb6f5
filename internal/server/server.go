// internal/server/server.go
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"transfer-reconciler/internal/common/config"
	"transfer-reconciler/internal/common/logger"
	"transfer-reconciler/internal/common/queue"
	"transfer-reconciler/internal/models"
	indexmatchattempt "transfer-reconciler/internal/workers/data-access/index-match-attempt"
	extractpaymentinfo "transfer-reconciler/internal/workers/extraction/extract-payment-info"
)

type PaymentCreator interface {
	Create(ctx context.Context, p *models.PaymentRequest) error
}

type RecheckScheduler interface {
	Schedule(ctx context.Context, paymentID int64) (*queue.Job, error)
}

type Extractor interface {
	Execute(ctx context.Context, input *extractpaymentinfo.Input) (*extractpaymentinfo.Output, error)
}

type AttemptSearcher interface {
	Search(ctx context.Context, input *indexmatchattempt.SearchInput) (*indexmatchattempt.SearchOutput, error)
}

// Checker reports whether a dependency is reachable.
type Checker func(ctx context.Context) error

type Deps struct {
	Payments  PaymentCreator
	Scheduler RecheckScheduler
	Extractor Extractor
	// Attempts is nil when the audit index is disabled.
	Attempts AttemptSearcher
	Checks   map[string]Checker
}

type Server struct {
	config   config.ServerConfig
	deps     Deps
	logger   logger.Logger
	validate *validator.Validate
	http     *http.Server
	now      func() time.Time
}

func New(cfg config.ServerConfig, deps Deps, log logger.Logger) *Server {
	if cfg.Address == "" {
		cfg.Address = ":8080"
	}
	s := &Server{
		config:   cfg,
		deps:     deps,
		logger:   log.WithFields(map[string]interface{}{"component": "api"}),
		validate: validator.New(),
		now:      time.Now,
	}
	s.http = &http.Server{
		Addr:              cfg.Address,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the routed mux.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/payment-requests", s.createPaymentRequest)
	mux.HandleFunc("POST /api/v1/extract", s.extract)
	mux.HandleFunc("GET /api/v1/match-attempts", s.searchMatchAttempts)
	mux.HandleFunc("GET /health", s.health)
	mux.HandleFunc("GET /ready", s.ready)
	mux.Handle("GET /metrics", promhttp.Handler())
	return mux
}

// Start serves until Shutdown; the returned channel yields the terminal error.
func (s *Server) Start() <-chan error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("api server listening", map[string]interface{}{"address": s.config.Address})
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	return errCh
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   s.now().Format(time.RFC3339),
	})
}

func (s *Server) ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	status := http.StatusOK
	checks := make(map[string]string, len(s.deps.Checks))
	for name, check := range s.deps.Checks {
		if err := check(ctx); err != nil {
			status = http.StatusServiceUnavailable
			checks[name] = err.Error()
			continue
		}
		checks[name] = "ok"
	}

	state := "ready"
	if status != http.StatusOK {
		state = "not_ready"
	}
	writeJSON(w, status, map[string]interface{}{
		"status": state,
		"checks": checks,
		"time":   s.now().Format(time.RFC3339),
	})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

type errorResponse struct {
	Error   string      `json:"error"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

func writeError(w http.ResponseWriter, status int, code, message string, details interface{}) {
	writeJSON(w, status, errorResponse{Error: code, Message: message, Details: details})
}
