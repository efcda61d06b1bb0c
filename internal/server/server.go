// Package server exposes the step invocation surface over HTTP.
//
// Routes:
//
//	POST /v1/step          run one search step; body {"token", "description"}
//	GET  /v1/ledger        trials of the current refinement round
//	GET  /v1/ledger/watch  websocket stream of ledger events
//	GET  /healthz, /readyz liveness and readiness probes
//	GET  /metrics          Prometheus scrape endpoint
//
// Every route is wrapped in [observe.Middleware].
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/MrWong99/kwstune/internal/health"
	"github.com/MrWong99/kwstune/internal/ledger"
	"github.com/MrWong99/kwstune/internal/observe"
	"github.com/MrWong99/kwstune/internal/tuning"
)

const (
	defaultWatchInterval = time.Second
	maxRequestBody       = 64 << 10
)

// Stepper runs one search step. *tuning.Handler satisfies it.
type Stepper interface {
	Handle(ctx context.Context, token, description string) tuning.Result
}

// TrialLister returns the current ledger rows. Every [ledger.Ledger]
// satisfies it.
type TrialLister interface {
	Trials(ctx context.Context) ([]ledger.Trial, error)
}

// Option is a functional option for configuring a [Server].
type Option func(*Server)

// WithHealth replaces the default health handler, which has no readiness
// checkers.
func WithHealth(h *health.Handler) Option {
	return func(s *Server) { s.health = h }
}

// WithMetrics sets the metrics used by the request middleware. Defaults to
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithWatchInterval sets how often the ledger watch stream polls for new
// rows. Default: 1s.
func WithWatchInterval(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.watchInterval = d
		}
	}
}

// Server routes HTTP requests to the step handler and the ledger.
type Server struct {
	stepper       Stepper
	trials        TrialLister
	health        *health.Handler
	metrics       *observe.Metrics
	watchInterval time.Duration
	handler       http.Handler
}

// New builds a [Server]. Call [Server.Handler] to obtain the routed and
// instrumented http.Handler.
func New(stepper Stepper, trials TrialLister, opts ...Option) *Server {
	s := &Server{
		stepper:       stepper,
		trials:        trials,
		watchInterval: defaultWatchInterval,
	}
	for _, o := range opts {
		o(s)
	}
	if s.health == nil {
		s.health = health.New()
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/step", s.handleStep)
	mux.HandleFunc("GET /v1/ledger", s.handleLedger)
	mux.HandleFunc("GET /v1/ledger/watch", s.handleWatch)
	mux.Handle("GET /metrics", observe.MetricsHandler())
	s.health.Register(mux)

	s.handler = observe.Middleware(s.metrics)(mux)
	return s
}

// Handler returns the root http.Handler.
func (s *Server) Handler() http.Handler { return s.handler }

type stepRequest struct {
	Token       string `json:"token"`
	Description string `json:"description"`
}

type trialJSON struct {
	ledger.Trial
	Instances      int `json:"instances"`
	Detected       int `json:"detected"`
	TruePositives  int `json:"true_positives"`
	FalsePositives int `json:"false_positives"`
	FalseNegatives int `json:"false_negatives"`
}

type stepResponse struct {
	Report      []string    `json:"report"`
	Trials      []trialJSON `json:"trials,omitempty"`
	NextToken   string      `json:"next_token"`
	Description string      `json:"description"`
	Best        *int        `json:"best,omitempty"`
	Error       string      `json:"error,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleStep(w http.ResponseWriter, r *http.Request) {
	var req stepRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body: " + err.Error()})
		return
	}

	res := s.stepper.Handle(r.Context(), req.Token, req.Description)

	resp := stepResponse{
		Report:      res.Report,
		NextToken:   res.NextToken,
		Description: res.Description,
		Best:        res.Best,
	}
	for _, t := range res.Trials {
		resp.Trials = append(resp.Trials, trialJSON{
			Trial:          t.Trial,
			Instances:      t.Counts.TotalInstances,
			Detected:       t.Counts.TotalDetected,
			TruePositives:  t.Counts.TruePositives,
			FalsePositives: t.Counts.FalsePositives,
			FalseNegatives: t.Counts.FalseNegatives,
		})
	}
	if res.Err != nil {
		resp.Error = res.Err.Error()
	}
	writeJSON(w, statusFor(res.Err), resp)
}

// statusFor maps a step failure to an HTTP status.
func statusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, tuning.ErrInvalidToken):
		return http.StatusBadRequest
	case errors.Is(err, tuning.ErrCorpusAccess), errors.Is(err, tuning.ErrEvaluation):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleLedger(w http.ResponseWriter, r *http.Request) {
	rows, err := s.trials.Trials(r.Context())
	if err != nil {
		observe.Logger(r.Context()).Error("server: list trials", "err", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	if rows == nil {
		rows = []ledger.Trial{}
	}
	writeJSON(w, http.StatusOK, rows)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("server: encode response", "err", err)
	}
}
