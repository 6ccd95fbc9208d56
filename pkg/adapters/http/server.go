// Package http exposes a docflow engine over a JSON REST API.
package http

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aretw0/docflow"
	"github.com/aretw0/docflow/internal/logging"
	"github.com/aretw0/docflow/pkg/chart"
	"github.com/aretw0/docflow/pkg/domain"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Engine defines the part of the docflow engine the server drives.
type Engine interface {
	Create(ctx context.Context, id, workflow string, content map[string]any) (*domain.DocumentHandle, error)
	Invoke(ctx context.Context, req docflow.InvokeRequest) (*domain.Result, error)
	Hints(ctx context.Context, handleID, identity string) (*domain.Hints, error)
	Handle(ctx context.Context, id string) (*domain.DocumentHandle, error)
	Handles(ctx context.Context) ([]string, error)
	Delete(ctx context.Context, id string) error
	PurgeZombies(ctx context.Context, id string, before time.Time) (int, error)
	Charts(ctx context.Context) ([]string, error)
	Definition(ctx context.Context, name string) (*chart.Definition, error)
	Watch(ctx context.Context) (<-chan string, error)
}

var _ Engine = (*docflow.Engine)(nil)

// Server serves the REST API.
type Server struct {
	Engine   Engine
	Streams  *StreamManager
	logger   *slog.Logger
	validate *validator.Validate
	gatherer prometheus.Gatherer
}

// Option configures the Server.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithMetrics exposes the gatherer on GET /metrics.
func WithMetrics(g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.gatherer = g
	}
}

// NewHandler creates a new HTTP handler for the engine.
func NewHandler(engine Engine, opts ...Option) http.Handler {
	s := &Server{
		Engine:   engine,
		Streams:  NewStreamManager(),
		logger:   logging.NewNop(),
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.Streams.logger = s.logger

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/health", s.GetHealth)
	r.Get("/info", s.GetInfo)
	if s.gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	r.Get("/charts", s.ListCharts)
	r.Get("/charts/{name}", s.GetChart)

	r.Route("/handles", func(r chi.Router) {
		r.Get("/", s.ListHandles)
		r.Post("/", s.CreateHandle)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.GetHandle)
			r.Delete("/", s.DeleteHandle)
			r.Get("/hints", s.GetHints)
			r.Post("/events/{event}", s.Invoke)
			r.Post("/requests/purge", s.PurgeZombies)
		})
	})
	r.Get("/events", s.SubscribeEvents)

	return enableCORS(r)
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Custom-Header")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// CreateHandleRequest is the body of POST /handles.
type CreateHandleRequest struct {
	ID       string         `json:"id" validate:"required"`
	Workflow string         `json:"workflow" validate:"required"`
	Content  map[string]any `json:"content"`
}

// InvokeRequest is the body of POST /handles/{id}/events/{event}.
type InvokeRequest struct {
	Identity string         `json:"identity" validate:"required"`
	Params   map[string]any `json:"params"`
}

// PurgeRequest is the body of POST /handles/{id}/requests/purge.
// A zero Before purges every rejected request.
type PurgeRequest struct {
	Before time.Time `json:"before"`
}

// InvokeResponse is returned for every outcome of an invocation.
type InvokeResponse struct {
	Event      string                 `json:"event"`
	PriorState string                 `json:"prior_state"`
	State      string                 `json:"state"`
	Outcome    domain.Outcome         `json:"outcome"`
	Reason     string                 `json:"reason,omitempty"`
	Retryable  bool                   `json:"retryable,omitempty"`
	Handle     *domain.DocumentHandle `json:"handle"`
	Hints      *domain.Hints          `json:"hints,omitempty"`
}

// CreateHandle handles POST /handles.
func (s *Server) CreateHandle(w http.ResponseWriter, r *http.Request) {
	var body CreateHandleRequest
	if !s.decode(w, r, &body) {
		return
	}
	h, err := s.Engine.Create(r.Context(), body.ID, body.Workflow, body.Content)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, http.StatusCreated, h)
}

// ListHandles handles GET /handles.
func (s *Server) ListHandles(w http.ResponseWriter, r *http.Request) {
	ids, err := s.Engine.Handles(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, map[string]any{"handles": ids})
}

// GetHandle handles GET /handles/{id}.
func (s *Server) GetHandle(w http.ResponseWriter, r *http.Request) {
	h, err := s.Engine.Handle(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, h)
}

// DeleteHandle handles DELETE /handles/{id}.
func (s *Server) DeleteHandle(w http.ResponseWriter, r *http.Request) {
	if err := s.Engine.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetHints handles GET /handles/{id}/hints?identity=.
func (s *Server) GetHints(w http.ResponseWriter, r *http.Request) {
	identity := r.URL.Query().Get("identity")
	if identity == "" {
		s.problem(w, r, http.StatusBadRequest, "validation_error", "identity query parameter is required")
		return
	}
	hints, err := s.Engine.Hints(r.Context(), chi.URLParam(r, "id"), identity)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, hints)
}

// Invoke handles POST /handles/{id}/events/{event}. Denied and not applicable
// outcomes are answered with 200 and the outcome in the body; a failed task
// yields 422.
func (s *Server) Invoke(w http.ResponseWriter, r *http.Request) {
	var body InvokeRequest
	if !s.decode(w, r, &body) {
		return
	}
	id := chi.URLParam(r, "id")
	res, err := s.Engine.Invoke(r.Context(), docflow.InvokeRequest{
		HandleID: id,
		Event:    chi.URLParam(r, "event"),
		Identity: body.Identity,
		Params:   body.Params,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}

	if res.Taken() {
		if diff := domain.Diff(res.Before, res.Handle); diff != nil {
			if bytes, err := json.Marshal(diff); err == nil {
				s.Streams.Broadcast(id, string(bytes))
			}
		}
	}

	status := http.StatusOK
	if res.Outcome == domain.OutcomeFailed {
		status = http.StatusUnprocessableEntity
	}
	s.respond(w, status, InvokeResponse{
		Event:      res.Event,
		PriorState: res.PriorState,
		State:      res.State,
		Outcome:    res.Outcome,
		Reason:     res.Reason,
		Retryable:  domain.IsRetryable(res.Err),
		Handle:     res.Handle,
		Hints:      res.Hints,
	})
}

// PurgeZombies handles POST /handles/{id}/requests/purge.
func (s *Server) PurgeZombies(w http.ResponseWriter, r *http.Request) {
	var body PurgeRequest
	if r.ContentLength != 0 && !s.decode(w, r, &body) {
		return
	}
	n, err := s.Engine.PurgeZombies(r.Context(), chi.URLParam(r, "id"), body.Before)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, map[string]int{"purged": n})
}

// ListCharts handles GET /charts.
func (s *Server) ListCharts(w http.ResponseWriter, r *http.Request) {
	names, err := s.Engine.Charts(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, map[string]any{"charts": names})
}

// GetChart handles GET /charts/{name}.
func (s *Server) GetChart(w http.ResponseWriter, r *http.Request) {
	def, err := s.Engine.Definition(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, def.Chart)
}

// GetHealth handles the GET /health request.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	s.respond(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetInfo handles the GET /info request.
func (s *Server) GetInfo(w http.ResponseWriter, r *http.Request) {
	s.respond(w, http.StatusOK, map[string]string{
		"app":     "docflow-http",
		"version": strings.TrimSpace(docflow.Version),
	})
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, out any) bool {
	if err := json.NewDecoder(r.Body).Decode(out); err != nil {
		s.problem(w, r, http.StatusBadRequest, "validation_error", fmt.Sprintf("invalid request body: %v", err))
		return false
	}
	if err := s.validate.Struct(out); err != nil {
		s.problem(w, r, http.StatusBadRequest, "validation_error", err.Error())
		return false
	}
	return true
}

func (s *Server) respond(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("response encode failed", "err", err)
	}
}
