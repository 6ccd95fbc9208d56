package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/aretw0/docflow/pkg/domain"
	"github.com/moogar0880/problems"
)

const problemMediaType = "application/problem+json"

// fail maps engine errors to RFC 7807 problems.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	var (
		cfg      *domain.ConfigurationError
		conflict *domain.ConflictError
		taskErr  *domain.TaskExecutionError
	)
	switch {
	case errors.Is(err, domain.ErrHandleNotFound):
		s.problem(w, r, http.StatusNotFound, "handle_not_found", err.Error())
	case errors.Is(err, domain.ErrChartNotFound):
		s.problem(w, r, http.StatusNotFound, "chart_not_found", err.Error())
	case errors.As(err, &conflict):
		s.problem(w, r, http.StatusConflict, "conflict", err.Error())
	case errors.As(err, &cfg):
		s.problem(w, r, http.StatusUnprocessableEntity, "configuration_error", err.Error())
	case errors.As(err, &taskErr):
		s.problem(w, r, http.StatusUnprocessableEntity, "task_error", err.Error())
	default:
		s.logger.Error("request failed", "path", r.URL.Path, "err", err)
		problem := problems.NewStatusProblem(http.StatusInternalServerError).
			WithInstance(r.URL.Path).
			WithType("internal_error").
			WithError(err)
		s.writeProblem(w, http.StatusInternalServerError, problem)
	}
}

func (s *Server) problem(w http.ResponseWriter, r *http.Request, status int, typ, detail string) {
	problem := problems.NewStatusProblem(status).
		WithInstance(r.URL.Path).
		WithType(typ).
		WithDetail(detail)
	s.writeProblem(w, status, problem)
}

func (s *Server) writeProblem(w http.ResponseWriter, status int, problem any) {
	w.Header().Set("Content-Type", problemMediaType)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(problem); err != nil {
		s.logger.Error("problem encode failed", "err", err)
	}
}
