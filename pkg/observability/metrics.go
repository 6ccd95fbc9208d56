package observability

import (
	"context"

	"github.com/aretw0/docflow/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors fed by the engine.
type Metrics struct {
	Transitions  *prometheus.CounterVec
	TaskDuration *prometheus.HistogramVec
	TaskErrors   *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docflow_transitions_total",
				Help: "Total number of invocations by chart, event and outcome",
			},
			[]string{"chart", "event", "outcome"},
		),
		TaskDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "docflow_task_duration_seconds",
				Help:    "Duration of task executions",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"task"},
		),
		TaskErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docflow_task_errors_total",
				Help: "Total number of failed task executions",
			},
			[]string{"task"},
		),
	}
	if reg != nil {
		reg.MustRegister(m.Transitions, m.TaskDuration, m.TaskErrors)
	}
	return m
}

// Hooks returns lifecycle hooks that record into m.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	record := func(_ context.Context, e *domain.TransitionEvent) {
		m.Transitions.WithLabelValues(e.Chart, e.Event, string(e.Outcome)).Inc()
	}
	return domain.LifecycleHooks{
		OnTransition: record,
		OnDenied:     record,
		OnTaskReturn: func(_ context.Context, e *domain.TaskEvent) {
			m.TaskDuration.WithLabelValues(e.Task).Observe(e.Duration.Seconds())
			if e.Err != nil {
				m.TaskErrors.WithLabelValues(e.Task).Inc()
			}
		},
	}
}
