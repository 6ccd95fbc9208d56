package observability_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/aretw0/docflow/internal/logging"
	"github.com/aretw0/docflow/pkg/domain"
	"github.com/aretw0/docflow/pkg/observability"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Hooks(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := observability.NewMetrics(reg)
	hooks := m.Hooks()
	ctx := context.Background()

	hooks.OnTransition(ctx, &domain.TransitionEvent{Chart: "review", Event: "approve", Outcome: domain.OutcomeTaken})
	hooks.OnTransition(ctx, &domain.TransitionEvent{Chart: "review", Event: "approve", Outcome: domain.OutcomeTaken})
	hooks.OnDenied(ctx, &domain.TransitionEvent{Chart: "review", Event: "approve", Outcome: domain.OutcomeDenied})
	hooks.OnTaskReturn(ctx, &domain.TaskEvent{Task: "publish", Duration: 20 * time.Millisecond})
	hooks.OnTaskReturn(ctx, &domain.TaskEvent{Task: "publish", Err: errors.New("boom")})

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Transitions.WithLabelValues("review", "approve", "taken")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Transitions.WithLabelValues("review", "approve", "denied")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TaskErrors.WithLabelValues("publish")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.TaskDuration))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "docflow_transitions_total")
	assert.Contains(t, names, "docflow_task_duration_seconds")
}

func TestMetrics_NilRegisterer(t *testing.T) {
	m := observability.NewMetrics(nil)
	m.Hooks().OnTransition(context.Background(), &domain.TransitionEvent{Chart: "c", Event: "e", Outcome: domain.OutcomeTaken})
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Transitions.WithLabelValues("c", "e", "taken")))
}

func TestAuditHooks(t *testing.T) {
	var buf bytes.Buffer
	hooks := observability.AuditHooks(logging.NewWriter(&buf, slog.LevelInfo))
	ctx := context.Background()

	hooks.OnTransition(ctx, &domain.TransitionEvent{HandleID: "doc-1", Chart: "review", Event: "submit", From: "draft", To: "review", Outcome: domain.OutcomeTaken})
	hooks.OnDenied(ctx, &domain.TransitionEvent{HandleID: "doc-1", Event: "approve", Outcome: domain.OutcomeDenied})
	hooks.OnTaskReturn(ctx, &domain.TaskEvent{HandleID: "doc-1", Task: "publish", Err: errors.New("boom")})

	out := buf.String()
	assert.Contains(t, out, "handle_id=doc-1")
	assert.Contains(t, out, "to=review")
	assert.NotContains(t, out, "outcome=denied", "denials log at debug")
	assert.Contains(t, out, "task=publish")
	assert.Contains(t, out, "err=boom")
}
