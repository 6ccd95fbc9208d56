package docflow_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/docflow"
	"github.com/aretw0/docflow/pkg/adapters/memory"
	"github.com/aretw0/docflow/pkg/domain"
	"github.com/aretw0/docflow/pkg/persistence/middleware"
	"github.com/aretw0/docflow/pkg/ports"
	"github.com/aretw0/docflow/pkg/task"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

func newEngine(t *testing.T, opts ...docflow.Option) *docflow.Engine {
	t.Helper()
	opts = append([]docflow.Option{docflow.WithClock(func() time.Time { return fixedNow })}, opts...)
	eng, err := docflow.New("testdata/charts", opts...)
	require.NoError(t, err)
	return eng
}

func invoke(t *testing.T, eng *docflow.Engine, id, event, identity string, params map[string]any) *domain.Result {
	t.Helper()
	res, err := eng.Invoke(context.Background(), docflow.InvokeRequest{
		HandleID: id,
		Event:    event,
		Identity: identity,
		Params:   params,
	})
	require.NoError(t, err)
	return res
}

func TestEngine_ReviewScenario(t *testing.T) {
	eng := newEngine(t)
	ctx := context.Background()

	h, err := eng.Create(ctx, "doc-1", "review", map[string]any{"title": "Hello"})
	require.NoError(t, err)
	assert.Equal(t, "draft", h.State)
	assert.Equal(t, int64(1), h.Version)

	res := invoke(t, eng, "doc-1", "submit", "alice", nil)
	require.True(t, res.Taken(), res.Reason)
	assert.Equal(t, "review", res.State)
	assert.False(t, res.Hints.Allowed("submit"))

	res = invoke(t, eng, "doc-1", "approve", "alice", nil)
	assert.Equal(t, domain.OutcomeDenied, res.Outcome)
	assert.Equal(t, "the requester cannot approve their own request", res.Reason)
	assert.Equal(t, "review", res.State)

	hints, err := eng.Hints(ctx, "doc-1", "bob")
	require.NoError(t, err)
	assert.True(t, hints.Allowed("approve"))

	res = invoke(t, eng, "doc-1", "approve", "bob", nil)
	require.True(t, res.Taken(), res.Reason)
	assert.Equal(t, "published", res.State)

	stored, err := eng.Handle(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, "published", stored.State)
	assert.Equal(t, int64(3), stored.Version)
	assert.True(t, stored.Variant(domain.VariantPublished).IsAvailable(domain.AvailabilityLive))
	assert.Nil(t, stored.ActiveRequest())
	require.Len(t, stored.History, 1)

	res = invoke(t, eng, "doc-1", "submit", "alice", nil)
	assert.Equal(t, domain.OutcomeNotApplicable, res.Outcome)
}

func TestEngine_RejectLeavesZombie(t *testing.T) {
	eng := newEngine(t)
	ctx := context.Background()
	_, err := eng.Create(ctx, "doc-1", "review", nil)
	require.NoError(t, err)

	require.True(t, invoke(t, eng, "doc-1", "submit", "alice", nil).Taken())
	res := invoke(t, eng, "doc-1", "reject", "bob", map[string]any{"reason": "needs sources"})
	require.True(t, res.Taken(), res.Reason)
	assert.Equal(t, "draft", res.State)

	stored, err := eng.Handle(ctx, "doc-1")
	require.NoError(t, err)
	require.Len(t, stored.Requests, 1)
	assert.True(t, stored.Requests[0].IsZombie())
	assert.Equal(t, "needs sources", stored.Requests[0].Reason)

	purged, err := eng.PurgeZombies(ctx, "doc-1", fixedNow.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, purged)

	stored, err = eng.Handle(ctx, "doc-1")
	require.NoError(t, err)
	assert.Empty(t, stored.Requests)

	purged, err = eng.PurgeZombies(ctx, "doc-1", fixedNow.Add(time.Hour))
	require.NoError(t, err)
	assert.Zero(t, purged)
}

func TestEngine_Errors(t *testing.T) {
	eng := newEngine(t)
	ctx := context.Background()

	_, err := eng.Invoke(ctx, docflow.InvokeRequest{HandleID: "missing", Event: "submit"})
	assert.ErrorIs(t, err, domain.ErrHandleNotFound)

	_, err = eng.Hints(ctx, "missing", "alice")
	assert.ErrorIs(t, err, domain.ErrHandleNotFound)

	_, err = eng.Create(ctx, "doc-1", "no-such-chart", nil)
	var cfg *domain.ConfigurationError
	require.True(t, errors.As(err, &cfg), "expected ConfigurationError, got %v", err)
	assert.ErrorIs(t, err, domain.ErrChartNotFound)

	_, err = eng.Create(ctx, "doc-1", "review", nil)
	require.NoError(t, err)
	_, err = eng.Create(ctx, "doc-1", "review", nil)
	var conflict *domain.ConflictError
	assert.True(t, errors.As(err, &conflict), "expected ConflictError, got %v", err)
}

func TestEngine_New_RequiresSource(t *testing.T) {
	_, err := docflow.New("")
	assert.Error(t, err)
}

func TestEngine_TaskFailureKeepsState(t *testing.T) {
	src := memory.NewSource(map[string]string{
		"fragile": `
name: fragile
states:
  - id: draft
    initial: true
  - id: done
transitions:
  - from: draft
    event: finish
    to: done
    actions:
      - task: value
        with:
          value: 1
        result: marker
      - task: boom
`,
	})
	tasks := task.DefaultRegistry()
	tasks.RegisterFunc("boom", func(context.Context, *task.Context) (any, error) {
		return nil, task.Fail("boom", "backend unavailable", true, nil)
	})

	store := memory.NewStore()
	eng, err := docflow.New("", docflow.WithChartSource(src), docflow.WithTasks(tasks), docflow.WithStore(store))
	require.NoError(t, err)
	ctx := context.Background()
	_, err = eng.Create(ctx, "doc-1", "fragile", nil)
	require.NoError(t, err)

	res := invoke(t, eng, "doc-1", "finish", "alice", nil)
	assert.Equal(t, domain.OutcomeFailed, res.Outcome)
	assert.Equal(t, "draft", res.State)
	assert.True(t, domain.IsRetryable(res.Err))

	stored, err := store.Load(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, "draft", stored.State)
	assert.Equal(t, int64(1), stored.Version)
	assert.NotContains(t, stored.Variables, "marker")
}

func TestEngine_SerializesInvocations(t *testing.T) {
	eng := newEngine(t)
	ctx := context.Background()
	_, err := eng.Create(ctx, "doc-1", "review", nil)
	require.NoError(t, err)

	const n = 10
	var wg sync.WaitGroup
	results := make(chan *domain.Result, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := eng.Invoke(ctx, docflow.InvokeRequest{HandleID: "doc-1", Event: "submit", Identity: "alice"})
			if err == nil {
				results <- res
			}
		}()
	}
	wg.Wait()
	close(results)

	taken := 0
	for res := range results {
		if res.Taken() {
			taken++
		}
	}
	assert.Equal(t, 1, taken, "only the first submit finds the document in draft")

	stored, err := eng.Handle(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), stored.Version)
}

func TestEngine_ScheduledPublication(t *testing.T) {
	eng := newEngine(t)
	ctx := context.Background()
	_, err := eng.Create(ctx, "doc-1", "publication", map[string]any{"title": "Embargoed"})
	require.NoError(t, err)

	res := invoke(t, eng, "doc-1", "requestScheduledPublication", "alice", map[string]any{
		"at": fixedNow.Add(-time.Minute).Format(time.RFC3339),
	})
	require.True(t, res.Taken(), res.Reason)

	sched, err := eng.Scheduler()
	require.NoError(t, err)
	report, err := sched.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Due)
	assert.Equal(t, 1, report.Taken)

	stored, err := eng.Handle(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, "live", stored.State)
	assert.True(t, stored.Variant(domain.VariantPublished).IsAvailable(domain.AvailabilityLive))

	report, err = sched.Tick(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Due)
}

// listOnlyStore hides the schedule index of the store it wraps.
type listOnlyStore struct {
	ports.HandleStore
}

func TestEngine_SchedulerNeedsIndex(t *testing.T) {
	pii, err := middleware.NewPIIMiddleware([]string{"(?i)email"})
	require.NoError(t, err)

	eng := newEngine(t, docflow.WithStore(middleware.Chain(listOnlyStore{memory.NewStore()}, pii)))
	_, err = eng.Scheduler()
	assert.ErrorContains(t, err, "does not index scheduled requests")

	eng = newEngine(t, docflow.WithStore(middleware.Chain(memory.NewStore(), pii)))
	_, err = eng.Scheduler()
	assert.NoError(t, err)
}

func TestEngine_Charts(t *testing.T) {
	eng := newEngine(t)
	ctx := context.Background()

	names, err := eng.Charts(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"publication", "review"}, names)

	failures, err := eng.Validate(ctx)
	require.NoError(t, err)
	assert.Empty(t, failures)

	def, err := eng.Definition(ctx, "review")
	require.NoError(t, err)
	assert.Equal(t, "draft", def.Initial())
}

func TestEngine_InvalidateRereadsChart(t *testing.T) {
	src := memory.NewSource(map[string]string{
		"flip": "name: flip\nstates:\n  - id: a\n    initial: true\n  - id: b\ntransitions:\n  - from: a\n    event: go\n    to: b\n",
	})
	eng, err := docflow.New("", docflow.WithChartSource(src))
	require.NoError(t, err)
	ctx := context.Background()

	def, err := eng.Definition(ctx, "flip")
	require.NoError(t, err)
	assert.Len(t, def.Transitions, 1)

	src.Put("flip", "name: flip\nstates:\n  - id: a\n    initial: true\n  - id: b\ntransitions:\n  - from: a\n    event: go\n    to: b\n  - from: b\n    event: back\n    to: a\n")
	def, err = eng.Definition(ctx, "flip")
	require.NoError(t, err)
	assert.Len(t, def.Transitions, 1, "cached until invalidated")

	eng.Invalidate("flip")
	def, err = eng.Definition(ctx, "flip")
	require.NoError(t, err)
	assert.Len(t, def.Transitions, 2)
}
