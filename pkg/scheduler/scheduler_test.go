package scheduler_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/docflow/pkg/domain"
	"github.com/aretw0/docflow/pkg/ports"
	"github.com/aretw0/docflow/pkg/scheduler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeIndex struct {
	due []ports.ScheduledRequest
	err error
	at  time.Time
}

func (f *fakeIndex) DueRequests(_ context.Context, now time.Time) ([]ports.ScheduledRequest, error) {
	f.at = now
	return f.due, f.err
}

type call struct{ handleID, event string }

type recorder struct {
	mu      sync.Mutex
	calls   []call
	results map[string]*domain.Result
	errs    map[string]error
}

func (r *recorder) invoke(_ context.Context, handleID, event string) (*domain.Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call{handleID, event})
	if err := r.errs[handleID]; err != nil {
		return nil, err
	}
	if res, ok := r.results[handleID]; ok {
		return res, nil
	}
	return &domain.Result{Event: event, Outcome: domain.OutcomeTaken, State: "live"}, nil
}

func TestTick(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	index := &fakeIndex{due: []ports.ScheduledRequest{
		{HandleID: "a", RequestID: "r1", Type: domain.RequestScheduledPublish, At: now},
		{HandleID: "b", RequestID: "r2", Type: domain.RequestScheduledDepublish, At: now},
		{HandleID: "c", RequestID: "r3", Type: domain.RequestScheduledPublish, At: now},
		{HandleID: "d", RequestID: "r4", Type: domain.RequestScheduledPublish, At: now},
		{HandleID: "e", RequestID: "r5", Type: domain.RequestPublish, At: now},
	}}
	rec := &recorder{
		results: map[string]*domain.Result{
			"c": {Outcome: domain.OutcomeDenied, Reason: "no scheduled publication is due"},
		},
		errs: map[string]error{
			"d": &domain.ConflictError{HandleID: "d", Reason: "stale version"},
		},
	}

	s, err := scheduler.New(index, rec.invoke, scheduler.WithClock(func() time.Time { return now }))
	require.NoError(t, err)

	report, err := s.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, scheduler.Report{Due: 5, Taken: 2, Skipped: 2, Failed: 1}, report)
	assert.True(t, index.at.Equal(now))
	assert.Equal(t, []call{
		{"a", "publish"},
		{"b", "depublish"},
		{"c", "publish"},
		{"d", "publish"},
	}, rec.calls)
}

func TestTick_IndexError(t *testing.T) {
	index := &fakeIndex{err: errors.New("connection refused")}
	s, err := scheduler.New(index, (&recorder{}).invoke)
	require.NoError(t, err)

	_, err = s.Tick(context.Background())
	assert.ErrorContains(t, err, "connection refused")
}

func TestNew_InvalidSpec(t *testing.T) {
	_, err := scheduler.New(&fakeIndex{}, (&recorder{}).invoke, scheduler.WithSpec("not a schedule"))
	assert.ErrorContains(t, err, "invalid schedule")
}

func TestWithEvent(t *testing.T) {
	s, err := scheduler.New(&fakeIndex{}, (&recorder{}).invoke,
		scheduler.WithEvent(domain.RequestScheduledPublish, "goLive"))
	require.NoError(t, err)

	event, ok := s.EventFor(domain.RequestScheduledPublish)
	assert.True(t, ok)
	assert.Equal(t, "goLive", event)

	_, ok = s.EventFor(domain.RequestDelete)
	assert.False(t, ok)
}

func TestStartStop(t *testing.T) {
	s, err := scheduler.New(&fakeIndex{}, (&recorder{}).invoke, scheduler.WithSpec("@every 1h"))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, s.Start(ctx))
	assert.Error(t, s.Start(ctx), "second start must fail")

	s.Stop()
	require.NoError(t, s.Start(ctx), "a stopped scheduler can start again")
	s.Stop()
}

func TestStart_CancelledContextOfEarlierRun(t *testing.T) {
	s, err := scheduler.New(&fakeIndex{}, (&recorder{}).invoke, scheduler.WithSpec("@every 1h"))
	require.NoError(t, err)

	first, cancelFirst := context.WithCancel(context.Background())
	require.NoError(t, s.Start(first))
	s.Stop()

	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	// Cancelling the first run's context must not stop the second run.
	cancelFirst()
	time.Sleep(50 * time.Millisecond)
	assert.Error(t, s.Start(context.Background()), "the second run is still active")
}

func TestStart_StopsWhenContextDone(t *testing.T) {
	s, err := scheduler.New(&fakeIndex{}, (&recorder{}).invoke, scheduler.WithSpec("@every 1h"))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, s.Start(ctx))
	cancel()

	assert.Eventually(t, func() bool {
		if err := s.Start(context.Background()); err != nil {
			return false
		}
		s.Stop()
		return true
	}, time.Second, 10*time.Millisecond)
}
