// Package scheduler drives scheduled requests. The engine never keeps timers
// of its own: a scheduler polls a ports.ScheduleIndex and fires the matching
// chart event on each due handle as the system identity.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/docflow/internal/logging"
	"github.com/aretw0/docflow/pkg/domain"
	"github.com/aretw0/docflow/pkg/ports"
	"github.com/robfig/cron/v3"
)

// DefaultSpec polls once a minute.
const DefaultSpec = "@every 1m"

// InvokeFunc fires event on a handle as the system identity.
type InvokeFunc func(ctx context.Context, handleID, event string) (*domain.Result, error)

// Report summarizes one Tick.
type Report struct {
	Due     int
	Taken   int
	Skipped int
	Failed  int
}

// Scheduler polls for due scheduled requests.
type Scheduler struct {
	index  ports.ScheduleIndex
	invoke InvokeFunc
	spec   string
	logger *slog.Logger
	now    func() time.Time
	events map[domain.RequestType]string

	mu   sync.Mutex
	cron *cron.Cron
	stop chan struct{}
}

// Option configures the Scheduler.
type Option func(*Scheduler)

// WithSpec sets the cron expression (standard five fields or a descriptor
// such as "@every 30s").
func WithSpec(spec string) Option {
	return func(s *Scheduler) {
		s.spec = spec
	}
}

// WithLogger configures a logger for the Scheduler.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		s.logger = logger
	}
}

// WithClock overrides the time source used to decide what is due.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		s.now = now
	}
}

// WithEvent maps a scheduled request type to the chart event it fires.
func WithEvent(typ domain.RequestType, event string) Option {
	return func(s *Scheduler) {
		s.events[typ] = event
	}
}

// New creates a Scheduler. The spec is validated here so that Start cannot
// fail on it later.
func New(index ports.ScheduleIndex, invoke InvokeFunc, opts ...Option) (*Scheduler, error) {
	s := &Scheduler{
		index:  index,
		invoke: invoke,
		spec:   DefaultSpec,
		logger: logging.NewNop(),
		now:    time.Now,
		events: map[domain.RequestType]string{
			domain.RequestScheduledPublish:   "publish",
			domain.RequestScheduledDepublish: "depublish",
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	if _, err := cron.ParseStandard(s.spec); err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", s.spec, err)
	}
	return s, nil
}

// EventFor returns the chart event fired for a scheduled request type.
func (s *Scheduler) EventFor(typ domain.RequestType) (string, bool) {
	event, ok := s.events[typ]
	return event, ok
}

// Tick fires every due request once. Failures are logged and counted; they
// do not stop the loop. Only an index error is returned.
func (s *Scheduler) Tick(ctx context.Context) (Report, error) {
	now := s.now()
	due, err := s.index.DueRequests(ctx, now)
	if err != nil {
		return Report{}, fmt.Errorf("failed to query due requests: %w", err)
	}

	report := Report{Due: len(due)}
	for _, ref := range due {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		event, ok := s.EventFor(ref.Type)
		if !ok {
			s.logger.Warn("no event for scheduled request type",
				"handle_id", ref.HandleID, "request_id", ref.RequestID, "type", ref.Type)
			report.Skipped++
			continue
		}

		res, err := s.invoke(ctx, ref.HandleID, event)
		switch {
		case err != nil:
			report.Failed++
			level := slog.LevelError
			var conflict *domain.ConflictError
			if errors.As(err, &conflict) {
				level = slog.LevelWarn
			}
			s.logger.Log(ctx, level, "scheduled invocation failed",
				"handle_id", ref.HandleID, "event", event, "err", err)
		case res.Taken():
			report.Taken++
			s.logger.Info("scheduled request fired",
				"handle_id", ref.HandleID, "event", event, "state", res.State)
		case res.Outcome == domain.OutcomeFailed:
			report.Failed++
			s.logger.Error("scheduled transition failed",
				"handle_id", ref.HandleID, "event", event, "err", res.Err)
		default:
			report.Skipped++
			s.logger.Info("scheduled request not fired",
				"handle_id", ref.HandleID, "event", event, "outcome", res.Outcome, "reason", res.Reason)
		}
	}
	return report, nil
}

// Start runs Tick on the cron schedule until ctx is done or Stop is called.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return errors.New("scheduler already started")
	}

	c := cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cron.DiscardLogger),
		cron.Recover(cron.DiscardLogger),
	))
	if _, err := c.AddFunc(s.spec, func() {
		if _, err := s.Tick(ctx); err != nil {
			s.logger.Error("scheduler tick failed", "err", err)
		}
	}); err != nil {
		return fmt.Errorf("failed to add scheduler job: %w", err)
	}
	c.Start()
	stop := make(chan struct{})
	s.cron = c
	s.stop = stop
	s.logger.Info("scheduler started", "spec", s.spec)

	go func() {
		select {
		case <-ctx.Done():
			s.halt(stop)
		case <-stop:
		}
	}()
	return nil
}

// Stop halts the cron loop and waits for a running Tick to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	stop := s.stop
	s.mu.Unlock()
	s.halt(stop)
}

// halt stops the run identified by stop. A run that was already stopped,
// possibly followed by a new Start, is left alone.
func (s *Scheduler) halt(stop chan struct{}) {
	s.mu.Lock()
	if stop == nil || s.stop != stop {
		s.mu.Unlock()
		return
	}
	c := s.cron
	s.cron = nil
	s.stop = nil
	close(stop)
	s.mu.Unlock()

	<-c.Stop().Done()
}
