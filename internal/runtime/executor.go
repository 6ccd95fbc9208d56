// Package runtime interprets compiled state charts against document handles.
package runtime

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/aretw0/docflow/pkg/chart"
	"github.com/aretw0/docflow/pkg/domain"
	"github.com/aretw0/docflow/pkg/requests"
	"github.com/aretw0/docflow/pkg/task"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/aretw0/docflow/internal/runtime"

// Executor fires events on handles. It holds no per-handle state and may be
// shared between goroutines working on different handles.
type Executor struct {
	tasks       *task.Registry
	logger      *slog.Logger
	hooks       domain.LifecycleHooks
	tracer      trace.Tracer
	now         func() time.Time
	requestOpts []requests.Option
}

// Option configures an Executor.
type Option func(*Executor)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Executor) { e.logger = logger }
}

// WithLifecycleHooks registers observability callbacks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(e *Executor) { e.hooks = hooks }
}

// WithTracer overrides the OpenTelemetry tracer.
func WithTracer(tracer trace.Tracer) Option {
	return func(e *Executor) { e.tracer = tracer }
}

// WithClock overrides the invocation clock.
func WithClock(now func() time.Time) Option {
	return func(e *Executor) {
		e.now = now
		e.requestOpts = append(e.requestOpts, requests.WithClock(now))
	}
}

// WithRequestOptions configures the request registry handed to tasks.
func WithRequestOptions(opts ...requests.Option) Option {
	return func(e *Executor) { e.requestOpts = append(e.requestOpts, opts...) }
}

// NewExecutor creates an executor that instantiates tasks from registry.
func NewExecutor(registry *task.Registry, opts ...Option) *Executor {
	e := &Executor{
		tasks:  registry,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		tracer: otel.Tracer(tracerName),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Invocation is one event fired by a caller.
type Invocation struct {
	Event    string
	Identity string
	Params   map[string]any
	Session  any
}

// Fire processes inv against h and returns the outcome with fresh hints.
// h is never modified: a taken transition returns a new handle, every other
// outcome returns h itself.
func (e *Executor) Fire(ctx context.Context, def *chart.Definition, h *domain.DocumentHandle, inv Invocation) *domain.Result {
	ctx, span := e.tracer.Start(ctx, "docflow.invoke", trace.WithAttributes(
		attribute.String("docflow.handle_id", h.ID),
		attribute.String("docflow.chart", def.Name),
		attribute.String("docflow.event", inv.Event),
	))
	defer span.End()

	res := e.fire(ctx, def, h, inv)
	res.Hints = e.Hints(ctx, def, res.Handle, inv.Identity)

	span.SetAttributes(attribute.String("docflow.outcome", string(res.Outcome)))
	if res.Err != nil {
		span.RecordError(res.Err)
		span.SetStatus(codes.Error, res.Reason)
	}
	return res
}

func (e *Executor) fire(ctx context.Context, def *chart.Definition, h *domain.DocumentHandle, inv Invocation) *domain.Result {
	now := e.now()
	prior := def.StartState(h)
	res := &domain.Result{
		Event:      inv.Event,
		PriorState: prior,
		State:      prior,
		Handle:     h,
		Before:     h,
	}
	log := e.logger.With("handle_id", h.ID, "event", inv.Event, "state", prior)

	if _, ok := def.State(prior); !ok {
		res.Outcome = domain.OutcomeFailed
		res.Err = &domain.ConfigurationError{Chart: def.Name, Reason: fmt.Sprintf("handle is in unknown state %q", prior)}
		res.Reason = res.Err.Error()
		log.ErrorContext(ctx, "invocation failed", "err", res.Err)
		return res
	}
	if def.IsFinal(prior) {
		return e.notApplicable(ctx, def, res, fmt.Sprintf("state %q is final", prior))
	}
	candidates := def.Candidates(prior, inv.Event)
	if len(candidates) == 0 {
		return e.notApplicable(ctx, def, res, fmt.Sprintf("event %q is not applicable in state %q", inv.Event, prior))
	}

	work := h.Clone()
	en := &env{def: def, handle: work, identity: inv.Identity, params: inv.Params, state: prior, now: now}

	var blocked string
	for _, i := range candidates {
		ok, reason := e.check(def, i, en)
		if !ok {
			if blocked == "" {
				blocked = reason
			}
			continue
		}

		t := def.Transitions[i]
		tc := &task.Context{
			Identity: inv.Identity,
			Event:    inv.Event,
			Handle:   work,
			Requests: requests.New(work, e.requestOpts...),
			Session:  inv.Session,
			Now:      now,
			Params:   inv.Params,
		}
		for j, a := range t.Actions {
			if err := e.runAction(ctx, def, i, j, a, tc, en); err != nil {
				res.Outcome = domain.OutcomeFailed
				res.Err = err
				res.Reason = err.Error()
				log.WarnContext(ctx, "transition aborted", "task", a.Task, "err", err)
				e.emitTransition(ctx, def, res, now)
				return res
			}
		}

		work.State = t.Target(prior)
		work.UpdatedAt = now
		res.Handle = work
		res.State = work.State
		res.Outcome = domain.OutcomeTaken
		log.DebugContext(ctx, "transition taken", "to", res.State)
		e.emitTransition(ctx, def, res, now)
		return res
	}

	res.Outcome = domain.OutcomeDenied
	res.Reason = blocked
	log.DebugContext(ctx, "transition denied", "reason", blocked)
	if e.hooks.OnDenied != nil {
		e.hooks.OnDenied(ctx, transitionEvent(def, res, now))
	}
	return res
}

func (e *Executor) notApplicable(ctx context.Context, def *chart.Definition, res *domain.Result, reason string) *domain.Result {
	res.Outcome = domain.OutcomeNotApplicable
	res.Reason = reason
	e.logger.DebugContext(ctx, "event not applicable", "handle_id", res.Handle.ID, "event", res.Event, "reason", reason)
	if e.hooks.OnDenied != nil {
		e.hooks.OnDenied(ctx, transitionEvent(def, res, e.now()))
	}
	return res
}

// check evaluates the guard of transition i. It is shared by Fire and Hints
// so that both always agree.
func (e *Executor) check(def *chart.Definition, i int, en *env) (bool, string) {
	expr := def.TransitionGuard(i)
	if expr == nil {
		return true, ""
	}
	ok, err := expr.EvalBool(en)
	if err != nil {
		return false, "guard error: " + err.Error()
	}
	if ok {
		return true, ""
	}
	t := def.Transitions[i]
	if t.Reason != "" {
		return false, t.Reason
	}
	return false, fmt.Sprintf("guard %q not satisfied", t.Guard)
}

func (e *Executor) emitTransition(ctx context.Context, def *chart.Definition, res *domain.Result, at time.Time) {
	if e.hooks.OnTransition != nil {
		e.hooks.OnTransition(ctx, transitionEvent(def, res, at))
	}
}

func transitionEvent(def *chart.Definition, res *domain.Result, at time.Time) *domain.TransitionEvent {
	evt := &domain.TransitionEvent{
		Timestamp: at,
		HandleID:  res.Handle.ID,
		Chart:     def.Name,
		Event:     res.Event,
		From:      res.PriorState,
		Outcome:   res.Outcome,
		Reason:    res.Reason,
	}
	if res.Outcome == domain.OutcomeTaken {
		evt.To = res.State
	}
	return evt
}
