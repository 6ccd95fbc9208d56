package docflow

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/aretw0/docflow/internal/runtime"
	"github.com/aretw0/docflow/pkg/adapters/file"
	"github.com/aretw0/docflow/pkg/adapters/memory"
	"github.com/aretw0/docflow/pkg/chart"
	"github.com/aretw0/docflow/pkg/domain"
	"github.com/aretw0/docflow/pkg/ports"
	"github.com/aretw0/docflow/pkg/requests"
	"github.com/aretw0/docflow/pkg/scheduler"
	"github.com/aretw0/docflow/pkg/session"
	"github.com/aretw0/docflow/pkg/task"
	"go.opentelemetry.io/otel/trace"
)

// Engine is the high-level entry point for the docflow library.
// It ties the chart registry, the executor and the handle store together.
type Engine struct {
	source   ports.ChartSource
	store    ports.HandleStore
	locker   ports.DistributedLocker
	lockTTL  time.Duration
	tasks    *task.Registry
	hooks    domain.LifecycleHooks
	logger   *slog.Logger
	tracer   trace.Tracer
	now      func() time.Time
	charts   *chart.Registry
	executor *runtime.Executor
	sessions *session.Manager
	Name     string
}

// Option defines a functional option for configuring the Engine.
type Option func(*Engine)

// WithChartSource injects a custom ChartSource, bypassing the default directory source.
func WithChartSource(src ports.ChartSource) Option {
	return func(e *Engine) {
		e.source = src
	}
}

// WithStore sets the handle store (default: in-memory).
func WithStore(store ports.HandleStore) Option {
	return func(e *Engine) {
		e.store = store
	}
}

// WithLocker serializes invocations on the same handle across processes.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(e *Engine) {
		e.locker = locker
	}
}

// WithLockTTL sets the lease of distributed locks (default: session.DefaultLockTTL).
func WithLockTTL(ttl time.Duration) Option {
	return func(e *Engine) {
		e.lockTTL = ttl
	}
}

// WithLogger sets a custom structured logger for the engine.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(e *Engine) {
		e.hooks = hooks
	}
}

// WithTasks replaces the task registry (default: task.DefaultRegistry()).
func WithTasks(tasks *task.Registry) Option {
	return func(e *Engine) {
		e.tasks = tasks
	}
}

// WithClock overrides the time source used for guards, requests and tasks.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithTracer sets the OpenTelemetry tracer used for invocation spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(e *Engine) {
		e.tracer = tracer
	}
}

// New initializes a new Engine.
// By default, charts are read from the directory chartDir and handles are kept in memory.
// If WithChartSource is provided, chartDir can be empty.
func New(chartDir string, opts ...Option) (*Engine, error) {
	eng := &Engine{}
	for _, opt := range opts {
		opt(eng)
	}

	if eng.source == nil {
		if chartDir == "" {
			return nil, fmt.Errorf("chartDir is required when no custom chart source is provided")
		}
		absPath, err := filepath.Abs(chartDir)
		if err != nil {
			return nil, fmt.Errorf("invalid path: %w", err)
		}
		eng.Name = filepath.Base(absPath)
		eng.source = file.NewSource(absPath)
	} else if chartDir != "" {
		eng.Name = filepath.Base(chartDir)
	}

	if eng.logger == nil {
		eng.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if eng.store == nil {
		eng.store = memory.NewStore()
	}
	if eng.tasks == nil {
		eng.tasks = task.DefaultRegistry()
	}
	if eng.now == nil {
		eng.now = time.Now
	}

	eng.charts = chart.NewRegistry(eng.source,
		chart.WithTaskChecker(eng.tasks),
		chart.WithLogger(eng.logger),
	)

	execOpts := []runtime.Option{
		runtime.WithLogger(eng.logger),
		runtime.WithLifecycleHooks(eng.hooks),
		runtime.WithClock(eng.now),
	}
	if eng.tracer != nil {
		execOpts = append(execOpts, runtime.WithTracer(eng.tracer))
	}
	eng.executor = runtime.NewExecutor(eng.tasks, execOpts...)

	sessOpts := []session.Option{session.WithLogger(eng.logger)}
	if eng.locker != nil {
		sessOpts = append(sessOpts, session.WithLocker(eng.locker), session.WithLockTTL(eng.lockTTL))
	}
	eng.sessions = session.NewManager(eng.store, sessOpts...)

	return eng, nil
}

// InvokeRequest is one event fired on a handle.
type InvokeRequest struct {
	HandleID string
	Event    string
	Identity string
	Params   map[string]any

	// Session is the caller's content-store session, handed to tasks untouched.
	Session any
}

// Create registers a new document bound to workflow. content becomes its
// unpublished variant. It fails with a *domain.ConflictError if the id is taken.
func (e *Engine) Create(ctx context.Context, id, workflow string, content map[string]any) (*domain.DocumentHandle, error) {
	def, err := e.charts.Definition(ctx, workflow)
	if err != nil {
		return nil, err
	}

	h := domain.NewHandle(id, workflow)
	h.State = def.Initial()
	h.UpdatedAt = e.now()
	h.SetVariant(&domain.Variant{
		State:        domain.VariantUnpublished,
		Content:      domain.CloneVariables(content),
		Availability: []string{domain.AvailabilityPreview},
	})

	if err := e.sessions.Create(ctx, h); err != nil {
		return nil, err
	}
	e.logger.InfoContext(ctx, "handle created", "handle_id", id, "workflow", workflow)
	return h, nil
}

// Invoke fires an event on a handle. Invocations on the same handle are
// serialized. Denied, not applicable and failed outcomes are reported on the
// Result; the error covers unknown handles, broken charts and store failures.
// A *domain.ConflictError means the handle changed underneath the invocation.
func (e *Engine) Invoke(ctx context.Context, req InvokeRequest) (*domain.Result, error) {
	var res *domain.Result
	err := e.sessions.WithLock(ctx, req.HandleID, func(ctx context.Context) error {
		store := e.sessions.Store()
		h, err := store.Load(ctx, req.HandleID)
		if err != nil {
			return err
		}
		def, err := e.charts.Definition(ctx, h.Workflow)
		if err != nil {
			return err
		}

		res = e.executor.Fire(ctx, def, h, runtime.Invocation{
			Event:    req.Event,
			Identity: req.Identity,
			Params:   req.Params,
			Session:  req.Session,
		})
		if !res.Taken() {
			return nil
		}
		return store.Save(ctx, res.Handle)
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// Hints computes which events identity may fire on the stored handle. It
// changes nothing.
func (e *Engine) Hints(ctx context.Context, handleID, identity string) (*domain.Hints, error) {
	h, err := e.store.Load(ctx, handleID)
	if err != nil {
		return nil, err
	}
	def, err := e.charts.Definition(ctx, h.Workflow)
	if err != nil {
		return nil, err
	}
	return e.executor.Hints(ctx, def, h, identity), nil
}

// Handle loads a handle from the store.
func (e *Engine) Handle(ctx context.Context, id string) (*domain.DocumentHandle, error) {
	return e.store.Load(ctx, id)
}

// Handles lists the stored handle IDs.
func (e *Engine) Handles(ctx context.Context) ([]string, error) {
	return e.store.List(ctx)
}

// Delete removes a handle from the store. It does not run the chart; use the
// chart's delete event to retire a document.
func (e *Engine) Delete(ctx context.Context, id string) error {
	return e.sessions.Delete(ctx, id)
}

// PurgeZombies drops rejected requests older than before from a handle and
// returns how many were removed.
func (e *Engine) PurgeZombies(ctx context.Context, id string, before time.Time) (int, error) {
	var purged int
	_, err := e.sessions.Update(ctx, id, func(_ context.Context, h *domain.DocumentHandle) (*domain.DocumentHandle, error) {
		next := h.Clone()
		purged = requests.New(next, requests.WithClock(e.now)).PurgeZombies(before)
		if purged == 0 {
			return nil, nil
		}
		return next, nil
	})
	return purged, err
}

// Definition returns the compiled chart with the given name.
func (e *Engine) Definition(ctx context.Context, name string) (*chart.Definition, error) {
	return e.charts.Definition(ctx, name)
}

// Charts lists the chart names available in the source.
func (e *Engine) Charts(ctx context.Context) ([]string, error) {
	return e.source.ListCharts(ctx)
}

// Validate compiles every chart of the source and returns the failures by name.
func (e *Engine) Validate(ctx context.Context) (map[string]error, error) {
	return e.charts.Validate(ctx)
}

// Invalidate drops a chart from the cache so the next use re-reads it.
func (e *Engine) Invalidate(name string) {
	e.charts.Invalidate(name)
}

// Watch keeps the chart cache in sync with the source and relays the names of
// changed charts. Returns error if the source does not support watching.
func (e *Engine) Watch(ctx context.Context) (<-chan string, error) {
	return e.charts.Watch(ctx)
}

// Scheduler builds a scheduler that fires due scheduled requests through this
// engine. The store must index scheduled requests.
func (e *Engine) Scheduler(opts ...scheduler.Option) (*scheduler.Scheduler, error) {
	index, ok := ports.AsScheduleIndex(e.store)
	if !ok {
		return nil, fmt.Errorf("store %T does not index scheduled requests", e.store)
	}
	opts = append([]scheduler.Option{
		scheduler.WithLogger(e.logger),
		scheduler.WithClock(e.now),
	}, opts...)
	return scheduler.New(index, e.invokeAsSystem, opts...)
}

func (e *Engine) invokeAsSystem(ctx context.Context, handleID, event string) (*domain.Result, error) {
	return e.Invoke(ctx, InvokeRequest{HandleID: handleID, Event: event, Identity: domain.SystemIdentity})
}

// Store returns the underlying handle store.
func (e *Engine) Store() ports.HandleStore {
	return e.store
}

// Source returns the underlying chart source.
func (e *Engine) Source() ports.ChartSource {
	return e.source
}
