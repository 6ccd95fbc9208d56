// Package chart loads, validates and caches state chart definitions.
//
// Charts are read lazily from a ports.ChartSource the first time a name is
// requested, parsed once and kept until they are explicitly invalidated.
package chart

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"sync"

	"github.com/aretw0/docflow/pkg/domain"
	"github.com/aretw0/docflow/pkg/ports"
)

type entry struct {
	once sync.Once
	def  *Definition
	err  error
}

// Registry is the process-wide chart cache. It is passed by reference to
// whoever needs definitions; there is no package-level instance.
type Registry struct {
	source ports.ChartSource
	tasks  TaskChecker
	logger *slog.Logger

	mu      sync.Mutex
	entries map[string]*entry
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithTaskChecker enables validation of action task names.
func WithTaskChecker(tasks TaskChecker) RegistryOption {
	return func(r *Registry) { r.tasks = tasks }
}

// WithLogger sets the logger used for reload events.
func WithLogger(logger *slog.Logger) RegistryOption {
	return func(r *Registry) { r.logger = logger }
}

// NewRegistry creates an empty cache over source.
func NewRegistry(source ports.ChartSource, opts ...RegistryOption) *Registry {
	r := &Registry{
		source:  source,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		entries: make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Definition returns the compiled chart with the given name, loading it on first use.
// Malformed charts yield a *domain.ConfigurationError, which stays cached
// until the name is invalidated. Source errors are not cached.
func (r *Registry) Definition(ctx context.Context, name string) (*Definition, error) {
	r.mu.Lock()
	e, ok := r.entries[name]
	if !ok {
		e = &entry{}
		r.entries[name] = e
	}
	r.mu.Unlock()

	e.once.Do(func() {
		e.def, e.err = r.load(ctx, name)
	})

	if e.err != nil {
		var cfg *domain.ConfigurationError
		if !errors.As(e.err, &cfg) {
			r.mu.Lock()
			if r.entries[name] == e {
				delete(r.entries, name)
			}
			r.mu.Unlock()
		}
		return nil, e.err
	}
	return e.def, nil
}

func (r *Registry) load(ctx context.Context, name string) (*Definition, error) {
	raw, err := r.source.GetChart(ctx, name)
	if err != nil {
		if errors.Is(err, domain.ErrChartNotFound) {
			return nil, &domain.ConfigurationError{Chart: name, Reason: "unknown chart", Err: err}
		}
		return nil, fmt.Errorf("failed to read chart %s: %w", name, err)
	}
	c, err := Parse(name, raw)
	if err != nil {
		return nil, err
	}
	def, err := Compile(c, r.tasks)
	if err != nil {
		return nil, err
	}
	r.logger.Debug("chart loaded", "chart", name, "version", c.Version)
	return def, nil
}

// Invalidate drops the cached definition so the next request re-reads it.
func (r *Registry) Invalidate(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, name)
}

// InvalidateAll empties the cache.
func (r *Registry) InvalidateAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = make(map[string]*entry)
}

// Cached lists the names currently held in the cache.
func (r *Registry) Cached() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	return names
}

// Validate loads every chart of the source and returns the errors keyed by chart name.
// It bypasses the cache.
func (r *Registry) Validate(ctx context.Context) (map[string]error, error) {
	names, err := r.source.ListCharts(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]error)
	for _, name := range names {
		if _, err := r.load(ctx, name); err != nil {
			out[name] = err
		}
	}
	return out, nil
}

// Watch invalidates cache entries as the source reports changes. It returns
// once the watcher is running; the returned channel relays the names of the
// invalidated charts and closes when ctx is done.
func (r *Registry) Watch(ctx context.Context) (<-chan string, error) {
	w, ok := r.source.(ports.Watchable)
	if !ok {
		return nil, fmt.Errorf("chart source does not support watching")
	}
	events, err := w.Watch(ctx)
	if err != nil {
		return nil, err
	}

	out := make(chan string, 1)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case id, ok := <-events:
				if !ok {
					return
				}
				name := ChartName(id)
				if name == "" {
					r.InvalidateAll()
				} else {
					r.Invalidate(name)
				}
				r.logger.Info("chart changed", "chart", name)
				select {
				case out <- name:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// ChartName maps a source document id (e.g. "charts/publication.yaml") to a chart name.
func ChartName(id string) string {
	id = path.Base(strings.ReplaceAll(id, "\\", "/"))
	if id == "." || id == "/" {
		return ""
	}
	return strings.TrimSuffix(id, path.Ext(id))
}
