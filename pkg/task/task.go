// Package task defines the side-effecting units that chart actions invoke.
//
// Tasks are created by name through a Registry of factories. A factory
// receives the merged static and evaluated properties of the action and
// returns a Task bound to them; there is no reflection-based wiring.
package task

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/aretw0/docflow/pkg/domain"
	"github.com/aretw0/docflow/pkg/requests"
	"github.com/mitchellh/mapstructure"
)

// Task performs one side effect of a transition.
type Task interface {
	Execute(ctx context.Context, tc *Context) (any, error)
}

// Func adapts a plain function to Task.
type Func func(ctx context.Context, tc *Context) (any, error)

// Execute calls f.
func (f Func) Execute(ctx context.Context, tc *Context) (any, error) { return f(ctx, tc) }

// Context is what a task sees while it runs.
type Context struct {
	// Identity is the user on whose behalf the event was fired.
	Identity string
	// Event is the event being processed.
	Event string
	// Handle is the working copy of the document. Changes are persisted only
	// if every action of the transition succeeds.
	Handle *domain.DocumentHandle
	// Requests operates on Handle's requests.
	Requests *requests.Registry
	// Session is the caller's content-store session, passed through untouched.
	Session any
	// Now is the invocation time.
	Now time.Time
	// Params are the invocation parameters.
	Params map[string]any
}

// Factory builds a task from action properties.
type Factory func(props map[string]any) (Task, error)

// Registry maps task names to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates a new empty registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
	}
}

// DefaultRegistry returns a registry holding the built-in document tasks.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	registerBuiltins(r)
	return r
}

// Register adds a factory to the registry.
// If a factory with the same name exists, it is overwritten.
func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
}

// RegisterFunc registers a task that ignores its properties.
func (r *Registry) RegisterFunc(name string, fn Func) {
	r.Register(name, func(map[string]any) (Task, error) { return fn, nil })
}

// Has reports whether a factory is registered under name.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[name]
	return ok
}

// Names lists registered task names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.factories))
}

// New looks up a factory by name and builds a task from props.
func (r *Registry) New(name string, props map[string]any) (Task, error) {
	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("task not found: %s", name)
	}
	return f(props)
}

// Decode copies loosely typed properties into out, converting RFC 3339
// strings into time.Time.
func Decode(props map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		DecodeHook:       mapstructure.StringToTimeHookFunc(time.RFC3339),
		Result:           out,
	})
	if err != nil {
		return err
	}
	return dec.Decode(props)
}

// Fail builds a TaskExecutionError.
func Fail(name, reason string, retryable bool, err error) error {
	return &domain.TaskExecutionError{Task: name, Reason: reason, Retryable: retryable, Err: err}
}
