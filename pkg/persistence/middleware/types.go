// Package middleware wraps handle stores with at-rest transformations.
package middleware

import (
	"context"
	"errors"
	"time"

	"github.com/aretw0/docflow/pkg/ports"
)

// ErrNoScheduleIndex is returned by DueRequests when the wrapped store does
// not index scheduled requests.
var ErrNoScheduleIndex = errors.New("store does not index scheduled requests")

// Middleware allows wrapping a HandleStore to add behavior.
type Middleware func(ports.HandleStore) ports.HandleStore

// Chain applies middlewares so that the first one is the outermost.
func Chain(store ports.HandleStore, mws ...Middleware) ports.HandleStore {
	for i := len(mws) - 1; i >= 0; i-- {
		store = mws[i](store)
	}
	return store
}

// passthrough forwards the parts of the store interface a middleware does
// not change.
type passthrough struct {
	next ports.HandleStore
}

func (p passthrough) Delete(ctx context.Context, id string) error {
	return p.next.Delete(ctx, id)
}

func (p passthrough) List(ctx context.Context) ([]string, error) {
	return p.next.List(ctx)
}

// IndexesSchedule reports whether the wrapped store indexes scheduled requests.
func (p passthrough) IndexesSchedule() bool {
	_, ok := ports.AsScheduleIndex(p.next)
	return ok
}

// DueRequests reads requests, which middlewares leave in clear text.
func (p passthrough) DueRequests(ctx context.Context, now time.Time) ([]ports.ScheduledRequest, error) {
	index, ok := ports.AsScheduleIndex(p.next)
	if !ok {
		return nil, ErrNoScheduleIndex
	}
	return index.DueRequests(ctx, now)
}
