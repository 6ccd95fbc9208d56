package ports

import (
	"context"
	"time"

	"github.com/aretw0/docflow/pkg/domain"
)

// HandleStore defines the interface for persisting document handles.
type HandleStore interface {
	// Load retrieves the handle with the given ID.
	// Returns domain.ErrHandleNotFound if the handle does not exist.
	Load(ctx context.Context, id string) (*domain.DocumentHandle, error)

	// Save persists the handle using optimistic concurrency: the stored
	// version must equal h.Version (zero for a handle that does not exist
	// yet). On success h.Version is incremented. On mismatch Save returns a
	// *domain.ConflictError and stores nothing.
	Save(ctx context.Context, h *domain.DocumentHandle) error

	// Delete removes the handle with the given ID.
	Delete(ctx context.Context, id string) error

	// List returns the IDs of all stored handles.
	List(ctx context.Context) ([]string, error)
}

// ScheduledRequest points at an active request with a scheduled date.
type ScheduledRequest struct {
	HandleID  string             `json:"handle_id"`
	RequestID string             `json:"request_id"`
	Type      domain.RequestType `json:"type"`
	At        time.Time          `json:"at"`
}

// ScheduleIndex finds scheduled requests that are due.
// It is the query side the external scheduler polls.
type ScheduleIndex interface {
	DueRequests(ctx context.Context, now time.Time) ([]ScheduledRequest, error)
}

// ScheduledStore is a HandleStore that also indexes scheduled requests.
type ScheduledStore interface {
	HandleStore
	ScheduleIndex
}

// ScheduleCapable is implemented by store decorators that forward
// DueRequests to the store they wrap. IndexesSchedule reports whether that
// store can answer.
type ScheduleCapable interface {
	IndexesSchedule() bool
}

// AsScheduleIndex returns store as a ScheduleIndex when it can answer
// DueRequests, looking through decorators that only forward the call.
func AsScheduleIndex(store HandleStore) (ScheduleIndex, bool) {
	index, ok := store.(ScheduleIndex)
	if !ok {
		return nil, false
	}
	if c, ok := store.(ScheduleCapable); ok && !c.IndexesSchedule() {
		return nil, false
	}
	return index, true
}

// DueFromHandle returns the scheduled request of h if it is due at now.
// Stores without a dedicated index use it while scanning.
func DueFromHandle(h *domain.DocumentHandle, now time.Time) (ScheduledRequest, bool) {
	req := h.ActiveRequest()
	if !req.IsDue(now) {
		return ScheduledRequest{}, false
	}
	return ScheduledRequest{
		HandleID:  h.ID,
		RequestID: req.ID,
		Type:      req.Type,
		At:        *req.ScheduledDate,
	}, true
}
