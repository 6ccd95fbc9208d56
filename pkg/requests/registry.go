// Package requests manages the publication requests recorded on a document handle.
//
// A handle carries at most one active request. Rejected requests stay on the
// handle as zombies until they are purged explicitly; resolved requests move
// to the handle's history.
package requests

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/aretw0/docflow/pkg/domain"
	"github.com/google/uuid"
)

var (
	// ErrRequestNotFound is returned when no request matches the given id.
	ErrRequestNotFound = errors.New("request not found")
	// ErrNotActive is returned when a rejected or resolved request is acted upon.
	ErrNotActive = errors.New("request is not active")
	// ErrNotRequester is returned when someone other than the requester cancels.
	ErrNotRequester = errors.New("only the requester may cancel a request")
	// ErrScheduleRequired is returned when a scheduled type has no date.
	ErrScheduleRequired = errors.New("scheduled request requires a scheduled date")
	// ErrInvalidType is returned for unknown request types and for "rejected".
	ErrInvalidType = errors.New("invalid request type")
)

// Registry operates on the requests of a single handle.
// It mutates the handle it was created with and is not safe for concurrent use.
type Registry struct {
	handle *domain.DocumentHandle
	now    func() time.Time
	newID  func() string
}

// Option configures a Registry.
type Option func(*Registry)

// WithClock overrides the clock used for request and resolution dates.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// WithIDGenerator overrides request id generation.
func WithIDGenerator(gen func() string) Option {
	return func(r *Registry) { r.newID = gen }
}

// New binds a registry to handle.
func New(handle *domain.DocumentHandle, opts ...Option) *Registry {
	r := &Registry{
		handle: handle,
		now:    time.Now,
		newID:  func() string { return uuid.Must(uuid.NewV7()).String() },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Create records a new active request.
// It returns a *domain.ConflictError if the handle already has an active request.
func (r *Registry) Create(typ domain.RequestType, requester string, scheduled *time.Time) (*domain.Request, error) {
	if _, ok := domain.ParseRequestType(string(typ)); !ok || typ == domain.RequestRejected {
		return nil, fmt.Errorf("%w: %q", ErrInvalidType, typ)
	}
	if active := r.handle.ActiveRequest(); active != nil {
		return nil, &domain.ConflictError{
			HandleID: r.handle.ID,
			Reason:   fmt.Sprintf("request %s (%s) is already active", active.ID, active.Type),
		}
	}
	if typ.IsScheduled() && scheduled == nil {
		return nil, ErrScheduleRequired
	}

	req := &domain.Request{
		ID:          r.newID(),
		Type:        typ,
		Status:      domain.RequestActive,
		Requester:   requester,
		RequestDate: r.now().UTC(),
	}
	if scheduled != nil {
		at := scheduled.UTC()
		req.ScheduledDate = &at
	}
	r.handle.Requests = append(r.handle.Requests, req)
	return req, nil
}

// Reject turns the request into a zombie: its type becomes "rejected" and
// the reason is kept for the requester to read.
// An empty id selects the active request.
func (r *Registry) Reject(id, reason string) (*domain.Request, error) {
	req, err := r.activeByID(id)
	if err != nil {
		return nil, err
	}
	req.PreviousType = req.Type
	req.Type = domain.RequestRejected
	req.Status = domain.RequestZombie
	req.Reason = reason
	return req, nil
}

// Resolve marks the request as fulfilled and moves it to the handle history.
// An empty id selects the active request.
func (r *Registry) Resolve(id, by string) (*domain.Request, error) {
	req, err := r.activeByID(id)
	if err != nil {
		return nil, err
	}
	at := r.now().UTC()
	req.Status = domain.RequestResolved
	req.ResolvedAt = &at
	req.ResolvedBy = by

	r.handle.Requests = slices.DeleteFunc(r.handle.Requests, func(x *domain.Request) bool {
		return x == req
	})
	r.handle.History = append(r.handle.History, req)
	return req, nil
}

// Cancel resolves the request on behalf of its requester.
func (r *Registry) Cancel(id, by string) (*domain.Request, error) {
	req, err := r.activeByID(id)
	if err != nil {
		return nil, err
	}
	if req.Requester != by {
		return nil, ErrNotRequester
	}
	req.Reason = "cancelled"
	return r.Resolve(req.ID, by)
}

// Active returns the active request, or nil.
func (r *Registry) Active() *domain.Request {
	return r.handle.ActiveRequest()
}

// Zombies returns the rejected requests still attached to the handle.
func (r *Registry) Zombies() []*domain.Request {
	var out []*domain.Request
	for _, req := range r.handle.Requests {
		if req.IsZombie() {
			out = append(out, req)
		}
	}
	return out
}

// Find returns the request with the given id from the live set or history.
func (r *Registry) Find(id string) (*domain.Request, bool) {
	for _, list := range [][]*domain.Request{r.handle.Requests, r.handle.History} {
		for _, req := range list {
			if req.ID == id {
				return req, true
			}
		}
	}
	return nil, false
}

// Due returns the active scheduled request if its date has passed.
func (r *Registry) Due(now time.Time) *domain.Request {
	if req := r.handle.ActiveRequest(); req.IsDue(now) {
		return req
	}
	return nil
}

// PurgeZombies drops rejected requests made before the given time and
// returns how many were removed. A zero time removes all of them.
func (r *Registry) PurgeZombies(before time.Time) int {
	n := len(r.handle.Requests)
	r.handle.Requests = slices.DeleteFunc(r.handle.Requests, func(req *domain.Request) bool {
		return req.IsZombie() && (before.IsZero() || req.RequestDate.Before(before))
	})
	return n - len(r.handle.Requests)
}

func (r *Registry) activeByID(id string) (*domain.Request, error) {
	if id == "" {
		if req := r.handle.ActiveRequest(); req != nil {
			return req, nil
		}
		return nil, ErrRequestNotFound
	}
	req, ok := r.Find(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRequestNotFound, id)
	}
	if !req.IsActive() {
		return nil, fmt.Errorf("%w: %s is %s", ErrNotActive, id, req.Status)
	}
	return req, nil
}
