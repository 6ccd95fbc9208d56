package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/aretw0/docflow/pkg/domain"
	"github.com/aretw0/docflow/pkg/ports"
)

// Store implements ports.ScheduledStore in memory.
// Safe for concurrent use.
type Store struct {
	data map[string]*domain.DocumentHandle
	mu   sync.RWMutex
}

var _ ports.ScheduledStore = (*Store)(nil)

// NewStore creates a new in-memory store.
func NewStore() *Store {
	return &Store{
		data: make(map[string]*domain.DocumentHandle),
	}
}

// Save persists a deep copy of the handle if its version is current.
func (s *Store) Save(ctx context.Context, h *domain.DocumentHandle) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var stored int64
	if cur, ok := s.data[h.ID]; ok {
		stored = cur.Version
	}
	if stored != h.Version {
		return &domain.ConflictError{HandleID: h.ID, Reason: "stale version"}
	}

	h.Version++
	s.data[h.ID] = h.Clone()
	return nil
}

// Load retrieves a copy of the handle, so callers cannot mutate the store by pointer.
func (s *Store) Load(ctx context.Context, id string) (*domain.DocumentHandle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	h, ok := s.data[id]
	if !ok {
		return nil, domain.ErrHandleNotFound
	}
	return h.Clone(), nil
}

// Delete removes the handle.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, id)
	return nil
}

// List returns the stored handle IDs in sorted order.
func (s *Store) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.data))
	for id := range s.data {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids, nil
}

// DueRequests scans every handle for a due scheduled request.
func (s *Store) DueRequests(ctx context.Context, now time.Time) ([]ports.ScheduledRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var due []ports.ScheduledRequest
	for _, h := range s.data {
		if ref, ok := ports.DueFromHandle(h, now); ok {
			due = append(due, ref)
		}
	}
	slices.SortFunc(due, func(a, b ports.ScheduledRequest) int {
		return a.At.Compare(b.At)
	})
	return due, nil
}
