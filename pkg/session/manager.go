package session

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
)

// DefaultLockTTL bounds how long a distributed lock survives a crashed holder.
const DefaultLockTTL = 30 * time.Second

// lockEntry holds the mutex and the reference count.
type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// Manager orchestrates handle access, ensuring safe concurrent operations.
// It uses reference counting to garbage collect unused locks.
type Manager struct {
	store ports.HandleStore

	mu    sync.Mutex
	locks map[string]*lockEntry

	locker  ports.DistributedLocker
	lockTTL time.Duration
	logger  *slog.Logger
}

// Option configures the Manager.
type Option func(*Manager)

// WithLocker enables distributed locking.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(m *Manager) {
		m.locker = locker
	}
}

// WithLockTTL sets the lease of distributed locks.
func WithLockTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		if ttl > 0 {
			m.lockTTL = ttl
		}
	}
}

// WithLogger configures a logger for the Manager.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// NewManager creates a new Manager over the given handle store.
func NewManager(store ports.HandleStore, opts ...Option) *Manager {
	m := &Manager{
		store:   store,
		locks:   make(map[string]*lockEntry),
		lockTTL: DefaultLockTTL,
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// acquire gets or creates a lock entry and increments its reference count.
// The caller MUST Lock the entry.mu, and then call release(id) after unlocking.
func (m *Manager) acquire(id string) *lockEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[id]
	if !exists {
		entry = &lockEntry{}
		m.locks[id] = entry
	}
	entry.refs++
	return entry
}

// release decrements the reference count and deletes the entry if it reaches zero.
func (m *Manager) release(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[id]
	if !exists {
		return
	}
	entry.refs--
	if entry.refs <= 0 {
		delete(m.locks, id)
	}
}

// Load retrieves an existing handle from the store.
func (m *Manager) Load(ctx context.Context, id string) (*domain.DocumentHandle, error) {
	var h *domain.DocumentHandle
	err := m.WithLock(ctx, id, func(ctx context.Context) error {
		var err error
		h, err = m.store.Load(ctx, id)
		return err
	})
	return h, err
}

// Create persists a new handle. It fails with a *domain.ConflictError when
// the ID is taken.
func (m *Manager) Create(ctx context.Context, h *domain.DocumentHandle) error {
	return m.WithLock(ctx, h.ID, func(ctx context.Context) error {
		if _, err := m.store.Load(ctx, h.ID); err == nil {
			return &domain.ConflictError{HandleID: h.ID, Reason: "handle already exists"}
		} else if !errors.Is(err, domain.ErrHandleNotFound) {
			return fmt.Errorf("failed to check handle existence: %w", err)
		}
		h.Version = 0
		return m.store.Save(ctx, h)
	})
}

// LoadOrCreate loads a handle, creating an empty one bound to workflow when
// it does not exist.
func (m *Manager) LoadOrCreate(ctx context.Context, id, workflow string) (*domain.DocumentHandle, error) {
	var h *domain.DocumentHandle
	err := m.WithLock(ctx, id, func(ctx context.Context) error {
		var err error
		h, err = m.store.Load(ctx, id)
		if err == nil {
			return nil
		}
		if !errors.Is(err, domain.ErrHandleNotFound) {
			return fmt.Errorf("failed to check handle existence: %w", err)
		}

		h = domain.NewHandle(id, workflow)
		if err := m.store.Save(ctx, h); err != nil {
			return fmt.Errorf("failed to initialize handle: %w", err)
		}
		return nil
	})
	return h, err
}

// Update runs a read-modify-write cycle under the handle lock. fn receives
// the stored handle; when it returns a non-nil handle, that handle is saved.
func (m *Manager) Update(ctx context.Context, id string, fn func(ctx context.Context, h *domain.DocumentHandle) (*domain.DocumentHandle, error)) (*domain.DocumentHandle, error) {
	var out *domain.DocumentHandle
	err := m.WithLock(ctx, id, func(ctx context.Context) error {
		current, err := m.store.Load(ctx, id)
		if err != nil {
			return err
		}
		next, err := fn(ctx, current)
		if err != nil {
			return err
		}
		if next == nil {
			out = current
			return nil
		}
		if err := m.store.Save(ctx, next); err != nil {
			return err
		}
		out = next
		return nil
	})
	return out, err
}

// Save persists the handle.
func (m *Manager) Save(ctx context.Context, h *domain.DocumentHandle) error {
	return m.WithLock(ctx, h.ID, func(ctx context.Context) error {
		return m.store.Save(ctx, h)
	})
}

// Delete removes the handle from the store.
func (m *Manager) Delete(ctx context.Context, id string) error {
	return m.WithLock(ctx, id, func(ctx context.Context) error {
		return m.store.Delete(ctx, id)
	})
}

// List delegates to the store.
func (m *Manager) List(ctx context.Context) ([]string, error) {
	return m.store.List(ctx)
}

// Store returns the underlying handle store.
func (m *Manager) Store() ports.HandleStore {
	return m.store
}

// WithLock executes fn while holding the lock for the handle.
func (m *Manager) WithLock(ctx context.Context, id string, fn func(context.Context) error) error {
	entry := m.acquire(id)
	entry.mu.Lock()
	defer func() {
		entry.mu.Unlock()
		m.release(id)
	}()

	if m.locker != nil {
		unlock, err := m.locker.Lock(ctx, id, m.lockTTL)
		if err != nil {
			return fmt.Errorf("failed to acquire distributed lock: %w", err)
		}
		defer func() {
			if err := unlock(context.WithoutCancel(ctx)); err != nil {
				m.logger.Warn("failed to release distributed lock, it will expire",
					"handle_id", id,
					"err", err,
				)
			}
		}()
	}

	return fn(ctx)
}
