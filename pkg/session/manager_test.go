package session_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/docflow/pkg/adapters/memory"
	"github.com/aretw0/docflow/pkg/domain"
	"github.com/aretw0/docflow/pkg/ports"
	"github.com/aretw0/docflow/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// slowStore simulates latency to provoke lost updates if locking is missing.
type slowStore struct {
	*memory.Store
}

func (s slowStore) Load(ctx context.Context, id string) (*domain.DocumentHandle, error) {
	time.Sleep(2 * time.Millisecond)
	return s.Store.Load(ctx, id)
}

func TestManager_UpdateSerializesWriters(t *testing.T) {
	store := slowStore{memory.NewStore()}
	mgr := session.NewManager(store)
	ctx := context.Background()

	require.NoError(t, mgr.Create(ctx, domain.NewHandle("doc", "publication")))

	var wg sync.WaitGroup
	writers := 20
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := mgr.Update(ctx, "doc", func(_ context.Context, h *domain.DocumentHandle) (*domain.DocumentHandle, error) {
				n, _ := h.Variables["n"].(int)
				h.Variables["n"] = n + 1
				return h, nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	h, err := mgr.Load(ctx, "doc")
	require.NoError(t, err)
	assert.Equal(t, writers, h.Variables["n"])
	assert.Equal(t, int64(writers+1), h.Version)
}

func TestManager_Create(t *testing.T) {
	mgr := session.NewManager(memory.NewStore())
	ctx := context.Background()

	require.NoError(t, mgr.Create(ctx, domain.NewHandle("doc", "publication")))

	err := mgr.Create(ctx, domain.NewHandle("doc", "publication"))
	var conflict *domain.ConflictError
	assert.True(t, errors.As(err, &conflict))
}

func TestManager_LoadOrCreate(t *testing.T) {
	mgr := session.NewManager(memory.NewStore())
	ctx := context.Background()

	h, err := mgr.LoadOrCreate(ctx, "doc", "publication")
	require.NoError(t, err)
	assert.Equal(t, int64(1), h.Version)

	again, err := mgr.LoadOrCreate(ctx, "doc", "other")
	require.NoError(t, err)
	assert.Equal(t, "publication", again.Workflow)
}

func TestManager_UpdateWithoutChange(t *testing.T) {
	mgr := session.NewManager(memory.NewStore())
	ctx := context.Background()
	require.NoError(t, mgr.Create(ctx, domain.NewHandle("doc", "publication")))

	h, err := mgr.Update(ctx, "doc", func(context.Context, *domain.DocumentHandle) (*domain.DocumentHandle, error) {
		return nil, nil
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), h.Version)

	_, err = mgr.Update(ctx, "missing", func(context.Context, *domain.DocumentHandle) (*domain.DocumentHandle, error) {
		t.Fatal("must not be called")
		return nil, nil
	})
	assert.ErrorIs(t, err, domain.ErrHandleNotFound)
}

type recordingLocker struct {
	mu     sync.Mutex
	keys   []string
	held   int
	failed bool
}

func (l *recordingLocker) Lock(ctx context.Context, key string, ttl time.Duration) (ports.UnlockFunc, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.failed {
		return nil, errors.New("backend down")
	}
	l.keys = append(l.keys, key)
	l.held++
	return func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.held--
		return nil
	}, nil
}

func TestManager_DistributedLocker(t *testing.T) {
	locker := &recordingLocker{}
	mgr := session.NewManager(memory.NewStore(), session.WithLocker(locker), session.WithLockTTL(time.Second))
	ctx := context.Background()

	require.NoError(t, mgr.Create(ctx, domain.NewHandle("doc", "publication")))
	_, err := mgr.Load(ctx, "doc")
	require.NoError(t, err)

	assert.Equal(t, []string{"doc", "doc"}, locker.keys)
	assert.Equal(t, 0, locker.held)

	locker.failed = true
	_, err = mgr.Load(ctx, "doc")
	assert.ErrorContains(t, err, "failed to acquire distributed lock")
}
