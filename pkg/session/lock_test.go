package session

import (
	"context"
	"fmt"
	"testing"

	"github.com/aretw0/docflow/pkg/adapters/memory"
	"github.com/aretw0/docflow/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_LockLifecycle(t *testing.T) {
	mgr := NewManager(memory.NewStore())
	ctx := context.Background()
	count := 2000

	for i := 0; i < count; i++ {
		id := fmt.Sprintf("doc-%d", i)
		require.NoError(t, mgr.Create(ctx, domain.NewHandle(id, "publication")))
		_, err := mgr.Load(ctx, id)
		require.NoError(t, err)
		require.NoError(t, mgr.Delete(ctx, id))
	}

	mgr.mu.Lock()
	defer mgr.mu.Unlock()
	assert.Empty(t, mgr.locks, "idle handles must not keep lock entries")
}
