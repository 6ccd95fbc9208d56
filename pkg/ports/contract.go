package ports

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/aretw0/docflow/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunHandleStoreContract runs a suite of tests to verify that a HandleStore implementation
// adheres to the defined interface contract.
func RunHandleStoreContract(t *testing.T, store HandleStore) {
	ctx := context.Background()
	handleID := "contract-test-handle-" + time.Now().Format("20060102150405")

	newHandle := func(id string) *domain.DocumentHandle {
		h := domain.NewHandle(id, "publication")
		h.State = "draft"
		h.Variables["foo"] = "bar"
		h.Variables["count"] = 42
		h.SetVariant(&domain.Variant{
			State:        domain.VariantUnpublished,
			Content:      map[string]any{"title": "Hello"},
			Availability: []string{domain.AvailabilityPreview},
		})
		at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
		h.Requests = []*domain.Request{{
			ID: "r1", Type: domain.RequestScheduledPublish, Status: domain.RequestActive,
			Requester: "alice", RequestDate: at, ScheduledDate: &at,
		}}
		return h
	}

	t.Run("Save and Load", func(t *testing.T) {
		h := newHandle(handleID)
		require.NoError(t, store.Save(ctx, h), "Save should not return error")
		assert.Equal(t, int64(1), h.Version, "Save should bump the version")

		loaded, err := store.Load(ctx, handleID)
		require.NoError(t, err, "Load should not return error")
		assert.Equal(t, "draft", loaded.State)
		assert.Equal(t, "publication", loaded.Workflow)
		assert.Equal(t, int64(1), loaded.Version)
		assert.Equal(t, "bar", loaded.Variables["foo"])
		// JSON persistence may turn ints into float64; only check existence.
		assert.NotNil(t, loaded.Variables["count"])
		require.NotNil(t, loaded.Variant(domain.VariantUnpublished))
		assert.Equal(t, "Hello", loaded.Variant(domain.VariantUnpublished).Content["title"])
		require.Len(t, loaded.Requests, 1)
		assert.Equal(t, "r1", loaded.Requests[0].ID)
		assert.True(t, loaded.Requests[0].ScheduledDate.Equal(*h.Requests[0].ScheduledDate))
	})

	t.Run("Stale Version Conflicts", func(t *testing.T) {
		first, err := store.Load(ctx, handleID)
		require.NoError(t, err)
		second, err := store.Load(ctx, handleID)
		require.NoError(t, err)

		first.State = "review"
		require.NoError(t, store.Save(ctx, first))

		second.State = "published"
		err = store.Save(ctx, second)
		var conflict *domain.ConflictError
		require.True(t, errors.As(err, &conflict), "expected ConflictError, got %v", err)

		loaded, err := store.Load(ctx, handleID)
		require.NoError(t, err)
		assert.Equal(t, "review", loaded.State)
	})

	t.Run("Create Over Existing Conflicts", func(t *testing.T) {
		err := store.Save(ctx, newHandle(handleID))
		var conflict *domain.ConflictError
		assert.True(t, errors.As(err, &conflict), "expected ConflictError, got %v", err)
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := store.Load(ctx, "non-existent-"+handleID)
		assert.ErrorIs(t, err, domain.ErrHandleNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		err := store.Delete(ctx, handleID)
		require.NoError(t, err, "Delete should not return error")

		_, err = store.Load(ctx, handleID)
		assert.ErrorIs(t, err, domain.ErrHandleNotFound, "Load after Delete should return ErrHandleNotFound")
	})

	t.Run("List", func(t *testing.T) {
		id1 := handleID + "-1"
		id2 := handleID + "-2"
		require.NoError(t, store.Save(ctx, newHandle(id1)))
		require.NoError(t, store.Save(ctx, newHandle(id2)))

		defer func() {
			_ = store.Delete(ctx, id1)
			_ = store.Delete(ctx, id2)
		}()

		ids, err := store.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, ids, id1)
		assert.Contains(t, ids, id2)
	})
}

// RunScheduleIndexContract verifies that a store indexes scheduled requests as they are saved.
func RunScheduleIndexContract(t *testing.T, store ScheduledStore) {
	ctx := context.Background()
	base := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

	save := func(id string, typ domain.RequestType, status domain.RequestStatus, at time.Time) *domain.DocumentHandle {
		h := domain.NewHandle(id, "publication")
		h.Requests = []*domain.Request{{
			ID: fmt.Sprintf("%s-req", id), Type: typ, Status: status,
			Requester: "alice", RequestDate: base, ScheduledDate: &at,
		}}
		require.NoError(t, store.Save(ctx, h))
		return h
	}

	due := save("sched-due", domain.RequestScheduledPublish, domain.RequestActive, base.Add(-time.Hour))
	save("sched-later", domain.RequestScheduledDepublish, domain.RequestActive, base.Add(time.Hour))
	save("sched-zombie", domain.RequestRejected, domain.RequestZombie, base.Add(-time.Hour))
	defer func() {
		for _, id := range []string{"sched-due", "sched-later", "sched-zombie"} {
			_ = store.Delete(ctx, id)
		}
	}()

	t.Run("Only Due Active Requests", func(t *testing.T) {
		refs, err := store.DueRequests(ctx, base)
		require.NoError(t, err)
		require.Len(t, refs, 1)
		assert.Equal(t, "sched-due", refs[0].HandleID)
		assert.Equal(t, "sched-due-req", refs[0].RequestID)
		assert.Equal(t, domain.RequestScheduledPublish, refs[0].Type)
		assert.True(t, refs[0].At.Equal(base.Add(-time.Hour)))
	})

	t.Run("Resolved Requests Leave The Index", func(t *testing.T) {
		due.Requests[0].Status = domain.RequestResolved
		due.History = due.Requests
		due.Requests = nil
		require.NoError(t, store.Save(ctx, due))

		refs, err := store.DueRequests(ctx, base.Add(2*time.Hour))
		require.NoError(t, err)
		require.Len(t, refs, 1)
		assert.Equal(t, "sched-later", refs[0].HandleID)
	})

	t.Run("Deleted Handles Leave The Index", func(t *testing.T) {
		require.NoError(t, store.Delete(ctx, "sched-later"))
		refs, err := store.DueRequests(ctx, base.Add(2*time.Hour))
		require.NoError(t, err)
		assert.Empty(t, refs)
	})
}

// RunChartSourceContract verifies that a ChartSource serves the given charts.
// want maps chart names to a substring their raw definition must contain.
func RunChartSourceContract(t *testing.T, src ChartSource, want map[string]string) {
	t.Helper()
	ctx := context.Background()

	t.Run("GetChart_Success", func(t *testing.T) {
		for name, fragment := range want {
			raw, err := src.GetChart(ctx, name)
			require.NoError(t, err, "unexpected error getting chart %s", name)
			assert.Contains(t, string(raw), fragment)
		}
	})

	t.Run("GetChart_NotFound", func(t *testing.T) {
		_, err := src.GetChart(ctx, "non-existent-chart")
		assert.ErrorIs(t, err, domain.ErrChartNotFound)
	})

	t.Run("ListCharts", func(t *testing.T) {
		names, err := src.ListCharts(ctx)
		require.NoError(t, err)
		assert.Len(t, names, len(want))
		for name := range want {
			assert.Contains(t, names, name)
		}
	})
}
