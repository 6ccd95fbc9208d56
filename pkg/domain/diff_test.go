package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func baseHandle() *DocumentHandle {
	h := NewHandle("doc-1", "publication")
	h.State = "draft"
	h.Variables["count"] = 1
	h.SetVariant(&Variant{State: VariantUnpublished, Content: map[string]any{"title": "a"}})
	h.Requests = []*Request{{ID: "r1", Type: RequestPublish, Status: RequestActive}}
	return h
}

func TestDiff(t *testing.T) {
	t.Run("Initial Load (Old is Nil)", func(t *testing.T) {
		d := Diff(nil, baseHandle())
		require.NotNil(t, d)
		require.NotNil(t, d.State)
		assert.Equal(t, "draft", *d.State)
		assert.Equal(t, map[string]any{"count": 1}, d.Variables)
		assert.Equal(t, []VariantState{VariantUnpublished}, d.Variants)
		assert.Equal(t, []string{"r1"}, d.Requests)
	})

	t.Run("No Changes", func(t *testing.T) {
		h := baseHandle()
		assert.Nil(t, Diff(h, h.Clone()))
	})

	t.Run("State And Variables", func(t *testing.T) {
		old := baseHandle()
		next := old.Clone()
		next.State = "review"
		next.Variables["count"] = 2
		next.Variables["added"] = "x"
		delete(next.Variables, "missing")

		d := Diff(old, next)
		require.NotNil(t, d)
		assert.Equal(t, "review", *d.State)
		assert.Equal(t, map[string]any{"count": 2, "added": "x"}, d.Variables)
		assert.Empty(t, d.Variants)
	})

	t.Run("Variable Deleted", func(t *testing.T) {
		old := baseHandle()
		next := old.Clone()
		delete(next.Variables, "count")

		d := Diff(old, next)
		require.NotNil(t, d)
		assert.Contains(t, d.Variables, "count")
		assert.Nil(t, d.Variables["count"])
	})

	t.Run("Variant Added And Removed", func(t *testing.T) {
		old := baseHandle()
		next := old.Clone()
		next.SetVariant(&Variant{State: VariantDraft, Holder: "alice"})
		next.RemoveVariant(VariantUnpublished)

		d := Diff(old, next)
		require.NotNil(t, d)
		assert.ElementsMatch(t, []VariantState{VariantDraft, VariantUnpublished}, d.Variants)
	})

	t.Run("Request Rejected", func(t *testing.T) {
		old := baseHandle()
		next := old.Clone()
		next.Requests[0].Status = RequestZombie

		d := Diff(old, next)
		require.NotNil(t, d)
		assert.Equal(t, []string{"r1"}, d.Requests)
	})
}

func TestDiff_JSON(t *testing.T) {
	old := baseHandle()
	next := old.Clone()
	next.State = "published"

	b, err := json.Marshal(Diff(old, next))
	require.NoError(t, err)
	assert.JSONEq(t, `{"handle_id":"doc-1","state":"published"}`, string(b))
}

func TestHandleClone_IsDeep(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	h := baseHandle()
	h.Variables["nested"] = map[string]any{"k": []any{"v"}}
	h.Requests[0].ScheduledDate = &at

	c := h.Clone()
	c.Variables["nested"].(map[string]any)["k"] = "changed"
	c.Variant(VariantUnpublished).Content["title"] = "b"
	c.Requests[0].Status = RequestResolved
	*c.Requests[0].ScheduledDate = at.Add(time.Hour)

	assert.Equal(t, []any{"v"}, h.Variables["nested"].(map[string]any)["k"])
	assert.Equal(t, "a", h.Variant(VariantUnpublished).Content["title"])
	assert.True(t, h.Requests[0].IsActive())
	assert.Equal(t, at, *h.Requests[0].ScheduledDate)
}

func TestHandle_ActiveRequest(t *testing.T) {
	h := NewHandle("d", "w")
	assert.Nil(t, h.ActiveRequest())

	h.Requests = []*Request{
		{ID: "z", Status: RequestZombie, Type: RequestRejected},
		{ID: "a", Status: RequestActive, Type: RequestPublish},
	}
	require.NotNil(t, h.ActiveRequest())
	assert.Equal(t, "a", h.ActiveRequest().ID)
}

func TestRequest_IsDue(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Minute)
	future := now.Add(time.Minute)

	assert.True(t, (&Request{Status: RequestActive, ScheduledDate: &past}).IsDue(now))
	assert.True(t, (&Request{Status: RequestActive, ScheduledDate: &now}).IsDue(now))
	assert.False(t, (&Request{Status: RequestActive, ScheduledDate: &future}).IsDue(now))
	assert.False(t, (&Request{Status: RequestActive}).IsDue(now))
	assert.False(t, (&Request{Status: RequestZombie, ScheduledDate: &past}).IsDue(now))
}
