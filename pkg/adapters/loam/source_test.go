package loam

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/docflow/internal/testutils"
	"github.com/aretw0/docflow/pkg/chart"
	"github.com/aretw0/docflow/pkg/ports"
	"github.com/aretw0/loam"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const reviewMarkdown = `---
version: 1
states:
  - id: draft
    initial: true
  - id: review
transitions:
  - from: draft
    event: submit
    guard: "!hasRequest()"
    to: review
    actions:
      - task: request
        with:
          type: publish
---
Two-step review before publication.`

func TestSource_Contract(t *testing.T) {
	_, repo := testutils.SetupChartRepo(t, map[string]string{
		"review.md":   reviewMarkdown,
		"simple.json": `{"name": "simple", "states": [{"id": "a", "initial": true}], "transitions": []}`,
	})

	src := New(loam.NewTypedRepository[ChartMetadata](repo))
	ports.RunChartSourceContract(t, src, map[string]string{
		"review": `"event":"submit"`,
		"simple": `"name":"simple"`,
	})
}

func TestSource_MarkdownChartParses(t *testing.T) {
	_, repo := testutils.SetupChartRepo(t, map[string]string{"review.md": reviewMarkdown})

	src := New(loam.NewTypedRepository[ChartMetadata](repo))
	raw, err := src.GetChart(context.Background(), "review")
	require.NoError(t, err)

	c, err := chart.Parse("review", raw)
	require.NoError(t, err)
	assert.Equal(t, "review", c.Name, "name defaults to the document id")
	assert.Equal(t, "Two-step review before publication.", c.Description)
	require.Len(t, c.Transitions, 1)
	require.Len(t, c.Transitions[0].Actions, 1)
	assert.Equal(t, "publish", c.Transitions[0].Actions[0].With["type"])
}

func TestSource_ListCharts_DetectsCollisions(t *testing.T) {
	_, repo := testutils.SetupChartRepo(t, map[string]string{
		"review.md":   reviewMarkdown,
		"review.json": `{"states": [{"id": "a", "initial": true}], "transitions": []}`,
	})

	src := New(loam.NewTypedRepository[ChartMetadata](repo))
	_, err := src.ListCharts(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "collision detected")
}

func TestSource_WatchClosesOnCancel(t *testing.T) {
	_, repo := testutils.SetupChartRepo(t, nil)
	ctx, cancel := context.WithCancel(context.Background())

	src := New(loam.NewTypedRepository[ChartMetadata](repo))
	ch, err := src.Watch(ctx)
	require.NoError(t, err)

	cancel()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("watch channel not closed after cancel")
		}
	}
}

func TestNormalizeMap(t *testing.T) {
	in := map[string]any{
		"nested": map[any]any{"a": 1, 2: []any{map[any]any{"b": true}}},
	}
	out := normalizeMap(in)
	nested := out["nested"].(map[string]any)
	assert.Equal(t, 1, nested["a"])
	assert.Equal(t, []any{map[string]any{"b": true}}, nested["2"])
	assert.Nil(t, normalizeMap(nil))
}
