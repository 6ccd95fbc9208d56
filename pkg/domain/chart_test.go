package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func sampleChart() *Chart {
	return &Chart{
		Name: "publication",
		States: []StateDef{
			{ID: "draft", Initial: true},
			{ID: "review"},
			{ID: "published"},
			{ID: "deleted", Final: true},
		},
		Transitions: []TransitionDef{
			{From: "draft", Event: "requestPublication", To: "review"},
			{From: "review", Event: "approve", Guard: "isAdmin", To: "published"},
			{From: "review", Event: "approve", To: "review"},
			{From: AnyState, Event: "delete", To: "deleted"},
		},
	}
}

func TestChart_Candidates(t *testing.T) {
	c := sampleChart()

	assert.Equal(t, []int{1, 2}, c.Candidates("review", "approve"))
	assert.Equal(t, []int{3}, c.Candidates("published", "delete"))
	assert.Empty(t, c.Candidates("draft", "approve"))
}

func TestChart_EventsFrom(t *testing.T) {
	c := sampleChart()

	assert.Equal(t, "draft", c.Initial())
	assert.Equal(t, []string{"requestPublication", "delete"}, c.EventsFrom("draft"))
	assert.Equal(t, []string{"approve", "delete"}, c.EventsFrom("review"))
	assert.Nil(t, c.EventsFrom("deleted"))
	assert.True(t, c.IsFinal("deleted"))
	assert.False(t, c.IsFinal("missing"))
}

func TestTransition_Target(t *testing.T) {
	assert.Equal(t, "review", TransitionDef{To: "review"}.Target("draft"))
	assert.Equal(t, "draft", TransitionDef{}.Target("draft"))
}
