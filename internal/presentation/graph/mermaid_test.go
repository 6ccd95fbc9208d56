package graph_test

import (
	"strings"
	"testing"

	"github.com/aretw0/docflow/internal/presentation/graph"
	"github.com/aretw0/docflow/pkg/domain"
	"github.com/stretchr/testify/assert"
)

func sampleChart() *domain.Chart {
	return &domain.Chart{
		Name: "review",
		States: []domain.StateDef{
			{ID: "draft", Initial: true},
			{ID: "in-review"},
			{ID: "deleted", Final: true},
		},
		Transitions: []domain.TransitionDef{
			{From: "draft", Event: "submit", To: "in-review"},
			{From: "in-review", Event: "approve", Guard: `user == "bob"`, To: "draft"},
			{From: "*", Event: "unlock"},
			{From: "draft", Event: "delete", To: "deleted"},
		},
	}
}

func TestGenerateMermaid(t *testing.T) {
	out := graph.GenerateMermaid(sampleChart(), nil)

	for _, want := range []string{
		"graph TD\n",
		`draft(("draft"))`,
		`in_review["in-review"]`,
		`deleted((("deleted")))`,
		`draft -- "submit" --> in_review`,
		`in_review -- "approve [user == 'bob']" --> draft`,
		`draft -. "unlock" .-> draft`,
		`in_review -. "unlock" .-> in_review`,
	} {
		assert.Contains(t, out, want)
	}
	assert.NotContains(t, out, `deleted -. "unlock"`, "final states accept no events")
	assert.NotContains(t, out, "classDef")
}

func TestGenerateMermaid_Overlay(t *testing.T) {
	out := graph.GenerateMermaid(sampleChart(), &graph.Overlay{
		CurrentState: "draft",
		Allowed:      []string{"submit"},
	})

	assert.Contains(t, out, `draft == "submit" ==> in_review`)
	assert.Contains(t, out, `draft -- "delete" --> deleted`)
	assert.Contains(t, out, `draft -. "unlock" .-> draft`)
	assert.NotContains(t, out, `in_review -. "unlock"`, "wildcard edges are only drawn from the current state")
	assert.True(t, strings.HasSuffix(out, "class draft current;\n"))
}
