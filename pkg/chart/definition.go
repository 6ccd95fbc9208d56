package chart

import (
	"github.com/aretw0/docflow/internal/guard"
	"github.com/aretw0/docflow/pkg/domain"
)

// Definition is a validated chart with its expressions compiled.
// It is immutable and shared read-only between concurrent invocations.
type Definition struct {
	*domain.Chart

	// NamedGuards holds the compiled named guards.
	NamedGuards map[string]*guard.Expr

	transitionGuards []*guard.Expr
	actionEvals      [][]map[string]*guard.Expr
}

// TransitionGuard returns the compiled guard of transition i, or nil when it has none.
func (d *Definition) TransitionGuard(i int) *guard.Expr {
	return d.transitionGuards[i]
}

// ActionEval returns the compiled property expressions of action j of transition i.
func (d *Definition) ActionEval(i, j int) map[string]*guard.Expr {
	return d.actionEvals[i][j]
}

// StartState returns the state a handle with an empty state pointer is in.
func (d *Definition) StartState(h *domain.DocumentHandle) string {
	if h.State != "" {
		return h.State
	}
	return d.Initial()
}
