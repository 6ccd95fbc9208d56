package dsl

import "github.com/aretw0/docflow/pkg/domain"

// TransitionBuilder provides a fluent API for configuring a transition.
type TransitionBuilder struct {
	def domain.TransitionDef
}

// When sets the guard expression.
func (t *TransitionBuilder) When(guard string) *TransitionBuilder {
	t.def.Guard = guard
	return t
}

// Reason sets the message reported when the guard denies the event.
func (t *TransitionBuilder) Reason(reason string) *TransitionBuilder {
	t.def.Reason = reason
	return t
}

// To sets the target state. Without it the transition is internal.
func (t *TransitionBuilder) To(state string) *TransitionBuilder {
	t.def.To = state
	return t
}

// Do appends an action running task with static properties.
func (t *TransitionBuilder) Do(task string, with map[string]any) *TransitionBuilder {
	t.def.Actions = append(t.def.Actions, domain.ActionDef{Task: task, With: with})
	return t
}

// Eval adds a property computed from an expression to the last action.
func (t *TransitionBuilder) Eval(prop, expr string) *TransitionBuilder {
	a := t.last()
	if a == nil {
		return t
	}
	if a.Eval == nil {
		a.Eval = make(map[string]string)
	}
	a.Eval[prop] = expr
	return t
}

// SaveTo stores the result of the last action in the named handle variable.
func (t *TransitionBuilder) SaveTo(variable string) *TransitionBuilder {
	if a := t.last(); a != nil {
		a.Result = variable
	}
	return t
}

func (t *TransitionBuilder) last() *domain.ActionDef {
	if len(t.def.Actions) == 0 {
		return nil
	}
	return &t.def.Actions[len(t.def.Actions)-1]
}

// Build returns the underlying transition definition.
func (t *TransitionBuilder) Build() domain.TransitionDef {
	def := t.def
	def.Actions = append([]domain.ActionDef(nil), t.def.Actions...)
	return def
}
