package domain

// AnyState is the wildcard source of a transition available from every non-final state.
const AnyState = "*"

// Chart is an immutable, parsed state chart definition.
type Chart struct {
	Name        string         `json:"name" yaml:"name" validate:"required"`
	Version     string         `json:"version" yaml:"version"`
	Description string         `json:"description,omitempty" yaml:"description,omitempty"`
	States      []StateDef     `json:"states" yaml:"states" validate:"required,min=1,dive"`
	Events      []string       `json:"events,omitempty" yaml:"events,omitempty"`
	Variables   map[string]any `json:"variables,omitempty" yaml:"variables,omitempty"`

	// Guards maps a guard name to its expression. Guards may call each other.
	Guards      map[string]string `json:"guards,omitempty" yaml:"guards,omitempty"`
	Transitions []TransitionDef   `json:"transitions" yaml:"transitions" validate:"dive"`

	// SourcePath is the location the chart was loaded from, used in error reports.
	SourcePath string `json:"-" yaml:"-"`
}

// StateDef declares a chart state.
type StateDef struct {
	ID          string `json:"id" yaml:"id" validate:"required"`
	Initial     bool   `json:"initial,omitempty" yaml:"initial,omitempty"`
	Final       bool   `json:"final,omitempty" yaml:"final,omitempty"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

// TransitionDef declares a transition keyed by (From, Event).
type TransitionDef struct {
	From  string `json:"from" yaml:"from" validate:"required"`
	Event string `json:"event" yaml:"event" validate:"required"`

	// Guard is an expression; empty means always satisfied.
	Guard string `json:"guard,omitempty" yaml:"guard,omitempty"`

	// Reason is reported when the guard blocks the transition.
	Reason  string      `json:"reason,omitempty" yaml:"reason,omitempty"`
	Actions []ActionDef `json:"actions,omitempty" yaml:"actions,omitempty" validate:"dive"`

	// To is the target state; empty means the state pointer does not move.
	To string `json:"to,omitempty" yaml:"to,omitempty"`
}

// Target returns the state the transition moves to from current.
func (t TransitionDef) Target(current string) string {
	if t.To == "" {
		return current
	}
	return t.To
}

// ActionDef binds a task to a transition.
type ActionDef struct {
	Task string `json:"task" yaml:"task" validate:"required"`

	// With holds static properties passed to the task factory.
	With map[string]any `json:"with,omitempty" yaml:"with,omitempty"`

	// Eval holds property expressions evaluated before the task runs.
	Eval map[string]string `json:"eval,omitempty" yaml:"eval,omitempty"`

	// Result names the chart variable receiving the task's return value.
	Result string `json:"result,omitempty" yaml:"result,omitempty"`
}

// Initial returns the id of the initial state.
func (c *Chart) Initial() string {
	for _, s := range c.States {
		if s.Initial {
			return s.ID
		}
	}
	return ""
}

// State returns the state definition with the given id.
func (c *Chart) State(id string) (StateDef, bool) {
	for _, s := range c.States {
		if s.ID == id {
			return s, true
		}
	}
	return StateDef{}, false
}

// IsFinal reports whether id names a final state.
func (c *Chart) IsFinal(id string) bool {
	s, ok := c.State(id)
	return ok && s.Final
}

// Candidates returns the indexes of transitions matching (state, event) in declaration order.
func (c *Chart) Candidates(state, event string) []int {
	var out []int
	for i, t := range c.Transitions {
		if t.Event != event {
			continue
		}
		if t.From == state || t.From == AnyState {
			out = append(out, i)
		}
	}
	return out
}

// EventsFrom returns the events with at least one transition from state, in first-seen order.
func (c *Chart) EventsFrom(state string) []string {
	if c.IsFinal(state) {
		return nil
	}
	seen := make(map[string]bool)
	var out []string
	for _, t := range c.Transitions {
		if t.From != state && t.From != AnyState {
			continue
		}
		if !seen[t.Event] {
			seen[t.Event] = true
			out = append(out, t.Event)
		}
	}
	return out
}
