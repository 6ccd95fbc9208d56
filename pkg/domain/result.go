package domain

// Outcome classifies the result of an invocation.
type Outcome string

const (
	// OutcomeTaken means a transition fired and its actions all succeeded.
	OutcomeTaken Outcome = "taken"
	// OutcomeNotApplicable means no transition exists for the event in the current state.
	OutcomeNotApplicable Outcome = "not_applicable"
	// OutcomeDenied means every candidate transition was blocked by its guard.
	OutcomeDenied Outcome = "denied"
	// OutcomeFailed means a task failed and the state pointer was left unchanged.
	OutcomeFailed Outcome = "failed"
)

// Result is what a caller receives from an invocation.
// Denied and not-applicable outcomes are results, never errors.
type Result struct {
	Event      string  `json:"event"`
	PriorState string  `json:"prior_state"`
	State      string  `json:"state"`
	Outcome    Outcome `json:"outcome"`
	Reason     string  `json:"reason,omitempty"`

	// Err is set for OutcomeFailed.
	Err error `json:"-"`

	Handle *DocumentHandle `json:"handle"`
	Hints  *Hints          `json:"hints,omitempty"`

	// Before is the handle as loaded for this invocation.
	Before *DocumentHandle `json:"-"`
}

// Taken reports whether the transition fired.
func (r *Result) Taken() bool {
	return r != nil && r.Outcome == OutcomeTaken
}

// Error returns the failure message, if any.
func (r *Result) Error() string {
	if r == nil || r.Err == nil {
		return ""
	}
	return r.Err.Error()
}
