package domain

import (
	"context"
	"time"
)

// TransitionEvent describes a fired or refused transition.
type TransitionEvent struct {
	Timestamp time.Time `json:"timestamp"`
	HandleID  string    `json:"handle_id"`
	Chart     string    `json:"chart"`
	Event     string    `json:"event"`
	From      string    `json:"from"`
	To        string    `json:"to,omitempty"`
	Outcome   Outcome   `json:"outcome"`
	Reason    string    `json:"reason,omitempty"`
}

// TaskEvent represents a task execution.
type TaskEvent struct {
	Timestamp time.Time      `json:"timestamp"`
	HandleID  string         `json:"handle_id"`
	Event     string         `json:"event"`
	Task      string         `json:"task"`
	Input     map[string]any `json:"input,omitempty"`
	Output    any            `json:"output,omitempty"`
	Err       error          `json:"-"`
	Duration  time.Duration  `json:"duration,omitempty"`
}

// LifecycleHooks defines callbacks for engine observability.
type LifecycleHooks struct {
	OnTransition func(context.Context, *TransitionEvent)
	OnDenied     func(context.Context, *TransitionEvent)
	OnTaskCall   func(context.Context, *TaskEvent)
	OnTaskReturn func(context.Context, *TaskEvent)
}

// Merge returns hooks that call h first and then other.
func (h LifecycleHooks) Merge(other LifecycleHooks) LifecycleHooks {
	return LifecycleHooks{
		OnTransition: chain(h.OnTransition, other.OnTransition),
		OnDenied:     chain(h.OnDenied, other.OnDenied),
		OnTaskCall:   chain(h.OnTaskCall, other.OnTaskCall),
		OnTaskReturn: chain(h.OnTaskReturn, other.OnTaskReturn),
	}
}

func chain[E any](a, b func(context.Context, E)) func(context.Context, E) {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	}
	return func(ctx context.Context, e E) {
		a(ctx, e)
		b(ctx, e)
	}
}
