package domain

import (
	"encoding/json"
	"maps"
	"slices"
)

// RequestHint is the summary of a request exposed in hints.
type RequestHint struct {
	ID            string        `json:"id"`
	Type          RequestType   `json:"type"`
	Status        RequestStatus `json:"status"`
	Requester     string        `json:"requester"`
	ScheduledDate string        `json:"scheduledDate,omitempty"`
}

// Hints is an immutable snapshot of the events a caller may fire next.
// Each event maps to true when allowed or to the blocking reason.
type Hints struct {
	events  []string
	reasons map[string]string
	extra   map[string]any
}

// HintsBuilder accumulates hint entries; Build freezes them.
type HintsBuilder struct {
	events  []string
	reasons map[string]string
	extra   map[string]any
}

// NewHintsBuilder returns an empty builder.
func NewHintsBuilder() *HintsBuilder {
	return &HintsBuilder{
		reasons: make(map[string]string),
		extra:   make(map[string]any),
	}
}

// Allow marks event as allowed. A previously recorded reason is kept.
func (b *HintsBuilder) Allow(event string) *HintsBuilder {
	if _, seen := b.reasons[event]; !seen {
		b.events = append(b.events, event)
		b.reasons[event] = ""
	}
	return b
}

// Block records the first blocking reason for event unless it is already allowed.
func (b *HintsBuilder) Block(event, reason string) *HintsBuilder {
	if _, seen := b.reasons[event]; !seen {
		b.events = append(b.events, event)
		b.reasons[event] = reason
	}
	return b
}

// Put adds a structured, non-event entry.
func (b *HintsBuilder) Put(key string, value any) *HintsBuilder {
	b.extra[key] = value
	return b
}

// Build returns the frozen snapshot.
func (b *HintsBuilder) Build() *Hints {
	return &Hints{
		events:  slices.Clone(b.events),
		reasons: maps.Clone(b.reasons),
		extra:   maps.Clone(b.extra),
	}
}

// Allowed reports whether event may fire now.
func (h *Hints) Allowed(event string) bool {
	if h == nil {
		return false
	}
	reason, ok := h.reasons[event]
	return ok && reason == ""
}

// Reason returns the blocking reason for event, or "" when allowed or unknown.
func (h *Hints) Reason(event string) string {
	if h == nil {
		return ""
	}
	return h.reasons[event]
}

// Events lists the events reachable from the current state in chart order.
func (h *Hints) Events() []string {
	if h == nil {
		return nil
	}
	return slices.Clone(h.events)
}

// Get returns the raw hint value for key: true, a reason string or a structured entry.
func (h *Hints) Get(key string) (any, bool) {
	if h == nil {
		return nil, false
	}
	if reason, ok := h.reasons[key]; ok {
		if reason == "" {
			return true, true
		}
		return reason, true
	}
	v, ok := h.extra[key]
	return v, ok
}

// Map returns a copy of the snapshot as a flat map.
func (h *Hints) Map() map[string]any {
	out := make(map[string]any)
	if h == nil {
		return out
	}
	for k, v := range h.extra {
		out[k] = v
	}
	for _, e := range h.events {
		v, _ := h.Get(e)
		out[e] = v
	}
	return out
}

// MarshalJSON encodes the snapshot as a flat object.
func (h *Hints) MarshalJSON() ([]byte, error) {
	return json.Marshal(h.Map())
}
