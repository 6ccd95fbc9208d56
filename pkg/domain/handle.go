package domain

import (
	"maps"
	"slices"
	"time"
)

// VariantState is the lifecycle tag of a document variant.
type VariantState string

const (
	VariantDraft       VariantState = "draft"
	VariantUnpublished VariantState = "unpublished"
	VariantPublished   VariantState = "published"
)

// Valid reports whether s is one of the known lifecycle tags.
func (s VariantState) Valid() bool {
	switch s {
	case VariantDraft, VariantUnpublished, VariantPublished:
		return true
	}
	return false
}

// Availability channels of a variant.
const (
	AvailabilityLive    = "live"
	AvailabilityPreview = "preview"
)

// Variant is one lifecycle-tagged revision of a document.
type Variant struct {
	State VariantState `json:"state"`

	// Holder is the identity that has the variant checked out for editing.
	Holder string `json:"holder,omitempty"`

	Content      map[string]any `json:"content,omitempty"`
	Availability []string       `json:"availability,omitempty"`

	LastModifiedBy string     `json:"last_modified_by,omitempty"`
	LastModified   time.Time  `json:"last_modified,omitempty"`
	PublishedAt    *time.Time `json:"published_at,omitempty"`
}

// IsAvailable reports whether the variant is exposed on the given channel.
func (v *Variant) IsAvailable(channel string) bool {
	return v != nil && slices.Contains(v.Availability, channel)
}

// Clone returns a deep copy of the variant.
func (v *Variant) Clone() *Variant {
	if v == nil {
		return nil
	}
	next := *v
	next.Content = cloneMap(v.Content)
	next.Availability = slices.Clone(v.Availability)
	if v.PublishedAt != nil {
		at := *v.PublishedAt
		next.PublishedAt = &at
	}
	return &next
}

// DocumentHandle is the workflow-scoped model of one content item.
// It is rebuilt from the store for every invocation and never cached.
type DocumentHandle struct {
	ID string `json:"id"`

	// Workflow names the chart that drives this document.
	Workflow string `json:"workflow"`

	// State is the chart state pointer. Empty means the chart's initial state.
	State string `json:"state,omitempty"`

	Variants map[VariantState]*Variant `json:"variants,omitempty"`

	// Requests holds the active request (at most one) and rejected zombies.
	Requests []*Request `json:"requests,omitempty"`

	// History holds resolved requests, oldest first.
	History []*Request `json:"history,omitempty"`

	// Variables are chart runtime variables persisted across invocations.
	Variables map[string]any `json:"variables,omitempty"`

	// Version is the optimistic concurrency counter maintained by the store.
	Version int64 `json:"version"`

	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// NewHandle creates an empty handle bound to a workflow chart.
func NewHandle(id, workflow string) *DocumentHandle {
	return &DocumentHandle{
		ID:        id,
		Workflow:  workflow,
		Variants:  make(map[VariantState]*Variant),
		Variables: make(map[string]any),
	}
}

// Variant returns the variant with the given tag, or nil.
func (h *DocumentHandle) Variant(state VariantState) *Variant {
	if h == nil || h.Variants == nil {
		return nil
	}
	return h.Variants[state]
}

// SetVariant stores v under its lifecycle tag.
func (h *DocumentHandle) SetVariant(v *Variant) {
	if h.Variants == nil {
		h.Variants = make(map[VariantState]*Variant)
	}
	h.Variants[v.State] = v
}

// RemoveVariant drops the variant with the given tag.
func (h *DocumentHandle) RemoveVariant(state VariantState) {
	delete(h.Variants, state)
}

// ActiveRequest returns the single non-rejected, non-resolved request, or nil.
func (h *DocumentHandle) ActiveRequest() *Request {
	if h == nil {
		return nil
	}
	for _, r := range h.Requests {
		if r.IsActive() {
			return r
		}
	}
	return nil
}

// Clone returns a deep copy so that a failed transition can be discarded.
func (h *DocumentHandle) Clone() *DocumentHandle {
	if h == nil {
		return nil
	}
	next := *h
	next.Variants = make(map[VariantState]*Variant, len(h.Variants))
	for k, v := range h.Variants {
		next.Variants[k] = v.Clone()
	}
	next.Requests = cloneRequests(h.Requests)
	next.History = cloneRequests(h.History)
	next.Variables = cloneMap(h.Variables)
	if next.Variables == nil {
		next.Variables = make(map[string]any)
	}
	return &next
}

func cloneRequests(src []*Request) []*Request {
	if src == nil {
		return nil
	}
	out := make([]*Request, len(src))
	for i, r := range src {
		out[i] = r.Clone()
	}
	return out
}

// cloneMap copies nested maps and slices; scalar values are shared.
func cloneMap(src map[string]any) map[string]any {
	if src == nil {
		return nil
	}
	out := make(map[string]any, len(src))
	for k, v := range src {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return cloneMap(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	case []string:
		return slices.Clone(val)
	default:
		return v
	}
}

// CloneVariables exposes the deep map copy used by handles for other packages.
func CloneVariables(src map[string]any) map[string]any {
	out := cloneMap(src)
	if out == nil {
		out = make(map[string]any)
	}
	return out
}

// SortedVariantStates lists the handle's variant tags in a stable order.
func (h *DocumentHandle) SortedVariantStates() []VariantState {
	keys := slices.Collect(maps.Keys(h.Variants))
	slices.Sort(keys)
	return keys
}
