package domain

import (
	"reflect"
)

// HandleDiff represents the changes a transition made to a handle.
// It is designed to be serialized to JSON for partial updates on the client.
type HandleDiff struct {
	// HandleID is always present to identify the target.
	HandleID string `json:"handle_id"`

	State *string `json:"state,omitempty"`

	// Variables contains only changed, added or deleted keys.
	// For deletions, the key is present with a nil value.
	Variables map[string]any `json:"variables,omitempty"`

	// Variants lists variant tags that were added, removed or modified.
	Variants []VariantState `json:"variants,omitempty"`

	// Requests lists ids of requests created or whose status changed.
	Requests []string `json:"requests,omitempty"`
}

// Diff calculates the difference between oldHandle and newHandle.
// If oldHandle is nil, it returns a diff representing the entire newHandle.
func Diff(oldHandle, newHandle *DocumentHandle) *HandleDiff {
	if newHandle == nil {
		return nil
	}

	diff := &HandleDiff{HandleID: newHandle.ID}

	if oldHandle == nil || oldHandle.State != newHandle.State {
		diff.State = &newHandle.State
	}
	diff.Variables = diffVariables(oldHandle, newHandle)
	diff.Variants = diffVariants(oldHandle, newHandle)
	diff.Requests = diffRequests(oldHandle, newHandle)

	if diff.IsEmpty() {
		return nil
	}
	return diff
}

func diffVariables(old, new *DocumentHandle) map[string]any {
	delta := make(map[string]any)

	if old == nil {
		for k, v := range new.Variables {
			delta[k] = v
		}
		return nilIfEmpty(delta)
	}

	for k, newVal := range new.Variables {
		oldVal, exists := old.Variables[k]
		if !exists || !reflect.DeepEqual(oldVal, newVal) {
			delta[k] = newVal
		}
	}
	for k := range old.Variables {
		if _, exists := new.Variables[k]; !exists {
			delta[k] = nil
		}
	}
	return nilIfEmpty(delta)
}

func nilIfEmpty(m map[string]any) map[string]any {
	if len(m) == 0 {
		return nil
	}
	return m
}

func diffVariants(old, new *DocumentHandle) []VariantState {
	var changed []VariantState
	for _, tag := range new.SortedVariantStates() {
		var before *Variant
		if old != nil {
			before = old.Variant(tag)
		}
		if before == nil || !reflect.DeepEqual(before, new.Variant(tag)) {
			changed = append(changed, tag)
		}
	}
	if old != nil {
		for _, tag := range old.SortedVariantStates() {
			if new.Variant(tag) == nil {
				changed = append(changed, tag)
			}
		}
	}
	return changed
}

func diffRequests(old, new *DocumentHandle) []string {
	before := make(map[string]RequestStatus)
	if old != nil {
		for _, r := range old.Requests {
			before[r.ID] = r.Status
		}
		for _, r := range old.History {
			before[r.ID] = r.Status
		}
	}
	var changed []string
	seen := make(map[string]bool)
	for _, list := range [][]*Request{new.Requests, new.History} {
		for _, r := range list {
			if seen[r.ID] {
				continue
			}
			seen[r.ID] = true
			if status, ok := before[r.ID]; !ok || status != r.Status {
				changed = append(changed, r.ID)
			}
		}
	}
	return changed
}

// IsEmpty checks if the diff contains any actionable changes.
func (d *HandleDiff) IsEmpty() bool {
	return d.State == nil &&
		len(d.Variables) == 0 &&
		len(d.Variants) == 0 &&
		len(d.Requests) == 0
}
