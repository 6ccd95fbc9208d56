package task

import (
	"context"
	"fmt"
	"reflect"
	"slices"

	"github.com/aretw0/docflow/pkg/domain"
)

// obtainEditable checks out the draft for the current identity, creating it
// from the unpublished variant when needed. It fails with a retryable error
// while someone else holds the draft. It returns the holder.
func obtainEditable(_ context.Context, tc *Context) (any, error) {
	h := tc.Handle
	draft := h.Variant(domain.VariantDraft)
	if draft != nil && draft.Holder != "" && draft.Holder != tc.Identity {
		return nil, Fail(NameObtainEditable, fmt.Sprintf("document is held by %s", draft.Holder), true, nil)
	}
	if draft == nil {
		if src := h.Variant(domain.VariantUnpublished); src != nil {
			draft = src.Clone()
			draft.Availability = nil
		} else {
			draft = &domain.Variant{Content: make(map[string]any)}
		}
		draft.State = domain.VariantDraft
		h.SetVariant(draft)
	}
	draft.Holder = tc.Identity
	return draft.Holder, nil
}

// commitEditable copies the draft content into the unpublished variant and
// releases the draft. Only the holder may commit.
func commitEditable(_ context.Context, tc *Context) (any, error) {
	h := tc.Handle
	draft := h.Variant(domain.VariantDraft)
	if draft == nil {
		return nil, Fail(NameCommitEditable, "no draft variant", false, nil)
	}
	if draft.Holder != "" && draft.Holder != tc.Identity {
		return nil, Fail(NameCommitEditable, fmt.Sprintf("document is held by %s", draft.Holder), true, nil)
	}

	unpublished := h.Variant(domain.VariantUnpublished)
	if unpublished == nil {
		unpublished = &domain.Variant{State: domain.VariantUnpublished, Availability: []string{domain.AvailabilityPreview}}
		h.SetVariant(unpublished)
	}
	unpublished.Content = domain.CloneVariables(draft.Content)
	unpublished.LastModified = tc.Now
	unpublished.LastModifiedBy = tc.Identity

	draft.Holder = ""
	draft.LastModified = tc.Now
	draft.LastModifiedBy = tc.Identity
	return nil, nil
}

// disposeEditable discards draft changes by resetting it to the unpublished
// content and releases the draft.
func disposeEditable(_ context.Context, tc *Context) (any, error) {
	h := tc.Handle
	draft := h.Variant(domain.VariantDraft)
	if draft == nil {
		return nil, Fail(NameDisposeEditable, "no draft variant", false, nil)
	}
	if unpublished := h.Variant(domain.VariantUnpublished); unpublished != nil {
		draft.Content = domain.CloneVariables(unpublished.Content)
	} else {
		h.RemoveVariant(domain.VariantDraft)
		return nil, nil
	}
	draft.Holder = ""
	return nil, nil
}

// isModified reports whether the draft content differs from the unpublished one.
func isModified(_ context.Context, tc *Context) (any, error) {
	return ContentModified(tc.Handle), nil
}

// ContentModified compares the draft and unpublished content of h.
// A missing draft is never modified; a draft without an unpublished variant
// is modified when it has content.
func ContentModified(h *domain.DocumentHandle) bool {
	draft := h.Variant(domain.VariantDraft)
	if draft == nil {
		return false
	}
	unpublished := h.Variant(domain.VariantUnpublished)
	if unpublished == nil {
		return len(draft.Content) > 0
	}
	return !reflect.DeepEqual(normalizeContent(draft.Content), normalizeContent(unpublished.Content))
}

func normalizeContent(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

// publish copies the unpublished variant into the published one and makes
// it live.
func publish(_ context.Context, tc *Context) (any, error) {
	h := tc.Handle
	unpublished := h.Variant(domain.VariantUnpublished)
	if unpublished == nil {
		return nil, Fail(NamePublish, "no unpublished variant", false, nil)
	}
	published := unpublished.Clone()
	published.State = domain.VariantPublished
	published.Holder = ""
	published.Availability = []string{domain.AvailabilityLive}
	at := tc.Now
	published.PublishedAt = &at
	h.SetVariant(published)

	if !slices.Contains(unpublished.Availability, domain.AvailabilityPreview) {
		unpublished.Availability = append(unpublished.Availability, domain.AvailabilityPreview)
	}
	return nil, nil
}

// depublish takes the published variant offline. It is a no-op when the
// document is not live.
func depublish(_ context.Context, tc *Context) (any, error) {
	published := tc.Handle.Variant(domain.VariantPublished)
	if published == nil {
		return nil, nil
	}
	published.Availability = slices.DeleteFunc(published.Availability, func(a string) bool {
		return a == domain.AvailabilityLive
	})
	return nil, nil
}

// deleteDocument removes every variant and marks the handle deleted.
func deleteDocument(_ context.Context, tc *Context) (any, error) {
	h := tc.Handle
	if published := h.Variant(domain.VariantPublished); published.IsAvailable(domain.AvailabilityLive) {
		return nil, Fail(NameDelete, "document is live", false, nil)
	}
	for _, tag := range h.SortedVariantStates() {
		h.RemoveVariant(tag)
	}
	if h.Variables == nil {
		h.Variables = make(map[string]any)
	}
	h.Variables[domain.VarDeleted] = true
	return nil, nil
}
