package runtime

import (
	"context"
	"time"

	"github.com/aretw0/docflow/pkg/chart"
	"github.com/aretw0/docflow/pkg/domain"
)

// Hints evaluates, without side effects, every transition leaving the
// handle's current state as identity would see it with no parameters.
func (e *Executor) Hints(ctx context.Context, def *chart.Definition, h *domain.DocumentHandle, identity string) *domain.Hints {
	state := def.StartState(h)
	en := &env{def: def, handle: h, identity: identity, state: state, now: e.now()}

	b := domain.NewHintsBuilder()
	for _, event := range def.EventsFrom(state) {
		allowed := false
		var blocked string
		for _, i := range def.Candidates(state, event) {
			ok, reason := e.check(def, i, en)
			if ok {
				allowed = true
				break
			}
			if blocked == "" {
				blocked = reason
			}
		}
		if allowed {
			b.Allow(event)
		} else {
			b.Block(event, blocked)
		}
	}

	b.Put(domain.HintState, state)
	if draft := h.Variant(domain.VariantDraft); draft != nil && draft.Holder != "" {
		b.Put(domain.HintInUseBy, draft.Holder)
	}
	if len(h.Requests) > 0 {
		b.Put(domain.HintRequests, requestHints(h.Requests))
	}
	return b.Build()
}

func requestHints(reqs []*domain.Request) []domain.RequestHint {
	out := make([]domain.RequestHint, 0, len(reqs))
	for _, r := range reqs {
		rh := domain.RequestHint{
			ID:        r.ID,
			Type:      r.Type,
			Status:    r.Status,
			Requester: r.Requester,
		}
		if r.ScheduledDate != nil {
			rh.ScheduledDate = r.ScheduledDate.UTC().Format(time.RFC3339)
		}
		out = append(out, rh)
	}
	return out
}
