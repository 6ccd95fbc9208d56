package runtime

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/aretw0/docflow/pkg/chart"
	"github.com/aretw0/docflow/pkg/domain"
	"github.com/aretw0/docflow/pkg/task"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadPublication(t *testing.T) *chart.Definition {
	t.Helper()
	raw, err := os.ReadFile("testdata/publication.yaml")
	require.NoError(t, err)
	return compile(t, "publication", raw, task.DefaultRegistry())
}

// handleFixtures builds a spread of handles covering held drafts, live
// documents, pending, scheduled and rejected requests.
func handleFixtures() map[string]*domain.DocumentHandle {
	past := fixedNow.Add(-time.Hour)
	future := fixedNow.Add(time.Hour)

	plain := newDocument()
	plain.Workflow = "publication"

	held := plain.Clone()
	held.SetVariant(&domain.Variant{State: domain.VariantDraft, Holder: "alice", Content: map[string]any{"title": "changed"}})

	pending := plain.Clone()
	pending.Requests = []*domain.Request{{ID: "r1", Type: domain.RequestPublish, Status: domain.RequestActive, Requester: "alice", RequestDate: past}}

	scheduledDue := plain.Clone()
	scheduledDue.Requests = []*domain.Request{{ID: "r2", Type: domain.RequestScheduledPublish, Status: domain.RequestActive, Requester: "alice", RequestDate: past, ScheduledDate: &past}}

	scheduledLater := plain.Clone()
	scheduledLater.Requests = []*domain.Request{{ID: "r3", Type: domain.RequestScheduledPublish, Status: domain.RequestActive, Requester: "alice", RequestDate: past, ScheduledDate: &future}}

	live := plain.Clone()
	live.State = "live"
	live.SetVariant(&domain.Variant{State: domain.VariantPublished, Availability: []string{domain.AvailabilityLive}})

	liveDepublishRequest := live.Clone()
	liveDepublishRequest.Requests = []*domain.Request{{ID: "r4", Type: domain.RequestDepublish, Status: domain.RequestActive, Requester: "bob", RequestDate: past}}

	zombie := plain.Clone()
	zombie.Requests = []*domain.Request{{ID: "r5", Type: domain.RequestRejected, PreviousType: domain.RequestPublish, Status: domain.RequestZombie, Requester: "alice", RequestDate: past, Reason: "no"}}

	deleted := plain.Clone()
	deleted.State = "deleted"

	return map[string]*domain.DocumentHandle{
		"plain":                plain,
		"held":                 held,
		"pending":              pending,
		"scheduledDue":         scheduledDue,
		"scheduledLater":       scheduledLater,
		"live":                 live,
		"liveDepublishRequest": liveDepublishRequest,
		"zombie":               zombie,
		"deleted":              deleted,
	}
}

// Hints must agree, event for event, with what an invocation under the same
// identity and without parameters actually does.
func TestHints_MatchInvocationOutcome(t *testing.T) {
	def := loadPublication(t)
	e := newExecutor(task.DefaultRegistry())
	ctx := context.Background()

	identities := []string{"alice", "bob", "editor", "admin", domain.SystemIdentity}
	probeEvents := append(eventNames(def), "undefinedEvent")

	for name, h := range handleFixtures() {
		for _, identity := range identities {
			hints := e.Hints(ctx, def, h, identity)
			listed := make(map[string]bool)
			for _, event := range hints.Events() {
				listed[event] = true
			}

			for _, event := range probeEvents {
				res := e.Fire(ctx, def, h, Invocation{Event: event, Identity: identity})
				label := name + "/" + identity + "/" + event

				if !listed[event] {
					assert.Equal(t, domain.OutcomeNotApplicable, res.Outcome, label)
					continue
				}
				if hints.Allowed(event) {
					assert.NotEqual(t, domain.OutcomeDenied, res.Outcome, label)
					assert.NotEqual(t, domain.OutcomeNotApplicable, res.Outcome, label)
				} else {
					assert.Equal(t, domain.OutcomeDenied, res.Outcome, label)
					assert.Equal(t, hints.Reason(event), res.Reason, label)
				}
			}
		}
	}
}

func eventNames(def *chart.Definition) []string {
	seen := make(map[string]bool)
	var out []string
	for _, t := range def.Transitions {
		if !seen[t.Event] {
			seen[t.Event] = true
			out = append(out, t.Event)
		}
	}
	return out
}

func TestHints_Publication(t *testing.T) {
	def := loadPublication(t)
	e := newExecutor(task.DefaultRegistry())
	ctx := context.Background()
	fixtures := handleFixtures()

	held := e.Hints(ctx, def, fixtures["held"], "bob")
	assert.False(t, held.Allowed("obtainEditable"))
	assert.Equal(t, "document is being edited by someone else", held.Reason("obtainEditable"))
	v, ok := held.Get(domain.HintInUseBy)
	require.True(t, ok)
	assert.Equal(t, "alice", v)
	assert.True(t, e.Hints(ctx, def, fixtures["held"], "alice").Allowed("commitEditable"))
	assert.True(t, e.Hints(ctx, def, fixtures["held"], "admin").Allowed("unlock"))

	pending := e.Hints(ctx, def, fixtures["pending"], "editor")
	assert.True(t, pending.Allowed("acceptRequest"))
	assert.True(t, pending.Allowed("rejectRequest"))
	assert.False(t, pending.Allowed("requestPublication"))
	assert.False(t, e.Hints(ctx, def, fixtures["pending"], "alice").Allowed("acceptRequest"))
	assert.True(t, e.Hints(ctx, def, fixtures["pending"], "alice").Allowed("cancelRequest"))

	assert.True(t, e.Hints(ctx, def, fixtures["scheduledDue"], domain.SystemIdentity).Allowed("publish"))
	later := e.Hints(ctx, def, fixtures["scheduledLater"], domain.SystemIdentity)
	assert.False(t, later.Allowed("publish"))
	assert.Equal(t, "no scheduled publication is due", later.Reason("publish"))

	live := e.Hints(ctx, def, fixtures["live"], "editor")
	assert.Equal(t, "live", mustGet(t, live, domain.HintState))
	assert.True(t, live.Allowed("depublish"))
	assert.NotContains(t, live.Events(), "delete")

	reqs, ok := e.Hints(ctx, def, fixtures["zombie"], "alice").Get(domain.HintRequests)
	require.True(t, ok)
	require.Len(t, reqs, 1)
	assert.Equal(t, domain.RequestRejected, reqs.([]domain.RequestHint)[0].Type)

	assert.Empty(t, e.Hints(ctx, def, fixtures["deleted"], "editor").Events())
}

func mustGet(t *testing.T, h *domain.Hints, key string) any {
	t.Helper()
	v, ok := h.Get(key)
	require.True(t, ok, key)
	return v
}

func TestPublication_ScheduledPublishByScheduler(t *testing.T) {
	def := loadPublication(t)
	e := newExecutor(task.DefaultRegistry())
	ctx := context.Background()

	h := handleFixtures()["plain"]
	requested := e.Fire(ctx, def, h, Invocation{
		Event:    "requestScheduledPublication",
		Identity: "alice",
		Params:   map[string]any{"at": fixedNow.Add(-time.Minute).Format(time.RFC3339)},
	})
	require.True(t, requested.Taken(), requested.Reason)
	req := requested.Handle.ActiveRequest()
	require.NotNil(t, req)
	assert.Equal(t, domain.RequestScheduledPublish, req.Type)

	published := e.Fire(ctx, def, requested.Handle, Invocation{Event: "publish", Identity: domain.SystemIdentity})
	require.True(t, published.Taken(), published.Reason)
	assert.Equal(t, "live", published.State)
	assert.Nil(t, published.Handle.ActiveRequest())
	assert.True(t, published.Handle.Variant(domain.VariantPublished).IsAvailable(domain.AvailabilityLive))
}

func TestPublication_EditCycle(t *testing.T) {
	def := loadPublication(t)
	e := newExecutor(task.DefaultRegistry())
	ctx := context.Background()

	res := e.Fire(ctx, def, handleFixtures()["plain"], Invocation{Event: "obtainEditable", Identity: "alice"})
	require.True(t, res.Taken(), res.Reason)
	res.Handle.Variant(domain.VariantDraft).Content["title"] = "Annual report"

	res = e.Fire(ctx, def, res.Handle, Invocation{Event: "commitEditable", Identity: "alice"})
	require.True(t, res.Taken(), res.Reason)
	assert.Equal(t, true, res.Handle.Variables["modified"])
	assert.Equal(t, "Annual report", res.Handle.Variant(domain.VariantUnpublished).Content["title"])
	_, held := res.Hints.Get(domain.HintInUseBy)
	assert.False(t, held)
}
