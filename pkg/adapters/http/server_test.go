package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aretw0/docflow"
	"github.com/aretw0/docflow/pkg/adapters/memory"
	"github.com/aretw0/docflow/pkg/domain"
	"github.com/aretw0/docflow/pkg/observability"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const reviewChart = `
name: review
states:
  - id: draft
    initial: true
  - id: review
  - id: published
transitions:
  - from: draft
    event: submit
    to: review
    actions:
      - task: request
        with:
          type: publish
  - from: review
    event: approve
    guard: "!isRequester()"
    reason: the requester cannot approve their own request
    to: published
    actions:
      - task: acceptRequest
      - task: publish
`

func newTestHandler(t *testing.T, opts ...Option) (http.Handler, *docflow.Engine) {
	t.Helper()
	eng, err := docflow.New("", docflow.WithChartSource(memory.NewSource(map[string]string{"review": reviewChart})))
	require.NoError(t, err)
	return NewHandler(eng, opts...), eng
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestServer_Lifecycle(t *testing.T) {
	h, _ := newTestHandler(t)

	w := do(t, h, http.MethodPost, "/handles", CreateHandleRequest{ID: "doc-1", Workflow: "review", Content: map[string]any{"title": "Hi"}})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = do(t, h, http.MethodPost, "/handles/doc-1/events/submit", InvokeRequest{Identity: "alice"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	res := decodeBody[InvokeResponse](t, w)
	assert.Equal(t, domain.OutcomeTaken, res.Outcome)
	assert.Equal(t, "review", res.State)

	w = do(t, h, http.MethodPost, "/handles/doc-1/events/approve", InvokeRequest{Identity: "alice"})
	require.Equal(t, http.StatusOK, w.Code)
	res = decodeBody[InvokeResponse](t, w)
	assert.Equal(t, domain.OutcomeDenied, res.Outcome)
	assert.Equal(t, "the requester cannot approve their own request", res.Reason)

	w = do(t, h, http.MethodGet, "/handles/doc-1/hints?identity=bob", nil)
	require.Equal(t, http.StatusOK, w.Code)
	hints := decodeBody[map[string]any](t, w)
	assert.Equal(t, true, hints["approve"])

	w = do(t, h, http.MethodGet, "/handles/doc-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	stored := decodeBody[domain.DocumentHandle](t, w)
	assert.Equal(t, "review", stored.State)

	w = do(t, h, http.MethodGet, "/handles", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "doc-1")

	w = do(t, h, http.MethodDelete, "/handles/doc-1", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestServer_Problems(t *testing.T) {
	h, _ := newTestHandler(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
		typ    string
	}{
		{"unknown handle", http.MethodGet, "/handles/missing", nil, http.StatusNotFound, "handle_not_found"},
		{"invoke unknown handle", http.MethodPost, "/handles/missing/events/submit", InvokeRequest{Identity: "alice"}, http.StatusNotFound, "handle_not_found"},
		{"missing identity", http.MethodPost, "/handles/missing/events/submit", InvokeRequest{}, http.StatusBadRequest, "validation_error"},
		{"hints without identity", http.MethodGet, "/handles/missing/hints", nil, http.StatusBadRequest, "validation_error"},
		{"create without workflow", http.MethodPost, "/handles", CreateHandleRequest{ID: "x"}, http.StatusBadRequest, "validation_error"},
		{"create with unknown chart", http.MethodPost, "/handles", CreateHandleRequest{ID: "x", Workflow: "nope"}, http.StatusNotFound, "chart_not_found"},
		{"unknown chart", http.MethodGet, "/charts/nope", nil, http.StatusNotFound, "chart_not_found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, h, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
			assert.Equal(t, problemMediaType, w.Header().Get("Content-Type"))
			body := decodeBody[map[string]any](t, w)
			assert.Equal(t, tt.typ, body["type"])
		})
	}
}

func TestServer_Conflict(t *testing.T) {
	h, _ := newTestHandler(t)
	req := CreateHandleRequest{ID: "doc-1", Workflow: "review"}
	require.Equal(t, http.StatusCreated, do(t, h, http.MethodPost, "/handles", req).Code)

	w := do(t, h, http.MethodPost, "/handles", req)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestServer_Charts(t *testing.T) {
	h, _ := newTestHandler(t)

	w := do(t, h, http.MethodGet, "/charts", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "review")

	w = do(t, h, http.MethodGet, "/charts/review", nil)
	require.Equal(t, http.StatusOK, w.Code)
	c := decodeBody[domain.Chart](t, w)
	assert.Equal(t, "review", c.Name)
	assert.Len(t, c.Transitions, 2)
}

func TestServer_HealthAndMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics(reg)
	eng, err := docflow.New("",
		docflow.WithChartSource(memory.NewSource(map[string]string{"review": reviewChart})),
		docflow.WithLifecycleHooks(metrics.Hooks()),
	)
	require.NoError(t, err)
	h := NewHandler(eng, WithMetrics(reg))

	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/health", nil).Code)
	w := do(t, h, http.MethodGet, "/info", nil)
	assert.Contains(t, w.Body.String(), strings.TrimSpace(docflow.Version))

	require.Equal(t, http.StatusCreated, do(t, h, http.MethodPost, "/handles", CreateHandleRequest{ID: "doc-1", Workflow: "review"}).Code)
	require.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/handles/doc-1/events/submit", InvokeRequest{Identity: "alice"}).Code)

	w = do(t, h, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `docflow_transitions_total{chart="review",event="submit",outcome="taken"} 1`)
}

func TestServer_PurgeZombies(t *testing.T) {
	h, _ := newTestHandler(t)
	require.Equal(t, http.StatusCreated, do(t, h, http.MethodPost, "/handles", CreateHandleRequest{ID: "doc-1", Workflow: "review"}).Code)

	w := do(t, h, http.MethodPost, "/handles/doc-1/requests/purge", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"purged":0}`, w.Body.String())
}

func TestSubscribeEvents_Handle(t *testing.T) {
	h, _ := newTestHandler(t)
	require.Equal(t, http.StatusCreated, do(t, h, http.MethodPost, "/handles", CreateHandleRequest{ID: "doc-1", Workflow: "review"}).Code)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	wSub := httptest.NewRecorder()
	reqSub := httptest.NewRequest(http.MethodGet, "/events?handle_id=doc-1", nil).WithContext(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		h.ServeHTTP(wSub, reqSub)
	}()

	time.Sleep(100 * time.Millisecond) // Wait for subscription to register

	w := do(t, h, http.MethodPost, "/handles/doc-1/events/submit", InvokeRequest{Identity: "alice"})
	require.Equal(t, http.StatusOK, w.Code)

	time.Sleep(50 * time.Millisecond)
	cancel()
	<-done

	output := wSub.Body.String()
	assert.Contains(t, output, "event: ping")
	assert.Contains(t, output, `"state":"review"`)
}

// movedEngine answers Handle with a snapshot another writer already moved.
type movedEngine struct {
	*docflow.Engine
}

func (e movedEngine) Handle(ctx context.Context, id string) (*domain.DocumentHandle, error) {
	h, err := e.Engine.Handle(ctx, id)
	if err != nil {
		return nil, err
	}
	h.State = "review"
	return h, nil
}

func TestSubscribeEvents_DiffAgainstInvokedHandle(t *testing.T) {
	_, eng := newTestHandler(t)
	h := NewHandler(movedEngine{eng})
	require.Equal(t, http.StatusCreated, do(t, h, http.MethodPost, "/handles", CreateHandleRequest{ID: "doc-1", Workflow: "review"}).Code)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	wSub := httptest.NewRecorder()
	reqSub := httptest.NewRequest(http.MethodGet, "/events?handle_id=doc-1", nil).WithContext(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		h.ServeHTTP(wSub, reqSub)
	}()

	time.Sleep(100 * time.Millisecond)

	w := do(t, h, http.MethodPost, "/handles/doc-1/events/submit", InvokeRequest{Identity: "alice"})
	require.Equal(t, http.StatusOK, w.Code)

	time.Sleep(50 * time.Millisecond)
	cancel()
	<-done

	assert.Contains(t, wSub.Body.String(), `"state":"review"`, "the diff starts from the handle the invocation loaded")
}

func TestSubscribeEvents_WatchUnsupported(t *testing.T) {
	eng, err := docflow.New("", docflow.WithChartSource(staticSource{}))
	require.NoError(t, err)
	h := NewHandler(eng)

	w := do(t, h, http.MethodGet, "/events", nil)
	assert.Equal(t, http.StatusNotImplemented, w.Code)
}

type staticSource struct{}

func (staticSource) GetChart(context.Context, string) ([]byte, error) { return nil, domain.ErrChartNotFound }
func (staticSource) ListCharts(context.Context) ([]string, error)    { return nil, nil }
