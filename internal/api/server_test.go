package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/content-router/internal/apperr"
	"github.com/sells-group/content-router/internal/catalog"
	"github.com/sells-group/content-router/internal/engine"
	"github.com/sells-group/content-router/internal/model"
	"github.com/sells-group/content-router/internal/monitoring"
	"github.com/sells-group/content-router/internal/resilience"
	"github.com/sells-group/content-router/internal/store"
)

var wednesday = time.Date(2025, 6, 4, 10, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	snap, err := catalog.NewYAMLLoader("../catalog/testdata/catalog.yaml").Load(context.Background())
	require.NoError(t, err)

	e := engine.New(catalog.Static{Snap: snap}, store.NewMemory(), engine.Options{
		Scale:        catalog.Scale{Min: 0, Max: 10},
		HorizonWeeks: 4,
		Thresholds:   monitoring.DefaultThresholds(),
		Retry:        resilience.RetryConfig{MaxAttempts: 1},
		Now:          func() time.Time { return wednesday },
	})
	ts := httptest.NewServer(New(e).Handler([]string{"https://ops.example.com"}))
	t.Cleanup(ts.Close)
	return ts
}

func do(t *testing.T, ts *httptest.Server, method, path string, body any, actor string) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, ts.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if actor != "" {
		req.Header.Set(ActorHeader, actor)
	}
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() }) //nolint:errcheck
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

var breakingVideo = map[string]any{
	"resource":         "video",
	"estimated_length": "short",
	"time_sensitivity": "news_hook",
	"news_window":      "2025-06-01",
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	resp := do(t, ts, http.MethodGet, "/health", nil, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", decodeBody[map[string]string](t, resp)["status"])
}

func TestPreviewRoute(t *testing.T) {
	ts := newTestServer(t)
	resp := do(t, ts, http.MethodPost, "/v1/route/preview", breakingVideo, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	res := decodeBody[model.RoutingResult](t, resp)
	assert.True(t, res.Matched)
	assert.Equal(t, "quick-takes", res.PublicationSlug)
	assert.Equal(t, "rule-news-video", res.RuleID)
}

func TestLifecycleOverHTTP(t *testing.T) {
	ts := newTestServer(t)

	resp := do(t, ts, http.MethodPost, "/v1/ideas/idea-1/route", breakingVideo, "editor")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	routed := decodeBody[routeResponse](t, resp)
	assert.Equal(t, "quick-takes", routed.Routing.RoutedTo)
	id := routed.Routing.ID

	resp = do(t, ts, http.MethodPost, "/v1/routings/"+id+"/score", map[string]any{
		"scores": map[string]int{"qt-relevance": 10, "qt-originality": 5, "qt-timeliness": 0},
	}, "editor")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	scored := decodeBody[scoreResponse](t, resp)
	assert.Equal(t, model.TierA, scored.Tier)
	assert.Equal(t, model.StatusScored, scored.Routing.Status)

	resp = do(t, ts, http.MethodGet, "/v1/routings/"+id+"/recommendation", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	rec := decodeBody[model.SlotRecommendation](t, resp)
	assert.Equal(t, "qt-mon", rec.SlotID)

	resp = do(t, ts, http.MethodPost, "/v1/routings/"+id+"/schedule", scheduleRequest{Date: "2025-06-09", SlotID: "qt-mon"}, "editor")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, model.StatusScheduled, decodeBody[model.IdeaRouting](t, resp).Status)

	resp = do(t, ts, http.MethodPost, "/v1/routings/"+id+"/publish", nil, "editor")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = do(t, ts, http.MethodGet, "/v1/routings/"+id+"/history", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	history := decodeBody[[]model.StatusChange](t, resp)
	require.Len(t, history, 5)
	for _, c := range history {
		assert.Equal(t, "editor", c.ChangedBy)
	}

	resp = do(t, ts, http.MethodGet, "/v1/routings?status=published&publication=quick-takes", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list := decodeBody[[]model.IdeaRouting](t, resp)
	require.Len(t, list, 1)
	assert.Equal(t, id, list[0].ID)
}

func TestErrorStatusMapping(t *testing.T) {
	ts := newTestServer(t)

	resp := do(t, ts, http.MethodPost, "/v1/ideas/idea-1/route", breakingVideo, "editor")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	id := decodeBody[routeResponse](t, resp).Routing.ID

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		actor  string
		status int
		kind   string
	}{
		{"missing actor", http.MethodPost, "/v1/routings/" + id + "/kill", nil, "", http.StatusBadRequest, "validation"},
		{"unknown routing", http.MethodGet, "/v1/routings/nope", nil, "", http.StatusNotFound, "not_found"},
		{"bad date", http.MethodPost, "/v1/routings/" + id + "/schedule", scheduleRequest{Date: "06/09/2025"}, "editor", http.StatusBadRequest, "validation"},
		{"schedule before scoring", http.MethodPost, "/v1/routings/" + id + "/schedule", scheduleRequest{Date: "2025-06-09"}, "editor", http.StatusPreconditionFailed, "precondition"},
		{"override without score", http.MethodPost, "/v1/routings/" + id + "/override", map[string]any{"reason": "gut"}, "editor", http.StatusBadRequest, "validation"},
		{"unknown body field", http.MethodPost, "/v1/route/preview", map[string]any{"colour": "red"}, "", http.StatusBadRequest, "validation"},
		{"bad status filter", http.MethodGet, "/v1/routings?status=done", nil, "", http.StatusBadRequest, "validation"},
		{"bad limit", http.MethodGet, "/v1/routings?limit=-1", nil, "", http.StatusBadRequest, "validation"},
		{"second intake", http.MethodPost, "/v1/ideas/idea-1/intake", map[string]any{}, "editor", http.StatusConflict, "conflict"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := do(t, ts, tt.method, tt.path, tt.body, tt.actor)
			assert.Equal(t, tt.status, resp.StatusCode)
			body := decodeBody[errorBody](t, resp)
			assert.Equal(t, tt.kind, body.Kind)
			assert.NotEmpty(t, body.Error)
		})
	}
}

func TestScheduleConflict(t *testing.T) {
	ts := newTestServer(t)
	scores := map[string]any{"scores": map[string]int{"qt-relevance": 10, "qt-originality": 5, "qt-timeliness": 0}}

	var ids []string
	for _, idea := range []string{"idea-1", "idea-2"} {
		resp := do(t, ts, http.MethodPost, "/v1/ideas/"+idea+"/route", breakingVideo, "editor")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		id := decodeBody[routeResponse](t, resp).Routing.ID
		resp = do(t, ts, http.MethodPost, "/v1/routings/"+id+"/score", scores, "editor")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		ids = append(ids, id)
	}

	resp := do(t, ts, http.MethodPost, "/v1/routings/"+ids[0]+"/schedule", scheduleRequest{Date: "2025-06-09"}, "editor")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp = do(t, ts, http.MethodPost, "/v1/routings/"+ids[1]+"/schedule", scheduleRequest{Date: "2025-06-09"}, "editor")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestEvergreenAndDashboard(t *testing.T) {
	ts := newTestServer(t)

	resp := do(t, ts, http.MethodPost, "/v1/ideas/idea-1/route", map[string]any{"estimated_length": "long"}, "editor")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	id := decodeBody[routeResponse](t, resp).Routing.ID

	resp = do(t, ts, http.MethodPost, "/v1/routings/"+id+"/evergreen", nil, "editor")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.True(t, decodeBody[evergreenResponse](t, resp).Created)

	resp = do(t, ts, http.MethodPost, "/v1/routings/"+id+"/evergreen", nil, "editor")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.False(t, decodeBody[evergreenResponse](t, resp).Created)

	resp = do(t, ts, http.MethodGet, "/v1/evergreen/deep-dives", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decodeBody[[]model.EvergreenEntry](t, resp), 1)

	resp = do(t, ts, http.MethodGet, "/v1/dashboard", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	d := decodeBody[model.Dashboard](t, resp)
	assert.Equal(t, 1, d.EvergreenCounts["deep-dives"])
	assert.Equal(t, 1, d.CountsByStatus[model.StatusRouted])
	assert.NotNil(t, d.ScheduledThisWeek)

	resp = do(t, ts, http.MethodGet, "/v1/buffers", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decodeBody[[]model.BufferStatus](t, resp), 2)

	resp = do(t, ts, http.MethodGet, "/v1/alerts", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, decodeBody[[]model.RoutingAlert](t, resp))
}

func TestCORSPreflight(t *testing.T) {
	ts := newTestServer(t)
	req, err := http.NewRequest(http.MethodOptions, ts.URL+"/v1/dashboard", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://ops.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)

	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck
	assert.Equal(t, "https://ops.example.com", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, StatusFor(apperr.Validation("op", "x")))
	assert.Equal(t, http.StatusNotFound, StatusFor(eris.Wrap(apperr.NotFound("op", "x"), "wrapped")))
	assert.Equal(t, http.StatusPreconditionFailed, StatusFor(apperr.Precondition("op", "x")))
	assert.Equal(t, http.StatusConflict, StatusFor(apperr.Conflict("op", "x")))
	assert.Equal(t, http.StatusInternalServerError, StatusFor(apperr.Configuration("op", "x")))
	assert.Equal(t, http.StatusInternalServerError, StatusFor(errors.New("boom")))
}
