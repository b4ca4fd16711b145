package httpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evalmesh/pipeline/internal/domain"
)

func withURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

type fakeSubmitter struct {
	requestID string
	err       error
}

func (f *fakeSubmitter) Submit(_ domain.Context, _ domain.GatewayRequest) (string, error) {
	return f.requestID, f.err
}

type fakeStates struct {
	mu   sync.Mutex
	recs map[string]domain.ProcessedRequest
}

func (f *fakeStates) Create(_ domain.Context, id string, data domain.ProcessedRequest) (domain.ProcessedRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recs[id] = data
	return data, nil
}
func (f *fakeStates) Get(_ domain.Context, id string) (domain.ProcessedRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.recs[id]
	if !ok {
		return domain.ProcessedRequest{}, domain.ErrNotFound
	}
	return rec, nil
}
func (f *fakeStates) Update(_ domain.Context, id string, mutate func(*domain.ProcessedRequest)) (domain.ProcessedRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec := f.recs[id]
	mutate(&rec)
	f.recs[id] = rec
	return rec, nil
}
func (f *fakeStates) Delete(_ domain.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.recs[id]
	delete(f.recs, id)
	return ok, nil
}
func (f *fakeStates) IsHealthy(_ domain.Context) bool { return true }

func TestSubmitHandler_OK(t *testing.T) {
	sub := &fakeSubmitter{requestID: "req-123"}
	srv := NewServer(sub, &fakeStates{recs: map[string]domain.ProcessedRequest{}}, nil)

	body := `{"prompt":"hi","target_model":{"name":"GPT-4o"},"judge_model":{"name":"gpt-4o","version":"1"}}`
	req := httptest.NewRequest(http.MethodPost, "/submit", strings.NewReader(body))
	w := httptest.NewRecorder()

	srv.SubmitHandler()(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp submitResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "req-123", resp.RequestID)
	assert.Equal(t, "Accepted", resp.Status)
}

func TestSubmitHandler_ValidationError(t *testing.T) {
	sub := &fakeSubmitter{requestID: "req-123"}
	srv := NewServer(sub, &fakeStates{recs: map[string]domain.ProcessedRequest{}}, nil)

	body := `{"prompt":""}`
	req := httptest.NewRequest(http.MethodPost, "/submit", strings.NewReader(body))
	w := httptest.NewRecorder()

	srv.SubmitHandler()(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMetadataHandler_NotFound(t *testing.T) {
	srv := NewServer(&fakeSubmitter{}, &fakeStates{recs: map[string]domain.ProcessedRequest{}}, nil)

	req := httptest.NewRequest(http.MethodGet, "/metadata/unknown", nil)
	w := httptest.NewRecorder()

	// chi.URLParam requires a route context; set directly for unit test.
	srv.MetadataHandler()(w, withURLParam(req, "request_id", "unknown"))

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHealthHandler_Healthy(t *testing.T) {
	srv := NewServer(&fakeSubmitter{}, &fakeStates{recs: map[string]domain.ProcessedRequest{}}, func(context.Context) bool { return true })

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()

	srv.HealthHandler()(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHealthHandler_Unhealthy(t *testing.T) {
	srv := NewServer(&fakeSubmitter{}, &fakeStates{recs: map[string]domain.ProcessedRequest{}}, func(context.Context) bool { return false })

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()

	srv.HealthHandler()(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
