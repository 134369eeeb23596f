package healthprobe

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, rec *httptest.ResponseRecorder) HealthResponse {
	t.Helper()
	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestHealth_AlwaysOK(t *testing.T) {
	t.Parallel()

	h := New()
	rec := httptest.NewRecorder()
	h.Health()(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "healthy", decode(t, rec).Status)
}

func TestReady_AfterFirstCycle(t *testing.T) {
	t.Parallel()

	h := New()

	rec := httptest.NewRecorder()
	h.Ready()(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	resp := decode(t, rec)
	assert.Equal(t, "not_ready", resp.Status)
	assert.Nil(t, resp.LastCycle)

	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	h.MarkCycle(at)
	h.MarkCycle(at.Add(time.Minute))

	rec = httptest.NewRecorder()
	h.Ready()(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	resp = decode(t, rec)
	assert.Equal(t, "ready", resp.Status)
	assert.Equal(t, int64(2), resp.Cycles)
	require.NotNil(t, resp.LastCycle)
	assert.True(t, resp.LastCycle.Equal(at.Add(time.Minute)))
	assert.Equal(t, int64(2), h.Cycles())
}

func TestSetReady(t *testing.T) {
	t.Parallel()

	h := New()
	h.MarkCycle(time.Now())
	h.SetReady(false)

	rec := httptest.NewRecorder()
	h.Ready()(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
