// Package healthprobe serves liveness and readiness for the scanner.
package healthprobe

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
)

// HealthChecker provides health and readiness checks. The process becomes ready once the
// first scan cycle completes.
type HealthChecker struct {
	startTime time.Time
	ready     atomic.Bool
	lastCycle atomic.Int64 // unix nanos
	cycles    atomic.Int64
	now       func() time.Time
}

// New creates a new HealthChecker.
func New() *HealthChecker {
	return &HealthChecker{
		startTime: time.Now(),
		now:       time.Now,
	}
}

// SetReady marks the application as ready to serve traffic.
func (h *HealthChecker) SetReady(ready bool) {
	h.ready.Store(ready)
}

// MarkCycle records a completed scan cycle and marks the process ready.
func (h *HealthChecker) MarkCycle(at time.Time) {
	h.lastCycle.Store(at.UnixNano())
	h.cycles.Add(1)
	h.ready.Store(true)
}

// Cycles returns the number of completed scan cycles.
func (h *HealthChecker) Cycles() int64 {
	return h.cycles.Load()
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status    string     `json:"status"`
	Uptime    string     `json:"uptime"`
	Cycles    int64      `json:"cycles"`
	LastCycle *time.Time `json:"last_cycle,omitempty"`
	Message   string     `json:"message,omitempty"`
}

func (h *HealthChecker) response(status string) HealthResponse {
	resp := HealthResponse{
		Status: status,
		Uptime: h.now().Sub(h.startTime).Round(time.Second).String(),
		Cycles: h.cycles.Load(),
	}
	if ns := h.lastCycle.Load(); ns != 0 {
		t := time.Unix(0, ns).UTC()
		resp.LastCycle = &t
	}
	return resp
}

// Health returns an HTTP handler for liveness checks.
// Always returns 200 OK if the application is running.
func (h *HealthChecker) Health() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, h.response("healthy"))
	}
}

// Ready returns an HTTP handler for readiness checks.
// Returns 200 OK if ready, 503 Service Unavailable if not.
func (h *HealthChecker) Ready() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		if !h.ready.Load() {
			resp := h.response("not_ready")
			resp.Message = "waiting for the first scan cycle"
			writeJSON(w, http.StatusServiceUnavailable, resp)
			return
		}
		writeJSON(w, http.StatusOK, h.response("ready"))
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
