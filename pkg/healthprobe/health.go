package healthprobe

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
)

// HealthChecker provides health and readiness checks.
type HealthChecker struct {
	startTime  time.Time
	ready      atomic.Bool
	lastSweep  atomic.Int64 // unix nanos of the last completed maintenance sweep
	staleAfter time.Duration
	now        func() time.Time
}

// New creates a new HealthChecker. A positive staleAfter makes readiness fail
// when no maintenance sweep has completed within that window.
func New(staleAfter time.Duration) *HealthChecker {
	return &HealthChecker{
		startTime:  time.Now(),
		staleAfter: staleAfter,
		now:        time.Now,
	}
}

// SetReady marks the application as ready to serve traffic.
func (h *HealthChecker) SetReady(ready bool) {
	h.ready.Store(ready)
}

// MarkSweep records a completed maintenance sweep.
func (h *HealthChecker) MarkSweep(at time.Time) {
	h.lastSweep.Store(at.UnixNano())
}

// LastSweep returns the time of the last completed sweep, zero if none.
func (h *HealthChecker) LastSweep() time.Time {
	n := h.lastSweep.Load()
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status    string `json:"status"`
	Uptime    string `json:"uptime"`
	LastSweep string `json:"last_sweep,omitempty"`
	Message   string `json:"message,omitempty"`
}

// Health returns an HTTP handler for liveness checks.
// Always returns 200 OK if the application is running.
func (h *HealthChecker) Health() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, HealthResponse{
			Status: "healthy",
			Uptime: time.Since(h.startTime).String(),
		})
	}
}

// Ready returns an HTTP handler for readiness checks.
// Returns 503 while starting or when the maintenance sweep has stalled.
func (h *HealthChecker) Ready() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !h.ready.Load() {
			writeJSON(w, http.StatusServiceUnavailable, HealthResponse{
				Status:  "not_ready",
				Message: "application is starting",
			})
			return
		}

		resp := HealthResponse{
			Status: "ready",
			Uptime: time.Since(h.startTime).String(),
		}

		last := h.LastSweep()
		if !last.IsZero() {
			resp.LastSweep = last.UTC().Format(time.RFC3339)
		}

		if h.staleAfter > 0 {
			ref := last
			if ref.IsZero() {
				ref = h.startTime
			}
			if h.now().Sub(ref) > h.staleAfter {
				resp.Status = "not_ready"
				resp.Message = "maintenance sweep stalled"
				writeJSON(w, http.StatusServiceUnavailable, resp)
				return
			}
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
