// Package health reports whether this server and its upstream responder can
// take conversations.
//
// [Handler] serves three endpoints:
//
//   - /healthz          liveness; always 200 OK.
//   - /readyz           readiness; 200 only when every [Checker] passes.
//   - /api/flight-check the same checks in the responder backend's
//     flight-check shape, so another solace can monitor this one.
//
// [Monitor] polls an upstream flight check on an interval and fans the
// resulting connection status out to live sessions.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/MrWong99/solace/internal/respond"
)

// checkTimeout is the maximum time a single readiness check may take before
// the context is cancelled.
const checkTimeout = 5 * time.Second

// Checker is a named health check function. The Check function should return
// nil when the dependency is healthy and a non-nil error describing the
// failure otherwise.
type Checker struct {
	// Name is a short label for this check (e.g. "storage", "upstream").
	// It appears as a key in the JSON response.
	Name string

	// Check probes the dependency. It must respect context cancellation.
	Check func(ctx context.Context) error
}

// result is the JSON response body for /healthz and /readyz.
type result struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Handler serves the health endpoints. It is safe for concurrent use; the
// checker list is fixed at construction time.
type Handler struct {
	checkers []Checker
	now      func() time.Time
}

// New creates a [Handler] that evaluates the given checkers on each request.
// The checkers are evaluated sequentially in the order provided.
func New(checkers ...Checker) *Handler {
	c := make([]Checker, len(checkers))
	copy(c, checkers)
	return &Handler{checkers: c, now: time.Now}
}

// Healthz is a liveness probe that always returns 200 OK.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, result{Status: "ok"})
}

// Readyz returns 200 only when every registered [Checker] passes.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	errs := h.run(r.Context())
	res := result{Status: "ok", Checks: make(map[string]string, len(errs))}
	status := http.StatusOK
	for name, err := range errs {
		if err != nil {
			res.Checks[name] = "fail: " + err.Error()
			res.Status = "fail"
			status = http.StatusServiceUnavailable
			continue
		}
		res.Checks[name] = "ok"
	}
	writeJSON(w, status, res)
}

// FlightCheck reports the checkers as backend services. It always answers
// 200; a failing checker makes the overall status degraded.
func (h *Handler) FlightCheck(w http.ResponseWriter, r *http.Request) {
	errs := h.run(r.Context())
	fc := respond.FlightCheck{
		Timestamp:     h.now().UTC().Format(time.RFC3339),
		Services:      make(map[string]respond.ServiceStatus, len(errs)),
		OverallStatus: respond.StatusReady,
		Message:       "All systems operational",
	}
	for name, err := range errs {
		if err != nil {
			fc.Services[name] = respond.ServiceStatus{Status: "error", Message: err.Error()}
			fc.OverallStatus = respond.StatusDegraded
			fc.Message = "Some services are not ready"
			continue
		}
		fc.Services[name] = respond.ServiceStatus{Status: respond.StatusReady}
	}
	writeJSON(w, http.StatusOK, fc)
}

// run evaluates every checker, each under its own [checkTimeout] deadline.
func (h *Handler) run(ctx context.Context) map[string]error {
	errs := make(map[string]error, len(h.checkers))
	for _, c := range h.checkers {
		cctx, cancel := context.WithTimeout(ctx, checkTimeout)
		errs[c.Name] = c.Check(cctx)
		cancel()
	}
	return errs
}

// Register adds the health routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
	mux.HandleFunc("GET /api/flight-check", h.FlightCheck)
}

// writeJSON encodes v as JSON and writes it with the given status code. On
// encoding failure it falls back to a plain-text 500 response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
	}
}
