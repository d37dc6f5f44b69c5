package handler

import (
	"context"
	"net/http"
	"time"
)

// CycleCounter reports the last cycle the coordinator started.
type CycleCounter interface {
	Cycle() int64
}

// Probe checks one backing service.
type Probe func(ctx context.Context) error

type namedCheck struct {
	name  string
	check Probe
}

// HealthHandler serves the health-check endpoint.
type HealthHandler struct {
	symbol    string
	cycles    CycleCounter
	startedAt time.Time
	checks    []namedCheck
}

// NewHealthHandler creates a HealthHandler. cycles may be nil.
func NewHealthHandler(symbol string, cycles CycleCounter, startedAt time.Time) *HealthHandler {
	return &HealthHandler{symbol: symbol, cycles: cycles, startedAt: startedAt}
}

// WithCheck adds a dependency probe reported under name.
func (h *HealthHandler) WithCheck(name string, check Probe) *HealthHandler {
	h.checks = append(h.checks, namedCheck{name: name, check: check})
	return h
}

// HealthCheck responds with liveness, the router's progress and the state of
// each probed dependency. Any failing probe turns the status to "degraded"
// with 503.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	status, code := "ok", http.StatusOK
	body := map[string]any{
		"symbol":         h.symbol,
		"uptime_seconds": int64(time.Since(h.startedAt).Seconds()),
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
	}
	if h.cycles != nil {
		body["cycle"] = h.cycles.Cycle()
	}
	if len(h.checks) > 0 {
		checks := make(map[string]string, len(h.checks))
		for _, c := range h.checks {
			if err := c.check(r.Context()); err != nil {
				checks[c.name] = err.Error()
				status, code = "degraded", http.StatusServiceUnavailable
				continue
			}
			checks[c.name] = "ok"
		}
		body["checks"] = checks
	}
	body["status"] = status
	writeJSON(w, code, body)
}
