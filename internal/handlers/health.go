package handlers

import (
	"context"
	"net/http"
	"time"
)

// ReadinessChecker verifies that a backing dependency answers requests.
type ReadinessChecker interface {
	CheckReadiness(ctx context.Context) error
}

// HealthHandlers serves the liveness and readiness probes.
type HealthHandlers struct {
	started  time.Time
	clock    func() time.Time
	checkers []ReadinessChecker
}

// HealthOption customises the health handlers.
type HealthOption func(*HealthHandlers)

// WithHealthClock overrides the clock used for uptime reporting.
func WithHealthClock(clock func() time.Time) HealthOption {
	return func(h *HealthHandlers) {
		if clock != nil {
			h.clock = clock
		}
	}
}

// WithReadinessCheckers registers backend checks consulted by /readyz.
func WithReadinessCheckers(checkers ...ReadinessChecker) HealthOption {
	return func(h *HealthHandlers) {
		for _, c := range checkers {
			if c != nil {
				h.checkers = append(h.checkers, c)
			}
		}
	}
}

// NewHealthHandlers constructs the health endpoints.
func NewHealthHandlers(opts ...HealthOption) *HealthHandlers {
	h := &HealthHandlers{clock: time.Now}
	for _, opt := range opts {
		opt(h)
	}
	h.started = h.clock().UTC()
	return h
}

// Healthz reports process liveness.
func (h *HealthHandlers) Healthz(w http.ResponseWriter, r *http.Request) {
	now := h.clock().UTC()
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"uptime":    now.Sub(h.started).String(),
		"timestamp": now.Format(time.RFC3339),
	})
}

// Readyz reports whether the backing dependencies are reachable.
func (h *HealthHandlers) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	for _, checker := range h.checkers {
		if err := checker.CheckReadiness(ctx); err != nil {
			writeJSONResponse(w, http.StatusServiceUnavailable, map[string]any{
				"status": "unavailable",
				"reason": err.Error(),
			})
			return
		}
	}

	writeJSONResponse(w, http.StatusOK, map[string]any{"status": "ready"})
}
