// Package handler serves readiness/liveness for Kubernetes, load balancers,
// and CI.
package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// Pinger reports backend reachability (e.g. *sql.DB, a cache ping wrapper).
type Pinger interface {
	PingContext(ctx context.Context) error
}

// HTTP answers GET /healthz. db and cache may be nil; a nil check is skipped
// rather than failed, matching partial deployments (cache-only mode).
type HTTP struct {
	db    Pinger
	cache Pinger
}

// NewHTTP returns the health handler.
func NewHTTP(db, cache Pinger) *HTTP {
	return &HTTP{db: db, cache: cache}
}

// Check pings every configured backend with a short deadline and reports
// per-backend status. Any failure makes the whole check a 503.
func (h *HTTP) Check(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	overall := "ok"
	status := http.StatusOK
	checks := map[string]string{}
	for name, p := range map[string]Pinger{"database": h.db, "cache": h.cache} {
		if p == nil {
			continue
		}
		if err := p.PingContext(ctx); err != nil {
			checks[name] = "unreachable"
			overall = "degraded"
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status": overall,
		"checks": checks,
	})
}
