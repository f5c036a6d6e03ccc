package middleware

import (
	"log"
	"net/http"
	"strconv"
	"time"

	auditdomain "authcore/internal/audit/domain"
	"authcore/internal/ratelimit"
	"authcore/internal/security"
)

// RateLimit guards one action with the sliding-window limiter. Account
// extracts the per-account identifier from the request when account-scoped
// rules apply; nil (or an empty result) limits by IP only.
type RateLimit struct {
	Limiter  *ratelimit.Limiter
	Rules    []ratelimit.Rule
	Action   string
	Account  func(*http.Request) string
	Audit    Sink
	IPSecret string
}

// Middleware wraps next with the rate-limit check. Rejection answers 429
// with a Retry-After header in whole seconds; a limiter backend failure is
// also a rejection (fail-closed).
func (rl RateLimit) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		client := ClientContext(r)
		var account string
		if rl.Account != nil {
			account = rl.Account(r)
		}
		d, err := rl.Limiter.CheckAll(r.Context(), rl.Rules, client.IP, account, rl.Action)
		if err != nil {
			log.Printf("middleware: rate limit check failed for %s: %v", rl.Action, err)
		}
		if !d.Allowed {
			if rl.Audit != nil {
				rl.Audit.Append(r.Context(), &auditdomain.Event{
					Kind:                  auditdomain.KindRateLimited,
					ClientFingerprintHash: security.FingerprintIP(client.IP, rl.IPSecret),
					ClientAgent:           client.UserAgent,
					Metadata:              rl.Action,
				})
			}
			w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(d.RetryAfter)))
			writeError(w, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// retryAfterSeconds rounds up so the client never retries inside the window.
func retryAfterSeconds(d time.Duration) int {
	s := int((d + time.Second - 1) / time.Second)
	if s < 1 {
		s = 1
	}
	return s
}
