package ratelimit

import (
	"log/slog"
	"math"
	"net/http"
	"strconv"

	"github.com/openbank-platform/openbank/internal/audit"
	"github.com/openbank-platform/openbank/internal/observability"
	"github.com/openbank-platform/openbank/internal/shared"
)

// Middleware rejects over-limit requests with 429 and a Retry-After header
// before they reach any handler, so no downstream work or audit success
// event happens for a throttled request.
type Middleware struct {
	Limiter  *Limiter
	Logger   *slog.Logger
	Recorder *audit.Recorder
	Metrics  *observability.Metrics
}

// Handler wraps next with the limiter keyed by client IP.
func (m Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := shared.ClientIP(r)
		err := m.Limiter.Check(ip)
		if err == nil {
			next.ServeHTTP(w, r)
			return
		}

		kind := "blocked"
		switch e := err.(type) {
		case *ExceededLimitError:
			kind = "window"
			if m.Recorder != nil {
				m.Recorder.RateLimitExceeded(r.Context(), ip, e.RequestsMade)
			}
		case *BurstExceededError:
			kind = "burst"
		}
		if m.Logger != nil {
			m.Logger.Warn("request throttled", slog.String("ip", ip), slog.String("kind", kind), slog.Any("error", err))
		}
		if m.Metrics != nil {
			m.Metrics.RateLimitRejected(kind)
		}
		if retry, ok := RetryAfter(err); ok {
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(retry.Seconds()))))
		}
		http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
	})
}
