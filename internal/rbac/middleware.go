package rbac

import (
	"log/slog"
	"net/http"

	"github.com/openbank-platform/openbank/internal/audit"
	"github.com/openbank-platform/openbank/internal/observability"
	"github.com/openbank-platform/openbank/internal/platform/httpx"
	"github.com/openbank-platform/openbank/internal/shared"
)

// Middleware wires authorization checks into HTTP handlers.
type Middleware struct {
	Engine   *Engine
	Logger   *slog.Logger
	Recorder *audit.Recorder
	Metrics  *observability.Metrics
}

// Require ensures the current principal holds resource:action, with the
// request context derived from the authenticated principal and client IP.
// Additional facts (resource owner, environment) come from the optional
// context builder.
func (m Middleware) Require(resource, action string, build ...func(*http.Request) []ContextOption) func(http.Handler) http.Handler {
	required := NewPermission(resource, action)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal := shared.PrincipalFromContext(r.Context())
			if principal == nil {
				httpx.RespondError(w, httpx.ErrUnauthorized)
				return
			}
			ip := shared.ClientIP(r)
			opts := []ContextOption{}
			for _, b := range build {
				opts = append(opts, b(r)...)
			}
			pctx := NewContext(principal.ID, ip, opts...)
			if err := m.Engine.Authorize(r.Context(), principal.ID, required, pctx); err != nil {
				if m.Logger != nil {
					m.Logger.Warn("authorization denied",
						slog.String("principal", principal.ID.String()),
						slog.String("permission", required.String()),
						slog.String("ip", ip))
				}
				if m.Metrics != nil {
					m.Metrics.AuthzDenied(required.Resource, required.Action)
				}
				if m.Recorder != nil {
					m.Recorder.AccessDenied(r.Context(), &principal.ID, required.String(), err.Error(), ip)
				}
				httpx.RespondError(w, httpx.ErrForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
