package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"

	audithttp "github.com/openbank-platform/openbank/internal/audit/http"
	"github.com/openbank-platform/openbank/internal/auth"
	"github.com/openbank-platform/openbank/internal/observability"
	"github.com/openbank-platform/openbank/internal/ratelimit"
	"github.com/openbank-platform/openbank/internal/rbac"
	"github.com/openbank-platform/openbank/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger       *slog.Logger
	Config       *Config
	AuthHandler  *auth.Handler
	RBACHandler  *rbac.Handler
	AuditHandler *audithttp.Handler
	JobHandler   *jobs.Handler
	RateLimiter  *ratelimit.Middleware
	RBAC         *rbac.Middleware
	Pool         *pgxpool.Pool
	Metrics      *observability.Metrics
}

// NewRouter constructs the chi.Router with openbank defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:      params.Logger,
		Config:      params.Config,
		RateLimiter: params.RateLimiter,
		Metrics:     params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if params.Pool != nil {
		r.Get("/readyz", func(w http.ResponseWriter, req *http.Request) {
			if err := params.Pool.Ping(req.Context()); err != nil {
				params.Logger.Error("readiness ping", slog.Any("error", err))
				http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"status":"ready"}`))
		})
	}
	if params.Metrics != nil {
		r.Handle("/metrics", params.Metrics.Handler())
	}

	params.AuthHandler.MountRoutes(r)

	r.Group(func(r chi.Router) {
		r.Use(params.RBAC.Require("developers", "update"))
		params.AuthHandler.MountAdminRoutes(r)
	})
	r.Group(func(r chi.Router) {
		r.Use(params.RBAC.Require("system", "manage"))
		params.RBACHandler.MountRoutes(r)
	})
	if params.AuditHandler != nil {
		r.Group(func(r chi.Router) {
			r.Use(params.RBAC.Require("audit", "read"))
			params.AuditHandler.MountRoutes(r)
		})
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}

	return r
}
