package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	audithttp "github.com/dealerhub/dealerhub/internal/audit/http"
	"github.com/dealerhub/dealerhub/internal/auth"
	"github.com/dealerhub/dealerhub/internal/observability"
	"github.com/dealerhub/dealerhub/internal/rbac"
	"github.com/dealerhub/dealerhub/internal/roles"
	"github.com/dealerhub/dealerhub/internal/shared"
	"github.com/dealerhub/dealerhub/internal/users"
	"github.com/dealerhub/dealerhub/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	SessionManager *shared.SessionManager
	CSRFManager    *shared.CSRFManager
	Guard          rbac.Guard
	AuthHandler    *auth.Handler
	AuthzHandler   *rbac.Handler
	RolesHandler   *roles.Handler
	UsersHandler   *users.Handler
	AuditHandler   *audithttp.Handler
	JobHandler     *jobs.Handler
	Metrics        *observability.Metrics
}

// NewRouter constructs the chi.Router with DealerHub defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.Group(func(r chi.Router) {
		for _, mw := range MiddlewareStack(MiddlewareConfig{
			Logger:         params.Logger,
			Config:         params.Config,
			SessionManager: params.SessionManager,
			CSRFManager:    params.CSRFManager,
			Guard:          params.Guard,
			Metrics:        params.Metrics,
		}) {
			r.Use(mw)
		}
		r.Use(chimw.Logger)

		r.Route("/auth", params.AuthHandler.MountRoutes)

		mountSections(r, params.Guard, params.Logger)

		r.Route("/api", func(r chi.Router) {
			if params.AuthzHandler != nil {
				r.Route("/me", params.AuthzHandler.MountMe)
				r.Route("/permissions", params.AuthzHandler.MountPermissions)
			}
			if params.RolesHandler != nil {
				r.Route("/roles", params.RolesHandler.MountRoutes)
			}
			if params.UsersHandler != nil {
				r.Route("/users", params.UsersHandler.MountRoutes)
			}
			if params.AuditHandler != nil {
				r.Route("/audit", params.AuditHandler.MountRoutes)
			}
			if params.JobHandler != nil {
				r.Route("/jobs", func(r chi.Router) {
					r.Use(params.Guard.ForAPI().Require(rbac.ResourceSettings, rbac.ActionRead))
					params.JobHandler.MountRoutes(r)
				})
			}
		})
	})

	return r
}
