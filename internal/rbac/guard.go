package rbac

import (
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/dealerhub/dealerhub/internal/platform/httpx"
	"github.com/dealerhub/dealerhub/internal/shared"
)

// Decision outcomes reported to Recorder.
const (
	DecisionAllowed         = "allowed"
	DecisionDenied          = "denied"
	DecisionUnauthenticated = "unauthenticated"
	DecisionPending         = "pending"
)

// Guard gates routes through the resolver. Pages redirect; API routes
// answer with problem JSON.
type Guard struct {
	Registry     *Registry
	Catalog      *Catalog
	Logger       *slog.Logger
	Recorder     Recorder
	SignInPath   string
	FallbackPath string
	// Wait bounds how long a request waits for a loading state. Running out
	// only produces the placeholder response, never access.
	Wait time.Duration
	API  bool
}

// ForAPI returns a copy answering with status codes instead of redirects.
func (g Guard) ForAPI() Guard {
	g.API = true
	return g
}

// Hydrate attaches the session authorization state to the request,
// starting a load when the session identity changed.
func (g Guard) Hydrate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := shared.SessionFromContext(r.Context())
		if sess == nil || g.Registry == nil {
			next.ServeHTTP(w, r)
			return
		}
		st := g.Registry.Ensure(r.Context(), sess.ID, sess.Identity())
		next.ServeHTTP(w, r.WithContext(ContextWithState(r.Context(), st)))
	})
}

// Require allows the request only when the resolver grants (resource, action).
func (g Guard) Require(resource string, action Action) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			g.check(w, r, resource, action, next)
		})
	}
}

// RequirePermission gates on a catalog permission name. Names missing from
// the catalog deny every request.
func (g Guard) RequirePermission(name string) func(http.Handler) http.Handler {
	catalog := g.Catalog
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	perm, err := catalog.LookupByName(name)
	return func(next http.Handler) http.Handler {
		if err != nil {
			g.logger().Error("rbac unknown permission guard", slog.String("permission", name))
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				g.record(DecisionDenied)
				g.deny(w, r)
			})
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			g.check(w, r, perm.Resource, perm.Action, next)
		})
	}
}

func (g Guard) check(w http.ResponseWriter, r *http.Request, resource string, action Action, next http.Handler) {
	st := StateFromContext(r.Context())
	if st == nil || shared.IdentityFromContext(r.Context()) == "" {
		g.record(DecisionUnauthenticated)
		g.unauthenticated(w, r)
		return
	}
	snap, ok := st.Wait(r.Context(), g.Wait)
	if !ok {
		g.record(DecisionPending)
		g.pending(w)
		return
	}
	if !snap.Authenticated() {
		g.record(DecisionUnauthenticated)
		g.unauthenticated(w, r)
		return
	}
	if !snap.HasPermission(resource, action) {
		g.record(DecisionDenied)
		g.logger().Debug("rbac denied",
			slog.String("identity", snap.Account.AuthIdentity),
			slog.String("permission", PermissionName(resource, action)),
			slog.String("path", r.URL.Path))
		g.deny(w, r)
		return
	}
	g.record(DecisionAllowed)
	next.ServeHTTP(w, r)
}

func (g Guard) unauthenticated(w http.ResponseWriter, r *http.Request) {
	if g.API {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "sign in required")
		return
	}
	target := g.SignInPath
	if target == "" {
		target = "/auth/sign-in"
	}
	http.Redirect(w, r, target+"?next="+url.QueryEscape(r.URL.RequestURI()), http.StatusSeeOther)
}

func (g Guard) deny(w http.ResponseWriter, r *http.Request) {
	if g.API {
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "")
		return
	}
	target := g.FallbackPath
	if target == "" {
		target = "/"
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

func (g Guard) pending(w http.ResponseWriter) {
	w.Header().Set("Retry-After", strconv.Itoa(1))
	w.Header().Set("Cache-Control", "no-store")
	httpx.JSON(w, http.StatusServiceUnavailable, map[string]any{"is_loading": true})
}

func (g Guard) record(outcome string) {
	if g.Recorder != nil {
		g.Recorder.AuthzDecision(outcome)
	}
}

func (g Guard) logger() *slog.Logger {
	if g.Logger != nil {
		return g.Logger
	}
	return slog.Default()
}
