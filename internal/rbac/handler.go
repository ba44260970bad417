package rbac

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dealerhub/dealerhub/internal/platform/httpx"
)

// Handler serves the authorization accessor and the permission catalog.
type Handler struct {
	logger  *slog.Logger
	service *Service
	guard   Guard
	sync    SyncTrigger
}

// SyncTrigger queues a catalog sync in the background.
type SyncTrigger interface {
	EnqueueCatalogSync(ctx context.Context, reason string) error
}

// WithSyncTrigger makes POST /sync enqueue instead of syncing inline.
func (h *Handler) WithSyncTrigger(t SyncTrigger) *Handler {
	h.sync = t
	return h
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, guard Guard) *Handler {
	return &Handler{logger: logger, service: service, guard: guard.ForAPI()}
}

// MountMe registers the current-user accessor routes.
func (h *Handler) MountMe(r chi.Router) {
	r.Get("/authorization", h.authorization)
	r.Get("/authorization/check", h.check)
	r.Get("/navigation", h.navigation)
}

// MountPermissions registers catalog routes.
func (h *Handler) MountPermissions(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Require(ResourcePermissions, ActionRead))
		r.Get("/", h.listCatalog)
		r.Get("/stored", h.listStored)
	})
	r.With(h.guard.Require(ResourceSettings, ActionWrite)).Post("/sync", h.syncCatalog)
}

type authorizationResponse struct {
	IsLoading     bool     `json:"is_loading"`
	Authenticated bool     `json:"authenticated"`
	Role          string   `json:"role,omitempty"`
	Degraded      bool     `json:"degraded"`
	Permissions   []string `json:"permissions"`
}

func (h *Handler) authorization(w http.ResponseWriter, r *http.Request) {
	auth := h.wait(r)
	resp := authorizationResponse{IsLoading: auth.IsLoading, Permissions: []string{}}
	if !auth.IsLoading {
		resp.Authenticated = auth.Snapshot.Authenticated()
		resp.Role = auth.Snapshot.Account.RoleName()
		resp.Degraded = auth.Snapshot.Degraded
		if names := GrantedNames(auth.Snapshot.Account, h.service.Catalog()); names != nil {
			resp.Permissions = names
		}
	}
	w.Header().Set("Cache-Control", "no-store")
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) check(w http.ResponseWriter, r *http.Request) {
	action, ok := ParseAction(r.URL.Query().Get("action"))
	if !ok {
		httpx.ValidationProblem(w, map[string]string{"action": "must be read, write or delete"})
		return
	}
	resource := r.URL.Query().Get("resource")
	auth := h.wait(r)
	w.Header().Set("Cache-Control", "no-store")
	httpx.JSON(w, http.StatusOK, map[string]any{
		"is_loading": auth.IsLoading,
		"resource":   resource,
		"action":     action,
		"allowed":    auth.HasPermission(resource, action),
	})
}

func (h *Handler) navigation(w http.ResponseWriter, r *http.Request) {
	auth := h.wait(r)
	httpx.JSON(w, http.StatusOK, map[string]any{
		"is_loading": auth.IsLoading,
		"items":      VisibleNavigation(auth, DefaultNavigation()),
	})
}

func (h *Handler) listCatalog(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, map[string]any{"categories": h.service.Catalog().Grouped()})
}

func (h *Handler) listStored(w http.ResponseWriter, r *http.Request) {
	perms, err := h.service.ListPermissions(r.Context())
	if err != nil {
		h.logger.Error("list permissions", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"permissions": perms})
}

func (h *Handler) syncCatalog(w http.ResponseWriter, r *http.Request) {
	if h.sync != nil {
		if err := h.sync.EnqueueCatalogSync(r.Context(), "admin"); err != nil {
			h.logger.Error("enqueue catalog sync", slog.Any("error", err))
			httpx.RespondError(w, err)
			return
		}
		httpx.JSON(w, http.StatusAccepted, map[string]any{"queued": true})
		return
	}
	n, err := h.service.SyncCatalog(r.Context())
	if err != nil {
		h.logger.Error("sync catalog", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"synced": n})
}

// wait gives a loading state the guard's grace period before answering.
func (h *Handler) wait(r *http.Request) Authorization {
	st := StateFromContext(r.Context())
	if st == nil {
		return Authorization{}
	}
	snap, ok := st.Wait(r.Context(), h.guard.Wait)
	if !ok {
		return Authorization{IsLoading: true}
	}
	return Authorization{Snapshot: snap}
}
