package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dealerhub/dealerhub/internal/platform/httpx"
	"github.com/dealerhub/dealerhub/internal/rbac"
)

// sectionView is the page payload of a back office section: what the
// caller may do there and where they can navigate next.
type sectionView struct {
	Title      string         `json:"title"`
	Resource   string         `json:"resource"`
	CanWrite   bool           `json:"can_write"`
	CanDelete  bool           `json:"can_delete"`
	Navigation []rbac.NavItem `json:"navigation"`
}

// mountSections registers one page route per sidebar entry, each gated by
// read access on its resource. Pages redirect instead of answering 403.
func mountSections(r chi.Router, guard rbac.Guard, logger *slog.Logger) {
	guard.API = false
	for _, item := range rbac.DefaultNavigation() {
		item := item
		r.With(guard.Require(item.Resource, rbac.ActionRead)).Get(item.Path, func(w http.ResponseWriter, r *http.Request) {
			auth := rbac.AuthorizationFromContext(r.Context())
			if logger != nil {
				logger.Debug("render section", slog.String("path", item.Path))
			}
			httpx.JSON(w, http.StatusOK, sectionView{
				Title:      item.Label,
				Resource:   item.Resource,
				CanWrite:   auth.HasPermission(item.Resource, rbac.ActionWrite),
				CanDelete:  auth.HasPermission(item.Resource, rbac.ActionDelete),
				Navigation: rbac.VisibleNavigation(auth, rbac.DefaultNavigation()),
			})
		})
	}
}
