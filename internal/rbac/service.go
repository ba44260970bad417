package rbac

import (
	"context"
	"log/slog"
)

// PermissionRepository persists the permission catalog.
type PermissionRepository interface {
	ListPermissions(ctx context.Context) ([]Permission, error)
	EnsurePermission(ctx context.Context, p Permission) (Permission, error)
}

// Service exposes catalog administration.
type Service struct {
	repo    PermissionRepository
	catalog *Catalog
	logger  *slog.Logger
}

// NewService constructs a Service.
func NewService(repo PermissionRepository, catalog *Catalog, logger *slog.Logger) *Service {
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, catalog: catalog, logger: logger}
}

// Catalog returns the in-process catalog.
func (s *Service) Catalog() *Catalog {
	return s.catalog
}

// ListPermissions returns the persisted permissions.
func (s *Service) ListPermissions(ctx context.Context) ([]Permission, error) {
	return s.repo.ListPermissions(ctx)
}

// SyncCatalog upserts every catalog permission and returns how many were written.
func (s *Service) SyncCatalog(ctx context.Context) (int, error) {
	n := 0
	for _, p := range s.catalog.ListAll() {
		if _, err := s.repo.EnsurePermission(ctx, p); err != nil {
			return n, err
		}
		n++
	}
	s.logger.Info("permission catalog synced", slog.Int("count", n))
	return n, nil
}
