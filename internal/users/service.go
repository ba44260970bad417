package users

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/dealerhub/dealerhub/internal/rbac"
	"github.com/dealerhub/dealerhub/internal/shared"
)

// RepositoryPort defines data access methods for users.
type RepositoryPort interface {
	ListUsers(ctx context.Context, filters ListFilters) ([]User, error)
	GetUser(ctx context.Context, id int64) (User, error)
	AssignRole(ctx context.Context, id int64, roleID *int64) error
	ReplaceOverrides(ctx context.Context, id int64, names []string) error
	DeleteUser(ctx context.Context, id int64) (string, error)
}

// Invalidator announces that stored authorization data changed.
type Invalidator interface {
	Bump(ctx context.Context) error
}

// Service handles user business logic.
type Service struct {
	repo        RepositoryPort
	catalog     *rbac.Catalog
	invalidator Invalidator
	audit       shared.AuditRecorder
	logger      *slog.Logger
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, catalog *rbac.Catalog, invalidator Invalidator, audit shared.AuditRecorder, logger *slog.Logger) *Service {
	if catalog == nil {
		catalog = rbac.DefaultCatalog()
	}
	if audit == nil {
		audit = shared.NopAudit{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, catalog: catalog, invalidator: invalidator, audit: audit, logger: logger}
}

// ListUsers returns users matching filters.
func (s *Service) ListUsers(ctx context.Context, filters ListFilters) ([]User, error) {
	return s.repo.ListUsers(ctx, filters)
}

// GetUser returns one user.
func (s *Service) GetUser(ctx context.Context, id int64) (User, error) {
	return s.repo.GetUser(ctx, id)
}

// AssignRole sets the role of a user; nil leaves the user without one.
func (s *Service) AssignRole(ctx context.Context, actor string, id int64, roleID *int64) (User, error) {
	if err := s.repo.AssignRole(ctx, id, roleID); err != nil {
		return User{}, err
	}
	meta := map[string]any{"role_id": nil}
	if roleID != nil {
		meta["role_id"] = *roleID
	}
	s.changed(ctx, actor, "user.role", id, meta)
	return s.repo.GetUser(ctx, id)
}

// SetOverrides replaces the direct permissions of a user with names. Every
// name must be in the catalog.
func (s *Service) SetOverrides(ctx context.Context, actor string, id int64, names []string) (User, error) {
	resolved, err := s.catalog.Resolve(names)
	if err != nil {
		return User{}, err
	}
	if err := s.repo.ReplaceOverrides(ctx, id, resolved); err != nil {
		return User{}, err
	}
	s.changed(ctx, actor, "user.overrides", id, map[string]any{"overrides": resolved})
	return s.repo.GetUser(ctx, id)
}

// DeleteUser removes a user together with overrides and credentials.
func (s *Service) DeleteUser(ctx context.Context, actor string, id int64) error {
	current, err := s.repo.GetUser(ctx, id)
	if err != nil {
		return err
	}
	if actor != "" && current.Identity == actor {
		return ErrSelfDelete
	}
	identity, err := s.repo.DeleteUser(ctx, id)
	if err != nil {
		return err
	}
	s.changed(ctx, actor, "user.delete", id, map[string]any{"identity": identity, "email": current.Email})
	return nil
}

func (s *Service) changed(ctx context.Context, actor, action string, id int64, meta map[string]any) {
	if s.invalidator != nil {
		if err := s.invalidator.Bump(ctx); err != nil {
			s.logger.Warn("authz cache bump", slog.String("action", action), slog.Any("error", err))
		}
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		Actor:    actor,
		Action:   action,
		Entity:   "user",
		EntityID: strconv.FormatInt(id, 10),
		Meta:     meta,
	}); err != nil {
		s.logger.Warn("audit user change", slog.String("action", action), slog.Any("error", err))
	}
}
