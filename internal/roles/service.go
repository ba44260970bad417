package roles

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/dealerhub/dealerhub/internal/platform/httpx"
	"github.com/dealerhub/dealerhub/internal/rbac"
	"github.com/dealerhub/dealerhub/internal/shared"
)

// RepositoryPort defines data access methods for roles.
type RepositoryPort interface {
	ListRoles(ctx context.Context, filters ListFilters) ([]Role, error)
	GetRole(ctx context.Context, id int64) (Role, error)
	CreateRole(ctx context.Context, in RoleInput) (Role, error)
	UpdateRole(ctx context.Context, id int64, in RoleInput) (Role, error)
	DeleteRole(ctx context.Context, id int64, reassignTo *int64) (int64, error)
	ReplacePermissions(ctx context.Context, id int64, names []string, matrix []byte) error
}

// Invalidator announces that stored authorization data changed.
type Invalidator interface {
	Bump(ctx context.Context) error
}

// Service handles role business logic.
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

// ListRoles returns all roles.
func (s *Service) ListRoles(ctx context.Context, filters ListFilters) ([]Role, error) {
	return s.repo.ListRoles(ctx, filters)
}

// GetRole returns one role.
func (s *Service) GetRole(ctx context.Context, id int64) (Role, error) {
	return s.repo.GetRole(ctx, id)
}

// CreateRole adds a role with no permissions.
func (s *Service) CreateRole(ctx context.Context, actor string, in RoleInput) (Role, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Description = strings.TrimSpace(in.Description)
	role, err := s.repo.CreateRole(ctx, in)
	if err != nil {
		return Role{}, err
	}
	s.changed(ctx, actor, "role.create", role.ID, map[string]any{"name": role.Name})
	return role, nil
}

// UpdateRole edits a role. Built-in roles keep their name.
func (s *Service) UpdateRole(ctx context.Context, actor string, id int64, in RoleInput) (Role, error) {
	current, err := s.repo.GetRole(ctx, id)
	if err != nil {
		return Role{}, err
	}
	in.Name = strings.TrimSpace(in.Name)
	in.Description = strings.TrimSpace(in.Description)
	if current.Protected() && in.Name != current.Name {
		return Role{}, ErrProtectedRole
	}
	role, err := s.repo.UpdateRole(ctx, id, in)
	if err != nil {
		return Role{}, err
	}
	s.changed(ctx, actor, "role.update", id, map[string]any{"from": current.Name, "to": role.Name})
	return role, nil
}

// DeleteRole removes a role. A role still assigned to users is only removed
// when reassignTo names the role those users move to.
func (s *Service) DeleteRole(ctx context.Context, actor string, id int64, reassignTo *int64) error {
	current, err := s.repo.GetRole(ctx, id)
	if err != nil {
		return err
	}
	if current.Protected() {
		return ErrProtectedRole
	}
	if reassignTo != nil {
		if *reassignTo == id {
			return fmt.Errorf("%w: cannot reassign users to the deleted role", httpx.ErrValidation)
		}
		if _, err := s.repo.GetRole(ctx, *reassignTo); err != nil {
			return fmt.Errorf("reassign target: %w", err)
		}
	} else if current.UserCount > 0 {
		return ErrRoleInUse
	}
	moved, err := s.repo.DeleteRole(ctx, id, reassignTo)
	if err != nil {
		return err
	}
	meta := map[string]any{"name": current.Name, "reassigned": moved}
	if reassignTo != nil {
		meta["reassign_to"] = *reassignTo
	}
	s.changed(ctx, actor, "role.delete", id, meta)
	return nil
}

// SetPermissions replaces the permission set of a role. Every name must be
// in the catalog.
func (s *Service) SetPermissions(ctx context.Context, actor string, id int64, names []string) (Role, error) {
	known, err := s.catalog.Resolve(names)
	if err != nil {
		return Role{}, err
	}
	matrix, err := rbac.PermissionSetFromNames(known).MarshalMatrix()
	if err != nil {
		return Role{}, err
	}
	if err := s.repo.ReplacePermissions(ctx, id, known, matrix); err != nil {
		return Role{}, err
	}
	s.changed(ctx, actor, "role.permissions", id, map[string]any{"permissions": known})
	return s.repo.GetRole(ctx, id)
}

// changed invalidates cached authorization and records the audit entry.
// Both are best effort; the mutation already committed.
func (s *Service) changed(ctx context.Context, actor, action string, id int64, meta map[string]any) {
	if s.invalidator != nil {
		if err := s.invalidator.Bump(ctx); err != nil {
			s.logger.Warn("authz cache bump", slog.String("action", action), slog.Any("error", err))
		}
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		Actor:    actor,
		Action:   action,
		Entity:   "role",
		EntityID: strconv.FormatInt(id, 10),
		Meta:     meta,
	})
	if err != nil {
		s.logger.Warn("audit role change", slog.String("action", action), slog.Any("error", err))
	}
}
