package roles

import (
	"fmt"
	"time"

	"github.com/dealerhub/dealerhub/internal/platform/httpx"
	"github.com/dealerhub/dealerhub/internal/rbac"
)

var (
	// ErrNotFound is returned for unknown role IDs.
	ErrNotFound = fmt.Errorf("%w: role", httpx.ErrNotFound)
	// ErrRoleInUse blocks deleting a role that is still assigned.
	ErrRoleInUse = fmt.Errorf("%w: role is assigned to users", httpx.ErrConflict)
	// ErrProtectedRole blocks deleting or renaming built-in roles.
	ErrProtectedRole = fmt.Errorf("%w: built-in role cannot be deleted or renamed", httpx.ErrConflict)
)

// Role represents a role for management.
type Role struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Permissions []string  `json:"permissions"`
	UserCount   int64     `json:"user_count"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Protected reports whether the role is built in.
func (r Role) Protected() bool {
	return IsProtected(r.Name)
}

// IsProtected reports whether name is a built-in role.
func IsProtected(name string) bool {
	return name == rbac.AdminRoleName || name == rbac.DefaultRoleName
}

// RoleInput carries editable role attributes.
type RoleInput struct {
	Name        string `json:"name" validate:"required,min=2,max=64"`
	Description string `json:"description" validate:"max=255"`
}

// ListFilters controls ordering of ListRoles.
type ListFilters struct {
	SortBy  string
	SortDir string
}
