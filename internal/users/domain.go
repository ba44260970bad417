package users

import (
	"fmt"
	"time"

	"github.com/dealerhub/dealerhub/internal/platform/httpx"
)

var (
	// ErrNotFound is returned for unknown user IDs.
	ErrNotFound = fmt.Errorf("%w: user", httpx.ErrNotFound)
	// ErrUnknownRole is returned when assigning a role that does not exist.
	ErrUnknownRole = fmt.Errorf("%w: unknown role", httpx.ErrValidation)
	// ErrSelfDelete blocks administrators from deleting their own account.
	ErrSelfDelete = fmt.Errorf("%w: cannot delete your own account", httpx.ErrConflict)
)

// User is a user profile with its role and direct permission overrides.
type User struct {
	ID          int64     `json:"id"`
	Identity    string    `json:"identity"`
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name"`
	RoleID      *int64    `json:"role_id"`
	RoleName    string    `json:"role_name,omitempty"`
	Overrides   []string  `json:"overrides"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ListFilters narrows ListUsers.
type ListFilters struct {
	RoleID *int64
	Search string
}
