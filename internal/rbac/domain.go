package rbac

import (
	"errors"
	"strings"
	"time"
)

// ErrNotFound indicates that the requested record does not exist.
var ErrNotFound = errors.New("rbac: not found")

const (
	// AdminRoleName resolves every query to allow, whatever its stored permissions.
	AdminRoleName = "Admin"
	// DefaultRoleName is assigned on sign-up and used for degraded snapshots.
	DefaultRoleName = "User"
)

// Action is one of the grantable verbs.
type Action string

const (
	ActionRead   Action = "read"
	ActionWrite  Action = "write"
	ActionDelete Action = "delete"
)

// Actions lists every known action in display order.
func Actions() []Action {
	return []Action{ActionRead, ActionWrite, ActionDelete}
}

// ParseAction normalises s into a known Action.
func ParseAction(s string) (Action, bool) {
	switch Action(strings.ToLower(strings.TrimSpace(s))) {
	case ActionRead:
		return ActionRead, true
	case ActionWrite:
		return ActionWrite, true
	case ActionDelete:
		return ActionDelete, true
	}
	return "", false
}

// Permission identifies one grantable capability.
type Permission struct {
	ID          int64  `json:"id,omitempty"`
	Name        string `json:"name"`
	Resource    string `json:"resource"`
	Action      Action `json:"action"`
	Category    string `json:"category"`
	Description string `json:"description,omitempty"`
}

// Role is a named, reusable bundle of permissions.
type Role struct {
	ID          int64
	Name        string
	Description string
	Permissions PermissionSet
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// IsAdmin reports whether the role carries the superuser bypass.
func (r *Role) IsAdmin() bool {
	return r != nil && r.Name == AdminRoleName
}

// UserAccount is the principal being authorized.
type UserAccount struct {
	ID           int64
	AuthIdentity string
	Role         *Role
	Overrides    PermissionSet
}

// RoleName returns the assigned role name or an empty string.
func (u *UserAccount) RoleName() string {
	if u == nil || u.Role == nil {
		return ""
	}
	return u.Role.Name
}
