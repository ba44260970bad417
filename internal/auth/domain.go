package auth

import "time"

// User is an authentication account. ID is the opaque identity other
// modules key authorization data on.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NewAccount carries sign-up data to the repository.
type NewAccount struct {
	ID           string
	Email        string
	PasswordHash string
	DisplayName  string
	RoleName     string
}

// SessionInfo describes the identity bound to the current request.
type SessionInfo struct {
	SessionID string `json:"-"`
	Identity  string `json:"identity,omitempty"`
}

// Authenticated reports whether an identity is bound.
func (s SessionInfo) Authenticated() bool {
	return s.Identity != ""
}
