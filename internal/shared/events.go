package shared

// SessionEventKind enumerates auth state transitions.
type SessionEventKind string

const (
	SessionSignedIn  SessionEventKind = "signed_in"
	SessionSignedOut SessionEventKind = "signed_out"
)

// SessionEvent is emitted by the auth service whenever a session changes
// identity. Identity is empty for sign-out. PreviousSessionID is set when
// sign-in rotated the session ID.
type SessionEvent struct {
	Kind              SessionEventKind
	SessionID         string
	PreviousSessionID string
	Identity          string
}

// SessionListener receives session events.
type SessionListener func(SessionEvent)
