package rbac

import "context"

type stateContextKey struct{}

// ContextWithState stores the session authorization state in ctx.
func ContextWithState(ctx context.Context, st *State) context.Context {
	return context.WithValue(ctx, stateContextKey{}, st)
}

// StateFromContext extracts the session authorization state.
func StateFromContext(ctx context.Context) *State {
	st, _ := ctx.Value(stateContextKey{}).(*State)
	return st
}

// Authorization is the read side handed to request handlers.
type Authorization struct {
	IsLoading bool
	Snapshot  Snapshot
}

// HasPermission resolves against the snapshot. While loading the answer is
// not authoritative and is always false.
func (a Authorization) HasPermission(resource string, action Action) bool {
	if a.IsLoading {
		return false
	}
	return a.Snapshot.HasPermission(resource, action)
}

// AuthorizationFromContext reads the current authorization without waiting.
func AuthorizationFromContext(ctx context.Context) Authorization {
	st := StateFromContext(ctx)
	if st == nil {
		return Authorization{}
	}
	snap, loading := st.Current()
	return Authorization{IsLoading: loading, Snapshot: snap}
}
