package rbac

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dealerhub/dealerhub/internal/shared"
)

// Registry owns the authorization state of every live session:
// init on sign-in or first request, refresh on auth changes and cache bumps,
// teardown on sign-out.
type Registry struct {
	loader   *Loader
	logger   *slog.Logger
	recorder Recorder

	mu     sync.Mutex
	states map[string]*State
	wg     sync.WaitGroup
}

// NewRegistry constructs a Registry.
func NewRegistry(loader *Loader, logger *slog.Logger, recorder Recorder) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &Registry{loader: loader, logger: logger, recorder: recorder, states: make(map[string]*State)}
}

// State returns the state of sessionID, creating an idle one if needed.
func (r *Registry) State(sessionID string) *State {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.states[sessionID]
	if !ok {
		st = NewState()
		r.states[sessionID] = st
	}
	return st
}

// Ensure hydrates the state of sessionID for identity unless it already
// tracks that identity. An empty identity tears the state down.
func (r *Registry) Ensure(ctx context.Context, sessionID, identity string) *State {
	st := r.State(sessionID)
	if identity == "" {
		if st.Identity() != "" {
			st.Teardown()
		}
		return st
	}
	if t, ok := st.Track(identity); ok {
		r.start(ctx, st, t)
	}
	return st
}

// Refresh triggers a new load for sessionID even when it already tracks identity.
func (r *Registry) Refresh(ctx context.Context, sessionID, identity string) *State {
	st := r.State(sessionID)
	if identity == "" {
		st.Teardown()
		return st
	}
	r.start(ctx, st, st.Begin(identity))
	return st
}

// Teardown drops sessionID.
func (r *Registry) Teardown(sessionID string) {
	r.mu.Lock()
	st, ok := r.states[sessionID]
	delete(r.states, sessionID)
	r.mu.Unlock()
	if ok {
		st.Teardown()
	}
}

// OnSessionEvent adapts auth service events.
func (r *Registry) OnSessionEvent(ev shared.SessionEvent) {
	switch ev.Kind {
	case shared.SessionSignedIn:
		if ev.PreviousSessionID != "" && ev.PreviousSessionID != ev.SessionID {
			r.Teardown(ev.PreviousSessionID)
		}
		r.Refresh(context.Background(), ev.SessionID, ev.Identity)
	case shared.SessionSignedOut:
		r.Teardown(ev.SessionID)
	}
}

// RefreshAll reloads every authenticated session, e.g. after an admin change.
func (r *Registry) RefreshAll(ctx context.Context) int {
	r.mu.Lock()
	targets := make(map[string]string, len(r.states))
	for id, st := range r.states {
		if identity := st.Identity(); identity != "" {
			targets[id] = identity
		}
	}
	r.mu.Unlock()
	for id, identity := range targets {
		r.loader.Forget(identity)
		r.Refresh(ctx, id, identity)
	}
	return len(targets)
}

// Listen refreshes every session whenever the cache version is bumped.
func (r *Registry) Listen(ctx context.Context, cache *Cache) error {
	return cache.Subscribe(ctx, func() {
		n := r.RefreshAll(ctx)
		r.logger.Debug("authz invalidated", slog.Int("sessions", n))
	})
}

// Sweep drops states not touched for idle.
func (r *Registry) Sweep(idle time.Duration) int {
	cutoff := time.Now().Add(-idle)
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for id, st := range r.states {
		if st.idleSince().Before(cutoff) {
			delete(r.states, id)
			n++
		}
	}
	return n
}

// Run sweeps idle states every interval until ctx ends.
func (r *Registry) Run(ctx context.Context, interval, idle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.Sweep(idle); n > 0 {
				r.logger.Debug("authz swept idle sessions", slog.Int("count", n))
			}
		}
	}
}

// Wait blocks until every load started by the registry has completed.
func (r *Registry) Wait() {
	r.wg.Wait()
}

// start runs one load. The ticket is always completed, even if the loader
// panics, so loading can never hang.
func (r *Registry) start(ctx context.Context, st *State, t Ticket) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		snap := r.safeLoad(ctx, t.Identity())
		if !st.Complete(t, snap) {
			r.recorder.AuthzLoad(LoadStale)
			r.logger.Debug("authz discarded stale load", slog.String("identity", t.Identity()))
		}
	}()
}

func (r *Registry) safeLoad(ctx context.Context, identity string) (snap Snapshot) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("authz load panic", slog.String("identity", identity), slog.Any("error", fmt.Sprint(rec)))
			snap = r.loader.degraded(identity)
		}
	}()
	return r.loader.Load(ctx, identity)
}
