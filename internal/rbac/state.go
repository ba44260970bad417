package rbac

import (
	"context"
	"sync"
	"time"
)

// Snapshot is the authorization data of one session at one point in time.
// A nil Account means no authenticated identity.
type Snapshot struct {
	Account  *UserAccount
	Degraded bool
	LoadedAt time.Time
}

// Authenticated reports whether the snapshot carries an identity.
func (s Snapshot) Authenticated() bool {
	return s.Account != nil
}

// HasPermission resolves (resource, action) against the snapshot.
func (s Snapshot) HasPermission(resource string, action Action) bool {
	return HasPermission(s.Account, resource, action)
}

// Ticket identifies one load trigger. Completing a ticket whose epoch was
// superseded by an identity change is a no-op.
type Ticket struct {
	epoch    uint64
	identity string
}

// Identity returns the subject the ticket loads for.
func (t Ticket) Identity() string {
	return t.identity
}

// State is the process-local authorization state of one session. The
// snapshot and the loading flag only change together under mu, so a reader
// never sees loading=false next to a half applied snapshot.
type State struct {
	mu       sync.Mutex
	identity string
	epoch    uint64
	pending  int
	loading  bool
	snapshot Snapshot
	ready    chan struct{}
	lastSeen time.Time
}

// NewState returns an idle, unauthenticated state.
func NewState() *State {
	ready := make(chan struct{})
	close(ready)
	return &State{ready: ready, lastSeen: time.Now()}
}

// Begin registers a load trigger for identity. A different identity opens a
// new epoch: pending loads of the old identity are orphaned and its grants
// are dropped immediately.
func (s *State) Begin(identity string) Ticket {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.beginLocked(identity)
}

// Track begins a load only when the state is not already tracking identity.
func (s *State) Track(identity string) (Ticket, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSeen = time.Now()
	if s.epoch != 0 && s.identity == identity {
		return Ticket{}, false
	}
	return s.beginLocked(identity), true
}

func (s *State) beginLocked(identity string) Ticket {
	if s.epoch == 0 || identity != s.identity {
		s.epoch++
		s.identity = identity
		s.pending = 0
		s.snapshot = Snapshot{}
	}
	s.pending++
	if !s.loading {
		s.loading = true
		s.ready = make(chan struct{})
	}
	return Ticket{epoch: s.epoch, identity: identity}
}

// Complete applies snap for t. Within one epoch the last completion wins and
// loading ends once every trigger of the cycle has completed. It returns
// false when t was superseded.
func (s *State) Complete(t Ticket, snap Snapshot) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.epoch != s.epoch {
		return false
	}
	s.snapshot = snap
	s.pending--
	if s.pending <= 0 {
		s.pending = 0
		s.finishLocked()
	}
	return true
}

// Teardown forgets the identity, as on sign-out.
func (s *State) Teardown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.epoch++
	s.identity = ""
	s.pending = 0
	s.snapshot = Snapshot{}
	s.finishLocked()
}

func (s *State) finishLocked() {
	if s.loading {
		s.loading = false
		close(s.ready)
	}
}

// Identity returns the subject the state tracks.
func (s *State) Identity() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity
}

// Current returns the snapshot and whether a load is still in flight.
func (s *State) Current() (Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot, s.loading
}

// Wait blocks until the state is loaded, ctx ends or d elapses. The boolean
// is false when the snapshot is not authoritative yet.
func (s *State) Wait(ctx context.Context, d time.Duration) (Snapshot, bool) {
	var timeout <-chan time.Time
	if d > 0 {
		timer := time.NewTimer(d)
		defer timer.Stop()
		timeout = timer.C
	}
	for {
		s.mu.Lock()
		if !s.loading {
			snap := s.snapshot
			s.mu.Unlock()
			return snap, true
		}
		ready := s.ready
		s.mu.Unlock()
		if timeout == nil {
			return Snapshot{}, false
		}
		select {
		case <-ready:
		case <-timeout:
			return Snapshot{}, false
		case <-ctx.Done():
			return Snapshot{}, false
		}
	}
}

func (s *State) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}
