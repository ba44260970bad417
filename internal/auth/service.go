package auth

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/dealerhub/dealerhub/internal/shared"
)

// DefaultRole is assigned to every new account.
const DefaultRole = "User"

// Service wraps authentication rules and publishes session changes.
type Service struct {
	repo     Repository
	sessions *shared.SessionManager
	logger   *slog.Logger
	now      func() time.Time

	mu        sync.RWMutex
	listeners map[int]shared.SessionListener
	nextID    int
}

// NewService constructs a new Service.
func NewService(repo Repository, sessions *shared.SessionManager, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:      repo,
		sessions:  sessions,
		logger:    logger,
		now:       time.Now,
		listeners: make(map[int]shared.SessionListener),
	}
}

// OnSessionChange registers fn for sign-in and sign-out events and returns
// a function removing it.
func (s *Service) OnSessionChange(fn shared.SessionListener) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}
}

func (s *Service) emit(ev shared.SessionEvent) {
	s.mu.RLock()
	listeners := make([]shared.SessionListener, 0, len(s.listeners))
	for _, fn := range s.listeners {
		listeners = append(listeners, fn)
	}
	s.mu.RUnlock()
	for _, fn := range listeners {
		fn(ev)
	}
}

// Authenticate validates email/password credentials.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*User, error) {
	user, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	return user, nil
}

// SignUp registers a new account with the default role.
func (s *Service) SignUp(ctx context.Context, email, password, displayName string) (*User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	return s.repo.CreateAccount(ctx, NewAccount{
		ID:           uuid.NewString(),
		Email:        strings.ToLower(strings.TrimSpace(email)),
		PasswordHash: string(hash),
		DisplayName:  strings.TrimSpace(displayName),
		RoleName:     DefaultRole,
	})
}

// SignIn authenticates and binds the identity to sess under a fresh ID.
func (s *Service) SignIn(ctx context.Context, sess *shared.Session, email, password, ip, ua string) (*User, error) {
	if sess == nil {
		return nil, shared.ErrNoSession
	}
	user, err := s.Authenticate(ctx, email, password)
	if err != nil {
		return nil, err
	}
	previous := sess.ID
	if s.sessions != nil {
		if err := s.sessions.Renew(ctx, sess); err != nil {
			s.logger.Warn("renew session", slog.Any("error", err))
		}
	}
	sess.SetIdentity(user.ID)

	ttl := 24 * time.Hour
	if s.sessions != nil {
		ttl = s.sessions.TTL()
	}
	if err := s.repo.CreateSession(ctx, sess.ID, user.ID, s.now().Add(ttl), ip, ua); err != nil {
		s.logger.Warn("register session", slog.Any("error", err))
	}
	s.emit(shared.SessionEvent{
		Kind:              shared.SessionSignedIn,
		SessionID:         sess.ID,
		PreviousSessionID: previous,
		Identity:          user.ID,
	})
	return user, nil
}

// SignOut unbinds and destroys sess.
func (s *Service) SignOut(ctx context.Context, sess *shared.Session) error {
	if sess == nil {
		return shared.ErrNoSession
	}
	if err := s.repo.DeleteSession(ctx, sess.ID); err != nil {
		s.logger.Warn("remove session", slog.Any("error", err))
	}
	sess.SetIdentity("")
	if s.sessions != nil {
		s.sessions.Destroy(sess)
	}
	s.emit(shared.SessionEvent{Kind: shared.SessionSignedOut, SessionID: sess.ID})
	return nil
}

// CurrentSession returns the identity bound to the request session.
func (s *Service) CurrentSession(ctx context.Context) SessionInfo {
	sess := shared.SessionFromContext(ctx)
	if sess == nil || sess.Destroyed() {
		return SessionInfo{}
	}
	return SessionInfo{SessionID: sess.ID, Identity: sess.Identity()}
}

// CleanupSessions removes session rows expired for longer than grace.
func (s *Service) CleanupSessions(ctx context.Context, grace time.Duration) (int64, error) {
	if grace < 0 {
		grace = 0
	}
	return s.repo.DeleteExpiredSessions(ctx, s.now().Add(-grace))
}
