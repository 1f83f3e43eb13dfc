package store

import (
	"context"
	"sync"

	"taskmate/backend/internal/sync/schema"

	"go.uber.org/zap"
)

// SessionBackend is the slice of the access layer the session store needs.
type SessionBackend interface {
	Register(ctx context.Context, input schema.RegisterInput) (*schema.Session, error)
	SignIn(ctx context.Context, input schema.LoginInput) (*schema.Session, error)
	MarkReady(ctx context.Context) (*schema.Session, error)
	SetToken(token string)
}

// SessionStore owns the auth session. Signing out resets every registered
// dependent store so no cached rows survive a user switch.
type SessionStore struct {
	mu      sync.RWMutex
	backend SessionBackend
	log     *zap.Logger

	session *schema.Session
	err     error

	resetters []interface{ Reset() }
}

// NewSessionStore creates a signed-out store.
func NewSessionStore(backend SessionBackend, log *zap.Logger) *SessionStore {
	if log == nil {
		log = zap.NewNop()
	}
	return &SessionStore{backend: backend, log: log}
}

// ResetOnSignOut registers a store to be wiped when the session ends.
func (s *SessionStore) ResetOnSignOut(stores ...interface{ Reset() }) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetters = append(s.resetters, stores...)
}

// Register creates an account and signs in.
func (s *SessionStore) Register(ctx context.Context, input schema.RegisterInput) error {
	session, err := s.backend.Register(ctx, input)
	if err != nil {
		s.setErr(err)
		return err
	}
	s.install(session)
	return nil
}

// SignIn authenticates and installs the session.
func (s *SessionStore) SignIn(ctx context.Context, input schema.LoginInput) error {
	session, err := s.backend.SignIn(ctx, input)
	if err != nil {
		s.setErr(err)
		return err
	}
	s.install(session)
	return nil
}

// MarkReady completes onboarding and refreshes the session token.
func (s *SessionStore) MarkReady(ctx context.Context) error {
	session, err := s.backend.MarkReady(ctx)
	if err != nil {
		s.setErr(err)
		return err
	}
	s.install(session)
	return nil
}

// SignOut drops the session and resets every dependent store.
func (s *SessionStore) SignOut() {
	s.mu.Lock()
	s.session = nil
	s.err = nil
	s.backend.SetToken("")
	resetters := s.resetters
	s.mu.Unlock()

	for _, r := range resetters {
		r.Reset()
	}
	s.log.Info("signed out, stores reset")
}

// Current returns the active session, or nil when signed out.
func (s *SessionStore) Current() *schema.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session
}

// UserID returns the signed-in user id, or zero.
func (s *SessionStore) UserID() uint {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.session == nil {
		return 0
	}
	return s.session.UserID
}

// Err returns the last auth failure.
func (s *SessionStore) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

func (s *SessionStore) install(session *schema.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session = session
	s.err = nil
	s.backend.SetToken(session.Token)
}

func (s *SessionStore) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}
