// Package session owns the authenticated client context: the token, the
// signed-in user and the active workspace. A Session is created from the
// persisted state at startup, filled in by login and torn down by logout or
// by an authorization failure.
package session

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/raphaelgruber/leadwatch/internal/models"
)

// Sentinel errors.
var (
	ErrNotLoggedIn = errors.New("not logged in")
	ErrNoWorkspace = errors.New("no workspace selected")
)

// Session is safe for concurrent use. It satisfies stream.TokenSource.
type Session struct {
	store  Store
	logger *slog.Logger

	mu    sync.RWMutex
	state State
}

// Open loads the persisted state from store.
func Open(store Store, logger *slog.Logger) (*Session, error) {
	if logger == nil {
		logger = slog.Default()
	}
	st, err := store.Load()
	if err != nil {
		return nil, err
	}
	return &Session{store: store, logger: logger, state: st}, nil
}

// Token returns the credential, or "" when logged out.
func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Token
}

// RequireToken returns the credential or ErrNotLoggedIn.
func (s *Session) RequireToken() (string, error) {
	if t := s.Token(); t != "" {
		return t, nil
	}
	return "", ErrNotLoggedIn
}

// User returns the signed-in user, if any.
func (s *Session) User() (models.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state.User == nil {
		return models.User{}, false
	}
	return *s.state.User, true
}

// Login starts a new session. The previous workspace selection is dropped
// since it may belong to another account.
func (s *Session) Login(auth models.AuthResponse) error {
	if auth.Token == "" {
		return errors.New("login response carried no token")
	}
	user := auth.User
	return s.replace(State{Token: auth.Token, User: &user})
}

// Logout ends the session and removes the persisted state.
func (s *Session) Logout() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = State{}
	return s.store.Clear()
}

// Invalidate ends the session after the backend rejected the credential.
// Failures to clear the persisted state are logged, not returned.
func (s *Session) Invalidate() {
	s.mu.Lock()
	had := s.state.Token != ""
	s.state = State{}
	err := s.store.Clear()
	s.mu.Unlock()

	if had {
		s.logger.Warn("session invalidated, login required")
	}
	if err != nil {
		s.logger.Error("failed to clear session state", "error", err)
	}
}

// Workspace returns the active workspace or ErrNoWorkspace.
func (s *Session) Workspace() (models.Workspace, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state.Workspace == nil || s.state.Workspace.ID == "" {
		return models.Workspace{}, ErrNoWorkspace
	}
	return *s.state.Workspace, nil
}

// SetWorkspace selects and persists the active workspace.
func (s *Session) SetWorkspace(ws models.Workspace) error {
	s.mu.RLock()
	next := s.state
	s.mu.RUnlock()
	if next.Token == "" {
		return ErrNotLoggedIn
	}
	next.Workspace = &models.Workspace{ID: ws.ID, Name: ws.Name}
	return s.replace(next)
}

func (s *Session) replace(next State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.store.Save(next); err != nil {
		return err
	}
	s.state = next
	return nil
}
