package client

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"campusattend/internal/apperr"
	"campusattend/internal/auth"
)

// Status is the client-side authentication state.
type Status int

const (
	StatusLoading Status = iota
	StatusAuthenticated
	StatusAnonymous
)

func (s Status) String() string {
	switch s {
	case StatusLoading:
		return "LOADING"
	case StatusAuthenticated:
		return "AUTHENTICATED"
	case StatusAnonymous:
		return "ANONYMOUS"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// SessionView is what the router needs to know about a session.
type SessionView interface {
	Status() Status
	Role() auth.Role
}

// Session tracks who is signed in. It starts LOADING until Restore,
// Login or Logout settles it.
type Session struct {
	api *API

	mu       sync.RWMutex
	status   Status
	identity auth.Identity
}

func NewSession(api *API) *Session {
	return &Session{api: api, status: StatusLoading}
}

// Restore validates a persisted token. A rejected token is cleared; a
// network failure leaves the token in place and reports the error.
func (s *Session) Restore(ctx context.Context) error {
	token, err := s.api.Tokens.Load()
	if err != nil {
		s.setAnonymous()
		return fmt.Errorf("load token: %w", err)
	}
	if token == "" {
		s.setAnonymous()
		return nil
	}

	id, err := s.api.Me(ctx)
	if err != nil {
		s.setAnonymous()
		if errors.Is(err, apperr.ErrUnauthorized) {
			return s.api.Tokens.Clear()
		}
		return err
	}
	s.setAuthenticated(id)
	return nil
}

func (s *Session) Login(ctx context.Context, username, password string) (auth.Identity, error) {
	res, err := s.api.Login(ctx, username, password)
	if err != nil {
		return auth.Identity{}, err
	}
	s.setAuthenticated(res.User)
	return res.User, nil
}

// Register creates the account and then signs in with it.
func (s *Session) Register(ctx context.Context, in RegisterInput) (auth.Identity, error) {
	if _, err := s.api.Register(ctx, in); err != nil {
		return auth.Identity{}, err
	}
	return s.Login(ctx, in.Username, in.Password)
}

func (s *Session) Logout() error {
	s.setAnonymous()
	return s.api.Tokens.Clear()
}

func (s *Session) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Role is nil unless the session is authenticated.
func (s *Session) Role() auth.Role {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.status != StatusAuthenticated {
		return nil
	}
	return s.identity.Role
}

func (s *Session) Identity() (auth.Identity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.identity, s.status == StatusAuthenticated
}

func (s *Session) setAuthenticated(id auth.Identity) {
	s.mu.Lock()
	s.status = StatusAuthenticated
	s.identity = id
	s.mu.Unlock()
}

func (s *Session) setAnonymous() {
	s.mu.Lock()
	s.status = StatusAnonymous
	s.identity = auth.Identity{}
	s.mu.Unlock()
}
