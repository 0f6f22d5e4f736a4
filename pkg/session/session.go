// Package session holds the bearer token used by the API client and can
// persist it between CLI runs.
package session

import (
	"sync"

	"github.com/menta2k/ux-analyzer/pkg/types"
)

// Session is the current authentication state. It is safe for concurrent use
// and is injected into the API client instead of living in a global.
type Session struct {
	mu    sync.RWMutex
	token string
	user  *types.User
}

// New returns a session with the given token; an empty token means signed out
func New(token string, user *types.User) *Session {
	s := &Session{}
	s.Set(token, user)
	return s
}

// Set stores a token and its user
func (s *Session) Set(token string, user *types.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	if user != nil {
		u := *user
		s.user = &u
	} else {
		s.user = nil
	}
}

// Clear signs the session out
func (s *Session) Clear() {
	s.Set("", nil)
}

// Token returns the bearer token, empty when signed out
func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// User returns a copy of the signed-in user
func (s *Session) User() (types.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return types.User{}, false
	}
	return *s.user, true
}

// Authenticated reports whether a token is present
func (s *Session) Authenticated() bool {
	return s.Token() != ""
}

type snapshot struct {
	AccessToken string      `json:"accessToken"`
	User        *types.User `json:"user,omitempty"`
}

func (s *Session) snapshot() snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshot{AccessToken: s.token, User: s.user}
}
