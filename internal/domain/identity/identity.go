// internal/domain/identity/identity.go
package identity

import (
	"errors"
	"strings"
	"time"
)

var (
	ErrInvalidContext = errors.New("identity: invalid context")
)

// Kind tells which half of the identity union is active.
type Kind string

const (
	KindUser      Kind = "user"
	KindAnonymous Kind = "anonymous"
)

// Context is the key that scopes cart/favorites ownership.
//   - Kind == KindUser: ID is the authenticated user id
//   - Kind == KindAnonymous: SessionID is the device-scoped anonymous token
//
// Exactly one of ID / SessionID is set.
type Context struct {
	Kind      Kind   `json:"kind"`
	ID        string `json:"id,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
}

func ForUser(id string) Context {
	return Context{Kind: KindUser, ID: strings.TrimSpace(id)}
}

func ForAnonymous(sessionID string) Context {
	return Context{Kind: KindAnonymous, SessionID: strings.TrimSpace(sessionID)}
}

func (c Context) IsUser() bool {
	return c.Kind == KindUser
}

// Key is a stable string form, e.g. "user:abc" / "anonymous:1f2e...".
func (c Context) Key() string {
	if c.IsUser() {
		return string(KindUser) + ":" + c.ID
	}
	return string(KindAnonymous) + ":" + c.SessionID
}

func (c Context) Validate() error {
	switch c.Kind {
	case KindUser:
		if strings.TrimSpace(c.ID) == "" || c.SessionID != "" {
			return ErrInvalidContext
		}
	case KindAnonymous:
		if strings.TrimSpace(c.SessionID) == "" || c.ID != "" {
			return ErrInvalidContext
		}
	default:
		return ErrInvalidContext
	}
	return nil
}

// User is the profile-adjacent part of a session.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email,omitempty"`
}

// Session mirrors the remote identity provider's session (read-only here).
type Session struct {
	User        User      `json:"user"`
	AccessToken string    `json:"accessToken,omitempty"`
	ExpiresAt   time.Time `json:"expiresAt,omitempty"`
}

// Expired reports whether the session is past its expiry. Zero ExpiresAt never expires.
func (s *Session) Expired(now time.Time) bool {
	if s == nil {
		return true
	}
	if s.ExpiresAt.IsZero() {
		return false
	}
	return !now.Before(s.ExpiresAt)
}

// AuthEvent tags a session transition.
type AuthEvent string

const (
	EventInitialSession AuthEvent = "INITIAL_SESSION"
	EventSignedIn       AuthEvent = "SIGNED_IN"
	EventSignedOut      AuthEvent = "SIGNED_OUT"
	EventTokenRefreshed AuthEvent = "TOKEN_REFRESHED"
)
