// internal/adapters/out/memory/session_source.go
package memory

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"solare/internal/domain/identity"
)

var ErrInvalidToken = errors.New("memory: invalid sign-in token")

type listener struct {
	id uint64
	fn identity.SessionChangeFunc
}

// SessionSource is an in-process identity provider.
// SignIn accepts "uid" or "uid:email" as the token.
type SessionSource struct {
	mu        sync.Mutex
	session   *identity.Session
	listeners []listener
	nextID    uint64

	failLookups int
	lookupErr   error
	lookups     int

	ttl time.Duration
	now func() time.Time
}

func NewSessionSource() *SessionSource {
	return &SessionSource{ttl: time.Hour, now: time.Now}
}

// SetSession replaces the current session without notifying listeners
// (a session that already existed before the app started).
func (s *SessionSource) SetSession(sess *identity.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session = copySession(sess)
}

// FailLookups makes the next n GetCurrentSession calls return err.
func (s *SessionSource) FailLookups(n int, err error) {
	if err == nil {
		err = ErrInjected
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failLookups = n
	s.lookupErr = err
}

// Lookups counts GetCurrentSession calls.
func (s *SessionSource) Lookups() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lookups
}

func (s *SessionSource) GetCurrentSession(ctx context.Context) (*identity.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lookups++
	if s.failLookups > 0 {
		s.failLookups--
		return nil, s.lookupErr
	}
	return copySession(s.session), nil
}

func (s *SessionSource) OnSessionChange(fn identity.SessionChangeFunc) func() {
	if fn == nil {
		return func() {}
	}
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.listeners = append(s.listeners, listener{id: id, fn: fn})
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			for i, l := range s.listeners {
				if l.id == id {
					s.listeners = append(s.listeners[:i:i], s.listeners[i+1:]...)
					return
				}
			}
		})
	}
}

// SignIn starts a session for the user encoded in token and notifies SIGNED_IN.
func (s *SessionSource) SignIn(ctx context.Context, token string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	uid, email, _ := strings.Cut(strings.TrimSpace(token), ":")
	uid = strings.TrimSpace(uid)
	if uid == "" {
		return ErrInvalidToken
	}
	s.SignInUser(identity.User{ID: uid, Email: strings.TrimSpace(email)})
	return nil
}

func (s *SessionSource) SignInUser(u identity.User) {
	s.mu.Lock()
	s.session = &identity.Session{
		User:        u,
		AccessToken: uuid.NewString(),
		ExpiresAt:   s.now().Add(s.ttl).UTC(),
	}
	sess := copySession(s.session)
	s.mu.Unlock()

	s.emit(identity.EventSignedIn, sess)
}

// Refresh rotates the access token of the current session and notifies TOKEN_REFRESHED.
// It is a no-op when signed out.
func (s *SessionSource) Refresh(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	if s.session == nil {
		s.mu.Unlock()
		return nil
	}
	s.session.AccessToken = uuid.NewString()
	s.session.ExpiresAt = s.now().Add(s.ttl).UTC()
	sess := copySession(s.session)
	s.mu.Unlock()

	s.emit(identity.EventTokenRefreshed, sess)
	return nil
}

func (s *SessionSource) SignOut(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	s.session = nil
	s.mu.Unlock()

	s.emit(identity.EventSignedOut, nil)
	return nil
}

// emit calls listeners outside the lock so they may call back into the source.
func (s *SessionSource) emit(ev identity.AuthEvent, sess *identity.Session) {
	s.mu.Lock()
	ls := make([]listener, len(s.listeners))
	copy(ls, s.listeners)
	s.mu.Unlock()

	for _, l := range ls {
		l.fn(ev, copySession(sess))
	}
}

func copySession(s *identity.Session) *identity.Session {
	if s == nil {
		return nil
	}
	cp := *s
	return &cp
}

var _ identity.SessionSource = (*SessionSource)(nil)
