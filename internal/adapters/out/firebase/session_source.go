// internal/adapters/out/firebase/session_source.go
package firebase

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"firebase.google.com/go/v4/auth"

	"solare/internal/domain/identity"
)

// KeyAuthToken is the local storage key holding the last verified ID token.
const KeyAuthToken = "solare-auth-token"

var (
	ErrNilVerifier  = errors.New("firebase: token verifier is nil")
	ErrEmptyToken   = errors.New("firebase: empty id token")
	ErrInvalidToken = errors.New("firebase: invalid id token")
)

// TokenVerifier is satisfied by *auth.Client.
type TokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*auth.Token, error)
}

// TokenStore persists the ID token between runs (same shape as the state LocalStore).
type TokenStore interface {
	Get(key string) ([]byte, bool, error)
	Set(key string, value []byte) error
	Remove(key string) error
}

type listener struct {
	id uint64
	fn identity.SessionChangeFunc
}

// SessionSource is a Firebase ID-token backed identity.SessionSource.
//
// - SignIn/Refresh verify the token, persist it and notify listeners
// - GetCurrentSession restores the persisted token on first use
// - the session ends (SIGNED_OUT) when the token expires
type SessionSource struct {
	verifier TokenVerifier
	store    TokenStore
	now      func() time.Time

	mu        sync.Mutex
	session   *identity.Session
	restored  bool
	timer     *time.Timer
	listeners []listener
	nextID    uint64
}

func NewSessionSource(verifier TokenVerifier, store TokenStore) *SessionSource {
	return &SessionSource{verifier: verifier, store: store, now: time.Now}
}

// GetCurrentSession returns the active session, restoring the persisted token once.
// An expired or rejected stored token is discarded (nil, nil); verifier outages are errors.
func (s *SessionSource) GetCurrentSession(ctx context.Context) (*identity.Session, error) {
	if s == nil || s.verifier == nil {
		return nil, ErrNilVerifier
	}

	s.mu.Lock()
	if s.restored {
		cur := copySession(s.session)
		s.mu.Unlock()
		return cur, nil
	}
	s.mu.Unlock()

	token := s.storedToken()
	if token == "" {
		s.mu.Lock()
		s.restored = true
		s.mu.Unlock()
		return nil, nil
	}

	sess, err := s.verify(ctx, token)
	if err != nil {
		if errors.Is(err, ErrInvalidToken) {
			log.Printf("[firebase] stored token rejected: %v", err)
			s.forgetToken()
			s.mu.Lock()
			s.restored = true
			s.mu.Unlock()
			return nil, nil
		}
		return nil, err
	}

	s.mu.Lock()
	// a SignIn that raced ahead wins
	if !s.restored {
		s.session = sess
		s.restored = true
		s.armLocked(sess)
	}
	cur := copySession(s.session)
	s.mu.Unlock()
	return cur, nil
}

func (s *SessionSource) OnSessionChange(fn identity.SessionChangeFunc) func() {
	if s == nil || fn == nil {
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

// SignIn verifies idToken and starts a session.
func (s *SessionSource) SignIn(ctx context.Context, idToken string) error {
	return s.accept(ctx, idToken, identity.EventSignedIn)
}

// Refresh swaps in a new ID token. For the same user it notifies TOKEN_REFRESHED,
// for a different user it is a sign-in.
func (s *SessionSource) Refresh(ctx context.Context, idToken string) error {
	return s.accept(ctx, idToken, identity.EventTokenRefreshed)
}

func (s *SessionSource) accept(ctx context.Context, idToken string, ev identity.AuthEvent) error {
	if s == nil || s.verifier == nil {
		return ErrNilVerifier
	}
	sess, err := s.verify(ctx, idToken)
	if err != nil {
		return err
	}

	if s.store != nil {
		if err := s.store.Set(KeyAuthToken, []byte(sess.AccessToken)); err != nil {
			log.Printf("[firebase] WARN: persist token failed: %v", err)
		}
	}

	s.mu.Lock()
	if ev == identity.EventTokenRefreshed && (s.session == nil || s.session.User.ID != sess.User.ID) {
		ev = identity.EventSignedIn
	}
	s.session = sess
	s.restored = true
	s.stopLocked()
	s.mu.Unlock()

	log.Printf("[firebase] %s uid=%s", ev, sess.User.ID)
	s.emit(ev, sess)

	// armed after notifying so an already-due expiry cannot overtake the sign-in
	s.mu.Lock()
	if s.session != nil && s.session.AccessToken == sess.AccessToken {
		s.armLocked(sess)
	}
	s.mu.Unlock()
	return nil
}

func (s *SessionSource) SignOut(ctx context.Context) error {
	if s == nil {
		return nil
	}
	s.forgetToken()

	s.mu.Lock()
	s.session = nil
	s.restored = true
	s.stopLocked()
	s.mu.Unlock()

	s.emit(identity.EventSignedOut, nil)
	return nil
}

// Close stops the expiry timer. Listeners are kept.
func (s *SessionSource) Close() {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.stopLocked()
	s.mu.Unlock()
}

func (s *SessionSource) verify(ctx context.Context, idToken string) (*identity.Session, error) {
	tok := strings.TrimSpace(idToken)
	if tok == "" {
		return nil, ErrEmptyToken
	}

	t, err := s.verifier.VerifyIDToken(ctx, tok)
	if err != nil {
		if auth.IsIDTokenExpired(err) || auth.IsIDTokenInvalid(err) || auth.IsIDTokenRevoked(err) || auth.IsUserDisabled(err) {
			return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
		}
		return nil, fmt.Errorf("firebase: verify id token: %w", err)
	}
	if t == nil || strings.TrimSpace(t.UID) == "" {
		return nil, ErrInvalidToken
	}

	email := ""
	if raw, ok := t.Claims["email"]; ok {
		if e, ok2 := raw.(string); ok2 {
			email = strings.TrimSpace(e)
		}
	}

	var expires time.Time
	if t.Expires > 0 {
		expires = time.Unix(t.Expires, 0).UTC()
	}

	return &identity.Session{
		User:        identity.User{ID: strings.TrimSpace(t.UID), Email: email},
		AccessToken: tok,
		ExpiresAt:   expires,
	}, nil
}

func (s *SessionSource) storedToken() string {
	if s.store == nil {
		return ""
	}
	raw, ok, err := s.store.Get(KeyAuthToken)
	if err != nil {
		log.Printf("[firebase] WARN: read stored token failed: %v", err)
		return ""
	}
	if !ok {
		return ""
	}
	return strings.TrimSpace(string(raw))
}

func (s *SessionSource) forgetToken() {
	if s.store == nil {
		return
	}
	if err := s.store.Remove(KeyAuthToken); err != nil {
		log.Printf("[firebase] WARN: remove stored token failed: %v", err)
	}
}

// armLocked schedules sign-out at the session's expiry. Must hold s.mu.
func (s *SessionSource) armLocked(sess *identity.Session) {
	s.stopLocked()
	if sess == nil || sess.ExpiresAt.IsZero() {
		return
	}
	token := sess.AccessToken
	d := sess.ExpiresAt.Sub(s.now())
	if d < 0 {
		d = 0
	}
	s.timer = time.AfterFunc(d, func() { s.expire(token) })
}

func (s *SessionSource) stopLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *SessionSource) expire(token string) {
	s.mu.Lock()
	if s.session == nil || s.session.AccessToken != token {
		s.mu.Unlock()
		return
	}
	uid := s.session.User.ID
	s.session = nil
	s.timer = nil
	s.mu.Unlock()

	s.forgetToken()
	log.Printf("[firebase] session expired uid=%s", uid)
	s.emit(identity.EventSignedOut, nil)
}

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
