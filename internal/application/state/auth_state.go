package state

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"solare/internal/application/eventbus"
	"solare/internal/domain/identity"
)

const (
	defaultSessionLookupAttempts = 5
	defaultSessionLookupInterval = 200 * time.Millisecond
)

var (
	ErrNoSessionSource = errors.New("state: session source is nil")
)

// AuthOptions bounds the initial session lookup.
type AuthOptions struct {
	LookupAttempts int
	LookupInterval time.Duration
}

// AuthState is the single source of truth for who is using the app right now.
// GetUser/GetSession never block; callers that need the answer to be settled wait on Ready.
type AuthState struct {
	source identity.SessionSource
	bus    *eventbus.Bus

	attempts int
	interval time.Duration

	mu      sync.RWMutex
	session *identity.Session
	// generation counts change notifications; the initial lookup must not clobber a newer one.
	generation uint64

	ready     chan struct{}
	readyOnce sync.Once
	startOnce sync.Once

	unsubscribe func()
}

func NewAuthState(source identity.SessionSource, bus *eventbus.Bus, opts AuthOptions) *AuthState {
	if opts.LookupAttempts <= 0 {
		opts.LookupAttempts = defaultSessionLookupAttempts
	}
	if opts.LookupInterval <= 0 {
		opts.LookupInterval = defaultSessionLookupInterval
	}
	return &AuthState{
		source:   source,
		bus:      bus,
		attempts: opts.LookupAttempts,
		interval: opts.LookupInterval,
		ready:    make(chan struct{}),
	}
}

// Start subscribes to session changes and performs the initial lookup.
// It returns once the state is ready; lookup failures degrade to anonymous.
// Calling Start more than once is a no-op.
func (a *AuthState) Start(ctx context.Context) {
	a.startOnce.Do(func() {
		defer a.markReady()

		if a.source == nil {
			log.Printf("[state.auth] WARN: %v; continuing anonymous", ErrNoSessionSource)
			return
		}

		unsub := a.source.OnSessionChange(a.handleSessionChange)
		a.mu.Lock()
		a.unsubscribe = unsub
		gen := a.generation
		a.mu.Unlock()

		s, err := a.lookup(ctx)
		if err != nil {
			log.Printf("[state.auth] WARN: initial session lookup failed: %v (continuing anonymous)", err)
			return
		}

		a.mu.Lock()
		if a.generation == gen {
			a.session = s
		}
		a.mu.Unlock()

		if s != nil {
			log.Printf("[state.auth] session restored uid=%s", s.User.ID)
		}
	})
}

func (a *AuthState) lookup(ctx context.Context) (*identity.Session, error) {
	var lastErr error
	for attempt := 1; attempt <= a.attempts; attempt++ {
		s, err := a.source.GetCurrentSession(ctx)
		if err == nil {
			return s, nil
		}
		lastErr = err
		log.Printf("[state.auth] session lookup attempt %d/%d failed: %v", attempt, a.attempts, err)

		if attempt == a.attempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, errors.Join(lastErr, ctx.Err())
		case <-time.After(a.interval):
		}
	}
	return nil, lastErr
}

func (a *AuthState) handleSessionChange(event identity.AuthEvent, s *identity.Session) {
	if event == identity.EventSignedOut {
		s = nil
	}

	var snap *identity.Session
	if s != nil {
		cp := *s
		snap = &cp
	}

	a.mu.Lock()
	a.generation++
	a.session = snap
	a.mu.Unlock()

	uid := ""
	if snap != nil {
		uid = snap.User.ID
	}
	log.Printf("[state.auth] %s uid=%s", event, uid)

	a.bus.Publish(EventAuthChanged, AuthChanged{
		User:    userOf(snap),
		Session: copySession(snap),
		Event:   event,
	})
}

func (a *AuthState) markReady() {
	a.readyOnce.Do(func() { close(a.ready) })
}

// Ready is closed once the first session lookup has completed (successfully or not).
func (a *AuthState) Ready() <-chan struct{} {
	return a.ready
}

func (a *AuthState) IsReady() bool {
	select {
	case <-a.ready:
		return true
	default:
		return false
	}
}

// WaitReady blocks until ready or ctx is done.
func (a *AuthState) WaitReady(ctx context.Context) error {
	select {
	case <-a.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// GetUser returns a copy of the current user, or nil.
func (a *AuthState) GetUser() *identity.User {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return userOf(a.session)
}

// GetSession returns a copy of the current session, or nil.
func (a *AuthState) GetSession() *identity.Session {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return copySession(a.session)
}

func (a *AuthState) IsAuthenticated() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.session != nil && a.session.User.ID != ""
}

// Close stops listening to session changes. Ready stays closed.
func (a *AuthState) Close() {
	a.mu.Lock()
	unsub := a.unsubscribe
	a.unsubscribe = nil
	a.mu.Unlock()

	if unsub != nil {
		unsub()
	}
	a.markReady()
}

func userOf(s *identity.Session) *identity.User {
	if s == nil || s.User.ID == "" {
		return nil
	}
	u := s.User
	return &u
}

func copySession(s *identity.Session) *identity.Session {
	if s == nil {
		return nil
	}
	cp := *s
	return &cp
}
