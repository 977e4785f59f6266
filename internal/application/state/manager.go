package state

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"solare/internal/application/eventbus"
	"solare/internal/domain/cart"
	"solare/internal/domain/favorite"
	"solare/internal/domain/identity"
)

const defaultReadyTimeout = 10 * time.Second

// Backend is the remote store as seen by the state layer.
// Any component that also implements identity.Readier is awaited before Start proceeds.
type Backend struct {
	Sessions  identity.SessionSource
	Carts     cart.Repository
	Favorites favorite.Repository
}

type Options struct {
	ReadyTimeout          time.Duration
	SessionLookupAttempts int
	SessionLookupInterval time.Duration
	// Clock stamps favorites; defaults to time.Now.
	Clock func() time.Time
}

// Manager owns one bus and one instance of each state module.
// It is the only object the rest of the application needs.
type Manager struct {
	backend Backend
	opts    Options

	bus       *eventbus.Bus
	auth      *AuthState
	identity  *IdentityProvider
	cart      *CartState
	favorites *FavoritesState

	startOnce sync.Once
	startErr  error
	closeOnce sync.Once
}

// NewManager wires the modules. ctx bounds background reloads for the manager's lifetime.
// Nothing touches the network until Start.
func NewManager(ctx context.Context, backend Backend, local LocalStore, opts Options) *Manager {
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.ReadyTimeout <= 0 {
		opts.ReadyTimeout = defaultReadyTimeout
	}

	bus := eventbus.New()
	auth := NewAuthState(backend.Sessions, bus, AuthOptions{
		LookupAttempts: opts.SessionLookupAttempts,
		LookupInterval: opts.SessionLookupInterval,
	})
	ids := NewIdentityProvider(local, auth)

	return &Manager{
		backend:   backend,
		opts:      opts,
		bus:       bus,
		auth:      auth,
		identity:  ids,
		cart:      NewCartState(ctx, backend.Carts, ids, auth, local, bus),
		favorites: NewFavoritesState(ctx, backend.Favorites, auth, local, bus, opts.Clock),
	}
}

// Start runs the startup sequence once:
//  1. backend readiness handshake
//  2. auth start (initial session lookup)
//  3. cart load and favorites sync, concurrently
//
// Failures degrade (anonymous session, empty cart) and are returned joined;
// the manager stays usable either way.
func (m *Manager) Start(ctx context.Context) error {
	m.startOnce.Do(func() {
		var errs []error

		if err := m.handshake(ctx); err != nil {
			errs = append(errs, err)
		}

		m.auth.Start(ctx)

		var (
			g       errgroup.Group
			cartErr error
			favErr  error
		)
		g.Go(func() error {
			cartErr = m.cart.Load(ctx)
			return nil
		})
		g.Go(func() error {
			favErr = m.favorites.Sync(ctx)
			return nil
		})
		_ = g.Wait()

		if cartErr != nil {
			log.Printf("[state] WARN: initial cart load failed: %v", cartErr)
			errs = append(errs, cartErr)
		}
		if favErr != nil {
			log.Printf("[state] WARN: initial favorites sync failed: %v", favErr)
			errs = append(errs, favErr)
		}

		m.startErr = errors.Join(errs...)
		log.Printf("[state] started authenticated=%t cartItems=%d favorites=%d",
			m.auth.IsAuthenticated(), m.cart.ItemCount(), m.favorites.Count())
	})
	return m.startErr
}

func (m *Manager) handshake(ctx context.Context) error {
	seen := map[identity.Readier]struct{}{}
	var errs []error

	for _, c := range []any{m.backend.Sessions, m.backend.Carts, m.backend.Favorites} {
		r, ok := c.(identity.Readier)
		if !ok || r == nil {
			continue
		}
		if _, dup := seen[r]; dup {
			continue
		}
		seen[r] = struct{}{}

		rctx, cancel := context.WithTimeout(ctx, m.opts.ReadyTimeout)
		err := r.Ready(rctx)
		cancel()
		if err != nil {
			log.Printf("[state] WARN: backend %T not ready: %v", r, err)
			errs = append(errs, fmt.Errorf("state: backend handshake %T: %w", r, err))
		}
	}
	return errors.Join(errs...)
}

func (m *Manager) Auth() *AuthState { return m.auth }
func (m *Manager) Cart() *CartState { return m.cart }
func (m *Manager) Favorites() *FavoritesState { return m.favorites }
func (m *Manager) Identity() *IdentityProvider { return m.identity }
func (m *Manager) Bus() *eventbus.Bus { return m.bus }

// On subscribes h to name on the manager's bus.
func (m *Manager) On(name string, h eventbus.Handler) func() {
	return m.bus.Subscribe(name, h)
}

// Off calls an unsubscribe func returned by On. Nil is ignored.
func (m *Manager) Off(unsubscribe func()) {
	if unsubscribe != nil {
		unsubscribe()
	}
}

// Close detaches every module and waits for queued favorites writes.
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		m.cart.Close()
		m.favorites.Close()
		m.auth.Close()
		m.favorites.WaitPending()
	})
}
