// internal/adapters/in/compat/facade.go
package compat

import (
	"context"
	"sync"

	"solare/internal/application/eventbus"
	"solare/internal/application/state"
	"solare/internal/domain/cart"
	"solare/internal/domain/favorite"
	"solare/internal/domain/identity"
	"solare/internal/domain/product"
)

// Legacy event names.
const (
	EventCartUpdated      = "cartUpdated"
	EventFavoritesUpdated = "favoritesUpdated"
	EventAuthStateChanged = "authStateChanged"
)

// LegacyCart is the shape older views read.
type LegacyCart struct {
	Items    []cart.LineItem `json:"items"`
	Count    int             `json:"count"`
	Subtotal float64         `json:"subtotal"`
	Total    float64         `json:"total"`
}

type LegacyFavorites struct {
	Items []favorite.Entry `json:"items"`
	Count int              `json:"count"`
}

// LegacyUser is nil in snapshots when nobody is signed in.
type LegacyUser struct {
	ID    string `json:"id"`
	Email string `json:"email,omitempty"`
}

// Snapshot holds copies of the three legacy objects.
type Snapshot struct {
	Cart      LegacyCart      `json:"cart"`
	Favorites LegacyFavorites `json:"favorites"`
	User      *LegacyUser     `json:"user"`
}

// Facade keeps the legacy objects in step with a state.Manager and re-emits
// its events under the legacy names on a bus of its own.
type Facade struct {
	m   *state.Manager
	bus *eventbus.Bus

	mu        sync.RWMutex
	cart      LegacyCart
	favorites LegacyFavorites
	user      *LegacyUser

	unsubs    []func()
	closeOnce sync.Once
}

// New seeds the legacy objects from m's current state and follows its events.
func New(m *state.Manager) *Facade {
	f := &Facade{m: m, bus: eventbus.New()}

	f.cart = legacyCart(m.Cart().GetItems(), m.Cart().GetTotals())
	f.favorites = legacyFavorites(m.Favorites().GetAll())
	f.user = legacyUser(m.Auth().GetUser())

	f.unsubs = []func(){
		eventbus.On(m.Bus(), state.EventCartChanged, f.onCart),
		eventbus.On(m.Bus(), state.EventFavoritesChanged, f.onFavorites),
		eventbus.On(m.Bus(), state.EventAuthChanged, f.onAuth),
	}
	return f
}

func legacyCart(items []cart.LineItem, t cart.Totals) LegacyCart {
	if items == nil {
		items = []cart.LineItem{}
	}
	return LegacyCart{Items: items, Count: t.ItemCount, Subtotal: t.Subtotal, Total: t.Total}
}

func legacyFavorites(items []favorite.Entry) LegacyFavorites {
	if items == nil {
		items = []favorite.Entry{}
	}
	return LegacyFavorites{Items: items, Count: len(items)}
}

func legacyUser(u *identity.User) *LegacyUser {
	if u == nil {
		return nil
	}
	return &LegacyUser{ID: u.ID, Email: u.Email}
}

func (f *Facade) onCart(ev state.CartChanged) {
	lc := legacyCart(ev.Items, ev.Totals)
	f.mu.Lock()
	f.cart = lc
	f.mu.Unlock()
	f.bus.Publish(EventCartUpdated, f.Cart())
}

func (f *Facade) onFavorites(ev state.FavoritesChanged) {
	lf := legacyFavorites(ev.Favorites)
	f.mu.Lock()
	f.favorites = lf
	f.mu.Unlock()
	f.bus.Publish(EventFavoritesUpdated, f.Favorites())
}

func (f *Facade) onAuth(ev state.AuthChanged) {
	u := legacyUser(ev.User)
	f.mu.Lock()
	f.user = u
	f.mu.Unlock()
	f.bus.Publish(EventAuthStateChanged, f.User())
}

// On subscribes to a legacy event. Payloads are LegacyCart, LegacyFavorites and *LegacyUser.
func (f *Facade) On(name string, h eventbus.Handler) func() {
	return f.bus.Subscribe(name, h)
}

// ============================================================
// Legacy objects
// ============================================================

func (f *Facade) Cart() LegacyCart {
	f.mu.RLock()
	defer f.mu.RUnlock()
	c := f.cart
	c.Items = cart.CloneItems(c.Items)
	return c
}

func (f *Facade) Favorites() LegacyFavorites {
	f.mu.RLock()
	defer f.mu.RUnlock()
	fv := f.favorites
	fv.Items = favorite.Clone(fv.Items)
	return fv
}

func (f *Facade) User() *LegacyUser {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.user == nil {
		return nil
	}
	u := *f.user
	return &u
}

func (f *Facade) Snapshot() Snapshot {
	return Snapshot{Cart: f.Cart(), Favorites: f.Favorites(), User: f.User()}
}

// ============================================================
// Legacy helpers
// ============================================================

func (f *Facade) AddToCart(ctx context.Context, p product.Product) error {
	return f.m.Cart().AddItem(ctx, p)
}

func (f *Facade) RemoveFromCart(ctx context.Context, productID string) error {
	return f.m.Cart().RemoveItem(ctx, productID)
}

func (f *Facade) UpdateCartQuantity(ctx context.Context, productID string, quantity int) error {
	return f.m.Cart().UpdateQuantity(ctx, productID, quantity)
}

// ToggleFavorite reports whether p is a favorite afterwards.
func (f *Facade) ToggleFavorite(p product.Product) bool {
	return f.m.Favorites().Toggle(p)
}

func (f *Facade) IsFavorite(productID string) bool {
	return f.m.Favorites().IsFavorite(productID)
}

// CartCount is the total quantity across lines.
func (f *Facade) CartCount() int {
	return f.m.Cart().ItemCount()
}

// Close stops following the manager. The legacy objects keep their last values.
func (f *Facade) Close() {
	f.closeOnce.Do(func() {
		for _, u := range f.unsubs {
			u()
		}
	})
}
