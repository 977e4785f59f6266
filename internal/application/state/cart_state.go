package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"

	"solare/internal/application/eventbus"
	"solare/internal/domain/cart"
	"solare/internal/domain/identity"
	"solare/internal/domain/product"
)

var (
	ErrNoCartRepository = errors.New("state: cart repository is nil")
)

// Status is the per-manager cart lifecycle.
type Status string

const (
	StatusUninitialized Status = "uninitialized"
	StatusLoading       Status = "loading"
	StatusReady         Status = "ready"
)

// CartState is the in-memory cart for the current identity.
//
// Remote writes are awaited: memory changes only after the remote store confirms,
// and remote errors are returned to the caller. Every successful mutation is
// mirrored to KeyCart so sibling managers on the same profile pick it up
// (last write wins).
type CartState struct {
	repo  cart.Repository
	ids   *IdentityProvider
	auth  *AuthState
	local LocalStore
	bus   *eventbus.Bus
	// base is used for reloads triggered by auth:changed and storage notifications.
	base context.Context

	// opMu serializes loads and remote mutations.
	opMu sync.Mutex

	mu     sync.RWMutex
	status Status
	cartID string
	owner  identity.Context
	items  []cart.LineItem

	unsubAuth func()
	stopWatch func()
	closeOnce sync.Once
}

func NewCartState(
	base context.Context,
	repo cart.Repository,
	ids *IdentityProvider,
	auth *AuthState,
	local LocalStore,
	bus *eventbus.Bus,
) *CartState {
	if base == nil {
		base = context.Background()
	}
	c := &CartState{
		repo:   repo,
		ids:    ids,
		auth:   auth,
		local:  local,
		bus:    bus,
		base:   base,
		status: StatusUninitialized,
		items:  []cart.LineItem{},
	}

	c.unsubAuth = eventbus.On(bus, EventAuthChanged, c.onAuthChanged)
	if local != nil {
		c.stopWatch = local.Watch(KeyCart, c.onStorage)
	}
	return c
}

// ============================================================
// Reads (no I/O, never block on the network)
// ============================================================

func (c *CartState) GetItems() []cart.LineItem {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return cart.CloneItems(c.items)
}

func (c *CartState) GetTotals() cart.Totals {
	return cart.ComputeTotals(c.GetItems())
}

func (c *CartState) ItemCount() int {
	return c.GetTotals().ItemCount
}

func (c *CartState) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

// CartID is the remote cart id, empty until a load succeeds.
func (c *CartState) CartID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cartID
}

// ============================================================
// Load
// ============================================================

// Load waits for auth readiness, then (re)loads the cart of the current identity,
// creating an empty remote cart if none exists. On failure the cart is left empty.
func (c *CartState) Load(ctx context.Context) error {
	c.opMu.Lock()
	err := c.loadLocked(ctx)
	c.opMu.Unlock()

	c.publish()
	return err
}

func (c *CartState) loadLocked(ctx context.Context) error {
	if c.repo == nil {
		c.reset(StatusReady)
		return ErrNoCartRepository
	}
	if c.auth != nil {
		if err := c.auth.WaitReady(ctx); err != nil {
			return fmt.Errorf("cart: wait auth: %w", err)
		}
	}

	c.mu.Lock()
	c.status = StatusLoading
	c.mu.Unlock()

	owner := c.ids.Current()

	ct, err := c.repo.FindCart(ctx, owner)
	if err != nil {
		c.reset(StatusReady)
		log.Printf("[state.cart] load failed owner=%s: %v", owner.Key(), err)
		return fmt.Errorf("cart: find cart: %w", err)
	}
	if ct == nil {
		ct, err = c.repo.CreateCart(ctx, owner)
		if err != nil {
			c.reset(StatusReady)
			log.Printf("[state.cart] create failed owner=%s: %v", owner.Key(), err)
			return fmt.Errorf("cart: create cart: %w", err)
		}
	}

	lines, err := c.repo.ListLines(ctx, ct.ID)
	if err != nil {
		c.reset(StatusReady)
		log.Printf("[state.cart] list lines failed cart=%s: %v", ct.ID, err)
		return fmt.Errorf("cart: list lines: %w", err)
	}

	c.mu.Lock()
	c.cartID = ct.ID
	c.owner = owner
	c.items = cart.CloneItems(lines)
	c.status = StatusReady
	c.mu.Unlock()

	c.persist()
	return nil
}

// reset drops the cart from memory. Used when a load fails so the previous
// identity's items never leak into the new one.
func (c *CartState) reset(status Status) {
	c.mu.Lock()
	c.cartID = ""
	c.owner = identity.Context{}
	c.items = []cart.LineItem{}
	c.status = status
	c.mu.Unlock()
}

// ensureCartLocked makes sure a remote cart for the current identity is loaded.
func (c *CartState) ensureCartLocked(ctx context.Context) (string, error) {
	if c.repo == nil {
		return "", ErrNoCartRepository
	}

	c.mu.RLock()
	id, owner, status := c.cartID, c.owner, c.status
	c.mu.RUnlock()

	if status == StatusReady && id != "" && owner == c.ids.Current() {
		return id, nil
	}
	if err := c.loadLocked(ctx); err != nil {
		return "", err
	}
	return c.CartID(), nil
}

// ============================================================
// Mutations
// ============================================================

// AddItem adds one unit of p: increments an existing line, or inserts a new
// line with quantity 1 at p's current price. Memory is untouched on failure.
func (c *CartState) AddItem(ctx context.Context, p product.Product) error {
	if err := p.Validate(); err != nil {
		return cart.ErrInvalidProduct
	}

	c.opMu.Lock()
	err := c.addItemLocked(ctx, p)
	c.opMu.Unlock()

	if err != nil {
		log.Printf("[state.cart] add item failed product=%s: %v", p.ID, err)
		return err
	}
	c.publish()
	return nil
}

func (c *CartState) addItemLocked(ctx context.Context, p product.Product) error {
	cartID, err := c.ensureCartLocked(ctx)
	if err != nil {
		return err
	}

	pid := strings.TrimSpace(p.ID)
	items := c.GetItems()

	if idx := cart.IndexOf(items, pid); idx >= 0 {
		line := items[idx]
		qty := line.Quantity + 1
		if err := c.repo.UpdateLine(ctx, line.LineID, qty); err != nil {
			return fmt.Errorf("cart: increment %s: %w", pid, err)
		}
		c.mu.Lock()
		if i := cart.IndexOf(c.items, pid); i >= 0 {
			c.items[i].Quantity = qty
		}
		c.mu.Unlock()
		c.persist()
		return nil
	}

	remote, err := c.repo.InsertLine(ctx, cartID, pid, 1)
	if err != nil {
		return fmt.Errorf("cart: insert %s: %w", pid, err)
	}
	line, err := cart.NewLineItem(p, remote.LineID, 1)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.items = append(c.items, line)
	c.mu.Unlock()
	c.persist()
	return nil
}

// UpdateQuantity sets the quantity of productID's line as given (no clamping).
// It is a no-op when the product is not in the cart.
func (c *CartState) UpdateQuantity(ctx context.Context, productID string, quantity int) error {
	c.opMu.Lock()
	changed, err := c.updateQuantityLocked(ctx, productID, quantity)
	c.opMu.Unlock()

	if err != nil {
		log.Printf("[state.cart] update quantity failed product=%s qty=%d: %v", productID, quantity, err)
		return err
	}
	if changed {
		c.publish()
	}
	return nil
}

func (c *CartState) updateQuantityLocked(ctx context.Context, productID string, quantity int) (bool, error) {
	pid := strings.TrimSpace(productID)
	items := c.GetItems()
	idx := cart.IndexOf(items, pid)
	if idx < 0 {
		return false, nil
	}
	if c.repo == nil {
		return false, ErrNoCartRepository
	}

	if err := c.repo.UpdateLine(ctx, items[idx].LineID, quantity); err != nil {
		return false, fmt.Errorf("cart: update %s: %w", pid, err)
	}

	c.mu.Lock()
	if i := cart.IndexOf(c.items, pid); i >= 0 {
		c.items[i].Quantity = quantity
	}
	c.mu.Unlock()
	c.persist()
	return true, nil
}

// RemoveItem deletes productID's line. It is a no-op when absent.
func (c *CartState) RemoveItem(ctx context.Context, productID string) error {
	c.opMu.Lock()
	changed, err := c.removeItemLocked(ctx, productID)
	c.opMu.Unlock()

	if err != nil {
		log.Printf("[state.cart] remove item failed product=%s: %v", productID, err)
		return err
	}
	if changed {
		c.publish()
	}
	return nil
}

func (c *CartState) removeItemLocked(ctx context.Context, productID string) (bool, error) {
	pid := strings.TrimSpace(productID)
	items := c.GetItems()
	idx := cart.IndexOf(items, pid)
	if idx < 0 {
		return false, nil
	}
	if c.repo == nil {
		return false, ErrNoCartRepository
	}

	if err := c.repo.DeleteLine(ctx, items[idx].LineID); err != nil {
		return false, fmt.Errorf("cart: delete %s: %w", pid, err)
	}

	c.mu.Lock()
	if i := cart.IndexOf(c.items, pid); i >= 0 {
		c.items = cart.RemoveAt(c.items, i)
	}
	c.mu.Unlock()
	c.persist()
	return true, nil
}

// Clear deletes every remote line of the current cart (if one is loaded) and empties memory.
func (c *CartState) Clear(ctx context.Context) error {
	c.opMu.Lock()
	err := c.clearLocked(ctx)
	c.opMu.Unlock()

	if err != nil {
		log.Printf("[state.cart] clear failed: %v", err)
		return err
	}
	c.publish()
	return nil
}

func (c *CartState) clearLocked(ctx context.Context) error {
	if id := c.CartID(); id != "" && c.repo != nil {
		if err := c.repo.DeleteAllLines(ctx, id); err != nil {
			return fmt.Errorf("cart: clear %s: %w", id, err)
		}
	}

	c.mu.Lock()
	c.items = []cart.LineItem{}
	c.mu.Unlock()
	c.persist()
	return nil
}

// ============================================================
// Sync
// ============================================================

// onAuthChanged reloads the cart for the new identity; old items are discarded.
// Notifications that arrive before auth is ready are covered by the initial Load.
func (c *CartState) onAuthChanged(ev AuthChanged) {
	if c.auth != nil && !c.auth.IsReady() {
		return
	}
	if err := c.Load(c.base); err != nil {
		log.Printf("[state.cart] WARN: reload after %s failed: %v", ev.Event, err)
	}
}

// onStorage replaces the items wholesale with a sibling's write.
func (c *CartState) onStorage(raw []byte, present bool) {
	items := []cart.LineItem{}
	if present && len(raw) > 0 {
		if err := json.Unmarshal(raw, &items); err != nil {
			log.Printf("[state.cart] WARN: ignoring undecodable %s: %v", KeyCart, err)
			return
		}
	}

	c.mu.Lock()
	c.items = cart.CloneItems(items)
	c.mu.Unlock()

	c.publish()
}

func (c *CartState) persist() {
	if err := saveJSON(c.local, KeyCart, c.GetItems()); err != nil {
		log.Printf("[state.cart] WARN: mirror to local storage failed: %v", err)
	}
}

func (c *CartState) publish() {
	items := c.GetItems()
	c.bus.Publish(EventCartChanged, CartChanged{
		Items:  items,
		Totals: cart.ComputeTotals(items),
	})
}

// Close detaches from the bus and local storage.
func (c *CartState) Close() {
	c.closeOnce.Do(func() {
		if c.unsubAuth != nil {
			c.unsubAuth()
		}
		if c.stopWatch != nil {
			c.stopWatch()
		}
	})
}
