package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"solare/internal/application/eventbus"
	"solare/internal/domain/favorite"
	"solare/internal/domain/product"
)

var (
	ErrNoFavoriteRepository = errors.New("state: favorite repository is nil")
)

// FavoritesState is the in-memory favorites set for the current identity.
//
// Mutations are optimistic: memory and local storage change immediately and the
// remote write (authenticated users only) is queued in the background.
// On sign-in, anonymous favorites are merged into the user's remote set.
type FavoritesState struct {
	repo  favorite.Repository
	auth  *AuthState
	local LocalStore
	bus   *eventbus.Bus
	base  context.Context
	now   func() time.Time

	mu    sync.RWMutex
	items []favorite.Entry

	// mergeMu guards mergedUser and the anonymous baseline, and serializes merges.
	mergeMu     sync.Mutex
	mergedUser  string
	baseline    []favorite.Entry
	hasBaseline bool

	queue *mirrorQueue

	unsubAuth func()
	stopWatch func()
	closeOnce sync.Once
}

func NewFavoritesState(
	base context.Context,
	repo favorite.Repository,
	auth *AuthState,
	local LocalStore,
	bus *eventbus.Bus,
	now func() time.Time,
) *FavoritesState {
	if base == nil {
		base = context.Background()
	}
	if now == nil {
		now = time.Now
	}
	f := &FavoritesState{
		repo:  repo,
		auth:  auth,
		local: local,
		bus:   bus,
		base:  base,
		now:   now,
		queue: newMirrorQueue(base),
	}

	f.items = f.readLocal()

	f.unsubAuth = eventbus.On(bus, EventAuthChanged, f.onAuthChanged)
	if local != nil {
		f.stopWatch = local.Watch(KeyFavorites, f.onStorage)
	}
	return f
}

func (f *FavoritesState) readLocal() []favorite.Entry {
	entries, _, err := loadJSON[[]favorite.Entry](f.local, KeyFavorites)
	if err != nil {
		log.Printf("[state.favorites] WARN: %v (starting empty)", err)
		return []favorite.Entry{}
	}
	return favorite.Dedupe(entries)
}

// ============================================================
// Reads
// ============================================================

func (f *FavoritesState) GetAll() []favorite.Entry {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return favorite.Clone(f.items)
}

func (f *FavoritesState) IsFavorite(productID string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return favorite.IndexOf(f.items, productID) >= 0
}

func (f *FavoritesState) Count() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.items)
}

// ============================================================
// Sync / merge
// ============================================================

// Sync waits for auth readiness and, when a user is signed in, merges local
// favorites with the user's remote set. Anonymous callers keep the local set.
func (f *FavoritesState) Sync(ctx context.Context) error {
	if f.auth != nil {
		if err := f.auth.WaitReady(ctx); err != nil {
			return fmt.Errorf("favorites: wait auth: %w", err)
		}
	}
	u := f.currentUserID()
	if u == "" {
		f.publish()
		return nil
	}
	return f.merge(ctx, u)
}

// merge runs once per sign-in transition. Pending mirror writes are flushed first
// so the remote list reflects every mutation made before the merge.
func (f *FavoritesState) merge(ctx context.Context, userID string) error {
	f.mergeMu.Lock()
	if f.mergedUser == userID {
		f.mergeMu.Unlock()
		return nil
	}
	f.captureBaselineLocked()
	err := f.mergeLocked(ctx, userID)
	f.mergeMu.Unlock()

	f.publish()
	return err
}

func (f *FavoritesState) mergeLocked(ctx context.Context, userID string) error {
	if f.repo == nil {
		return ErrNoFavoriteRepository
	}

	f.queue.wait()

	remote, err := f.repo.List(ctx, userID)
	if err != nil {
		log.Printf("[state.favorites] list remote failed uid=%s: %v", userID, err)
		return fmt.Errorf("favorites: list remote: %w", err)
	}

	f.mu.Lock()
	merged, localOnly := favorite.Merge(f.items, remote)
	f.items = merged
	f.mu.Unlock()

	for _, e := range localOnly {
		if err := f.repo.Insert(ctx, userID, e.ProductID); err != nil {
			log.Printf("[state.favorites] WARN: push local favorite failed uid=%s product=%s: %v", userID, e.ProductID, err)
		}
	}

	f.mergedUser = userID
	log.Printf("[state.favorites] merged uid=%s remote=%d pushed=%d", userID, len(remote), len(localOnly))
	return nil
}

func (f *FavoritesState) onAuthChanged(ev AuthChanged) {
	if f.auth != nil && !f.auth.IsReady() {
		return
	}

	if ev.User != nil {
		if err := f.merge(f.base, ev.User.ID); err != nil {
			log.Printf("[state.favorites] WARN: merge after %s failed: %v", ev.Event, err)
		}
		return
	}

	// Signed out: drop remote-sourced entries and edits made while signed in.
	f.mergeMu.Lock()
	f.mergedUser = ""
	items := f.takeBaselineLocked()
	f.mergeMu.Unlock()

	f.mu.Lock()
	f.items = items
	f.mu.Unlock()

	f.persist()
	f.publish()
}

// captureBaselineLocked records the anonymous set before the first merge of a
// signed-in period. A sibling's saved baseline wins over this manager's memory,
// which may already hold a signed-in set read from KeyFavorites. Must hold mergeMu.
func (f *FavoritesState) captureBaselineLocked() {
	if f.hasBaseline {
		return
	}
	f.hasBaseline = true

	saved, ok, err := loadJSON[[]favorite.Entry](f.local, KeyFavoritesAnonymous)
	if err != nil {
		log.Printf("[state.favorites] WARN: %v (using in-memory set as baseline)", err)
	}
	if ok {
		f.baseline = favorite.Dedupe(saved)
		return
	}

	f.baseline = f.GetAll()
	if err := saveJSON(f.local, KeyFavoritesAnonymous, f.baseline); err != nil {
		log.Printf("[state.favorites] WARN: save anonymous baseline failed: %v", err)
	}
}

// takeBaselineLocked returns the anonymous set to restore on sign-out and
// forgets it. Must hold mergeMu.
func (f *FavoritesState) takeBaselineLocked() []favorite.Entry {
	var items []favorite.Entry
	switch {
	case f.hasBaseline:
		items = f.baseline
	default:
		saved, ok, err := loadJSON[[]favorite.Entry](f.local, KeyFavoritesAnonymous)
		if err != nil {
			log.Printf("[state.favorites] WARN: %v", err)
		}
		if ok {
			items = favorite.Dedupe(saved)
		} else {
			items = f.readLocal()
		}
	}
	f.baseline = nil
	f.hasBaseline = false

	if f.local != nil {
		if err := f.local.Remove(KeyFavoritesAnonymous); err != nil {
			log.Printf("[state.favorites] WARN: remove anonymous baseline failed: %v", err)
		}
	}
	if items == nil {
		items = []favorite.Entry{}
	}
	return favorite.Clone(items)
}

// onStorage replaces the set wholesale with a sibling's write.
func (f *FavoritesState) onStorage(raw []byte, present bool) {
	entries := []favorite.Entry{}
	if present && len(raw) > 0 {
		if err := json.Unmarshal(raw, &entries); err != nil {
			log.Printf("[state.favorites] WARN: ignoring undecodable %s: %v", KeyFavorites, err)
			return
		}
	}

	f.mu.Lock()
	f.items = favorite.Dedupe(entries)
	f.mu.Unlock()

	f.publish()
}

// ============================================================
// Mutations
// ============================================================

// Add favorites p. It reports false when p is invalid or already a favorite.
func (f *FavoritesState) Add(p product.Product) bool {
	e, err := favorite.NewEntry(p, f.now())
	if err != nil {
		return false
	}

	f.mu.Lock()
	if favorite.IndexOf(f.items, e.ProductID) >= 0 {
		f.mu.Unlock()
		return false
	}
	f.items = append(f.items, e)
	f.mu.Unlock()

	f.persist()
	if uid := f.currentUserID(); uid != "" && f.repo != nil {
		pid := e.ProductID
		f.queue.push("insert "+pid, func(ctx context.Context) error {
			return f.repo.Insert(ctx, uid, pid)
		})
	}
	f.publish()
	return true
}

// Remove drops productID. It reports false when it was not a favorite.
func (f *FavoritesState) Remove(productID string) bool {
	pid := strings.TrimSpace(productID)

	f.mu.Lock()
	idx := favorite.IndexOf(f.items, pid)
	if idx < 0 {
		f.mu.Unlock()
		return false
	}
	next := make([]favorite.Entry, 0, len(f.items)-1)
	next = append(next, f.items[:idx]...)
	next = append(next, f.items[idx+1:]...)
	f.items = next
	f.mu.Unlock()

	f.persist()
	if uid := f.currentUserID(); uid != "" && f.repo != nil {
		f.queue.push("delete "+pid, func(ctx context.Context) error {
			return f.repo.Delete(ctx, uid, pid)
		})
	}
	f.publish()
	return true
}

// Toggle removes p when it is a favorite and adds it otherwise.
// It returns whether p is a favorite afterwards.
func (f *FavoritesState) Toggle(p product.Product) bool {
	if f.IsFavorite(p.ID) {
		f.Remove(p.ID)
		return false
	}
	return f.Add(p)
}

// WaitPending blocks until queued remote writes have finished.
func (f *FavoritesState) WaitPending() {
	f.queue.wait()
}

func (f *FavoritesState) currentUserID() string {
	if f.auth == nil {
		return ""
	}
	if u := f.auth.GetUser(); u != nil {
		return u.ID
	}
	return ""
}

func (f *FavoritesState) persist() {
	if err := saveJSON(f.local, KeyFavorites, f.GetAll()); err != nil {
		log.Printf("[state.favorites] WARN: mirror to local storage failed: %v", err)
	}
}

func (f *FavoritesState) publish() {
	f.bus.Publish(EventFavoritesChanged, FavoritesChanged{Favorites: f.GetAll()})
}

// Close detaches from the bus and local storage. Queued writes still run.
func (f *FavoritesState) Close() {
	f.closeOnce.Do(func() {
		if f.unsubAuth != nil {
			f.unsubAuth()
		}
		if f.stopWatch != nil {
			f.stopWatch()
		}
	})
}
