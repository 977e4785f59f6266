package state_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"solare/internal/adapters/out/memory"
	"solare/internal/application/state"
	"solare/internal/domain/product"
	"solare/internal/infra/localstore"
)

var (
	shirt = product.Product{ID: "p1", Name: "Shirt", Price: 20, Category: "tops"}
	mug   = product.Product{ID: "p2", Name: "Mug", Price: 12.5}
	hat   = product.Product{ID: "p3", Name: "Cap", Price: 15}
)

type harness struct {
	store    *memory.Store
	sessions *memory.SessionSource
	profile  *localstore.MemoryProfile
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store := memory.NewStore()
	for _, p := range []product.Product{shirt, mug, hat} {
		store.PutProduct(p)
	}
	return &harness{
		store:    store,
		sessions: memory.NewSessionSource(),
		profile:  localstore.NewMemoryProfile(),
	}
}

func (h *harness) backend() state.Backend {
	return state.Backend{
		Sessions:  h.sessions,
		Carts:     h.store,
		Favorites: h.store.Favorites(),
	}
}

// tab builds a manager on a fresh tab of the shared profile without starting it.
func (h *harness) tab(t *testing.T) *state.Manager {
	t.Helper()
	m := state.NewManager(context.Background(), h.backend(), h.profile.Tab(), state.Options{
		ReadyTimeout:          time.Second,
		SessionLookupAttempts: 2,
		SessionLookupInterval: time.Millisecond,
	})
	t.Cleanup(m.Close)
	return m
}

func (h *harness) started(t *testing.T) *state.Manager {
	t.Helper()
	m := h.tab(t)
	require.NoError(t, m.Start(context.Background()))
	return m
}

// recorder collects payloads of one event type.
type recorder[T any] struct {
	mu  sync.Mutex
	got []T
}

func record[T any](m *state.Manager, name string) *recorder[T] {
	r := &recorder[T]{}
	m.On(name, func(p any) {
		if v, ok := p.(T); ok {
			r.mu.Lock()
			r.got = append(r.got, v)
			r.mu.Unlock()
		}
	})
	return r
}

func (r *recorder[T]) all() []T {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]T, len(r.got))
	copy(out, r.got)
	return out
}

func (r *recorder[T]) last() (T, bool) {
	all := r.all()
	if len(all) == 0 {
		var zero T
		return zero, false
	}
	return all[len(all)-1], true
}
