package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solare/internal/adapters/in/compat"
	"solare/internal/adapters/out/memory"
	"solare/internal/application/state"
	"solare/internal/domain/product"
	"solare/internal/infra/localstore"
)

type prefixImages struct{}

func (prefixImages) Resolve(_ context.Context, stored string) string {
	return "https://img.example/" + stored
}

type fixture struct {
	mux   *http.ServeMux
	store *memory.Store
	m     *state.Manager
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewStore()
	store.PutProduct(product.Product{ID: "p1", Name: "Shirt", Price: 20, Image: "shirt.png"})
	store.PutProduct(product.Product{ID: "p2", Name: "Mug", Price: 12.5})
	sessions := memory.NewSessionSource()

	m := state.NewManager(context.Background(), state.Backend{
		Sessions:  sessions,
		Carts:     store,
		Favorites: store.Favorites(),
	}, localstore.NewMemoryProfile().Tab(), state.Options{
		ReadyTimeout:          time.Second,
		SessionLookupAttempts: 1,
		SessionLookupInterval: time.Millisecond,
	})
	t.Cleanup(m.Close)
	legacy := compat.New(m)
	t.Cleanup(legacy.Close)
	require.NoError(t, m.Start(context.Background()))

	mux := http.NewServeMux()
	Register(mux, NewStateHandler(Deps{
		Manager:  m,
		Legacy:   legacy,
		Sessions: sessions,
		Catalog:  store,
		Images:   prefixImages{},
	}))
	return &fixture{mux: mux, store: store, m: m}
}

func (f *fixture) do(t *testing.T, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, req)

	out := map[string]any{}
	_ = json.Unmarshal(rec.Body.Bytes(), &out)
	return rec, out
}

func TestAddItemAndReadCart(t *testing.T) {
	f := newFixture(t)

	rec, body := f.do(t, http.MethodPost, "/cart/items", `{"productId":"p1"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	items := body["items"].([]any)
	require.Len(t, items, 1)
	item := items[0].(map[string]any)
	assert.Equal(t, "p1", item["id"])
	assert.Equal(t, "https://img.example/shirt.png", item["image"])

	rec, _ = f.do(t, http.MethodPatch, "/cart/items/p1", `{"quantity":3}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 3, f.m.Cart().ItemCount())

	// stored state keeps the raw reference
	assert.Equal(t, "shirt.png", f.m.Cart().GetItems()[0].Image)

	rec, body = f.do(t, http.MethodGet, "/state/cart", "")
	require.Equal(t, http.StatusOK, rec.Code)
	totals := body["totals"].(map[string]any)
	assert.InDelta(t, 60, totals["subtotal"], 1e-9)
	assert.Equal(t, "ready", body["status"])

	rec, _ = f.do(t, http.MethodDelete, "/cart/items/p1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Zero(t, f.m.Cart().ItemCount())
}

func TestAddItemErrors(t *testing.T) {
	f := newFixture(t)

	rec, _ := f.do(t, http.MethodPost, "/cart/items", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = f.do(t, http.MethodPost, "/cart/items", `{"productId":"nope"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	f.store.Fail(memory.OpInsertLine, nil)
	rec, _ = f.do(t, http.MethodPost, "/cart/items", `{"productId":"p1"}`)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Empty(t, f.m.Cart().GetItems())

	rec, _ = f.do(t, http.MethodGet, "/cart/items", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestSessionEndpoints(t *testing.T) {
	f := newFixture(t)

	rec, body := f.do(t, http.MethodPost, "/auth/session", `{"token":"u1:u1@example.com"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["authenticated"])
	assert.Equal(t, "user:u1", body["identity"])

	rec, _ = f.do(t, http.MethodPost, "/auth/session", `{"token":":"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, body = f.do(t, http.MethodDelete, "/auth/session", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, body["authenticated"])
	assert.True(t, strings.HasPrefix(body["identity"].(string), "anonymous:"))
}

func TestBearerSignIn(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/auth/session", nil)
	req.Header.Set("Authorization", "Bearer u9")
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "u9", f.m.Auth().GetUser().ID)
}

func TestToggleFavoriteAndSnapshots(t *testing.T) {
	f := newFixture(t)

	rec, body := f.do(t, http.MethodPost, "/favorites/toggle", `{"productId":"p2"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["favorite"])
	assert.EqualValues(t, 1, body["count"])

	rec, body = f.do(t, http.MethodGet, "/state", "")
	require.Equal(t, http.StatusOK, rec.Code)
	favs := body["favorites"].(map[string]any)
	assert.EqualValues(t, 1, favs["count"])
	assert.Contains(t, body, "auth")
	assert.Contains(t, body, "cart")

	rec, body = f.do(t, http.MethodGet, "/state/legacy", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, body["favorites"].(map[string]any)["count"])
	assert.Nil(t, body["user"])

	rec, body = f.do(t, http.MethodPost, "/favorites/toggle", `{"productId":"p2"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, body["favorite"])
	assert.EqualValues(t, 0, body["count"])

	rec, _ = f.do(t, http.MethodGet, "/state/unknown", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestClearCart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.m.Cart().AddItem(ctx, product.Product{ID: "p1", Name: "Shirt", Price: 20}))

	rec, _ := f.do(t, http.MethodDelete, "/cart", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, f.m.Cart().GetItems())
	assert.Len(t, f.store.CallsOf(memory.OpDeleteAllLines), 1)
}
