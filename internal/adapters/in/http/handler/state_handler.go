// internal/adapters/in/http/handler/state_handler.go
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"solare/internal/adapters/in/compat"
	"solare/internal/application/state"
	"solare/internal/domain/cart"
	"solare/internal/domain/favorite"
	"solare/internal/domain/identity"
	"solare/internal/domain/product"
)

// SessionController starts and ends the session the state manager follows.
type SessionController interface {
	SignIn(ctx context.Context, token string) error
	SignOut(ctx context.Context) error
}

// ImageResolver maps a stored image reference to a loadable URL.
type ImageResolver interface {
	Resolve(ctx context.Context, stored string) string
}

type Deps struct {
	Manager  *state.Manager
	Legacy   *compat.Facade
	Sessions SessionController
	Catalog  product.Repository
	Images   ImageResolver
}

// StateHandler exposes the state manager to the view layer.
//
//	GET    /state                  all three modules
//	GET    /state/{auth,cart,favorites,legacy}
//	POST   /auth/session           {"token": "..."}
//	DELETE /auth/session
//	POST   /cart/items             {"productId": "..."}
//	PATCH  /cart/items/{id}        {"quantity": n}
//	DELETE /cart/items/{id}
//	DELETE /cart
//	POST   /favorites/toggle       {"productId": "..."}
type StateHandler struct {
	d Deps
}

func NewStateHandler(d Deps) http.Handler {
	return &StateHandler{d: d}
}

// Register mounts h on every route it serves.
func Register(mux *http.ServeMux, h http.Handler) {
	if mux == nil || h == nil {
		log.Printf("[state_handler] WARN: nil mux or handler; routes not registered")
		return
	}
	for _, p := range []string{"/state", "/state/", "/auth/session", "/cart", "/cart/", "/favorites/", "/favorites/toggle"} {
		mux.Handle(p, h)
	}
}

func (h *StateHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	path := strings.TrimRight(r.URL.Path, "/")
	if path == "" {
		path = "/"
	}

	if h.d.Manager == nil {
		log.Printf("[state_handler] exit status=500 reason=manager is nil path=%q", path)
		writeErr(w, http.StatusInternalServerError, "state handler is not configured")
		return
	}

	switch {
	case path == "/state" || strings.HasPrefix(path, "/state/"):
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		h.handleState(w, r, strings.TrimPrefix(strings.TrimPrefix(path, "/state"), "/"))

	case path == "/auth/session":
		switch r.Method {
		case http.MethodPost:
			h.handleSignIn(w, r)
		case http.MethodDelete:
			h.handleSignOut(w, r)
		default:
			methodNotAllowed(w)
		}

	case path == "/cart":
		if r.Method != http.MethodDelete {
			methodNotAllowed(w)
			return
		}
		h.handleClear(w, r)

	case path == "/cart/items":
		if r.Method != http.MethodPost {
			methodNotAllowed(w)
			return
		}
		h.handleAddItem(w, r)

	case strings.HasPrefix(path, "/cart/items/"):
		id := strings.TrimSpace(strings.TrimPrefix(path, "/cart/items/"))
		switch r.Method {
		case http.MethodPatch:
			h.handleSetQuantity(w, r, id)
		case http.MethodDelete:
			h.handleRemoveItem(w, r, id)
		default:
			methodNotAllowed(w)
		}

	case path == "/favorites/toggle":
		if r.Method != http.MethodPost {
			methodNotAllowed(w)
			return
		}
		h.handleToggleFavorite(w, r)

	default:
		notFound(w)
	}

	log.Printf("[state_handler] %s %s elapsed=%s", r.Method, path, time.Since(start))
}

// -------------------------
// responses
// -------------------------

type authView struct {
	Ready         bool           `json:"ready"`
	Authenticated bool           `json:"authenticated"`
	User          *identity.User `json:"user"`
	Identity      string         `json:"identity"`
}

type cartView struct {
	CartID string          `json:"cartId,omitempty"`
	Status state.Status    `json:"status"`
	Items  []cart.LineItem `json:"items"`
	Totals cart.Totals     `json:"totals"`
}

type favoritesView struct {
	Items []favorite.Entry `json:"items"`
	Count int              `json:"count"`
}

type stateView struct {
	Auth      authView      `json:"auth"`
	Cart      cartView      `json:"cart"`
	Favorites favoritesView `json:"favorites"`
}

func (h *StateHandler) authView() authView {
	a := h.d.Manager.Auth()
	return authView{
		Ready:         a.IsReady(),
		Authenticated: a.IsAuthenticated(),
		User:          a.GetUser(),
		Identity:      h.d.Manager.Identity().Current().Key(),
	}
}

func (h *StateHandler) cartView(ctx context.Context) cartView {
	c := h.d.Manager.Cart()
	items := c.GetItems()
	totals := cart.ComputeTotals(items)
	for i := range items {
		items[i].Image = h.image(ctx, items[i].Image)
	}
	return cartView{CartID: c.CartID(), Status: c.Status(), Items: items, Totals: totals}
}

func (h *StateHandler) favoritesView(ctx context.Context) favoritesView {
	items := h.d.Manager.Favorites().GetAll()
	for i := range items {
		items[i].Image = h.image(ctx, items[i].Image)
	}
	return favoritesView{Items: items, Count: len(items)}
}

func (h *StateHandler) image(ctx context.Context, stored string) string {
	if h.d.Images == nil || stored == "" {
		return stored
	}
	return h.d.Images.Resolve(ctx, stored)
}

// -------------------------
// handlers
// -------------------------

func (h *StateHandler) handleState(w http.ResponseWriter, r *http.Request, part string) {
	ctx := r.Context()
	switch part {
	case "":
		writeJSON(w, http.StatusOK, stateView{
			Auth:      h.authView(),
			Cart:      h.cartView(ctx),
			Favorites: h.favoritesView(ctx),
		})
	case "auth":
		writeJSON(w, http.StatusOK, h.authView())
	case "cart":
		writeJSON(w, http.StatusOK, h.cartView(ctx))
	case "favorites":
		writeJSON(w, http.StatusOK, h.favoritesView(ctx))
	case "legacy":
		if h.d.Legacy == nil {
			notFound(w)
			return
		}
		writeJSON(w, http.StatusOK, h.d.Legacy.Snapshot())
	default:
		notFound(w)
	}
}

func (h *StateHandler) handleSignIn(w http.ResponseWriter, r *http.Request) {
	if h.d.Sessions == nil {
		writeErr(w, http.StatusNotImplemented, "sign-in is not configured")
		return
	}
	var req struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Token) == "" {
		token := bearerToken(r)
		if token == "" {
			writeErr(w, http.StatusBadRequest, "token is required")
			return
		}
		req.Token = token
	}

	if err := h.d.Sessions.SignIn(r.Context(), req.Token); err != nil {
		log.Printf("[state_handler] sign-in rejected: %v", err)
		writeErr(w, http.StatusUnauthorized, "invalid token")
		return
	}
	writeJSON(w, http.StatusOK, h.authView())
}

func (h *StateHandler) handleSignOut(w http.ResponseWriter, r *http.Request) {
	if h.d.Sessions == nil {
		writeErr(w, http.StatusNotImplemented, "sign-in is not configured")
		return
	}
	if err := h.d.Sessions.SignOut(r.Context()); err != nil {
		log.Printf("[state_handler] sign-out failed: %v", err)
		writeErr(w, http.StatusInternalServerError, "sign-out failed")
		return
	}
	writeJSON(w, http.StatusOK, h.authView())
}

func (h *StateHandler) handleAddItem(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ProductID string `json:"productId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.ProductID) == "" {
		writeErr(w, http.StatusBadRequest, "productId is required")
		return
	}

	p, ok, err := h.lookupProduct(r.Context(), req.ProductID)
	if err != nil {
		log.Printf("[state_handler] catalog lookup failed product=%s: %v", req.ProductID, err)
		writeErr(w, http.StatusBadGateway, "catalog unavailable")
		return
	}
	if !ok {
		writeErr(w, http.StatusNotFound, "product not found")
		return
	}

	if err := h.d.Manager.Cart().AddItem(r.Context(), p); err != nil {
		writeCartErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.cartView(r.Context()))
}

func (h *StateHandler) handleSetQuantity(w http.ResponseWriter, r *http.Request, productID string) {
	var req struct {
		Quantity *int `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Quantity == nil {
		writeErr(w, http.StatusBadRequest, "quantity is required")
		return
	}
	if err := h.d.Manager.Cart().UpdateQuantity(r.Context(), productID, *req.Quantity); err != nil {
		writeCartErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.cartView(r.Context()))
}

func (h *StateHandler) handleRemoveItem(w http.ResponseWriter, r *http.Request, productID string) {
	if err := h.d.Manager.Cart().RemoveItem(r.Context(), productID); err != nil {
		writeCartErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.cartView(r.Context()))
}

func (h *StateHandler) handleClear(w http.ResponseWriter, r *http.Request) {
	if err := h.d.Manager.Cart().Clear(r.Context()); err != nil {
		writeCartErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.cartView(r.Context()))
}

func (h *StateHandler) handleToggleFavorite(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ProductID string `json:"productId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.ProductID) == "" {
		writeErr(w, http.StatusBadRequest, "productId is required")
		return
	}

	fav := h.d.Manager.Favorites()
	var isFav bool
	if fav.IsFavorite(req.ProductID) {
		fav.Remove(req.ProductID)
	} else {
		p, ok, err := h.lookupProduct(r.Context(), req.ProductID)
		if err != nil {
			log.Printf("[state_handler] catalog lookup failed product=%s: %v", req.ProductID, err)
			writeErr(w, http.StatusBadGateway, "catalog unavailable")
			return
		}
		if !ok {
			writeErr(w, http.StatusNotFound, "product not found")
			return
		}
		isFav = fav.Toggle(p)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"productId": strings.TrimSpace(req.ProductID),
		"favorite":  isFav,
		"count":     fav.Count(),
	})
}

func (h *StateHandler) lookupProduct(ctx context.Context, id string) (product.Product, bool, error) {
	if h.d.Catalog == nil {
		return product.Product{}, false, errors.New("handler: catalog is nil")
	}
	id = strings.TrimSpace(id)
	found, err := h.d.Catalog.GetByIDs(ctx, []string{id})
	if err != nil {
		return product.Product{}, false, err
	}
	p, ok := found[id]
	return p, ok, nil
}

// -------------------------
// helpers
// -------------------------

func writeCartErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, cart.ErrInvalidProduct):
		writeErr(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeErr(w, http.StatusGatewayTimeout, "request timed out")
	default:
		writeErr(w, http.StatusBadGateway, "cart update failed")
	}
}

func bearerToken(r *http.Request) string {
	authz := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(authz) > 7 && strings.EqualFold(authz[:7], "bearer ") {
		return strings.TrimSpace(authz[7:])
	}
	return ""
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"error": msg})
}

func methodNotAllowed(w http.ResponseWriter) {
	writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method_not_allowed"})
}

func notFound(w http.ResponseWriter) {
	writeJSON(w, http.StatusNotFound, map[string]string{"error": "not_found"})
}
