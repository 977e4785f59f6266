package state

import (
	"solare/internal/domain/cart"
	"solare/internal/domain/favorite"
	"solare/internal/domain/identity"
)

// Event names published on the manager's bus.
const (
	EventAuthChanged      = "auth:changed"
	EventCartChanged      = "cart:changed"
	EventFavoritesChanged = "favorites:changed"
)

// AuthChanged is published on every session transition. User and Session are nil when signed out.
type AuthChanged struct {
	User    *identity.User
	Session *identity.Session
	Event   identity.AuthEvent
}

// CartChanged carries a snapshot; receivers may keep it.
type CartChanged struct {
	Items  []cart.LineItem
	Totals cart.Totals
}

// FavoritesChanged carries a snapshot; receivers may keep it.
type FavoritesChanged struct {
	Favorites []favorite.Entry
}
