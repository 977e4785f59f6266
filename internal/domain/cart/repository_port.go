// internal/domain/cart/repository_port.go
package cart

import (
	"context"

	"solare/internal/domain/identity"
)

// Repository is the cart half of the remote store.
//
// Storage shape (both adapters):
// - carts: one row per identity (userId or sessionId)
// - cart line items: cartId, productId, quantity; joined with products on read
//
// Not-found policy:
// - FindCart returns (nil, nil) when the identity has no cart yet
// - UpdateLine on a missing line returns ErrLineNotFound
// - DeleteLine / DeleteAllLines are idempotent
type Repository interface {
	FindCart(ctx context.Context, owner identity.Context) (*Cart, error)
	CreateCart(ctx context.Context, owner identity.Context) (*Cart, error)

	// ListLines returns lines with denormalized product fields (name, price, image, category).
	ListLines(ctx context.Context, cartID string) ([]LineItem, error)
	InsertLine(ctx context.Context, cartID, productID string, qty int) (LineItem, error)
	UpdateLine(ctx context.Context, lineID string, qty int) error
	DeleteLine(ctx context.Context, lineID string) error
	DeleteAllLines(ctx context.Context, cartID string) error
}
