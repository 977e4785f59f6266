// internal/domain/favorite/repository_port.go
package favorite

import "context"

// Repository is the favorites half of the remote store.
// Favorites are keyed by (userId, productId); anonymous favorites never reach the remote store.
//
// Insert and Delete are idempotent: inserting an existing pair or deleting a missing one succeeds.
type Repository interface {
	// List returns entries with denormalized product fields.
	List(ctx context.Context, userID string) ([]Entry, error)
	Insert(ctx context.Context, userID, productID string) error
	Delete(ctx context.Context, userID, productID string) error
}
