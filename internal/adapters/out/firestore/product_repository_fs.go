// internal/adapters/out/firestore/product_repository_fs.go
package firestore

import (
	"context"

	"cloud.google.com/go/firestore"

	"solare/internal/domain/product"
)

// ProductRepositoryFS reads the products collection (docId = product id).
type ProductRepositoryFS struct {
	Client *firestore.Client
}

func NewProductRepositoryFS(client *firestore.Client) *ProductRepositoryFS {
	return &ProductRepositoryFS{Client: client}
}

func (r *ProductRepositoryFS) GetByIDs(ctx context.Context, ids []string) (map[string]product.Product, error) {
	if r == nil || r.Client == nil {
		return nil, errNilClient
	}
	return fetchProducts(ctx, r.Client, ids)
}

var _ product.Repository = (*ProductRepositoryFS)(nil)
