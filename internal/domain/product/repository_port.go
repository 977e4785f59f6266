// internal/domain/product/repository_port.go
package product

import "context"

// Repository is the read-only catalog. Unknown ids are absent from the result.
type Repository interface {
	GetByIDs(ctx context.Context, ids []string) (map[string]Product, error)
}
