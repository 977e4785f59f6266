// internal/domain/product/entity.go
package product

import (
	"errors"
	"strings"
)

var (
	ErrInvalidProduct = errors.New("product: invalid")
)

// Product is the catalog projection the state layer needs for display and pricing.
// Price is captured when a product enters the cart or favorites and is not re-fetched.
type Product struct {
	ID       string  `json:"id" firestore:"id"`
	Name     string  `json:"name" firestore:"name"`
	Price    float64 `json:"price" firestore:"price"`
	Image    string  `json:"image,omitempty" firestore:"image"`
	Category string  `json:"category,omitempty" firestore:"category"`
}

func (p Product) Validate() error {
	if strings.TrimSpace(p.ID) == "" {
		return ErrInvalidProduct
	}
	if p.Price < 0 {
		return ErrInvalidProduct
	}
	return nil
}
