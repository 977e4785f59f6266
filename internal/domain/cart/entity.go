// internal/domain/cart/entity.go
package cart

import (
	"errors"
	"strings"
	"time"

	"solare/internal/domain/identity"
	"solare/internal/domain/product"
)

var (
	ErrInvalidCart    = errors.New("cart: invalid")
	ErrInvalidProduct = errors.New("cart: invalid product")
	ErrCartNotFound   = errors.New("cart: not found")
	ErrLineNotFound   = errors.New("cart: line item not found")
)

// Cart is the remote cart row. There is at most one per identity context.
type Cart struct {
	ID        string           `json:"id"`
	Owner     identity.Context `json:"owner"`
	CreatedAt time.Time        `json:"createdAt"`
}

func (c *Cart) Validate() error {
	if c == nil || strings.TrimSpace(c.ID) == "" {
		return ErrInvalidCart
	}
	return c.Owner.Validate()
}

// LineItem represents "one line" in a cart.
//   - ProductID is serialized as "id" (local storage shape)
//   - LineID is the remote line-item id used for targeted updates/deletes
//   - Price is captured when the line is created
//
// Quantity is >= 1 for lines created here; removal, not zero, deletes a line.
type LineItem struct {
	ProductID string  `json:"id"`
	LineID    string  `json:"lineId,omitempty"`
	Name      string  `json:"name"`
	Price     float64 `json:"price"`
	Image     string  `json:"image,omitempty"`
	Category  string  `json:"category,omitempty"`
	Quantity  int     `json:"quantity"`
}

// NewLineItem builds a line from a catalog product.
func NewLineItem(p product.Product, lineID string, qty int) (LineItem, error) {
	if err := p.Validate(); err != nil {
		return LineItem{}, ErrInvalidProduct
	}
	if qty <= 0 {
		return LineItem{}, ErrInvalidCart
	}
	return LineItem{
		ProductID: strings.TrimSpace(p.ID),
		LineID:    strings.TrimSpace(lineID),
		Name:      p.Name,
		Price:     p.Price,
		Image:     p.Image,
		Category:  p.Category,
		Quantity:  qty,
	}, nil
}

// ----------------------------
// Helpers
// ----------------------------

// IndexOf returns the index of the line for productID, or -1.
func IndexOf(items []LineItem, productID string) int {
	pid := strings.TrimSpace(productID)
	for i := range items {
		if items[i].ProductID == pid {
			return i
		}
	}
	return -1
}

// RemoveAt removes index idx, preserving order. The input slice is not modified.
func RemoveAt(items []LineItem, idx int) []LineItem {
	if idx < 0 || idx >= len(items) {
		return CloneItems(items)
	}
	out := make([]LineItem, 0, len(items)-1)
	out = append(out, items[:idx]...)
	return append(out, items[idx+1:]...)
}

// CloneItems returns a copy that never aliases src. nil becomes an empty slice.
func CloneItems(src []LineItem) []LineItem {
	out := make([]LineItem, len(src))
	copy(out, src)
	return out
}
