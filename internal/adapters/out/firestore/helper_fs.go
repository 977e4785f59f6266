// internal/adapters/out/firestore/helper_fs.go
package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	"solare/internal/domain/product"
)

const (
	colCarts     = "carts"
	colLineItems = "cart_line_items"
	colFavorites = "favorites"
	colProducts  = "products"
)

var errNilClient = errors.New("firestore: client is nil")

// fetchProducts loads the products collection docs for ids (docId = product id).
// Missing products are simply absent from the result.
func fetchProducts(ctx context.Context, client *firestore.Client, ids []string) (map[string]product.Product, error) {
	out := make(map[string]product.Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	seen := make(map[string]struct{}, len(ids))
	refs := make([]*firestore.DocumentRef, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		refs = append(refs, client.Collection(colProducts).Doc(id))
	}

	snaps, err := client.GetAll(ctx, refs)
	if err != nil {
		return nil, fmt.Errorf("firestore: get products: %w", err)
	}
	for _, snap := range snaps {
		if snap == nil || !snap.Exists() {
			continue
		}
		out[snap.Ref.ID] = productFromData(snap.Ref.ID, snap.Data())
	}
	return out, nil
}

// productFromData is lenient about field types (price may be stored as int or double).
func productFromData(id string, raw map[string]any) product.Product {
	return product.Product{
		ID:       id,
		Name:     asString(raw["name"]),
		Price:    asFloat(raw["price"]),
		Image:    asString(raw["image"]),
		Category: asString(raw["category"]),
	}
}

func asString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case nil:
		return ""
	default:
		return fmt.Sprint(x)
	}
}

func asInt(v any) int {
	switch x := v.(type) {
	case int:
		return x
	case int64:
		return int(x)
	case float64:
		return int(x)
	default:
		return 0
	}
}

func asFloat(v any) float64 {
	switch x := v.(type) {
	case float64:
		return x
	case int64:
		return float64(x)
	case int:
		return float64(x)
	default:
		return 0
	}
}

func asTime(v any) time.Time {
	if t, ok := v.(time.Time); ok {
		return t.UTC()
	}
	return time.Time{}
}
