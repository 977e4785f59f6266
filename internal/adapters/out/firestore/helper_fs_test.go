package firestore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"solare/internal/domain/product"
)

func TestProductFromDataIsLenient(t *testing.T) {
	got := productFromData("p1", map[string]any{
		"name":     "Shirt",
		"price":    int64(20),
		"category": "tops",
	})
	assert.Equal(t, product.Product{ID: "p1", Name: "Shirt", Price: 20, Category: "tops"}, got)

	got = productFromData("p2", map[string]any{"price": 12.5, "image": nil})
	assert.InDelta(t, 12.5, got.Price, 1e-9)
	assert.Empty(t, got.Image)
}

func TestScalarHelpers(t *testing.T) {
	assert.Equal(t, 3, asInt(int64(3)))
	assert.Equal(t, 3, asInt(3.0))
	assert.Zero(t, asInt("3"))
	assert.Equal(t, "42", asString(42))

	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.FixedZone("x", 3600))
	assert.Equal(t, ts.UTC(), asTime(ts))
	assert.True(t, asTime("nope").IsZero())
}

func TestFavoriteDocID(t *testing.T) {
	assert.Equal(t, "u1__p2", favoriteDocID(" u1 ", "p2 "))
}
