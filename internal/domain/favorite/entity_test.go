package favorite

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solare/internal/domain/product"
)

func ids(entries []Entry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.ProductID)
	}
	return out
}

func TestMerge(t *testing.T) {
	local := []Entry{
		{ProductID: "A", Name: "local A"},
		{ProductID: "B", Name: "local B", Price: 1},
	}
	remote := []Entry{
		{ProductID: "B", Name: "remote B", Price: 2},
		{ProductID: "C", Name: "remote C"},
	}

	merged, localOnly := Merge(local, remote)

	assert.Equal(t, []string{"B", "C", "A"}, ids(merged))
	assert.Equal(t, []string{"A"}, ids(localOnly))

	b := merged[IndexOf(merged, "B")]
	assert.Equal(t, "remote B", b.Name, "remote wins on conflicts")
	assert.Equal(t, 2.0, b.Price)
}

func TestMergeEmptyInputs(t *testing.T) {
	merged, localOnly := Merge(nil, nil)
	assert.NotNil(t, merged)
	assert.Empty(t, merged)
	assert.NotNil(t, localOnly)

	merged, localOnly = Merge([]Entry{{ProductID: "A"}, {ProductID: "A"}, {ProductID: " "}}, nil)
	assert.Equal(t, []string{"A"}, ids(merged))
	assert.Equal(t, []string{"A"}, ids(localOnly))
}

func TestNewEntry(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	e, err := NewEntry(product.Product{ID: "p2", Name: "Hat", Price: 15, Category: "acc"}, now)
	require.NoError(t, err)
	assert.Equal(t, "p2", e.ProductID)
	assert.Equal(t, now, e.AddedAt)

	_, err = NewEntry(product.Product{}, now)
	require.ErrorIs(t, err, ErrInvalidEntry)
}
