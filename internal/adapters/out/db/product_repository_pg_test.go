package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDedupTrimStrings(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, dedupTrimStrings([]string{" a", "b", "", "a ", "  "}))
	assert.Empty(t, dedupTrimStrings(nil))
}

func TestNullIfEmpty(t *testing.T) {
	assert.Nil(t, nullIfEmpty("  "))
	assert.Equal(t, "x", nullIfEmpty(" x "))
}

func TestSchemaIsEmbedded(t *testing.T) {
	assert.Contains(t, schemaSQL, "CREATE TABLE IF NOT EXISTS carts")
	assert.Contains(t, schemaSQL, "owner_key   TEXT NOT NULL UNIQUE")
	assert.Contains(t, schemaSQL, "PRIMARY KEY (user_id, product_id)")
}
