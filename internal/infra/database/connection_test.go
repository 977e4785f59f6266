package database

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithPassword(t *testing.T) {
	dsn, err := WithPassword("postgres://shop@db:5432/solare?sslmode=disable", "s3cr#t")
	require.NoError(t, err)
	assert.Equal(t, "postgres://shop:s3cr%23t@db:5432/solare?sslmode=disable", dsn)

	dsn, err = WithPassword(" postgres://shop:old@db/solare ", "")
	require.NoError(t, err)
	assert.Equal(t, "postgres://shop:old@db/solare", dsn)

	_, err = WithPassword("", "x")
	assert.ErrorIs(t, err, ErrEmptyDSN)

	_, err = WithPassword("host=db user=shop", "x")
	assert.Error(t, err)
}

func TestNewConnectionRejectsEmptyDSN(t *testing.T) {
	_, err := NewConnection(context.Background(), "", "")
	assert.ErrorIs(t, err, ErrEmptyDSN)
}

func TestNilDBClose(t *testing.T) {
	var d *DB
	assert.NoError(t, d.Close())
}
