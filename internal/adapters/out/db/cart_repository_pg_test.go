package db

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cartdom "solare/internal/domain/cart"
	"solare/internal/domain/identity"
)

var fixedNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func newCartRepo(t *testing.T) (*CartRepositoryPG, sqlmock.Sqlmock) {
	db, mock := newMockDB(t)
	r := NewCartRepositoryPG(db)
	r.now = func() time.Time { return fixedNow }
	return r, mock
}

func TestCartRepositoryPGFindCartMissing(t *testing.T) {
	r, mock := newCartRepo(t)
	owner := identity.ForUser("u1")

	mock.ExpectQuery(regexp.QuoteMeta("FROM carts")).
		WithArgs("user:u1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}))

	got, err := r.FindCart(context.Background(), owner)
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCartRepositoryPGCreateCartRaceReturnsExisting(t *testing.T) {
	r, mock := newCartRepo(t)
	owner := identity.ForAnonymous("s1")
	created := fixedNow.Add(-time.Minute)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO carts")).
		WithArgs(sqlmock.AnyArg(), "anonymous", "anonymous:s1", nil, "s1", sqlmock.AnyArg()).
		WillReturnError(&pq.Error{Code: "23505"})
	mock.ExpectQuery(regexp.QuoteMeta("FROM carts")).
		WithArgs("anonymous:s1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow("c-existing", created))

	got, err := r.CreateCart(context.Background(), owner)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "c-existing", got.ID)
	assert.Equal(t, owner, got.Owner)
	assert.Equal(t, created, got.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCartRepositoryPGCreateCartOtherErrorIsReturned(t *testing.T) {
	r, mock := newCartRepo(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO carts")).
		WillReturnError(&pq.Error{Code: "23503"})

	got, err := r.CreateCart(context.Background(), identity.ForUser("u1"))
	require.Error(t, err)
	assert.Nil(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCartRepositoryPGCreateCartRejectsInvalidOwner(t *testing.T) {
	r, mock := newCartRepo(t)

	_, err := r.CreateCart(context.Background(), identity.Context{Kind: identity.KindUser})
	assert.ErrorIs(t, err, identity.ErrInvalidContext)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCartRepositoryPGInsertLine(t *testing.T) {
	r, mock := newCartRepo(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO cart_line_items")).
		WithArgs(sqlmock.AnyArg(), "c1", "p1", 2, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	got, err := r.InsertLine(context.Background(), " c1 ", "p1", 2)
	require.NoError(t, err)
	assert.Equal(t, "p1", got.ProductID)
	assert.Equal(t, 2, got.Quantity)
	assert.NotEmpty(t, got.LineID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCartRepositoryPGInsertLineUnknownCart(t *testing.T) {
	r, mock := newCartRepo(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO cart_line_items")).
		WithArgs(sqlmock.AnyArg(), "gone", "p1", 1, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	_, err := r.InsertLine(context.Background(), "gone", "p1", 1)
	assert.ErrorIs(t, err, cartdom.ErrCartNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCartRepositoryPGInsertLineValidatesInput(t *testing.T) {
	r, mock := newCartRepo(t)

	_, err := r.InsertLine(context.Background(), "c1", "p1", 0)
	assert.ErrorIs(t, err, cartdom.ErrInvalidCart)
	_, err = r.InsertLine(context.Background(), "c1", " ", 1)
	assert.ErrorIs(t, err, cartdom.ErrInvalidCart)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCartRepositoryPGUpdateLineMissing(t *testing.T) {
	r, mock := newCartRepo(t)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE cart_line_items SET quantity")).
		WithArgs("l1", 3, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := r.UpdateLine(context.Background(), "l1", 3)
	assert.ErrorIs(t, err, cartdom.ErrLineNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCartRepositoryPGListLinesJoinsCatalog(t *testing.T) {
	r, mock := newCartRepo(t)

	rows := sqlmock.NewRows([]string{"id", "product_id", "quantity", "name", "price", "image", "category"}).
		AddRow("l1", "p1", 2, "Shirt", 20.0, "shirt.png", "tops").
		AddRow("l2", "p9", 1, "", 0.0, "", "")
	mock.ExpectQuery(regexp.QuoteMeta("FROM cart_line_items l")).
		WithArgs("c1").
		WillReturnRows(rows)

	got, err := r.ListLines(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, []cartdom.LineItem{
		{ProductID: "p1", LineID: "l1", Name: "Shirt", Price: 20, Image: "shirt.png", Category: "tops", Quantity: 2},
		{ProductID: "p9", LineID: "l2", Quantity: 1},
	}, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCartRepositoryPGDeleteAllLines(t *testing.T) {
	r, mock := newCartRepo(t)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM cart_line_items WHERE cart_id = $1")).
		WithArgs("c1").
		WillReturnResult(sqlmock.NewResult(0, 3))

	require.NoError(t, r.DeleteAllLines(context.Background(), "c1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCartRepositoryPGNilDB(t *testing.T) {
	var r *CartRepositoryPG
	_, err := r.FindCart(context.Background(), identity.ForUser("u1"))
	assert.ErrorIs(t, err, errNilDB)
}
