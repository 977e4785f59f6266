// internal/adapters/out/db/cart_repository_pg.go
package db

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	dbcommon "solare/internal/adapters/out/db/common"
	cartdom "solare/internal/domain/cart"
	"solare/internal/domain/identity"
)

type CartRepositoryPG struct {
	DB  *sql.DB
	now func() time.Time
}

func NewCartRepositoryPG(db *sql.DB) *CartRepositoryPG {
	return &CartRepositoryPG{DB: db, now: time.Now}
}

// Ready pings the pool so startup can wait for the connection.
func (r *CartRepositoryPG) Ready(ctx context.Context) error {
	if r == nil || r.DB == nil {
		return errNilDB
	}
	return r.DB.PingContext(ctx)
}

// FindCart returns (nil, nil) when the identity has no cart yet.
func (r *CartRepositoryPG) FindCart(ctx context.Context, owner identity.Context) (*cartdom.Cart, error) {
	if r == nil || r.DB == nil {
		return nil, errNilDB
	}
	if err := owner.Validate(); err != nil {
		return nil, err
	}

	run := dbcommon.GetRunner(ctx, r.DB)
	const q = `
SELECT id, created_at
FROM carts
WHERE owner_key = $1
LIMIT 1`
	var (
		id        string
		createdAt time.Time
	)
	err := run.QueryRowContext(ctx, q, owner.Key()).Scan(&id, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &cartdom.Cart{ID: id, Owner: owner, CreatedAt: createdAt.UTC()}, nil
}

// CreateCart inserts the identity's cart. If another tab won the race (unique owner_key),
// the existing cart is returned.
func (r *CartRepositoryPG) CreateCart(ctx context.Context, owner identity.Context) (*cartdom.Cart, error) {
	if r == nil || r.DB == nil {
		return nil, errNilDB
	}
	if err := owner.Validate(); err != nil {
		return nil, err
	}

	run := dbcommon.GetRunner(ctx, r.DB)
	const q = `
INSERT INTO carts (id, owner_kind, owner_key, user_id, session_id, created_at)
VALUES ($1, $2, $3, $4, $5, $6)`

	c := cartdom.Cart{ID: uuid.NewString(), Owner: owner, CreatedAt: r.now().UTC()}
	_, err := run.ExecContext(ctx, q,
		c.ID,
		string(owner.Kind),
		owner.Key(),
		nullIfEmpty(owner.ID),
		nullIfEmpty(owner.SessionID),
		c.CreatedAt,
	)
	if err != nil {
		if dbcommon.IsUniqueViolation(err) {
			return r.FindCart(ctx, owner)
		}
		return nil, err
	}
	return &c, nil
}

func (r *CartRepositoryPG) ListLines(ctx context.Context, cartID string) ([]cartdom.LineItem, error) {
	if r == nil || r.DB == nil {
		return nil, errNilDB
	}

	run := dbcommon.GetRunner(ctx, r.DB)
	const q = `
SELECT
  l.id, l.product_id, l.quantity,
  COALESCE(p.name, ''), COALESCE(p.price, 0), COALESCE(p.image, ''), COALESCE(p.category, '')
FROM cart_line_items l
LEFT JOIN products p ON p.id = l.product_id
WHERE l.cart_id = $1
ORDER BY l.created_at ASC, l.id ASC`
	rows, err := run.QueryContext(ctx, q, strings.TrimSpace(cartID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]cartdom.LineItem, 0)
	for rows.Next() {
		it, err := scanLine(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func scanLine(s dbcommon.RowScanner) (cartdom.LineItem, error) {
	var it cartdom.LineItem
	err := s.Scan(&it.LineID, &it.ProductID, &it.Quantity, &it.Name, &it.Price, &it.Image, &it.Category)
	return it, err
}

func (r *CartRepositoryPG) InsertLine(ctx context.Context, cartID, productID string, qty int) (cartdom.LineItem, error) {
	if r == nil || r.DB == nil {
		return cartdom.LineItem{}, errNilDB
	}
	cid, pid := strings.TrimSpace(cartID), strings.TrimSpace(productID)
	if cid == "" || pid == "" || qty <= 0 {
		return cartdom.LineItem{}, cartdom.ErrInvalidCart
	}

	run := dbcommon.GetRunner(ctx, r.DB)
	const q = `
INSERT INTO cart_line_items (id, cart_id, product_id, quantity, created_at, updated_at)
SELECT $1, c.id, $3, $4, $5, $5
FROM carts c
WHERE c.id = $2`
	now := r.now().UTC()
	id := uuid.NewString()
	res, err := run.ExecContext(ctx, q, id, cid, pid, qty, now)
	if err != nil {
		return cartdom.LineItem{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return cartdom.LineItem{}, cartdom.ErrCartNotFound
	}
	return cartdom.LineItem{ProductID: pid, LineID: id, Quantity: qty}, nil
}

func (r *CartRepositoryPG) UpdateLine(ctx context.Context, lineID string, qty int) error {
	if r == nil || r.DB == nil {
		return errNilDB
	}

	run := dbcommon.GetRunner(ctx, r.DB)
	const q = `UPDATE cart_line_items SET quantity = $2, updated_at = $3 WHERE id = $1`
	res, err := run.ExecContext(ctx, q, strings.TrimSpace(lineID), qty, r.now().UTC())
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return cartdom.ErrLineNotFound
	}
	return nil
}

func (r *CartRepositoryPG) DeleteLine(ctx context.Context, lineID string) error {
	if r == nil || r.DB == nil {
		return errNilDB
	}
	run := dbcommon.GetRunner(ctx, r.DB)
	_, err := run.ExecContext(ctx, `DELETE FROM cart_line_items WHERE id = $1`, strings.TrimSpace(lineID))
	return err
}

func (r *CartRepositoryPG) DeleteAllLines(ctx context.Context, cartID string) error {
	if r == nil || r.DB == nil {
		return errNilDB
	}
	run := dbcommon.GetRunner(ctx, r.DB)
	_, err := run.ExecContext(ctx, `DELETE FROM cart_line_items WHERE cart_id = $1`, strings.TrimSpace(cartID))
	return err
}

var _ cartdom.Repository = (*CartRepositoryPG)(nil)
