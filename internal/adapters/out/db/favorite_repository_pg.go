// internal/adapters/out/db/favorite_repository_pg.go
package db

import (
	"context"
	"database/sql"
	"strings"
	"time"

	dbcommon "solare/internal/adapters/out/db/common"
	favdom "solare/internal/domain/favorite"
)

type FavoriteRepositoryPG struct {
	DB  *sql.DB
	now func() time.Time
}

func NewFavoriteRepositoryPG(db *sql.DB) *FavoriteRepositoryPG {
	return &FavoriteRepositoryPG{DB: db, now: time.Now}
}

func (r *FavoriteRepositoryPG) List(ctx context.Context, userID string) ([]favdom.Entry, error) {
	if r == nil || r.DB == nil {
		return nil, errNilDB
	}

	run := dbcommon.GetRunner(ctx, r.DB)
	const q = `
SELECT
  f.product_id, f.added_at,
  COALESCE(p.name, ''), COALESCE(p.price, 0), COALESCE(p.image, ''), COALESCE(p.category, '')
FROM favorites f
LEFT JOIN products p ON p.id = f.product_id
WHERE f.user_id = $1
ORDER BY f.added_at ASC, f.product_id ASC`
	rows, err := run.QueryContext(ctx, q, strings.TrimSpace(userID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]favdom.Entry, 0)
	for rows.Next() {
		var e favdom.Entry
		if err := rows.Scan(&e.ProductID, &e.AddedAt, &e.Name, &e.Price, &e.Image, &e.Category); err != nil {
			return nil, err
		}
		e.AddedAt = e.AddedAt.UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}

// Insert is idempotent (ON CONFLICT DO NOTHING).
func (r *FavoriteRepositoryPG) Insert(ctx context.Context, userID, productID string) error {
	if r == nil || r.DB == nil {
		return errNilDB
	}
	uid, pid := strings.TrimSpace(userID), strings.TrimSpace(productID)
	if uid == "" || pid == "" {
		return favdom.ErrInvalidEntry
	}

	run := dbcommon.GetRunner(ctx, r.DB)
	const q = `
INSERT INTO favorites (user_id, product_id, added_at)
VALUES ($1, $2, $3)
ON CONFLICT (user_id, product_id) DO NOTHING`
	_, err := run.ExecContext(ctx, q, uid, pid, r.now().UTC())
	return err
}

func (r *FavoriteRepositoryPG) Delete(ctx context.Context, userID, productID string) error {
	if r == nil || r.DB == nil {
		return errNilDB
	}
	run := dbcommon.GetRunner(ctx, r.DB)
	_, err := run.ExecContext(ctx,
		`DELETE FROM favorites WHERE user_id = $1 AND product_id = $2`,
		strings.TrimSpace(userID), strings.TrimSpace(productID),
	)
	return err
}

var _ favdom.Repository = (*FavoriteRepositoryPG)(nil)
