// internal/adapters/out/db/product_repository_pg.go
package db

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/lib/pq"

	dbcommon "solare/internal/adapters/out/db/common"
	"solare/internal/domain/product"
)

var errNilDB = errors.New("db: sql.DB is nil")

type ProductRepositoryPG struct {
	DB *sql.DB
}

func NewProductRepositoryPG(db *sql.DB) *ProductRepositoryPG {
	return &ProductRepositoryPG{DB: db}
}

func (r *ProductRepositoryPG) GetByIDs(ctx context.Context, ids []string) (map[string]product.Product, error) {
	if r == nil || r.DB == nil {
		return nil, errNilDB
	}
	clean := dedupTrimStrings(ids)
	out := make(map[string]product.Product, len(clean))
	if len(clean) == 0 {
		return out, nil
	}

	run := dbcommon.GetRunner(ctx, r.DB)
	const q = `
SELECT id, name, price, image, category
FROM products
WHERE id = ANY($1)`
	rows, err := run.QueryContext(ctx, q, pq.Array(clean))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var p product.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Price, &p.Image, &p.Category); err != nil {
			return nil, err
		}
		out[p.ID] = p
	}
	return out, rows.Err()
}

func dedupTrimStrings(xs []string) []string {
	seen := make(map[string]struct{}, len(xs))
	out := make([]string, 0, len(xs))
	for _, x := range xs {
		x = strings.TrimSpace(x)
		if x == "" {
			continue
		}
		if _, ok := seen[x]; ok {
			continue
		}
		seen[x] = struct{}{}
		out = append(out, x)
	}
	return out
}

func nullIfEmpty(s string) any {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return s
}

var _ product.Repository = (*ProductRepositoryPG)(nil)
