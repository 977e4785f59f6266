// internal/adapters/out/db/common/sqlutil.go
package common

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"

	"github.com/lib/pq"
)

// RowScanner is the Scan half shared by *sql.Row and *sql.Rows.
type RowScanner interface {
	Scan(dest ...any) error
}

// IsUniqueViolation detects a PostgreSQL duplicate key error.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return true
	}
	return false
}

// Runner is the common interface of *sql.DB and *sql.Tx.
type Runner interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type TxKey struct{}

func CtxWithTx(ctx context.Context, tx *sql.Tx) context.Context {
	return context.WithValue(ctx, TxKey{}, tx)
}

// TxFromCtx returns the *sql.Tx stored in ctx, or nil.
func TxFromCtx(ctx context.Context) *sql.Tx {
	if v := ctx.Value(TxKey{}); v != nil {
		if tx, ok := v.(*sql.Tx); ok {
			return tx
		}
	}
	return nil
}

// GetRunner returns the transaction in ctx if any, otherwise db.
func GetRunner(ctx context.Context, db *sql.DB) Runner {
	if tx := TxFromCtx(ctx); tx != nil {
		return tx
	}
	return db
}

// WithTx runs fn inside a transaction carried by ctx. Nested calls reuse the outer transaction.
func WithTx(ctx context.Context, db *sql.DB, fn func(ctx context.Context) error) (err error) {
	if TxFromCtx(ctx) != nil {
		return fn(ctx)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				log.Printf("[db] WARN: rollback failed: %v", rbErr)
			}
		}
	}()

	if err = fn(CtxWithTx(ctx, tx)); err != nil {
		return err
	}
	return tx.Commit()
}
