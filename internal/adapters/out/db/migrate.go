// internal/adapters/out/db/migrate.go
package db

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"log"

	dbcommon "solare/internal/adapters/out/db/common"
)

//go:embed schema.sql
var schemaSQL string

// Migrate applies schema.sql in one transaction. Every statement is idempotent.
func Migrate(ctx context.Context, db *sql.DB) error {
	if db == nil {
		return errNilDB
	}
	err := dbcommon.WithTx(ctx, db, func(ctx context.Context) error {
		_, err := dbcommon.GetRunner(ctx, db).ExecContext(ctx, schemaSQL)
		return err
	})
	if err != nil {
		return fmt.Errorf("db: migrate: %w", err)
	}
	log.Printf("[db] schema applied")
	return nil
}
