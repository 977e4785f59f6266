// internal/infra/database/connection.go
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	_ "github.com/lib/pq"
)

var ErrEmptyDSN = errors.New("database: DATABASE_URL is empty")

type DB struct {
	Client *sql.DB
}

// NewConnection opens a PostgreSQL pool for databaseURL (postgres://...).
// A non-empty password replaces the one in the URL.
func NewConnection(ctx context.Context, databaseURL, password string) (*DB, error) {
	dsn, err := WithPassword(databaseURL, password)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open DB: %w", err)
	}

	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping DB: %w", err)
	}

	log.Printf("[database] connected to PostgreSQL host=%s", hostOf(dsn))
	return &DB{Client: db}, nil
}

// WithPassword sets the password on a URL-form DSN.
func WithPassword(databaseURL, password string) (string, error) {
	raw := strings.TrimSpace(databaseURL)
	if raw == "" {
		return "", ErrEmptyDSN
	}
	if password == "" {
		return raw, nil
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" {
		return "", fmt.Errorf("database: DATABASE_URL must be a postgres:// URL when a password is injected")
	}
	user := ""
	if u.User != nil {
		user = u.User.Username()
	}
	u.User = url.UserPassword(user, password)
	return u.String(), nil
}

func hostOf(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil || u.Host == "" {
		return "?"
	}
	return u.Host
}

func (d *DB) Close() error {
	if d == nil || d.Client == nil {
		return nil
	}
	return d.Client.Close()
}
