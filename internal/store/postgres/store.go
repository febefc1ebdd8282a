// Package postgres implements the persistence ports over database/sql. The
// nonce and replay operations are single statements so their atomicity
// guarantees come from the database, not from in-process locking.
package postgres

import (
	"database/sql"

	"github.com/pkg/errors"

	// Import postgres driver for database/sql package
	_ "github.com/lib/pq"
)

// Store bundles the port implementations over one connection pool.
type Store struct {
	db *sql.DB
}

// New wraps an opened connection pool.
func New(db *sql.DB) (*Store, error) {
	if db == nil {
		return nil, errors.New("db is required")
	}
	return &Store{db: db}, nil
}

// DB exposes the underlying pool for health checks and migrations.
func (s *Store) DB() *sql.DB {
	return s.db
}
