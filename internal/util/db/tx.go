package db

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	"github/finchase/go-signing/internal/util"
)

// TxFn is the callback executed inside WithTransaction.
type TxFn func(tx *sql.Tx) error

// WithTransaction runs fn inside a database transaction, committing on a nil
// return and rolling back otherwise. Rollback failures are logged, never
// returned, so the original error always wins.
func WithTransaction(ctx context.Context, db *sql.DB, fn TxFn) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}

	if err := fn(tx); err != nil {
		if rollbackErr := tx.Rollback(); rollbackErr != nil {
			util.LogFromContext(ctx).Error().Err(rollbackErr).Msg("Failed to roll back transaction after error")
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "failed to commit transaction")
	}

	return nil
}
