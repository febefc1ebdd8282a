package postgres

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"
)

// AllocateAndIncrement implements nonce.Store as a single upsert so the
// read-and-advance is atomic under concurrent callers and across process
// instances. The counter is either unchanged or incremented, never partially
// updated.
func (s *Store) AllocateAndIncrement(ctx context.Context, walletID string, chainID int64) (uint64, error) {
	var allocated uint64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO nonce_records (wallet_id, chain_id, next_nonce)
		VALUES ($1, $2, 1)
		ON CONFLICT (wallet_id, chain_id)
		DO UPDATE SET next_nonce = nonce_records.next_nonce + 1
		RETURNING next_nonce - 1
	`, walletID, chainID).Scan(&allocated)
	if err != nil {
		return 0, errors.Wrap(err, "failed to allocate nonce")
	}
	return allocated, nil
}

// Peek implements nonce.Store.
func (s *Store) Peek(ctx context.Context, walletID string, chainID int64) (uint64, error) {
	var next uint64
	err := s.db.QueryRowContext(ctx, `
		SELECT next_nonce FROM nonce_records
		WHERE wallet_id = $1 AND chain_id = $2
	`, walletID, chainID).Scan(&next)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, errors.Wrap(err, "failed to peek nonce")
	}
	return next, nil
}

// Reset implements nonce.Store.
func (s *Store) Reset(ctx context.Context, walletID string, chainID int64, next uint64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO nonce_records (wallet_id, chain_id, next_nonce)
		VALUES ($1, $2, $3)
		ON CONFLICT (wallet_id, chain_id)
		DO UPDATE SET next_nonce = EXCLUDED.next_nonce
	`, walletID, chainID, next)
	if err != nil {
		return errors.Wrap(err, "failed to reset nonce")
	}
	return nil
}
