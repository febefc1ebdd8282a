package postgres

import (
	"context"

	"github.com/pkg/errors"

	"github/finchase/go-signing/internal/signing/intent"
)

// IsNonceUsed implements intent.ReplayStore.
func (s *Store) IsNonceUsed(ctx context.Context, signer string, chainID int64, nonce uint64) (bool, error) {
	var used bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM consumed_intent_nonces
			WHERE signer = $1 AND chain_id = $2 AND nonce = $3
		)
	`, signer, chainID, nonce).Scan(&used)
	if err != nil {
		return false, errors.Wrap(err, "failed to check intent nonce")
	}
	return used, nil
}

// MarkNonceUsed implements intent.ReplayStore. The primary key makes the
// insert race-free: exactly one concurrent consumer wins.
func (s *Store) MarkNonceUsed(ctx context.Context, signer string, chainID int64, nonce uint64) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO consumed_intent_nonces (signer, chain_id, nonce)
		VALUES ($1, $2, $3)
		ON CONFLICT DO NOTHING
	`, signer, chainID, nonce)
	if err != nil {
		return errors.Wrap(err, "failed to mark intent nonce used")
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to read affected rows")
	}
	if affected == 0 {
		return errors.Wrapf(intent.ErrNonceAlreadyUsed, "signer %s chain %d nonce %d", signer, chainID, nonce)
	}
	return nil
}
