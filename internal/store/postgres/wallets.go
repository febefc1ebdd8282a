package postgres

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github/finchase/go-signing/internal/signing/backend"
	"github/finchase/go-signing/internal/signing/wallet"
	"github/finchase/go-signing/internal/util/db"
)

// uniqueViolation is the postgres error code sql-layer uniqueness surfaces as.
const uniqueViolation = "23505"

// Insert implements wallet.Store. The partial unique index on
// (uniq_hash) WHERE is_active enforces the one-active-wallet invariant at
// the storage layer; a violation maps to wallet.ErrWalletExists.
func (s *Store) Insert(ctx context.Context, w *wallet.Wallet) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO automation_wallets
			(id, owner_ref, purpose, uniq_hash, key_id, address, provider, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		w.ID,
		w.OwnerRef,
		string(w.Purpose),
		wallet.UniquenessKey(w.OwnerRef, w.Purpose).Hex(),
		w.KeyID,
		strings.ToLower(w.Address.Hex()),
		string(w.Provider),
		w.IsActive,
		w.CreatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
			return errors.Wrapf(wallet.ErrWalletExists, "owner %s purpose %s", w.OwnerRef, w.Purpose)
		}
		return errors.Wrap(err, "failed to insert wallet")
	}
	return nil
}

// GetByUniqKey implements wallet.Store.
func (s *Store) GetByUniqKey(ctx context.Context, key common.Hash) (*wallet.Wallet, error) {
	return s.scanWallet(s.db.QueryRowContext(ctx, walletSelect+`
		WHERE uniq_hash = $1 AND is_active
	`, key.Hex()))
}

// GetByAddress implements wallet.Store.
func (s *Store) GetByAddress(ctx context.Context, address common.Address) (*wallet.Wallet, error) {
	return s.scanWallet(s.db.QueryRowContext(ctx, walletSelect+`
		WHERE address = $1
		ORDER BY created_at DESC
		LIMIT 1
	`, strings.ToLower(address.Hex())))
}

// GetByID implements wallet.Store.
func (s *Store) GetByID(ctx context.Context, id string) (*wallet.Wallet, error) {
	return s.scanWallet(s.db.QueryRowContext(ctx, walletSelect+`
		WHERE id = $1
	`, id))
}

// Deactivate implements wallet.Store. The wallet row flips inactive and its
// nonce counters are dropped in the same transaction; a retired wallet never
// allocates again and stale counters would only confuse a later reset.
func (s *Store) Deactivate(ctx context.Context, key common.Hash) (bool, error) {
	var deactivated bool

	err := db.WithTransaction(ctx, s.db, func(tx *sql.Tx) error {
		var id string
		err := tx.QueryRowContext(ctx, `
			UPDATE automation_wallets
			SET is_active = false
			WHERE uniq_hash = $1 AND is_active
			RETURNING id
		`, key.Hex()).Scan(&id)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil
			}
			return errors.Wrap(err, "failed to deactivate wallet")
		}

		if _, err := tx.ExecContext(ctx, `
			DELETE FROM nonce_records WHERE wallet_id = $1
		`, id); err != nil {
			return errors.Wrap(err, "failed to drop nonce counters")
		}

		deactivated = true
		return nil
	})

	return deactivated, err
}

// TouchLastUsed implements wallet.Store.
func (s *Store) TouchLastUsed(ctx context.Context, id string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE automation_wallets
		SET last_used_at = $2
		WHERE id = $1
	`, id, at)
	if err != nil {
		return errors.Wrap(err, "failed to update last_used_at")
	}
	return nil
}

// WalletExists implements nonce.WalletChecker.
func (s *Store) WalletExists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM automation_wallets WHERE id = $1)
	`, id).Scan(&exists)
	if err != nil {
		return false, errors.Wrap(err, "failed to check wallet existence")
	}
	return exists, nil
}

const walletSelect = `
	SELECT id, owner_ref, purpose, key_id, address, provider, is_active, created_at, last_used_at
	FROM automation_wallets
`

func (s *Store) scanWallet(row *sql.Row) (*wallet.Wallet, error) {
	var (
		w          wallet.Wallet
		purpose    string
		address    string
		provider   string
		lastUsedAt sql.NullTime
	)

	err := row.Scan(&w.ID, &w.OwnerRef, &purpose, &w.KeyID, &address, &provider, &w.IsActive, &w.CreatedAt, &lastUsedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to scan wallet")
	}

	w.Purpose = wallet.Purpose(purpose)
	w.Address = common.HexToAddress(address)
	w.Provider = backend.Provider(provider)
	if lastUsedAt.Valid {
		w.LastUsedAt = &lastUsedAt.Time
	}

	return &w, nil
}
