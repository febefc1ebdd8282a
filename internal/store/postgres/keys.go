package postgres

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	"github/finchase/go-signing/internal/signing/backend/local"
)

// InsertKey implements local.KeyStore.
func (s *Store) InsertKey(ctx context.Context, record *local.KeyRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO signing_keys (key_id, address, label, encrypted_material, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, record.KeyID, record.Address, record.Label, record.EncryptedMaterial, record.CreatedAt)
	if err != nil {
		return errors.Wrap(err, "failed to insert signing key")
	}
	return nil
}

// GetKey implements local.KeyStore.
func (s *Store) GetKey(ctx context.Context, keyID string) (*local.KeyRecord, error) {
	var record local.KeyRecord
	err := s.db.QueryRowContext(ctx, `
		SELECT key_id, address, label, encrypted_material, created_at
		FROM signing_keys
		WHERE key_id = $1
	`, keyID).Scan(&record.KeyID, &record.Address, &record.Label, &record.EncryptedMaterial, &record.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to load signing key")
	}
	return &record, nil
}
