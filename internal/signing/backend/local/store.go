package local

import (
	"context"
	"time"
)

// KeyRecord is the persisted form of a locally managed key. Material is a
// keybox-sealed record, never plaintext.
type KeyRecord struct {
	KeyID             string
	Address           string
	Label             string
	EncryptedMaterial string
	CreatedAt         time.Time
}

// KeyStore is the persistence port for locally managed keys. Production
// wiring supplies the Postgres implementation, tests the in-memory one.
type KeyStore interface {
	// InsertKey persists a new key record.
	InsertKey(ctx context.Context, record *KeyRecord) error

	// GetKey loads a key record by id, returning (nil, nil) when absent.
	GetKey(ctx context.Context, keyID string) (*KeyRecord, error)
}
