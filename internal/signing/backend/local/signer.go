package local

import (
	"context"
	"crypto/ecdsa"
	"crypto/rand"
	"io"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github/finchase/go-signing/internal/signing/backend"
	"github/finchase/go-signing/internal/signing/keybox"
	"github/finchase/go-signing/internal/util"
)

// Signer is the development/test key-custody backend. Key material lives
// keybox-encrypted in the KeyStore; decrypted keys are cached in memory for
// the lifetime of the process. Production custody belongs in the managed HSM
// backend.
type Signer struct {
	box     *keybox.Box
	store   KeyStore
	entropy io.Reader

	mu    sync.RWMutex
	cache map[string]*ecdsa.PrivateKey
}

// Option customizes Signer construction.
type Option func(*Signer)

// WithEntropy overrides the key-generation entropy source. Test support
// only, for deterministic fixture keys.
func WithEntropy(r io.Reader) Option {
	return func(s *Signer) {
		s.entropy = r
	}
}

// New builds a local signer over the given keybox and key store.
func New(box *keybox.Box, store KeyStore, opts ...Option) (*Signer, error) {
	if box == nil {
		return nil, errors.Wrap(backend.ErrConfiguration, "keybox is required")
	}
	if store == nil {
		return nil, errors.Wrap(backend.ErrConfiguration, "key store is required")
	}

	s := &Signer{
		box:     box,
		store:   store,
		entropy: rand.Reader,
		cache:   make(map[string]*ecdsa.PrivateKey),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// Provider implements backend.Backend.
func (s *Signer) Provider() backend.Provider {
	return backend.ProviderLocal
}

// CreateKey generates a fresh secp256k1 key, seals it and persists the
// record.
func (s *Signer) CreateKey(ctx context.Context, label string) (*backend.KeyInfo, error) {
	log := util.LogFromContext(ctx)

	privateKey, err := ecdsa.GenerateKey(crypto.S256(), s.entropy)
	if err != nil {
		return nil, errors.Wrap(err, "failed to generate key")
	}

	address := crypto.PubkeyToAddress(privateKey.PublicKey)

	sealed, err := s.box.Seal(crypto.FromECDSA(privateKey))
	if err != nil {
		return nil, errors.Wrap(err, "failed to encrypt key material")
	}

	record := &KeyRecord{
		KeyID:             uuid.New().String(),
		Address:           address.Hex(),
		Label:             label,
		EncryptedMaterial: sealed,
		CreatedAt:         time.Now().UTC(),
	}

	if err := s.store.InsertKey(ctx, record); err != nil {
		return nil, errors.Wrap(err, "failed to persist key record")
	}

	s.mu.Lock()
	s.cache[record.KeyID] = privateKey
	s.mu.Unlock()

	log.Debug().Str("key_id", record.KeyID).Str("address", record.Address).Msg("Created local signing key")

	return &backend.KeyInfo{
		KeyID:    record.KeyID,
		Address:  address,
		Provider: backend.ProviderLocal,
	}, nil
}

// Address implements backend.Backend.
func (s *Signer) Address(ctx context.Context, keyID string) (common.Address, error) {
	privateKey, err := s.loadKey(ctx, keyID)
	if err != nil {
		return common.Address{}, err
	}
	return crypto.PubkeyToAddress(privateKey.PublicKey), nil
}

// SignHash signs the raw digest directly with the curve's signing primitive.
// The emitted V is recovery id + 27.
func (s *Signer) SignHash(ctx context.Context, keyID string, hash [32]byte) (*backend.SignatureResult, error) {
	privateKey, err := s.loadKey(ctx, keyID)
	if err != nil {
		return nil, err
	}

	sig, err := crypto.Sign(hash[:], privateKey)
	if err != nil {
		return nil, errors.Wrapf(backend.ErrSigningFailed, "ecdsa sign: %v", err)
	}

	var result backend.SignatureResult
	copy(result.R[:], sig[:32])
	copy(result.S[:], sig[32:64])
	result.V = sig[64] + 27
	copy(result.Signature[:], sig)

	return &result, nil
}

// SignTypedDataHash implements backend.Backend.
func (s *Signer) SignTypedDataHash(ctx context.Context, keyID string, hash [32]byte) (*backend.SignatureResult, error) {
	return s.SignHash(ctx, keyID, hash)
}

// SignTransactionHash implements backend.Backend.
func (s *Signer) SignTransactionHash(ctx context.Context, keyID string, hash [32]byte) (*backend.SignatureResult, error) {
	return s.SignHash(ctx, keyID, hash)
}

func (s *Signer) loadKey(ctx context.Context, keyID string) (*ecdsa.PrivateKey, error) {
	s.mu.RLock()
	cached, ok := s.cache[keyID]
	s.mu.RUnlock()
	if ok {
		return cached, nil
	}

	record, err := s.store.GetKey(ctx, keyID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load key record")
	}
	if record == nil {
		return nil, errors.Wrapf(backend.ErrKeyNotFound, "key %s", keyID)
	}

	material, err := s.box.Open(record.EncryptedMaterial)
	if err != nil {
		return nil, errors.Wrap(err, "failed to decrypt key material")
	}

	privateKey, err := crypto.ToECDSA(material)
	for i := range material {
		material[i] = 0
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse key material")
	}

	s.mu.Lock()
	s.cache[keyID] = privateKey
	s.mu.Unlock()

	return privateKey, nil
}
