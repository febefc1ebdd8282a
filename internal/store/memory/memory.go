// Package memory provides the in-memory implementations of the persistence
// ports. Dev and test wiring only; production uses the postgres and redis
// implementations.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"

	"github/finchase/go-signing/internal/signing/backend/local"
	"github/finchase/go-signing/internal/signing/intent"
	"github/finchase/go-signing/internal/signing/wallet"
)

// KeyStore implements local.KeyStore.
type KeyStore struct {
	mu   sync.RWMutex
	keys map[string]local.KeyRecord
}

// NewKeyStore creates an empty in-memory key store.
func NewKeyStore() *KeyStore {
	return &KeyStore{keys: make(map[string]local.KeyRecord)}
}

// InsertKey implements local.KeyStore.
func (s *KeyStore) InsertKey(_ context.Context, record *local.KeyRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.keys[record.KeyID]; ok {
		return errors.Errorf("key %s already exists", record.KeyID)
	}
	s.keys[record.KeyID] = *record
	return nil
}

// GetKey implements local.KeyStore.
func (s *KeyStore) GetKey(_ context.Context, keyID string) (*local.KeyRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.keys[keyID]
	if !ok {
		return nil, nil
	}
	return &record, nil
}

// WalletStore implements wallet.Store and nonce.WalletChecker.
type WalletStore struct {
	mu      sync.RWMutex
	wallets map[string]wallet.Wallet // by id
}

// NewWalletStore creates an empty in-memory wallet store.
func NewWalletStore() *WalletStore {
	return &WalletStore{wallets: make(map[string]wallet.Wallet)}
}

// Insert implements wallet.Store.
func (s *WalletStore) Insert(_ context.Context, w *wallet.Wallet) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	uniqKey := wallet.UniquenessKey(w.OwnerRef, w.Purpose)
	for _, existing := range s.wallets {
		if existing.IsActive && wallet.UniquenessKey(existing.OwnerRef, existing.Purpose) == uniqKey {
			return errors.Wrapf(wallet.ErrWalletExists, "owner %s purpose %s", w.OwnerRef, w.Purpose)
		}
	}

	s.wallets[w.ID] = *w
	return nil
}

// GetByUniqKey implements wallet.Store.
func (s *WalletStore) GetByUniqKey(_ context.Context, key common.Hash) (*wallet.Wallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, w := range s.wallets {
		if w.IsActive && wallet.UniquenessKey(w.OwnerRef, w.Purpose) == key {
			found := w
			return &found, nil
		}
	}
	return nil, nil
}

// GetByAddress implements wallet.Store.
func (s *WalletStore) GetByAddress(_ context.Context, address common.Address) (*wallet.Wallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, w := range s.wallets {
		if w.Address == address {
			found := w
			return &found, nil
		}
	}
	return nil, nil
}

// GetByID implements wallet.Store.
func (s *WalletStore) GetByID(_ context.Context, id string) (*wallet.Wallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.wallets[id]
	if !ok {
		return nil, nil
	}
	return &w, nil
}

// Deactivate implements wallet.Store.
func (s *WalletStore) Deactivate(_ context.Context, key common.Hash) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, w := range s.wallets {
		if w.IsActive && wallet.UniquenessKey(w.OwnerRef, w.Purpose) == key {
			w.IsActive = false
			s.wallets[id] = w
			return true, nil
		}
	}
	return false, nil
}

// TouchLastUsed implements wallet.Store.
func (s *WalletStore) TouchLastUsed(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.wallets[id]
	if !ok {
		return errors.Errorf("wallet %s not found", id)
	}
	w.LastUsedAt = &at
	s.wallets[id] = w
	return nil
}

// WalletExists implements nonce.WalletChecker.
func (s *WalletStore) WalletExists(_ context.Context, id string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.wallets[id]
	return ok, nil
}

type nonceKey struct {
	walletID string
	chainID  int64
}

// NonceStore implements nonce.Store with a single mutex standing in for the
// storage-layer atomic primitive.
type NonceStore struct {
	mu       sync.Mutex
	counters map[nonceKey]uint64
}

// NewNonceStore creates an empty in-memory nonce store.
func NewNonceStore() *NonceStore {
	return &NonceStore{counters: make(map[nonceKey]uint64)}
}

// AllocateAndIncrement implements nonce.Store.
func (s *NonceStore) AllocateAndIncrement(_ context.Context, walletID string, chainID int64) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := nonceKey{walletID, chainID}
	current := s.counters[key]
	s.counters[key] = current + 1
	return current, nil
}

// Peek implements nonce.Store.
func (s *NonceStore) Peek(_ context.Context, walletID string, chainID int64) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counters[nonceKey{walletID, chainID}], nil
}

// Reset implements nonce.Store.
func (s *NonceStore) Reset(_ context.Context, walletID string, chainID int64, next uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters[nonceKey{walletID, chainID}] = next
	return nil
}

type replayKey struct {
	signer  string
	chainID int64
	nonce   uint64
}

// ReplayStore implements intent.ReplayStore.
type ReplayStore struct {
	mu   sync.Mutex
	used map[replayKey]struct{}
}

// NewReplayStore creates an empty in-memory replay store.
func NewReplayStore() *ReplayStore {
	return &ReplayStore{used: make(map[replayKey]struct{})}
}

// IsNonceUsed implements intent.ReplayStore.
func (s *ReplayStore) IsNonceUsed(_ context.Context, signer string, chainID int64, n uint64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.used[replayKey{signer, chainID, n}]
	return ok, nil
}

// MarkNonceUsed implements intent.ReplayStore.
func (s *ReplayStore) MarkNonceUsed(_ context.Context, signer string, chainID int64, n uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := replayKey{signer, chainID, n}
	if _, ok := s.used[key]; ok {
		return errors.Wrapf(intent.ErrNonceAlreadyUsed, "signer %s chain %d nonce %d", signer, chainID, n)
	}
	s.used[key] = struct{}{}
	return nil
}
