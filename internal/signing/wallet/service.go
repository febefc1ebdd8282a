package wallet

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github/finchase/go-signing/internal/signing/backend"
	"github/finchase/go-signing/internal/util"
)

// Service manages the lifecycle of automation wallets.
type Service interface {
	// Create provisions a wallet and its signing key for (owner, purpose).
	// Fails with ErrWalletExists when an active wallet already exists.
	Create(ctx context.Context, owner string, purpose Purpose, label string) (*Wallet, error)

	// GetByOwner returns the active wallet for (owner, purpose) or
	// ErrWalletNotFound.
	GetByOwner(ctx context.Context, owner string, purpose Purpose) (*Wallet, error)

	// GetByAddress returns the wallet holding the given account address or
	// ErrWalletNotFound.
	GetByAddress(ctx context.Context, address common.Address) (*Wallet, error)

	// GetOrCreate returns the active wallet for (owner, purpose), creating
	// it on first use.
	GetOrCreate(ctx context.Context, owner string, purpose Purpose, label string) (*Wallet, error)

	// Deactivate soft-deletes the active wallet for (owner, purpose) and
	// reports whether one was deactivated. The key record stays for audit.
	Deactivate(ctx context.Context, owner string, purpose Purpose) (bool, error)

	// TouchLastUsed marks the wallet as used now. Best-effort: failures are
	// logged and swallowed, a signing result never depends on it.
	TouchLastUsed(ctx context.Context, walletID string)
}

type service struct {
	store   Store
	backend backend.Backend
}

// NewService creates a new wallet Service over the given store and signing
// backend.
//
//nolint:ireturn // Returning interface is intentional for dependency injection
func NewService(store Store, signingBackend backend.Backend) (Service, error) {
	if store == nil {
		return nil, errors.New("store is required")
	}
	if signingBackend == nil {
		return nil, errors.New("signing backend is required")
	}

	return &service{
		store:   store,
		backend: signingBackend,
	}, nil
}

// Create provisions a wallet with a fresh signing key.
func (s *service) Create(ctx context.Context, owner string, purpose Purpose, label string) (*Wallet, error) {
	log := util.LogFromContext(ctx).With().
		Str("owner", owner).
		Str("purpose", string(purpose)).
		Logger()

	uniqKey := UniquenessKey(owner, purpose)

	existing, err := s.store.GetByUniqKey(ctx, uniqKey)
	if err != nil {
		return nil, errors.Wrap(err, "failed to check existing wallet")
	}
	if existing != nil {
		return nil, errors.Wrapf(ErrWalletExists, "owner %s purpose %s", owner, purpose)
	}

	keyInfo, err := s.backend.CreateKey(ctx, label)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create signing key")
	}

	w := &Wallet{
		ID:        uuid.New().String(),
		OwnerRef:  owner,
		Purpose:   purpose,
		KeyID:     keyInfo.KeyID,
		Address:   keyInfo.Address,
		Provider:  keyInfo.Provider,
		IsActive:  true,
		CreatedAt: time.Now().UTC(),
	}

	if err := s.store.Insert(ctx, w); err != nil {
		return nil, errors.Wrap(err, "failed to persist wallet")
	}

	log.Info().Str("wallet_id", w.ID).Str("address", w.Address.Hex()).Msg("Created automation wallet")

	return w, nil
}

// GetByOwner returns the active wallet for (owner, purpose).
func (s *service) GetByOwner(ctx context.Context, owner string, purpose Purpose) (*Wallet, error) {
	w, err := s.store.GetByUniqKey(ctx, UniquenessKey(owner, purpose))
	if err != nil {
		return nil, errors.Wrap(err, "failed to load wallet")
	}
	if w == nil {
		return nil, errors.Wrapf(ErrWalletNotFound, "owner %s purpose %s", owner, purpose)
	}
	return w, nil
}

// GetByAddress returns the wallet holding the given address.
func (s *service) GetByAddress(ctx context.Context, address common.Address) (*Wallet, error) {
	w, err := s.store.GetByAddress(ctx, address)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load wallet by address")
	}
	if w == nil {
		return nil, errors.Wrapf(ErrWalletNotFound, "address %s", address.Hex())
	}
	return w, nil
}

// GetOrCreate composes GetByOwner and Create.
func (s *service) GetOrCreate(ctx context.Context, owner string, purpose Purpose, label string) (*Wallet, error) {
	w, err := s.GetByOwner(ctx, owner, purpose)
	if err == nil {
		return w, nil
	}
	if !errors.Is(err, ErrWalletNotFound) {
		return nil, err
	}

	w, err = s.Create(ctx, owner, purpose, label)
	if err == nil {
		return w, nil
	}

	// Lost a creation race: another caller inserted first, return theirs.
	if errors.Is(err, ErrWalletExists) {
		return s.GetByOwner(ctx, owner, purpose)
	}

	return nil, err
}

// Deactivate soft-deletes the active wallet for (owner, purpose).
func (s *service) Deactivate(ctx context.Context, owner string, purpose Purpose) (bool, error) {
	deactivated, err := s.store.Deactivate(ctx, UniquenessKey(owner, purpose))
	if err != nil {
		return false, errors.Wrap(err, "failed to deactivate wallet")
	}
	if deactivated {
		util.LogFromContext(ctx).Info().
			Str("owner", owner).
			Str("purpose", string(purpose)).
			Msg("Deactivated automation wallet")
	}
	return deactivated, nil
}

// TouchLastUsed marks the wallet as used now, best-effort.
func (s *service) TouchLastUsed(ctx context.Context, walletID string) {
	if err := s.store.TouchLastUsed(ctx, walletID, time.Now().UTC()); err != nil {
		util.LogFromContext(ctx).Warn().Err(err).Str("wallet_id", walletID).Msg("Failed to update wallet last-used timestamp")
	}
}
