// Package nonce hands out per-wallet per-chain transaction nonces.
package nonce

import (
	"context"

	"github.com/pkg/errors"

	"github/finchase/go-signing/internal/util"
)

// ErrNoWallet is returned for nonce operations against an unknown wallet.
var ErrNoWallet = errors.New("no wallet for nonce operation")

// Store is the storage port behind the allocator. AllocateAndIncrement must
// be a single atomic operation against the backing store, not an in-process
// lock: multiple service instances allocate concurrently for the same
// (wallet, chain) pair and must never hand out the same nonce twice.
type Store interface {
	// AllocateAndIncrement returns the current counter value and advances it
	// by one, creating the record (seeded so the first returned nonce is 0)
	// when absent.
	AllocateAndIncrement(ctx context.Context, walletID string, chainID int64) (uint64, error)

	// Peek returns the nonce the next allocation would hand out, 0 when no
	// record exists.
	Peek(ctx context.Context, walletID string, chainID int64) (uint64, error)

	// Reset overwrites the counter unconditionally so the next allocation
	// returns exactly the given nonce.
	Reset(ctx context.Context, walletID string, chainID int64, next uint64) error
}

// WalletChecker reports whether a wallet id is known. The allocator uses it
// to surface ErrNoWallet instead of silently creating counters for garbage
// ids.
type WalletChecker interface {
	WalletExists(ctx context.Context, walletID string) (bool, error)
}

// Allocator allocates monotonic nonces. Allocation and signing are separate
// steps: a timed-out signing attempt must not be interpreted as a consumed
// nonce, the caller decides whether to reset after divergence.
type Allocator struct {
	store  Store
	wallet WalletChecker
}

// New creates an Allocator. The wallet checker may be nil, in which case
// unknown wallet ids allocate freely (test wiring).
func New(store Store, wallet WalletChecker) (*Allocator, error) {
	if store == nil {
		return nil, errors.New("store is required")
	}
	return &Allocator{store: store, wallet: wallet}, nil
}

// AllocateAndIncrement returns the next nonce for (wallet, chain).
func (a *Allocator) AllocateAndIncrement(ctx context.Context, walletID string, chainID int64) (uint64, error) {
	if err := a.checkWallet(ctx, walletID); err != nil {
		return 0, err
	}

	n, err := a.store.AllocateAndIncrement(ctx, walletID, chainID)
	if err != nil {
		return 0, errors.Wrap(err, "failed to allocate nonce")
	}

	return n, nil
}

// Peek returns the next nonce without consuming it.
func (a *Allocator) Peek(ctx context.Context, walletID string, chainID int64) (uint64, error) {
	if err := a.checkWallet(ctx, walletID); err != nil {
		return 0, err
	}

	n, err := a.store.Peek(ctx, walletID, chainID)
	if err != nil {
		return 0, errors.Wrap(err, "failed to peek nonce")
	}

	return n, nil
}

// Reset overwrites the counter. Manual recovery only, for the case where a
// transaction was signed but never broadcast and the on-chain nonce has
// diverged from the allocator.
func (a *Allocator) Reset(ctx context.Context, walletID string, chainID int64, next uint64) error {
	if err := a.checkWallet(ctx, walletID); err != nil {
		return err
	}

	if err := a.store.Reset(ctx, walletID, chainID, next); err != nil {
		return errors.Wrap(err, "failed to reset nonce")
	}

	util.LogFromContext(ctx).Warn().
		Str("wallet_id", walletID).
		Int64("chain_id", chainID).
		Uint64("next_nonce", next).
		Msg("Nonce counter reset")

	return nil
}

func (a *Allocator) checkWallet(ctx context.Context, walletID string) error {
	if a.wallet == nil {
		return nil
	}
	exists, err := a.wallet.WalletExists(ctx, walletID)
	if err != nil {
		return errors.Wrap(err, "failed to check wallet existence")
	}
	if !exists {
		return errors.Wrapf(ErrNoWallet, "wallet %s", walletID)
	}
	return nil
}
