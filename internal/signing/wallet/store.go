package wallet

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Store is the persistence port for automation wallets. Implementations must
// enforce the active-wallet uniqueness constraint on UniqKey at the storage
// layer; Insert returns ErrWalletExists when it is violated.
type Store interface {
	// Insert persists a new wallet. Fails with ErrWalletExists when an
	// active wallet with the same uniqueness key exists.
	Insert(ctx context.Context, w *Wallet) error

	// GetByUniqKey loads the active wallet for a uniqueness key, returning
	// (nil, nil) when absent.
	GetByUniqKey(ctx context.Context, key common.Hash) (*Wallet, error)

	// GetByAddress loads a wallet (active or not) by account address,
	// returning (nil, nil) when absent.
	GetByAddress(ctx context.Context, address common.Address) (*Wallet, error)

	// GetByID loads a wallet by id, returning (nil, nil) when absent.
	GetByID(ctx context.Context, id string) (*Wallet, error)

	// Deactivate soft-deletes the active wallet for a uniqueness key and
	// reports whether one was deactivated.
	Deactivate(ctx context.Context, key common.Hash) (bool, error)

	// TouchLastUsed records the time of the latest signing operation.
	TouchLastUsed(ctx context.Context, id string, at time.Time) error
}
