package wallet

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"

	"github/finchase/go-signing/internal/signing/backend"
)

var (
	// ErrWalletExists is returned when an active wallet already occupies the
	// (owner, purpose) slot.
	ErrWalletExists = errors.New("wallet already exists")

	// ErrWalletNotFound is returned by lookups that find no wallet.
	ErrWalletNotFound = errors.New("wallet not found")
)

// Purpose tags the automation class a wallet serves.
type Purpose string

const (
	// PurposeAutomation is the default class for strategy automation wallets.
	PurposeAutomation Purpose = "automation"
)

// Wallet is one owner's automation identity, owning exactly one signing key.
type Wallet struct {
	ID         string
	OwnerRef   string
	Purpose    Purpose
	KeyID      string
	Address    common.Address
	Provider   backend.Provider
	IsActive   bool
	CreatedAt  time.Time
	LastUsedAt *time.Time
}

// UniquenessKey derives the hash enforcing at most one active wallet per
// (owner, purpose) pair.
func UniquenessKey(owner string, purpose Purpose) common.Hash {
	return crypto.Keccak256Hash([]byte(owner), []byte(purpose))
}
