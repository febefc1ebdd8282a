package backend

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

// Provider identifies which key-custody implementation holds a key.
type Provider string

const (
	ProviderLocal      Provider = "local"
	ProviderManagedHSM Provider = "managed-hsm"
)

// KeyInfo is the opaque handle returned by CreateKey.
type KeyInfo struct {
	KeyID    string
	Address  common.Address
	Provider Provider
}

// SignatureResult carries a recoverable secp256k1 signature. V is the raw
// recovery value 27 or 28; EIP-155 embedding happens at transaction
// serialization, not here.
type SignatureResult struct {
	R         [32]byte
	S         [32]byte
	V         byte
	Signature [65]byte // r || s || recovery id (0/1)
}

// Backend is the uniform key-custody contract. All signing entry points take
// a raw 32-byte digest and apply no message prefix: the recovered address
// must match the transaction sender, which personal-message prefixing would
// break.
type Backend interface {
	// CreateKey generates a new signing key and returns its handle.
	CreateKey(ctx context.Context, label string) (*KeyInfo, error)

	// Address resolves the account address for a key id.
	// Returns ErrKeyNotFound for unknown ids.
	Address(ctx context.Context, keyID string) (common.Address, error)

	// SignHash signs a raw 32-byte digest.
	// Returns ErrKeyNotFound or ErrSigningFailed.
	SignHash(ctx context.Context, keyID string, hash [32]byte) (*SignatureResult, error)

	// SignTypedDataHash signs an EIP-712 digest. Delegates to SignHash.
	SignTypedDataHash(ctx context.Context, keyID string, hash [32]byte) (*SignatureResult, error)

	// SignTransactionHash signs a transaction digest. Delegates to SignHash.
	SignTransactionHash(ctx context.Context, keyID string, hash [32]byte) (*SignatureResult, error)

	// Provider reports which implementation this is.
	Provider() Provider
}
