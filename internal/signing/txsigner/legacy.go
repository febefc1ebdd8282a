// Package txsigner builds, hashes and serializes legacy transactions signed
// through a key-custody backend.
package txsigner

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/pkg/errors"

	"github/finchase/go-signing/internal/signing/backend"
)

// UnsignedLegacyTx carries the pre-EIP-1559 transaction fields. No access
// list, no dynamic fees.
type UnsignedLegacyTx struct {
	ChainID  *big.Int
	Nonce    uint64
	To       *common.Address // nil for contract creation
	Value    *big.Int
	Gas      uint64
	GasPrice *big.Int
	Data     []byte
}

// validate fails fast on missing required numeric fields. Silently
// defaulting a nil chain id or gas price would sign a transaction the caller
// did not ask for.
func (u *UnsignedLegacyTx) validate() error {
	if u.ChainID == nil || u.ChainID.Sign() <= 0 {
		return errors.New("chain id is required and must be positive")
	}
	if u.GasPrice == nil {
		return errors.New("gas price is required")
	}
	if u.Value == nil {
		return errors.New("value is required (use 0, not nil)")
	}
	if u.Gas == 0 {
		return errors.New("gas limit is required")
	}
	return nil
}

// SignedTx is the caller-ready result of SignLegacy.
type SignedTx struct {
	Raw    []byte // RLP-encoded signed transaction
	TxHash common.Hash
	R      [32]byte
	S      [32]byte
	V      *big.Int // EIP-155 embedded parity: chainID*2 + 35 + recovery id
}

// SignLegacy serializes the unsigned transaction, signs its EIP-155 digest
// through the backend and re-serializes with the signature attached. The
// backend's raw v is always 27/28 regardless of chain; the chain id is folded
// into the embedded v here to prevent cross-chain replay.
func SignLegacy(ctx context.Context, b backend.Backend, keyID string, unsigned UnsignedLegacyTx) (*SignedTx, error) {
	if err := unsigned.validate(); err != nil {
		return nil, errors.Wrap(err, "invalid unsigned transaction")
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    unsigned.Nonce,
		To:       unsigned.To,
		Value:    unsigned.Value,
		Gas:      unsigned.Gas,
		GasPrice: unsigned.GasPrice,
		Data:     unsigned.Data,
	})

	signer := types.NewEIP155Signer(unsigned.ChainID)
	digest := signer.Hash(tx)

	sig, err := b.SignTransactionHash(ctx, keyID, digest)
	if err != nil {
		return nil, err
	}

	recoveryID := sig.V - 27
	embeddedV := new(big.Int).Mul(unsigned.ChainID, big.NewInt(2))
	embeddedV.Add(embeddedV, big.NewInt(35+int64(recoveryID)))

	signedTx, err := tx.WithSignature(signer, sig.Signature[:])
	if err != nil {
		return nil, errors.Wrapf(backend.ErrSigningFailed, "attach signature: %v", err)
	}

	raw, err := signedTx.MarshalBinary()
	if err != nil {
		return nil, errors.Wrap(err, "failed to serialize signed transaction")
	}

	return &SignedTx{
		Raw:    raw,
		TxHash: signedTx.Hash(),
		R:      sig.R,
		S:      sig.S,
		V:      embeddedV,
	}, nil
}
