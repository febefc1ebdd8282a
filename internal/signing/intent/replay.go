package intent

import (
	"context"

	"github.com/pkg/errors"
)

// ErrNonceAlreadyUsed is returned by MarkNonceUsed when the tuple was
// consumed before.
var ErrNonceAlreadyUsed = errors.New("intent nonce already used")

// ReplayStore tracks consumed (signer, chainId, nonce) tuples. The tuple is
// globally unique once consumed; MarkNonceUsed must be atomic so two
// concurrent consumers cannot both succeed.
type ReplayStore interface {
	// IsNonceUsed reports whether the tuple was consumed.
	IsNonceUsed(ctx context.Context, signer string, chainID int64, nonce uint64) (bool, error)

	// MarkNonceUsed consumes the tuple, failing with ErrNonceAlreadyUsed
	// when it was consumed before.
	MarkNonceUsed(ctx context.Context, signer string, chainID int64, nonce uint64) error
}
