// Package intent verifies EIP-712 signed intents submitted by callers to
// authorize automated actions.
package intent

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// Code classifies why a verification rejected an intent. All rejections are
// terminal for that intent instance; the intent itself would have to change
// for a retry to succeed.
type Code string

const (
	CodeOK                Code = ""
	CodeInvalidSchema     Code = "invalid_schema"
	CodeIntentExpired     Code = "intent_expired"
	CodeInvalidSignature  Code = "invalid_signature"
	CodeSignerMismatch    Code = "signer_mismatch"
	CodeNonceUsed         Code = "nonce_used"
	CodeUnknownIntentType Code = "unknown_intent_type"
)

// Result is the structured outcome of a verification. Rejections are values,
// not errors: callers branch on Code without exception machinery.
// Infrastructure failures (store unreachable) are returned as errors instead.
type Result struct {
	Valid  bool
	Code   Code
	Reason string
	// Signer is the recovered signer once recovery succeeded.
	Signer common.Address
}

func rejected(code Code, reason string) *Result {
	return &Result{Valid: false, Code: code, Reason: reason}
}

// SignedIntent is a one-shot operation intent. The typed Message is the
// signed payload; Signer, Nonce and ExpiresAt mirror the corresponding
// message fields for policy checks and must match them.
type SignedIntent struct {
	IntentType string
	ChainID    int64
	Signer     string // claimed signer address, checked case-insensitively
	Nonce      uint64
	ExpiresAt  *time.Time
	Message    apitypes.TypedDataMessage
	Signature  []byte // 65-byte r || s || v signature over the EIP-712 digest
}
