package intent

import (
	"context"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/pkg/errors"

	"github/finchase/go-signing/internal/util"
)

// Verifier validates one-shot operation intents. Verification itself is
// side-effect free so it can be retried; consumption is the separate
// RecordNonceUsed step the caller performs only after the authorized action
// actually happened.
type Verifier struct {
	registry      *SchemaRegistry
	replay        ReplayStore
	domainName    string
	domainVersion string
	now           func() time.Time
}

// NewVerifier creates a generic-intent Verifier. The EIP-712 domain binds
// the given name/version plus the per-intent chain id.
func NewVerifier(registry *SchemaRegistry, replay ReplayStore, domainName, domainVersion string) (*Verifier, error) {
	if registry == nil {
		return nil, errors.New("schema registry is required")
	}
	if replay == nil {
		return nil, errors.New("replay store is required")
	}
	if domainName == "" || domainVersion == "" {
		return nil, errors.New("domain name and version are required")
	}

	return &Verifier{
		registry:      registry,
		replay:        replay,
		domainName:    domainName,
		domainVersion: domainVersion,
		now:           time.Now,
	}, nil
}

// WithClock overrides the expiry clock. Test support only.
func (v *Verifier) WithClock(now func() time.Time) *Verifier {
	v.now = now
	return v
}

// Verify runs the full rejection ladder: schema, expiry, signature recovery,
// signer match, nonce freshness. The returned error is reserved for
// infrastructure failures; policy rejections come back as a Result.
func (v *Verifier) Verify(ctx context.Context, si *SignedIntent) (*Result, error) {
	log := util.LogFromContext(ctx).With().Str("intent_type", si.IntentType).Logger()

	schema, ok := v.registry.Get(si.IntentType)
	if !ok {
		return rejected(CodeUnknownIntentType, fmt.Sprintf("unknown intent type %q", si.IntentType)), nil
	}

	if reason := v.checkSchema(schema, si); reason != "" {
		return rejected(CodeInvalidSchema, reason), nil
	}

	if schema.ReplayProtected {
		if deadline, ok := expiryDeadline(si); ok && v.now().After(deadline) {
			return rejected(CodeIntentExpired, fmt.Sprintf("intent expired at %s", deadline.UTC().Format(time.RFC3339))), nil
		}
	}

	digest, err := v.digest(schema, si)
	if err != nil {
		// Typed-data encoding failures mean the message does not fit the
		// struct definition.
		return rejected(CodeInvalidSchema, err.Error()), nil
	}

	recovered, err := RecoverSigner(digest, si.Signature)
	if err != nil {
		return rejected(CodeInvalidSignature, err.Error()), nil
	}

	claimed := common.HexToAddress(si.Signer)
	if recovered != claimed {
		return rejected(CodeSignerMismatch, fmt.Sprintf("recovered %s, claimed %s", recovered.Hex(), claimed.Hex())), nil
	}

	if schema.ReplayProtected {
		used, err := v.replay.IsNonceUsed(ctx, normalizeSigner(si.Signer), si.ChainID, si.Nonce)
		if err != nil {
			return nil, errors.Wrap(err, "failed to check intent nonce")
		}
		if used {
			return rejected(CodeNonceUsed, fmt.Sprintf("nonce %d already consumed", si.Nonce)), nil
		}
	}

	log.Debug().Str("signer", recovered.Hex()).Msg("Intent verified")

	return &Result{Valid: true, Signer: recovered}, nil
}

// RecordNonceUsed consumes the intent's nonce tuple. Called by the caller
// only after the authorized action has been taken.
func (v *Verifier) RecordNonceUsed(ctx context.Context, si *SignedIntent) error {
	return v.replay.MarkNonceUsed(ctx, normalizeSigner(si.Signer), si.ChainID, si.Nonce)
}

func (v *Verifier) checkSchema(schema Schema, si *SignedIntent) string {
	if si.Message == nil {
		return "message is required"
	}
	if len(si.Signature) != 65 {
		return fmt.Sprintf("signature must be 65 bytes, got %d", len(si.Signature))
	}
	if !common.IsHexAddress(si.Signer) {
		return fmt.Sprintf("claimed signer %q is not an address", si.Signer)
	}
	if si.ChainID <= 0 {
		return "chain id must be positive"
	}

	for _, field := range schema.Types[schema.PrimaryType] {
		if _, ok := si.Message[field.Name]; !ok {
			return fmt.Sprintf("message is missing field %q", field.Name)
		}
	}

	// The mirrored policy fields must agree with the signed payload,
	// otherwise replay checks would run against unauthenticated values.
	if raw, ok := si.Message["signer"]; ok {
		if s, ok := raw.(string); !ok || !strings.EqualFold(s, si.Signer) {
			return "message signer does not match claimed signer"
		}
	}
	if raw, ok := si.Message["nonce"]; ok {
		n, err := messageUint64(raw)
		if err != nil || n != si.Nonce {
			return "message nonce does not match intent nonce"
		}
	}
	if raw, ok := si.Message["expiresAt"]; ok {
		exp, err := messageUint64(raw)
		if err != nil {
			return "message expiresAt is not a valid timestamp"
		}
		if si.ExpiresAt != nil && si.ExpiresAt.Unix() != int64(exp) {
			return "message expiresAt does not match intent expiry"
		}
	}

	return ""
}

// expiryDeadline reads the expiry from the signed message field when the
// schema carries one, so the policy runs on the value the signature covers.
// The envelope mirror only decides for schemas without a message expiry.
func expiryDeadline(si *SignedIntent) (time.Time, bool) {
	if raw, ok := si.Message["expiresAt"]; ok {
		if exp, err := messageUint64(raw); err == nil {
			return time.Unix(int64(exp), 0), true
		}
	}
	if si.ExpiresAt != nil {
		return *si.ExpiresAt, true
	}
	return time.Time{}, false
}

func (v *Verifier) digest(schema Schema, si *SignedIntent) ([32]byte, error) {
	types := apitypes.Types{
		"EIP712Domain": []apitypes.Type{
			{Name: "name", Type: "string"},
			{Name: "version", Type: "string"},
			{Name: "chainId", Type: "uint256"},
		},
	}
	for name, fields := range schema.Types {
		types[name] = fields
	}

	typedData := apitypes.TypedData{
		Types:       types,
		PrimaryType: schema.PrimaryType,
		Domain: apitypes.TypedDataDomain{
			Name:    v.domainName,
			Version: v.domainVersion,
			ChainId: math.NewHexOrDecimal256(si.ChainID),
		},
		Message: si.Message,
	}

	hash, _, err := apitypes.TypedDataAndHash(typedData)
	if err != nil {
		return [32]byte{}, errors.Wrap(err, "failed to hash typed data")
	}

	var digest [32]byte
	copy(digest[:], hash)
	return digest, nil
}

// RecoverSigner recovers the signing address from a 65-byte signature over
// the given digest. Both raw (0/1) and offset (27/28) parity encodings are
// accepted.
func RecoverSigner(digest [32]byte, signature []byte) (common.Address, error) {
	if len(signature) != 65 {
		return common.Address{}, errors.Errorf("signature must be 65 bytes, got %d", len(signature))
	}

	sig := make([]byte, 65)
	copy(sig, signature)
	if sig[64] >= 27 {
		sig[64] -= 27
	}
	if sig[64] > 1 {
		return common.Address{}, errors.Errorf("invalid recovery id %d", sig[64])
	}

	pubkey, err := crypto.SigToPub(digest[:], sig)
	if err != nil {
		return common.Address{}, errors.Wrap(err, "failed to recover public key")
	}

	return crypto.PubkeyToAddress(*pubkey), nil
}

func normalizeSigner(signer string) string {
	return strings.ToLower(common.HexToAddress(signer).Hex())
}

// messageUint64 parses the loosely typed numeric encodings JSON typed-data
// messages carry.
func messageUint64(raw interface{}) (uint64, error) {
	switch n := raw.(type) {
	case uint64:
		return n, nil
	case int:
		if n < 0 {
			return 0, errors.New("negative value")
		}
		return uint64(n), nil
	case int64:
		if n < 0 {
			return 0, errors.New("negative value")
		}
		return uint64(n), nil
	case float64:
		if n < 0 {
			return 0, errors.New("negative value")
		}
		return uint64(n), nil
	case string:
		if strings.HasPrefix(n, "0x") {
			return strconv.ParseUint(n[2:], 16, 64)
		}
		return strconv.ParseUint(n, 10, 64)
	case *big.Int:
		if !n.IsUint64() {
			return 0, errors.New("value out of range")
		}
		return n.Uint64(), nil
	case *math.HexOrDecimal256:
		b := (*big.Int)(n)
		if !b.IsUint64() {
			return 0, errors.New("value out of range")
		}
		return b.Uint64(), nil
	default:
		return 0, errors.Errorf("unsupported numeric type %T", raw)
	}
}
