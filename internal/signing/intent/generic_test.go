package intent_test

import (
	"context"
	"crypto/ecdsa"
	"strconv"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github/finchase/go-signing/internal/signing/intent"
	"github/finchase/go-signing/internal/store/memory"
)

const (
	testDomainName    = "FinchaseAutomation"
	testDomainVersion = "1"
)

func newTestVerifier(t *testing.T) *intent.Verifier {
	t.Helper()

	v, err := intent.NewVerifier(intent.NewSchemaRegistry(), memory.NewReplayStore(), testDomainName, testDomainVersion)
	require.NoError(t, err)
	return v
}

// signTypedData reproduces the client side: hash the struct under the
// domain and sign the digest.
func signTypedData(t *testing.T, key *ecdsa.PrivateKey, chainID int64, primaryType string, types apitypes.Types, message apitypes.TypedDataMessage) []byte {
	t.Helper()

	allTypes := apitypes.Types{
		"EIP712Domain": []apitypes.Type{
			{Name: "name", Type: "string"},
			{Name: "version", Type: "string"},
			{Name: "chainId", Type: "uint256"},
		},
	}
	for name, fields := range types {
		allTypes[name] = fields
	}

	hash, _, err := apitypes.TypedDataAndHash(apitypes.TypedData{
		Types:       allTypes,
		PrimaryType: primaryType,
		Domain: apitypes.TypedDataDomain{
			Name:    testDomainName,
			Version: testDomainVersion,
			ChainId: math.NewHexOrDecimal256(chainID),
		},
		Message: message,
	})
	require.NoError(t, err)

	sig, err := crypto.Sign(hash, key)
	require.NoError(t, err)

	sig[64] += 27
	return sig
}

func deployTypes() apitypes.Types {
	return apitypes.Types{
		"AutomationDeploy": []apitypes.Type{
			{Name: "signer", Type: "address"},
			{Name: "strategyId", Type: "string"},
			{Name: "amount", Type: "uint256"},
			{Name: "nonce", Type: "uint256"},
			{Name: "expiresAt", Type: "uint256"},
		},
	}
}

func newDeployIntent(t *testing.T, key *ecdsa.PrivateKey, chainID int64, nonce uint64, expiresAt time.Time) *intent.SignedIntent {
	t.Helper()

	signer := crypto.PubkeyToAddress(key.PublicKey).Hex()

	message := apitypes.TypedDataMessage{
		"signer":     signer,
		"strategyId": "grid-btc-1",
		"amount":     "2500000000",
		"nonce":      strconv.FormatUint(nonce, 10),
		"expiresAt":  strconv.FormatInt(expiresAt.Unix(), 10),
	}

	return &intent.SignedIntent{
		IntentType: "automation.deploy",
		ChainID:    chainID,
		Signer:     signer,
		Nonce:      nonce,
		ExpiresAt:  &expiresAt,
		Message:    message,
		Signature:  signTypedData(t, key, chainID, "AutomationDeploy", deployTypes(), message),
	}
}

func TestVerifyDeployIntent(t *testing.T) {
	ctx := context.Background()
	v := newTestVerifier(t)

	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	si := newDeployIntent(t, key, 1, 0, time.Now().Add(time.Hour))

	res, err := v.Verify(ctx, si)
	require.NoError(t, err)
	assert.True(t, res.Valid, "reason: %s", res.Reason)
	assert.Equal(t, crypto.PubkeyToAddress(key.PublicKey), res.Signer)
	assert.Equal(t, intent.CodeOK, res.Code)
}

func TestVerifyIsRepeatableUntilConsumed(t *testing.T) {
	ctx := context.Background()
	v := newTestVerifier(t)

	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	si := newDeployIntent(t, key, 1, 3, time.Now().Add(time.Hour))

	for i := 0; i < 3; i++ {
		res, err := v.Verify(ctx, si)
		require.NoError(t, err)
		require.True(t, res.Valid, "verification is side-effect free and must repeat")
	}

	require.NoError(t, v.RecordNonceUsed(ctx, si))

	res, err := v.Verify(ctx, si)
	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.Equal(t, intent.CodeNonceUsed, res.Code)

	// A different nonce from the same signer is unaffected.
	fresh := newDeployIntent(t, key, 1, 4, time.Now().Add(time.Hour))
	res, err = v.Verify(ctx, fresh)
	require.NoError(t, err)
	assert.True(t, res.Valid)
}

func TestVerifyExpiredIntent(t *testing.T) {
	ctx := context.Background()
	v := newTestVerifier(t)

	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	si := newDeployIntent(t, key, 1, 0, time.Now().Add(time.Hour))

	v.WithClock(func() time.Time { return time.Now().Add(2 * time.Hour) })

	res, err := v.Verify(ctx, si)
	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.Equal(t, intent.CodeIntentExpired, res.Code)
}

func TestVerifyExpiryComesFromSignedMessage(t *testing.T) {
	ctx := context.Background()
	v := newTestVerifier(t)

	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	// The signed message expired an hour ago. Dropping the envelope expiry
	// must not resurrect the intent.
	si := newDeployIntent(t, key, 1, 0, time.Now().Add(-time.Hour))
	si.ExpiresAt = nil

	res, err := v.Verify(ctx, si)
	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.Equal(t, intent.CodeIntentExpired, res.Code)

	// An envelope expiry disagreeing with the signed field is malformed, the
	// same way a mirrored nonce mismatch is.
	si = newDeployIntent(t, key, 1, 0, time.Now().Add(-time.Hour))
	forged := time.Now().Add(time.Hour)
	si.ExpiresAt = &forged

	res, err = v.Verify(ctx, si)
	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.Equal(t, intent.CodeInvalidSchema, res.Code)
}

func TestVerifySignerMismatch(t *testing.T) {
	ctx := context.Background()
	v := newTestVerifier(t)

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	otherKey, err := crypto.GenerateKey()
	require.NoError(t, err)

	// Claim one address while the signature comes from another key. The
	// mirrored message signer matches the claim, so the schema check passes
	// and recovery has to catch it.
	si := newDeployIntent(t, key, 1, 0, time.Now().Add(time.Hour))
	si.Signature = signTypedData(t, otherKey, 1, "AutomationDeploy", deployTypes(), si.Message)

	res, err := v.Verify(ctx, si)
	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.Equal(t, intent.CodeSignerMismatch, res.Code)
}

func TestVerifyTamperedMessage(t *testing.T) {
	ctx := context.Background()
	v := newTestVerifier(t)

	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	si := newDeployIntent(t, key, 1, 0, time.Now().Add(time.Hour))
	si.Message["amount"] = "9999999999"

	res, err := v.Verify(ctx, si)
	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.Equal(t, intent.CodeSignerMismatch, res.Code, "a tampered field recovers a different address")
}

func TestVerifyUnknownIntentType(t *testing.T) {
	ctx := context.Background()
	v := newTestVerifier(t)

	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	si := newDeployIntent(t, key, 1, 0, time.Now().Add(time.Hour))
	si.IntentType = "automation.unknown"

	res, err := v.Verify(ctx, si)
	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.Equal(t, intent.CodeUnknownIntentType, res.Code)
}

func TestVerifySchemaRejections(t *testing.T) {
	ctx := context.Background()
	v := newTestVerifier(t)

	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(si *intent.SignedIntent)
	}{
		{"missing message", func(si *intent.SignedIntent) { si.Message = nil }},
		{"missing field", func(si *intent.SignedIntent) { delete(si.Message, "strategyId") }},
		{"short signature", func(si *intent.SignedIntent) { si.Signature = si.Signature[:64] }},
		{"bad signer", func(si *intent.SignedIntent) { si.Signer = "not-an-address" }},
		{"zero chain id", func(si *intent.SignedIntent) { si.ChainID = 0 }},
		{"mirrored nonce mismatch", func(si *intent.SignedIntent) { si.Nonce = 99 }},
		{"mirrored signer mismatch", func(si *intent.SignedIntent) {
			si.Message["signer"] = "0x00000000000000000000000000000000000000aa"
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			si := newDeployIntent(t, key, 1, 0, time.Now().Add(time.Hour))
			tt.mutate(si)

			res, err := v.Verify(ctx, si)
			require.NoError(t, err)
			assert.False(t, res.Valid)
			assert.Equal(t, intent.CodeInvalidSchema, res.Code)
		})
	}
}

func TestVerifyChainScopedReplay(t *testing.T) {
	ctx := context.Background()
	v := newTestVerifier(t)

	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	mainnet := newDeployIntent(t, key, 1, 0, time.Now().Add(time.Hour))
	require.NoError(t, v.RecordNonceUsed(ctx, mainnet))

	// The same nonce on another chain is an independent tuple.
	polygon := newDeployIntent(t, key, 137, 0, time.Now().Add(time.Hour))
	res, err := v.Verify(ctx, polygon)
	require.NoError(t, err)
	assert.True(t, res.Valid)
}

func TestRecoverSignerParityEncodings(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	var digest [32]byte
	copy(digest[:], crypto.Keccak256([]byte("parity")))

	sig, err := crypto.Sign(digest[:], key)
	require.NoError(t, err)

	want := crypto.PubkeyToAddress(key.PublicKey)

	// Raw 0/1 parity.
	got, err := intent.RecoverSigner(digest, sig)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	// Offset 27/28 parity.
	offset := make([]byte, 65)
	copy(offset, sig)
	offset[64] += 27
	got, err = intent.RecoverSigner(digest, offset)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	// Nonsense parity.
	bad := make([]byte, 65)
	copy(bad, sig)
	bad[64] = 5
	_, err = intent.RecoverSigner(digest, bad)
	require.Error(t, err)
}
