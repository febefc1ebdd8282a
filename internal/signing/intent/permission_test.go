package intent_test

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github/finchase/go-signing/internal/signing/intent"
)

func TestCurrencyFlattenRoundTrip(t *testing.T) {
	token := intent.Currency{
		Kind:            intent.CurrencyKindToken,
		Symbol:          "USDC",
		ContractAddress: "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48",
		Decimals:        6,
	}

	flat, err := token.Flatten()
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress(token.ContractAddress), flat.ContractAddress)
	assert.Equal(t, token, flat.Unflatten())

	native := intent.Currency{
		Kind:     intent.CurrencyKindNative,
		Symbol:   "ETH",
		Decimals: 18,
	}

	flat, err = native.Flatten()
	require.NoError(t, err)
	assert.Equal(t, intent.NativeAssetSentinel, flat.ContractAddress, "native assets flatten to the sentinel address")
	assert.Equal(t, native, flat.Unflatten())
}

func TestCurrencyFlattenRejections(t *testing.T) {
	tests := []struct {
		name     string
		currency intent.Currency
	}{
		{"token without address", intent.Currency{Kind: intent.CurrencyKindToken, Symbol: "USDC", Decimals: 6}},
		{"token with malformed address", intent.Currency{Kind: intent.CurrencyKindToken, Symbol: "USDC", ContractAddress: "0x123", Decimals: 6}},
		{"native with address", intent.Currency{Kind: intent.CurrencyKindNative, Symbol: "ETH", ContractAddress: "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48", Decimals: 18}},
		{"unknown kind", intent.Currency{Kind: "lp-share", Symbol: "LP", Decimals: 18}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.currency.Flatten()
			require.Error(t, err)
		})
	}
}

func TestStrategyDigestCanonicalization(t *testing.T) {
	// Key order and whitespace must not influence the digest.
	a, err := intent.StrategyDigest(json.RawMessage(`{"type":"grid","params":{"upper":100,"lower":50}}`))
	require.NoError(t, err)

	b, err := intent.StrategyDigest(json.RawMessage(`{ "params": { "lower": 50, "upper": 100 }, "type": "grid" }`))
	require.NoError(t, err)

	assert.Equal(t, a, b)

	// Different content, different digest.
	c, err := intent.StrategyDigest(json.RawMessage(`{"type":"grid","params":{"upper":101,"lower":50}}`))
	require.NoError(t, err)
	assert.NotEqual(t, a, c)

	_, err = intent.StrategyDigest(nil)
	require.Error(t, err)

	_, err = intent.StrategyDigest(json.RawMessage(`{"broken":`))
	require.Error(t, err)
}

// TestPermissionDigestVector pins the digest of a fixed grant against an
// externally computed reference so a silent change to the struct definition,
// the flattening or the strategy canonicalization cannot go unnoticed. The
// grant digest does not cover the signer, so the vector needs no key.
func TestPermissionDigestVector(t *testing.T) {
	v, err := intent.NewPermissionVerifier(testDomainName, testDomainVersion)
	require.NoError(t, err)

	pi := &intent.PermissionIntent{
		ID:          "perm-1",
		Name:        "Grid trading",
		Description: "Allows grid strategy automation",
		AllowedCurrencies: []intent.Currency{
			{Kind: intent.CurrencyKindToken, Symbol: "USDC", ContractAddress: "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48", Decimals: 6},
			{Kind: intent.CurrencyKindNative, Symbol: "ETH", Decimals: 18},
		},
		AllowedEffects: []string{"deploy", "close"},
		Strategy:       json.RawMessage(`{"type":"grid","params":{"upper":100,"lower":50}}`),
	}

	strategyDigest, err := intent.StrategyDigest(pi.Strategy)
	require.NoError(t, err)
	assert.Equal(t, "0x85dfa26d3f5d5f368a8d6a1878fc630c96a2e4c55bdedc57fc054748efe57702", hexutil.Encode(strategyDigest[:]))

	digest, err := v.Digest(pi)
	require.NoError(t, err)
	assert.Equal(t, "0x620333efae3b1717ae34e8846db9c32fb8452451dc531de2448e45884deaca4f", hexutil.Encode(digest[:]))
}

func newPermissionIntent(t *testing.T, v *intent.PermissionVerifier, key *ecdsa.PrivateKey) *intent.PermissionIntent {
	t.Helper()

	pi := &intent.PermissionIntent{
		ID:          "perm-1",
		Name:        "Grid trading",
		Description: "Allows grid strategy automation",
		AllowedCurrencies: []intent.Currency{
			{Kind: intent.CurrencyKindToken, Symbol: "USDC", ContractAddress: "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48", Decimals: 6},
			{Kind: intent.CurrencyKindNative, Symbol: "ETH", Decimals: 18},
		},
		AllowedEffects: []string{"deploy", "close"},
		Strategy:       json.RawMessage(`{"type":"grid","params":{"upper":100,"lower":50}}`),
		Signer:         crypto.PubkeyToAddress(key.PublicKey).Hex(),
	}

	digest, err := v.Digest(pi)
	require.NoError(t, err)

	sig, err := crypto.Sign(digest[:], key)
	require.NoError(t, err)
	sig[64] += 27
	pi.Signature = sig

	return pi
}

func TestVerifyPermissionGrant(t *testing.T) {
	ctx := context.Background()

	v, err := intent.NewPermissionVerifier(testDomainName, testDomainVersion)
	require.NoError(t, err)

	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	pi := newPermissionIntent(t, v, key)

	res, err := v.Verify(ctx, pi)
	require.NoError(t, err)
	assert.True(t, res.Valid, "reason: %s", res.Reason)
	assert.Equal(t, crypto.PubkeyToAddress(key.PublicKey), res.Signer)

	// Durable grants have no replay dimension: re-verification always works.
	res, err = v.Verify(ctx, pi)
	require.NoError(t, err)
	assert.True(t, res.Valid)
}

func TestVerifyPermissionCaseInsensitiveSigner(t *testing.T) {
	ctx := context.Background()

	v, err := intent.NewPermissionVerifier(testDomainName, testDomainVersion)
	require.NoError(t, err)

	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	pi := newPermissionIntent(t, v, key)
	pi.Signer = "0x" + common.Bytes2Hex(crypto.PubkeyToAddress(key.PublicKey).Bytes())

	res, err := v.Verify(ctx, pi)
	require.NoError(t, err)
	assert.True(t, res.Valid, "lowercase signer must match the checksummed recovery")
}

func TestVerifyPermissionTampered(t *testing.T) {
	ctx := context.Background()

	v, err := intent.NewPermissionVerifier(testDomainName, testDomainVersion)
	require.NoError(t, err)

	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(pi *intent.PermissionIntent)
		code   intent.Code
	}{
		{"changed effect", func(pi *intent.PermissionIntent) { pi.AllowedEffects = []string{"deploy", "withdraw"} }, intent.CodeSignerMismatch},
		{"changed strategy", func(pi *intent.PermissionIntent) {
			pi.Strategy = json.RawMessage(`{"type":"grid","params":{"upper":999,"lower":50}}`)
		}, intent.CodeSignerMismatch},
		{"changed currency decimals", func(pi *intent.PermissionIntent) { pi.AllowedCurrencies[0].Decimals = 8 }, intent.CodeSignerMismatch},
		{"wrong claimed signer", func(pi *intent.PermissionIntent) {
			pi.Signer = "0x00000000000000000000000000000000000000aa"
		}, intent.CodeSignerMismatch},
		{"missing id", func(pi *intent.PermissionIntent) { pi.ID = "" }, intent.CodeInvalidSchema},
		{"no currencies", func(pi *intent.PermissionIntent) { pi.AllowedCurrencies = nil }, intent.CodeInvalidSchema},
		{"no effects", func(pi *intent.PermissionIntent) { pi.AllowedEffects = nil }, intent.CodeInvalidSchema},
		{"no strategy", func(pi *intent.PermissionIntent) { pi.Strategy = nil }, intent.CodeInvalidSchema},
		{"truncated signature", func(pi *intent.PermissionIntent) { pi.Signature = pi.Signature[:10] }, intent.CodeInvalidSchema},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pi := newPermissionIntent(t, v, key)
			tt.mutate(pi)

			res, err := v.Verify(ctx, pi)
			require.NoError(t, err)
			assert.False(t, res.Valid)
			assert.Equal(t, tt.code, res.Code)
		})
	}
}
