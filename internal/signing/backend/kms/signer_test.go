package kms_test

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awskms "github.com/aws/aws-sdk-go-v2/service/kms"
	kmstypes "github.com/aws/aws-sdk-go-v2/service/kms/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github/finchase/go-signing/internal/signing/backend"
	"github/finchase/go-signing/internal/signing/backend/kms"
)

// stubClient emulates the KMS signing API over a locally held key. The
// signature comes back DER encoded with a deliberately high s, exercising
// the normalization path just like the real service would.
type stubClient struct {
	key       *ecdsa.PrivateKey
	keyID     string
	signWith  *ecdsa.PrivateKey // defaults to key; set differently to break recovery
	signErr   error
	pubKeyErr error
}

func newStubClient(t *testing.T) *stubClient {
	t.Helper()

	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	return &stubClient{key: key, keyID: "stub-key-1", signWith: key}
}

func (c *stubClient) CreateKey(_ context.Context, _ *awskms.CreateKeyInput, _ ...func(*awskms.Options)) (*awskms.CreateKeyOutput, error) {
	return &awskms.CreateKeyOutput{
		KeyMetadata: &kmstypes.KeyMetadata{KeyId: aws.String(c.keyID)},
	}, nil
}

func (c *stubClient) GetPublicKey(_ context.Context, params *awskms.GetPublicKeyInput, _ ...func(*awskms.Options)) (*awskms.GetPublicKeyOutput, error) {
	if c.pubKeyErr != nil {
		return nil, c.pubKeyErr
	}
	if aws.ToString(params.KeyId) != c.keyID {
		return nil, &kmstypes.NotFoundException{Message: aws.String("key not found")}
	}

	// SPKI framing: some DER header bytes, then the uncompressed point.
	spki := append([]byte{0x30, 0x56, 0x30, 0x10}, crypto.FromECDSAPub(&c.key.PublicKey)...)

	return &awskms.GetPublicKeyOutput{PublicKey: spki}, nil
}

func (c *stubClient) Sign(_ context.Context, params *awskms.SignInput, _ ...func(*awskms.Options)) (*awskms.SignOutput, error) {
	if c.signErr != nil {
		return nil, c.signErr
	}

	sig, err := crypto.Sign(params.Message, c.signWith)
	if err != nil {
		return nil, err
	}

	r := new(big.Int).SetBytes(sig[:32])
	s := new(big.Int).SetBytes(sig[32:64])

	// Flip s to its high form; the backend must normalize it back.
	s.Sub(crypto.S256().Params().N, s)

	return &awskms.SignOutput{Signature: encodeDERInts(r, s)}, nil
}

func encodeDERInts(r, s *big.Int) []byte {
	encodeInt := func(n *big.Int) []byte {
		b := n.Bytes()
		if len(b) == 0 {
			b = []byte{0x00}
		}
		if b[0]&0x80 != 0 {
			b = append([]byte{0x00}, b...)
		}
		return append([]byte{0x02, byte(len(b))}, b...)
	}

	body := append(encodeInt(r), encodeInt(s)...)
	return append([]byte{0x30, byte(len(body))}, body...)
}

func TestCreateKeyDerivesAddress(t *testing.T) {
	ctx := context.Background()
	client := newStubClient(t)

	signer, err := kms.New(client, time.Second)
	require.NoError(t, err)

	info, err := signer.CreateKey(ctx, "hsm wallet")
	require.NoError(t, err)
	assert.Equal(t, backend.ProviderManagedHSM, info.Provider)
	assert.Equal(t, client.keyID, info.KeyID)
	assert.Equal(t, crypto.PubkeyToAddress(client.key.PublicKey), info.Address)
}

func TestSignHashNormalizesAndRecovers(t *testing.T) {
	ctx := context.Background()
	client := newStubClient(t)

	signer, err := kms.New(client, time.Second)
	require.NoError(t, err)

	var digest [32]byte
	copy(digest[:], crypto.Keccak256([]byte("payload")))

	sig, err := signer.SignHash(ctx, client.keyID, digest)
	require.NoError(t, err)

	// s must be canonical despite the stub answering with its high form.
	s := new(big.Int).SetBytes(sig.S[:])
	halfN := new(big.Int).Rsh(crypto.S256().Params().N, 1)
	assert.LessOrEqual(t, s.Cmp(halfN), 0)

	assert.Contains(t, []byte{27, 28}, sig.V)

	pubkey, err := crypto.SigToPub(digest[:], sig.Signature[:])
	require.NoError(t, err)
	assert.Equal(t, crypto.PubkeyToAddress(client.key.PublicKey), crypto.PubkeyToAddress(*pubkey))
}

func TestSignHashRecoveryFailure(t *testing.T) {
	ctx := context.Background()
	client := newStubClient(t)

	// Signatures produced by a different key never recover the address on
	// file, so neither parity candidate can match.
	otherKey, err := crypto.GenerateKey()
	require.NoError(t, err)
	client.signWith = otherKey

	signer, err := kms.New(client, time.Second)
	require.NoError(t, err)

	_, err = signer.SignHash(ctx, client.keyID, [32]byte{0x01})
	require.Error(t, err)
	assert.True(t, errors.Is(err, backend.ErrRecoveryFailed))
}

func TestSignHashServiceError(t *testing.T) {
	ctx := context.Background()
	client := newStubClient(t)
	client.signErr = errors.New("KMSInternalException")

	signer, err := kms.New(client, time.Second)
	require.NoError(t, err)

	_, err = signer.SignHash(ctx, client.keyID, [32]byte{0x01})
	require.Error(t, err)
	assert.True(t, errors.Is(err, backend.ErrSigningFailed))
}

func TestAddressUnknownKey(t *testing.T) {
	ctx := context.Background()

	signer, err := kms.New(newStubClient(t), time.Second)
	require.NoError(t, err)

	_, err = signer.Address(ctx, "missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, backend.ErrKeyNotFound))
}

func TestAddressServiceUnavailable(t *testing.T) {
	ctx := context.Background()
	client := newStubClient(t)
	client.pubKeyErr = errors.New("KMSInternalException")

	signer, err := kms.New(client, time.Second)
	require.NoError(t, err)

	// An unreachable service is not a bad key id; the caller may retry.
	_, err = signer.Address(ctx, client.keyID)
	require.Error(t, err)
	assert.False(t, errors.Is(err, backend.ErrKeyNotFound))
	assert.True(t, errors.Is(err, backend.ErrSigningFailed))
}
