package kms

import (
	"context"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awskms "github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/kms/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"

	"github/finchase/go-signing/internal/signing/backend"
	"github/finchase/go-signing/internal/util"
)

// Client is the slice of the AWS KMS API this backend consumes. *awskms.Client
// satisfies it; tests supply a stub.
type Client interface {
	CreateKey(ctx context.Context, params *awskms.CreateKeyInput, optFns ...func(*awskms.Options)) (*awskms.CreateKeyOutput, error)
	GetPublicKey(ctx context.Context, params *awskms.GetPublicKeyInput, optFns ...func(*awskms.Options)) (*awskms.GetPublicKeyOutput, error)
	Sign(ctx context.Context, params *awskms.SignInput, optFns ...func(*awskms.Options)) (*awskms.SignOutput, error)
}

// Signer is the managed-HSM backend. Key material never leaves KMS; this
// type parses the DER signatures KMS returns, normalizes s to its canonical
// low form and determines the recovery id by trial against the address on
// file for the key.
type Signer struct {
	client      Client
	signTimeout time.Duration

	mu        sync.RWMutex
	addresses map[string]common.Address
}

// New builds a managed-HSM signer over the given KMS client. signTimeout
// bounds every Sign round trip; a timeout surfaces as ErrSigningFailed, not
// as a consumed nonce.
func New(client Client, signTimeout time.Duration) (*Signer, error) {
	if client == nil {
		return nil, errors.Wrap(backend.ErrConfiguration, "kms client is required")
	}
	if signTimeout <= 0 {
		signTimeout = 10 * time.Second
	}

	return &Signer{
		client:      client,
		signTimeout: signTimeout,
		addresses:   make(map[string]common.Address),
	}, nil
}

// Provider implements backend.Backend.
func (s *Signer) Provider() backend.Provider {
	return backend.ProviderManagedHSM
}

// CreateKey provisions a secp256k1 signing key inside KMS and derives its
// account address from the returned public key.
func (s *Signer) CreateKey(ctx context.Context, label string) (*backend.KeyInfo, error) {
	log := util.LogFromContext(ctx)

	out, err := s.client.CreateKey(ctx, &awskms.CreateKeyInput{
		KeySpec:     types.KeySpecEccSecgP256k1,
		KeyUsage:    types.KeyUsageTypeSignVerify,
		Description: aws.String(label),
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create kms key")
	}
	if out.KeyMetadata == nil || out.KeyMetadata.KeyId == nil {
		return nil, errors.New("kms returned no key metadata")
	}

	keyID := *out.KeyMetadata.KeyId

	address, err := s.fetchAddress(ctx, keyID)
	if err != nil {
		return nil, err
	}

	log.Debug().Str("key_id", keyID).Str("address", address.Hex()).Msg("Created managed-hsm signing key")

	return &backend.KeyInfo{
		KeyID:    keyID,
		Address:  address,
		Provider: backend.ProviderManagedHSM,
	}, nil
}

// Address implements backend.Backend.
func (s *Signer) Address(ctx context.Context, keyID string) (common.Address, error) {
	s.mu.RLock()
	address, ok := s.addresses[keyID]
	s.mu.RUnlock()
	if ok {
		return address, nil
	}
	return s.fetchAddress(ctx, keyID)
}

// SignHash requests a signature over the raw digest, parses the DER result
// and recovers the parity byte by trial.
func (s *Signer) SignHash(ctx context.Context, keyID string, hash [32]byte) (*backend.SignatureResult, error) {
	address, err := s.Address(ctx, keyID)
	if err != nil {
		return nil, err
	}

	signCtx, cancel := context.WithTimeout(ctx, s.signTimeout)
	defer cancel()

	out, err := s.client.Sign(signCtx, &awskms.SignInput{
		KeyId:            aws.String(keyID),
		Message:          hash[:],
		MessageType:      types.MessageTypeDigest,
		SigningAlgorithm: types.SigningAlgorithmSpecEcdsaSha256,
	})
	if err != nil {
		return nil, errors.Wrapf(backend.ErrSigningFailed, "kms sign: %v", err)
	}

	r, rawS, err := parseDERSignature(out.Signature)
	if err != nil {
		return nil, errors.Wrapf(backend.ErrSigningFailed, "parse kms signature: %v", err)
	}

	lowS := normalizeS(rawS)

	// KMS does not return the recovery id. Try both candidates and keep the
	// one that recovers the address on file for this key.
	for _, v := range []byte{27, 28} {
		var sig [65]byte
		copy(sig[:32], r[:])
		copy(sig[32:64], lowS[:])
		sig[64] = v - 27

		pubkey, err := crypto.SigToPub(hash[:], sig[:])
		if err != nil {
			continue
		}
		if crypto.PubkeyToAddress(*pubkey) != address {
			continue
		}

		return &backend.SignatureResult{
			R:         r,
			S:         lowS,
			V:         v,
			Signature: sig,
		}, nil
	}

	return nil, errors.Wrapf(backend.ErrRecoveryFailed, "neither parity candidate recovers %s for key %s", address.Hex(), keyID)
}

// SignTypedDataHash implements backend.Backend.
func (s *Signer) SignTypedDataHash(ctx context.Context, keyID string, hash [32]byte) (*backend.SignatureResult, error) {
	return s.SignHash(ctx, keyID, hash)
}

// SignTransactionHash implements backend.Backend.
func (s *Signer) SignTransactionHash(ctx context.Context, keyID string, hash [32]byte) (*backend.SignatureResult, error) {
	return s.SignHash(ctx, keyID, hash)
}

func (s *Signer) fetchAddress(ctx context.Context, keyID string) (common.Address, error) {
	out, err := s.client.GetPublicKey(ctx, &awskms.GetPublicKeyInput{
		KeyId: aws.String(keyID),
	})
	if err != nil {
		// Only a missing key is the caller's fault; throttling or transport
		// failures must stay retryable instead of reading as a bad key id.
		var notFound *types.NotFoundException
		if errors.As(err, &notFound) {
			return common.Address{}, errors.Wrapf(backend.ErrKeyNotFound, "get public key for %s: %v", keyID, err)
		}
		return common.Address{}, errors.Wrapf(backend.ErrSigningFailed, "get public key for %s: %v", keyID, err)
	}

	address, err := addressFromSPKI(out.PublicKey)
	if err != nil {
		return common.Address{}, err
	}

	s.mu.Lock()
	s.addresses[keyID] = address
	s.mu.Unlock()

	return address, nil
}

// addressFromSPKI extracts the uncompressed point from a DER/SPKI-wrapped
// public key and applies the usual hash-and-truncate address derivation. The
// point sits at the tail of the SPKI encoding: scan backwards for the 0x04
// marker followed by exactly 64 bytes of x || y.
func addressFromSPKI(spki []byte) (common.Address, error) {
	if len(spki) < 65 {
		return common.Address{}, errors.Errorf("public key too short: %d bytes", len(spki))
	}

	idx := len(spki) - 65
	if spki[idx] != 0x04 {
		return common.Address{}, errors.Errorf("expected uncompressed point marker 0x04 at tail, got 0x%02x", spki[idx])
	}

	hash := crypto.Keccak256(spki[idx+1:])
	return common.BytesToAddress(hash[12:]), nil
}
