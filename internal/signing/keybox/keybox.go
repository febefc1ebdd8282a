package keybox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"strings"

	"github.com/pkg/errors"
)

const (
	nonceSize = 12 // 96-bit GCM nonce
	tagSize   = 16 // 128-bit GCM authentication tag
)

// ErrConfiguration is returned when the master secret is missing or malformed.
// The box never falls back to a generated key: a generated key would silently
// orphan every previously sealed record on the next restart.
var ErrConfiguration = errors.New("keybox: invalid master secret configuration")

// ErrMalformedRecord is returned when a sealed record does not match the
// expected nonce:tag:ciphertext format.
var ErrMalformedRecord = errors.New("keybox: malformed sealed record")

// Box seals and opens small secrets (private-key scalars) with AES-256-GCM.
// The cipher key is derived from a hex-encoded 32-byte master secret taken
// from configuration.
type Box struct {
	aead cipher.AEAD
}

// New builds a Box from the hex-encoded master secret. The secret must decode
// to exactly 32 bytes.
func New(masterSecretHex string) (*Box, error) {
	secretHex := strings.TrimPrefix(strings.TrimSpace(masterSecretHex), "0x")
	if secretHex == "" {
		return nil, errors.Wrap(ErrConfiguration, "master secret is empty")
	}

	secret, err := hex.DecodeString(secretHex)
	if err != nil {
		return nil, errors.Wrap(ErrConfiguration, "master secret is not valid hex")
	}
	if len(secret) != 32 {
		return nil, errors.Wrapf(ErrConfiguration, "master secret must be 32 bytes, got %d", len(secret))
	}

	// Stretch the configured secret into the cipher key so the raw secret
	// never doubles as key material directly.
	key := sha256.Sum256(secret)

	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, errors.Wrap(err, "failed to create cipher")
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create GCM")
	}

	return &Box{aead: aead}, nil
}

// Seal encrypts plaintext and returns a record in the form
// base64(nonce):base64(tag):base64(ciphertext).
func (b *Box) Seal(plaintext []byte) (string, error) {
	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", errors.Wrap(err, "failed to generate nonce")
	}

	// GCM appends the tag to the ciphertext; split it off so the record
	// carries the three fields separately.
	sealed := b.aead.Seal(nil, nonce, plaintext, nil)
	ciphertext := sealed[:len(sealed)-tagSize]
	tag := sealed[len(sealed)-tagSize:]

	enc := base64.StdEncoding
	return enc.EncodeToString(nonce) + ":" + enc.EncodeToString(tag) + ":" + enc.EncodeToString(ciphertext), nil
}

// Open decrypts a record produced by Seal, verifying its authentication tag.
func (b *Box) Open(record string) ([]byte, error) {
	parts := strings.Split(record, ":")
	if len(parts) != 3 {
		return nil, errors.Wrapf(ErrMalformedRecord, "expected 3 fields, got %d", len(parts))
	}

	enc := base64.StdEncoding
	nonce, err := enc.DecodeString(parts[0])
	if err != nil {
		return nil, errors.Wrap(ErrMalformedRecord, "failed to decode nonce")
	}
	if len(nonce) != nonceSize {
		return nil, errors.Wrapf(ErrMalformedRecord, "nonce must be %d bytes, got %d", nonceSize, len(nonce))
	}

	tag, err := enc.DecodeString(parts[1])
	if err != nil {
		return nil, errors.Wrap(ErrMalformedRecord, "failed to decode tag")
	}
	if len(tag) != tagSize {
		return nil, errors.Wrapf(ErrMalformedRecord, "tag must be %d bytes, got %d", tagSize, len(tag))
	}

	ciphertext, err := enc.DecodeString(parts[2])
	if err != nil {
		return nil, errors.Wrap(ErrMalformedRecord, "failed to decode ciphertext")
	}

	plaintext, err := b.aead.Open(nil, nonce, append(ciphertext, tag...), nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to decrypt record")
	}

	return plaintext, nil
}
