package kms

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// encodeDER builds 30 len 02 rlen r 02 slen s with standard sign padding.
func encodeDER(t *testing.T, r, s *big.Int) []byte {
	t.Helper()

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

func TestParseDERSignature(t *testing.T) {
	r, _ := new(big.Int).SetString("ff0102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f", 16)
	s, _ := new(big.Int).SetString("1f1e1d1c1b1a191817161514131211100f0e0d0c0b0a09080706050403020100", 16)

	der := encodeDER(t, r, s)
	// r's high bit is set, so the encoder added a padding byte.
	require.Equal(t, byte(33), der[3])

	gotR, gotS, err := parseDERSignature(der)
	require.NoError(t, err)
	assert.Equal(t, r.Bytes(), new(big.Int).SetBytes(gotR[:]).Bytes())
	assert.Equal(t, s.Bytes(), new(big.Int).SetBytes(gotS[:]).Bytes())
}

func TestParseDERSignatureShortInteger(t *testing.T) {
	// A 1-byte r must be left-padded into the fixed 32-byte form.
	gotR, gotS, err := parseDERSignature(encodeDER(t, big.NewInt(0x7f), big.NewInt(0x0102)))
	require.NoError(t, err)
	assert.Equal(t, byte(0x7f), gotR[31])
	assert.Equal(t, []byte{0x01, 0x02}, gotS[30:])
	assert.Equal(t, make([]byte, 31), gotR[:31])
}

func TestParseDERSignatureRejectsGarbage(t *testing.T) {
	tests := []struct {
		name string
		der  []byte
	}{
		{"empty", nil},
		{"too short", []byte{0x30, 0x02, 0x02, 0x00}},
		{"wrong sequence tag", []byte{0x31, 0x06, 0x02, 0x01, 0x01, 0x02, 0x01, 0x01}},
		{"length mismatch", []byte{0x30, 0x20, 0x02, 0x01, 0x01, 0x02, 0x01, 0x01}},
		{"wrong integer tag", []byte{0x30, 0x06, 0x03, 0x01, 0x01, 0x02, 0x01, 0x01}},
		{"trailing bytes", []byte{0x30, 0x07, 0x02, 0x01, 0x01, 0x02, 0x01, 0x01, 0xff}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := parseDERSignature(tt.der)
			require.Error(t, err)
		})
	}
}

func TestParseDERSignatureRejectsOversizedInteger(t *testing.T) {
	oversized := new(big.Int).Lsh(big.NewInt(1), 264) // 33 bytes
	_, _, err := parseDERSignature(encodeDER(t, oversized, big.NewInt(1)))
	require.Error(t, err)
}

func TestNormalizeS(t *testing.T) {
	n := crypto.S256().Params().N

	var low [32]byte
	big.NewInt(42).FillBytes(low[:])
	assert.Equal(t, low, normalizeS(low), "low s must pass through unchanged")

	var half [32]byte
	secp256k1HalfN.FillBytes(half[:])
	assert.Equal(t, half, normalizeS(half), "s == N/2 is still canonical")

	// s = N - 42 is high; its canonical form is 42.
	var high [32]byte
	new(big.Int).Sub(n, big.NewInt(42)).FillBytes(high[:])
	assert.Equal(t, low, normalizeS(high))
}
