package kms

import (
	"math/big"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
)

// secp256k1HalfN is N/2, the low-s boundary.
var secp256k1HalfN = new(big.Int).Rsh(crypto.S256().Params().N, 1)

// parseDERSignature decodes an HSM signature of the form
// 30 len 02 rlen r 02 slen s into fixed 32-byte big-endian r and s.
// DER pads each integer with a leading zero byte when its high bit is set;
// the padding is stripped before fixing the width.
func parseDERSignature(der []byte) (r [32]byte, s [32]byte, err error) {
	if len(der) < 8 {
		return r, s, errors.Errorf("DER signature too short: %d bytes", len(der))
	}
	if der[0] != 0x30 {
		return r, s, errors.Errorf("expected DER sequence tag 0x30, got 0x%02x", der[0])
	}

	// Short-form length only; secp256k1 signatures never exceed 72 bytes.
	seqLen := int(der[1])
	rest := der[2:]
	if seqLen != len(rest) {
		return r, s, errors.Errorf("DER sequence length %d does not match remaining %d bytes", seqLen, len(rest))
	}

	rBytes, rest, err := readDERInteger(rest)
	if err != nil {
		return r, s, errors.Wrap(err, "invalid r")
	}

	sBytes, rest, err := readDERInteger(rest)
	if err != nil {
		return r, s, errors.Wrap(err, "invalid s")
	}
	if len(rest) != 0 {
		return r, s, errors.Errorf("%d trailing bytes after s", len(rest))
	}

	copy(r[32-len(rBytes):], rBytes)
	copy(s[32-len(sBytes):], sBytes)
	return r, s, nil
}

// readDERInteger consumes one 02 len value element and returns the unpadded
// big-endian integer bytes plus the remaining input.
func readDERInteger(in []byte) ([]byte, []byte, error) {
	if len(in) < 2 {
		return nil, nil, errors.New("truncated integer element")
	}
	if in[0] != 0x02 {
		return nil, nil, errors.Errorf("expected DER integer tag 0x02, got 0x%02x", in[0])
	}

	length := int(in[1])
	if length == 0 || len(in) < 2+length {
		return nil, nil, errors.Errorf("integer length %d exceeds remaining input", length)
	}

	value := in[2 : 2+length]

	// Strip the sign-padding byte, if present.
	if value[0] == 0x00 && len(value) > 1 {
		value = value[1:]
	}
	if len(value) > 32 {
		return nil, nil, errors.Errorf("integer is %d bytes, exceeds curve width", len(value))
	}

	return value, in[2+length:], nil
}

// normalizeS canonicalizes s to its low form: if s > N/2 it is replaced with
// N - s. Both ends of the protocol must agree on this convention or verifiers
// reject technically valid signatures.
func normalizeS(s [32]byte) [32]byte {
	sInt := new(big.Int).SetBytes(s[:])
	if sInt.Cmp(secp256k1HalfN) <= 0 {
		return s
	}

	sInt.Sub(crypto.S256().Params().N, sInt)

	var normalized [32]byte
	sInt.FillBytes(normalized[:])
	return normalized
}
