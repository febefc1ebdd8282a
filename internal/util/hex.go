package util

import (
	"encoding/hex"
	"strings"

	"github.com/pkg/errors"
)

// DecodeHex decodes a hex string that may carry a 0x prefix.
func DecodeHex(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, errors.Wrap(err, "failed to decode hex string")
	}
	return b, nil
}

// DecodeHexFixed decodes a hex string and enforces an exact byte length.
func DecodeHexFixed(s string, length int) ([]byte, error) {
	b, err := DecodeHex(s)
	if err != nil {
		return nil, err
	}
	if len(b) != length {
		return nil, errors.Errorf("expected %d bytes, got %d", length, len(b))
	}
	return b, nil
}
