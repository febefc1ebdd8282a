package keybox_test

import (
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github/finchase/go-signing/internal/signing/keybox"
)

const testMasterSecret = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func TestSealOpenRoundTrip(t *testing.T) {
	box, err := keybox.New(testMasterSecret)
	require.NoError(t, err)

	plaintext := []byte("a 32 byte private key scalar ...")

	record, err := box.Seal(plaintext)
	require.NoError(t, err)

	parts := strings.Split(record, ":")
	require.Len(t, parts, 3)

	opened, err := box.Open(record)
	require.NoError(t, err)
	assert.Equal(t, plaintext, opened)
}

func TestSealProducesFreshNonces(t *testing.T) {
	box, err := keybox.New("0x" + testMasterSecret)
	require.NoError(t, err)

	first, err := box.Seal([]byte("same plaintext"))
	require.NoError(t, err)
	second, err := box.Seal([]byte("same plaintext"))
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}

func TestOpenRejectsTamperedRecord(t *testing.T) {
	box, err := keybox.New(testMasterSecret)
	require.NoError(t, err)

	record, err := box.Seal([]byte("secret"))
	require.NoError(t, err)

	// Flip a character inside the ciphertext field.
	parts := strings.Split(record, ":")
	ct := []byte(parts[2])
	if ct[0] == 'A' {
		ct[0] = 'B'
	} else {
		ct[0] = 'A'
	}
	tampered := parts[0] + ":" + parts[1] + ":" + string(ct)

	_, err = box.Open(tampered)
	require.Error(t, err)
}

func TestOpenRejectsMalformedRecords(t *testing.T) {
	box, err := keybox.New(testMasterSecret)
	require.NoError(t, err)

	for _, record := range []string{
		"",
		"only-one-field",
		"a:b",
		"a:b:c:d",
		"!!!:AAAA:AAAA",
	} {
		_, err := box.Open(record)
		require.Error(t, err, "record %q", record)
		assert.True(t, errors.Is(err, keybox.ErrMalformedRecord), "record %q", record)
	}
}

func TestNewRejectsBadMasterSecrets(t *testing.T) {
	for _, secret := range []string{
		"",
		"zz",
		"deadbeef",                        // too short
		testMasterSecret + "00",           // too long
		strings.ToUpper("not hex at all"), // not hex
	} {
		_, err := keybox.New(secret)
		require.Error(t, err, "secret %q", secret)
		assert.True(t, errors.Is(err, keybox.ErrConfiguration), "secret %q", secret)
	}
}
