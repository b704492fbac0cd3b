package crypto

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	tests := []struct {
		name      string
		plaintext []byte
		password  string
	}{
		{name: "small payload", plaintext: []byte("0123456789"), password: "secret"},
		{name: "empty payload", plaintext: []byte{}, password: "pw"},
		{name: "binary payload", plaintext: []byte{0x00, 0xff, 0x10, 0x80, 0x7f}, password: "p@ss w0rd"},
		{name: "unicode password", plaintext: []byte("hello"), password: "pässwörd"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			blob, err := Encrypt(tt.plaintext, tt.password)
			require.NoError(t, err)
			require.GreaterOrEqual(t, len(blob), minBlobLen)

			plaintext, err := Decrypt(blob, tt.password)
			require.NoError(t, err)
			assert.True(t, bytes.Equal(tt.plaintext, plaintext))
		})
	}
}

func TestDecryptWrongPassword(t *testing.T) {
	blob, err := Encrypt([]byte("classified"), "right-password")
	require.NoError(t, err)

	_, err = Decrypt(blob, "wrong-password")
	assert.ErrorIs(t, err, ErrDecryptFailed)
}

func TestDecryptTamperedBlob(t *testing.T) {
	plaintext := []byte("integrity matters")
	blob, err := Encrypt(plaintext, "pw")
	require.NoError(t, err)

	// Flipping any byte must fail authentication, never return altered
	// plaintext. Flipping a salt or nonce byte changes the derived key or
	// nonce, so the tag check fails there too.
	for i := range blob {
		tampered := make([]byte, len(blob))
		copy(tampered, blob)
		tampered[i] ^= 0x01

		out, err := Decrypt(tampered, "pw")
		assert.Error(t, err, "byte %d", i)
		assert.Nil(t, out, "byte %d", i)
	}
}

func TestDecryptTruncatedInput(t *testing.T) {
	tests := []struct {
		name string
		blob []byte
	}{
		{name: "empty", blob: nil},
		{name: "salt only", blob: make([]byte, 16)},
		{name: "one short of header", blob: make([]byte, minBlobLen-1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decrypt(tt.blob, "pw")
			assert.ErrorIs(t, err, ErrTruncatedInput)
		})
	}
}

func TestEncryptFreshSaltAndNonce(t *testing.T) {
	a, err := Encrypt([]byte("same input"), "pw")
	require.NoError(t, err)
	b, err := Encrypt([]byte("same input"), "pw")
	require.NoError(t, err)

	assert.False(t, bytes.Equal(a[:16], b[:16]), "salt reused")
	assert.False(t, bytes.Equal(a[16:28], b[16:28]), "nonce reused")
	assert.False(t, bytes.Equal(a, b))
}
