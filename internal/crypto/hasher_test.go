package crypto

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashSecretFormat(t *testing.T) {
	digest, err := HashSecret("hunter2")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(digest, "$argon2id$v=19$"))
	assert.Len(t, strings.Split(digest, "$"), 6)
}

func TestHashSecretSaltIsRandom(t *testing.T) {
	a, err := HashSecret("same secret")
	require.NoError(t, err)
	b, err := HashSecret("same secret")
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestVerifySecret(t *testing.T) {
	digest, err := HashSecret("correct horse")
	require.NoError(t, err)

	ok, err := VerifySecret(digest, "correct horse")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = VerifySecret(digest, "battery staple")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVerifySecretMalformedDigest(t *testing.T) {
	tests := []struct {
		name   string
		digest string
	}{
		{name: "empty", digest: ""},
		{name: "not a digest", digest: "plaintext"},
		{name: "wrong algorithm", digest: "$bcrypt$v=19$m=65536,t=3,p=4$c2FsdA$aGFzaA"},
		{name: "missing sections", digest: "$argon2id$v=19$m=65536,t=3,p=4$c2FsdA"},
		{name: "bad parameters", digest: "$argon2id$v=19$nonsense$c2FsdA$aGFzaA"},
		{name: "bad salt encoding", digest: "$argon2id$v=19$m=65536,t=3,p=4$!!!$aGFzaA"},
		{name: "bad hash encoding", digest: "$argon2id$v=19$m=65536,t=3,p=4$c2FsdA$!!!"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := VerifySecret(tt.digest, "anything")
			assert.ErrorIs(t, err, ErrMalformedDigest)
			assert.False(t, ok)
		})
	}
}
