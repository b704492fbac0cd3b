package auth

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey(b byte) []byte {
	key := make([]byte, 32)
	for i := range key {
		key[i] = b
	}
	return key
}

func TestPasetoCodecRequires32ByteKey(t *testing.T) {
	_, err := NewPasetoCodec(make([]byte, 16), time.Hour)
	assert.Error(t, err)

	_, err = NewPasetoCodec(testKey(1), time.Hour)
	assert.NoError(t, err)
}

func TestIssueAndVerifyToken(t *testing.T) {
	codec, err := NewPasetoCodec(testKey(1), time.Hour)
	require.NoError(t, err)

	userID := uuid.New()
	tokenStr, err := codec.IssueToken(userID)
	require.NoError(t, err)
	require.NotEmpty(t, tokenStr)

	claims, err := codec.VerifyToken(tokenStr)
	require.NoError(t, err)
	assert.Equal(t, userID, claims.UserID)
	assert.WithinDuration(t, time.Now(), claims.IssuedAt, time.Minute)
	assert.WithinDuration(t, time.Now().Add(time.Hour), claims.ExpiresAt, time.Minute)
}

func TestVerifyTokenWrongKey(t *testing.T) {
	issuer, err := NewPasetoCodec(testKey(1), time.Hour)
	require.NoError(t, err)
	verifier, err := NewPasetoCodec(testKey(2), time.Hour)
	require.NoError(t, err)

	tokenStr, err := issuer.IssueToken(uuid.New())
	require.NoError(t, err)

	_, err = verifier.VerifyToken(tokenStr)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyTokenGarbage(t *testing.T) {
	codec, err := NewPasetoCodec(testKey(1), time.Hour)
	require.NoError(t, err)

	_, err = codec.VerifyToken("v4.local.not-a-real-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyTokenTampered(t *testing.T) {
	codec, err := NewPasetoCodec(testKey(1), time.Hour)
	require.NoError(t, err)

	tokenStr, err := codec.IssueToken(uuid.New())
	require.NoError(t, err)

	tampered := []byte(tokenStr)
	tampered[len(tampered)/2] ^= 0x01

	_, err = codec.VerifyToken(string(tampered))
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyTokenExpired(t *testing.T) {
	codec, err := NewPasetoCodec(testKey(1), -time.Minute)
	require.NoError(t, err)

	tokenStr, err := codec.IssueToken(uuid.New())
	require.NoError(t, err)

	_, err = codec.VerifyToken(tokenStr)
	assert.ErrorIs(t, err, ErrExpiredToken)
}
