package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
)

const (
	cipherSaltLen = 16
	nonceLen      = 12

	// minimum blob length: salt + nonce; anything shorter is rejected
	// before any crypto runs
	minBlobLen = cipherSaltLen + nonceLen
)

var (
	// ErrTruncatedInput is returned when a blob is too short to contain
	// the salt and nonce header.
	ErrTruncatedInput = errors.New("encrypted blob truncated")

	// ErrDecryptFailed is returned when GCM authentication fails: wrong
	// password or tampered ciphertext.
	ErrDecryptFailed = errors.New("decryption failed")
)

// deriveKey stretches a password into a 32-byte AES-256 key using argon2id
// with the given salt. The same parameters as the secret hasher are used so
// the two stay in lockstep.
func deriveKey(password string, salt []byte) []byte {
	return argon2.IDKey([]byte(password), salt, argon2Time, argon2Memory, argon2Threads, argon2KeyLen)
}

// Encrypt seals plaintext with AES-256-GCM under a key derived from password.
// Output layout is salt(16) || nonce(12) || ciphertext+tag. Salt and nonce
// are freshly drawn from crypto/rand on every call and never reused.
func Encrypt(plaintext []byte, password string) ([]byte, error) {
	salt := make([]byte, cipherSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}

	nonce := make([]byte, nonceLen)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	aead, err := newGCM(password, salt)
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, minBlobLen+len(plaintext)+aead.Overhead())
	out = append(out, salt...)
	out = append(out, nonce...)
	out = aead.Seal(out, nonce, plaintext, nil)

	return out, nil
}

// Decrypt reverses Encrypt. A wrong password or a flipped ciphertext byte
// fails authentication and returns ErrDecryptFailed; garbage is never
// returned as plaintext.
func Decrypt(blob []byte, password string) ([]byte, error) {
	if len(blob) < minBlobLen {
		return nil, ErrTruncatedInput
	}

	salt := blob[:cipherSaltLen]
	nonce := blob[cipherSaltLen:minBlobLen]
	ciphertext := blob[minBlobLen:]

	aead, err := newGCM(password, salt)
	if err != nil {
		return nil, err
	}

	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrDecryptFailed
	}

	return plaintext, nil
}

func newGCM(password string, salt []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(deriveKey(password, salt))
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return aead, nil
}
