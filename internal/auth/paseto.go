package auth

import (
	"errors"
	"fmt"
	"time"

	"aidanwoods.dev/go-paseto"
	"github.com/google/uuid"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
)

// TokenClaims represents the claims carried by a bearer token
type TokenClaims struct {
	UserID    uuid.UUID `json:"user_id"`
	IssuedAt  time.Time `json:"iat"`
	ExpiresAt time.Time `json:"exp"`
}

// TokenCodec issues and verifies stateless bearer tokens. This is distinct
// from the database-backed single-use tokens: a bearer token carries no
// server-side record and cannot be revoked before its expiry.
type TokenCodec interface {
	IssueToken(userID uuid.UUID) (string, error)
	VerifyToken(tokenStr string) (*TokenClaims, error)
}

// PasetoCodec implements TokenCodec with PASETO v4.local
// (symmetric encryption with XChaCha20-Poly1305).
type PasetoCodec struct {
	symmetricKey paseto.V4SymmetricKey
	duration     time.Duration
}

func NewPasetoCodec(symmetricKey []byte, duration time.Duration) (*PasetoCodec, error) {
	if len(symmetricKey) != 32 {
		return nil, fmt.Errorf("symmetric key must be exactly 32 bytes, got %d", len(symmetricKey))
	}

	key, err := paseto.V4SymmetricKeyFromBytes(symmetricKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create symmetric key: %w", err)
	}

	return &PasetoCodec{
		symmetricKey: key,
		duration:     duration,
	}, nil
}

// IssueToken generates a new bearer token for the given user
func (c *PasetoCodec) IssueToken(userID uuid.UUID) (string, error) {
	now := time.Now()

	token := paseto.NewToken()
	token.SetIssuedAt(now)
	token.SetExpiration(now.Add(c.duration))
	token.SetString("user_id", userID.String())

	return token.V4Encrypt(c.symmetricKey, nil), nil
}

// VerifyToken validates a bearer token and returns its claims
func (c *PasetoCodec) VerifyToken(tokenStr string) (*TokenClaims, error) {
	parser := paseto.NewParser()

	token, err := parser.ParseV4Local(c.symmetricKey, tokenStr, nil)
	if err != nil {
		// The parser checks expiration by default; distinguish expired from invalid
		if errors.Is(err, &paseto.RuleError{}) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	userIDStr, err := token.GetString("user_id")
	if err != nil {
		return nil, ErrInvalidToken
	}

	userID, err := uuid.Parse(userIDStr)
	if err != nil {
		return nil, ErrInvalidToken
	}

	issuedAt, err := token.GetIssuedAt()
	if err != nil {
		return nil, ErrInvalidToken
	}

	expiresAt, err := token.GetExpiration()
	if err != nil {
		return nil, ErrInvalidToken
	}

	return &TokenClaims{
		UserID:    userID,
		IssuedAt:  issuedAt,
		ExpiresAt: expiresAt,
	}, nil
}
