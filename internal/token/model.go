// Package token implements the database-backed, single-use token lifecycle
// shared by email verification and password reset. Tokens are stored only as
// argon2id hashes; the cleartext value is returned exactly once at issuance.
package token

import (
	"time"

	"github.com/google/uuid"
)

// Type scopes a token to the action it authorizes.
type Type string

const (
	EmailVerification Type = "EmailVerification"
	ForgotPassword    Type = "ForgotPassword"
)

// Token is one pending single-use token. At most one exists per
// (user_id, type): issuing a new one supersedes the old.
type Token struct {
	ID          uuid.UUID
	Type        Type
	HashedToken string
	UserID      uuid.UUID
	CreatedAt   time.Time
	ExpiresAt   time.Time
}

// Expired reports whether the token is past its expiry at the given instant.
// An expired token is logically dead even before the collector or a redeem
// attempt deletes it.
func (t *Token) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}
