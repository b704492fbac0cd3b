package token

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vaultshare/fileshare-api/internal/crypto"
)

var (
	// ErrCooldownActive is returned when a pending token was issued too
	// recently to be superseded. Prevents email-bombing a recipient.
	ErrCooldownActive = errors.New("a token was issued recently, please wait before requesting another")

	// ErrNoSuchToken is returned on redeem when no pending token exists.
	ErrNoSuchToken = errors.New("no pending token")

	// ErrTokenExpired is returned when the pending token is past its TTL.
	ErrTokenExpired = errors.New("token has expired")

	// ErrInvalidToken is returned when the candidate does not match the
	// stored hash. The token is left in place.
	ErrInvalidToken = errors.New("invalid token")
)

// Service drives the per-(user, type) token state machine:
// NONE -> PENDING -> {CONSUMED | EXPIRED | SUPERSEDED}.
type Service struct {
	repo     Repository
	ttl      time.Duration
	cooldown time.Duration
	now      func() time.Time
}

func NewService(repo Repository, ttl, cooldown time.Duration) *Service {
	return &Service{
		repo:     repo,
		ttl:      ttl,
		cooldown: cooldown,
		now:      time.Now,
	}
}

// Issue creates a new pending token for (user, type) and returns its
// cleartext value. The cleartext is exposed exactly once, here, for the
// caller to embed in an outbound link; only the argon2id hash is persisted.
//
// An existing pending token still inside its cooldown window blocks the
// request with ErrCooldownActive. Outside the window the old token is
// deleted (superseded) before the new one is stored.
func (s *Service) Issue(ctx context.Context, userID uuid.UUID, typ Type) (string, error) {
	now := s.now()

	existing, err := s.repo.GetByUserAndType(ctx, userID, typ)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return "", fmt.Errorf("failed to look up existing token: %w", err)
	}

	if existing != nil {
		if now.Before(existing.CreatedAt.Add(s.cooldown)) {
			return "", ErrCooldownActive
		}
		if err := s.repo.DeleteByID(ctx, existing.ID); err != nil {
			return "", fmt.Errorf("failed to supersede token: %w", err)
		}
	}

	cleartext, err := generateOpaqueToken()
	if err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}

	hashed, err := crypto.HashSecret(cleartext)
	if err != nil {
		return "", fmt.Errorf("failed to hash token: %w", err)
	}

	t := &Token{
		Type:        typ,
		HashedToken: hashed,
		UserID:      userID,
		CreatedAt:   now,
		ExpiresAt:   now.Add(s.ttl),
	}

	if err := s.repo.Insert(ctx, t); err != nil {
		return "", err
	}

	return cleartext, nil
}

// Redeem verifies candidate against the pending token for (user, type),
// applies the side effect and consumes the token, in that order.
//
// Verification and consumption are two phases: if apply fails, the token is
// left pending so the caller can retry. Expired and mismatched candidates
// never consume the token either.
func (s *Service) Redeem(ctx context.Context, userID uuid.UUID, typ Type, candidate string, apply func(context.Context) error) error {
	t, err := s.repo.GetByUserAndType(ctx, userID, typ)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNoSuchToken
		}
		return fmt.Errorf("failed to look up token: %w", err)
	}

	if t.Expired(s.now()) {
		return ErrTokenExpired
	}

	ok, err := crypto.VerifySecret(t.HashedToken, candidate)
	if err != nil {
		return fmt.Errorf("failed to verify token: %w", err)
	}
	if !ok {
		return ErrInvalidToken
	}

	if err := apply(ctx); err != nil {
		return err
	}

	if err := s.repo.DeleteByID(ctx, t.ID); err != nil {
		return fmt.Errorf("failed to consume token: %w", err)
	}

	return nil
}

// generateOpaqueToken creates a cryptographically secure random token value
func generateOpaqueToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}
