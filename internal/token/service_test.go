package token

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRepo keeps tokens in memory, keyed by (user, type).
type fakeRepo struct {
	tokens map[string]*Token
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{tokens: make(map[string]*Token)}
}

func repoKey(userID uuid.UUID, typ Type) string {
	return userID.String() + "/" + string(typ)
}

func (r *fakeRepo) GetByUserAndType(_ context.Context, userID uuid.UUID, typ Type) (*Token, error) {
	t, ok := r.tokens[repoKey(userID, typ)]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (r *fakeRepo) Insert(_ context.Context, t *Token) error {
	t.ID = uuid.New()
	cp := *t
	r.tokens[repoKey(t.UserID, t.Type)] = &cp
	return nil
}

func (r *fakeRepo) DeleteByID(_ context.Context, id uuid.UUID) error {
	for k, t := range r.tokens {
		if t.ID == id {
			delete(r.tokens, k)
		}
	}
	return nil
}

func newTestService(repo Repository) *Service {
	return NewService(repo, 30*time.Minute, 5*time.Minute)
}

func TestIssueAndRedeem(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)
	userID := uuid.New()
	ctx := context.Background()

	cleartext, err := svc.Issue(ctx, userID, EmailVerification)
	require.NoError(t, err)
	require.NotEmpty(t, cleartext)

	// Stored value is a hash, never the cleartext
	stored := repo.tokens[repoKey(userID, EmailVerification)]
	require.NotNil(t, stored)
	assert.NotEqual(t, cleartext, stored.HashedToken)

	applied := false
	err = svc.Redeem(ctx, userID, EmailVerification, cleartext, func(context.Context) error {
		applied = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, applied)
}

func TestRedeemIsSingleUse(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)
	userID := uuid.New()
	ctx := context.Background()

	cleartext, err := svc.Issue(ctx, userID, EmailVerification)
	require.NoError(t, err)

	noop := func(context.Context) error { return nil }

	require.NoError(t, svc.Redeem(ctx, userID, EmailVerification, cleartext, noop))

	// Second redeem with the same cleartext fails: the token is consumed
	err = svc.Redeem(ctx, userID, EmailVerification, cleartext, noop)
	assert.ErrorIs(t, err, ErrNoSuchToken)
}

func TestIssueCooldown(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)
	userID := uuid.New()
	ctx := context.Background()

	_, err := svc.Issue(ctx, userID, EmailVerification)
	require.NoError(t, err)

	_, err = svc.Issue(ctx, userID, EmailVerification)
	assert.ErrorIs(t, err, ErrCooldownActive)
}

func TestIssueSupersedesAfterCooldown(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)
	userID := uuid.New()
	ctx := context.Background()

	first, err := svc.Issue(ctx, userID, EmailVerification)
	require.NoError(t, err)

	// Move the clock past the cooldown window
	svc.now = func() time.Time { return time.Now().Add(6 * time.Minute) }

	second, err := svc.Issue(ctx, userID, EmailVerification)
	require.NoError(t, err)
	require.NotEqual(t, first, second)

	// The superseded token no longer redeems
	svc.now = time.Now
	err = svc.Redeem(ctx, userID, EmailVerification, first, func(context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrInvalidToken)

	err = svc.Redeem(ctx, userID, EmailVerification, second, func(context.Context) error { return nil })
	assert.NoError(t, err)
}

func TestRedeemExpiredToken(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)
	userID := uuid.New()
	ctx := context.Background()

	cleartext, err := svc.Issue(ctx, userID, ForgotPassword)
	require.NoError(t, err)

	svc.now = func() time.Time { return time.Now().Add(31 * time.Minute) }

	// Expired always fails, even with the correct value, and is not consumed
	err = svc.Redeem(ctx, userID, ForgotPassword, cleartext, func(context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrTokenExpired)
	assert.Len(t, repo.tokens, 1)
}

func TestRedeemWrongCandidate(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)
	userID := uuid.New()
	ctx := context.Background()

	_, err := svc.Issue(ctx, userID, EmailVerification)
	require.NoError(t, err)

	applied := false
	err = svc.Redeem(ctx, userID, EmailVerification, "not-the-token", func(context.Context) error {
		applied = true
		return nil
	})
	assert.ErrorIs(t, err, ErrInvalidToken)
	assert.False(t, applied)

	// Token survives a mismatch
	assert.Len(t, repo.tokens, 1)
}

func TestRedeemKeepsTokenWhenApplyFails(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)
	userID := uuid.New()
	ctx := context.Background()

	cleartext, err := svc.Issue(ctx, userID, ForgotPassword)
	require.NoError(t, err)

	sideEffectErr := errors.New("side effect failed")
	err = svc.Redeem(ctx, userID, ForgotPassword, cleartext, func(context.Context) error {
		return sideEffectErr
	})
	require.ErrorIs(t, err, sideEffectErr)

	// The token remains pending so the caller can retry
	err = svc.Redeem(ctx, userID, ForgotPassword, cleartext, func(context.Context) error { return nil })
	assert.NoError(t, err)
}

func TestRedeemNoToken(t *testing.T) {
	svc := newTestService(newFakeRepo())

	err := svc.Redeem(context.Background(), uuid.New(), EmailVerification, "anything", func(context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrNoSuchToken)
}

func TestTokenTypesAreIndependent(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)
	userID := uuid.New()
	ctx := context.Background()

	_, err := svc.Issue(ctx, userID, EmailVerification)
	require.NoError(t, err)

	// A pending verification token does not block a password-reset token
	_, err = svc.Issue(ctx, userID, ForgotPassword)
	assert.NoError(t, err)
}
