package auth

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaultshare/fileshare-api/internal/logging"
	"github.com/vaultshare/fileshare-api/internal/token"
	"github.com/vaultshare/fileshare-api/internal/user"
)

// fakeUserRepo keeps users in memory, keyed by email
type fakeUserRepo struct {
	byEmail map[string]*user.User
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{byEmail: make(map[string]*user.User)}
}

func (r *fakeUserRepo) Create(_ context.Context, name, email, hashedPassword string) (*user.User, error) {
	if _, exists := r.byEmail[email]; exists {
		return nil, user.ErrDuplicateEmail
	}
	u := &user.User{
		ID:             uuid.New(),
		Name:           name,
		Email:          email,
		HashedPassword: hashedPassword,
		CreatedAt:      time.Now(),
	}
	r.byEmail[email] = u
	cp := *u
	return &cp, nil
}

func (r *fakeUserRepo) GetByEmail(_ context.Context, email string) (*user.User, error) {
	u, ok := r.byEmail[email]
	if !ok {
		return nil, user.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *fakeUserRepo) GetByID(_ context.Context, id uuid.UUID) (*user.User, error) {
	for _, u := range r.byEmail {
		if u.ID == id {
			cp := *u
			return &cp, nil
		}
	}
	return nil, user.ErrNotFound
}

func (r *fakeUserRepo) MarkVerified(_ context.Context, userID uuid.UUID) error {
	for _, u := range r.byEmail {
		if u.ID == userID {
			u.IsVerified = true
			return nil
		}
	}
	return user.ErrNotFound
}

func (r *fakeUserRepo) UpdatePassword(_ context.Context, userID uuid.UUID, hashedPassword string) error {
	for _, u := range r.byEmail {
		if u.ID == userID {
			u.HashedPassword = hashedPassword
			return nil
		}
	}
	return user.ErrNotFound
}

// fakeTokenRepo keeps single-use tokens in memory
type fakeTokenRepo struct {
	tokens map[string]*token.Token
}

func newFakeTokenRepo() *fakeTokenRepo {
	return &fakeTokenRepo{tokens: make(map[string]*token.Token)}
}

func tokenKey(userID uuid.UUID, typ token.Type) string {
	return userID.String() + "/" + string(typ)
}

func (r *fakeTokenRepo) GetByUserAndType(_ context.Context, userID uuid.UUID, typ token.Type) (*token.Token, error) {
	t, ok := r.tokens[tokenKey(userID, typ)]
	if !ok {
		return nil, token.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (r *fakeTokenRepo) Insert(_ context.Context, t *token.Token) error {
	t.ID = uuid.New()
	cp := *t
	r.tokens[tokenKey(t.UserID, t.Type)] = &cp
	return nil
}

func (r *fakeTokenRepo) DeleteByID(_ context.Context, id uuid.UUID) error {
	for k, t := range r.tokens {
		if t.ID == id {
			delete(r.tokens, k)
		}
	}
	return nil
}

// sentEmail captures one outbound message
type sentEmail struct {
	kind   string
	to     string
	userID uuid.UUID
	token  string
}

// fakeEmail pushes sends onto a channel so tests can wait for the
// fire-and-forget goroutines
type fakeEmail struct {
	sent chan sentEmail
}

func newFakeEmail() *fakeEmail {
	return &fakeEmail{sent: make(chan sentEmail, 10)}
}

func (f *fakeEmail) SendVerificationEmail(_ context.Context, toEmail string, userID uuid.UUID, tokenValue string) error {
	f.sent <- sentEmail{kind: "verification", to: toEmail, userID: userID, token: tokenValue}
	return nil
}

func (f *fakeEmail) SendPasswordResetEmail(_ context.Context, toEmail string, userID uuid.UUID, tokenValue string) error {
	f.sent <- sentEmail{kind: "reset", to: toEmail, userID: userID, token: tokenValue}
	return nil
}

func (f *fakeEmail) waitForEmail(t *testing.T) sentEmail {
	t.Helper()
	select {
	case e := <-f.sent:
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("no email sent")
		return sentEmail{}
	}
}

type testEnv struct {
	svc    *Service
	users  *fakeUserRepo
	tokens *token.Service
	codec  TokenCodec
	email  *fakeEmail
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	users := newFakeUserRepo()
	tokens := token.NewService(newFakeTokenRepo(), 30*time.Minute, 5*time.Minute)
	emails := newFakeEmail()

	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	codec, err := NewPasetoCodec(key, 24*time.Hour)
	require.NoError(t, err)

	return &testEnv{
		svc:    NewService(users, tokens, codec, emails, logging.NewLogger(true)),
		users:  users,
		tokens: tokens,
		codec:  codec,
		email:  emails,
	}
}

func TestRegisterCreatesUnverifiedUser(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	u, err := env.svc.Register(ctx, "Alice", "alice@example.com", "pw1", "pw1")
	require.NoError(t, err)
	assert.False(t, u.IsVerified)
	assert.NotEqual(t, "pw1", u.HashedPassword)

	sent := env.email.waitForEmail(t)
	assert.Equal(t, "verification", sent.kind)
	assert.Equal(t, "alice@example.com", sent.to)
	assert.Equal(t, u.ID, sent.userID)
	assert.NotEmpty(t, sent.token)
}

func TestRegisterValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	tests := []struct {
		name      string
		userName  string
		email     string
		password  string
		confirmed string
		wantErr   error
	}{
		{"empty name", "", "a@example.com", "pw", "pw", ErrNameRequired},
		{"empty email", "Alice", "", "pw", "pw", ErrEmailRequired},
		{"bad email", "Alice", "not-an-email", "pw", "pw", ErrInvalidEmailFormat},
		{"empty password", "Alice", "a@example.com", "", "", ErrPasswordRequired},
		{"mismatch", "Alice", "a@example.com", "pw", "other", ErrPasswordMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.svc.Register(ctx, tt.userName, tt.email, tt.password, tt.confirmed)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.svc.Register(ctx, "Alice", "alice@example.com", "pw1", "pw1")
	require.NoError(t, err)

	_, err = env.svc.Register(ctx, "Other Alice", "alice@example.com", "pw2", "pw2")
	assert.ErrorIs(t, err, user.ErrDuplicateEmail)
}

func TestLoginRequiresVerifiedEmail(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	u, err := env.svc.Register(ctx, "Alice", "alice@example.com", "pw1", "pw1")
	require.NoError(t, err)

	// Correct credentials, but the email is not verified yet
	_, err = env.svc.Login(ctx, "alice@example.com", "pw1")
	assert.ErrorIs(t, err, ErrEmailNotVerified)

	sent := env.email.waitForEmail(t)
	require.NoError(t, env.svc.VerifyEmail(ctx, u.ID, sent.token))

	bearer, err := env.svc.Login(ctx, "alice@example.com", "pw1")
	require.NoError(t, err)

	claims, err := env.codec.VerifyToken(bearer)
	require.NoError(t, err)
	assert.Equal(t, u.ID, claims.UserID)
}

func TestLoginInvalidCredentials(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.svc.Register(ctx, "Alice", "alice@example.com", "pw1", "pw1")
	require.NoError(t, err)

	_, err = env.svc.Login(ctx, "alice@example.com", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	// Unknown email reads the same as a wrong password
	_, err = env.svc.Login(ctx, "nobody@example.com", "pw1")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestVerifyEmailIsSingleUse(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	u, err := env.svc.Register(ctx, "Alice", "alice@example.com", "pw1", "pw1")
	require.NoError(t, err)
	sent := env.email.waitForEmail(t)

	require.NoError(t, env.svc.VerifyEmail(ctx, u.ID, sent.token))

	err = env.svc.VerifyEmail(ctx, u.ID, sent.token)
	assert.ErrorIs(t, err, token.ErrNoSuchToken)
}

func TestSendVerificationEmail(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	err := env.svc.SendVerificationEmail(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, user.ErrNotFound)

	u, err := env.svc.Register(ctx, "Alice", "alice@example.com", "pw1", "pw1")
	require.NoError(t, err)
	env.email.waitForEmail(t)

	// The registration token is still inside its cooldown window
	err = env.svc.SendVerificationEmail(ctx, "alice@example.com")
	assert.ErrorIs(t, err, token.ErrCooldownActive)

	require.NoError(t, env.users.MarkVerified(ctx, u.ID))

	err = env.svc.SendVerificationEmail(ctx, "alice@example.com")
	assert.ErrorIs(t, err, ErrAlreadyVerified)
}

func TestForgotAndResetPassword(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	u, err := env.svc.Register(ctx, "Alice", "alice@example.com", "oldpw", "oldpw")
	require.NoError(t, err)
	verification := env.email.waitForEmail(t)
	require.NoError(t, env.svc.VerifyEmail(ctx, u.ID, verification.token))

	require.NoError(t, env.svc.ForgotPassword(ctx, "alice@example.com"))
	reset := env.email.waitForEmail(t)
	assert.Equal(t, "reset", reset.kind)

	err = env.svc.ResetPassword(ctx, u.ID, reset.token, "newpw", "different")
	assert.ErrorIs(t, err, ErrPasswordMismatch)

	require.NoError(t, env.svc.ResetPassword(ctx, u.ID, reset.token, "newpw", "newpw"))

	// Old password no longer works, new one does
	_, err = env.svc.Login(ctx, "alice@example.com", "oldpw")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = env.svc.Login(ctx, "alice@example.com", "newpw")
	assert.NoError(t, err)
}

func TestForgotPasswordUnknownEmail(t *testing.T) {
	env := newTestEnv(t)

	err := env.svc.ForgotPassword(context.Background(), "nobody@example.com")
	assert.ErrorIs(t, err, user.ErrNotFound)
}
