package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"

	"github.com/google/uuid"

	"github.com/vaultshare/fileshare-api/internal/crypto"
	"github.com/vaultshare/fileshare-api/internal/logging"
	"github.com/vaultshare/fileshare-api/internal/token"
	"github.com/vaultshare/fileshare-api/internal/user"
)

var (
	ErrNameRequired       = errors.New("name is required")
	ErrEmailRequired      = errors.New("email is required")
	ErrInvalidEmailFormat = errors.New("invalid email format")
	ErrPasswordRequired   = errors.New("password is required")
	ErrPasswordMismatch   = errors.New("passwords do not match")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailNotVerified   = errors.New("email not verified, please check your inbox")
	ErrAlreadyVerified    = errors.New("email already verified")
)

// UserRepository defines the user persistence operations the service needs
type UserRepository interface {
	Create(ctx context.Context, name, email, hashedPassword string) (*user.User, error)
	GetByEmail(ctx context.Context, email string) (*user.User, error)
	GetByID(ctx context.Context, id uuid.UUID) (*user.User, error)
	MarkVerified(ctx context.Context, userID uuid.UUID) error
	UpdatePassword(ctx context.Context, userID uuid.UUID, hashedPassword string) error
}

// EmailService defines the interface for outbound email
type EmailService interface {
	SendVerificationEmail(ctx context.Context, toEmail string, userID uuid.UUID, tokenValue string) error
	SendPasswordResetEmail(ctx context.Context, toEmail string, userID uuid.UUID, tokenValue string) error
}

// Service handles registration, verification, login and password reset
type Service struct {
	users  UserRepository
	tokens *token.Service
	codec  TokenCodec
	email  EmailService
	logger *logging.Logger
}

func NewService(
	users UserRepository,
	tokens *token.Service,
	codec TokenCodec,
	email EmailService,
	logger *logging.Logger,
) *Service {
	return &Service{
		users:  users,
		tokens: tokens,
		codec:  codec,
		email:  email,
		logger: logger,
	}
}

// Register creates a new unverified user account and sends the verification
// email in the background.
func (s *Service) Register(ctx context.Context, name, email, password, confirmPassword string) (*user.User, error) {
	if name == "" {
		return nil, ErrNameRequired
	}
	if email == "" {
		return nil, ErrEmailRequired
	}
	if len(email) > 254 {
		return nil, ErrInvalidEmailFormat
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, ErrInvalidEmailFormat
	}
	if password == "" {
		return nil, ErrPasswordRequired
	}
	if password != confirmPassword {
		return nil, ErrPasswordMismatch
	}

	hashedPassword, err := crypto.HashSecret(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	newUser, err := s.users.Create(ctx, name, email, hashedPassword)
	if err != nil {
		if errors.Is(err, user.ErrDuplicateEmail) {
			return nil, user.ErrDuplicateEmail
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	// A brand-new user has no pending token, so issuance cannot hit the
	// cooldown. Failures here are logged, not surfaced: the user can
	// request a fresh email later.
	verificationToken, err := s.tokens.Issue(ctx, newUser.ID, token.EmailVerification)
	if err != nil {
		s.logger.Warn("failed to issue verification token", "email", email, "error", err)
		return newUser, nil
	}

	s.sendVerificationEmail(newUser, verificationToken)

	return newUser, nil
}

// SendVerificationEmail issues a fresh verification token for an existing
// unverified user and emails it.
func (s *Service) SendVerificationEmail(ctx context.Context, email string) error {
	existing, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return user.ErrNotFound
		}
		return fmt.Errorf("failed to get user: %w", err)
	}

	if existing.IsVerified {
		return ErrAlreadyVerified
	}

	verificationToken, err := s.tokens.Issue(ctx, existing.ID, token.EmailVerification)
	if err != nil {
		return err
	}

	s.sendVerificationEmail(existing, verificationToken)

	return nil
}

// VerifyEmail redeems the verification token and flips the user to verified.
// The token survives a failed database write so the link can be retried.
func (s *Service) VerifyEmail(ctx context.Context, userID uuid.UUID, candidate string) error {
	return s.tokens.Redeem(ctx, userID, token.EmailVerification, candidate, func(ctx context.Context) error {
		if err := s.users.MarkVerified(ctx, userID); err != nil {
			return fmt.Errorf("failed to mark user verified: %w", err)
		}
		return nil
	})
}

// Login authenticates a user and returns a bearer token
func (s *Service) Login(ctx context.Context, email, password string) (string, error) {
	if email == "" || password == "" {
		return "", ErrInvalidCredentials
	}

	existing, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return "", ErrInvalidCredentials
		}
		return "", fmt.Errorf("failed to get user: %w", err)
	}

	ok, err := crypto.VerifySecret(existing.HashedPassword, password)
	if err != nil {
		return "", fmt.Errorf("failed to verify password: %w", err)
	}
	if !ok {
		return "", ErrInvalidCredentials
	}

	if !existing.IsVerified {
		return "", ErrEmailNotVerified
	}

	bearer, err := s.codec.IssueToken(existing.ID)
	if err != nil {
		return "", fmt.Errorf("failed to issue bearer token: %w", err)
	}

	return bearer, nil
}

// ForgotPassword issues a password-reset token and emails it
func (s *Service) ForgotPassword(ctx context.Context, email string) error {
	existing, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return user.ErrNotFound
		}
		return fmt.Errorf("failed to get user: %w", err)
	}

	resetToken, err := s.tokens.Issue(ctx, existing.ID, token.ForgotPassword)
	if err != nil {
		return err
	}

	go func() {
		emailCtx := context.Background()
		if err := s.email.SendPasswordResetEmail(emailCtx, existing.Email, existing.ID, resetToken); err != nil {
			s.logger.Warn("failed to send password reset email", "email", existing.Email, "error", err)
		}
	}()

	return nil
}

// ResetPassword redeems the reset token and replaces the password hash
func (s *Service) ResetPassword(ctx context.Context, userID uuid.UUID, candidate, newPassword, confirmPassword string) error {
	if newPassword == "" {
		return ErrPasswordRequired
	}
	if newPassword != confirmPassword {
		return ErrPasswordMismatch
	}

	hashedPassword, err := crypto.HashSecret(newPassword)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	return s.tokens.Redeem(ctx, userID, token.ForgotPassword, candidate, func(ctx context.Context) error {
		if err := s.users.UpdatePassword(ctx, userID, hashedPassword); err != nil {
			return fmt.Errorf("failed to update password: %w", err)
		}
		return nil
	})
}

// sendVerificationEmail fires off the email without blocking the request.
// Failures are logged, never surfaced to the caller.
func (s *Service) sendVerificationEmail(u *user.User, tokenValue string) {
	go func() {
		emailCtx := context.Background()
		if err := s.email.SendVerificationEmail(emailCtx, u.Email, u.ID, tokenValue); err != nil {
			s.logger.Warn("failed to send verification email", "email", u.Email, "error", err)
		}
	}()
}
