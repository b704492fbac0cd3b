package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/vaultshare/fileshare-api/internal/httputil"
	"github.com/vaultshare/fileshare-api/internal/logging"
	"github.com/vaultshare/fileshare-api/internal/token"
	"github.com/vaultshare/fileshare-api/internal/user"
)

// RateLimiter defines the ambient per-IP limiting the handlers consult
type RateLimiter interface {
	CheckIPRateLimit(ctx context.Context, ip, purpose string) (bool, error)
	RecordIPRequest(ctx context.Context, ip, purpose string) error
}

// Handler contains HTTP handlers for the /user endpoints
type Handler struct {
	service     *Service
	rateLimiter RateLimiter
	logger      *logging.Logger
}

func NewHandler(service *Service, rateLimiter RateLimiter, logger *logging.Logger) *Handler {
	return &Handler{
		service:     service,
		rateLimiter: rateLimiter,
		logger:      logger,
	}
}

// RegisterRequest represents the registration request body
type RegisterRequest struct {
	Name            string `json:"name"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
}

// LoginRequest represents the login request body
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse carries the bearer token
type LoginResponse struct {
	Token string `json:"token"`
}

// EmailRequest is shared by send-verification-email and forgot-password
type EmailRequest struct {
	Email string `json:"email"`
}

// ResetPasswordRequest represents the password reset confirmation body
type ResetPasswordRequest struct {
	NewPassword        string `json:"new_password"`
	ConfirmNewPassword string `json:"confirm_new_password"`
}

// UserResponse represents a user in API responses
type UserResponse struct {
	ID    uuid.UUID `json:"id"`
	Email string    `json:"email"`
	Name  string    `json:"name"`
}

// RegisterResponse represents the registration response
type RegisterResponse struct {
	User    UserResponse `json:"user"`
	Message string       `json:"message"`
}

// Register handles user registration
// @Summary      Register a new user
// @Description  Create a new user account. A verification email will be sent.
// @Tags         user
// @Accept       json
// @Produce      json
// @Param        request body RegisterRequest true "Registration payload"
// @Success      201 {object} RegisterResponse
// @Failure      400 {object} httputil.ErrorResponse
// @Failure      409 {object} httputil.ErrorResponse "Email already exists"
// @Router       /user/register [post]
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	if h.checkIPRateLimit(w, r, "register") {
		return
	}

	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid registration request body", "error", err.Error())
		httputil.RespondError(w, httputil.KindValidation, "invalid request body", http.StatusBadRequest)
		return
	}

	logger = logger.WithFields(map[string]any{"email": req.Email})

	newUser, err := h.service.Register(r.Context(), req.Name, req.Email, req.Password, req.ConfirmPassword)
	if err != nil {
		if errors.Is(err, user.ErrDuplicateEmail) {
			logger.Warn("registration failed: email already exists")
			httputil.RespondError(w, httputil.KindBadRequest, "email already exists", http.StatusConflict)
			return
		}
		if isValidationError(err) {
			logger.Warn("registration failed: validation error", "error", err.Error())
			httputil.RespondError(w, httputil.KindValidation, err.Error(), http.StatusBadRequest)
			return
		}
		logger.Error("registration failed: internal error", "error", err.Error())
		httputil.RespondError(w, httputil.KindInternal, "failed to register user", http.StatusInternalServerError)
		return
	}

	logger.Info("user registered successfully", "user_id", newUser.ID)

	httputil.RespondJSON(w, RegisterResponse{
		User: UserResponse{
			ID:    newUser.ID,
			Email: newUser.Email,
			Name:  newUser.Name,
		},
		Message: "Registration successful. Please check your email to verify your account.",
	}, http.StatusCreated)
}

// SendVerificationEmail handles requests for a fresh verification email
// @Summary      Send verification email
// @Tags         user
// @Accept       json
// @Produce      json
// @Param        request body EmailRequest true "Email address"
// @Success      200 {object} map[string]string
// @Failure      400 {object} httputil.ErrorResponse "Unknown user, already verified, or cooldown active"
// @Router       /user/send-verification-email [post]
func (h *Handler) SendVerificationEmail(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	var req EmailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid send-verification request body", "error", err.Error())
		httputil.RespondError(w, httputil.KindValidation, "invalid request body", http.StatusBadRequest)
		return
	}

	logger = logger.WithFields(map[string]any{"email": req.Email})

	err := h.service.SendVerificationEmail(r.Context(), req.Email)
	if err != nil {
		switch {
		case errors.Is(err, user.ErrNotFound):
			logger.Warn("send verification failed: unknown user")
			httputil.RespondError(w, httputil.KindBadRequest, "no account with that email", http.StatusBadRequest)
		case errors.Is(err, ErrAlreadyVerified):
			logger.Warn("send verification failed: already verified")
			httputil.RespondError(w, httputil.KindBadRequest, "email already verified", http.StatusBadRequest)
		case errors.Is(err, token.ErrCooldownActive):
			logger.Warn("send verification failed: cooldown active")
			httputil.RespondError(w, httputil.KindBadRequest, "please wait before requesting another email", http.StatusBadRequest)
		default:
			logger.Error("send verification failed: internal error", "error", err.Error())
			httputil.RespondError(w, httputil.KindInternal, "failed to send verification email", http.StatusInternalServerError)
		}
		return
	}

	logger.Info("verification email queued")

	httputil.RespondJSON(w, map[string]string{
		"message": "Verification email sent. Please check your inbox.",
	}, http.StatusOK)
}

// VerifyEmail handles the verification link
// @Summary      Verify email address
// @Tags         user
// @Produce      json
// @Param        token query string true "Verification token"
// @Param        user  query string true "User ID"
// @Success      200 {object} map[string]string
// @Failure      400 {object} httputil.ErrorResponse "Bad query, expired, or wrong token"
// @Router       /user/verify [get]
func (h *Handler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	candidate, userID, ok := tokenQueryParams(w, r)
	if !ok {
		return
	}

	err := h.service.VerifyEmail(r.Context(), userID, candidate)
	if err != nil {
		h.respondTokenError(w, r, err, "email verification")
		return
	}

	logger.Info("email verified successfully", "user_id", userID)

	httputil.RespondJSON(w, map[string]string{
		"message": "Email verified successfully. You can now login.",
	}, http.StatusOK)
}

// Login handles user login
// @Summary      User login
// @Description  Authenticate and receive a bearer token
// @Tags         user
// @Accept       json
// @Produce      json
// @Param        request body LoginRequest true "Login credentials"
// @Success      200 {object} LoginResponse
// @Failure      400 {object} httputil.ErrorResponse "Unknown user, wrong password, or unverified email"
// @Router       /user/login [post]
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	if h.checkIPRateLimit(w, r, "login") {
		return
	}

	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid login request body", "error", err.Error())
		httputil.RespondError(w, httputil.KindValidation, "invalid request body", http.StatusBadRequest)
		return
	}

	logger = logger.WithFields(map[string]any{"email": req.Email})

	bearer, err := h.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			logger.Warn("login failed: invalid credentials")
			httputil.RespondError(w, httputil.KindBadRequest, "invalid email or password", http.StatusBadRequest)
			return
		}
		if errors.Is(err, ErrEmailNotVerified) {
			logger.Warn("login failed: email not verified")
			httputil.RespondError(w, httputil.KindBadRequest, "email not verified, please check your inbox", http.StatusBadRequest)
			return
		}
		logger.Error("login failed: internal error", "error", err.Error())
		httputil.RespondError(w, httputil.KindInternal, "failed to login", http.StatusInternalServerError)
		return
	}

	logger.Info("user logged in successfully")

	httputil.RespondJSON(w, LoginResponse{Token: bearer}, http.StatusOK)
}

// ForgotPassword handles password reset requests
// @Summary      Request password reset
// @Tags         user
// @Accept       json
// @Produce      json
// @Param        request body EmailRequest true "Email address"
// @Success      200 {object} map[string]string
// @Failure      400 {object} httputil.ErrorResponse
// @Router       /user/forgot-password [post]
func (h *Handler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	if h.checkIPRateLimit(w, r, "forgot-password") {
		return
	}

	var req EmailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid forgot password request body", "error", err.Error())
		httputil.RespondError(w, httputil.KindValidation, "invalid request body", http.StatusBadRequest)
		return
	}

	logger = logger.WithFields(map[string]any{"email": req.Email})

	err := h.service.ForgotPassword(r.Context(), req.Email)
	if err != nil {
		switch {
		case errors.Is(err, user.ErrNotFound):
			logger.Warn("forgot password failed: unknown user")
			httputil.RespondError(w, httputil.KindBadRequest, "no account with that email", http.StatusBadRequest)
		case errors.Is(err, token.ErrCooldownActive):
			logger.Warn("forgot password failed: cooldown active")
			httputil.RespondError(w, httputil.KindBadRequest, "please wait before requesting another reset", http.StatusBadRequest)
		default:
			logger.Error("forgot password failed: internal error", "error", err.Error())
			httputil.RespondError(w, httputil.KindInternal, "failed to process reset request", http.StatusInternalServerError)
		}
		return
	}

	logger.Info("password reset email queued")

	httputil.RespondJSON(w, map[string]string{
		"message": "A password reset link has been sent to your email.",
	}, http.StatusOK)
}

// ResetPassword handles the reset link
// @Summary      Reset password
// @Tags         user
// @Accept       json
// @Produce      json
// @Param        token query string true "Reset token"
// @Param        user  query string true "User ID"
// @Param        request body ResetPasswordRequest true "New password"
// @Success      200 {object} map[string]string
// @Failure      400 {object} httputil.ErrorResponse
// @Router       /user/reset-password [put]
func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	candidate, userID, ok := tokenQueryParams(w, r)
	if !ok {
		return
	}

	var req ResetPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid reset password request body", "error", err.Error())
		httputil.RespondError(w, httputil.KindValidation, "invalid request body", http.StatusBadRequest)
		return
	}

	err := h.service.ResetPassword(r.Context(), userID, candidate, req.NewPassword, req.ConfirmNewPassword)
	if err != nil {
		if isValidationError(err) {
			logger.Warn("password reset failed: validation error", "error", err.Error())
			httputil.RespondError(w, httputil.KindValidation, err.Error(), http.StatusBadRequest)
			return
		}
		h.respondTokenError(w, r, err, "password reset")
		return
	}

	logger.Info("password reset successfully", "user_id", userID)

	httputil.RespondJSON(w, map[string]string{
		"message": "Password reset successfully. You can now login with your new password.",
	}, http.StatusOK)
}

// respondTokenError maps token lifecycle errors to 400 responses
func (h *Handler) respondTokenError(w http.ResponseWriter, r *http.Request, err error, action string) {
	logger := logging.GetLoggerFromContext(r.Context())

	switch {
	case errors.Is(err, token.ErrNoSuchToken):
		logger.Warn(action+" failed: no pending token")
		httputil.RespondError(w, httputil.KindBadRequest, "no pending token, please request a new one", http.StatusBadRequest)
	case errors.Is(err, token.ErrTokenExpired):
		logger.Warn(action + " failed: token expired")
		httputil.RespondError(w, httputil.KindBadRequest, "token has expired, please request a new one", http.StatusBadRequest)
	case errors.Is(err, token.ErrInvalidToken):
		logger.Warn(action + " failed: invalid token")
		httputil.RespondError(w, httputil.KindBadRequest, "invalid token", http.StatusBadRequest)
	default:
		logger.Error(action+" failed: internal error", "error", err.Error())
		httputil.RespondError(w, httputil.KindInternal, "failed to "+action, http.StatusInternalServerError)
	}
}

// tokenQueryParams extracts the token and user query parameters shared by
// the verify and reset-password links.
func tokenQueryParams(w http.ResponseWriter, r *http.Request) (string, uuid.UUID, bool) {
	logger := logging.GetLoggerFromContext(r.Context())

	candidate := r.URL.Query().Get("token")
	if candidate == "" {
		logger.Warn("token missing from query")
		httputil.RespondError(w, httputil.KindValidation, "token query parameter required", http.StatusBadRequest)
		return "", uuid.Nil, false
	}

	userParam := r.URL.Query().Get("user")
	userID, err := uuid.Parse(userParam)
	if err != nil {
		logger.Warn("invalid user query parameter", "user", userParam)
		httputil.RespondError(w, httputil.KindValidation, "invalid user query parameter", http.StatusBadRequest)
		return "", uuid.Nil, false
	}

	return candidate, userID, true
}

// checkIPRateLimit enforces the ambient per-IP limit. Returns true when the
// request was rejected. Limiter failures never block legitimate requests.
func (h *Handler) checkIPRateLimit(w http.ResponseWriter, r *http.Request, purpose string) bool {
	logger := logging.GetLoggerFromContext(r.Context())

	ip := getClientIP(r)
	exceeded, err := h.rateLimiter.CheckIPRateLimit(r.Context(), ip, purpose)
	if err != nil {
		logger.Error("failed to check IP rate limit", "error", err.Error())
		return false
	}
	if exceeded {
		logger.Warn("IP rate limit exceeded", "ip", ip, "purpose", purpose)
		httputil.RespondError(w, httputil.KindRateLimited, "too many requests, please try again later", http.StatusTooManyRequests)
		return true
	}

	if err := h.rateLimiter.RecordIPRequest(r.Context(), ip, purpose); err != nil {
		logger.Error("failed to record IP request", "error", err.Error())
	}

	return false
}

func isValidationError(err error) bool {
	return errors.Is(err, ErrNameRequired) ||
		errors.Is(err, ErrEmailRequired) ||
		errors.Is(err, ErrInvalidEmailFormat) ||
		errors.Is(err, ErrPasswordRequired) ||
		errors.Is(err, ErrPasswordMismatch)
}

// getClientIP extracts the client IP address from the request
func getClientIP(r *http.Request) string {
	// X-Forwarded-For can contain multiple IPs, take the first one
	xff := r.Header.Get("X-Forwarded-For")
	if xff != "" {
		ips := strings.Split(xff, ",")
		if len(ips) > 0 {
			return strings.TrimSpace(ips[0])
		}
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	// RemoteAddr format is "IP:port", extract just the IP
	ip := r.RemoteAddr
	if idx := strings.LastIndex(ip, ":"); idx != -1 {
		ip = ip[:idx]
	}
	return ip
}
