package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/vaultshare/fileshare-api/internal/httputil"
)

// ContextKey is a type for context keys to avoid collisions
type ContextKey string

const UserIDContextKey ContextKey = "user_id"

// Middleware handles authentication for protected routes
type Middleware struct {
	codec TokenCodec
}

func NewMiddleware(codec TokenCodec) *Middleware {
	return &Middleware{codec: codec}
}

// RequireAuth validates the bearer token on the Authorization header and
// puts the authenticated user ID into the request context.
func (m *Middleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			httputil.RespondError(w, httputil.KindUnauthorized, "missing authorization header", http.StatusUnauthorized)
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			httputil.RespondError(w, httputil.KindUnauthorized, "invalid authorization header format", http.StatusUnauthorized)
			return
		}

		claims, err := m.codec.VerifyToken(parts[1])
		if err != nil {
			if errors.Is(err, ErrExpiredToken) {
				httputil.RespondError(w, httputil.KindUnauthorized, "token has expired", http.StatusUnauthorized)
				return
			}
			httputil.RespondError(w, httputil.KindUnauthorized, "invalid token", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), UserIDContextKey, claims.UserID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetUserIDFromContext extracts the user ID from the request context
func GetUserIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	userID, ok := ctx.Value(UserIDContextKey).(uuid.UUID)
	return userID, ok
}
