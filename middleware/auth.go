package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"duochat/models"
)

type contextKey string

const UserContextKey contextKey = "user"

// Admitter resolves a bearer token to a known user.
type Admitter interface {
	Admit(ctx context.Context, token string) (*models.User, error)
}

// TokenFromRequest reads the bearer token from the Authorization header,
// falling back to the token query parameter used by WebSocket clients.
func TokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
		return ""
	}
	return r.URL.Query().Get("token")
}

// Auth middleware admits the request's token and adds the user to context
func Auth(gate Admitter, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, err := gate.Admit(r.Context(), TokenFromRequest(r))
			if err != nil {
				w.Header().Set("Content-Type", "application/json")
				if errors.Is(err, models.ErrStorage) {
					if logger != nil {
						logger.Error("authenticate request", zap.Error(err))
					}
					http.Error(w, `{"error": "Server error"}`, http.StatusInternalServerError)
					return
				}
				http.Error(w, `{"error": "Unauthorized"}`, http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), UserContextKey, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetUserFromContext retrieves the user from the request context
func GetUserFromContext(r *http.Request) *models.User {
	user, ok := r.Context().Value(UserContextKey).(*models.User)
	if !ok {
		return nil
	}
	return user
}
