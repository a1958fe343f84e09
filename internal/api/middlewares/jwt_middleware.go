package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/markdave123-py/AgroIntelX/internal/apperrors"
	"github.com/markdave123-py/AgroIntelX/internal/auth"
	"github.com/markdave123-py/AgroIntelX/internal/models"
)

// UserLookup loads the account behind a session token.
type UserLookup interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
}

// JWTMiddleware validates the access_token cookie, loads the user from the store
// and attaches it to the request context. Nothing is cached between requests.
func JWTMiddleware(issuer *auth.TokenIssuer, users UserLookup, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(auth.CookieName)
			if err != nil || cookie.Value == "" {
				unauthorized(w, "Not authenticated")
				return
			}

			claims, err := issuer.Parse(cookie.Value)
			if err != nil {
				unauthorized(w, "Invalid token")
				return
			}

			user, err := users.GetByID(r.Context(), claims.Subject)
			if errors.Is(err, apperrors.ErrNotFound) {
				unauthorized(w, "User not found")
				return
			}
			if err != nil {
				logger.Error("Failed to load session user", zap.String("user_id", claims.Subject), zap.Error(err))
				writeMessage(w, http.StatusInternalServerError, "Authentication failed")
				return
			}

			next.ServeHTTP(w, r.WithContext(auth.WithUser(r.Context(), user)))
		})
	}
}

func unauthorized(w http.ResponseWriter, msg string) {
	writeMessage(w, http.StatusUnauthorized, msg)
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"message": msg})
}
