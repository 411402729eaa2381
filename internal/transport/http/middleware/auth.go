package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/vedran77/riffchat/internal/apperr"
	"github.com/vedran77/riffchat/internal/domain"
	"go.uber.org/zap"
)

type contextKey string

const UserIDKey contextKey = "user_id"

type Authenticator interface {
	Authenticate(ctx context.Context, bearer string) (*domain.User, error)
}

func Auth(auth Authenticator, log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" || !strings.HasPrefix(header, "Bearer ") {
				reject(w, http.StatusUnauthorized, apperr.AuthFailed, "Missing or invalid token")
				return
			}

			user, err := auth.Authenticate(r.Context(), strings.TrimPrefix(header, "Bearer "))
			if err != nil {
				if !apperr.Is(err, apperr.AuthFailed) {
					log.Error("authenticate request", zap.Error(err))
					reject(w, http.StatusInternalServerError, apperr.Internal, "Something went wrong")
					return
				}
				reject(w, http.StatusUnauthorized, apperr.AuthFailed, "Invalid or expired token")
				return
			}

			ctx := context.WithValue(r.Context(), UserIDKey, user.ID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetUserID extracts user ID from request context
func GetUserID(ctx context.Context) uuid.UUID {
	return ctx.Value(UserIDKey).(uuid.UUID)
}

func reject(w http.ResponseWriter, status int, kind apperr.Kind, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"success": false,
		"message": message,
		"error":   kind.String(),
	})
}
