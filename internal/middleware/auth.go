package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/benvon/formdrop/internal/database"
	"github.com/benvon/formdrop/internal/httperr"
	"github.com/benvon/formdrop/internal/models"
	"github.com/benvon/formdrop/internal/request"
	"github.com/benvon/formdrop/internal/services/session"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// UserLookup resolves the user a session token was issued for.
type UserLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// Auth attaches the session user to the request context. The token is read from the
// session cookie, then from an "Authorization: Bearer" header. When required is false,
// requests without a valid session continue anonymously.
func Auth(sessions *session.Manager, users UserLookup, required bool, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := sessionToken(r)
			if token == "" {
				if required {
					httperr.Write(w, r, httperr.Unauthorized("Authentication required"), logger)
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			userID, err := sessions.Verify(token)
			if err != nil {
				if required {
					httperr.Write(w, r, httperr.Unauthorized("Invalid or expired session"), logger)
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			user, err := users.GetByID(r.Context(), userID)
			if err != nil {
				if !errors.Is(err, database.ErrNotFound) {
					httperr.Write(w, r, httperr.Internal(err), logger)
					return
				}
				if required {
					httperr.Write(w, r, httperr.Unauthorized("Invalid or expired session"), logger)
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			next.ServeHTTP(w, r.WithContext(request.WithUser(r.Context(), user)))
		})
	}
}

func sessionToken(r *http.Request) string {
	if v, ok := request.Cookie(r, session.CookieName); ok && v != "" {
		return v
	}
	if c, err := r.Cookie(session.CookieName); err == nil && c.Value != "" {
		return c.Value
	}
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if ok && strings.EqualFold(scheme, "Bearer") {
		return strings.TrimSpace(token)
	}
	return ""
}
