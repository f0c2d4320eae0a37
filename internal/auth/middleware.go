package auth

import (
	"context"
	"net/http"

	"github.com/redmonkez12/go-auth-service/internal/httputil"
	"github.com/redmonkez12/go-auth-service/internal/logging"
	"github.com/redmonkez12/go-auth-service/internal/user"
)

// ContextKey is a type for context keys to avoid collisions
type ContextKey string

const (
	UserContextKey ContextKey = "user"
)

// Middleware handles authentication for protected routes
type Middleware struct {
	service *Service
}

func NewMiddleware(service *Service) *Middleware {
	return &Middleware{service: service}
}

// RequireSession resolves the session cookie to a user and rejects the
// request when no valid session exists.
func (m *Middleware) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger := logging.GetLoggerFromContext(r.Context())

		sessionID, err := GetSessionFromCookie(r)
		if err != nil {
			httputil.RespondErrorWithCode(w, "missing session", httputil.CodeMissingSession, http.StatusUnauthorized)
			return
		}

		sessionUser, err := m.service.GetUserBySession(r.Context(), sessionID)
		if err != nil {
			logger.Error("failed to resolve session", "error", err.Error())
			httputil.RespondErrorWithCode(w, "failed to resolve session", httputil.CodeInternalError, http.StatusInternalServerError)
			return
		}
		if sessionUser == nil {
			httputil.RespondErrorWithCode(w, "invalid session", httputil.CodeInvalidSession, http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), UserContextKey, sessionUser)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetUserFromContext extracts the authenticated user from the request context
func GetUserFromContext(ctx context.Context) (*user.User, bool) {
	u, ok := ctx.Value(UserContextKey).(*user.User)
	return u, ok
}
