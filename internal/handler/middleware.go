package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/boddenberg/crm-leads-bfa-go/internal/domain"
	"github.com/boddenberg/crm-leads-bfa-go/internal/service"
	"go.uber.org/zap"
)

type contextKey string

const sessionKey contextKey = "session"

// SessionMiddleware validates Bearer tokens and injects the session into
// context. When tokens are disabled the default session is injected.
func SessionMiddleware(sessions *service.Sessions, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !sessions.Enabled() {
				ctx := context.WithValue(r.Context(), sessionKey, sessions.Default())
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			tokenString := bearerToken(r)
			if tokenString == "" {
				logger.Warn("auth: missing or malformed token",
					zap.String("path", r.URL.Path),
					zap.String("remote_addr", r.RemoteAddr),
				)
				writeError(w, http.StatusUnauthorized, "missing bearer token")
				return
			}

			sess, err := sessions.Validate(tokenString)
			if err != nil {
				logger.Warn("auth: invalid or expired token",
					zap.String("path", r.URL.Path),
					zap.String("remote_addr", r.RemoteAddr),
					zap.Error(err),
				)
				writeError(w, http.StatusUnauthorized, err.Error())
				return
			}

			ctx := context.WithValue(r.Context(), sessionKey, sess)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// bearerToken reads the Authorization header, falling back to the
// access_token query parameter since browsers cannot set headers on a
// websocket handshake.
func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		parts := strings.SplitN(h, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			return ""
		}
		return strings.TrimSpace(parts[1])
	}
	return r.URL.Query().Get("access_token")
}

// SessionFromContext extracts the authenticated session from context.
func SessionFromContext(ctx context.Context) domain.Session {
	v, _ := ctx.Value(sessionKey).(domain.Session)
	return v
}
