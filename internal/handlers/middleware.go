package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/merchforge/apiserver/internal/auth"
	"github.com/merchforge/apiserver/internal/services"
	"github.com/merchforge/apiserver/internal/store"
	"go.uber.org/zap"
)

const (
	msgUnauthorized = "Unauthorized"
	msgTokenExpired = "Token expired"
	msgInvalidToken = "Invalid token"
	msgAdminOnly    = "Access denied. Admin privileges required."
)

// Authenticator builds the middleware guarding authenticated and admin routes.
type Authenticator struct {
	tokens      *auth.TokenManager
	userService *services.UserService
	logger      *zap.Logger
}

func NewAuthenticator(tokens *auth.TokenManager, userService *services.UserService, logger *zap.Logger) *Authenticator {
	return &Authenticator{tokens: tokens, userService: userService, logger: logger}
}

// RequireAuth verifies the Authorization header and injects the user id
// into the request context.
func (a *Authenticator) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, ok := a.verify(w, r)
		if !ok {
			return
		}
		next.ServeHTTP(w, r.WithContext(withUserID(r.Context(), userID)))
	})
}

// RequireAdmin repeats the token checks of RequireAuth and additionally
// requires the stored user to carry the admin flag.
func (a *Authenticator) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, ok := a.verify(w, r)
		if !ok {
			return
		}

		user, err := a.userService.GetByID(r.Context(), userID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				writeError(w, http.StatusForbidden, msgAdminOnly)
				return
			}
			writeServerError(w, r, a.logger, "Internal server error", err)
			return
		}
		if !user.IsAdmin {
			writeError(w, http.StatusForbidden, msgAdminOnly)
			return
		}
		next.ServeHTTP(w, r.WithContext(withUserID(r.Context(), userID)))
	})
}

func (a *Authenticator) verify(w http.ResponseWriter, r *http.Request) (int, bool) {
	token := bearerToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, msgUnauthorized)
		return 0, false
	}

	userID, err := a.tokens.Verify(token)
	switch {
	case err == nil:
		return userID, true
	case errors.Is(err, auth.ErrTokenExpired):
		writeError(w, http.StatusUnauthorized, msgTokenExpired)
	default:
		writeError(w, http.StatusUnauthorized, msgInvalidToken)
	}
	return 0, false
}

// bearerToken accepts both a raw token and "Bearer <token>".
func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if scheme, token, ok := strings.Cut(header, " "); ok && strings.EqualFold(scheme, "Bearer") {
		return strings.TrimSpace(token)
	}
	return header
}

// RequestLogger logs one line per request with the chi request id.
func RequestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			defer func() {
				status := ww.Status()
				if status == 0 {
					status = http.StatusOK
				}
				fields := []zap.Field{
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Int("status", status),
					zap.Int("bytes", ww.BytesWritten()),
					zap.Duration("duration", time.Since(start)),
					zap.String("request_id", middleware.GetReqID(r.Context())),
				}
				if status >= http.StatusInternalServerError {
					logger.Warn("request", fields...)
					return
				}
				logger.Info("request", fields...)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
