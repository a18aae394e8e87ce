package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	apperrors "github.com/vistaflix/tvlink/internal/errors"
	"github.com/vistaflix/tvlink/internal/model"
	"github.com/vistaflix/tvlink/internal/service"
)

const (
	SessionCookie = "tvlink_session"
	SessionMaxAge = 7 * 24 * time.Hour
)

type contextKey string

const UserContextKey contextKey = "user"

func GetUser(ctx context.Context) *model.User {
	if user, ok := ctx.Value(UserContextKey).(*model.User); ok {
		return user
	}
	return nil
}

// SessionMiddleware authenticates requests from logged-in control devices via
// the session cookie.
type SessionMiddleware struct {
	accounts *service.AccountService
}

func NewSessionMiddleware(accounts *service.AccountService) *SessionMiddleware {
	return &SessionMiddleware{accounts: accounts}
}

func (m *SessionMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(SessionCookie)
		if err != nil || cookie.Value == "" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{
				"error": "Unauthorized",
			})
			return
		}

		user, err := m.accounts.ValidateSession(r.Context(), cookie.Value)
		if err != nil {
			if apperrors.HasCode(err, apperrors.ErrCodeUnauthorized) {
				writeJSON(w, http.StatusUnauthorized, map[string]string{
					"error": "Unauthorized",
				})
				return
			}
			log.Error().Err(err).Msg("session middleware: validation failed")
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "Session validation failed",
			})
			return
		}

		ctx := context.WithValue(r.Context(), UserContextKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func SetSessionCookie(w http.ResponseWriter, token string, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   int(SessionMaxAge.Seconds()),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func ClearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:   SessionCookie,
		Value:  "",
		Path:   "/",
		MaxAge: -1,
	})
}
