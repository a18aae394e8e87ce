package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noopHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestCSRFMiddleware(t *testing.T) {
	handler := NewCSRFMiddleware(false).Handler(noopHandler())

	t.Run("GET without cookie sets one and passes", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/activation/ABCDEF", nil)
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		cookies := rec.Result().Cookies()
		require.NotEmpty(t, cookies)
		assert.Equal(t, CSRFCookieName, cookies[0].Name)
		assert.NotEmpty(t, cookies[0].Value)
	})

	t.Run("POST without header is forbidden", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/activation", nil)
		req.AddCookie(&http.Cookie{Name: CSRFCookieName, Value: "token-value"})
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("POST with mismatched header is forbidden", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/activation", nil)
		req.AddCookie(&http.Cookie{Name: CSRFCookieName, Value: "token-value"})
		req.Header.Set(CSRFHeaderName, "different-value")
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("POST with matching header passes", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/activation", nil)
		req.AddCookie(&http.Cookie{Name: CSRFCookieName, Value: "token-value"})
		req.Header.Set(CSRFHeaderName, "token-value")
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestBodyLimitMiddleware(t *testing.T) {
	handler := NewBodyLimitMiddleware(16).Handler(noopHandler())

	t.Run("small body passes", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/activation", nil)
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("oversized body is rejected up front", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/activation", nil)
		req.ContentLength = 1 << 20
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	})
}

func TestSecurityHeadersMiddleware(t *testing.T) {
	t.Run("sets baseline headers", func(t *testing.T) {
		handler := NewSecurityHeadersMiddleware(false).Handler(noopHandler())
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
		assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
		assert.Empty(t, rec.Header().Get("Strict-Transport-Security"))
	})

	t.Run("adds HSTS in production", func(t *testing.T) {
		handler := NewSecurityHeadersMiddleware(true).Handler(noopHandler())
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		assert.NotEmpty(t, rec.Header().Get("Strict-Transport-Security"))
	})
}
