package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/vistaflix/tvlink/internal/audit"
	apperrors "github.com/vistaflix/tvlink/internal/errors"
	"github.com/vistaflix/tvlink/internal/middleware"
	"github.com/vistaflix/tvlink/internal/service"
	"github.com/vistaflix/tvlink/internal/util"
)

type AuthHandler struct {
	accounts     *service.AccountService
	isProduction bool
}

func NewAuthHandler(accounts *service.AccountService, isProduction bool) *AuthHandler {
	return &AuthHandler{accounts: accounts, isProduction: isProduction}
}

func (h *AuthHandler) Routes(sessions *middleware.SessionMiddleware) chi.Router {
	r := chi.NewRouter()

	r.Post("/login", h.Login)
	r.Post("/logout", h.Logout)
	r.With(sessions.Handler).Get("/me", h.Me)

	return r
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.InvalidInput("body", "malformed JSON"))
		return
	}

	if !util.IsValidEmail(req.Email) || req.Password == "" {
		writeError(w, apperrors.InvalidCredentials())
		return
	}

	user, err := h.accounts.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		audit.LogFromRequest(r, audit.Event{Type: audit.EventLoginFailure})
		writeError(w, err)
		return
	}
	audit.LogFromRequest(r, audit.Event{Type: audit.EventLoginSuccess, UserID: user.ID})

	token, _, err := h.accounts.CreateSession(r.Context(), user.ID)
	if err != nil {
		log.Error().Err(err).Str("userId", user.ID).Msg("session creation failed")
		writeError(w, err)
		return
	}
	middleware.SetSessionCookie(w, token, h.isProduction)

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"user":    formatUser(user),
	})
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(middleware.SessionCookie)
	if err == nil && cookie.Value != "" {
		if err := h.accounts.Logout(r.Context(), cookie.Value); err != nil {
			log.Warn().Err(err).Msg("logout failed")
		}
	}

	middleware.ClearSessionCookie(w)
	audit.LogFromRequest(r, audit.Event{Type: audit.EventLogout})
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())
	if user == nil {
		writeError(w, apperrors.Unauthorized("Not authenticated"))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"user": formatUser(user)})
}
