package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/vistaflix/tvlink/internal/audit"
	apperrors "github.com/vistaflix/tvlink/internal/errors"
	"github.com/vistaflix/tvlink/internal/middleware"
	"github.com/vistaflix/tvlink/internal/service"
	"github.com/vistaflix/tvlink/internal/util"
	"github.com/vistaflix/tvlink/internal/xtream"
)

// ActivationHandler is the pairing-code API. The display device creates a
// code and polls its status unauthenticated; the control device consumes it
// with an identity assertion.
type ActivationHandler struct {
	activation   *service.ActivationService
	accounts     *service.AccountService
	isProduction bool
}

func NewActivationHandler(activation *service.ActivationService, accounts *service.AccountService, isProduction bool) *ActivationHandler {
	return &ActivationHandler{
		activation:   activation,
		accounts:     accounts,
		isProduction: isProduction,
	}
}

func (h *ActivationHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/", h.Create)
	r.Get("/", h.Status)
	r.Put("/", h.Activate)

	return r
}

// Create issues a new pairing code. The body is optional; when present it may
// carry provider credentials to pre-bind to whichever account consumes the
// code.
func (h *ActivationHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URL      string `json:"url"`
		Username string `json:"username"`
		Password string `json:"password"`
	}
	json.NewDecoder(r.Body).Decode(&req)

	var pending *xtream.Credentials
	if req.Username != "" {
		if req.URL == "" {
			writeError(w, apperrors.MissingRequired("url"))
			return
		}
		pending = &xtream.Credentials{URL: req.URL, Username: req.Username, Password: req.Password}
	}

	ac, err := h.activation.CreateCode(r.Context(), pending)
	if err != nil {
		log.Error().Err(err).Msg("failed to create activation code")
		writeError(w, err)
		return
	}

	audit.LogFromRequest(r, audit.Event{
		Type: audit.EventCodeGenerate,
		Code: util.MaskCode(ac.Code),
	})

	writeJSON(w, http.StatusCreated, map[string]any{
		"activationCode": ac.Code,
		"expiresAt":      ac.ExpiresAt.Format(time.RFC3339),
	})
}

// Status reads a code's state for the polling display device. Malformed codes
// get the same 404 as expired ones, so the response never reveals whether a
// guessed code ever existed.
func (h *ActivationHandler) Status(w http.ResponseWriter, r *http.Request) {
	code := service.NormalizeCode(r.URL.Query().Get("code"))
	if !util.IsValidActivationCode(code) {
		writeError(w, apperrors.NotFoundOrExpired())
		return
	}

	status, err := h.activation.Status(r.Context(), code)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, status)
}

// Activate consumes a code on behalf of the control device and logs that
// device in via a session cookie.
func (h *ActivationHandler) Activate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code     string `json:"code"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.InvalidInput("body", "malformed JSON"))
		return
	}

	code := service.NormalizeCode(req.Code)
	switch {
	case !util.IsValidActivationCode(code):
		writeError(w, apperrors.NotFoundOrExpired())
		return
	case !util.IsValidEmail(req.Email):
		writeError(w, apperrors.InvalidInput("email", "not a valid address"))
		return
	case req.Password == "":
		writeError(w, apperrors.MissingRequired("password"))
		return
	}

	result, err := h.activation.Activate(r.Context(), code, req.Email, req.Password)
	if err != nil {
		if apperrors.HasCode(err, apperrors.ErrCodeAlreadyConsumed) {
			audit.LogFromRequest(r, audit.Event{
				Type: audit.EventCodeConflict,
				Code: util.MaskCode(code),
			})
		}
		writeError(w, err)
		return
	}

	audit.LogFromRequest(r, audit.Event{
		Type:   audit.EventCodeConsume,
		UserID: result.User.ID,
		Code:   util.MaskCode(code),
	})

	token, _, err := h.accounts.CreateSession(r.Context(), result.User.ID)
	if err != nil {
		log.Error().Err(err).Str("userId", result.User.ID).Msg("activation succeeded but session creation failed")
		writeError(w, err)
		return
	}
	middleware.SetSessionCookie(w, token, h.isProduction)

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"user":    formatUser(result.User),
	})
}
