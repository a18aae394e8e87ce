package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/vistaflix/tvlink/internal/audit"
	apperrors "github.com/vistaflix/tvlink/internal/errors"
	"github.com/vistaflix/tvlink/internal/middleware"
	"github.com/vistaflix/tvlink/internal/service"
	"github.com/vistaflix/tvlink/internal/util"
)

// QRHandler drives the QR login handshake. The TV creates a session and polls
// it unauthenticated; the verifying phone must be logged in.
type QRHandler struct {
	qr *service.QRService
}

func NewQRHandler(qr *service.QRService) *QRHandler {
	return &QRHandler{qr: qr}
}

// Routes wires the handshake. Create and poll are open to the TV; verify is a
// browser action, so it carries both the session and CSRF guards.
func (h *QRHandler) Routes(sessions *middleware.SessionMiddleware, csrf *middleware.CSRFMiddleware) chi.Router {
	r := chi.NewRouter()

	r.Post("/", h.Create)
	r.Get("/{sessionID}", h.Get)
	r.With(csrf.Handler, sessions.Handler).Put("/{sessionID}", h.Verify)

	return r
}

func (h *QRHandler) Create(w http.ResponseWriter, r *http.Request) {
	session, err := h.qr.Create(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

func (h *QRHandler) Get(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if !util.IsValidUUID(sessionID) {
		writeError(w, apperrors.NotFoundOrExpired())
		return
	}

	session, err := h.qr.Get(r.Context(), sessionID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (h *QRHandler) Verify(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())
	if user == nil {
		writeError(w, apperrors.Unauthorized("Not authenticated"))
		return
	}

	sessionID := chi.URLParam(r, "sessionID")
	if !util.IsValidUUID(sessionID) {
		writeError(w, apperrors.NotFoundOrExpired())
		return
	}

	session, err := h.qr.Verify(r.Context(), sessionID, user.ID)
	if err != nil {
		writeError(w, err)
		return
	}

	audit.LogFromRequest(r, audit.Event{Type: audit.EventQRVerify, UserID: user.ID})
	writeJSON(w, http.StatusOK, session)
}
