package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/vistaflix/tvlink/internal/audit"
	apperrors "github.com/vistaflix/tvlink/internal/errors"
	"github.com/vistaflix/tvlink/internal/middleware"
	"github.com/vistaflix/tvlink/internal/service"
	"github.com/vistaflix/tvlink/internal/xtream"
)

// PlaylistHandler manages the user's linked streaming provider account. All
// routes require a session.
type PlaylistHandler struct {
	playlists *service.PlaylistService
}

func NewPlaylistHandler(playlists *service.PlaylistService) *PlaylistHandler {
	return &PlaylistHandler{playlists: playlists}
}

func (h *PlaylistHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/", h.Link)
	r.Get("/streams", h.Streams)

	return r
}

func (h *PlaylistHandler) Link(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())
	if user == nil {
		writeError(w, apperrors.Unauthorized("Not authenticated"))
		return
	}

	var req struct {
		URL      string `json:"url"`
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.InvalidInput("body", "malformed JSON"))
		return
	}

	switch {
	case req.URL == "":
		writeError(w, apperrors.MissingRequired("url"))
		return
	case req.Username == "":
		writeError(w, apperrors.MissingRequired("username"))
		return
	}

	creds := xtream.Credentials{URL: req.URL, Username: req.Username, Password: req.Password}
	if err := h.playlists.Link(r.Context(), user, creds); err != nil {
		writeError(w, err)
		return
	}

	audit.LogFromRequest(r, audit.Event{Type: audit.EventPlaylistLink, UserID: user.ID})
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *PlaylistHandler) Streams(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())
	if user == nil {
		writeError(w, apperrors.Unauthorized("Not authenticated"))
		return
	}

	kind := xtream.StreamKind(r.URL.Query().Get("type"))
	switch kind {
	case "":
		kind = xtream.StreamKindLive
	case xtream.StreamKindLive, xtream.StreamKindVOD, xtream.StreamKindSeries:
	default:
		writeError(w, apperrors.InvalidInput("type", "must be live, vod or series"))
		return
	}

	body, err := h.playlists.Streams(r.Context(), user, kind)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}
