package handler

import (
	"net/http"
	"time"

	"github.com/vistaflix/tvlink/internal/httputil"
	"github.com/vistaflix/tvlink/internal/model"
)

func writeJSON(w http.ResponseWriter, status int, data any) {
	httputil.WriteJSON(w, status, data)
}

func writeError(w http.ResponseWriter, err error) {
	httputil.WriteError(w, err)
}

func formatUser(user *model.User) map[string]any {
	return map[string]any{
		"id":          user.ID,
		"email":       user.Email,
		"hasPlaylist": user.XtreamCredentials != nil,
		"createdAt":   user.CreatedAt.Format(time.RFC3339),
	}
}
