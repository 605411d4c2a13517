package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// handleShareView is the public share surface: a valid token resolves to
// its live file set. Unknown, malformed and expired tokens are all 404.
func (s *Server) handleShareView(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	files, err := s.shares.Resolve(r.Context(), token)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"files": files})
}
