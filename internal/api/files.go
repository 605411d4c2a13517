package api

import (
	"net/http"
	"strconv"
)

// badRequest rejects an unparsable body or query.
func badRequest(w http.ResponseWriter) {
	writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request"})
}

// optionalParent normalises the parent id parameter: absent or empty means
// root.
func optionalParent(raw string) *string {
	if raw == "" || raw == "null" || raw == "root" {
		return nil
	}
	return &raw
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	files, err := s.engine.List(r.Context(), userID(r),
		optionalParent(q.Get("parentId")), q.Get("sortBy"), q.Get("order"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"files": files})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.engine.Stats(r.Context(), userID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := q.Get("q")
	if query == "" {
		badRequest(w)
		return
	}
	limit := 0
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			badRequest(w)
			return
		}
		limit = n
	}
	files, err := s.engine.Search(r.Context(), userID(r), query, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"files": files})
}

func (s *Server) handleStorage(w http.ResponseWriter, r *http.Request) {
	used, limit, err := s.engine.StorageUsage(r.Context(), userID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"used": used, "limit": limit})
}

func (s *Server) handleStarred(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	files, err := s.engine.ListStarred(r.Context(), userID(r), q.Get("sortBy"), q.Get("order"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"files": files})
}

func (s *Server) handleShared(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	files, err := s.engine.ListShared(r.Context(), userID(r), q.Get("sortBy"), q.Get("order"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"files": files})
}

func (s *Server) handleTrash(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	files, err := s.engine.ListTrash(r.Context(), userID(r), q.Get("sortBy"), q.Get("order"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"files": files})
}

func (s *Server) handleCreateFolder(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name     string  `json:"name"`
		ParentID *string `json:"parent_id"`
	}
	if err := decodeBody(r, &req); err != nil || req.Name == "" {
		badRequest(w)
		return
	}
	file, err := s.engine.CreateFolder(r.Context(), userID(r), req.Name, req.ParentID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"file": file})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	file, header, err := r.FormFile("file")
	if err != nil {
		badRequest(w)
		return
	}
	defer file.Close()

	parentID := optionalParent(r.FormValue("parent_id"))
	row, err := s.engine.Upload(r.Context(), userID(r),
		header.Filename, header.Header.Get("Content-Type"), header.Size, file, parentID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"file": row})
}

func (s *Server) handleMove(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IDs      []string `json:"ids"`
		ParentID *string  `json:"parentId"`
	}
	if err := decodeBody(r, &req); err != nil || len(req.IDs) == 0 {
		badRequest(w)
		return
	}
	if err := s.engine.Move(r.Context(), userID(r), req.IDs, req.ParentID); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleCopy(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IDs      []string `json:"ids"`
		ParentID *string  `json:"parentId"`
	}
	if err := decodeBody(r, &req); err != nil || len(req.IDs) == 0 {
		badRequest(w)
		return
	}
	if err := s.engine.Copy(r.Context(), userID(r), req.IDs, req.ParentID); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleRename(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	if err := decodeBody(r, &req); err != nil || req.ID == "" || req.Name == "" {
		badRequest(w)
		return
	}
	file, err := s.engine.Rename(r.Context(), userID(r), req.ID, req.Name)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"file": file})
}

func (s *Server) handleStar(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IDs     []string `json:"ids"`
		Starred bool     `json:"starred"`
	}
	if err := decodeBody(r, &req); err != nil || len(req.IDs) == 0 {
		badRequest(w)
		return
	}
	if err := s.engine.SetStarred(r.Context(), userID(r), req.IDs, req.Starred); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleShare(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IDs    []string `json:"ids"`
		Shared bool     `json:"shared"`
	}
	if err := decodeBody(r, &req); err != nil || len(req.IDs) == 0 {
		badRequest(w)
		return
	}
	links, err := s.engine.SetShared(r.Context(), userID(r), req.IDs, req.Shared, s.shares)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if links == nil {
		links = map[string]string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"links": links})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IDs []string `json:"ids"`
	}
	if err := decodeBody(r, &req); err != nil || len(req.IDs) == 0 {
		badRequest(w)
		return
	}
	if err := s.engine.SoftDelete(r.Context(), userID(r), req.IDs); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleRestore(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IDs []string `json:"ids"`
	}
	if err := decodeBody(r, &req); err != nil || len(req.IDs) == 0 {
		badRequest(w)
		return
	}
	if err := s.engine.Restore(r.Context(), userID(r), req.IDs); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handlePurge(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IDs []string `json:"ids"`
	}
	if err := decodeBody(r, &req); err != nil || len(req.IDs) == 0 {
		badRequest(w)
		return
	}
	if err := s.engine.Purge(r.Context(), userID(r), req.IDs); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}
