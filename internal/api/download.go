package api

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/skyvault-io/skyvault/internal/logger"
)

// handleDownload streams a file's bytes, or a folder's live subtree as a
// zip archive.
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	uid := userID(r)

	row, err := s.engine.Get(r.Context(), uid, id)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if row.IsFolder() {
		w.Header().Set("Content-Type", "application/zip")
		w.Header().Set("Content-Disposition", contentDisposition(row.Name+".zip"))
		if _, err := s.engine.WriteZip(r.Context(), uid, id, w); err != nil {
			// Headers are gone; all that is left is to log.
			logger.ErrorCtx(r.Context(), "zip stream aborted",
				logger.KeyFileID, id, logger.KeyError, err)
		}
		return
	}

	rc, file, err := s.engine.OpenDownload(r.Context(), uid, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer rc.Close()

	contentType := "application/octet-stream"
	if file.MimeType != nil && *file.MimeType != "" {
		contentType = *file.MimeType
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", contentDisposition(file.Name))
	if file.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(file.Size, 10))
	}
	if _, err := io.Copy(w, rc); err != nil {
		logger.DebugCtx(r.Context(), "download stream aborted",
			logger.KeyFileID, id, logger.KeyError, err)
	}
}

// contentDisposition renders an attachment header with both the ASCII
// fallback filename and the RFC 5987 encoded form.
func contentDisposition(name string) string {
	fallback := strings.Map(func(r rune) rune {
		if r < 0x20 || r > 0x7e || r == '"' || r == '\\' {
			return '_'
		}
		return r
	}, name)
	return fmt.Sprintf(`attachment; filename="%s"; filename*=UTF-8''%s`,
		fallback, url.PathEscape(name))
}
