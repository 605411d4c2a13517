package api

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/skyvault-io/skyvault/internal/logger"
)

type userIDKey struct{}

// userID returns the authenticated user of a request, or "".
func userID(r *http.Request) string {
	id, _ := r.Context().Value(userIDKey{}).(string)
	return id
}

// requestLogger stamps the request with a LogContext (request id, client
// IP, user agent) and logs one line per request on the way out.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := r.RemoteAddr
		if host, _, err := net.SplitHostPort(ip); err == nil {
			ip = host
		}
		lc := logger.NewLogContext(middleware.GetReqID(r.Context()), ip)
		lc.UserAgent = r.UserAgent()
		ctx := logger.WithContext(r.Context(), lc)

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r.WithContext(ctx))

		logger.DebugCtx(ctx, "request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			logger.KeyDurationMs, float64(time.Since(start).Microseconds())/1000.0,
		)
	})
}

// requireUser resolves the caller through the pluggable resolver and
// rejects anonymous requests.
func (s *Server) requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		uid, err := s.resolver.ResolveUser(r)
		if err != nil || uid == "" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorised"})
			return
		}
		ctx := context.WithValue(r.Context(), userIDKey{}, uid)
		if lc := logger.FromContext(ctx); lc != nil {
			lc.UserID = uid
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
