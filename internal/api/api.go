// Package api exposes the storage engine over HTTP. Authentication is an
// external concern: a pluggable UserResolver turns a request into a user
// id, and everything behind /api/files requires one.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/skyvault-io/skyvault/internal/engine"
	"github.com/skyvault-io/skyvault/internal/events"
	"github.com/skyvault-io/skyvault/internal/share"
	"github.com/skyvault-io/skyvault/pkg/config"
)

// UserResolver authenticates a request. Implementations live outside this
// repo (sessions, proxies, tokens); the default reads a trusted header set
// by a fronting auth layer.
type UserResolver interface {
	ResolveUser(r *http.Request) (string, error)
}

// HeaderResolver trusts a header for the user id. Only suitable behind a
// proxy that strips the header from client traffic.
type HeaderResolver struct {
	Header string
}

// ResolveUser returns the header value, empty meaning unauthenticated.
func (h HeaderResolver) ResolveUser(r *http.Request) (string, error) {
	return r.Header.Get(h.Header), nil
}

// Server holds the handler dependencies.
type Server struct {
	engine   *engine.Engine
	shares   *share.Service
	broker   *events.Broker
	resolver UserResolver
	cfg      *config.ServerConfig
}

// New assembles the HTTP server surface.
func New(eng *engine.Engine, shares *share.Service, broker *events.Broker, resolver UserResolver, cfg *config.ServerConfig) *Server {
	return &Server{
		engine:   eng,
		shares:   shares,
		broker:   broker,
		resolver: resolver,
		cfg:      cfg,
	}
}

// Router builds the route tree. The SSE stream sits outside the request
// timeout; everything else is bounded.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Get("/s/{token}", s.handleShareView)

	r.Route("/api/files", func(r chi.Router) {
		r.Use(s.requireUser)

		r.Get("/events", s.handleEvents)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(s.cfg.RequestTimeout))

			r.Get("/", s.handleList)
			r.Get("/stats", s.handleStats)
			r.Get("/search", s.handleSearch)
			r.Get("/storage", s.handleStorage)
			r.Get("/starred", s.handleStarred)
			r.Get("/shared", s.handleShared)
			r.Get("/trash", s.handleTrash)
			r.Get("/{id}/download", s.handleDownload)

			r.Post("/folder", s.handleCreateFolder)
			r.Post("/upload", s.handleUpload)
			r.Post("/move", s.handleMove)
			r.Post("/copy", s.handleCopy)
			r.Post("/rename", s.handleRename)
			r.Post("/star", s.handleStar)
			r.Post("/share", s.handleShare)
			r.Post("/delete", s.handleDelete)
			r.Post("/trash/restore", s.handleRestore)
			r.Post("/trash/delete", s.handlePurge)
		})
	})

	return r
}

// handleHealth is the liveness probe.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
