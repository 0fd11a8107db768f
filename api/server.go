// Package api exposes the assistant over HTTP: chat (plain and
// streaming), session management, index administration, and health.
package api

import (
	"errors"
	"net/http"

	"github.com/evapo/evapo/internal/agent"
	"github.com/evapo/evapo/internal/index"
	"github.com/evapo/evapo/internal/log"
	"github.com/evapo/evapo/internal/session"
)

// ServerConfig carries the dependencies for a Server.
type ServerConfig struct {
	Logger   log.Logger
	Flow     *agent.Flow
	Sessions *session.Store

	// Index is optional; nil disables the reload endpoint.
	Index *index.Manager

	// CORSOrigins lists the origins allowed to call the API from a
	// browser. Empty means no cross-origin access.
	CORSOrigins []string

	// TrustProxy enables reading the client address from
	// X-Forwarded-For. Leave false unless a trusted proxy fronts the
	// server.
	TrustProxy bool
}

func (c ServerConfig) validate() error {
	if c.Flow == nil {
		return errors.New("api: Flow is required")
	}
	if c.Sessions == nil {
		return errors.New("api: Sessions is required")
	}
	return nil
}

// Server routes HTTP traffic to the agent and its supporting stores.
type Server struct {
	logger  log.Logger
	index   *index.Manager
	handler http.Handler
}

// NewServer wires the routes and middleware. Health endpoints sit
// outside the middleware stack so health checks stay out of the request log.
func NewServer(cfg ServerConfig) (*Server, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNop()
	}

	s := &Server{logger: logger, index: cfg.Index}

	chat := &chatHandler{flow: cfg.Flow, logger: logger, trustProxy: cfg.TrustProxy}
	sessions := &sessionHandler{store: cfg.Sessions, logger: logger}

	apiMux := http.NewServeMux()
	apiMux.HandleFunc("POST /api/chat", chat.send)
	apiMux.HandleFunc("POST /api/chat/stream", chat.stream)
	apiMux.HandleFunc("POST /api/sessions", sessions.create)
	apiMux.HandleFunc("GET /api/sessions/{id}", sessions.get)
	apiMux.HandleFunc("DELETE /api/sessions/{id}", sessions.remove)
	apiMux.HandleFunc("DELETE /api/sessions/{id}/turns", sessions.clear)

	idx := &indexHandler{manager: cfg.Index, logger: logger}
	apiMux.HandleFunc("POST /api/index/reload", idx.reload)

	wrapped := chain(apiMux,
		recoveryMiddleware(logger),
		loggingMiddleware(logger),
		corsMiddleware(cfg.CORSOrigins),
	)

	root := http.NewServeMux()
	root.HandleFunc("GET /health", s.health)
	root.HandleFunc("GET /ready", s.ready)
	root.Handle("/", wrapped)

	s.handler = root
	return s, nil
}

// Handler returns the root handler for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.handler
}
