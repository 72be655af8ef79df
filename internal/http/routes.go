package http

import (
	"time"

	"github.com/jmylchreest/streamsource/internal/http/handlers"
	"github.com/jmylchreest/streamsource/internal/session"
	"github.com/jmylchreest/streamsource/pkg/httpclient"
)

// RouteOptions configures the registered API.
type RouteOptions struct {
	Version     string
	Client      *httpclient.Client
	LoadTimeout time.Duration
}

// RegisterSessionRoutes registers the health, manifest and blacklist
// endpoints for sess.
func (s *Server) RegisterSessionRoutes(sess *session.Session, opts RouteOptions) {
	health := handlers.NewHealthHandler(opts.Version, sess)
	if opts.Client != nil {
		health.WithClient(opts.Client)
	}
	health.Register(s.api)
	handlers.NewManifestHandler(sess).WithLoadTimeout(opts.LoadTimeout).Register(s.api)
	handlers.NewBlacklistHandler(sess).Register(s.api)
}
