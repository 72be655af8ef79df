// Package http provides the inspection HTTP server for streamsource.
package http

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/jmylchreest/streamsource/internal/config"
	"github.com/jmylchreest/streamsource/internal/http/middleware"
)

// Server is the inspection API: a chi router with a huma API mounted on it.
type Server struct {
	cfg    config.ServerConfig
	log    *slog.Logger
	mux    *chi.Mux
	api    huma.API
	server *http.Server
}

// NewServer builds the router, middleware chain and OpenAPI description.
// An empty version is reported as "dev".
func NewServer(cfg config.ServerConfig, logger *slog.Logger, version string) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if version == "" {
		version = "dev"
	}

	mux := chi.NewRouter()
	mux.Use(
		chimiddleware.RealIP,
		middleware.RequestID,
		middleware.NewLoggingMiddleware(logger),
		middleware.Recovery(logger),
		middleware.CORS(cfg.CORSOrigins),
		chimiddleware.Compress(5),
	)

	apiConfig := huma.DefaultConfig("streamsource API", version)
	apiConfig.Info.Description = "Manifest acquisition and base URL resolution"

	return &Server{
		cfg: cfg,
		log: logger,
		mux: mux,
		api: humachi.New(mux, apiConfig),
		server: &http.Server{
			Addr:              net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
			Handler:           mux,
			ReadTimeout:       cfg.ReadTimeout,
			ReadHeaderTimeout: cfg.ReadTimeout,
			WriteTimeout:      cfg.WriteTimeout,
		},
	}
}

// API returns the huma API operations are registered on.
func (s *Server) API() huma.API { return s.api }

// Router returns the chi router for plain handlers.
func (s *Server) Router() *chi.Mux { return s.mux }

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.mux }

// Addr returns the configured listen address.
func (s *Server) Addr() string { return s.server.Addr }

// ListenAndServe listens on the configured address and serves until ctx is
// done.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.server.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is done, then drains in-flight
// requests for at most ShutdownTimeout. A clean shutdown returns nil.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.log.Info("http server listening", slog.String("address", ln.Addr().String()))
		if err := s.server.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serving http: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		return s.shutdown()
	})

	return g.Wait()
}

func (s *Server) shutdown() error {
	ctx := context.Background()
	if s.cfg.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
		defer cancel()
	}

	s.log.Info("http server shutting down", slog.Duration("timeout", s.cfg.ShutdownTimeout))
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down http server: %w", err)
	}
	s.log.Info("http server stopped")
	return nil
}
