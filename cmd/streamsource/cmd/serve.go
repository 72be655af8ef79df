package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	internalhttp "github.com/jmylchreest/streamsource/internal/http"
	"github.com/jmylchreest/streamsource/internal/version"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the streamsource inspection server",
	Long: `Start an HTTP API around a single session.

The server provides:
- GET  /healthz                  service, loader and circuit breaker status
- GET  /api/v1/manifest          the current manifest with resolved base URLs
- POST /api/v1/manifest/load     load a manifest
- GET  /api/v1/resolve           resolve a representation's base URL
- POST /api/v1/blacklist         report a failed origin
- DELETE /api/v1/blacklist       clear the blacklist
- OpenAPI documentation at /docs`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("host", "", "host to bind to (default server.host)")
	serveCmd.Flags().Int("port", 0, "port to listen on (default server.port)")
	serveCmd.Flags().String("load", "", "manifest URL to load on startup")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := *appConfig
	if cmd.Flags().Changed("host") {
		cfg.Server.Host, _ = cmd.Flags().GetString("host")
	}
	if cmd.Flags().Changed("port") {
		cfg.Server.Port, _ = cmd.Flags().GetInt("port")
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sess, client, err := newSession(ctx, &cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := sess.Close(); err != nil {
			logger.Warn("closing session", slog.String("error", err.Error()))
		}
	}()

	server := internalhttp.NewServer(cfg.Server, logger, version.Version)
	server.RegisterSessionRoutes(sess, internalhttp.RouteOptions{
		Version:     version.Version,
		Client:      client,
		LoadTimeout: cfg.Manifest.RequestTimeout + cfg.Xlink.Timeout,
	})

	if url, _ := cmd.Flags().GetString("load"); url != "" {
		if err := sess.Load(url); err != nil {
			return fmt.Errorf("loading %s: %w", url, err)
		}
		logger.Info("initial manifest load started", slog.String("url", url))
	}

	return server.ListenAndServe(ctx)
}
