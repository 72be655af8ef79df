package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/jmylchreest/streamsource/internal/manifest"
	"github.com/jmylchreest/streamsource/internal/observability"
	"github.com/jmylchreest/streamsource/internal/session"
)

var loadCmd = &cobra.Command{
	Use:   "load <url>",
	Short: "Load a manifest and print where its media resolves to",
	Long: `Load a presentation document, wait until it has been parsed and its
remote inclusions resolved, then print a summary including the base URL every
representation currently resolves to.

Relative URLs are resolved against manifest.document_location (default: the
working directory), so local files can be loaded by path.`,
	Args: cobra.ExactArgs(1),
	RunE: runLoad,
}

func init() {
	rootCmd.AddCommand(loadCmd)

	loadCmd.Flags().StringP("output", "o", "yaml", "output format (yaml, json)")
	loadCmd.Flags().Duration("timeout", 0, "overall wait for the manifest (default manifest.request_timeout plus xlink.timeout)")
	loadCmd.Flags().String("service-location", "", "service location the request is attributed to")
	loadCmd.Flags().StringToString("query", nil, "query parameters appended to the request URL (key=value)")
	loadCmd.Flags().StringSlice("blacklist", nil, "entries to blacklist before resolving (service location or URL)")
}

func runLoad(cmd *cobra.Command, args []string) (err error) {
	output, _ := cmd.Flags().GetString("output")
	if output != "yaml" && output != "json" {
		return fmt.Errorf("unsupported output format %q", output)
	}

	cfg := *appConfig
	cfg.Refresh.Enabled = false

	timeout, _ := cmd.Flags().GetDuration("timeout")
	if timeout <= 0 {
		timeout = cfg.Manifest.RequestTimeout + cfg.Xlink.Timeout
	}

	var opts []manifest.RequestOption
	if sl, _ := cmd.Flags().GetString("service-location"); sl != "" {
		opts = append(opts, manifest.WithServiceLocation(sl))
	}
	if q, _ := cmd.Flags().GetStringToString("query"); len(q) > 0 {
		opts = append(opts, manifest.WithQueryParams(q))
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	sess, _, err := newSession(ctx, &cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = sess.Close() }()

	defer observability.Timed(ctx, logger.With(slog.String("url", args[0])), "load_manifest", &err)()

	m, err := sess.LoadAndWait(ctx, args[0], opts...)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("loading %s: timed out after %s", args[0], timeout)
		}
		return fmt.Errorf("loading %s: %w", args[0], err)
	}
	if m == nil {
		return fmt.Errorf("loading %s: no content", args[0])
	}
	logger.Debug("manifest loaded",
		slog.String("url", m.URL),
		slog.String("dialect", m.Dialect))

	entries, _ := cmd.Flags().GetStringSlice("blacklist")
	for _, entry := range entries {
		// Key() is the service location when set, so the entry is used verbatim.
		sess.ReportFailure(&manifest.BaseURL{ServiceLocation: entry})
	}

	return writeSummary(cmd.OutOrStdout(), sess.Summary(), output)
}

func writeSummary(w io.Writer, sum *session.Summary, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(sum); err != nil {
			return fmt.Errorf("encoding summary: %w", err)
		}
	default:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(sum); err != nil {
			return fmt.Errorf("encoding summary: %w", err)
		}
		if err := enc.Close(); err != nil {
			return fmt.Errorf("encoding summary: %w", err)
		}
	}
	return nil
}
