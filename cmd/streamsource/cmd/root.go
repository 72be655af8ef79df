// Package cmd implements the CLI commands for streamsource.
package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/jmylchreest/streamsource/internal/config"
	"github.com/jmylchreest/streamsource/internal/observability"
	"github.com/jmylchreest/streamsource/internal/version"
)

var (
	// cfgFile holds the config file path from CLI flag.
	cfgFile string

	// appConfig and logger are populated before any subcommand runs.
	appConfig *config.Config
	logger    *slog.Logger
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:     "streamsource",
	Short:   "Adaptive streaming manifest loader and base URL resolver",
	Version: version.Short(),
	Long: `streamsource fetches DASH, HLS and Smooth Streaming presentation
documents, resolves remote inclusions, and chooses which origin each media
request should use based on priority, weight, failover history and content
steering.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		return fmt.Errorf("executing root command: %w", err)
	}
	return nil
}

func init() {
	// Set here to avoid an initialization cycle through rootCmd.PersistentFlags.
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		return initConfigAndLogging(cmd.Root().PersistentFlags())
	}

	// These flags are not bound to viper; they only override config and
	// environment values when explicitly set.
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default searches ./config.yaml, /etc/streamsource, $HOME/.streamsource)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "text", "log format (text, json)")
}

// initConfigAndLogging loads configuration and installs the default logger.
//
// Priority order (highest to lowest):
//  1. CLI flags (--log-level, --log-format), only if explicitly provided
//  2. Environment variables (STREAMSOURCE_LOGGING_LEVEL, ...)
//  3. Config file values
//  4. Built-in defaults
func initConfigAndLogging(flags *pflag.FlagSet) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if flags.Changed("log-level") {
		level, _ := flags.GetString("log-level")
		cfg.Logging.Level = strings.ToLower(level)
	}
	if flags.Changed("log-format") {
		format, _ := flags.GetString("log-format")
		cfg.Logging.Format = strings.ToLower(format)
	}
	if cfg.Logging.Level == "warning" {
		cfg.Logging.Level = "warn"
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	logger = observability.NewLoggerWithWriter(cfg.Logging, os.Stderr).
		With(slog.String("app", "streamsource"))
	observability.SetDefault(logger)
	appConfig = cfg
	return nil
}
