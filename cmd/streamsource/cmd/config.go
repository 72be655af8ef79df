package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/streamsource/internal/config"
	"github.com/jmylchreest/streamsource/internal/observability"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management commands",
	Long:  `Commands for managing streamsource configuration.`,
}

var configDumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Dump the default configuration",
	Long: `Dump the default configuration values in YAML format.

This shows all available configuration options with their default values.
You can redirect this output to a file to create a configuration template:

  streamsource config dump > config.yaml

Configuration can be set via:
  - Config file (config.yaml, /etc/streamsource/config.yaml, $HOME/.streamsource/config.yaml)
  - Environment variables (STREAMSOURCE_SERVER_PORT, STREAMSOURCE_BLACKLIST_BACKEND, etc.)
  - Command-line flags (for some options)

Environment variables use the STREAMSOURCE_ prefix and underscores for nesting.
Example: blacklist.redis.addr -> STREAMSOURCE_BLACKLIST_REDIS_ADDR`,
	RunE: runConfigDump,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Long:  `Show the configuration after applying the config file and environment. Secrets are masked.`,
	RunE:  runConfigShow,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configDumpCmd)
	configCmd.AddCommand(configShowCmd)
}

const configHeader = `# streamsource Configuration File
# ================================
#
# Duration format: 500ms, 30s, 5m
# Size format: 32MiB, 10MB, raw byte counts
#
`

func runConfigDump(cmd *cobra.Command, args []string) error {
	out, err := config.DefaultsYAML()
	if err != nil {
		return err
	}
	w := cmd.OutOrStdout()
	fmt.Fprint(w, configHeader)
	fmt.Fprintln(w, "# All values shown below are defaults.")
	fmt.Fprintln(w)
	_, err = w.Write(out)
	return err
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg := *appConfig
	if cfg.Blacklist.Redis.Password != "" {
		cfg.Blacklist.Redis.Password = observability.RedactedValue
	}
	out, err := cfg.YAML()
	if err != nil {
		return err
	}
	_, err = cmd.OutOrStdout().Write(out)
	return err
}
