// Package cmd implements the CLI commands for lavacast.
package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/lavacast/lavacast/internal/config"
	"github.com/lavacast/lavacast/internal/observability"
	"github.com/lavacast/lavacast/internal/version"
)

// cfgFile holds the config file path from the CLI flag.
var cfgFile string

// cfg is the loaded configuration, populated by initConfig before any
// command runs.
var cfg *config.Config

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:     "lavacast",
	Short:   "Multi-channel multicast media broadcaster",
	Version: version.Short(),
	Long: `lavacast streams uploaded media files as numbered multicast channels.

Each channel gets a deterministic multicast address and port, media is
conditioned to broadcast-friendly MPEG-TS with ffmpeg on upload, and every
channel runs as a supervised ffmpeg child process.

Configuration is read from lavacast.config.json (searched in ., /etc/lavacast,
and $HOME/.lavacast), overridden by LAVACAST_* environment variables.
Example: streaming.base_port -> LAVACAST_STREAMING_BASE_PORT`,
}

// Execute adds all child commands to the root command and runs it.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		return fmt.Errorf("executing root command: %w", err)
	}
	return nil
}

func init() {
	// PersistentPreRunE is set here to avoid an initialization cycle
	// (initLogging references rootCmd.PersistentFlags).
	rootCmd.PersistentPreRunE = func(_ *cobra.Command, _ []string) error {
		if err := initConfig(); err != nil {
			return err
		}
		return initLogging()
	}

	// These flags are not bound to viper: we check Changed() and only then
	// override, preserving the CLI flag > env > config > default priority.
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./lavacast.config.json)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "json", "log format (text, json)")
}

// initConfig loads the configuration file and environment variables.
func initConfig() error {
	loaded, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	cfg = loaded
	return nil
}

// initLogging configures the process-wide slog logger.
func initLogging() error {
	logCfg := cfg.Logging

	flags := rootCmd.PersistentFlags()
	logCfg.Level = flagOverride(flags, "log-level", logCfg.Level)
	logCfg.Format = flagOverride(flags, "log-format", logCfg.Format)

	logCfg.Level = strings.ToLower(logCfg.Level)
	if logCfg.Level == "warning" {
		logCfg.Level = "warn"
	}
	logCfg.Format = strings.ToLower(logCfg.Format)

	logger := observability.NewLogger(logCfg)
	observability.SetDefault(logger)
	return nil
}

// flagOverride returns the flag value when the user set it explicitly,
// otherwise current. Unchanged flags never shadow config or env values.
func flagOverride(fs *pflag.FlagSet, name, current string) string {
	if fs.Changed(name) {
		v, _ := fs.GetString(name)
		return v
	}
	return current
}
