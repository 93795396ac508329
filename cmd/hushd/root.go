// Package main provides the CLI entrypoint for hushd.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/hushd/internal/config"
)

// Build-time variables (set via ldflags)
var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

// Global configuration and state
var (
	daemonCfg  *config.DaemonConfig
	globalOpts struct {
		verbose      bool
		configPath   string
		settingsPath string
	}
	logger *slog.Logger
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "hushd",
	Short: "Ambient sound daemon that fills silence on Linux desktops",
	Long: `hushd watches the desktop's audio sessions and plays a configured
ambient sound whenever everything else has been silent for a while. When
another application starts playing again the ambient sound is lowered or
faded out.

Run 'hushd run' to start monitoring.`,
	Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildTime),
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		setupLogger()

		var err error
		daemonCfg, err = config.LoadDaemonConfig(globalOpts.configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		if daemonCfg.Log.Level != "" && !globalOpts.verbose {
			applyLogLevel(daemonCfg.Log.Level)
		}
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&globalOpts.verbose, "verbose", "v", false,
		"Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&globalOpts.configPath, "config", "",
		"Path to daemon config file (default: ~/.config/hushd/hushd.toml)")
	rootCmd.PersistentFlags().StringVar(&globalOpts.settingsPath, "settings", "",
		"Path to operator settings file (default: ~/.config/hushd/settings.json)")
}

// setupLogger configures the global slog logger.
func setupLogger() {
	level := slog.LevelWarn
	if globalOpts.verbose {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	// Log to stderr so stdout is clean for output
	handler := slog.NewTextHandler(os.Stderr, opts)
	logger = slog.New(handler)
	slog.SetDefault(logger)
}

// applyLogLevel rebuilds the logger at the configured level.
func applyLogLevel(name string) {
	var level slog.Level
	switch name {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return
	}

	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	logger = slog.New(handler)
	slog.SetDefault(logger)
}

// settingsPath returns the operator settings path honoring the flag.
func settingsPath() string {
	if globalOpts.settingsPath != "" {
		return globalOpts.settingsPath
	}
	if daemonCfg != nil && daemonCfg.Settings.Path != "" {
		return daemonCfg.Settings.Path
	}
	return config.SettingsPath()
}

// journalPath returns the journal path honoring the daemon config.
func journalPath() string {
	if daemonCfg != nil && daemonCfg.Journal.Path != "" {
		return daemonCfg.Journal.Path
	}
	return config.JournalPath()
}
