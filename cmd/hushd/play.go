package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/hushd/internal/config"
	"github.com/jmylchreest/hushd/internal/engine"
	"github.com/jmylchreest/hushd/internal/playback"
	"github.com/jmylchreest/hushd/internal/status"
)

var playCmd = &cobra.Command{
	Use:   "play",
	Short: "Play the configured ambient sound once, without monitoring",
	Long: `Play the configured ambient target directly, with the same fade-in,
volume and loop behavior the monitor would use. Useful for checking a
settings file before leaving the daemon unattended.

Press Ctrl+C to stop.`,
	RunE: runPlay,
}

func init() {
	rootCmd.AddCommand(playCmd)
}

func runPlay(cmd *cobra.Command, args []string) error {
	settings, err := config.LoadSettings(settingsPath())
	if err != nil {
		return err
	}
	store := config.NewStore(settings)
	reporter := status.NewReporter(logger)

	backend := playback.NewBeepBackend(logger)
	defer backend.Close()
	eng := engine.New(backend, store, reporter, logger)

	if err := eng.Play(); err != nil {
		return err
	}
	fmt.Println("Playing. Press Ctrl+C to stop.")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	ticker := time.NewTicker(300 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			eng.Stop()
			return nil
		case <-ticker.C:
			if !eng.Active() {
				if eng.ConsumeEnd() == engine.EndedError {
					return fmt.Errorf("playback failed: %s", reporter.Current().Message)
				}
				return nil
			}
		}
	}
}
