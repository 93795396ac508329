package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/jmylchreest/hushd/internal/classifier"
	"github.com/jmylchreest/hushd/internal/config"
	"github.com/jmylchreest/hushd/internal/engine"
	"github.com/jmylchreest/hushd/internal/journal"
	"github.com/jmylchreest/hushd/internal/monitor"
	"github.com/jmylchreest/hushd/internal/playback"
	"github.com/jmylchreest/hushd/internal/server"
	"github.com/jmylchreest/hushd/internal/source"
	"github.com/jmylchreest/hushd/internal/status"
	"github.com/jmylchreest/hushd/internal/tui"
)

var runOpts struct {
	tui bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start monitoring and fill silence with ambient sound",
	Long: `Start the silence monitor. hushd polls the active audio sessions and,
once everything has been silent for the configured window, fades in the
ambient sound. It ducks or stops again when other audio returns.

With --tui a live status dashboard is shown; quitting the dashboard
stops the daemon.`,
	RunE: runDaemon,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().BoolVar(&runOpts.tui, "tui", false,
		"Show the interactive status dashboard")
}

func runDaemon(cmd *cobra.Command, args []string) error {
	if err := config.EnsureDataDir(); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	settings, err := config.LoadSettings(settingsPath())
	if err != nil {
		logger.Warn("settings unusable, starting with defaults", "error", err)
		settings = config.DefaultSettings()
	}
	store := config.NewStore(settings)

	watcher, err := config.NewSettingsWatcher(store, settingsPath(), logger)
	if err != nil {
		logger.Warn("settings hot-reload unavailable", "error", err)
	} else {
		if err := watcher.Start(); err != nil {
			logger.Warn("settings hot-reload unavailable", "error", err)
		} else {
			defer watcher.Stop()
		}
	}

	var j *journal.Journal
	if daemonCfg.Journal.Enabled {
		j, err = journal.Open(journalPath(), logger)
		if err != nil {
			logger.Warn("event journal unavailable", "error", err)
		} else {
			defer j.Close()
		}
	}

	reporter := status.NewReporter(logger)

	backend := playback.NewBeepBackend(logger)
	defer backend.Close()
	eng := engine.New(backend, store, reporter, logger)

	mpris := source.NewMPRISProbe(logger)
	defer mpris.Close()
	probe := source.NewMultiProbe(source.NewPulseProbe(logger), mpris)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cls := classifier.New(probe, classifier.NewParecTap(logger), logger)
	cls.Start(ctx)
	defer cls.Stop()

	opts := []monitor.Option{
		monitor.WithTick(daemonCfg.Monitor.Tick.Duration()),
		monitor.WithRealAudioChecker(cls),
	}
	if j != nil {
		opts = append(opts, monitor.WithRecorder(j))
	}
	mon := monitor.New(probe, eng, store, reporter, logger, opts...)

	if daemonCfg.Server.Enabled {
		srv := server.New(daemonCfg.Server.Listen, reporter, j, logger)
		srv.Start()
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			srv.Shutdown(shutdownCtx)
		}()
	}

	logger.Info("hushd starting", "version", version, "settings", settingsPath())
	mon.Start(ctx)
	defer mon.Stop()

	if runOpts.tui {
		program := tea.NewProgram(tui.New(reporter, store, j), tea.WithAltScreen())
		go func() {
			<-ctx.Done()
			program.Quit()
		}()
		if _, err := program.Run(); err != nil {
			return fmt.Errorf("dashboard failed: %w", err)
		}
		return nil
	}

	<-ctx.Done()
	logger.Info("hushd shutting down")
	return nil
}
