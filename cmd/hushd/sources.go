package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/hushd/internal/config"
	"github.com/jmylchreest/hushd/internal/source"
)

var sourcesOpts struct {
	jsonOutput bool
	all        bool
}

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List the audio sources hushd currently sees",
	Long: `List the application audio sessions visible to the silence monitor.

By default only audible sources are shown; use --all to include sessions
that are registered but currently silent (paused or corked). Excluded
applications from the settings file are filtered out either way.`,
	RunE: runSources,
}

func init() {
	rootCmd.AddCommand(sourcesCmd)

	sourcesCmd.Flags().BoolVar(&sourcesOpts.jsonOutput, "json", false,
		"Output as JSON")
	sourcesCmd.Flags().BoolVar(&sourcesOpts.all, "all", false,
		"Include silent sessions")
}

func runSources(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	settings, err := config.LoadSettings(settingsPath())
	if err != nil {
		logger.Warn("settings unusable, using defaults", "error", err)
		settings = config.DefaultSettings()
	}

	mpris := source.NewMPRISProbe(logger)
	defer mpris.Close()
	probe := source.NewMultiProbe(source.NewPulseProbe(logger), mpris)

	sources := probe.ActiveSources(ctx, settings.ExcludedSet())
	if !sourcesOpts.all {
		audible := sources[:0]
		for _, s := range sources {
			if s.Audible() {
				audible = append(audible, s)
			}
		}
		sources = audible
	}

	if sourcesOpts.jsonOutput {
		out := make([]map[string]any, 0, len(sources))
		for _, s := range sources {
			out = append(out, map[string]any{
				"identity": s.Identity,
				"id":       s.ID,
				"peak":     s.Peak,
				"audible":  s.Audible(),
			})
		}
		data, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}

	if len(sources) == 0 {
		fmt.Println("No audio sources found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "IDENTITY\tID\tPEAK\tAUDIBLE")
	for _, s := range sources {
		fmt.Fprintf(w, "%s\t%s\t%.3f\t%t\n", s.Identity, s.ID, s.Peak, s.Audible())
	}
	return w.Flush()
}
