package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/jmylchreest/hushd/internal/journal"
)

var historyOpts struct {
	jsonOutput bool
	limit      int
	since      time.Duration
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recorded monitor transitions",
	Long: `Show the event journal: when ambient playback started, ducked,
restored and stopped. Most recent events last.`,
	RunE: runHistory,
}

var pruneOpts struct {
	keep int
}

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Trim the event journal",
	Long: `Trim the event journal, keeping only the most recent events.

Examples:
  # Keep only the 500 most recent events
  hushd prune --keep 500`,
	RunE: runPrune,
}

func init() {
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(pruneCmd)

	historyCmd.Flags().BoolVar(&historyOpts.jsonOutput, "json", false,
		"Output as JSON")
	historyCmd.Flags().IntVar(&historyOpts.limit, "limit", 0,
		"Show only the N most recent events (0=all)")
	historyCmd.Flags().DurationVar(&historyOpts.since, "since", 0,
		"Show only events newer than this age, e.g. 24h (0=all)")

	pruneCmd.Flags().IntVar(&pruneOpts.keep, "keep", 1000,
		"Keep only the N most recent events")
}

func openJournal() (*journal.Journal, error) {
	return journal.Open(journalPath(), logger)
}

func runHistory(cmd *cobra.Command, args []string) error {
	j, err := openJournal()
	if err != nil {
		return err
	}
	defer j.Close()

	events, err := j.Load()
	if err != nil {
		return err
	}
	if historyOpts.since > 0 {
		cutoff := time.Now().Add(-historyOpts.since)
		for len(events) > 0 && events[0].At.Before(cutoff) {
			events = events[1:]
		}
	}
	if historyOpts.limit > 0 && len(events) > historyOpts.limit {
		events = events[len(events)-historyOpts.limit:]
	}

	if historyOpts.jsonOutput {
		data, err := json.MarshalIndent(events, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}

	if len(events) == 0 {
		fmt.Println("No events recorded")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "WHEN\tSTATE\tDETAIL")
	for _, event := range events {
		fmt.Fprintf(w, "%s\t%s\t%s\n", humanize.Time(event.At), event.Kind, event.Detail)
	}
	return w.Flush()
}

func runPrune(cmd *cobra.Command, args []string) error {
	if pruneOpts.keep <= 0 {
		return fmt.Errorf("--keep must be positive")
	}

	j, err := openJournal()
	if err != nil {
		return err
	}
	defer j.Close()

	before, err := j.Load()
	if err != nil {
		return err
	}
	if err := j.Prune(pruneOpts.keep); err != nil {
		return err
	}

	removed := len(before) - pruneOpts.keep
	if removed < 0 {
		removed = 0
	}
	fmt.Printf("Removed %d events, kept %d\n", removed, len(before)-removed)
	return nil
}
