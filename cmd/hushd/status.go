package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/hushd/internal/status"
)

var statusOpts struct {
	addr string
}

// WaybarStatus represents the Waybar custom module JSON format.
type WaybarStatus struct {
	Text    string `json:"text"`
	Alt     string `json:"alt,omitempty"`
	Tooltip string `json:"tooltip,omitempty"`
	Class   string `json:"class,omitempty"`
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Output Waybar-compatible JSON status",
	Long: `Query a running daemon's status server and output it in Waybar's
custom module JSON format.

This is designed to be used with Waybar's custom module:

  "custom/hushd": {
    "exec": "hushd status",
    "interval": 5,
    "return-type": "json"
  }

The daemon must be running with the status server enabled.`,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().StringVar(&statusOpts.addr, "addr", "",
		"Status server address (default: from daemon config)")
}

func runStatus(cmd *cobra.Command, args []string) error {
	addr := statusOpts.addr
	if addr == "" {
		addr = daemonCfg.Server.Listen
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+addr+"/api/status", nil)
	if err != nil {
		return err
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return outputStatus(WaybarStatus{Text: "off", Alt: "offline", Class: "offline"})
	}
	defer resp.Body.Close()

	var snapshot status.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snapshot); err != nil {
		return outputStatus(WaybarStatus{Text: "err", Alt: "error", Class: "error"})
	}

	class := string(snapshot.State)
	if snapshot.Err {
		class = "error"
	}
	return outputStatus(WaybarStatus{
		Text:    string(snapshot.State),
		Alt:     class,
		Tooltip: snapshot.Message,
		Class:   class,
	})
}

func outputStatus(s WaybarStatus) error {
	return json.NewEncoder(os.Stdout).Encode(s)
}
