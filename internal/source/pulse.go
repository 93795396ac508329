package source

import (
	"context"
	"encoding/json"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
)

// PulseProbe enumerates PulseAudio/PipeWire sink inputs via pactl.
// A sink input that isn't corked has an active stream feeding the output,
// which is the closest per-process signal to "this app is emitting sound"
// the server exposes without opening a record stream per app.
type PulseProbe struct {
	logger *slog.Logger

	// pactl binary, overridable for tests
	pactlPath string
}

// NewPulseProbe creates a pactl-backed probe.
func NewPulseProbe(logger *slog.Logger) *PulseProbe {
	if logger == nil {
		logger = slog.Default()
	}
	return &PulseProbe{logger: logger, pactlPath: "pactl"}
}

// sinkInput mirrors the fields of `pactl -f json list sink-inputs` we use.
type sinkInput struct {
	Index      int               `json:"index"`
	Corked     bool              `json:"corked"`
	Properties map[string]string `json:"properties"`
}

// ActiveSources implements Probe. Any pactl or parse failure is swallowed
// and reported as an empty tick.
func (p *PulseProbe) ActiveSources(ctx context.Context, excluded map[string]struct{}) []Source {
	cmd := exec.CommandContext(ctx, p.pactlPath, "-f", "json", "list", "sink-inputs")
	out, err := cmd.Output()
	if err != nil {
		p.logger.Debug("pulse probe failed", "error", err)
		return nil
	}
	return parseSinkInputs(p.logger, out, excluded)
}

// parseSinkInputs converts pactl JSON output into qualifying sources.
func parseSinkInputs(logger *slog.Logger, data []byte, excluded map[string]struct{}) []Source {
	var inputs []sinkInput
	if err := json.Unmarshal(data, &inputs); err != nil {
		logger.Debug("pulse probe: unparseable pactl output", "error", err)
		return nil
	}

	var out []Source
	for _, in := range inputs {
		identity := sinkInputIdentity(in.Properties)
		if excludedIdentity(identity, excluded) {
			continue
		}

		peak := 1.0
		if in.Corked {
			peak = 0
		}

		out = append(out, Source{
			Identity: identity,
			ID:       strconv.Itoa(in.Index),
			Peak:     peak,
		})
	}
	return out
}

// sinkInputIdentity picks the most specific application identity available.
func sinkInputIdentity(props map[string]string) string {
	for _, key := range []string{"application.process.binary", "application.name"} {
		if v := props[key]; v != "" {
			return strings.ToLower(v)
		}
	}
	return ""
}
