// Package source enumerates external applications that are currently
// producing audible output. Probes are best-effort: any failure is
// swallowed and surfaced as an empty result so a flaky enumeration can
// never crash the silence monitor.
package source

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// PeakThreshold is the minimum peak level for a session to count as
// actually playing.
const PeakThreshold = 0.001

// Source is one application audio session observed during a poll tick.
// Sources are ephemeral and re-derived on every tick.
type Source struct {
	// Identity is the application identity (process/binary name, lowercase).
	Identity string
	// ID is an opaque per-instance identifier (pid, sink-input index or
	// bus name), stable only while the instance lives.
	ID string
	// Peak is the reported peak level in [0,1].
	Peak float64
}

// Audible reports whether the source's peak clears the qualifying threshold.
func (s Source) Audible() bool {
	return s.Peak > PeakThreshold
}

// Probe enumerates active audio sessions.
type Probe interface {
	// ActiveSources returns the sessions currently emitting audio, minus
	// the excluded identities and the calling process's own identity.
	// Failures must be swallowed and returned as an empty slice.
	ActiveSources(ctx context.Context, excluded map[string]struct{}) []Source
}

// ownIdentity is the process name probes always exclude, so that hushd's
// own ambient playback never counts as external audio.
var ownIdentity = strings.ToLower(filepath.Base(os.Args[0]))

// excludedIdentity reports whether an identity must be filtered out.
func excludedIdentity(identity string, excluded map[string]struct{}) bool {
	if identity == "" || identity == ownIdentity {
		return true
	}
	_, ok := excluded[identity]
	return ok
}

// MultiProbe unions the results of several probes, de-duplicating on
// identity+instance.
type MultiProbe struct {
	probes []Probe
}

// NewMultiProbe creates a probe that merges the given probes.
func NewMultiProbe(probes ...Probe) *MultiProbe {
	return &MultiProbe{probes: probes}
}

// ActiveSources implements Probe.
func (m *MultiProbe) ActiveSources(ctx context.Context, excluded map[string]struct{}) []Source {
	seen := make(map[string]struct{})
	var out []Source

	for _, p := range m.probes {
		for _, s := range p.ActiveSources(ctx, excluded) {
			key := s.Identity + "\x00" + s.ID
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, s)
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Identity < out[j].Identity })
	return out
}

// Identities returns the distinct identities of the given sources, in order.
func Identities(sources []Source) []string {
	seen := make(map[string]struct{}, len(sources))
	var out []string
	for _, s := range sources {
		if _, dup := seen[s.Identity]; dup {
			continue
		}
		seen[s.Identity] = struct{}{}
		out = append(out, s.Identity)
	}
	return out
}
