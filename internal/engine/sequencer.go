package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/jmylchreest/hushd/internal/playback"
)

// Sequencer holds an ordered playlist and the current position. Loop
// policy decisions stay with the engine so an operator toggling the
// policy mid-playback takes effect without a restart; the sequencer only
// maintains the invariant 0 <= index <= len(tracks), where index ==
// len(tracks) means the sequence is exhausted.
type Sequencer struct {
	tracks []string
	index  int
}

// ScanFolder returns the supported media files directly inside folder,
// sorted lexicographically.
func ScanFolder(folder string) ([]string, error) {
	entries, err := os.ReadDir(folder)
	if err != nil {
		return nil, fmt.Errorf("failed to read playlist folder: %w", err)
	}

	var tracks []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if playback.IsSupported(entry.Name()) {
			tracks = append(tracks, filepath.Join(folder, entry.Name()))
		}
	}

	sort.Strings(tracks)
	return tracks, nil
}

// NewSequencer creates a sequencer over the given tracks, positioned at
// the first one.
func NewSequencer(tracks []string) *Sequencer {
	return &Sequencer{tracks: tracks}
}

// Len returns the number of tracks.
func (s *Sequencer) Len() int {
	return len(s.tracks)
}

// Exhausted reports whether the sequence has run past its last track.
func (s *Sequencer) Exhausted() bool {
	return s.index >= len(s.tracks)
}

// Current returns the track at the current position.
func (s *Sequencer) Current() string {
	return s.tracks[s.index]
}

// Index returns the current position.
func (s *Sequencer) Index() int {
	return s.index
}

// Advance moves to the next position. Advancing past the last track
// leaves the sequencer exhausted rather than wrapping; wrapping is the
// loop policy's call.
func (s *Sequencer) Advance() {
	if s.index < len(s.tracks) {
		s.index++
	}
}

// Rewind returns to the first track.
func (s *Sequencer) Rewind() {
	s.index = 0
}
