// Package config handles daemon configuration and operator settings.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Playback mode selects between a single ambient file and a folder playlist.
const (
	ModeSingle   = "single"
	ModePlaylist = "playlist"
)

// Single-file loop policies.
const (
	SingleLoop = "loop" // replay the file indefinitely
	SingleStop = "stop" // end the session when the track ends
)

// Playlist loop policies.
const (
	PlaylistLoopSong = "loop_song"     // restart the current track on end
	PlaylistStop     = "stop"          // end the session when the track ends
	PlaylistLoopAll  = "loop_playlist" // advance, wrapping to the first track
)

// Default operator settings.
const (
	DefaultSilenceSeconds = 30
	DefaultMaxVolume      = 80
)

// FadeDuration is the ramp length used for fade-in, fade-out and unduck
// when fades are enabled. FadeDurationInstant is used when they are not:
// short enough to be an immediate jump while keeping a single code path.
const (
	FadeDuration        = 2 * time.Second
	FadeDurationInstant = 10 * time.Millisecond
)

// validate is the shared validator instance for settings validation.
var validate = validator.New(validator.WithRequiredStructEnabled())

// Settings are the operator-facing settings shared with the GUI layer.
// The file is owned and written by that layer; hushd only reads it.
// Unknown keys are ignored and missing keys keep their defaults.
type Settings struct {
	FilePath       string `json:"mp3_path"`
	PlaylistFolder string `json:"playlist_folder"`
	SilenceSeconds int    `json:"silence_seconds" validate:"min=1,max=3600"`
	MaxVolume      int    `json:"max_volume" validate:"min=0,max=100"`
	FadeEnabled    bool   `json:"fade_enabled"`
	DuckPercent    int    `json:"duck_percent" validate:"min=0,max=100"`
	Mode           string `json:"mode" validate:"oneof=single playlist"`
	SingleLoop     string `json:"single_loop_mode" validate:"oneof=loop stop"`
	PlaylistLoop   string `json:"playlist_loop_mode" validate:"oneof=loop_song stop loop_playlist"`
	ExcludedApps   []string `json:"excluded_apps"`

	// Real-audio classification for apps that register audio sessions
	// without actually emitting sound (screen-share mirrors).
	ClassifierEnabled bool     `json:"classifier_enabled"`
	ClassifierApps    []string `json:"classifier_apps"`
}

// DefaultSettings returns Settings with default values.
func DefaultSettings() *Settings {
	return &Settings{
		SilenceSeconds: DefaultSilenceSeconds,
		MaxVolume:      DefaultMaxVolume,
		FadeEnabled:    true,
		DuckPercent:    0,
		Mode:           ModeSingle,
		SingleLoop:     SingleLoop,
		PlaylistLoop:   PlaylistLoopAll,
		ExcludedApps:   []string{},
		ClassifierApps: []string{},
	}
}

// LoadSettings loads operator settings from the specified path.
// Returns defaults if the file doesn't exist; unknown keys are ignored.
func LoadSettings(path string) (*Settings, error) {
	s := DefaultSettings()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("failed to read settings: %w", err)
	}

	// Unmarshal over the defaults so missing keys keep their default values.
	if err := json.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("failed to parse settings: %w", err)
	}

	if err := s.Validate(); err != nil {
		return nil, err
	}

	return s, nil
}

// Validate checks settings against their allowed ranges.
func (s *Settings) Validate() error {
	if err := validate.Struct(s); err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}
	return nil
}

// SilenceWindow returns the configured silence threshold as a duration.
func (s *Settings) SilenceWindow() time.Duration {
	return time.Duration(s.SilenceSeconds) * time.Second
}

// RampDuration returns the fade ramp length honoring the fade toggle.
func (s *Settings) RampDuration() time.Duration {
	if s.FadeEnabled {
		return FadeDuration
	}
	return FadeDurationInstant
}

// DuckVolume returns the duck target volume derived from DuckPercent
// and MaxVolume.
func (s *Settings) DuckVolume() int {
	return s.DuckPercent * s.MaxVolume / 100
}

// ExcludedSet returns the excluded identities as a lowercase lookup set.
func (s *Settings) ExcludedSet() map[string]struct{} {
	set := make(map[string]struct{}, len(s.ExcludedApps))
	for _, app := range s.ExcludedApps {
		set[strings.ToLower(app)] = struct{}{}
	}
	return set
}

// ClassifierSet returns the fingerprint-ambiguous identities as a
// lowercase lookup set.
func (s *Settings) ClassifierSet() map[string]struct{} {
	set := make(map[string]struct{}, len(s.ClassifierApps))
	for _, app := range s.ClassifierApps {
		set[strings.ToLower(app)] = struct{}{}
	}
	return set
}
