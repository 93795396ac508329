// Package playback wraps a single-track audio output device.
// The engine treats it as the one current-track backend: load a file,
// play/stop it, seek, and set output volume 0-100.
package playback

import (
	"path/filepath"
	"strings"
)

// Backend is the playback device the ambient engine drives.
type Backend interface {
	// Load prepares a media file for playback, replacing any current track.
	Load(path string) error
	// Play starts the loaded track.
	Play() error
	// Stop halts playback. Safe to call when nothing is playing.
	Stop()
	// Seek jumps to an offset in seconds within the current track.
	// Only defined once the backend has confirmed active playback.
	Seek(seconds float64) error
	// SetVolume sets output volume, clamped to 0-100.
	SetVolume(volume int)
	// Volume returns the current output volume 0-100.
	Volume() int
	// IsPlaying reports whether the current track is still playing.
	IsPlaying() bool
	// Position returns the playback offset in seconds.
	Position() float64
}

// supportedExtensions are the media types the backend accepts. mp3, flac,
// ogg and wav decode natively; opus, m4a and mp4 go through ffmpeg.
var supportedExtensions = map[string]struct{}{
	".mp3":  {},
	".opus": {},
	".m4a":  {},
	".flac": {},
	".mp4":  {},
	".ogg":  {},
	".wav":  {},
}

// IsSupported reports whether the file extension is a playable media type.
func IsSupported(path string) bool {
	_, ok := supportedExtensions[strings.ToLower(filepath.Ext(path))]
	return ok
}
