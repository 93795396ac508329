package playback

import (
	"fmt"
	"log/slog"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/effects"
	"github.com/gopxl/beep/v2/flac"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/speaker"
	"github.com/gopxl/beep/v2/vorbis"
	"github.com/gopxl/beep/v2/wav"
)

// speakerRate is the fixed output sample rate; tracks with a different
// rate are resampled on the fly.
const speakerRate = beep.SampleRate(44100)

// BeepBackend implements Backend on the beep speaker.
type BeepBackend struct {
	mu     sync.Mutex
	logger *slog.Logger

	// Whether speaker has been initialized
	initialized bool

	// Current track
	streamer beep.StreamSeekCloser
	format   beep.Format
	file     *os.File
	tempWav  string // ffmpeg-transcoded intermediate, removed on unload
	volume   *effects.Volume

	// ffmpeg binary for the transcode fallback, overridable for tests
	ffmpegPath string

	loaded bool
	level  int // 0-100

	// playing is atomic: the end-of-track callback flips it from inside
	// the speaker's own mixing goroutine, which must never contend on mu.
	playing atomic.Bool
}

// NewBeepBackend creates a backend. The speaker is initialized lazily on
// the first Load.
func NewBeepBackend(logger *slog.Logger) *BeepBackend {
	if logger == nil {
		logger = slog.Default()
	}
	return &BeepBackend{
		logger:     logger,
		ffmpegPath: "ffmpeg",
		level:      100,
	}
}

// Load implements Backend.
func (b *BeepBackend) Load(path string) error {
	if !IsSupported(path) {
		return fmt.Errorf("unsupported audio format: %s", filepath.Ext(path))
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.unloadLocked()

	openPath := path
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".opus", ".m4a", ".mp4":
		tmp, err := b.transcode(path)
		if err != nil {
			return err
		}
		b.tempWav = tmp
		openPath = tmp
		ext = ".wav"
	}

	f, err := os.Open(openPath)
	if err != nil {
		return fmt.Errorf("failed to open media file: %w", err)
	}

	var streamer beep.StreamSeekCloser
	var format beep.Format

	switch ext {
	case ".mp3":
		streamer, format, err = mp3.Decode(f)
	case ".flac":
		streamer, format, err = flac.Decode(f)
	case ".ogg":
		streamer, format, err = vorbis.Decode(f)
	case ".wav":
		streamer, format, err = wav.Decode(f)
	}
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to decode media: %w", err)
	}

	if err := b.ensureInitializedLocked(); err != nil {
		_ = streamer.Close()
		_ = f.Close()
		return err
	}

	b.streamer = streamer
	b.format = format
	b.file = f
	b.loaded = true
	b.logger.Debug("media loaded", "path", path, "sample_rate", format.SampleRate)
	return nil
}

// Play implements Backend.
func (b *BeepBackend) Play() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.loaded {
		return fmt.Errorf("no media loaded")
	}
	if b.playing.Load() {
		return nil
	}

	var stream beep.Streamer = b.streamer
	if b.format.SampleRate != speakerRate {
		stream = beep.Resample(4, b.format.SampleRate, speakerRate, stream)
	}

	b.volume = &effects.Volume{
		Streamer: stream,
		Base:     2,
		Volume:   volumeExponent(b.level),
		Silent:   b.level == 0,
	}
	b.playing.Store(true)

	speaker.Play(beep.Seq(b.volume, beep.Callback(func() {
		b.playing.Store(false)
	})))
	return nil
}

// Stop implements Backend.
func (b *BeepBackend) Stop() {
	if b.playing.Swap(false) {
		speaker.Clear()
	}
}

// Seek implements Backend.
func (b *BeepBackend) Seek(seconds float64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.loaded {
		return fmt.Errorf("no media loaded")
	}

	n := b.format.SampleRate.N(time.Duration(seconds * float64(time.Second)))
	if n < 0 {
		n = 0
	}
	if l := b.streamer.Len(); n >= l {
		n = l - 1
	}

	speaker.Lock()
	err := b.streamer.Seek(n)
	speaker.Unlock()
	if err != nil {
		return fmt.Errorf("seek failed: %w", err)
	}
	return nil
}

// SetVolume implements Backend.
func (b *BeepBackend) SetVolume(volume int) {
	if volume < 0 {
		volume = 0
	}
	if volume > 100 {
		volume = 100
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.level = volume
	if b.volume == nil {
		return
	}

	speaker.Lock()
	b.volume.Volume = volumeExponent(volume)
	b.volume.Silent = volume == 0
	speaker.Unlock()
}

// Volume implements Backend.
func (b *BeepBackend) Volume() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.level
}

// IsPlaying implements Backend.
func (b *BeepBackend) IsPlaying() bool {
	return b.playing.Load()
}

// Position implements Backend.
func (b *BeepBackend) Position() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.loaded {
		return 0
	}

	speaker.Lock()
	pos := b.streamer.Position()
	speaker.Unlock()

	return float64(pos) / float64(b.format.SampleRate)
}

// Close stops playback and releases resources.
func (b *BeepBackend) Close() {
	b.Stop()

	b.mu.Lock()
	defer b.mu.Unlock()

	b.unloadLocked()
	if b.initialized {
		speaker.Close()
		b.initialized = false
	}
}

// ensureInitializedLocked initializes the speaker if not already done.
func (b *BeepBackend) ensureInitializedLocked() error {
	if b.initialized {
		return nil
	}

	// A modest buffer keeps volume ramps responsive.
	bufferSize := speakerRate.N(100 * time.Millisecond)
	if err := speaker.Init(speakerRate, bufferSize); err != nil {
		return fmt.Errorf("failed to initialize speaker: %w", err)
	}

	b.initialized = true
	b.logger.Debug("speaker initialized", "sample_rate", speakerRate)
	return nil
}

// unloadLocked closes the current track and removes any transcode artifact.
func (b *BeepBackend) unloadLocked() {
	if b.streamer != nil {
		_ = b.streamer.Close()
		b.streamer = nil
	}
	if b.file != nil {
		_ = b.file.Close()
		b.file = nil
	}
	if b.tempWav != "" {
		_ = os.Remove(b.tempWav)
		b.tempWav = ""
	}
	b.volume = nil
	b.loaded = false
	b.playing.Store(false)
}

// transcode converts a container beep can't decode into an intermediate
// wav file via ffmpeg.
func (b *BeepBackend) transcode(path string) (string, error) {
	tmp, err := os.CreateTemp("", "hushd-*.wav")
	if err != nil {
		return "", fmt.Errorf("failed to create transcode target: %w", err)
	}
	_ = tmp.Close()

	cmd := exec.Command(b.ffmpegPath, "-y", "-v", "quiet", "-i", path, "-f", "wav", tmp.Name())
	if err := cmd.Run(); err != nil {
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("ffmpeg transcode failed: %w", err)
	}
	return tmp.Name(), nil
}

// volumeExponent maps a 0-100 level onto the effects.Volume exponent
// (base 2), giving a logarithmic loudness curve.
func volumeExponent(level int) float64 {
	if level <= 0 {
		return -10
	}
	return math.Log2(float64(level) / 100)
}
