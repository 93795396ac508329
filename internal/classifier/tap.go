package classifier

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
)

// CaptureTap streams raw PCM from one application audio stream.
type CaptureTap interface {
	// Start begins capture. onBuffer is invoked for every PCM chunk read;
	// onError is invoked once if the capture fails mid-stream.
	Start(onBuffer func(samples []int16), onError func(error)) error
	// Stop tears the capture down. Safe to call more than once.
	Stop()
}

// TapFactory creates a tap for one source instance.
type TapFactory func(instanceID string) CaptureTap

// ParecTap captures a sink input's stream through parec. One short-lived
// parec process per tracked instance.
type ParecTap struct {
	logger     *slog.Logger
	instanceID string
	parecPath  string

	cancel context.CancelFunc
}

// NewParecTap returns a TapFactory producing parec-backed taps.
func NewParecTap(logger *slog.Logger) TapFactory {
	if logger == nil {
		logger = slog.Default()
	}
	return func(instanceID string) CaptureTap {
		return &ParecTap{
			logger:     logger,
			instanceID: instanceID,
			parecPath:  "parec",
		}
	}
}

// Start implements CaptureTap.
func (t *ParecTap) Start(onBuffer func(samples []int16), onError func(error)) error {
	ctx, cancel := context.WithCancel(context.Background())
	t.cancel = cancel

	cmd := exec.CommandContext(ctx, t.parecPath,
		"--format=s16le",
		"--rate=44100",
		"--channels=1",
		"--monitor-stream="+t.instanceID,
	)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("failed to open parec pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return fmt.Errorf("failed to start parec: %w", err)
	}

	go t.read(ctx, cmd, stdout, onBuffer, onError)
	return nil
}

// read drains parec output, converting each chunk to samples.
func (t *ParecTap) read(ctx context.Context, cmd *exec.Cmd, r io.Reader, onBuffer func([]int16), onError func(error)) {
	defer func() { _ = cmd.Wait() }()

	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		if n > 1 {
			onBuffer(decodePCM(buf[:n]))
		}
		if err != nil {
			// A cancelled tap is a normal teardown, not a capture failure.
			if ctx.Err() == nil && onError != nil {
				onError(err)
			}
			return
		}
	}
}

// Stop implements CaptureTap.
func (t *ParecTap) Stop() {
	if t.cancel != nil {
		t.cancel()
	}
}

// decodePCM converts little-endian s16le bytes to samples, dropping a
// trailing odd byte.
func decodePCM(data []byte) []int16 {
	samples := make([]int16, len(data)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(data[2*i:]))
	}
	return samples
}
