package engine

import (
	"context"
	"time"

	"github.com/jmylchreest/hushd/internal/playback"
)

// Ramp step counts. Fades use a fixed 50-step schedule spread over the
// configured fade duration; ducking always uses 20 steps of 50ms so it
// stays smooth regardless of the fade toggle.
const (
	fadeSteps       = 50
	duckSteps       = 20
	defaultDuckStep = 50 * time.Millisecond
)

// runRamp linearly moves the backend volume from its current level to
// target over the given schedule. The liveness check runs before every
// volume write so a stop lands within one step. Returns false if the
// ramp was cancelled before completing.
func runRamp(ctx context.Context, b playback.Backend, target, steps int, stepInterval time.Duration, alive func() bool) bool {
	from := b.Volume()

	for i := 1; i <= steps; i++ {
		if ctx.Err() != nil || !alive() {
			return false
		}

		b.SetVolume(from + (target-from)*i/steps)

		if i == steps {
			break
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(stepInterval):
		}
	}
	return true
}
