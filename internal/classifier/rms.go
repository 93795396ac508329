package classifier

import (
	"math"
	"sync"
)

// WindowCapacity bounds how many recent RMS samples are kept per instance.
const WindowCapacity = 10

// MinSamples is how many RMS samples a window needs before its verdict counts.
const MinSamples = 3

// RMS computes the root mean square of normalized 16-bit PCM samples.
func RMS(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		v := float64(s) / 32768.0
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// Window is a bounded FIFO of recent RMS values. Safe for concurrent use:
// capture callbacks append while the monitor thread reads.
type Window struct {
	mu     sync.Mutex
	values []float64
}

// NewWindow creates an empty window.
func NewWindow() *Window {
	return &Window{values: make([]float64, 0, WindowCapacity)}
}

// Append adds a value, evicting the oldest once at capacity.
func (w *Window) Append(v float64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.values) == WindowCapacity {
		copy(w.values, w.values[1:])
		w.values = w.values[:WindowCapacity-1]
	}
	w.values = append(w.values, v)
}

// Count returns how many values the window holds.
func (w *Window) Count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.values)
}

// Mean returns the mean of the held values, 0 when empty.
func (w *Window) Mean() float64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range w.values {
		sum += v
	}
	return sum / float64(len(w.values))
}
