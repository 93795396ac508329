// Package status is the state surface hushd exposes to UI layers.
// It carries a typed state plus a human-readable message; consumers that
// need stability should key off the state, the wording is free to change.
package status

import (
	"log/slog"
	"sync"
	"time"
)

// State identifies where the monitor and the ambient session currently are.
type State string

const (
	StateIdle      State = "idle"      // daemon up, monitoring not started
	StateWatching  State = "watching"  // listening for silence
	StateCountdown State = "countdown" // silence observed, trigger pending
	StateSettling  State = "settling"  // ambient starting, fade-in cooldown
	StatePlaying   State = "playing"   // ambient playing at full volume
	StateDucked    State = "ducked"    // external audio present, volume ducked
	StateReturning State = "returning" // silence back, unduck countdown running
	StateStopped   State = "stopped"   // monitoring ended
)

// Snapshot is one published status update.
type Snapshot struct {
	State   State     `json:"state"`
	Message string    `json:"message"`
	Err     bool      `json:"error"`
	At      time.Time `json:"at"`
}

// Reporter holds the current status and fans updates out to subscribers.
// Publishing never blocks; a slow subscriber misses intermediate updates.
type Reporter struct {
	mu      sync.RWMutex
	logger  *slog.Logger
	current Snapshot
	subs    map[chan Snapshot]struct{}
}

// NewReporter creates a Reporter in the idle state.
func NewReporter(logger *slog.Logger) *Reporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reporter{
		logger: logger,
		current: Snapshot{
			State:   StateIdle,
			Message: "Ready.",
			At:      time.Now(),
		},
		subs: make(map[chan Snapshot]struct{}),
	}
}

// Set publishes a new state and message.
func (r *Reporter) Set(state State, message string) {
	r.publish(Snapshot{State: state, Message: message, At: time.Now()})
}

// SetError publishes an operation failure. The state is kept so consumers
// still know where the monitor is.
func (r *Reporter) SetError(message string) {
	r.mu.RLock()
	state := r.current.State
	r.mu.RUnlock()
	r.publish(Snapshot{State: state, Message: message, Err: true, At: time.Now()})
}

// Current returns the latest snapshot.
func (r *Reporter) Current() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current
}

// Subscribe registers a new subscriber channel. The current snapshot is
// delivered immediately.
func (r *Reporter) Subscribe() chan Snapshot {
	ch := make(chan Snapshot, 16)

	r.mu.Lock()
	r.subs[ch] = struct{}{}
	ch <- r.current
	r.mu.Unlock()

	return ch
}

// Unsubscribe removes a subscriber channel.
func (r *Reporter) Unsubscribe(ch chan Snapshot) {
	r.mu.Lock()
	delete(r.subs, ch)
	r.mu.Unlock()
}

func (r *Reporter) publish(s Snapshot) {
	r.mu.Lock()
	changed := r.current.State != s.State || r.current.Message != s.Message || r.current.Err != s.Err
	r.current = s
	subs := make([]chan Snapshot, 0, len(r.subs))
	for ch := range r.subs {
		subs = append(subs, ch)
	}
	r.mu.Unlock()

	if !changed {
		return
	}

	r.logger.Debug("status", "state", s.State, "message", s.Message, "error", s.Err)

	for _, ch := range subs {
		select {
		case ch <- s:
		default:
		}
	}
}
