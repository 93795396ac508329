// Package monitor decides when ambient playback starts, ducks and stops
// based on what the rest of the desktop is doing. The decision logic is a
// pure transition function over a small state struct; the surrounding
// loop feeds it observations and applies its effects.
package monitor

import (
	"fmt"
	"time"

	"github.com/jmylchreest/hushd/internal/config"
	"github.com/jmylchreest/hushd/internal/engine"
	"github.com/jmylchreest/hushd/internal/status"
)

// settleSlack pads the post-transition cooldown beyond the fade ramp so
// the tail of our own audio can never re-trigger the countdown.
const settleSlack = 2 * time.Second

// Phase is the coarse position in the monitoring lifecycle.
type Phase int

const (
	PhaseWatching  Phase = iota // waiting for silence, ambient idle
	PhaseTriggered              // ambient session running
	PhaseStopped                // monitoring ended, nothing more to do
)

// String returns the phase name.
func (p Phase) String() string {
	switch p {
	case PhaseWatching:
		return "watching"
	case PhaseTriggered:
		return "triggered"
	case PhaseStopped:
		return "stopped"
	}
	return "unknown"
}

// State is everything the transition function carries between ticks.
// Zero time values mean "not running": SilenceStart is zero while
// external audio plays, QuietStart is zero while external audio is
// present during a ducked session.
type State struct {
	Phase         Phase
	SilenceStart  time.Time // silence countdown origin while watching
	CooldownUntil time.Time // no countdown before this instant
	Ducked        bool
	QuietStart    time.Time // unduck countdown origin while ducked
}

// Input is one tick's worth of observations.
type Input struct {
	Audible      bool // some external source is really producing audio
	EngineActive bool
	Ended        engine.EndReason
	Now          time.Time
}

// Effect is a command for the playback engine.
type Effect int

const (
	StartAmbient Effect = iota
	StopAmbient
	Duck
	Unduck
)

// String returns the effect name.
func (e Effect) String() string {
	switch e {
	case StartAmbient:
		return "start"
	case StopAmbient:
		return "stop"
	case Duck:
		return "duck"
	case Unduck:
		return "unduck"
	}
	return "unknown"
}

// Outcome is the transition function's full result: the next state, the
// engine commands to run, and what to show on the status surface.
type Outcome struct {
	State   State
	Effects []Effect
	Status  status.State
	Message string
}

// Advance computes one tick of the monitoring state machine. It reads
// nothing but its arguments and performs no I/O.
func Advance(st State, in Input, settings *config.Settings) Outcome {
	switch st.Phase {
	case PhaseTriggered:
		return advanceTriggered(st, in, settings)
	case PhaseStopped:
		return Outcome{State: st, Status: status.StateStopped, Message: "Monitoring ended"}
	default:
		return advanceWatching(st, in, settings)
	}
}

func advanceWatching(st State, in Input, settings *config.Settings) Outcome {
	if in.Audible {
		st.SilenceStart = time.Time{}
		return Outcome{State: st, Status: status.StateWatching, Message: "External audio playing"}
	}

	if in.Now.Before(st.CooldownUntil) {
		st.SilenceStart = time.Time{}
		return Outcome{State: st, Status: status.StateSettling, Message: "Settling after last transition"}
	}

	if st.SilenceStart.IsZero() {
		st.SilenceStart = in.Now
		return Outcome{State: st, Status: status.StateCountdown, Message: countdownMessage(settings.SilenceWindow())}
	}

	elapsed := in.Now.Sub(st.SilenceStart)
	if elapsed < settings.SilenceWindow() {
		return Outcome{State: st, Status: status.StateCountdown, Message: countdownMessage(settings.SilenceWindow() - elapsed)}
	}

	st.Phase = PhaseTriggered
	st.SilenceStart = time.Time{}
	st.Ducked = false
	st.QuietStart = time.Time{}
	st.CooldownUntil = in.Now.Add(settings.RampDuration() + settleSlack)
	return Outcome{
		State:   st,
		Effects: []Effect{StartAmbient},
		Status:  status.StatePlaying,
		Message: "Starting ambient sound",
	}
}

func advanceTriggered(st State, in Input, settings *config.Settings) Outcome {
	// The session finishing a stop policy is the end of the road; a
	// backend failure just hands control back to the watcher.
	if in.Ended == engine.EndedNatural {
		st.Phase = PhaseStopped
		return Outcome{State: st, Status: status.StateStopped, Message: "Ambient sound finished"}
	}
	if in.Ended == engine.EndedError || !in.EngineActive {
		st.Phase = PhaseWatching
		st.SilenceStart = time.Time{}
		st.Ducked = false
		st.QuietStart = time.Time{}
		st.CooldownUntil = in.Now.Add(settings.RampDuration() + settleSlack)
		return Outcome{State: st, Status: status.StateWatching, Message: "Watching for silence"}
	}

	if in.Audible {
		if settings.DuckPercent <= 0 {
			// Stopping tears the session down for good, so an
			// enumeration blip during our own fade-in must not count.
			// Ducking is reversible and reacts immediately.
			if in.Now.Before(st.CooldownUntil) {
				return Outcome{State: st, Status: status.StateSettling, Message: "Settling after last transition"}
			}
			st.Phase = PhaseWatching
			st.SilenceStart = time.Time{}
			st.Ducked = false
			st.QuietStart = time.Time{}
			st.CooldownUntil = in.Now.Add(settings.RampDuration() + settleSlack)
			return Outcome{
				State:   st,
				Effects: []Effect{StopAmbient},
				Status:  status.StateWatching,
				Message: "External audio returned",
			}
		}

		st.QuietStart = time.Time{}
		if !st.Ducked {
			st.Ducked = true
			return Outcome{
				State:   st,
				Effects: []Effect{Duck},
				Status:  status.StateDucked,
				Message: "External audio returned, volume lowered",
			}
		}
		return Outcome{State: st, Status: status.StateDucked, Message: "External audio playing, volume lowered"}
	}

	if !st.Ducked {
		return Outcome{State: st, Status: status.StatePlaying, Message: "Playing ambient sound"}
	}

	if st.QuietStart.IsZero() {
		st.QuietStart = in.Now
		return Outcome{State: st, Status: status.StateReturning, Message: "External audio gone, waiting to restore volume"}
	}

	if in.Now.Sub(st.QuietStart) < settings.SilenceWindow() {
		return Outcome{State: st, Status: status.StateReturning, Message: "External audio gone, waiting to restore volume"}
	}

	st.Ducked = false
	st.QuietStart = time.Time{}
	return Outcome{
		State:   st,
		Effects: []Effect{Unduck},
		Status:  status.StatePlaying,
		Message: "Restoring ambient volume",
	}
}

func countdownMessage(remaining time.Duration) string {
	secs := int(remaining.Round(time.Second) / time.Second)
	if secs < 0 {
		secs = 0
	}
	return fmt.Sprintf("Silence detected, ambient sound in %ds", secs)
}
