package monitor

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/jmylchreest/hushd/internal/config"
	"github.com/jmylchreest/hushd/internal/engine"
	"github.com/jmylchreest/hushd/internal/source"
	"github.com/jmylchreest/hushd/internal/status"
)

// DefaultTick is how often the monitor samples the audio landscape.
const DefaultTick = 500 * time.Millisecond

// Player is the slice of the playback engine the monitor drives.
type Player interface {
	Play() error
	Stop()
	Duck(target int)
	Unduck(target int)
	Active() bool
	ConsumeEnd() engine.EndReason
}

// RealAudioChecker answers whether a source that claims to be playing is
// actually producing sound.
type RealAudioChecker interface {
	IsRealAudio(identity string) bool
	SetIdentities(identities map[string]struct{})
	SetEnabled(enabled bool)
}

// Recorder receives one entry per monitor transition.
type Recorder interface {
	Record(kind, detail string)
}

// Monitor ties the probes, the classifier and the engine together. Start
// runs the sampling loop until Stop or until monitoring ends on its own.
type Monitor struct {
	probe    source.Probe
	player   Player
	checker  RealAudioChecker
	store    *config.Store
	status   *status.Reporter
	recorder Recorder
	logger   *slog.Logger

	tick time.Duration

	mu      sync.Mutex
	state   State
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithTick overrides the sampling period.
func WithTick(d time.Duration) Option {
	return func(m *Monitor) { m.tick = d }
}

// WithRecorder attaches a transition recorder.
func WithRecorder(r Recorder) Option {
	return func(m *Monitor) { m.recorder = r }
}

// WithRealAudioChecker attaches a classifier for sources whose presence
// alone does not prove audio.
func WithRealAudioChecker(c RealAudioChecker) Option {
	return func(m *Monitor) { m.checker = c }
}

// New creates a monitor over the given probe and player.
func New(probe source.Probe, player Player, store *config.Store, reporter *status.Reporter, logger *slog.Logger, opts ...Option) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Monitor{
		probe:  probe,
		player: player,
		store:  store,
		status: reporter,
		logger: logger,
		tick:   DefaultTick,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start launches the sampling loop. Returns immediately; a second call
// while running is a no-op.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return
	}
	m.running = true
	m.state = State{}
	m.stopCh = make(chan struct{})
	m.doneCh = make(chan struct{})
	m.status.Set(status.StateWatching, "Watching for silence")
	go m.run(ctx, m.stopCh, m.doneCh)
}

// Stop halts the loop and tears down any ambient session.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	close(m.stopCh)
	done := m.doneCh
	m.mu.Unlock()

	<-done
	m.player.Stop()
	m.status.Set(status.StateIdle, "Monitoring stopped")
}

// StateSnapshot returns the current machine state for inspection.
func (m *Monitor) StateSnapshot() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Monitor) run(ctx context.Context, stopCh, doneCh chan struct{}) {
	defer func() {
		m.mu.Lock()
		m.running = false
		m.mu.Unlock()
		close(doneCh)
	}()

	ticker := time.NewTicker(m.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			if ended := m.step(ctx); ended {
				return
			}
		}
	}
}

// step samples once, advances the machine and applies the effects.
// Returns true when monitoring has ended for good.
func (m *Monitor) step(ctx context.Context) bool {
	settings := m.store.Snapshot()

	if m.checker != nil {
		m.checker.SetEnabled(settings.ClassifierEnabled)
		m.checker.SetIdentities(settings.ClassifierSet())
	}

	in := Input{
		Audible:      m.observeAudible(ctx, settings),
		EngineActive: m.player.Active(),
		Ended:        m.player.ConsumeEnd(),
		Now:          time.Now(),
	}

	m.mu.Lock()
	prev := m.state
	m.mu.Unlock()

	out := Advance(prev, in, settings)

	m.mu.Lock()
	m.state = out.State
	m.mu.Unlock()

	for _, effect := range out.Effects {
		if stopped := m.apply(effect, settings); stopped {
			return true
		}
	}

	m.status.Set(out.Status, out.Message)
	if prev.Phase != out.State.Phase || prev.Ducked != out.State.Ducked {
		m.record(out)
	}

	return out.State.Phase == PhaseStopped
}

// observeAudible reports whether any non-excluded source is audibly
// playing right now. Sources the operator flagged as ambiguous only
// count when the classifier hears real signal from them.
func (m *Monitor) observeAudible(ctx context.Context, settings *config.Settings) bool {
	sources := m.probe.ActiveSources(ctx, settings.ExcludedSet())

	ambiguous := settings.ClassifierSet()
	for _, src := range sources {
		if !src.Audible() {
			continue
		}
		if m.checker != nil && settings.ClassifierEnabled {
			if _, ok := ambiguous[strings.ToLower(src.Identity)]; ok && !m.checker.IsRealAudio(src.Identity) {
				continue
			}
		}
		return true
	}
	return false
}

// apply runs one engine command. Returns true when the command ends
// monitoring for good.
func (m *Monitor) apply(effect Effect, settings *config.Settings) bool {
	m.logger.Debug("applying effect", "effect", effect.String())

	switch effect {
	case StartAmbient:
		if err := m.player.Play(); err != nil {
			// Nothing to retry: the configured target is unusable
			// until the operator fixes it.
			m.logger.Error("cannot start ambient playback", "error", err)
			m.record(Outcome{Status: status.StateStopped, Message: err.Error()})
			m.mu.Lock()
			m.state.Phase = PhaseStopped
			m.mu.Unlock()
			return true
		}
	case StopAmbient:
		m.player.Stop()
	case Duck:
		m.player.Duck(settings.DuckVolume())
	case Unduck:
		m.player.Unduck(settings.MaxVolume)
	}
	return false
}

func (m *Monitor) record(out Outcome) {
	if m.recorder == nil {
		return
	}
	m.recorder.Record(string(out.Status), out.Message)
}
