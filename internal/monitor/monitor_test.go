package monitor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/hushd/internal/config"
	"github.com/jmylchreest/hushd/internal/engine"
	"github.com/jmylchreest/hushd/internal/source"
	"github.com/jmylchreest/hushd/internal/status"
)

type fakePlayer struct {
	mu      sync.Mutex
	active  bool
	playErr error
	ended   engine.EndReason
	plays   int
	stops   int
	ducks   []int
	unducks []int
}

func (f *fakePlayer) Play() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.playErr != nil {
		return f.playErr
	}
	f.plays++
	f.active = true
	return nil
}

func (f *fakePlayer) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	f.active = false
}

func (f *fakePlayer) Duck(target int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ducks = append(f.ducks, target)
}

func (f *fakePlayer) Unduck(target int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unducks = append(f.unducks, target)
}

func (f *fakePlayer) Active() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active
}

func (f *fakePlayer) ConsumeEnd() engine.EndReason {
	f.mu.Lock()
	defer f.mu.Unlock()
	r := f.ended
	f.ended = engine.EndedNone
	return r
}

func (f *fakePlayer) playCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.plays
}

func (f *fakePlayer) finish(r engine.EndReason) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.active = false
	f.ended = r
}

type switchProbe struct {
	mu      sync.Mutex
	sources []source.Source
}

func (p *switchProbe) ActiveSources(_ context.Context, excluded map[string]struct{}) []source.Source {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []source.Source
	for _, src := range p.sources {
		if _, skip := excluded[src.Identity]; skip {
			continue
		}
		out = append(out, src)
	}
	return out
}

func (p *switchProbe) set(sources ...source.Source) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sources = sources
}

type fakeChecker struct {
	mu         sync.Mutex
	real       map[string]bool
	enabled    bool
	identities map[string]struct{}
}

func (c *fakeChecker) IsRealAudio(identity string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.real[identity]
}

func (c *fakeChecker) SetIdentities(ids map[string]struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.identities = ids
}

func (c *fakeChecker) SetEnabled(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.enabled = enabled
}

type memRecorder struct {
	mu      sync.Mutex
	entries []string
}

func (r *memRecorder) Record(kind, detail string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, kind)
}

func (r *memRecorder) kinds() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.entries...)
}

func monitorSettings() *config.Settings {
	s := config.DefaultSettings()
	s.SilenceSeconds = 1
	s.DuckPercent = 30
	s.MaxVolume = 80
	s.FadeEnabled = false
	return s
}

func newTestMonitor(t *testing.T, settings *config.Settings, opts ...Option) (*Monitor, *fakePlayer, *switchProbe, *status.Reporter) {
	t.Helper()
	player := &fakePlayer{}
	probe := &switchProbe{}
	reporter := status.NewReporter(nil)
	opts = append([]Option{WithTick(5 * time.Millisecond)}, opts...)
	m := New(probe, player, config.NewStore(settings), reporter, nil, opts...)
	t.Cleanup(m.Stop)
	return m, player, probe, reporter
}

func TestMonitor_SilenceStartsAmbient(t *testing.T) {
	m, player, _, reporter := newTestMonitor(t, monitorSettings())

	m.Start(context.Background())
	require.Eventually(t, func() bool { return player.playCount() == 1 }, 3*time.Second, 5*time.Millisecond)
	assert.Equal(t, status.StatePlaying, reporter.Current().State)
	assert.Equal(t, PhaseTriggered, m.StateSnapshot().Phase)
}

func TestMonitor_AudibleSourceHoldsOff(t *testing.T) {
	m, player, probe, reporter := newTestMonitor(t, monitorSettings())
	probe.set(source.Source{Identity: "firefox", ID: "7", Peak: 1.0})

	m.Start(context.Background())
	time.Sleep(1500 * time.Millisecond)
	assert.Equal(t, 0, player.playCount())
	assert.Equal(t, status.StateWatching, reporter.Current().State)
}

func TestMonitor_ExcludedSourceIgnored(t *testing.T) {
	s := monitorSettings()
	s.ExcludedApps = []string{"firefox"}
	m, player, probe, _ := newTestMonitor(t, s)
	probe.set(source.Source{Identity: "firefox", ID: "7", Peak: 1.0})

	m.Start(context.Background())
	require.Eventually(t, func() bool { return player.playCount() == 1 }, 3*time.Second, 5*time.Millisecond)
}

func TestMonitor_DuckAndRestore(t *testing.T) {
	m, player, probe, reporter := newTestMonitor(t, monitorSettings())

	m.Start(context.Background())
	require.Eventually(t, func() bool { return player.playCount() == 1 }, 3*time.Second, 5*time.Millisecond)

	probe.set(source.Source{Identity: "mpv", ID: "3", Peak: 1.0})
	require.Eventually(t, func() bool {
		player.mu.Lock()
		defer player.mu.Unlock()
		return len(player.ducks) == 1
	}, 3*time.Second, 5*time.Millisecond)
	// DuckPercent 30 of MaxVolume 80.
	player.mu.Lock()
	assert.Equal(t, 24, player.ducks[0])
	player.mu.Unlock()
	assert.Equal(t, status.StateDucked, reporter.Current().State)

	probe.set()
	require.Eventually(t, func() bool {
		player.mu.Lock()
		defer player.mu.Unlock()
		return len(player.unducks) == 1
	}, 3*time.Second, 5*time.Millisecond)
	player.mu.Lock()
	assert.Equal(t, 80, player.unducks[0])
	assert.Len(t, player.ducks, 1, "duck must fire once per external audio episode")
	player.mu.Unlock()
}

func TestMonitor_ClassifierVetoesSilentSource(t *testing.T) {
	s := monitorSettings()
	s.ClassifierEnabled = true
	s.ClassifierApps = []string{"chromium"}
	checker := &fakeChecker{real: map[string]bool{}}
	m, player, probe, _ := newTestMonitor(t, s, WithRealAudioChecker(checker))

	// Chromium holds a session open but the classifier hears nothing,
	// so the source does not count as audible.
	probe.set(source.Source{Identity: "chromium", ID: "9", Peak: 1.0})
	m.Start(context.Background())
	require.Eventually(t, func() bool { return player.playCount() == 1 }, 3*time.Second, 5*time.Millisecond)
}

func TestMonitor_ClassifierConfirmsRealAudio(t *testing.T) {
	s := monitorSettings()
	s.ClassifierEnabled = true
	s.ClassifierApps = []string{"chromium"}
	checker := &fakeChecker{real: map[string]bool{"chromium": true}}
	m, player, probe, _ := newTestMonitor(t, s, WithRealAudioChecker(checker))

	probe.set(source.Source{Identity: "chromium", ID: "9", Peak: 1.0})
	m.Start(context.Background())
	time.Sleep(1500 * time.Millisecond)
	assert.Equal(t, 0, player.playCount())
}

func TestMonitor_NaturalEndStopsLoop(t *testing.T) {
	m, player, _, reporter := newTestMonitor(t, monitorSettings())

	m.Start(context.Background())
	require.Eventually(t, func() bool { return player.playCount() == 1 }, 3*time.Second, 5*time.Millisecond)

	player.finish(engine.EndedNatural)
	require.Eventually(t, func() bool {
		return reporter.Current().State == status.StateStopped
	}, 3*time.Second, 5*time.Millisecond)
	assert.Equal(t, PhaseStopped, m.StateSnapshot().Phase)
}

func TestMonitor_PlayFailureEndsMonitoring(t *testing.T) {
	m, player, _, _ := newTestMonitor(t, monitorSettings())
	player.playErr = engine.ErrNoFile
	recorder := &memRecorder{}
	m.recorder = recorder

	m.Start(context.Background())
	require.Eventually(t, func() bool {
		return m.StateSnapshot().Phase == PhaseStopped
	}, 3*time.Second, 5*time.Millisecond)
	assert.Contains(t, recorder.kinds(), string(status.StateStopped))
}

func TestMonitor_RecordsTransitions(t *testing.T) {
	recorder := &memRecorder{}
	m, player, _, _ := newTestMonitor(t, monitorSettings(), WithRecorder(recorder))

	m.Start(context.Background())
	require.Eventually(t, func() bool { return player.playCount() == 1 }, 3*time.Second, 5*time.Millisecond)

	assert.Contains(t, recorder.kinds(), string(status.StatePlaying))
}

func TestMonitor_StopTearsDownSession(t *testing.T) {
	m, player, _, reporter := newTestMonitor(t, monitorSettings())

	m.Start(context.Background())
	require.Eventually(t, func() bool { return player.playCount() == 1 }, 3*time.Second, 5*time.Millisecond)

	m.Stop()
	player.mu.Lock()
	assert.Equal(t, 1, player.stops)
	player.mu.Unlock()
	assert.Equal(t, status.StateIdle, reporter.Current().State)

	// Idempotent.
	m.Stop()
}
