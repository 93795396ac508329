// Package classifier answers whether an application that registers audio
// sessions is actually emitting sound. Some multi-purpose apps (screen-share
// mirrors in particular) keep a silent session open forever, which would
// otherwise make the silence monitor see "audio playing" indefinitely.
package classifier

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jmylchreest/hushd/internal/source"
)

// RMSThreshold is the mean window RMS above which an instance counts as
// genuinely emitting audio.
const RMSThreshold = 0.001

// DefaultTrackInterval is how often taps are reconciled against the live
// source enumeration.
const DefaultTrackInterval = time.Second

// instance is one tracked process instance of an ambiguous identity.
type instance struct {
	identity string
	tap      CaptureTap
	window   *Window
}

// Classifier keeps one capture tap per live instance of each registered
// ambiguous identity and folds the tapped PCM into per-instance RMS windows.
type Classifier struct {
	mu     sync.Mutex
	logger *slog.Logger

	probe  source.Probe
	newTap TapFactory

	// identities is the set of ambiguous identities to track, lowercase.
	identities map[string]struct{}

	// instances is keyed by opaque source instance ID.
	instances map[string]*instance

	enabled       bool
	trackInterval time.Duration

	stopCh  chan struct{}
	doneCh  chan struct{}
	running bool
}

// New creates a Classifier. It starts disabled with no tracked identities.
func New(probe source.Probe, newTap TapFactory, logger *slog.Logger) *Classifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Classifier{
		logger:        logger,
		probe:         probe,
		newTap:        newTap,
		identities:    make(map[string]struct{}),
		instances:     make(map[string]*instance),
		trackInterval: DefaultTrackInterval,
	}
}

// SetTrackInterval overrides the reconciliation period.
func (c *Classifier) SetTrackInterval(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.trackInterval = d
}

// SetIdentities replaces the set of ambiguous identities. Instances of
// identities no longer registered are torn down on the spot.
func (c *Classifier) SetIdentities(identities map[string]struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.identities = identities
	for id, inst := range c.instances {
		if _, ok := identities[inst.identity]; !ok {
			inst.tap.Stop()
			delete(c.instances, id)
		}
	}
}

// SetEnabled turns classification on or off. Disabling tears down all taps
// and discards in-flight windows immediately, not on the next tracking pass.
func (c *Classifier) SetEnabled(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.enabled == enabled {
		return
	}
	c.enabled = enabled

	if !enabled {
		c.teardownLocked()
		c.logger.Debug("classifier disabled, taps torn down")
	}
}

// Enabled reports whether classification is active. The monitor must not
// apply classifier filtering while this is false.
func (c *Classifier) Enabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enabled
}

// Start launches the tracking loop.
func (c *Classifier) Start(ctx context.Context) {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return
	}
	c.running = true
	c.stopCh = make(chan struct{})
	c.doneCh = make(chan struct{})
	interval := c.trackInterval
	c.mu.Unlock()

	go c.trackLoop(ctx, interval)
}

// Stop halts tracking and tears down all taps.
func (c *Classifier) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	close(c.stopCh)
	doneCh := c.doneCh
	c.mu.Unlock()

	<-doneCh

	c.mu.Lock()
	c.teardownLocked()
	c.mu.Unlock()
}

// trackLoop reconciles taps against the OS enumeration once per interval.
func (c *Classifier) trackLoop(ctx context.Context, interval time.Duration) {
	defer close(c.doneCh)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.Track(ctx)
		}
	}
}

// Track runs one reconciliation pass: taps are created lazily for newly
// appeared instances of registered identities and destroyed for instances
// that left the enumeration.
func (c *Classifier) Track(ctx context.Context) {
	if !c.Enabled() {
		return
	}

	// Enumerate without exclusions: an excluded identity can still be a
	// registered ambiguous one.
	observed := c.probe.ActiveSources(ctx, nil)

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.enabled {
		return
	}

	live := make(map[string]string) // instance ID -> identity
	for _, s := range observed {
		if _, ok := c.identities[s.Identity]; ok {
			live[s.ID] = s.Identity
		}
	}

	// Tear down taps for disappeared instances.
	for id, inst := range c.instances {
		if _, ok := live[id]; !ok {
			inst.tap.Stop()
			delete(c.instances, id)
			c.logger.Debug("classifier tap removed", "instance", id, "identity", inst.identity)
		}
	}

	// Create taps for newly appeared instances.
	for id, identity := range live {
		if _, ok := c.instances[id]; ok {
			continue
		}
		c.startTapLocked(id, identity)
	}
}

// startTapLocked creates and starts a tap for one instance. A tap that
// fails to start is simply not tracked; a tap that fails mid-stream is
// torn down without affecting its siblings.
func (c *Classifier) startTapLocked(id, identity string) {
	tap := c.newTap(id)
	inst := &instance{identity: identity, tap: tap, window: NewWindow()}

	onBuffer := func(samples []int16) {
		inst.window.Append(RMS(samples))
	}
	onError := func(err error) {
		c.logger.Debug("classifier tap failed", "instance", id, "identity", identity, "error", err)
		c.removeInstance(id)
	}

	if err := tap.Start(onBuffer, onError); err != nil {
		c.logger.Debug("classifier tap failed to start", "instance", id, "identity", identity, "error", err)
		return
	}

	c.instances[id] = inst
	c.logger.Debug("classifier tap added", "instance", id, "identity", identity)
}

// removeInstance drops a single failed instance.
func (c *Classifier) removeInstance(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if inst, ok := c.instances[id]; ok {
		inst.tap.Stop()
		delete(c.instances, id)
	}
}

// IsRealAudio reports whether at least one tracked instance of the identity
// is genuinely emitting sound. With no tracked instances (or none with
// enough samples yet) it returns true: never suppress an app we can't see.
func (c *Classifier) IsRealAudio(identity string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	matched := 0
	decided := 0
	for _, inst := range c.instances {
		if inst.identity != identity {
			continue
		}
		matched++
		if inst.window.Count() < MinSamples {
			continue
		}
		decided++
		if inst.window.Mean() > RMSThreshold {
			return true
		}
	}

	if matched == 0 || decided == 0 {
		return true
	}
	return false
}

// teardownLocked stops every tap and drops all windows.
func (c *Classifier) teardownLocked() {
	for id, inst := range c.instances {
		inst.tap.Stop()
		delete(c.instances, id)
	}
}
