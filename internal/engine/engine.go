// Package engine owns the ambient playback session: starting and stopping
// the configured target, smooth volume transitions, and loop policies.
// At most one session is active at a time.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/jmylchreest/hushd/internal/config"
	"github.com/jmylchreest/hushd/internal/playback"
	"github.com/jmylchreest/hushd/internal/status"
)

// Validation errors for the operator-selected playback target.
var (
	ErrNoFile   = errors.New("no valid audio file selected")
	ErrNoFolder = errors.New("no valid playlist folder selected")
	ErrNoTracks = errors.New("no supported audio files found in folder")
)

// EndReason says why the last session ended on its own.
type EndReason int

const (
	EndedNone    EndReason = iota // no self-ended session pending
	EndedNatural                  // stop-policy exhaustion, the track simply finished
	EndedError                    // backend failure forced the session down
)

// session is one playback run. The stop channel is the shared stop signal
// every ramp and wait loop checks.
type session struct {
	id       string
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

func newSession() *session {
	return &session{
		id:   ulid.Make().String(),
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
}

// alive reports whether the session has not been told to stop.
func (s *session) alive() bool {
	select {
	case <-s.stop:
		return false
	default:
		return true
	}
}

// end signals the session to stop. Idempotent.
func (s *session) end() {
	s.stopOnce.Do(func() { close(s.stop) })
}

// Engine drives the playback backend for the silence monitor.
type Engine struct {
	mu     sync.Mutex
	logger *slog.Logger

	backend playback.Backend
	store   *config.Store
	status  *status.Reporter

	cur      *session
	savedPos float64
	endState EndReason

	// In-flight volume ramp (fade-in, duck or unduck); the newest ramp
	// wins and cancels its predecessor.
	rampMu     sync.Mutex
	rampCancel context.CancelFunc

	// Timing, shrunk by tests
	duckStep   time.Duration // duck ramp step
	endPoll    time.Duration // track-end poll period
	startPoll  time.Duration // await-playing poll period
	startTries int           // await-playing attempts
}

// New creates an Engine over the given backend.
func New(backend playback.Backend, store *config.Store, reporter *status.Reporter, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		logger:     logger,
		backend:    backend,
		store:      store,
		status:     reporter,
		duckStep:   defaultDuckStep,
		endPoll:    300 * time.Millisecond,
		startPoll:  100 * time.Millisecond,
		startTries: 20,
	}
}

// Active reports whether a playback session is running.
func (e *Engine) Active() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.activeLocked()
}

func (e *Engine) activeLocked() bool {
	if e.cur == nil {
		return false
	}
	select {
	case <-e.cur.done:
		return false
	default:
		return true
	}
}

// ConsumeEnd returns why the last session ended on its own and clears the
// record. Stop-initiated teardowns don't register here.
func (e *Engine) ConsumeEnd() EndReason {
	e.mu.Lock()
	defer e.mu.Unlock()
	r := e.endState
	e.endState = EndedNone
	return r
}

// Play validates the configured target and starts a session. A no-op when
// a session is already active. Validation failure reports to the status
// surface and leaves the engine unstarted.
func (e *Engine) Play() error {
	settings := e.store.Snapshot()

	e.mu.Lock()
	if e.activeLocked() {
		e.mu.Unlock()
		return nil
	}
	e.mu.Unlock()

	var (
		path   string
		tracks []string
	)
	switch settings.Mode {
	case config.ModePlaylist:
		folder := settings.PlaylistFolder
		if folder == "" || !isDir(folder) {
			e.status.SetError("No valid playlist folder selected!")
			return ErrNoFolder
		}
		var err error
		tracks, err = ScanFolder(folder)
		if err != nil || len(tracks) == 0 {
			e.status.SetError("No supported audio files found in folder!")
			return ErrNoTracks
		}
	default:
		path = settings.FilePath
		if path == "" || !isFile(path) {
			e.status.SetError("No valid audio file selected!")
			return ErrNoFile
		}
	}

	e.mu.Lock()
	if e.activeLocked() {
		e.mu.Unlock()
		return nil
	}
	sess := newSession()
	e.cur = sess
	e.endState = EndedNone
	resume := e.savedPos
	e.savedPos = 0 // consumed exactly once
	e.mu.Unlock()

	if settings.Mode == config.ModePlaylist {
		e.logger.Info("ambient session starting", "session", sess.id, "mode", "playlist", "tracks", len(tracks))
		go e.runPlaylist(sess, NewSequencer(tracks), settings.MaxVolume, resume)
	} else {
		e.logger.Info("ambient session starting", "session", sess.id, "mode", "single", "file", filepath.Base(path))
		go e.runSingle(sess, path, settings.MaxVolume, resume)
	}
	return nil
}

// Stop records the playback offset for resume, signals the session to
// stop, fades out and waits for the session to finish.
func (e *Engine) Stop() {
	e.mu.Lock()
	sess := e.cur
	if sess == nil || !e.activeLocked() {
		e.mu.Unlock()
		return
	}
	pos := e.backend.Position()
	e.savedPos = pos
	e.mu.Unlock()

	e.cancelRamp()
	sess.end()
	e.fadeOut()
	<-sess.done

	e.logger.Info("ambient session stopped", "session", sess.id, "resume_at", pos)
}

// Duck smoothly lowers the volume to target over a fixed one-second
// window, independent of the fade toggle. Preempts any in-flight ramp.
func (e *Engine) Duck(target int) {
	sess := e.currentSession()
	if sess == nil {
		return
	}

	ctx := e.preemptRamp()
	go runRamp(ctx, e.backend, target, duckSteps, e.duckStep, sess.alive)
}

// Unduck smoothly raises the volume back to target using the fade-in
// schedule. Preempts any in-flight ramp.
func (e *Engine) Unduck(target int) {
	sess := e.currentSession()
	if sess == nil {
		return
	}

	step := e.store.Snapshot().RampDuration() / fadeSteps
	ctx := e.preemptRamp()
	go runRamp(ctx, e.backend, target, fadeSteps, step, sess.alive)
}

// runSingle plays one file honoring the single-file loop policy.
func (e *Engine) runSingle(sess *session, path string, maxVolume int, resume float64) {
	defer close(sess.done)

	if err := e.loadAndPlay(path, resume); err != nil {
		e.failSession(sess, err)
		return
	}

	if !e.fadeIn(sess, maxVolume) {
		return
	}

	for sess.alive() {
		if !e.backend.IsPlaying() {
			// Policy is re-read live so a toggle applies to the
			// current track's end.
			if e.store.Snapshot().SingleLoop == config.SingleLoop {
				if err := e.loadAndPlay(path, 0); err != nil {
					e.failSession(sess, err)
					return
				}
				e.backend.SetVolume(maxVolume)
			} else {
				e.endNaturally(sess)
				return
			}
		}
		e.sleep(sess, e.endPoll)
	}
}

// runPlaylist walks the sequencer honoring the playlist loop policy,
// which is re-read from the live settings at every advance decision.
func (e *Engine) runPlaylist(sess *session, seq *Sequencer, maxVolume int, resume float64) {
	defer close(sess.done)

	first := true
	for sess.alive() {
		if seq.Exhausted() {
			if e.store.Snapshot().PlaylistLoop == config.PlaylistLoopAll {
				seq.Rewind()
			} else {
				e.endNaturally(sess)
				return
			}
		}

		path := seq.Current()
		e.logger.Info("playing track", "session", sess.id, "index", seq.Index(), "track", filepath.Base(path))

		start := 0.0
		if first {
			start = resume
			first = false
		}
		if err := e.loadAndPlay(path, start); err != nil {
			e.failSession(sess, err)
			return
		}

		if !e.fadeIn(sess, maxVolume) {
			return
		}

		for sess.alive() && e.backend.IsPlaying() {
			e.sleep(sess, e.endPoll)
		}
		if !sess.alive() {
			return
		}

		switch e.store.Snapshot().PlaylistLoop {
		case config.PlaylistLoopSong:
			// Same index; the loop reloads and fades the track back in.
		case config.PlaylistStop:
			e.endNaturally(sess)
			return
		default:
			seq.Advance()
		}
	}
}

// loadAndPlay loads a track, starts it, waits (bounded) for the backend
// to confirm playback, then seeks if a resume offset was recorded.
// Seeking before playback start is undefined on some backends.
func (e *Engine) loadAndPlay(path string, startPos float64) error {
	if err := e.backend.Load(path); err != nil {
		return err
	}
	if err := e.backend.Play(); err != nil {
		return err
	}

	for i := 0; i < e.startTries && !e.backend.IsPlaying(); i++ {
		time.Sleep(e.startPoll)
	}

	if startPos > 0.5 {
		return e.backend.Seek(startPos)
	}
	return nil
}

// fadeIn ramps from silence to target. It registers in the ramp
// preemption slot so a duck issued mid-fade cancels it instead of racing
// it. Returns false only when the session itself was stopped; a
// preempted fade leaves the session running under the newer ramp.
func (e *Engine) fadeIn(sess *session, target int) bool {
	e.backend.SetVolume(0)
	step := e.store.Snapshot().RampDuration() / fadeSteps
	ctx := e.preemptRamp()
	runRamp(ctx, e.backend, target, fadeSteps, step, sess.alive)
	return sess.alive()
}

// fadeOut ramps to silence and hard-stops the backend. Aborts early if
// the track already ended on its own.
func (e *Engine) fadeOut() {
	step := e.store.Snapshot().RampDuration() / fadeSteps
	runRamp(context.Background(), e.backend, 0, fadeSteps, step, e.backend.IsPlaying)
	e.backend.Stop()
}

// failSession reports a backend failure and forces the session down.
func (e *Engine) failSession(sess *session, err error) {
	e.logger.Error("playback failed", "session", sess.id, "error", err)
	e.status.SetError("Playback error: " + err.Error())
	e.backend.Stop()
	sess.end()

	e.mu.Lock()
	e.endState = EndedError
	e.mu.Unlock()
}

// endNaturally records a stop-policy exhaustion so the monitor can tell
// it apart from being interrupted.
func (e *Engine) endNaturally(sess *session) {
	e.logger.Info("ambient session finished", "session", sess.id)
	e.backend.Stop()
	sess.end()

	e.mu.Lock()
	e.endState = EndedNatural
	e.mu.Unlock()
}

// sleep waits for d or until the session is stopped.
func (e *Engine) sleep(sess *session, d time.Duration) {
	select {
	case <-sess.stop:
	case <-time.After(d):
	}
}

func (e *Engine) currentSession() *session {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.activeLocked() {
		return nil
	}
	return e.cur
}

// preemptRamp cancels any in-flight duck/unduck ramp and hands out the
// context for the next one.
func (e *Engine) preemptRamp() context.Context {
	e.rampMu.Lock()
	defer e.rampMu.Unlock()

	if e.rampCancel != nil {
		e.rampCancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	e.rampCancel = cancel
	return ctx
}

// cancelRamp cancels any in-flight ramp without starting a new one.
func (e *Engine) cancelRamp() {
	e.rampMu.Lock()
	defer e.rampMu.Unlock()

	if e.rampCancel != nil {
		e.rampCancel()
		e.rampCancel = nil
	}
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
