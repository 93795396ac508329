package config

import (
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// SettingsWatcher watches the operator settings file and reloads the Store
// when the GUI layer rewrites it.
type SettingsWatcher struct {
	watcher *fsnotify.Watcher
	store   *Store
	logger  *slog.Logger
	path    string
	done    chan struct{}

	// Callback invoked after a successful reload
	onReload func(*Settings)

	mu      sync.Mutex
	running bool
}

// NewSettingsWatcher creates a watcher for the given settings file.
func NewSettingsWatcher(store *Store, path string, logger *slog.Logger) (*SettingsWatcher, error) {
	if logger == nil {
		logger = slog.Default()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &SettingsWatcher{
		watcher: watcher,
		store:   store,
		logger:  logger,
		path:    path,
		done:    make(chan struct{}),
	}, nil
}

// SetReloadCallback sets the callback to invoke after each successful reload.
func (sw *SettingsWatcher) SetReloadCallback(fn func(*Settings)) {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	sw.onReload = fn
}

// Start begins watching the settings file for changes.
func (sw *SettingsWatcher) Start() error {
	sw.mu.Lock()
	if sw.running {
		sw.mu.Unlock()
		return nil
	}
	sw.running = true
	sw.mu.Unlock()

	// Watch the directory containing the file (more reliable for
	// atomic rename-style rewrites)
	dir := filepath.Dir(sw.path)
	if err := sw.watcher.Add(dir); err != nil {
		return err
	}

	go sw.watch()

	sw.logger.Debug("settings watcher started", "path", sw.path)
	return nil
}

// watch is the main watch loop.
func (sw *SettingsWatcher) watch() {
	filename := filepath.Base(sw.path)

	for {
		select {
		case event, ok := <-sw.watcher.Events:
			if !ok {
				return
			}

			if filepath.Base(event.Name) != filename {
				continue
			}

			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				sw.reload()
			}

		case err, ok := <-sw.watcher.Errors:
			if !ok {
				return
			}
			sw.logger.Warn("settings watcher error", "error", err)

		case <-sw.done:
			return
		}
	}
}

// reload re-reads the settings file and swaps the store on success.
// A bad file keeps the previous snapshot.
func (sw *SettingsWatcher) reload() {
	settings, err := LoadSettings(sw.path)
	if err != nil {
		sw.logger.Warn("ignoring settings change", "path", sw.path, "error", err)
		return
	}

	sw.store.Replace(settings)
	sw.logger.Info("settings reloaded", "path", sw.path)

	sw.mu.Lock()
	fn := sw.onReload
	sw.mu.Unlock()

	if fn != nil {
		fn(settings)
	}
}

// Stop stops the settings watcher.
func (sw *SettingsWatcher) Stop() error {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	if !sw.running {
		return nil
	}

	sw.running = false
	close(sw.done)
	return sw.watcher.Close()
}
