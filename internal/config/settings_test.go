package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultSettings(t *testing.T) {
	s := DefaultSettings()

	assert.Equal(t, 30, s.SilenceSeconds)
	assert.Equal(t, 80, s.MaxVolume)
	assert.True(t, s.FadeEnabled)
	assert.Equal(t, 0, s.DuckPercent)
	assert.Equal(t, ModeSingle, s.Mode)
	assert.Equal(t, SingleLoop, s.SingleLoop)
	assert.Equal(t, PlaylistLoopAll, s.PlaylistLoop)
	assert.Empty(t, s.ExcludedApps)
	assert.False(t, s.ClassifierEnabled)
}

func TestLoadSettings_DefaultsWhenNoFile(t *testing.T) {
	s, err := LoadSettings("/nonexistent/path/settings.json")
	require.NoError(t, err)
	assert.Equal(t, DefaultSettings(), s)
}

func TestLoadSettings_ParsesJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.json")

	content := `{
		"mp3_path": "/music/rain.mp3",
		"silence_seconds": 5,
		"max_volume": 60,
		"fade_enabled": false,
		"duck_percent": 30,
		"mode": "playlist",
		"playlist_folder": "/music/ambient",
		"playlist_loop_mode": "loop_song",
		"excluded_apps": ["Discord", "zoom"],
		"classifier_enabled": true,
		"classifier_apps": ["discord"]
	}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	s, err := LoadSettings(path)
	require.NoError(t, err)

	assert.Equal(t, "/music/rain.mp3", s.FilePath)
	assert.Equal(t, 5, s.SilenceSeconds)
	assert.Equal(t, 60, s.MaxVolume)
	assert.False(t, s.FadeEnabled)
	assert.Equal(t, 30, s.DuckPercent)
	assert.Equal(t, ModePlaylist, s.Mode)
	assert.Equal(t, PlaylistLoopSong, s.PlaylistLoop)
	assert.True(t, s.ClassifierEnabled)

	// Missing keys keep defaults
	assert.Equal(t, SingleLoop, s.SingleLoop)
}

func TestLoadSettings_IgnoresUnknownKeys(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.json")

	content := `{"silence_seconds": 10, "window_geometry": "520x660", "tray": true}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	s, err := LoadSettings(path)
	require.NoError(t, err)
	assert.Equal(t, 10, s.SilenceSeconds)
}

func TestLoadSettings_RejectsOutOfRange(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"silence too small", `{"silence_seconds": 0}`},
		{"silence too large", `{"silence_seconds": 3601}`},
		{"volume too large", `{"max_volume": 101}`},
		{"duck negative", `{"duck_percent": -1}`},
		{"bad mode", `{"mode": "shuffle"}`},
		{"bad playlist policy", `{"playlist_loop_mode": "loop"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			path := filepath.Join(dir, "settings.json")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0644))

			_, err := LoadSettings(path)
			assert.Error(t, err)
		})
	}
}

func TestSettings_Derived(t *testing.T) {
	s := DefaultSettings()
	s.SilenceSeconds = 5
	s.MaxVolume = 80
	s.DuckPercent = 30

	assert.Equal(t, 5*time.Second, s.SilenceWindow())
	assert.Equal(t, 24, s.DuckVolume())
	assert.Equal(t, FadeDuration, s.RampDuration())

	s.FadeEnabled = false
	assert.Equal(t, FadeDurationInstant, s.RampDuration())
}

func TestSettings_ExcludedSetLowercases(t *testing.T) {
	s := DefaultSettings()
	s.ExcludedApps = []string{"Discord", "SPOTIFY"}

	set := s.ExcludedSet()
	assert.Contains(t, set, "discord")
	assert.Contains(t, set, "spotify")
	assert.Len(t, set, 2)
}

func TestStore_SnapshotAndReplace(t *testing.T) {
	first := DefaultSettings()
	store := NewStore(first)
	assert.Same(t, first, store.Snapshot())

	next := DefaultSettings()
	next.SilenceSeconds = 120
	store.Replace(next)
	assert.Equal(t, 120, store.Snapshot().SilenceSeconds)
}

func TestSettingsWatcher_ReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"silence_seconds": 10}`), 0644))

	store := NewStore(DefaultSettings())
	watcher, err := NewSettingsWatcher(store, path, nil)
	require.NoError(t, err)

	reloaded := make(chan *Settings, 1)
	watcher.SetReloadCallback(func(s *Settings) { reloaded <- s })

	require.NoError(t, watcher.Start())
	defer func() { _ = watcher.Stop() }()

	require.NoError(t, os.WriteFile(path, []byte(`{"silence_seconds": 42}`), 0644))

	select {
	case s := <-reloaded:
		assert.Equal(t, 42, s.SilenceSeconds)
		assert.Equal(t, 42, store.Snapshot().SilenceSeconds)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for settings reload")
	}
}

func TestSettingsWatcher_KeepsOldSnapshotOnBadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.json")

	store := NewStore(DefaultSettings())
	watcher, err := NewSettingsWatcher(store, path, nil)
	require.NoError(t, err)
	require.NoError(t, watcher.Start())
	defer func() { _ = watcher.Stop() }()

	require.NoError(t, os.WriteFile(path, []byte(`{"silence_seconds": 0}`), 0644))

	// Give the watcher a moment to observe the write
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, DefaultSettings().SilenceSeconds, store.Snapshot().SilenceSeconds)
}

func TestDefaultDaemonConfig(t *testing.T) {
	cfg := DefaultDaemonConfig()

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, 500*time.Millisecond, cfg.Monitor.Tick.Duration())
	assert.True(t, cfg.Journal.Enabled)
	assert.False(t, cfg.Server.Enabled)
}

func TestLoadDaemonConfig_ParsesTOML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hushd.toml")

	content := `
[log]
level = "debug"

[monitor]
tick = "250ms"

[server]
enabled = true
listen = "127.0.0.1:9000"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := LoadDaemonConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 250*time.Millisecond, cfg.Monitor.Tick.Duration())
	assert.True(t, cfg.Server.Enabled)
	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Listen)
}

func TestDuration_UnmarshalText(t *testing.T) {
	var d Duration

	require.NoError(t, d.UnmarshalText([]byte("750ms")))
	assert.Equal(t, 750*time.Millisecond, d.Duration())

	// Bare integers are milliseconds
	require.NoError(t, d.UnmarshalText([]byte("500")))
	assert.Equal(t, 500*time.Millisecond, d.Duration())

	assert.Error(t, d.UnmarshalText([]byte("fast")))
}
