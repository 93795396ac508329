package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Duration is a time.Duration that can be unmarshaled from human-readable strings.
// Supports formats like "500ms", "5s", "1m", or integer milliseconds.
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler for TOML parsing.
func (d *Duration) UnmarshalText(text []byte) error {
	s := string(text)

	// Try parsing as integer (milliseconds) for convenience
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		*d = Duration(time.Duration(ms) * time.Millisecond)
		return nil
	}

	dur, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: must be like '500ms', '5s', '1m' or milliseconds: %w", s, err)
	}
	*d = Duration(dur)
	return nil
}

// MarshalText implements encoding.TextMarshaler for TOML output.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Duration returns the underlying time.Duration.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// DaemonConfig is the configuration for the hushd daemon itself.
// Loaded from ~/.config/hushd/hushd.toml
type DaemonConfig struct {
	Log      LogConfig      `toml:"log"`
	Monitor  MonitorConfig  `toml:"monitor"`
	Journal  JournalConfig  `toml:"journal"`
	Server   ServerConfig   `toml:"server"`
	Settings SettingsConfig `toml:"settings"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level string `toml:"level"` // "debug", "info", "warn", "error"
}

// MonitorConfig contains silence monitor timing settings.
type MonitorConfig struct {
	Tick Duration `toml:"tick"` // poll period, default 500ms
}

// JournalConfig contains event journal settings.
type JournalConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"` // empty = default data path
}

// ServerConfig contains the status feed server settings.
type ServerConfig struct {
	Enabled bool   `toml:"enabled"`
	Listen  string `toml:"listen"` // e.g. "127.0.0.1:8414"
}

// SettingsConfig points at the operator settings file.
type SettingsConfig struct {
	Path string `toml:"path"` // empty = default settings path
}

// DefaultDaemonConfig returns a DaemonConfig with default values.
func DefaultDaemonConfig() *DaemonConfig {
	return &DaemonConfig{
		Log: LogConfig{
			Level: "info",
		},
		Monitor: MonitorConfig{
			Tick: Duration(500 * time.Millisecond),
		},
		Journal: JournalConfig{
			Enabled: true,
		},
		Server: ServerConfig{
			Enabled: false,
			Listen:  "127.0.0.1:8414",
		},
	}
}

// DaemonConfigPath returns the path to the daemon config file.
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config.
func DaemonConfigPath() string {
	return filepath.Join(configHome(), "hushd", "hushd.toml")
}

// SettingsPath returns the default path to the operator settings file.
func SettingsPath() string {
	return filepath.Join(configHome(), "hushd", "settings.json")
}

// DataPath returns the path to the data directory.
// Uses XDG_DATA_HOME if set, otherwise ~/.local/share.
func DataPath() string {
	dataHome := os.Getenv("XDG_DATA_HOME")
	if dataHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		dataHome = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataHome, "hushd")
}

// JournalPath returns the default path to the event journal file.
func JournalPath() string {
	return filepath.Join(DataPath(), "events.jsonl")
}

// EnsureDataDir creates the data directory if it doesn't exist.
func EnsureDataDir() error {
	return os.MkdirAll(DataPath(), 0755)
}

func configHome() string {
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		configHome = filepath.Join(home, ".config")
	}
	return configHome
}

// LoadDaemonConfig loads the daemon configuration from the specified path.
// If path is empty, uses the default config path. Returns defaults if the
// file doesn't exist.
func LoadDaemonConfig(path string) (*DaemonConfig, error) {
	if path == "" {
		path = DaemonConfigPath()
	}

	cfg := DefaultDaemonConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return cfg, nil
}
