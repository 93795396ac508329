package source

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/godbus/dbus/v5"
)

const (
	mprisPrefix     = "org.mpris.MediaPlayer2."
	mprisPath       = dbus.ObjectPath("/org/mpris/MediaPlayer2")
	mprisIdentity   = "org.mpris.MediaPlayer2.Identity"
	mprisStatusProp = "org.mpris.MediaPlayer2.Player.PlaybackStatus"
)

// MPRISProbe detects playing media players via the MPRIS D-Bus interface.
// It covers players (browsers, music apps) that don't necessarily show up
// with a usable process identity in the PulseAudio stream list.
type MPRISProbe struct {
	mu     sync.Mutex
	logger *slog.Logger
	conn   *dbus.Conn
}

// NewMPRISProbe creates an MPRIS probe. The bus connection is established
// lazily on the first poll.
func NewMPRISProbe(logger *slog.Logger) *MPRISProbe {
	if logger == nil {
		logger = slog.Default()
	}
	return &MPRISProbe{logger: logger}
}

// ActiveSources implements Probe. Enumeration errors drop the whole tick;
// per-player errors drop that player only.
func (p *MPRISProbe) ActiveSources(ctx context.Context, excluded map[string]struct{}) []Source {
	conn, err := p.connect()
	if err != nil {
		p.logger.Debug("mpris probe unavailable", "error", err)
		return nil
	}

	var names []string
	if err := conn.BusObject().CallWithContext(ctx, "org.freedesktop.DBus.ListNames", 0).Store(&names); err != nil {
		p.logger.Debug("mpris probe failed to list bus names", "error", err)
		return nil
	}

	var out []Source
	for _, name := range names {
		if !strings.HasPrefix(name, mprisPrefix) {
			continue
		}

		obj := conn.Object(name, mprisPath)
		statusVar, err := obj.GetProperty(mprisStatusProp)
		if err != nil {
			continue
		}
		playbackStatus, _ := statusVar.Value().(string)
		if playbackStatus != "Playing" {
			continue
		}

		identity := playerIdentity(obj, name)
		if excludedIdentity(identity, excluded) {
			continue
		}

		out = append(out, Source{
			Identity: identity,
			ID:       instanceID(ctx, conn, name),
			Peak:     1.0,
		})
	}
	return out
}

// Close releases the bus connection.
func (p *MPRISProbe) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn != nil {
		_ = p.conn.Close()
		p.conn = nil
	}
}

func (p *MPRISProbe) connect() (*dbus.Conn, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.conn != nil {
		return p.conn, nil
	}

	conn, err := dbus.SessionBus()
	if err != nil {
		return nil, err
	}
	p.conn = conn
	return conn, nil
}

// playerIdentity resolves a player's identity, preferring the advertised
// Identity property over the raw bus name suffix.
func playerIdentity(obj dbus.BusObject, busName string) string {
	if v, err := obj.GetProperty(mprisIdentity); err == nil {
		if id, ok := v.Value().(string); ok && id != "" {
			return strings.ToLower(id)
		}
	}
	return BusNameIdentity(busName)
}

// BusNameIdentity derives an identity from an MPRIS bus name, e.g.
// "org.mpris.MediaPlayer2.spotify.instance123" becomes "spotify".
func BusNameIdentity(busName string) string {
	suffix := strings.TrimPrefix(busName, mprisPrefix)
	if i := strings.Index(suffix, "."); i > 0 {
		suffix = suffix[:i]
	}
	return strings.ToLower(suffix)
}

// instanceID returns the owning pid when the bus will tell us, falling back
// to the bus name itself.
func instanceID(ctx context.Context, conn *dbus.Conn, busName string) string {
	var pid uint32
	err := conn.BusObject().CallWithContext(ctx, "org.freedesktop.DBus.GetConnectionUnixProcessID", 0, busName).Store(&pid)
	if err != nil {
		return busName
	}
	return strconv.FormatUint(uint64(pid), 10)
}
