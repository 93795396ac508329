package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/hushd/internal/journal"
	"github.com/jmylchreest/hushd/internal/status"
)

func newTestServer(t *testing.T) (*httptest.Server, *status.Reporter, *journal.Journal) {
	t.Helper()

	reporter := status.NewReporter(nil)
	j, err := journal.Open(filepath.Join(t.TempDir(), "events.jsonl"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })

	srv := New("127.0.0.1:0", reporter, j, nil)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, reporter, j
}

func TestStatusEndpoint(t *testing.T) {
	ts, reporter, _ := newTestServer(t)
	reporter.Set(status.StatePlaying, "Playing ambient sound")

	resp, err := http.Get(ts.URL + "/api/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var snapshot status.Snapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snapshot))
	assert.Equal(t, status.StatePlaying, snapshot.State)
	assert.Equal(t, "Playing ambient sound", snapshot.Message)
}

func TestHistoryEndpoint(t *testing.T) {
	ts, _, j := newTestServer(t)
	j.Record("playing", "Starting ambient sound")
	j.Record("ducked", "External audio returned")

	resp, err := http.Get(ts.URL + "/api/history")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var events []journal.Event
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&events))
	require.Len(t, events, 2)
	assert.Equal(t, "playing", events[0].Kind)
	assert.Equal(t, "ducked", events[1].Kind)
}

func TestHistoryEndpoint_NilJournal(t *testing.T) {
	reporter := status.NewReporter(nil)
	srv := New("127.0.0.1:0", reporter, nil, nil)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/history")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var events []journal.Event
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&events))
	assert.Empty(t, events)
}

func TestWebSocket_StreamsSnapshots(t *testing.T) {
	ts, reporter, _ := newTestServer(t)
	reporter.Set(status.StateWatching, "Watching for silence")

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	// The current snapshot arrives first.
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var first status.Snapshot
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, status.StateWatching, first.State)

	// Then every change.
	reporter.Set(status.StateCountdown, "Silence detected, ambient sound in 30s")
	var second status.Snapshot
	require.NoError(t, conn.ReadJSON(&second))
	assert.Equal(t, status.StateCountdown, second.State)
}

func TestWebSocket_RejectsForeignOrigin(t *testing.T) {
	ts, _, _ := newTestServer(t)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/ws"
	header := http.Header{"Origin": []string{"http://evil.example"}}
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
	require.Error(t, err)
	if resp != nil {
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	}
}

func TestCheckOrigin(t *testing.T) {
	tests := []struct {
		name   string
		origin string
		want   bool
	}{
		{"no origin", "", true},
		{"localhost", "http://localhost:3000", true},
		{"loopback", "http://127.0.0.1:8414", true},
		{"ipv6 loopback", "http://[::1]:8414", true},
		{"foreign host", "http://evil.example", false},
		{"garbage", "://nope", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/api/ws", nil)
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			assert.Equal(t, tt.want, checkOrigin(r))
		})
	}
}
