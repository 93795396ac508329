package journal

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testEvent(kind string) Event {
	return Event{
		ID:   ulid.Make().String(),
		At:   time.Now().UTC(),
		Kind: kind,
	}
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "events.jsonl")

	j, err := Open(path, nil)
	require.NoError(t, err)
	defer j.Close()

	// File should exist with the schema header
	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(content), "hushd_schema_version")
}

func TestOpen_CreatesDirectory(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "subdir", "nested", "events.jsonl")

	j, err := Open(path, nil)
	require.NoError(t, err)
	defer j.Close()

	_, err = os.Stat(filepath.Dir(path))
	require.NoError(t, err)
}

func TestJournal_AppendAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")

	j, err := Open(path, nil)
	require.NoError(t, err)
	defer j.Close()

	require.NoError(t, j.Append(testEvent("playing")))
	require.NoError(t, j.Append(testEvent("ducked")))

	events, err := j.Load()
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "playing", events[0].Kind)
	assert.Equal(t, "ducked", events[1].Kind)
}

func TestJournal_Record(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")

	j, err := Open(path, nil)
	require.NoError(t, err)
	defer j.Close()

	j.Record("stopped", "Ambient sound finished")

	events, err := j.Load()
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "stopped", events[0].Kind)
	assert.Equal(t, "Ambient sound finished", events[0].Detail)
	assert.NotEmpty(t, events[0].ID)
	assert.False(t, events[0].At.IsZero())
}

func TestJournal_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")

	j, err := Open(path, nil)
	require.NoError(t, err)
	require.NoError(t, j.Append(testEvent("playing")))
	require.NoError(t, j.Close())

	j, err = Open(path, nil)
	require.NoError(t, err)
	defer j.Close()

	// Reopening must not rewrite the header or lose events.
	require.NoError(t, j.Append(testEvent("watching")))
	events, err := j.Load()
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "playing", events[0].Kind)
	assert.Equal(t, "watching", events[1].Kind)
}

func TestJournal_SkipsMalformedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")

	j, err := Open(path, nil)
	require.NoError(t, err)
	require.NoError(t, j.Append(testEvent("playing")))
	require.NoError(t, j.Close())

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0600)
	require.NoError(t, err)
	_, err = f.WriteString("{not valid json\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	j, err = Open(path, nil)
	require.NoError(t, err)
	defer j.Close()

	events, err := j.Load()
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestJournal_UnsupportedSchemaVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(`{"hushd_schema_version":99,"created_at":0}`+"\n"), 0600))

	j, err := Open(path, nil)
	require.NoError(t, err)
	defer j.Close()

	_, err = j.Load()
	assert.Error(t, err)
}

func TestJournal_Prune(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")

	j, err := Open(path, nil)
	require.NoError(t, err)
	defer j.Close()

	for i := 0; i < 10; i++ {
		require.NoError(t, j.Append(testEvent("countdown")))
	}
	last := testEvent("playing")
	require.NoError(t, j.Append(last))

	require.NoError(t, j.Prune(3))

	events, err := j.Load()
	require.NoError(t, err)
	require.Len(t, events, 3)
	// The newest events survive.
	assert.Equal(t, last.ID, events[2].ID)

	// Within bounds is a no-op.
	require.NoError(t, j.Prune(3))
	events, err = j.Load()
	require.NoError(t, err)
	assert.Len(t, events, 3)
}

func TestJournal_Clear(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")

	j, err := Open(path, nil)
	require.NoError(t, err)
	defer j.Close()

	require.NoError(t, j.Append(testEvent("playing")))
	require.NoError(t, j.Clear())

	events, err := j.Load()
	require.NoError(t, err)
	assert.Empty(t, events)

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(content), "hushd_schema_version")
}

func TestJournal_ClosedOperations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")

	j, err := Open(path, nil)
	require.NoError(t, err)
	require.NoError(t, j.Close())

	assert.ErrorIs(t, j.Append(testEvent("playing")), ErrClosed)
	_, err = j.Load()
	assert.ErrorIs(t, err, ErrClosed)

	// Closing twice is fine.
	assert.NoError(t, j.Close())
}
