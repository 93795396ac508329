// Package journal persists monitor transitions to an append-only JSONL
// file so operators can reconstruct when ambient playback started,
// ducked and stopped.
package journal

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// SchemaVersion is the current journal schema version.
const SchemaVersion = 1

// ErrClosed is returned when operations are attempted on a closed journal.
var ErrClosed = errors.New("journal is closed")

// Event is one recorded monitor transition.
type Event struct {
	ID     string    `json:"id"`
	At     time.Time `json:"at"`
	Kind   string    `json:"kind"`
	Detail string    `json:"detail,omitempty"`
}

// schemaHeader is the first line of the JSONL file.
type schemaHeader struct {
	HushdSchemaVersion int   `json:"hushd_schema_version"`
	CreatedAt          int64 `json:"created_at"`
}

// Journal is a JSONL-backed event log. Safe for concurrent use.
type Journal struct {
	mu     sync.Mutex
	path   string
	file   *os.File
	logger *slog.Logger
	closed bool
}

// Open creates or opens the journal file at path, writing the schema
// header when the file is new.
func Open(path string, logger *slog.Logger) (*Journal, error) {
	if logger == nil {
		logger = slog.Default()
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal %s: %w", path, err)
	}

	j := &Journal{
		path:   path,
		file:   file,
		logger: logger,
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, err
	}
	if info.Size() == 0 {
		if err := j.writeHeader(); err != nil {
			file.Close()
			return nil, err
		}
	}

	return j, nil
}

func (j *Journal) writeHeader() error {
	header := schemaHeader{
		HushdSchemaVersion: SchemaVersion,
		CreatedAt:          time.Now().Unix(),
	}

	data, err := json.Marshal(header)
	if err != nil {
		return err
	}

	_, err = j.file.Write(append(data, '\n'))
	return err
}

// Record appends a transition event, stamping it with a fresh ID and the
// current time. Implements the monitor's Recorder; write failures are
// logged rather than propagated so a full disk never stalls monitoring.
func (j *Journal) Record(kind, detail string) {
	event := Event{
		ID:     ulid.Make().String(),
		At:     time.Now().UTC(),
		Kind:   kind,
		Detail: detail,
	}
	if err := j.Append(event); err != nil {
		j.logger.Warn("failed to record event", "kind", kind, "error", err)
	}
}

// Append writes one event to the journal.
func (j *Journal) Append(event Event) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed || j.file == nil {
		return ErrClosed
	}

	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	if _, err := j.file.Write(append(data, '\n')); err != nil {
		return err
	}
	return j.file.Sync()
}

// Load reads all events from the journal. Malformed lines are skipped.
func (j *Journal) Load() ([]Event, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed || j.file == nil {
		return nil, ErrClosed
	}

	if _, err := j.file.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("seek %s: %w", j.path, err)
	}

	var events []Event
	scanner := bufio.NewScanner(j.file)

	const maxLineSize = 1024 * 1024
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()

		if len(line) == 0 {
			continue
		}

		if lineNum == 1 {
			var header schemaHeader
			if err := json.Unmarshal(line, &header); err != nil {
				continue
			}
			if header.HushdSchemaVersion > SchemaVersion {
				return nil, fmt.Errorf("unsupported schema version %d (max: %d)",
					header.HushdSchemaVersion, SchemaVersion)
			}
			continue
		}

		var event Event
		if err := json.Unmarshal(line, &event); err != nil {
			continue
		}
		if event.ID != "" {
			events = append(events, event)
		}
	}

	if err := scanner.Err(); err != nil {
		return events, fmt.Errorf("error reading journal: %w", err)
	}

	if _, err := j.file.Seek(0, io.SeekEnd); err != nil {
		return events, err
	}

	return events, nil
}

// Prune drops the oldest events so at most keep remain, rewriting the
// file. A no-op when the journal is already within bounds.
func (j *Journal) Prune(keep int) error {
	events, err := j.Load()
	if err != nil {
		return err
	}
	if len(events) <= keep {
		return nil
	}
	return j.rewrite(events[len(events)-keep:])
}

// Clear removes all stored events.
func (j *Journal) Clear() error {
	return j.rewrite(nil)
}

// rewrite replaces the journal file with the given events, keeping a
// backup until the new file is safely on disk.
func (j *Journal) rewrite(events []Event) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return ErrClosed
	}

	if j.file != nil {
		if err := j.file.Close(); err != nil {
			return err
		}
		j.file = nil
	}

	backupPath := j.path + ".bak"
	if err := os.Rename(j.path, backupPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to create backup: %w", err)
	}

	file, err := os.OpenFile(j.path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		os.Rename(backupPath, j.path)
		return fmt.Errorf("failed to create new journal: %w", err)
	}
	j.file = file

	if err := j.writeHeader(); err != nil {
		return err
	}

	for _, event := range events {
		data, err := json.Marshal(event)
		if err != nil {
			return err
		}
		if _, err := j.file.Write(append(data, '\n')); err != nil {
			return err
		}
	}

	if err := j.file.Sync(); err != nil {
		return err
	}

	os.Remove(backupPath)
	return nil
}

// Close releases the file handle.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return nil
	}
	j.closed = true

	if j.file != nil {
		err := j.file.Close()
		j.file = nil
		return err
	}
	return nil
}
