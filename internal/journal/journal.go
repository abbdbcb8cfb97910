// Package journal persists the coordinator change stream to disk so that
// operators can audit sessions and rebuild state after a restart. Change
// events stream into a snappy-compressed JSONL log while periodic full
// snapshots are written as zstd-compressed JSON documents.
package journal

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"

	"tournethub/coordinator/internal/models"
	"tournethub/coordinator/internal/state"
)

var journalNameCleaner = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

// Manifest describes the journal bundle layout so tooling can locate artefacts.
type Manifest struct {
	Version    int    `json:"version"`
	CreatedAt  string `json:"created_at"`
	EventsPath string `json:"events_path"`
	SnapshotFn string `json:"snapshot_pattern"`
}

// Journal streams change events and state snapshots into a session directory.
type Journal struct {
	mu          sync.Mutex
	dir         string
	now         func() time.Time
	eventFile   *os.File
	eventStream *snappy.Writer
	snapshots   int
	closed      bool
}

// New prepares the journal directory and opens the compressed event sink.
func New(root, sessionID string, clock func() time.Time) (*Journal, Manifest, error) {
	if root == "" {
		return nil, Manifest{}, fmt.Errorf("journal root must be provided")
	}
	if clock == nil {
		clock = time.Now
	}

	cleaned := journalNameCleaner.ReplaceAllString(sessionID, "")
	if cleaned == "" {
		cleaned = "session"
	}
	created := clock().UTC()
	folder := fmt.Sprintf("%s-%s", cleaned, created.Format("20060102T150405Z"))
	path := filepath.Join(root, folder)

	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, Manifest{}, err
	}

	eventsPath := filepath.Join(path, "changes.jsonl.sz")
	eventFile, err := os.Create(eventsPath)
	if err != nil {
		return nil, Manifest{}, err
	}
	eventStream := snappy.NewBufferedWriter(eventFile)

	manifest := Manifest{
		Version:    1,
		CreatedAt:  created.Format(time.RFC3339Nano),
		EventsPath: "changes.jsonl.sz",
		SnapshotFn: "snapshot-*.json.zst",
	}
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		eventStream.Close()
		eventFile.Close()
		return nil, Manifest{}, err
	}
	if err := os.WriteFile(filepath.Join(path, "manifest.json"), data, 0o644); err != nil {
		eventStream.Close()
		eventFile.Close()
		return nil, Manifest{}, err
	}

	journal := &Journal{
		dir:         path,
		now:         clock,
		eventFile:   eventFile,
		eventStream: eventStream,
	}
	return journal, manifest, nil
}

// Directory exposes the directory backing the journal bundle.
func (j *Journal) Directory() string {
	if j == nil {
		return ""
	}
	return j.dir
}

// Append writes a single change event line to the compressed event log.
func (j *Journal) Append(event state.ChangeEvent) error {
	if j == nil {
		return fmt.Errorf("journal not initialised")
	}
	captured := j.now().UTC()

	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return fmt.Errorf("journal already closed")
	}

	//1.- Wrap the event with a capture timestamp so downstream JSONL parsers can stream it safely.
	record := struct {
		CapturedAt string            `json:"captured_at"`
		Event      state.ChangeEvent `json:"event"`
	}{
		CapturedAt: captured.Format(time.RFC3339Nano),
		Event:      event,
	}
	line, err := json.Marshal(record)
	if err != nil {
		return err
	}
	if _, err := j.eventStream.Write(line); err != nil {
		return err
	}
	if _, err := j.eventStream.Write([]byte("\n")); err != nil {
		return err
	}
	return j.eventStream.Flush()
}

// Snapshot persists a full state export as a compressed JSON document and
// returns the path of the written file.
func (j *Journal) Snapshot(tournaments []*models.Tournament) (string, error) {
	if j == nil {
		return "", fmt.Errorf("journal not initialised")
	}
	captured := j.now().UTC()

	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return "", fmt.Errorf("journal already closed")
	}

	//1.- Name snapshots with a monotonically increasing index so ordering survives clock skew.
	j.snapshots++
	name := fmt.Sprintf("snapshot-%06d.json.zst", j.snapshots)
	path := filepath.Join(j.dir, name)

	document := struct {
		CapturedAt  string               `json:"captured_at"`
		Tournaments []*models.Tournament `json:"tournaments"`
	}{
		CapturedAt:  captured.Format(time.RFC3339Nano),
		Tournaments: tournaments,
	}
	payload, err := json.Marshal(document)
	if err != nil {
		return "", err
	}

	file, err := os.Create(path)
	if err != nil {
		return "", err
	}
	encoder, err := zstd.NewWriter(file)
	if err != nil {
		file.Close()
		return "", err
	}
	if _, err := encoder.Write(payload); err != nil {
		encoder.Close()
		file.Close()
		return "", err
	}
	if err := encoder.Close(); err != nil {
		file.Close()
		return "", err
	}
	if err := file.Close(); err != nil {
		return "", err
	}
	return path, nil
}

// ReadSnapshot decompresses a snapshot file and decodes the state export.
func ReadSnapshot(path string) ([]*models.Tournament, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	decoder, err := zstd.NewReader(file)
	if err != nil {
		return nil, err
	}
	defer decoder.Close()

	var document struct {
		CapturedAt  string               `json:"captured_at"`
		Tournaments []*models.Tournament `json:"tournaments"`
	}
	if err := json.NewDecoder(decoder).Decode(&document); err != nil {
		return nil, err
	}
	return document.Tournaments, nil
}

// Close flushes all buffers and releases the event log handle.
func (j *Journal) Close() error {
	if j == nil {
		return nil
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return nil
	}
	j.closed = true

	//1.- Attempt every flush/close and surface the first failure for callers to inspect.
	var firstErr error
	if err := j.eventStream.Flush(); err != nil {
		firstErr = err
	}
	if err := j.eventStream.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := j.eventFile.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
