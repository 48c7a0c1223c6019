package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hostpulse/hostpulse/telemetry"
)

// FilePublisher writes snapshots to a single JSON file with an atomic
// write: encode to a temp file in the destination directory, then rename
// over the target. Readers polling the file either see the previous
// complete payload or the new one, never a torn write.
type FilePublisher struct {
	path string
}

// NewFilePublisher creates a publisher targeting path. The parent directory
// is created if it does not exist.
func NewFilePublisher(path string) (*FilePublisher, error) {
	if path == "" {
		return nil, fmt.Errorf("publish: snapshot path must not be empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("publish: create directory %s: %w", filepath.Dir(path), err)
	}
	return &FilePublisher{path: path}, nil
}

// Path returns the destination file path.
func (p *FilePublisher) Path() string { return p.path }

// Publish atomically replaces the snapshot file with the new payload.
func (p *FilePublisher) Publish(_ context.Context, snap telemetry.Snapshot) error {
	encoded, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("publish: marshal snapshot: %w", err)
	}

	dir := filepath.Dir(p.path)
	tmp, err := os.CreateTemp(dir, ".tmp-snapshot-*.json")
	if err != nil {
		return fmt.Errorf("publish: create temp: %w", err)
	}
	tmpName := tmp.Name()

	// Clean up the temp file on any failure path.
	success := false
	defer func() {
		if !success {
			_ = os.Remove(tmpName)
		}
	}()

	if err := os.Chmod(tmpName, 0o644); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("publish: chmod temp: %w", err)
	}
	if _, err := tmp.Write(encoded); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("publish: write temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("publish: close temp: %w", err)
	}
	if err := os.Rename(tmpName, p.path); err != nil {
		return fmt.Errorf("publish: rename temp: %w", err)
	}

	success = true
	return nil
}

// ReadSnapshot reads a published snapshot back from path. A missing file is
// the normal not-yet-published state and returns (nil, false, nil), so
// pollers can distinguish "not there yet" from a real failure.
func ReadSnapshot(path string) (*telemetry.Snapshot, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("publish: read snapshot: %w", err)
	}

	var snap telemetry.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, false, fmt.Errorf("publish: parse snapshot: %w", err)
	}
	return &snap, true, nil
}

// Compile-time interface compliance check.
var _ Publisher = (*FilePublisher)(nil)
