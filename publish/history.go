package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/hostpulse/hostpulse/telemetry"
)

// historyLine is one record of the JSONL history log.
type historyLine struct {
	Host        string           `json:"host"`
	PublishedAt time.Time        `json:"published_at"`
	Sample      telemetry.Sample `json:"sample"`
}

// HistoryWriter appends the newest sample of each published snapshot to an
// append-only JSONL file, one object per line. Unlike the snapshot file it
// grows without bound; rotation is left to the operator.
type HistoryWriter struct {
	mu   sync.Mutex
	file *os.File
	enc  *json.Encoder

	// lastSeen avoids re-logging the same sample when a publish carries
	// no new data (e.g. a tick that was skipped).
	lastSeen time.Time
}

// NewHistoryWriter opens (or creates) the JSONL log at path for appending.
func NewHistoryWriter(path string) (*HistoryWriter, error) {
	if path == "" {
		return nil, fmt.Errorf("publish: history path must not be empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("publish: create directory %s: %w", filepath.Dir(path), err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("publish: open history %s: %w", path, err)
	}
	return &HistoryWriter{file: f, enc: json.NewEncoder(f)}, nil
}

// Publish appends the snapshot's newest sample as one JSON line. Snapshots
// with no samples, or whose newest sample was already logged, are ignored.
func (w *HistoryWriter) Publish(_ context.Context, snap telemetry.Snapshot) error {
	if len(snap.Samples) == 0 {
		return nil
	}
	latest := snap.Samples[len(snap.Samples)-1]

	w.mu.Lock()
	defer w.mu.Unlock()

	if !latest.Timestamp.After(w.lastSeen) {
		return nil
	}
	line := historyLine{
		Host:        snap.Host.Hostname,
		PublishedAt: snap.GeneratedAt,
		Sample:      latest,
	}
	if err := w.enc.Encode(&line); err != nil {
		return fmt.Errorf("publish: append history: %w", err)
	}
	w.lastSeen = latest.Timestamp
	return nil
}

// Close closes the underlying log file.
func (w *HistoryWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.file.Close()
}

// Compile-time interface compliance check.
var _ Publisher = (*HistoryWriter)(nil)
