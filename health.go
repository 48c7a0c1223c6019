package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/hostpulse/hostpulse/sampler"
	"github.com/hostpulse/hostpulse/telemetry"
)

// HealthStatus represents the daemon health check output.
type HealthStatus struct {
	Status    string            `json:"status"`
	PID       int               `json:"pid"`
	StartedAt time.Time         `json:"started_at"`
	State     string            `json:"state"`
	Stats     sampler.Stats     `json:"stats"`
	Summary   telemetry.Summary `json:"summary"`
}

// healthFile is the filename for the daemon health check, written beside
// the snapshot file.
const healthFile = "health.json"

// healthFilePath returns the health file location for a given snapshot path.
func healthFilePath(snapshotPath string) string {
	return filepath.Join(filepath.Dir(snapshotPath), healthFile)
}

// writeHealthFile writes the current daemon health beside the snapshot.
func writeHealthFile(path string, loop *sampler.Loop, startedAt time.Time) error {
	status := HealthStatus{
		Status:    "ok",
		PID:       os.Getpid(),
		StartedAt: startedAt,
		State:     loop.State().String(),
		Stats:     loop.Stats(),
		Summary:   telemetry.Summarize(loop.History()),
	}

	data, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal health status: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// readHealthFile reads the health status back from disk.
func readHealthFile(path string) (*HealthStatus, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read health file: %w", err)
	}

	var status HealthStatus
	if err := json.Unmarshal(data, &status); err != nil {
		return nil, fmt.Errorf("unmarshal health file: %w", err)
	}
	return &status, nil
}

// checkHealth reads the health file and reports whether the daemon is
// healthy. The daemon is considered stale if the last tick is older than 2x
// the sampling interval. Returns exit code 0 for healthy, 1 otherwise.
func checkHealth(path string, interval time.Duration, jsonOutput bool) int {
	status, err := readHealthFile(path)
	if err != nil {
		if jsonOutput {
			fmt.Println(`{"status":"missing","error":"no health file found"}`)
		} else {
			fmt.Fprintln(os.Stderr, "daemon not running (no health file)")
		}
		return 1
	}

	age := time.Since(status.Stats.LastTick)
	stale := age > 2*interval

	if jsonOutput {
		out := map[string]interface{}{
			"status":    status.Status,
			"pid":       status.PID,
			"state":     status.State,
			"last_tick": status.Stats.LastTick.Format(time.RFC3339),
			"age":       age.String(),
			"stale":     stale,
			"samples":   status.Stats.Samples,
		}
		data, _ := json.MarshalIndent(out, "", "  ")
		fmt.Println(string(data))
	} else if stale {
		fmt.Fprintf(os.Stderr, "daemon stale: last tick %s ago (pid %d)\n", age.Round(time.Second), status.PID)
	} else {
		fmt.Printf("daemon healthy: %s, %d samples retained (pid %d)\n",
			status.State, status.Summary.Samples, status.PID)
	}

	if stale {
		return 1
	}
	return 0
}
