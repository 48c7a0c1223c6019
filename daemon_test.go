package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hostpulse/hostpulse/config"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func minimalConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.SnapshotPath = filepath.Join(t.TempDir(), "snapshot.json")
	return cfg
}

func TestBuildLoopFileOnly(t *testing.T) {
	cfg := minimalConfig(t)

	loop, cleanup, err := buildLoop(cfg, testLogger())
	if err != nil {
		t.Fatalf("buildLoop: %v", err)
	}
	defer cleanup()

	if loop == nil {
		t.Fatal("buildLoop returned nil loop")
	}
	if got := loop.State().String(); got != "idle" {
		t.Errorf("initial state = %q, want idle", got)
	}
}

func TestBuildLoopWithHistoryAndSocket(t *testing.T) {
	cfg := minimalConfig(t)
	cfg.HistoryFile = filepath.Join(t.TempDir(), "history.jsonl")
	cfg.Listen = "127.0.0.1:0"

	loop, cleanup, err := buildLoop(cfg, testLogger())
	if err != nil {
		t.Fatalf("buildLoop: %v", err)
	}
	defer cleanup()

	if loop == nil {
		t.Fatal("buildLoop returned nil loop")
	}
}

// The health file must exist right after startup, not only after the first
// periodic refresh.
func TestRunDaemonWritesHealthFileAtStartup(t *testing.T) {
	cfg := minimalConfig(t)
	cfg.Interval = config.Duration{Duration: 200 * time.Millisecond}
	cfg.QueryTimeout = config.Duration{Duration: 100 * time.Millisecond}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runDaemon(ctx, cfg, testLogger()) }()

	healthPath := healthFilePath(cfg.SnapshotPath)
	deadline := time.Now().Add(5 * time.Second)
	var status *HealthStatus
	for time.Now().Before(deadline) {
		var err error
		if status, err = readHealthFile(healthPath); err == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("runDaemon: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not stop after cancellation")
	}

	if status == nil {
		t.Fatal("health file was not written at startup")
	}
	if status.PID != os.Getpid() {
		t.Errorf("PID = %d, want %d", status.PID, os.Getpid())
	}
}

func TestBuildLoopInvalidListen(t *testing.T) {
	cfg := minimalConfig(t)
	cfg.Listen = "not-an-address"

	_, _, err := buildLoop(cfg, testLogger())
	if err == nil {
		t.Fatal("buildLoop accepted an invalid listen address")
	}
}

func TestBuildLoopRejectsBadInterval(t *testing.T) {
	cfg := minimalConfig(t)
	cfg.Interval = config.Duration{Duration: -time.Second}

	_, _, err := buildLoop(cfg, testLogger())
	if err == nil {
		t.Fatal("buildLoop accepted a negative interval")
	}
}
