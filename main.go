// hostpulse samples live host performance counters (CPU, memory, disk I/O,
// network I/O) at a fixed cadence, converts cumulative OS counters into
// per-interval rates, retains a bounded recent history, and publishes a
// consistent snapshot for an external dashboard to poll.
//
// Usage:
//
//	hostpulse [flags]
//
// Flags:
//
//	-daemon         Run the sampling daemon
//	-once           Perform a single sample-and-publish cycle and exit
//	-dump           Print the currently published snapshot and exit
//	-health         Check daemon health status
//	-json           Output health check as JSON (with -health)
//	-config string  Path to configuration file (default: ~/.config/hostpulse/config.yaml)
//	-verbose        Enable verbose logging
//	-version        Print version and exit
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/hostpulse/hostpulse/config"
	"github.com/hostpulse/hostpulse/publish"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		configPath  = flag.String("config", "", "Path to configuration file (default: ~/.config/hostpulse/config.yaml)")
		runDaemonF  = flag.Bool("daemon", false, "Run the sampling daemon")
		runOnceF    = flag.Bool("once", false, "Perform a single sample-and-publish cycle and exit")
		dumpF       = flag.Bool("dump", false, "Print the currently published snapshot and exit")
		healthF     = flag.Bool("health", false, "Check daemon health status")
		healthJSON  = flag.Bool("json", false, "Output health check as JSON (with -health)")
		verbose     = flag.Bool("verbose", false, "Enable verbose logging")
		showVersion = flag.Bool("version", false, "Print version and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("hostpulse %s (%s, built %s)\n", version, commit, date)
		return 0
	}

	path := *configPath
	if path == "" {
		path = defaultConfigPath()
	}

	cfg, err := config.LoadConfig(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "hostpulse: %v\n", err)
		return 1
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "hostpulse: invalid configuration: %v\n", err)
		return 1
	}

	logger := newLogger(cfg.LogLevel, *verbose)

	switch {
	case *healthF:
		return checkHealth(healthFilePath(cfg.SnapshotPath), cfg.Interval.Duration, *healthJSON)

	case *dumpF:
		return dumpSnapshot(cfg.SnapshotPath)

	case *runOnceF:
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		if err := runOnce(ctx, cfg, logger); err != nil {
			fmt.Fprintf(os.Stderr, "hostpulse: %v\n", err)
			return 1
		}
		return 0

	case *runDaemonF:
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		if err := runDaemon(ctx, cfg, logger); err != nil {
			fmt.Fprintf(os.Stderr, "hostpulse: %v\n", err)
			return 1
		}
		return 0

	default:
		flag.Usage()
		return 2
	}
}

// defaultConfigPath returns ~/.config/hostpulse/config.yaml, or empty (use
// built-in defaults) when the home directory cannot be determined.
func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "hostpulse", "config.yaml")
}

// newLogger builds the daemon logger on stderr at the configured level.
// -verbose forces debug.
func newLogger(level string, verbose bool) *slog.Logger {
	var l slog.Level
	switch strings.ToLower(level) {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	if verbose {
		l = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l}))
}

// dumpSnapshot prints the currently published snapshot, tolerating the
// not-yet-published state the way any poller must.
func dumpSnapshot(path string) int {
	snap, ok, err := publish.ReadSnapshot(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "hostpulse: %v\n", err)
		return 1
	}
	if !ok {
		fmt.Fprintln(os.Stderr, "no snapshot published yet")
		return 1
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "hostpulse: %v\n", err)
		return 1
	}
	fmt.Println(string(data))
	return 0
}
