package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hostpulse/hostpulse/config"
	"github.com/hostpulse/hostpulse/publish"
	"github.com/hostpulse/hostpulse/sampler"
	"github.com/hostpulse/hostpulse/source"
)

// healthWriteInterval is how often the daemon refreshes its health file.
const healthWriteInterval = 30 * time.Second

// buildLoop wires the counter source, publishers and sampler loop from the
// validated configuration. The returned cleanup closes any publishers that
// hold resources.
func buildLoop(cfg *config.Config, logger *slog.Logger) (*sampler.Loop, func(), error) {
	reader := source.NewHostReader(cfg.QueryTimeout.Duration, logger)

	var pubs []publish.Publisher
	var closers []func()

	filePub, err := publish.NewFilePublisher(cfg.SnapshotPath)
	if err != nil {
		return nil, nil, err
	}
	pubs = append(pubs, filePub)

	if cfg.HistoryFile != "" {
		hw, err := publish.NewHistoryWriter(cfg.HistoryFile)
		if err != nil {
			return nil, nil, err
		}
		pubs = append(pubs, hw)
		closers = append(closers, func() { _ = hw.Close() })
	}

	if cfg.Listen != "" {
		sp, err := publish.NewSocketPublisher(cfg.Listen, logger)
		if err != nil {
			return nil, nil, err
		}
		pubs = append(pubs, sp)
		closers = append(closers, func() { _ = sp.Close() })
		logger.Info("daemon: websocket publisher listening", "addr", sp.Addr())
	}

	loop, err := sampler.New(sampler.Config{
		Interval: cfg.Interval.Duration,
		Capacity: cfg.Capacity,
		Thresholds: sampler.Thresholds{
			CPUPercent:    cfg.Alerts.CPUPercent,
			MemoryPercent: cfg.Alerts.MemoryPercent,
			DiskPercent:   cfg.Alerts.DiskPercent,
		},
	}, reader, logger, pubs...)
	if err != nil {
		return nil, nil, err
	}

	cleanup := func() {
		for _, c := range closers {
			c()
		}
	}
	return loop, cleanup, nil
}

// runDaemon runs the sampling loop until ctx is cancelled, refreshing the
// health file in the background.
func runDaemon(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	loop, cleanup, err := buildLoop(cfg, logger)
	if err != nil {
		return fmt.Errorf("daemon: %w", err)
	}
	defer cleanup()

	startedAt := time.Now()
	healthPath := healthFilePath(cfg.SnapshotPath)

	// Write health immediately so -health works before the first refresh
	// interval elapses.
	if err := writeHealthFile(healthPath, loop, startedAt); err != nil {
		logger.Warn("daemon: write health", "error", err)
	}

	go func() {
		ticker := time.NewTicker(healthWriteInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := writeHealthFile(healthPath, loop, startedAt); err != nil {
					logger.Warn("daemon: write health", "error", err)
				}
			}
		}
	}()

	err = loop.Run(ctx)

	// Final health write records the stopped state for post-mortem checks.
	if werr := writeHealthFile(healthPath, loop, startedAt); werr != nil {
		logger.Warn("daemon: write final health", "error", werr)
	}
	return err
}

// runOnce performs a single sample-and-publish cycle and exits. Useful for
// cron-driven setups and smoke testing a configuration.
func runOnce(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	loop, cleanup, err := buildLoop(cfg, logger)
	if err != nil {
		return fmt.Errorf("daemon: %w", err)
	}
	defer cleanup()

	return loop.RunOnce(ctx)
}
