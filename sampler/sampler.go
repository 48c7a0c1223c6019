// Package sampler implements the sampling loop: on each tick it pulls a raw
// reading from the counter source, derives a per-interval sample against the
// previous reading, appends it to the bounded history, and hands a snapshot
// to the configured publishers. Per-tick failures are logged and contained;
// only shutdown stops the loop.
package sampler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hostpulse/hostpulse/publish"
	"github.com/hostpulse/hostpulse/source"
	"github.com/hostpulse/hostpulse/telemetry"
)

// State is the sampler loop's lifecycle state.
type State int32

const (
	// StateIdle means the loop is constructed but has not started, or is
	// sleeping between ticks.
	StateIdle State = iota
	// StateSampling means a tick is in flight.
	StateSampling
	// StatePublished means the most recent tick completed and its snapshot
	// was handed to the publishers.
	StatePublished
	// StateStopped means the loop exited after a shutdown signal.
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSampling:
		return "sampling"
	case StatePublished:
		return "published"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Thresholds holds the alert limits for the pass-through gauges. A limit
// of zero or below disables that alert.
type Thresholds struct {
	CPUPercent    float64
	MemoryPercent float64
	DiskPercent   float64
}

// Config holds the sampler loop settings.
type Config struct {
	// Interval is the tick cadence. Must be positive.
	Interval time.Duration

	// Capacity is the number of samples retained. Must be positive.
	Capacity int

	// Thresholds are the gauge alert limits.
	Thresholds Thresholds
}

// Stats exposes loop counters for health reporting.
type Stats struct {
	Ticks           int64     `json:"ticks"`
	Samples         int64     `json:"samples"`
	SkippedTicks    int64     `json:"skipped_ticks"`
	PublishFailures int64     `json:"publish_failures"`
	LastTick        time.Time `json:"last_tick"`
}

// errTracker deduplicates repeated identical per-tick errors so a
// persistently failing subsystem does not flood the log.
type errTracker struct {
	lastMsg    string
	lastTime   time.Time
	suppressed int64
}

// Loop is the sampler. It exclusively owns the previous reading needed for
// delta computation and is the sole writer of the sample history.
type Loop struct {
	cfg    Config
	src    source.Reader
	pubs   []publish.Publisher
	logger *slog.Logger

	state atomic.Int32

	// prev is the previous raw reading; nil before the first tick. Only
	// the loop goroutine touches it.
	prev *telemetry.Reading

	identity telemetry.HostIdentity

	// mu guards the ring, alerts and stats: the loop writes them, health
	// reporting reads them from another goroutine.
	mu     sync.Mutex
	ring   *telemetry.Ring[telemetry.Sample]
	alerts []telemetry.Alert
	stats  Stats

	readErrs errTracker
}

// New validates the configuration and returns a Loop ready to run. At least
// one publisher is required.
func New(cfg Config, src source.Reader, logger *slog.Logger, pubs ...publish.Publisher) (*Loop, error) {
	if cfg.Interval <= 0 {
		return nil, fmt.Errorf("sampler: interval must be positive, got %s", cfg.Interval)
	}
	if src == nil {
		return nil, fmt.Errorf("sampler: counter source must not be nil")
	}
	if len(pubs) == 0 {
		return nil, fmt.Errorf("sampler: at least one publisher is required")
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	ring, err := telemetry.NewRing[telemetry.Sample](cfg.Capacity)
	if err != nil {
		return nil, fmt.Errorf("sampler: %w", err)
	}

	return &Loop{
		cfg:    cfg,
		src:    src,
		pubs:   pubs,
		logger: logger,
		ring:   ring,
	}, nil
}

// Run captures the host identity, then ticks at the configured interval
// until ctx is cancelled. An in-flight tick always completes before the
// loop transitions to Stopped; the caller's shutdown never interrupts a
// counter read midway.
func (l *Loop) Run(ctx context.Context) error {
	id, err := l.src.ReadIdentity(ctx)
	if err != nil {
		return fmt.Errorf("sampler: read host identity: %w", err)
	}
	l.identity = id

	l.logger.Info("sampler: starting",
		"host", id.Hostname,
		"interval", l.cfg.Interval,
		"capacity", l.cfg.Capacity,
	)

	// First tick immediately; it seeds the previous reading and produces
	// no sample, but publishes an empty snapshot so the medium exists for
	// early pollers.
	l.tick(ctx)

	ticker := time.NewTicker(l.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			l.state.Store(int32(StateStopped))
			l.logger.Info("sampler: stopped")
			return nil
		case <-ticker.C:
			l.tick(ctx)
		}
	}
}

// RunOnce performs a single sample-and-publish cycle: it captures the host
// identity, seeds the previous reading, waits one interval, and takes the
// second reading that yields the first sample. Used by the -once mode.
func (l *Loop) RunOnce(ctx context.Context) error {
	id, err := l.src.ReadIdentity(ctx)
	if err != nil {
		return fmt.Errorf("sampler: read host identity: %w", err)
	}
	l.identity = id

	l.tick(ctx)

	select {
	case <-ctx.Done():
		l.state.Store(int32(StateStopped))
		return ctx.Err()
	case <-time.After(l.cfg.Interval):
	}

	l.tick(ctx)
	l.state.Store(int32(StateStopped))
	return nil
}

// State returns the loop's current lifecycle state.
func (l *Loop) State() State {
	return State(l.state.Load())
}

// Stats returns a copy of the loop counters.
func (l *Loop) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stats
}

// History returns a copy of the retained samples, oldest first.
func (l *Loop) History() []telemetry.Sample {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.ring.Snapshot()
}

// Snapshot assembles the publication payload from the current state.
func (l *Loop) Snapshot() telemetry.Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	return telemetry.Snapshot{
		Host:        l.identity,
		GeneratedAt: time.Now(),
		Samples:     l.ring.Snapshot(),
		Alerts:      append([]telemetry.Alert(nil), l.alerts...),
	}
}

// tick runs one Sampling -> Published transition. Every failure mode is
// contained: the tick is skipped or degraded, counters are updated, and the
// loop carries on.
func (l *Loop) tick(ctx context.Context) {
	l.state.Store(int32(StateSampling))
	now := time.Now()

	l.mu.Lock()
	l.stats.Ticks++
	l.stats.LastTick = now
	l.mu.Unlock()

	reading, err := l.src.ReadCounters(ctx)
	if err != nil {
		var unavailable *source.CounterUnavailable
		if !errors.As(err, &unavailable) {
			// Total read failure: nothing usable this tick.
			l.logReadError(err)
			l.skipTick(ctx)
			return
		}
		// Partial failure: the degraded fields are absent, the rest of
		// the reading is still good.
		l.logReadError(unavailable)
	}

	if reading.Empty() {
		l.logger.Warn("sampler: reading carried no fields, skipping tick")
		l.skipTick(ctx)
		return
	}

	if l.prev == nil {
		// First reading: no interval exists yet, so no sample.
		l.prev = &reading
		l.publishTick(ctx)
		return
	}

	sample, err := telemetry.ComputeSample(*l.prev, reading)
	l.prev = &reading
	if err != nil {
		// Clock anomaly between consecutive reads; skip rather than
		// zero-fill.
		l.logger.Warn("sampler: skipping sample", "error", err)
		l.skipTick(ctx)
		return
	}

	l.mu.Lock()
	l.ring.Append(sample)
	l.stats.Samples++
	l.alerts = evaluateAlerts(sample, l.cfg.Thresholds)
	alerts := l.alerts
	l.mu.Unlock()

	for _, a := range alerts {
		l.logger.Warn("sampler: threshold exceeded",
			"metric", a.Metric,
			"value", a.Value,
			"threshold", a.Threshold,
		)
	}

	l.publishTick(ctx)
}

// skipTick records a skipped tick and still publishes, so the payload's
// generated_at keeps acting as a liveness signal for pollers.
func (l *Loop) skipTick(ctx context.Context) {
	l.mu.Lock()
	l.stats.SkippedTicks++
	l.mu.Unlock()
	l.publishTick(ctx)
}

// publishTick hands the current snapshot to every publisher. A publish
// failure is logged and retried naturally on the next cadence.
func (l *Loop) publishTick(ctx context.Context) {
	snap := l.Snapshot()
	for _, p := range l.pubs {
		if err := p.Publish(ctx, snap); err != nil {
			l.logger.Error("sampler: publish failed", "error", err)
			l.mu.Lock()
			l.stats.PublishFailures++
			l.mu.Unlock()
		}
	}
	l.state.Store(int32(StatePublished))
}

// logReadError deduplicates repeated identical read errors. The same
// message recurring within an hour is suppressed, with a summary every 100
// occurrences.
func (l *Loop) logReadError(err error) {
	msg := err.Error()
	now := time.Now()
	t := &l.readErrs
	if msg == t.lastMsg && now.Sub(t.lastTime) < time.Hour {
		t.suppressed++
		if t.suppressed%100 == 0 {
			l.logger.Warn("sampler: counter read error (repeated)", "count", t.suppressed, "error", err)
		}
		return
	}
	if t.suppressed > 0 {
		l.logger.Warn("sampler: previous counter read error repeated", "count", t.suppressed)
	}
	l.logger.Warn("sampler: counter read error", "error", err)
	t.lastMsg = msg
	t.lastTime = now
	t.suppressed = 0
}

// evaluateAlerts checks the sample's gauges against the thresholds.
func evaluateAlerts(s telemetry.Sample, th Thresholds) []telemetry.Alert {
	var alerts []telemetry.Alert
	check := func(metric string, v *float64, limit float64) {
		if limit <= 0 || v == nil || *v <= limit {
			return
		}
		alerts = append(alerts, telemetry.Alert{Metric: metric, Value: *v, Threshold: limit})
	}
	check("cpu_percent", s.CPUPercent, th.CPUPercent)
	check("memory_percent", s.MemoryPercent, th.MemoryPercent)
	check("disk_used_percent", s.DiskUsedPercent, th.DiskPercent)
	return alerts
}
