package telemetry

import "errors"

// ErrNonPositiveInterval is returned by ComputeSample when the current
// reading is not strictly newer than the previous one. The caller skips the
// sample rather than zero-filling it, so a clock anomaly never shows up as
// a spurious rate spike.
var ErrNonPositiveInterval = errors.New("telemetry: non-positive interval between readings")

// ComputeSample derives a Sample from two consecutive readings.
//
// Gauge fields pass through unchanged from curr. For each cumulative
// counter the rate is (curr - prev) / elapsed seconds. A counter that
// decreased is treated as having restarted from zero, so the delta is the
// current value alone; this is applied independently per field. A counter
// absent in either reading yields an absent rate.
func ComputeSample(prev, curr Reading) (Sample, error) {
	elapsed := curr.At.Sub(prev.At).Seconds()
	if elapsed <= 0 {
		return Sample{}, ErrNonPositiveInterval
	}

	return Sample{
		Timestamp:       curr.At,
		CPUPercent:      curr.CPUPercent,
		MemoryPercent:   curr.MemoryPercent,
		MemoryUsedBytes: curr.MemoryUsedBytes,
		DiskUsedPercent: curr.DiskUsedPercent,
		SwapUsedPercent: curr.SwapUsedPercent,
		DiskReadRate:    counterRate(prev.DiskReadBytes, curr.DiskReadBytes, elapsed),
		DiskWriteRate:   counterRate(prev.DiskWriteBytes, curr.DiskWriteBytes, elapsed),
		NetSendRate:     counterRate(prev.NetSentBytes, curr.NetSentBytes, elapsed),
		NetRecvRate:     counterRate(prev.NetRecvBytes, curr.NetRecvBytes, elapsed),
	}, nil
}

// counterRate converts one cumulative counter pair into a per-second rate.
// Returns nil when either end of the pair is absent.
func counterRate(prev, curr *uint64, elapsed float64) *float64 {
	if prev == nil || curr == nil {
		return nil
	}
	delta := *curr
	if *curr >= *prev {
		delta = *curr - *prev
	}
	rate := float64(delta) / elapsed
	return &rate
}
