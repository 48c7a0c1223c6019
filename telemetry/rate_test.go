package telemetry

import (
	"errors"
	"math"
	"testing"
	"time"
)

func f64(v float64) *float64 { return &v }
func u64(v uint64) *uint64   { return &v }

func reading(at time.Time) Reading {
	return Reading{At: at}
}

func TestComputeSampleBasicRates(t *testing.T) {
	t0 := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	prev := Reading{
		At:             t0,
		DiskReadBytes:  u64(1000),
		DiskWriteBytes: u64(100),
		NetSentBytes:   u64(5000),
		NetRecvBytes:   u64(20000),
	}
	curr := Reading{
		At:              t0.Add(2 * time.Second),
		CPUPercent:      f64(42.5),
		MemoryPercent:   f64(61.0),
		MemoryUsedBytes: u64(8 << 30),
		DiskReadBytes:   u64(3000),
		DiskWriteBytes:  u64(150),
		NetSentBytes:    u64(5000),
		NetRecvBytes:    u64(24000),
	}

	s, err := ComputeSample(prev, curr)
	if err != nil {
		t.Fatalf("ComputeSample: %v", err)
	}

	if s.Timestamp != curr.At {
		t.Errorf("Timestamp = %s, want %s", s.Timestamp, curr.At)
	}
	if s.CPUPercent == nil || *s.CPUPercent != 42.5 {
		t.Errorf("CPUPercent = %v, want 42.5", s.CPUPercent)
	}
	if s.MemoryUsedBytes == nil || *s.MemoryUsedBytes != 8<<30 {
		t.Errorf("MemoryUsedBytes = %v, want %d", s.MemoryUsedBytes, uint64(8<<30))
	}

	for _, tc := range []struct {
		name string
		got  *float64
		want float64
	}{
		{"DiskReadRate", s.DiskReadRate, 1000},
		{"DiskWriteRate", s.DiskWriteRate, 25},
		{"NetSendRate", s.NetSendRate, 0},
		{"NetRecvRate", s.NetRecvRate, 2000},
	} {
		if tc.got == nil {
			t.Errorf("%s is absent, want %g", tc.name, tc.want)
			continue
		}
		if math.Abs(*tc.got-tc.want) > 1e-9 {
			t.Errorf("%s = %g, want %g", tc.name, *tc.got, tc.want)
		}
	}
}

func TestComputeSampleNonPositiveInterval(t *testing.T) {
	t0 := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	for _, tc := range []struct {
		name string
		curr time.Time
	}{
		{"same timestamp", t0},
		{"earlier timestamp", t0.Add(-time.Second)},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ComputeSample(reading(t0), reading(tc.curr))
			if !errors.Is(err, ErrNonPositiveInterval) {
				t.Errorf("error = %v, want ErrNonPositiveInterval", err)
			}
		})
	}
}

// Counter resets must be handled per field: one counter restarting from
// zero must not affect the rate derived from the others.
func TestComputeSampleCounterResetPerField(t *testing.T) {
	t0 := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	prev := Reading{
		At:             t0,
		DiskReadBytes:  u64(10000),
		DiskWriteBytes: u64(400),
		NetSentBytes:   u64(900),
	}
	curr := Reading{
		At:             t0.Add(2 * time.Second),
		DiskReadBytes:  u64(50), // reset: treat delta as the current value
		DiskWriteBytes: u64(500),
		NetSentBytes:   u64(1100),
	}

	s, err := ComputeSample(prev, curr)
	if err != nil {
		t.Fatalf("ComputeSample: %v", err)
	}

	if s.DiskReadRate == nil || *s.DiskReadRate != 25 {
		t.Errorf("DiskReadRate = %v, want 25 (post-reset 50/2)", s.DiskReadRate)
	}
	if s.DiskWriteRate == nil || *s.DiskWriteRate != 50 {
		t.Errorf("DiskWriteRate = %v, want 50", s.DiskWriteRate)
	}
	if s.NetSendRate == nil || *s.NetSendRate != 100 {
		t.Errorf("NetSendRate = %v, want 100", s.NetSendRate)
	}
}

// All cumulative rates must be non-negative for any valid reading pair,
// including reset cases.
func TestComputeSampleRatesNeverNegative(t *testing.T) {
	t0 := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	pairs := []struct {
		name       string
		prev, curr uint64
	}{
		{"increasing", 100, 250},
		{"flat", 100, 100},
		{"reset to zero", 100, 0},
		{"reset then growth", 1 << 40, 7},
	}
	for _, tc := range pairs {
		t.Run(tc.name, func(t *testing.T) {
			prev := Reading{At: t0, NetRecvBytes: u64(tc.prev)}
			curr := Reading{At: t0.Add(time.Second), NetRecvBytes: u64(tc.curr)}
			s, err := ComputeSample(prev, curr)
			if err != nil {
				t.Fatalf("ComputeSample: %v", err)
			}
			if s.NetRecvRate == nil {
				t.Fatal("NetRecvRate absent")
			}
			if *s.NetRecvRate < 0 {
				t.Errorf("NetRecvRate = %g, want >= 0", *s.NetRecvRate)
			}
		})
	}
}

// A restart mid-series: interval=2s, disk write counter at 100, 150, 230, then
// resetting to 50. Expected rates 25, 40, 25 B/s.
func TestComputeSampleDiskResetScenario(t *testing.T) {
	t0 := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	counters := []uint64{100, 150, 230, 50}
	want := []float64{25, 40, 25}

	readings := make([]Reading, len(counters))
	for i, c := range counters {
		readings[i] = Reading{
			At:             t0.Add(time.Duration(2*i) * time.Second),
			DiskWriteBytes: u64(c),
		}
	}

	for i := 1; i < len(readings); i++ {
		s, err := ComputeSample(readings[i-1], readings[i])
		if err != nil {
			t.Fatalf("tick %d: ComputeSample: %v", i+1, err)
		}
		if s.DiskWriteRate == nil {
			t.Fatalf("tick %d: DiskWriteRate absent", i+1)
		}
		if *s.DiskWriteRate != want[i-1] {
			t.Errorf("tick %d: DiskWriteRate = %g, want %g", i+1, *s.DiskWriteRate, want[i-1])
		}
	}
}

// A counter absent on either side of the pair yields an absent rate, while
// the remaining fields are still computed.
func TestComputeSampleAbsentCounters(t *testing.T) {
	t0 := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	prev := Reading{
		At:            t0,
		DiskReadBytes: u64(100),
		NetSentBytes:  u64(100),
	}
	curr := Reading{
		At:           t0.Add(time.Second),
		CPUPercent:   f64(10),
		NetSentBytes: u64(300),
		// DiskReadBytes absent this tick (query failed).
	}

	s, err := ComputeSample(prev, curr)
	if err != nil {
		t.Fatalf("ComputeSample: %v", err)
	}

	if s.DiskReadRate != nil {
		t.Errorf("DiskReadRate = %v, want absent", *s.DiskReadRate)
	}
	if s.NetSendRate == nil || *s.NetSendRate != 200 {
		t.Errorf("NetSendRate = %v, want 200", s.NetSendRate)
	}
	if s.CPUPercent == nil || *s.CPUPercent != 10 {
		t.Errorf("CPUPercent = %v, want 10", s.CPUPercent)
	}
}

func TestReadingEmpty(t *testing.T) {
	if !(Reading{At: time.Now()}).Empty() {
		t.Error("reading with no fields should be empty")
	}
	r := Reading{At: time.Now(), CPUPercent: f64(1)}
	if r.Empty() {
		t.Error("reading with a gauge should not be empty")
	}
	r = Reading{At: time.Now(), NetRecvBytes: u64(1)}
	if r.Empty() {
		t.Error("reading with a counter should not be empty")
	}
}
