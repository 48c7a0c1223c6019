// Package source wraps the OS metric queries behind a Reader that the
// sampler loop pulls from. Readings are gathered with a bounded per-tick
// timeout, and a failed subsystem degrades only its own fields: a broken
// disk query must not prevent CPU, memory or network values from being
// reported.
package source

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sort"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"
	psnet "github.com/shirou/gopsutil/v4/net"

	"github.com/hostpulse/hostpulse/telemetry"
)

// DefaultTimeout bounds a counter query when no timeout is configured.
const DefaultTimeout = 2 * time.Second

// Subsystem names used in CounterUnavailable reports.
const (
	SubsystemCPU     = "cpu"
	SubsystemMemory  = "memory"
	SubsystemDisk    = "disk"
	SubsystemNetwork = "network"
)

// CounterUnavailable reports the subsystems whose queries failed during one
// reading. The reading itself still carries every field that succeeded.
type CounterUnavailable struct {
	// Failures maps a subsystem name to the error its query produced.
	Failures map[string]error
}

func (e *CounterUnavailable) Error() string {
	names := make([]string, 0, len(e.Failures))
	for name := range e.Failures {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s: %v", name, e.Failures[name]))
	}
	return "source: counters unavailable: " + strings.Join(parts, "; ")
}

// Failed reports whether the named subsystem's query failed.
func (e *CounterUnavailable) Failed(subsystem string) bool {
	_, ok := e.Failures[subsystem]
	return ok
}

// Reader is the counter source contract consumed by the sampler loop.
type Reader interface {
	// ReadCounters returns one raw reading. When some subsystems fail it
	// returns a partially filled reading together with a
	// *CounterUnavailable describing the failures.
	ReadCounters(ctx context.Context) (telemetry.Reading, error)

	// ReadIdentity returns the static host identity facts.
	ReadIdentity(ctx context.Context) (telemetry.HostIdentity, error)
}

// HostReader reads live counters via gopsutil. Probe functions are fields
// so tests can substitute failures without touching the OS.
type HostReader struct {
	timeout time.Duration
	logger  *slog.Logger

	cpuPercent func(ctx context.Context) ([]float64, error)
	cpuCounts  func(ctx context.Context) (int, error)
	virtualMem func(ctx context.Context) (*mem.VirtualMemoryStat, error)
	swapMem    func(ctx context.Context) (*mem.SwapMemoryStat, error)
	diskUsage  func(ctx context.Context) (*disk.UsageStat, error)
	diskIO     func(ctx context.Context) (map[string]disk.IOCountersStat, error)
	netIO      func(ctx context.Context) ([]psnet.IOCountersStat, error)
	hostInfo   func(ctx context.Context) (*host.InfoStat, error)
}

// NewHostReader creates a HostReader with the given per-reading timeout.
// A non-positive timeout falls back to DefaultTimeout. If logger is nil, a
// no-op logger is used.
func NewHostReader(timeout time.Duration, logger *slog.Logger) *HostReader {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &HostReader{
		timeout: timeout,
		logger:  logger,
		cpuPercent: func(ctx context.Context) ([]float64, error) {
			// interval=0: delta since the previous call, no blocking.
			return cpu.PercentWithContext(ctx, 0, false)
		},
		cpuCounts: func(ctx context.Context) (int, error) {
			return cpu.CountsWithContext(ctx, true)
		},
		virtualMem: mem.VirtualMemoryWithContext,
		swapMem:    mem.SwapMemoryWithContext,
		diskUsage: func(ctx context.Context) (*disk.UsageStat, error) {
			return disk.UsageWithContext(ctx, "/")
		},
		diskIO: func(ctx context.Context) (map[string]disk.IOCountersStat, error) {
			return disk.IOCountersWithContext(ctx)
		},
		netIO: func(ctx context.Context) ([]psnet.IOCountersStat, error) {
			return psnet.IOCountersWithContext(ctx, false)
		},
		hostInfo: host.InfoWithContext,
	}
}

// ReadCounters gathers one raw reading within the configured timeout.
// Each subsystem degrades independently; the returned error, if any, is a
// *CounterUnavailable listing the failed subsystems.
func (r *HostReader) ReadCounters(ctx context.Context) (telemetry.Reading, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	reading := telemetry.Reading{At: time.Now()}
	failures := make(map[string]error)

	if pcts, err := r.cpuPercent(ctx); err != nil {
		failures[SubsystemCPU] = err
	} else if len(pcts) > 0 {
		reading.CPUPercent = &pcts[0]
	} else {
		failures[SubsystemCPU] = fmt.Errorf("no cpu usage reported")
	}

	if vm, err := r.virtualMem(ctx); err != nil {
		failures[SubsystemMemory] = err
	} else {
		reading.MemoryPercent = &vm.UsedPercent
		reading.MemoryUsedBytes = &vm.Used
	}
	if swap, err := r.swapMem(ctx); err != nil {
		// Swap is optional on many hosts; absent is fine, not a failure.
		r.logger.Debug("source: swap query failed", "error", err)
	} else {
		reading.SwapUsedPercent = &swap.UsedPercent
	}

	if usage, err := r.diskUsage(ctx); err != nil {
		failures[SubsystemDisk] = err
	} else {
		reading.DiskUsedPercent = &usage.UsedPercent
	}
	if counters, err := r.diskIO(ctx); err != nil {
		failures[SubsystemDisk] = err
	} else {
		var read, written uint64
		for _, c := range counters {
			read += c.ReadBytes
			written += c.WriteBytes
		}
		reading.DiskReadBytes = &read
		reading.DiskWriteBytes = &written
	}

	if counters, err := r.netIO(ctx); err != nil {
		failures[SubsystemNetwork] = err
	} else if len(counters) > 0 {
		reading.NetSentBytes = &counters[0].BytesSent
		reading.NetRecvBytes = &counters[0].BytesRecv
	} else {
		failures[SubsystemNetwork] = fmt.Errorf("no network counters reported")
	}

	if len(failures) > 0 {
		return reading, &CounterUnavailable{Failures: failures}
	}
	return reading, nil
}

// ReadIdentity captures the static host identity facts.
func (r *HostReader) ReadIdentity(ctx context.Context) (telemetry.HostIdentity, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	info, err := r.hostInfo(ctx)
	if err != nil {
		return telemetry.HostIdentity{}, fmt.Errorf("source: host info: %w", err)
	}

	id := telemetry.HostIdentity{
		OS:       info.OS,
		Hostname: info.Hostname,
		IP:       primaryIP(),
		BootTime: time.Unix(int64(info.BootTime), 0),
	}

	if count, err := r.cpuCounts(ctx); err != nil {
		r.logger.Debug("source: cpu count query failed", "error", err)
	} else {
		id.CPUCount = count
	}

	return id, nil
}

// primaryIP returns the first global unicast IPv4 address of any interface,
// or an empty string when none is configured.
func primaryIP() string {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return ""
	}
	for _, addr := range addrs {
		ipNet, ok := addr.(*net.IPNet)
		if !ok || ipNet.IP.IsLoopback() {
			continue
		}
		if v4 := ipNet.IP.To4(); v4 != nil {
			return v4.String()
		}
	}
	return ""
}

// Compile-time interface compliance check.
var _ Reader = (*HostReader)(nil)
