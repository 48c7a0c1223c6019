// Package telemetry defines the data model for hostpulse: raw counter
// readings, derived per-interval samples, the bounded sample history, and
// the published snapshot payload. It also implements the pure computations
// over that model (rate derivation, history summaries).
package telemetry

import "time"

// HostIdentity describes the monitored host. It is captured once at startup
// and immutable for the lifetime of the process.
type HostIdentity struct {
	// OS is the operating system name (e.g. "linux", "darwin").
	OS string `json:"os"`

	// Hostname is the host's reported name.
	Hostname string `json:"hostname"`

	// IP is the host's primary non-loopback address, empty if none was found.
	IP string `json:"ip"`

	// CPUCount is the number of logical CPUs.
	CPUCount int `json:"cpu_count"`

	// BootTime is when the host last booted.
	BootTime time.Time `json:"boot_time"`
}

// Reading is one raw pull from the OS counters. Gauge fields are
// point-in-time values; the byte counters are cumulative since boot (or
// since the counting service last restarted). A nil field means the
// corresponding query failed and the value is absent for this tick.
type Reading struct {
	// At is when the reading was taken. The monotonic clock component of
	// time.Time makes interval computation immune to wall-clock steps.
	At time.Time

	CPUPercent      *float64
	MemoryPercent   *float64
	MemoryUsedBytes *uint64
	DiskUsedPercent *float64
	SwapUsedPercent *float64

	DiskReadBytes  *uint64
	DiskWriteBytes *uint64
	NetSentBytes   *uint64
	NetRecvBytes   *uint64
}

// Empty reports whether every field of the reading is absent.
func (r Reading) Empty() bool {
	return r.CPUPercent == nil &&
		r.MemoryPercent == nil &&
		r.MemoryUsedBytes == nil &&
		r.DiskUsedPercent == nil &&
		r.SwapUsedPercent == nil &&
		r.DiskReadBytes == nil &&
		r.DiskWriteBytes == nil &&
		r.NetSentBytes == nil &&
		r.NetRecvBytes == nil
}

// Sample is the unit of storage and publication: gauges passed through from
// the newer of two readings plus per-second rates derived from the
// cumulative counters. Absent fields are omitted from the JSON payload.
type Sample struct {
	// Timestamp is the wall-clock time of the reading the sample was
	// derived from.
	Timestamp time.Time `json:"timestamp"`

	CPUPercent      *float64 `json:"cpu_percent,omitempty"`
	MemoryPercent   *float64 `json:"memory_percent,omitempty"`
	MemoryUsedBytes *uint64  `json:"memory_used_bytes,omitempty"`
	DiskUsedPercent *float64 `json:"disk_used_percent,omitempty"`
	SwapUsedPercent *float64 `json:"swap_used_percent,omitempty"`

	DiskReadRate  *float64 `json:"disk_read_bps,omitempty"`
	DiskWriteRate *float64 `json:"disk_write_bps,omitempty"`
	NetSendRate   *float64 `json:"net_send_bps,omitempty"`
	NetRecvRate   *float64 `json:"net_recv_bps,omitempty"`
}

// Alert flags a gauge that crossed its configured threshold.
type Alert struct {
	// Metric names the offending gauge: "cpu_percent", "memory_percent"
	// or "disk_used_percent".
	Metric string `json:"metric"`

	// Value is the observed gauge value.
	Value float64 `json:"value"`

	// Threshold is the configured limit that was exceeded.
	Threshold float64 `json:"threshold"`
}

// Snapshot is the externally visible payload: host identity plus the
// retained sample history, ordered oldest first. It is immutable once
// serialized. Consumers must tolerate an empty Samples slice during the
// startup grace period before the first interval completes.
type Snapshot struct {
	Host        HostIdentity `json:"host"`
	GeneratedAt time.Time    `json:"generated_at"`
	Samples     []Sample     `json:"samples"`
	Alerts      []Alert      `json:"alerts,omitempty"`
}
