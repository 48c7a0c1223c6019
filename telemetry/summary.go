package telemetry

// Stat holds min/avg/max over the observed values of one gauge.
type Stat struct {
	Min   float64 `json:"min"`
	Avg   float64 `json:"avg"`
	Max   float64 `json:"max"`
	Count int     `json:"count"`
}

// Summary aggregates the retained history for health reporting.
type Summary struct {
	CPUPercent      Stat `json:"cpu_percent"`
	MemoryPercent   Stat `json:"memory_percent"`
	DiskUsedPercent Stat `json:"disk_used_percent"`

	// Samples is the number of samples the summary was computed over.
	Samples int `json:"samples"`
}

// Summarize computes per-gauge statistics over the given samples. Absent
// fields are excluded from their gauge's statistics but do not exclude the
// rest of the sample.
func Summarize(samples []Sample) Summary {
	s := Summary{Samples: len(samples)}
	for _, sm := range samples {
		s.CPUPercent.observe(sm.CPUPercent)
		s.MemoryPercent.observe(sm.MemoryPercent)
		s.DiskUsedPercent.observe(sm.DiskUsedPercent)
	}
	s.CPUPercent.finish()
	s.MemoryPercent.finish()
	s.DiskUsedPercent.finish()
	return s
}

// observe folds one value into the running statistics. Avg accumulates a
// sum until finish divides it out.
func (st *Stat) observe(v *float64) {
	if v == nil {
		return
	}
	if st.Count == 0 || *v < st.Min {
		st.Min = *v
	}
	if st.Count == 0 || *v > st.Max {
		st.Max = *v
	}
	st.Avg += *v
	st.Count++
}

func (st *Stat) finish() {
	if st.Count > 0 {
		st.Avg /= float64(st.Count)
	}
}
