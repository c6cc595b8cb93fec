package omicsdash

import "time"

// ResourceSample is one point on the compute-usage curve: how many compute
// units were allocated at a given time into the run, and how busy they were.
type ResourceSample struct {
	TimeMinutes       float64 `json:"time"`
	CPUCount          int     `json:"cpuCount"`
	CPUUtilization    float64 `json:"cpuUtilization"`
	MemoryUtilization float64 `json:"memoryUtilization"`
	GPUUtilization    float64 `json:"gpuUtilization"`

	SampleTime time.Time `json:"sampleTime"`
}

// GPUsWhenActive is the fixed GPU pool size during the GPU phase of the
// pipeline. GPUUtilization > 0 implies this many GPUs are allocated.
const GPUsWhenActive = 4

// ResourceHistory is a sliding window over the most recent resource samples.
// Insertion order is chronological; samples past capacity are discarded
// oldest first. It is not safe for concurrent use; callers hold their own
// lock (the server keys all shared state off one mutex).
type ResourceHistory struct {
	capacity int
	samples  []ResourceSample
}

func NewResourceHistory(capacity int) *ResourceHistory {
	if capacity < 1 {
		capacity = 1
	}
	return &ResourceHistory{capacity: capacity}
}

func (h *ResourceHistory) Add(s ResourceSample) {
	h.samples = append(h.samples, s)
	if len(h.samples) > h.capacity {
		h.samples = h.samples[len(h.samples)-h.capacity:]
	}
}

func (h *ResourceHistory) Len() int {
	return len(h.samples)
}

// Latest returns the most recent sample, if any.
func (h *ResourceHistory) Latest() (ResourceSample, bool) {
	if len(h.samples) == 0 {
		return ResourceSample{}, false
	}
	return h.samples[len(h.samples)-1], true
}

// Samples returns a copy of the window, oldest first.
func (h *ResourceHistory) Samples() []ResourceSample {
	out := make([]ResourceSample, len(h.samples))
	copy(out, h.samples)
	return out
}

// CPUHours integrates the observed CPU allocation over the window using the
// trapezoid rule, in instance-core hours. Samples that arrive out of order
// contribute nothing rather than negative time.
func (h *ResourceHistory) CPUHours() float64 {
	var hours float64
	for i := 1; i < len(h.samples); i++ {
		dt := h.samples[i].TimeMinutes - h.samples[i-1].TimeMinutes
		if dt <= 0 {
			continue
		}
		avg := float64(h.samples[i].CPUCount+h.samples[i-1].CPUCount) / 2
		hours += avg * dt / 60
	}
	return hours
}

// GPUHours integrates GPU allocation over the window. The pipeline runs a
// fixed pool of GPUsWhenActive GPUs whenever GPU utilization is reported.
func (h *ResourceHistory) GPUHours() float64 {
	var hours float64
	for i := 1; i < len(h.samples); i++ {
		dt := h.samples[i].TimeMinutes - h.samples[i-1].TimeMinutes
		if dt <= 0 || h.samples[i].GPUUtilization <= 0 {
			continue
		}
		hours += GPUsWhenActive * dt / 60
	}
	return hours
}
