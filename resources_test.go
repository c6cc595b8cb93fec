package omicsdash

import (
	"math"
	"testing"
)

func TestResourceHistoryWindow(t *testing.T) {
	h := NewResourceHistory(3)

	if _, ok := h.Latest(); ok {
		t.Error("empty history should have no latest sample")
	}

	for i := 0; i < 5; i++ {
		h.Add(ResourceSample{TimeMinutes: float64(i)})
	}
	if got := h.Len(); got != 3 {
		t.Fatalf("window length: got %v, want 3", got)
	}

	samples := h.Samples()
	for i, want := range []float64{2, 3, 4} {
		if samples[i].TimeMinutes != want {
			t.Errorf("sample %d: got t=%v, want t=%v", i, samples[i].TimeMinutes, want)
		}
	}
	latest, ok := h.Latest()
	if !ok || latest.TimeMinutes != 4 {
		t.Errorf("latest: got %+v, want t=4", latest)
	}
}

func TestResourceHistorySamplesIsACopy(t *testing.T) {
	h := NewResourceHistory(4)
	h.Add(ResourceSample{CPUCount: 10})
	samples := h.Samples()
	samples[0].CPUCount = 99
	if got, _ := h.Latest(); got.CPUCount != 10 {
		t.Errorf("mutating the returned slice changed the history: %+v", got)
	}
}

func TestResourceHistoryCPUHours(t *testing.T) {
	h := NewResourceHistory(16)
	// 120 cores steady for 30 minutes is 60 core-hours.
	h.Add(ResourceSample{TimeMinutes: 0, CPUCount: 120})
	h.Add(ResourceSample{TimeMinutes: 15, CPUCount: 120})
	h.Add(ResourceSample{TimeMinutes: 30, CPUCount: 120})
	if got := h.CPUHours(); math.Abs(got-60) > 1e-9 {
		t.Errorf("cpu hours: got %v, want 60", got)
	}

	// An out-of-order sample contributes nothing.
	h.Add(ResourceSample{TimeMinutes: 20, CPUCount: 120})
	if got := h.CPUHours(); math.Abs(got-60) > 1e-9 {
		t.Errorf("cpu hours after out-of-order sample: got %v, want 60", got)
	}
}

func TestResourceHistoryCPUHoursTrapezoid(t *testing.T) {
	h := NewResourceHistory(16)
	// Linear ramp 0 -> 60 cores over 60 minutes averages 30 core-hours.
	h.Add(ResourceSample{TimeMinutes: 0, CPUCount: 0})
	h.Add(ResourceSample{TimeMinutes: 60, CPUCount: 60})
	if got := h.CPUHours(); math.Abs(got-30) > 1e-9 {
		t.Errorf("cpu hours: got %v, want 30", got)
	}
}

func TestResourceHistoryGPUHours(t *testing.T) {
	h := NewResourceHistory(16)
	h.Add(ResourceSample{TimeMinutes: 0})
	h.Add(ResourceSample{TimeMinutes: 10})
	// GPU phase: 4 GPUs for 3 minutes.
	h.Add(ResourceSample{TimeMinutes: 11, GPUUtilization: 80})
	h.Add(ResourceSample{TimeMinutes: 13, GPUUtilization: 75})
	want := float64(GPUsWhenActive) * 3 / 60
	if got := h.GPUHours(); math.Abs(got-want) > 1e-9 {
		t.Errorf("gpu hours: got %v, want %v", got, want)
	}
}
