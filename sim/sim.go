// Package sim provides the synthetic resource-usage curve used when live
// telemetry is unavailable, and a clock-driven RunEngine that replays a full
// demo run against it.
package sim

import (
	"math"
	"math/rand"
	"time"

	"github.com/cloudomics/omicsdash"
)

// curveEnd is where the compute curve flattens out; time arguments are
// clamped here.
const curveEnd = 13.0

// CPUCount is the simulated number of allocated compute cores at a given
// time into the run: ramp up over the first three minutes, plateau at 160,
// then ramp down to a small merge-phase tail by minute 13. The curve is
// continuous at every segment boundary.
func CPUCount(timeMinutes float64) int {
	t := timeMinutes
	switch {
	case t <= 0:
		return 0
	case t < 1:
		return int(t * 20)
	case t < 3:
		return int(20 + (t-1)*70)
	case t < 8:
		return 160
	case t < 10:
		return int(160 - (t-8)*60)
	default:
		if t > curveEnd {
			t = curveEnd
		}
		return int(40 - (t-10)*10)
	}
}

// CPUTimeHours is the discrete integral of the compute curve: one whole-
// minute step per elapsed minute, each contributing CPUCount/60 core-hours.
func CPUTimeHours(elapsed time.Duration) float64 {
	if elapsed < 0 {
		return 0
	}
	minutes := int(elapsed.Minutes())
	var hours float64
	for i := 0; i < minutes; i++ {
		hours += float64(CPUCount(float64(i))) / 60
	}
	return hours
}

// GPUTimeHours is the cumulative GPU usage: nothing before minute 10, then
// four GPUs accruing linearly.
func GPUTimeHours(elapsed time.Duration) float64 {
	m := elapsed.Minutes()
	if m <= 10 {
		return 0
	}
	return omicsdash.GPUsWhenActive * (m - 10) / 60
}

// cumCoreMinutes is the exact integral of the compute curve from 0 to
// timeMinutes, in core-minutes. Used to derive sample completion.
func cumCoreMinutes(timeMinutes float64) float64 {
	t := timeMinutes
	if t < 0 {
		t = 0
	}
	if t > curveEnd {
		t = curveEnd
	}
	var area float64
	// [0,1): 0 -> 20
	seg := math.Min(t, 1)
	area += seg * seg * 20 / 2
	if t <= 1 {
		return area
	}
	// [1,3): 20 -> 160
	seg = math.Min(t-1, 2)
	area += seg*20 + seg*seg*70/2
	if t <= 3 {
		return area
	}
	// [3,8): plateau 160
	seg = math.Min(t-3, 5)
	area += seg * 160
	if t <= 8 {
		return area
	}
	// [8,10): 160 -> 40
	seg = math.Min(t-8, 2)
	area += seg*160 - seg*seg*60/2
	if t <= 10 {
		return area
	}
	// [10,13]: 40 -> 0
	seg = t - 10
	area += seg*40 - seg*seg*10/2
	return area
}

// totalCoreMinutes is cumCoreMinutes at the end of the curve.
var totalCoreMinutes = cumCoreMinutes(curveEnd)

// CompletedSamples maps elapsed time to the number of finished per-sample
// tasks, proportional to the work done so far under the compute curve.
func CompletedSamples(elapsed time.Duration, total int) int {
	if elapsed <= 0 || total <= 0 {
		return 0
	}
	done := int(float64(total) * cumCoreMinutes(elapsed.Minutes()) / totalCoreMinutes)
	if done > total {
		done = total
	}
	return done
}

// Simulator produces ResourceSamples along the synthetic curve. Utilization
// values are randomized within a fixed band plus a smooth time-based
// oscillation; they are for visual plausibility only and carry no
// correctness weight.
type Simulator struct {
	rnd *rand.Rand
}

func New() *Simulator {
	return &Simulator{rnd: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

func (s *Simulator) Sample(elapsed time.Duration) omicsdash.ResourceSample {
	m := elapsed.Minutes()
	wave := 5 * math.Sin(2*math.Pi*m/3)
	sample := omicsdash.ResourceSample{
		TimeMinutes:       m,
		CPUCount:          CPUCount(m),
		CPUUtilization:    clampPct(75 + s.band(-5, 15) + wave),
		MemoryUtilization: clampPct(60 + s.band(-10, 20) + wave),
		SampleTime:        time.Now(),
	}
	if m >= 10 {
		sample.GPUUtilization = clampPct(80 + s.band(-5, 15) + wave)
	}
	return sample
}

func (s *Simulator) band(lo, hi float64) float64 {
	return lo + s.rnd.Float64()*(hi-lo)
}

func clampPct(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
