// Package cost estimates the accrued cost of a demo run from elapsed time
// and compute usage. It is pure arithmetic: the same inputs always produce
// the same estimate, and the estimate never decreases as time advances.
package cost

import "time"

// Spot-tier per-hour rates for the two compute tiers the pipeline uses, plus
// flat caps that storage and transfer accrue toward linearly over the demo.
const (
	CPURatePerHour = 0.0408 // per vCPU-hour, Graviton spot
	GPURatePerHour = 0.526  // per GPU-hour, g4dn spot

	StorageCap  = 0.18
	TransferCap = 0.09

	// DemoDuration is the nominal end-to-end length of one run; storage and
	// transfer reach their caps at this point.
	DemoDuration = 15 * time.Minute
)

type Estimate struct {
	Compute  float64 `json:"computeCost"`
	Storage  float64 `json:"storageCost"`
	Transfer float64 `json:"transferCost"`
	Total    float64 `json:"totalCost"`
}

// ForUsage computes the estimate for the given elapsed wall time and
// cumulative compute usage. Negative inputs are treated as zero.
func ForUsage(elapsed time.Duration, cpuHours, gpuHours float64) Estimate {
	if elapsed < 0 {
		elapsed = 0
	}
	if cpuHours < 0 {
		cpuHours = 0
	}
	if gpuHours < 0 {
		gpuHours = 0
	}
	frac := elapsed.Seconds() / DemoDuration.Seconds()
	if frac > 1 {
		frac = 1
	}
	e := Estimate{
		Compute:  cpuHours*CPURatePerHour + gpuHours*GPURatePerHour,
		Storage:  frac * StorageCap,
		Transfer: frac * TransferCap,
	}
	e.Total = e.Compute + e.Storage + e.Transfer
	return e
}
