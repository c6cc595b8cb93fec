package sim

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cloudomics/omicsdash"
)

// DemoStats is the canonical result of the bundled 100-sample chr20 dataset,
// served by the simulated engine once the run completes.
var DemoStats = omicsdash.VariantStats{
	TotalVariants: 243826,
	Transitions:   167538,
	Transversions: 76288,
	TiTvRatio:     2.196,
}

const (
	// demoDuration is when the simulated merge step reports success.
	demoDuration = 15 * time.Minute
	// coresPerTask sizes the concurrent task estimate off the compute curve.
	coresPerTask = 16
)

// Engine is a RunEngine driven by a local clock instead of a job system. A
// submitted run progresses along the compute curve and completes, with the
// canonical demo statistics, at the 15-minute mark.
type Engine struct {
	mu         sync.Mutex
	now        func() time.Time
	total      int
	startedAt  time.Time
	terminated bool
	runID      string
}

func NewEngine(totalSamples int) *Engine {
	return &Engine{now: time.Now, total: totalSamples}
}

func (e *Engine) Submit(ctx context.Context) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.startedAt = e.now()
	e.terminated = false
	e.runID = "sim-" + uuid.NewString()[:8]
	return e.runID, nil
}

func (e *Engine) Poll(ctx context.Context) (*omicsdash.RunPoll, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.startedAt.IsZero() || e.terminated {
		return &omicsdash.RunPoll{}, nil
	}
	elapsed := e.now().Sub(e.startedAt)
	if elapsed >= demoDuration {
		return &omicsdash.RunPoll{Succeeded: e.total, MergeSucceeded: true}, nil
	}
	completed := CompletedSamples(elapsed, e.total)
	running := CPUCount(elapsed.Minutes()) / coresPerTask
	if running > e.total-completed {
		running = e.total - completed
	}
	pending := e.total - completed - running
	if pending < 0 {
		pending = 0
	}
	return &omicsdash.RunPoll{
		Pending:   pending,
		Running:   running,
		Succeeded: completed,
	}, nil
}

func (e *Engine) Terminate(ctx context.Context, reason string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.terminated = true
	e.startedAt = time.Time{}
	return nil
}

func (e *Engine) FetchStats(ctx context.Context) (*omicsdash.VariantStats, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.startedAt.IsZero() || e.now().Sub(e.startedAt) < demoDuration {
		return nil, omicsdash.ErrStatsNotReady
	}
	stats := DemoStats
	return &stats, nil
}
