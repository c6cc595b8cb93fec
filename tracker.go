package omicsdash

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Tracker owns the canonical run state for one demo session. It translates
// RunPolls from the engine into the RunState/SampleProgress model and
// serializes Start against concurrent Start calls, so at most one run is
// active per session.
type Tracker struct {
	mu     sync.Mutex
	engine RunEngine
	now    func() time.Time

	state     RunState
	progress  SampleProgress
	stats     *VariantStats
	runID     string
	startedAt time.Time
}

func NewTracker(engine RunEngine, totalSamples int) *Tracker {
	return &Tracker{
		engine:   engine,
		now:      time.Now,
		state:    RunState{Status: StatusInitializing, Message: "Initializing session"},
		progress: SampleProgress{Total: totalSamples},
	}
}

func (t *Tracker) State() RunState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *Tracker) Progress() SampleProgress {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.progress
}

// Stats returns the final variant statistics, if available. Absent stats are
// a valid "not yet available" result, not an error.
func (t *Tracker) Stats() (VariantStats, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stats == nil {
		return VariantStats{}, false
	}
	return *t.stats, true
}

func (t *Tracker) RunID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.runID
}

// Elapsed is the wall time since the current run was submitted, zero if no
// run has been started.
func (t *Tracker) Elapsed() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.startedAt.IsZero() {
		return 0
	}
	return t.now().Sub(t.startedAt)
}

// Start submits a new run. While a run is already active this is a no-op
// returning the current state, so repeated Start calls cause exactly one
// submission. Start is only valid from Ready or Failed; anything else
// returns ErrNotReady. The lock is held across Submit to serialize
// concurrent starts.
func (t *Tracker) Start(ctx context.Context) (RunState, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state.Status == StatusRunning {
		slog.Debug("start requested while already running", "runID", t.runID)
		return t.state, nil
	}
	if !t.state.Status.Startable() {
		return t.state, ErrNotReady
	}

	id, err := t.engine.Submit(ctx)
	if err != nil {
		return t.state, fmt.Errorf("failed to submit run: %w", err)
	}
	t.runID = id
	t.startedAt = t.now()
	t.progress.Completed = 0
	t.stats = nil
	t.state = RunState{
		Status:  StatusRunning,
		Message: "Run submitted, waiting for tasks to start",
	}
	slog.Info("run submitted", "runID", id)
	return t.state, nil
}

// Reset returns the session to Ready and clears progress and stats. An
// active run has its outstanding tasks terminated best effort; termination
// failures are logged, not fatal, since the tasks may already have finished.
func (t *Tracker) Reset(ctx context.Context) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state.Status == StatusRunning {
		if err := t.engine.Terminate(ctx, "session reset"); err != nil {
			slog.Warn("failed to terminate tasks during reset", "runID", t.runID, "err", err)
		}
	}
	t.runID = ""
	t.startedAt = time.Time{}
	t.progress.Completed = 0
	t.stats = nil
	t.state = RunState{Status: StatusReady, Message: "Demo ready to start"}
	slog.Info("session reset")
}

// Apply folds a poll result into the session state. Polls are idempotent and
// may be stale: the completed counter never decreases while running, and a
// poll arriving after a reset or in a terminal state is dropped (eventual
// consistency across the poll/reset boundary).
func (t *Tracker) Apply(poll RunPoll) {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch t.state.Status {
	case StatusInitializing:
		if poll.Running == 0 && poll.Pending == 0 {
			t.state = RunState{Status: StatusReady, Message: "Demo ready to start"}
			return
		}
		// A run from a previous process is still in flight; attach to it.
		t.state = RunState{Status: StatusRunning, Message: "Attached to run already in progress"}
		t.startedAt = t.now()
	case StatusRunning:
	default:
		return
	}

	if poll.Succeeded > t.progress.Completed {
		t.progress.Completed = poll.Succeeded
	}
	if t.progress.Completed > t.progress.Total {
		t.progress.Completed = t.progress.Total
	}

	switch {
	case poll.MergeSucceeded:
		t.state = RunState{
			Status:  StatusCompleted,
			Message: fmt.Sprintf("Analysis completed with %d successful tasks", poll.Succeeded),
		}
	case poll.Running > 0 || poll.Pending > 0:
		t.state.Message = fmt.Sprintf("Processing samples... (%d tasks running)", poll.Running)
	case poll.Failed > 0:
		t.state = RunState{
			Status:  StatusFailed,
			Message: fmt.Sprintf("Run failed with %d failed tasks", poll.Failed),
		}
	default:
		// The job system may briefly list nothing right after submission.
		// Stay running; the next poll will catch up.
	}
}

// SetStats records the final statistics once the run has completed. Calls in
// any other state are dropped; stats are immutable once set.
func (t *Tracker) SetStats(stats VariantStats) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state.Status != StatusCompleted || t.stats != nil {
		return
	}
	s := stats
	t.stats = &s
}
