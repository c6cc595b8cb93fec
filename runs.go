package omicsdash

import (
	"context"
	"errors"
)

// RunStatus is the lifecycle state of the single demo run owned by a
// session. Transitions are monotonic (Initializing -> Ready -> Running ->
// Completed/Failed) except for an explicit reset back to Ready.
type RunStatus string

const (
	StatusInitializing RunStatus = "INITIALIZING"
	StatusReady        RunStatus = "READY"
	StatusRunning      RunStatus = "RUNNING"
	StatusCompleted    RunStatus = "COMPLETED"
	StatusFailed       RunStatus = "FAILED"
)

// Terminal reports whether the run has reached a final state. A terminal
// run stays put until a reset.
func (s RunStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Startable reports whether a new run may be submitted from this state.
func (s RunStatus) Startable() bool {
	return s == StatusReady || s == StatusFailed
}

type RunState struct {
	Status  RunStatus `json:"status"`
	Message string    `json:"message"`
}

type SampleProgress struct {
	Completed int `json:"completedSamples"`
	Total     int `json:"totalSamples"`
}

// RunPoll is a point-in-time view of the externally managed run: task counts
// by state plus whether the final merge step has reported success. Polls are
// idempotent and may be stale; consumers must not regress progress counters
// because of one.
type RunPoll struct {
	Pending        int
	Running        int
	Succeeded      int
	Failed         int
	MergeSucceeded bool
}

// ErrNotReady is returned by Tracker.Start when no run may be submitted from
// the current state (e.g. the session is still initializing, or a completed
// run has not been reset).
var ErrNotReady = errors.New("session not ready to start a run")

// RunEngine is the boundary to the external job system that actually executes
// the pipeline. Implementations: awsbatch.Engine (AWS Batch + S3) and
// sim.Engine (local clock-driven stand-in).
type RunEngine interface {
	// Submit starts the aggregate run and returns its id. The engine does
	// not guard against concurrent submissions; the Tracker does.
	Submit(ctx context.Context) (string, error)
	// Poll reports the current task counts. An error means the job system
	// is unreachable, not that the run failed.
	Poll(ctx context.Context) (*RunPoll, error)
	// Terminate cancels outstanding tasks, best effort. Termination
	// failures for tasks that already finished are not errors.
	Terminate(ctx context.Context, reason string) error
	// FetchStats retrieves the final variant statistics. It returns
	// ErrStatsNotReady until the pipeline has published them.
	FetchStats(ctx context.Context) (*VariantStats, error)
}
