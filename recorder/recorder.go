// Package recorder persists a session's run history, resource samples and
// final statistics to a local sqlite database for post-hoc inspection.
package recorder

import (
	"database/sql"
	"fmt"
	"os"
	"path"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/cloudomics/omicsdash"
)

type Recorder struct {
	db *sql.DB
}

func New(filename string) (*Recorder, error) {
	var r Recorder
	var err error

	dirName := path.Dir(filename)
	err = os.MkdirAll(dirName, 0755)
	if err != nil {
		return nil, fmt.Errorf("failed to create directory %v: %w", dirName, err)
	}

	r.db, err = sql.Open("sqlite3", filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open db filename %v: %w", filename, err)
	}
	err = r.migrate()
	if err != nil {
		return nil, fmt.Errorf("failed to migrate db filename %v: %w", filename, err)
	}

	return &r, nil
}

func (r *Recorder) migrate() error {
	var err error
	_, err = r.db.Exec(`
	CREATE TABLE IF NOT EXISTS run (
		run_id TEXT PRIMARY KEY,
		status TEXT NOT NULL,
		message TEXT NOT NULL,
		completed_samples INTEGER NOT NULL,
		total_samples INTEGER NOT NULL,
		started_unix INTEGER
	)`)
	if err != nil {
		return fmt.Errorf("failed to create run table: %w", err)
	}

	_, err = r.db.Exec(`
	CREATE TABLE IF NOT EXISTS resource_sample (
		run_id TEXT NOT NULL,
		sample_time DATETIME NOT NULL,
		time_minutes REAL NOT NULL,
		cpu_count INTEGER NOT NULL,
		cpu_utilization REAL NOT NULL,
		memory_utilization REAL NOT NULL,
		gpu_utilization REAL NOT NULL,
		PRIMARY KEY (run_id, sample_time)
	)`)
	if err != nil {
		return fmt.Errorf("failed to create resource_sample table: %w", err)
	}

	_, err = r.db.Exec(`
	CREATE TABLE IF NOT EXISTS variant_stats (
		run_id TEXT PRIMARY KEY,
		total_variants INTEGER NOT NULL,
		transitions INTEGER NOT NULL,
		transversions INTEGER NOT NULL,
		titv_ratio REAL NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("failed to create variant_stats table: %w", err)
	}

	return nil
}

// RecordRun upserts the run row; status, message and progress are refreshed
// on every call so the row always reflects the latest observed state.
func (r *Recorder) RecordRun(runID string, state omicsdash.RunState, progress omicsdash.SampleProgress, startedAt time.Time) error {
	var started sql.NullInt64
	if !startedAt.IsZero() {
		started = sql.NullInt64{Int64: startedAt.Unix(), Valid: true}
	}
	_, err := r.db.Exec(`
	INSERT INTO run(run_id, status, message, completed_samples, total_samples, started_unix)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT (run_id)
	DO UPDATE SET
		status = excluded.status,
		message = excluded.message,
		completed_samples = excluded.completed_samples
	`, runID, string(state.Status), state.Message,
		progress.Completed, progress.Total, started)
	if err != nil {
		return fmt.Errorf("failed to record run %v: %w", runID, err)
	}
	return nil
}

func (r *Recorder) GetRun(runID string) (omicsdash.RunState, omicsdash.SampleProgress, error) {
	var state omicsdash.RunState
	var progress omicsdash.SampleProgress
	var status string
	err := r.db.QueryRow(`
		SELECT status, message, completed_samples, total_samples
		FROM run
		WHERE run_id = ?
		`, runID).Scan(&status, &state.Message, &progress.Completed, &progress.Total)
	if err != nil {
		return state, progress, err
	}
	state.Status = omicsdash.RunStatus(status)
	return state, progress, nil
}

func (r *Recorder) RecordResourceSample(runID string, s omicsdash.ResourceSample) error {
	_, err := r.db.Exec(`
		INSERT OR IGNORE INTO resource_sample (
			run_id, sample_time, time_minutes, cpu_count,
			cpu_utilization, memory_utilization, gpu_utilization
		) VALUES (?, ?, ?, ?, ?, ?, ?)
		`, runID, s.SampleTime, s.TimeMinutes, s.CPUCount,
		s.CPUUtilization, s.MemoryUtilization, s.GPUUtilization)
	return err
}

func (r *Recorder) GetResourceSamples(runID string) ([]omicsdash.ResourceSample, error) {
	var out []omicsdash.ResourceSample

	rows, err := r.db.Query(`
		SELECT sample_time, time_minutes, cpu_count,
			cpu_utilization, memory_utilization, gpu_utilization
		FROM resource_sample
		WHERE run_id = ?
		ORDER BY sample_time
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var s omicsdash.ResourceSample
		err = rows.Scan(&s.SampleTime, &s.TimeMinutes, &s.CPUCount,
			&s.CPUUtilization, &s.MemoryUtilization, &s.GPUUtilization)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *Recorder) RecordStats(runID string, stats omicsdash.VariantStats) error {
	_, err := r.db.Exec(`
		INSERT OR IGNORE INTO variant_stats (
			run_id, total_variants, transitions, transversions, titv_ratio
		) VALUES (?, ?, ?, ?, ?)
		`, runID, stats.TotalVariants, stats.Transitions,
		stats.Transversions, stats.TiTvRatio)
	return err
}

func (r *Recorder) GetStats(runID string) (*omicsdash.VariantStats, error) {
	var stats omicsdash.VariantStats
	err := r.db.QueryRow(`
		SELECT total_variants, transitions, transversions, titv_ratio
		FROM variant_stats
		WHERE run_id = ?
		`, runID).Scan(&stats.TotalVariants, &stats.Transitions,
		&stats.Transversions, &stats.TiTvRatio)
	if err != nil {
		return nil, err
	}
	return &stats, nil
}

func (r *Recorder) Close() error {
	return r.db.Close()
}
