package journal

import (
	"context"
	"fmt"
	"time"
)

// Outcomes recorded for a reconcile run.
const (
	OutcomeApplied   = "applied"   // something was changed
	OutcomeSatisfied = "satisfied" // everything already in the desired state
	OutcomeSkipped   = "skipped"   // soft-skip, e.g. requested adapter absent
	OutcomeFailed    = "failed"
)

// Run records the outcome of one reconcile invocation.
type Run struct {
	ID        int64
	Timestamp time.Time
	RunID     string
	Action    string // start, stop, watch
	Outcome   string
	SSID      string
	APIface   string
	STAIface  string
	Subnet    string
	Duration  time.Duration
	Error     string
}

// InsertRun appends a run record to the journal.
func (d *DB) InsertRun(ctx context.Context, run *Run) error {
	_, err := d.ExecContext(ctx, `
		INSERT INTO reconcile_runs (run_id, action, outcome, ssid, ap_interface, sta_interface, subnet, duration_ms, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.RunID, run.Action, run.Outcome, run.SSID, run.APIface,
		run.STAIface, run.Subnet, run.Duration.Milliseconds(), run.Error,
	)
	if err != nil {
		return fmt.Errorf("journal: insert run: %w", err)
	}
	return nil
}

// ListRuns returns the most recent runs, newest first.
func (d *DB) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	rows, err := d.QueryContext(ctx, `
		SELECT id, ts, run_id, action, outcome, ssid, ap_interface, sta_interface, subnet, duration_ms, error
		FROM reconcile_runs
		ORDER BY id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("journal: list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var ts, durationMS int64
		if err := rows.Scan(&r.ID, &ts, &r.RunID, &r.Action, &r.Outcome,
			&r.SSID, &r.APIface, &r.STAIface, &r.Subnet, &durationMS, &r.Error); err != nil {
			return nil, fmt.Errorf("journal: scan run: %w", err)
		}
		r.Timestamp = time.Unix(ts, 0)
		r.Duration = time.Duration(durationMS) * time.Millisecond
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("journal: iterate runs: %w", err)
	}

	return runs, nil
}

// CompactRuns deletes runs recorded before the cutoff and returns how many
// were removed.
func (d *DB) CompactRuns(ctx context.Context, before time.Time) (int64, error) {
	result, err := d.ExecContext(ctx,
		"DELETE FROM reconcile_runs WHERE ts < ?", before.Unix())
	if err != nil {
		return 0, fmt.Errorf("journal: compact runs: %w", err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("journal: compact runs rows affected: %w", err)
	}
	return deleted, nil
}
