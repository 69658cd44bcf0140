package store

import (
	"context"
	"fmt"
	"time"
)

// Pass outcomes.
const (
	OutcomeOK      = "ok"
	OutcomeSkipped = "skipped"
	OutcomeDryRun  = "dry-run"
	OutcomeFailed  = "failed"
)

// PassRecord is one entry of the pass log.
type PassRecord struct {
	Seq       int64
	StartedAt time.Time
	Duration  time.Duration
	Outcome   string
	Failed    int
	Deferred  int
	// Report is the JSON-encoded plan report.
	Report string
	Error  string
}

// RecordPass appends r to the pass log and returns its sequence number.
func (s *Store) RecordPass(ctx context.Context, r PassRecord) (int64, error) {
	report := r.Report
	if report == "" {
		report = "{}"
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO passes
		(started_at, duration_ms, outcome, failed, deferred, report, error)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		r.StartedAt.UTC().Format(timeLayout),
		r.Duration.Milliseconds(),
		r.Outcome,
		r.Failed,
		r.Deferred,
		report,
		r.Error,
	)
	if err != nil {
		return 0, fmt.Errorf("record pass: %w", err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("record pass: last insert id: %w", err)
	}
	return seq, nil
}

// RecentPasses returns up to limit passes, newest first.
func (s *Store) RecentPasses(ctx context.Context, limit int) ([]PassRecord, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, started_at, duration_ms, outcome, failed, deferred, report, error
		FROM passes
		ORDER BY seq DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("read passes: %w", err)
	}
	defer rows.Close()

	var out []PassRecord
	for rows.Next() {
		var (
			r       PassRecord
			started string
			ms      int64
		)
		if err := rows.Scan(&r.Seq, &started, &ms, &r.Outcome, &r.Failed, &r.Deferred, &r.Report, &r.Error); err != nil {
			return nil, fmt.Errorf("read passes: scan: %w", err)
		}
		r.StartedAt, err = time.Parse(timeLayout, started)
		if err != nil {
			return nil, fmt.Errorf("read passes: parse %q: %w", started, err)
		}
		r.Duration = time.Duration(ms) * time.Millisecond
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read passes: %w", err)
	}
	return out, nil
}

// PrunePasses deletes all but the newest keep passes and returns how many
// it removed.
func (s *Store) PrunePasses(ctx context.Context, keep int) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM passes
		WHERE seq NOT IN (SELECT seq FROM passes ORDER BY seq DESC LIMIT ?)
	`, keep)
	if err != nil {
		return 0, fmt.Errorf("prune passes: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune passes: rows affected: %w", err)
	}
	return n, nil
}
