package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/banshee-data/fundus.report/internal/fundus/pipeline"
)

// RunStore is the pipeline run log. It implements pipeline.RunRecorder.
type RunStore struct {
	db *DB
}

// NewRunStore creates a store over a migrated database.
func NewRunStore(db *DB) *RunStore {
	return &RunStore{db: db}
}

var _ pipeline.RunRecorder = (*RunStore)(nil)

// RecordRun inserts one run.
func (s *RunStore) RecordRun(ctx context.Context, run pipeline.Run) error {
	var risk sql.NullFloat64
	if run.RiskScore != nil {
		risk = sql.NullFloat64{Float64: *run.RiskScore, Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pipeline_runs (run_id, operation, started_at, elapsed_ms, stats_id, degenerate, risk_score, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, string(run.Operation), run.StartedAt.UTC().Format(timestampLayout),
		float64(run.Elapsed)/float64(time.Millisecond), run.StatsVersion, run.Degenerate, risk, run.Err)
	if err != nil {
		return fmt.Errorf("failed to record run %s: %w", run.ID, err)
	}
	return nil
}

// RecentRuns returns up to limit runs, newest first.
func (s *RunStore) RecentRuns(ctx context.Context, limit int) ([]pipeline.Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, operation, started_at, elapsed_ms, stats_id, degenerate, risk_score, error
		FROM pipeline_runs
		ORDER BY started_at DESC, rowid DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var out []pipeline.Run
	for rows.Next() {
		var (
			r         pipeline.Run
			op, when  string
			elapsedMs float64
			risk      sql.NullFloat64
		)
		if err := rows.Scan(&r.ID, &op, &when, &elapsedMs, &r.StatsVersion, &r.Degenerate, &risk, &r.Err); err != nil {
			return nil, err
		}
		r.Operation = pipeline.Operation(op)
		if r.StartedAt, err = time.Parse(timestampLayout, when); err != nil {
			return nil, fmt.Errorf("run %s: bad started_at %q: %w", r.ID, when, err)
		}
		r.Elapsed = time.Duration(elapsedMs * float64(time.Millisecond))
		if risk.Valid {
			v := risk.Float64
			r.RiskScore = &v
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// RunSummary aggregates the run log.
type RunSummary struct {
	Total      int
	Failed     int
	Degenerate int
	MeanMillis float64
}

// Summary aggregates every recorded run.
func (s *RunStore) Summary(ctx context.Context) (RunSummary, error) {
	var sum RunSummary
	var mean sql.NullFloat64
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN error != '' THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(degenerate), 0),
		       AVG(elapsed_ms)
		FROM pipeline_runs`).Scan(&sum.Total, &sum.Failed, &sum.Degenerate, &mean)
	if err != nil {
		return RunSummary{}, fmt.Errorf("failed to summarise runs: %w", err)
	}
	sum.MeanMillis = mean.Float64
	return sum, nil
}
