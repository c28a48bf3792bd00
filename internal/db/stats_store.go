package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/fundus.report/internal/fundus/normalize"
	"github.com/banshee-data/fundus.report/internal/timeutil"
)

// ErrStatsNotFound is returned when no stats row matches.
var ErrStatsNotFound = errors.New("normalization stats not found")

// StoredStats is one persisted version of the normalization stats.
type StoredStats struct {
	ID        string
	Label     string
	Stats     *normalize.Stats
	CreatedAt time.Time
}

// StatsStore persists normalization stats versions. The newest row is the
// one loaded at startup.
type StatsStore struct {
	db    *DB
	clock timeutil.Clock
}

// NewStatsStore creates a store over a migrated database.
func NewStatsStore(db *DB) *StatsStore {
	return &StatsStore{db: db, clock: timeutil.RealClock{}}
}

// WithClock overrides the clock used for created_at.
func (s *StatsStore) WithClock(c timeutil.Clock) *StatsStore {
	s.clock = c
	return s
}

// Save validates and inserts stats, returning the new version.
func (s *StatsStore) Save(ctx context.Context, label string, stats *normalize.Stats) (*StoredStats, error) {
	if err := stats.Validate(); err != nil {
		return nil, err
	}
	meanJSON, err := json.Marshal(stats.Mean)
	if err != nil {
		return nil, fmt.Errorf("encode mean: %w", err)
	}
	stdJSON, err := json.Marshal(stats.Std)
	if err != nil {
		return nil, fmt.Errorf("encode std: %w", err)
	}
	row := &StoredStats{
		ID:        uuid.NewString(),
		Label:     label,
		Stats:     stats.Clone(),
		CreatedAt: s.clock.Now().UTC(),
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO normalization_stats (stats_id, label, dims, samples, mean_json, std_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		row.ID, row.Label, len(stats.Mean), stats.Samples, string(meanJSON), string(stdJSON),
		row.CreatedAt.Format(timestampLayout))
	if err != nil {
		return nil, fmt.Errorf("failed to insert normalization stats: %w", err)
	}
	return row, nil
}

// Latest returns the most recently saved stats.
func (s *StatsStore) Latest(ctx context.Context) (*StoredStats, error) {
	return s.scanOne(s.db.QueryRowContext(ctx, `
		SELECT stats_id, label, samples, mean_json, std_json, created_at
		FROM normalization_stats
		ORDER BY created_at DESC, rowid DESC
		LIMIT 1`))
}

// Get returns the stats with the given ID.
func (s *StatsStore) Get(ctx context.Context, id string) (*StoredStats, error) {
	return s.scanOne(s.db.QueryRowContext(ctx, `
		SELECT stats_id, label, samples, mean_json, std_json, created_at
		FROM normalization_stats
		WHERE stats_id = ?`, id))
}

// List returns every version, newest first, without the arrays.
func (s *StatsStore) List(ctx context.Context) ([]StoredStats, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT stats_id, label, created_at
		FROM normalization_stats
		ORDER BY created_at DESC, rowid DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list normalization stats: %w", err)
	}
	defer rows.Close()

	var out []StoredStats
	for rows.Next() {
		var st StoredStats
		var created string
		if err := rows.Scan(&st.ID, &st.Label, &created); err != nil {
			return nil, err
		}
		if st.CreatedAt, err = time.Parse(timestampLayout, created); err != nil {
			return nil, fmt.Errorf("stats %s: bad created_at %q: %w", st.ID, created, err)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

func (s *StatsStore) scanOne(row *sql.Row) (*StoredStats, error) {
	var (
		st                      StoredStats
		samples                 int
		meanJSON, stdJSON, when string
	)
	if err := row.Scan(&st.ID, &st.Label, &samples, &meanJSON, &stdJSON, &when); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrStatsNotFound
		}
		return nil, fmt.Errorf("failed to read normalization stats: %w", err)
	}
	stats := &normalize.Stats{Samples: samples}
	if err := json.Unmarshal([]byte(meanJSON), &stats.Mean); err != nil {
		return nil, fmt.Errorf("stats %s: decode mean: %w", st.ID, err)
	}
	if err := json.Unmarshal([]byte(stdJSON), &stats.Std); err != nil {
		return nil, fmt.Errorf("stats %s: decode std: %w", st.ID, err)
	}
	if err := stats.Validate(); err != nil {
		return nil, fmt.Errorf("stats %s: %w", st.ID, err)
	}
	created, err := time.Parse(timestampLayout, when)
	if err != nil {
		return nil, fmt.Errorf("stats %s: bad created_at %q: %w", st.ID, when, err)
	}
	st.Stats = stats
	st.CreatedAt = created
	return &st, nil
}
