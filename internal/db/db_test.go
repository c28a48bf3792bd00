package db

import (
	"context"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/fundus.report/internal/fundus"
	"github.com/banshee-data/fundus.report/internal/fundus/normalize"
	"github.com/banshee-data/fundus.report/internal/fundus/pipeline"
	"github.com/banshee-data/fundus.report/internal/timeutil"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewDB(filepath.Join(t.TempDir(), "fundus.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func sampleStats(scale float64) *normalize.Stats {
	s := &normalize.Stats{
		Mean:    make([]float64, fundus.FusionDim),
		Std:     make([]float64, fundus.FusionDim),
		Samples: 12,
	}
	for i := range s.Mean {
		s.Mean[i] = scale * math.Sin(float64(i))
		s.Std[i] = 1 + float64(i%5)
	}
	return s
}

func TestMigrations_UpDownStatus(t *testing.T) {
	db, err := OpenDB(filepath.Join(t.TempDir(), "fresh.db"))
	require.NoError(t, err)
	defer db.Close()

	latest, err := LatestMigrationVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(2), latest)

	status, err := db.GetMigrationStatus()
	require.NoError(t, err)
	assert.Equal(t, uint(0), status.CurrentVersion)
	assert.True(t, status.Pending())

	require.NoError(t, db.MigrateUp())
	status, err = db.GetMigrationStatus()
	require.NoError(t, err)
	assert.Equal(t, latest, status.CurrentVersion)
	assert.False(t, status.Pending())
	assert.False(t, status.Dirty)

	// Idempotent.
	require.NoError(t, db.MigrateUp())

	require.NoError(t, db.MigrateDown())
	v, _, err := db.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(1), v)

	var n int
	err = db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='pipeline_runs'`).Scan(&n)
	require.NoError(t, err)
	assert.Zero(t, n, "pipeline_runs should be dropped")
}

func TestStatsStore_SaveLatestGet(t *testing.T) {
	db := setupTestDB(t)
	clock := timeutil.NewMockClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	store := NewStatsStore(db).WithClock(clock)
	ctx := context.Background()

	_, err := store.Latest(ctx)
	assert.ErrorIs(t, err, ErrStatsNotFound)

	first, err := store.Save(ctx, "cohort-a", sampleStats(1))
	require.NoError(t, err)
	assert.NotEmpty(t, first.ID)

	clock.Advance(time.Hour)
	second, err := store.Save(ctx, "cohort-b", sampleStats(2))
	require.NoError(t, err)

	latest, err := store.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, second.ID, latest.ID)
	assert.Equal(t, "cohort-b", latest.Label)
	assert.Equal(t, 12, latest.Stats.Samples)
	assert.Equal(t, sampleStats(2).Mean, latest.Stats.Mean)
	assert.True(t, latest.CreatedAt.Equal(clock.Now()))

	got, err := store.Get(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, sampleStats(1).Std, got.Stats.Std)

	_, err = store.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrStatsNotFound)

	list, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID)
	assert.Nil(t, list[0].Stats)
}

func TestStatsStore_RejectsInvalid(t *testing.T) {
	db := setupTestDB(t)
	store := NewStatsStore(db)

	bad := sampleStats(1)
	bad.Std = bad.Std[:10]
	_, err := store.Save(context.Background(), "short", bad)
	assert.ErrorIs(t, err, fundus.ErrFeatureShape)

	list, err := store.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestStatsStore_LoadsIntoNormalizer(t *testing.T) {
	db := setupTestDB(t)
	store := NewStatsStore(db)
	ctx := context.Background()

	_, err := store.Save(ctx, "", sampleStats(1))
	require.NoError(t, err)
	row, err := store.Latest(ctx)
	require.NoError(t, err)

	n, err := normalize.New(row.Stats)
	require.NoError(t, err)
	z, err := n.Normalize(fundus.FusionFeatureVector(row.Stats.Mean))
	require.NoError(t, err)
	for i, v := range z {
		require.InDelta(t, 0, v, 1e-12, "dim %d", i)
	}
}

func TestRunStore_RecordAndList(t *testing.T) {
	db := setupTestDB(t)
	store := NewRunStore(db)
	ctx := context.Background()
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	risk := 0.42

	runs := []pipeline.Run{
		{ID: "r1", Operation: pipeline.OpExtract, StartedAt: start, Elapsed: 120 * time.Millisecond},
		{ID: "r2", Operation: pipeline.OpPredict, StartedAt: start.Add(time.Second), Elapsed: 80 * time.Millisecond,
			StatsVersion: "s1", Degenerate: true, RiskScore: &risk},
		{ID: "r3", Operation: pipeline.OpNormalize, StartedAt: start.Add(2 * time.Second), Elapsed: 10 * time.Millisecond,
			Err: "normalization stats unavailable"},
	}
	for _, r := range runs {
		require.NoError(t, store.RecordRun(ctx, r))
	}
	assert.Error(t, store.RecordRun(ctx, runs[0]), "duplicate run id")

	got, err := store.RecentRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "r3", got[0].ID)
	assert.Equal(t, "normalization stats unavailable", got[0].Err)

	r2 := got[1]
	assert.Equal(t, pipeline.OpPredict, r2.Operation)
	assert.True(t, r2.Degenerate)
	require.NotNil(t, r2.RiskScore)
	assert.InDelta(t, 0.42, *r2.RiskScore, 1e-12)
	assert.Equal(t, "s1", r2.StatsVersion)
	assert.Equal(t, 80*time.Millisecond, r2.Elapsed)
	assert.True(t, r2.StartedAt.Equal(start.Add(time.Second)))
	assert.Nil(t, got[2].RiskScore)

	limited, err := store.RecentRuns(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	sum, err := store.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, sum.Total)
	assert.Equal(t, 1, sum.Failed)
	assert.Equal(t, 1, sum.Degenerate)
	assert.InDelta(t, 70, sum.MeanMillis, 1e-9)
}

func TestRunStore_EmptySummary(t *testing.T) {
	sum, err := NewRunStore(setupTestDB(t)).Summary(context.Background())
	require.NoError(t, err)
	assert.Equal(t, RunSummary{}, sum)
}
