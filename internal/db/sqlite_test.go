package db

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) Store {
	t.Helper()
	store, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestMigrationsAreIdempotent(t *testing.T) {
	store := newTestStore(t)
	assert.NoError(t, store.Ping(context.Background()))

	// Reopening the same file path reruns migrate without error; in-memory
	// databases are per-connection, so a second open exercises the same path.
	second, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	assert.NoError(t, second.Close())
}

func TestAppendAndQuerySamples(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		rec := &SampleRecord{
			DeviceID:  "meter-1",
			Voltage:   230,
			Current:   5,
			Power:     1150 + float64(i),
			Timestamp: base.Add(time.Duration(i) * time.Second),
		}
		require.NoError(t, store.AppendSample(ctx, rec))
		assert.NotZero(t, rec.ID)
	}
	require.NoError(t, store.AppendSample(ctx, &SampleRecord{
		DeviceID: "meter-2", Voltage: 120, Current: 2, Power: 240, Timestamp: base,
	}))

	all, err := store.RecentSamples(ctx, "", 100)
	require.NoError(t, err)
	assert.Len(t, all, 6)

	m1, err := store.RecentSamples(ctx, "meter-1", 100)
	require.NoError(t, err)
	require.Len(t, m1, 5)
	// Newest first.
	assert.Equal(t, 1154.0, m1[0].Power)

	limited, err := store.RecentSamples(ctx, "meter-1", 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestPruneSamples(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 10; i++ {
		require.NoError(t, store.AppendSample(ctx, &SampleRecord{
			DeviceID:  "meter-1",
			Voltage:   230,
			Current:   5,
			Power:     1150,
			Timestamp: base.Add(time.Duration(i) * time.Hour),
		}))
	}

	removed, err := store.PruneSamples(ctx, base.Add(5*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(5), removed)

	remaining, err := store.RecentSamples(ctx, "meter-1", 100)
	require.NoError(t, err)
	assert.Len(t, remaining, 5)
}

func TestAppendAndQueryFindings(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	records := []*FindingRecord{
		{ID: "f1", DeviceID: "meter-1", Metric: "power", Kind: "spike", Method: "z_score",
			Score: 4.2, Severity: "high", Value: 5000, Expected: 1150, DetectedAt: base},
		{ID: "f2", DeviceID: "meter-1", Metric: "power", Kind: "outlier", Method: "iqr",
			Score: 900, Severity: "medium", Value: 2600, Expected: 1500, DetectedAt: base.Add(time.Minute)},
		{ID: "f3", DeviceID: "meter-2", Metric: "voltage", Kind: "drop", Method: "z_score",
			Score: 2.8, Severity: "medium", Value: 180, Expected: 230, DetectedAt: base.Add(2 * time.Minute)},
	}
	for _, rec := range records {
		require.NoError(t, store.AppendFinding(ctx, rec))
	}

	all, err := store.QueryFindings(ctx, FindingQuery{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	// Newest first.
	assert.Equal(t, "f3", all[0].ID)

	byDevice, err := store.QueryFindings(ctx, FindingQuery{DeviceID: "meter-1"})
	require.NoError(t, err)
	assert.Len(t, byDevice, 2)

	byMethod, err := store.QueryFindings(ctx, FindingQuery{Method: "iqr"})
	require.NoError(t, err)
	require.Len(t, byMethod, 1)
	assert.Equal(t, "f2", byMethod[0].ID)

	bySeverity, err := store.QueryFindings(ctx, FindingQuery{Severity: "high"})
	require.NoError(t, err)
	assert.Len(t, bySeverity, 1)

	windowed, err := store.QueryFindings(ctx, FindingQuery{
		From: base.Add(30 * time.Second),
		To:   base.Add(90 * time.Second),
	})
	require.NoError(t, err)
	require.Len(t, windowed, 1)
	assert.Equal(t, "f2", windowed[0].ID)

	paged, err := store.QueryFindings(ctx, FindingQuery{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, paged, 1)
	assert.Equal(t, "f2", paged[0].ID)
}

func TestGetFinding(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rec := &FindingRecord{
		ID: "f1", DeviceID: "meter-1", Metric: "power", Kind: "spike", Method: "z_score",
		Score: 4.2, Severity: "high", Message: "power spike", Value: 5000, Expected: 1150,
		DetectedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, store.AppendFinding(ctx, rec))

	got, err := store.GetFinding(ctx, "f1")
	require.NoError(t, err)
	assert.Equal(t, rec.Message, got.Message)
	assert.Equal(t, rec.Score, got.Score)
	assert.Equal(t, rec.DetectedAt, got.DetectedAt)

	_, err = store.GetFinding(ctx, "missing")
	assert.Error(t, err)
}

func TestFindingSummary(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	severities := []string{"high", "high", "medium", "low"}
	for i, sev := range severities {
		require.NoError(t, store.AppendFinding(ctx, &FindingRecord{
			ID: string(rune('a' + i)), DeviceID: "meter-1", Metric: "power",
			Method: "z_score", Severity: sev, DetectedAt: base,
		}))
	}

	summary, err := store.FindingSummary(ctx, time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 2, summary["high"])
	assert.Equal(t, 1, summary["medium"])
	assert.Equal(t, 1, summary["low"])
}
