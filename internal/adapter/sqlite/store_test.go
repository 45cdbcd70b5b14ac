package sqlite

import (
	"context"
	"database/sql"
	"log/slog"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/couchcryptid/metdata-etl/internal/domain"
	"github.com/couchcryptid/metdata-etl/internal/mlprep"
	"github.com/couchcryptid/metdata-etl/internal/pipeline"
	"github.com/couchcryptid/metdata-etl/internal/qc"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	// Every pooled connection would get its own in-memory database.
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	store := New(db, slog.Default())
	require.NoError(t, store.Migrate(context.Background()))
	return store
}

func testDataset(t *testing.T, processedAt time.Time) *pipeline.Dataset {
	t.Helper()
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	f := domain.NewFrame([]time.Time{t0, t0.Add(time.Hour), t0.Add(2 * time.Hour)})
	require.NoError(t, f.SetFloat(domain.VarTemp, []float64{1, 2, 4}))

	scaler, err := mlprep.FitScaler(f, mlprep.MethodStandard, nil)
	require.NoError(t, err)

	return &pipeline.Dataset{
		Station:     "KDEN",
		ProcessedAt: processedAt,
		Frequency:   time.Hour,
		Frame:       f,
		Report: qc.Report{
			Rows:  3,
			Gaps:  1,
			Flags: map[string]int{"qc_temp_c_range": 2, domain.FlagAny: 2},
		},
		History:  []pipeline.HistoryEntry{{At: processedAt, Stage: "to_utc", Detail: "0 duplicates dropped"}},
		Warnings: []string{"fix_accum_rain skipped: no rain column"},
		Scaler:   scaler,
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	store := setupTestStore(t)
	require.NoError(t, store.Migrate(context.Background()))

	version, err := store.MigrationVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, len(migrations), version)
}

func TestSaveDataset_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)
	processedAt := time.Date(2024, 4, 26, 15, 10, 0, 0, time.UTC)
	ds := testDataset(t, processedAt)

	id, err := store.SaveDataset(ctx, ds)
	require.NoError(t, err)

	runs, err := store.Runs(ctx, "KDEN", 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	want := Run{
		ID:          id,
		Station:     "KDEN",
		ProcessedAt: processedAt,
		Frequency:   time.Hour,
		Rows:        3,
		Gaps:        1,
		Flagged:     2,
		History:     ds.History,
		Warnings:    ds.Warnings,
	}
	if diff := cmp.Diff(want, runs[0]); diff != "" {
		t.Fatalf("run mismatch (-want +got):\n%s", diff)
	}

	summary, err := store.QCSummary(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, ds.Report.Flags, summary)
}

func TestLatestScaler(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)

	got, err := store.LatestScaler(ctx, "KDEN")
	require.NoError(t, err)
	assert.Nil(t, got)

	older := testDataset(t, time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC))
	newer := testDataset(t, time.Date(2024, 4, 2, 0, 0, 0, 0, time.UTC))
	newer.Scaler.Parameters[domain.VarTemp] = mlprep.ColumnParams{Center: 10, Scale: 2}
	require.NoError(t, store.Load(ctx, newer))
	require.NoError(t, store.Load(ctx, older))

	got, err = store.LatestScaler(ctx, "KDEN")
	require.NoError(t, err)
	if diff := cmp.Diff(newer.Scaler, got); diff != "" {
		t.Fatalf("scaler mismatch (-want +got):\n%s", diff)
	}

	// Applying the restored parameters reproduces the in-memory result.
	want, err := mlprep.ApplyScaler(newer.Frame, newer.Scaler)
	require.NoError(t, err)
	restored, err := mlprep.ApplyScaler(newer.Frame, got)
	require.NoError(t, err)
	a, _ := want.Float(domain.VarTemp)
	b, _ := restored.Float(domain.VarTemp)
	assert.Equal(t, a, b)
}

func TestRuns_NewestFirstAndLimited(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)
	for day := 1; day <= 3; day++ {
		ds := testDataset(t, time.Date(2024, 4, day, 0, 0, 0, 0, time.UTC))
		ds.Scaler = nil
		require.NoError(t, store.Load(ctx, ds))
	}

	runs, err := store.Runs(ctx, "KDEN", 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, 3, runs[0].ProcessedAt.Day())
	assert.Equal(t, 2, runs[1].ProcessedAt.Day())

	none, err := store.Runs(ctx, "KBOS", 10)
	require.NoError(t, err)
	assert.Empty(t, none)
}
