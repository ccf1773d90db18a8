package db

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kartbox/telemetry/internal/analysis"
	"github.com/kartbox/telemetry/internal/testutil"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewDB(filepath.Join(t.TempDir(), "results.db"))
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func analyzedReport(t *testing.T, id string) *analysis.SessionReport {
	t.Helper()
	e, err := analysis.NewEngine(analysis.DefaultParams())
	require.NoError(t, err)
	samples, laps := testutil.SquareSession(
		testutil.LapSpec{ID: 1},
		testutil.LapSpec{ID: 2, SideScale: [4]float64{1.1, 1.1, 1.1, 1.1}},
		testutil.LapSpec{ID: 3, SideScale: [4]float64{1.2, 1, 1, 1}},
	)
	rep, err := e.AnalyzeSession(analysis.SessionInput{ID: id, Samples: samples, Laps: laps})
	require.NoError(t, err)
	return rep
}

func TestPragmasApplied(t *testing.T) {
	db := newTestDB(t)

	var journalMode string
	require.NoError(t, db.QueryRow("PRAGMA journal_mode").Scan(&journalMode))
	assert.Equal(t, "wal", journalMode)

	var busyTimeout int
	require.NoError(t, db.QueryRow("PRAGMA busy_timeout").Scan(&busyTimeout))
	assert.Equal(t, 5000, busyTimeout)

	var synchronous int
	require.NoError(t, db.QueryRow("PRAGMA synchronous").Scan(&synchronous))
	assert.Equal(t, 1, synchronous, "NORMAL")

	var tempStore int
	require.NoError(t, db.QueryRow("PRAGMA temp_store").Scan(&tempStore))
	assert.Equal(t, 2, tempStore, "MEMORY")
}

func TestMigrations(t *testing.T) {
	db := newTestDB(t)
	migrations, err := getMigrationsFS()
	require.NoError(t, err)

	version, dirty, err := db.MigrateVersion(migrations)
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)
	assert.False(t, dirty)

	// Up again is a no-op.
	require.NoError(t, db.MigrateUp(migrations))

	require.NoError(t, db.MigrateDown(migrations))
	version, _, err = db.MigrateVersion(migrations)
	require.NoError(t, err)
	assert.Equal(t, uint(0), version)

	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='sessions'`).Scan(&n))
	assert.Zero(t, n)

	require.NoError(t, db.MigrateUp(migrations))
	version, _, err = db.MigrateVersion(migrations)
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)
}

func TestRecordRun(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	started := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	run := Run{ID: "run-1", StartedAt: started, Version: "test", Params: analysis.DefaultParams()}
	require.NoError(t, db.RecordRun(ctx, run))

	run.FinishedAt = started.Add(time.Minute)
	run.Sessions, run.OK, run.Degraded, run.Failed = 3, 1, 1, 1
	require.NoError(t, db.RecordRun(ctx, run))
	require.NoError(t, db.RecordRun(ctx, Run{ID: "run-0", StartedAt: started.Add(-time.Hour)}))

	runs, err := db.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-1", runs[0].ID)
	assert.Equal(t, started, runs[0].StartedAt)
	assert.Equal(t, started.Add(time.Minute), runs[0].FinishedAt)
	assert.Equal(t, 3, runs[0].Sessions)
	assert.Equal(t, 1, runs[0].Failed)
	assert.Equal(t, analysis.DefaultParams(), runs[0].Params)
	assert.True(t, runs[1].FinishedAt.IsZero())
}

func TestRecordSession_RoundTrip(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	rep := analyzedReport(t, "42")
	recorded := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, db.RecordSession(ctx, SessionRecord{RunID: "run-1", Report: rep, RecordedAt: recorded}))
	// Recording twice replaces the earlier rows.
	require.NoError(t, db.RecordSession(ctx, SessionRecord{RunID: "run-1", Report: rep, RecordedAt: recorded}))

	got, err := db.GetSession(ctx, "42")
	require.NoError(t, err)

	assert.Equal(t, "run-1", got.RunID)
	assert.Equal(t, "42", got.SessionID)
	assert.Equal(t, string(analysis.StatusOK), got.Status)
	assert.Equal(t, recorded, got.RecordedAt)
	assert.Equal(t, 3, got.LapCount)
	assert.Equal(t, 3, got.CornerCount)
	assert.Equal(t, string(analysis.SectorsCornerBounded), got.SectorStrategy)
	require.NotNil(t, got.IdealLap)
	assert.InDelta(t, rep.IdealLap, *got.IdealLap, 1e-12)
	require.NotNil(t, got.FastestLapID)
	assert.Equal(t, 1, *got.FastestLapID)
	require.NotNil(t, got.ReferenceLapID)
	assert.Equal(t, 1, *got.ReferenceLapID)
	require.NotNil(t, got.TimeLost)
	require.NotNil(t, got.LapTimeStdDev)

	require.Len(t, got.Laps, 3)
	assert.True(t, got.Laps[0].Reference)
	assert.True(t, got.Laps[0].Valid)
	require.NotNil(t, got.Laps[0].FinalDelta)
	assert.InDelta(t, 0, *got.Laps[0].FinalDelta, 1e-9)
	require.NotNil(t, got.Laps[2].FinalDelta)
	assert.Greater(t, *got.Laps[2].FinalDelta, 0.0)

	require.Len(t, got.Corners, 3)
	assert.Equal(t, analysis.DirectionLeft, got.Corners[0].Direction)
	assert.Equal(t, 3, got.Corners[0].Members)
	assert.NotNil(t, got.Corners[0].ApexStdDev)

	assert.Len(t, got.Sectors, 3*4)
	assert.Len(t, got.CornerSpeeds, 3*3)
}

func TestRecordSession_FailedWithoutReport(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	err := db.RecordSession(ctx, SessionRecord{
		RunID: "run-1", SessionID: "7", Err: errors.New("data_7.csv: no rows"), RecordedAt: time.Now(),
	})
	require.NoError(t, err)

	got, err := db.GetSession(ctx, "7")
	require.NoError(t, err)
	assert.Equal(t, string(analysis.StatusFailed), got.Status)
	assert.Equal(t, "data_7.csv: no rows", got.Error)
	assert.Nil(t, got.IdealLap)
	assert.Nil(t, got.FastestLapID)
	assert.Empty(t, got.Laps)
}

func TestListSessions_LatestRecordWins(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	rep := analyzedReport(t, "1")
	t0 := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, db.RecordSession(ctx, SessionRecord{RunID: "a", Report: rep, RecordedAt: t0}))
	require.NoError(t, db.RecordSession(ctx, SessionRecord{RunID: "b", Report: rep, RecordedAt: t0.Add(time.Hour)}))
	require.NoError(t, db.RecordSession(ctx, SessionRecord{RunID: "a", SessionID: "2", Err: errors.New("boom"), RecordedAt: t0}))

	list, err := db.ListSessions(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "1", list[0].SessionID)
	assert.Equal(t, "b", list[0].RunID)
	assert.Equal(t, "2", list[1].SessionID)
	assert.Equal(t, "boom", list[1].Error)
}

func TestGetSession_NotFound(t *testing.T) {
	db := newTestDB(t)
	_, err := db.GetSession(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAttachAdminRoutes(t *testing.T) {
	db := newTestDB(t)
	mux := http.NewServeMux()
	require.NoError(t, db.AttachAdminRoutes(mux))

	// Routes may answer 403 to non-local callers, but never 404.
	for _, endpoint := range []string{"/debug/backup", "/debug/tailsql/"} {
		t.Run(endpoint, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, endpoint, nil)
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, req)
			if w.Code == http.StatusNotFound {
				t.Errorf("Endpoint %s should be registered, got 404", endpoint)
			}
		})
	}
}
