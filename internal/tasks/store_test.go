package tasks

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sephirothchang/CXVoyager-sub000/internal/orchestrator"
)

func sampleRecords() []Record {
	ts := time.Date(2026, 3, 4, 5, 6, 7, 8, time.UTC)
	aborted := ts.Add(time.Minute)
	return []Record{
		{
			ID:               "a1",
			Status:           StatusDone,
			Stages:           []orchestrator.Stage{orchestrator.StagePrepare, orchestrator.StageCleanup},
			RequestedOptions: orchestrator.RunOptions{DryRun: orchestrator.Bool(true)},
			EffectiveOptions: &orchestrator.EffectiveRunOptions{DryRun: true, LogLevel: "INFO"},
			CreatedAt:        ts,
			UpdatedAt:        ts,
			CompletedStages:  []orchestrator.Stage{orchestrator.StagePrepare, orchestrator.StageCleanup},
			TotalStages:      2,
			StageHistory: []HistoryEvent{
				{Event: orchestrator.EventStart, Stage: orchestrator.StagePrepare, At: ts},
				{Event: orchestrator.EventComplete, Stage: orchestrator.StagePrepare, At: ts},
			},
			ProgressMessages: []orchestrator.ProgressMessage{
				{Message: "hello", Stage: orchestrator.StagePrepare, Level: orchestrator.LevelInfo, At: ts},
			},
		},
		{
			ID:             "b2",
			Status:         StatusAborted,
			Stages:         []orchestrator.Stage{orchestrator.StageDeployOBS},
			CreatedAt:      ts,
			UpdatedAt:      aborted,
			AbortRequested: true,
			AbortReason:    "operator stop",
			AbortedAt:      &aborted,
			StageHistory: []HistoryEvent{
				{Event: orchestrator.EventAborted, Stage: orchestrator.StageDeployOBS, At: aborted},
			},
		},
	}
}

func assertRoundTrip(t *testing.T, want, got []Record) {
	t.Helper()
	require.Len(t, got, len(want))
	for i := range want {
		assert.Equal(t, want[i].ID, got[i].ID)
		assert.Equal(t, want[i].Status, got[i].Status)
		assert.Equal(t, want[i].Stages, got[i].Stages)
		assert.Equal(t, want[i].CompletedStages, got[i].CompletedStages)
		assert.Equal(t, want[i].AbortReason, got[i].AbortReason)
		assert.True(t, want[i].UpdatedAt.Equal(got[i].UpdatedAt))
		require.Len(t, got[i].StageHistory, len(want[i].StageHistory))
		for j := range want[i].StageHistory {
			assert.Equal(t, want[i].StageHistory[j].Event, got[i].StageHistory[j].Event)
			assert.Equal(t, want[i].StageHistory[j].Stage, got[i].StageHistory[j].Stage)
			assert.True(t, want[i].StageHistory[j].At.Equal(got[i].StageHistory[j].At))
		}
	}
}

// ---------------------------------------------------------------------------
// JSONStore
// ---------------------------------------------------------------------------

func TestJSONStore_RoundTrip(t *testing.T) {
	store := NewJSONStore(filepath.Join(t.TempDir(), "nested", "tasks.json"))
	want := sampleRecords()

	require.NoError(t, store.Save(context.Background(), want))
	got, err := store.Load(context.Background())
	require.NoError(t, err)
	assertRoundTrip(t, want, got)

	require.NotNil(t, got[1].AbortedAt)
	assert.True(t, want[1].AbortedAt.Equal(*got[1].AbortedAt))
	require.NotNil(t, got[0].RequestedOptions.DryRun)
	assert.Nil(t, got[0].RequestedOptions.Debug)
}

func TestJSONStore_FileLayout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tasks.json")
	store := NewJSONStore(path)
	require.NoError(t, store.Save(context.Background(), sampleRecords()[:1]))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "\n  {\n    \"id\": \"a1\"")
	assert.Contains(t, string(data), `"stages": [`)
	assert.Contains(t, string(data), `"prepare"`)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file left behind")
}

func TestJSONStore_MissingFile(t *testing.T) {
	got, err := NewJSONStore(filepath.Join(t.TempDir(), "absent.json")).Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestJSONStore_SkipsCorruptRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tasks.json")
	body := `[{"id":"ok","status":"done","stages":["prepare"]},{"id":"bad","stages":["warp_drive"]},{"status":"done"}]`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	got, err := NewJSONStore(path).Load(context.Background())
	require.Error(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "ok", got[0].ID)
}

func TestJSONStore_NotAnArray(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tasks.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"id":"x"}`), 0o644))

	_, err := NewJSONStore(path).Load(context.Background())
	require.Error(t, err)
}

// ---------------------------------------------------------------------------
// SQLiteStore
// ---------------------------------------------------------------------------

func TestSQLiteStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "tasks.db")
	store, err := OpenSQLiteStore(ctx, path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	want := sampleRecords()
	require.NoError(t, store.Save(ctx, want))
	got, err := store.Load(ctx)
	require.NoError(t, err)
	assertRoundTrip(t, want, got)

	// Save replaces the table.
	require.NoError(t, store.Save(ctx, want[1:]))
	got, err = store.Load(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "b2", got[0].ID)
}

func TestSQLiteStore_ManagerRestart(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "tasks.db")
	store, err := OpenSQLiteStore(ctx, path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	require.NoError(t, store.Save(ctx, []Record{{ID: "r1", Status: StatusRunning}}))

	m := NewManager(newEngine(orchestrator.NewRegistry()), store)
	rec, err := m.Get("r1")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, rec.Status)
	assert.Equal(t, ErrRestartInterrupted.Error(), rec.Error)
}

// ---------------------------------------------------------------------------
// Snapshot
// ---------------------------------------------------------------------------

func TestRecord_SnapshotIsDeep(t *testing.T) {
	rec := sampleRecords()[0]
	rec.Summary = &orchestrator.RunSummary{Dependencies: map[string]bool{"yaml": true}}
	snap := rec.Snapshot()

	snap.Stages[0] = orchestrator.StageCleanup
	snap.StageHistory[0].Event = orchestrator.EventError
	*snap.RequestedOptions.DryRun = false
	snap.EffectiveOptions.DryRun = false
	snap.Summary.Dependencies["yaml"] = false

	assert.Equal(t, orchestrator.StagePrepare, rec.Stages[0])
	assert.Equal(t, orchestrator.EventStart, rec.StageHistory[0].Event)
	assert.True(t, *rec.RequestedOptions.DryRun)
	assert.True(t, rec.EffectiveOptions.DryRun)
	assert.True(t, rec.Summary.Dependencies["yaml"])
}

func TestStatus(t *testing.T) {
	assert.False(t, StatusPending.Terminal())
	assert.False(t, StatusRunning.Terminal())
	assert.True(t, StatusDone.Terminal())
	assert.True(t, StatusFailed.Terminal())
	assert.True(t, StatusAborted.Terminal())
	assert.True(t, StatusAborted.Valid())
	assert.False(t, Status("paused").Valid())
}
