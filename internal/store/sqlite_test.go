package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/transitlab/destchoice/internal/skim"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func TestSQLite_RunLifecycle(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx, "workplace_location")
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, StatusRunning, run.Status)

	got, err := st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.ID, got.ID)
	assert.Equal(t, "workplace_location", got.Model)

	require.NoError(t, st.UpdateRunStatus(ctx, run.ID, StatusCompleted))
	got, err = st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.Status)
}

func TestSQLite_GetRun_Missing(t *testing.T) {
	st := newTestSQLiteStore(t)

	_, err := st.GetRun(context.Background(), "nonexistent")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestSQLite_UpdateRunStatus_Missing(t *testing.T) {
	st := newTestSQLiteStore(t)

	err := st.UpdateRunStatus(context.Background(), "nonexistent", StatusFailed)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestSQLite_ListRuns(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := st.CreateRun(ctx, "workplace_location")
		require.NoError(t, err)
	}

	runs, err := st.ListRuns(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, runs, 2)

	runs, err = st.ListRuns(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, runs, 3)
}

func TestSQLite_SaveAndLoadChoices(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx, "workplace_location")
	require.NoError(t, err)

	choices := []ChoiceRow{
		{ChooserID: 10, Zone: 3},
		{ChooserID: 11, Zone: 7},
		{ChooserID: 12, Zone: -1},
	}
	require.NoError(t, st.SaveChoices(ctx, run.ID, choices))

	got, err := st.Choices(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, choices, got)
}

func TestSQLite_SaveAndLoadSkim(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	cells := []skim.Cell{
		{Origin: 1, Destination: 1, Value: 0},
		{Origin: 1, Destination: 2, Value: 3.5},
		{Origin: 2, Destination: 1, Value: 3.5},
	}
	require.NoError(t, st.SaveSkim(ctx, "DISTANCE", cells))

	got, err := st.LoadSkim(ctx, "DISTANCE")
	require.NoError(t, err)
	assert.Equal(t, cells, got)
}

func TestSQLite_SaveSkim_Replaces(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.SaveSkim(ctx, "DISTANCE", []skim.Cell{
		{Origin: 1, Destination: 2, Value: 3.5},
	}))
	require.NoError(t, st.SaveSkim(ctx, "DISTANCE", []skim.Cell{
		{Origin: 1, Destination: 2, Value: 4.0},
	}))

	got, err := st.LoadSkim(ctx, "DISTANCE")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 4.0, got[0].Value)
}

func TestSQLite_LoadSkim_Missing(t *testing.T) {
	st := newTestSQLiteStore(t)

	_, err := st.LoadSkim(context.Background(), "NOPE")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}
