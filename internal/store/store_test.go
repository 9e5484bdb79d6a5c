package store

import (
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ibeckermayer/msgdump/internal/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "nested", "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	clock := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	return s
}

func TestRunLifecycle(t *testing.T) {
	s := newTestStore(t)

	runID, err := s.BeginRun(types.ModeText, 3)
	require.NoError(t, err)
	require.NotEmpty(t, runID)

	run, err := s.GetRun(runID)
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, run.Status)
	assert.Equal(t, "text", run.Mode)
	assert.Equal(t, 3, run.Targets)
	assert.True(t, run.FinishedAt.IsZero())

	require.NoError(t, s.FinishRun(runID, errors.New("export B failed")))

	run, err = s.GetRun(runID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, run.Status)
	assert.Equal(t, "export B failed", run.Error)
	assert.True(t, run.FinishedAt.After(run.StartedAt))
}

func TestFinishUnknownRun(t *testing.T) {
	s := newTestStore(t)
	err := s.FinishRun("missing", nil)
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestRecentExports(t *testing.T) {
	s := newTestStore(t)

	runID, err := s.BeginRun(types.ModeScreenshot, 2)
	require.NoError(t, err)

	a, err := s.BeginExport(runID, types.Target{ID: "A", URL: "https://www.facebook.com/A"})
	require.NoError(t, err)
	require.NoError(t, s.FinishExport(a, Outcome{Stage: "done", Artifact: "out/A", Frames: 7}, nil))

	b, err := s.BeginExport(runID, types.Target{ID: "B", URL: "https://www.facebook.com/B"})
	require.NoError(t, err)
	require.NoError(t, s.FinishExport(b, Outcome{Stage: "navigated"}, errors.New("no compose input")))

	_, err = s.BeginExport(runID, types.Target{ID: "C", URL: "https://www.facebook.com/C"})
	require.NoError(t, err)

	entries, err := s.RecentExports(2)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, "C", entries[0].TargetID)
	assert.Equal(t, StatusRunning, entries[0].Status)
	assert.True(t, entries[0].FinishedAt.IsZero())

	assert.Equal(t, "B", entries[1].TargetID)
	assert.Equal(t, runID, entries[1].RunID)
	assert.Equal(t, StatusFailed, entries[1].Status)
	assert.Equal(t, "navigated", entries[1].Stage)
	assert.Equal(t, "no compose input", entries[1].Error)

	all, err := s.RecentExports(10)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, StatusOK, all[2].Status)
	assert.Equal(t, "out/A", all[2].Artifact)
	assert.Equal(t, 7, all[2].Frames)
}

func TestReopenKeepsJournal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")

	s, err := New(path)
	require.NoError(t, err)
	runID, err := s.BeginRun(types.ModeText, 1)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = New(path)
	require.NoError(t, err)
	defer s.Close()

	run, err := s.GetRun(runID)
	require.NoError(t, err)
	assert.Equal(t, runID, run.ID)
}
