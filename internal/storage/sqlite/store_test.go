package sqlite

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/swarm.report/internal/density"
	"github.com/banshee-data/swarm.report/internal/ingest"
	"github.com/banshee-data/swarm.report/internal/series"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testSnapshot(t *testing.T) *density.Snapshot {
	t.Helper()
	g, err := density.NewGrid(density.Config{Width: 80, Height: 40, CellSizePx: 10, Bandwidth: 8})
	require.NoError(t, err)
	g.AddFrame([]ingest.PositionRecord{{ID: "a", X: 40, Y: 20}})
	return g.Snapshot()
}

func TestSaveAndLoadRun(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)

	points := []series.Point{
		{FrameIndex: 0, IndividualCount: 2},
		{FrameIndex: 1, MeanSpeed: 7.5, MeanSpeedValid: true, IndividualCount: 2, CumulativeSuddenCount: 1},
	}
	snap := testSnapshot(t)

	runID, err := s.SaveRun("clip1.mp4", points, snap, 3, 1)
	require.NoError(t, err)
	require.NotEmpty(t, runID)

	t.Run("run listed", func(t *testing.T) {
		runs, err := s.ListRuns()
		require.NoError(t, err)
		require.Len(t, runs, 1)
		assert.Equal(t, runID, runs[0].RunID)
		assert.Equal(t, "clip1.mp4", runs[0].Source)
		assert.Equal(t, 2, runs[0].Frames)
		assert.Equal(t, 3, runs[0].SkippedFrames)
		assert.Equal(t, 1, runs[0].SuddenTotal)
	})

	t.Run("series round trip", func(t *testing.T) {
		loaded, err := s.LoadSeries(runID)
		require.NoError(t, err)
		require.Len(t, loaded, 2)
		assert.Equal(t, points[0], loaded[0], "undefined mean speed survives as null")
		assert.Equal(t, points[1], loaded[1])
	})

	t.Run("grid round trip", func(t *testing.T) {
		loaded, err := s.LoadGrid(runID)
		require.NoError(t, err)
		assert.Equal(t, snap.Cols, loaded.Cols)
		assert.Equal(t, snap.Rows, loaded.Rows)
		assert.InDeltaSlice(t, snap.Values, loaded.Values, 1e-12)
	})
}

func TestSaveRunEmptySeries(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)

	runID, err := s.SaveRun("empty.mp4", nil, nil, 0, 0)
	require.NoError(t, err)

	loaded, err := s.LoadSeries(runID)
	require.NoError(t, err)
	assert.Empty(t, loaded)
}

func TestLoadGridUnknownRun(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	_, err := s.LoadGrid("no-such-run")
	assert.Error(t, err)
}

func TestRunsIsolated(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)

	id1, err := s.SaveRun("a.mp4", []series.Point{{FrameIndex: 0, IndividualCount: 1}}, nil, 0, 0)
	require.NoError(t, err)
	id2, err := s.SaveRun("b.mp4", []series.Point{{FrameIndex: 0, IndividualCount: 9}}, nil, 0, 0)
	require.NoError(t, err)

	p1, err := s.LoadSeries(id1)
	require.NoError(t, err)
	p2, err := s.LoadSeries(id2)
	require.NoError(t, err)

	assert.Equal(t, 1, p1[0].IndividualCount)
	assert.Equal(t, 9, p2[0].IndividualCount)
}
