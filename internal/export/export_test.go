package export

import (
	"bytes"
	"encoding/csv"
	"image/png"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/swarm.report/internal/density"
	"github.com/banshee-data/swarm.report/internal/ingest"
	"github.com/banshee-data/swarm.report/internal/series"
	"github.com/banshee-data/swarm.report/internal/units"
)

func testPoints() []series.Point {
	return []series.Point{
		{FrameIndex: 0, IndividualCount: 2},
		{FrameIndex: 1, MeanSpeed: 30, MeanSpeedValid: true, IndividualCount: 2},
		{FrameIndex: 2, MeanSpeed: 45, MeanSpeedValid: true, IndividualCount: 1, CumulativeSuddenCount: 1},
	}
}

func testSnapshot(t *testing.T) *density.Snapshot {
	t.Helper()
	g, err := density.NewGrid(density.Config{Width: 80, Height: 40, CellSizePx: 10, Bandwidth: 8})
	require.NoError(t, err)
	g.AddFrame([]ingest.PositionRecord{{ID: "a", X: 40, Y: 20}})
	return g.Snapshot()
}

func TestWriteSeriesCSV(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	require.NoError(t, WriteSeriesCSV(&buf, testPoints(), SpeedConversion{}))

	rows, err := csv.NewReader(strings.NewReader(buf.String())).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 4, "header plus one row per frame")

	assert.Equal(t, []string{"frame_index", "mean_speed", "individual_count", "cumulative_sudden_count"}, rows[0])
	assert.Equal(t, []string{"0", "", "2", "0"}, rows[1], "undefined mean speed exports empty, not zero")
	assert.Equal(t, []string{"1", "30", "2", "0"}, rows[2])
	assert.Equal(t, []string{"2", "45", "1", "1"}, rows[3])
}

func TestWriteSeriesCSVConvertsUnits(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	conv := SpeedConversion{MetresPerPixel: 0.1, Units: units.MPS}
	require.NoError(t, WriteSeriesCSV(&buf, testPoints(), conv))

	rows, err := csv.NewReader(strings.NewReader(buf.String())).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, "3", rows[2][1], "30 px/s at 0.1 m/px = 3 m/s")
}

func TestWriteSeriesParquet(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "series.parquet")
	require.NoError(t, WriteSeriesParquet(path, testPoints(), SpeedConversion{}))
	assert.FileExists(t, path)
}

func TestWriteSeriesParquetEmpty(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "empty.parquet")
	require.NoError(t, WriteSeriesParquet(path, nil, SpeedConversion{}))
	assert.FileExists(t, path)
}

func TestWriteGridCSV(t *testing.T) {
	t.Parallel()
	snap := testSnapshot(t)

	var buf bytes.Buffer
	require.NoError(t, WriteGridCSV(&buf, snap))

	rows, err := csv.NewReader(strings.NewReader(buf.String())).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, snap.Rows)
	assert.Len(t, rows[0], snap.Cols)
}

func TestWriteGridPNG(t *testing.T) {
	t.Parallel()
	snap := testSnapshot(t)

	var buf bytes.Buffer
	require.NoError(t, WriteGridPNG(&buf, snap))

	img, err := png.Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, snap.Cols, img.Bounds().Dx())
	assert.Equal(t, snap.Rows, img.Bounds().Dy())
}
