// Package export writes a finished run's artifacts: the time series as CSV
// or parquet, and the final density grid as CSV or a heatmap PNG.
package export

import (
	"encoding/csv"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"strconv"

	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	"github.com/banshee-data/swarm.report/internal/density"
	"github.com/banshee-data/swarm.report/internal/series"
	"github.com/banshee-data/swarm.report/internal/units"
)

// SpeedConversion controls the units of exported speed columns.
// The zero value exports raw pixel speeds.
type SpeedConversion struct {
	MetresPerPixel float64
	Units          string
}

func (c SpeedConversion) apply(speedPxPerSec float64) float64 {
	if c.Units == "" {
		return speedPxPerSec
	}
	return units.ConvertSpeed(speedPxPerSec, c.MetresPerPixel, c.Units)
}

// WriteSeriesCSV writes one row per frame. Undefined mean speeds export as
// an empty cell, never as zero.
func WriteSeriesCSV(w io.Writer, points []series.Point, conv SpeedConversion) error {
	cw := csv.NewWriter(w)
	header := []string{"frame_index", "mean_speed", "individual_count", "cumulative_sudden_count"}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write series header: %w", err)
	}

	for _, p := range points {
		speed := ""
		if p.MeanSpeedValid {
			speed = strconv.FormatFloat(conv.apply(p.MeanSpeed), 'g', -1, 64)
		}
		row := []string{
			strconv.Itoa(p.FrameIndex),
			speed,
			strconv.Itoa(p.IndividualCount),
			strconv.Itoa(p.CumulativeSuddenCount),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write series row %d: %w", p.FrameIndex, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// seriesRow is the parquet schema for one exported frame. MeanSpeed is
// optional so undefined means survive the round trip as nulls.
type seriesRow struct {
	FrameIndex            int64    `parquet:"name=frame_index, type=INT64"`
	MeanSpeed             *float64 `parquet:"name=mean_speed, type=DOUBLE, repetitiontype=OPTIONAL"`
	IndividualCount       int64    `parquet:"name=individual_count, type=INT64"`
	CumulativeSuddenCount int64    `parquet:"name=cumulative_sudden_count, type=INT64"`
}

// WriteSeriesParquet writes the series to a parquet file at path.
func WriteSeriesParquet(path string, points []series.Point, conv SpeedConversion) error {
	fw, err := local.NewLocalFileWriter(path)
	if err != nil {
		return fmt.Errorf("create parquet file: %w", err)
	}
	defer fw.Close()

	pw, err := writer.NewParquetWriter(fw, new(seriesRow), 2)
	if err != nil {
		return fmt.Errorf("create parquet writer: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for _, p := range points {
		row := seriesRow{
			FrameIndex:            int64(p.FrameIndex),
			IndividualCount:       int64(p.IndividualCount),
			CumulativeSuddenCount: int64(p.CumulativeSuddenCount),
		}
		if p.MeanSpeedValid {
			speed := conv.apply(p.MeanSpeed)
			row.MeanSpeed = &speed
		}
		if err := pw.Write(row); err != nil {
			return fmt.Errorf("write parquet row %d: %w", p.FrameIndex, err)
		}
	}

	if err := pw.WriteStop(); err != nil {
		return fmt.Errorf("finalize parquet file: %w", err)
	}
	return nil
}

// WriteGridCSV writes the normalized grid as rows of cell values, one CSV
// row per grid row.
func WriteGridCSV(w io.Writer, snap *density.Snapshot) error {
	cw := csv.NewWriter(w)
	row := make([]string, snap.Cols)
	for cy := 0; cy < snap.Rows; cy++ {
		for cx := 0; cx < snap.Cols; cx++ {
			row[cx] = strconv.FormatFloat(snap.At(cx, cy), 'g', -1, 64)
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write grid row %d: %w", cy, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteGridPNG renders the normalized grid as a grayscale PNG, scaled so the
// peak cell is white. An all-zero grid exports as solid black.
func WriteGridPNG(w io.Writer, snap *density.Snapshot) error {
	img := image.NewGray16(image.Rect(0, 0, snap.Cols, snap.Rows))
	max := snap.Max()
	if max > 0 {
		for cy := 0; cy < snap.Rows; cy++ {
			for cx := 0; cx < snap.Cols; cx++ {
				v := snap.At(cx, cy) / max
				img.SetGray16(cx, cy, color.Gray16{Y: uint16(v * 65535)})
			}
		}
	}
	if err := png.Encode(w, img); err != nil {
		return fmt.Errorf("encode grid png: %w", err)
	}
	return nil
}
