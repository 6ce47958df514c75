package main

import (
	"flag"
	"fmt"
	"image"
	"image/png"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"

	"github.com/banshee-data/swarm.report/internal/config"
	"github.com/banshee-data/swarm.report/internal/density"
	"github.com/banshee-data/swarm.report/internal/export"
	"github.com/banshee-data/swarm.report/internal/ingest"
	"github.com/banshee-data/swarm.report/internal/kinematics"
	"github.com/banshee-data/swarm.report/internal/overlay"
	"github.com/banshee-data/swarm.report/internal/pipeline"
	"github.com/banshee-data/swarm.report/internal/report"
	"github.com/banshee-data/swarm.report/internal/storage/sqlite"
	"github.com/banshee-data/swarm.report/internal/units"
)

// dirFrameSource serves a numbered PNG frame sequence from a directory,
// sorted by filename.
type dirFrameSource struct {
	paths []string
	next  int
}

func newDirFrameSource(dir string) (*dirFrameSource, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read frames dir: %w", err)
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".png" {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no .png frames in %s", dir)
	}
	sort.Strings(paths)
	return &dirFrameSource{paths: paths}, nil
}

func (s *dirFrameSource) FrameCount() int { return len(s.paths) }

// frameSize reports the pixel geometry of the first frame without decoding
// its pixel data. Every frame in the sequence is expected to match.
func (s *dirFrameSource) frameSize() (int, int, error) {
	f, err := os.Open(s.paths[0])
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()
	cfg, err := png.DecodeConfig(f)
	if err != nil {
		return 0, 0, fmt.Errorf("decode %s: %w", s.paths[0], err)
	}
	return cfg.Width, cfg.Height, nil
}

func (s *dirFrameSource) Next() (image.Image, error) {
	if s.next >= len(s.paths) {
		return nil, io.EOF
	}
	f, err := os.Open(s.paths[s.next])
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, err := png.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", s.paths[s.next], err)
	}
	s.next++
	return img, nil
}

// pngFrameWriter persists composited frames as frame_NNNNNN.png files.
type pngFrameWriter struct {
	dir string
}

func (w *pngFrameWriter) WriteFrame(frameIndex int, frame image.Image) error {
	path := filepath.Join(w.dir, fmt.Sprintf("frame_%06d.png", frameIndex))
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, frame); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func main() {
	var recordsPath string
	var configPath string
	var framesDir string
	var outDir string
	var dbPath string
	var speedUnits string

	flag.StringVar(&recordsPath, "records", "", "path to JSONL position records (required)")
	flag.StringVar(&configPath, "config", "", "path to overlay config JSON")
	flag.StringVar(&framesDir, "frames-dir", "", "directory of input PNG frames; omit for a stats-only run")
	flag.StringVar(&outDir, "out", "overlay_out", "output directory")
	flag.StringVar(&dbPath, "db", "", "optional sqlite path to persist the run")
	flag.StringVar(&speedUnits, "units", units.PXPS, "speed units for exports ("+units.GetValidUnitsString()+")")
	flag.Parse()

	if recordsPath == "" {
		log.Fatalf("records path must be provided")
	}
	if !units.IsValid(speedUnits) {
		log.Fatalf("invalid units %q (valid: %s)", speedUnits, units.GetValidUnitsString())
	}

	cfg := config.EmptyOverlayConfig()
	if configPath != "" {
		var err error
		cfg, err = config.LoadOverlayConfig(configPath)
		if err != nil {
			log.Fatalf("load config: %v", err)
		}
	}

	recordsFile, err := os.Open(recordsPath)
	if err != nil {
		log.Fatalf("open records: %v", err)
	}
	defer recordsFile.Close()

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		log.Fatalf("create output dir: %v", err)
	}

	pcfg := pipeline.Config{
		Source: ingest.NewBatchReader(recordsFile),
		Bounds: ingest.Bounds{
			Width:  cfg.GetFrameWidthPx(),
			Height: cfg.GetFrameHeightPx(),
		},
		Kinematics: kinematics.Config{
			WindowFrames:       cfg.GetKinematicsWindowFrames(),
			GapToleranceFrames: cfg.GetGapToleranceFrames(),
			SuddenThreshold:    cfg.GetSuddenAccelerationThreshold(),
			FramesPerSecond:    cfg.GetFramesPerSecond(),
		},
		Density: density.Config{
			CellSizePx:   cfg.GetDensityCellSizePx(),
			Bandwidth:    cfg.GetDensityBandwidth(),
			Mode:         density.Mode(cfg.GetDensityMode()),
			WindowFrames: cfg.GetDensityWindowFrames(),
		},
		Overlay: overlay.Options{
			ShowMarkers:     cfg.GetShowPositionMarkers(),
			ShowDensity:     cfg.GetShowDensityOverlay(),
			DensityOpacity:  cfg.GetDensityOpacity(),
			MarkerRadiusPx:  cfg.GetMarkerRadiusPx(),
			ShowHistogram:   cfg.ChartEnabled(config.ChartHistogram),
			ShowSpeedSeries: cfg.ChartEnabled(config.ChartSpeedSeries),
			ShowSuddenCount: cfg.ChartEnabled(config.ChartSuddenCount),
		},
		RenderWorkers: cfg.GetRenderWorkers(),
	}

	if framesDir != "" {
		video, err := newDirFrameSource(framesDir)
		if err != nil {
			log.Fatalf("frames: %v", err)
		}

		// The video's geometry is authoritative when frames are attached; the
		// configured extent only covers stats-only runs.
		w, h, err := video.frameSize()
		if err != nil {
			log.Fatalf("frames: %v", err)
		}
		if (cfg.FrameWidthPx != nil && *cfg.FrameWidthPx != float64(w)) ||
			(cfg.FrameHeightPx != nil && *cfg.FrameHeightPx != float64(h)) {
			log.Printf("configured geometry %gx%g overridden by video frames (%dx%d)",
				cfg.GetFrameWidthPx(), cfg.GetFrameHeightPx(), w, h)
		}
		pcfg.Bounds = ingest.Bounds{Width: float64(w), Height: float64(h)}

		// Pre-count the record frame domain so a frame/video mismatch fails
		// before any frame is composited.
		countFile, err := os.Open(recordsPath)
		if err != nil {
			log.Fatalf("open records: %v", err)
		}
		recordFrames, err := ingest.CountRecordFrames(countFile)
		countFile.Close()
		if err != nil {
			log.Fatalf("count record frames: %v", err)
		}
		pcfg.Source = ingest.WithFrameCount(pcfg.Source, recordFrames)

		framesOut := filepath.Join(outDir, "frames")
		if err := os.MkdirAll(framesOut, 0o755); err != nil {
			log.Fatalf("create frames dir: %v", err)
		}
		pcfg.Video = video
		pcfg.Output = &pngFrameWriter{dir: framesOut}
	}

	p, err := pipeline.New(pcfg)
	if err != nil {
		log.Fatalf("pipeline: %v", err)
	}

	result, err := p.Run()
	if err != nil {
		log.Fatalf("run failed: %v", err)
	}
	log.Printf("processed %d frame(s): %d skipped, %d record(s) clamped, %d sudden event(s)",
		result.FramesProcessed, result.SkippedFrames, result.ClampedRecords, result.SuddenTotal)

	conv := export.SpeedConversion{
		MetresPerPixel: cfg.GetMetresPerPixel(),
		Units:          speedUnits,
	}
	if err := writeExports(outDir, result, conv); err != nil {
		log.Fatalf("export: %v", err)
	}

	if dbPath != "" {
		store, err := sqlite.Open(dbPath)
		if err != nil {
			log.Fatalf("open run db: %v", err)
		}
		defer store.Close()
		runID, err := store.SaveRun(recordsPath, result.Series, result.Grid, result.SkippedFrames, result.SuddenTotal)
		if err != nil {
			log.Fatalf("save run: %v", err)
		}
		log.Printf("saved run %s to %s", runID, dbPath)
	}

	fmt.Printf("outputs written to %s\n", outDir)
}

func writeExports(outDir string, result *pipeline.Result, conv export.SpeedConversion) error {
	if err := writeFile(filepath.Join(outDir, "series.csv"), func(w io.Writer) error {
		return export.WriteSeriesCSV(w, result.Series, conv)
	}); err != nil {
		return err
	}
	if err := export.WriteSeriesParquet(filepath.Join(outDir, "series.parquet"), result.Series, conv); err != nil {
		return err
	}
	if err := writeFile(filepath.Join(outDir, "density.csv"), func(w io.Writer) error {
		return export.WriteGridCSV(w, result.Grid)
	}); err != nil {
		return err
	}
	if err := writeFile(filepath.Join(outDir, "density.png"), func(w io.Writer) error {
		return export.WriteGridPNG(w, result.Grid)
	}); err != nil {
		return err
	}
	return writeFile(filepath.Join(outDir, "report.html"), func(w io.Writer) error {
		return report.Write(w, "Behavioural Statistics", result.Series)
	})
}

func writeFile(path string, fn func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := fn(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
