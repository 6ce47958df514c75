// Package pipeline wires the ingest, kinematics, density, and aggregation
// stages into a strictly frame-ordered run, and fans finalized frames out to
// a render worker pool whose output is reassembled in frame order.
package pipeline

import (
	"errors"
	"fmt"
	"image"
	"io"
	"log"

	"github.com/banshee-data/swarm.report/internal/density"
	"github.com/banshee-data/swarm.report/internal/ingest"
	"github.com/banshee-data/swarm.report/internal/kinematics"
	"github.com/banshee-data/swarm.report/internal/overlay"
	"github.com/banshee-data/swarm.report/internal/series"
)

// VideoSource supplies the decoded frame sequence. FrameCount returns the
// total frame count, or a negative value when it is not known up front.
type VideoSource interface {
	FrameCount() int
	Next() (image.Image, error) // io.EOF after the final frame
}

// OutputWriter receives composited frames strictly in frame order. It is the
// external persistence boundary; implementations own encoding.
type OutputWriter interface {
	WriteFrame(frameIndex int, frame image.Image) error
}

// FrameVideoMismatchError reports that the position-record frame domain does
// not align with the video frame count.
type FrameVideoMismatchError struct {
	RecordFrames int
	VideoFrames  int
}

func (e *FrameVideoMismatchError) Error() string {
	return fmt.Sprintf("record stream covers %d frame(s) but video has %d frame(s)", e.RecordFrames, e.VideoFrames)
}

// Config holds the pipeline's stage dependencies and tuning.
type Config struct {
	Source ingest.Source // required
	Bounds ingest.Bounds // frame extent in pixels

	// Video and Output enable frame compositing. Leave both nil for a
	// stats-only run that just produces the series and density grid.
	Video  VideoSource
	Output OutputWriter

	Kinematics kinematics.Config
	Density    density.Config
	Overlay    overlay.Options

	// RenderWorkers bounds concurrent frame rendering. Results are always
	// handed to Output in frame order regardless of pool size.
	RenderWorkers int
}

// Result carries the run's retained outputs.
type Result struct {
	Series          []series.Point
	Grid            *density.Snapshot
	FramesProcessed int
	SkippedFrames   int
	ClampedRecords  int
	SuddenTotal     int
}

// Pipeline executes one run over one record stream. It is single-use: the
// record stream is consumed forward-only, exactly once.
type Pipeline struct {
	cfg      Config
	ingestor *ingest.Ingestor
	engine   *kinematics.Engine
	grid     *density.Grid
	agg      *series.Aggregator
	renderer *overlay.Renderer
}

// New validates the configuration and builds the pipeline stages.
func New(cfg Config) (*Pipeline, error) {
	if cfg.Source == nil {
		return nil, errors.New("pipeline: record source is required")
	}
	if (cfg.Video == nil) != (cfg.Output == nil) {
		return nil, errors.New("pipeline: video source and output writer must be configured together")
	}
	if cfg.Bounds.Width <= 0 || cfg.Bounds.Height <= 0 {
		return nil, fmt.Errorf("pipeline: invalid frame bounds %gx%g", cfg.Bounds.Width, cfg.Bounds.Height)
	}
	if cfg.RenderWorkers < 1 {
		cfg.RenderWorkers = 1
	}

	if cfg.Density.Width == 0 {
		cfg.Density.Width = cfg.Bounds.Width
	}
	if cfg.Density.Height == 0 {
		cfg.Density.Height = cfg.Bounds.Height
	}
	grid, err := density.NewGrid(cfg.Density)
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}

	return &Pipeline{
		cfg:      cfg,
		ingestor: ingest.NewIngestor(cfg.Bounds),
		engine:   kinematics.NewEngine(cfg.Kinematics),
		grid:     grid,
		agg:      series.NewAggregator(),
		renderer: overlay.NewRenderer(cfg.Overlay),
	}, nil
}

// Run consumes the record stream to completion. On a fatal error the run
// aborts: frames finalized before the failure may already be flushed, but
// nothing past it is.
func (p *Pipeline) Run() (*Result, error) {
	if err := p.checkAlignment(); err != nil {
		return nil, err
	}

	sink := newOrderedRenderSink(p.cfg.Output, p.cfg.RenderWorkers)

	runErr := p.processStream(sink)

	// Let already-finalized frames drain even on failure; they precede the
	// failure point and may be flushed.
	if err := sink.close(); err != nil && runErr == nil {
		runErr = err
	}
	if runErr != nil {
		return nil, runErr
	}

	return &Result{
		Series:          p.agg.Points(),
		Grid:            p.grid.Snapshot(),
		FramesProcessed: p.agg.Len(),
		SkippedFrames:   p.ingestor.SkippedFrames(),
		ClampedRecords:  p.ingestor.ClampedRecords(),
		SuddenTotal:     p.agg.SuddenTotal(),
	}, nil
}

// checkAlignment surfaces a frame/video mismatch before processing begins
// when the record source knows its frame domain up front.
func (p *Pipeline) checkAlignment() error {
	if p.cfg.Video == nil {
		return nil
	}
	counted, ok := p.cfg.Source.(ingest.Counted)
	if !ok {
		return nil // verified incrementally and at end of stream instead
	}
	videoFrames := p.cfg.Video.FrameCount()
	if videoFrames < 0 {
		return nil
	}
	if recordFrames := counted.FrameCount(); recordFrames != videoFrames {
		return &FrameVideoMismatchError{RecordFrames: recordFrames, VideoFrames: videoFrames}
	}
	return nil
}

func (p *Pipeline) processStream(sink *orderedRenderSink) error {
	nextFrame := 0
	for {
		rawBatch, err := p.cfg.Source.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("read record stream: %w", err)
		}

		batch, err := p.ingestor.Ingest(rawBatch.FrameIndex, rawBatch.Records)
		if err != nil {
			return err
		}

		// Skipped record frames still exist in the video; process them as
		// empty batches so every statistic and overlay stays frame-aligned.
		for idx := nextFrame; idx < batch.FrameIndex; idx++ {
			if err := p.processFrame(ingest.FrameBatch{FrameIndex: idx}, sink); err != nil {
				return err
			}
		}
		if err := p.processFrame(batch, sink); err != nil {
			return err
		}
		nextFrame = batch.FrameIndex + 1
	}

	return p.checkTrailingVideo()
}

// processFrame finalizes one frame's statistics, then hands the frame to the
// render pool with immutable inputs.
func (p *Pipeline) processFrame(batch ingest.FrameBatch, sink *orderedRenderSink) error {
	samples := p.engine.Step(batch)
	p.grid.AddFrame(batch.Records)
	p.agg.Observe(batch.FrameIndex, samples)

	if p.cfg.Video == nil {
		return nil
	}

	frame, err := p.cfg.Video.Next()
	if err == io.EOF {
		return &FrameVideoMismatchError{
			RecordFrames: batch.FrameIndex + 1,
			VideoFrames:  batch.FrameIndex,
		}
	}
	if err != nil {
		return fmt.Errorf("read video frame %d: %w", batch.FrameIndex, err)
	}

	snap := p.grid.Snapshot()
	history := p.agg.Points()
	renderer := p.renderer
	sink.submit(batch.FrameIndex, func() (image.Image, error) {
		return renderer.Render(frame, batch, samples, snap, history)
	})
	return nil
}

// checkTrailingVideo flags video frames left over after the record stream
// ended. Frame counts must match exactly.
func (p *Pipeline) checkTrailingVideo() error {
	if p.cfg.Video == nil {
		return nil
	}
	if _, err := p.cfg.Video.Next(); err != io.EOF {
		if err != nil {
			return fmt.Errorf("read video frame %d: %w", p.agg.Len(), err)
		}
		videoFrames := p.cfg.Video.FrameCount()
		if videoFrames < 0 {
			videoFrames = p.agg.Len() + 1 // at least one extra
		}
		log.Printf("pipeline: video continues past final record frame %d", p.agg.Len()-1)
		return &FrameVideoMismatchError{RecordFrames: p.agg.Len(), VideoFrames: videoFrames}
	}
	return nil
}
