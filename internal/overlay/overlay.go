// Package overlay composites position markers, a density heatmap, and inset
// statistic charts onto video frames. Rendering is a pure function of its
// inputs: it never mutates the source frame or any shared pipeline state, so
// distinct finalized frames can be rendered concurrently.
package overlay

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"

	xdraw "golang.org/x/image/draw"

	"github.com/banshee-data/swarm.report/internal/density"
	"github.com/banshee-data/swarm.report/internal/ingest"
	"github.com/banshee-data/swarm.report/internal/kinematics"
	"github.com/banshee-data/swarm.report/internal/series"
)

// Options selects which layers the renderer composites.
type Options struct {
	ShowMarkers    bool
	ShowDensity    bool
	DensityOpacity float64 // heatmap blend opacity in [0, 1]
	MarkerRadiusPx int

	ShowHistogram   bool // inset: distribution of accumulated x positions
	ShowSpeedSeries bool // inset: mean speed to date
	ShowSuddenCount bool // inset: cumulative sudden-acceleration count to date

	ChartWidthPx  int
	ChartHeightPx int
}

// DefaultOptions enables every layer at moderate settings.
func DefaultOptions() Options {
	return Options{
		ShowMarkers:     true,
		ShowDensity:     true,
		DensityOpacity:  0.45,
		MarkerRadiusPx:  4,
		ShowHistogram:   true,
		ShowSpeedSeries: true,
		ShowSuddenCount: true,
		ChartWidthPx:    240,
		ChartHeightPx:   150,
	}
}

// Renderer composites overlays onto frames. It carries only immutable
// options and is safe for concurrent use.
type Renderer struct {
	opts Options
}

// NewRenderer creates a renderer. Chart dimensions fall back to defaults
// when unset.
func NewRenderer(opts Options) *Renderer {
	def := DefaultOptions()
	if opts.ChartWidthPx <= 0 {
		opts.ChartWidthPx = def.ChartWidthPx
	}
	if opts.ChartHeightPx <= 0 {
		opts.ChartHeightPx = def.ChartHeightPx
	}
	if opts.MarkerRadiusPx <= 0 {
		opts.MarkerRadiusPx = def.MarkerRadiusPx
	}
	return &Renderer{opts: opts}
}

// Render composites the enabled layers for one finalized frame. The source
// frame is copied, never written to. history is the immutable series up to
// and including this frame.
func (r *Renderer) Render(
	frame image.Image,
	batch ingest.FrameBatch,
	samples []kinematics.Sample,
	dens *density.Snapshot,
	history []series.Point,
) (*image.RGBA, error) {
	bounds := frame.Bounds()
	out := image.NewRGBA(bounds)
	draw.Draw(out, bounds, frame, bounds.Min, draw.Src)

	if r.opts.ShowDensity && dens != nil {
		r.blendHeatmap(out, dens)
	}

	if r.opts.ShowMarkers {
		r.drawMarkers(out, batch, samples)
	}

	if err := r.drawCharts(out, dens, history); err != nil {
		return nil, fmt.Errorf("render charts for frame %d: %w", batch.FrameIndex, err)
	}

	return out, nil
}

// blendHeatmap colour-maps the normalized grid, upscales it to the frame
// extent, and alpha-blends it over the frame.
func (r *Renderer) blendHeatmap(dst *image.RGBA, dens *density.Snapshot) {
	max := dens.Max()
	if max <= 0 {
		return
	}

	heat := image.NewRGBA(image.Rect(0, 0, dens.Cols, dens.Rows))
	for cy := 0; cy < dens.Rows; cy++ {
		for cx := 0; cx < dens.Cols; cx++ {
			v := dens.At(cx, cy)
			if v <= 0 {
				continue
			}
			heat.SetRGBA(cx, cy, heatColor(v/max, r.opts.DensityOpacity))
		}
	}

	xdraw.BiLinear.Scale(dst, dst.Bounds(), heat, heat.Bounds(), xdraw.Over, nil)
}

// drawMarkers draws one filled circle per individual, ringed in white while
// the individual is inside a sudden-acceleration run.
func (r *Renderer) drawMarkers(dst *image.RGBA, batch ingest.FrameBatch, samples []kinematics.Sample) {
	sudden := make(map[string]bool, len(samples))
	for _, s := range samples {
		if s.Sudden {
			sudden[s.ID] = true
		}
	}

	for _, rec := range batch.Records {
		cx := int(rec.X + 0.5)
		cy := int(rec.Y + 0.5)
		fillCircle(dst, cx, cy, r.opts.MarkerRadiusPx, markerColor(rec.ID))
		if sudden[rec.ID] {
			strokeCircle(dst, cx, cy, r.opts.MarkerRadiusPx+2, color.RGBA{255, 255, 255, 255})
		}
	}
}

func fillCircle(dst *image.RGBA, cx, cy, radius int, c color.RGBA) {
	rr := radius * radius
	for dy := -radius; dy <= radius; dy++ {
		for dx := -radius; dx <= radius; dx++ {
			if dx*dx+dy*dy > rr {
				continue
			}
			setIfInside(dst, cx+dx, cy+dy, c)
		}
	}
}

func strokeCircle(dst *image.RGBA, cx, cy, radius int, c color.RGBA) {
	outer := radius * radius
	inner := (radius - 1) * (radius - 1)
	for dy := -radius; dy <= radius; dy++ {
		for dx := -radius; dx <= radius; dx++ {
			d := dx*dx + dy*dy
			if d > outer || d < inner {
				continue
			}
			setIfInside(dst, cx+dx, cy+dy, c)
		}
	}
}

func setIfInside(dst *image.RGBA, x, y int, c color.RGBA) {
	if (image.Point{X: x, Y: y}).In(dst.Bounds()) {
		dst.SetRGBA(x, y, c)
	}
}
