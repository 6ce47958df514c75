package overlay

import (
	"bytes"
	"fmt"
	"image"
	"image/png"

	xdraw "golang.org/x/image/draw"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/vgimg"

	"github.com/banshee-data/swarm.report/internal/density"
	"github.com/banshee-data/swarm.report/internal/series"
)

const chartMarginPx = 8

// drawCharts renders the enabled inset charts and composites them down the
// right-hand edge of the frame.
func (r *Renderer) drawCharts(dst *image.RGBA, dens *density.Snapshot, history []series.Point) error {
	type chartFn struct {
		name string
		fn   func() (*plot.Plot, bool, error)
	}

	charts := []chartFn{}
	if r.opts.ShowSpeedSeries {
		charts = append(charts, chartFn{"speed", func() (*plot.Plot, bool, error) { return speedSeriesPlot(history) }})
	}
	if r.opts.ShowSuddenCount {
		charts = append(charts, chartFn{"sudden", func() (*plot.Plot, bool, error) { return suddenCountPlot(history) }})
	}
	if r.opts.ShowHistogram {
		charts = append(charts,
			chartFn{"x histogram", func() (*plot.Plot, bool, error) { return positionHistogramPlot(dens, axisX) }},
			chartFn{"y histogram", func() (*plot.Plot, bool, error) { return positionHistogramPlot(dens, axisY) }})
	}

	slot := 0
	for _, c := range charts {
		p, ok, err := c.fn()
		if err != nil {
			return fmt.Errorf("%s chart: %w", c.name, err)
		}
		if !ok {
			continue
		}
		if err := r.compositeChart(dst, p, slot); err != nil {
			return fmt.Errorf("%s chart: %w", c.name, err)
		}
		slot++
	}
	return nil
}

// pxLength converts a pixel dimension to canvas length at the PNG raster DPI
// so the chart rasterises at exactly the requested pixel size.
func pxLength(px int) vg.Length {
	return vg.Length(px) / vgimg.DefaultDPI * vg.Inch
}

// compositeChart rasterises the plot and draws it into the given inset slot,
// counted from the top-right corner downwards.
func (r *Renderer) compositeChart(dst *image.RGBA, p *plot.Plot, slot int) error {
	wt, err := p.WriterTo(pxLength(r.opts.ChartWidthPx), pxLength(r.opts.ChartHeightPx), "png")
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if _, err := wt.WriteTo(&buf); err != nil {
		return err
	}
	img, err := png.Decode(&buf)
	if err != nil {
		return fmt.Errorf("decode rendered chart: %w", err)
	}

	bounds := dst.Bounds()
	x1 := bounds.Max.X - chartMarginPx
	x0 := x1 - r.opts.ChartWidthPx
	y0 := bounds.Min.Y + chartMarginPx + slot*(r.opts.ChartHeightPx+chartMarginPx)
	y1 := y0 + r.opts.ChartHeightPx
	target := image.Rect(x0, y0, x1, y1).Intersect(bounds)
	if target.Empty() {
		return nil
	}

	xdraw.ApproxBiLinear.Scale(dst, target, img, img.Bounds(), xdraw.Over, nil)
	return nil
}

// speedSeriesPlot draws the mean-speed line over every frame with a defined
// mean to date. Returns ok=false when nothing is plottable yet.
func speedSeriesPlot(history []series.Point) (*plot.Plot, bool, error) {
	pts := make(plotter.XYs, 0, len(history))
	for _, h := range history {
		if !h.MeanSpeedValid {
			continue
		}
		pts = append(pts, plotter.XY{X: float64(h.FrameIndex), Y: h.MeanSpeed})
	}
	if len(pts) == 0 {
		return nil, false, nil
	}

	p := plot.New()
	p.Title.Text = "Mean speed"
	p.X.Label.Text = "Frame"
	p.Y.Label.Text = "px/s"

	line, err := plotter.NewLine(pts)
	if err != nil {
		return nil, false, err
	}
	line.Width = vg.Points(1)
	p.Add(line)
	return p, true, nil
}

// suddenCountPlot draws the cumulative sudden-acceleration count to date.
func suddenCountPlot(history []series.Point) (*plot.Plot, bool, error) {
	if len(history) == 0 {
		return nil, false, nil
	}
	pts := make(plotter.XYs, 0, len(history))
	for _, h := range history {
		pts = append(pts, plotter.XY{X: float64(h.FrameIndex), Y: float64(h.CumulativeSuddenCount)})
	}

	p := plot.New()
	p.Title.Text = "Sudden accelerations"
	p.X.Label.Text = "Frame"
	p.Y.Label.Text = "Count"

	line, err := plotter.NewLine(pts)
	if err != nil {
		return nil, false, err
	}
	line.Width = vg.Points(1)
	p.Add(line)
	return p, true, nil
}

type histogramAxis int

const (
	axisX histogramAxis = iota
	axisY
)

// positionHistogramPlot draws the distribution of accumulated positions along
// one axis, taken as the column or row marginal of the density snapshot.
func positionHistogramPlot(dens *density.Snapshot, axis histogramAxis) (*plot.Plot, bool, error) {
	if dens == nil {
		return nil, false, nil
	}
	marginal := dens.ColumnMarginal()
	title, label := "X position", "Column"
	if axis == axisY {
		marginal = dens.RowMarginal()
		title, label = "Y position", "Row"
	}
	total := 0.0
	for _, v := range marginal {
		total += v
	}
	if total <= 0 {
		return nil, false, nil
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = label
	p.Y.Label.Text = "Share"

	bars, err := plotter.NewBarChart(plotter.Values(marginal), vg.Points(2))
	if err != nil {
		return nil, false, err
	}
	bars.LineStyle.Width = 0
	p.Add(bars)
	return p, true, nil
}
