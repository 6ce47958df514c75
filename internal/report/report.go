// Package report renders a standalone HTML summary of a finished run using
// go-echarts: mean speed, individual count, and cumulative sudden events
// over the frame axis.
package report

import (
	"fmt"
	"io"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/swarm.report/internal/series"
)

// Write renders the run report for the given series to w.
func Write(w io.Writer, title string, points []series.Point) error {
	page := components.NewPage()
	page.SetLayout(components.PageFlexLayout)
	page.AddCharts(
		speedChart(title, points),
		countChart(points),
		suddenChart(points),
	)

	if err := page.Render(w); err != nil {
		return fmt.Errorf("render run report: %w", err)
	}
	return nil
}

func frameAxis(points []series.Point) []string {
	x := make([]string, len(points))
	for i, p := range points {
		x[i] = strconv.Itoa(p.FrameIndex)
	}
	return x
}

func speedChart(title string, points []series.Point) *charts.Line {
	data := make([]opts.LineData, len(points))
	for i, p := range points {
		if p.MeanSpeedValid {
			data[i] = opts.LineData{Value: p.MeanSpeed}
		} else {
			// Gaps where no individual had a defined speed.
			data[i] = opts.LineData{Value: "-"}
		}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: fmt.Sprintf("%d frames", len(points))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Frame"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Mean speed (px/s)"}),
	)
	line.SetXAxis(frameAxis(points)).AddSeries("mean speed", data)
	return line
}

func countChart(points []series.Point) *charts.Line {
	data := make([]opts.LineData, len(points))
	for i, p := range points {
		data[i] = opts.LineData{Value: p.IndividualCount}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "Individuals per frame"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Frame"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Count"}),
	)
	line.SetXAxis(frameAxis(points)).AddSeries("individuals", data)
	return line
}

func suddenChart(points []series.Point) *charts.Line {
	data := make([]opts.LineData, len(points))
	for i, p := range points {
		data[i] = opts.LineData{Value: p.CumulativeSuddenCount}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "Cumulative sudden accelerations"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Frame"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Events"}),
	)
	line.SetXAxis(frameAxis(points)).AddSeries("sudden events", data)
	return line
}
