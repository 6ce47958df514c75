// Package series folds per-frame kinematic and population results into the
// run's ordered time series.
package series

import (
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/swarm.report/internal/kinematics"
)

// Point is the aggregate statistics for one frame. Points are appended once
// and never mutated retroactively.
type Point struct {
	FrameIndex            int
	MeanSpeed             float64 // px/s; meaningful only when MeanSpeedValid
	MeanSpeedValid        bool
	IndividualCount       int
	CumulativeSuddenCount int
}

// Aggregator builds the series one frame at a time. The cumulative sudden
// count is monotonically non-decreasing by construction.
type Aggregator struct {
	points    []Point
	cumSudden int
}

// NewAggregator creates an empty aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{}
}

// Observe appends and returns the Point for one processed frame. Mean speed
// averages only individuals with a defined speed; when none has one the mean
// is undefined rather than zero.
func (a *Aggregator) Observe(frameIndex int, samples []kinematics.Sample) Point {
	speeds := make([]float64, 0, len(samples))
	newSudden := 0
	for _, s := range samples {
		if s.SpeedValid {
			speeds = append(speeds, s.Speed)
		}
		if s.Sudden {
			newSudden++
		}
	}
	a.cumSudden += newSudden

	p := Point{
		FrameIndex:            frameIndex,
		IndividualCount:       len(samples),
		CumulativeSuddenCount: a.cumSudden,
	}
	if len(speeds) > 0 {
		p.MeanSpeed = stat.Mean(speeds, nil)
		p.MeanSpeedValid = true
	}

	a.points = append(a.points, p)
	return p
}

// Points returns the series to date. The returned slice is shared for
// efficiency; points already appended are immutable by contract.
func (a *Aggregator) Points() []Point {
	return a.points
}

// Len returns the number of frames aggregated so far.
func (a *Aggregator) Len() int { return len(a.points) }

// SuddenTotal returns the cumulative sudden-acceleration event count.
func (a *Aggregator) SuddenTotal() int { return a.cumSudden }
