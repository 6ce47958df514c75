package series

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/swarm.report/internal/kinematics"
)

func TestObserveMeanSpeedExcludesUndefined(t *testing.T) {
	t.Parallel()
	a := NewAggregator()

	p := a.Observe(0, []kinematics.Sample{
		{ID: "a", Speed: 10, SpeedValid: true},
		{ID: "b", Speed: 20, SpeedValid: true},
		{ID: "c", SpeedValid: false}, // first observation, no speed yet
	})

	require.True(t, p.MeanSpeedValid)
	assert.InDelta(t, 15.0, p.MeanSpeed, 1e-12)
	assert.Equal(t, 3, p.IndividualCount, "count includes individuals without a defined speed")
}

func TestObserveMeanSpeedUndefinedWhenNoSpeeds(t *testing.T) {
	t.Parallel()
	a := NewAggregator()

	t.Run("all speeds undefined", func(t *testing.T) {
		p := a.Observe(0, []kinematics.Sample{{ID: "a"}, {ID: "b"}})
		assert.False(t, p.MeanSpeedValid)
		assert.Equal(t, 2, p.IndividualCount)
	})

	t.Run("empty frame", func(t *testing.T) {
		p := a.Observe(1, nil)
		assert.False(t, p.MeanSpeedValid)
		assert.Equal(t, 0, p.IndividualCount)
	})
}

func TestCumulativeSuddenCountMonotone(t *testing.T) {
	t.Parallel()
	a := NewAggregator()

	suddenPerFrame := []int{0, 0, 2, 0, 1, 0, 0}
	prev := 0
	for frame, n := range suddenPerFrame {
		samples := make([]kinematics.Sample, n)
		for i := range samples {
			samples[i] = kinematics.Sample{ID: "x", Sudden: true}
		}
		p := a.Observe(frame, samples)
		assert.GreaterOrEqual(t, p.CumulativeSuddenCount, prev)
		prev = p.CumulativeSuddenCount
	}
	assert.Equal(t, 3, a.SuddenTotal())
	assert.Equal(t, 3, a.Points()[len(a.Points())-1].CumulativeSuddenCount)
}

func TestSingleSpikeIncrementsOnce(t *testing.T) {
	t.Parallel()
	a := NewAggregator()

	a.Observe(0, []kinematics.Sample{{ID: "a"}})
	spike := a.Observe(1, []kinematics.Sample{{ID: "a", Sudden: true}})
	after := a.Observe(2, []kinematics.Sample{{ID: "a"}})

	assert.Equal(t, 1, spike.CumulativeSuddenCount)
	assert.Equal(t, 1, after.CumulativeSuddenCount, "count stays flat after the spike")
}

func TestPointsAppendOnly(t *testing.T) {
	t.Parallel()
	a := NewAggregator()
	for frame := 0; frame < 5; frame++ {
		a.Observe(frame, nil)
	}
	pts := a.Points()
	require.Len(t, pts, 5)
	for i, p := range pts {
		assert.Equal(t, i, p.FrameIndex)
	}
}
