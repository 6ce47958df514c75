package kinematics

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/swarm.report/internal/ingest"
)

func batch(frame int, recs ...ingest.PositionRecord) ingest.FrameBatch {
	return ingest.FrameBatch{FrameIndex: frame, Records: recs}
}

func rec(frame int, id string, x, y float64) ingest.PositionRecord {
	return ingest.PositionRecord{FrameIndex: frame, ID: id, X: x, Y: y}
}

// Constant velocity of (1, 0) px/frame at 1 fps: speed 1.0 from frame 1,
// acceleration 0.0 from frame 2, no sudden events.
func TestConstantVelocityScenario(t *testing.T) {
	t.Parallel()
	e := NewEngine(Config{
		WindowFrames:       10,
		GapToleranceFrames: 2,
		SuddenThreshold:    5.0,
		FramesPerSecond:    1.0,
	})

	for frame := 0; frame < 5; frame++ {
		samples := e.Step(batch(frame, rec(frame, "A", float64(frame), 0)))
		require.Len(t, samples, 1)
		s := samples[0]

		assert.Equal(t, frame, s.FrameIndex)
		assert.Equal(t, "A", s.ID)

		if frame == 0 {
			assert.False(t, s.SpeedValid, "first sample yields no speed")
		} else {
			require.True(t, s.SpeedValid)
			assert.InDelta(t, 1.0, s.Speed, 1e-12)
		}

		if frame < 2 {
			assert.False(t, s.AccelValid, "acceleration needs three contiguous samples")
		} else {
			require.True(t, s.AccelValid)
			assert.InDelta(t, 0.0, s.Accel, 1e-12)
		}

		assert.False(t, s.Sudden)
	}
}

func TestSpeedUsesFrameRate(t *testing.T) {
	t.Parallel()
	e := NewEngine(Config{WindowFrames: 5, FramesPerSecond: 30, SuddenThreshold: 1e9})

	e.Step(batch(0, rec(0, "a", 0, 0)))
	samples := e.Step(batch(1, rec(1, "a", 3, 4)))

	require.True(t, samples[0].SpeedValid)
	// 5px displacement in 1/30s
	assert.InDelta(t, 150.0, samples[0].Speed, 1e-9)
}

// A single spike above threshold yields exactly one sudden event even when
// the exceedance lasts several frames.
func TestSuddenDebounce(t *testing.T) {
	t.Parallel()
	e := NewEngine(Config{
		WindowFrames:       10,
		GapToleranceFrames: 2,
		SuddenThreshold:    5.0,
		FramesPerSecond:    1.0,
	})

	// Per-frame x positions: steady, then a hard sustained acceleration.
	xs := []float64{0, 1, 2, 3, 13, 43, 93, 103, 113, 123}
	events := 0
	for frame, x := range xs {
		samples := e.Step(batch(frame, rec(frame, "A", x, 0)))
		if samples[0].Sudden {
			events++
		}
	}
	assert.Equal(t, 1, events, "sustained exceedance run counts once")
}

func TestSuddenNewRunAfterQuietPeriod(t *testing.T) {
	t.Parallel()
	e := NewEngine(Config{
		WindowFrames:       16,
		GapToleranceFrames: 2,
		SuddenThreshold:    5.0,
		FramesPerSecond:    1.0,
	})

	// Spike, settle into constant velocity, spike again.
	xs := []float64{0, 1, 2, 12, 22, 32, 42, 52, 62, 82, 112}
	var eventFrames []int
	for frame, x := range xs {
		samples := e.Step(batch(frame, rec(frame, "A", x, 0)))
		if samples[0].Sudden {
			eventFrames = append(eventFrames, frame)
		}
	}
	assert.Equal(t, []int{3, 9}, eventFrames)
}

// Identity "B" present frames 0-2, absent 3-5, reappears frame 6: the gap
// exceeds tolerance, the trajectory resets, and no speed is derived from the
// frame 2 to frame 6 displacement.
func TestGapBeyondToleranceResetsTrajectory(t *testing.T) {
	t.Parallel()
	e := NewEngine(Config{
		WindowFrames:       10,
		GapToleranceFrames: 2,
		SuddenThreshold:    1e9,
		FramesPerSecond:    1.0,
	})

	for frame := 0; frame < 3; frame++ {
		e.Step(batch(frame, rec(frame, "B", float64(frame), 0)))
	}
	// Frames 3-5: B absent.
	for frame := 3; frame < 6; frame++ {
		e.Step(batch(frame))
	}
	assert.Equal(t, 0, e.TrackedCount(), "stale trajectory pruned")

	samples := e.Step(batch(6, rec(6, "B", 100, 0)))
	require.Len(t, samples, 1)
	assert.False(t, samples[0].SpeedValid, "no speed across the gap")
	assert.False(t, samples[0].AccelValid)

	samples = e.Step(batch(7, rec(7, "B", 101, 0)))
	require.True(t, samples[0].SpeedValid)
	assert.InDelta(t, 1.0, samples[0].Speed, 1e-12)
}

// A gap within tolerance keeps history but leaves derivatives undefined
// until contiguous samples accumulate again.
func TestGapWithinToleranceDisqualifiesDerivatives(t *testing.T) {
	t.Parallel()
	e := NewEngine(Config{
		WindowFrames:       10,
		GapToleranceFrames: 5,
		SuddenThreshold:    1e9,
		FramesPerSecond:    1.0,
	})

	e.Step(batch(0, rec(0, "A", 0, 0)))
	e.Step(batch(1, rec(1, "A", 1, 0)))
	e.Step(batch(2)) // A missing one frame
	samples := e.Step(batch(3, rec(3, "A", 3, 0)))
	assert.False(t, samples[0].SpeedValid, "samples around a gap are not contiguous")
	assert.Equal(t, 1, e.TrackedCount(), "trajectory survives a tolerated gap")

	samples = e.Step(batch(4, rec(4, "A", 4, 0)))
	require.True(t, samples[0].SpeedValid)
	assert.False(t, samples[0].AccelValid, "acceleration needs three contiguous samples")

	samples = e.Step(batch(5, rec(5, "A", 5, 0)))
	assert.True(t, samples[0].AccelValid)
}

func TestRingBufferEviction(t *testing.T) {
	t.Parallel()
	tr := newTrajectory(3)
	for i := 0; i < 5; i++ {
		tr.push(trajEntry{frameIndex: i, x: float64(i)})
	}
	assert.Equal(t, 3, tr.Len())
	assert.Equal(t, 4, tr.LastFrame())
	assert.Equal(t, 2, tr.last(2).frameIndex, "oldest retained entry")
}

func TestMultipleIndividualsIndependentState(t *testing.T) {
	t.Parallel()
	e := NewEngine(Config{
		WindowFrames:       10,
		GapToleranceFrames: 2,
		SuddenThreshold:    5.0,
		FramesPerSecond:    1.0,
	})

	// "fast" accelerates hard at frame 3; "slow" never does.
	for frame := 0; frame < 6; frame++ {
		fastX := float64(frame)
		if frame >= 3 {
			fastX = float64(frame) + math.Pow(float64(frame-2), 3)
		}
		samples := e.Step(batch(frame,
			rec(frame, "fast", fastX, 0),
			rec(frame, "slow", float64(frame), 10),
		))
		for _, s := range samples {
			if s.ID == "slow" {
				assert.False(t, s.Sudden, "slow individual never flagged (frame %d)", frame)
			}
		}
	}
	assert.Equal(t, 2, e.TrackedCount())
}
