// Package kinematics maintains bounded per-individual trajectory history and
// derives speed, acceleration, and debounced sudden-acceleration events from
// the validated frame stream.
package kinematics

import (
	"math"

	"github.com/banshee-data/swarm.report/internal/ingest"
)

// Config holds the tunable parameters of the engine.
type Config struct {
	WindowFrames       int     // Trajectory retention per individual (ring buffer capacity)
	GapToleranceFrames int     // Missed frames before a trajectory resets
	SuddenThreshold    float64 // |acceleration| (px/s²) above which a sudden run starts
	FramesPerSecond    float64 // Video frame rate for finite differencing
}

// DefaultConfig returns engine parameters suitable for 30fps footage.
func DefaultConfig() Config {
	return Config{
		WindowFrames:       30,
		GapToleranceFrames: 5,
		SuddenThreshold:    400.0,
		FramesPerSecond:    30.0,
	}
}

// Sample is the kinematic result for one individual in one frame. Speed and
// Accel are undefined (Valid=false) until enough contiguous observations
// exist; Sudden marks a newly opened exceedance run, at most once per run.
type Sample struct {
	FrameIndex int
	ID         string
	Speed      float64 // px/s
	SpeedValid bool
	Accel      float64 // px/s²
	AccelValid bool
	Sudden     bool
}

type trajEntry struct {
	frameIndex int
	x, y       float64
}

// Trajectory is a fixed-capacity ring buffer of an individual's most recent
// observations. Eviction is implicit: writing past capacity overwrites the
// oldest entry.
type Trajectory struct {
	buf   []trajEntry
	head  int // next write slot
	count int
	inRun bool // inside a sudden-acceleration exceedance run
}

func newTrajectory(capacity int) *Trajectory {
	return &Trajectory{buf: make([]trajEntry, capacity)}
}

func (tr *Trajectory) push(e trajEntry) {
	tr.buf[tr.head] = e
	tr.head = (tr.head + 1) % len(tr.buf)
	if tr.count < len(tr.buf) {
		tr.count++
	}
}

// last returns the entry i steps back from the newest (last(0) is newest).
// Callers must keep i < Len().
func (tr *Trajectory) last(i int) trajEntry {
	idx := (tr.head - 1 - i + 2*len(tr.buf)) % len(tr.buf)
	return tr.buf[idx]
}

// Len returns the number of retained observations.
func (tr *Trajectory) Len() int { return tr.count }

// LastFrame returns the frame index of the newest observation, or -1 when empty.
func (tr *Trajectory) LastFrame() int {
	if tr.count == 0 {
		return -1
	}
	return tr.last(0).frameIndex
}

func (tr *Trajectory) reset() {
	tr.head = 0
	tr.count = 0
	tr.inRun = false
}

// Engine owns every individual's Trajectory and the per-individual
// exceedance-run state used for event debouncing.
type Engine struct {
	cfg          Config
	trajectories map[string]*Trajectory
}

// NewEngine creates an engine. Window and fps fall back to defaults when
// unset so zero-value configs stay usable in tests.
func NewEngine(cfg Config) *Engine {
	def := DefaultConfig()
	if cfg.WindowFrames < 3 {
		cfg.WindowFrames = def.WindowFrames
	}
	if cfg.FramesPerSecond <= 0 {
		cfg.FramesPerSecond = def.FramesPerSecond
	}
	if cfg.SuddenThreshold <= 0 {
		cfg.SuddenThreshold = def.SuddenThreshold
	}
	return &Engine{
		cfg:          cfg,
		trajectories: make(map[string]*Trajectory),
	}
}

// TrackedCount returns the number of individuals with live trajectories.
func (e *Engine) TrackedCount() int { return len(e.trajectories) }

// Step consumes one validated frame batch and returns a Sample per record,
// in batch order. Trajectories of individuals absent longer than the gap
// tolerance are pruned to bound memory.
func (e *Engine) Step(batch ingest.FrameBatch) []Sample {
	samples := make([]Sample, 0, len(batch.Records))
	for _, rec := range batch.Records {
		samples = append(samples, e.observe(batch.FrameIndex, rec))
	}
	e.prune(batch.FrameIndex)
	return samples
}

func (e *Engine) observe(frameIndex int, rec ingest.PositionRecord) Sample {
	tr, ok := e.trajectories[rec.ID]
	if !ok {
		tr = newTrajectory(e.cfg.WindowFrames)
		e.trajectories[rec.ID] = tr
	}

	// A gap beyond tolerance drops history instead of bridging it; shorter
	// gaps keep history but the contiguity checks below leave speed and
	// acceleration undefined across the discontinuity.
	if tr.Len() > 0 {
		missed := frameIndex - tr.LastFrame() - 1
		if missed > e.cfg.GapToleranceFrames {
			tr.reset()
		}
	}

	tr.push(trajEntry{frameIndex: frameIndex, x: rec.X, y: rec.Y})

	s := Sample{FrameIndex: frameIndex, ID: rec.ID}

	fps := e.cfg.FramesPerSecond
	if tr.Len() >= 2 && contiguous(tr.last(1), tr.last(0)) {
		s.Speed = displacement(tr.last(1), tr.last(0)) * fps
		s.SpeedValid = true

		if tr.Len() >= 3 && contiguous(tr.last(2), tr.last(1)) {
			prevSpeed := displacement(tr.last(2), tr.last(1)) * fps
			s.Accel = (s.Speed - prevSpeed) * fps
			s.AccelValid = true
		}
	}

	// Debounce: a sustained exceedance counts once. The run closes when the
	// magnitude drops below threshold or the signal becomes undefined.
	if s.AccelValid && math.Abs(s.Accel) > e.cfg.SuddenThreshold {
		if !tr.inRun {
			s.Sudden = true
			tr.inRun = true
		}
	} else {
		tr.inRun = false
	}

	return s
}

// prune drops trajectories of individuals absent beyond the gap tolerance;
// they would be reset on reappearance anyway.
func (e *Engine) prune(frameIndex int) {
	for id, tr := range e.trajectories {
		if frameIndex-tr.LastFrame() > e.cfg.GapToleranceFrames {
			delete(e.trajectories, id)
		}
	}
}

func contiguous(older, newer trajEntry) bool {
	return newer.frameIndex-older.frameIndex == 1
}

func displacement(a, b trajEntry) float64 {
	dx := b.x - a.x
	dy := b.y - a.y
	return math.Hypot(dx, dy)
}
