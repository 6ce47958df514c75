// Package density accumulates a smoothed 2D occupancy grid from observed
// positions, either cumulatively over the whole video or over a rolling
// window of recent frames.
package density

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/banshee-data/swarm.report/internal/ingest"
)

// Mode selects the accumulation policy.
type Mode string

const (
	// Cumulative never decays; the grid reflects the whole video so far.
	Cumulative Mode = "cumulative"
	// Rolling retains the last WindowFrames frames' contributions and
	// subtracts the oldest exactly as new frames arrive.
	Rolling Mode = "rolling"
)

// Config holds the estimator parameters.
type Config struct {
	Width        float64 // frame extent in pixels
	Height       float64
	CellSizePx   float64 // grid resolution
	Bandwidth    float64 // Gaussian kernel sigma in pixels
	Mode         Mode
	WindowFrames int // rolling window length; ignored in cumulative mode
}

// stamp is one cell's share of a single observation's kernel footprint.
type stamp struct {
	idx int
	w   float64
}

// kernelCell is a precomputed kernel offset in cell units.
type kernelCell struct {
	dx, dy int
	w      float64
}

// Grid is the single-owner density accumulator. Exactly one writer mutates
// it per frame; readers consume immutable Snapshots.
type Grid struct {
	cfg        Config
	cols, rows int
	cells      []float64
	total      float64
	kernel     []kernelCell

	// Rolling mode: FIFO of per-frame stamp lists for exact subtraction.
	window [][]stamp

	frames int
}

// NewGrid creates a grid covering a Width x Height extent. The kernel
// footprint is precomputed once; its weights sum to 1 so each full-confidence
// observation adds unit weight.
func NewGrid(cfg Config) (*Grid, error) {
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("density: invalid extent %gx%g", cfg.Width, cfg.Height)
	}
	if cfg.CellSizePx <= 0 {
		return nil, fmt.Errorf("density: cell size must be positive, got %g", cfg.CellSizePx)
	}
	if cfg.Bandwidth <= 0 {
		return nil, fmt.Errorf("density: bandwidth must be positive, got %g", cfg.Bandwidth)
	}
	if cfg.Mode == "" {
		cfg.Mode = Cumulative
	}
	if cfg.Mode == Rolling && cfg.WindowFrames <= 0 {
		return nil, fmt.Errorf("density: rolling mode needs a positive window, got %d", cfg.WindowFrames)
	}

	g := &Grid{
		cfg:  cfg,
		cols: int(math.Ceil(cfg.Width / cfg.CellSizePx)),
		rows: int(math.Ceil(cfg.Height / cfg.CellSizePx)),
	}
	g.cells = make([]float64, g.cols*g.rows)
	g.kernel = buildKernel(cfg.Bandwidth, cfg.CellSizePx)
	return g, nil
}

// buildKernel precomputes a normalised Gaussian footprint out to 3 sigma,
// sampled at cell centres.
func buildKernel(bandwidth, cellSize float64) []kernelCell {
	radius := int(math.Ceil(3 * bandwidth / cellSize))
	if radius < 1 {
		radius = 1
	}
	twoSigmaSq := 2 * bandwidth * bandwidth

	cells := make([]kernelCell, 0, (2*radius+1)*(2*radius+1))
	sum := 0.0
	for dy := -radius; dy <= radius; dy++ {
		for dx := -radius; dx <= radius; dx++ {
			distSq := (float64(dx)*cellSize)*(float64(dx)*cellSize) +
				(float64(dy)*cellSize)*(float64(dy)*cellSize)
			w := math.Exp(-distSq / twoSigmaSq)
			cells = append(cells, kernelCell{dx: dx, dy: dy, w: w})
			sum += w
		}
	}
	for i := range cells {
		cells[i].w /= sum
	}
	return cells
}

// Cols returns the grid width in cells.
func (g *Grid) Cols() int { return g.cols }

// Rows returns the grid height in cells.
func (g *Grid) Rows() int { return g.rows }

// Idx maps cell coordinates to the flat cell slice.
func (g *Grid) Idx(cx, cy int) int { return cy*g.cols + cx }

// TotalWeight returns the current accumulated weight. Monotonically
// non-decreasing in cumulative mode; bounded by the window in rolling mode.
func (g *Grid) TotalWeight() float64 { return g.total }

// Frames returns the number of frames accumulated so far.
func (g *Grid) Frames() int { return g.frames }

// AddFrame folds one frame's observations into the accumulator. Each record
// contributes its kernel footprint scaled by detection confidence. In rolling
// mode the oldest frame beyond the window is subtracted exactly.
func (g *Grid) AddFrame(records []ingest.PositionRecord) {
	var frameStamps []stamp
	keepStamps := g.cfg.Mode == Rolling

	for _, rec := range records {
		cx := int(rec.X / g.cfg.CellSizePx)
		cy := int(rec.Y / g.cfg.CellSizePx)
		weight := rec.Weight()
		if weight <= 0 {
			continue
		}

		for _, k := range g.kernel {
			x := cx + k.dx
			y := cy + k.dy
			if x < 0 || x >= g.cols || y < 0 || y >= g.rows {
				continue
			}
			idx := g.Idx(x, y)
			w := k.w * weight
			g.cells[idx] += w
			g.total += w
			if keepStamps {
				frameStamps = append(frameStamps, stamp{idx: idx, w: w})
			}
		}
	}

	g.frames++

	if keepStamps {
		g.window = append(g.window, frameStamps)
		if len(g.window) > g.cfg.WindowFrames {
			oldest := g.window[0]
			g.window[0] = nil
			g.window = g.window[1:]
			for _, st := range oldest {
				g.cells[st.idx] -= st.w
				g.total -= st.w
			}
			g.clampNegatives()
		}
	}
}

// clampNegatives zeroes tiny negative residue left by floating-point
// subtraction so the non-negativity invariant holds.
func (g *Grid) clampNegatives() {
	if g.total < 0 {
		g.total = 0
	}
	for i, v := range g.cells {
		if v < 0 {
			g.cells[i] = 0
		}
	}
}

// Snapshot is an immutable normalized copy of the grid for rendering and
// export. Values sum to 1 when any weight has been observed.
type Snapshot struct {
	Cols   int
	Rows   int
	Values []float64
}

// At returns the normalized weight at cell (cx, cy).
func (s *Snapshot) At(cx, cy int) float64 {
	return s.Values[cy*s.Cols+cx]
}

// Max returns the largest cell value in the snapshot.
func (s *Snapshot) Max() float64 {
	if len(s.Values) == 0 {
		return 0
	}
	return floats.Max(s.Values)
}

// ColumnMarginal returns per-column sums: the distribution of observed x
// positions. Used for histogram overlays.
func (s *Snapshot) ColumnMarginal() []float64 {
	out := make([]float64, s.Cols)
	for cy := 0; cy < s.Rows; cy++ {
		row := s.Values[cy*s.Cols : (cy+1)*s.Cols]
		floats.Add(out, row)
	}
	return out
}

// RowMarginal returns per-row sums: the distribution of observed y positions.
func (s *Snapshot) RowMarginal() []float64 {
	out := make([]float64, s.Rows)
	for cy := 0; cy < s.Rows; cy++ {
		out[cy] = floats.Sum(s.Values[cy*s.Cols : (cy+1)*s.Cols])
	}
	return out
}

// Snapshot returns the grid normalized to sum to 1, or all zeros before any
// observation. The underlying accumulator is never renormalized, preserving
// accumulation precision.
func (g *Grid) Snapshot() *Snapshot {
	values := make([]float64, len(g.cells))
	if g.total > 0 {
		copy(values, g.cells)
		floats.Scale(1/g.total, values)
	}
	return &Snapshot{Cols: g.cols, Rows: g.rows, Values: values}
}
