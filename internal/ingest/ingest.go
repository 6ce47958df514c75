// Package ingest validates the ordered per-frame position-record stream
// produced by the upstream detector/tracker and advances the shared frame
// clock consumed by every downstream stage.
package ingest

import (
	"fmt"
	"log"
)

// PositionRecord is one detection of one individual in one frame.
// Records are produced externally and immutable once ingested.
type PositionRecord struct {
	FrameIndex int      `json:"frame_index"`
	ID         string   `json:"individual_id"`
	X          float64  `json:"x"`
	Y          float64  `json:"y"`
	Confidence *float64 `json:"confidence,omitempty"` // optional, in [0,1]
}

// Weight returns the record's detection confidence, defaulting to 1 when
// the upstream tracker did not report one.
func (r PositionRecord) Weight() float64 {
	if r.Confidence == nil {
		return 1.0
	}
	return *r.Confidence
}

// FrameBatch is the validated record set for a single frame index.
type FrameBatch struct {
	FrameIndex int
	Records    []PositionRecord
}

// StreamOrderError reports a frame index regression or duplicate in the
// input stream. Fatal: downstream cumulative state becomes unverifiable.
type StreamOrderError struct {
	Expected int
	Got      int
}

func (e *StreamOrderError) Error() string {
	return fmt.Sprintf("stream order violation: got frame %d, expected frame >= %d", e.Got, e.Expected)
}

// DuplicateIdentityError reports two records with the same individual ID in
// one frame's batch. Fatal: the identity is ambiguous.
type DuplicateIdentityError struct {
	FrameIndex int
	ID         string
}

func (e *DuplicateIdentityError) Error() string {
	return fmt.Sprintf("duplicate individual %q in frame %d", e.ID, e.FrameIndex)
}

// Bounds is the frame's spatial extent in pixels.
type Bounds struct {
	Width  float64
	Height float64
}

// Contains reports whether (x, y) lies within the frame extent.
func (b Bounds) Contains(x, y float64) bool {
	return x >= 0 && x < b.Width && y >= 0 && y < b.Height
}

// Ingestor validates incoming frame batches and owns the frame clock.
// Batches must arrive in strictly increasing frame order; a gap is reported
// as a skipped-frame warning and the clock jumps forward.
type Ingestor struct {
	bounds  Bounds
	next    int
	started bool

	skippedFrames  int
	clampedRecords int
}

// NewIngestor creates an ingestor for frames of the given extent.
func NewIngestor(bounds Bounds) *Ingestor {
	return &Ingestor{bounds: bounds}
}

// NextFrame returns the frame index the ingestor expects next.
func (in *Ingestor) NextFrame() int { return in.next }

// SkippedFrames returns the total number of frame indices skipped so far.
func (in *Ingestor) SkippedFrames() int { return in.skippedFrames }

// ClampedRecords returns the number of records whose coordinates were
// clamped into the frame bounds.
func (in *Ingestor) ClampedRecords() int { return in.clampedRecords }

// Ingest validates the batch claimed for frameIndex and advances the frame
// clock past it. Out-of-bounds coordinates are clamped on the returned copy
// and logged; ordering and identity violations are fatal.
func (in *Ingestor) Ingest(frameIndex int, records []PositionRecord) (FrameBatch, error) {
	if frameIndex < 0 || (in.started && frameIndex < in.next) {
		return FrameBatch{}, &StreamOrderError{Expected: in.next, Got: frameIndex}
	}

	if frameIndex > in.next {
		skipped := frameIndex - in.next
		in.skippedFrames += skipped
		log.Printf("ingest: skipped %d frame(s) before frame %d", skipped, frameIndex)
	}

	seen := make(map[string]struct{}, len(records))
	out := make([]PositionRecord, 0, len(records))
	for _, rec := range records {
		if _, dup := seen[rec.ID]; dup {
			return FrameBatch{}, &DuplicateIdentityError{FrameIndex: frameIndex, ID: rec.ID}
		}
		seen[rec.ID] = struct{}{}

		rec.FrameIndex = frameIndex
		if !in.bounds.Contains(rec.X, rec.Y) {
			clamped := rec
			clamped.X = clamp(rec.X, 0, in.bounds.Width)
			clamped.Y = clamp(rec.Y, 0, in.bounds.Height)
			log.Printf("ingest: frame %d individual %q at (%.1f, %.1f) outside %gx%g bounds, clamped to (%.1f, %.1f)",
				frameIndex, rec.ID, rec.X, rec.Y, in.bounds.Width, in.bounds.Height, clamped.X, clamped.Y)
			in.clampedRecords++
			rec = clamped
		}
		out = append(out, rec)
	}

	in.started = true
	in.next = frameIndex + 1
	return FrameBatch{FrameIndex: frameIndex, Records: out}, nil
}

// clamp limits v to [lo, hi), keeping coordinates addressable as pixels.
func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v >= hi {
		// Largest representable coordinate inside the extent.
		return hi - 1e-9
	}
	return v
}
