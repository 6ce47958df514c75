package ingest

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
)

// Source is a finite, forward-only sequence of frame batches. Next returns
// io.EOF after the final batch; the sequence is consumed exactly once.
type Source interface {
	Next() (FrameBatch, error)
}

// Counted is implemented by sources that know their frame domain up front,
// letting the pipeline check video alignment before processing begins.
type Counted interface {
	FrameCount() int
}

// BatchReader groups a line-delimited JSON stream of PositionRecords into
// per-frame batches. Records for the same frame must be adjacent in the
// stream; frame ordering itself is the Ingestor's concern.
type BatchReader struct {
	sc      *bufio.Scanner
	line    int
	pending *PositionRecord
	done    bool
}

// NewBatchReader wraps r, which yields one JSON PositionRecord per line.
func NewBatchReader(r io.Reader) *BatchReader {
	sc := bufio.NewScanner(r)
	// Allow long lines; detector output can carry extra fields.
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &BatchReader{sc: sc}
}

// Next returns the next frame's batch, or io.EOF when the stream is done.
func (br *BatchReader) Next() (FrameBatch, error) {
	if br.done && br.pending == nil {
		return FrameBatch{}, io.EOF
	}

	var batch FrameBatch
	if br.pending != nil {
		batch.FrameIndex = br.pending.FrameIndex
		batch.Records = append(batch.Records, *br.pending)
		br.pending = nil
	}

	for {
		rec, err := br.scanRecord()
		if err == io.EOF {
			br.done = true
			if len(batch.Records) == 0 {
				return FrameBatch{}, io.EOF
			}
			return batch, nil
		}
		if err != nil {
			return FrameBatch{}, err
		}

		if len(batch.Records) == 0 {
			batch.FrameIndex = rec.FrameIndex
		} else if rec.FrameIndex != batch.FrameIndex {
			br.pending = &rec
			return batch, nil
		}
		batch.Records = append(batch.Records, rec)
	}
}

func (br *BatchReader) scanRecord() (PositionRecord, error) {
	for br.sc.Scan() {
		br.line++
		line := br.sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec PositionRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			return PositionRecord{}, fmt.Errorf("parse record at line %d: %w", br.line, err)
		}
		if rec.FrameIndex < 0 {
			return PositionRecord{}, fmt.Errorf("negative frame_index %d at line %d", rec.FrameIndex, br.line)
		}
		if rec.ID == "" {
			return PositionRecord{}, fmt.Errorf("missing individual_id at line %d", br.line)
		}
		if rec.Confidence != nil && (*rec.Confidence < 0 || *rec.Confidence > 1) {
			return PositionRecord{}, fmt.Errorf("confidence %f out of [0,1] at line %d", *rec.Confidence, br.line)
		}
		return rec, nil
	}
	if err := br.sc.Err(); err != nil {
		return PositionRecord{}, fmt.Errorf("read record stream: %w", err)
	}
	return PositionRecord{}, io.EOF
}

// CountRecordFrames scans a line-delimited JSON record stream and reports its
// frame domain size, the highest frame index plus one. It lets file-backed
// streams be checked against the video frame count before any processing,
// at the cost of a second pass over the file.
func CountRecordFrames(r io.Reader) (int, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	frames := 0
	line := 0
	for sc.Scan() {
		line++
		if len(sc.Bytes()) == 0 {
			continue
		}
		var rec struct {
			FrameIndex int `json:"frame_index"`
		}
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			return 0, fmt.Errorf("parse record at line %d: %w", line, err)
		}
		if rec.FrameIndex+1 > frames {
			frames = rec.FrameIndex + 1
		}
	}
	if err := sc.Err(); err != nil {
		return 0, fmt.Errorf("count record frames: %w", err)
	}
	return frames, nil
}

type countedSource struct {
	Source
	frames int
}

func (s *countedSource) FrameCount() int { return s.frames }

// WithFrameCount wraps src with a known frame domain so alignment against the
// video can be verified up front.
func WithFrameCount(src Source, frames int) Source {
	return &countedSource{Source: src, frames: frames}
}

// SliceSource serves pre-built batches from memory, mainly for tests and
// in-process tracking collaborators.
type SliceSource struct {
	batches []FrameBatch
	pos     int
}

// NewSliceSource wraps batches in a Source.
func NewSliceSource(batches []FrameBatch) *SliceSource {
	return &SliceSource{batches: batches}
}

// Next returns the next batch or io.EOF.
func (s *SliceSource) Next() (FrameBatch, error) {
	if s.pos >= len(s.batches) {
		return FrameBatch{}, io.EOF
	}
	b := s.batches[s.pos]
	s.pos++
	return b, nil
}

// FrameCount returns the number of distinct frame indices in the source,
// counting the full span from frame 0 through the last batch.
func (s *SliceSource) FrameCount() int {
	if len(s.batches) == 0 {
		return 0
	}
	return s.batches[len(s.batches)-1].FrameIndex + 1
}
