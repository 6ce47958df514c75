// Package testutil provides shared test utilities and fixtures.
//
// This package centralises common test helpers to reduce code duplication
// across test files and improve test maintainability.
package testutil

import (
	"math"
	"testing"

	"github.com/banshee-data/swarm.report/internal/ingest"
)

// AssertNoError fails the test if err is not nil.
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil.
func AssertError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

// AssertFloatNear fails the test if got is not within tol of want.
func AssertFloatNear(t *testing.T, got, want, tol float64) {
	t.Helper()
	if math.IsNaN(got) || math.Abs(got-want) > tol {
		t.Errorf("value = %v, want %v (tol %v)", got, want, tol)
	}
}

// Record builds a PositionRecord fixture with full confidence.
func Record(frame int, id string, x, y float64) ingest.PositionRecord {
	return ingest.PositionRecord{FrameIndex: frame, ID: id, X: x, Y: y}
}

// Batch builds a FrameBatch fixture from records that share a frame index.
func Batch(frame int, records ...ingest.PositionRecord) ingest.FrameBatch {
	return ingest.FrameBatch{FrameIndex: frame, Records: records}
}

// LinearBatches builds one single-individual batch per frame, moving the
// individual by (dx, dy) each frame from (x0, y0).
func LinearBatches(id string, frames int, x0, y0, dx, dy float64) []ingest.FrameBatch {
	batches := make([]ingest.FrameBatch, 0, frames)
	for i := 0; i < frames; i++ {
		batches = append(batches, Batch(i, Record(i, id, x0+float64(i)*dx, y0+float64(i)*dy)))
	}
	return batches
}
