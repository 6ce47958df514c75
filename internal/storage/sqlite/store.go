// Package sqlite persists finished runs (their time series and final
// density grid) for later querying and comparison across videos.
package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/banshee-data/swarm.report/internal/density"
	"github.com/banshee-data/swarm.report/internal/series"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id TEXT PRIMARY KEY,
	source TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL,
	frames INTEGER NOT NULL,
	skipped_frames INTEGER NOT NULL,
	sudden_total INTEGER NOT NULL,
	grid_cols INTEGER NOT NULL,
	grid_rows INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS series_points (
	run_id TEXT NOT NULL,
	frame_index INTEGER NOT NULL,
	mean_speed REAL,
	individual_count INTEGER NOT NULL,
	cumulative_sudden_count INTEGER NOT NULL,
	PRIMARY KEY (run_id, frame_index),
	FOREIGN KEY (run_id) REFERENCES runs(run_id)
);
CREATE TABLE IF NOT EXISTS density_cells (
	run_id TEXT NOT NULL,
	cx INTEGER NOT NULL,
	cy INTEGER NOT NULL,
	weight REAL NOT NULL,
	PRIMARY KEY (run_id, cx, cy),
	FOREIGN KEY (run_id) REFERENCES runs(run_id)
);
`

// RunRecord is one persisted run's summary row.
type RunRecord struct {
	RunID         string
	Source        string
	CreatedAt     time.Time
	Frames        int
	SkippedFrames int
	SuddenTotal   int
	GridCols      int
	GridRows      int
}

// Store wraps the run database.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the run database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open run db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

// SaveRun writes one finished run atomically and returns its generated ID.
// Only non-zero density cells are stored.
func (s *Store) SaveRun(source string, points []series.Point, grid *density.Snapshot, skippedFrames, suddenTotal int) (string, error) {
	runID := uuid.NewString()

	tx, err := s.db.Begin()
	if err != nil {
		return "", fmt.Errorf("begin save: %w", err)
	}
	defer tx.Rollback()

	cols, rows := 0, 0
	if grid != nil {
		cols, rows = grid.Cols, grid.Rows
	}
	_, err = tx.Exec(
		`INSERT INTO runs (run_id, source, created_at, frames, skipped_frames, sudden_total, grid_cols, grid_rows)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, source, time.Now().UTC(), len(points), skippedFrames, suddenTotal, cols, rows,
	)
	if err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}

	pointStmt, err := tx.Prepare(
		`INSERT INTO series_points (run_id, frame_index, mean_speed, individual_count, cumulative_sudden_count)
		 VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return "", fmt.Errorf("prepare point insert: %w", err)
	}
	defer pointStmt.Close()

	for _, p := range points {
		var speed sql.NullFloat64
		if p.MeanSpeedValid {
			speed = sql.NullFloat64{Float64: p.MeanSpeed, Valid: true}
		}
		if _, err := pointStmt.Exec(runID, p.FrameIndex, speed, p.IndividualCount, p.CumulativeSuddenCount); err != nil {
			return "", fmt.Errorf("insert point %d: %w", p.FrameIndex, err)
		}
	}

	if grid != nil {
		cellStmt, err := tx.Prepare(
			`INSERT INTO density_cells (run_id, cx, cy, weight) VALUES (?, ?, ?, ?)`)
		if err != nil {
			return "", fmt.Errorf("prepare cell insert: %w", err)
		}
		defer cellStmt.Close()

		for cy := 0; cy < grid.Rows; cy++ {
			for cx := 0; cx < grid.Cols; cx++ {
				w := grid.At(cx, cy)
				if w == 0 {
					continue
				}
				if _, err := cellStmt.Exec(runID, cx, cy, w); err != nil {
					return "", fmt.Errorf("insert cell (%d,%d): %w", cx, cy, err)
				}
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit save: %w", err)
	}
	return runID, nil
}

// ListRuns returns run summaries, newest first.
func (s *Store) ListRuns() ([]RunRecord, error) {
	rows, err := s.db.Query(
		`SELECT run_id, source, created_at, frames, skipped_frames, sudden_total, grid_cols, grid_rows
		 FROM runs ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		var r RunRecord
		if err := rows.Scan(&r.RunID, &r.Source, &r.CreatedAt, &r.Frames, &r.SkippedFrames, &r.SuddenTotal, &r.GridCols, &r.GridRows); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// LoadSeries returns a run's time series in frame order.
func (s *Store) LoadSeries(runID string) ([]series.Point, error) {
	rows, err := s.db.Query(
		`SELECT frame_index, mean_speed, individual_count, cumulative_sudden_count
		 FROM series_points WHERE run_id = ? ORDER BY frame_index`, runID)
	if err != nil {
		return nil, fmt.Errorf("load series for run %s: %w", runID, err)
	}
	defer rows.Close()

	var points []series.Point
	for rows.Next() {
		var p series.Point
		var speed sql.NullFloat64
		if err := rows.Scan(&p.FrameIndex, &speed, &p.IndividualCount, &p.CumulativeSuddenCount); err != nil {
			return nil, fmt.Errorf("scan point: %w", err)
		}
		if speed.Valid {
			p.MeanSpeed = speed.Float64
			p.MeanSpeedValid = true
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

// LoadGrid reconstructs a run's final normalized density snapshot. Cells not
// stored are zero.
func (s *Store) LoadGrid(runID string) (*density.Snapshot, error) {
	var cols, rows int
	err := s.db.QueryRow(`SELECT grid_cols, grid_rows FROM runs WHERE run_id = ?`, runID).Scan(&cols, &rows)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run %s not found", runID)
	}
	if err != nil {
		return nil, fmt.Errorf("load grid dims for run %s: %w", runID, err)
	}

	snap := &density.Snapshot{Cols: cols, Rows: rows, Values: make([]float64, cols*rows)}
	cellRows, err := s.db.Query(`SELECT cx, cy, weight FROM density_cells WHERE run_id = ?`, runID)
	if err != nil {
		return nil, fmt.Errorf("load grid cells for run %s: %w", runID, err)
	}
	defer cellRows.Close()

	for cellRows.Next() {
		var cx, cy int
		var w float64
		if err := cellRows.Scan(&cx, &cy, &w); err != nil {
			return nil, fmt.Errorf("scan cell: %w", err)
		}
		if cx >= 0 && cx < cols && cy >= 0 && cy < rows {
			snap.Values[cy*cols+cx] = w
		}
	}
	return snap, cellRows.Err()
}
