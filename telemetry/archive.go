package telemetry

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

const archiveSchema = `
CREATE TABLE IF NOT EXISTS runs (
    run_id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    seed INTEGER NOT NULL,
    started_at TEXT NOT NULL,
    ended_at TEXT,
    final_tick INTEGER,
    total_cells INTEGER
);

CREATE TABLE IF NOT EXISTS windows (
    run_id TEXT NOT NULL REFERENCES runs(run_id) ON DELETE CASCADE,
    window_end INTEGER NOT NULL,
    cells INTEGER NOT NULL,
    total_cells INTEGER NOT NULL,
    births INTEGER NOT NULL,
    deaths INTEGER NOT NULL,
    starved INTEGER NOT NULL,
    attacks INTEGER NOT NULL,
    transfers INTEGER NOT NULL,
    energy_p50 REAL NOT NULL,
    genome_mean REAL NOT NULL,
    generation_max REAL NOT NULL,
    cell_energy REAL NOT NULL,
    waste REAL NOT NULL,
    avg_tick_us REAL,
    PRIMARY KEY (run_id, window_end)
);

CREATE TABLE IF NOT EXISTS saves (
    run_id TEXT NOT NULL REFERENCES runs(run_id) ON DELETE CASCADE,
    tick INTEGER NOT NULL,
    path TEXT NOT NULL,
    bytes INTEGER NOT NULL,
    saved_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_saves_run ON saves(run_id, tick);
`

// Archive records runs, their stats windows, and their saves in a SQLite
// database so long experiments can be compared after the fact.
type Archive struct {
	db    *sql.DB
	runID string
}

// RunSummary is one row of the runs table.
type RunSummary struct {
	RunID      string
	Name       string
	Seed       uint64
	StartedAt  time.Time
	FinalTick  uint64
	TotalCells uint64
	Windows    int
}

// OpenArchive opens or creates the archive at path. Returns nil if path is
// empty (archive disabled).
func OpenArchive(ctx context.Context, path string) (*Archive, error) {
	if path == "" {
		return nil, nil
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating archive directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("opening archive: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, archiveSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing archive schema: %w", err)
	}
	return &Archive{db: db}, nil
}

// BeginRun inserts the run row. Later writes are attributed to runID.
func (a *Archive) BeginRun(ctx context.Context, runID, name string, seed uint64) error {
	if a == nil {
		return nil
	}
	a.runID = runID
	_, err := a.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO runs (run_id, name, seed, started_at) VALUES (?, ?, ?, ?)`,
		runID, name, int64(seed), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("archiving run: %w", err)
	}
	return nil
}

// RecordWindow stores one stats window with the matching perf average.
func (a *Archive) RecordWindow(ctx context.Context, stats WindowStats, perf PerfStats) error {
	if a == nil {
		return nil
	}
	_, err := a.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO windows (
			run_id, window_end, cells, total_cells, births, deaths, starved,
			attacks, transfers, energy_p50, genome_mean, generation_max,
			cell_energy, waste, avg_tick_us
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.runID, int64(stats.WindowEndTick), stats.Cells, int64(stats.TotalCells),
		stats.Births, stats.Deaths, stats.Starved, stats.Attacks, stats.Transfers,
		stats.EnergyP50, stats.GenomeMean, stats.GenerationMax,
		stats.CellEnergy, stats.Waste, float64(perf.AvgTickDuration.Microseconds()))
	if err != nil {
		return fmt.Errorf("archiving window: %w", err)
	}
	return nil
}

// RecordSave notes a save file written at tick.
func (a *Archive) RecordSave(ctx context.Context, tick uint64, path string, size int64) error {
	if a == nil {
		return nil
	}
	_, err := a.db.ExecContext(ctx,
		`INSERT INTO saves (run_id, tick, path, bytes, saved_at) VALUES (?, ?, ?, ?, ?)`,
		a.runID, int64(tick), path, size, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("archiving save: %w", err)
	}
	return nil
}

// EndRun stamps the run row with its final counters.
func (a *Archive) EndRun(ctx context.Context, tick, totalCells uint64) error {
	if a == nil {
		return nil
	}
	_, err := a.db.ExecContext(ctx,
		`UPDATE runs SET ended_at = ?, final_tick = ?, total_cells = ? WHERE run_id = ?`,
		time.Now().UTC().Format(time.RFC3339), int64(tick), int64(totalCells), a.runID)
	if err != nil {
		return fmt.Errorf("finishing run: %w", err)
	}
	return nil
}

// Runs lists archived runs, newest first.
func (a *Archive) Runs(ctx context.Context) ([]RunSummary, error) {
	if a == nil {
		return nil, nil
	}
	rows, err := a.db.QueryContext(ctx, `
		SELECT r.run_id, r.name, r.seed, r.started_at,
		       COALESCE(r.final_tick, 0), COALESCE(r.total_cells, 0),
		       (SELECT COUNT(*) FROM windows w WHERE w.run_id = r.run_id)
		FROM runs r ORDER BY r.started_at DESC, r.run_id`)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var (
			s         RunSummary
			seed      int64
			started   string
			tick, tot int64
		)
		if err := rows.Scan(&s.RunID, &s.Name, &seed, &started, &tick, &tot, &s.Windows); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		s.Seed = uint64(seed)
		s.FinalTick = uint64(tick)
		s.TotalCells = uint64(tot)
		s.StartedAt, _ = time.Parse(time.RFC3339, started)
		out = append(out, s)
	}
	return out, rows.Err()
}

// Close closes the database.
func (a *Archive) Close() error {
	if a == nil {
		return nil
	}
	return a.db.Close()
}
