package telemetry

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func TestArchiveDisabled(t *testing.T) {
	a, err := OpenArchive(context.Background(), "")
	if err != nil || a != nil {
		t.Fatalf("OpenArchive(\"\") = %v, %v; want nil, nil", a, err)
	}
	// Nil archives accept every call.
	if err := a.RecordWindow(context.Background(), WindowStats{}, PerfStats{}); err != nil {
		t.Errorf("RecordWindow on nil archive: %v", err)
	}
	if err := a.Close(); err != nil {
		t.Errorf("Close on nil archive: %v", err)
	}
}

func TestArchiveRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "runs", "archive.db")

	a, err := OpenArchive(ctx, path)
	if err != nil {
		t.Fatalf("OpenArchive: %v", err)
	}
	defer a.Close()

	if err := a.BeginRun(ctx, "run-1", "brave-otter", 42); err != nil {
		t.Fatalf("BeginRun: %v", err)
	}
	for _, end := range []uint64{1000, 2000} {
		stats := WindowStats{WindowEndTick: end, Cells: 10, TotalCells: end}
		perf := PerfStats{AvgTickDuration: 250 * time.Microsecond}
		if err := a.RecordWindow(ctx, stats, perf); err != nil {
			t.Fatalf("RecordWindow(%d): %v", end, err)
		}
	}
	if err := a.RecordSave(ctx, 2000, "autosave.phylo", 1234); err != nil {
		t.Fatalf("RecordSave: %v", err)
	}
	if err := a.EndRun(ctx, 2000, 2000); err != nil {
		t.Fatalf("EndRun: %v", err)
	}

	runs, err := a.Runs(ctx)
	if err != nil {
		t.Fatalf("Runs: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("got %d runs, want 1", len(runs))
	}
	r := runs[0]
	if r.RunID != "run-1" || r.Name != "brave-otter" || r.Seed != 42 {
		t.Errorf("run identity = %+v", r)
	}
	if r.FinalTick != 2000 || r.TotalCells != 2000 || r.Windows != 2 {
		t.Errorf("run counters = tick %d, cells %d, windows %d; want 2000, 2000, 2", r.FinalTick, r.TotalCells, r.Windows)
	}
}
