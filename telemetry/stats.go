// Package telemetry collects window statistics and phase timings and writes
// them to CSV files and a SQLite run archive.
package telemetry

import (
	"log/slog"
	"slices"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Census is a snapshot of the live population taken at a window boundary.
// Slices hold one value per live cell.
type Census struct {
	Cells      int
	TotalCells uint64

	EnergyFactors []float64 // energy / capacity
	GenomeLengths []float64 // words
	Generations   []float64
	Radii         []float64
	Green         []float64
	Red           []float64
	Blue          []float64

	CellEnergy float64 // sum of cell energy
	Waste      float64 // sum of the waste field
}

// Distribution summarises one census column.
type Distribution struct {
	Mean float64
	Std  float64
	Min  float64
	P10  float64
	P50  float64
	P90  float64
	Max  float64
}

// WindowStats holds aggregated statistics for a time window.
type WindowStats struct {
	WindowStartTick uint64 `csv:"-"`
	WindowEndTick   uint64 `csv:"window_end"`

	// Population at window end
	Cells      int    `csv:"cells"`
	TotalCells uint64 `csv:"total_cells"`

	// Events during window
	Births    int `csv:"births"`
	Deaths    int `csv:"deaths"`
	Starved   int `csv:"starved"`
	Attacks   int `csv:"attacks"`
	Transfers int `csv:"transfers"`
	Spawns    int `csv:"spawns"`

	// Energy as a fraction of capacity
	EnergyMean float64 `csv:"energy_mean"`
	EnergyP10  float64 `csv:"energy_p10"`
	EnergyP50  float64 `csv:"energy_p50"`
	EnergyP90  float64 `csv:"energy_p90"`

	GenomeMean float64 `csv:"genome_mean"`
	GenomeStd  float64 `csv:"genome_std"`
	GenomeP50  float64 `csv:"genome_p50"`
	GenomeMax  float64 `csv:"genome_max"`

	GenerationMean float64 `csv:"generation_mean"`
	GenerationMax  float64 `csv:"generation_max"`
	RadiusMean     float64 `csv:"radius_mean"`

	GreenMean float64 `csv:"green_mean"`
	RedMean   float64 `csv:"red_mean"`
	BlueMean  float64 `csv:"blue_mean"`

	// Energy pools
	CellEnergy float64 `csv:"cell_energy"`
	Waste      float64 `csv:"waste"`
}

// Percentile calculates the p-th percentile of a sorted slice.
// p should be in [0, 1]. Returns 0 if slice is empty.
func Percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 1 {
		return sorted[n-1]
	}

	// Linear interpolation
	idx := p * float64(n-1)
	lo := int(idx)
	hi := lo + 1
	if hi >= n {
		return sorted[n-1]
	}

	frac := idx - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

// Describe computes the distribution of values. An empty slice yields zeros.
func Describe(values []float64) Distribution {
	n := len(values)
	if n == 0 {
		return Distribution{}
	}

	var d Distribution
	if n == 1 {
		d.Mean = values[0]
	} else {
		d.Mean, d.Std = stat.MeanStdDev(values, nil)
	}
	d.Min = floats.Min(values)
	d.Max = floats.Max(values)

	sorted := slices.Clone(values)
	slices.Sort(sorted)
	d.P10 = Percentile(sorted, 0.10)
	d.P50 = Percentile(sorted, 0.50)
	d.P90 = Percentile(sorted, 0.90)
	return d
}

// mean returns the arithmetic mean, or 0 for an empty slice.
func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return floats.Sum(values) / float64(len(values))
}

// LogValue implements slog.LogValuer for structured logging.
func (s WindowStats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Uint64("window_start", s.WindowStartTick),
		slog.Uint64("window_end", s.WindowEndTick),
		slog.Int("cells", s.Cells),
		slog.Uint64("total_cells", s.TotalCells),
		slog.Int("births", s.Births),
		slog.Int("deaths", s.Deaths),
		slog.Int("starved", s.Starved),
		slog.Int("attacks", s.Attacks),
		slog.Int("transfers", s.Transfers),
		slog.Int("spawns", s.Spawns),
		slog.Float64("energy_mean", s.EnergyMean),
		slog.Float64("energy_p10", s.EnergyP10),
		slog.Float64("energy_p50", s.EnergyP50),
		slog.Float64("energy_p90", s.EnergyP90),
		slog.Float64("genome_mean", s.GenomeMean),
		slog.Float64("genome_std", s.GenomeStd),
		slog.Float64("genome_p50", s.GenomeP50),
		slog.Float64("genome_max", s.GenomeMax),
		slog.Float64("generation_mean", s.GenerationMean),
		slog.Float64("generation_max", s.GenerationMax),
		slog.Float64("radius_mean", s.RadiusMean),
		slog.Float64("green_mean", s.GreenMean),
		slog.Float64("red_mean", s.RedMean),
		slog.Float64("blue_mean", s.BlueMean),
		slog.Float64("cell_energy", s.CellEnergy),
		slog.Float64("waste", s.Waste),
	)
}

// LogStats logs the window stats using slog.
func (s WindowStats) LogStats() {
	slog.Info("stats",
		"window_end", s.WindowEndTick,
		"cells", s.Cells,
		"total_cells", s.TotalCells,
		"births", s.Births,
		"deaths", s.Deaths,
		"starved", s.Starved,
		"attacks", s.Attacks,
		"transfers", s.Transfers,
		"energy_p50", s.EnergyP50,
		"genome_mean", s.GenomeMean,
		"generation_max", s.GenerationMax,
		"waste", s.Waste,
	)
}
