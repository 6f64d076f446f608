package telemetry

import (
	"math"
	"testing"
)

func TestPercentile(t *testing.T) {
	tests := []struct {
		name   string
		sorted []float64
		p      float64
		want   float64
	}{
		{"empty slice", []float64{}, 0.5, 0},
		{"single element", []float64{5.0}, 0.5, 5.0},
		{"p0", []float64{1, 2, 3, 4, 5}, 0.0, 1.0},
		{"p100", []float64{1, 2, 3, 4, 5}, 1.0, 5.0},
		{"p50 odd", []float64{1, 2, 3, 4, 5}, 0.5, 3.0},
		{"p50 even", []float64{1, 2, 3, 4}, 0.5, 2.5},
		{"p10", []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, 0.1, 1.9},
		{"p90", []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, 0.9, 9.1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Percentile(tt.sorted, tt.p)
			if math.Abs(got-tt.want) > 0.001 {
				t.Errorf("Percentile(%v, %v) = %v, want %v", tt.sorted, tt.p, got, tt.want)
			}
		})
	}
}

func TestDescribe(t *testing.T) {
	values := []float64{1.0, 0.9, 0.8, 0.7, 0.6, 0.5, 0.4, 0.3, 0.2, 0.1}
	d := Describe(values)

	if math.Abs(d.Mean-0.55) > 0.001 {
		t.Errorf("mean = %v, want 0.55", d.Mean)
	}
	// Unbiased standard deviation of 0.1..1.0
	if math.Abs(d.Std-0.3028) > 0.001 {
		t.Errorf("std = %v, want ~0.3028", d.Std)
	}
	if math.Abs(d.P10-0.19) > 0.01 {
		t.Errorf("p10 = %v, want ~0.19", d.P10)
	}
	if math.Abs(d.P50-0.55) > 0.01 {
		t.Errorf("p50 = %v, want ~0.55", d.P50)
	}
	if math.Abs(d.P90-0.91) > 0.01 {
		t.Errorf("p90 = %v, want ~0.91", d.P90)
	}
	if d.Min != 0.1 || d.Max != 1.0 {
		t.Errorf("range = [%v, %v], want [0.1, 1]", d.Min, d.Max)
	}
	if values[0] != 1.0 {
		t.Error("Describe must not reorder its input")
	}
}

func TestDescribeSmall(t *testing.T) {
	if d := Describe(nil); d != (Distribution{}) {
		t.Errorf("empty input = %+v, want zeros", d)
	}

	d := Describe([]float64{4})
	if d.Mean != 4 || d.Std != 0 || d.P50 != 4 || d.Max != 4 {
		t.Errorf("single value = %+v", d)
	}
}

func TestCollectorFlush(t *testing.T) {
	c := NewCollector(10)

	if c.ShouldFlush(5) {
		t.Error("window should not flush before it elapses")
	}

	c.RecordBirth()
	c.RecordBirth()
	c.RecordDeath(true)
	c.RecordDeath(false)
	c.RecordAttack()
	c.RecordTransfer()
	c.RecordSpawn()

	if !c.ShouldFlush(10) {
		t.Fatal("window should flush at its end")
	}

	stats := c.Flush(10, Census{
		Cells:         2,
		TotalCells:    3,
		EnergyFactors: []float64{0.5, 1},
		GenomeLengths: []float64{10, 30},
		Radii:         []float64{1, 2},
		Green:         []float64{1, 0},
	})

	if stats.Births != 2 || stats.Deaths != 2 || stats.Starved != 1 {
		t.Errorf("births/deaths/starved = %d/%d/%d, want 2/2/1", stats.Births, stats.Deaths, stats.Starved)
	}
	if stats.Attacks != 1 || stats.Transfers != 1 || stats.Spawns != 1 {
		t.Errorf("attacks/transfers/spawns = %d/%d/%d, want 1/1/1", stats.Attacks, stats.Transfers, stats.Spawns)
	}
	if stats.EnergyMean != 0.75 || stats.GenomeMax != 30 || stats.RadiusMean != 1.5 || stats.GreenMean != 0.5 {
		t.Errorf("census fields = %+v", stats)
	}
	if stats.WindowStartTick != 0 || stats.WindowEndTick != 10 {
		t.Errorf("window = [%d, %d], want [0, 10]", stats.WindowStartTick, stats.WindowEndTick)
	}

	next := c.Flush(20, Census{})
	if next.Births != 0 || next.WindowStartTick != 10 {
		t.Errorf("counters not reset: %+v", next)
	}
}
