package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Derived.SimGridEdge != 256 {
		t.Errorf("SimGridEdge = %d, want 256", cfg.Derived.SimGridEdge)
	}
	if cfg.Derived.LightGridEdge != 128 {
		t.Errorf("LightGridEdge = %d, want 128", cfg.Derived.LightGridEdge)
	}
	if cfg.Derived.Threads < 1 {
		t.Errorf("Threads = %d, want >= 1", cfg.Derived.Threads)
	}
	if cfg.Options != DefaultOptions() {
		t.Errorf("embedded options differ from DefaultOptions:\n got %+v\nwant %+v", cfg.Options, DefaultOptions())
	}
}

func TestLoadOverlay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cfg.yaml")
	data := []byte("world:\n  max_cells: 64\noptions:\n  base_split_cost: 42\n")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.World.MaxCells != 64 {
		t.Errorf("MaxCells = %d, want 64", cfg.World.MaxCells)
	}
	if cfg.Options.BaseSplitCost != 42 {
		t.Errorf("BaseSplitCost = %d, want 42", cfg.Options.BaseSplitCost)
	}
	// Untouched keys keep their defaults.
	if cfg.World.Radius != 320 {
		t.Errorf("Radius = %v, want 320", cfg.World.Radius)
	}
	if cfg.Options.TickEnergyLost != 100 {
		t.Errorf("TickEnergyLost = %d, want 100", cfg.Options.TickEnergyLost)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"negative radius", "world:\n  radius: -1\n"},
		{"zero capacity", "world:\n  max_cells: 0\n"},
		{"bad speed", "simulation:\n  speed: warp\n"},
		{"bad render mode", "simulation:\n  render_mode: xray\n"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "cfg.yaml")
			if err := os.WriteFile(path, []byte(tc.yaml), 0644); err != nil {
				t.Fatal(err)
			}
			if _, err := Load(path); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestOptionsBinaryRoundTrip(t *testing.T) {
	o := DefaultOptions()
	o.BaseSplitCost = 7
	o.LiveMutationChance = 0.5

	data, err := o.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}
	if len(data) != OptionsSize {
		t.Fatalf("encoded %d bytes, want %d", len(data), OptionsSize)
	}

	var got Options
	if err := got.UnmarshalBinary(data); err != nil {
		t.Fatal(err)
	}
	if got != o {
		t.Errorf("round trip mismatch: got %+v, want %+v", got, o)
	}

	if err := got.UnmarshalBinary(data[:len(data)-1]); err == nil {
		t.Error("expected error for short buffer")
	}
}

func TestSetOptions(t *testing.T) {
	defer SetOptions(DefaultOptions())

	o := DefaultOptions()
	o.CrowdingPenalty = 0.25
	SetOptions(o)

	if got := CurrentOptions().CrowdingPenalty; got != 0.25 {
		t.Errorf("CrowdingPenalty = %v, want 0.25", got)
	}
}

func TestParseSpeed(t *testing.T) {
	tests := []struct {
		in   string
		want Speed
		err  bool
	}{
		{"", SpeedLudicrous, false},
		{"pause", SpeedPause, false},
		{"Slow", SpeedSlow, false},
		{"fast", SpeedFast, false},
		{"warp", 0, true},
	}

	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			got, err := ParseSpeed(tc.in)
			if (err != nil) != tc.err {
				t.Fatalf("err = %v, want error %v", err, tc.err)
			}
			if !tc.err && got != tc.want {
				t.Errorf("ParseSpeed(%q) = %v, want %v", tc.in, got, tc.want)
			}
		})
	}
}
