// Package config provides configuration loading and access for the simulation.
package config

import (
	_ "embed"
	"fmt"
	"os"
	"runtime"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Config holds all simulation configuration parameters.
type Config struct {
	World      WorldConfig      `yaml:"world"`
	Pool       PoolConfig       `yaml:"pool"`
	Simulation SimulationConfig `yaml:"simulation"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
	Options    Options          `yaml:"options"`

	// Derived values computed after loading
	Derived DerivedConfig `yaml:"-"`
}

// WorldConfig holds the dimensions of the disc world and its grids.
type WorldConfig struct {
	Radius         float64 `yaml:"radius"`           // World disc radius in world units
	MedianCellSize float64 `yaml:"median_cell_size"` // Physics bucket size target
	LightCellSize  float64 `yaml:"light_cell_size"`  // Light and waste grid cell size
	MaxCells       int     `yaml:"max_cells"`        // Arena capacity; splits beyond it are dropped
	DynamicLights  bool    `yaml:"dynamic_lights"`   // Scroll the light field and cycle illumination
	Deterministic  bool    `yaml:"deterministic"`    // Shift-down bucket removal and id-sorted dispatch
}

// PoolConfig holds worker pool sizing.
type PoolConfig struct {
	Threads          int `yaml:"threads"` // 0 = GOMAXPROCS
	CellReadAhead    int `yaml:"cell_read_ahead"`
	PhysicsReadAhead int `yaml:"physics_read_ahead"`
	VMReadAhead      int `yaml:"vm_read_ahead"`
	LightReadAhead   int `yaml:"light_read_ahead"`
	WasteReadAhead   int `yaml:"waste_read_ahead"`
}

// SimulationConfig holds run-level settings.
type SimulationConfig struct {
	Name          string `yaml:"name"`           // Seed name; empty = random adjective-noun
	Speed         string `yaml:"speed"`          // pause, slow, medium, fast, ludicrous
	RenderMode    string `yaml:"render_mode"`    // normal, hash, dye
	AutosaveTicks uint64 `yaml:"autosave_ticks"` // 0 disables autosave
	SaveDir       string `yaml:"save_dir"`
}

// TelemetryConfig holds telemetry parameters.
type TelemetryConfig struct {
	StatsWindow         int `yaml:"stats_window"` // Ticks per stats window
	PerfCollectorWindow int `yaml:"perf_collector_window"`
}

// DerivedConfig holds computed values derived from the loaded config.
type DerivedConfig struct {
	WorldRadius32 float32 // World.Radius as float32
	SimGridEdge   uint32  // Physics buckets per axis
	LightGridEdge uint32  // Light/waste cells per axis
	Threads       int     // Effective worker count
}

// global holds the loaded configuration.
var global *Config

// Init loads configuration from the given path, or uses embedded defaults if path is empty.
// Must be called before Cfg(). The loaded options become the current tunables.
func Init(path string) error {
	cfg, err := Load(path)
	if err != nil {
		return err
	}
	global = cfg
	SetOptions(cfg.Options)
	return nil
}

// MustInit is like Init but panics on error.
func MustInit(path string) {
	if err := Init(path); err != nil {
		panic(fmt.Sprintf("config: failed to initialize: %v", err))
	}
}

// Cfg returns the global configuration. Panics if Init was not called.
func Cfg() *Config {
	if global == nil {
		panic("config: Cfg() called before Init()")
	}
	return global
}

// Load loads configuration from a YAML file, merging with embedded defaults.
// If path is empty, only embedded defaults are used.
func Load(path string) (*Config, error) {
	// Start with embedded defaults
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}

	// Load user config if provided
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Unmarshal into same struct - only overwrites fields present in file
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	cfg.computeDerived()

	return cfg, nil
}

func (c *Config) validate() error {
	if c.World.Radius <= 0 {
		return fmt.Errorf("world.radius must be positive, got %v", c.World.Radius)
	}
	if c.World.MedianCellSize <= 0 || c.World.LightCellSize <= 0 {
		return fmt.Errorf("world cell sizes must be positive")
	}
	if c.World.MaxCells < 1 {
		return fmt.Errorf("world.max_cells must be at least 1, got %d", c.World.MaxCells)
	}
	if _, err := ParseSpeed(c.Simulation.Speed); err != nil {
		return err
	}
	if _, err := ParseRenderMode(c.Simulation.RenderMode); err != nil {
		return err
	}
	return nil
}

// computeDerived calculates values derived from loaded config.
func (c *Config) computeDerived() {
	c.Derived.WorldRadius32 = float32(c.World.Radius)
	c.Derived.SimGridEdge = uint32(c.World.Radius*2/c.World.MedianCellSize + 0.5)
	c.Derived.LightGridEdge = uint32(c.World.Radius*2/c.World.LightCellSize + 0.5)

	c.Derived.Threads = c.Pool.Threads
	if c.Derived.Threads <= 0 {
		c.Derived.Threads = runtime.GOMAXPROCS(0)
	}

	// Read-ahead defaults mirror the batch sizes each phase was tuned with.
	if c.Pool.CellReadAhead <= 0 {
		c.Pool.CellReadAhead = 16
	}
	if c.Pool.PhysicsReadAhead <= 0 {
		c.Pool.PhysicsReadAhead = 16
	}
	if c.Pool.VMReadAhead <= 0 {
		c.Pool.VMReadAhead = 16
	}
	if c.Pool.LightReadAhead <= 0 {
		c.Pool.LightReadAhead = 8
	}
	if c.Pool.WasteReadAhead <= 0 {
		c.Pool.WasteReadAhead = 64
	}
	if c.Telemetry.PerfCollectorWindow <= 0 {
		c.Telemetry.PerfCollectorWindow = 120
	}
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := c.Dump()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// Dump renders the effective configuration as YAML.
func (c *Config) Dump() ([]byte, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("marshaling config: %w", err)
	}
	return data, nil
}
