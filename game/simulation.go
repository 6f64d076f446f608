// Package game runs the simulation: the agent directory, the per-tick phase
// pipeline, deferred command dispatch, persistence, and the tick loop.
package game

import (
	"math"

	"github.com/cespare/xxhash/v2"
	"github.com/mlange-42/ark/ecs"

	"github.com/pthm-cable/phylo/arena"
	"github.com/pthm-cable/phylo/components"
	"github.com/pthm-cable/phylo/config"
	"github.com/pthm-cable/phylo/pool"
	"github.com/pthm-cable/phylo/systems"
	"github.com/pthm-cable/phylo/telemetry"
	"github.com/pthm-cable/phylo/vm"
)

// Simulation constants
const (
	LightPeriodTicks = 50000.0 // illumination cycle length in dynamic mode

	growthRateMultiplier = 2.0
	growPoint            = 3 // max touches per tick that still allow growth
	moveImpulse          = 20.0
	greenGain            = 1.2
	wasteLossDivisor     = 20000
	maxWasteEat          = 500
	deathWasteFraction   = 0.01
	spawnWindowStart     = 0.4
	spawnWindowSize      = 0.2
)

// worldState holds the values that a save restores and a fresh world derives.
type worldState struct {
	name       string
	tick       uint64
	totalCells uint64

	simEdge   uint32
	lightEdge uint32
	wasteEdge uint32

	lightZ    float32
	lightRow  uint32
	noiseSeed int32
	restored  bool
}

// Simulation owns the agent directory, every arena and field, and the worker
// pools of one world. It is not safe for concurrent use; Runner serialises
// access.
type Simulation struct {
	name     string
	hashSeed uint64
	cfg      *config.Config

	renderMode config.RenderMode

	// Agent directory: handle -> cell arena slot.
	world *ecs.World
	slots *ecs.Map1[components.Slot]

	cells   *arena.Unordered[components.Cell]
	renders *arena.Ordered[components.RenderInstance]
	physics *systems.Physics
	light   *systems.LightField
	waste   *systems.WasteField
	machine *vm.Machine

	cellPool  *pool.Pool
	vmPool    *pool.Pool
	lightPool *pool.Pool
	wastePool *pool.Pool

	tick         uint64
	loadedTick   uint64
	loaded       bool
	totalCells   uint64
	illumination float32

	perf      *telemetry.PerfCollector
	collector *telemetry.Collector

	scratch   []vm.Command
	onPresent func(*Simulation)
}

// NewSimulation creates an empty world seeded by name. The first Step places
// the root cell.
func NewSimulation(cfg *config.Config, name string) *Simulation {
	seed := xxhash.Sum64String(name)
	return newSimulation(cfg, worldState{
		name:      name,
		simEdge:   cfg.Derived.SimGridEdge,
		lightEdge: cfg.Derived.LightGridEdge,
		wasteEdge: cfg.Derived.LightGridEdge,
		noiseSeed: int32(uint32(seed)),
	})
}

func newSimulation(cfg *config.Config, st worldState) *Simulation {
	threads := cfg.Derived.Threads
	radius := cfg.Derived.WorldRadius32
	mode, _ := config.ParseRenderMode(cfg.Simulation.RenderMode)

	s := &Simulation{
		name:       st.name,
		hashSeed:   xxhash.Sum64String(st.name),
		cfg:        cfg,
		renderMode: mode,
		tick:       st.tick,
		totalCells: st.totalCells,
		cellPool:   pool.New("cells", threads),
		vmPool:     pool.New("vm", threads),
		lightPool:  pool.New("light", threads),
		wastePool:  pool.New("waste", threads),
		perf:       telemetry.NewPerfCollector(cfg.Telemetry.PerfCollectorWindow),
		collector:  telemetry.NewCollector(cfg.Telemetry.StatsWindow),
	}
	if st.restored {
		s.loadedTick = st.tick
		s.loaded = true
		s.collector.Restart(st.tick)
	}

	s.world = ecs.NewWorld()
	s.slots = ecs.NewMap1[components.Slot](s.world)
	s.cells = arena.NewUnordered(cfg.World.MaxCells, s.rebindCell)
	s.renders = arena.NewOrdered(cfg.World.MaxCells, s.rebindRender)

	s.physics = systems.NewPhysics(radius, st.simEdge, cfg.World.MaxCells, cfg.World.Deterministic,
		s.cellPool, cfg.Pool.PhysicsReadAhead)
	s.physics.Jitter = s.jitter

	s.light = systems.NewLightField(radius, st.lightEdge, st.noiseSeed)
	if st.restored {
		s.light.SetState(st.lightZ, st.lightRow)
	}
	s.waste = systems.NewWasteField(radius, st.wasteEdge)
	s.machine = vm.NewMachine(s, threads)

	s.updateIllumination()
	return s
}

// Start launches the worker pools. A simulation that is never started runs
// every phase on the calling goroutine.
func (s *Simulation) Start() {
	s.cellPool.Start()
	s.vmPool.Start()
	s.lightPool.Start()
	s.wastePool.Start()
}

// Halt stops the worker pools.
func (s *Simulation) Halt() {
	s.cellPool.Halt()
	s.vmPool.Halt()
	s.lightPool.Halt()
	s.wastePool.Halt()
}

// rebindCell keeps the directory in step with the unordered cell arena.
func (s *Simulation) rebindCell(dst int, c *components.Cell) {
	s.slots.Get(c.Entity).Index = int32(dst)
}

// rebindRender points the owner of a shifted render instance at its new slot.
func (s *Simulation) rebindRender(dst int, r *components.RenderInstance) {
	if c, _ := s.Resolve(r.Owner()); c != nil {
		c.RenderIdx = int32(dst)
	}
}

// jitter draws a separation direction from the owner's random source.
func (s *Simulation) jitter(owner ecs.Entity) components.Vec2 {
	c, _ := s.Resolve(owner)
	if c == nil {
		return components.Vec2{X: 1}
	}
	return components.FromAngle(c.Uniform(0, 2*math.Pi))
}

func (s *Simulation) updateIllumination() {
	if !s.cfg.World.DynamicLights {
		s.illumination = 0
		return
	}
	t := float64(s.tick) / (LightPeriodTicks / math.Pi)
	s.illumination = float32((math.Sin(math.Pi/2*math.Cos(t)) + 1) / 2)
}

// FindCell implements vm.World.
func (s *Simulation) FindCell(pos components.Vec2, radius float32, exclude ecs.Entity) (ecs.Entity, bool) {
	return s.physics.FindCell(pos, radius, exclude)
}

// Resolve returns the cell and physics records of a live agent, or nils for a
// handle that has been destroyed.
func (s *Simulation) Resolve(e ecs.Entity) (*components.Cell, *components.PhysicsRecord) {
	if !s.world.Alive(e) {
		return nil, nil
	}
	c := s.cells.At(int(s.slots.Get(e).Index))
	return c, s.physics.At(c.PhysicsIdx)
}

// Illumination implements vm.World.
func (s *Simulation) Illumination() float32 { return s.illumination }

// RedLight implements vm.World.
func (s *Simulation) RedLight(p components.Vec2) uint8 { return s.light.Red(p) }

// Waste implements vm.World.
func (s *Simulation) Waste(p components.Vec2) uint32 { return s.waste.At(s.waste.Offset(p)) }

// Name returns the simulation name.
func (s *Simulation) Name() string { return s.name }

// Seed returns the hash of the simulation name.
func (s *Simulation) Seed() uint64 { return s.hashSeed }

// Tick returns the number of completed ticks.
func (s *Simulation) Tick() uint64 { return s.tick }

// NumCells returns the number of live cells.
func (s *Simulation) NumCells() int { return s.cells.Len() }

// TotalCells returns the number of cells ever created.
func (s *Simulation) TotalCells() uint64 { return s.totalCells }

// Cells returns the live cells. The slice aliases arena storage and is only
// valid until the next Step.
func (s *Simulation) Cells() []components.Cell { return s.cells.All() }

// PhysicsOf returns the physics record of c.
func (s *Simulation) PhysicsOf(c *components.Cell) *components.PhysicsRecord {
	return s.physics.At(c.PhysicsIdx)
}

// RenderInstances returns the render snapshot in insertion order.
func (s *Simulation) RenderInstances() []components.RenderInstance { return s.renders.All() }

// LightField returns the light field.
func (s *Simulation) LightField() *systems.LightField { return s.light }

// WasteField returns the waste field.
func (s *Simulation) WasteField() *systems.WasteField { return s.waste }

// Counters returns per-operation execution totals.
func (s *Simulation) Counters() vm.Counters { return s.machine.Counters() }

// Perf returns the phase timing collector.
func (s *Simulation) Perf() *telemetry.PerfCollector { return s.perf }

// Collector returns the window event collector.
func (s *Simulation) Collector() *telemetry.Collector { return s.collector }

// SetRenderMode selects how cells are coloured.
func (s *Simulation) SetRenderMode(m config.RenderMode) { s.renderMode = m }

// CellEnergy returns the energy held by all live cells.
func (s *Simulation) CellEnergy() uint64 {
	var sum uint64
	for i := range s.cells.All() {
		sum += uint64(s.cells.At(i).Energy)
	}
	return sum
}

// Census samples the live population for window statistics.
func (s *Simulation) Census() telemetry.Census {
	cells := s.cells.All()
	n := len(cells)
	c := telemetry.Census{
		Cells:         n,
		TotalCells:    s.totalCells,
		EnergyFactors: make([]float64, 0, n),
		GenomeLengths: make([]float64, 0, n),
		Generations:   make([]float64, 0, n),
		Radii:         make([]float64, 0, n),
		Green:         make([]float64, 0, n),
		Red:           make([]float64, 0, n),
		Blue:          make([]float64, 0, n),
		Waste:         float64(s.waste.Total()),
	}
	for i := range cells {
		cell := &cells[i]
		c.EnergyFactors = append(c.EnergyFactors, float64(cell.EnergyFactor()))
		c.GenomeLengths = append(c.GenomeLengths, float64(len(cell.VM.Bytecode)))
		c.Generations = append(c.Generations, float64(cell.Generation))
		c.Radii = append(c.Radii, float64(cell.Radius))
		c.Green = append(c.Green, float64(cell.Green))
		c.Red = append(c.Red, float64(cell.Red))
		c.Blue = append(c.Blue, float64(cell.Blue))
		c.CellEnergy += float64(cell.Energy)
	}
	return c
}
