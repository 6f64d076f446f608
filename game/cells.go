package game

import (
	"log/slog"
	"math"
	"math/rand/v2"

	"github.com/mlange-42/ark/ecs"

	"github.com/pthm-cable/phylo/components"
	"github.com/pthm-cable/phylo/vm"
)

// newCell creates an agent at pos: a directory entry plus cell, physics, and
// render records. The cell starts alive at minimum size with a full store and
// no genome; callers install one.
func (s *Simulation) newCell(seeder *rand.Rand, pos components.Vec2) *components.Cell {
	src, r := components.NewRandom(seeder)
	c := components.Cell{
		ID:        r.Uint64(),
		Alive:     true,
		Src:       src,
		Rand:      r,
		Integrity: 1,
		Armor:     1,
		Red:       1,
		Dye:       [4]float32{0, 1, 1, 0},
	}

	phys := components.PhysicsRecord{
		Position:       pos,
		ShadowPosition: pos,
		Direction:      components.Vec2{X: 1},
	}
	c.SetRadius(components.MinCellSize, &phys)
	phys.ShadowRadius = phys.Radius
	c.Energy = components.Energy(c.Capacity)

	c.Entity = s.slots.NewEntity(&components.Slot{Index: int32(s.cells.Len())})
	phys.Owner = c.Entity
	c.PhysicsIdx = s.physics.Insert(phys)

	ri := components.RenderInstance{
		Color1: [4]float32{1, 1, 1, 1},
		Color2: [4]float32{1, 0, 0, 1},
		Radius: c.Radius,
	}
	ri.Transform[0][0] = 1
	ri.Transform[1][1] = 1
	ri.Transform[2][2] = 1
	ri.Transform[3] = [4]float32{pos.X, pos.Y, 0, 1}
	ri.SetOwner(c.Entity)
	c.RenderIdx = int32(s.renders.Insert(ri))

	idx := s.cells.Insert(c)
	s.totalCells++
	return s.cells.At(idx)
}

// spawnRoot places a seed cell at the brightest light cell of the central
// window. The seeder mixes the name hash with the running cell count so a
// re-seed after extinction does not repeat the first root.
func (s *Simulation) spawnRoot() *components.Cell {
	seeder := rand.New(rand.NewPCG(s.hashSeed, s.totalCells))
	pos := s.light.Centre(s.spawnOffset())

	c := s.newCell(seeder, pos)
	vm.SetBytecode(c, vm.SeedGenome())
	s.collector.RecordSpawn()

	slog.Debug("spawned root cell", "tick", s.tick, "id", c.ID, "x", pos.X, "y", pos.Y)
	return c
}

// spawnOffset returns the light grid index with the highest intensity inside
// the central window. Ties keep the first cell in row-major order.
func (s *Simulation) spawnOffset() uint32 {
	edge := s.light.Edge()
	start := uint32(math.Round(float64(edge) * spawnWindowStart))
	end := min(start+uint32(math.Round(float64(edge)*spawnWindowSize)), edge-1)

	best := start*edge + start
	bestValue := s.light.At(best)
	for y := start; y <= end; y++ {
		for x := start; x <= end; x++ {
			i := y*edge + x
			if v := s.light.At(i); v > bestValue {
				best, bestValue = i, v
			}
		}
	}
	return best
}

// kill marks c dead, returns its energy plus a share of its body mass to the
// waste field at its position, and queues its removal for the end of the
// tick. Killing a dead cell does nothing.
func (s *Simulation) kill(c *components.Cell) {
	if !c.Alive {
		return
	}
	c.Alive = false

	phys := s.physics.At(c.PhysicsIdx)
	body := uint64(math.Round(float64(c.Capacity) * deathWasteFraction))
	s.waste.Deposit(s.waste.Offset(phys.Position), uint64(c.Energy)+body)
	c.Energy = 0

	s.collector.RecordDeath(true)
	s.machine.Queue(0).Destroy(c)
}

// destroy removes every record of the agent e. Stale handles are ignored, so
// a cell queued for destruction twice is removed once.
func (s *Simulation) destroy(e ecs.Entity) {
	if !s.world.Alive(e) {
		return
	}
	slot := int(s.slots.Get(e).Index)
	c := s.cells.At(slot)
	if c.Alive {
		// Armor loss: the cell never went through kill.
		s.collector.RecordDeath(false)
	}

	// Render first: its rebind resolves owners through the cell arena, which
	// must still hold c at slot.
	s.renders.Remove(int(c.RenderIdx))
	s.physics.Remove(c.PhysicsIdx)
	s.cells.Remove(slot)
	s.world.RemoveEntity(e)
}
