// Package components defines the per-cell records stored in the simulation arenas.
package components

import (
	"math"
	"math/rand/v2"

	"github.com/mlange-42/ark/ecs"
)

// Physical and genome limits.
const (
	MinCellSize        = 1.0
	MaxCellSize        = 2.5
	CapacityMultiplier = 150.0
	GrowthRate         = 0.005
	MaxBytecodeSize    = 30000
	NumRegisters       = 32

	SelectBrightnessDecay = 0.003
)

// Slot is the ark component that maps an agent handle to its index in the cell arena.
type Slot struct {
	Index int32
}

// Cell is one agent: identity, biology, and the indices of its physics and render records.
// The VM record is embedded since it has no consumer other than its own cell.
type Cell struct {
	Entity     ecs.Entity
	ID         uint64
	ParentID   uint64 // 0 for seed cells; never dereferenced
	Generation uint32
	Children   uint32

	Radius         float32
	Volume         float32
	SuperVolume    float32
	Area           float32
	InvVolume      float32
	InvSuperVolume float32
	InvArea        float32
	Capacity       uint64
	Energy         Energy

	Integrity float32
	Armor     float32

	// Pigments. The update rule lets at most one family dominate.
	Green, Red, Blue float32

	GrowthPoint float32
	MoveState   bool
	MoveSpeed   float32

	Touched        uint32
	Attacked       uint32
	AttackedRemote uint32 // written atomically by attack notifications
	TickCollided   bool
	Alive          bool
	KilledBy       uint64

	Hash             [4]float32 // HSV of the bytecode hash
	Dye              [4]float32 // HSV, inherited with drift
	SelectBrightness float32

	Src  *rand.PCG
	Rand *rand.Rand

	PhysicsIdx int32
	RenderIdx  int32

	VM VMState
}

// NewRandom derives a per-cell PCG source from seeder. Seeds are never zero.
func NewRandom(seeder *rand.Rand) (*rand.PCG, *rand.Rand) {
	s1, s2 := seeder.Uint64(), seeder.Uint64()
	for s1 == 0 {
		s1 = seeder.Uint64()
	}
	for s2 == 0 {
		s2 = seeder.Uint64()
	}
	src := rand.NewPCG(s1, s2)
	return src, rand.New(src)
}

// SetRadius updates the cached volume terms and capacity, clamping energy to
// the new capacity. phys, when non-nil, receives the same radius.
func (c *Cell) SetRadius(r float32, phys *PhysicsRecord) {
	c.Radius = r
	c.Area = r * r
	c.Volume = c.Area * r
	c.SuperVolume = c.Volume * r
	c.InvArea = 1 / c.Area
	c.InvVolume = 1 / c.Volume
	c.InvSuperVolume = 1 / c.SuperVolume
	c.Capacity = CapacityFor(c.Volume)
	if uint64(c.Energy) > c.Capacity {
		c.Energy = Energy(c.Capacity)
	}
	if phys != nil {
		phys.Radius = r
	}
}

// CapacityFor returns the energy capacity of a cell with the given volume.
func CapacityFor(volume float32) uint64 {
	base := uint64(math.Round(float64(volume) * 200000))
	return uint64(math.Round(float64(base) * CapacityMultiplier))
}

// EnergyFactor returns energy as a fraction of capacity.
func (c *Cell) EnergyFactor() float32 {
	if c.Capacity == 0 {
		return 0
	}
	return float32(float64(c.Energy) / float64(c.Capacity))
}

// Uniform returns a float in [lo, hi) from the cell's random source.
func (c *Cell) Uniform(lo, hi float32) float32 {
	return lo + c.Rand.Float32()*(hi-lo)
}

// Roll returns a float in [0, 1).
func (c *Cell) Roll() float32 {
	return c.Rand.Float32()
}

// IntN returns an int in [0, n). n must be positive.
func (c *Cell) IntN(n int) int {
	return c.Rand.IntN(n)
}
