package systems

import (
	"math"
	"sync/atomic"

	"github.com/aquilax/go-perlin"

	"github.com/pthm-cable/phylo/components"
	"github.com/pthm-cable/phylo/pool"
)

// Light field parameters.
const (
	lightNoiseScale   = 0.01
	lightInitialZ     = -1000000.0
	flashlightRadius  = 100.0
	flashlightRadSq   = flashlightRadius * flashlightRadius
	perlinAlpha       = 2.0
	perlinBeta        = 2.0
	perlinOctaves     = 3
	lightValueScale   = 255.5
	maxLightByteValue = 255
)

// fieldGrid maps world positions to row-major cells of a square grid
// covering [-radius, radius]².
type fieldGrid struct {
	edge     uint32
	radius   float32
	cellSize float32
	inv      float32
}

func newFieldGrid(radius float32, edge uint32) fieldGrid {
	if edge == 0 {
		edge = 1
	}
	cellSize := radius * 2 / float32(edge)
	return fieldGrid{edge: edge, radius: radius, cellSize: cellSize, inv: 1 / cellSize}
}

func (g fieldGrid) axis(v float32) uint32 {
	c := (v + g.radius) * g.inv
	if c <= 0 || c != c {
		return 0
	}
	if c >= float32(g.edge-1) {
		return g.edge - 1
	}
	return uint32(c)
}

// Offset returns the row-major index of the cell containing p.
func (g fieldGrid) Offset(p components.Vec2) uint32 {
	return g.axis(p.Y)*g.edge + g.axis(p.X)
}

// Centre returns the world position of the centre of cell i.
func (g fieldGrid) Centre(i uint32) components.Vec2 {
	fe := float32(g.edge)
	half := g.cellSize * 0.5
	return components.Vec2{
		X: (float32(i%g.edge)/fe*2-1)*g.radius + half,
		Y: (float32(i/g.edge)/fe*2-1)*g.radius + half,
	}
}

// Edge returns the number of cells per axis.
func (g fieldGrid) Edge() uint32 { return g.edge }

// LightField is the 8-bit light intensity grid sampled from 3D Perlin noise.
// In dynamic mode one row is regenerated per tick and the noise z coordinate
// advances each time the last row is reached.
type LightField struct {
	fieldGrid

	values []uint8
	noise  *perlin.Perlin
	seed   int32
	z      float64
	row    uint32

	flash   components.Vec2
	flashOn bool
}

// NewLightField creates and fully computes a light field.
func NewLightField(radius float32, edge uint32, seed int32) *LightField {
	lf := &LightField{
		fieldGrid: newFieldGrid(radius, edge),
		seed:      seed,
		z:         lightInitialZ,
	}
	lf.values = make([]uint8, lf.edge*lf.edge)
	lf.noise = perlin.NewPerlin(perlinAlpha, perlinBeta, perlinOctaves, int64(seed))
	lf.Rebuild(nil, 0)
	return lf
}

// Seed returns the noise seed.
func (lf *LightField) Seed() int32 { return lf.seed }

// Z returns the current noise depth.
func (lf *LightField) Z() float32 { return float32(lf.z) }

// Row returns the next row the dynamic update will process.
func (lf *LightField) Row() uint32 { return lf.row }

// Bytes returns the intensity grid. The slice aliases field storage.
func (lf *LightField) Bytes() []uint8 { return lf.values }

// Red returns the light intensity at p.
func (lf *LightField) Red(p components.Vec2) uint8 {
	return lf.values[lf.Offset(p)]
}

// At returns the intensity of cell i.
func (lf *LightField) At(i uint32) uint8 { return lf.values[i] }

// SetState restores the noise depth and row cursor and recomputes the grid.
func (lf *LightField) SetState(z float32, row uint32) {
	lf.z = float64(z)
	lf.row = row % lf.edge
	lf.Rebuild(nil, 0)
}

// Rebuild recomputes every cell. p may be nil to run serially.
func (lf *LightField) Rebuild(p *pool.Pool, readAhead int) {
	n := int(lf.edge * lf.edge)
	if p == nil {
		for i := 0; i < n; i++ {
			lf.compute(uint32(i))
		}
		return
	}
	p.Run(n, readAhead, func(_ int, i int) { lf.compute(uint32(i)) })
}

// Step regenerates the current row and advances the cursor.
func (lf *LightField) Step(p *pool.Pool, readAhead int, changeRate float32) {
	base := lf.row * lf.edge
	p.Run(int(lf.edge), readAhead, func(_ int, i int) { lf.compute(base + uint32(i)) })

	lf.row = (lf.row + 1) % lf.edge
	if lf.row == 0 {
		lf.z += float64(changeRate) * float64(lf.edge)
	}
}

// Flash brightens the disc around pos. The brightening persists until the
// affected cells are next regenerated. Passing on=false removes it.
func (lf *LightField) Flash(pos components.Vec2, on bool) {
	prev, prevOn := lf.flash, lf.flashOn
	lf.flash, lf.flashOn = pos, on
	if prevOn {
		lf.recomputeAround(prev)
	}
	if on {
		lf.recomputeAround(pos)
	}
}

func (lf *LightField) recomputeAround(pos components.Vec2) {
	lo := components.Vec2{X: pos.X - flashlightRadius, Y: pos.Y - flashlightRadius}
	hi := components.Vec2{X: pos.X + flashlightRadius, Y: pos.Y + flashlightRadius}
	for y := lf.axis(lo.Y); y <= lf.axis(hi.Y); y++ {
		for x := lf.axis(lo.X); x <= lf.axis(hi.X); x++ {
			lf.compute(y*lf.edge + x)
		}
	}
}

func (lf *LightField) compute(i uint32) {
	c := lf.Centre(i)
	n := lf.noise.Noise3D(float64(c.X)*lightNoiseScale, float64(c.Y)*lightNoiseScale, lf.z)
	value := math.Sqrt(clamp01((n + 1) * 0.5))

	if lf.flashOn {
		if d := float64(c.DistSq(lf.flash)); d < flashlightRadSq {
			value = clamp01(value + 1 - d/flashlightRadSq)
		}
	}

	lf.values[i] = uint8(min(value*lightValueScale, maxLightByteValue))
}

func clamp01(v float64) float64 {
	return max(0, min(1, v))
}

// WasteField holds the waste quantity per cell plus an accumulator of amounts
// eaten during the current tick. Eating is lock-free; the accumulator is
// subtracted from the field once per tick by Drain.
type WasteField struct {
	fieldGrid

	values []uint32
	eaten  []atomic.Uint32
}

// NewWasteField creates an empty waste field.
func NewWasteField(radius float32, edge uint32) *WasteField {
	wf := &WasteField{fieldGrid: newFieldGrid(radius, edge)}
	n := wf.edge * wf.edge
	wf.values = make([]uint32, n)
	wf.eaten = make([]atomic.Uint32, n)
	return wf
}

// Values returns the waste grid. The slice aliases field storage.
func (wf *WasteField) Values() []uint32 { return wf.values }

// At returns the waste in cell i.
func (wf *WasteField) At(i uint32) uint32 { return wf.values[i] }

// Deposit adds amount to cell i, saturating at MaxUint32. Not safe for
// concurrent use.
func (wf *WasteField) Deposit(i uint32, amount uint64) {
	wf.values[i] = uint32(min(uint64(wf.values[i])+amount, math.MaxUint32))
}

// Eat records amount as consumed from cell i. Safe for concurrent use.
func (wf *WasteField) Eat(i uint32, amount uint32) {
	wf.eaten[i].Add(amount)
}

// Drain subtracts the amounts eaten this tick and resets the accumulator.
func (wf *WasteField) Drain(p *pool.Pool, readAhead int) {
	p.Run(len(wf.values), readAhead, func(_ int, i int) {
		acc := wf.eaten[i].Swap(0)
		wf.values[i] -= min(acc, wf.values[i])
	})
}

// Clear removes all waste.
func (wf *WasteField) Clear() {
	clear(wf.values)
	for i := range wf.eaten {
		wf.eaten[i].Store(0)
	}
}

// Total returns the sum of all waste.
func (wf *WasteField) Total() uint64 {
	var sum uint64
	for _, v := range wf.values {
		sum += uint64(v)
	}
	return sum
}
