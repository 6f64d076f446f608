// Package systems provides the physics engine and the global resource fields.
package systems

import (
	"slices"
	"sync"

	"github.com/pthm-cable/phylo/components"
)

// Morton interleaves the low 16 bits of x and y, x in the even bits.
func Morton(x, y uint32) uint32 {
	return spread(x) | spread(y)<<1
}

func spread(v uint32) uint32 {
	v &= 0x0000ffff
	v = (v | v<<8) & 0x00ff00ff
	v = (v | v<<4) & 0x0f0f0f0f
	v = (v | v<<2) & 0x33333333
	v = (v | v<<1) & 0x55555555
	return v
}

// bucket is one grid cell's membership list. The lock is held only while the
// list is modified; scans happen in phases where no bucket changes.
type bucket struct {
	mu    sync.Mutex
	slots []int32
}

// MortonGrid is a uniform grid over the square enclosing the world disc, with
// buckets addressed by Morton code. One extra trailing bucket collects records
// inserted since the last integration pass.
type MortonGrid struct {
	radius      float32
	edge        uint32
	cellSize    float32
	invCellSize float32
	buckets     []bucket
	newBucket   uint32
	sorted      bool
}

// NewMortonGrid creates a grid of edge x edge buckets covering [-radius, radius]².
// When sorted is set, bucket lists are kept ordered by slot and removal shifts
// entries down, so scan order does not depend on which worker rebucketed first.
func NewMortonGrid(radius float32, edge uint32, sorted bool) *MortonGrid {
	if edge == 0 {
		edge = 1
	}
	span := Morton(edge-1, edge-1) + 1
	cellSize := radius * 2 / float32(edge)
	g := &MortonGrid{
		radius:      radius,
		edge:        edge,
		cellSize:    cellSize,
		invCellSize: 1 / cellSize,
		buckets:     make([]bucket, span+1),
		newBucket:   span,
		sorted:      sorted,
	}
	return g
}

// Edge returns the number of buckets per axis.
func (g *MortonGrid) Edge() uint32 { return g.edge }

// CellSize returns the side length of one bucket.
func (g *MortonGrid) CellSize() float32 { return g.cellSize }

// NewBucket returns the index of the staging bucket for fresh records.
func (g *MortonGrid) NewBucket() uint32 { return g.newBucket }

// Coords returns the clamped bucket coordinates of p.
func (g *MortonGrid) Coords(p components.Vec2) (x, y uint32) {
	return g.coord(p.X), g.coord(p.Y)
}

func (g *MortonGrid) coord(v float32) uint32 {
	c := (v + g.radius) * g.invCellSize
	if c <= 0 || c != c {
		return 0
	}
	if c >= float32(g.edge-1) {
		return g.edge - 1
	}
	return uint32(c)
}

// lowerBound returns the world coordinate of the lower edge of bucket column/row c.
func (g *MortonGrid) lowerBound(c uint32) float32 {
	return float32(c)*g.cellSize - g.radius
}

// BucketOf returns the Morton bucket containing p.
func (g *MortonGrid) BucketOf(p components.Vec2) uint32 {
	x, y := g.Coords(p)
	return Morton(x, y)
}

// Slots returns the membership list of bucket b. The slice must not be retained
// across a phase that rebuckets.
func (g *MortonGrid) Slots(b uint32) []int32 {
	return g.buckets[b].slots
}

func (g *MortonGrid) add(b uint32, slot int32) {
	bk := &g.buckets[b]
	bk.mu.Lock()
	if g.sorted {
		i, _ := slices.BinarySearch(bk.slots, slot)
		bk.slots = slices.Insert(bk.slots, i, slot)
	} else {
		bk.slots = append(bk.slots, slot)
	}
	bk.mu.Unlock()
}

func (g *MortonGrid) remove(b uint32, slot int32) {
	bk := &g.buckets[b]
	bk.mu.Lock()
	defer bk.mu.Unlock()

	i := slices.Index(bk.slots, slot)
	if i < 0 {
		panic("physics: record missing from its bucket")
	}
	if g.sorted {
		bk.slots = slices.Delete(bk.slots, i, i+1)
		return
	}
	last := len(bk.slots) - 1
	bk.slots[i] = bk.slots[last]
	bk.slots = bk.slots[:last]
}

// Clear empties every bucket.
func (g *MortonGrid) Clear() {
	for i := range g.buckets {
		g.buckets[i].slots = g.buckets[i].slots[:0]
	}
}
