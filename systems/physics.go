package systems

import (
	"math"

	"github.com/mlange-42/ark/ecs"

	"github.com/pthm-cable/phylo/arena"
	"github.com/pthm-cable/phylo/components"
	"github.com/pthm-cable/phylo/pool"
)

// Physics constants.
const (
	velocityDamping = 0.9
	separationForce = 10.0
	elasticity      = 0.1
	moveScale       = 0.001
	minSpeedSq      = 0.00000001
)

// JitterFunc returns a random unit vector drawn from the owner's random source.
// It is called from worker goroutines, each owner from at most one at a time.
type JitterFunc func(owner ecs.Entity) components.Vec2

// Physics owns the physics records and the spatial grid. Records live in a
// sparse arena so slot indices stored in buckets stay valid for the record's
// lifetime.
type Physics struct {
	grid      *MortonGrid
	records   *arena.Sparse[components.PhysicsRecord]
	pool      *pool.Pool
	readAhead int
	radius    float32

	// Jitter separates records whose centres coincide.
	Jitter JitterFunc
}

// NewPhysics creates a physics engine for a disc of the given radius.
func NewPhysics(radius float32, edge uint32, capacity int, deterministic bool, p *pool.Pool, readAhead int) *Physics {
	return &Physics{
		grid:      NewMortonGrid(radius, edge, deterministic),
		records:   arena.NewSparse[components.PhysicsRecord](capacity),
		pool:      p,
		readAhead: readAhead,
		radius:    radius,
		Jitter:    func(ecs.Entity) components.Vec2 { return components.Vec2{X: 1} },
	}
}

// Grid returns the spatial grid.
func (ph *Physics) Grid() *MortonGrid { return ph.grid }

// Len returns the number of live records.
func (ph *Physics) Len() int { return ph.records.Len() }

// At returns the record in slot i.
func (ph *Physics) At(i int32) *components.PhysicsRecord { return ph.records.At(i) }

// Valid reports whether slot i holds a live record.
func (ph *Physics) Valid(i int32) bool { return ph.records.Valid(i) }

// Insert stores rec and stages it in the new-record bucket until the next
// integration pass places it.
func (ph *Physics) Insert(rec components.PhysicsRecord) int32 {
	rec.Bucket = ph.grid.newBucket
	slot := ph.records.Insert(rec)
	ph.grid.add(rec.Bucket, slot)
	return slot
}

// Remove deletes the record in slot i.
func (ph *Physics) Remove(i int32) {
	rec := ph.records.At(i)
	ph.grid.remove(rec.Bucket, i)
	ph.records.Remove(i)
}

// Reset drops every record.
func (ph *Physics) Reset() {
	ph.records.Reset()
	ph.grid.Clear()
}

// Populate rebuckets every valid record by its current position and refreshes
// its shadow state. Used after records are restored from a save.
func (ph *Physics) Populate() {
	ph.grid.Clear()
	for i := 0; i < ph.records.Span(); i++ {
		slot := int32(i)
		if !ph.records.Valid(slot) {
			continue
		}
		rec := ph.records.At(slot)
		rec.Bucket = ph.grid.BucketOf(rec.Position)
		ph.grid.add(rec.Bucket, slot)
		rec.ShadowPosition = rec.Position
		rec.ShadowVelocity = rec.Velocity
		rec.ShadowRadius = rec.Radius
	}
}

// Update runs the integrate-and-rebucket pass followed by the collision pass.
func (ph *Physics) Update() {
	span := ph.records.Span()
	ph.pool.Run(span, ph.readAhead, ph.integrate)
	ph.pool.Run(span, ph.readAhead, ph.resolve)
}

// integrate advances one record: velocity cap, position, disc clamp,
// rebucket, damping, and shadow snapshot.
func (ph *Physics) integrate(_ int, i int) {
	slot := int32(i)
	if !ph.records.Valid(slot) {
		return
	}
	rec := ph.records.At(slot)

	r := rec.Radius
	r3 := r * r * r

	// Cap speed so a record cannot cross more than ten radii per tick.
	velCap := r * 10 * r3 / moveScale
	if speed := rec.Velocity.Len(); speed > velCap {
		rec.Velocity = rec.Velocity.Scale(velCap / speed)
	}

	rec.Position = rec.Position.Add(rec.Velocity.Scale(moveScale / r3))
	rec.Position = ph.clamp(rec.Position, r)
	if rec.Position.HasNaN() {
		panic("physics: NaN position")
	}

	if b := ph.grid.BucketOf(rec.Position); b != rec.Bucket {
		ph.grid.remove(rec.Bucket, slot)
		ph.grid.add(b, slot)
		rec.Bucket = b
	}

	rec.Velocity = rec.Velocity.Scale(velocityDamping)

	rec.ShadowRadius = r
	rec.ShadowPosition = rec.Position
	rec.ShadowVelocity = rec.Velocity
}

// clamp keeps a disc of radius r inside the world.
func (ph *Physics) clamp(p components.Vec2, r float32) components.Vec2 {
	limit := ph.radius - r
	if l := p.Len(); l > limit {
		return p.Scale(limit / l)
	}
	return p
}

// neighbours lists the buckets around (x, y) whose extent overlaps
// [p-r, p+r], in scan order. The own bucket comes first.
func (ph *Physics) neighbours(dst []uint32, p components.Vec2, r float32) []uint32 {
	g := ph.grid
	x, y := g.Coords(p)
	last := g.edge - 1

	left := x > 0 && p.X-r < g.lowerBound(x)
	right := x < last && p.X+r > g.lowerBound(x+1)
	down := y > 0 && p.Y-r < g.lowerBound(y)
	up := y < last && p.Y+r > g.lowerBound(y+1)

	dst = append(dst, Morton(x, y))
	if left {
		dst = append(dst, Morton(x-1, y))
		if down {
			dst = append(dst, Morton(x-1, y-1))
		}
		if up {
			dst = append(dst, Morton(x-1, y+1))
		}
	}
	if right {
		dst = append(dst, Morton(x+1, y))
		if down {
			dst = append(dst, Morton(x+1, y-1))
		}
		if up {
			dst = append(dst, Morton(x+1, y+1))
		}
	}
	if down {
		dst = append(dst, Morton(x, y-1))
	}
	if up {
		dst = append(dst, Morton(x, y+1))
	}
	return dst
}

// resolve accumulates separation impulses and inelastic corrections for one
// record against every overlapping neighbour. Only the record's own velocity
// and touch counter are written.
func (ph *Physics) resolve(_ int, i int) {
	slot := int32(i)
	if !ph.records.Valid(slot) {
		return
	}
	rec := ph.records.At(slot)

	p := rec.ShadowPosition
	r := rec.ShadowRadius
	ownVel := rec.Velocity
	ownSpeedNZ := ownVel.LenSq() > minSpeedSq

	var scratch [9]uint32
	var velocity components.Vec2
	var touched uint32

	for _, b := range ph.neighbours(scratch[:0], p, r) {
		for _, other := range ph.grid.Slots(b) {
			if other == slot {
				continue
			}
			o := ph.records.At(other)

			sub := p.Sub(o.ShadowPosition)
			distSq := sub.LenSq()
			radSq := r + o.ShadowRadius
			radSq *= radSq
			if distSq >= radSq {
				continue
			}

			overlap := float32(math.Sqrt(float64(1 - distSq/radSq)))
			dirScale := overlap * separationForce * r

			subNZ := distSq != 0
			subN := sub.Normalized()
			if subNZ {
				velocity = velocity.Add(subN.Scale(dirScale))
			} else {
				velocity = velocity.Add(ph.Jitter(rec.Owner).Scale(dirScale))
			}

			if overlap > 0.5 {
				touched++
			}

			if !subNZ {
				continue
			}

			massRatio := r / o.ShadowRadius
			invMassRatio := o.ShadowRadius / r
			otherVel := o.ShadowVelocity

			if otherVel.LenSq() > minSpeedSq && otherVel.Normalized().Dot(subN) > 0 {
				velocity = velocity.Add(inelastic(subN, otherVel.Sub(ownVel), massRatio))
			}
			if ownSpeedNZ && ownVel.Normalized().Dot(subN.Scale(-1)) > 0 {
				velocity = velocity.Add(inelastic(subN, ownVel.Sub(otherVel), massRatio).Scale(invMassRatio))
			}
		}
	}

	rec.TouchedThisFrame = touched
	rec.Velocity = rec.Velocity.Add(velocity)
}

// inelastic returns the velocity change that pushes along normal by a tenth
// of the relative speed, limited per axis by the momentum available.
func inelastic(normal, rel components.Vec2, massRatio float32) components.Vec2 {
	target := normal.Scale(rel.Len() * elasticity)
	avail := rel.Scale(massRatio)
	if target.X*avail.X < 0 {
		avail.X = 0
	}
	if target.Y*avail.Y < 0 {
		avail.Y = 0
	}
	return components.Vec2{
		X: signOf(target.X) * min(abs32(target.X), abs32(avail.X)),
		Y: signOf(target.Y) * min(abs32(target.Y), abs32(avail.Y)),
	}
}

func signOf(v float32) float32 {
	if v >= 0 {
		return 1
	}
	return -1
}

func abs32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}

// FindCell returns the owner of the first record overlapping the circle at
// pos, skipping exclude. It reads shadow state only.
func (ph *Physics) FindCell(pos components.Vec2, radius float32, exclude ecs.Entity) (ecs.Entity, bool) {
	pos = ph.clamp(pos, radius)

	var scratch [9]uint32
	for _, b := range ph.neighbours(scratch[:0], pos, radius) {
		for _, slot := range ph.grid.Slots(b) {
			o := ph.records.At(slot)
			if o.Owner == exclude {
				continue
			}
			rs := radius + o.ShadowRadius
			if pos.DistSq(o.ShadowPosition) < rs*rs {
				return o.Owner, true
			}
		}
	}
	return ecs.Entity{}, false
}
