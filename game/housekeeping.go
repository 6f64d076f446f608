package game

import (
	"math"

	"github.com/pthm-cable/phylo/components"
	"github.com/pthm-cable/phylo/config"
	"github.com/pthm-cable/phylo/vm"
)

// Base pigment colours, linearised from sRGB.
var (
	plantGreen = linear(0.46184, 0.661448, 0.0704501)
	plantRed   = linear(0.896282, 0.168297, 0.313112)
	plantBlue  = linear(0.195695, 0.289628, 0.696673)
)

func linear(r, g, b float64) [3]float32 {
	return [3]float32{
		float32(math.Pow(r, 2.2)),
		float32(math.Pow(g, 2.2)),
		float32(math.Pow(b, 2.2)),
	}
}

// housekeep is the per-cell pass that runs after physics: it copies physical
// state into the render record, applies movement and growth, collects light
// and waste energy, charges crowding, and repaints the cell.
func (s *Simulation) housekeep(worker, i int) {
	o := config.CurrentOptions()
	c := s.cells.At(i)
	phys := s.physics.At(c.PhysicsIdx)
	ri := s.renders.At(int(c.RenderIdx))

	dir := phys.Direction
	ri.Radius = phys.Radius
	ri.Transform[0] = [4]float32{-dir.X, -dir.Y, 0, 0}
	ri.Transform[1] = [4]float32{-dir.Y, dir.X, 0, 0}
	ri.Transform[3] = [4]float32{phys.Position.X, phys.Position.Y, 0, 1}

	q := s.machine.Queue(worker)
	if c.Alive {
		s.metabolise(q, c, phys, o)
	} else {
		// Kills queue their own destroy; this catches cells restored dead.
		q.Destroy(c)
	}
	s.paint(c, ri, o)
}

// metabolise applies one tick of biology to a live cell.
func (s *Simulation) metabolise(q *vm.Queue, c *components.Cell, phys *components.PhysicsRecord, o *config.Options) {
	if c.MoveState {
		cost := uint64(float32(o.BaseMoveCost)*c.MoveSpeed + 1 + 0.5)
		if cost <= uint64(c.Energy) {
			phys.Velocity = phys.Velocity.Add(phys.Direction.Scale(c.MoveSpeed * moveImpulse))
		}
		c.Energy = c.Energy.Sub(cost)
	}

	// Growth stalls while the cell is being pressed on from many sides.
	if c.EnergyFactor() > c.GrowthPoint && phys.TouchedThisFrame <= growPoint {
		const volumeGrowth = components.GrowthRate * growthRateMultiplier
		newR := min(float32(math.Cbrt(float64(c.Volume)*(1+volumeGrowth))), components.MaxCellSize)
		if phys.Radius != newR {
			cost := max(uint64(math.Round(volumeGrowth/growthRateMultiplier*float64(o.BaseGrowCost))), 1)
			if cost < uint64(c.Energy) {
				c.SetRadius(newR, phys)
				c.Energy = c.Energy.Sub(cost)
			}
		}
	}

	if c.Energy == 0 {
		q.Kill(c)
		return
	}
	if c.Armor == 0 {
		q.Destroy(c)
		return
	}
	c.Armor = min(max(c.Armor+o.ArmorRegrowthRate, 0), 1)

	green, red, blue := effectivePigments(c)

	wasteIdx := s.waste.Offset(phys.Position)
	waste := uint64(s.waste.At(wasteIdx))
	redLight := float32(s.light.Red(phys.Position)) / 255

	areaMult := c.Area * o.BaseEnergyMultiplier
	gain := uint64(math.Round(float64(green * areaMult * s.illumination * greenGain)))
	gain += uint64(math.Round(float64(red * areaMult * redLight)))
	gain -= min(gain, waste/wasteLossDivisor)

	capacity := c.Capacity
	free := capacity - min(capacity, uint64(c.Energy))
	gain = min(free+1, gain)
	sum := uint64(c.Energy) + gain

	if waste != 0 && sum < capacity && blue > 0 {
		eat := min(maxWasteEat, uint64(float64(waste)*float64(blue)+0.5), capacity-sum)
		if eat != 0 {
			s.waste.Eat(wasteIdx, uint32(eat))
			sum += eat / 2
		}
	}

	if sum != 0 {
		sum-- // basal respiration
	}
	c.Energy = components.Energy(sum)

	if touched := phys.TouchedThisFrame; touched != 0 {
		penalty := uint64(float32(capacity) * (float32(touched) / 1000 * o.CrowdingPenalty))
		c.Energy = c.Energy.Sub(penalty)
		c.TickCollided = true
	} else {
		c.TickCollided = false
	}

	c.Touched += phys.TouchedThisFrame
	c.Attacked = c.AttackedRemote

	if c.Energy == 0 {
		q.Kill(c)
		return
	}
	vm.LiveMutate(c, o)
}

// effectivePigments clips the pigments to non-negative values and suppresses
// the families a dominant pigment excludes. Blue shuts out the others; green
// or red flatten any residual weaker pigments toward zero.
func effectivePigments(c *components.Cell) (green, red, blue float32) {
	green, red, blue = max(c.Green, 0), max(c.Red, 0), max(c.Blue, 0)
	if blue != 0 {
		green, red = 0, 0
	}
	if green != 0 {
		red, blue = selfPow(red), selfPow(blue)
	}
	if red != 0 {
		green, blue = selfPow(green), selfPow(blue)
	}
	return green, red, blue
}

// selfPow returns x^(1/x), and 0 for 0.
func selfPow(x float32) float32 {
	if x == 0 {
		return 0
	}
	return float32(math.Pow(float64(x), 1/float64(x)))
}

// paint refreshes the colour fields of a render record.
func (s *Simulation) paint(c *components.Cell, ri *components.RenderInstance, o *config.Options) {
	health := float32(0)
	if c.Capacity != 0 {
		health = float32(math.Sqrt(float64(c.Energy) / float64(c.Capacity)))
	}

	var base [4]float32
	for k := range 3 {
		base[k] = plantGreen[k]*c.Green + plantRed[k]*c.Red + plantBlue[k]*c.Blue
	}

	ri.Color2 = [4]float32{
		(1 - base[0]) * 2,
		(1 - base[1]) * 2,
		(1 - base[2]) * 2,
		float32(math.Sqrt(float64(health))),
	}

	ri.ArmorNucleus[0] = c.Armor
	genome := min(float32(len(c.VM.Bytecode))/float32(o.BaselineBytecodeSize*5), 1)
	ri.ArmorNucleus[1] = lerp(0.75, 1.5, genome)

	switch s.renderMode {
	case config.RenderHashCode:
		base = hueToRGB(c.Hash)
	case config.RenderDye:
		base = hueToRGB(c.Dye)
	}
	base[3] = c.Integrity

	for k := range base {
		base[k] += c.SelectBrightness
	}
	c.SelectBrightness = max(c.SelectBrightness-components.SelectBrightnessDecay, 0)
	ri.Color1 = base
}

// paintAll repaints every cell without advancing biology. Used while paused so
// render mode changes and selection highlights still show.
func (s *Simulation) paintAll() {
	o := config.CurrentOptions()
	for i := range s.cells.Len() {
		c := s.cells.At(i)
		s.paint(c, s.renders.At(int(c.RenderIdx)), o)
	}
}

func lerp(a, b, t float32) float32 {
	return a*(1-t) + b*t
}

// hueToRGB converts an HSV colour with hue in [0,6] and saturation and value
// in [0,1] to RGB. A hue of -1 is grey at the given value.
func hueToRGB(hsv [4]float32) [4]float32 {
	h, sat, v := hsv[0], hsv[1], hsv[2]
	if h == -1 {
		return [4]float32{v, v, v, 1}
	}

	i := int(math.Floor(float64(h)))
	f := h - float32(i)
	if i%2 == 0 {
		f = 1 - f
	}
	m := v * (1 - sat)
	n := v * (1 - sat*f)

	switch i {
	case 0, 6:
		return [4]float32{v, n, m, 1}
	case 1:
		return [4]float32{n, v, m, 1}
	case 2:
		return [4]float32{m, v, n, 1}
	case 3:
		return [4]float32{m, n, v, 1}
	case 4:
		return [4]float32{n, m, v, 1}
	case 5:
		return [4]float32{v, m, n, 1}
	}
	return [4]float32{0, 0, 0, 1}
}
