package vm

import (
	"math"

	"github.com/mlange-42/ark/ecs"

	"github.com/pthm-cable/phylo/components"
	"github.com/pthm-cable/phylo/config"
)

// Handler costs before volume scaling.
const (
	colorCost    = 10
	attackCost   = 2
	transferCost = 100

	maxRegister  = 0xffff
	probeReach   = 1.75
	splitClear   = 0.8
	sizeDivisor  = components.MaxCellSize + 0.0000001
	maxArmorRead = 0.9999999
)

// World is the read side of the simulation that handlers may query during the
// parallel VM phase. Implementations must be safe for concurrent reads.
type World interface {
	// FindCell returns the first cell overlapping the circle, skipping exclude.
	FindCell(pos components.Vec2, radius float32, exclude ecs.Entity) (ecs.Entity, bool)
	// Resolve returns the records of a live agent.
	Resolve(e ecs.Entity) (*components.Cell, *components.PhysicsRecord)
	// Illumination returns the global daylight factor in [0,1].
	Illumination() float32
	// RedLight returns the light field intensity at p.
	RedLight(p components.Vec2) uint8
	// Waste returns the waste quantity at p.
	Waste(p components.Vec2) uint32
}

// Counters counts executions per operation.
type Counters [NumOperations]uint64

// Machine executes one instruction per cell per tick. Per-worker queues and
// counters make Tick safe to call from pool workers.
type Machine struct {
	world    World
	queues   Queues
	counters []Counters
}

// NewMachine creates a machine for the given number of workers.
func NewMachine(world World, workers int) *Machine {
	workers = max(workers, 1)
	return &Machine{
		world:    world,
		queues:   NewQueues(workers),
		counters: make([]Counters, workers),
	}
}

// Queues returns the per-worker command queues.
func (m *Machine) Queues() Queues { return m.queues }

// Queue returns the queue of one worker.
func (m *Machine) Queue(worker int) *Queue { return &m.queues[worker] }

// Counters returns the execution totals summed over workers.
func (m *Machine) Counters() Counters {
	var total Counters
	for i := range m.counters {
		for op, n := range m.counters[i] {
			total[op] += n
		}
	}
	return total
}

// ResetCounters zeroes the execution totals. The simulation calls it at the
// start of every VM phase, so Counters reports the last tick only.
func (m *Machine) ResetCounters() {
	clear(m.counters)
}

// Tick runs one step of c: sleep handling, respiration, then one instruction.
func (m *Machine) Tick(worker int, c *components.Cell, phys *components.PhysicsRecord) {
	if !c.Alive {
		return
	}
	o := config.CurrentOptions()
	q := &m.queues[worker]
	counter := &m.counters[worker]
	s := &c.VM

	sleep := false
	if s.SleepCount > 0 && c.Energy != 0 {
		s.SleepCount--
		counter[OpSleep]++
		sleep = true
	}

	switch s.Sleep {
	case components.SleepTouched:
		if c.Touched != 0 {
			s.Sleep = components.SleepNone
			c.Touched = 0
		} else {
			counter[OpSleepTouch]++
			sleep = true
		}
	case components.SleepAttacked:
		if c.Attacked != 0 {
			s.Sleep = components.SleepNone
			c.Attacked = 0
		} else {
			counter[OpSleepAttack]++
			sleep = true
		}
	}

	// Respiration grows with genome length beyond the baseline and with size.
	costMult := max(float32(len(s.Bytecode))/float32(o.BaselineBytecodeSize), 1)
	base := o.TickEnergyLost
	if sleep {
		base = o.SleepTickEnergyLost
	}
	cost := uint64(float32(base) * costMult)
	cost = max(1, uint64(float32(cost)*c.SuperVolume))
	c.Energy = c.Energy.Sub(cost)
	if c.Energy == 0 {
		q.Kill(c)
		return
	}
	if sleep {
		return
	}

	pc := s.PC
	s.PC = (s.PC + 1) % uint32(len(s.Bytecode))
	in := Instruction(s.Bytecode[pc])
	op := in.Opcode()
	counter[op]++

	res := &s.Registers[in.Result()%NumRegisters]
	a, b := in.Operand1(), in.Operand2()
	if in.Op1IsRegister() {
		a = s.Registers[a%NumRegisters]
	}
	if in.Op2IsRegister() {
		b = s.Registers[b%NumRegisters]
	}

	cost = m.execute(q, c, phys, o, op, res, a, b)
	if cost != 0 {
		cost = max(1, uint64(float32(cost)*c.Volume))
	}
	c.Energy = c.Energy.Sub(cost)
	if c.Energy == 0 {
		q.Kill(c)
	}
}

// jump moves the program counter by dist, wrapping in both directions.
func jump(s *components.VMState, dist int16) {
	n := int64(len(s.Bytecode))
	p := (int64(s.PC) + int64(dist)) % n
	if p < 0 {
		p += n
	}
	s.PC = uint32(p)
}

func condJump(s *components.VMState, res *uint16, dist int16, ok bool) {
	if ok {
		jump(s, dist)
	}
	*res = boolReg(ok)
}

// execute runs one decoded instruction and returns its unscaled energy cost.
func (m *Machine) execute(q *Queue, c *components.Cell, phys *components.PhysicsRecord, o *config.Options,
	op Opcode, res *uint16, a, b uint16) uint64 {
	s := &c.VM
	sa, sb := Signed(a), Signed(b)
	fa, fb := ToFloat(a), ToFloat(b)

	switch op {
	case OpNop:

	case OpCopy:
		*res = a
	case OpLoad:
		*res = s.Registers[a%NumRegisters]
	case OpStore:
		s.Registers[*res%NumRegisters] = a
	case OpLoadStore:
		s.Registers[*res%NumRegisters] = s.Registers[a%NumRegisters]

	case OpAdd:
		*res = uint16(sa + sb)
	case OpSub:
		*res = uint16(sa - sb)
	case OpMul:
		*res = uint16(sa * sb)
	case OpDiv:
		if sb == 0 {
			*res = 0
		} else {
			*res = uint16(sa / sb)
		}
	case OpMod:
		if sb == 0 {
			*res = 0
		} else {
			*res = uint16(sa % sb)
		}

	case OpAddF:
		*res = FromFloat(fa + fb)
	case OpSubF:
		*res = FromFloat(fa - fb)
	case OpMulF:
		*res = FromFloat(fa * fb)
	case OpDivF:
		if fb == 0 {
			*res = 0
		} else {
			*res = FromFloat(fa / fb)
		}
	case OpModF:
		if fb == 0 {
			*res = 0
		} else {
			*res = FromFloat(float32(math.Mod(float64(fa), float64(fb))))
		}

	case OpAnd:
		*res = boolReg(sa != 0 && sb != 0)
	case OpNand:
		*res = boolReg(!(sa != 0 && sb != 0))
	case OpOr:
		*res = boolReg(sa != 0 || sb != 0)
	case OpNor:
		*res = boolReg(!(sa != 0 || sb != 0))
	case OpNegate:
		*res = boolReg(sa == 0)
	case OpXor:
		*res = boolReg((sa != 0) != (sb != 0))

	case OpJump:
		condJump(s, res, sa, true)
	case OpJumpZ:
		condJump(s, res, sa, sb == 0)
	case OpJumpNZ:
		condJump(s, res, sa, sb != 0)
	case OpJumpGZ:
		condJump(s, res, sa, sb > 0)
	case OpJumpLZ:
		condJump(s, res, sa, sb < 0)
	case OpJumpGEZ:
		condJump(s, res, sa, sb >= 0)
	case OpJumpLEZ:
		condJump(s, res, sa, sb <= 0)

	case OpSleep:
		s.SleepCount += a
		*res = maxRegister
	case OpSleepTouch:
		s.Sleep = components.SleepTouched
		*res = 0
	case OpSleepAttack:
		s.Sleep = components.SleepAttacked
		*res = 0

	case OpMove:
		c.MoveSpeed = fa
		c.MoveState = !c.MoveState
		*res = maxRegister
	case OpRotate:
		amount := fa*2 - 1
		angle := phys.Direction.Angle() + amount*2*math.Pi
		phys.Direction = components.FromAngle(angle)
		*res = maxRegister
		return uint64(float32(o.BaseRotateCost)*float32(math.Abs(float64(amount))) + 1.5)
	case OpSplit:
		*res = m.split(q, c, phys, o)
		return uint64(o.BaseSplitCost)
	case OpBurn:
		burnt := uint64(float32(c.Energy) * (1 - o.BurnEnergyPercentage))
		c.Energy = c.Energy.Min(burnt)
		*res = 0
	case OpSuicide:
		c.Energy = 0
		*res = maxRegister

	case OpColorGreen:
		c.Green += 0.05
		normalizePigments(c)
		*res = 0
		return colorCost
	case OpColorRed:
		c.Red += 0.05
		normalizePigments(c)
		*res = 0
		return colorCost
	case OpColorBlue:
		c.Blue += 0.05
		normalizePigments(c)
		*res = 0
		return colorCost
	case OpGrow:
		c.GrowthPoint = fa
		*res = 0

	case OpGetEnergy:
		*res = FromFloat(c.EnergyFactor())
	case OpGetLightGreen:
		*res = FromFloat(m.world.Illumination())
	case OpGetLightRed:
		*res = FromFloat(float32(m.world.RedLight(phys.Position)) / 255)
	case OpGetWaste:
		*res = uint16(min(maxRegister, m.world.Waste(phys.Position)))
	case OpWasTouched:
		*res = uint16(c.Touched)
		c.Touched = 0
	case OpWasAttacked:
		*res = uint16(c.Attacked)
		c.Attacked = 0

	case OpSee:
		_, found := m.probe(c, phys)
		*res = maxRegister * boolReg(found)
	case OpSize:
		*res = 0
		if t, found := m.probe(c, phys); found {
			if _, tp := m.world.Resolve(t); tp != nil {
				*res = FromFloat(tp.ShadowRadius / sizeDivisor)
			}
		}
	case OpMySize:
		*res = FromFloat(c.Radius / sizeDivisor)
	case OpArmor:
		*res = 0
		if t, found := m.probe(c, phys); found {
			if tc, _ := m.world.Resolve(t); tc != nil {
				*res = FromFloat(min(tc.Armor, maxArmorRead))
			}
		}
	case OpMyArmor:
		*res = FromFloat(min(c.Armor, maxArmorRead))

	case OpAttack:
		t, found := m.probe(c, phys)
		if !found {
			*res = 0
			return attackCost
		}
		q.Serialized = append(q.Serialized, Command{Kind: CmdAttack, Key: c.ID, Actor: c.Entity, Target: t})
		q.Unserialized = append(q.Unserialized, Command{Kind: CmdNotify, Key: c.ID, Actor: c.Entity, Target: t})
		*res = maxRegister
		return attackCost
	case OpTransfer:
		t, found := m.probe(c, phys)
		if !found {
			*res = 0
			return 0
		}
		q.Serialized = append(q.Serialized, Command{
			Kind:   CmdTransfer,
			Key:    c.ID,
			Actor:  c.Entity,
			Target: t,
			Chunk:  transferChunk(s.Bytecode, sa, b),
		})
		*res = maxRegister
		return transferCost
	}
	return 0
}

// transferChunk copies the range a transfer donates. Negative offsets clamp
// to the end; size 0 means the rest of the genome. An empty range donates the
// whole genome.
func transferChunk(code []uint64, offset int16, size uint16) []uint64 {
	n := uint32(len(code))
	off := min(uint32(int32(offset)), n)
	var count uint32
	if size == 0 {
		count = n - off
	} else {
		count = min(uint32(size), n-off)
	}
	if count == 0 {
		off, count = 0, n
	}
	chunk := make([]uint64, count)
	copy(chunk, code[off:off+count])
	return chunk
}

// probe looks for a cell just ahead of c along its heading.
func (m *Machine) probe(c *components.Cell, phys *components.PhysicsRecord) (ecs.Entity, bool) {
	r := phys.Radius
	at := phys.Position.Add(phys.Direction.Scale(r * probeReach))
	return m.world.FindCell(at, r, c.Entity)
}

// normalizePigments rescales the pigment vector to unit length.
func normalizePigments(c *components.Cell) {
	l := float32(math.Sqrt(float64(c.Green*c.Green + c.Red*c.Red + c.Blue*c.Blue)))
	if l == 0 {
		return
	}
	c.Green /= l
	c.Red /= l
	c.Blue /= l
}

// split halves c in place and queues creation of the sibling. It returns the
// result register value: all ones on success, 0 when rejected.
func (m *Machine) split(q *Queue, c *components.Cell, phys *components.PhysicsRecord, o *config.Options) uint16 {
	if c.TickCollided {
		return 0
	}
	r := phys.Radius
	if r < components.MinCellSize*2 {
		return 0
	}

	newR := r * 0.5
	axis := components.FromAngle(c.Uniform(0, 2*math.Pi)).Scale(newR)
	pos1 := phys.Position.Add(axis)
	pos2 := phys.Position.Sub(axis)
	if _, found := m.world.FindCell(pos2, newR*splitClear, c.Entity); found {
		return 0
	}

	// Half the energy burns; long genomes burn more.
	costMult := max(float32(len(c.VM.Bytecode))/float32(o.BaselineBytecodeSize*16), 1)
	energy := uint64(c.Energy)
	loss := min(energy, uint64(float32(energy)*0.5*costMult))
	remaining := energy - loss
	if remaining == 0 {
		return 0
	}
	half := remaining / 2

	c.SetRadius(newR, phys)
	phys.Position = pos1
	c.Energy = components.Energy(min(c.Capacity, half))

	dir := components.FromAngle(c.Uniform(0, 2*math.Pi))

	// The sibling gets the odd unit.
	if remaining%2 == 1 {
		half++
	}
	c.Children++

	q.Serialized = append(q.Serialized, Command{
		Kind:      CmdSplit,
		Key:       c.ID,
		Actor:     c.Entity,
		Radius:    newR,
		Position:  pos2,
		Direction: dir,
		Energy:    half,
	})
	return maxRegister
}
