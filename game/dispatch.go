package game

import (
	"log/slog"
	"slices"
	"sync/atomic"

	"github.com/pthm-cable/phylo/components"
	"github.com/pthm-cable/phylo/config"
	"github.com/pthm-cable/phylo/vm"
)

// Split and attack tuning.
const (
	childArmor     = 0.001
	dyeDrift       = 0.05
	attackStrength = 0.9
)

// dispatch drains the deferred commands queued by the VM and housekeeping
// phases. Order-independent notifications run in parallel; everything else is
// applied serially in acting-cell id order so results do not depend on which
// worker queued a command.
func (s *Simulation) dispatch() {
	qs := s.machine.Queues()

	s.scratch = qs.Take(s.scratch[:0], vm.Unserialized)
	if n := len(s.scratch); n > 0 {
		cmds := s.scratch
		s.cellPool.Run(n, s.cfg.Pool.CellReadAhead, func(_ int, i int) {
			s.notify(&cmds[i])
		})
	}

	s.scratch = qs.Take(s.scratch[:0], vm.Serialized)
	vm.SortByKey(s.scratch)
	o := config.CurrentOptions()
	for i := range s.scratch {
		s.apply(&s.scratch[i], o)
	}

	s.scratch = qs.Take(s.scratch[:0], vm.Kills)
	vm.SortByKey(s.scratch)
	for i := range s.scratch {
		if c, _ := s.Resolve(s.scratch[i].Actor); c != nil {
			s.kill(c)
		}
	}
}

// destroyQueued removes every cell queued for destruction this tick.
func (s *Simulation) destroyQueued() {
	s.scratch = s.machine.Queues().Take(s.scratch[:0], vm.Destroys)
	vm.SortByKey(s.scratch)
	for i := range s.scratch {
		s.destroy(s.scratch[i].Actor)
	}
	clear(s.scratch)
	s.scratch = s.scratch[:0]
}

// notify applies an order-independent command. Safe for concurrent use.
func (s *Simulation) notify(cmd *vm.Command) {
	if cmd.Kind != vm.CmdNotify {
		return
	}
	if t, _ := s.Resolve(cmd.Target); t != nil {
		atomic.AddUint32(&t.AttackedRemote, 1)
	}
}

func (s *Simulation) apply(cmd *vm.Command, o *config.Options) {
	switch cmd.Kind {
	case vm.CmdSplit:
		s.applySplit(cmd, o)
	case vm.CmdAttack:
		s.applyAttack(cmd)
	case vm.CmdTransfer:
		s.applyTransfer(cmd)
	default:
		slog.Warn("unexpected serialized command", "kind", cmd.Kind)
	}
}

// applySplit creates the sibling of a cell that split this tick.
func (s *Simulation) applySplit(cmd *vm.Command, o *config.Options) {
	parent, parentPhys := s.Resolve(cmd.Actor)
	if parent == nil || !parent.Alive {
		return
	}
	if s.cells.Len() == s.cells.Cap() {
		slog.Warn("cell arena full, dropping split", "tick", s.tick, "parent", parent.ID)
		return
	}

	child := s.newCell(parent.Rand, cmd.Position)
	childPhys := s.physics.At(child.PhysicsIdx)

	code := vm.MutateChild(child.Rand, slices.Clone(parent.VM.Bytecode), o)
	child.GrowthPoint = parent.GrowthPoint

	owner, bucket := childPhys.Owner, childPhys.Bucket
	*childPhys = *parentPhys
	childPhys.Owner, childPhys.Bucket = owner, bucket
	child.SetRadius(cmd.Radius, childPhys)
	childPhys.Position = cmd.Position
	childPhys.ShadowPosition = cmd.Position
	childPhys.Direction = cmd.Direction

	child.Energy = components.Energy(min(child.Capacity, cmd.Energy))
	child.Green, child.Red, child.Blue = parent.Green, parent.Red, parent.Blue
	child.Armor = childArmor

	child.Dye = parent.Dye
	child.Dye[0] = clampF(child.Dye[0]+child.Uniform(-dyeDrift, dyeDrift), 0, 6)
	child.Dye[1] = clampF(child.Dye[1]+child.Uniform(-dyeDrift, dyeDrift), 0, 1)
	child.Dye[2] = clampF(child.Dye[2]+child.Uniform(-dyeDrift, dyeDrift), 0, 1)

	vm.SetBytecode(child, code)
	child.Generation = parent.Generation + 1
	child.ParentID = parent.ID

	s.renders.At(int(child.RenderIdx)).Radius = child.Radius
	s.collector.RecordBirth()
}

// applyAttack strips armor from the target in proportion to the volume ratio.
func (s *Simulation) applyAttack(cmd *vm.Command) {
	attacker, _ := s.Resolve(cmd.Actor)
	target, _ := s.Resolve(cmd.Target)
	if attacker == nil || target == nil || target.Armor <= 0 {
		return
	}
	damage := attackStrength * attacker.Volume * target.InvVolume
	target.Armor = max(target.Armor-damage, 0)
	target.KilledBy = attacker.ID
	s.collector.RecordAttack()
}

// applyTransfer splices the donated chunk into the target genome at a
// position drawn from the donor's random source.
func (s *Simulation) applyTransfer(cmd *vm.Command) {
	donor, _ := s.Resolve(cmd.Actor)
	target, _ := s.Resolve(cmd.Target)
	if donor == nil || target == nil || len(cmd.Chunk) == 0 {
		return
	}
	code := target.VM.Bytecode
	at := donor.IntN(len(code) + 1)
	code = slices.Insert(code, at, cmd.Chunk...)
	if len(code) > components.MaxBytecodeSize {
		code = code[:components.MaxBytecodeSize]
	}
	vm.SetBytecodeLive(target, code)
	s.collector.RecordTransfer()
}

func clampF(v, lo, hi float32) float32 {
	return min(max(v, lo), hi)
}
