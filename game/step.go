package game

import (
	"github.com/pthm-cable/phylo/config"
	"github.com/pthm-cable/phylo/telemetry"
)

// Step advances the world by one tick. Phases run in a fixed order; each
// parallel phase is a barrier, so no phase observes a partial predecessor.
func (s *Simulation) Step() {
	s.perf.StartTick()
	o := config.CurrentOptions()

	if s.cells.Len() == 0 {
		s.waste.Clear()
		s.spawnRoot()
	}

	s.perf.StartPhase(telemetry.PhaseLight)
	s.updateIllumination()
	if s.cfg.World.DynamicLights {
		s.light.Step(s.lightPool, s.cfg.Pool.LightReadAhead, o.LightMapChangeRate)
	}

	s.perf.StartPhase(telemetry.PhaseWaste)
	s.waste.Drain(s.wastePool, s.cfg.Pool.WasteReadAhead)

	s.perf.StartPhase(telemetry.PhaseVM)
	s.machine.ResetCounters()
	s.vmPool.Run(s.cells.Len(), s.cfg.Pool.VMReadAhead, s.runVM)

	s.perf.StartPhase(telemetry.PhasePhysics)
	s.physics.Update()

	s.perf.StartPhase(telemetry.PhaseHousekeeping)
	s.cellPool.Run(s.cells.Len(), s.cfg.Pool.CellReadAhead, s.housekeep)

	s.perf.StartPhase(telemetry.PhasePresent)
	if s.onPresent != nil {
		s.onPresent(s)
	}

	s.perf.StartPhase(telemetry.PhaseDispatch)
	s.dispatch()

	s.perf.StartPhase(telemetry.PhaseDestroy)
	s.destroyQueued()

	s.tick++
	s.perf.EndTick()
}

// StepLite repaints every cell without advancing the world. The runner calls
// it while paused.
func (s *Simulation) StepLite() {
	s.paintAll()
}

// SetPresentHook installs fn to run once per tick between housekeeping and
// dispatch, when render records are complete and no cell has been removed yet.
func (s *Simulation) SetPresentHook(fn func(*Simulation)) {
	s.onPresent = fn
}

func (s *Simulation) runVM(worker, i int) {
	c := s.cells.At(i)
	s.machine.Tick(worker, c, s.physics.At(c.PhysicsIdx))
}
