package game

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pthm-cable/phylo/components"
	"github.com/pthm-cable/phylo/config"
	"github.com/pthm-cable/phylo/telemetry"
)

// pausePoll is how long a paused runner sleeps between request checks.
const pausePoll = 16 * time.Millisecond

// speedDelays is the minimum wall time per tick at each speed.
var speedDelays = [...]time.Duration{
	config.SpeedPause:     pausePoll,
	config.SpeedSlow:      16 * time.Millisecond,
	config.SpeedMedium:    4 * time.Millisecond,
	config.SpeedFast:      time.Millisecond,
	config.SpeedLudicrous: 0,
}

// RunnerOptions configures a Runner. Every field is optional.
type RunnerOptions struct {
	Presenter Presenter
	Lifecycle *Lifecycle
	Output    *telemetry.OutputManager
	Archive   *telemetry.Archive
	RunID     string
	Speed     config.Speed
	MaxTicks  uint64 // 0 runs until the context is cancelled
	LogStats  bool
}

// Runner drives a Simulation on its own goroutine. Other goroutines talk to
// it through queued requests, which the tick loop applies once per
// iteration, or through WithSimulation for direct access between ticks.
type Runner struct {
	cfg *config.Config

	mu      sync.Mutex // held by the tick loop while stepping
	waiting atomic.Bool
	sim     *Simulation

	reqMu    sync.Mutex
	requests []func(*Runner)

	presenter Presenter
	exchange  *FrameExchange

	lifecycle *Lifecycle
	output    *telemetry.OutputManager
	archive   *telemetry.Archive
	runID     string
	logStats  bool

	speed    config.Speed
	stepOnce bool
	maxTicks uint64

	running atomic.Bool
	saving  atomic.Bool
	done    chan struct{}

	// OnTick, if set, runs on the tick goroutine after every completed tick.
	OnTick func(*Simulation)
}

// NewRunner wraps sim.
func NewRunner(cfg *config.Config, sim *Simulation, opts RunnerOptions) *Runner {
	r := &Runner{
		cfg:       cfg,
		presenter: opts.Presenter,
		exchange:  NewFrameExchange(),
		lifecycle: opts.Lifecycle,
		output:    opts.Output,
		archive:   opts.Archive,
		runID:     opts.RunID,
		logStats:  opts.LogStats,
		speed:     opts.Speed,
		maxTicks:  opts.MaxTicks,
		done:      make(chan struct{}),
	}
	if r.lifecycle == nil {
		r.lifecycle = &Lifecycle{}
	}
	r.attach(sim)
	return r
}

func (r *Runner) attach(sim *Simulation) {
	r.sim = sim
	sim.SetPresentHook(r.present)
}

// Run steps the simulation until ctx is cancelled or MaxTicks is reached.
// It may be called once.
func (r *Runner) Run(ctx context.Context) error {
	if !r.running.CompareAndSwap(false, true) {
		return fmt.Errorf("runner already started")
	}
	defer close(r.done)
	defer r.running.Store(false)

	r.mu.Lock()
	r.sim.Start()
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		r.sim.Halt()
		r.mu.Unlock()
	}()

	if err := r.archive.BeginRun(ctx, r.runID, r.sim.Name(), r.sim.Seed()); err != nil {
		slog.Error("failed to archive run", "error", err)
	}
	defer r.finish()

	slog.Info("simulation started", "run_id", r.runID, "name", r.sim.Name(), "tick", r.sim.Tick(), "speed", r.speed)

	for {
		if ctx.Err() != nil {
			return nil
		}
		r.drainRequests()

		if r.speed == config.SpeedPause && !r.stepOnce {
			r.lockTick()
			r.sim.StepLite()
			r.present(r.sim)
			r.mu.Unlock()
			if !sleepCtx(ctx, pausePoll) {
				return nil
			}
			continue
		}
		r.stepOnce = false

		start := time.Now()
		r.lockTick()
		r.sim.Step()
		r.afterTick(ctx)
		tick := r.sim.Tick()
		r.mu.Unlock()

		if r.maxTicks > 0 && tick >= r.maxTicks {
			slog.Info("tick limit reached", "tick", tick)
			return nil
		}

		if delay := speedDelays[r.speed] - time.Since(start); delay > 0 {
			if !sleepCtx(ctx, delay) {
				return nil
			}
		}
	}
}

// lockTick takes the simulation lock for the tick loop, first giving way to
// any WithSimulation caller already waiting for it.
func (r *Runner) lockTick() {
	for r.waiting.Load() {
		runtime.Gosched()
	}
	r.mu.Lock()
}

// Done is closed when Run returns.
func (r *Runner) Done() <-chan struct{} { return r.done }

// Running reports whether the tick loop is active.
func (r *Runner) Running() bool { return r.running.Load() }

// WithSimulation runs fn with exclusive access to the simulation, between
// ticks.
func (r *Runner) WithSimulation(fn func(*Simulation)) {
	r.waiting.Store(true)
	r.mu.Lock()
	r.waiting.Store(false)
	defer r.mu.Unlock()
	fn(r.sim)
}

// TryWithSimulation is WithSimulation that gives up immediately if another
// caller is already waiting for the simulation.
func (r *Runner) TryWithSimulation(fn func(*Simulation)) bool {
	if r.waiting.Load() {
		return false
	}
	r.WithSimulation(fn)
	return true
}

func (r *Runner) enqueue(fn func(*Runner)) {
	r.reqMu.Lock()
	r.requests = append(r.requests, fn)
	r.reqMu.Unlock()
}

func (r *Runner) drainRequests() {
	r.reqMu.Lock()
	reqs := r.requests
	r.requests = nil
	r.reqMu.Unlock()

	for _, fn := range reqs {
		fn(r)
	}
}

// SetSpeed changes the tick rate.
func (r *Runner) SetSpeed(s config.Speed) {
	r.enqueue(func(r *Runner) {
		if r.speed != s {
			slog.Info("speed changed", "from", r.speed, "to", s)
		}
		r.speed = s
	})
}

// Step advances one tick while paused.
func (r *Runner) Step() {
	r.enqueue(func(r *Runner) { r.stepOnce = true })
}

// Click shines the flashlight at pos, or removes it when on is false.
func (r *Runner) Click(pos components.Vec2, on bool) {
	r.enqueue(func(r *Runner) {
		r.mu.Lock()
		r.sim.light.Flash(pos, on)
		r.mu.Unlock()
	})
}

// ApplyOptions replaces the simulation options from the next tick on.
func (r *Runner) ApplyOptions(o config.Options) {
	r.enqueue(func(*Runner) { config.SetOptions(o) })
}

// SetRenderMode changes how cells are coloured.
func (r *Runner) SetRenderMode(m config.RenderMode) {
	r.enqueue(func(r *Runner) {
		r.mu.Lock()
		r.sim.SetRenderMode(m)
		r.mu.Unlock()
	})
}

// Lifecycle returns the new-simulation state machine.
func (r *Runner) Lifecycle() *Lifecycle { return r.lifecycle }

// RequestNewSimulation starts the replace flow. The runner keeps stepping the
// current simulation until a seed is submitted.
func (r *Runner) RequestNewSimulation() error {
	return r.lifecycle.RequestNew()
}

// SubmitSeed builds a simulation named name (a random name when empty) and
// swaps it in.
func (r *Runner) SubmitSeed(name string) error {
	if err := r.lifecycle.BeginBuild(); err != nil {
		return err
	}
	if name == "" {
		name = RandomName(rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0)))
	}
	r.replace(NewSimulation(r.cfg, name))
	slog.Info("simulation replaced", "run_id", r.runID, "name", name)
	return r.lifecycle.Finish()
}

// LoadFrom replaces the running simulation with the save at path. The save is
// read and decoded before the lock is taken; on error the current simulation
// keeps running untouched.
func (r *Runner) LoadFrom(path string) error {
	next, err := LoadFile(r.cfg, path)
	if err != nil {
		slog.Error("load failed", "path", path, "error", err)
		return err
	}
	name, tick, cells := next.Name(), next.Tick(), next.NumCells()
	r.replace(next)
	slog.Info("simulation loaded", "run_id", r.runID, "path", path,
		"name", name, "tick", tick, "cells", cells)
	return nil
}

// replace swaps next in between ticks, moving the worker pools over when the
// loop is running.
func (r *Runner) replace(next *Simulation) {
	r.WithSimulation(func(old *Simulation) {
		if r.running.Load() {
			old.Halt()
			next.Start()
		}
		r.attach(next)
	})
}

// CancelNewSimulation abandons a pending replace request.
func (r *Runner) CancelNewSimulation() error {
	if err := r.lifecycle.Cancel(); err != nil {
		return err
	}
	return r.lifecycle.Reset()
}

// SaveTo writes the current simulation to path between ticks.
func (r *Runner) SaveTo(path string) (int64, error) {
	if !r.saving.CompareAndSwap(false, true) {
		return 0, ErrSaveInProgress
	}
	defer r.saving.Store(false)

	var (
		n    int64
		err  error
		tick uint64
	)
	r.WithSimulation(func(s *Simulation) {
		tick = s.Tick()
		n, err = s.SaveFile(path)
	})
	if err != nil {
		return 0, err
	}
	if err := r.archive.RecordSave(context.Background(), tick, path, n); err != nil {
		slog.Error("failed to archive save", "error", err)
	}
	return n, nil
}

// AutosavePath returns where this run's autosaves are written.
func (r *Runner) AutosavePath() string {
	id := r.runID
	if id == "" {
		id = "run"
	}
	return filepath.Join(r.cfg.Simulation.SaveDir, fmt.Sprintf("autosave-%s.phylo", id))
}

// present publishes the current render state if the presenter is ready.
func (r *Runner) present(s *Simulation) {
	if r.presenter == nil || !r.presenter.Ready() {
		return
	}
	r.exchange.publish(s, r.speed)
	r.presenter.Present(r.exchange)
	s.perf.RecordFrame()
}

// afterTick runs the per-tick bookkeeping: telemetry windows, autosave, and
// the OnTick hook. Called with the simulation lock held.
func (r *Runner) afterTick(ctx context.Context) {
	s := r.sim
	tick := s.Tick()

	if s.collector.ShouldFlush(tick) {
		r.flushTelemetry(ctx)
	}

	every := r.cfg.Simulation.AutosaveTicks
	if every > 0 && tick%every == 0 && !(s.loaded && tick == s.loadedTick) {
		r.autosave(ctx)
	}

	if r.OnTick != nil {
		r.OnTick(s)
	}
}

// flushTelemetry closes the current stats window.
func (r *Runner) flushTelemetry(ctx context.Context) {
	s := r.sim
	stats := s.collector.Flush(s.Tick(), s.Census())
	perfStats := s.perf.Stats()

	if r.logStats {
		stats.LogStats()
		perfStats.LogStats()
	}

	if err := r.output.WriteTelemetry(stats); err != nil {
		slog.Error("failed to write telemetry", "error", err)
	}
	if err := r.output.WritePerf(perfStats, stats.WindowEndTick); err != nil {
		slog.Error("failed to write perf", "error", err)
	}
	if err := r.archive.RecordWindow(ctx, stats, perfStats); err != nil {
		slog.Error("failed to archive window", "error", err)
	}
}

// autosave writes the simulation while the tick loop holds the lock.
func (r *Runner) autosave(ctx context.Context) {
	if !r.saving.CompareAndSwap(false, true) {
		slog.Warn("autosave skipped, save in progress", "tick", r.sim.Tick())
		return
	}
	defer r.saving.Store(false)

	path := r.AutosavePath()
	n, err := r.sim.SaveFile(path)
	if err != nil {
		slog.Error("autosave failed", "path", path, "error", err)
		return
	}
	slog.Info("autosaved", "path", path, "tick", r.sim.Tick(), "bytes", n)
	if err := r.archive.RecordSave(ctx, r.sim.Tick(), path, n); err != nil {
		slog.Error("failed to archive save", "error", err)
	}
}

func (r *Runner) finish() {
	var tick, total uint64
	r.WithSimulation(func(s *Simulation) {
		tick, total = s.Tick(), s.TotalCells()
	})
	if err := r.archive.EndRun(context.Background(), tick, total); err != nil {
		slog.Error("failed to finish archived run", "error", err)
	}
	slog.Info("simulation stopped", "run_id", r.runID, "tick", tick, "total_cells", total)
}

// sleepCtx sleeps for d or until ctx is done. It reports whether the full
// duration elapsed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
