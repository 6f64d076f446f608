package game

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/pthm-cable/phylo/components"
	"github.com/pthm-cable/phylo/config"
	"github.com/pthm-cable/phylo/telemetry"
)

// waitFor polls cond on the runner's simulation until it holds or the
// deadline passes.
func waitFor(t *testing.T, r *Runner, cond func(*Simulation) bool) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		ok := false
		r.WithSimulation(func(s *Simulation) { ok = cond(s) })
		if ok {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not reached before deadline")
}

func TestRunnerStopsAtMaxTicks(t *testing.T) {
	cfg := testConfig(t, 2)
	rec := &Recorder{}
	r := NewRunner(cfg, NewSimulation(cfg, "fast lane"), RunnerOptions{
		Presenter: rec,
		Speed:     config.SpeedLudicrous,
		MaxTicks:  25,
	})

	ticks := 0
	r.OnTick = func(*Simulation) { ticks++ }

	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	<-r.Done()

	r.WithSimulation(func(s *Simulation) {
		if s.Tick() != 25 {
			t.Errorf("Tick = %d, want 25", s.Tick())
		}
	})
	if ticks != 25 {
		t.Errorf("OnTick ran %d times, want 25", ticks)
	}
	if rec.Frames() != 25 {
		t.Errorf("frames presented = %d, want 25", rec.Frames())
	}
	ui, _ := rec.Last()
	if ui.Name != "fast lane" || ui.Tick != 24 {
		t.Errorf("last frame = %q at tick %d, want %q at 24", ui.Name, ui.Tick, "fast lane")
	}
	if err := r.Run(context.Background()); err == nil {
		t.Error("second Run succeeded")
	}
}

func TestRunnerPauseAndStep(t *testing.T) {
	cfg := testConfig(t, 1)
	rec := &Recorder{}
	r := NewRunner(cfg, NewSimulation(cfg, "slow tide"), RunnerOptions{
		Presenter: rec,
		Speed:     config.SpeedPause,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)

	// Paused runners keep presenting without advancing.
	for rec.Frames() == 0 {
		time.Sleep(time.Millisecond)
	}
	r.WithSimulation(func(s *Simulation) {
		if s.Tick() != 0 {
			t.Errorf("paused runner advanced to tick %d", s.Tick())
		}
	})

	r.Step()
	waitFor(t, r, func(s *Simulation) bool { return s.Tick() == 1 })

	r.SetSpeed(config.SpeedFast)
	waitFor(t, r, func(s *Simulation) bool { return s.Tick() >= 5 })

	r.SetSpeed(config.SpeedPause)
	var paused uint64
	r.WithSimulation(func(s *Simulation) { paused = s.Tick() })
	time.Sleep(50 * time.Millisecond)
	r.WithSimulation(func(s *Simulation) {
		// At most one tick may have been in flight when the request landed.
		if s.Tick() > paused+1 {
			t.Errorf("runner kept stepping after pause: %d -> %d", paused, s.Tick())
		}
	})

	cancel()
	<-r.Done()
}

func TestRunnerRequests(t *testing.T) {
	cfg := testConfig(t, 1)
	r := NewRunner(cfg, NewSimulation(cfg, "lamp post"), RunnerOptions{Speed: config.SpeedPause})

	o := *config.CurrentOptions()
	o.BaseMoveCost = 99
	r.ApplyOptions(o)
	r.SetRenderMode(config.RenderDye)
	r.SetSpeed(config.SpeedMedium)
	r.Click(components.Vec2{}, true)
	defer config.SetOptions(cfg.Options)

	r.drainRequests()

	if config.CurrentOptions().BaseMoveCost != 99 {
		t.Errorf("BaseMoveCost = %d, want 99", config.CurrentOptions().BaseMoveCost)
	}
	if r.sim.renderMode != config.RenderDye {
		t.Errorf("render mode = %v, want dye", r.sim.renderMode)
	}
	if r.speed != config.SpeedMedium {
		t.Errorf("speed = %v, want medium", r.speed)
	}
	if len(r.requests) != 0 {
		t.Errorf("%d requests left after drain", len(r.requests))
	}
	if got := r.sim.LightField().Red(components.Vec2{}); got < 250 {
		t.Errorf("light under the flashlight = %d, want near full", got)
	}
}

func TestRunnerTryWithSimulation(t *testing.T) {
	cfg := testConfig(t, 1)
	r := NewRunner(cfg, NewSimulation(cfg, "side door"), RunnerOptions{})

	r.waiting.Store(true)
	if r.TryWithSimulation(func(*Simulation) { t.Error("ran while another caller was waiting") }) {
		t.Error("TryWithSimulation succeeded while another caller was waiting")
	}
	r.waiting.Store(false)

	var name string
	if !r.TryWithSimulation(func(s *Simulation) { name = s.Name() }) {
		t.Fatal("TryWithSimulation refused an idle runner")
	}
	if name != "side door" {
		t.Errorf("Name = %q, want %q", name, "side door")
	}
}

func TestRunnerSubmitSeed(t *testing.T) {
	cfg := testConfig(t, 1)
	r := NewRunner(cfg, NewSimulation(cfg, "first light"), RunnerOptions{})

	if err := r.SubmitSeed("second wind"); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("SubmitSeed without request: err = %v, want ErrInvalidTransition", err)
	}

	if err := r.RequestNewSimulation(); err != nil {
		t.Fatalf("RequestNewSimulation: %v", err)
	}
	if err := r.SubmitSeed("second wind"); err != nil {
		t.Fatalf("SubmitSeed: %v", err)
	}
	if r.Lifecycle().State() != Idle {
		t.Errorf("state = %v, want idle", r.Lifecycle().State())
	}
	r.WithSimulation(func(s *Simulation) {
		if s.Name() != "second wind" || s.Tick() != 0 {
			t.Errorf("simulation = %q at tick %d, want fresh %q", s.Name(), s.Tick(), "second wind")
		}
	})

	if err := r.RequestNewSimulation(); err != nil {
		t.Fatalf("RequestNewSimulation: %v", err)
	}
	if err := r.CancelNewSimulation(); err != nil {
		t.Fatalf("CancelNewSimulation: %v", err)
	}
	if r.Lifecycle().State() != Idle {
		t.Errorf("state after cancel = %v, want idle", r.Lifecycle().State())
	}
	r.WithSimulation(func(s *Simulation) {
		if s.Name() != "second wind" {
			t.Errorf("cancelled request replaced the simulation with %q", s.Name())
		}
	})
}

func TestRunnerSaves(t *testing.T) {
	cfg := testConfig(t, 1)
	cfg.Simulation.AutosaveTicks = 10
	r := NewRunner(cfg, NewSimulation(cfg, "stone archive"), RunnerOptions{
		RunID:    "test-run",
		Speed:    config.SpeedLudicrous,
		MaxTicks: 10,
	})
	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	info, err := os.Stat(r.AutosavePath())
	if err != nil {
		t.Fatalf("autosave missing: %v", err)
	}
	if info.Size() == 0 {
		t.Error("autosave is empty")
	}
	loaded, err := LoadFile(cfg, r.AutosavePath())
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if loaded.Tick() != 10 {
		t.Errorf("autosave tick = %d, want 10", loaded.Tick())
	}

	r.saving.Store(true)
	if _, err := r.SaveTo(r.AutosavePath()); !errors.Is(err, ErrSaveInProgress) {
		t.Errorf("concurrent save: err = %v, want ErrSaveInProgress", err)
	}
	r.saving.Store(false)
	if _, err := r.SaveTo(r.AutosavePath()); err != nil {
		t.Errorf("SaveTo: %v", err)
	}
}

func TestRunnerFlushesTelemetry(t *testing.T) {
	cfg := testConfig(t, 1)
	dir := t.TempDir()
	out, err := telemetry.NewOutputManager(dir)
	if err != nil {
		t.Fatalf("NewOutputManager: %v", err)
	}
	arch, err := telemetry.OpenArchive(context.Background(), filepath.Join(dir, "runs.db"))
	if err != nil {
		t.Fatalf("OpenArchive: %v", err)
	}
	defer arch.Close()

	r := NewRunner(cfg, NewSimulation(cfg, "ledger book"), RunnerOptions{
		Output:   out,
		Archive:  arch,
		RunID:    "flush-run",
		Speed:    config.SpeedLudicrous,
		MaxTicks: 120,
	})
	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if err := out.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "telemetry.csv"))
	if err != nil {
		t.Fatalf("reading telemetry: %v", err)
	}
	if len(data) == 0 {
		t.Error("telemetry.csv is empty")
	}

	runs, err := arch.Runs(context.Background())
	if err != nil {
		t.Fatalf("Runs: %v", err)
	}
	if len(runs) != 1 || runs[0].Windows != 2 || runs[0].FinalTick != 120 {
		t.Errorf("archived runs = %+v, want one run with 2 windows ending at 120", runs)
	}
}

func TestLockTickYieldsToWaitingCaller(t *testing.T) {
	cfg := testConfig(t, 1)
	r := NewRunner(cfg, NewSimulation(cfg, "turnstile"), RunnerOptions{})

	r.waiting.Store(true)
	locked := make(chan struct{})
	go func() {
		r.lockTick()
		close(locked)
	}()

	select {
	case <-locked:
		t.Fatal("tick loop took the lock while a caller was waiting")
	case <-time.After(20 * time.Millisecond):
	}

	r.waiting.Store(false)
	select {
	case <-locked:
	case <-time.After(5 * time.Second):
		t.Fatal("tick loop never took the lock")
	}
	r.mu.Unlock()
}

func TestRunnerLoadFrom(t *testing.T) {
	cfg := testConfig(t, 2)
	dir := t.TempDir()

	saved := runTicks(t, cfg, "deep well", 30)
	good := filepath.Join(dir, "good.phylo")
	if _, err := saved.SaveFile(good); err != nil {
		t.Fatalf("SaveFile: %v", err)
	}
	corrupt := filepath.Join(dir, "corrupt.phylo")
	if err := os.WriteFile(corrupt, []byte("not a save"), 0644); err != nil {
		t.Fatal(err)
	}

	r := NewRunner(cfg, NewSimulation(cfg, "open field"), RunnerOptions{Speed: config.SpeedFast})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)
	waitFor(t, r, func(s *Simulation) bool { return s.Tick() >= 3 })

	tests := []struct {
		name    string
		path    string
		corrupt bool
	}{
		{"missing file", filepath.Join(dir, "missing.phylo"), false},
		{"corrupt file", corrupt, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := r.LoadFrom(tt.path)
			if err == nil {
				t.Fatal("LoadFrom succeeded")
			}
			if tt.corrupt && !errors.Is(err, ErrCorruptSave) {
				t.Errorf("err = %v, want ErrCorruptSave", err)
			}

			var tick uint64
			r.WithSimulation(func(s *Simulation) {
				if s.Name() != "open field" {
					t.Errorf("failed load replaced the simulation with %q", s.Name())
				}
				tick = s.Tick()
			})
			// The old simulation keeps its pools and keeps stepping.
			waitFor(t, r, func(s *Simulation) bool { return s.Tick() > tick })
		})
	}

	if err := r.LoadFrom(good); err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	r.WithSimulation(func(s *Simulation) {
		if s.Name() != "deep well" || s.Tick() < 30 {
			t.Errorf("after load: %q at tick %d, want %q from tick 30", s.Name(), s.Tick(), "deep well")
		}
	})
	waitFor(t, r, func(s *Simulation) bool { return s.Tick() >= 35 })

	cancel()
	<-r.Done()
}

func TestFrameExchange(t *testing.T) {
	cfg := testConfig(t, 1)
	s := runTicks(t, cfg, "glass pane", 3)
	x := NewFrameExchange()

	if _, ok := x.Acquire(); ok {
		t.Error("Acquire before publish reported a new frame")
	}
	x.publish(s, config.SpeedFast)
	f, ok := x.Acquire()
	if !ok || f.Tick != s.Tick() || f.UI.Speed != config.SpeedFast {
		t.Fatalf("Acquire = tick %d ok=%v, want tick %d", f.Tick, ok, s.Tick())
	}
	if again, ok := x.Acquire(); ok || again != f {
		t.Error("second Acquire without publish returned a new frame")
	}

	// Publishing twice keeps only the newest frame and never touches current.
	s.Step()
	x.publish(s, config.SpeedFast)
	s.Step()
	x.publish(s, config.SpeedFast)
	if f.Tick != s.Tick()-2 {
		t.Errorf("held frame changed to tick %d", f.Tick)
	}
	if next, ok := x.Acquire(); !ok || next.Tick != s.Tick() {
		t.Errorf("Acquire = tick %d ok=%v, want newest tick %d", next.Tick, ok, s.Tick())
	}
}

// asyncViewer reads frames on its own goroutine while Ready stays true.
type asyncViewer struct {
	wake chan *FrameExchange
}

func (v *asyncViewer) Ready() bool { return true }

func (v *asyncViewer) Present(x *FrameExchange) {
	select {
	case v.wake <- x:
	default:
	}
}

func TestRunnerConcurrentPresenter(t *testing.T) {
	cfg := testConfig(t, 2)
	viewer := &asyncViewer{wake: make(chan *FrameExchange, 1)}
	r := NewRunner(cfg, NewSimulation(cfg, "window seat"), RunnerOptions{
		Presenter: viewer,
		Speed:     config.SpeedLudicrous,
		MaxTicks:  300,
	})

	var (
		wg   sync.WaitGroup
		seen int
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-r.Done():
				return
			case x := <-viewer.wake:
				f, ok := x.Acquire()
				if !ok {
					continue
				}
				seen++
				tick, cells := f.Tick, len(f.Instances)
				time.Sleep(50 * time.Microsecond)
				if f.Tick != tick || len(f.Instances) != cells {
					t.Errorf("frame changed while held: tick %d -> %d", tick, f.Tick)
				}
				if f.UI.Tick != f.Tick || f.UI.NumCells != len(f.Instances) {
					t.Errorf("frame mixes ticks: ui %d/%d cells, frame %d/%d cells",
						f.UI.Tick, f.UI.NumCells, f.Tick, len(f.Instances))
				}
				if len(f.Light) != int(f.LightEdge*f.LightEdge) {
					t.Errorf("light bytes = %d, want %d", len(f.Light), f.LightEdge*f.LightEdge)
				}
			}
		}
	}()

	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	wg.Wait()
	if seen == 0 {
		t.Error("viewer never received a frame")
	}
}
