package telemetry

import (
	"fmt"
	"log/slog"
	"slices"
	"time"
)

// Phase identifies one stage of the simulation step.
type Phase uint8

// Phases of the simulation step, in execution order.
const (
	PhaseLight Phase = iota
	PhaseWaste
	PhaseVM
	PhasePhysics
	PhaseHousekeeping
	PhasePresent
	PhaseDispatch
	PhaseDestroy

	numPhases
)

var phaseNames = [numPhases]string{
	"light", "waste", "vm", "physics", "housekeeping", "present", "dispatch", "destroy",
}

func (p Phase) String() string {
	if p < numPhases {
		return phaseNames[p]
	}
	return fmt.Sprintf("phase(%d)", p)
}

// noPhase marks that no phase is being timed.
const noPhase = numPhases

// perfSample holds timing data for a single tick.
type perfSample struct {
	tick   time.Duration
	phases [numPhases]time.Duration
}

// PerfCollector tracks per-phase tick timings over a rolling window. Samples
// live in a fixed ring so recording a tick does not allocate.
type PerfCollector struct {
	samples []perfSample
	next    int
	count   int

	current    perfSample
	tickStart  time.Time
	phaseStart time.Time
	phase      Phase

	// Presenter hand-offs
	lastFrame time.Time
	frameGap  time.Duration
}

// NewPerfCollector creates a collector averaging over windowSize ticks.
func NewPerfCollector(windowSize int) *PerfCollector {
	if windowSize < 1 {
		windowSize = 60
	}
	return &PerfCollector{
		samples: make([]perfSample, windowSize),
		phase:   noPhase,
	}
}

// StartTick begins timing a new simulation tick.
func (p *PerfCollector) StartTick() {
	p.tickStart = time.Now()
	p.current = perfSample{}
	p.phase = noPhase
}

// StartPhase ends the running phase, if any, and starts timing phase.
func (p *PerfCollector) StartPhase(phase Phase) {
	now := time.Now()
	p.closePhase(now)
	p.phaseStart = now
	p.phase = phase
}

func (p *PerfCollector) closePhase(now time.Time) {
	if p.phase < numPhases {
		p.current.phases[p.phase] += now.Sub(p.phaseStart)
	}
}

// EndTick finishes timing the current tick and records the sample.
func (p *PerfCollector) EndTick() {
	now := time.Now()
	p.closePhase(now)
	p.phase = noPhase
	p.current.tick = now.Sub(p.tickStart)

	p.samples[p.next] = p.current
	p.next = (p.next + 1) % len(p.samples)
	p.count = min(p.count+1, len(p.samples))
}

// RecordFrame records the time since the previous presenter hand-off.
func (p *PerfCollector) RecordFrame() {
	now := time.Now()
	if !p.lastFrame.IsZero() {
		p.frameGap = now.Sub(p.lastFrame)
	}
	p.lastFrame = now
}

// PerfStats holds aggregated performance statistics.
type PerfStats struct {
	AvgTickDuration time.Duration
	MinTickDuration time.Duration
	MaxTickDuration time.Duration
	P95TickDuration time.Duration

	// Per-phase average duration and share of the average tick, keyed by
	// phase name.
	PhaseAvg map[string]time.Duration
	PhasePct map[string]float64

	TicksPerSecond float64

	FrameDuration time.Duration
	FPS           float64
}

// Stats computes aggregated statistics over the current window.
func (p *PerfCollector) Stats() PerfStats {
	stats := PerfStats{
		PhaseAvg:      make(map[string]time.Duration, numPhases),
		PhasePct:      make(map[string]float64, numPhases),
		FrameDuration: p.frameGap,
	}
	if p.frameGap > 0 {
		stats.FPS = float64(time.Second) / float64(p.frameGap)
	}
	if p.count == 0 {
		return stats
	}

	var (
		total    time.Duration
		phaseSum [numPhases]time.Duration
		seen     [numPhases]bool
	)
	ticks := make([]float64, 0, p.count)
	stats.MinTickDuration = p.samples[0].tick
	for _, s := range p.samples[:p.count] {
		total += s.tick
		stats.MinTickDuration = min(stats.MinTickDuration, s.tick)
		stats.MaxTickDuration = max(stats.MaxTickDuration, s.tick)
		ticks = append(ticks, float64(s.tick))
		for ph, d := range s.phases {
			phaseSum[ph] += d
			seen[ph] = seen[ph] || d > 0
		}
	}

	n := time.Duration(p.count)
	stats.AvgTickDuration = total / n
	slices.Sort(ticks)
	stats.P95TickDuration = time.Duration(Percentile(ticks, 0.95))

	for ph := range numPhases {
		if !seen[ph] {
			continue
		}
		avg := phaseSum[ph] / n
		stats.PhaseAvg[ph.String()] = avg
		if stats.AvgTickDuration > 0 {
			stats.PhasePct[ph.String()] = float64(avg) / float64(stats.AvgTickDuration) * 100
		}
	}
	if stats.AvgTickDuration > 0 {
		stats.TicksPerSecond = float64(time.Second) / float64(stats.AvgTickDuration)
	}
	return stats
}

// LogStats logs performance statistics.
func (s PerfStats) LogStats() {
	attrs := []any{
		"avg_tick_us", s.AvgTickDuration.Microseconds(),
		"p95_tick_us", s.P95TickDuration.Microseconds(),
		"max_tick_us", s.MaxTickDuration.Microseconds(),
		"ticks_per_sec", int(s.TicksPerSecond),
	}
	if s.FPS > 0 {
		attrs = append(attrs, "fps", int(s.FPS))
	}
	for ph := range numPhases {
		if pct := s.PhasePct[ph.String()]; pct > 0.1 {
			attrs = append(attrs, ph.String()+"_pct", float64(int(pct*10))/10)
		}
	}
	slog.Info("perf", attrs...)
}

// LogValue implements slog.LogValuer.
func (s PerfStats) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.Int64("avg_tick_us", s.AvgTickDuration.Microseconds()),
		slog.Int64("p95_tick_us", s.P95TickDuration.Microseconds()),
		slog.Float64("ticks_per_sec", s.TicksPerSecond),
	}
	for ph := range numPhases {
		if pct, ok := s.PhasePct[ph.String()]; ok {
			attrs = append(attrs, slog.Float64(ph.String()+"_pct", pct))
		}
	}
	return slog.GroupValue(attrs...)
}

// PerfStatsCSV is the flat CSV row for one stats window.
type PerfStatsCSV struct {
	WindowEnd       uint64  `csv:"window_end"`
	AvgTickUS       int64   `csv:"avg_tick_us"`
	MinTickUS       int64   `csv:"min_tick_us"`
	MaxTickUS       int64   `csv:"max_tick_us"`
	P95TickUS       int64   `csv:"p95_tick_us"`
	TicksPerSec     float64 `csv:"ticks_per_sec"`
	FPS             float64 `csv:"fps"`
	LightPct        float64 `csv:"light_pct"`
	WastePct        float64 `csv:"waste_pct"`
	VMPct           float64 `csv:"vm_pct"`
	PhysicsPct      float64 `csv:"physics_pct"`
	HousekeepingPct float64 `csv:"housekeeping_pct"`
	PresentPct      float64 `csv:"present_pct"`
	DispatchPct     float64 `csv:"dispatch_pct"`
	DestroyPct      float64 `csv:"destroy_pct"`
}

// ToCSV flattens s for the perf CSV.
func (s PerfStats) ToCSV(windowEnd uint64) PerfStatsCSV {
	pct := func(ph Phase) float64 { return s.PhasePct[ph.String()] }
	return PerfStatsCSV{
		WindowEnd:       windowEnd,
		AvgTickUS:       s.AvgTickDuration.Microseconds(),
		MinTickUS:       s.MinTickDuration.Microseconds(),
		MaxTickUS:       s.MaxTickDuration.Microseconds(),
		P95TickUS:       s.P95TickDuration.Microseconds(),
		TicksPerSec:     s.TicksPerSecond,
		FPS:             s.FPS,
		LightPct:        pct(PhaseLight),
		WastePct:        pct(PhaseWaste),
		VMPct:           pct(PhaseVM),
		PhysicsPct:      pct(PhasePhysics),
		HousekeepingPct: pct(PhaseHousekeeping),
		PresentPct:      pct(PhasePresent),
		DispatchPct:     pct(PhaseDispatch),
		DestroyPct:      pct(PhaseDestroy),
	}
}
