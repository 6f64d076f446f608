package game

import (
	"sync"
	"time"

	"github.com/pthm-cable/phylo/components"
	"github.com/pthm-cable/phylo/config"
	"github.com/pthm-cable/phylo/vm"
)

// UIData is the status block shown next to the world view.
type UIData struct {
	Name       string
	Speed      config.Speed
	NumCells   int
	TotalCells uint64
	Tick       uint64
	TickTime   time.Duration
	Phases     map[string]time.Duration
}

// Frame is one snapshot handed to a presenter.
type Frame struct {
	Illumination float32
	Tick         uint64
	Instances    []components.RenderInstance
	Light        []uint8
	LightEdge    uint32
	Waste        []uint32
	WasteEdge    uint32
	UI           UIData
	Counters     vm.Counters
}

// capture copies the simulation's render state into f, reusing f's buffers.
func (f *Frame) capture(s *Simulation, speed config.Speed) {
	f.Illumination = s.illumination
	f.Tick = s.tick
	f.Instances = append(f.Instances[:0], s.renders.All()...)
	f.Light = append(f.Light[:0], s.light.Bytes()...)
	f.LightEdge = s.light.Edge()
	f.Waste = append(f.Waste[:0], s.waste.Values()...)
	f.WasteEdge = s.waste.Edge()
	f.Counters = s.machine.Counters()

	stats := s.perf.Stats()
	f.UI = UIData{
		Name:       s.name,
		Speed:      speed,
		NumCells:   s.cells.Len(),
		TotalCells: s.totalCells,
		Tick:       s.tick,
		TickTime:   stats.AvgTickDuration,
		Phases:     stats.PhaseAvg,
	}
}

// FrameExchange hands frames from the tick goroutine to one consumer. The
// tick goroutine fills a private back frame and swaps it into pending; the
// consumer swaps pending into current. Each frame is touched by one side at a
// time, so a consumer may read current from any goroutine.
type FrameExchange struct {
	back *Frame // tick goroutine only

	mu      sync.Mutex
	pending *Frame
	current *Frame
	fresh   bool
}

// NewFrameExchange returns an exchange with empty frames.
func NewFrameExchange() *FrameExchange {
	return &FrameExchange{back: &Frame{}, pending: &Frame{}, current: &Frame{}}
}

// publish captures s and makes it the pending frame.
func (x *FrameExchange) publish(s *Simulation, speed config.Speed) {
	x.back.capture(s, speed)

	x.mu.Lock()
	x.back, x.pending = x.pending, x.back
	x.fresh = true
	x.mu.Unlock()
}

// Acquire returns the newest frame and whether it was published since the
// previous call. The frame stays valid until the next Acquire. Only one
// goroutine may call Acquire.
func (x *FrameExchange) Acquire() (*Frame, bool) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if !x.fresh {
		return x.current, false
	}
	x.current, x.pending = x.pending, x.current
	x.fresh = false
	return x.current, true
}

// Presenter consumes frames. Ready reports whether the presenter wants a new
// frame; when it does, the runner publishes one and calls Present on the tick
// goroutine. Present may Acquire the frame itself or signal another goroutine
// to do so.
type Presenter interface {
	Ready() bool
	Present(x *FrameExchange)
}

// Recorder is a headless presenter that keeps the latest frame summary. It
// is safe for concurrent use.
type Recorder struct {
	mu     sync.Mutex
	frames int
	last   UIData
	cells  int
}

// Ready always accepts.
func (r *Recorder) Ready() bool { return true }

// Present acquires the published frame and records it.
func (r *Recorder) Present(x *FrameExchange) {
	f, ok := x.Acquire()
	if !ok {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames++
	r.last = f.UI
	r.cells = len(f.Instances)
}

// Frames returns the number of frames presented.
func (r *Recorder) Frames() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frames
}

// Last returns the UI data and instance count of the latest frame.
func (r *Recorder) Last() (UIData, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last, r.cells
}
