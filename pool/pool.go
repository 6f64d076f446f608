// Package pool provides a reusable barrier-synchronised worker pool.
package pool

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// serialThreshold is the minimum item count to dispatch to workers.
// Below this, running inline is faster than waking goroutines.
const serialThreshold = 64

// Func processes item i on the given worker. Worker ids are in [0, Workers()).
type Func func(worker, i int)

// Pool is a fixed set of persistent workers. Run releases every worker, each
// claims batches from a shared atomic cursor until the range is drained, and
// Run returns once every worker has signalled completion.
type Pool struct {
	name       string
	numWorkers int

	// Current phase, published before workers are released.
	fn        Func
	n         int64
	readAhead int64
	cursor    atomic.Int64

	workChan chan struct{} // releases workers
	doneChan chan struct{} // workers signal completion
	stopChan chan struct{} // signals workers to exit
	wg       sync.WaitGroup
	running  bool
}

// New creates a pool with the given worker count (0 = GOMAXPROCS).
func New(name string, workers int) *Pool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Pool{name: name, numWorkers: workers}
}

// Name returns the pool name.
func (p *Pool) Name() string { return p.name }

// Workers returns the worker count.
func (p *Pool) Workers() int { return p.numWorkers }

// Start launches the worker goroutines. It is a no-op if already running.
func (p *Pool) Start() {
	if p.running {
		return
	}

	p.workChan = make(chan struct{}, p.numWorkers)
	p.doneChan = make(chan struct{}, p.numWorkers)
	p.stopChan = make(chan struct{})
	p.running = true

	for i := 0; i < p.numWorkers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

// Halt signals all workers to exit and waits for them.
func (p *Pool) Halt() {
	if !p.running {
		return
	}

	close(p.stopChan)
	p.wg.Wait()
	p.running = false
}

// Run calls fn for every i in [0, n), claiming readAhead items per cursor
// step, and blocks until all workers are done. It must not be called
// concurrently with itself.
func (p *Pool) Run(n, readAhead int, fn Func) {
	if n <= 0 {
		return
	}
	if readAhead < 1 {
		readAhead = 1
	}

	if !p.running || p.numWorkers == 1 || n < serialThreshold {
		for i := 0; i < n; i++ {
			fn(0, i)
		}
		return
	}

	p.fn = fn
	p.n = int64(n)
	p.readAhead = int64(readAhead)
	p.cursor.Store(0)

	for i := 0; i < p.numWorkers; i++ {
		p.workChan <- struct{}{}
	}
	for i := 0; i < p.numWorkers; i++ {
		<-p.doneChan
	}

	p.fn = nil
}

// worker runs in a goroutine, draining phases until stopped.
func (p *Pool) worker(id int) {
	defer p.wg.Done()

	for {
		select {
		case <-p.stopChan:
			return
		case <-p.workChan:
			p.drain(id)
			p.doneChan <- struct{}{}
		}
	}
}

func (p *Pool) drain(id int) {
	fn, n, step := p.fn, p.n, p.readAhead
	for {
		start := p.cursor.Add(step) - step
		if start >= n {
			return
		}
		end := min(start+step, n)
		for i := start; i < end; i++ {
			fn(id, int(i))
		}
	}
}
