package pools

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// Task represents a unit of work
type Task func()

// ErrShutdownTimeout is returned by Close when in-flight work outlives the
// grace period.
var ErrShutdownTimeout = errors.New("worker pool: shutdown grace period exceeded")

// Options configures a WorkerPool.
type Options struct {
	// MinWorkers is the resident worker floor; the pool never shrinks
	// below it. MaxWorkers caps lazy growth under load.
	MinWorkers int
	MaxWorkers int

	// QueueSize bounds the pending-task queue. A full queue makes Submit
	// block, which is how backpressure reaches the producer.
	QueueSize int

	// IdleTimeout retires workers above MinWorkers that sit idle this long.
	IdleTimeout time.Duration

	// OnWorkerStart / OnWorkerStop fire exactly once per worker lifecycle
	// transition, on the worker's own goroutine.
	OnWorkerStart func(id int)
	OnWorkerStop  func(id int)
}

func (o *Options) normalize() {
	if o.MinWorkers <= 0 {
		o.MinWorkers = 1
	}
	if o.MaxWorkers < o.MinWorkers {
		o.MaxWorkers = o.MinWorkers
	}
	if o.QueueSize <= 0 {
		o.QueueSize = 64
	}
	if o.IdleTimeout <= 0 {
		o.IdleTimeout = 30 * time.Second
	}
}

// WorkerPool is a bounded pool of long-lived worker goroutines pulling
// tasks off a shared FIFO queue. Growth up to MaxWorkers happens lazily as
// load arrives; idle workers above MinWorkers retire on their own; nothing
// in flight is ever killed.
type WorkerPool struct {
	opts   Options
	queue  chan Task
	stopCh chan struct{}

	mu     sync.Mutex // serializes spawn/retire/resize decisions
	nextID int

	live   atomic.Int32
	busy   atomic.Int32
	closed atomic.Bool
	wg     sync.WaitGroup

	// Statistics
	stats struct {
		tasksSubmitted atomic.Uint64
		tasksCompleted atomic.Uint64
		spawned        atomic.Uint64
		retired        atomic.Uint64
	}
}

// NewWorkerPool creates a pool; call Start to spawn the resident workers.
func NewWorkerPool(opts Options) *WorkerPool {
	opts.normalize()
	return &WorkerPool{
		opts:   opts,
		queue:  make(chan Task, opts.QueueSize),
		stopCh: make(chan struct{}),
	}
}

// Start brings the pool up to MinWorkers.
func (p *WorkerPool) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for int(p.live.Load()) < p.opts.MinWorkers {
		p.spawnLocked()
	}
}

// Submit enqueues a task, blocking while the queue is full. It returns
// false once the pool is closing; the task was not accepted.
func (p *WorkerPool) Submit(task Task) bool {
	if p.closed.Load() {
		return false
	}

	p.stats.tasksSubmitted.Add(1)
	p.maybeGrow()

	select {
	case p.queue <- task:
		return true
	case <-p.stopCh:
		return false
	}
}

// maybeGrow adds a worker when every live worker is busy and headroom
// remains.
func (p *WorkerPool) maybeGrow() {
	if p.busy.Load() < p.live.Load() {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if int(p.live.Load()) < p.opts.MaxWorkers && p.busy.Load() >= p.live.Load() {
		p.spawnLocked()
	}
}

func (p *WorkerPool) spawnLocked() {
	p.nextID++
	id := p.nextID
	p.live.Add(1)
	p.stats.spawned.Add(1)
	p.wg.Add(1)
	go p.run(id)
}

func (p *WorkerPool) run(id int) {
	if p.opts.OnWorkerStart != nil {
		p.opts.OnWorkerStart(id)
	}

	retired := false
	defer func() {
		if !retired {
			p.live.Add(-1)
		}
		if p.opts.OnWorkerStop != nil {
			p.opts.OnWorkerStop(id)
		}
		p.wg.Done()
	}()

	idle := time.NewTimer(p.opts.IdleTimeout)
	defer idle.Stop()

	for {
		select {
		case task := <-p.queue:
			p.execute(task)
			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(p.opts.IdleTimeout)

		case <-p.stopCh:
			// Drain what was already accepted, then leave.
			for {
				select {
				case task := <-p.queue:
					p.execute(task)
				default:
					return
				}
			}

		case <-idle.C:
			if p.tryRetire() {
				retired = true
				p.stats.retired.Add(1)
				return
			}
			idle.Reset(p.opts.IdleTimeout)
		}
	}
}

func (p *WorkerPool) execute(task Task) {
	p.busy.Add(1)
	defer func() {
		p.busy.Add(-1)
		p.stats.tasksCompleted.Add(1)
	}()
	task()
}

// tryRetire reserves one slot of shrinkage while the floor holds.
func (p *WorkerPool) tryRetire() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if int(p.live.Load()) > p.opts.MinWorkers {
		p.live.Add(-1)
		return true
	}
	return false
}

// Resize adjusts the worker bounds, spawning up to the new floor
// immediately. Shrinkage happens through idle retirement, never by killing
// in-flight work.
func (p *WorkerPool) Resize(min, max int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if min > 0 {
		p.opts.MinWorkers = min
	}
	if max >= p.opts.MinWorkers {
		p.opts.MaxWorkers = max
	}
	for int(p.live.Load()) < p.opts.MinWorkers && !p.closed.Load() {
		p.spawnLocked()
	}
}

// Close stops accepting work, lets workers finish and drain the queue, and
// waits up to grace for them. In-flight tasks past the deadline keep
// running; the caller decides what to do with their resources.
func (p *WorkerPool) Close(grace time.Duration) error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(p.stopCh)

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	if grace <= 0 {
		<-done
		return nil
	}

	select {
	case <-done:
		return nil
	case <-time.After(grace):
		return ErrShutdownTimeout
	}
}

// WorkerPoolStats contains pool statistics
type WorkerPoolStats struct {
	LiveWorkers    int
	BusyWorkers    int
	QueueDepth     int
	TasksSubmitted uint64
	TasksCompleted uint64
	Spawned        uint64
	Retired        uint64
}

// Stats returns pool statistics
func (p *WorkerPool) Stats() WorkerPoolStats {
	return WorkerPoolStats{
		LiveWorkers:    int(p.live.Load()),
		BusyWorkers:    int(p.busy.Load()),
		QueueDepth:     len(p.queue),
		TasksSubmitted: p.stats.tasksSubmitted.Load(),
		TasksCompleted: p.stats.tasksCompleted.Load(),
		Spawned:        p.stats.spawned.Load(),
		Retired:        p.stats.retired.Load(),
	}
}
