package thread

import (
	"sync"

	"github.com/gogpu/clon12/internal/metrics"
)

// Job is one unit of work submitted to a Pool.
type Job struct {
	// Run executes the job. Never called if the job is cancelled first.
	Run func()
	// OnCancel, if non-nil, is invoked exactly once if the job is discarded
	// by CancelQueued or Shutdown before Run starts (spec.md §5
	// "Cancellation": "each task provides an optional cancel-callback which
	// is invoked once").
	OnCancel func()
}

// Pool is a reconfigurable background thread pool: N workers draining a
// shared job queue, with a cancellation primitive and a drain-to-event
// primitive (spec.md §2.1). It backs both the single-thread callback
// scheduler and the hardware-concurrency compile/link scheduler (spec.md
// §5) - the same type, constructed with a different worker count.
type Pool struct {
	mu      sync.Mutex
	queue   []*Job
	workCh  chan struct{}
	drainWG sync.WaitGroup // tracks jobs queued-or-running, for Drain
	done    chan struct{}
	wg      sync.WaitGroup
	closed  bool
}

// NewPool starts a Pool with the given number of workers. workers <= 0 is
// treated as 1.
func NewPool(workers int) *Pool {
	if workers <= 0 {
		workers = 1
	}
	p := &Pool{
		workCh: make(chan struct{}, 1<<20),
		done:   make(chan struct{}),
	}
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.runWorker()
	}
	return p
}

func (p *Pool) runWorker() {
	defer p.wg.Done()
	for {
		select {
		case <-p.workCh:
			job := p.pop()
			if job == nil {
				continue
			}
			metrics.WorkerPoolOccupied.Inc()
			job.Run()
			metrics.WorkerPoolOccupied.Dec()
			p.drainWG.Done()
		case <-p.done:
			return
		}
	}
}

func (p *Pool) pop() *Job {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.queue) == 0 {
		return nil
	}
	job := p.queue[0]
	p.queue = p.queue[1:]
	return job
}

// Submit enqueues a job for execution by the next free worker. Safe to call
// concurrently, including from within a running job.
func (p *Pool) Submit(job *Job) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		if job.OnCancel != nil {
			job.OnCancel()
		}
		return
	}
	p.queue = append(p.queue, job)
	p.mu.Unlock()

	p.drainWG.Add(1)
	select {
	case p.workCh <- struct{}{}:
	default:
		// Buffer saturated (extraordinarily deep backlog): a worker will
		// still observe the queued job via pop() on its next wake, so this
		// is a throughput hint, not a correctness requirement.
	}
}

// CancelQueued discards every job currently sitting in the queue (not yet
// picked up by a worker), invoking each one's OnCancel callback once.
// Running jobs are unaffected.
func (p *Pool) CancelQueued() {
	p.mu.Lock()
	cancelled := p.queue
	p.queue = nil
	p.mu.Unlock()

	for _, job := range cancelled {
		if job.OnCancel != nil {
			job.OnCancel()
		}
		p.drainWG.Done()
	}
}

// Drain blocks until every previously-submitted job has either run to
// completion or been cancelled. It does not prevent new submissions from
// extending the wait; callers that need a stable snapshot should stop
// submitting before calling Drain. This is the "drain-to-event primitive"
// of spec.md §2.1.
func (p *Pool) Drain() {
	p.drainWG.Wait()
}

// Shutdown first cancels all queued jobs, then stops every worker. Running
// jobs are allowed to finish. Matches spec.md §5: "shutdown() first
// cancels, then drops the worker count to zero while holding the scheduler
// mutex."
func (p *Pool) Shutdown() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	p.CancelQueued()
	close(p.done)
	p.wg.Wait()
}
