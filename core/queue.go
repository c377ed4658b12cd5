package core

import (
	"context"
	"sync"
	"time"

	"github.com/gogpu/clon12/hal"
	"github.com/gogpu/clon12/internal/metrics"
)

// CommandQueue is bound to exactly one (context, D3D-device) pairing
// (spec.md §3 "CommandQueue"). It owns an ordered deque of queued tasks,
// the set of outstanding (submitted-but-not-complete) tasks, and pointers
// to the last queued task (in-order queues) and last queued barrier
// (always).
type CommandQueue struct {
	id      CommandQueueID
	ctx     *Context
	d3d     *D3DDevice
	platform *Platform

	OutOfOrder bool
	Profiling  bool

	mu               sync.Mutex
	queued           []*Task
	outstanding      map[*Task]struct{}
	lastQueuedTask   *Task
	lastQueuedBarrier *Task

	// record is the most recently used Flush/Finish callback, kept so
	// driveReady can re-flush the D3D device when a task becomes Ready
	// asynchronously, after the call that originally flushed it returned.
	record func(*Task, *hal.ImmediateContext) error

	refs RefCount
}

// NewCommandQueue creates a queue bound to ctx/d3d with the given
// properties flags.
func NewCommandQueue(platform *Platform, ctx *Context, d3d *D3DDevice, outOfOrder, profiling bool) *CommandQueue {
	return &CommandQueue{
		platform:    platform,
		ctx:         ctx,
		d3d:         d3d,
		OutOfOrder:  outOfOrder,
		Profiling:   profiling,
		outstanding: make(map[*Task]struct{}),
		refs:        NewRefCount(),
	}
}

// reportDepthLocked publishes the queue-depth/outstanding-tasks gauges
// (SPEC_FULL §B's prometheus observability surface). Caller must hold q.mu.
func (q *CommandQueue) reportDepthLocked() {
	label := q.id.String()
	metrics.QueueDepth.WithLabelValues(label).Set(float64(len(q.queued)))
	metrics.OutstandingTasks.WithLabelValues(label).Set(float64(len(q.outstanding)))
}

// ID returns the queue's Hub-assigned ID.
func (q *CommandQueue) ID() CommandQueueID { return q.id }

// SetID is called once by the Hub registration path.
func (q *CommandQueue) SetID(id CommandQueueID) { q.id = id }

// Context returns the owning context.
func (q *CommandQueue) Context() *Context { return q.ctx }

// Enqueue inserts task into the queue's tail, adding a dependency edge for
// every event in waitList (failing with ErrContextMismatch if any belongs
// to a different context), an implicit edge to the last queued task
// (in-order queues only), and an implicit edge to the last queued barrier
// (always) - spec.md §4.1 "Public contract".
func (q *CommandQueue) Enqueue(task *Task, waitList []*Task) error {
	q.platform.LockTaskGraph()
	defer q.platform.UnlockTaskGraph()

	for _, w := range waitList {
		if w.Queue != nil && w.Queue.ctx != q.ctx {
			return ErrContextMismatch
		}
	}

	q.mu.Lock()
	task.QueuedAt = time.Now()
	task.Queue = q
	for _, w := range waitList {
		task.AddWaitOn(w)
	}
	if !q.OutOfOrder && q.lastQueuedTask != nil {
		task.AddWaitOn(q.lastQueuedTask)
	}
	if q.lastQueuedBarrier != nil {
		task.AddWaitOn(q.lastQueuedBarrier)
	}

	q.queued = append(q.queued, task)
	q.lastQueuedTask = task
	if task.Kind == TaskBarrier {
		q.lastQueuedBarrier = task
	}
	if task.Kind == TaskMarker && len(waitList) == 0 {
		for o := range q.outstanding {
			task.AddWaitOn(o)
		}
	}
	q.reportDepthLocked()
	q.mu.Unlock()

	task.RetainInternal()
	return nil
}

// Flush drains all queued tasks to their D3D device (spec.md §4.1 "Flush
// algorithm"). visited bounds recursive cross-queue flushing so each queue
// is entered at most once per outer flush.
func (q *CommandQueue) Flush(ctx context.Context, record func(*Task, *hal.ImmediateContext) error) {
	q.mu.Lock()
	q.record = record
	q.mu.Unlock()
	visited := make(map[*CommandQueue]struct{})
	q.flush(ctx, record, visited)
}

func (q *CommandQueue) flush(ctx context.Context, record func(*Task, *hal.ImmediateContext) error, visited map[*CommandQueue]struct{}) {
	if _, seen := visited[q]; seen {
		return
	}
	visited[q] = struct{}{}

	q.mu.Lock()
	batch := q.queued
	q.queued = nil
	q.reportDepthLocked()
	q.mu.Unlock()

	if len(batch) == 0 {
		return
	}

	for _, t := range batch {
		q.mu.Lock()
		q.outstanding[t] = struct{}{}
		q.reportDepthLocked()
		q.mu.Unlock()

		t.setState(TaskStateSubmitted)
		t.runCallbacks(TaskStateSubmitted)

		for _, dep := range q.unmetCrossQueueDeps(t) {
			if dep.Queue != nil && dep.Queue != q {
				dep.Queue.flush(ctx, record, visited)
			}
		}

		if t.Ready() {
			t.setState(TaskStateReady)
			q.d3d.ReadyTask(t)
		}
	}

	q.d3d.Flush(ctx, q.wrapRecord(record))
}

// wrapRecord adapts record (which only knows how to emit a task's native
// commands) into the bookkeeping D3DDevice.Flush expects: clearing the
// task from q.outstanding and driving it to Complete on success. Shared by
// the normal flush path and driveReady's self-feeding re-flush so both
// retire a task identically.
func (q *CommandQueue) wrapRecord(record func(*Task, *hal.ImmediateContext) error) func(*Task, *hal.ImmediateContext) error {
	return func(task *Task, imm *hal.ImmediateContext) error {
		err := record(task, imm)
		q.mu.Lock()
		delete(q.outstanding, task)
		q.reportDepthLocked()
		q.mu.Unlock()
		if err == nil {
			task.Complete()
		}
		task.ReleaseInternal()
		return err
	}
}

// driveReady is the completion-driven re-drive spec.md §4.1/§5 require: a
// task whose only unmet dependency was an earlier task in the same flush
// batch (or any asynchronous dependency chain) never gets into a recording
// submission during the original flush, since t.Ready() was false at that
// time. Once the dependency's Complete()/fail() empties t's wait list, this
// re-enters the platform lock, confirms t is still outstanding, and hands
// it to the D3D device for recording and flush -- without this, Finish
// blocks forever on t.Done().
func (q *CommandQueue) driveReady(t *Task) {
	q.platform.LockTaskGraph()
	q.mu.Lock()
	_, stillOutstanding := q.outstanding[t]
	record := q.record
	q.mu.Unlock()
	q.platform.UnlockTaskGraph()

	if !stillOutstanding || record == nil {
		return
	}

	q.d3d.ReadyTask(t)
	q.d3d.Flush(context.Background(), q.wrapRecord(record))
}

func (q *CommandQueue) unmetCrossQueueDeps(t *Task) []*Task {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]*Task(nil), t.waitOn...)
}

// Finish flushes then blocks until every currently-outstanding task
// completes (spec.md §4.1 "queue.finish() = flush + wait").
func (q *CommandQueue) Finish(ctx context.Context, record func(*Task, *hal.ImmediateContext) error) {
	q.Flush(ctx, record)

	q.mu.Lock()
	pending := make([]*Task, 0, len(q.outstanding))
	for t := range q.outstanding {
		pending = append(pending, t)
	}
	q.mu.Unlock()

	for _, t := range pending {
		<-t.Done()
	}
}

// Retain/Release implement the external reference count.
func (q *CommandQueue) Retain() { q.refs.Retain() }
func (q *CommandQueue) Release() bool { return q.refs.Release() }
