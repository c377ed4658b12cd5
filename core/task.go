package core

import (
	"sync"
	"time"

	"github.com/gogpu/clon12/hal"
	"github.com/gogpu/clon12/internal/metrics"
)

// TaskState is a task's position in the state machine (spec.md §4.1):
//
//	Queued    --flush-->     Submitted
//	Submitted --deps met-->  Ready     (internal only)
//	Ready     --recorded-->  Running   (visible via callbacks only as Running)
//	Running   --GPU done-->  Complete (success) | Error (negative)
//
// UserEvent tasks start in Submitted; SetUserEventStatus moves them
// directly to Complete or Error.
type TaskState int

const (
	TaskStateQueued TaskState = iota
	TaskStateSubmitted
	TaskStateReady
	TaskStateRunning
	TaskStateComplete
	TaskStateError
)

// TaskKind is the polymorphic command type a Task carries (spec.md §3
// "Task. Polymorphic variants").
type TaskKind int

const (
	TaskBufferRead TaskKind = iota
	TaskBufferWrite
	TaskBufferCopy
	TaskBufferFill
	TaskBufferMap
	TaskBufferUnmap
	TaskImageRead
	TaskImageWrite
	TaskImageCopy
	TaskImageFill
	TaskImageMap
	TaskImageUnmap
	TaskMigrate
	TaskNDRangeKernel
	TaskMarker
	TaskBarrier
	TaskUserEvent
	TaskDummy
)

// TaskCallback is invoked on a state transition with the task's ID and
// resulting state/error.
type TaskCallback func(id TaskID, state TaskState, err error)

// Task is the object backing a cl_event handle (spec.md §3 "Task").
type Task struct {
	id    TaskID
	Kind  TaskKind
	Queue *CommandQueue

	mu    sync.Mutex
	state TaskState
	err   error

	// Profiling timestamps (spec.md §3 "four profiling timestamps").
	QueuedAt, SubmittedAt, StartedAt, EndedAt time.Time

	// waitOn (backward edges) must all reach Complete before this task is
	// ready; waiters (forward edges) are notified when this task completes.
	waitOn  []*Task
	waiters []*Task

	submittedCB []TaskCallback
	runningCB   []TaskCallback
	completeCB  []TaskCallback

	done chan struct{} // closed exactly once, on Complete or Error

	// recorder emits this task's native commands against imm during the
	// D3D device's record phase (spec.md §4.1 "Submission execution"). Set
	// by the enqueue path that created the task (icd/memory.go, icd/kernel.go);
	// control-only tasks (Marker, Barrier, UserEvent) leave it nil.
	recorder func(imm *hal.ImmediateContext) error

	refs RefCount
}

// SetRecorder installs the function that emits this task's native commands.
func (t *Task) SetRecorder(fn func(imm *hal.ImmediateContext) error) {
	t.mu.Lock()
	t.recorder = fn
	t.mu.Unlock()
}

// Record runs the task's recorder, if any, against imm.
func (t *Task) Record(imm *hal.ImmediateContext) error {
	t.mu.Lock()
	fn := t.recorder
	t.mu.Unlock()
	if fn == nil {
		return nil
	}
	return fn(imm)
}

// NewTask creates a task of the given kind on queue, in state Queued; a
// UserEvent task starts in Submitted.
func NewTask(kind TaskKind, queue *CommandQueue) *Task {
	state := TaskStateQueued
	if kind == TaskUserEvent {
		state = TaskStateSubmitted
	}
	return &Task{
		Kind:  kind,
		Queue: queue,
		state: state,
		done:  make(chan struct{}),
		refs:  NewRefCount(),
	}
}

// ID returns the task's Hub-assigned ID.
func (t *Task) ID() TaskID { return t.id }

// SetID is called once by the Hub registration path.
func (t *Task) SetID(id TaskID) { t.id = id }

// State returns the task's current state.
func (t *Task) State() TaskState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Err returns the error a task in TaskStateError completed with.
func (t *Task) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// Done returns a channel closed when the task reaches Complete or Error
// (the "completion future" spec.md §3 names).
func (t *Task) Done() <-chan struct{} { return t.done }

// AddWaitOn records a backward dependency edge: t cannot become Ready until
// dep reaches Complete (spec.md §8 invariant "a task's tasks_to_wait_on
// only references tasks on the same context" - enforced by the caller,
// queue.Enqueue, via ErrContextMismatch).
func (t *Task) AddWaitOn(dep *Task) {
	t.mu.Lock()
	t.waitOn = append(t.waitOn, dep)
	t.mu.Unlock()
	dep.mu.Lock()
	dep.waiters = append(dep.waiters, t)
	alreadyDone := dep.state == TaskStateComplete || dep.state == TaskStateError
	depErr := dep.err
	dep.mu.Unlock()
	if alreadyDone {
		t.resolveWaitOn(dep, depErr)
	}
}

// resolveWaitOn is called once dep completes (immediately if it already had,
// from fail()/complete() otherwise); it removes dep from t's wait list.
func (t *Task) resolveWaitOn(dep *Task, depErr error) {
	t.mu.Lock()
	for i, w := range t.waitOn {
		if w == dep {
			t.waitOn = append(t.waitOn[:i], t.waitOn[i+1:]...)
			break
		}
	}
	remaining := len(t.waitOn)
	t.mu.Unlock()

	if depErr != nil {
		t.fail(&TaskError{Kind: TaskErrorPropagated, Task: t.id, Cause: depErr})
		return
	}
	if remaining == 0 {
		t.setState(TaskStateReady)
		t.onReady()
	}
}

// onReady notifies the owning queue that this task's dependency list has
// just emptied, so it can be promoted and flushed even when that happens
// after the queue's own Flush call already returned -- the "self-feeding"
// re-drive spec.md §4.1/§5 require: completing a task re-enters the
// platform lock to look for further work to launch.
func (t *Task) onReady() {
	if t.Queue != nil {
		t.Queue.driveReady(t)
	}
}

// OnSubmitted/OnRunning/OnComplete register one of the three callback lists
// spec.md §3 names.
func (t *Task) OnSubmitted(cb TaskCallback) { t.addCallback(&t.submittedCB, cb) }
func (t *Task) OnRunning(cb TaskCallback)    { t.addCallback(&t.runningCB, cb) }
func (t *Task) OnComplete(cb TaskCallback)   { t.addCallback(&t.completeCB, cb) }

func (t *Task) addCallback(list *[]TaskCallback, cb TaskCallback) {
	t.mu.Lock()
	*list = append(*list, cb)
	t.mu.Unlock()
}

func (t *Task) setState(s TaskState) {
	t.mu.Lock()
	t.state = s
	switch s {
	case TaskStateSubmitted:
		t.SubmittedAt = time.Now()
	case TaskStateRunning:
		t.StartedAt = time.Now()
	}
	t.mu.Unlock()
}

func (t *Task) runCallbacks(s TaskState) {
	t.mu.Lock()
	var list []TaskCallback
	switch s {
	case TaskStateSubmitted:
		list = append([]TaskCallback(nil), t.submittedCB...)
	case TaskStateRunning:
		list = append([]TaskCallback(nil), t.runningCB...)
	case TaskStateComplete, TaskStateError:
		list = append([]TaskCallback(nil), t.completeCB...)
	}
	id := t.id
	err := t.err
	t.mu.Unlock()
	for _, cb := range list {
		cb(id, s, err)
	}
}

// Complete transitions the task to Complete and notifies waiters.
func (t *Task) Complete() {
	t.mu.Lock()
	if t.state == TaskStateComplete || t.state == TaskStateError {
		t.mu.Unlock()
		return
	}
	t.state = TaskStateComplete
	t.EndedAt = time.Now()
	waiters := append([]*Task(nil), t.waiters...)
	t.mu.Unlock()

	close(t.done)
	metrics.TasksTotal.WithLabelValues("complete").Inc()
	t.runCallbacks(TaskStateComplete)
	for _, w := range waiters {
		w.resolveWaitOn(t, nil)
	}
}

// fail transitions the task to Error with err and propagates failure to
// every waiter (spec.md §7 "a task's failure propagates to tasks waiting
// on it").
func (t *Task) fail(err error) {
	t.mu.Lock()
	if t.state == TaskStateComplete || t.state == TaskStateError {
		t.mu.Unlock()
		return
	}
	t.state = TaskStateError
	t.err = err
	t.EndedAt = time.Now()
	waiters := append([]*Task(nil), t.waiters...)
	t.mu.Unlock()

	close(t.done)
	metrics.TasksTotal.WithLabelValues("error").Inc()
	t.runCallbacks(TaskStateError)
	for _, w := range waiters {
		w.resolveWaitOn(t, err)
	}
}

// Ready reports whether every backward dependency has completed
// successfully.
func (t *Task) Ready() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.waitOn) == 0
}

// SetUserEventStatus implements clSetUserEventStatus: a UserEvent task
// starts in Submitted and this call drives it directly to Complete (status
// == 0) or Error (status < 0), per spec.md §4.1.
func (t *Task) SetUserEventStatus(status int32) error {
	if t.Kind != TaskUserEvent {
		return NewValidationError("Task", "Kind", "SetUserEventStatus only valid on a UserEvent task")
	}
	if status == 0 {
		t.Complete()
		return nil
	}
	t.fail(&TaskError{Kind: TaskErrorPropagated, Task: t.id, Cause: NewValidationErrorf("Task", "status", "user event set to error status %d", status)})
	return nil
}

// Retain/Release implement the external reference count (spec.md §3 dual
// reference counting; clRetainEvent/clReleaseEvent).
func (t *Task) Retain()          { t.refs.Retain() }
func (t *Task) Release() bool    { return t.refs.Release() }
func (t *Task) RetainInternal()  { t.refs.RetainInternal() }
func (t *Task) ReleaseInternal() bool { return t.refs.ReleaseInternal() }
