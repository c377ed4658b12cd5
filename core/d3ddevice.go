package core

import (
	"context"
	"sync"

	"github.com/gogpu/clon12/hal"
	"github.com/gogpu/clon12/internal/thread"
)

// D3DDevice is a (Device, Context) pairing: one immediate context, one
// background scheduler thread that executes recorded submissions, a
// deferred-deletion queue, and a recording submission (spec.md §3 "D3D
// device"). It holds no shader cache; the shared cache is icd.Runtime's. Grounded on the teacher's
// per-device dedicated-thread idiom (internal/thread.Thread), now scoped
// per (Device, Context) pair instead of per render surface.
type D3DDevice struct {
	device  *Device
	context *Context
	imm     *hal.ImmediateContext

	scheduler *thread.Thread
	deferred  *DeferredDeletionQueue

	mu        sync.Mutex
	recording []*Task // tasks ready to be recorded together, not yet flushed
}

func newD3DDevice(device *Device, context *Context, imm *hal.ImmediateContext) *D3DDevice {
	return &D3DDevice{
		device:    device,
		context:   context,
		imm:       imm,
		scheduler: thread.New(),
		deferred:  NewDeferredDeletionQueue(),
	}
}

// Immediate returns the (2)-(6) subsystem composition this D3D device
// drives.
func (d *D3DDevice) Immediate() *hal.ImmediateContext { return d.imm }

// Deferred returns this D3D device's deferred-deletion queue: backings
// released while still GPU-referenced are enqueued here instead of being
// freed immediately (spec.md §3 "Lifecycles").
func (d *D3DDevice) Deferred() *DeferredDeletionQueue { return d.deferred }

// ReadyTask appends task to the current recording submission (spec.md §4.1
// "When a task's dependency list empties, call device.ready_task(task)
// which appends it to the D3D device's recording submission").
func (d *D3DDevice) ReadyTask(t *Task) {
	d.mu.Lock()
	d.recording = append(d.recording, t)
	d.mu.Unlock()
}

// Flush posts the current recording submission to the background scheduler
// thread, which records each task into the immediate context and installs
// a fresh empty recording submission (spec.md §4.1 "A flush of the D3D
// device posts the current recording submission to the background
// scheduler and installs a fresh empty one").
func (d *D3DDevice) Flush(ctx context.Context, record func(*Task, *hal.ImmediateContext) error) {
	d.mu.Lock()
	batch := d.recording
	d.recording = nil
	d.mu.Unlock()

	if len(batch) == 0 {
		return
	}

	d.scheduler.CallVoid(func() {
		for _, t := range batch {
			t.setState(TaskStateRunning)
			t.runCallbacks(TaskStateRunning)
			if err := record(t, d.imm); err != nil {
				t.fail(&TaskError{Kind: TaskErrorOutOfResources, Task: t.id, Cause: err})
				continue
			}
		}
		if err := d.imm.Flush(ctx); err != nil {
			for _, t := range batch {
				if t.State() == TaskStateRunning {
					t.fail(&TaskError{Kind: TaskErrorOutOfResources, Task: t.id, Cause: err})
				}
			}
		}
		d.deferred.ReclaimUpTo(d.imm.Lists.FenceCompleted())
	})
}

// Stop shuts down the background scheduler thread.
func (d *D3DDevice) Stop() { d.scheduler.Stop() }
