package icd

import (
	"context"

	"github.com/gogpu/clon12/core"
	"github.com/gogpu/clon12/internal/config"
	"github.com/gogpu/clon12/hal"
)

// immediateContextConfigFrom derives the tunable set every D3D device the
// runtime lazily creates is built with from the platform's loaded
// internal/config.Config, so the env-driven constants (ring buffer ledger
// depth, buddy threshold/root/min-block, forced-flush bytes, ...) actually
// reach hal.NewImmediateContext instead of a hardcoded stand-in.
func immediateContextConfigFrom(cfg config.Config) hal.ImmediateContextConfig {
	return hal.ImmediateContextConfig{
		DescriptorHeapSlots:          cfg.DescriptorHeapSlots,
		RingBufferSize:               cfg.RingBufferSize,
		RingBufferLedgerDepth:        cfg.RingBufferLedgerDepth,
		BuddyThreshold:               cfg.BuddyThreshold,
		BuddyRootSize:                cfg.BuddyRootSize,
		BuddyMinBlock:                cfg.BuddyMinBlock,
		FencePoolMaxDepth:            cfg.FencePoolMaxDepth,
		OpportunisticFlushCommands:   cfg.OpportunisticFlushCommands,
		OpportunisticFlushDispatches: cfg.OpportunisticFlushDispatches,
		ForcedFlushBytes:             cfg.ForcedFlushBytes,
		ResidencyMinGrace:            cfg.ResidencyMinGrace,
		ResidencyMaxGrace:            cfg.ResidencyMaxGrace,
	}
}

// CreateCommandQueue implements clCreateCommandQueue: resolves the
// (device, context) pairing's D3D device (creating it lazily) and
// registers a new CommandQueue bound to it.
func (rt *Runtime) CreateCommandQueue(ctxID core.ContextID, deviceID core.DeviceID, outOfOrder, profiling bool) (core.CommandQueueID, error) {
	ctx, err := rt.Platform.Hub().Contexts().Get(ctxID)
	if err != nil {
		return core.CommandQueueID{}, err
	}
	device, err := rt.Platform.Hub().Devices().Get(deviceID)
	if err != nil {
		return core.CommandQueueID{}, err
	}
	if !ctx.HasDevice(device) {
		return core.CommandQueueID{}, core.NewValidationError("CommandQueue", "device", "device does not belong to context")
	}

	d3d, err := device.D3DDeviceFor(ctx, immediateContextConfigFrom(rt.Platform.Config()))
	if err != nil {
		return core.CommandQueueID{}, err
	}

	q := core.NewCommandQueue(rt.Platform, ctx, d3d, outOfOrder, profiling)
	id := rt.Platform.Hub().Queues().Register(q)
	q.SetID(id)
	return id, nil
}

// recordTask is the CommandQueue.Flush "record" callback every enqueue
// path shares: it dispatches on the task's Kind to the right hal
// operation. Kinds that need no native recording (Marker, UserEvent)
// simply succeed.
func recordTask(task *core.Task, imm *hal.ImmediateContext) error {
	if task.Kind == core.TaskBarrier {
		if err := imm.RecordBarriers(context.Background()); err != nil {
			return err
		}
	}
	if err := task.Record(imm); err != nil {
		return err
	}
	return imm.MaybeFlush(context.Background())
}

// Flush implements clFlush.
func (rt *Runtime) Flush(ctx context.Context, qid core.CommandQueueID) error {
	q, err := rt.Platform.Hub().Queues().Get(qid)
	if err != nil {
		return err
	}
	q.Flush(ctx, recordTask)
	return nil
}

// Finish implements clFinish.
func (rt *Runtime) Finish(ctx context.Context, qid core.CommandQueueID) error {
	q, err := rt.Platform.Hub().Queues().Get(qid)
	if err != nil {
		return err
	}
	q.Finish(ctx, recordTask)
	return nil
}

// EnqueueMarker implements clEnqueueMarkerWithWaitList.
func (rt *Runtime) EnqueueMarker(qid core.CommandQueueID, waitList []core.TaskID) (core.TaskID, error) {
	return rt.enqueueControl(qid, core.TaskMarker, waitList)
}

// EnqueueBarrier implements clEnqueueBarrierWithWaitList.
func (rt *Runtime) EnqueueBarrier(qid core.CommandQueueID, waitList []core.TaskID) (core.TaskID, error) {
	return rt.enqueueControl(qid, core.TaskBarrier, waitList)
}

func (rt *Runtime) enqueueControl(qid core.CommandQueueID, kind core.TaskKind, waitList []core.TaskID) (core.TaskID, error) {
	q, err := rt.Platform.Hub().Queues().Get(qid)
	if err != nil {
		return core.TaskID{}, err
	}
	waits, err := rt.resolveWaitList(waitList)
	if err != nil {
		return core.TaskID{}, err
	}
	task := core.NewTask(kind, q)
	if err := q.Enqueue(task, waits); err != nil {
		return core.TaskID{}, err
	}
	id := rt.Platform.Hub().Tasks().Register(task)
	task.SetID(id)
	return id, nil
}

func (rt *Runtime) resolveWaitList(ids []core.TaskID) ([]*core.Task, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	tasks := make([]*core.Task, 0, len(ids))
	for _, id := range ids {
		t, err := rt.Platform.Hub().Tasks().Get(id)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, nil
}
