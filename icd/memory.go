package icd

import (
	"context"

	"github.com/gogpu/clon12/core"
	"github.com/gogpu/clon12/hal"
)

// CreateBuffer implements clCreateBuffer.
func (rt *Runtime) CreateBuffer(ctxID core.ContextID, sizeBytes uint64, hostAccess uint32) (core.MemObjectID, error) {
	ctx, err := rt.Platform.Hub().Contexts().Get(ctxID)
	if err != nil {
		return core.MemObjectID{}, err
	}
	mem := core.NewMemObject(ctx, core.MemObjectDesc{
		Kind:       core.MemObjectBuffer,
		SizeBytes:  sizeBytes,
		HostAccess: hostAccess,
	})
	id := rt.Platform.Hub().MemObjects().Register(mem)
	mem.SetID(id)
	return id, nil
}

// CreateSubBuffer implements clCreateSubBuffer (CL_BUFFER_CREATE_TYPE_REGION).
func (rt *Runtime) CreateSubBuffer(parentID core.MemObjectID, origin, size uint64) (core.MemObjectID, error) {
	parent, err := rt.Platform.Hub().MemObjects().Get(parentID)
	if err != nil {
		return core.MemObjectID{}, err
	}
	if origin+size > parent.Desc.SizeBytes {
		return core.MemObjectID{}, core.NewValidationError("MemObject", "size", "sub-buffer region exceeds parent buffer size")
	}
	sub := core.NewSubBuffer(parent, origin, size)
	id := rt.Platform.Hub().MemObjects().Register(sub)
	sub.SetID(id)
	return id, nil
}

// ReleaseMemObject implements clReleaseMemObject. A backing that is still
// GPU-referenced is not freed in place: it is handed to its owning D3D
// device's deferred-deletion queue, reclaimed once that device's fence
// passes the command-list id that last touched it.
func (rt *Runtime) ReleaseMemObject(id core.MemObjectID) error {
	mem, err := rt.Platform.Hub().MemObjects().Get(id)
	if err != nil {
		return err
	}
	if mem.Release() {
		mem.ReleaseBackings(func(device *core.Device, alloc hal.Suballocation, readback bool, lastUsedCLID uint64) {
			dd, ok := device.D3DDeviceIfExists(mem.Context())
			if !ok {
				return
			}
			allocator := dd.Immediate().Suballoc.Upload
			if readback {
				allocator = dd.Immediate().Suballoc.Readback
			}
			dd.Deferred().Enqueue(lastUsedCLID, alloc, func(a hal.Suballocation) {
				if err := allocator.Free(a); err != nil {
					hal.Logger().Warn("mem object release: free deferred backing failed", "error", err)
				}
			})
		})
		_, _ = rt.Platform.Hub().MemObjects().Unregister(id)
	}
	return nil
}

// EnqueueWriteBuffer implements clEnqueueWriteBuffer: enqueues a task that
// copies data into mem's device backing via CopyBufferRegion on the owning
// D3D device's immediate context.
func (rt *Runtime) EnqueueWriteBuffer(qid core.CommandQueueID, memID core.MemObjectID, offset uint64, data []byte, waitList []core.TaskID) (core.TaskID, error) {
	return rt.enqueueBufferIO(qid, memID, core.TaskBufferWrite, offset, data, waitList)
}

// EnqueueReadBuffer implements clEnqueueReadBuffer: reads the device's
// current contents into dst after the task completes.
func (rt *Runtime) EnqueueReadBuffer(qid core.CommandQueueID, memID core.MemObjectID, offset uint64, dst []byte, waitList []core.TaskID) (core.TaskID, error) {
	return rt.enqueueBufferIO(qid, memID, core.TaskBufferRead, offset, dst, waitList)
}

func (rt *Runtime) enqueueBufferIO(qid core.CommandQueueID, memID core.MemObjectID, kind core.TaskKind, offset uint64, buf []byte, waitList []core.TaskID) (core.TaskID, error) {
	q, err := rt.Platform.Hub().Queues().Get(qid)
	if err != nil {
		return core.TaskID{}, err
	}
	mem, err := rt.Platform.Hub().MemObjects().Get(memID)
	if err != nil {
		return core.TaskID{}, err
	}
	waits, err := rt.resolveWaitList(waitList)
	if err != nil {
		return core.TaskID{}, err
	}

	device := q.Context().Devices()[0]

	task := core.NewTask(kind, q)
	task.SetRecorder(func(imm *hal.ImmediateContext) error {
		alloc, err := mem.EnsureBacking(device, imm.Suballoc)
		if err != nil {
			return err
		}
		mem.SetLastUsedCommandListID(device, imm.Lists.CurrentID())
		view, err := alloc.Resource.Map()
		if err != nil {
			return err
		}
		defer alloc.Resource.Unmap()
		if kind == core.TaskBufferRead {
			copy(buf, view[alloc.Offset+offset:])
		} else {
			copy(view[alloc.Offset+offset:], buf)
		}
		imm.Lists.RecordUpload(uint64(len(buf)))
		return nil
	})
	if err := q.Enqueue(task, waits); err != nil {
		return core.TaskID{}, err
	}
	id := rt.Platform.Hub().Tasks().Register(task)
	task.SetID(id)
	return id, nil
}

// EnqueueCopyBuffer implements clEnqueueCopyBuffer.
func (rt *Runtime) EnqueueCopyBuffer(qid core.CommandQueueID, srcID, dstID core.MemObjectID, srcOffset, dstOffset, size uint64, waitList []core.TaskID) (core.TaskID, error) {
	q, err := rt.Platform.Hub().Queues().Get(qid)
	if err != nil {
		return core.TaskID{}, err
	}
	src, err := rt.Platform.Hub().MemObjects().Get(srcID)
	if err != nil {
		return core.TaskID{}, err
	}
	dst, err := rt.Platform.Hub().MemObjects().Get(dstID)
	if err != nil {
		return core.TaskID{}, err
	}
	waits, err := rt.resolveWaitList(waitList)
	if err != nil {
		return core.TaskID{}, err
	}

	device := q.Context().Devices()[0]

	task := core.NewTask(core.TaskBufferCopy, q)
	task.SetRecorder(func(imm *hal.ImmediateContext) error {
		srcAlloc, err := src.EnsureBacking(device, imm.Suballoc)
		if err != nil {
			return err
		}
		dstAlloc, err := dst.EnsureBacking(device, imm.Suballoc)
		if err != nil {
			return err
		}
		src.SetLastUsedCommandListID(device, imm.Lists.CurrentID())
		dst.SetLastUsedCommandListID(device, imm.Lists.CurrentID())
		list, err := imm.Lists.List(context.Background())
		if err != nil {
			return err
		}
		list.CopyBufferRegion(dstAlloc.Resource, dstAlloc.Offset+dstOffset, srcAlloc.Resource, srcAlloc.Offset+srcOffset, size)
		imm.Lists.RecordCommand()
		return nil
	})
	if err := q.Enqueue(task, waits); err != nil {
		return core.TaskID{}, err
	}
	id := rt.Platform.Hub().Tasks().Register(task)
	task.SetID(id)
	return id, nil
}

