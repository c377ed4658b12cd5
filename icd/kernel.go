package icd

import (
	"github.com/gogpu/clon12/core"
	"github.com/gogpu/clon12/core/compiler"
	"github.com/gogpu/clon12/core/launch"
	"github.com/gogpu/clon12/hal"
)

// CreateKernel implements clCreateKernel: looks name up in prog's binary
// for the first device it was built on (per-device re-resolution happens
// lazily at launch via Kernel.EnsureGeneric/EnsureSpecialized).
func (rt *Runtime) CreateKernel(progID core.ProgramID, name string) (core.KernelID, error) {
	prog, err := rt.Platform.Hub().Programs().Get(progID)
	if err != nil {
		return core.KernelID{}, err
	}

	var info *compiler.KernelInfo
	for _, did := range rt.Platform.Devices() {
		device, err := rt.Platform.Hub().Devices().Get(did)
		if err != nil {
			continue
		}
		binary, ok := prog.Binary(device)
		if !ok {
			continue
		}
		for i := range binary.Kernels {
			if binary.Kernels[i].Name == name {
				info = &binary.Kernels[i]
				break
			}
		}
		if info != nil {
			break
		}
	}
	if info == nil {
		return core.KernelID{}, core.NewValidationErrorf("Kernel", "name", "kernel %q not found in any built device binary", name)
	}

	kernel := core.NewKernel(prog, *info)
	id := rt.Platform.Hub().Kernels().Register(kernel)
	kernel.SetID(id)
	return id, nil
}

// ReleaseKernel implements clReleaseKernel.
func (rt *Runtime) ReleaseKernel(id core.KernelID) error {
	k, err := rt.Platform.Hub().Kernels().Get(id)
	if err != nil {
		return err
	}
	if k.Release() {
		_, _ = rt.Platform.Hub().Kernels().Unregister(id)
	}
	return nil
}

// SetKernelArgBuffer implements clSetKernelArg for a cl_mem argument.
func (rt *Runtime) SetKernelArgBuffer(kid core.KernelID, index int, memID core.MemObjectID) error {
	k, err := rt.Platform.Hub().Kernels().Get(kid)
	if err != nil {
		return err
	}
	mem, err := rt.Platform.Hub().MemObjects().Get(memID)
	if err != nil {
		return err
	}
	return k.SetArg(index, core.KernelArg{Kind: core.ArgBuffer, Buffer: mem})
}

// SetKernelArgSampler implements clSetKernelArg for a cl_sampler argument.
func (rt *Runtime) SetKernelArgSampler(kid core.KernelID, index int, samplerID core.SamplerID) error {
	k, err := rt.Platform.Hub().Kernels().Get(kid)
	if err != nil {
		return err
	}
	s, err := rt.Platform.Hub().Samplers().Get(samplerID)
	if err != nil {
		return err
	}
	return k.SetArg(index, core.KernelArg{Kind: core.ArgSampler, Sampler: s})
}

// SetKernelArgValue implements clSetKernelArg for a plain-old-data value.
func (rt *Runtime) SetKernelArgValue(kid core.KernelID, index int, data []byte) error {
	k, err := rt.Platform.Hub().Kernels().Get(kid)
	if err != nil {
		return err
	}
	inline := make([]byte, len(data))
	copy(inline, data)
	return k.SetArg(index, core.KernelArg{Kind: core.ArgInline, Inline: inline})
}

// SetKernelArgLocal implements clSetKernelArg for a __local pointer.
func (rt *Runtime) SetKernelArgLocal(kid core.KernelID, index int, size uint32) error {
	k, err := rt.Platform.Hub().Kernels().Get(kid)
	if err != nil {
		return err
	}
	return k.SetArg(index, core.KernelArg{Kind: core.ArgLocal, LocalSize: size})
}

// EnqueueNDRangeKernel implements clEnqueueNDRangeKernel: resolves work
// size, tiles the dispatch, packs arguments, and records a task whose
// recorder waits for the kernel's specialization and emits the
// sub-dispatch loop (spec.md §4.4 in full).
func (rt *Runtime) EnqueueNDRangeKernel(qid core.CommandQueueID, kid core.KernelID, nd launch.NDRange, limits launch.DeviceLimits, waitList []core.TaskID) (core.TaskID, error) {
	q, err := rt.Platform.Hub().Queues().Get(qid)
	if err != nil {
		return core.TaskID{}, err
	}
	k, err := rt.Platform.Hub().Kernels().Get(kid)
	if err != nil {
		return core.TaskID{}, err
	}
	waits, err := rt.resolveWaitList(waitList)
	if err != nil {
		return core.TaskID{}, err
	}
	device := q.Context().Devices()[0]

	args := k.Args()
	layouts := deriveLayouts(args)
	plan, err := launch.Prepare(nd, k.Info(), args, layouts, limits)
	if err != nil {
		return core.TaskID{}, err
	}

	task := core.NewTask(core.TaskNDRangeKernel, q)
	task.SetRecorder(func(imm *hal.ImmediateContext) error {
		return recordKernelLaunch(imm, device, k, rt.Compiler, compilerFeaturesFor(device), args, plan)
	})

	if err := q.Enqueue(task, waits); err != nil {
		return core.TaskID{}, err
	}
	id := rt.Platform.Hub().Tasks().Register(task)
	task.SetID(id)
	return id, nil
}

// deriveLayouts builds a packed offset/size table for args in declaration
// order: inline args get 4-byte-aligned slots; buffer/image/local args get
// a 4-byte binding-id slot; sampler args occupy no constant-buffer space.
func deriveLayouts(args []core.KernelArg) []launch.ArgLayout {
	layouts := make([]launch.ArgLayout, len(args))
	offset := uint32(0)
	for i, a := range args {
		l := launch.ArgLayout{Offset: offset, BindingID: uint32(i)}
		switch a.Kind {
		case core.ArgBuffer, core.ArgImage:
			l.IsBuffer = true
			offset += 4
		case core.ArgSampler:
			l.IsSampler = true
		case core.ArgLocal:
			l.IsLocal = true
			offset += 4
		default:
			l.Size = uint32(len(a.Inline))
			offset += align4(l.Size)
		}
		layouts[i] = l
	}
	return layouts
}

func align4(n uint32) uint32 { return (n + 3) / 4 * 4 }

// specializationConfigFor derives the SpecKey inputs for this launch: the
// resolved local size, the device's lowering requirements, and each
// __local argument's byte size (spec.md §4.3 "SpecKey").
func specializationConfigFor(plan *launch.Plan, features compiler.FeatureSet, args []core.KernelArg) compiler.SpecializationConfig {
	conf := compiler.SpecializationConfig{
		LocalSize: [3]uint16{
			uint16(plan.WorkSize.LocalSize[0]),
			uint16(plan.WorkSize.LocalSize[1]),
			uint16(plan.WorkSize.LocalSize[2]),
		},
		LowerInt64:           features.Lower64BitOps,
		LowerInt16:           features.LowerInt16,
		SupportGlobalOffsets: features.SupportGlobalOffsets,
		SupportLocalOffsets:  features.SupportLocalOffsets,
		PerArg:               make([]compiler.ArgSpecialization, len(args)),
	}
	for i, a := range args {
		switch a.Kind {
		case core.ArgLocal:
			conf.PerArg[i] = compiler.ArgSpecialization{LocalSize: a.LocalSize}
		case core.ArgSampler:
			if a.Sampler != nil {
				conf.PerArg[i] = compiler.ArgSpecialization{
					SamplerNormalized: a.Sampler.NormalizedCoords,
					SamplerAddrMode:   uint8(a.Sampler.Addressing),
					SamplerLinear:     a.Sampler.Filter == core.FilterLinear,
				}
			}
		}
	}
	return conf
}

// recordKernelLaunch is the launch task's recorder: it resolves the
// specialized pipeline state for device, binds every buffer argument's
// current backing, and emits the sub-dispatch loop via launch.Record.
func recordKernelLaunch(imm *hal.ImmediateContext, device *core.Device, k *core.Kernel, comp compiler.Compiler, features compiler.FeatureSet, args []core.KernelArg, plan *launch.Plan) error {
	conf := specializationConfigFor(plan, features, args)
	pso, err := k.EnsureSpecialized(device, comp, conf, func(nk compiler.NativeKernel) (hal.PipelineState, error) {
		native, err := comp.SpirvToNative(nk)
		if err != nil {
			return nil, err
		}
		return imm.Device.CreatePipelineState(native)
	})
	if err != nil {
		return err
	}

	list, err := imm.Lists.List(nil)
	if err != nil {
		return err
	}

	bound := make([]launch.BoundResource, 0, len(args))
	for _, a := range args {
		if a.Kind != core.ArgBuffer {
			continue
		}
		alloc, err := a.Buffer.EnsureBacking(device, imm.Suballoc)
		if err != nil {
			return err
		}
		a.Buffer.SetLastUsedCommandListID(device, imm.Lists.CurrentID())
		bound = append(bound, launch.BoundResource{Resource: alloc.Resource, State: hal.StateUnorderedAccess})
	}

	return launch.Record(list, imm, pso, nil, bound, plan, nil)
}
