package launch

import (
	"github.com/gogpu/clon12/core"
	"github.com/gogpu/clon12/core/compiler"
	"github.com/gogpu/clon12/hal"
)

// Plan is everything resolved ahead of the record step: the tiled
// sub-dispatches, the packed argument buffer, and the resources each
// sub-dispatch binds.
type Plan struct {
	WorkSize     WorkSize
	SubDispatches []SubDispatch
	ArgBuffer    *ArgBuffer
	Layouts      []ArgLayout
	PrintfBuffer []byte // nil if the kernel has no printf calls
	PrintfUAVSlot int32
}

// Prepare resolves work size, tiles the dispatch, and packs the argument
// buffer (spec.md §4.4, excluding the record step itself).
func Prepare(nd NDRange, info compiler.KernelInfo, args []core.KernelArg, layouts []ArgLayout, limits DeviceLimits) (*Plan, error) {
	required := info.RequiredWGSize
	hasRequired := required[0] != 0 || required[1] != 0 || required[2] != 0

	ws, err := ResolveWorkSize(nd, required, hasRequired, limits)
	if err != nil {
		return nil, err
	}

	subs := Tile(nd, ws, limits.MaxDispatchGroups)

	argBuf := NewArgBuffer(info.KernelInputsBufSize)
	if err := argBuf.Pack(args, layouts); err != nil {
		return nil, err
	}

	var printfBuf []byte
	if info.PrintfUAVID >= 0 {
		printfBuf = NewPrintfBuffer()
	}

	return &Plan{
		WorkSize:      ws,
		SubDispatches: subs,
		ArgBuffer:     argBuf,
		Layouts:       layouts,
		PrintfBuffer:  printfBuf,
		PrintfUAVSlot: info.PrintfUAVID,
	}, nil
}

// BoundResource is one resource the record step transitions and binds,
// tagged with the native state it must be in for this dispatch.
type BoundResource struct {
	Resource hal.Resource
	State    hal.ResourceState
}

// Record implements spec.md §4.4's "Record step": wait for specialization
// (the caller does this before calling Record, via Kernel.EnsureSpecialized),
// patch local-pointer offsets, copy the CB image to a dynamic upload CB,
// transition bound resources, bind descriptors, set pipeline state, and
// emit the sub-dispatch loop bumping the work-properties CB offset each
// iteration.
func Record(
	list hal.CommandList,
	imm *hal.ImmediateContext,
	pso hal.PipelineState,
	heaps []hal.DescriptorHeap,
	bound []BoundResource,
	plan *Plan,
	sharedMemOffsets []uint32,
) error {
	if err := plan.ArgBuffer.PatchLocalOffsets(plan.Layouts, sharedMemOffsets); err != nil {
		return err
	}

	alignedWorkPropsSize := align(WorkPropertiesSize, 256)
	cbImageSize := len(plan.ArgBuffer.Bytes) + alignedWorkPropsSize*len(plan.SubDispatches)
	cbImage := make([]byte, cbImageSize)
	copy(cbImage, plan.ArgBuffer.Bytes)

	baseOffset := uint32(len(plan.ArgBuffer.Bytes))
	for i, sub := range plan.SubDispatches {
		WriteWorkProperties(cbImage, baseOffset+uint32(i*alignedWorkPropsSize), sub.Props)
	}

	cbOffset, err := imm.Ring.Allocate(uint64(len(cbImage)), imm.Lists.CurrentID())
	if err != nil {
		return err
	}
	ringView, err := imm.RingBacking.Map()
	if err != nil {
		return err
	}
	copy(ringView[cbOffset:], cbImage)
	imm.RingBacking.Unmap()

	for _, b := range bound {
		if err := imm.State.Transition(b.Resource, 0, b.State); err != nil {
			return err
		}
	}
	if barriers := imm.State.ApplyAll(); len(barriers) > 0 {
		list.ResourceBarrier(barriers)
	}

	list.SetDescriptorHeaps(heaps)
	list.SetPipelineState(pso)
	list.SetComputeRootConstantBufferView(0, imm.RingBacking, cbOffset)

	for i, sub := range plan.SubDispatches {
		if i > 0 {
			list.SetComputeRootConstantBufferView(0, imm.RingBacking, cbOffset+uint64(baseOffset)+uint64(i*alignedWorkPropsSize))
		}
		list.Dispatch(sub.Groups[0], sub.Groups[1], sub.Groups[2])
	}
	imm.Lists.RecordDispatch()
	return nil
}

func align(v, a int) int {
	return (v + a - 1) / a * a
}
