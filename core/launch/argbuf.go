package launch

import (
	"encoding/binary"

	"github.com/gogpu/clon12/core"
)

// ArgLayout is one argument's offset/size within the kernel's argument
// constant buffer, as returned by the compiler alongside kernel_inputs_cbv_id
// and kernel_inputs_buf_size (spec.md §4.4 "Argument constant buffer").
type ArgLayout struct {
	Offset     uint32
	Size       uint32
	IsBuffer   bool
	IsSampler  bool
	IsLocal    bool
	BindingID  uint32 // meaningful when IsBuffer
}

// ArgBuffer is the host-side image of a kernel's argument constant buffer,
// built before the record step copies it into a dynamic upload CB.
type ArgBuffer struct {
	Bytes []byte
}

// NewArgBuffer allocates a zeroed argument buffer of kernelInputsBufSize.
func NewArgBuffer(kernelInputsBufSize uint32) *ArgBuffer {
	return &ArgBuffer{Bytes: make([]byte, kernelInputsBufSize)}
}

// Pack writes args into the buffer per layouts: scalar/by-value args are
// copied directly; buffer/image args store only a binding id; sampler args
// store nothing (sampler specialization occurs in the SpecKey); local-memory
// pointers store only a placeholder, filled in by PatchLocalOffsets once
// specialization completes (spec.md §4.4 "Argument constant buffer").
func (b *ArgBuffer) Pack(args []core.KernelArg, layouts []ArgLayout) error {
	for i, a := range args {
		if i >= len(layouts) {
			return core.NewValidationErrorf("ArgBuffer", "args", "argument %d has no layout entry", i)
		}
		l := layouts[i]
		switch a.Kind {
		case core.ArgSampler, core.ArgLocal:
			continue
		case core.ArgBuffer, core.ArgImage:
			if l.Offset+4 > uint32(len(b.Bytes)) {
				return core.NewValidationErrorf("ArgBuffer", "offset", "argument %d offset out of range", i)
			}
			binary.LittleEndian.PutUint32(b.Bytes[l.Offset:], l.BindingID)
		case core.ArgInline:
			if l.Offset+uint32(len(a.Inline)) > uint32(len(b.Bytes)) {
				return core.NewValidationErrorf("ArgBuffer", "offset", "argument %d inline data out of range", i)
			}
			copy(b.Bytes[l.Offset:], a.Inline)
		default:
			return core.NewValidationErrorf("ArgBuffer", "kind", "argument %d was never set", i)
		}
	}
	return nil
}

// PatchLocalOffsets writes each __local pointer argument's compiler-emitted
// sharedmem offset into its cell, once known after specialization (spec.md
// §4.4 "Record step... For each local-pointer arg, patch its offset cell").
func (b *ArgBuffer) PatchLocalOffsets(layouts []ArgLayout, sharedMemOffsets []uint32) error {
	localIdx := 0
	for _, l := range layouts {
		if !l.IsLocal {
			continue
		}
		if localIdx >= len(sharedMemOffsets) {
			return core.NewValidationErrorf("ArgBuffer", "local", "missing sharedmem offset for local arg %d", localIdx)
		}
		if l.Offset+4 > uint32(len(b.Bytes)) {
			return core.NewValidationErrorf("ArgBuffer", "offset", "local arg %d offset out of range", localIdx)
		}
		binary.LittleEndian.PutUint32(b.Bytes[l.Offset:], sharedMemOffsets[localIdx])
		localIdx++
	}
	return nil
}

// WriteWorkProperties serializes a WorkProperties record into the buffer at
// offset, which the caller has already aligned to the native CB placement
// alignment.
func WriteWorkProperties(buf []byte, offset uint32, props WorkProperties) {
	w := buf[offset:]
	binary.LittleEndian.PutUint32(w[0:], props.GlobalOffsetX)
	binary.LittleEndian.PutUint32(w[4:], props.GlobalOffsetY)
	binary.LittleEndian.PutUint32(w[8:], props.GlobalOffsetZ)
	binary.LittleEndian.PutUint32(w[12:], props.WorkDim)
	binary.LittleEndian.PutUint32(w[16:], props.GroupCountTotalX)
	binary.LittleEndian.PutUint32(w[20:], props.GroupCountTotalY)
	binary.LittleEndian.PutUint32(w[24:], props.GroupCountTotalZ)
	binary.LittleEndian.PutUint32(w[28:], props.Padding)
	binary.LittleEndian.PutUint32(w[32:], props.GroupIDOffsetX)
	binary.LittleEndian.PutUint32(w[36:], props.GroupIDOffsetY)
	binary.LittleEndian.PutUint32(w[40:], props.GroupIDOffsetZ)
}

// WorkPropertiesSize is the serialized size of one WorkProperties record.
const WorkPropertiesSize = 44
