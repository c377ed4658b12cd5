package core

import (
	"fmt"
	"sync"

	"github.com/gogpu/clon12/core/compiler"
	"github.com/gogpu/clon12/hal"
)

// KernelArgKind distinguishes what a kernel argument slot is bound to.
type KernelArgKind int

const (
	ArgUnset KernelArgKind = iota
	ArgBuffer
	ArgImage
	ArgSampler
	ArgInline // plain-old-data bytes, copied verbatim into the arg CBV
	ArgLocal  // __local pointer; only a size is recorded
)

// KernelArg is one argument binding (spec.md §3 "Kernel... per-argument
// bindings: resource refs, sampler refs, or inline bytes").
type KernelArg struct {
	Kind    KernelArgKind
	Buffer  *MemObject
	Sampler *Sampler
	Inline  []byte
	LocalSize uint32
}

// specEntry is one cached specialization's compiled pipeline.
type specEntry struct {
	native  compiler.NativeKernel
	pso     hal.PipelineState
}

// Kernel is a named entry point created from a built Program (spec.md §3
// "Kernel"). Argument bindings are mutable in place (clSetKernelArg); the
// generic native bytecode and per-(device,SpecKey) specialization cache are
// populated lazily at launch time (spec.md §4.3 "At-launch specialization").
type Kernel struct {
	id      KernelID
	program *Program
	info    compiler.KernelInfo

	mu   sync.Mutex
	args []KernelArg

	// generic holds each device's eagerly-compiled generic bytecode
	// (spec.md §4.3 step 4: "eager generic-bytecode compile").
	generic map[*Device]compiler.NativeKernel

	// specialized is keyed by a canonical string built from the device
	// pointer plus SpecializationConfig fields (spec.md §4.3 "SpecKey:
	// device ptr + local size + lowering flags + per-arg packed data").
	// A string key is used because SpecializationConfig embeds a slice and
	// so is not itself a valid Go map key.
	specialized map[string]*specEntry

	refs RefCount
}

// NewKernel creates a kernel entry point bound to program (clCreateKernel).
// Creating a kernel retains the owning program's live-kernel count, which
// blocks a subsequent rebuild until every kernel derived from it is released
// (spec.md §4.3 "Concurrency rule").
func NewKernel(program *Program, info compiler.KernelInfo) *Kernel {
	program.retainKernel()
	return &Kernel{
		program:     program,
		info:        info,
		args:        make([]KernelArg, info.ArgCount),
		generic:     make(map[*Device]compiler.NativeKernel),
		specialized: make(map[string]*specEntry),
		refs:        NewRefCount(),
	}
}

// ID returns the kernel's Hub-assigned ID.
func (k *Kernel) ID() KernelID { return k.id }

// SetID is called once by the Hub registration path.
func (k *Kernel) SetID(id KernelID) { k.id = id }

// Name returns the kernel's entry-point name.
func (k *Kernel) Name() string { return k.info.Name }

// Info returns the kernel's static metadata from program enumeration.
func (k *Kernel) Info() compiler.KernelInfo { return k.info }

// SetArg binds argument index to a buffer, image, sampler, inline bytes, or
// a __local size (clSetKernelArg's several overloads collapse to this one
// call via KernelArg.Kind).
func (k *Kernel) SetArg(index int, arg KernelArg) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if index < 0 || index >= len(k.args) {
		return NewValidationErrorf("Kernel", "index", "argument index %d out of range [0,%d)", index, len(k.args))
	}
	k.args[index] = arg
	return nil
}

// Args returns a snapshot of the current argument bindings, used when
// recording a launch.
func (k *Kernel) Args() []KernelArg {
	k.mu.Lock()
	defer k.mu.Unlock()
	out := make([]KernelArg, len(k.args))
	copy(out, k.args)
	return out
}

// EnsureGeneric returns device's eagerly-compiled generic bytecode,
// compiling it via comp on first use.
func (k *Kernel) EnsureGeneric(device *Device, comp compiler.Compiler) (compiler.NativeKernel, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if nk, ok := k.generic[device]; ok {
		return nk, nil
	}
	binary, ok := k.program.Binary(device)
	if !ok {
		return compiler.NativeKernel{}, &SpecializationError{Kernel: k.id, Cause: fmt.Errorf("program not built for device")}
	}
	nk, err := comp.GetKernel(k.info.Name, binary, nil)
	if err != nil {
		return compiler.NativeKernel{}, &SpecializationError{Kernel: k.id, Cause: err}
	}
	k.generic[device] = nk
	return nk, nil
}

// specKey builds the canonical cache key string for (device, conf)
// (spec.md §4.3 "SpecKey").
func specKey(device *Device, conf compiler.SpecializationConfig) string {
	key := fmt.Sprintf("%p|%d,%d,%d|%t%t%t%t", device,
		conf.LocalSize[0], conf.LocalSize[1], conf.LocalSize[2],
		conf.LowerInt64, conf.LowerInt16, conf.SupportGlobalOffsets, conf.SupportLocalOffsets)
	for _, a := range conf.PerArg {
		key += fmt.Sprintf("|%d,%t,%d,%t", a.LocalSize, a.SamplerNormalized, a.SamplerAddrMode, a.SamplerLinear)
	}
	return key
}

// EnsureSpecialized returns the cached specialization for (device, conf),
// compiling it via comp and lowering it via build on a cache miss (spec.md
// §4.3 "At-launch specialization"). Concurrent callers that miss on the
// same key are not coalesced: each compiles and builds its own pipeline
// state, and the last one stored replaces the earlier entry.
func (k *Kernel) EnsureSpecialized(device *Device, comp compiler.Compiler, conf compiler.SpecializationConfig, build func(compiler.NativeKernel) (hal.PipelineState, error)) (hal.PipelineState, error) {
	key := specKey(device, conf)

	k.mu.Lock()
	if e, ok := k.specialized[key]; ok {
		k.mu.Unlock()
		return e.pso, nil
	}
	k.mu.Unlock()

	binary, ok := k.program.Binary(device)
	if !ok {
		return nil, &SpecializationError{Kernel: k.id, Cause: fmt.Errorf("program not built for device")}
	}
	nk, err := comp.GetKernel(k.info.Name, binary, &conf)
	if err != nil {
		return nil, &SpecializationError{Kernel: k.id, Cause: err}
	}
	if err := comp.Validate(nk.Bytecode); err != nil {
		return nil, &SpecializationError{Kernel: k.id, Cause: err}
	}
	pso, err := build(nk)
	if err != nil {
		return nil, &SpecializationError{Kernel: k.id, Cause: err}
	}

	k.mu.Lock()
	k.specialized[key] = &specEntry{native: nk, pso: pso}
	k.mu.Unlock()
	return pso, nil
}

// Retain/Release implement the external reference count. Releasing the
// kernel's last external reference also releases the owning program's
// live-kernel hold.
func (k *Kernel) Retain() { k.refs.Retain() }

func (k *Kernel) Release() bool {
	zero := k.refs.Release()
	if zero {
		k.program.releaseKernel()
	}
	return zero
}
