// Package compiler defines the external OpenCL-C/SPIR-V → native-bytecode
// compiler contract (spec.md §4.3, §6) and the shader/specialization
// caches built on top of it. The compiler and validator libraries
// themselves are out of scope (spec.md §1's black-box contract); this
// package only defines the interface clon12's program/kernel pipeline
// drives.
package compiler

import "github.com/gogpu/clon12/internal/hash"

// FeatureSet is the platform-implied + caller-requested feature flags a
// build augments its options with (spec.md §4.3 step 1).
type FeatureSet struct {
	Lower64BitOps  bool
	LowerInt16     bool
	SupportGlobalOffsets bool
	SupportLocalOffsets  bool
}

// CompileArgs are the caller's build options plus FeatureSet, as passed to
// Compile.
type CompileArgs struct {
	Options  []string
	Features FeatureSet
}

// IL is parsed intermediate language (either from OpenCL-C source via
// Parse, or supplied directly as SPIR-V).
type IL []byte

// Intermediate is one Compile call's output object, fed to Link.
type Intermediate []byte

// Binary is a final, linked executable (spec.md §6 "Program binary blob").
type Binary struct {
	Bytes   []byte
	Kernels []KernelInfo
}

// KernelInfo describes one kernel enumerated from a built Binary (spec.md
// §4.3 step 4 "enumerate kernels").
type KernelInfo struct {
	Name            string
	ArgCount        int
	RequiredWGSize  [3]uint32 // zero if the kernel has no required size
	KernelInputsCBV uint32
	KernelInputsBufSize uint32
	PrintfUAVID     int32 // -1 if the kernel has no printf calls
}

// SpecializationConfig parametrizes GetKernel for one specialization
// (spec.md §4.3 "SpecKey"). A nil config requests the kernel's *generic*
// native bytecode (spec.md §4.3 step 4).
type SpecializationConfig struct {
	LocalSize             [3]uint16
	LowerInt64            bool
	LowerInt16             bool
	SupportGlobalOffsets  bool
	SupportLocalOffsets   bool
	PerArg                []ArgSpecialization
}

// ArgSpecialization is one kernel argument's specialization-relevant bits
// (spec.md §4.3 "per-arg packed data").
type ArgSpecialization struct {
	LocalSize        uint32 // for __local pointer args
	SamplerNormalized bool
	SamplerAddrMode  uint8
	SamplerLinear    bool
}

// NativeKernel is one specialization's compiled native bytecode, ready for
// CreatePipelineState.
type NativeKernel struct {
	Bytecode []byte
}

// Compiler is the external compiler/validator library's entry points
// (spec.md §4.3, §6).
type Compiler interface {
	Parse(source string) (IL, error)
	Compile(il IL, args CompileArgs) (Intermediate, error)
	Link(objs []Intermediate, createLibrary bool) (Binary, error)
	GetKernel(name string, binary Binary, conf *SpecializationConfig) (NativeKernel, error)
	// SpirvToNative lowers native bytecode produced by GetKernel into the
	// native GPU API's pipeline bytecode (spec.md §6).
	SpirvToNative(kernel NativeKernel) ([]byte, error)
	// Validate signs native bytecode; implementations that have no real
	// validator (e.g. the software reference device) may always succeed.
	Validate(nativeBytecode []byte) error
	Version() string
}

// BuildKey computes the 128-bit shader-cache key for one build (spec.md
// §4.3 step 2: "Hash (source, preprocessor defs, enabled features)").
func BuildKey(source string, defs []string, features FeatureSet) hash.Key128 {
	parts := [][]byte{[]byte(source)}
	for _, d := range defs {
		parts = append(parts, []byte(d))
	}
	parts = append(parts, featureBytes(features))
	return hash.Sum128(parts...)
}

func featureBytes(f FeatureSet) []byte {
	b := make([]byte, 4)
	if f.Lower64BitOps {
		b[0] = 1
	}
	if f.LowerInt16 {
		b[1] = 1
	}
	if f.SupportGlobalOffsets {
		b[2] = 1
	}
	if f.SupportLocalOffsets {
		b[3] = 1
	}
	return b
}
