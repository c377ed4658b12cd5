// Package reference provides a trivial in-process compiler.Compiler
// implementation paired with hal/nativesoftware, the way that package
// pairs with a driver-less hal.Device: there is no real OpenCL-C/SPIR-V
// toolchain in this environment, so this stands in for one under
// CLON12_FORCE_WARP and in tests. It does not parse or optimize kernel
// source; it treats the source text itself as the "IL" and "binary", and
// recovers kernel names via a regular-expression scan for `__kernel`
// declarations, just enough to drive the build/specialize/launch pipeline
// end to end without a real compiler present.
package reference

import (
	"fmt"
	"regexp"

	"github.com/gogpu/clon12/core/compiler"
)

var kernelDeclRe = regexp.MustCompile(`__kernel\s+(?:\w+\s+)*?\s*void\s+(\w+)\s*\(([^)]*)\)`)

// Compiler is the reference compiler.Compiler implementation.
type Compiler struct{}

var _ compiler.Compiler = (*Compiler)(nil)

// New returns a reference Compiler.
func New() *Compiler { return &Compiler{} }

func (c *Compiler) Parse(source string) (compiler.IL, error) {
	return compiler.IL(source), nil
}

func (c *Compiler) Compile(il compiler.IL, _ compiler.CompileArgs) (compiler.Intermediate, error) {
	return compiler.Intermediate(il), nil
}

func (c *Compiler) Link(objs []compiler.Intermediate, _ bool) (compiler.Binary, error) {
	var src []byte
	for _, o := range objs {
		src = append(src, o...)
	}
	kernels := parseKernels(string(src))
	return compiler.Binary{Bytes: src, Kernels: kernels}, nil
}

func (c *Compiler) GetKernel(name string, binary compiler.Binary, _ *compiler.SpecializationConfig) (compiler.NativeKernel, error) {
	for _, k := range binary.Kernels {
		if k.Name == name {
			return compiler.NativeKernel{Bytecode: []byte(name)}, nil
		}
	}
	return compiler.NativeKernel{}, fmt.Errorf("kernel %q not found in binary", name)
}

func (c *Compiler) SpirvToNative(kernel compiler.NativeKernel) ([]byte, error) {
	return kernel.Bytecode, nil
}

func (c *Compiler) Validate(_ []byte) error { return nil }

func (c *Compiler) Version() string { return "reference-0" }

func parseKernels(source string) []compiler.KernelInfo {
	matches := kernelDeclRe.FindAllStringSubmatch(source, -1)
	kernels := make([]compiler.KernelInfo, 0, len(matches))
	for _, m := range matches {
		name := m[1]
		argc := 0
		if params := m[2]; len(params) > 0 {
			argc = len(regexp.MustCompile(`,`).Split(params, -1))
		}
		kernels = append(kernels, compiler.KernelInfo{
			Name:                name,
			ArgCount:            argc,
			KernelInputsBufSize: uint32(argc) * 4,
			PrintfUAVID:         -1,
		})
	}
	return kernels
}
