package icd

import (
	"github.com/gogpu/clon12/core"
	"github.com/gogpu/clon12/core/compiler"
	"github.com/gogpu/clon12/internal/config"
)

// Extensions is the extension string advertised by every device (spec.md
// §6: "cl_khr_icd, cl_khr_*_int32_base/extended_atomics,
// cl_khr_byte_addressable_store, cl_khr_il_program (+ _KHR alias),
// cl_khr_gl_sharing, cl_khr_gl_event (sharing funcs may be null in the
// dispatch table)").
var Extensions = []string{
	"cl_khr_icd",
	"cl_khr_global_int32_base_atomics",
	"cl_khr_global_int32_extended_atomics",
	"cl_khr_local_int32_base_atomics",
	"cl_khr_local_int32_extended_atomics",
	"cl_khr_byte_addressable_store",
	"cl_khr_il_program",
	"cl_khr_il_program_KHR",
	"cl_khr_gl_sharing",
	"cl_khr_gl_event",
}

// Runtime is the ICD's process-wide handle: one core.Platform plus the
// external compiler the platform's devices build programs with (spec.md
// §6 "Compiler ABI (consumed)").
type Runtime struct {
	Platform *core.Platform
	Compiler compiler.Compiler
	Cache    *compiler.ShaderCache
}

// NewRuntime discovers devices via discover and wires comp/cache as the
// shared compiler and shader cache every program build uses.
func NewRuntime(cfg config.Config, discover func() ([]*core.Device, error), comp compiler.Compiler, cache *compiler.ShaderCache) (*Runtime, error) {
	platform, err := core.NewPlatform(cfg, discover)
	if err != nil {
		return nil, err
	}
	return &Runtime{Platform: platform, Compiler: comp, Cache: cache}, nil
}

// GetDeviceIDs returns every discovered device's ID (clGetDeviceIDs).
func (rt *Runtime) GetDeviceIDs() []core.DeviceID {
	return rt.Platform.Devices()
}

// GetDevice resolves a DeviceID to its *core.Device (clGetDeviceInfo's
// implicit handle dereference).
func (rt *Runtime) GetDevice(id core.DeviceID) (*core.Device, error) {
	return rt.Platform.Hub().Devices().Get(id)
}

// Shutdown releases the platform's background schedulers.
func (rt *Runtime) Shutdown() { rt.Platform.Shutdown() }
