package icd

import (
	"github.com/gogpu/clon12/core"
	"github.com/gogpu/clon12/core/compiler"
)

// compilerFeaturesFor translates a device's hardware feature flags into
// the FeatureSet the compiler augments build options with (spec.md §4.3
// step 1, §3 "Device... 64-bit-ops lowering required?, int16 native?").
func compilerFeaturesFor(device *core.Device) compiler.FeatureSet {
	f := device.Features
	return compiler.FeatureSet{
		Lower64BitOps: f.Requires64BitOpsLowering,
		LowerInt16:    !f.NativeInt16,
	}
}

// CreateProgramWithSource implements clCreateProgramWithSource.
func (rt *Runtime) CreateProgramWithSource(ctxID core.ContextID, source string) (core.ProgramID, error) {
	ctx, err := rt.Platform.Hub().Contexts().Get(ctxID)
	if err != nil {
		return core.ProgramID{}, err
	}
	prog := core.NewProgram(ctx, source)
	id := rt.Platform.Hub().Programs().Register(prog)
	prog.SetID(id)
	return id, nil
}

// CreateProgramWithIL implements clCreateProgramWithIL (cl_khr_il_program).
func (rt *Runtime) CreateProgramWithIL(ctxID core.ContextID, il []byte) (core.ProgramID, error) {
	ctx, err := rt.Platform.Hub().Contexts().Get(ctxID)
	if err != nil {
		return core.ProgramID{}, err
	}
	prog := core.NewProgramWithIL(ctx, il)
	id := rt.Platform.Hub().Programs().Register(prog)
	prog.SetID(id)
	return id, nil
}

// BuildProgram implements clBuildProgram: builds prog for every device in
// its context using the runtime's shared compiler and shader cache.
func (rt *Runtime) BuildProgram(progID core.ProgramID, deviceIDs []core.DeviceID, options []string) error {
	prog, err := rt.Platform.Hub().Programs().Get(progID)
	if err != nil {
		return err
	}

	if len(deviceIDs) == 0 {
		deviceIDs = rt.Platform.Devices()
	}

	for _, did := range deviceIDs {
		device, err := rt.Platform.Hub().Devices().Get(did)
		if err != nil {
			return err
		}
		features := compilerFeaturesFor(device)
		if err := prog.Build(device, rt.Compiler, rt.Cache, options, features); err != nil {
			return err
		}
	}
	return nil
}

// GetProgramBuildInfo implements clGetProgramBuildInfo (status + log).
func (rt *Runtime) GetProgramBuildInfo(progID core.ProgramID, deviceID core.DeviceID) (core.BuildStatus, string, error) {
	prog, err := rt.Platform.Hub().Programs().Get(progID)
	if err != nil {
		return 0, "", err
	}
	device, err := rt.Platform.Hub().Devices().Get(deviceID)
	if err != nil {
		return 0, "", err
	}
	status, log := prog.Status(device)
	return status, log, nil
}

// ReleaseProgram implements clReleaseProgram.
func (rt *Runtime) ReleaseProgram(id core.ProgramID) error {
	prog, err := rt.Platform.Hub().Programs().Get(id)
	if err != nil {
		return err
	}
	if prog.Release() {
		_, _ = rt.Platform.Hub().Programs().Unregister(id)
	}
	return nil
}
