package icd

import "github.com/gogpu/clon12/core"

// CreateContext implements clCreateContext: binds the given devices into a
// new context and registers it in the runtime's Hub.
func (rt *Runtime) CreateContext(deviceIDs []core.DeviceID, properties []uint64) (core.ContextID, error) {
	if len(deviceIDs) == 0 {
		return core.ContextID{}, core.NewValidationError("Context", "devices", "clCreateContext requires at least one device")
	}
	devices := make([]*core.Device, 0, len(deviceIDs))
	for _, id := range deviceIDs {
		d, err := rt.Platform.Hub().Devices().Get(id)
		if err != nil {
			return core.ContextID{}, err
		}
		devices = append(devices, d)
	}

	ctx := core.NewContext(devices, properties)
	id := rt.Platform.Hub().Contexts().Register(ctx)
	ctx.SetID(id)
	return id, nil
}

// ReleaseContext implements clReleaseContext.
func (rt *Runtime) ReleaseContext(id core.ContextID) error {
	ctx, err := rt.Platform.Hub().Contexts().Get(id)
	if err != nil {
		return err
	}
	if ctx.Release() {
		_, _ = rt.Platform.Hub().Contexts().Unregister(id)
	}
	return nil
}

// RetainContext implements clRetainContext.
func (rt *Runtime) RetainContext(id core.ContextID) error {
	ctx, err := rt.Platform.Hub().Contexts().Get(id)
	if err != nil {
		return err
	}
	ctx.Retain()
	return nil
}
