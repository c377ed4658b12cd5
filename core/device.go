package core

import (
	"sync"

	"github.com/gogpu/clon12/hal"
)

// Features records the device feature flags spec.md §3 names: "64-bit-ops
// lowering required?, int16 native?, typed UAV load?, images supported?,
// shader-model ceiling".
type Features struct {
	Requires64BitOpsLowering bool
	NativeInt16              bool
	TypedUAVLoad             bool
	ImagesSupported          bool
	ShaderModelCeiling       uint32
}

// Device is one discovered GPU (spec.md §3 "Device"). It owns an ordered
// set of D3D devices, each a distinct native API device/queue pairing
// scoped to one context.
type Device struct {
	id DeviceID

	Name         string
	AdapterLUID  [8]byte
	Features     Features
	TimestampFreq uint64

	native hal.Device

	mu         sync.Mutex
	d3dDevices []*D3DDevice
}

// NewDevice wraps a hal.Device with its discovered feature set.
func NewDevice(name string, native hal.Device, features Features) *Device {
	return &Device{Name: name, native: native, Features: features}
}

// ID returns the device's Hub-assigned ID (set by Platform on discovery).
func (d *Device) ID() DeviceID { return d.id }

// Native returns the underlying hal.Device.
func (d *Device) Native() hal.Device { return d.native }

// Budget returns the device's OS memory budget source.
func (d *Device) Budget() hal.BudgetSource { return d.native.Budget() }

// Removed reports whether the native device has been lost.
func (d *Device) Removed() bool { return d.native.Removed() }

// D3DDeviceFor returns the D3D device for ctx, creating one lazily if this
// is the first time ctx uses this Device (spec.md §3 "Device... Ownership:
// an ordered set of D3D devices, each representing a distinct native API
// device/queue pairing scoped to a context").
func (d *Device) D3DDeviceFor(ctx *Context, cfg hal.ImmediateContextConfig) (*D3DDevice, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, dd := range d.d3dDevices {
		if dd.context == ctx {
			return dd, nil
		}
	}

	queue, err := d.native.CreateQueue()
	if err != nil {
		return nil, err
	}
	icx, err := hal.NewImmediateContext(d.native, queue, d.native.Budget(), cfg)
	if err != nil {
		return nil, err
	}
	dd := newD3DDevice(d, ctx, icx)
	d.d3dDevices = append(d.d3dDevices, dd)
	return dd, nil
}

// D3DDeviceIfExists returns the D3D device already created for ctx, without
// creating one. Used by release paths (e.g. a MemObject's backing hand-off
// to the deferred-deletion queue) that must not fabricate a device/queue
// pairing just to free memory.
func (d *Device) D3DDeviceIfExists(ctx *Context) (*D3DDevice, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, dd := range d.d3dDevices {
		if dd.context == ctx {
			return dd, true
		}
	}
	return nil, false
}
