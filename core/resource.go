package core

import (
	"sync"

	"github.com/gogpu/clon12/hal"
)

// MemObjectKind distinguishes a buffer from an image (spec.md §3
// "Resource. A buffer or image").
type MemObjectKind int

const (
	MemObjectBuffer MemObjectKind = iota
	MemObjectImage
)

// MemObjectDesc is the app-visible descriptor for a buffer or image
// (spec.md §3: "width, height, depth, mip levels, array size, format,
// usage, CPU-access flags, bind flags").
type MemObjectDesc struct {
	Kind         MemObjectKind
	Width        uint64
	Height       uint32
	Depth        uint32
	MipLevels    uint32
	ArraySize    uint32
	Format       uint32 // cl_channel_order/cl_channel_type pair, packed
	SizeBytes    uint64
	HostAccess   uint32 // CL_MEM_{READ,WRITE}_ONLY / READ_WRITE flags
	HostPtrFlags uint32 // CL_MEM_{ALLOC,USE,COPY}_HOST_PTR
}

// perDeviceBacking holds one device's native allocation for a MemObject
// (spec.md §3 "per-device underlying handles for cross-device contexts").
type perDeviceBacking struct {
	device   *Device
	alloc    hal.Suballocation
	owned    bool // true if this is a dedicated allocation, not suballocated
	readback bool // true if alloc came from the readback allocator, false for upload
}

// MemObject is a buffer or image (spec.md §3 "Resource"). Current state is
// tracked per (device, subresource) via the owning D3D device's
// hal.StateManager; MemObject itself stores which hal.Resource backs it on
// each device and, per device, the last command-list id that used it.
type MemObject struct {
	id  MemObjectID
	ctx *Context

	Desc MemObjectDesc

	mu           sync.Mutex
	backings     map[*Device]*perDeviceBacking
	lastUsedCLID map[*Device]uint64
	released     bool

	// subBuffer, if non-nil, is the parent this object was carved from via
	// clCreateSubBuffer; Origin/Size are relative to the parent.
	subBuffer *MemObject
	subOrigin uint64
	subSize   uint64

	refs RefCount
}

// NewMemObject creates a root MemObject (not a sub-buffer) in ctx.
func NewMemObject(ctx *Context, desc MemObjectDesc) *MemObject {
	return &MemObject{
		ctx:          ctx,
		Desc:         desc,
		backings:     make(map[*Device]*perDeviceBacking),
		lastUsedCLID: make(map[*Device]uint64),
		refs:         NewRefCount(),
	}
}

// NewSubBuffer creates a view into parent starting at origin for size
// bytes (clCreateSubBuffer). The sub-buffer shares the parent's backing
// allocations rather than owning its own.
func NewSubBuffer(parent *MemObject, origin, size uint64) *MemObject {
	return &MemObject{
		ctx:          parent.ctx,
		Desc:         MemObjectDesc{Kind: MemObjectBuffer, SizeBytes: size},
		backings:     parent.backings,
		lastUsedCLID: parent.lastUsedCLID,
		subBuffer:    parent,
		subOrigin:    origin,
		subSize:      size,
		refs:         NewRefCount(),
	}
}

// ID returns the object's Hub-assigned ID.
func (m *MemObject) ID() MemObjectID { return m.id }

// SetID is called once by the Hub registration path.
func (m *MemObject) SetID(id MemObjectID) { m.id = id }

// Context returns the owning context.
func (m *MemObject) Context() *Context { return m.ctx }

// EnsureBacking returns the native allocation for device, creating one
// (from the upload or readback suballocator, depending on HostAccess) if
// this is the first time device is used.
func (m *MemObject) EnsureBacking(device *Device, suballoc *hal.Suballocator) (hal.Suballocation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.subBuffer != nil {
		return m.subBuffer.EnsureBacking(device, suballoc)
	}

	if b, ok := m.backings[device]; ok {
		return b.alloc, nil
	}

	allocator := suballoc.Upload
	const clMemWriteOnlyHost = 1 << 7 // CL_MEM_HOST_WRITE_ONLY-equivalent marker used by callers
	readback := m.Desc.HostAccess&clMemWriteOnlyHost != 0
	if readback {
		allocator = suballoc.Readback
	}

	alloc, err := allocator.Alloc(m.Desc.SizeBytes, false)
	if err != nil {
		return hal.Suballocation{}, err
	}
	m.backings[device] = &perDeviceBacking{device: device, alloc: alloc, owned: true, readback: readback}
	return alloc, nil
}

// SetLastUsedCommandListID records the command-list id that most recently
// referenced this object on device (spec.md §3 "last-used-command-list-id"),
// used by the deferred-deletion queue to know when it is safe to reclaim.
func (m *MemObject) SetLastUsedCommandListID(device *Device, id uint64) {
	m.mu.Lock()
	m.lastUsedCLID[device] = id
	m.mu.Unlock()
}

// LastUsedCommandListID returns the last recorded command-list id for device.
func (m *MemObject) LastUsedCommandListID(device *Device) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastUsedCLID[device]
}

// Retain/Release implement the external reference count.
func (m *MemObject) Retain() { m.refs.Retain() }
func (m *MemObject) Release() bool { return m.refs.Release() }

// ReleaseBackings hands every per-device backing this (root) object owns to
// reclaim, which should enqueue it into that device's deferred-deletion
// queue keyed by the object's last-used command-list id for that device
// (spec.md §3 "Lifecycles"). A no-op on a sub-buffer, which shares its
// parent's backings rather than owning any. Safe to call at most once;
// later calls are no-ops.
func (m *MemObject) ReleaseBackings(reclaim func(device *Device, alloc hal.Suballocation, readback bool, lastUsedCLID uint64)) {
	m.mu.Lock()
	if m.subBuffer != nil || m.released {
		m.mu.Unlock()
		return
	}
	m.released = true
	backings := m.backings
	lastUsed := m.lastUsedCLID
	m.backings = make(map[*Device]*perDeviceBacking)
	m.mu.Unlock()

	for device, b := range backings {
		reclaim(device, b.alloc, b.readback, lastUsed[device])
	}
}
