package core

import "sync"

// Hub owns one Registry per object kind in the data model (spec.md §3).
// It is the single place object lifetime is tracked; Platform, Context,
// CommandQueue and the rest hold IDs into the Hub rather than raw pointers,
// so a stale handle (use-after-release) is caught by the epoch check
// instead of corrupting memory.
//
// Thread-safe for concurrent use.
type Hub struct {
	mu sync.RWMutex

	devices  *Registry[*Device, deviceMarker]
	contexts *Registry[*Context, contextMarker]
	queues   *Registry[*CommandQueue, commandQueueMarker]
	mems     *Registry[*MemObject, memObjectMarker]
	samplers *Registry[*Sampler, samplerMarker]
	programs *Registry[*Program, programMarker]
	kernels  *Registry[*Kernel, kernelMarker]
	tasks    *Registry[*Task, taskMarker]
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{
		devices:  NewRegistry[*Device, deviceMarker](),
		contexts: NewRegistry[*Context, contextMarker](),
		queues:   NewRegistry[*CommandQueue, commandQueueMarker](),
		mems:     NewRegistry[*MemObject, memObjectMarker](),
		samplers: NewRegistry[*Sampler, samplerMarker](),
		programs: NewRegistry[*Program, programMarker](),
		kernels:  NewRegistry[*Kernel, kernelMarker](),
		tasks:    NewRegistry[*Task, taskMarker](),
	}
}

// Devices returns the device registry.
func (h *Hub) Devices() *Registry[*Device, deviceMarker] { return h.devices }

// Contexts returns the context registry.
func (h *Hub) Contexts() *Registry[*Context, contextMarker] { return h.contexts }

// Queues returns the command queue registry.
func (h *Hub) Queues() *Registry[*CommandQueue, commandQueueMarker] { return h.queues }

// MemObjects returns the buffer/image registry.
func (h *Hub) MemObjects() *Registry[*MemObject, memObjectMarker] { return h.mems }

// Samplers returns the sampler registry.
func (h *Hub) Samplers() *Registry[*Sampler, samplerMarker] { return h.samplers }

// Programs returns the program registry.
func (h *Hub) Programs() *Registry[*Program, programMarker] { return h.programs }

// Kernels returns the kernel registry.
func (h *Hub) Kernels() *Registry[*Kernel, kernelMarker] { return h.kernels }

// Tasks returns the task registry (the objects backing cl_event handles).
func (h *Hub) Tasks() *Registry[*Task, taskMarker] { return h.tasks }

// ResourceCounts returns a snapshot of the number of live objects per kind,
// keyed by the same names the ICD uses for its kinds. Used for diagnostics
// (e.g. a debug endpoint); not itself wired to internal/metrics, which
// tracks the narrower hot-path counters spec.md names (queue depth, task
// states, residency, compile-cache, worker-pool occupancy).
func (h *Hub) ResourceCounts() map[string]uint64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return map[string]uint64{
		"devices":  h.devices.Count(),
		"contexts": h.contexts.Count(),
		"queues":   h.queues.Count(),
		"mems":     h.mems.Count(),
		"samplers": h.samplers.Count(),
		"programs": h.programs.Count(),
		"kernels":  h.kernels.Count(),
		"tasks":    h.tasks.Count(),
	}
}

// Clear removes all objects from the hub. Note: this does not release IDs
// properly or run any destructors - use only for process-exit cleanup.
func (h *Hub) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.devices.Clear()
	h.contexts.Clear()
	h.queues.Clear()
	h.mems.Clear()
	h.samplers.Clear()
	h.programs.Clear()
	h.kernels.Clear()
	h.tasks.Clear()
}
