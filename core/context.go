package core

import "sync"

// ContextErrorCallback mirrors clCreateContext's pfn_notify: invoked with a
// human-readable message when an internal error occurs that has no other
// reporting channel (spec.md §6).
type ContextErrorCallback func(message string)

// Context is a set of (Device, D3D-device) pairs plus error-callback and
// destructor-callback lists, and an opaque property array (spec.md §3
// "Context"). Grounded on the teacher's device-owns-callback-list idiom.
type Context struct {
	id ContextID

	Properties []uint64

	mu         sync.Mutex
	devices    []*Device
	errorCBs   []ContextErrorCallback
	destroyCBs []func()
	refs       RefCount
}

// NewContext creates a context bound to the given devices.
func NewContext(devices []*Device, properties []uint64) *Context {
	return &Context{devices: devices, Properties: properties, refs: NewRefCount()}
}

// ID returns the context's Hub-assigned ID.
func (c *Context) ID() ContextID { return c.id }

// SetID is called once by the Hub registration path.
func (c *Context) SetID(id ContextID) { c.id = id }

// Devices returns the devices this context spans.
func (c *Context) Devices() []*Device {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*Device(nil), c.devices...)
}

// HasDevice reports whether d belongs to this context.
func (c *Context) HasDevice(d *Device) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, cd := range c.devices {
		if cd == d {
			return true
		}
	}
	return false
}

// AddErrorCallback registers a pfn_notify-style error callback.
func (c *Context) AddErrorCallback(cb ContextErrorCallback) {
	c.mu.Lock()
	c.errorCBs = append(c.errorCBs, cb)
	c.mu.Unlock()
}

// ReportError invokes every registered error callback with message.
func (c *Context) ReportError(message string) {
	c.mu.Lock()
	cbs := append([]ContextErrorCallback(nil), c.errorCBs...)
	c.mu.Unlock()
	for _, cb := range cbs {
		cb(message)
	}
}

// AddDestructorCallback registers a clSetContextDestructorCallback-style
// callback, run in LIFO order when the context is destroyed.
func (c *Context) AddDestructorCallback(cb func()) {
	c.mu.Lock()
	c.destroyCBs = append(c.destroyCBs, cb)
	c.mu.Unlock()
}

// runDestructors runs every destructor callback in LIFO registration order.
func (c *Context) runDestructors() {
	c.mu.Lock()
	cbs := make([]func(), len(c.destroyCBs))
	copy(cbs, c.destroyCBs)
	c.mu.Unlock()
	for i := len(cbs) - 1; i >= 0; i-- {
		cbs[i]()
	}
}

// Retain/Release implement the external reference count.
func (c *Context) Retain() { c.refs.Retain() }
func (c *Context) Release() bool {
	if zero := c.refs.Release(); zero {
		c.runDestructors()
		return true
	}
	return false
}
