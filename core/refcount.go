package core

import "sync/atomic"

// RefCount implements the dual external/internal reference counting scheme
// from spec.md §3 "Lifecycles" and §9 "Dual reference counts → typed
// ownership": an object is destroyed only once both the external count
// (user-visible clRetain/clRelease) and the internal count (holds from
// other core objects, e.g. a queue holding its tasks) reach zero.
//
// RefCount itself never calls a destructor; callers check the return value
// of Release/ReleaseInternal (true exactly once, on the transition to
// "both zero") and perform teardown themselves. This keeps RefCount a pure
// counter, embeddable by value, with no callback indirection to wire up.
type RefCount struct {
	external atomic.Int32
	internal atomic.Int32
}

// NewRefCount returns a RefCount with one external reference held (the
// reference returned to the caller that created the object) and zero
// internal references.
func NewRefCount() RefCount {
	rc := RefCount{}
	rc.external.Store(1)
	return rc
}

// Retain increments the external count (clRetain*).
func (rc *RefCount) Retain() {
	rc.external.Add(1)
}

// Release decrements the external count (clRelease*). Returns true exactly
// once, the moment both counts have reached zero - the caller's cue to run
// teardown (or, for GPU-referenced objects, enqueue onto the deferred
// deletion queue instead of tearing down immediately).
func (rc *RefCount) Release() bool {
	return rc.external.Add(-1) == 0 && rc.internal.Load() == 0
}

// RetainInternal increments the internal count (an owning core object, e.g.
// a CommandQueue retaining a Task, or a Program retaining a Kernel's backing
// binary).
func (rc *RefCount) RetainInternal() {
	rc.internal.Add(1)
}

// ReleaseInternal decrements the internal count. Returns true exactly once,
// the moment both counts have reached zero.
func (rc *RefCount) ReleaseInternal() bool {
	return rc.internal.Add(-1) == 0 && rc.external.Load() == 0
}

// ExternalCount returns the current external count (for diagnostics/tests).
func (rc *RefCount) ExternalCount() int32 { return rc.external.Load() }

// InternalCount returns the current internal count (for diagnostics/tests).
func (rc *RefCount) InternalCount() int32 { return rc.internal.Load() }

// IsZero reports whether both counts are currently zero.
func (rc *RefCount) IsZero() bool {
	return rc.external.Load() == 0 && rc.internal.Load() == 0
}
