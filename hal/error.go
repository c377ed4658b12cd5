package hal

import "errors"

// Common HAL errors representing conditions raised by the native GPU API
// boundary (spec.md §1's "black-box contract") that clon12 must translate
// into the OpenCL error taxonomy (spec.md §7).
var (
	// ErrDeviceOutOfMemory indicates the GPU has exhausted its memory.
	// spec.md §7: recoverable by retry after trimming pools, flushing
	// queues, and evicting; if still failing, surfaces as OUT_OF_RESOURCES.
	ErrDeviceOutOfMemory = errors.New("hal: device out of memory")

	// ErrDeviceLost indicates the native device has been lost: driver
	// crash/reset, hardware disconnection, or a fence that stopped
	// advancing (TDR-style timeout). The device cannot be recovered.
	ErrDeviceLost = errors.New("hal: device lost")

	// ErrFenceTimeout indicates a fence Wait exceeded its deadline without
	// the fence reaching the requested value.
	ErrFenceTimeout = errors.New("hal: fence wait timeout")

	// ErrHeapExhausted indicates a descriptor heap's allocator (or the
	// suballocator's buddy/direct allocator) could not satisfy a request
	// even after growing.
	ErrHeapExhausted = errors.New("hal: heap exhausted")

	// ErrRingBufferOverflow indicates a ring buffer allocation would
	// straddle the end of the buffer and the caller must roll over to a
	// new backing heap (spec.md §4.2.2).
	ErrRingBufferOverflow = errors.New("hal: ring buffer allocation overflow")

	// ErrPoolExhausted indicates a bounded fence-indexed object pool is at
	// max depth and the caller must wait on the oldest fence (spec.md §4.2.3).
	ErrPoolExhausted = errors.New("hal: fence pool exhausted")

	// ErrBudgetExceeded indicates the residency manager could not fit the
	// working set into the queried memory budget even after evicting the
	// entire resident LRU (spec.md §4.2.6 step 4).
	ErrBudgetExceeded = errors.New("hal: resident working set exceeds budget")

	// ErrValidatorRejected indicates the external validator library refused
	// to sign a piece of native bytecode.
	ErrValidatorRejected = errors.New("hal: native bytecode failed validation")
)
