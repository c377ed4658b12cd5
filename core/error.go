package core

import (
	"errors"
	"fmt"
)

// Base errors for the core package.
var (
	// ErrInvalidID is returned when an ID is invalid or zero.
	ErrInvalidID = errors.New("invalid object ID")

	// ErrResourceNotFound is returned when an object is not found in a registry.
	ErrResourceNotFound = errors.New("object not found")

	// ErrEpochMismatch is returned when the epoch of an ID doesn't match the stored object.
	ErrEpochMismatch = errors.New("epoch mismatch: object was recycled")

	// ErrRegistryFull is returned when the registry cannot allocate more IDs.
	ErrRegistryFull = errors.New("registry full: maximum objects reached")

	// ErrResourceInUse is returned when trying to unregister an object that is still in use.
	ErrResourceInUse = errors.New("object is still in use")

	// ErrAlreadyDestroyed is returned when operating on an already destroyed object.
	ErrAlreadyDestroyed = errors.New("object already destroyed")

	// ErrDeviceLost is returned when the device is lost (fence stopped advancing,
	// or the GPU was removed from under the driver).
	ErrDeviceLost = errors.New("device lost")

	// ErrDeviceDestroyed is returned when operating on a destroyed device.
	ErrDeviceDestroyed = errors.New("device destroyed")

	// ErrResourceDestroyed is returned when operating on a destroyed mem object.
	ErrResourceDestroyed = errors.New("mem object destroyed")

	// ErrContextMismatch is returned when a wait-list event belongs to a
	// different context than the enqueuing command queue (spec.md §4.1).
	ErrContextMismatch = errors.New("wait-list event belongs to a different context")

	// ErrNotSupported is returned for the explicit non-goals (SVM, device
	// queues, pipes, native kernels, subgroups, device fission): spec.md §1.
	ErrNotSupported = errors.New("operation not supported by this runtime")
)

// ValidationError represents a validation failure with context.
type ValidationError struct {
	Resource string // Object kind (e.g., "MemObject", "Kernel")
	Field    string // Field that failed validation
	Message  string // Detailed error message
	Cause    error  // Underlying cause, if any
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s.%s: %s", e.Resource, e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Resource, e.Message)
}

// Unwrap returns the underlying cause.
func (e *ValidationError) Unwrap() error {
	return e.Cause
}

// NewValidationError creates a new validation error.
func NewValidationError(resource, field, message string) *ValidationError {
	return &ValidationError{Resource: resource, Field: field, Message: message}
}

// NewValidationErrorf creates a new validation error with formatted message.
func NewValidationErrorf(resource, field, format string, args ...any) *ValidationError {
	return &ValidationError{Resource: resource, Field: field, Message: fmt.Sprintf(format, args...)}
}

// IDError represents an error related to object IDs.
type IDError struct {
	ID      RawID
	Message string
	Cause   error
}

func (e *IDError) Error() string {
	index, epoch := e.ID.Unzip()
	return fmt.Sprintf("ID(%d,%d): %s", index, epoch, e.Message)
}

func (e *IDError) Unwrap() error { return e.Cause }

// NewIDError creates a new ID error.
func NewIDError(id RawID, message string, cause error) *IDError {
	return &IDError{ID: id, Message: message, Cause: cause}
}

// LimitError represents exceeding a device or runtime limit.
type LimitError struct {
	Limit    string
	Actual   uint64
	Maximum  uint64
	Resource string
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("%s: %s exceeded (got %d, max %d)", e.Resource, e.Limit, e.Actual, e.Maximum)
}

// NewLimitError creates a new limit error.
func NewLimitError(resource, limit string, actual, maximum uint64) *LimitError {
	return &LimitError{Limit: limit, Actual: actual, Maximum: maximum, Resource: resource}
}

// FeatureError represents a missing required device feature.
type FeatureError struct {
	Feature  string
	Resource string
}

func (e *FeatureError) Error() string {
	return fmt.Sprintf("%s: requires feature %q which is not enabled", e.Resource, e.Feature)
}

// NewFeatureError creates a new feature error.
func NewFeatureError(resource, feature string) *FeatureError {
	return &FeatureError{Feature: feature, Resource: resource}
}

// TaskErrorKind classifies why a task transitioned to an error state
// (spec.md §4.1 "Failure semantics", §7).
type TaskErrorKind int

const (
	// TaskErrorOutOfResources indicates the recording of the task itself failed.
	TaskErrorOutOfResources TaskErrorKind = iota
	// TaskErrorPropagated indicates an upstream dependency failed or the
	// owning user event was set to an error status; this task never ran.
	TaskErrorPropagated
	// TaskErrorDeviceLost indicates the device's fence stopped advancing.
	TaskErrorDeviceLost
)

// TaskError represents a task (the object backing a cl_event) completing
// with a negative status instead of CL_COMPLETE.
type TaskError struct {
	Kind  TaskErrorKind
	Task  TaskID
	Cause error
}

func (e *TaskError) Error() string {
	switch e.Kind {
	case TaskErrorOutOfResources:
		return fmt.Sprintf("task %s: out of resources: %v", e.Task, e.Cause)
	case TaskErrorPropagated:
		return fmt.Sprintf("task %s: error propagated from a wait-list dependency", e.Task)
	case TaskErrorDeviceLost:
		return fmt.Sprintf("task %s: device lost before completion", e.Task)
	default:
		return fmt.Sprintf("task %s: unknown error", e.Task)
	}
}

func (e *TaskError) Unwrap() error { return e.Cause }

// IsTaskError reports whether err is a *TaskError.
func IsTaskError(err error) bool {
	var te *TaskError
	return errors.As(err, &te)
}

// BuildErrorKind classifies program build/compile/link failures (spec.md §4.3, §7).
type BuildErrorKind int

const (
	// BuildErrorCompile indicates the external compiler rejected the source/IL.
	BuildErrorCompile BuildErrorKind = iota
	// BuildErrorLink indicates linking compiled objects failed.
	BuildErrorLink
	// BuildErrorLiveKernels indicates a rebuild was attempted while kernels
	// created from the program are still alive (spec.md §4.3 concurrency rule).
	BuildErrorLiveKernels
	// BuildErrorLinkInFlight indicates a rebuild was attempted while the
	// program is still participating in a link.
	BuildErrorLinkInFlight
	// BuildErrorInvalidBinary indicates a supplied program binary's header
	// GUID did not match (spec.md §6 "Program binary blob").
	BuildErrorInvalidBinary
)

// BuildError represents a program build failure. Log holds the compiler's
// human-readable build log, stored per-device per spec.md §7.
type BuildError struct {
	Kind  BuildErrorKind
	Log   string
	Cause error
}

func (e *BuildError) Error() string {
	switch e.Kind {
	case BuildErrorLiveKernels:
		return "program has live kernels; rebuild not permitted"
	case BuildErrorLinkInFlight:
		return "program is participating in a link; rebuild not permitted"
	case BuildErrorInvalidBinary:
		return "program binary header GUID mismatch"
	case BuildErrorLink:
		return fmt.Sprintf("link failed: %v\n%s", e.Cause, e.Log)
	default:
		return fmt.Sprintf("compile failed: %v\n%s", e.Cause, e.Log)
	}
}

func (e *BuildError) Unwrap() error { return e.Cause }

// IsBuildError reports whether err is a *BuildError.
func IsBuildError(err error) bool {
	var be *BuildError
	return errors.As(err, &be)
}

// SpecializationError represents a failure producing a kernel's
// specialized native bytecode + pipeline state (spec.md §4.3).
type SpecializationError struct {
	Kernel KernelID
	Cause  error
}

func (e *SpecializationError) Error() string {
	return fmt.Sprintf("kernel %s: specialization failed: %v", e.Kernel, e.Cause)
}

func (e *SpecializationError) Unwrap() error { return e.Cause }

// IsSpecializationError reports whether err is a *SpecializationError.
func IsSpecializationError(err error) bool {
	var se *SpecializationError
	return errors.As(err, &se)
}

// ResidencyError represents a failure to fit the working set into the
// memory budget even after evicting the entire resident LRU (spec.md §4.2.6
// step 4, "force-enqueue the remainder").
type ResidencyError struct {
	RequestedBytes uint64
	BudgetBytes    uint64
	Cause          error
}

func (e *ResidencyError) Error() string {
	return fmt.Sprintf("residency: requested %d bytes exceeds budget %d bytes: %v",
		e.RequestedBytes, e.BudgetBytes, e.Cause)
}

func (e *ResidencyError) Unwrap() error { return e.Cause }

// IsResidencyError reports whether err is a *ResidencyError.
func IsResidencyError(err error) bool {
	var re *ResidencyError
	return errors.As(err, &re)
}

// WorkGroupSizeError represents an invalid local work-group size
// (spec.md §4.4, §8 "Boundary behaviors").
type WorkGroupSizeError struct {
	Message string
}

func (e *WorkGroupSizeError) Error() string { return "invalid work group size: " + e.Message }

// NewWorkGroupSizeError creates a new work-group-size error.
func NewWorkGroupSizeError(message string) *WorkGroupSizeError {
	return &WorkGroupSizeError{Message: message}
}

// IsValidationError returns true if the error is a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsIDError returns true if the error is an IDError.
func IsIDError(err error) bool {
	var ie *IDError
	return errors.As(err, &ie)
}

// IsLimitError returns true if the error is a LimitError.
func IsLimitError(err error) bool {
	var le *LimitError
	return errors.As(err, &le)
}

// IsFeatureError returns true if the error is a FeatureError.
func IsFeatureError(err error) bool {
	var fe *FeatureError
	return errors.As(err, &fe)
}

// IsWorkGroupSizeError reports whether err is a *WorkGroupSizeError.
func IsWorkGroupSizeError(err error) bool {
	var we *WorkGroupSizeError
	return errors.As(err, &we)
}
