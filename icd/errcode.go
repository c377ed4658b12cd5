// Package icd implements the OpenCL 1.2 ICD entry-point surface (spec.md
// §6 "API surface"): platform/device/context/queue CRUD, buffer/image
// create, program build/compile/link, kernel create/set-arg/enqueue,
// event wait/info/set-status/set-callback, and finish/flush. Each entry
// point is exposed as an idiomatic Go function returning (T, error)
// rather than a cl_int/errcode_ret pair; ErrCode classifies the error for
// callers that need the traditional negative cl_int taxonomy (e.g. a cgo
// shim built on top of this package).
package icd

import (
	"errors"

	"github.com/gogpu/clon12/core"
)

// ErrCode mirrors the OpenCL 1.2 negative cl_int error codes (spec.md §7
// "Error taxonomy").
type ErrCode int32

const (
	Success                ErrCode = 0
	DeviceNotFound         ErrCode = -1
	OutOfHostMemory        ErrCode = -6
	OutOfResources         ErrCode = -5
	BuildProgramFailure    ErrCode = -11
	LinkProgramFailure     ErrCode = -17
	InvalidValue           ErrCode = -30
	InvalidDevice          ErrCode = -33
	InvalidContext         ErrCode = -34
	InvalidCommandQueue    ErrCode = -36
	InvalidMemObject       ErrCode = -38
	InvalidImageSize       ErrCode = -40
	InvalidSampler         ErrCode = -41
	InvalidBinary          ErrCode = -42
	InvalidBuildOptions    ErrCode = -43
	InvalidProgram         ErrCode = -44
	InvalidProgramExecutable ErrCode = -45
	InvalidKernelName      ErrCode = -46
	InvalidKernelDefinition ErrCode = -47
	InvalidKernel          ErrCode = -48
	InvalidArgIndex        ErrCode = -49
	InvalidArgValue        ErrCode = -50
	InvalidArgSize         ErrCode = -51
	InvalidKernelArgs      ErrCode = -52
	InvalidWorkDimension   ErrCode = -53
	InvalidWorkGroupSize   ErrCode = -54
	InvalidWorkItemSize    ErrCode = -55
	InvalidEventWaitList   ErrCode = -57
	InvalidEvent           ErrCode = -58
	InvalidOperation       ErrCode = -59
	ExecStatusErrorForEventsInWaitList ErrCode = -12
)

// MapError classifies a core/hal error into its negative cl_int code
// (spec.md §7 "Error taxonomy").
func MapError(err error) ErrCode {
	if err == nil {
		return Success
	}

	switch {
	case core.IsWorkGroupSizeError(err):
		return InvalidWorkGroupSize
	case core.IsBuildError(err):
		var be *core.BuildError
		errors.As(err, &be)
		if be != nil && be.Kind == core.BuildErrorLink {
			return LinkProgramFailure
		}
		return BuildProgramFailure
	case core.IsSpecializationError(err), core.IsResidencyError(err):
		return OutOfResources
	case core.IsValidationError(err):
		return InvalidValue
	case core.IsLimitError(err):
		return InvalidValue
	case core.IsFeatureError(err):
		return InvalidOperation
	case core.IsIDError(err):
		return InvalidEvent
	case errors.Is(err, core.ErrContextMismatch):
		return InvalidEventWaitList
	case errors.Is(err, core.ErrNotSupported):
		return InvalidOperation
	case errors.Is(err, core.ErrDeviceLost), errors.Is(err, core.ErrDeviceDestroyed):
		return OutOfResources
	case errors.Is(err, core.ErrResourceNotFound), errors.Is(err, core.ErrEpochMismatch), errors.Is(err, core.ErrInvalidID):
		return InvalidMemObject
	default:
		return InvalidValue
	}
}
