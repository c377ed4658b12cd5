// Package launch implements NDRange→Dispatch preparation: work-group size
// selection, dispatch tiling, argument/printf constant-buffer packing, and
// the record step that emits native commands (spec.md §4.4).
package launch

import "github.com/gogpu/clon12/core"

// DeviceLimits are the per-device hardware caps work-group selection must
// respect (spec.md §4.4 "Inputs").
type DeviceLimits struct {
	MaxGroupDim        [3]uint32
	MaxDispatchGroups  uint32
	MaxThreadsPerGroup uint32
	MinWaveSize        uint32
	MaxWaveSize        uint32
}

// primeSequence is the factoring sequence spec.md §4.4 names: "2,3,5,…,127".
var primeSequence = []uint32{
	2, 3, 5, 7, 11, 13, 17, 19, 23, 29, 31, 37, 41, 43, 47, 53, 59, 61, 67,
	71, 73, 79, 83, 89, 97, 101, 103, 107, 109, 113, 127,
}

// NDRange is one enqueue's work_dim, global size, optional global offset,
// and optional caller-supplied local size.
type NDRange struct {
	WorkDim          int
	GlobalWorkSize   [3]uint64
	GlobalWorkOffset [3]uint64
	LocalWorkSize    [3]uint32 // zero-valued dims mean "not provided"
	HasLocalWorkSize bool
}

// WorkSize is the resolved local-size/group-count pair a launch will run
// with.
type WorkSize struct {
	LocalSize  [3]uint32
	GroupCount [3]uint64 // may exceed MaxDispatchGroups per dim; tiling splits it
}

// ResolveWorkSize implements spec.md §4.4's "Choosing local sizes": honor a
// kernel-required work-group size if one exists, else validate the
// caller's local_work_size, else auto-select via the prime-factor greedy
// algorithm.
func ResolveWorkSize(nd NDRange, required [3]uint32, hasRequired bool, limits DeviceLimits) (WorkSize, error) {
	dims := nd.WorkDim

	if hasRequired {
		if nd.HasLocalWorkSize {
			for d := 0; d < dims; d++ {
				if nd.LocalWorkSize[d] != required[d] {
					return WorkSize{}, core.NewWorkGroupSizeError("caller local_work_size does not match kernel's required work-group size")
				}
			}
		}
		return groupCountFor(nd, required, limits)
	}

	if nd.HasLocalWorkSize {
		if err := validateLocalSize(nd.LocalWorkSize, nd.GlobalWorkSize, dims, limits); err != nil {
			return WorkSize{}, err
		}
		return groupCountFor(nd, nd.LocalWorkSize, limits)
	}

	local := autoSelectLocalSize(nd, limits)
	return groupCountFor(nd, local, limits)
}

func validateLocalSize(local [3]uint32, global [3]uint64, dims int, limits DeviceLimits) error {
	product := uint64(1)
	for d := 0; d < dims; d++ {
		if local[d] == 0 {
			return core.NewWorkGroupSizeError("local_work_size dimension is zero")
		}
		if global[d]%uint64(local[d]) != 0 {
			return core.NewWorkGroupSizeError("local_work_size does not divide global_work_size")
		}
		if local[d] > limits.MaxGroupDim[d] {
			return core.NewWorkGroupSizeError("local_work_size dimension exceeds device cap")
		}
		product *= uint64(local[d])
	}
	if product > uint64(limits.MaxThreadsPerGroup) {
		return core.NewWorkGroupSizeError("local_work_size product exceeds MAX_THREADS_PER_GROUP")
	}
	return nil
}

func groupCountFor(nd NDRange, local [3]uint32, _ DeviceLimits) (WorkSize, error) {
	var ws WorkSize
	ws.LocalSize = local
	for d := 0; d < 3; d++ {
		if local[d] == 0 {
			ws.GroupCount[d] = 1
			continue
		}
		ws.GroupCount[d] = (nd.GlobalWorkSize[d] + uint64(local[d]) - 1) / uint64(local[d])
	}
	return ws, nil
}

// autoSelectLocalSize implements spec.md §4.4's prime-factor greedy
// algorithm: factor global_size[d]/local_size[d] by the prime sequence,
// greedily moving factors from the dispatch count into the local size,
// dimension 0 first then 1 then 2, never exceeding the per-dim or
// group-product caps, biasing the result into [min_wave, max_wave], and
// never pushing the single-iteration dispatch count over MaxDispatchGroups.
func autoSelectLocalSize(nd NDRange, limits DeviceLimits) [3]uint32 {
	local := [3]uint32{1, 1, 1}
	groups := [3]uint64{}
	for d := 0; d < 3; d++ {
		if d < nd.WorkDim {
			groups[d] = nd.GlobalWorkSize[d]
		} else {
			groups[d] = 1
		}
	}

	product := func() uint64 {
		p := uint64(1)
		for d := 0; d < 3; d++ {
			p *= uint64(local[d])
		}
		return p
	}

	for d := 0; d < nd.WorkDim; d++ {
		for _, p := range primeSequence {
			for groups[d]%uint64(p) == 0 {
				if product()*uint64(p) > uint64(limits.MaxThreadsPerGroup) {
					break
				}
				if local[d]*p > limits.MaxGroupDim[d] {
					break
				}
				groups[d] /= uint64(p)
				local[d] *= p
				if product() >= uint64(limits.MinWaveSize) && local[d]*p <= limits.MaxWaveSize {
					// Within the preferred wave-size band; stop growing
					// this dimension further once satisfied, but only if
					// growing more would overshoot max_wave.
					if product()*uint64(p) > uint64(limits.MaxWaveSize) {
						break
					}
				}
			}
		}
		// Any remainder above MaxDispatchGroups is left for dispatch tiling
		// (tiling.go) to split into a 3D loop of sub-dispatches.
	}
	return local
}
