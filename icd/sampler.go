package icd

import "github.com/gogpu/clon12/core"

// CreateSampler implements clCreateSampler.
func (rt *Runtime) CreateSampler(addressing core.AddressingMode, filter core.FilterMode, normalizedCoords bool) (core.SamplerID, error) {
	s := core.NewSampler(addressing, filter, normalizedCoords)
	id := rt.Platform.Hub().Samplers().Register(s)
	s.SetID(id)
	return id, nil
}

// ReleaseSampler implements clReleaseSampler.
func (rt *Runtime) ReleaseSampler(id core.SamplerID) error {
	s, err := rt.Platform.Hub().Samplers().Get(id)
	if err != nil {
		return err
	}
	if s.Release() {
		_, _ = rt.Platform.Hub().Samplers().Unregister(id)
	}
	return nil
}

// RetainSampler implements clRetainSampler.
func (rt *Runtime) RetainSampler(id core.SamplerID) error {
	s, err := rt.Platform.Hub().Samplers().Get(id)
	if err != nil {
		return err
	}
	s.Retain()
	return nil
}
