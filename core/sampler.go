package core

// AddressingMode mirrors cl_addressing_mode (spec.md §3 "Sampler").
type AddressingMode int

const (
	AddressNone AddressingMode = iota
	AddressClampToEdge
	AddressClamp
	AddressRepeat
	AddressMirroredRepeat
)

// FilterMode mirrors cl_filter_mode.
type FilterMode int

const (
	FilterNearest FilterMode = iota
	FilterLinear
)

// Sampler holds the addressing mode, filter mode, and normalized-coords
// flag for image sampling (spec.md §3 "Sampler"). It holds no device-side
// descriptor; a sampler bound to a kernel argument contributes these
// fields to the kernel's specialization key.
type Sampler struct {
	id ID[samplerMarker]

	Addressing      AddressingMode
	Filter          FilterMode
	NormalizedCoords bool

	refs RefCount
}

// NewSampler creates a sampler with the given addressing/filter/coords mode.
func NewSampler(addressing AddressingMode, filter FilterMode, normalizedCoords bool) *Sampler {
	return &Sampler{Addressing: addressing, Filter: filter, NormalizedCoords: normalizedCoords, refs: NewRefCount()}
}

// ID returns the sampler's Hub-assigned ID.
func (s *Sampler) ID() SamplerID { return s.id }

// SetID is called once by the Hub registration path.
func (s *Sampler) SetID(id SamplerID) { s.id = id }

// Retain/Release implement the external reference count.
func (s *Sampler) Retain() { s.refs.Retain() }
func (s *Sampler) Release() bool { return s.refs.Release() }
