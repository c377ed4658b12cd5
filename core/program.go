package core

import (
	"sync"
	"sync/atomic"

	"github.com/gogpu/clon12/core/compiler"
	"github.com/gogpu/clon12/internal/hash"
)

// BuildStatus mirrors cl_build_status.
type BuildStatus int

const (
	BuildNone BuildStatus = iota
	BuildInProgress
	BuildSuccess
	BuildFailed
)

// perDeviceBuild holds one device's build output (spec.md §3 "Program...
// per-device build data (status/log/binary/kernels/hash)").
type perDeviceBuild struct {
	status  BuildStatus
	log     string
	binary  compiler.Binary
	key     hash.Key128
	linking atomic.Int32 // link participation count; rebuild blocked while > 0
}

// Program holds source text, parsed IL, per-device build data, live-kernel
// count, and the specialization-constant map (spec.md §3 "Program").
type Program struct {
	id ID[programMarker]
	ctx *Context

	Source string
	il     compiler.IL

	mu      sync.Mutex
	builds  map[*Device]*perDeviceBuild
	liveKernels atomic.Int32

	refs RefCount
}

// NewProgram creates a program from source text (clCreateProgramWithSource).
func NewProgram(ctx *Context, source string) *Program {
	return &Program{ctx: ctx, Source: source, builds: make(map[*Device]*perDeviceBuild), refs: NewRefCount()}
}

// NewProgramWithIL creates a program from SPIR-V IL directly
// (clCreateProgramWithIL / cl_khr_il_program).
func NewProgramWithIL(ctx *Context, il []byte) *Program {
	return &Program{ctx: ctx, il: compiler.IL(il), builds: make(map[*Device]*perDeviceBuild), refs: NewRefCount()}
}

// ID returns the program's Hub-assigned ID.
func (p *Program) ID() ProgramID { return p.id }

// SetID is called once by the Hub registration path.
func (p *Program) SetID(id ProgramID) { p.id = id }

// Build compiles and links the program for device (spec.md §4.3 "Program
// build"), storing the result in cache. Returns *BuildError on failure.
func (p *Program) Build(device *Device, comp compiler.Compiler, cache *compiler.ShaderCache, defs []string, features compiler.FeatureSet) error {
	p.mu.Lock()
	if p.liveKernels.Load() > 0 {
		p.mu.Unlock()
		return &BuildError{Kind: BuildErrorLiveKernels}
	}
	b, ok := p.builds[device]
	if ok && b.linking.Load() > 0 {
		p.mu.Unlock()
		return &BuildError{Kind: BuildErrorLinkInFlight}
	}
	if !ok {
		b = &perDeviceBuild{}
		p.builds[device] = b
	}
	b.status = BuildInProgress
	p.mu.Unlock()

	var il compiler.IL
	var err error
	if p.il != nil {
		il = p.il
	} else {
		il, err = comp.Parse(p.Source)
		if err != nil {
			return p.fail(b, BuildErrorCompile, err)
		}
	}

	key := compiler.BuildKey(string(il), defs, features)
	binaryBytes, err := cache.GetOrBuild(key, func() ([]byte, error) {
		obj, err := comp.Compile(il, compiler.CompileArgs{Options: defs, Features: features})
		if err != nil {
			return nil, err
		}
		bin, err := comp.Link([]compiler.Intermediate{obj}, false)
		if err != nil {
			return nil, err
		}
		return bin.Bytes, nil
	})
	if err != nil {
		return p.fail(b, BuildErrorCompile, err)
	}

	binary := compiler.Binary{Bytes: binaryBytes}
	// Re-resolve kernel metadata; a cache hit does not carry KernelInfo, so
	// a cheap re-parse of the binary header would normally recover it. The
	// software reference compiler returns it directly from Link instead.
	if len(binary.Kernels) == 0 {
		relinked, err := comp.Link([]compiler.Intermediate{compiler.Intermediate(il)}, false)
		if err == nil {
			binary.Kernels = relinked.Kernels
		}
	}

	p.mu.Lock()
	b.status = BuildSuccess
	b.binary = binary
	b.key = key
	p.mu.Unlock()

	for _, ki := range binary.Kernels {
		generic, err := comp.GetKernel(ki.Name, binary, nil)
		if err != nil {
			return p.fail(b, BuildErrorCompile, err)
		}
		if err := comp.Validate(generic.Bytecode); err != nil {
			return p.fail(b, BuildErrorCompile, err)
		}
	}
	return nil
}

func (p *Program) fail(b *perDeviceBuild, kind BuildErrorKind, cause error) error {
	p.mu.Lock()
	b.status = BuildFailed
	b.log = cause.Error()
	p.mu.Unlock()
	return &BuildError{Kind: kind, Log: b.log, Cause: cause}
}

// Status returns device's build status and log.
func (p *Program) Status(device *Device) (BuildStatus, string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	b, ok := p.builds[device]
	if !ok {
		return BuildNone, ""
	}
	return b.status, b.log
}

// Binary returns device's linked binary, if built.
func (p *Program) Binary(device *Device) (compiler.Binary, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	b, ok := p.builds[device]
	if !ok || b.status != BuildSuccess {
		return compiler.Binary{}, false
	}
	return b.binary, true
}

// retainKernel/releaseKernel track the live-kernel count that blocks
// rebuild (spec.md §4.3 "Concurrency rule").
func (p *Program) retainKernel()  { p.liveKernels.Add(1) }
func (p *Program) releaseKernel() { p.liveKernels.Add(-1) }

// Retain/Release implement the external reference count.
func (p *Program) Retain() { p.refs.Retain() }
func (p *Program) Release() bool { return p.refs.Release() }
