package core

import (
	"runtime"
	"sync"

	"github.com/gogpu/clon12/internal/config"
	"github.com/gogpu/clon12/internal/thread"
)

// Platform is the process-wide singleton (spec.md §3 "Platform. Singleton;
// owns the device list, a shared compiler handle, a shared validator
// handle, a global task-pool mutex, two background schedulers (callbacks;
// compile+link)"). Replaces the teacher's global adapter/instance registry
// with clon12's device list plus the two named background schedulers.
type Platform struct {
	hub *Hub

	cfg config.Config

	// taskMu is the "global task-pool mutex" spec.md names: task-graph
	// mutation (enqueue/flush/state transition) across every queue in every
	// context serializes through it, matching the teacher's single
	// coarse-grained lock around its instance-wide registries.
	taskMu sync.Mutex

	callbacks *thread.Pool
	compile   *thread.Pool

	devices []DeviceID
}

// NewPlatform discovers devices and starts the two background schedulers.
// discover is injected so tests can supply a fixed device list instead of
// probing real hardware.
func NewPlatform(cfg config.Config, discover func() ([]*Device, error)) (*Platform, error) {
	p := &Platform{
		hub:       NewHub(),
		cfg:       cfg,
		callbacks: thread.NewPool(1),
		compile:   thread.NewPool(compileWorkerCount(cfg)),
	}

	devs, err := discover()
	if err != nil {
		return nil, err
	}
	for _, d := range devs {
		id := p.hub.Devices().Register(d)
		d.id = id
		p.devices = append(p.devices, id)
	}
	return p, nil
}

func compileWorkerCount(cfg config.Config) int {
	if cfg.CompileWorkers > 0 {
		return cfg.CompileWorkers
	}
	return runtime.NumCPU()
}

// Hub returns the platform's object hub.
func (p *Platform) Hub() *Hub { return p.hub }

// Devices returns the IDs of every discovered device.
func (p *Platform) Devices() []DeviceID { return p.devices }

// Config returns the platform's tunable configuration.
func (p *Platform) Config() config.Config { return p.cfg }

// LockTaskGraph serializes task-graph mutation across every queue/context
// (spec.md §3's "global task-pool mutex").
func (p *Platform) LockTaskGraph()   { p.taskMu.Lock() }
func (p *Platform) UnlockTaskGraph() { p.taskMu.Unlock() }

// CallbackScheduler returns the background scheduler that runs task
// submitted/running/complete callbacks (spec.md §3).
func (p *Platform) CallbackScheduler() *thread.Pool { return p.callbacks }

// CompileScheduler returns the background scheduler that runs Compile/Link
// jobs, one worker per hardware thread unless overridden (spec.md §4.3).
func (p *Platform) CompileScheduler() *thread.Pool { return p.compile }

// Shutdown drains and stops both background schedulers.
func (p *Platform) Shutdown() {
	p.callbacks.Shutdown()
	p.compile.Shutdown()
}

// SelectDevice returns software when ForceWARP is set, otherwise hardware
// when one was supplied, otherwise software (CLON12_FORCE_WARP /
// CLON12_FORCE_HARDWARE, SPEC_FULL §A.3). ForceHardware alone does not
// change the result.
func SelectDevice(cfg config.Config, hardware, software *Device) *Device {
	if cfg.ForceWARP {
		return software
	}
	if cfg.ForceHardware || hardware != nil {
		if hardware != nil {
			return hardware
		}
	}
	return software
}
