// Package config loads clon12's environment-driven configuration: the two
// ICD-visible environment variables from spec.md §6 plus the internal
// tunables spec.md names as constants (buddy allocator thresholds, ring
// buffer size, worker counts, residency grace period bounds, ...).
package config

import (
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config is the fully-resolved runtime configuration. A zero-config
// cleanenv.ReadEnv call reproduces the constants spec.md names via the
// env-default tags below.
type Config struct {
	// ForceWARP retains only the software device, discarding any hardware
	// adapter (CLON12_FORCE_WARP, spec.md §6).
	ForceWARP bool `env:"CLON12_FORCE_WARP" env-default:"false"`

	// ForceHardware discards the software-rasterizer device
	// (CLON12_FORCE_HARDWARE, spec.md §6).
	ForceHardware bool `env:"CLON12_FORCE_HARDWARE" env-default:"false"`

	// DescriptorHeapSlots is the slot count of one descriptor heap chunk
	// (spec.md §4.2.1).
	DescriptorHeapSlots uint32 `env:"CLON12_DESCRIPTOR_HEAP_SLOTS" env-default:"4096"`

	// RingBufferSize is the total size in bytes of the fenced ring buffer
	// for shader-visible descriptor tables (spec.md §4.2.2).
	RingBufferSize uint64 `env:"CLON12_RING_BUFFER_SIZE" env-default:"2097152"`

	// RingBufferLedgerDepth is the ring buffer's ledger depth L (spec.md §4.2.2).
	RingBufferLedgerDepth int `env:"CLON12_RING_LEDGER_DEPTH" env-default:"16"`

	// BuddyThreshold is the max request size routed to the buddy allocator;
	// larger requests (or cannot-be-offset requests) go to the direct
	// allocator (spec.md §4.2.4, default 32 MiB).
	BuddyThreshold uint64 `env:"CLON12_BUDDY_THRESHOLD" env-default:"33554432"`

	// BuddyRootSize is the buddy allocator's virtual address space size
	// (spec.md §4.2.4, default 32 GiB).
	BuddyRootSize uint64 `env:"CLON12_BUDDY_ROOT_SIZE" env-default:"34359738368"`

	// BuddyMinBlock is the smallest block the buddy allocator will split to.
	BuddyMinBlock uint64 `env:"CLON12_BUDDY_MIN_BLOCK" env-default:"65536"`

	// ForcedFlushBytes is the cumulative upload-heap allocation within one
	// command list that triggers a forced flush (spec.md §4.2.7, default 256 MiB).
	ForcedFlushBytes uint64 `env:"CLON12_FORCED_FLUSH_BYTES" env-default:"268435456"`

	// OpportunisticFlushCommands/Dispatches are the command/dispatch count
	// thresholds for the opportunistic-flush heuristic (spec.md §4.2.7).
	OpportunisticFlushCommands  int `env:"CLON12_OPPORTUNISTIC_FLUSH_COMMANDS" env-default:"1000"`
	OpportunisticFlushDispatches int `env:"CLON12_OPPORTUNISTIC_FLUSH_DISPATCHES" env-default:"512"`

	// CompileWorkers is the compile/link background scheduler's worker
	// count; zero means "use hardware concurrency" (spec.md §5).
	CompileWorkers int `env:"CLON12_COMPILE_WORKERS" env-default:"0"`

	// BudgetQueryPeriod is how long a queried OS memory budget is cached
	// before the residency manager re-queries it (spec.md §4.2.6 step 2).
	BudgetQueryPeriod time.Duration `env:"CLON12_BUDGET_QUERY_PERIOD" env-default:"500ms"`

	// ResidencyMinGrace/MaxGrace bound the eviction grace period (spec.md §9
	// Open Question, resolved in DESIGN.md via linear interpolation).
	ResidencyMinGrace time.Duration `env:"CLON12_RESIDENCY_MIN_GRACE" env-default:"16ms"`
	ResidencyMaxGrace time.Duration `env:"CLON12_RESIDENCY_MAX_GRACE" env-default:"2s"`

	// FencePoolMaxDepth bounds the fence-indexed object pool before Retrieve
	// blocks on the oldest fence (spec.md §4.2.3 "bounded variant").
	FencePoolMaxDepth int `env:"CLON12_FENCE_POOL_MAX_DEPTH" env-default:"32"`

	// ShaderCacheDir is the on-disk location of the keyed shader cache
	// (spec.md §6 "Shader cache store format").
	ShaderCacheDir string `env:"CLON12_SHADER_CACHE_DIR" env-default:".clon12-cache"`
}

// Load reads environment variables into a Config, applying defaults for
// anything unset. It never reads a config file - clon12 is a driver-level
// runtime configured purely through its ICD-documented environment
// variables plus internal tunables, matching the env-only half of
// gfd-extender's cleanenv usage.
func Load() (*Config, error) {
	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if cfg.ForceWARP && cfg.ForceHardware {
		return nil, fmt.Errorf("config: CLON12_FORCE_WARP and CLON12_FORCE_HARDWARE are mutually exclusive")
	}
	return &cfg, nil
}
