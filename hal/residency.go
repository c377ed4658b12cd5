package hal

import (
	"sync"
	"time"

	"github.com/gogpu/clon12/internal/metrics"
)

// residencyEntry tracks one resource's last-referenced time and current
// residency status for the LRU residency manager (spec.md §4.2.6).
type residencyEntry struct {
	resource   Resource
	size       uint64
	lastUsed   time.Time
	resident   bool
	pendingMRU bool // queued for MakeResident but not yet confirmed
}

// ResidencyManager keeps a working set of native resources resident under a
// dynamic OS-reported memory budget, evicting the least-recently-used
// non-resident-eligible resources when the budget shrinks (spec.md §4.2.6).
// Grounded on the teacher's fence-pool/suballocator pattern of a tick-driven
// background pass, adapted to the spec's residency algorithm (no direct
// teacher analog; the deleted hal/vulkan had no equivalent).
type ResidencyManager struct {
	mu      sync.Mutex
	entries map[Resource]*residencyEntry
	queue   Queue
	budget  BudgetSource

	minGrace time.Duration
	maxGrace time.Duration

	lastBudget MemoryBudget
}

// NewResidencyManager creates a residency manager driving queue's
// MakeResident/Evict calls from budget's periodic query, with minGrace and
// maxGrace bounding the linear-interpolated eviction grace period (spec.md
// §9 Open Question, decided in DESIGN.md: grace period narrows linearly as
// usage approaches budget).
func NewResidencyManager(queue Queue, budget BudgetSource, minGrace, maxGrace time.Duration) *ResidencyManager {
	return &ResidencyManager{
		entries:  make(map[Resource]*residencyEntry),
		queue:    queue,
		budget:   budget,
		minGrace: minGrace,
		maxGrace: maxGrace,
	}
}

// Track registers a resource of the given size as a residency candidate,
// initially non-resident.
func (r *ResidencyManager) Track(res Resource, size uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[res] = &residencyEntry{resource: res, size: size}
}

// Untrack removes a resource from residency tracking, e.g. on destruction.
func (r *ResidencyManager) Untrack(res Resource) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, res)
}

// Reference marks a resource as used in the current submission, refreshing
// its last-used time and enqueuing it for residency if it isn't already
// resident (spec.md §4.2.6 step 1: "mark referenced objects resident").
func (r *ResidencyManager) Reference(res Resource, now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[res]
	if !ok {
		e = &residencyEntry{resource: res}
		r.entries[res] = e
	}
	e.lastUsed = now
	if !e.resident {
		e.pendingMRU = true
	}
}

// gracePeriod linearly interpolates between maxGrace (usage far below
// budget) and minGrace (usage at or above budget).
func (r *ResidencyManager) gracePeriod(b MemoryBudget) time.Duration {
	if b.BudgetBytes == 0 {
		return r.minGrace
	}
	ratio := float64(b.UsageBytes) / float64(b.BudgetBytes)
	if ratio >= 1 {
		return r.minGrace
	}
	if ratio <= 0 {
		return r.maxGrace
	}
	span := r.maxGrace - r.minGrace
	return r.maxGrace - time.Duration(float64(span)*ratio)
}

// Tick runs one residency pass (spec.md §4.2.6):
//  1. resources Reference()'d since the last tick are queued for MakeResident.
//  2. the current OS memory budget is queried.
//  3. if usage exceeds budget, the least-recently-used resident resources
//     older than the current grace period are evicted until back under
//     budget, or until nothing more is evictable.
//  4. the pending MakeResident batch is submitted; if the queue reports
//     ErrBudgetExceeded, the remainder is force-enqueued anyway (the native
//     API will page as needed - spec.md §4.2.6 "force-enqueue remainder").
func (r *ResidencyManager) Tick(now time.Time) error {
	r.mu.Lock()

	var makeResident []Resource
	for _, e := range r.entries {
		if e.pendingMRU {
			makeResident = append(makeResident, e.resource)
		}
	}

	budget, err := r.budget.Query()
	if err == nil {
		r.lastBudget = budget
		metrics.ResidencyBudgetBytes.Set(float64(budget.BudgetBytes))
		metrics.ResidencyUsageBytes.Set(float64(budget.UsageBytes))
	}
	grace := r.gracePeriod(r.lastBudget)

	if r.lastBudget.BudgetBytes > 0 && r.lastBudget.UsageBytes > r.lastBudget.BudgetBytes {
		type candidate struct {
			entry *residencyEntry
		}
		var candidates []candidate
		for _, e := range r.entries {
			if e.resident && !e.pendingMRU && now.Sub(e.lastUsed) >= grace {
				candidates = append(candidates, candidate{e})
			}
		}
		// Oldest last-used first.
		for i := 0; i < len(candidates); i++ {
			for j := i + 1; j < len(candidates); j++ {
				if candidates[j].entry.lastUsed.Before(candidates[i].entry.lastUsed) {
					candidates[i], candidates[j] = candidates[j], candidates[i]
				}
			}
		}

		var toEvict []Resource
		freed := uint64(0)
		overBy := r.lastBudget.UsageBytes - r.lastBudget.BudgetBytes
		for _, c := range candidates {
			if freed >= overBy {
				break
			}
			toEvict = append(toEvict, c.entry.resource)
			freed += c.entry.size
			c.entry.resident = false
		}
		r.mu.Unlock()
		if len(toEvict) > 0 {
			if err := r.queue.Evict(toEvict); err != nil {
				Logger().Warn("residency: evict call failed", "error", err)
			} else {
				metrics.ResidencyEvictionsTotal.Add(float64(len(toEvict)))
			}
		}
		r.mu.Lock()
	}

	for _, res := range makeResident {
		if e, ok := r.entries[res]; ok {
			e.pendingMRU = false
			e.resident = true
		}
	}
	r.mu.Unlock()

	if len(makeResident) == 0 {
		return nil
	}
	if err := r.queue.MakeResident(makeResident); err != nil {
		if err == ErrBudgetExceeded {
			Logger().Warn("residency: budget exceeded, force-enqueuing remainder", "count", len(makeResident))
			return nil
		}
		return err
	}
	return nil
}

// Stats reports the number of tracked and resident resources.
func (r *ResidencyManager) Stats() (tracked, resident int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tracked = len(r.entries)
	for _, e := range r.entries {
		if e.resident {
			resident++
		}
	}
	return tracked, resident
}
