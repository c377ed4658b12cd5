// Package metrics exposes clon12's runtime observability surface: queue
// depth, task state transitions, residency budget/evictions, worker pool
// occupancy, and compile-cache hit rate. Carried as part of the ambient
// stack regardless of spec.md's Non-goals, matching the teacher's logging
// discipline of always instrumenting the hot paths.
package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "clon12"

var (
	// TasksTotal counts tasks by terminal state ("complete", "error").
	TasksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tasks_total",
		Help:      "Total tasks reaching a terminal state, by state.",
	}, []string{"state"})

	// QueueDepth is the current number of queued-but-not-yet-submitted
	// tasks, per command queue.
	QueueDepth = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "queue_depth",
		Help:      "Number of tasks currently queued on a command queue.",
	}, []string{"queue"})

	// OutstandingTasks is the current number of submitted-but-incomplete tasks.
	OutstandingTasks = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "outstanding_tasks",
		Help:      "Number of tasks currently submitted but not complete.",
	}, []string{"queue"})

	// ResidencyBudgetBytes is the last-queried OS memory budget.
	ResidencyBudgetBytes = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "residency_budget_bytes",
		Help:      "Last-queried GPU memory budget in bytes.",
	})

	// ResidencyUsageBytes is the current resident working-set size.
	ResidencyUsageBytes = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "residency_usage_bytes",
		Help:      "Current resident GPU memory usage in bytes.",
	})

	// ResidencyEvictionsTotal counts evictions performed by the LRU
	// residency manager.
	ResidencyEvictionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "residency_evictions_total",
		Help:      "Total objects evicted by the residency manager.",
	})

	// CompileCacheLookupsTotal counts shader-cache probes by outcome
	// ("hit", "miss").
	CompileCacheLookupsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "compile_cache_lookups_total",
		Help:      "Total shader-cache lookups, by outcome.",
	}, []string{"outcome"})

	// CompileDuration measures external-compiler Compile/Link call latency.
	CompileDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "compile_duration_seconds",
		Help:      "Duration of external compiler Compile/Link calls.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"stage"})

	// WorkerPoolOccupied is the current number of busy compile/link workers.
	WorkerPoolOccupied = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "worker_pool_occupied",
		Help:      "Number of compile/link worker threads currently executing a job.",
	})
)

// Registry bundles all clon12 collectors for handoff to an HTTP exposition
// endpoint, mirroring the teacher's "one registry, MustRegister everything
// in NewRegistry" pattern.
type Registry struct {
	*prometheus.Registry
}

// NewRegistry creates a Registry with every clon12 collector registered.
func NewRegistry() *Registry {
	r := prometheus.NewRegistry()
	r.MustRegister(
		TasksTotal,
		QueueDepth,
		OutstandingTasks,
		ResidencyBudgetBytes,
		ResidencyUsageBytes,
		ResidencyEvictionsTotal,
		CompileCacheLookupsTotal,
		CompileDuration,
		WorkerPoolOccupied,
	)
	return &Registry{Registry: r}
}
