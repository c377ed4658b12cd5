package hal

import "sync/atomic"

// StaticBudgetSource is a BudgetSource that reports a fixed or
// test-programmable budget, used by hal/nativesoftware and the test suite
// in place of hal/nvmlbudget.
type StaticBudgetSource struct {
	budget atomic.Uint64
	usage  atomic.Uint64
}

// NewStaticBudgetSource creates a budget source reporting the given
// constant budget and zero initial usage.
func NewStaticBudgetSource(budgetBytes uint64) *StaticBudgetSource {
	s := &StaticBudgetSource{}
	s.budget.Store(budgetBytes)
	return s
}

// Query implements BudgetSource.
func (s *StaticBudgetSource) Query() (MemoryBudget, error) {
	return MemoryBudget{BudgetBytes: s.budget.Load(), UsageBytes: s.usage.Load()}, nil
}

// SetUsage lets tests simulate usage pressure.
func (s *StaticBudgetSource) SetUsage(bytes uint64) {
	s.usage.Store(bytes)
}

// SetBudget lets tests simulate the OS budget shrinking/growing.
func (s *StaticBudgetSource) SetBudget(bytes uint64) {
	s.budget.Store(bytes)
}
