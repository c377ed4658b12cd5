package hal

import (
	"errors"
	"sync"
)

// ErrStateConflict indicates two incompatible write states (or a write and
// a read) were both requested for the same resource within one submission
// before a barrier could separate them (spec.md §4.2.5, §C.3).
var ErrStateConflict = errors.New("hal: incompatible resource state transitions in one submission")

// subresourceStates tracks either one uniform state for every subresource
// (the common case - spec.md §9 "most state vectors have N=1") or a
// per-subresource array, matching the "all-subresources-identical fast
// path, or per-subresource array" split from spec.md §4.2.5.
type subresourceStates struct {
	uniform      bool
	uniformState ResourceState
	perSub       []ResourceState
}

func newUniformStates(n int, initial ResourceState) subresourceStates {
	return subresourceStates{uniform: true, uniformState: initial, perSub: make([]ResourceState, n)}
}

func (s *subresourceStates) get(sub int) ResourceState {
	if s.uniform {
		return s.uniformState
	}
	return s.perSub[sub]
}

func (s *subresourceStates) setAll(state ResourceState) {
	s.uniform = true
	s.uniformState = state
}

func (s *subresourceStates) setSub(sub int, state ResourceState) {
	if s.uniform {
		for i := range s.perSub {
			s.perSub[i] = s.uniformState
		}
		s.uniform = false
	}
	s.perSub[sub] = state
}

// mergeRequested combines a newly-requested state into an existing desired
// state per subresource, following spec.md §4.2.5 / §C.3: read-only states
// accumulate via bitwise OR (so a later reader needing either doesn't force
// a redundant barrier); a write state replaces outright; a write colliding
// with anything already requested in the same submission is a conflict.
func mergeRequested(existing, requested ResourceState) (ResourceState, error) {
	if existing == 0 {
		return requested, nil
	}
	if requested.IsWriteState() {
		if existing != requested {
			return 0, ErrStateConflict
		}
		return requested, nil
	}
	if existing.IsWriteState() {
		return 0, ErrStateConflict
	}
	return existing | requested, nil
}

// trackedResource holds one resource's current (barrier-applied) and
// desired (pending) subresource states.
type trackedResource struct {
	numSubresources int
	current         subresourceStates
	desired         subresourceStates
	hasDesired      bool
}

// StateManager is the per-device resource state manager (spec.md §4.2.5):
// it accumulates desired-state transitions and, once per submission,
// compares them against current state to emit a minimal barrier batch.
type StateManager struct {
	mu      sync.Mutex
	tracked map[Resource]*trackedResource
	pending []Resource
}

// NewStateManager creates an empty state manager.
func NewStateManager() *StateManager {
	return &StateManager{tracked: make(map[Resource]*trackedResource)}
}

// Track registers a resource with numSubresources subresources (1 for a
// buffer) at its initial state.
func (m *StateManager) Track(r Resource, numSubresources int, initial ResourceState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tracked[r] = &trackedResource{
		numSubresources: numSubresources,
		current:         newUniformStates(numSubresources, initial),
	}
}

// Untrack removes a resource, e.g. once it has been destroyed and drained
// through the deferred-deletion queue.
func (m *StateManager) Untrack(r Resource) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tracked, r)
}

// Transition requests that resource (or one subresource of it, if sub >= 0;
// all subresources if sub < 0) reach state. The request is merged into the
// pending desired state per mergeRequested and the resource is enqueued for
// the next ApplyAll.
func (m *StateManager) Transition(r Resource, sub int, state ResourceState) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tracked[r]
	if !ok {
		return NewValidationLikeError("state manager: transition on untracked resource")
	}
	if !t.hasDesired {
		t.desired = newUniformStates(t.numSubresources, 0)
		t.hasDesired = true
		m.pending = append(m.pending, r)
	}

	if sub < 0 {
		if t.desired.uniform {
			merged, err := mergeRequested(t.desired.uniformState, state)
			if err != nil {
				return err
			}
			t.desired.setAll(merged)
			return nil
		}
		for i := range t.desired.perSub {
			merged, err := mergeRequested(t.desired.perSub[i], state)
			if err != nil {
				return err
			}
			t.desired.perSub[i] = merged
		}
		return nil
	}

	merged, err := mergeRequested(t.desired.get(sub), state)
	if err != nil {
		return err
	}
	t.desired.setSub(sub, merged)
	return nil
}

// ApplyAll compares every pending resource's desired state against its
// current state, emits a Barrier for each subresource whose state differs,
// and updates current to desired (spec.md §4.2.5, §8 invariant 4).
func (m *StateManager) ApplyAll() []Barrier {
	m.mu.Lock()
	defer m.mu.Unlock()

	var barriers []Barrier
	for _, r := range m.pending {
		t := m.tracked[r]
		if t == nil || !t.hasDesired {
			continue
		}

		if t.current.uniform && t.desired.uniform {
			if t.current.uniformState != t.desired.uniformState {
				barriers = append(barriers, Barrier{Resource: r, Before: t.current.uniformState, After: t.desired.uniformState})
			}
			t.current.setAll(t.desired.uniformState)
		} else {
			for sub := 0; sub < t.numSubresources; sub++ {
				before := t.current.get(sub)
				after := t.desired.get(sub)
				if before != after {
					barriers = append(barriers, Barrier{Resource: r, Before: before, After: after})
					t.current.setSub(sub, after)
				}
			}
		}
		t.hasDesired = false
	}
	m.pending = m.pending[:0]
	return barriers
}

// CurrentState returns a resource's current state (uniform fast path only;
// for a per-subresource resource this returns subresource 0's state).
func (m *StateManager) CurrentState(r Resource) ResourceState {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tracked[r]
	if !ok {
		return StateCommon
	}
	return t.current.get(0)
}
