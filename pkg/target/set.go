package target

import "iter"

// Set is an insertion-ordered collection of targets keyed by ID.
//
// Iteration follows resolution order so that reports are deterministic.
// A nil *Set behaves like an empty set for all read operations.
type Set struct {
	order []string
	byID  map[string]*Target
}

// NewSet creates a set containing the given targets in order.
func NewSet(targets ...*Target) *Set {
	s := &Set{byID: make(map[string]*Target, len(targets))}
	for _, t := range targets {
		s.Add(t)
	}
	return s
}

// Add inserts a target. Adding an ID that is already present replaces the
// target but keeps its original position.
func (s *Set) Add(t *Target) {
	if s == nil || t == nil {
		return
	}
	if s.byID == nil {
		s.byID = make(map[string]*Target)
	}
	if _, exists := s.byID[t.ID]; !exists {
		s.order = append(s.order, t.ID)
	}
	s.byID[t.ID] = t
}

// Get retrieves a target by ID.
func (s *Set) Get(id string) (*Target, bool) {
	if s == nil || s.byID == nil {
		return nil, false
	}
	t, ok := s.byID[id]
	return t, ok
}

// Contains reports whether a target with the given ID is present.
func (s *Set) Contains(id string) bool {
	_, ok := s.Get(id)
	return ok
}

// Len returns the number of targets.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.order)
}

// IsEmpty reports whether the set has no targets.
func (s *Set) IsEmpty() bool {
	return s.Len() == 0
}

// IDs returns target IDs in insertion order.
func (s *Set) IDs() []string {
	if s == nil {
		return nil
	}
	ids := make([]string, len(s.order))
	copy(ids, s.order)
	return ids
}

// Targets returns the targets in insertion order.
func (s *Set) Targets() []*Target {
	if s == nil {
		return nil
	}
	targets := make([]*Target, 0, len(s.order))
	for _, id := range s.order {
		targets = append(targets, s.byID[id])
	}
	return targets
}

// All iterates over the targets in insertion order.
func (s *Set) All() iter.Seq[*Target] {
	return func(yield func(*Target) bool) {
		if s == nil {
			return
		}
		for _, id := range s.order {
			if !yield(s.byID[id]) {
				return
			}
		}
	}
}

// Filter returns a new set with the targets for which keep returns true.
// Targets are shared, not copied.
func (s *Set) Filter(keep func(*Target) bool) *Set {
	out := NewSet()
	for t := range s.All() {
		if keep(t) {
			out.Add(t)
		}
	}
	return out
}

// Tests returns the subset of selected test targets. Tests present only as
// dependencies are left out.
func (s *Set) Tests() *Set {
	return s.Filter(func(t *Target) bool { return t.IsTest && !t.Dependency })
}
