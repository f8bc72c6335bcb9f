// Package selection holds the chosen students and stations of the
// session-creation form.
package selection

// Set is an ordered selection keyed by identifier. Adding an item that is
// already selected does nothing, so repeated selections behave as a union.
type Set[K comparable, T any] struct {
	key   func(T) K
	order []K
	items map[K]T
}

// NewSet creates an empty set that identifies items with key.
func NewSet[K comparable, T any](key func(T) K) *Set[K, T] {
	return &Set[K, T]{key: key, items: make(map[K]T)}
}

// Add selects each item not yet selected and reports how many were new.
func (s *Set[K, T]) Add(items ...T) int {
	added := 0
	for _, it := range items {
		k := s.key(it)
		if _, ok := s.items[k]; ok {
			continue
		}
		s.items[k] = it
		s.order = append(s.order, k)
		added++
	}
	return added
}

// Remove drops the item with key k. It reports whether it was selected.
func (s *Set[K, T]) Remove(k K) bool {
	if _, ok := s.items[k]; !ok {
		return false
	}
	delete(s.items, k)
	for i, o := range s.order {
		if o == k {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

// Has reports whether k is selected.
func (s *Set[K, T]) Has(k K) bool {
	_, ok := s.items[k]
	return ok
}

// Len returns the number of selected items.
func (s *Set[K, T]) Len() int { return len(s.order) }

// Items returns the selected items in selection order.
func (s *Set[K, T]) Items() []T {
	out := make([]T, 0, len(s.order))
	for _, k := range s.order {
		out = append(out, s.items[k])
	}
	return out
}

// Keys returns the selected identifiers in selection order.
func (s *Set[K, T]) Keys() []K {
	return append([]K(nil), s.order...)
}

// Clear deselects everything.
func (s *Set[K, T]) Clear() {
	s.order = nil
	s.items = make(map[K]T)
}
