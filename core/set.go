package core

// StringSet is an insertion-ordered set of strings. The zero value is ready
// to use. It is not safe for concurrent use; owners guard it.
type StringSet struct {
	index map[string]struct{}
	items []string
}

// NewStringSet builds a set from values, dropping duplicates.
func NewStringSet(values ...string) *StringSet {
	s := &StringSet{}
	for _, v := range values {
		s.Add(v)
	}
	return s
}

// Add inserts v and reports whether it was newly added.
func (s *StringSet) Add(v string) bool {
	if s.index == nil {
		s.index = make(map[string]struct{})
	}
	if _, ok := s.index[v]; ok {
		return false
	}
	s.index[v] = struct{}{}
	s.items = append(s.items, v)
	return true
}

// Remove deletes v and reports whether it was present.
func (s *StringSet) Remove(v string) bool {
	if _, ok := s.index[v]; !ok {
		return false
	}
	delete(s.index, v)
	for i, item := range s.items {
		if item == v {
			s.items = append(s.items[:i], s.items[i+1:]...)
			break
		}
	}
	return true
}

// Has reports whether v is in the set.
func (s *StringSet) Has(v string) bool {
	_, ok := s.index[v]
	return ok
}

// Len returns the number of members.
func (s *StringSet) Len() int { return len(s.items) }

// Values returns a copy of the members in insertion order.
func (s *StringSet) Values() []string {
	out := make([]string, len(s.items))
	copy(out, s.items)
	return out
}
