package set

// StringSet is a collection of unique strings that remembers the order in
// which elements were first added.  It is not thread-safe.
type StringSet interface {
	// Returns a new set that contains exactly the same elements, in the same
	// order, as this set.
	Copy() StringSet

	// Returns the cardinality of this set.
	Len() int

	// Returns true if and only if this set contains v.
	Contains(v string) bool
	// Inserts v into this set.  Returns true if v was not already present.
	Add(v string) bool

	// Returns the elements in insertion order.
	Items() []string
	// Executes f(v) for every element v in insertion order.  If f mutates
	// this set, behavior is undefined.
	Do(f func(string))

	// Adds every element in s into this set.
	Union(s StringSet)
	// Removes all elements from the set.
	Clear()
}

// Returns a new StringSet pre-populated with the given items
func NewStringSet(items ...string) StringSet {
	res := &stringSetImpl{
		data: make(map[string]struct{}),
	}
	for _, item := range items {
		res.Add(item)
	}
	return res
}

type stringSetImpl struct {
	data  map[string]struct{}
	order []string
}

func (s *stringSetImpl) Len() int {
	return len(s.data)
}

func (s *stringSetImpl) Copy() StringSet {
	res := NewStringSet()
	res.Union(s)
	return res
}

func (s *stringSetImpl) Contains(v string) bool {
	_, ok := s.data[v]
	return ok
}

func (s *stringSetImpl) Add(v string) bool {
	if _, ok := s.data[v]; ok {
		return false
	}
	s.data[v] = struct{}{}
	s.order = append(s.order, v)
	return true
}

func (s *stringSetImpl) Items() []string {
	res := make([]string, len(s.order))
	copy(res, s.order)
	return res
}

func (s *stringSetImpl) Do(f func(string)) {
	for _, item := range s.order {
		f(item)
	}
}

func (s *stringSetImpl) Union(s2 StringSet) {
	s2.Do(func(item string) { s.Add(item) })
}

func (s *stringSetImpl) Clear() {
	s.data = make(map[string]struct{})
	s.order = nil
}
