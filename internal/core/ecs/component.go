package ecs

// Removable is implemented by all component stores so the World can
// bulk-remove an entity's data from every store on destroy.
type Removable interface {
	Remove(id EntityID)
}

// Store is a sparse set of components of one type. Components live in a
// dense slice; removal swaps the last element into the hole, so Each visits
// in insertion order until the first removal.
type Store[T any] struct {
	index map[EntityID]int
	ids   []EntityID
	items []*T
}

func NewStore[T any]() *Store[T] {
	return &Store[T]{index: make(map[EntityID]int, 64)}
}

// Set adds or replaces the component of id.
func (s *Store[T]) Set(id EntityID, c *T) {
	if i, ok := s.index[id]; ok {
		s.items[i] = c
		return
	}
	s.index[id] = len(s.items)
	s.ids = append(s.ids, id)
	s.items = append(s.items, c)
}

func (s *Store[T]) Get(id EntityID) (*T, bool) {
	i, ok := s.index[id]
	if !ok {
		return nil, false
	}
	return s.items[i], true
}

func (s *Store[T]) Remove(id EntityID) {
	s.Take(id)
}

// Take removes the component of id and returns it.
func (s *Store[T]) Take(id EntityID) (*T, bool) {
	i, ok := s.index[id]
	if !ok {
		return nil, false
	}
	c := s.items[i]
	last := len(s.items) - 1
	if i != last {
		s.items[i] = s.items[last]
		s.ids[i] = s.ids[last]
		s.index[s.ids[i]] = i
	}
	s.items[last] = nil
	s.items = s.items[:last]
	s.ids = s.ids[:last]
	delete(s.index, id)
	return c, true
}

func (s *Store[T]) Has(id EntityID) bool {
	_, ok := s.index[id]
	return ok
}

func (s *Store[T]) Len() int {
	return len(s.items)
}

// Each visits every component. fn must not add or remove components.
func (s *Store[T]) Each(fn func(EntityID, *T)) {
	for i, c := range s.items {
		fn(s.ids[i], c)
	}
}
