package cache

// entry is one stored result. id is assigned once at insertion and never reused, so
// timers and settlement callbacks can tell a surviving entry from a newer one that
// happens to hold an equal key.
type entry[V any] struct {
	key   Key
	value V
	id    uint64
	seq   uint64
	timer Timer
	// pending is set while a deferred value has not settled; no timer is armed then.
	pending bool
}

func (e *entry[V]) stopTimer() {
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
}

// store keeps entries ordered by recency, index 0 being the most recently added or
// touched. Order is maintained incrementally by remove-then-prepend; nothing ever sorts.
type store[V any] struct {
	entries []*entry[V]
	nextID  uint64
}

func (s *store[V]) len() int {
	return len(s.entries)
}

func (s *store[V]) at(i int) *entry[V] {
	return s.entries[i]
}

// indexOf locates key by identity. Keys handed out by the resolver are the stored
// instances, so identity is the variant's equality for stored keys.
func (s *store[V]) indexOf(key Key) int {
	for i, e := range s.entries {
		if e.key == key {
			return i
		}
	}
	return -1
}

func (s *store[V]) indexOfID(id uint64) int {
	for i, e := range s.entries {
		if e.id == id {
			return i
		}
	}
	return -1
}

func (s *store[V]) has(key Key) bool {
	return s.indexOf(key) >= 0
}

// get peeks at the value without reordering.
func (s *store[V]) get(key Key) (V, bool) {
	if i := s.indexOf(key); i >= 0 {
		return s.entries[i].value, true
	}
	var zero V
	return zero, false
}

// add prepends a new entry. The caller guarantees no equal key is stored.
func (s *store[V]) add(key Key, value V) *entry[V] {
	s.nextID++
	e := &entry[V]{key: key, value: value, id: s.nextID}
	s.entries = append(s.entries, nil)
	copy(s.entries[1:], s.entries)
	s.entries[0] = e
	return e
}

// update replaces a value in place; the entry keeps its recency position.
func (s *store[V]) update(key Key, value V) bool {
	i := s.indexOf(key)
	if i < 0 {
		return false
	}
	s.entries[i].value = value
	return true
}

// touch moves the entry at i to the head, preserving the relative order of the rest.
func (s *store[V]) touch(i int) *entry[V] {
	e := s.entries[i]
	if i > 0 {
		copy(s.entries[1:i+1], s.entries[:i])
		s.entries[0] = e
	}
	return e
}

func (s *store[V]) removeAt(i int) *entry[V] {
	e := s.entries[i]
	copy(s.entries[i:], s.entries[i+1:])
	s.entries[len(s.entries)-1] = nil
	s.entries = s.entries[:len(s.entries)-1]
	return e
}

// remove deletes key; absent keys are a no-op.
func (s *store[V]) remove(key Key) (*entry[V], bool) {
	i := s.indexOf(key)
	if i < 0 {
		return nil, false
	}
	return s.removeAt(i), true
}

// removeTail drops the least recently used entry.
func (s *store[V]) removeTail() *entry[V] {
	return s.removeAt(len(s.entries) - 1)
}

// clear empties the store and returns what it held.
func (s *store[V]) clear() []*entry[V] {
	old := s.entries
	s.entries = nil
	return old
}

func (s *store[V]) keys() [][]any {
	out := make([][]any, len(s.entries))
	for i, e := range s.entries {
		out[i] = e.key.Args()
	}
	return out
}

func (s *store[V]) values() []V {
	out := make([]V, len(s.entries))
	for i, e := range s.entries {
		out[i] = e.value
	}
	return out
}
