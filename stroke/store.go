package stroke

// Store is the ordered collection of strokes that makes up a painting.
//
// Slot order is paint order: slot 0 is painted first. Deleting a stroke only
// tombstones its slot so that slot indices stay stable while operations are
// applied and undone; Compact removes tombstones and renumbers every slot.
//
// Store is not safe for concurrent use.
type Store struct {
	slots []Stroke
	live  bitset
	alive int
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{}
}

// Len returns the number of slots, tombstones included.
func (s *Store) Len() int { return len(s.slots) }

// LiveCount returns the number of strokes that are not deleted.
func (s *Store) LiveCount() int { return s.alive }

// Tombstones returns the number of deleted slots awaiting compaction.
func (s *Store) Tombstones() int { return len(s.slots) - s.alive }

// At returns a copy of the stroke in slot i.
func (s *Store) At(i int) (Stroke, bool) {
	if i < 0 || i >= len(s.slots) {
		return Stroke{}, false
	}
	return s.slots[i], true
}

// Live reports whether slot i holds a live stroke.
func (s *Store) Live(i int) bool {
	return i >= 0 && i < len(s.slots) && s.live.test(i)
}

// NthLive returns the slot index of the k-th live stroke in paint order,
// or -1 if k is out of range.
func (s *Store) NthLive(k int) int {
	if k < 0 || k >= s.alive {
		return -1
	}
	return s.live.selectNth(k)
}

// NextLive returns the first live slot at or after i, or -1.
func (s *Store) NextLive(i int) int {
	return s.live.next(i)
}

// Append adds a stroke on top of the painting and returns its slot index.
func (s *Store) Append(st Stroke) int {
	i := len(s.slots)
	s.slots = append(s.slots, st)
	if st.Deleted {
		return i
	}
	s.live.set(i)
	s.alive++
	return i
}

// truncate drops every slot at or above n.
func (s *Store) truncate(n int) {
	for i := n; i < len(s.slots); i++ {
		if s.live.test(i) {
			s.alive--
		}
	}
	s.live.truncate(n)
	clear(s.slots[n:])
	s.slots = s.slots[:n]
}

func (s *Store) setDeleted(i int, deleted bool) {
	if s.slots[i].Deleted == deleted {
		return
	}
	s.slots[i].Deleted = deleted
	if deleted {
		s.live.clear(i)
		s.alive--
	} else {
		s.live.set(i)
		s.alive++
	}
}

// Compact removes tombstoned slots and returns how many were removed.
// Every slot index issued before the call is invalid afterwards.
func (s *Store) Compact() int {
	if s.alive == len(s.slots) {
		return 0
	}
	removed := len(s.slots) - s.alive
	kept := s.slots[:0]
	for i, st := range s.slots {
		if s.live.test(i) {
			kept = append(kept, st)
		}
	}
	clear(s.slots[len(kept):])
	s.slots = kept
	s.live = bitset{}
	for i := range s.slots {
		s.live.set(i)
	}
	return removed
}

// Strokes returns a copy of the live strokes in paint order.
func (s *Store) Strokes() []Stroke {
	out := make([]Stroke, 0, s.alive)
	for i, st := range s.slots {
		if s.live.test(i) {
			out = append(out, st)
		}
	}
	return out
}

// Replace discards the current contents and installs strokes in order.
// Deleted entries are dropped.
func (s *Store) Replace(strokes []Stroke) {
	clear(s.slots)
	s.slots = s.slots[:0]
	s.live = bitset{}
	s.alive = 0
	for _, st := range strokes {
		if !st.Deleted {
			s.Append(st)
		}
	}
}

// Clone returns a deep copy of the store.
func (s *Store) Clone() *Store {
	c := &Store{
		slots: append([]Stroke(nil), s.slots...),
		alive: s.alive,
	}
	c.live.words = append([]uint64(nil), s.live.words...)
	return c
}

// Equal reports whether both stores hold the same slots in the same order.
func (s *Store) Equal(o *Store) bool {
	if len(s.slots) != len(o.slots) || s.alive != o.alive {
		return false
	}
	for i := range s.slots {
		if s.slots[i] != o.slots[i] {
			return false
		}
	}
	return true
}
