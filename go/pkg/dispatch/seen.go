package dispatch

// defaultSeenCapacity bounds the dedup set. The stream is sequential, so a
// duplicate arrives close behind the original; the cap only needs to cover
// the redelivery horizon, not the whole history.
const defaultSeenCapacity = 1 << 16

// seenSet remembers the most recently marked ids, evicting the oldest once
// the cap is reached. Not safe for concurrent use; the dispatcher is
// single-threaded.
type seenSet struct {
	cap   int
	ids   map[string]struct{}
	order []string
	head  int
}

func newSeenSet(capacity int) *seenSet {
	if capacity <= 0 {
		capacity = defaultSeenCapacity
	}
	return &seenSet{
		cap: capacity,
		ids: make(map[string]struct{}, capacity),
	}
}

func (s *seenSet) Has(id string) bool {
	_, ok := s.ids[id]
	return ok
}

func (s *seenSet) Mark(id string) {
	if _, ok := s.ids[id]; ok {
		return
	}
	if len(s.order) < s.cap {
		s.order = append(s.order, id)
	} else {
		delete(s.ids, s.order[s.head])
		s.order[s.head] = id
		s.head = (s.head + 1) % s.cap
	}
	s.ids[id] = struct{}{}
}
