package timeline

// store is the ordered item sequence plus the subscriber fan-out. Every
// mutation emits exactly one diff of the same shape to every subscriber
// inside the same critical section, so no intermediate state is
// observable. All methods require the owning Timeline's lock.
type store struct {
	items  []*Item
	nextID int64
	subs   map[string]*Subscription
}

func newStore() *store {
	return &store{
		nextID: 1,
		subs:   make(map[string]*Subscription),
	}
}

// newItemID assigns the next stable local identifier.
func (s *store) newItemID() int64 {
	id := s.nextID
	s.nextID++
	return id
}

// len returns the number of items.
func (s *store) len() int {
	return len(s.items)
}

// at returns the item at index i.
func (s *store) at(i int) *Item {
	return s.items[i]
}

// snapshot returns a copy of the current sequence. Items are shared;
// copy-on-write mutation keeps them stable for readers.
func (s *store) snapshot() []*Item {
	return append([]*Item(nil), s.items...)
}

// indexOfID returns the current position of the item with the given local
// identifier, or -1.
func (s *store) indexOfID(id int64) int {
	for i, it := range s.items {
		if it.id == id {
			return i
		}
	}
	return -1
}

// pushBack appends an item and broadcasts the diff.
func (s *store) pushBack(it *Item) {
	s.items = append(s.items, it)
	s.broadcast(Diff{Op: OpPushBack, Item: it})
}

// insert places an item at index i and broadcasts the diff. An insert at
// the end degrades to pushBack so subscribers see the minimal shape.
func (s *store) insert(i int, it *Item) {
	if i >= len(s.items) {
		s.pushBack(it)
		return
	}
	s.items = append(s.items, nil)
	copy(s.items[i+1:], s.items[i:])
	s.items[i] = it
	s.broadcast(Diff{Op: OpInsert, Index: i, Item: it})
}

// set replaces the item at index i in place and broadcasts the diff.
func (s *store) set(i int, it *Item) {
	s.items[i] = it
	s.broadcast(Diff{Op: OpSet, Index: i, Item: it})
}

// remove deletes the item at index i and broadcasts the diff.
func (s *store) remove(i int) {
	s.items = append(s.items[:i], s.items[i+1:]...)
	s.broadcast(Diff{Op: OpRemove, Index: i})
}

// clear empties the sequence and broadcasts the diff. A clear of an
// already-empty store is a no-op.
func (s *store) clear() {
	if len(s.items) == 0 {
		return
	}
	s.items = nil
	s.broadcast(Diff{Op: OpClear})
}

// broadcast delivers one diff to every attached subscriber. Buffers grow
// as needed; a slow subscriber lags but never loses diffs.
func (s *store) broadcast(d Diff) {
	for _, sub := range s.subs {
		sub.push(d)
	}
}

// attach registers a subscription for future diffs.
func (s *store) attach(sub *Subscription) {
	s.subs[sub.id] = sub
}

// detach removes a subscription; its buffered diffs are released.
func (s *store) detach(id string) {
	delete(s.subs, id)
}
