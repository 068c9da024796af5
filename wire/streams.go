package wire

import "sync"

// StreamTable is a connection's mutex-guarded map from stream id to
// Stream; entries are removed once a stream reaches Closed.
type StreamTable struct {
	mu sync.Mutex
	m  map[uint32]*Stream
}

// NewStreamTable constructs an empty table.
func NewStreamTable() *StreamTable {
	return &StreamTable{m: make(map[uint32]*Stream)}
}

// Get returns the stream for id, or nil if absent.
func (t *StreamTable) Get(id uint32) *Stream {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.m[id]
}

// GetOrCreate returns the existing stream for id, or creates, stores and
// returns a new one via newFn.
func (t *StreamTable) GetOrCreate(id uint32, newFn func() *Stream) *Stream {
	t.mu.Lock()
	defer t.mu.Unlock()
	if s, ok := t.m[id]; ok {
		return s
	}
	s := newFn()
	t.m[id] = s
	return s
}

// Delete removes id from the table.
func (t *StreamTable) Delete(id uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.m, id)
}

// Len returns the number of live streams.
func (t *StreamTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.m)
}

// Range calls fn for every live stream until fn returns false.
func (t *StreamTable) Range(fn func(*Stream) bool) {
	t.mu.Lock()
	snapshot := make([]*Stream, 0, len(t.m))
	for _, s := range t.m {
		snapshot = append(snapshot, s)
	}
	t.mu.Unlock()
	for _, s := range snapshot {
		if !fn(s) {
			return
		}
	}
}
