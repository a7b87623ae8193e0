package histogram

import "sync"

// Sync wraps a Histogram behind a single mutex that guards the whole
// tree. Every Add takes the lock for one logarithmic insert or update;
// with at most 1024 writers that is cheaper than sharding and merging
// ordered iterators for the report.
type Sync struct {
	mu sync.Mutex
	h  *Histogram
}

var (
	_ Recorder = (*Sync)(nil)
	_ Reader   = (*Sync)(nil)
)

// NewSync creates an empty thread-safe Histogram.
func NewSync() *Sync {
	return &Sync{h: New()}
}

// Add adds delta to key under the lock.
func (s *Sync) Add(key, delta uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.h.Add(key, delta)
}

// Ascend iterates under the lock. fn must not call back into s.
func (s *Sync) Ascend(fn func(Entry) bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.h.Ascend(fn)
}

// AscendRange iterates [from, to) under the lock. fn must not call back
// into s.
func (s *Sync) AscendRange(from, to uint64, fn func(Entry) bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.h.AscendRange(from, to, fn)
}

// AscendFrom iterates keys >= from under the lock.
func (s *Sync) AscendFrom(from uint64, fn func(Entry) bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.h.AscendFrom(from, fn)
}

// LowerBound returns the first entry whose key is >= key.
func (s *Sync) LowerBound(key uint64) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.h.LowerBound(key)
}

// Min returns the entry with the smallest key.
func (s *Sync) Min() (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.h.Min()
}

// Len returns the number of distinct keys.
func (s *Sync) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.h.Len()
}

// Total returns the sum of all counts.
func (s *Sync) Total() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.h.Total()
}
