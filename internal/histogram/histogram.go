// Package histogram provides the ordered key to count accumulator that
// every parsed line is merged into.
package histogram

import "github.com/google/btree"

// degree is the B-tree node fan-out. 32 keeps nodes around a cache page
// for uint64 keys.
const degree = 32

// Entry is one histogram cell.
type Entry struct {
	Key   uint64
	Count uint64
}

// Recorder accepts observations.
type Recorder interface {
	// Add adds delta to the count of key and reports whether the key
	// was newly created.
	Add(key, delta uint64) bool
}

// Reader is the read side consumed by the report generator.
// Iteration is strictly ascending by key.
type Reader interface {
	Ascend(fn func(Entry) bool)
	AscendRange(from, to uint64, fn func(Entry) bool)
	AscendFrom(from uint64, fn func(Entry) bool)
	LowerBound(key uint64) (Entry, bool)
	Min() (Entry, bool)
	Len() int
	Total() uint64
}

type cell struct {
	key   uint64
	count uint64
}

func lessCell(a, b *cell) bool {
	return a.key < b.key
}

// Histogram is the plain, unsynchronized variant. It must only be used
// from a single goroutine; see Sync for the shared variant.
type Histogram struct {
	tree   *btree.BTreeG[*cell]
	search cell
	total  uint64
}

var (
	_ Recorder = (*Histogram)(nil)
	_ Reader   = (*Histogram)(nil)
)

// New creates an empty Histogram.
func New() *Histogram {
	return &Histogram{
		tree: btree.NewG[*cell](degree, lessCell),
	}
}

// Add adds delta to key. Counts are updated in place so an existing key
// costs a single lookup.
func (h *Histogram) Add(key, delta uint64) bool {
	h.total += delta

	h.search.key = key
	if c, ok := h.tree.Get(&h.search); ok {
		c.count += delta

		return false
	}

	h.tree.ReplaceOrInsert(&cell{key: key, count: delta})

	return true
}

// Ascend calls fn for every entry in ascending key order until fn
// returns false.
func (h *Histogram) Ascend(fn func(Entry) bool) {
	h.tree.Ascend(func(c *cell) bool {
		return fn(Entry{Key: c.key, Count: c.count})
	})
}

// AscendRange calls fn for every entry with from <= key < to.
func (h *Histogram) AscendRange(from, to uint64, fn func(Entry) bool) {
	if to <= from {
		return
	}

	h.tree.AscendRange(&cell{key: from}, &cell{key: to}, func(c *cell) bool {
		return fn(Entry{Key: c.key, Count: c.count})
	})
}

// AscendFrom calls fn for every entry with key >= from.
func (h *Histogram) AscendFrom(from uint64, fn func(Entry) bool) {
	h.tree.AscendGreaterOrEqual(&cell{key: from}, func(c *cell) bool {
		return fn(Entry{Key: c.key, Count: c.count})
	})
}

// LowerBound returns the first entry whose key is >= key.
func (h *Histogram) LowerBound(key uint64) (Entry, bool) {
	var (
		found Entry
		ok    bool
	)

	h.tree.AscendGreaterOrEqual(&cell{key: key}, func(c *cell) bool {
		found = Entry{Key: c.key, Count: c.count}
		ok = true

		return false
	})

	return found, ok
}

// Min returns the entry with the smallest key.
func (h *Histogram) Min() (Entry, bool) {
	c, ok := h.tree.Min()
	if !ok {
		return Entry{}, false
	}

	return Entry{Key: c.key, Count: c.count}, true
}

// Len returns the number of distinct keys.
func (h *Histogram) Len() int {
	return h.tree.Len()
}

// Total returns the sum of all counts.
func (h *Histogram) Total() uint64 {
	return h.total
}

// Entries returns a copy of all entries in ascending key order.
func Entries(r Reader) []Entry {
	out := make([]Entry, 0, r.Len())

	r.Ascend(func(e Entry) bool {
		out = append(out, e)

		return true
	})

	return out
}
