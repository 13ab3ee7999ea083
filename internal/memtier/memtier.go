// Package memtier implements the cache's fast in-memory tier: a map for
// O(1) lookup paired with a composite-ordered index for the deterministic
// (timestamp asc, key asc) enumeration the eviction policy requires.
package memtier

import "github.com/google/btree"

// entry is one memory-tier row. Record is stored as the already-decoded
// value (an any, since this package has no knowledge of the cache's bound
// record type) so that a memory hit never pays a re-decode cost.
type entry struct {
	key       string
	record    any
	timestamp float64
	size      int64
}

// index is the btree item used purely for composite ordering; it carries
// only what the ordering and a subsequent map lookup need.
type index struct {
	key       string
	timestamp float64
}

func less(a, b index) bool {
	if a.timestamp != b.timestamp {
		return a.timestamp < b.timestamp
	}
	return a.key < b.key
}

// Tier is the in-process memory tier. It is not safe for concurrent use by
// multiple goroutines on its own — the coordinator serializes all access
// under its own lock, matching the single-writer-discipline the rest of
// the cache uses.
type Tier struct {
	entries   map[string]*entry
	order     *btree.BTreeG[index]
	totalSize int64
}

// New creates an empty memory tier.
func New() *Tier {
	return &Tier{
		entries: make(map[string]*entry),
		order:   btree.NewG(32, less),
	}
}

// Get returns the decoded record and timestamp stored for key.
func (t *Tier) Get(key string) (record any, timestamp float64, size int64, ok bool) {
	e, found := t.entries[key]
	if !found {
		return nil, 0, 0, false
	}
	return e.record, e.timestamp, e.size, true
}

// Contains reports whether key is present, without affecting ordering.
func (t *Tier) Contains(key string) bool {
	_, ok := t.entries[key]
	return ok
}

// Put inserts or replaces the entry for key, re-indexing it at the new
// timestamp. size is the byte length of the record's canonical encoding
// (computed once by the caller, not recomputed here).
func (t *Tier) Put(key string, record any, timestamp float64, size int64) {
	if old, found := t.entries[key]; found {
		t.order.Delete(index{key: key, timestamp: old.timestamp})
		t.totalSize -= old.size
	}
	t.entries[key] = &entry{key: key, record: record, timestamp: timestamp, size: size}
	t.order.ReplaceOrInsert(index{key: key, timestamp: timestamp})
	t.totalSize += size
}

// Delete removes key if present; deleting an absent key is a no-op.
func (t *Tier) Delete(key string) {
	e, found := t.entries[key]
	if !found {
		return
	}
	delete(t.entries, key)
	t.order.Delete(index{key: key, timestamp: e.timestamp})
	t.totalSize -= e.size
}

// Count returns the number of entries currently held.
func (t *Tier) Count() int {
	return len(t.entries)
}

// TotalSize returns the sum of entry sizes currently held.
func (t *Tier) TotalSize() int64 {
	return t.totalSize
}

// Oldest returns the single eldest entry under (timestamp asc, key asc).
// It satisfies internal/eviction.Tier.
func (t *Tier) Oldest() (key string, timestamp float64, size int64, ok bool) {
	var found index
	hasAny := false
	t.order.Ascend(func(item index) bool {
		found = item
		hasAny = true
		return false // stop after the first (lowest) item
	})
	if !hasAny {
		return "", 0, 0, false
	}
	e := t.entries[found.key]
	return e.key, e.timestamp, e.size, true
}

// Remove deletes the named entry. It satisfies internal/eviction.Tier.
func (t *Tier) Remove(key string) {
	t.Delete(key)
}

// IterOldest returns up to n entries ordered by (timestamp asc, key asc).
func (t *Tier) IterOldest(n int) []struct {
	Key       string
	Timestamp float64
	Size      int64
} {
	var out []struct {
		Key       string
		Timestamp float64
		Size      int64
	}
	t.order.Ascend(func(item index) bool {
		if n > 0 && len(out) >= n {
			return false
		}
		e := t.entries[item.key]
		out = append(out, struct {
			Key       string
			Timestamp float64
			Size      int64
		}{e.key, e.timestamp, e.size})
		return true
	})
	return out
}

// Clear removes every entry.
func (t *Tier) Clear() {
	t.entries = make(map[string]*entry)
	t.order = btree.NewG(32, less)
	t.totalSize = 0
}
