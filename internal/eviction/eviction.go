// Package eviction implements the cache's single deterministic eviction
// algorithm: strict least-recently-used order with a lexicographic key
// tie-break, applied until both a count limit and a size limit are
// satisfied.
package eviction

// Tier is the minimal surface a tier (memory or disk) must expose for the
// eviction algorithm to select and remove victims. Implementations must
// report the single eldest entry by the composite order (timestamp asc,
// key asc) — see the Oldest doc comment.
type Tier interface {
	// Count returns the current number of entries.
	Count() int

	// TotalSize returns the current sum of entry sizes in bytes.
	TotalSize() int64

	// Oldest returns the single eldest entry under the strict order
	// (timestamp ascending, key lexicographically ascending). ok is
	// false when the tier has no entry to report, which stops Run.
	Oldest() (key string, timestamp float64, size int64, ok bool)

	// Remove deletes the named entry, updating Count and TotalSize.
	Remove(key string)
}

// Victim describes one entry removed by Run.
type Victim struct {
	Key       string
	Timestamp float64
	Size      int64
}

// Run evicts the eldest entry from t, one at a time, until both
// t.Count() <= maxCount and t.TotalSize() <= maxSize hold (a limit <= 0
// is treated as unbounded). It returns every victim removed, in eviction
// order, so callers can cascade the same removals into another tier and
// record them in a statistics ledger.
func Run(t Tier, maxCount int, maxSize int64) []Victim {
	var victims []Victim

	for overCount(t, maxCount) || overSize(t, maxSize) {
		key, ts, size, ok := t.Oldest()
		if !ok {
			break
		}
		t.Remove(key)
		victims = append(victims, Victim{Key: key, Timestamp: ts, Size: size})
	}

	return victims
}

func overCount(t Tier, maxCount int) bool {
	return maxCount > 0 && t.Count() > maxCount
}

func overSize(t Tier, maxSize int64) bool {
	return maxSize > 0 && t.TotalSize() > maxSize
}
