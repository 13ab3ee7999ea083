package duracache

// Stats is a snapshot of the Statistics Ledger: monotonically
// non-decreasing counters plus two gauges reflecting live tier occupancy.
// It is always returned as a value copy taken under the same lock as the
// most recent mutation, so a snapshot is internally consistent even though
// the live ledger keeps changing underneath it.
type Stats struct {
	MemoryHits      uint64
	DiskHits        uint64
	Misses          uint64
	MemoryEvictions uint64
	DiskEvictions   uint64
	TotalPuts       uint64
	TotalGets       uint64
	TotalDeletes    uint64

	CurrentMemoryItems int64
	CurrentDiskItems   int64
}
