// Package duracache implements a thread-safe, two-tier LRU cache for
// typed, versioned records: a fast in-memory tier backed by a durable
// SQLite tier that is the cache's source of truth. See SPEC_FULL.md for
// the full design.
package duracache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"

	"duracache/internal/diskadapter"
	"duracache/internal/eviction"
	"duracache/internal/logging"
	"duracache/internal/memtier"
	"duracache/internal/store"
	"duracache/internal/ttlgate"
)

// Cache is a thread-safe, two-tier cache bound to one Record-satisfying
// type T. Construct one with New.
type Cache[T Record] struct {
	mu sync.RWMutex

	cfg            Config
	expectedSchema string
	decode         Decoder[T]

	store  *store.Store
	mem    *memtier.Tier
	stats  Stats
	logger *logging.Logger
	closed bool
}

// New constructs a Cache bound to T. sample is used only to read
// T.SchemaVersion() once; decode reconstructs a T from its canonical
// encoding on every disk hit not already resident in memory.
//
// New ensures StorePath's parent directory exists, opens the SQLite store
// in WAL mode, deletes any row whose schema_version does not match
// sample's, and applies the disk eviction policy so initial state
// satisfies the configured disk limits.
func New[T Record](sample T, decode Decoder[T], cfg Config) (*Cache[T], error) {
	cfg = cfg.applyDefaults()

	expected := sample.SchemaVersion()
	if expected == "" {
		return nil, ErrMissingSchemaVersion
	}

	st, err := store.Open(cfg.StorePath)
	if err != nil {
		return nil, fmt.Errorf("duracache: %w", err)
	}

	c := &Cache[T]{
		cfg:            cfg,
		expectedSchema: expected,
		decode:         decode,
		store:          st,
		mem:            memtier.New(),
		logger:         cfg.Logger,
	}

	removed, err := st.DeleteSchemaMismatches(expected)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("duracache: init cleanup: %w", err)
	}
	if removed > 0 {
		c.trace(logging.ComponentStore, logging.ActionSchemaMismatch,
			"removed rows with stale schema version at startup",
			map[string]interface{}{"count": removed, "expected": expected})
	}

	disk := &diskadapter.Adapter{Store: st}
	victims := eviction.Run(disk, cfg.MaxDiskItems, cfg.MaxDiskSizeBytes)
	if disk.Err != nil {
		st.Close()
		return nil, fmt.Errorf("duracache: init eviction: %w", disk.Err)
	}
	for _, v := range victims {
		c.trace(logging.ComponentEviction, logging.ActionEvict, "evicted disk entry at startup",
			map[string]interface{}{"key": v.Key})
	}

	if err := c.refreshDiskGaugeLocked(); err != nil {
		st.Close()
		return nil, fmt.Errorf("duracache: %w", err)
	}

	return c, nil
}

func nowSeconds() float64 {
	return float64(time.Now().UnixNano()) / float64(time.Second)
}

func resolveNow(override []float64) float64 {
	if len(override) > 0 {
		return override[0]
	}
	return nowSeconds()
}

func (c *Cache[T]) trace(component, action, message string, fields map[string]interface{}) {
	if c.logger == nil {
		return
	}
	c.logger.Trace(context.Background(), component, action, message, fields)
}

func (c *Cache[T]) refreshDiskGaugeLocked() error {
	n, err := c.store.Count()
	if err != nil {
		return fmt.Errorf("store error refreshing disk gauge: %w", err)
	}
	c.stats.CurrentDiskItems = n
	c.stats.CurrentMemoryItems = int64(c.mem.Count())
	return nil
}

func wrapStoreErr(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("duracache: store error: %w", err)
}

// Put validates key and value, writes through to disk, then mirrors the
// entry into memory when it fits under MaxItemSizeBytes, applying the
// eviction policy to whichever tiers were touched.
func (c *Cache[T]) Put(key string, value T, timestamp ...float64) error {
	if err := validateKey(key); err != nil {
		return err
	}

	now := resolveNow(timestamp)
	encoded, err := value.Encode()
	if err != nil {
		return fmt.Errorf("duracache: encode %q: %w", key, err)
	}
	size := int64(len(encoded))

	if c.cfg.MaxDiskSizeBytes > 0 && size > c.cfg.MaxDiskSizeBytes {
		return fmt.Errorf("%w: %q is %d bytes, limit is %d", ErrEvictionImpossible, key, size, c.cfg.MaxDiskSizeBytes)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}

	if err := c.putLocked(key, value, encoded, size, now); err != nil {
		return err
	}

	c.stats.TotalPuts++
	return c.refreshDiskGaugeLocked()
}

func (c *Cache[T]) putLocked(key string, value T, encoded []byte, size int64, now float64) error {
	row := store.Row{Key: key, Value: encoded, Timestamp: now, SchemaVersion: c.expectedSchema, Size: size}
	if err := c.store.Write(row); err != nil {
		return wrapStoreErr(err)
	}

	c.evictDiskLocked()

	if size <= c.cfg.MaxItemSizeBytes {
		c.mem.Put(key, value, now, size)
		c.evictMemoryLocked()
	} else {
		c.mem.Delete(key)
	}
	return nil
}

// evictDiskLocked runs the eviction policy on disk and cascades every
// victim into memory, recording ledger events. Caller must hold c.mu.
func (c *Cache[T]) evictDiskLocked() {
	disk := &diskadapter.Adapter{Store: c.store}
	victims := eviction.Run(disk, c.cfg.MaxDiskItems, c.cfg.MaxDiskSizeBytes)
	for _, v := range victims {
		c.stats.DiskEvictions++
		c.trace(logging.ComponentEviction, logging.ActionEvict, "evicted disk entry",
			map[string]interface{}{"key": v.Key})
		if c.mem.Contains(v.Key) {
			c.mem.Delete(v.Key)
			c.stats.MemoryEvictions++
			c.trace(logging.ComponentEviction, logging.ActionCascade, "cascaded disk eviction into memory",
				map[string]interface{}{"key": v.Key})
		}
	}
}

// evictMemoryLocked runs the eviction policy on memory, recording ledger
// events. Caller must hold c.mu.
func (c *Cache[T]) evictMemoryLocked() {
	victims := eviction.Run(c.mem, c.cfg.MaxMemoryItems, c.cfg.MaxMemorySizeBytes)
	for _, v := range victims {
		c.stats.MemoryEvictions++
		c.trace(logging.ComponentEviction, logging.ActionEvict, "evicted memory entry",
			map[string]interface{}{"key": v.Key})
	}
}

// Get returns the record stored for key, promoting it from disk to memory
// on a disk hit and touching its timestamp on any hit. A miss, an expired
// entry, a schema mismatch, or a decode failure all return (zero, false,
// nil) after removing the offending entry from both tiers.
func (c *Cache[T]) Get(key string, timestamp ...float64) (T, bool, error) {
	var zero T
	if err := validateKey(key); err != nil {
		return zero, false, err
	}
	now := resolveNow(timestamp)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return zero, false, ErrClosed
	}

	return c.getLocked(key, now, true)
}

// getLocked implements the lookup protocol shared by Get and GetMany.
// When touch is false (used by Exists), timestamps are not updated and
// hit/miss/get counters are not incremented, but TTL/schema/decode
// cleanup still applies. Caller must hold c.mu.
func (c *Cache[T]) getLocked(key string, now float64, touch bool) (T, bool, error) {
	var zero T
	// Promotion, expiry and invalid-entry removal change tier occupancy.
	defer func() { _ = c.refreshDiskGaugeLocked() }()

	if raw, ts, size, ok := c.mem.Get(key); ok {
		if ttlgate.Expired(ts, now, c.cfg.MemoryTTLSeconds) {
			c.mem.Delete(key)
			c.trace(logging.ComponentMemory, logging.ActionExpire, "memory entry expired", map[string]interface{}{"key": key})
		} else {
			record, _ := raw.(T)
			if touch {
				c.mem.Put(key, record, now, size)
				if err := c.store.UpdateTimestamp(key, now); err != nil {
					return zero, false, wrapStoreErr(err)
				}
				c.stats.MemoryHits++
				c.stats.TotalGets++
			}
			return record, true, nil
		}
	}

	row, ok, err := c.store.GetByKey(key)
	if err != nil {
		return zero, false, wrapStoreErr(err)
	}
	if !ok {
		if touch {
			c.stats.Misses++
			c.stats.TotalGets++
		}
		return zero, false, nil
	}

	if row.SchemaVersion != c.expectedSchema {
		c.removeInvalidLocked(key)
		c.trace(logging.ComponentStore, logging.ActionSchemaMismatch, "schema mismatch on read",
			map[string]interface{}{"key": key, "stored": row.SchemaVersion, "expected": c.expectedSchema})
		if touch {
			c.stats.Misses++
			c.stats.TotalGets++
		}
		return zero, false, nil
	}

	if ttlgate.Expired(row.Timestamp, now, c.cfg.DiskTTLSeconds) {
		c.removeInvalidLocked(key)
		c.trace(logging.ComponentStore, logging.ActionExpire, "disk entry expired", map[string]interface{}{"key": key})
		if touch {
			c.stats.Misses++
			c.stats.TotalGets++
		}
		return zero, false, nil
	}

	record, derr := c.decode(row.Value)
	if derr != nil {
		c.removeInvalidLocked(key)
		c.trace(logging.ComponentStore, logging.ActionDecodeFailure, "failed to decode stored value",
			map[string]interface{}{"key": key, "error": derr.Error()})
		if touch {
			c.stats.Misses++
			c.stats.TotalGets++
		}
		return zero, false, nil
	}

	if !touch {
		return record, true, nil
	}

	if err := c.store.UpdateTimestamp(key, now); err != nil {
		return zero, false, wrapStoreErr(err)
	}
	if row.Size <= c.cfg.MaxItemSizeBytes {
		c.mem.Put(key, record, now, row.Size)
		c.trace(logging.ComponentMemory, logging.ActionPromote, "promoted disk entry into memory",
			map[string]interface{}{"key": key})
		c.evictMemoryLocked()
	}
	c.stats.DiskHits++
	c.stats.TotalGets++
	return record, true, nil
}

// removeInvalidLocked deletes key from both tiers following a schema
// mismatch, expiry, or decode failure discovered on disk. Caller must
// hold c.mu.
func (c *Cache[T]) removeInvalidLocked(key string) {
	c.mem.Delete(key)
	if err := c.store.Delete(key); err != nil {
		c.trace(logging.ComponentStore, logging.ActionCleanup, "failed to delete invalid entry",
			map[string]interface{}{"key": key, "error": err.Error()})
	}
}

// Delete removes key from both tiers. A missing key is a no-op that
// still counts as one delete operation.
func (c *Cache[T]) Delete(key string) error {
	if err := validateKey(key); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}

	c.mem.Delete(key)
	if err := c.store.Delete(key); err != nil {
		return wrapStoreErr(err)
	}
	c.stats.TotalDeletes++
	return c.refreshDiskGaugeLocked()
}

// Exists reports whether key is present and valid, applying the same
// TTL/schema/decode cleanup as Get, but never modifying an entry's
// timestamp or any monotonic counter.
func (c *Cache[T]) Exists(key string, timestamp ...float64) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}
	now := resolveNow(timestamp)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false, ErrClosed
	}

	_, found, err := c.getLocked(key, now, false)
	return found, err
}

// Clear removes every entry from both tiers. Monotonic counters are
// preserved; the gauges are reset to zero.
func (c *Cache[T]) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}

	if err := c.store.DeleteAll(); err != nil {
		return wrapStoreErr(err)
	}
	c.mem.Clear()
	c.stats.CurrentDiskItems = 0
	c.stats.CurrentMemoryItems = 0
	return nil
}

// PutMany validates every key and value before taking any lock, then
// writes all entries to disk inside a single transaction. On any disk
// error the whole batch is rolled back and memory is left untouched.
// After commit, each eligible entry is inserted into memory and the
// eviction policy is applied to each tier exactly once.
func (c *Cache[T]) PutMany(items map[string]T, timestamp ...float64) error {
	var verr *multierror.Error
	type prepared struct {
		key     string
		value   T
		encoded []byte
		size    int64
	}
	preparedItems := make([]prepared, 0, len(items))

	for key, value := range items {
		if err := validateKey(key); err != nil {
			verr = multierror.Append(verr, err)
			continue
		}
		encoded, err := value.Encode()
		if err != nil {
			verr = multierror.Append(verr, fmt.Errorf("duracache: encode %q: %w", key, err))
			continue
		}
		size := int64(len(encoded))
		if c.cfg.MaxDiskSizeBytes > 0 && size > c.cfg.MaxDiskSizeBytes {
			verr = multierror.Append(verr, fmt.Errorf("%w: %q is %d bytes, limit is %d", ErrEvictionImpossible, key, size, c.cfg.MaxDiskSizeBytes))
			continue
		}
		preparedItems = append(preparedItems, prepared{key, value, encoded, size})
	}
	if verr.ErrorOrNil() != nil {
		return verr
	}

	now := resolveNow(timestamp)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}

	rows := make([]store.Row, len(preparedItems))
	for i, p := range preparedItems {
		rows[i] = store.Row{Key: p.key, Value: p.encoded, Timestamp: now, SchemaVersion: c.expectedSchema, Size: p.size}
	}
	if err := c.store.WriteBatch(rows); err != nil {
		return wrapStoreErr(err)
	}

	for _, p := range preparedItems {
		if p.size <= c.cfg.MaxItemSizeBytes {
			c.mem.Put(p.key, p.value, now, p.size)
		} else {
			c.mem.Delete(p.key)
		}
	}

	c.evictDiskLocked()
	c.evictMemoryLocked()

	c.stats.TotalPuts += uint64(len(preparedItems))
	return c.refreshDiskGaugeLocked()
}

// GetMany looks up every key independently under the Get protocol,
// returning a map containing only the keys that were found.
func (c *Cache[T]) GetMany(keys []string, timestamp ...float64) (map[string]T, error) {
	for _, key := range keys {
		if err := validateKey(key); err != nil {
			return nil, err
		}
	}
	now := resolveNow(timestamp)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrClosed
	}

	out := make(map[string]T)
	for _, key := range keys {
		record, found, err := c.getLocked(key, now, true)
		if err != nil {
			return nil, err
		}
		if found {
			out[key] = record
		}
	}
	return out, nil
}

// DeleteMany validates every key, then removes them from both tiers
// inside a single disk transaction. Keys with no matching row are
// silently skipped.
func (c *Cache[T]) DeleteMany(keys []string) error {
	var verr *multierror.Error
	for _, key := range keys {
		if err := validateKey(key); err != nil {
			verr = multierror.Append(verr, err)
		}
	}
	if verr.ErrorOrNil() != nil {
		return verr
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}

	if err := c.store.DeleteMany(keys); err != nil {
		return wrapStoreErr(err)
	}
	for _, key := range keys {
		c.mem.Delete(key)
	}
	c.stats.TotalDeletes += uint64(len(keys))
	return c.refreshDiskGaugeLocked()
}

// GetTotalSize returns the disk tier's total size in bytes, the superset
// total across both tiers.
func (c *Cache[T]) GetTotalSize() (int64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return 0, ErrClosed
	}
	n, err := c.store.SumSize()
	if err != nil {
		return 0, wrapStoreErr(err)
	}
	return n, nil
}

// GetCount returns the disk tier's row count, the superset total across
// both tiers.
func (c *Cache[T]) GetCount() (int64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return 0, ErrClosed
	}
	n, err := c.store.Count()
	if err != nil {
		return 0, wrapStoreErr(err)
	}
	return n, nil
}

// GetStats returns a consistent snapshot of the statistics ledger.
func (c *Cache[T]) GetStats() (Stats, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return Stats{}, ErrClosed
	}
	return c.stats, nil
}

// Close flushes outstanding transactions, closes the persistent store,
// and drops memory state. Any subsequent public call returns ErrClosed.
func (c *Cache[T]) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	c.closed = true
	c.mem.Clear()
	return wrapStoreErr(c.store.Close())
}
