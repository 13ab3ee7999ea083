package duracache

import (
	"encoding/json"
	"path/filepath"
	"testing"
)

// widgetV1 is the test record type used throughout this package's tests.
type widgetV1 struct {
	Name string `json:"name"`
}

func (w widgetV1) SchemaVersion() string { return "1.0.0" }

func (w widgetV1) Encode() ([]byte, error) {
	return json.Marshal(w)
}

func decodeWidgetV1(data []byte) (widgetV1, error) {
	var w widgetV1
	err := json.Unmarshal(data, &w)
	return w, err
}

func newTestCache(t *testing.T, cfg Config) *Cache[widgetV1] {
	t.Helper()
	if cfg.StorePath == "" {
		cfg.StorePath = filepath.Join(t.TempDir(), "cache.db")
	}
	c, err := New[widgetV1](widgetV1{}, decodeWidgetV1, cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func baseConfig() Config {
	return Config{
		MaxMemoryItems:     2,
		MaxDiskItems:       4,
		MaxMemorySizeBytes: 1 << 20,
		MaxDiskSizeBytes:   1 << 20,
		MemoryTTLSeconds:   10,
		DiskTTLSeconds:     100,
		MaxItemSizeBytes:   1024,
	}
}

func TestPutThenGet(t *testing.T) {
	c := newTestCache(t, baseConfig())

	if err := c.Put("a", widgetV1{Name: "R1"}, 1); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	got, ok, err := c.Get("a", 2)
	if err != nil || !ok {
		t.Fatalf("Get() = %v, %v, %v", got, ok, err)
	}
	if got.Name != "R1" {
		t.Fatalf("got %+v, want Name=R1", got)
	}

	stats, err := c.GetStats()
	if err != nil {
		t.Fatalf("GetStats() error = %v", err)
	}
	if stats.MemoryHits != 1 || stats.TotalPuts != 1 || stats.TotalGets != 1 ||
		stats.CurrentMemoryItems != 1 || stats.CurrentDiskItems != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestPromotionFromDisk(t *testing.T) {
	c := newTestCache(t, baseConfig())

	c.Put("a", widgetV1{Name: "R1"}, 1)
	c.Put("b", widgetV1{Name: "R2"}, 2)
	c.Put("c", widgetV1{Name: "R3"}, 3) // memory (max 2) evicts "a" on this put

	before, _ := c.GetStats()

	got, ok, err := c.Get("a", 4)
	if err != nil || !ok || got.Name != "R1" {
		t.Fatalf("Get(a) = %+v, %v, %v", got, ok, err)
	}

	after, _ := c.GetStats()
	if after.DiskHits != before.DiskHits+1 {
		t.Fatalf("expected 1 disk hit, before=%+v after=%+v", before, after)
	}
	if after.MemoryEvictions != before.MemoryEvictions+1 {
		t.Fatalf("expected promotion to cascade into one more memory eviction, before=%+v after=%+v", before, after)
	}
}

func TestCascadingEviction(t *testing.T) {
	cfg := baseConfig()
	cfg.MaxDiskItems = 2
	c := newTestCache(t, cfg)

	c.Put("a", widgetV1{Name: "R1"}, 1)
	c.Put("b", widgetV1{Name: "R2"}, 2)
	c.Put("c", widgetV1{Name: "R3"}, 3)

	if ok, _ := c.Exists("a", 3); ok {
		t.Fatal("expected \"a\" to be evicted from disk")
	}

	diskCount, _ := c.GetCount()
	if diskCount != 2 {
		t.Fatalf("expected 2 disk entries, got %d", diskCount)
	}
}

func TestTieBreakOnEqualTimestamp(t *testing.T) {
	cfg := baseConfig()
	cfg.MaxDiskItems = 2
	cfg.MaxMemoryItems = 2
	c := newTestCache(t, cfg)

	c.Put("b", widgetV1{Name: "RB"}, 5)
	c.Put("a", widgetV1{Name: "RA"}, 5)
	c.Put("z", widgetV1{Name: "RZ"}, 5) // forces one eviction among equal timestamps

	if aOK, _ := c.Exists("a", 5); aOK {
		t.Fatal("expected \"a\" to be evicted before \"b\" on a timestamp tie")
	}
	if bOK, _ := c.Exists("b", 5); !bOK {
		t.Fatal("expected \"b\" to survive the tie-break")
	}
}

func TestTTLExpiryOnGet(t *testing.T) {
	c := newTestCache(t, baseConfig())

	c.Put("a", widgetV1{Name: "R1"}, 0)
	got, ok, err := c.Get("a", 11) // memory_ttl=10 expired, disk_ttl=100 still valid
	if err != nil || !ok || got.Name != "R1" {
		t.Fatalf("Get() = %+v, %v, %v", got, ok, err)
	}

	stats, _ := c.GetStats()
	if stats.DiskHits != 1 {
		t.Fatalf("expected disk hit after memory TTL expiry, got %+v", stats)
	}
}

func TestSchemaMismatch_RemovedAtStartup(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cache.db")

	// Pre-populate the store with a stale schema version via a cache
	// instance bound to a different schema.
	oldCfg := baseConfig()
	oldCfg.StorePath = path
	old, err := New[oldWidget](oldWidget{}, decodeOldWidget, oldCfg)
	if err != nil {
		t.Fatalf("New() (old schema) error = %v", err)
	}
	old.Put("stale", oldWidget{Name: "legacy"}, 1)
	old.Close()

	newCfg := baseConfig()
	newCfg.StorePath = path
	c := newTestCache(t, newCfg)

	got, ok, err := c.Get("stale", 2)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if ok {
		t.Fatalf("expected stale-schema row to be gone, got %+v", got)
	}

	stats, _ := c.GetStats()
	if stats.Misses != 1 {
		t.Fatalf("expected 1 miss, got %+v", stats)
	}
}

// oldWidget stands in for a prior schema version of widgetV1.
type oldWidget struct{ Name string }

func (w oldWidget) SchemaVersion() string  { return "0.9.0" }
func (w oldWidget) Encode() ([]byte, error) { return json.Marshal(w) }
func decodeOldWidget(data []byte) (oldWidget, error) {
	var w oldWidget
	err := json.Unmarshal(data, &w)
	return w, err
}

func TestDeleteIsIdempotent(t *testing.T) {
	c := newTestCache(t, baseConfig())
	c.Put("a", widgetV1{Name: "R1"}, 1)

	if err := c.Delete("a"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := c.Delete("a"); err != nil {
		t.Fatalf("second Delete() error = %v", err)
	}

	if ok, _ := c.Exists("a", 1); ok {
		t.Fatal("expected \"a\" to be gone")
	}
}

func TestClearIsIdempotent(t *testing.T) {
	c := newTestCache(t, baseConfig())
	c.Put("a", widgetV1{Name: "R1"}, 1)

	if err := c.Clear(); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	if err := c.Clear(); err != nil {
		t.Fatalf("second Clear() error = %v", err)
	}

	count, _ := c.GetCount()
	if count != 0 {
		t.Fatalf("expected empty cache after Clear, got count %d", count)
	}
}

func TestExistsDoesNotMutateCountersOrTimestamp(t *testing.T) {
	c := newTestCache(t, baseConfig())
	c.Put("a", widgetV1{Name: "R1"}, 1)

	before, _ := c.GetStats()
	ok, err := c.Exists("a", 2)
	if err != nil || !ok {
		t.Fatalf("Exists() = %v, %v", ok, err)
	}
	after, _ := c.GetStats()

	if before != after {
		t.Fatalf("Exists() mutated stats: before=%+v after=%+v", before, after)
	}
}

func TestOversizedItemRejectedBeforeWrite(t *testing.T) {
	cfg := baseConfig()
	cfg.MaxDiskSizeBytes = 8
	c := newTestCache(t, cfg)

	err := c.Put("huge", widgetV1{Name: "this value is far too long to fit"}, 1)
	if err == nil {
		t.Fatal("expected an error for an oversized item")
	}

	count, _ := c.GetCount()
	if count != 0 {
		t.Fatalf("expected no row written for a rejected oversized item, got count %d", count)
	}
}

func TestPutMany_ValidatesBeforeAnyWrite(t *testing.T) {
	c := newTestCache(t, baseConfig())

	items := map[string]widgetV1{
		"good": {Name: "R1"},
		"":     {Name: "bad key"},
	}
	err := c.PutMany(items, 1)
	if err == nil {
		t.Fatal("expected a validation error")
	}

	count, _ := c.GetCount()
	if count != 0 {
		t.Fatalf("expected no state change on validation failure, got count %d", count)
	}
}

func TestPutMany_GetMany_DeleteMany(t *testing.T) {
	c := newTestCache(t, baseConfig())

	items := map[string]widgetV1{
		"a": {Name: "RA"},
		"b": {Name: "RB"},
	}
	if err := c.PutMany(items, 1); err != nil {
		t.Fatalf("PutMany() error = %v", err)
	}

	got, err := c.GetMany([]string{"a", "b", "missing"}, 2)
	if err != nil {
		t.Fatalf("GetMany() error = %v", err)
	}
	if len(got) != 2 || got["a"].Name != "RA" || got["b"].Name != "RB" {
		t.Fatalf("unexpected GetMany result: %+v", got)
	}

	if err := c.DeleteMany([]string{"a", "missing"}); err != nil {
		t.Fatalf("DeleteMany() error = %v", err)
	}
	if ok, _ := c.Exists("a", 2); ok {
		t.Fatal("expected \"a\" deleted")
	}
	if ok, _ := c.Exists("b", 2); !ok {
		t.Fatal("expected \"b\" to remain")
	}
}

func TestClosedCacheRejectsOperations(t *testing.T) {
	c := newTestCache(t, baseConfig())
	if err := c.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if err := c.Put("a", widgetV1{Name: "R1"}); err != ErrClosed {
		t.Fatalf("Put() after Close() = %v, want ErrClosed", err)
	}
	if _, _, err := c.Get("a"); err != ErrClosed {
		t.Fatalf("Get() after Close() = %v, want ErrClosed", err)
	}
	if err := c.Close(); err != ErrClosed {
		t.Fatalf("second Close() = %v, want ErrClosed", err)
	}
}

func TestKeyValidation(t *testing.T) {
	c := newTestCache(t, baseConfig())

	if err := c.Put("", widgetV1{Name: "R1"}); err == nil {
		t.Fatal("expected error for empty key")
	}

	tooLong := make([]byte, 257)
	for i := range tooLong {
		tooLong[i] = 'x'
	}
	if err := c.Put(string(tooLong), widgetV1{Name: "R1"}); err == nil {
		t.Fatal("expected error for key over 256 code units")
	}
}

func TestMissingSchemaVersionRejectedAtConstruction(t *testing.T) {
	cfg := baseConfig()
	cfg.StorePath = filepath.Join(t.TempDir(), "cache.db")

	_, err := New[unversioned](unversioned{}, decodeUnversioned, cfg)
	if err != ErrMissingSchemaVersion {
		t.Fatalf("New() with blank schema version = %v, want ErrMissingSchemaVersion", err)
	}
}

// unversioned is a Record whose SchemaVersion is left blank, used to
// exercise New's construction-time validation.
type unversioned struct{}

func (unversioned) SchemaVersion() string    { return "" }
func (unversioned) Encode() ([]byte, error)  { return []byte("{}"), nil }
func decodeUnversioned(data []byte) (unversioned, error) {
	return unversioned{}, nil
}
