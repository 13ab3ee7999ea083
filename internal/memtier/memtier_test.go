package memtier

import "testing"

func TestTier_PutGet(t *testing.T) {
	tier := New()
	tier.Put("a", "value-a", 1, 10)

	record, ts, size, ok := tier.Get("a")
	if !ok {
		t.Fatal("expected hit for key \"a\"")
	}
	if record != "value-a" || ts != 1 || size != 10 {
		t.Fatalf("unexpected entry: record=%v ts=%v size=%v", record, ts, size)
	}
}

func TestTier_PutReplacesAndReindexes(t *testing.T) {
	tier := New()
	tier.Put("a", "v1", 1, 10)
	tier.Put("a", "v2", 5, 20)

	if tier.Count() != 1 {
		t.Fatalf("expected 1 entry after replace, got %d", tier.Count())
	}
	if tier.TotalSize() != 20 {
		t.Fatalf("expected total size 20 after replace, got %d", tier.TotalSize())
	}

	key, ts, size, ok := tier.Oldest()
	if !ok || key != "a" || ts != 5 || size != 20 {
		t.Fatalf("expected reindexed oldest (a,5,20), got (%v,%v,%v,%v)", key, ts, size, ok)
	}
}

func TestTier_DeleteMissingIsNoop(t *testing.T) {
	tier := New()
	tier.Delete("missing")
	if tier.Count() != 0 {
		t.Fatalf("expected empty tier, got count %d", tier.Count())
	}
}

func TestTier_OldestOrderingWithTieBreak(t *testing.T) {
	tier := New()
	tier.Put("b", "vb", 5, 1)
	tier.Put("a", "va", 5, 1)
	tier.Put("c", "vc", 1, 1)

	key, ts, _, ok := tier.Oldest()
	if !ok || key != "c" || ts != 1 {
		t.Fatalf("expected oldest \"c\" at ts 1, got key=%v ts=%v", key, ts)
	}

	tier.Delete("c")
	key, ts, _, ok = tier.Oldest()
	if !ok || key != "a" || ts != 5 {
		t.Fatalf("expected tie-break \"a\" before \"b\", got key=%v ts=%v", key, ts)
	}
}

func TestTier_IterOldestRespectsLimit(t *testing.T) {
	tier := New()
	tier.Put("a", "va", 1, 1)
	tier.Put("b", "vb", 2, 1)
	tier.Put("c", "vc", 3, 1)

	items := tier.IterOldest(2)
	if len(items) != 2 || items[0].Key != "a" || items[1].Key != "b" {
		t.Fatalf("unexpected IterOldest result: %+v", items)
	}
}

func TestTier_Clear(t *testing.T) {
	tier := New()
	tier.Put("a", "va", 1, 10)
	tier.Put("b", "vb", 2, 10)

	tier.Clear()

	if tier.Count() != 0 || tier.TotalSize() != 0 {
		t.Fatalf("expected empty tier after Clear, got count=%d size=%d", tier.Count(), tier.TotalSize())
	}
	if _, _, _, ok := tier.Oldest(); ok {
		t.Fatal("expected no Oldest entry after Clear")
	}
}
