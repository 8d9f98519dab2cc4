package scan

import "testing"

func TestMemIndexIterateLiveOrderedByDigest(t *testing.T) {
	idx := NewMemIndex(1)
	var digests []Digest
	for _, key := range []string{"k3", "k1", "k2"} {
		d := seedRecord(idx, "", key, []Bin{{Name: "v", Value: []byte(key)}})
		digests = append(digests, d)
	}

	rsv := idx.Reservation(0)
	var seen []Digest
	rsv.IterateLive(nil, func(ref RecordRef) bool {
		seen = append(seen, ref.Digest)
		return true
	})

	if len(seen) != 3 {
		t.Fatalf("len(seen) = %d, want 3", len(seen))
	}
	for i := 1; i < len(seen); i++ {
		if !seen[i-1].Less(seen[i]) {
			t.Fatalf("records not in ascending digest order at index %d", i)
		}
	}
	_ = digests
}

func TestMemIndexIterateLiveSkipsDoomed(t *testing.T) {
	idx := NewMemIndex(1)
	idx.Put("", []byte("live"), InvalidSetID, nil, true, false, 1, 0)
	idx.Put("", []byte("doomed"), InvalidSetID, nil, true, true, 1, 0)

	count := 0
	idx.Reservation(0).IterateLive(nil, func(ref RecordRef) bool {
		if ref.Doomed {
			t.Fatal("IterateLive must not yield doomed records")
		}
		count++
		return true
	})
	if count != 1 {
		t.Fatalf("count = %d, want 1", count)
	}
}

func TestMemIndexIterateLiveSkipsNonLive(t *testing.T) {
	idx := NewMemIndex(1)
	idx.Put("", []byte("live"), InvalidSetID, nil, true, false, 1, 0)
	idx.Put("", []byte("tombstone"), InvalidSetID, nil, false, false, 1, 0)

	count := 0
	idx.Reservation(0).IterateLive(nil, func(ref RecordRef) bool {
		count++
		return true
	})
	if count != 1 {
		t.Fatalf("count = %d, want 1 (tombstone excluded)", count)
	}
}

func TestMemIndexIterateAllIncludesTombstones(t *testing.T) {
	idx := NewMemIndex(1)
	idx.Put("", []byte("live"), InvalidSetID, nil, true, false, 1, 0)
	idx.Put("", []byte("tombstone"), InvalidSetID, nil, false, false, 1, 0)

	count := 0
	idx.Reservation(0).IterateAll(nil, 0, func(ref RecordRef) bool {
		count++
		return true
	})
	if count != 2 {
		t.Fatalf("count = %d, want 2 (IterateAll sees tombstones)", count)
	}
}

func TestMemIndexIterateAllRespectsLimit(t *testing.T) {
	idx := NewMemIndex(1)
	for i := 0; i < 10; i++ {
		idx.Put("", []byte{byte(i)}, InvalidSetID, nil, true, false, 1, 0)
	}
	count := 0
	idx.Reservation(0).IterateAll(nil, 3, func(ref RecordRef) bool {
		count++
		return true
	})
	if count != 3 {
		t.Fatalf("count = %d, want 3", count)
	}
}

func TestMemIndexIterateResumesFromDigest(t *testing.T) {
	idx := NewMemIndex(1)
	var digests []Digest
	for i := 0; i < 5; i++ {
		d := idx.Put("", []byte{byte(i)}, InvalidSetID, nil, true, false, 1, 0)
		digests = append(digests, d)
	}
	rsv := idx.Reservation(0)

	var all []Digest
	rsv.IterateLive(nil, func(ref RecordRef) bool {
		all = append(all, ref.Digest)
		return true
	})
	resumeFrom := all[2]

	var resumed []Digest
	rsv.IterateLive(&resumeFrom, func(ref RecordRef) bool {
		resumed = append(resumed, ref.Digest)
		return true
	})

	if len(resumed) != len(all)-2 {
		t.Fatalf("len(resumed) = %d, want %d", len(resumed), len(all)-2)
	}
	if resumed[0] != resumeFrom {
		t.Fatalf("resumed[0] = %v, want %v", resumed[0], resumeFrom)
	}
}

func TestMemIndexIterateStopsWhenVisitorReturnsFalse(t *testing.T) {
	idx := NewMemIndex(1)
	for i := 0; i < 5; i++ {
		idx.Put("", []byte{byte(i)}, InvalidSetID, nil, true, false, 1, 0)
	}
	count := 0
	idx.Reservation(0).IterateLive(nil, func(ref RecordRef) bool {
		count++
		return count < 2
	})
	if count != 2 {
		t.Fatalf("count = %d, want 2 (iteration should stop as soon as visit returns false)", count)
	}
}

func TestMemIndexMarkTreeNil(t *testing.T) {
	idx := NewMemIndex(2)
	idx.MarkTreeNil(1)
	if idx.Reservation(1).HasTree() {
		t.Fatal("HasTree() should be false after MarkTreeNil")
	}
	if !idx.Reservation(0).HasTree() {
		t.Fatal("HasTree() should remain true for an untouched partition")
	}
}

func TestMemIndexOpenUnknownDigest(t *testing.T) {
	idx := NewMemIndex(1)
	_, ok := idx.Open(Digest{0xff})
	if ok {
		t.Fatal("Open() should report false for a digest never Put")
	}
}

func TestMemIndexOpenReturnsStoredBins(t *testing.T) {
	idx := NewMemIndex(1)
	bins := []Bin{{Name: "a", Value: []byte("1")}}
	d := seedRecord(idx, "", "key", bins)

	rec, ok := idx.Open(d)
	if !ok {
		t.Fatal("Open() should find a previously Put digest")
	}
	defer rec.Close()
	if len(rec.Bins()) != 1 || rec.Bins()[0].Name != "a" {
		t.Fatalf("Bins() = %v, want %v", rec.Bins(), bins)
	}
}
