package engine

import "testing"

// fakeHeap is a minimal keyChecker backer for index tests that don't need a
// real record heap: it just remembers which ref maps to which key.
type fakeHeap map[int][]byte

func (f fakeHeap) check(ref int, key []byte) bool {
	stored, ok := f[ref]
	return ok && bytesEqual(stored, key)
}

func newTestIndex(htableBytes, nodesBytes, bitmapBytes, bloomBytes int) (*chainIndex, *slotBitmap, *bloomFilter) {
	bm := newSlotBitmap(make([]byte, bitmapBytes))
	bf := newBloomFilter(make([]byte, bloomBytes))
	x := newChainIndex(make([]byte, htableBytes), make([]byte, nodesBytes), bm, bf)
	x.clear()
	return x, bm, bf
}

func TestChainIndexSetGetDelete(t *testing.T) {
	x, _, _ := newTestIndex(16, 12*8, 2, 8)
	heap := fakeHeap{100: []byte("k1")}

	if !x.set(100, []byte("k1"), heap.check) {
		t.Fatal("expected set to succeed")
	}

	ref, ok := x.get([]byte("k1"), heap.check)
	if !ok || ref != 100 {
		t.Fatalf("get = (%d, %v), want (100, true)", ref, ok)
	}

	ref, ok = x.delete([]byte("k1"), heap.check)
	if !ok || ref != 100 {
		t.Fatalf("delete = (%d, %v), want (100, true)", ref, ok)
	}

	if _, ok := x.get([]byte("k1"), heap.check); ok {
		t.Fatal("expected get to miss after delete")
	}
}

func TestChainIndexRejectsDuplicate(t *testing.T) {
	x, _, _ := newTestIndex(4, 12*8, 2, 8)
	heap := fakeHeap{1: []byte("dup")}

	if !x.set(1, []byte("dup"), heap.check) {
		t.Fatal("expected first set to succeed")
	}
	if x.set(2, []byte("dup"), heap.check) {
		t.Fatal("expected second set of the same key to be rejected")
	}
}

func TestChainIndexChainStaysDescendingByHash(t *testing.T) {
	// Force every key into bucket 0 by using a 1-bucket table; the index
	// must keep the chain strictly descending in hash regardless of
	// insertion order.
	x, _, _ := newTestIndex(4, 64*12, 16, 64)
	heap := fakeHeap{}

	keys := [][]byte{[]byte("apple"), []byte("banana"), []byte("cherry"), []byte("date"), []byte("egg")}
	for i, k := range keys {
		heap[i] = k
		if !x.set(i, k, heap.check) {
			t.Fatalf("set(%q) failed", k)
		}
	}

	slot := x.bucket(0 % x.htableLen)
	var prevHash uint32
	first := true
	for slot != EOC {
		h, _, next := x.readNode(slot)
		if !first && h >= prevHash {
			t.Fatalf("chain not strictly descending: %d >= %d", h, prevHash)
		}
		first = false
		prevHash = h
		slot = next
	}

	for i, k := range keys {
		ref, ok := x.get(k, heap.check)
		if !ok || ref != i {
			t.Fatalf("get(%q) = (%d, %v), want (%d, true)", k, ref, ok, i)
		}
	}
}

func TestChainIndexSetFullBitmapReturnsFalse(t *testing.T) {
	// 1 byte of bitmap = 8 slots of capacity.
	x, _, _ := newTestIndex(4, 16*12, 1, 16)
	heap := fakeHeap{}

	for i := 0; i < 8; i++ {
		k := []byte{byte(i), byte(i >> 8)}
		heap[i] = k
		if !x.set(i, k, heap.check) {
			t.Fatalf("set %d should have succeeded (bitmap not yet full)", i)
		}
	}

	k := []byte("one-too-many")
	if x.set(999, k, heap.check) {
		t.Fatal("expected set to fail once the slot bitmap is exhausted")
	}
}
