package engine

import (
	"bytes"
	"testing"
)

func TestDirectCacheSetGet(t *testing.T) {
	c := newDirectCache(4)

	c.set([]byte("k"), []byte("v"))

	got, ok := c.get([]byte("k"))
	if !ok || !bytes.Equal(got, []byte("v")) {
		t.Fatalf("get = (%q, %v), want (v, true)", got, ok)
	}
}

func TestDirectCacheCollisionEvictsOlderTenant(t *testing.T) {
	c := newDirectCache(1) // every key maps to the single slot

	c.set([]byte("first"), []byte("1"))
	c.set([]byte("second"), []byte("2"))

	if c.has([]byte("first")) {
		t.Fatal("expected the first tenant to have been evicted by the collision")
	}
	got, ok := c.get([]byte("second"))
	if !ok || !bytes.Equal(got, []byte("2")) {
		t.Fatalf("get(second) = (%q, %v), want (2, true)", got, ok)
	}
}

func TestDirectCacheRemoveOnlyClearsMatchingKey(t *testing.T) {
	c := newDirectCache(1)

	c.set([]byte("first"), []byte("1"))
	c.remove([]byte("not-first")) // collides into the same slot but isn't the tenant

	if !c.has([]byte("first")) {
		t.Fatal("remove of a non-resident key must not evict the current tenant")
	}
}

func TestDirectCacheClear(t *testing.T) {
	c := newDirectCache(4)
	c.set([]byte("k"), []byte("v"))

	c.clear()

	if c.has([]byte("k")) {
		t.Fatal("expected clear to empty every slot")
	}
}
