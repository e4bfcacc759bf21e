package engine

// directCache is C6: a write-through, direct-mapped single-slot cache keyed
// by hash(key) mod len(slots). Collisions silently evict the prior tenant;
// there is no eviction policy beyond that overwrite.
type directCache struct {
	keys   [][]byte
	values [][]byte
}

func newDirectCache(size int) *directCache {
	return &directCache{
		keys:   make([][]byte, size),
		values: make([][]byte, size),
	}
}

func (c *directCache) slot(key []byte) int {
	return int(hashSeeded(seedCache, key) % uint32(len(c.keys)))
}

func (c *directCache) has(key []byte) bool {
	i := c.slot(key)
	return c.keys[i] != nil && bytesEqual(c.keys[i], key)
}

// get returns the cached value and true on a key match, else (nil, false).
func (c *directCache) get(key []byte) ([]byte, bool) {
	i := c.slot(key)
	if c.keys[i] != nil && bytesEqual(c.keys[i], key) {
		return c.values[i], true
	}
	return nil, false
}

// set unconditionally overwrites the slot key hashes to.
func (c *directCache) set(key, value []byte) {
	i := c.slot(key)
	c.keys[i] = append([]byte(nil), key...)
	c.values[i] = append([]byte(nil), value...)
}

// remove clears the slot only if it currently holds key.
func (c *directCache) remove(key []byte) {
	i := c.slot(key)
	if c.keys[i] != nil && bytesEqual(c.keys[i], key) {
		c.keys[i] = nil
		c.values[i] = nil
	}
}

func (c *directCache) clear() {
	for i := range c.keys {
		c.keys[i] = nil
		c.values[i] = nil
	}
}
