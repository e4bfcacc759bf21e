package engine

// Store is C7: the façade composing the slot bitmap, bloom filter, chained
// hash index, record heap, and direct-mapped cache over one shared arena
// into has/get/set/delete.
//
// Set always reclaims any existing record for key before allocating a new
// one, making PUT and POST equivalent in core semantics — the
// duplicate-rejecting branch of chainIndex.set can then only fire on an
// internal inconsistency, never on ordinary overwrite traffic.
type Store struct {
	buf    []byte
	layout layout

	bitmap *slotBitmap
	bloom  *bloomFilter
	index  *chainIndex
	heap   *heap
	cache  *directCache
}

// Options configures arena sizing. Zero values fall back to the package's
// built-in defaults.
type Options struct {
	TotalMemorySize uint32
	IndexSize       uint32
	CacheSize       int
}

func (o Options) withDefaults() Options {
	if o.TotalMemorySize == 0 {
		o.TotalMemorySize = DefaultTotalMemorySize
	}
	if o.IndexSize == 0 {
		o.IndexSize = DefaultIndexSize
	}
	if o.CacheSize == 0 {
		o.CacheSize = DefaultCacheSize
	}
	return o
}

// New allocates a fresh arena and its component views.
func New(opts Options) *Store {
	opts = opts.withDefaults()
	if opts.IndexSize >= opts.TotalMemorySize {
		panic("engine: index size must be smaller than total memory size")
	}

	buf := make([]byte, opts.TotalMemorySize)
	l := newLayout(opts.TotalMemorySize, opts.IndexSize)

	s := &Store{
		buf:    buf,
		layout: l,
		bitmap: newSlotBitmap(l.bitmapSlice(buf)),
		bloom:  newBloomFilter(l.bloomSlice(buf)),
		heap:   newHeap(l.heapSlice(buf)),
		cache:  newDirectCache(opts.CacheSize),
	}
	s.index = newChainIndex(l.htableSlice(buf), l.nodesSlice(buf), s.bitmap, s.bloom)
	s.Clear()
	return s
}

// Clear resets every component to its empty state: zeroed bitmap and bloom
// bits, all buckets EOC, and a single FREE block spanning the heap.
func (s *Store) Clear() {
	s.index.clear()
	s.heap.clear()
	s.cache.clear()
}

func (s *Store) checker(ref int, key []byte) bool {
	return s.heap.keyEquals(ref, key)
}

// Has reports key's membership, consulting the cache before the index.
func (s *Store) Has(key []byte) (bool, error) {
	if len(key) == 0 {
		return false, ErrEmptyKey
	}
	if s.cache.has(key) {
		return true, nil
	}
	return s.index.has(key, s.checker), nil
}

// Get returns key's value, or ErrNotFound if absent.
func (s *Store) Get(key []byte) ([]byte, error) {
	if len(key) == 0 {
		return nil, ErrEmptyKey
	}
	if v, ok := s.cache.get(key); ok {
		return v, nil
	}
	ref, ok := s.index.get(key, s.checker)
	if !ok {
		return nil, ErrNotFound
	}
	return s.heap.getValue(ref), nil
}

// Set stores value under key, replacing any prior value. Overwriting is
// always a delete-then-insert at the core: there is no duplicate-hash leak
// path reachable through Set.
func (s *Store) Set(key, value []byte) error {
	if len(key) == 0 {
		return ErrEmptyKey
	}

	if ref, ok := s.index.delete(key, s.checker); ok {
		s.heap.delete(ref)
	}

	s.cache.set(key, value)

	offset, ok := s.heap.save(key, value)
	if !ok {
		// Cache retains the entry here: the write-through invariant is
		// relaxed on this failure path rather than rolled back, since no
		// heap/index state changed.
		return ErrArenaFull
	}

	if !s.index.set(offset, key, s.checker) {
		s.heap.delete(offset)
		// index.set also fails when the slot bitmap has no free slot left.
		if s.bitmap.popcount() == s.bitmap.capacity() {
			return ErrArenaFull
		}
		// A duplicate is unreachable given the delete-then-insert sequence
		// above; treat it as arena corruption rather than silently leaking
		// the block.
		return ErrCorruptArena
	}

	return nil
}

// Delete removes key, reporting false if it was absent.
func (s *Store) Delete(key []byte) (bool, error) {
	if len(key) == 0 {
		return false, ErrEmptyKey
	}
	s.cache.remove(key)

	ref, ok := s.index.delete(key, s.checker)
	if !ok {
		return false, nil
	}
	return s.heap.delete(ref), nil
}

// Bytes exposes the whole backing arena for snapshotting (C9). Callers must
// not retain or mutate it outside of a snapshot save while the Store is in
// use.
func (s *Store) Bytes() []byte {
	return s.buf
}

// LoadBytes copies data into the arena, truncated or zero-padded to its
// exact length, and trusts the bytes' internal consistency: no validation
// is performed beyond the length adjustment. After a load, bloom-negatives
// are no longer trusted and the index always walks the bucket chain.
func (s *Store) LoadBytes(data []byte) {
	n := copy(s.buf, data)
	for i := n; i < len(s.buf); i++ {
		s.buf[i] = 0
	}
	s.cache.clear()
	// The loaded bloom bits may already have been cleared by removals in
	// the arena they came from.
	s.bloom.hadRemove = true
}

// Stats reports point-in-time diagnostics, used by the inspect subcommand
// and the Prometheus gauges in internal/metrics.
type Stats struct {
	TotalMemorySize uint32
	IndexSize       uint32
	SlotCapacity    uint32
	SlotsBusy       int
	BloomBits       uint32
	BloomBitsSet    int
	HeapBytes       int
	HeapFreeBytes   int
	HeapLargestFree int
	BucketCount     uint32
}

// Stat walks the live structures to compute Stats. It is read-only but not
// free — it walks the full heap and bitmap, so callers should not call it
// on every request.
func (s *Store) Stat() Stats {
	st := Stats{
		TotalMemorySize: uint32(len(s.buf)),
		IndexSize:       s.layout.indexSize,
		SlotCapacity:    s.layout.slotCapacity(),
		SlotsBusy:       s.bitmap.popcount(),
		BloomBits:       s.bloom.nbits,
		BloomBitsSet:    s.bloom.popcount(),
		HeapBytes:       len(s.heap.a),
		BucketCount:     s.layout.htableLen,
	}

	offset := 0
	for offset < len(s.heap.a) {
		flag, size := s.heap.readHeader(offset)
		if flag == recordFree {
			st.HeapFreeBytes += size
			if size > st.HeapLargestFree {
				st.HeapLargestFree = size
			}
		}
		offset += size + recordHeaderSize
	}

	return st
}

// BitmapBytes returns the raw bitmap region, for the inspect subcommand's
// bits-and-blooms/bitset-based popcount/longest-free-run report.
func (s *Store) BitmapBytes() []byte {
	return s.layout.bitmapSlice(s.buf)
}
