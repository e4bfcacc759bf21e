package engine

// bloomFilter is C3: a byte array of bloomLen bytes treated as a bit array
// of 8*bloomLen bits, with 5 parallel hash functions.
//
// remove is best-effort and can produce false negatives when two keys share
// a bit. hadRemove latches once any remove has happened, so the index
// knows when a bloom-negative can no longer be trusted without consulting
// the index.
type bloomFilter struct {
	a         []byte
	nbits     uint32
	hadRemove bool
}

func newBloomFilter(a []byte) *bloomFilter {
	return &bloomFilter{a: a, nbits: uint32(len(a)) * 8}
}

func (f *bloomFilter) clear() {
	clear(f.a)
	f.hadRemove = false
}

func (f *bloomFilter) bitIndices(key []byte) [5]uint32 {
	var idx [5]uint32
	for i, seed := range seedBloom {
		idx[i] = hashSeeded(seed, key) % f.nbits
	}
	return idx
}

func (f *bloomFilter) setBit(i uint32) {
	f.a[i>>3] |= 1 << (i & 7)
}

func (f *bloomFilter) clearBit(i uint32) {
	f.a[i>>3] &^= 1 << (i & 7)
}

func (f *bloomFilter) testBit(i uint32) bool {
	return f.a[i>>3]&(1<<(i&7)) != 0
}

func (f *bloomFilter) add(key []byte) {
	for _, i := range f.bitIndices(key) {
		f.setBit(i)
	}
}

func (f *bloomFilter) remove(key []byte) {
	f.hadRemove = true
	for _, i := range f.bitIndices(key) {
		f.clearBit(i)
	}
}

// has is true iff all 5 bits are set. A false here is only authoritative as
// "definitely absent" when hadRemove is false; once removals have happened,
// callers must fall through to the index on a negative.
func (f *bloomFilter) has(key []byte) bool {
	for _, i := range f.bitIndices(key) {
		if !f.testBit(i) {
			return false
		}
	}
	return true
}

// popcount returns the number of set bits, for diagnostics.
func (f *bloomFilter) popcount() int {
	n := 0
	for _, byteVal := range f.a {
		for byteVal != 0 {
			n++
			byteVal &= byteVal - 1
		}
	}
	return n
}
