// Package inspect renders point-in-time diagnostics for a running
// nosqld: engine.Stats plus a bits-and-blooms/bitset-based read of the
// allocator bitmap, used by the "nosqld inspect" subcommand. This is the
// one place bits-and-blooms/bitset touches the arena — it operates on a
// safe copy (engine.Engine.BitmapSnapshot), never the live buffer, so
// there's no need to reason about the library's internal word alignment
// against the arena's byte layout.
package inspect

import (
	"fmt"
	"io"

	"github.com/bits-and-blooms/bitset"
	"github.com/dustin/go-humanize"

	"github.com/nosqld/nosqld/internal/engine"
)

// Report prints a human-readable diagnostic summary of eng to w.
func Report(eng *engine.Engine, w io.Writer) error {
	st, err := eng.Stat()
	if err != nil {
		return fmt.Errorf("inspect: stat: %w", err)
	}

	bm, err := eng.BitmapSnapshot()
	if err != nil {
		return fmt.Errorf("inspect: bitmap snapshot: %w", err)
	}
	bs := bitset.From(bytesToUint64Words(bm))

	fmt.Fprintf(w, "arena:           %s (index %s, heap %s)\n",
		humanize.Bytes(uint64(st.TotalMemorySize)), humanize.Bytes(uint64(st.IndexSize)), humanize.Bytes(uint64(st.HeapBytes)))
	fmt.Fprintf(w, "slots:           %d busy / %d capacity (bitset popcount %d)\n",
		st.SlotsBusy, st.SlotCapacity, bs.Count())
	fmt.Fprintf(w, "bloom:           %d/%d bits set\n", st.BloomBitsSet, st.BloomBits)
	fmt.Fprintf(w, "hash buckets:    %d\n", st.BucketCount)
	fmt.Fprintf(w, "heap free:       %s (largest contiguous run %s)\n",
		humanize.Bytes(uint64(st.HeapFreeBytes)), humanize.Bytes(uint64(st.HeapLargestFree)))
	fmt.Fprintf(w, "longest busy run in bitmap: %d slots\n", longestSetRun(bs))

	return nil
}

// bytesToUint64Words packs a byte slice into the uint64 words
// bitset.From expects, zero-padding the final partial word.
func bytesToUint64Words(b []byte) []uint64 {
	words := make([]uint64, (len(b)+7)/8)
	for i, v := range b {
		words[i/8] |= uint64(v) << (8 * (i % 8))
	}
	return words
}

// longestSetRun finds the longest run of consecutive set bits, i.e. the
// longest run of busy slots — a proxy for fragmentation of the allocator.
func longestSetRun(bs *bitset.BitSet) uint {
	var longest, current uint
	for i := uint(0); i < bs.Len(); i++ {
		if bs.Test(i) {
			current++
			if current > longest {
				longest = current
			}
		} else {
			current = 0
		}
	}
	return longest
}
