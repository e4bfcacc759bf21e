package engine

import "encoding/binary"

const (
	recordFree = byte(0)
	recordBusy = byte(1)

	// recordHeaderSize is the 5-byte (flag, length) header preceding every
	// record's payload.
	recordHeaderSize = 5
)

// heap is C4: the record region of the arena, a contiguous sequence of
// headered variable-width blocks. save/delete never merge free neighbors:
// fragmentation is tolerated, reclaimed only by exact or larger-sized reuse
// and by the residual split off on save.
type heap struct {
	a      []byte
	cursor int // last successful save offset, to amortize the next scan
}

func newHeap(a []byte) *heap {
	return &heap{a: a}
}

// clear resets the heap to a single FREE block spanning the whole region.
func (h *heap) clear() {
	if len(h.a) < recordHeaderSize {
		panic("engine: heap region too small")
	}
	h.a[0] = recordFree
	binary.BigEndian.PutUint32(h.a[1:5], uint32(len(h.a))-recordHeaderSize)
	h.cursor = 0
}

func (h *heap) readHeader(offset int) (flag byte, size int) {
	return h.a[offset], int(binary.BigEndian.Uint32(h.a[offset+1 : offset+5]))
}

func (h *heap) writeHeader(offset int, flag byte, size int) {
	h.a[offset] = flag
	binary.BigEndian.PutUint32(h.a[offset+1:offset+5], uint32(size))
}

// save stores key||0x00||value in the first FREE block that fits, splitting
// off a residual FREE block when the fit isn't exact, and returns the
// offset of the new record's header. A FREE block whose spare room is 1 to
// 5 bytes is skipped, since that slack could not hold a non-empty residual
// block. Returns (-1, false) when no block fits. The walk restarts once from offset 0 if it first reaches the heap
// end without finding a fit, and asserts the cursor never runs past the
// region instead of looping unbounded.
func (h *heap) save(key, value []byte) (int, bool) {
	data := make([]byte, 0, len(key)+1+len(value))
	data = append(data, key...)
	data = append(data, 0)
	data = append(data, value...)

	if len(h.a)-recordHeaderSize < len(data) {
		return -1, false
	}

	offset := h.cursor
	walked := 0

	for walked <= len(h.a) {
		if offset >= len(h.a) {
			offset = 0
		}
		if offset+recordHeaderSize > len(h.a) {
			panic("engine: corrupt heap: header runs past region end")
		}

		flag, size := h.readHeader(offset)
		if flag == recordFree && (size == len(data) || size > len(data)+recordHeaderSize) {
			h.writeHeader(offset, recordBusy, len(data))
			copy(h.a[offset+recordHeaderSize:offset+recordHeaderSize+len(data)], data)

			residual := size - len(data) - recordHeaderSize
			if residual > 0 {
				h.writeHeader(offset+recordHeaderSize+len(data), recordFree, residual)
			}

			h.cursor = offset
			return offset, true
		}

		advance := size + recordHeaderSize
		offset += advance
		walked += advance
	}

	return -1, false
}

// split separates a record's stored payload on the first 0x00 byte.
func splitPayload(payload []byte) (key, value []byte) {
	for i, b := range payload {
		if b == 0 {
			return payload[:i], payload[i+1:]
		}
	}
	return payload, nil
}

func (h *heap) payload(offset int) (flag byte, data []byte) {
	flag, size := h.readHeader(offset)
	if flag == recordFree {
		return flag, nil
	}
	return flag, h.a[offset+recordHeaderSize : offset+recordHeaderSize+size]
}

// getKey returns the key stored at offset, or nil if the record is FREE.
func (h *heap) getKey(offset int) []byte {
	flag, data := h.payload(offset)
	if flag == recordFree {
		return nil
	}
	key, _ := splitPayload(data)
	return key
}

// getValue returns the value stored at offset, or nil if the record is FREE.
func (h *heap) getValue(offset int) []byte {
	flag, data := h.payload(offset)
	if flag == recordFree {
		return nil
	}
	_, value := splitPayload(data)
	return value
}

// keyEquals reports whether the record at offset has the given key,
// without allocating.
func (h *heap) keyEquals(offset int, key []byte) bool {
	flag, data := h.payload(offset)
	if flag == recordFree {
		return false
	}
	storedKey, _ := splitPayload(data)
	return bytesEqual(storedKey, key)
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// delete marks the record at offset FREE, leaving its length word intact so
// the heap walk invariant (sum of block sizes == region size) still holds.
// Returns false if the block was already FREE.
func (h *heap) delete(offset int) bool {
	flag, _ := h.readHeader(offset)
	if flag == recordFree {
		return false
	}
	h.a[offset] = recordFree
	return true
}
