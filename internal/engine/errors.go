package engine

import "errors"

// Sentinel errors classify core failures. Callers use errors.Is; the HTTP
// handler (internal/server) maps these onto status codes.
var (
	// ErrEmptyKey is returned for any operation on a zero-length key.
	ErrEmptyKey = errors.New("engine: empty key")

	// ErrNotFound is returned by Get when the key is absent. Has and Delete
	// report an absent key as false with a nil error.
	ErrNotFound = errors.New("engine: not found")

	// ErrArenaFull is returned by Set when the heap has no block that fits
	// the record, or the index has no free slot.
	ErrArenaFull = errors.New("engine: arena full")

	// ErrCorruptArena is returned by Set when the index rejects the new
	// record as a duplicate right after Set removed the key, which only an
	// inconsistent arena can produce. A heap header that runs past the heap
	// region panics instead. Either way the caller should not continue
	// operating on the arena.
	ErrCorruptArena = errors.New("engine: corrupt arena")
)
