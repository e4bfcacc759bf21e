// Package snapshot implements C9 (bulk arena bytes in/out of a file), with
// atomic writes, optional LZ4 framing, and cross-process exclusivity via
// flock on top of the bare save/load contract.
package snapshot

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/natefinch/atomic"
	"github.com/pierrec/lz4/v4"
	"golang.org/x/sys/unix"
)

// Format tags prefix every snapshot file so Load can auto-detect whether
// the arena bytes that follow are raw or LZ4-framed.
const (
	formatRaw  byte = 0x00
	formatLZ4  byte = 0x01
	tagLen          = 1
)

// Store is the bulk in/out contract (C9) the engine needs: Save writes
// buf's exact bytes out, Load returns bytes the caller copies into a
// same-sized arena via engine.Store.LoadBytes — no validation of the arena's
// internal consistency is performed on either path.
type Store interface {
	Save(path string, buf []byte, compress bool) error
	Load(path string) ([]byte, error)
}

// Disk is the default Store: a local file, written atomically (temp file +
// rename, via natefinch/atomic) and guarded by an advisory flock on
// path+".lock" for the duration of the call, so a concurrent backup script
// or a second nosqld instance pointed at the same path can't interleave.
type Disk struct {
	// LockTimeoutDisabled skips the flock entirely; only used by tests that
	// don't want filesystem locking semantics in play.
	LockTimeoutDisabled bool
}

// Save writes buf to path, optionally LZ4-compressed, atomically.
func (d Disk) Save(path string, buf []byte, compress bool) error {
	unlock, err := d.lock(path)
	if err != nil {
		return fmt.Errorf("snapshot: lock %q: %w", path, err)
	}
	defer unlock()

	var body bytes.Buffer
	if compress {
		body.WriteByte(formatLZ4)
		zw := lz4.NewWriter(&body)
		if _, err := zw.Write(buf); err != nil {
			return fmt.Errorf("snapshot: lz4 compress: %w", err)
		}
		if err := zw.Close(); err != nil {
			return fmt.Errorf("snapshot: lz4 close: %w", err)
		}
	} else {
		body.WriteByte(formatRaw)
		body.Write(buf)
	}

	if err := atomic.WriteFile(path, &body); err != nil {
		return fmt.Errorf("snapshot: write %q: %w", path, err)
	}
	return nil
}

// Load reads path and returns the raw arena bytes, decompressing
// transparently if the file was saved with compress=true.
func (d Disk) Load(path string) ([]byte, error) {
	unlock, err := d.lock(path)
	if err != nil {
		return nil, fmt.Errorf("snapshot: lock %q: %w", path, err)
	}
	defer unlock()

	raw, err := os.ReadFile(path) //nolint:gosec // path is operator-supplied
	if err != nil {
		return nil, fmt.Errorf("snapshot: read %q: %w", path, err)
	}
	if len(raw) < tagLen {
		return nil, fmt.Errorf("snapshot: %q is too short to contain a format tag", path)
	}

	switch raw[0] {
	case formatRaw:
		return raw[tagLen:], nil
	case formatLZ4:
		out, err := io.ReadAll(lz4.NewReader(bytes.NewReader(raw[tagLen:])))
		if err != nil {
			return nil, fmt.Errorf("snapshot: lz4 decompress %q: %w", path, err)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: %q has format tag 0x%02x", ErrUnsupportedFormat, path, raw[0])
	}
}

// lock takes an advisory exclusive flock on path+".lock" and returns a
// function to release it. It is a no-op on platforms/tests that disable
// locking.
func (d Disk) lock(path string) (func(), error) {
	if d.LockTimeoutDisabled {
		return func() {}, nil
	}

	lockPath := path + ".lock"
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o644) //nolint:gosec
	if err != nil {
		return nil, err
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("flock %q: %w", lockPath, err)
	}

	return func() {
		_ = unix.Flock(int(f.Fd()), unix.LOCK_UN)
		_ = f.Close()
	}, nil
}

// ErrUnsupportedFormat is returned by Load for an unrecognized format tag.
var ErrUnsupportedFormat = errors.New("snapshot: unsupported format tag")
