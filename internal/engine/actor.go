package engine

import (
	"fmt"
	"sync"
)

// Engine serializes every operation against a Store through a single
// goroutine, the same channel-actor shape wal_writer.go uses to serialize
// WAL appends: each call enqueues a closure and blocks on its own done
// channel, so there is never more than one in-flight mutation against the
// arena.
type Engine struct {
	mu     sync.Mutex
	ch     chan engineRequest
	done   chan struct{}
	closed bool
	wg     sync.WaitGroup
	store  *Store
}

type engineRequest struct {
	fn   func(*Store)
	done chan struct{}
}

// ErrEngineClosed is returned by any call submitted after Close.
var ErrEngineClosed = fmt.Errorf("engine: closed")

// NewEngine starts the actor loop over a freshly constructed Store.
func NewEngine(opts Options, buffer int) *Engine {
	e := &Engine{
		ch:    make(chan engineRequest, buffer),
		done:  make(chan struct{}),
		store: New(opts),
	}
	go e.loop()
	return e
}

func (e *Engine) loop() {
	defer close(e.done)
	for req := range e.ch {
		req.fn(e.store)
		close(req.done)
	}
}

// submit runs fn against the Store from the actor goroutine and blocks
// until it completes.
func (e *Engine) submit(fn func(*Store)) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrEngineClosed
	}
	e.wg.Add(1)
	e.mu.Unlock()
	defer e.wg.Done()

	req := engineRequest{fn: fn, done: make(chan struct{})}

	select {
	case e.ch <- req:
		<-req.done
		return nil
	case <-e.done:
		return ErrEngineClosed
	}
}

// Close drains in-flight requests and stops the actor loop.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	e.mu.Unlock()

	e.wg.Wait()
	close(e.ch)
	<-e.done
}

// Has reports key's membership.
func (e *Engine) Has(key []byte) (bool, error) {
	var (
		ok  bool
		err error
	)
	if subErr := e.submit(func(s *Store) { ok, err = s.Has(key) }); subErr != nil {
		return false, subErr
	}
	return ok, err
}

// Get returns key's value.
func (e *Engine) Get(key []byte) ([]byte, error) {
	var (
		val []byte
		err error
	)
	if subErr := e.submit(func(s *Store) { val, err = s.Get(key) }); subErr != nil {
		return nil, subErr
	}
	return val, err
}

// GetObserved is Get with a hit callback, so callers outside the core (the
// server's metrics) can record cache hit/miss without the core taking a
// metrics dependency of its own.
func (e *Engine) GetObserved(key []byte, onResult func(cacheHit bool)) ([]byte, error) {
	var (
		val []byte
		err error
		hit bool
	)
	if subErr := e.submit(func(s *Store) {
		hit = s.cache.has(key)
		val, err = s.Get(key)
	}); subErr != nil {
		return nil, subErr
	}
	if onResult != nil {
		onResult(hit)
	}
	return val, err
}

// Set stores value under key.
func (e *Engine) Set(key, value []byte) error {
	var err error
	if subErr := e.submit(func(s *Store) { err = s.Set(key, value) }); subErr != nil {
		return subErr
	}
	return err
}

// Delete removes key.
func (e *Engine) Delete(key []byte) (bool, error) {
	var (
		ok  bool
		err error
	)
	if subErr := e.submit(func(s *Store) { ok, err = s.Delete(key) }); subErr != nil {
		return false, subErr
	}
	return ok, err
}

// Snapshot runs fn with exclusive access to the raw arena bytes, for
// internal/snapshot's save/load: no other operation can interleave with a
// snapshot in progress.
func (e *Engine) Snapshot(fn func(buf []byte)) error {
	return e.submit(func(s *Store) { fn(s.Bytes()) })
}

// LoadSnapshot overwrites the arena from data and clears the cache.
func (e *Engine) LoadSnapshot(data []byte) error {
	return e.submit(func(s *Store) { s.LoadBytes(data) })
}

// Stat computes point-in-time diagnostics.
func (e *Engine) Stat() (Stats, error) {
	var st Stats
	if err := e.submit(func(s *Store) { st = s.Stat() }); err != nil {
		return Stats{}, err
	}
	return st, nil
}

// BitmapSnapshot copies out the raw bitmap region for the inspect
// subcommand's bits-and-blooms/bitset-based report.
func (e *Engine) BitmapSnapshot() ([]byte, error) {
	var out []byte
	if err := e.submit(func(s *Store) {
		out = append([]byte(nil), s.BitmapBytes()...)
	}); err != nil {
		return nil, err
	}
	return out, nil
}
