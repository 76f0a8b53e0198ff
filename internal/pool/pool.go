// Package pool provides a bounded pool of backing-store handles.
//
// The pool owns a fixed number of handle slots kept on a free list.
// Handles are created lazily the first time their slot is leased, so a
// factory failure costs nothing and does not poison the pool. Acquire
// blocks while every slot is leased; exhaustion is backpressure, not an
// error, unless a wait timeout is configured.
package pool

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrClosed is returned by Acquire after Close has been called.
var ErrClosed = errors.New("pool closed")

// ErrExhausted is returned by Acquire when no handle becomes free
// within the configured wait timeout.
var ErrExhausted = errors.New("pool exhausted: no handle available within wait timeout")

// slot is one arena entry. A slot without a created handle is a permit
// to create one.
type slot[T any] struct {
	value   T
	created bool
}

// Pool is a bounded set of reusable handles of type T. All methods are
// safe for concurrent use.
type Pool[T any] struct {
	factory     func() (T, error)
	closer      func(T) error
	waitTimeout time.Duration
	capacity    int

	slots chan *slot[T]
	done  chan struct{}

	mu     sync.Mutex
	closed bool
	open   int
}

// New creates a pool of up to capacity handles. factory creates a
// handle on demand and closer releases one; waitTimeout bounds how long
// Acquire waits for a free handle, with zero meaning an unbounded wait.
func New[T any](capacity int, waitTimeout time.Duration, factory func() (T, error), closer func(T) error) (*Pool[T], error) {
	if capacity < 1 {
		return nil, errors.New("pool capacity must be at least 1")
	}
	if factory == nil {
		return nil, errors.New("pool factory must not be nil")
	}

	p := &Pool[T]{
		factory:     factory,
		closer:      closer,
		waitTimeout: waitTimeout,
		capacity:    capacity,
		slots:       make(chan *slot[T], capacity),
		done:        make(chan struct{}),
	}
	for i := 0; i < capacity; i++ {
		p.slots <- &slot[T]{}
	}
	return p, nil
}

// Acquire leases a handle, blocking while all handles are leased. The
// context cancels the wait; a configured wait timeout turns the wait
// into ErrExhausted. The returned lease must be released exactly by
// calling Release (deferring it is safe: Release is idempotent).
func (p *Pool[T]) Acquire(ctx context.Context) (*Lease[T], error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrClosed
	}
	p.mu.Unlock()

	var timeoutC <-chan time.Time
	if p.waitTimeout > 0 {
		timer := time.NewTimer(p.waitTimeout)
		defer timer.Stop()
		timeoutC = timer.C
	}

	select {
	case s := <-p.slots:
		select {
		case <-p.done:
			// Close started while we were winning the slot; give it
			// back so Close can finish draining.
			p.slots <- s
			return nil, ErrClosed
		default:
		}

		if !s.created {
			v, err := p.factory()
			if err != nil {
				p.slots <- s
				return nil, err
			}
			s.value = v
			s.created = true
			p.mu.Lock()
			p.open++
			p.mu.Unlock()
		}
		return &Lease[T]{pool: p, slot: s}, nil

	case <-timeoutC:
		return nil, ErrExhausted
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-p.done:
		return nil, ErrClosed
	}
}

// Close waits for every leased handle to be released, closes all
// created handles, and marks the pool closed. Waiting acquirers fail
// with ErrClosed. Close is idempotent; the first call does the work.
func (p *Pool[T]) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.done)
	p.mu.Unlock()

	var firstErr error
	for i := 0; i < p.capacity; i++ {
		s := <-p.slots
		if !s.created {
			continue
		}
		s.created = false
		if p.closer != nil {
			if err := p.closer(s.value); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}

	p.mu.Lock()
	p.open = 0
	p.mu.Unlock()
	return firstErr
}

// Stats reports the pool capacity, the number of handles created so
// far, and the number of free slots.
func (p *Pool[T]) Stats() (capacity, open, idle int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.capacity, p.open, len(p.slots)
}

// Lease is a scoped handle acquisition. The handle is exclusively owned
// by the holder until Release.
type Lease[T any] struct {
	pool *Pool[T]

	mu       sync.Mutex
	slot     *slot[T]
	released bool
}

// Value returns the leased handle. It must not be used after Release.
func (l *Lease[T]) Value() T {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.released {
		panic("pool: Value called on released lease")
	}
	return l.slot.value
}

// Release returns the handle to the pool's free list. It is safe to
// call more than once; only the first call returns the handle.
func (l *Lease[T]) Release() {
	l.mu.Lock()
	if l.released {
		l.mu.Unlock()
		return
	}
	l.released = true
	s := l.slot
	l.slot = nil
	l.mu.Unlock()

	l.pool.slots <- s
}
