// Package infra provides shared infrastructure for the tool server: call
// coalescing for reload requests and a breaker that pauses automatic reloads
// after repeated failures.
package infra

import (
	"context"
	"sync"
)

// Coalescer merges identical in-flight calls. When several goroutines ask for
// the same key at once, fn runs once and every waiter receives its result.
type Coalescer[T any] struct {
	mu       sync.Mutex
	inflight map[string]*inflightCall[T]
}

// inflightCall tracks a call in progress and its waiters.
type inflightCall[T any] struct {
	done   chan struct{}
	result T
	err    error
	count  int
}

// NewCoalescer creates an empty coalescer.
func NewCoalescer[T any]() *Coalescer[T] {
	return &Coalescer[T]{
		inflight: make(map[string]*inflightCall[T]),
	}
}

// Do runs fn unless a call with the same key is already running, in which
// case it waits for that call. It returns the result, whether the result was
// shared with another caller, and any error. A waiter whose ctx ends stops
// waiting; the running call is not affected.
func (c *Coalescer[T]) Do(ctx context.Context, key string, fn func() (T, error)) (T, bool, error) {
	c.mu.Lock()

	if call, ok := c.inflight[key]; ok {
		call.count++
		c.mu.Unlock()

		select {
		case <-call.done:
			return call.result, true, call.err
		case <-ctx.Done():
			var zero T
			return zero, false, ctx.Err()
		}
	}

	call := &inflightCall[T]{
		done:  make(chan struct{}),
		count: 1,
	}
	c.inflight[key] = call
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.inflight, key)
		c.mu.Unlock()
		close(call.done)
	}()

	call.result, call.err = fn()
	return call.result, false, call.err
}

// InFlight returns the number of keys with a running call.
func (c *Coalescer[T]) InFlight() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.inflight)
}

// Waiters returns how many callers are attached to the running call for key,
// including the one executing it.
func (c *Coalescer[T]) Waiters(key string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if call, ok := c.inflight[key]; ok {
		return call.count
	}
	return 0
}
