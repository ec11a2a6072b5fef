// Package await provides a correlated wait register: a caller issues an
// asynchronous request and blocks until an independent receive loop
// fulfills the register or a timeout elapses. It bridges the push-based
// wire protocol into the synchronous calls the gateway exposes.
package await

import (
	"errors"
	"sync"
	"time"
)

// ErrTimeout is returned when no answer arrives within the wait bound.
// It is an expected outcome, not a fault.
var ErrTimeout = errors.New("await: timed out")

// Register holds at most one pending result. A new request clears the
// slot; Fulfill populates it and wakes every current waiter. Callers are
// expected to serialize their own high-level requests; the register
// does not guard against a second concurrent issuer.
type Register[T any] struct {
	mu    sync.Mutex
	ready chan struct{}
	value T
	done  bool
}

// New creates a Register with an empty slot.
func New[T any]() *Register[T] {
	return &Register[T]{ready: make(chan struct{})}
}

// Clear empties the slot. Any result fulfilled for a previous request is
// discarded.
func (r *Register[T]) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done {
		r.ready = make(chan struct{})
		r.done = false
	}
	var zero T
	r.value = zero
}

// Fulfill stores v and wakes all current waiters. Called from a receive
// loop when the matching response arrives. A second Fulfill before the
// next Clear is ignored.
func (r *Register[T]) Fulfill(v T) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done {
		return
	}
	r.value = v
	r.done = true
	close(r.ready)
}

// Await blocks until the slot is fulfilled or timeout elapses.
func (r *Register[T]) Await(timeout time.Duration) (T, error) {
	r.mu.Lock()
	ready := r.ready
	r.mu.Unlock()

	select {
	case <-ready:
	case <-time.After(timeout):
		var zero T
		return zero, ErrTimeout
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.value, nil
}

// RequestAndAwait clears the slot, invokes issue (which must cause a
// future message to fulfill the register), then blocks until the result
// arrives or timeout elapses. An issue failure is returned immediately
// without waiting.
func (r *Register[T]) RequestAndAwait(issue func() error, timeout time.Duration) (T, error) {
	r.Clear()
	if err := issue(); err != nil {
		var zero T
		return zero, err
	}
	return r.Await(timeout)
}
