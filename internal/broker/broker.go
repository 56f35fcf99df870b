// Package broker turns fire-and-forget message exchanges into bounded
// request/response calls.
//
// A caller registers a correlation id, publishes its request with that id as
// the message key, and blocks on Wait until the matching response is
// delivered by a bus consumer, the timeout elapses, or the slot is
// cancelled. One Broker instance is created per response kind so that a
// flood of one kind of response can never starve waiters of another.
package broker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"
)

// ─── Errors ─────────────────────────────────────────────────

var (
	// ErrDuplicateCorrelation is returned by Register when the id is
	// already in flight.
	ErrDuplicateCorrelation = errors.New("broker: correlation id already in flight")

	// ErrUnknownCorrelation is returned by Wait for an id that was never
	// registered (or already swept).
	ErrUnknownCorrelation = errors.New("broker: unknown correlation id")

	// ErrWaitTimeout is returned by Wait when no response arrived within
	// the caller's budget.
	ErrWaitTimeout = errors.New("broker: wait timed out")
)

// CancelledError is returned by Wait when the slot was cancelled before a
// response arrived.
type CancelledError struct {
	CorrelationID string
	Reason        string
}

func (e *CancelledError) Error() string {
	return fmt.Sprintf("broker: wait for %s cancelled: %s", e.CorrelationID, e.Reason)
}

// ─── Broker ─────────────────────────────────────────────────

type outcome[T any] struct {
	resp T
	err  error
}

// waiter is single-shot: the buffered channel holds at most one outcome and
// the done flag guarantees exactly-once completion under the broker lock.
type waiter[T any] struct {
	ch   chan outcome[T]
	done bool
}

// Broker tracks in-flight correlation ids for one response kind.
type Broker[T any] struct {
	kind    string
	mu      sync.Mutex
	waiters map[string]*waiter[T]
}

// New creates a broker for one response kind. The kind only shows up in
// logs.
func New[T any](kind string) *Broker[T] {
	return &Broker[T]{
		kind:    kind,
		waiters: make(map[string]*waiter[T]),
	}
}

// Register creates a pending slot for a caller-generated correlation id.
func (b *Broker[T]) Register(correlationID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.waiters[correlationID]; exists {
		return ErrDuplicateCorrelation
	}
	b.waiters[correlationID] = &waiter[T]{ch: make(chan outcome[T], 1)}
	return nil
}

// Wait blocks until the response for the id is delivered, the timeout
// elapses, or ctx is done. The slot is removed on every exit path, so a
// late delivery after a timeout hits the unknown-id branch of Deliver and
// is discarded there.
func (b *Broker[T]) Wait(ctx context.Context, correlationID string, timeout time.Duration) (T, error) {
	var zero T

	b.mu.Lock()
	w, ok := b.waiters[correlationID]
	b.mu.Unlock()
	if !ok {
		return zero, ErrUnknownCorrelation
	}

	defer b.remove(correlationID)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case o := <-w.ch:
		return o.resp, o.err
	case <-timer.C:
		return zero, ErrWaitTimeout
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Deliver completes the waiter for resp's correlation id exactly once.
// A delivery for an unknown or already-completed id is logged and
// discarded — it is a late or duplicate response, not an error.
func (b *Broker[T]) Deliver(correlationID string, resp T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	w, ok := b.waiters[correlationID]
	if !ok || w.done {
		log.Printf("[broker:%s] discarding late or duplicate response for %s", b.kind, correlationID)
		return
	}
	w.done = true
	w.ch <- outcome[T]{resp: resp}
}

// Cancel completes the waiter with a CancelledError. Idempotent: cancelling
// an unknown or already-completed id is a no-op.
func (b *Broker[T]) Cancel(correlationID, reason string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	w, ok := b.waiters[correlationID]
	if !ok || w.done {
		return
	}
	w.done = true
	w.ch <- outcome[T]{err: &CancelledError{CorrelationID: correlationID, Reason: reason}}
}

// Sweep removes slots that completed but whose waiter never collected the
// outcome (e.g. the waiting goroutine died). Safe under concurrent
// delivery; pending slots are left alone.
func (b *Broker[T]) Sweep() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	removed := 0
	for id, w := range b.waiters {
		if w.done {
			delete(b.waiters, id)
			removed++
		}
	}
	return removed
}

// Pending returns the number of in-flight slots.
func (b *Broker[T]) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.waiters)
}

func (b *Broker[T]) remove(correlationID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.waiters, correlationID)
}
