// Package result provides write-once completion primitives: a typed
// request/response cell (Handle) and a single-shot broadcast future
// (Signal). Both generalize a Request type that paired a single untyped
// value channel with a single error channel.
package result

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

// ErrAlreadyDone names the already-resolved condition for callers that need
// an error value for it. Nothing in this package returns it: Wait returns
// the handle's own result or ctx's error, and Complete/Fail report an
// already-resolved handle via their bool return instead.
var ErrAlreadyDone = errors.New("RESULT:ALREADY_DONE")

// Handle is a write-once cell with exactly one of three terminal states:
// pending, success(value) or error(reason). It replaces common.Request's
// body/resp/fail/cancel channel bundle with a single generic value plus a
// done channel, matching how circuit.Controller pairs a closed channel with
// a captured failure rather than juggling two result channels.
type Handle[T any] struct {
	done  chan struct{}
	once  sync.Once
	mu    sync.Mutex
	value T
	err   error
}

// New allocates a pending Handle.
func New[T any]() *Handle[T] {
	return &Handle[T]{done: make(chan struct{})}
}

// Completed returns an already-resolved Handle carrying val.
func Completed[T any](val T) *Handle[T] {
	h := New[T]()
	h.Complete(val)
	return h
}

// Failed returns an already-resolved Handle carrying err.
func Failed[T any](err error) *Handle[T] {
	h := New[T]()
	h.Fail(err)
	return h
}

// Complete resolves the handle with val. Returns false if the handle was
// already resolved, in which case val is discarded.
func (h *Handle[T]) Complete(val T) bool {
	ok := false
	h.once.Do(func() {
		h.mu.Lock()
		h.value = val
		h.mu.Unlock()
		close(h.done)
		ok = true
	})
	return ok
}

// Fail resolves the handle with err. Returns false if the handle was
// already resolved.
func (h *Handle[T]) Fail(err error) bool {
	ok := false
	h.once.Do(func() {
		h.mu.Lock()
		h.err = err
		h.mu.Unlock()
		close(h.done)
		ok = true
	})
	return ok
}

// Done returns a channel closed once the handle has resolved, success or
// failure.
func (h *Handle[T]) Done() <-chan struct{} {
	return h.done
}

// Terminal reports whether the handle has already resolved, without
// blocking.
func (h *Handle[T]) Terminal() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// Get returns the resolved value and error without blocking. Callers must
// have already observed Done() closed; calling Get on a pending handle
// returns the zero value and a nil error.
func (h *Handle[T]) Get() (T, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.value, h.err
}

// Wait blocks until the handle resolves or ctx is done, whichever comes
// first.
func (h *Handle[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-h.done:
		return h.Get()
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
