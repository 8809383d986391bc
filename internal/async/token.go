package async

import (
	"context"
	"sync"
)

// Token is a cooperative cancellation signal shared by an operation and
// every suspension point that must honor it. Canceling is advisory: work
// already dispatched is not interrupted, but the owner must not resume
// past the next check once the flag is set.
type Token struct {
	mu       sync.Mutex
	canceled bool
	done     chan struct{}
	waiters  []tokenWaiter
	nextID   uint64
}

type tokenWaiter struct {
	id uint64
	fn func()
}

// NewToken creates an un-canceled token.
func NewToken() *Token {
	return &Token{done: make(chan struct{})}
}

// Cancel sets the flag and notifies waiters. The first call wins; later
// calls are no-ops.
func (t *Token) Cancel() {
	t.mu.Lock()
	if t.canceled {
		t.mu.Unlock()
		return
	}
	t.canceled = true
	waiters := t.waiters
	t.waiters = nil
	close(t.done)
	t.mu.Unlock()

	for _, w := range waiters {
		w.fn()
	}
}

// Canceled reports whether Cancel has been called.
func (t *Token) Canceled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.canceled
}

// Done returns a channel closed when the token is canceled, for use in
// select statements alongside timers and I/O.
func (t *Token) Done() <-chan struct{} {
	return t.done
}

// OnCancel registers fn to run when the token is canceled and returns a
// handle that removes the registration. If the token is already canceled,
// fn runs synchronously and the handle is a no-op.
func (t *Token) OnCancel(fn func()) (remove func()) {
	t.mu.Lock()
	if t.canceled {
		t.mu.Unlock()
		fn()
		return func() {}
	}
	t.nextID++
	id := t.nextID
	t.waiters = append(t.waiters, tokenWaiter{id: id, fn: fn})
	t.mu.Unlock()

	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		for i, w := range t.waiters {
			if w.id == id {
				t.waiters = append(t.waiters[:i], t.waiters[i+1:]...)
				return
			}
		}
	}
}

// Context derives a context canceled when either the parent or the token
// is canceled. The returned stop func releases the registration and must
// be called when the caller is done with the context.
func (t *Token) Context(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	remove := t.OnCancel(cancel)
	return ctx, func() {
		remove()
		cancel()
	}
}
