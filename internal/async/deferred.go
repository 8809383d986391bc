package async

import "sync/atomic"

// Deferred is a Result whose operation body is supplied after
// construction. This lets a handle exist before its work is scheduled,
// which the photo cache uses to hand out a result for a queued job and
// start the body only when the job reaches the front of the queue.
type Deferred[T any] struct {
	*Result[T]
	started atomic.Bool
}

// NewDeferred returns a Pending result with no operation attached.
func NewDeferred[T any]() *Deferred[T] {
	return &Deferred[T]{Result: newResult[T]()}
}

// Start runs op against the deferred result. The second and later calls
// are no-ops, as is starting a result that was canceled while still
// unstarted.
func (d *Deferred[T]) Start(op func(*Controller[T]) (T, error)) {
	if !d.started.CompareAndSwap(false, true) {
		return
	}
	if d.State().Terminal() {
		return
	}
	go d.run(op)
}
