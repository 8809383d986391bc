package async

import (
	"errors"
	"sync"
)

// ErrCanceled is returned from Chain and Wait helpers when the awaited
// result ended in the Canceled state. It is not a failure: results never
// carry it as their Failed error.
var ErrCanceled = errors.New("operation canceled")

// State is the lifecycle phase of a Result. Transitions only move
// forward; a terminal state is never left.
type State int

const (
	Pending State = iota
	InProgress
	Succeeded
	Failed
	Canceled
)

// Terminal reports whether the state is final.
func (s State) Terminal() bool {
	return s == Succeeded || s == Failed || s == Canceled
}

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case InProgress:
		return "in-progress"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	case Canceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// Snapshot is an immutable view of a Result at one point in its life.
// Step/Steps carry progress-fraction information while InProgress.
type Snapshot[T any] struct {
	State State
	Step  int
	Steps int
	Value T
	Err   error
}

type subscriber[T any] struct {
	id uint64
	cb func(Snapshot[T])
}

// Result is a cancelable, observable handle for a value produced by a
// possibly multi-step asynchronous operation. Results are single-use:
// one is created per call and discarded once terminal.
type Result[T any] struct {
	mu     sync.Mutex
	snap   Snapshot[T]
	token  *Token
	subs   []subscriber[T]
	nextID uint64
	done   chan struct{}
}

func newResult[T any]() *Result[T] {
	return &Result[T]{
		snap:  Snapshot[T]{State: Pending},
		token: NewToken(),
		done:  make(chan struct{}),
	}
}

// New starts op asynchronously and returns a Result immediately in the
// Pending state. The controller lets op report step progress and
// delegate to nested results via Chain.
func New[T any](op func(*Controller[T]) (T, error)) *Result[T] {
	r := newResult[T]()
	go r.run(op)
	return r
}

// Resolved returns a Result already in the Succeeded state. Used by
// callers that satisfy a request from a cache without any async work.
func Resolved[T any](v T) *Result[T] {
	r := newResult[T]()
	r.complete(v, nil)
	return r
}

func (r *Result[T]) run(op func(*Controller[T]) (T, error)) {
	v, err := op(&Controller[T]{r: r})
	if r.token.Canceled() {
		r.cancelState()
		return
	}
	r.complete(v, err)
}

// Snapshot returns the current state, value, and error.
func (r *Result[T]) Snapshot() Snapshot[T] {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snap
}

// State returns the current lifecycle phase.
func (r *Result[T]) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snap.State
}

// Wait blocks until the result is terminal and returns the final
// snapshot.
func (r *Result[T]) Wait() Snapshot[T] {
	<-r.done
	return r.Snapshot()
}

// Done returns a channel closed once the result is terminal.
func (r *Result[T]) Done() <-chan struct{} {
	return r.done
}

// Subscribe registers cb to run synchronously on every state transition,
// including Pending to InProgress. The returned handle removes the
// registration. If the result is already terminal, cb is invoked once
// with the final snapshot.
func (r *Result[T]) Subscribe(cb func(Snapshot[T])) (cancel func()) {
	r.mu.Lock()
	if r.snap.State.Terminal() {
		snap := r.snap
		r.mu.Unlock()
		cb(snap)
		return func() {}
	}
	r.nextID++
	id := r.nextID
	r.subs = append(r.subs, subscriber[T]{id: id, cb: cb})
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		for i, s := range r.subs {
			if s.id == id {
				r.subs = append(r.subs[:i], r.subs[i+1:]...)
				return
			}
		}
	}
}

// Cancel moves a non-terminal result to Canceled and signals the
// operation's token. A canceled result never later reports Succeeded or
// Failed. Idempotent.
func (r *Result[T]) Cancel() {
	r.cancelState()
	r.token.Cancel()
}

func (r *Result[T]) cancelState() {
	r.transition(func(s *Snapshot[T]) {
		s.State = Canceled
	})
}

func (r *Result[T]) complete(v T, err error) {
	r.transition(func(s *Snapshot[T]) {
		if err != nil {
			s.State = Failed
			s.Err = err
			return
		}
		s.State = Succeeded
		s.Value = v
	})
}

// transition applies mutate under the lock unless the result is already
// terminal, then notifies subscribers outside it.
func (r *Result[T]) transition(mutate func(*Snapshot[T])) {
	r.mu.Lock()
	if r.snap.State.Terminal() {
		r.mu.Unlock()
		return
	}
	mutate(&r.snap)
	snap := r.snap
	subs := make([]subscriber[T], len(r.subs))
	copy(subs, r.subs)
	if snap.State.Terminal() {
		r.subs = nil
		close(r.done)
	}
	r.mu.Unlock()

	for _, s := range subs {
		s.cb(snap)
	}
}

// Controller is handed to a result's operation body. It reports step
// progress and exposes the operation's cancellation token.
type Controller[T any] struct {
	r *Result[T]
}

// Token returns the operation's cancellation token. The body must check
// it after every suspension point.
func (c *Controller[T]) Token() *Token {
	return c.r.token
}

// Steps declares how many steps the operation spans and moves the result
// to InProgress at step zero.
func (c *Controller[T]) Steps(total int) {
	if total <= 0 {
		return
	}
	c.r.transition(func(s *Snapshot[T]) {
		s.State = InProgress
		s.Step = 0
		s.Steps = total
	})
}

// StepDone marks one declared step finished.
func (c *Controller[T]) StepDone() {
	c.r.transition(func(s *Snapshot[T]) {
		s.State = InProgress
		if s.Step < s.Steps {
			s.Step++
		}
	})
}

// setStep pins the step index without advancing past the declared total.
// Used by Chain to fold a child's progress into the parent.
func (c *Controller[T]) setStep(step int) {
	c.r.transition(func(s *Snapshot[T]) {
		s.State = InProgress
		if step >= 0 && step <= s.Steps {
			s.Step = step
		}
	})
}

func (c *Controller[T]) currentStep() int {
	c.r.mu.Lock()
	defer c.r.mu.Unlock()
	return c.r.snap.Step
}

// Chain runs the parent operation's continuation through a child result:
// it blocks until child is terminal, mirrors the child's progress into
// span of the parent's declared steps, and propagates cancellation both
// ways. A canceled child surfaces as ErrCanceled.
func Chain[T, U any](c *Controller[T], child *Result[U], span int) (U, error) {
	if span < 0 {
		span = 0
	}
	base := c.currentStep()

	// Parent cancellation folds into the child.
	removeCancel := c.Token().OnCancel(child.Cancel)
	defer removeCancel()

	// Child progress maps onto [base, base+span] of the parent.
	unsub := child.Subscribe(func(s Snapshot[U]) {
		if s.State == InProgress && s.Steps > 0 && span > 0 {
			c.setStep(base + s.Step*span/s.Steps)
		}
	})
	defer unsub()

	final := child.Wait()
	var zero U
	switch final.State {
	case Succeeded:
		if span > 0 {
			c.setStep(base + span)
		}
		return final.Value, nil
	case Failed:
		return zero, final.Err
	default:
		return zero, ErrCanceled
	}
}

// Convert derives a read-only result that mirrors src, applying f to the
// value only on success. Progress and the Failed/Canceled terminal
// states pass through unchanged.
func Convert[T, U any](src *Result[T], f func(T) U) *Result[U] {
	out := newResult[U]()
	src.Subscribe(func(s Snapshot[T]) {
		switch s.State {
		case InProgress:
			out.transition(func(o *Snapshot[U]) {
				o.State = InProgress
				o.Step = s.Step
				o.Steps = s.Steps
			})
		case Succeeded:
			out.complete(f(s.Value), nil)
		case Failed:
			var zero U
			out.complete(zero, s.Err)
		case Canceled:
			out.cancelState()
		}
	})
	return out
}
