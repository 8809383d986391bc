// Package poll repeats a fetch operation on a fixed cadence, retaining
// the most recent successful value independently of any single fetch's
// lifecycle. A poller with a non-positive interval never self-schedules
// and refreshes only on explicit kicks.
package poll

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/finch-chat/finch/internal/async"
)

// Update is delivered to subscribers after every completed poll. Err is
// nil when the poll succeeded; Value and HasValue always reflect the
// retained last success.
type Update[T any] struct {
	Value    T
	HasValue bool
	Err      error
}

type subscriber[T any] struct {
	id uint64
	cb func(Update[T])
}

// Poller drives a result-producing fetch at a fixed interval. At most
// one fetch is in flight at a time; out-of-band kicks arriving during a
// fetch are coalesced into a single follow-up.
type Poller[T any] struct {
	name     string
	interval time.Duration
	fetch    func() *async.Result[T]

	mu      sync.Mutex
	last    T
	hasLast bool
	lastErr error
	current *async.Result[T]
	gen     uint64
	subs    []subscriber[T]
	nextID  uint64

	started atomic.Bool
	kick    chan struct{}
}

// New builds a poller. name is used only in failure logs. An interval of
// zero or less makes the poller on-demand only.
func New[T any](name string, interval time.Duration, fetch func() *async.Result[T]) *Poller[T] {
	return &Poller[T]{
		name:     name,
		interval: interval,
		fetch:    fetch,
		kick:     make(chan struct{}, 1),
	}
}

// Start launches the polling loop. It returns immediately and is a
// no-op on second call. The loop exits when ctx is done.
func (p *Poller[T]) Start(ctx context.Context) {
	if !p.started.CompareAndSwap(false, true) {
		return
	}
	go p.loop(ctx)
}

func (p *Poller[T]) loop(ctx context.Context) {
	var tick <-chan time.Time
	if p.interval > 0 {
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-tick:
			p.pollOnce()
		case <-p.kick:
			p.pollOnce()
		}
	}
}

// Kick requests an out-of-band poll without disturbing the interval
// timer. Requests arriving while a poll is in flight coalesce: the loop
// runs exactly one follow-up once the current fetch completes.
func (p *Poller[T]) Kick() {
	select {
	case p.kick <- struct{}{}:
	default:
	}
}

// Reset discards the retained value and cancels any in-flight fetch.
// Used when credentials change so no stale data survives into the next
// session.
func (p *Poller[T]) Reset() {
	p.mu.Lock()
	current := p.current
	p.gen++
	var zero T
	p.last = zero
	p.hasLast = false
	p.lastErr = nil
	p.mu.Unlock()

	if current != nil {
		current.Cancel()
	}
}

// Latest returns the retained last successful value.
func (p *Poller[T]) Latest() (T, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last, p.hasLast
}

// LastError returns the error from the most recent poll, or nil if it
// succeeded.
func (p *Poller[T]) LastError() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastErr
}

// Subscribe registers cb to run after every completed poll. The handle
// removes the registration.
func (p *Poller[T]) Subscribe(cb func(Update[T])) (cancel func()) {
	p.mu.Lock()
	p.nextID++
	id := p.nextID
	p.subs = append(p.subs, subscriber[T]{id: id, cb: cb})
	p.mu.Unlock()

	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		for i, s := range p.subs {
			if s.id == id {
				p.subs = append(p.subs[:i], p.subs[i+1:]...)
				return
			}
		}
	}
}

func (p *Poller[T]) pollOnce() {
	// The generation pins this poll to the session it started under. A
	// reset bumps it, so a fetch the reset could not yet see gets its
	// outcome discarded instead of repopulating the retained value.
	p.mu.Lock()
	gen := p.gen
	p.mu.Unlock()

	res := p.fetch()

	p.mu.Lock()
	if gen != p.gen {
		p.mu.Unlock()
		res.Cancel()
		return
	}
	p.current = res
	p.mu.Unlock()

	final := res.Wait()

	p.mu.Lock()
	p.current = nil
	if gen != p.gen {
		p.mu.Unlock()
		return
	}
	switch final.State {
	case async.Canceled:
		// A reset raced the fetch; its outcome no longer matters.
		p.mu.Unlock()
		return
	case async.Failed:
		p.lastErr = final.Err
		log.Printf("%s poll failed: %v", p.name, final.Err)
	case async.Succeeded:
		p.last = final.Value
		p.hasLast = true
		p.lastErr = nil
	}
	update := Update[T]{Value: p.last, HasValue: p.hasLast, Err: p.lastErr}
	subs := make([]subscriber[T], len(p.subs))
	copy(subs, p.subs)
	p.mu.Unlock()

	for _, s := range subs {
		s.cb(update)
	}
}
