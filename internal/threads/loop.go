package threads

import (
	"log"
	"sync"
	"time"

	"github.com/finch-chat/finch/internal/api"
	"github.com/finch-chat/finch/internal/async"
)

// LoopState is the sync loop's current phase.
type LoopState int

const (
	// Idle: no sync in progress and none scheduled.
	Idle LoopState = iota
	// Fetching: a network refresh is outstanding.
	Fetching
	// Delaying: timed backoff before the next fetch while watched.
	Delaying
	// WaitingForActivation: collection unwatched; suspended until the
	// activation signal fires.
	WaitingForActivation
)

func (s LoopState) String() string {
	switch s {
	case Idle:
		return "idle"
	case Fetching:
		return "fetching"
	case Delaying:
		return "delaying"
	case WaitingForActivation:
		return "waiting"
	default:
		return "unknown"
	}
}

const (
	// DefaultStep is the additive backoff increment between cycles.
	DefaultStep = time.Second
	// DefaultCap bounds the backoff delay.
	DefaultCap = 300 * time.Second
)

type stateSubscriber struct {
	id uint64
	cb func(LoopState)
}

// SyncLoop perpetually resynchronizes a thread collection. While the
// collection is watched it refetches with an additive, capped backoff;
// while unwatched it suspends until the activation signal; explicit
// update requests cut any pending wait short. At most one fetch is
// outstanding per loop.
type SyncLoop struct {
	coll  *Collection
	fetch func(*async.Token) *async.Result[[]api.Thread]
	step  time.Duration
	max   time.Duration

	mu        sync.Mutex
	state     LoopState
	token     *async.Token
	delay     time.Duration
	restart   bool // a RequestUpdate interrupted a wait; continue, don't idle
	skipDelay bool // a RequestUpdate arrived mid-fetch; skip the next wait
	subs      []stateSubscriber
	nextID    uint64
}

// NewSyncLoop builds an idle loop over coll. A step or cap of zero takes
// the default.
func NewSyncLoop(coll *Collection, fetch func(*async.Token) *async.Result[[]api.Thread], step, cap time.Duration) *SyncLoop {
	if step <= 0 {
		step = DefaultStep
	}
	if cap <= 0 {
		cap = DefaultCap
	}
	return &SyncLoop{
		coll:  coll,
		fetch: fetch,
		step:  step,
		max:   cap,
	}
}

// State returns the loop's current phase.
func (l *SyncLoop) State() LoopState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Subscribe registers cb to run on every phase change.
func (l *SyncLoop) Subscribe(cb func(LoopState)) (cancel func()) {
	l.mu.Lock()
	l.nextID++
	id := l.nextID
	l.subs = append(l.subs, stateSubscriber{id: id, cb: cb})
	l.mu.Unlock()

	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		for i, s := range l.subs {
			if s.id == id {
				l.subs = append(l.subs[:i], l.subs[i+1:]...)
				return
			}
		}
	}
}

// RequestUpdate asks for a fresh fetch as soon as possible. From Idle it
// starts the loop; during a wait it cancels the current token and
// refetches immediately with a fresh one; during a fetch it zeroes the
// pending delay so the loop proceeds without waiting once the in-flight
// fetch completes.
func (l *SyncLoop) RequestUpdate() {
	l.mu.Lock()
	switch l.state {
	case Idle:
		l.state = Fetching
		l.token = async.NewToken()
		l.delay = 0
		l.restart = false
		l.skipDelay = false
		subs := l.subsLocked()
		l.mu.Unlock()
		notifyState(subs, Fetching)
		go l.run()
	case Fetching:
		l.skipDelay = true
		l.mu.Unlock()
	case Delaying, WaitingForActivation:
		l.restart = true
		l.delay = 0
		tok := l.token
		l.mu.Unlock()
		if tok != nil {
			tok.Cancel()
		}
	}
}

// Cancel aborts the current cycle's token and parks the loop in Idle. No
// further scheduling happens until the next RequestUpdate.
func (l *SyncLoop) Cancel() {
	l.mu.Lock()
	if l.state == Idle {
		l.mu.Unlock()
		return
	}
	l.restart = false
	tok := l.token
	l.mu.Unlock()
	if tok != nil {
		tok.Cancel()
	}
}

// run is the loop body: an explicit perpetual task with a state
// variable. Each iteration is one cycle; beginCycle decides whether a
// canceled token meant a debounced restart or a stop.
func (l *SyncLoop) run() {
	for {
		tok, ok := l.beginCycle()
		if !ok {
			return
		}

		final := l.fetch(tok).Wait()

		if tok.Canceled() {
			// Outcome suppressed; remote side effects already
			// committed by the in-flight call stand.
			continue
		}

		switch final.State {
		case async.Succeeded:
			l.coll.Replace(final.Value)
		case async.Failed:
			// Transient by policy: the next cycle retries on schedule.
			log.Printf("thread sync failed: %v", final.Err)
		}

		if !l.coll.Active() {
			if _, ok := l.scheduleWait(WaitingForActivation); !ok {
				continue
			}
			select {
			case <-l.coll.Activation():
			case <-tok.Done():
			}
			continue
		}

		wait, ok := l.scheduleWait(Delaying)
		if !ok {
			continue
		}
		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-tok.Done():
			timer.Stop()
		}
	}
}

// beginCycle enters Fetching and hands out the cycle's token. A token
// canceled by RequestUpdate (restart set) is replaced by a fresh one; a
// token canceled by Cancel parks the loop and ends the goroutine.
func (l *SyncLoop) beginCycle() (*async.Token, bool) {
	l.mu.Lock()
	if l.token == nil {
		l.token = async.NewToken()
	} else if l.token.Canceled() {
		if !l.restart {
			l.state = Idle
			l.token = nil
			l.delay = 0
			l.skipDelay = false
			subs := l.subsLocked()
			l.mu.Unlock()
			notifyState(subs, Idle)
			return nil, false
		}
		l.restart = false
		l.skipDelay = false
		l.delay = 0
		l.token = async.NewToken()
	}
	tok := l.token
	changed := l.state != Fetching
	l.state = Fetching
	subs := l.subsLocked()
	l.mu.Unlock()
	if changed {
		notifyState(subs, Fetching)
	}
	return tok, true
}

// scheduleWait moves the loop from Fetching into s and returns the
// backoff to wait out. The skip flag set by a mid-fetch RequestUpdate
// is consumed under the same lock that publishes the new state, so a
// request can never be stranded behind a wait it arrived before: when
// the flag is pending the loop stays in Fetching and scheduleWait
// returns false. For Delaying the backoff advances additively,
// min(prior+step, cap); the advance is outcome-neutral, only
// activation waits and explicit requests reset it.
func (l *SyncLoop) scheduleWait(s LoopState) (time.Duration, bool) {
	l.mu.Lock()
	if l.skipDelay {
		l.skipDelay = false
		l.delay = 0
		l.mu.Unlock()
		return 0, false
	}
	var wait time.Duration
	if s == Delaying {
		l.delay += l.step
		if l.delay > l.max {
			l.delay = l.max
		}
		wait = l.delay
	} else {
		l.delay = 0
	}
	changed := l.state != s
	l.state = s
	subs := l.subsLocked()
	l.mu.Unlock()
	if changed {
		notifyState(subs, s)
	}
	return wait, true
}

func (l *SyncLoop) subsLocked() []stateSubscriber {
	subs := make([]stateSubscriber, len(l.subs))
	copy(subs, l.subs)
	return subs
}

func notifyState(subs []stateSubscriber, s LoopState) {
	for _, sub := range subs {
		sub.cb(s)
	}
}
