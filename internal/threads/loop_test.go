package threads

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/finch-chat/finch/internal/api"
	"github.com/finch-chat/finch/internal/async"
)

// fakeFetcher produces controllable thread fetches and records how many
// are in flight at once.
type fakeFetcher struct {
	mu        sync.Mutex
	started   int64
	inFlight  int64
	maxSeen   int64
	blockCh   chan struct{} // non-nil: fetches block until it closes
	failNext  bool
	threads   []api.Thread
	startMark chan struct{} // receives one token per fetch start
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		threads:   []api.Thread{{ID: "t1"}},
		startMark: make(chan struct{}, 64),
	}
}

func (f *fakeFetcher) fetch(tok *async.Token) *async.Result[[]api.Thread] {
	res := async.New(func(c *async.Controller[[]api.Thread]) ([]api.Thread, error) {
		// A fetch whose token is already canceled is an aborting
		// remnant, not an outstanding fetch.
		counted := !c.Token().Canceled()
		f.mu.Lock()
		f.started++
		if counted {
			f.inFlight++
			if f.inFlight > f.maxSeen {
				f.maxSeen = f.inFlight
			}
		}
		block := f.blockCh
		fail := f.failNext
		f.failNext = false
		threads := f.threads
		f.mu.Unlock()

		select {
		case f.startMark <- struct{}{}:
		default:
		}

		if block != nil {
			select {
			case <-block:
			case <-c.Token().Done():
			}
		}

		f.mu.Lock()
		if counted {
			f.inFlight--
		}
		f.mu.Unlock()

		if c.Token().Canceled() {
			return nil, nil
		}
		if fail {
			return nil, errors.New("transient")
		}
		return threads, nil
	})
	if tok != nil {
		tok.OnCancel(res.Cancel)
	}
	return res
}

func (f *fakeFetcher) startedCount() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.started
}

func (f *fakeFetcher) maxInFlight() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxSeen
}

func waitLoopState(t *testing.T, l *SyncLoop, want LoopState) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if l.State() == want {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("loop state = %v, want %v", l.State(), want)
}

func TestSyncLoop_RequestUpdateFetchesAndDelays(t *testing.T) {
	f := newFakeFetcher()
	coll := NewCollection()
	coll.SetActive(true)
	l := NewSyncLoop(coll, f.fetch, time.Hour, time.Hour)

	l.RequestUpdate()
	<-f.startMark
	waitLoopState(t, l, Delaying)

	if got := coll.Snapshot(); len(got) != 1 || got[0].ID != "t1" {
		t.Fatalf("collection = %+v, want fetched threads", got)
	}
	if n := f.startedCount(); n != 1 {
		t.Fatalf("fetches = %d, want 1 while delaying", n)
	}
}

func TestSyncLoop_BackoffSequenceAdvancesAndCaps(t *testing.T) {
	l := NewSyncLoop(NewCollection(), nil, time.Second, 3*time.Second)

	var waits []time.Duration
	for i := 0; i < 5; i++ {
		wait, ok := l.scheduleWait(Delaying)
		if !ok {
			t.Fatalf("wait %d skipped with no pending request", i)
		}
		waits = append(waits, wait)
	}
	want := []time.Duration{time.Second, 2 * time.Second, 3 * time.Second, 3 * time.Second, 3 * time.Second}
	for i := range want {
		if waits[i] != want[i] {
			t.Fatalf("wait %d = %v, want %v (sequence %v)", i, waits[i], want[i], waits)
		}
	}

	// An activation wait resets the backoff to the first step.
	if _, ok := l.scheduleWait(WaitingForActivation); !ok {
		t.Fatal("activation wait skipped with no pending request")
	}
	if got, _ := l.scheduleWait(Delaying); got != time.Second {
		t.Fatalf("wait after reset = %v, want step", got)
	}
}

func TestSyncLoop_PendingRequestSkipsWaitEntry(t *testing.T) {
	l := NewSyncLoop(NewCollection(), nil, time.Second, 3*time.Second)
	l.scheduleWait(Delaying)

	l.mu.Lock()
	l.skipDelay = true
	l.mu.Unlock()

	if _, ok := l.scheduleWait(Delaying); ok {
		t.Fatal("wait entered despite a pending update request")
	}
	if got, _ := l.scheduleWait(Delaying); got != time.Second {
		t.Fatalf("wait after skipped entry = %v, want step", got)
	}
}

func TestSyncLoop_DelayElapsesIntoNextFetch(t *testing.T) {
	f := newFakeFetcher()
	coll := NewCollection()
	coll.SetActive(true)
	l := NewSyncLoop(coll, f.fetch, 20*time.Millisecond, 100*time.Millisecond)
	defer l.Cancel()

	l.RequestUpdate()
	<-f.startMark
	select {
	case <-f.startMark:
	case <-time.After(2 * time.Second):
		t.Fatal("second fetch never started after the delay elapsed")
	}
}

func TestSyncLoop_CancelDuringDelayPreventsNextFetch(t *testing.T) {
	f := newFakeFetcher()
	coll := NewCollection()
	coll.SetActive(true)
	l := NewSyncLoop(coll, f.fetch, time.Hour, time.Hour)

	l.RequestUpdate()
	<-f.startMark
	waitLoopState(t, l, Delaying)

	l.Cancel()
	waitLoopState(t, l, Idle)

	time.Sleep(30 * time.Millisecond)
	if n := f.startedCount(); n != 1 {
		t.Fatalf("fetches = %d, want 1 after cancel during delay", n)
	}
}

func TestSyncLoop_CancelDuringFetchSuppressesResult(t *testing.T) {
	f := newFakeFetcher()
	f.blockCh = make(chan struct{})
	coll := NewCollection()
	coll.SetActive(true)
	l := NewSyncLoop(coll, f.fetch, time.Hour, time.Hour)

	l.RequestUpdate()
	<-f.startMark
	l.Cancel()
	waitLoopState(t, l, Idle)

	close(f.blockCh)
	time.Sleep(30 * time.Millisecond)
	if got := coll.Snapshot(); got != nil {
		t.Fatalf("collection = %+v, want untouched after canceled fetch", got)
	}
	if l.State() != Idle {
		t.Fatalf("state = %v, want Idle with no rescheduling", l.State())
	}
}

func TestSyncLoop_RequestDuringFetchSkipsDelay(t *testing.T) {
	f := newFakeFetcher()
	f.blockCh = make(chan struct{})
	coll := NewCollection()
	coll.SetActive(true)
	l := NewSyncLoop(coll, f.fetch, time.Hour, time.Hour)
	defer l.Cancel()

	l.RequestUpdate()
	<-f.startMark

	l.RequestUpdate() // mid-fetch: zero the pending delay
	f.mu.Lock()
	release := f.blockCh
	f.blockCh = nil
	f.mu.Unlock()
	close(release)

	select {
	case <-f.startMark:
	case <-time.After(2 * time.Second):
		t.Fatal("follow-up fetch never started despite mid-fetch request")
	}
}

// Collection subscribers run in the loop goroutine after a fetch lands
// and before the loop settles into its wait. A request issued from
// there must refetch immediately rather than wait out the backoff.
func TestSyncLoop_RequestBeforeWaitEntryRefetchesImmediately(t *testing.T) {
	f := newFakeFetcher()
	coll := NewCollection()
	coll.SetActive(true)
	l := NewSyncLoop(coll, f.fetch, time.Hour, time.Hour)
	defer l.Cancel()

	var once sync.Once
	unsub := coll.Subscribe(func([]api.Thread) {
		once.Do(l.RequestUpdate)
	})
	defer unsub()

	l.RequestUpdate()
	<-f.startMark

	select {
	case <-f.startMark:
	case <-time.After(2 * time.Second):
		t.Fatal("follow-up fetch never started after a request beat the wait")
	}
}

func TestSyncLoop_RequestDuringDelayRestartsImmediately(t *testing.T) {
	f := newFakeFetcher()
	coll := NewCollection()
	coll.SetActive(true)
	l := NewSyncLoop(coll, f.fetch, time.Hour, time.Hour)
	defer l.Cancel()

	l.RequestUpdate()
	<-f.startMark
	waitLoopState(t, l, Delaying)

	l.RequestUpdate()
	select {
	case <-f.startMark:
	case <-time.After(2 * time.Second):
		t.Fatal("fetch never restarted after request during delay")
	}
}

func TestSyncLoop_InactiveWaitsForActivation(t *testing.T) {
	f := newFakeFetcher()
	coll := NewCollection()
	l := NewSyncLoop(coll, f.fetch, time.Hour, time.Hour)
	defer l.Cancel()

	l.RequestUpdate()
	<-f.startMark
	waitLoopState(t, l, WaitingForActivation)

	time.Sleep(30 * time.Millisecond)
	if n := f.startedCount(); n != 1 {
		t.Fatalf("fetches = %d, want no polling while unwatched", n)
	}

	coll.SetActive(true)
	select {
	case <-f.startMark:
	case <-time.After(2 * time.Second):
		t.Fatal("activation did not restart the loop")
	}
}

func TestSyncLoop_FailureIsNeutral(t *testing.T) {
	f := newFakeFetcher()
	f.failNext = true
	coll := NewCollection()
	coll.SetActive(true)
	l := NewSyncLoop(coll, f.fetch, 10*time.Millisecond, 50*time.Millisecond)
	defer l.Cancel()

	l.RequestUpdate()
	<-f.startMark

	// The failed fetch must not stop the loop; the next cycle retries.
	select {
	case <-f.startMark:
	case <-time.After(2 * time.Second):
		t.Fatal("loop stopped after a transient failure")
	}
	if got := coll.Snapshot(); got != nil {
		t.Fatalf("collection = %+v, want untouched by the failed fetch", got)
	}
}

func TestSyncLoop_SingleFlightUnderChurn(t *testing.T) {
	f := newFakeFetcher()
	coll := NewCollection()
	coll.SetActive(true)
	l := NewSyncLoop(coll, f.fetch, time.Millisecond, 5*time.Millisecond)

	var wg sync.WaitGroup
	var stop atomic.Bool
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for !stop.Load() {
				if n%2 == 0 {
					l.RequestUpdate()
				} else {
					l.Cancel()
				}
				time.Sleep(time.Duration(n+1) * time.Millisecond)
			}
		}(i)
	}

	time.Sleep(300 * time.Millisecond)
	stop.Store(true)
	wg.Wait()
	l.Cancel()
	waitLoopState(t, l, Idle)

	if max := f.maxInFlight(); max > 1 {
		t.Fatalf("max concurrent fetches = %d, want at most 1", max)
	}
}

func TestSyncLoop_CancelIdempotentFromIdle(t *testing.T) {
	l := NewSyncLoop(NewCollection(), newFakeFetcher().fetch, time.Hour, time.Hour)
	l.Cancel()
	l.Cancel()
	if l.State() != Idle {
		t.Fatalf("state = %v, want Idle", l.State())
	}
}
