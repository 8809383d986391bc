package threads

import (
	"sync"

	"github.com/finch-chat/finch/internal/api"
)

type subscriber struct {
	id uint64
	cb func([]api.Thread)
}

// Collection holds the live, ordered set of message threads plus the
// activation flag the presentation layer toggles while its thread view
// is visible. Contents are written only by the sync loop.
type Collection struct {
	mu        sync.Mutex
	threads   []api.Thread
	active    bool
	activated chan struct{}
	subs      []subscriber
	nextID    uint64
}

// NewCollection returns an empty, inactive collection.
func NewCollection() *Collection {
	return &Collection{}
}

// SetActive toggles the activation flag. The inactive-to-active edge
// fires the activation signal exactly once.
func (c *Collection) SetActive(active bool) {
	c.mu.Lock()
	edge := active && !c.active
	c.active = active
	var signal chan struct{}
	if edge && c.activated != nil {
		signal = c.activated
		c.activated = nil
	}
	c.mu.Unlock()

	if signal != nil {
		close(signal)
	}
}

// Active reports whether the collection is currently watched.
func (c *Collection) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// Activation returns a channel closed on the next inactive-to-active
// transition. If the collection is already active the channel is closed
// immediately: the edge the caller was waiting for has already passed.
func (c *Collection) Activation() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active {
		ready := make(chan struct{})
		close(ready)
		return ready
	}
	if c.activated == nil {
		c.activated = make(chan struct{})
	}
	return c.activated
}

// Replace installs a freshly fetched thread set and notifies
// subscribers. Only the sync loop calls this.
func (c *Collection) Replace(threads []api.Thread) {
	c.mu.Lock()
	c.threads = cloneThreads(threads)
	snapshot := cloneThreads(c.threads)
	subs := make([]subscriber, len(c.subs))
	copy(subs, c.subs)
	c.mu.Unlock()

	for _, s := range subs {
		s.cb(snapshot)
	}
}

// Clear drops all threads and deactivates, used on session reset so no
// stale session data survives into the next one.
func (c *Collection) Clear() {
	c.mu.Lock()
	c.threads = nil
	c.active = false
	subs := make([]subscriber, len(c.subs))
	copy(subs, c.subs)
	c.mu.Unlock()

	for _, s := range subs {
		s.cb(nil)
	}
}

// Snapshot returns a copy of the current threads.
func (c *Collection) Snapshot() []api.Thread {
	c.mu.Lock()
	defer c.mu.Unlock()
	return cloneThreads(c.threads)
}

// Subscribe registers cb to run after every content change. The handle
// removes the registration.
func (c *Collection) Subscribe(cb func([]api.Thread)) (cancel func()) {
	c.mu.Lock()
	c.nextID++
	id := c.nextID
	c.subs = append(c.subs, subscriber{id: id, cb: cb})
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		for i, s := range c.subs {
			if s.id == id {
				c.subs = append(c.subs[:i], c.subs[i+1:]...)
				return
			}
		}
	}
}

func cloneThreads(threads []api.Thread) []api.Thread {
	if len(threads) == 0 {
		return nil
	}
	dup := make([]api.Thread, len(threads))
	copy(dup, threads)
	return dup
}
