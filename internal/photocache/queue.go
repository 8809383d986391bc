// Package photocache serializes every photo-cache operation through a
// single work queue. Global ordering across all usernames keeps the
// shared on-disk index trivially crash-safe: no two operation bodies
// ever overlap, regardless of who submitted them.
package photocache

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/finch-chat/finch/internal/async"
)

// Store is the persistence collaborator for the photo cache.
type Store interface {
	LoadPhotoIndex() (map[string]time.Time, error)
	SavePhotoIndex(map[string]time.Time) error
	LoadPhoto(username string) ([]byte, error)
	SavePhoto(username string, data []byte) error
	DeletePhoto(username string) error
}

// WorkQueue executes photo-cache reads and writes strictly in
// submission order. The update index maps username to the last known
// remote update timestamp and is monotonic per key.
type WorkQueue struct {
	store Store

	// Unbounded job list so jobs may enqueue follow-up jobs (the
	// debounced index save) without ever blocking the worker.
	jobMu   sync.Mutex
	jobCond *sync.Cond
	jobList []func()
	closed  bool
	drained chan struct{}

	// Touched only from within queued jobs.
	index       map[string]time.Time
	cache       map[string][]byte
	savePending bool

	mu        sync.Mutex
	listeners map[string]map[uint64]func()
	nextID    uint64
}

// NewWorkQueue loads the persisted update index and starts the worker.
func NewWorkQueue(store Store) (*WorkQueue, error) {
	index, err := store.LoadPhotoIndex()
	if err != nil {
		return nil, fmt.Errorf("load photo index: %w", err)
	}
	if index == nil {
		index = make(map[string]time.Time)
	}
	q := &WorkQueue{
		store:     store,
		drained:   make(chan struct{}),
		index:     index,
		cache:     make(map[string][]byte),
		listeners: make(map[string]map[uint64]func()),
	}
	q.jobCond = sync.NewCond(&q.jobMu)
	go q.work()
	return q, nil
}

func (q *WorkQueue) work() {
	defer close(q.drained)
	for {
		q.jobMu.Lock()
		for len(q.jobList) == 0 && !q.closed {
			q.jobCond.Wait()
		}
		if len(q.jobList) == 0 {
			q.jobMu.Unlock()
			return
		}
		job := q.jobList[0]
		q.jobList = q.jobList[1:]
		q.jobMu.Unlock()
		job()
	}
}

// submit appends a job, preserving submission order. Jobs submitted
// after Close are dropped.
func (q *WorkQueue) submit(job func()) bool {
	q.jobMu.Lock()
	defer q.jobMu.Unlock()
	if q.closed {
		return false
	}
	q.jobList = append(q.jobList, job)
	q.jobCond.Signal()
	return true
}

// Close drains the remaining jobs and stops the worker.
func (q *WorkQueue) Close() {
	q.jobMu.Lock()
	if !q.closed {
		q.closed = true
		q.jobCond.Signal()
	}
	q.jobMu.Unlock()
	<-q.drained
}

// Flush blocks until every previously submitted operation has
// completed.
func (q *WorkQueue) Flush() {
	done := make(chan struct{})
	if !q.submit(func() { close(done) }) {
		return
	}
	<-done
}

// GetOrFetch returns the cached photo for username, or runs fetch,
// persists its result, and returns it. The operation body runs in queue
// order; canceling the returned result before its turn skips the work
// entirely.
func (q *WorkQueue) GetOrFetch(username string, fetch func() *async.Result[[]byte]) *async.Result[[]byte] {
	d := async.NewDeferred[[]byte]()
	accepted := q.submit(func() {
		d.Start(func(c *async.Controller[[]byte]) ([]byte, error) {
			if data, ok := q.cache[username]; ok {
				return data, nil
			}

			if data, err := q.store.LoadPhoto(username); err != nil {
				log.Printf("photo cache read failed for %s: %v", username, err)
			} else if data != nil {
				if c.Token().Canceled() {
					return nil, async.ErrCanceled
				}
				q.cache[username] = data
				return data, nil
			}

			c.Steps(2)
			data, err := async.Chain(c, fetch(), 1)
			if err != nil {
				return nil, err
			}
			if err := q.store.SavePhoto(username, data); err != nil {
				log.Printf("photo cache write failed for %s: %v", username, err)
			}
			c.StepDone()
			q.cache[username] = data
			return data, nil
		})
		// Hold the queue until the body finishes so operations never
		// overlap.
		d.Wait()
	})
	if !accepted {
		d.Cancel()
	}
	return d.Result
}

// RecordRemoteUpdate accepts a remote photo-change notification. Only a
// strictly newer timestamp updates the stored record, drops the cached
// entry, and notifies the username's listeners; anything else is a
// no-op.
func (q *WorkQueue) RecordRemoteUpdate(username string, ts time.Time) {
	q.submit(func() {
		if !ts.After(q.index[username]) {
			return
		}
		q.index[username] = ts
		q.evict(username)
		q.scheduleSave()
	})
}

// Invalidate drops the cached entry for username and notifies its
// listeners, without touching the update record.
func (q *WorkQueue) Invalidate(username string) {
	q.submit(func() { q.evict(username) })
}

// LastUpdate returns the recorded remote-update timestamp, observed in
// queue order.
func (q *WorkQueue) LastUpdate(username string) time.Time {
	var ts time.Time
	done := make(chan struct{})
	if !q.submit(func() {
		ts = q.index[username]
		close(done)
	}) {
		return ts
	}
	<-done
	return ts
}

// Subscribe registers an invalidation callback for username. The handle
// removes it; the registry entry itself survives as an empty set.
func (q *WorkQueue) Subscribe(username string, cb func()) (cancel func()) {
	q.mu.Lock()
	set := q.listeners[username]
	if set == nil {
		set = make(map[uint64]func())
		q.listeners[username] = set
	}
	q.nextID++
	id := q.nextID
	set[id] = cb
	q.mu.Unlock()

	return func() {
		q.mu.Lock()
		defer q.mu.Unlock()
		delete(q.listeners[username], id)
	}
}

// evict runs inside the serialized section.
func (q *WorkQueue) evict(username string) {
	delete(q.cache, username)
	if err := q.store.DeletePhoto(username); err != nil {
		log.Printf("photo cache delete failed for %s: %v", username, err)
	}

	q.mu.Lock()
	cbs := make([]func(), 0, len(q.listeners[username]))
	for _, cb := range q.listeners[username] {
		cbs = append(cbs, cb)
	}
	q.mu.Unlock()

	for _, cb := range cbs {
		cb()
	}
}

// scheduleSave queues one debounced index write. While a save is
// already queued, further calls are no-ops; the queued save persists
// whatever the index holds when its turn comes.
func (q *WorkQueue) scheduleSave() {
	if q.savePending {
		return
	}
	q.savePending = true
	q.submit(func() {
		q.savePending = false
		snapshot := make(map[string]time.Time, len(q.index))
		for k, v := range q.index {
			snapshot[k] = v
		}
		if err := q.store.SavePhotoIndex(snapshot); err != nil {
			log.Printf("photo index save failed: %v", err)
		}
	})
}
