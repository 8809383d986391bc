package app

import (
	"sync"

	"github.com/finch-chat/finch/internal/api"
	"github.com/finch-chat/finch/internal/async"
	"github.com/finch-chat/finch/internal/photocache"
	"github.com/finch-chat/finch/internal/threads"
)

// watchPhotos prefetches the avatar of every participant that appears in
// the feed. Each username is requested at most once per process; the
// cache itself handles remote invalidation. The returned func detaches
// the watcher.
func watchPhotos(coll *threads.Collection, photos *photocache.WorkQueue, fetch func(username string) *async.Result[[]byte]) func() {
	var mu sync.Mutex
	requested := make(map[string]bool)

	return coll.Subscribe(func(ts []api.Thread) {
		for _, th := range ts {
			for _, username := range th.Participants {
				mu.Lock()
				seen := requested[username]
				requested[username] = true
				mu.Unlock()
				if seen {
					continue
				}
				photos.GetOrFetch(username, func() *async.Result[[]byte] {
					return fetch(username)
				})
			}
		}
	})
}
