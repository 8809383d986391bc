package app

import (
	"sync"
	"testing"
	"time"

	"github.com/finch-chat/finch/internal/api"
	"github.com/finch-chat/finch/internal/async"
	"github.com/finch-chat/finch/internal/photocache"
	"github.com/finch-chat/finch/internal/threads"
)

type nullStore struct{}

func (nullStore) LoadPhotoIndex() (map[string]time.Time, error) { return nil, nil }
func (nullStore) SavePhotoIndex(map[string]time.Time) error     { return nil }
func (nullStore) LoadPhoto(username string) ([]byte, error)     { return nil, nil }
func (nullStore) SavePhoto(username string, data []byte) error  { return nil }
func (nullStore) DeletePhoto(username string) error             { return nil }

func TestWatchPhotosFetchesEachParticipantOnce(t *testing.T) {
	photos, err := photocache.NewWorkQueue(nullStore{})
	if err != nil {
		t.Fatalf("NewWorkQueue: %v", err)
	}
	defer photos.Close()

	var mu sync.Mutex
	fetched := map[string]int{}
	fetch := func(username string) *async.Result[[]byte] {
		mu.Lock()
		fetched[username]++
		mu.Unlock()
		return async.Resolved([]byte(username))
	}

	coll := threads.NewCollection()
	stop := watchPhotos(coll, photos, fetch)
	defer stop()

	coll.Replace([]api.Thread{
		{ID: "t1", Participants: []string{"wren", "jay"}},
	})
	coll.Replace([]api.Thread{
		{ID: "t1", Participants: []string{"wren", "jay"}},
		{ID: "t2", Participants: []string{"wren", "robin"}},
	})
	photos.Flush()

	mu.Lock()
	defer mu.Unlock()
	for _, username := range []string{"wren", "jay", "robin"} {
		if fetched[username] != 1 {
			t.Errorf("fetch count for %s = %d, want 1", username, fetched[username])
		}
	}
}

func TestWatchPhotosStopDetaches(t *testing.T) {
	photos, err := photocache.NewWorkQueue(nullStore{})
	if err != nil {
		t.Fatalf("NewWorkQueue: %v", err)
	}
	defer photos.Close()

	var mu sync.Mutex
	calls := 0
	fetch := func(username string) *async.Result[[]byte] {
		mu.Lock()
		calls++
		mu.Unlock()
		return async.Resolved([]byte{})
	}

	coll := threads.NewCollection()
	stop := watchPhotos(coll, photos, fetch)
	stop()

	coll.Replace([]api.Thread{{ID: "t1", Participants: []string{"wren"}}})
	photos.Flush()

	mu.Lock()
	defer mu.Unlock()
	if calls != 0 {
		t.Fatalf("fetch calls = %d after stop, want 0", calls)
	}
}
