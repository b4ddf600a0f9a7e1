// Package httpclient provides a shared, connection-pooled *http.Client for
// gist's outbound calls to embedding/chat providers, adapted from
// gavlooth-codeloom's internal/httpclient (same LRU-by-timeout design,
// trimmed to what gist actually needs).
package httpclient

import (
	"container/list"
	"net/http"
	"sync"
	"time"
)

var (
	transportOnce   sync.Once
	sharedTransport *http.Transport
)

type clientEntry struct {
	client *http.Client
}

type clientCache struct {
	maxSize int
	ll      *list.List
	entries map[int64]*list.Element
	mu      sync.Mutex
}

var cache = &clientCache{
	maxSize: 10,
	ll:      list.New(),
	entries: make(map[int64]*list.Element),
}

func getSharedTransport() *http.Transport {
	transportOnce.Do(func() {
		sharedTransport = &http.Transport{
			MaxIdleConns:          100,
			MaxIdleConnsPerHost:   10,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		}
	})
	return sharedTransport
}

// GetSharedClient returns a client for the given timeout, reusing the
// shared pooled transport and caching one client per distinct timeout value.
func GetSharedClient(timeout time.Duration) *http.Client {
	key := timeout.Milliseconds()

	cache.mu.Lock()
	if entry, ok := cache.entries[key]; ok {
		cache.ll.MoveToFront(entry)
		client := entry.Value.(*clientEntry).client
		cache.mu.Unlock()
		return client
	}
	cache.mu.Unlock()

	client := &http.Client{Timeout: timeout, Transport: getSharedTransport()}

	cache.mu.Lock()
	defer cache.mu.Unlock()
	if entry, ok := cache.entries[key]; ok {
		cache.ll.MoveToFront(entry)
		return entry.Value.(*clientEntry).client
	}

	elem := cache.ll.PushFront(&clientEntry{client: client})
	cache.entries[key] = elem

	for cache.ll.Len() > cache.maxSize {
		oldest := cache.ll.Back()
		if oldest == nil {
			break
		}
		for k, v := range cache.entries {
			if v == oldest {
				delete(cache.entries, k)
				break
			}
		}
		cache.ll.Remove(oldest)
	}

	return client
}
