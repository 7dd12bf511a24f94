// Package cache holds query results that were too large to send in one response so they can
// be paged later without re-running the query.
package cache

import (
	"container/list"
	"errors"
	"sync"
	"time"

	"github.com/rahul/exoscope/internal/render"
	"github.com/rahul/exoscope/internal/store"
)

const (
	DefaultCapacity = 100
	DefaultTTL      = time.Hour
	PageSize        = 10
)

// ErrNotFound means the identifier is unknown or its entry expired.
var ErrNotFound = errors.New("query not found or expired")

// Clock returns the current time. Tests substitute a controllable clock.
type Clock func() time.Time

// Entry is a cached result bundle. It is never mutated after insertion.
type Entry struct {
	Key        string           `json:"key"`
	Columns    []string         `json:"columns"`
	Data       []store.Row      `json:"data"`
	Plot       *render.Artifact `json:"plot,omitempty"`
	Table      string           `json:"table"`
	Message    string           `json:"message"`
	InsertedAt time.Time        `json:"inserted_at"`
}

type element struct {
	key   string
	entry Entry
}

// ResultCache is a TTL-expiring LRU store guarded by a single mutex.
type ResultCache struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	now      Clock
	items    map[string]*list.Element
	lru      *list.List
}

// New creates a cache. Non-positive capacity or ttl fall back to the defaults; a nil clock
// uses time.Now.
func New(capacity int, ttl time.Duration, clock Clock) *ResultCache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if clock == nil {
		clock = time.Now
	}
	return &ResultCache{
		capacity: capacity,
		ttl:      ttl,
		now:      clock,
		items:    make(map[string]*list.Element, capacity),
		lru:      list.New(),
	}
}

// Get returns the entry for key and marks it most recently used. An expired entry is
// removed and reported as a miss.
func (c *ResultCache) Get(key string) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		return Entry{}, false
	}

	el := elem.Value.(*element)
	if c.expired(el.entry) {
		c.lru.Remove(elem)
		delete(c.items, key)
		return Entry{}, false
	}

	c.lru.MoveToFront(elem)
	return el.entry, true
}

// Set stores entry under key. A new key at capacity evicts the least recently used entry
// first, whether or not it has expired.
func (c *ResultCache) Set(key string, entry Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry.Key = key
	entry.InsertedAt = c.now()

	if elem, ok := c.items[key]; ok {
		c.lru.MoveToFront(elem)
		elem.Value.(*element).entry = entry
		return
	}

	if c.lru.Len() >= c.capacity {
		if oldest := c.lru.Back(); oldest != nil {
			c.lru.Remove(oldest)
			delete(c.items, oldest.Value.(*element).key)
		}
	}

	c.items[key] = c.lru.PushFront(&element{key: key, entry: entry})
}

// PurgeExpired drops every expired entry and returns how many were removed.
func (c *ResultCache) PurgeExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for elem := c.lru.Back(); elem != nil; {
		prev := elem.Prev()
		el := elem.Value.(*element)
		if c.expired(el.entry) {
			c.lru.Remove(elem)
			delete(c.items, el.key)
			removed++
		}
		elem = prev
	}
	return removed
}

// Len returns the number of entries, expired ones included until they are touched or purged.
func (c *ResultCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

func (c *ResultCache) expired(e Entry) bool {
	return !c.now().Before(e.InsertedAt.Add(c.ttl))
}
