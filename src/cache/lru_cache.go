// Package cache provides a small TTL-bounded LRU used for LLM reply
// caching and contradiction-verdict memoization.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"
)

// CacheEntry is the persisted form of one cached value.
type CacheEntry struct {
	Value     any       `json:"value"`
	ExpiresAt time.Time `json:"expires_at"`
}

// node is a member of the intrusive recency list. head side is most
// recently used.
type node struct {
	key        string
	value      any
	expiresAt  time.Time
	prev, next *node
}

// LRUCache is a fixed-capacity cache with per-entry TTL. Safe for
// concurrent use. Expired entries are dropped lazily on Get.
type LRUCache struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	items    map[string]*node
	head     *node
	tail     *node
}

func NewLRUCache(capacity int, ttl time.Duration) *LRUCache {
	if capacity <= 0 {
		capacity = 1
	}
	return &LRUCache{
		capacity: capacity,
		ttl:      ttl,
		items:    make(map[string]*node, capacity),
	}
}

// Get returns the live value for key, refreshing its recency. An
// expired entry is removed and reported as a miss.
func (c *LRUCache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	n, ok := c.items[key]
	if !ok {
		return nil, false
	}
	if time.Now().After(n.expiresAt) {
		c.unlink(n)
		delete(c.items, key)
		return nil, false
	}
	c.moveToFront(n)
	return n.value, true
}

// Set stores value under key, restarting its TTL and evicting the
// least recently used entry when the cache is full.
func (c *LRUCache) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	expiresAt := time.Now().Add(c.ttl)
	if n, ok := c.items[key]; ok {
		n.value = value
		n.expiresAt = expiresAt
		c.moveToFront(n)
		return
	}

	n := &node{key: key, value: value, expiresAt: expiresAt}
	c.items[key] = n
	c.pushFront(n)
	if len(c.items) > c.capacity {
		c.evictOldest()
	}
}

// Clear drops every entry.
func (c *LRUCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*node, c.capacity)
	c.head, c.tail = nil, nil
}

// Len reports the number of entries, expired ones included until their
// next Get.
func (c *LRUCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Dump snapshots the cache for persistence.
func (c *LRUCache) Dump() map[string]CacheEntry {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[string]CacheEntry, len(c.items))
	for k, n := range c.items {
		out[k] = CacheEntry{Value: n.value, ExpiresAt: n.expiresAt}
	}
	return out
}

// Restore replaces the cache contents with a previous Dump, skipping
// entries that expired in the meantime.
func (c *LRUCache) Restore(dump map[string]CacheEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[string]*node, c.capacity)
	c.head, c.tail = nil, nil

	now := time.Now()
	for k, e := range dump {
		if now.After(e.ExpiresAt) {
			continue
		}
		n := &node{key: k, value: e.Value, expiresAt: e.ExpiresAt}
		c.items[k] = n
		c.pushFront(n)
		if len(c.items) > c.capacity {
			c.evictOldest()
		}
	}
}

// HashKey derives a stable cache key from arbitrary text.
func HashKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

func (c *LRUCache) pushFront(n *node) {
	n.prev = nil
	n.next = c.head
	if c.head != nil {
		c.head.prev = n
	}
	c.head = n
	if c.tail == nil {
		c.tail = n
	}
}

func (c *LRUCache) unlink(n *node) {
	if n.prev != nil {
		n.prev.next = n.next
	} else {
		c.head = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	} else {
		c.tail = n.prev
	}
	n.prev, n.next = nil, nil
}

func (c *LRUCache) moveToFront(n *node) {
	if c.head == n {
		return
	}
	c.unlink(n)
	c.pushFront(n)
}

func (c *LRUCache) evictOldest() {
	oldest := c.tail
	if oldest == nil {
		return
	}
	c.unlink(oldest)
	delete(c.items, oldest.key)
}
