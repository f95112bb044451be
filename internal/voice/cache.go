// Package voice implements the console's voice pipeline: speech capture with
// conversation-mode auto-restart, speech synthesis with a bounded audio
// cache, text normalization for clearer pronunciation, and audio playback.
package voice

import (
	"sync"
	"time"
)

// AudioCache is a bounded LRU cache of synthesized audio keyed by a hash of
// text plus voice configuration. Text-to-audio is deterministic enough that
// entries never go stale on content; they are evicted only on capacity or an
// optional time-to-live. The cache is content-addressed and process-wide, so
// it survives session switches.
type AudioCache struct {
	maxSize int
	ttl     time.Duration
	cache   map[string]*audioNode
	head    *audioNode
	tail    *audioNode
	now     func() time.Time
	mutex   sync.Mutex
}

// audioNode is a node in the doubly-linked list backing the LRU order.
type audioNode struct {
	key      string
	data     []byte
	inserted time.Time
	prev     *audioNode
	next     *audioNode
}

// DefaultAudioCacheSize bounds the cache when no size is configured.
const DefaultAudioCacheSize = 50

// NewAudioCache creates an audio cache holding at most maxSize entries. A ttl
// of zero disables time-based expiry.
func NewAudioCache(maxSize int, ttl time.Duration) *AudioCache {
	if maxSize <= 0 {
		maxSize = DefaultAudioCacheSize
	}

	head := &audioNode{}
	tail := &audioNode{}
	head.next = tail
	tail.prev = head

	return &AudioCache{
		maxSize: maxSize,
		ttl:     ttl,
		cache:   make(map[string]*audioNode),
		head:    head,
		tail:    tail,
		now:     time.Now,
	}
}

// Get retrieves cached audio and marks it as recently used. An entry past its
// time-to-live is removed and reported as a miss.
func (c *AudioCache) Get(key string) ([]byte, bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	node, exists := c.cache[key]
	if !exists {
		return nil, false
	}

	if c.ttl > 0 && c.now().Sub(node.inserted) > c.ttl {
		c.removeNode(node)
		delete(c.cache, node.key)
		return nil, false
	}

	c.moveToHead(node)
	return node.data, true
}

// Set stores audio under key, evicting the least recently used entry when the
// cache is at capacity.
func (c *AudioCache) Set(key string, data []byte) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if node, exists := c.cache[key]; exists {
		node.data = data
		node.inserted = c.now()
		c.moveToHead(node)
		return
	}

	node := &audioNode{key: key, data: data, inserted: c.now()}
	c.cache[key] = node
	c.addToHead(node)

	if len(c.cache) > c.maxSize {
		c.evictLRU()
	}
}

// Len returns the current number of cached entries.
func (c *AudioCache) Len() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return len(c.cache)
}

// Clear removes all entries.
func (c *AudioCache) Clear() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.cache = make(map[string]*audioNode)
	c.head.next = c.tail
	c.tail.prev = c.head
}

// moveToHead moves a node to the head of the doubly-linked list.
// Must be called with mutex locked.
func (c *AudioCache) moveToHead(node *audioNode) {
	c.removeNode(node)
	c.addToHead(node)
}

// addToHead adds a node right after the head sentinel.
// Must be called with mutex locked.
func (c *AudioCache) addToHead(node *audioNode) {
	node.prev = c.head
	node.next = c.head.next
	c.head.next.prev = node
	c.head.next = node
}

// removeNode removes a node from the doubly-linked list.
// Must be called with mutex locked.
func (c *AudioCache) removeNode(node *audioNode) {
	node.prev.next = node.next
	node.next.prev = node.prev
}

// evictLRU removes the least recently used entry.
// Must be called with mutex locked.
func (c *AudioCache) evictLRU() {
	oldest := c.tail.prev
	if oldest == c.head {
		return
	}
	c.removeNode(oldest)
	delete(c.cache, oldest.key)
}
