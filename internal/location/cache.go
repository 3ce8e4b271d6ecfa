package location

import "sync"

// bucketKey identifies one tolerance bucket.
type bucketKey struct {
	lat, lon int64
}

// lruCache is a small thread-safe LRU of bucket → location ID. Moored
// instruments emit thousands of rows at the same position, so nearly every
// lookup after the first is a hit.
type lruCache struct {
	maxEntries int
	mu         sync.Mutex
	entries    map[bucketKey]*entry
	head       *entry // most recently used
	tail       *entry // least recently used
}

type entry struct {
	key  bucketKey
	id   int64
	prev *entry
	next *entry
}

func newLRUCache(maxEntries int) *lruCache {
	return &lruCache{
		maxEntries: maxEntries,
		entries:    make(map[bucketKey]*entry),
	}
}

func (c *lruCache) get(key bucketKey) (int64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return 0, false
	}
	c.moveToFront(e)
	return e.id, true
}

func (c *lruCache) put(key bucketKey, id int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.id = id
		c.moveToFront(e)
		return
	}

	e := &entry{key: key, id: id}
	c.entries[key] = e
	c.addToFront(e)

	if len(c.entries) > c.maxEntries {
		c.evictTail()
	}
}

func (c *lruCache) moveToFront(e *entry) {
	if e == c.head {
		return
	}
	c.remove(e)
	c.addToFront(e)
}

func (c *lruCache) addToFront(e *entry) {
	e.next = c.head
	e.prev = nil
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *lruCache) remove(e *entry) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
}

func (c *lruCache) evictTail() {
	if c.tail == nil {
		return
	}
	delete(c.entries, c.tail.key)
	c.remove(c.tail)
}
