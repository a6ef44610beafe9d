package cache

import (
	"container/list"
	"sync"
	"time"
)

type entry struct {
	key        string
	value      []byte
	expiration time.Time
}

// VariantCache is an LRU byte cache in front of the artifact store. Keys are
// relative artifact paths (partition/filename); values are whole encoded
// images. Entries expire after a fixed TTL and oversized payloads are never
// admitted, so one large original cannot evict a screenful of thumbnails.
type VariantCache struct {
	capacity      int
	ttl           time.Duration
	maxEntryBytes int64

	mu      sync.Mutex
	items   map[string]*list.Element
	lruList *list.List

	hitCount      int64
	missCount     int64
	evictionCount int64
}

func NewVariantCache(capacity int, ttl time.Duration, maxEntryBytes int64) *VariantCache {
	return &VariantCache{
		capacity:      capacity,
		ttl:           ttl,
		maxEntryBytes: maxEntryBytes,
		items:         make(map[string]*list.Element),
		lruList:       list.New(),
	}
}

// Set stores value under key. Payloads larger than the per-entry limit are
// silently skipped.
func (c *VariantCache) Set(key string, value []byte) {
	if c.maxEntryBytes > 0 && int64(len(value)) > c.maxEntryBytes {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	expiration := time.Now().Add(c.ttl)

	if elem, exists := c.items[key]; exists {
		c.lruList.MoveToFront(elem)
		e := elem.Value.(*entry)
		e.value = value
		e.expiration = expiration
		return
	}

	elem := c.lruList.PushFront(&entry{key: key, value: value, expiration: expiration})
	c.items[key] = elem

	if c.lruList.Len() > c.capacity {
		c.evict()
	}
}

func (c *VariantCache) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, exists := c.items[key]
	if !exists {
		c.missCount++
		return nil, false
	}

	e := elem.Value.(*entry)
	if time.Now().After(e.expiration) {
		c.removeElement(elem)
		c.missCount++
		return nil, false
	}

	c.lruList.MoveToFront(elem)
	c.hitCount++
	return e.value, true
}

func (c *VariantCache) evict() {
	if elem := c.lruList.Back(); elem != nil {
		c.removeElement(elem)
		c.evictionCount++
	}
}

func (c *VariantCache) removeElement(elem *list.Element) {
	c.lruList.Remove(elem)
	delete(c.items, elem.Value.(*entry).key)
}

func (c *VariantCache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lruList.Len()
}

type Stats struct {
	Size          int     `json:"size"`
	Capacity      int     `json:"capacity"`
	HitCount      int64   `json:"hit_count"`
	MissCount     int64   `json:"miss_count"`
	HitRate       float64 `json:"hit_rate"`
	EvictionCount int64   `json:"eviction_count"`
}

func (c *VariantCache) GetStats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	total := c.hitCount + c.missCount
	hitRate := 0.0
	if total > 0 {
		hitRate = float64(c.hitCount) / float64(total) * 100
	}

	return Stats{
		Size:          c.lruList.Len(),
		Capacity:      c.capacity,
		HitCount:      c.hitCount,
		MissCount:     c.missCount,
		HitRate:       hitRate,
		EvictionCount: c.evictionCount,
	}
}
