package terrastream

import (
	"container/list"
)

// CacheItem is a handle to one entry tracked by a Cache.
type CacheItem struct {
	owner ResourceID
	size  int
	cache *Cache
	elem  *list.Element
}

func (i *CacheItem) Size() int {
	return i.size
}

// Cache bounds the total size of the items registered in it. Items are
// kept in touch order; when an insert would exceed the capacity the least
// recently touched items are evicted first. Eviction hands the owner
// handle to the evict function, with the item already unlinked, so the
// owner must not call Remove for it.
type Cache struct {
	name     string
	capacity int
	used     int
	order    *list.List
	evict    func(owner ResourceID)

	evictions int
}

func NewCache(name string, capacity int, evict func(owner ResourceID)) *Cache {
	return &Cache{
		name:     name,
		capacity: capacity,
		order:    list.New(),
		evict:    evict,
	}
}

// Insert registers an item of the given size for owner. Items larger than
// the whole capacity are still accepted once everything else is gone.
func (c *Cache) Insert(owner ResourceID, size int) *CacheItem {
	for c.order.Len() > 0 && c.used+size > c.capacity {
		c.evictOldest()
	}

	item := &CacheItem{owner: owner, size: size, cache: c}
	item.elem = c.order.PushFront(item)
	c.used += size
	return item
}

// Touch marks item as the most recently used one.
func (c *Cache) Touch(item *CacheItem) {
	if item == nil || item.cache != c {
		return
	}
	c.order.MoveToFront(item.elem)
}

// Remove drops item without calling the evict function.
func (c *Cache) Remove(item *CacheItem) {
	if item == nil || item.cache != c {
		return
	}
	c.unlink(item)
}

// SetCapacity changes the capacity, evicting immediately if needed.
func (c *Cache) SetCapacity(capacity int) {
	c.capacity = capacity
	for c.order.Len() > 0 && c.used > c.capacity {
		c.evictOldest()
	}
}

// Clear evicts every item.
func (c *Cache) Clear() {
	for c.order.Len() > 0 {
		c.evictOldest()
	}
}

func (c *Cache) evictOldest() {
	item := c.order.Back().Value.(*CacheItem)
	c.unlink(item)
	c.evictions++
	if c.evict != nil {
		c.evict(item.owner)
	}
}

func (c *Cache) unlink(item *CacheItem) {
	c.order.Remove(item.elem)
	c.used -= item.size
	item.cache = nil
	item.elem = nil
}

func (c *Cache) Name() string {
	return c.name
}

func (c *Cache) Used() int {
	return c.used
}

func (c *Cache) Capacity() int {
	return c.capacity
}

func (c *Cache) Len() int {
	return c.order.Len()
}

// Evictions is the number of items evicted under pressure so far.
func (c *Cache) Evictions() int {
	return c.evictions
}
