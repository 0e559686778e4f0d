package refdata

import (
	"container/list"
	"time"
)

type cacheEntry struct {
	key     string
	values  []any
	expires time.Time
}

// lruCache is a size-bounded LRU whose entries also expire. Not safe for
// concurrent use; Manager guards it.
type lruCache struct {
	items map[string]*list.Element
	order *list.List
	size  int
}

func newLruCache(size int) *lruCache {
	return &lruCache{
		items: make(map[string]*list.Element, size),
		order: list.New(),
		size:  size,
	}
}

func (c *lruCache) add(key string, values []any, expires time.Time) {
	entry := cacheEntry{key: key, values: values, expires: expires}
	if elem, ok := c.items[key]; ok {
		elem.Value = entry
		c.order.MoveToBack(elem)
		return
	}
	c.items[key] = c.order.PushBack(entry)
	if c.size > 0 && len(c.items) > c.size {
		front := c.order.Front()
		c.order.Remove(front)
		delete(c.items, front.Value.(cacheEntry).key)
	}
}

// get returns a live entry. An expired entry is removed and reported missing.
func (c *lruCache) get(key string, now time.Time) ([]any, bool) {
	elem, ok := c.items[key]
	if !ok {
		return nil, false
	}
	entry := elem.Value.(cacheEntry)
	if !entry.expires.IsZero() && !now.Before(entry.expires) {
		c.order.Remove(elem)
		delete(c.items, key)
		return nil, false
	}
	c.order.MoveToBack(elem)
	return entry.values, true
}

func (c *lruCache) remove(key string) {
	elem, ok := c.items[key]
	if !ok {
		return
	}
	delete(c.items, key)
	c.order.Remove(elem)
}

func (c *lruCache) clear() {
	c.items = make(map[string]*list.Element, c.size)
	c.order.Init()
}

func (c *lruCache) len() int {
	return len(c.items)
}
