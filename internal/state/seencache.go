package state

// SeenCache is a FIFO ring buffer of recently-published Post keys, bounded
// to a configured size. Both a Post's id and its URI are inserted as
// separate entries so a later lookup can match on either key.
type SeenCache struct {
	bound   int
	order   []string
	members map[string]struct{}
}

// NewSeenCache returns an empty cache bounded at size entries.
func NewSeenCache(size int) *SeenCache {
	if size < 1 {
		size = 1
	}
	return &SeenCache{
		bound:   size,
		order:   make([]string, 0, size),
		members: make(map[string]struct{}, size),
	}
}

// NewSeenCacheFrom rebuilds a cache from a persisted ordered key list,
// truncating to the most recent `size` entries if the persisted list is
// longer than the currently configured bound.
func NewSeenCacheFrom(keys []string, size int) *SeenCache {
	c := NewSeenCache(size)
	start := 0
	if len(keys) > size {
		start = len(keys) - size
	}
	for _, k := range keys[start:] {
		if k == "" {
			continue
		}
		if _, ok := c.members[k]; ok {
			continue
		}
		c.order = append(c.order, k)
		c.members[k] = struct{}{}
	}
	return c
}

// Contains reports whether key (an id or a URI) has been recorded.
func (c *SeenCache) Contains(key string) bool {
	_, ok := c.members[key]
	return ok
}

// Add inserts a key, evicting the oldest entry FIFO-style once the bound is
// exceeded. Re-adding an already-present key is a no-op.
func (c *SeenCache) Add(key string) {
	if key == "" {
		return
	}
	if _, ok := c.members[key]; ok {
		return
	}
	c.order = append(c.order, key)
	c.members[key] = struct{}{}
	for len(c.order) > c.bound {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.members, oldest)
	}
}

// Entries returns the cache's current contents in insertion order, for
// serialization.
func (c *SeenCache) Entries() []string {
	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}

// Len reports the current number of entries.
func (c *SeenCache) Len() int {
	return len(c.order)
}
