// Package policycache holds the most recent policy text and keeps it fresh.
package policycache

import "sync"

// Cache is the single owner of the current policy text. Writes replace the
// whole value; readers always observe a complete snapshot.
type Cache struct {
	mu   sync.RWMutex
	text string
}

// New returns an empty cache. The empty value means "not yet fetched".
func New() *Cache {
	return &Cache{}
}

func (c *Cache) Get() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.text
}

func (c *Cache) Set(text string) {
	c.mu.Lock()
	c.text = text
	c.mu.Unlock()
}
