// Package seen remembers recently accepted nonces so a message delivered
// twice is only handled once.
package seen

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru"
)

const DefaultSize = 4096

// Cache is a bounded, concurrency-safe set of nonces. The oldest entries are
// evicted once it is full.
type Cache struct {
	entries *lru.Cache
}

func New(size int) (*Cache, error) {
	if size <= 0 {
		size = DefaultSize
	}
	entries, err := lru.New(size)
	if err != nil {
		return nil, fmt.Errorf("failed to create seen cache: %w", err)
	}
	return &Cache{entries: entries}, nil
}

// Add records nonce and reports whether it was new.
func (c *Cache) Add(nonce [12]byte) bool {
	found, _ := c.entries.ContainsOrAdd(nonce, struct{}{})
	return !found
}

func (c *Cache) Has(nonce [12]byte) bool {
	return c.entries.Contains(nonce)
}

func (c *Cache) Len() int {
	return c.entries.Len()
}
