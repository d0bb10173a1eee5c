// Package cache keeps recently read snapshot rows in memory for a short TTL.
package cache

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/minasamir1401/werete/internal/db"
	"github.com/minasamir1401/werete/internal/items"
)

// Snapshot caches Latest Snapshot reads per (asset, country). An empty
// country is the "all countries" read of an asset.
type Snapshot struct {
	lru *expirable.LRU[string, []db.PriceRow]

	// gen is bumped by every invalidation; a fill started under an older
	// generation may hold rows read before the write and is dropped.
	mu  sync.Mutex
	gen uint64
}

func New(size int, ttl time.Duration) *Snapshot {
	if size <= 0 {
		size = 256
	}
	return &Snapshot{lru: expirable.NewLRU[string, []db.PriceRow](size, nil, ttl)}
}

func key(asset items.Asset, country string) string {
	return string(asset) + "|" + country
}

func (c *Snapshot) Get(asset items.Asset, country string) ([]db.PriceRow, bool) {
	if c == nil {
		return nil, false
	}
	return c.lru.Get(key(asset, country))
}

// Generation is read before loading rows from the store and passed to Set.
func (c *Snapshot) Generation() uint64 {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen
}

// Set stores rows unless an invalidation happened since gen was read. It
// reports whether the rows were stored.
func (c *Snapshot) Set(gen uint64, asset items.Asset, country string, rows []db.PriceRow) bool {
	if c == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return false
	}
	c.lru.Add(key(asset, country), rows)
	return true
}

// Invalidate drops the entry for (asset, country) and the asset-wide entry
// that includes it.
func (c *Snapshot) Invalidate(asset items.Asset, country string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	c.lru.Remove(key(asset, country))
	c.lru.Remove(key(asset, ""))
}

func (c *Snapshot) Len() int {
	if c == nil {
		return 0
	}
	return c.lru.Len()
}
