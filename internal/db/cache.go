package db

import (
	"time"

	"github.com/dgraph-io/ristretto"
)

// BrowseCache memoizes browse-endpoint listings for a short TTL. Many
// dashboards polling /recent and /correlations would otherwise hit the
// same GROUP BY repeatedly; a few seconds of staleness is fine there,
// and the cache keeps durable-storage load independent of viewer count.
type BrowseCache struct {
	cache *ristretto.Cache
	ttl   time.Duration
}

func NewBrowseCache(ttl time.Duration) (*BrowseCache, error) {
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 10_000,
		MaxCost:     1_000,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}

	return &BrowseCache{cache: cache, ttl: ttl}, nil
}

func (bc *BrowseCache) Get(listing string) (interface{}, bool) {
	return bc.cache.Get(listing)
}

func (bc *BrowseCache) Set(listing string, value interface{}) {
	bc.cache.SetWithTTL(listing, value, 1, bc.ttl)
}
