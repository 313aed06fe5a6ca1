package oracle

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// RateCache keeps rates for a fixed TTL. Expired entries are never returned.
type RateCache struct {
	rates *expirable.LRU[string, CachedRate]
	ttl   time.Duration
}

func NewRateCache(size int, ttl time.Duration) *RateCache {
	return &RateCache{
		rates: expirable.NewLRU[string, CachedRate](size, nil, ttl),
		ttl:   ttl,
	}
}

func (c *RateCache) Get(pair string) (CachedRate, bool) {
	return c.rates.Get(pair)
}

func (c *RateCache) Add(r CachedRate) {
	c.rates.Add(r.Pair, r)
}

func (c *RateCache) TTL() time.Duration {
	return c.ttl
}

func (c *RateCache) Purge() {
	c.rates.Purge()
}
