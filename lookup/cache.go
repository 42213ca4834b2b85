package lookup

import (
	"container/list"
	"sync"
	"sync/atomic"

	"callparser/callstruct"

	"github.com/zeebo/xxh3"
)

// resultShardCount is kept a power of two for fast masking.
const resultShardCount = 16

// resultCache memoizes lookups (hits, misses and invalid input) in a sharded
// LRU. Entries are immutable; readers receive deep copies.
type resultCache struct {
	shards []resultShard

	lookups atomic.Uint64
	hits    atomic.Uint64
	entries atomic.Int64
}

type resultShard struct {
	mu    sync.Mutex
	max   int
	order *list.List
	items map[string]*list.Element
}

// cachedResult is the full outcome of one resolution.
type cachedResult struct {
	call      string
	hits      []Hit
	err       error
	structure callstruct.Structure
	ambiguous bool
}

// CacheMetrics summarizes result cache behavior.
type CacheMetrics struct {
	Lookups uint64
	Hits    uint64
	Entries int64
}

// Purpose: Construct the sharded result cache.
// Key aspects: capacity <= 0 disables caching (nil cache).
// Upstream: NewEngine.
// Downstream: shard allocation.
func newResultCache(capacity int) *resultCache {
	if capacity <= 0 {
		return nil
	}
	perShard := capacity / resultShardCount
	if perShard <= 0 {
		perShard = 1
	}
	c := &resultCache{shards: make([]resultShard, resultShardCount)}
	for i := range c.shards {
		c.shards[i] = resultShard{
			max:   perShard,
			order: list.New(),
			items: make(map[string]*list.Element, perShard),
		}
	}
	return c
}

func (c *resultCache) shardFor(call string) *resultShard {
	return &c.shards[xxh3.HashString(call)&(resultShardCount-1)]
}

// get returns a private copy of the cached result for call.
func (c *resultCache) get(call string) (cachedResult, bool) {
	if c == nil {
		return cachedResult{}, false
	}
	c.lookups.Add(1)
	shard := c.shardFor(call)
	shard.mu.Lock()
	elem, ok := shard.items[call]
	if !ok {
		shard.mu.Unlock()
		return cachedResult{}, false
	}
	shard.order.MoveToFront(elem)
	entry := elem.Value.(*cachedResult)
	shard.mu.Unlock()
	c.hits.Add(1)
	out := *entry
	out.hits = cloneHits(entry.hits)
	return out, true
}

func (c *resultCache) put(res cachedResult) {
	if c == nil {
		return
	}
	entry := &res
	entry.hits = cloneHits(res.hits)
	call := res.call
	shard := c.shardFor(call)
	shard.mu.Lock()
	defer shard.mu.Unlock()
	if elem, ok := shard.items[call]; ok {
		elem.Value = entry
		shard.order.MoveToFront(elem)
		return
	}
	shard.items[call] = shard.order.PushFront(entry)
	c.entries.Add(1)
	if len(shard.items) > shard.max {
		if tail := shard.order.Back(); tail != nil {
			shard.order.Remove(tail)
			delete(shard.items, tail.Value.(*cachedResult).call)
			c.entries.Add(-1)
		}
	}
}

func (c *resultCache) metrics() CacheMetrics {
	if c == nil {
		return CacheMetrics{}
	}
	return CacheMetrics{
		Lookups: c.lookups.Load(),
		Hits:    c.hits.Load(),
		Entries: c.entries.Load(),
	}
}
