package vision

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// EmbeddingCache is a bounded LRU map from track ID to the most recent
// embedding, decoupling the tracker's lifetime from recognition cadence.
// Single-owner, synchronous; the pipeline serializes all access.
type EmbeddingCache struct {
	lru *lru.Cache[int64, []float32]
}

const defaultCacheCapacity = 256

// NewEmbeddingCache creates a cache holding at most capacity embeddings;
// the least-recently-used entry is evicted when the bound is exceeded.
func NewEmbeddingCache(capacity int) *EmbeddingCache {
	if capacity <= 0 {
		capacity = defaultCacheCapacity
	}
	// lru.New only fails for non-positive sizes, which we just excluded.
	c, _ := lru.New[int64, []float32](capacity)
	return &EmbeddingCache{lru: c}
}

// Set stores (or refreshes) the embedding for a track.
func (c *EmbeddingCache) Set(trackID int64, embedding []float32) {
	c.lru.Add(trackID, embedding)
}

// Get returns the cached embedding and refreshes its recency.
func (c *EmbeddingCache) Get(trackID int64) ([]float32, bool) {
	return c.lru.Get(trackID)
}

// Remove drops a track's entry, if present.
func (c *EmbeddingCache) Remove(trackID int64) {
	c.lru.Remove(trackID)
}

// Keys returns the cached track IDs, oldest first.
func (c *EmbeddingCache) Keys() []int64 { return c.lru.Keys() }

// Len returns the number of cached embeddings.
func (c *EmbeddingCache) Len() int { return c.lru.Len() }

// Purge drops all entries.
func (c *EmbeddingCache) Purge() { c.lru.Purge() }
