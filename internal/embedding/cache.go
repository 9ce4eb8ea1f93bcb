package embedding

import (
	"container/list"
	"context"
	"fmt"
	"sync"
)

// Cached wraps an Embedder with an LRU cache keyed by text. Only successful
// responses populate the cache; rate limits and errors pass through.
type Cached struct {
	inner    Embedder
	capacity int

	mu    sync.Mutex
	cache map[string]*list.Element
	lru   *list.List
}

type cacheEntry struct {
	key   string
	value []float64
}

// NewCached wraps inner with a cache holding up to capacity embeddings.
func NewCached(inner Embedder, capacity int) *Cached {
	if capacity <= 0 {
		capacity = 1024
	}
	return &Cached{
		inner:    inner,
		capacity: capacity,
		cache:    make(map[string]*list.Element),
		lru:      list.New(),
	}
}

// MaxTokens returns the inner embedder's token ceiling.
func (c *Cached) MaxTokens() int { return c.inner.MaxTokens() }

// CreateEmbeddings serves cached texts locally and forwards only the misses
// to the inner embedder. A non-success inner response is returned unchanged
// without touching the cache.
func (c *Cached) CreateEmbeddings(ctx context.Context, texts []string) (*Response, error) {
	output := make([][]float64, len(texts))
	var misses []string
	var missIdx []int
	for i, text := range texts {
		if vec, ok := c.get(text); ok {
			output[i] = vec
		} else {
			misses = append(misses, text)
			missIdx = append(missIdx, i)
		}
	}
	if len(misses) == 0 {
		return &Response{Status: StatusSuccess, Output: output}, nil
	}

	resp, err := c.inner.CreateEmbeddings(ctx, misses)
	if err != nil {
		return nil, err
	}
	if resp.Status != StatusSuccess {
		return resp, nil
	}
	if len(resp.Output) != len(misses) {
		return nil, fmt.Errorf("embedder returned %d embeddings for %d texts", len(resp.Output), len(misses))
	}
	for i, vec := range resp.Output {
		c.set(misses[i], vec)
		output[missIdx[i]] = vec
	}
	return &Response{Status: StatusSuccess, Output: output}, nil
}

func (c *Cached) get(key string) ([]float64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.cache[key]; ok {
		c.lru.MoveToFront(elem)
		return elem.Value.(*cacheEntry).value, true
	}
	return nil, false
}

func (c *Cached) set(key string, value []float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.cache[key]; ok {
		c.lru.MoveToFront(elem)
		elem.Value.(*cacheEntry).value = value
		return
	}
	elem := c.lru.PushFront(&cacheEntry{key: key, value: value})
	c.cache[key] = elem
	if c.lru.Len() > c.capacity {
		oldest := c.lru.Back()
		if oldest != nil {
			c.lru.Remove(oldest)
			delete(c.cache, oldest.Value.(*cacheEntry).key)
		}
	}
}
