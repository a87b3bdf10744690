package embeddings

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize is the default capacity of a [Cached] provider.
const DefaultCacheSize = 1000

// Ensure Cached implements the Provider interface.
var _ Provider = (*Cached)(nil)

// Cached wraps a Provider with a process-wide LRU cache keyed by input
// text. Turn processing embeds the same player phrasings and memory
// contents repeatedly; the cache keeps those off the network.
//
// The underlying lru.Cache is safe for concurrent use, so Cached is too.
// Cached vectors are shared between callers and must not be mutated.
type Cached struct {
	inner Provider
	cache *lru.Cache[string, []float32]
}

// NewCached wraps inner with an LRU cache of the given capacity.
// A capacity of 0 or less uses [DefaultCacheSize].
func NewCached(inner Provider, capacity int) (*Cached, error) {
	if inner == nil {
		return nil, fmt.Errorf("embeddings: inner provider must not be nil")
	}
	if capacity <= 0 {
		capacity = DefaultCacheSize
	}
	cache, err := lru.New[string, []float32](capacity)
	if err != nil {
		return nil, fmt.Errorf("embeddings: create cache: %w", err)
	}
	return &Cached{inner: inner, cache: cache}, nil
}

// Embed implements Provider, consulting the cache first.
func (c *Cached) Embed(ctx context.Context, text string) ([]float32, error) {
	if vec, ok := c.cache.Get(text); ok {
		return vec, nil
	}
	vec, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Add(text, vec)
	return vec, nil
}

// EmbedBatch implements Provider. Only the texts missing from the cache are
// forwarded to the inner provider, in one batch call.
func (c *Cached) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	result := make([][]float32, len(texts))
	var missing []string
	var missingIdx []int
	for i, text := range texts {
		if vec, ok := c.cache.Get(text); ok {
			result[i] = vec
			continue
		}
		missing = append(missing, text)
		missingIdx = append(missingIdx, i)
	}

	if len(missing) > 0 {
		vecs, err := c.inner.EmbedBatch(ctx, missing)
		if err != nil {
			return nil, err
		}
		if len(vecs) != len(missing) {
			return nil, fmt.Errorf("embeddings: expected %d embeddings, got %d", len(missing), len(vecs))
		}
		for j, vec := range vecs {
			result[missingIdx[j]] = vec
			c.cache.Add(missing[j], vec)
		}
	}
	return result, nil
}

// Dimensions implements Provider by delegating to the inner provider.
func (c *Cached) Dimensions() int {
	return c.inner.Dimensions()
}

// ModelID implements Provider by delegating to the inner provider.
func (c *Cached) ModelID() string {
	return c.inner.ModelID()
}

// Len returns the current number of cached vectors.
func (c *Cached) Len() int {
	return c.cache.Len()
}
