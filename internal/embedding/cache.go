package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"

	"smalltown/internal/logging"
)

// cacheEngine memoizes embeddings by SHA-256 of the input text. Memory
// descriptions repeat often (event fan-out hits every witness), so the hit
// rate is substantial.
type cacheEngine struct {
	inner Engine

	mu    sync.RWMutex
	cache map[string][]float32
}

// WithCache decorates an engine with a text-hash cache.
func WithCache(inner Engine) Engine {
	return &cacheEngine{
		inner: inner,
		cache: make(map[string][]float32),
	}
}

func textKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

func (c *cacheEngine) Embed(ctx context.Context, text string) ([]float32, error) {
	key := textKey(text)

	c.mu.RLock()
	vec, ok := c.cache[key]
	c.mu.RUnlock()
	if ok {
		logging.EmbeddingDebug("Embed cache hit (len=%d)", len(text))
		return vec, nil
	}

	vec, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.cache[key] = vec
	c.mu.Unlock()
	return vec, nil
}

func (c *cacheEngine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var missing []string
	var missingIdx []int

	c.mu.RLock()
	for i, t := range texts {
		if vec, ok := c.cache[textKey(t)]; ok {
			out[i] = vec
		} else {
			missing = append(missing, t)
			missingIdx = append(missingIdx, i)
		}
	}
	c.mu.RUnlock()

	if len(missing) == 0 {
		return out, nil
	}

	vecs, err := c.inner.EmbedBatch(ctx, missing)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	for j, vec := range vecs {
		out[missingIdx[j]] = vec
		c.cache[textKey(missing[j])] = vec
	}
	c.mu.Unlock()
	return out, nil
}

func (c *cacheEngine) Dimensions() int { return c.inner.Dimensions() }
func (c *cacheEngine) Name() string    { return c.inner.Name() }
