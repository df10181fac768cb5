package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
)

const localDimensions = 768

// LocalEngine produces deterministic pseudo-embeddings without any network
// dependency. Texts sharing words land near each other, which is enough for
// offline development and tests. Not a substitute for a real model.
type LocalEngine struct{}

// NewLocalEngine creates a deterministic offline engine.
func NewLocalEngine() *LocalEngine {
	return &LocalEngine{}
}

// Embed hashes each token into a handful of dimensions and normalizes the
// result to unit length.
func (e *LocalEngine) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, localDimensions)
	for _, token := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New64a()
		_, _ = h.Write([]byte(token))
		seed := h.Sum64()
		// Spread each token across 4 dimensions with signs from the hash.
		for i := 0; i < 4; i++ {
			idx := int((seed >> (i * 16)) % localDimensions)
			if seed>>(i*16+15)&1 == 0 {
				vec[idx] += 1
			} else {
				vec[idx] -= 1
			}
		}
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v * v)
	}
	if norm > 0 {
		inv := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= inv
		}
	}
	return vec, nil
}

// EmbedBatch embeds each text in turn.
func (e *LocalEngine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		vec, err := e.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

// Dimensions returns the dimensionality of embeddings.
func (e *LocalEngine) Dimensions() int {
	return localDimensions
}

// Name returns the engine name.
func (e *LocalEngine) Name() string {
	return "local:fnv"
}
