package embedding

import (
	"context"
	"time"

	"smalltown/internal/logging"
)

// retryEngine wraps an Engine with bounded exponential backoff on transient
// failures. Context cancellation aborts the backoff wait.
type retryEngine struct {
	inner      Engine
	maxRetries int
}

// WithRetry decorates an engine with retry behavior. maxRetries <= 0 means
// no retries.
func WithRetry(inner Engine, maxRetries int) Engine {
	if maxRetries <= 0 {
		return inner
	}
	return &retryEngine{inner: inner, maxRetries: maxRetries}
}

func (r *retryEngine) Embed(ctx context.Context, text string) ([]float32, error) {
	var lastErr error
	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		if attempt > 0 {
			// Backoff: 1s, 2s, 4s, ...
			wait := time.Duration(1<<uint(attempt-1)) * time.Second
			logging.EmbeddingDebug("Embed retry %d/%d after %v: %v", attempt, r.maxRetries, wait, lastErr)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
			}
		}
		vec, err := r.inner.Embed(ctx, text)
		if err == nil {
			return vec, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	return nil, lastErr
}

func (r *retryEngine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	var lastErr error
	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		if attempt > 0 {
			wait := time.Duration(1<<uint(attempt-1)) * time.Second
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
			}
		}
		vecs, err := r.inner.EmbedBatch(ctx, texts)
		if err == nil {
			return vecs, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	return nil, lastErr
}

func (r *retryEngine) Dimensions() int { return r.inner.Dimensions() }
func (r *retryEngine) Name() string    { return r.inner.Name() }
