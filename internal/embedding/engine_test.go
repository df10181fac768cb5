package embedding

import (
	"context"
	"errors"
	"testing"
)

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 0, 0}, []float32{1, 0, 0}, 1},
		{"orthogonal", []float32{1, 0, 0}, []float32{0, 1, 0}, 0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"zero vector", []float32{0, 0}, []float32{1, 1}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CosineSimilarity(tt.a, tt.b)
			if err != nil {
				t.Fatalf("CosineSimilarity: %v", err)
			}
			if diff := got - tt.want; diff > 1e-9 || diff < -1e-9 {
				t.Errorf("got %f, want %f", got, tt.want)
			}
		})
	}
}

func TestCosineSimilarityDimensionMismatch(t *testing.T) {
	if _, err := CosineSimilarity([]float32{1}, []float32{1, 2}); err == nil {
		t.Fatal("expected error for mismatched dimensions")
	}
}

func TestLocalEngineDeterministic(t *testing.T) {
	e := NewLocalEngine()
	ctx := context.Background()

	a1, err := e.Embed(ctx, "coffee in the lobby")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	a2, _ := e.Embed(ctx, "coffee in the lobby")
	b, _ := e.Embed(ctx, "quarterly revenue forecast")

	if len(a1) != e.Dimensions() {
		t.Fatalf("dimension mismatch: got %d, want %d", len(a1), e.Dimensions())
	}

	same, _ := CosineSimilarity(a1, a2)
	if same < 0.999 {
		t.Errorf("identical texts should embed identically, similarity=%f", same)
	}

	diff, _ := CosineSimilarity(a1, b)
	if diff >= same {
		t.Errorf("unrelated text should score lower: same=%f diff=%f", same, diff)
	}
}

// countingEngine fails the first n calls, then delegates to LocalEngine.
type countingEngine struct {
	*LocalEngine
	failures int
	calls    int
}

func (c *countingEngine) Embed(ctx context.Context, text string) ([]float32, error) {
	c.calls++
	if c.calls <= c.failures {
		return nil, errors.New("transient")
	}
	return c.LocalEngine.Embed(ctx, text)
}

func TestWithRetryRecovers(t *testing.T) {
	inner := &countingEngine{LocalEngine: NewLocalEngine(), failures: 2}
	e := WithRetry(inner, 3)

	if _, err := e.Embed(context.Background(), "hello"); err != nil {
		t.Fatalf("expected recovery after retries, got %v", err)
	}
	if inner.calls != 3 {
		t.Errorf("expected 3 attempts, got %d", inner.calls)
	}
}

func TestWithRetryExhausts(t *testing.T) {
	inner := &countingEngine{LocalEngine: NewLocalEngine(), failures: 100}
	e := WithRetry(inner, 1)

	if _, err := e.Embed(context.Background(), "hello"); err == nil {
		t.Fatal("expected failure after retries exhausted")
	}
}

func TestWithCacheAvoidsRecompute(t *testing.T) {
	inner := &countingEngine{LocalEngine: NewLocalEngine()}
	e := WithCache(inner)
	ctx := context.Background()

	if _, err := e.Embed(ctx, "repeated text"); err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if _, err := e.Embed(ctx, "repeated text"); err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if inner.calls != 1 {
		t.Errorf("expected 1 inner call, got %d", inner.calls)
	}
}
