package memory

import (
	"context"
	"fmt"
	"testing"
	"time"

	"smalltown/internal/cognition"
	"smalltown/internal/config"
	"smalltown/internal/store"
	"smalltown/internal/types"
)

// stubEngine maps exact texts to fixed vectors; unknown texts get the zero
// default vector.
type stubEngine struct {
	vecs map[string][]float32
	dflt []float32
}

func (e *stubEngine) Embed(_ context.Context, text string) ([]float32, error) {
	if v, ok := e.vecs[text]; ok {
		return v, nil
	}
	return e.dflt, nil
}

func (e *stubEngine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i], _ = e.Embed(ctx, t)
	}
	return out, nil
}

func (e *stubEngine) Dimensions() int { return 3 }
func (e *stubEngine) Name() string    { return "stub" }

// fixedScorer returns a constant importance.
type fixedScorer struct{ n int }

func (s fixedScorer) Score(context.Context, string, string, string) (int, error) {
	return s.n, nil
}

// scriptedReflector returns canned questions and insights.
type scriptedReflector struct {
	questions []string
	insights  map[string][]cognition.Insight
}

func (r *scriptedReflector) Questions(context.Context, string, []string) ([]string, error) {
	return r.questions, nil
}

func (r *scriptedReflector) Insights(_ context.Context, _ string, question string, _ []string) ([]cognition.Insight, error) {
	return r.insights[question], nil
}

func testAgent() *types.Agent {
	return &types.Agent{
		ID:         types.NewID(),
		WorldID:    types.NewID(),
		FullName:   "Alice Example",
		PrivateBio: "curious",
	}
}

func newTestStream(t *testing.T, engine *stubEngine, scorer Scorer, reflector ReflectionModel) (*Stream, store.Store) {
	t.Helper()
	s := store.NewMemoryStore(0)
	t.Cleanup(func() { s.Close() })
	st := New(s, engine, scorer, reflector, config.DefaultMemoryConfig(), testAgent(), 1.0)
	return st, s
}

func TestAddScoresAndEmbeds(t *testing.T) {
	engine := &stubEngine{dflt: []float32{1, 0, 0}}
	st, backing := newTestStream(t, engine, fixedScorer{n: 6}, nil)
	ctx := context.Background()

	m, err := st.Add(ctx, "saw Bob wave", types.MemoryObservation, nil)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if m.Importance != 6 {
		t.Errorf("importance = %d, want 6", m.Importance)
	}
	if len(m.Embedding) != 3 {
		t.Errorf("embedding dims = %d, want 3", len(m.Embedding))
	}
	if m.LastAccessedAt.Before(m.CreatedAt) {
		t.Error("last accessed precedes creation")
	}

	mems, err := backing.ListMemories(ctx, st.agentID)
	if err != nil {
		t.Fatalf("ListMemories: %v", err)
	}
	if len(mems) != 1 {
		t.Errorf("persisted %d memories, want 1", len(mems))
	}
}

// Top-k selection happens by blended score; presentation re-sorts by
// creation time ascending. With a query unrelated to both memories, the
// higher-importance newer memory outscores the older one, yet the result
// still reads oldest first.
func TestRetrieveTopKThenCreationOrder(t *testing.T) {
	engine := &stubEngine{
		vecs: map[string][]float32{"unrelated query": {0, 0, 1}},
		dflt: []float32{1, 0, 0},
	}
	st, backing := newTestStream(t, engine, fixedScorer{n: 5}, nil)
	ctx := context.Background()

	t0 := time.Now().UTC().Add(-2 * time.Hour)
	t1 := t0.Add(time.Hour)
	seed := func(desc string, importance int, at time.Time) {
		t.Helper()
		m := &types.Memory{
			ID:             types.NewID(),
			AgentID:        st.agentID,
			Kind:           types.MemoryObservation,
			Description:    desc,
			Embedding:      []float32{1, 0, 0},
			Importance:     importance,
			CreatedAt:      at,
			LastAccessedAt: at,
		}
		if err := backing.CreateMemory(ctx, m); err != nil {
			t.Fatalf("CreateMemory: %v", err)
		}
	}
	seed("A", 1, t0)
	seed("B", 10, t1)

	got, err := st.Retrieve(ctx, "unrelated query", 2)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d memories, want 2", len(got))
	}
	if got[0].Description != "A" || got[1].Description != "B" {
		t.Errorf("order = [%s, %s], want [A, B]", got[0].Description, got[1].Description)
	}

	// Access bumped only for returned entries.
	mems, err := backing.ListMemories(ctx, st.agentID)
	if err != nil {
		t.Fatalf("ListMemories: %v", err)
	}
	for _, m := range mems {
		if !m.LastAccessedAt.After(m.CreatedAt) {
			t.Errorf("memory %s not touched", m.Description)
		}
	}
}

func TestRetrieveKCapsResults(t *testing.T) {
	engine := &stubEngine{
		vecs: map[string][]float32{
			"about cats": {1, 0, 0},
			"cats":       {1, 0, 0},
			"weather":    {0, 1, 0},
		},
		dflt: []float32{0, 0, 1},
	}
	st, backing := newTestStream(t, engine, fixedScorer{n: 5}, nil)
	ctx := context.Background()

	now := time.Now().UTC()
	for i, desc := range []string{"cats", "weather", "other"} {
		vec, _ := engine.Embed(ctx, desc)
		m := &types.Memory{
			ID:             types.NewID(),
			AgentID:        st.agentID,
			Kind:           types.MemoryObservation,
			Description:    desc,
			Embedding:      vec,
			Importance:     5,
			CreatedAt:      now.Add(time.Duration(i) * time.Minute),
			LastAccessedAt: now.Add(time.Duration(i) * time.Minute),
		}
		if err := backing.CreateMemory(ctx, m); err != nil {
			t.Fatalf("CreateMemory: %v", err)
		}
	}

	got, err := st.Retrieve(ctx, "about cats", 1)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(got) != 1 || got[0].Description != "cats" {
		t.Errorf("got %+v, want the cats memory", got)
	}
}

// Recency decay never increases between accesses.
func TestRecencyNonIncreasing(t *testing.T) {
	engine := &stubEngine{dflt: []float32{1, 0, 0}}
	st, _ := newTestStream(t, engine, fixedScorer{n: 5}, nil)

	m := &types.Memory{
		Importance:     5,
		Embedding:      []float32{0, 1, 0},
		LastAccessedAt: time.Now().UTC(),
	}
	query := []float32{1, 0, 0}

	s1 := st.score(m, query, m.LastAccessedAt.Add(1*time.Hour))
	s2 := st.score(m, query, m.LastAccessedAt.Add(10*time.Hour))
	if s2 > s1 {
		t.Errorf("score increased without access: %f > %f", s2, s1)
	}
}

func TestShouldReflectBoundary(t *testing.T) {
	engine := &stubEngine{dflt: []float32{1, 0, 0}}
	st, _ := newTestStream(t, engine, fixedScorer{n: 6}, nil)
	ctx := context.Background()

	// 16 observations at importance 6 sum to 96, under the threshold.
	for i := 0; i < 16; i++ {
		if _, err := st.Add(ctx, fmt.Sprintf("observation %d", i), types.MemoryObservation, nil); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}
	should, err := st.ShouldReflect(ctx)
	if err != nil {
		t.Fatalf("ShouldReflect: %v", err)
	}
	if should {
		t.Error("reflection triggered below threshold (96 < 100)")
	}

	// One more crosses 100.
	if _, err := st.Add(ctx, "observation 16", types.MemoryObservation, nil); err != nil {
		t.Fatalf("Add: %v", err)
	}
	should, err = st.ShouldReflect(ctx)
	if err != nil {
		t.Fatalf("ShouldReflect: %v", err)
	}
	if !should {
		t.Error("reflection did not trigger at 102 >= 100")
	}
}

func TestReflectProducesLinkedReflections(t *testing.T) {
	engine := &stubEngine{dflt: []float32{1, 0, 0}}
	reflector := &scriptedReflector{
		questions: []string{"q1", "q2", "q3"},
		insights: map[string][]cognition.Insight{
			"q1": {{Text: "Alice keeps busy", SourceIndices: []int{0, 1}}},
		},
	}
	st, _ := newTestStream(t, engine, fixedScorer{n: 6}, reflector)
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		if _, err := st.Add(ctx, fmt.Sprintf("observation %d", i), types.MemoryObservation, nil); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}

	created, err := st.Reflect(ctx)
	if err != nil {
		t.Fatalf("Reflect: %v", err)
	}
	if len(created) != 1 {
		t.Fatalf("got %d reflections, want 1", len(created))
	}
	r := created[0]
	if r.Kind != types.MemoryReflection {
		t.Errorf("kind = %s, want reflection", r.Kind)
	}
	if len(r.RelatedMemoryIDs) != 2 {
		t.Errorf("related ids = %v, want 2 sources", r.RelatedMemoryIDs)
	}

	// Reflection resets the boundary: the same observations never trigger
	// a second pass.
	should, err := st.ShouldReflect(ctx)
	if err != nil {
		t.Fatalf("ShouldReflect: %v", err)
	}
	if should {
		t.Error("reflection boundary fired twice")
	}
}

func TestRecentReturnsNewestOldestFirst(t *testing.T) {
	engine := &stubEngine{dflt: []float32{1, 0, 0}}
	st, backing := newTestStream(t, engine, fixedScorer{n: 5}, nil)
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		m := &types.Memory{
			ID:             types.NewID(),
			AgentID:        st.agentID,
			Kind:           types.MemoryObservation,
			Description:    fmt.Sprintf("m%d", i),
			Embedding:      []float32{1, 0, 0},
			Importance:     5,
			CreatedAt:      base.Add(time.Duration(i) * time.Minute),
			LastAccessedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if err := backing.CreateMemory(ctx, m); err != nil {
			t.Fatalf("CreateMemory: %v", err)
		}
	}

	got, err := st.Recent(ctx, 3)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	want := []string{"m2", "m3", "m4"}
	if len(got) != 3 {
		t.Fatalf("got %d, want 3", len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("got[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
