// Package memory implements per-agent episodic memory: importance-scored,
// embedded entries with blended recency/similarity/importance retrieval and
// threshold-triggered reflection.
package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"smalltown/internal/cognition"
	"smalltown/internal/config"
	"smalltown/internal/embedding"
	"smalltown/internal/logging"
	"smalltown/internal/store"
	"smalltown/internal/types"
)

// Scorer rates a memory's importance to its owner, 1-10.
type Scorer interface {
	Score(ctx context.Context, agentName, agentBio, description string) (int, error)
}

// ReflectionModel supplies the two LLM calls of a reflection pass.
// cognition.Reflector satisfies it.
type ReflectionModel interface {
	Questions(ctx context.Context, agentName string, memories []string) ([]string, error)
	Insights(ctx context.Context, agentName, question string, memories []string) ([]cognition.Insight, error)
}

// Stream is one agent's memory. All methods are safe for use from the
// agent's own task; cross-agent isolation comes from the store keying
// everything by agent id.
type Stream struct {
	store     store.Store
	engine    embedding.Engine
	scorer    Scorer
	reflector ReflectionModel
	cfg       config.MemoryConfig

	agentID   string
	agentName string
	agentBio  string

	// speed accelerates recency decay: one wall hour counts as speed
	// simulated hours.
	speed float64

	now func() time.Time
}

// New creates the memory stream for one agent.
func New(s store.Store, engine embedding.Engine, scorer Scorer, reflector ReflectionModel,
	cfg config.MemoryConfig, agent *types.Agent, speed float64) *Stream {
	if speed <= 0 {
		speed = 1
	}
	return &Stream{
		store:     s,
		engine:    engine,
		scorer:    scorer,
		reflector: reflector,
		cfg:       cfg,
		agentID:   agent.ID,
		agentName: agent.FullName,
		agentBio:  agent.PrivateBio,
		speed:     speed,
		now:       time.Now,
	}
}

// Add scores, embeds and persists one memory. related links a reflection to
// its source memories; pass nil for observations.
func (st *Stream) Add(ctx context.Context, description string, kind types.MemoryKind, related []string) (*types.Memory, error) {
	timer := logging.StartTimer(logging.CategoryMemory, "Add")
	defer timer.Stop()

	importance, err := st.scorer.Score(ctx, st.agentName, st.agentBio, description)
	if err != nil {
		return nil, fmt.Errorf("failed to score memory: %w", err)
	}

	vec, err := st.engine.Embed(ctx, description)
	if err != nil {
		return nil, fmt.Errorf("failed to embed memory: %w", err)
	}

	now := st.now().UTC()
	m := &types.Memory{
		ID:               types.NewID(),
		AgentID:          st.agentID,
		Kind:             kind,
		Description:      description,
		Embedding:        vec,
		Importance:       importance,
		CreatedAt:        now,
		LastAccessedAt:   now,
		RelatedMemoryIDs: related,
	}
	if err := st.store.CreateMemory(ctx, m); err != nil {
		return nil, err
	}
	logging.MemoryDebug("%s remembered (%s, importance %d): %s", st.agentName, kind, importance, description)
	return m, nil
}

// Retrieve returns the k most relevant memories for the query, ordered by
// creation time ascending. Relevance blends normalized importance, cosine
// similarity to the query, and exponential recency decay. Returned memories
// get their last-access time bumped.
func (st *Stream) Retrieve(ctx context.Context, query string, k int) ([]*types.Memory, error) {
	timer := logging.StartTimer(logging.CategoryMemory, "Retrieve")
	defer timer.Stop()

	queryVec, err := st.engine.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	all, err := st.store.ListMemories(ctx, st.agentID)
	if err != nil {
		return nil, err
	}
	if len(all) == 0 {
		return nil, nil
	}

	now := st.now().UTC()
	type scored struct {
		m     *types.Memory
		score float64
	}
	ranked := make([]scored, 0, len(all))
	for _, m := range all {
		ranked = append(ranked, scored{m: m, score: st.score(m, queryVec, now)})
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	if k > len(ranked) {
		k = len(ranked)
	}
	top := make([]*types.Memory, k)
	ids := make([]string, k)
	for i := 0; i < k; i++ {
		top[i] = ranked[i].m
		ids[i] = ranked[i].m.ID
	}

	// Present in creation order so conversations read forward in time.
	sort.Slice(top, func(i, j int) bool { return top[i].CreatedAt.Before(top[j].CreatedAt) })

	if err := st.store.TouchMemories(ctx, ids, now); err != nil {
		return nil, fmt.Errorf("failed to touch memories: %w", err)
	}
	return top, nil
}

// score is the retrieval ranking function.
func (st *Stream) score(m *types.Memory, queryVec []float32, now time.Time) float64 {
	importance := float64(m.Importance) / 10

	similarity, err := embedding.CosineSimilarity(queryVec, m.Embedding)
	if err != nil {
		similarity = 0
	}

	hours := now.Sub(m.LastAccessedAt).Hours() * st.speed
	if hours < 0 {
		hours = 0
	}
	recency := math.Pow(st.cfg.RecencyDecay, hours)

	return st.cfg.ImportanceWeight*importance +
		st.cfg.SimilarityWeight*similarity +
		st.cfg.RecencyWeight*recency
}

// Recent returns the descriptions of the agent's k most recent memories,
// oldest first. Used for the recent-activity summary.
func (st *Stream) Recent(ctx context.Context, k int) ([]string, error) {
	all, err := st.store.ListMemories(ctx, st.agentID)
	if err != nil {
		return nil, err
	}
	if len(all) > k {
		all = all[len(all)-k:]
	}
	out := make([]string, len(all))
	for i, m := range all {
		out[i] = m.Description
	}
	return out, nil
}

// ShouldReflect reports whether the summed importance of observations since
// the last reflection has reached the threshold. The last-reflection time
// comes from a single store query so concurrent writers cannot race a
// client-side scan.
func (st *Stream) ShouldReflect(ctx context.Context) (bool, error) {
	since, err := st.store.LatestReflectionAt(ctx, st.agentID)
	if err != nil {
		return false, err
	}
	sum, err := st.store.SumObservationImportance(ctx, st.agentID, since)
	if err != nil {
		return false, err
	}
	return sum >= st.cfg.ReflectionThreshold, nil
}

// Reflect runs one reflection pass: salient questions over the most recently
// accessed memories, then insights per question, each inserted as a
// reflection memory linked to its sources. Returns the new reflections.
func (st *Stream) Reflect(ctx context.Context) ([]*types.Memory, error) {
	timer := logging.StartTimer(logging.CategoryMemory, "Reflect")
	defer timer.Stop()
	logging.Memory("%s is reflecting", st.agentName)

	all, err := st.store.ListMemories(ctx, st.agentID)
	if err != nil {
		return nil, err
	}
	if len(all) == 0 {
		return nil, nil
	}

	// Most recently accessed first.
	sort.Slice(all, func(i, j int) bool { return all[i].LastAccessedAt.After(all[j].LastAccessedAt) })
	recent := all
	if len(recent) > st.cfg.ReflectionRecentCount {
		recent = recent[:st.cfg.ReflectionRecentCount]
	}
	descriptions := make([]string, len(recent))
	for i, m := range recent {
		descriptions[i] = m.Description
	}

	questions, err := st.reflector.Questions(ctx, st.agentName, descriptions)
	if err != nil {
		return nil, fmt.Errorf("failed to generate reflection questions: %w", err)
	}

	var created []*types.Memory
	for _, q := range questions {
		relevant, err := st.Retrieve(ctx, q, st.cfg.ReflectionRetrieveCount)
		if err != nil {
			return created, err
		}
		if len(relevant) == 0 {
			continue
		}
		texts := make([]string, len(relevant))
		for i, m := range relevant {
			texts[i] = m.Description
		}

		insights, err := st.reflector.Insights(ctx, st.agentName, q, texts)
		if err != nil {
			logging.Get(logging.CategoryMemory).Warn("Insights failed for question %q: %v", q, err)
			continue
		}
		for _, in := range insights {
			related := make([]string, 0, len(in.SourceIndices))
			for _, idx := range in.SourceIndices {
				related = append(related, relevant[idx].ID)
			}
			m, err := st.Add(ctx, in.Text, types.MemoryReflection, related)
			if err != nil {
				return created, err
			}
			created = append(created, m)
		}
	}
	logging.Memory("%s produced %d reflections", st.agentName, len(created))
	return created, nil
}
