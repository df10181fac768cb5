package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"smalltown/internal/embedding"
	"smalltown/internal/types"
)

// MemoryStore implements Store entirely in memory. Used for tests and for
// DATABASE_PROVIDER=memory runs. All methods copy on read so callers never
// alias internal state.
type MemoryStore struct {
	mu            sync.RWMutex
	embeddingDims int

	worlds    map[string]*types.World
	locations map[string]*types.Location
	agents    map[string]*types.Agent
	memories  map[string]*types.Memory
	plans     map[string]*types.Plan
	events    []*types.Event
	documents map[string]*types.Document // keyed by agentID + "\x00" + normalizedTitle
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(embeddingDims int) *MemoryStore {
	return &MemoryStore{
		embeddingDims: embeddingDims,
		worlds:        make(map[string]*types.World),
		locations:     make(map[string]*types.Location),
		agents:        make(map[string]*types.Agent),
		memories:      make(map[string]*types.Memory),
		plans:         make(map[string]*types.Plan),
		documents:     make(map[string]*types.Document),
	}
}

func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) CreateWorld(_ context.Context, w *types.World) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *w
	s.worlds[w.ID] = &cp
	return nil
}

func (s *MemoryStore) GetWorldByName(_ context.Context, name string) (*types.World, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, w := range s.worlds {
		if w.Name == name {
			cp := *w
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("%w: world %q", ErrNotFound, name)
}

func (s *MemoryStore) CreateLocation(_ context.Context, l *types.Location) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *l
	s.locations[l.ID] = &cp
	return nil
}

func (s *MemoryStore) ListLocations(_ context.Context, worldID string) ([]*types.Location, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*types.Location
	for _, l := range s.locations {
		if l.WorldID == worldID {
			cp := *l
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *MemoryStore) CreateAgent(_ context.Context, a *types.Agent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *a
	s.agents[a.ID] = &cp
	return nil
}

func (s *MemoryStore) ListAgents(_ context.Context, worldID string) ([]*types.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*types.Agent
	for _, a := range s.agents {
		if a.WorldID == worldID {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FullName < out[j].FullName })
	return out, nil
}

func (s *MemoryStore) UpdateAgent(_ context.Context, a *types.Agent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.agents[a.ID]
	if !ok {
		return fmt.Errorf("%w: agent %s", ErrNotFound, a.ID)
	}
	existing.LocationID = a.LocationID
	existing.OrderedPlanIDs = append([]string(nil), a.OrderedPlanIDs...)
	existing.LastCheckedEventsAt = a.LastCheckedEventsAt
	return nil
}

func (s *MemoryStore) CreateMemory(_ context.Context, m *types.Memory) error {
	if err := validateMemory(m, s.embeddingDims); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *m
	cp.Embedding = append([]float32(nil), m.Embedding...)
	cp.RelatedMemoryIDs = append([]string(nil), m.RelatedMemoryIDs...)
	s.memories[m.ID] = &cp
	return nil
}

func (s *MemoryStore) ListMemories(_ context.Context, agentID string) ([]*types.Memory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*types.Memory
	for _, m := range s.memories {
		if m.AgentID == agentID {
			cp := *m
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) TouchMemories(_ context.Context, ids []string, accessedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		if m, ok := s.memories[id]; ok {
			m.LastAccessedAt = accessedAt
		}
	}
	return nil
}

func (s *MemoryStore) LatestReflectionAt(_ context.Context, agentID string) (time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest time.Time
	for _, m := range s.memories {
		if m.AgentID == agentID && m.Kind == types.MemoryReflection && m.CreatedAt.After(latest) {
			latest = m.CreatedAt
		}
	}
	return latest, nil
}

func (s *MemoryStore) SumObservationImportance(_ context.Context, agentID string, since time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	total := 0
	for _, m := range s.memories {
		if m.AgentID == agentID && m.Kind == types.MemoryObservation && m.CreatedAt.After(since) {
			total += m.Importance
		}
	}
	return total, nil
}

func copyPlan(p *types.Plan) *types.Plan {
	cp := *p
	cp.Scratchpad = append([]types.ScratchpadEntry(nil), p.Scratchpad...)
	if p.CompletedAt != nil {
		t := *p.CompletedAt
		cp.CompletedAt = &t
	}
	return &cp
}

func (s *MemoryStore) CreatePlan(_ context.Context, p *types.Plan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.plans[p.ID] = copyPlan(p)
	return nil
}

func (s *MemoryStore) GetPlan(_ context.Context, id string) (*types.Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.plans[id]
	if !ok {
		return nil, fmt.Errorf("%w: plan %s", ErrNotFound, id)
	}
	return copyPlan(p), nil
}

func (s *MemoryStore) UpdatePlan(_ context.Context, p *types.Plan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.plans[p.ID] = copyPlan(p)
	return nil
}

func (s *MemoryStore) DeletePlans(_ context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		delete(s.plans, id)
	}
	return nil
}

func (s *MemoryStore) ListPlans(_ context.Context, agentID string) ([]*types.Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*types.Plan
	for _, p := range s.plans {
		if p.AgentID == agentID {
			out = append(out, copyPlan(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) CreateEvent(_ context.Context, e *types.Event) error {
	if err := validateEvent(e); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *e
	cp.WitnessIDs = append([]string(nil), e.WitnessIDs...)
	if e.Metadata != nil {
		cp.Metadata = make(map[string]string, len(e.Metadata))
		for k, v := range e.Metadata {
			cp.Metadata[k] = v
		}
	}
	s.events = append(s.events, &cp)
	return nil
}

func (s *MemoryStore) RecentEvents(_ context.Context, worldID string, limit int) ([]*types.Event, error) {
	if limit <= 0 {
		limit = 500
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*types.Event
	for _, e := range s.events {
		if e.WorldID == worldID {
			cp := *e
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func docKey(agentID, normalizedTitle string) string {
	return agentID + "\x00" + normalizedTitle
}

func (s *MemoryStore) UpsertDocument(_ context.Context, d *types.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := docKey(d.AgentID, d.NormalizedTitle)
	if existing, ok := s.documents[key]; ok {
		d.ID = existing.ID
	}
	cp := *d
	cp.Embedding = append([]float32(nil), d.Embedding...)
	s.documents[key] = &cp
	return nil
}

func (s *MemoryStore) GetDocument(_ context.Context, agentID, normalizedTitle string) (*types.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.documents[docKey(agentID, normalizedTitle)]
	if !ok {
		return nil, fmt.Errorf("%w: document %q", ErrNotFound, normalizedTitle)
	}
	cp := *d
	return &cp, nil
}

func (s *MemoryStore) SearchDocuments(_ context.Context, agentID string, queryEmbedding []float32, k int, threshold float64) ([]DocumentHit, error) {
	if k <= 0 {
		k = 10
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var hits []DocumentHit
	for _, d := range s.documents {
		if d.AgentID != agentID {
			continue
		}
		sim, err := embedding.CosineSimilarity(queryEmbedding, d.Embedding)
		if err != nil {
			continue
		}
		if sim >= threshold {
			cp := *d
			hits = append(hits, DocumentHit{Document: &cp, Similarity: sim})
		}
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].Similarity > hits[j].Similarity })
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}
