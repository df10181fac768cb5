// Package store provides the persistence layer: a row-oriented store over
// SQLite with a vector-search side table for documents, plus an in-memory
// implementation for tests and ephemeral runs.
package store

import (
	"context"
	"errors"
	"time"

	"smalltown/internal/config"
	"smalltown/internal/types"
)

// Sentinel errors.
var (
	// ErrNotFound is returned when a row does not exist.
	ErrNotFound = errors.New("store: not found")

	// ErrInvariant is returned when a write violates a data-model
	// invariant (importance range, embedding dimensions, missing agent id).
	ErrInvariant = errors.New("store: invariant violation")
)

// DocumentHit is a document vector-search result.
type DocumentHit struct {
	Document   *types.Document
	Similarity float64
}

// Store is the row store backing the world. Implementations must be safe for
// concurrent use by all agent tasks.
type Store interface {
	// Worlds
	CreateWorld(ctx context.Context, w *types.World) error
	GetWorldByName(ctx context.Context, name string) (*types.World, error)

	// Locations
	CreateLocation(ctx context.Context, l *types.Location) error
	ListLocations(ctx context.Context, worldID string) ([]*types.Location, error)

	// Agents
	CreateAgent(ctx context.Context, a *types.Agent) error
	ListAgents(ctx context.Context, worldID string) ([]*types.Agent, error)
	UpdateAgent(ctx context.Context, a *types.Agent) error

	// Memories. Memories are append-only; only last_accessed_at mutates.
	CreateMemory(ctx context.Context, m *types.Memory) error
	ListMemories(ctx context.Context, agentID string) ([]*types.Memory, error)
	TouchMemories(ctx context.Context, ids []string, accessedAt time.Time) error
	// LatestReflectionAt returns the creation time of the agent's most
	// recent reflection memory, or the zero time if none exists. Single
	// query, so concurrent writers cannot race a client-side scan.
	LatestReflectionAt(ctx context.Context, agentID string) (time.Time, error)
	// SumObservationImportance sums importance of observation memories
	// created strictly after since.
	SumObservationImportance(ctx context.Context, agentID string, since time.Time) (int, error)

	// Plans
	CreatePlan(ctx context.Context, p *types.Plan) error
	GetPlan(ctx context.Context, id string) (*types.Plan, error)
	UpdatePlan(ctx context.Context, p *types.Plan) error
	DeletePlans(ctx context.Context, ids []string) error
	ListPlans(ctx context.Context, agentID string) ([]*types.Plan, error)

	// Events. Append-only.
	CreateEvent(ctx context.Context, e *types.Event) error
	// RecentEvents returns up to limit events for the world, newest first.
	RecentEvents(ctx context.Context, worldID string, limit int) ([]*types.Event, error)

	// Documents. Upsert is idempotent by (agent, normalized title).
	UpsertDocument(ctx context.Context, d *types.Document) error
	GetDocument(ctx context.Context, agentID, normalizedTitle string) (*types.Document, error)
	// SearchDocuments returns up to k of the agent's documents whose
	// embedding cosine similarity with the query meets the threshold,
	// best first.
	SearchDocuments(ctx context.Context, agentID string, queryEmbedding []float32, k int, threshold float64) ([]DocumentHit, error)

	Close() error
}

// New creates a store from configuration.
func New(cfg config.StoreConfig, dataDir string, embeddingDims int) (Store, error) {
	switch cfg.Provider {
	case config.ProviderMemory:
		return NewMemoryStore(embeddingDims), nil
	default:
		return NewSQLiteStore(resolvePath(dataDir, cfg.DatabasePath), embeddingDims)
	}
}
