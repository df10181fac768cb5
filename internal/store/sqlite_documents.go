package store

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	"smalltown/internal/embedding"
	"smalltown/internal/logging"
	"smalltown/internal/types"
)

// UpsertDocument inserts or overwrites the document identified by
// (agent_id, normalized_title). The vec0 side table row is kept in sync
// when the extension is available.
func (s *SQLiteStore) UpsertDocument(ctx context.Context, d *types.Document) error {
	timer := logging.StartTimer(logging.CategoryStore, "UpsertDocument")
	defer timer.Stop()

	s.mu.Lock()
	defer s.mu.Unlock()

	// Reuse the row id on overwrite so the vec rowid stays stable.
	var existingID string
	err := s.db.QueryRowContext(ctx,
		"SELECT id FROM documents WHERE agent_id = ? AND normalized_title = ?",
		d.AgentID, d.NormalizedTitle,
	).Scan(&existingID)
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("failed to check existing document: %w", err)
	}
	if existingID != "" {
		d.ID = existingID
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO documents
		(id, agent_id, title, normalized_title, content, embedding, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(agent_id, normalized_title) DO UPDATE SET
			title = excluded.title,
			content = excluded.content,
			embedding = excluded.embedding,
			updated_at = excluded.updated_at`,
		d.ID, d.AgentID, d.Title, d.NormalizedTitle, d.Content,
		marshalJSON(d.Embedding), formatTime(d.CreatedAt), formatTime(d.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert document: %w", err)
	}

	if s.vectorExt && len(d.Embedding) > 0 {
		if err := s.syncDocVecLocked(ctx, d); err != nil {
			// The row store stays authoritative; a stale index entry only
			// degrades recall.
			logging.Get(logging.CategoryStore).Warn("Failed to sync doc_vec for %s: %v", d.ID, err)
		}
	}
	return nil
}

func (s *SQLiteStore) syncDocVecLocked(ctx context.Context, d *types.Document) error {
	var rowid int64
	if err := s.db.QueryRowContext(ctx,
		"SELECT rowid FROM documents WHERE id = ?", d.ID,
	).Scan(&rowid); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, "DELETE FROM doc_vec WHERE rowid = ?", rowid); err != nil {
		return err
	}
	// vec0 accepts embeddings as JSON text.
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO doc_vec (rowid, embedding) VALUES (?, ?)",
		rowid, marshalJSON(d.Embedding),
	)
	return err
}

// GetDocument returns the document owned by the agent under the normalized
// title.
func (s *SQLiteStore) GetDocument(ctx context.Context, agentID, normalizedTitle string) (*types.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row := s.db.QueryRowContext(ctx, `
		SELECT id, agent_id, title, normalized_title, content, embedding, created_at, updated_at
		FROM documents WHERE agent_id = ? AND normalized_title = ?`,
		agentID, normalizedTitle)
	d, err := scanDocument(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: document %q", ErrNotFound, normalizedTitle)
	}
	return d, err
}

func scanDocument(row rowScanner) (*types.Document, error) {
	var d types.Document
	var emb, createdAt, updatedAt string
	if err := row.Scan(&d.ID, &d.AgentID, &d.Title, &d.NormalizedTitle, &d.Content,
		&emb, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	d.Embedding = unmarshalFloats(emb)
	d.CreatedAt = parseTime(createdAt)
	d.UpdatedAt = parseTime(updatedAt)
	return &d, nil
}

// SearchDocuments returns up to k of the agent's documents above the
// similarity threshold, best first. Uses the vec0 index when available,
// otherwise a full scan.
func (s *SQLiteStore) SearchDocuments(ctx context.Context, agentID string, queryEmbedding []float32, k int, threshold float64) ([]DocumentHit, error) {
	timer := logging.StartTimer(logging.CategoryStore, "SearchDocuments")
	defer timer.Stop()

	if k <= 0 {
		k = 10
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.vectorExt {
		hits, err := s.searchDocumentsVecLocked(ctx, agentID, queryEmbedding, k, threshold)
		if err == nil {
			return hits, nil
		}
		logging.Get(logging.CategoryStore).Warn("vec search failed, falling back to scan: %v", err)
	}
	return s.searchDocumentsScanLocked(ctx, agentID, queryEmbedding, k, threshold)
}

func (s *SQLiteStore) searchDocumentsVecLocked(ctx context.Context, agentID string, query []float32, k int, threshold float64) ([]DocumentHit, error) {
	// Over-fetch from the index, then filter by owner; the owner check
	// cannot ride inside the MATCH constraint.
	rows, err := s.db.QueryContext(ctx, `
		SELECT d.id, d.agent_id, d.title, d.normalized_title, d.content, d.embedding,
		       d.created_at, d.updated_at, v.distance
		FROM doc_vec v
		JOIN documents d ON d.rowid = v.rowid
		WHERE v.embedding MATCH ? AND v.k = ?
		ORDER BY v.distance`,
		marshalJSON(query), k*4)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hits []DocumentHit
	for rows.Next() {
		var d types.Document
		var emb, createdAt, updatedAt string
		var distance float64
		if err := rows.Scan(&d.ID, &d.AgentID, &d.Title, &d.NormalizedTitle, &d.Content,
			&emb, &createdAt, &updatedAt, &distance); err != nil {
			return nil, err
		}
		if d.AgentID != agentID {
			continue
		}
		// Cosine distance is 1 - similarity.
		similarity := 1 - distance
		if similarity < threshold {
			continue
		}
		d.Embedding = unmarshalFloats(emb)
		d.CreatedAt = parseTime(createdAt)
		d.UpdatedAt = parseTime(updatedAt)
		hits = append(hits, DocumentHit{Document: &d, Similarity: similarity})
		if len(hits) == k {
			break
		}
	}
	return hits, rows.Err()
}

func (s *SQLiteStore) searchDocumentsScanLocked(ctx context.Context, agentID string, query []float32, k int, threshold float64) ([]DocumentHit, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, agent_id, title, normalized_title, content, embedding, created_at, updated_at
		FROM documents WHERE agent_id = ?`, agentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer rows.Close()

	var hits []DocumentHit
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		sim, err := embedding.CosineSimilarity(query, d.Embedding)
		if err != nil {
			continue
		}
		if sim >= threshold {
			hits = append(hits, DocumentHit{Document: d, Similarity: sim})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(hits, func(i, j int) bool { return hits[i].Similarity > hits[j].Similarity })
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}
