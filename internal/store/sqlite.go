package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"smalltown/internal/logging"
	"smalltown/internal/types"
)

// timeFormat is ISO-8601 with timezone, the on-disk timestamp encoding.
const timeFormat = time.RFC3339Nano

// SQLiteStore implements Store over a single SQLite database file.
// Array-valued columns serialize to JSON text. Document embeddings get a
// vec0 side table when the sqlite-vec extension is available; otherwise
// search falls back to a brute-force scan.
type SQLiteStore struct {
	db            *sql.DB
	mu            sync.RWMutex
	dbPath        string
	embeddingDims int
	vectorExt     bool
}

func resolvePath(dataDir, dbPath string) string {
	if filepath.IsAbs(dbPath) {
		return dbPath
	}
	return filepath.Join(dataDir, dbPath)
}

// NewSQLiteStore opens (creating if needed) the database at path.
func NewSQLiteStore(path string, embeddingDims int) (*SQLiteStore, error) {
	timer := logging.StartTimer(logging.CategoryStore, "NewSQLiteStore")
	defer timer.Stop()

	logging.Store("Opening SQLite store at %s", path)

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.StoreDebug("Failed to set sqlite busy_timeout: %v", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logging.StoreDebug("Failed to set sqlite journal_mode=WAL: %v", err)
	}
	// synchronous=NORMAL is safe with WAL and much faster than FULL.
	if _, err := db.Exec("PRAGMA synchronous = NORMAL"); err != nil {
		logging.StoreDebug("Failed to set sqlite synchronous=NORMAL: %v", err)
	}

	s := &SQLiteStore{db: db, dbPath: path, embeddingDims: embeddingDims}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	s.detectVecExtension()
	if s.vectorExt {
		logging.Store("sqlite-vec extension detected; document ANN search enabled")
	} else {
		logging.Get(logging.CategoryStore).Warn("sqlite-vec extension not available; document search falls back to full scan")
	}

	logging.Store("SQLite store ready")
	return s, nil
}

// detectVecExtension probes for the vec0 module and creates the document
// side table when present.
func (s *SQLiteStore) detectVecExtension() {
	var version string
	if err := s.db.QueryRow("SELECT vec_version()").Scan(&version); err != nil {
		s.vectorExt = false
		return
	}
	logging.StoreDebug("sqlite-vec version: %s", version)

	create := fmt.Sprintf(
		"CREATE VIRTUAL TABLE IF NOT EXISTS doc_vec USING vec0(embedding float[%d] distance_metric=cosine)",
		s.embeddingDims,
	)
	if _, err := s.db.Exec(create); err != nil {
		logging.Get(logging.CategoryStore).Warn("Failed to create doc_vec table: %v", err)
		s.vectorExt = false
		return
	}
	s.vectorExt = true
}

// Close closes the database handle.
func (s *SQLiteStore) Close() error {
	logging.Store("Closing SQLite store")
	return s.db.Close()
}

// ---------------------------------------------------------------------------
// JSON column helpers
// ---------------------------------------------------------------------------

func marshalJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(data)
}

func unmarshalStrings(data string) []string {
	if data == "" || data == "null" {
		return nil
	}
	var out []string
	_ = json.Unmarshal([]byte(data), &out)
	return out
}

func unmarshalFloats(data string) []float32 {
	if data == "" || data == "null" {
		return nil
	}
	var out []float32
	_ = json.Unmarshal([]byte(data), &out)
	return out
}

func unmarshalStringMap(data string) map[string]string {
	if data == "" || data == "null" {
		return nil
	}
	var out map[string]string
	_ = json.Unmarshal([]byte(data), &out)
	return out
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeFormat, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// ---------------------------------------------------------------------------
// Worlds
// ---------------------------------------------------------------------------

func (s *SQLiteStore) CreateWorld(ctx context.Context, w *types.World) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO worlds (id, name) VALUES (?, ?)",
		w.ID, w.Name,
	)
	if err != nil {
		return fmt.Errorf("failed to insert world: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetWorldByName(ctx context.Context, name string) (*types.World, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var w types.World
	err := s.db.QueryRowContext(ctx,
		"SELECT id, name FROM worlds WHERE name = ?", name,
	).Scan(&w.ID, &w.Name)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: world %q", ErrNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query world: %w", err)
	}
	return &w, nil
}

// ---------------------------------------------------------------------------
// Locations
// ---------------------------------------------------------------------------

func (s *SQLiteStore) CreateLocation(ctx context.Context, l *types.Location) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO locations
		(id, world_id, name, description, channel_id, available_tools, allowed_agent_ids)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		l.ID, l.WorldID, l.Name, l.Description, l.ChannelID,
		marshalJSON(l.AvailableTools), marshalJSON(l.AllowedAgentIDs),
	)
	if err != nil {
		return fmt.Errorf("failed to insert location: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListLocations(ctx context.Context, worldID string) ([]*types.Location, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, world_id, name, description, channel_id, available_tools, allowed_agent_ids
		FROM locations WHERE world_id = ?`, worldID)
	if err != nil {
		return nil, fmt.Errorf("failed to query locations: %w", err)
	}
	defer rows.Close()

	var out []*types.Location
	for rows.Next() {
		var l types.Location
		var tools, allowed string
		if err := rows.Scan(&l.ID, &l.WorldID, &l.Name, &l.Description, &l.ChannelID, &tools, &allowed); err != nil {
			return nil, fmt.Errorf("failed to scan location: %w", err)
		}
		l.AvailableTools = unmarshalStrings(tools)
		l.AllowedAgentIDs = unmarshalStrings(allowed)
		out = append(out, &l)
	}
	return out, rows.Err()
}

// ---------------------------------------------------------------------------
// Agents
// ---------------------------------------------------------------------------

func (s *SQLiteStore) CreateAgent(ctx context.Context, a *types.Agent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO agents
		(id, world_id, full_name, private_bio, public_bio, directives, location_id,
		 ordered_plan_ids, channel_token, last_checked_events_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.WorldID, a.FullName, a.PrivateBio, a.PublicBio,
		marshalJSON(a.Directives), a.LocationID,
		marshalJSON(a.OrderedPlanIDs), a.ChannelToken,
		formatTime(a.LastCheckedEventsAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert agent: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListAgents(ctx context.Context, worldID string) ([]*types.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, world_id, full_name, private_bio, public_bio, directives, location_id,
		       ordered_plan_ids, channel_token, last_checked_events_at
		FROM agents WHERE world_id = ?`, worldID)
	if err != nil {
		return nil, fmt.Errorf("failed to query agents: %w", err)
	}
	defer rows.Close()

	var out []*types.Agent
	for rows.Next() {
		var a types.Agent
		var directives, planIDs, lastChecked string
		if err := rows.Scan(&a.ID, &a.WorldID, &a.FullName, &a.PrivateBio, &a.PublicBio,
			&directives, &a.LocationID, &planIDs, &a.ChannelToken, &lastChecked); err != nil {
			return nil, fmt.Errorf("failed to scan agent: %w", err)
		}
		a.Directives = unmarshalStrings(directives)
		a.OrderedPlanIDs = unmarshalStrings(planIDs)
		a.LastCheckedEventsAt = parseTime(lastChecked)
		out = append(out, &a)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) UpdateAgent(ctx context.Context, a *types.Agent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx, `
		UPDATE agents SET location_id = ?, ordered_plan_ids = ?, last_checked_events_at = ?
		WHERE id = ?`,
		a.LocationID, marshalJSON(a.OrderedPlanIDs), formatTime(a.LastCheckedEventsAt), a.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update agent: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: agent %s", ErrNotFound, a.ID)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Memories
// ---------------------------------------------------------------------------

func (s *SQLiteStore) CreateMemory(ctx context.Context, m *types.Memory) error {
	if err := validateMemory(m, s.embeddingDims); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO memories
		(id, agent_id, kind, description, embedding, importance, created_at,
		 last_accessed_at, related_memory_ids)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.AgentID, string(m.Kind), m.Description, marshalJSON(m.Embedding),
		m.Importance, formatTime(m.CreatedAt), formatTime(m.LastAccessedAt),
		marshalJSON(m.RelatedMemoryIDs),
	)
	if err != nil {
		return fmt.Errorf("failed to insert memory: %w", err)
	}
	return nil
}

// validateEvent enforces that events carry an emitting agent unless they
// originate from a human, who has no agent identity.
func validateEvent(e *types.Event) error {
	if e.AgentID != "" {
		return nil
	}
	if e.Subtype == types.MessageHumanAgentReply || e.Subtype == types.MessageHumanInChannel {
		return nil
	}
	return fmt.Errorf("%w: event missing agent id", ErrInvariant)
}

func validateMemory(m *types.Memory, dims int) error {
	if m.Importance < 1 || m.Importance > 10 {
		return fmt.Errorf("%w: importance %d out of range [1,10]", ErrInvariant, m.Importance)
	}
	if dims > 0 && len(m.Embedding) != dims {
		return fmt.Errorf("%w: embedding has %d dimensions, want %d", ErrInvariant, len(m.Embedding), dims)
	}
	if m.LastAccessedAt.Before(m.CreatedAt) {
		return fmt.Errorf("%w: last_accessed_at precedes created_at", ErrInvariant)
	}
	return nil
}

func (s *SQLiteStore) ListMemories(ctx context.Context, agentID string) ([]*types.Memory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, agent_id, kind, description, embedding, importance, created_at,
		       last_accessed_at, related_memory_ids
		FROM memories WHERE agent_id = ? ORDER BY created_at ASC`, agentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query memories: %w", err)
	}
	defer rows.Close()

	var out []*types.Memory
	for rows.Next() {
		var m types.Memory
		var kind, embedding, createdAt, lastAccessed, related string
		if err := rows.Scan(&m.ID, &m.AgentID, &kind, &m.Description, &embedding,
			&m.Importance, &createdAt, &lastAccessed, &related); err != nil {
			return nil, fmt.Errorf("failed to scan memory: %w", err)
		}
		m.Kind = types.MemoryKind(kind)
		m.Embedding = unmarshalFloats(embedding)
		m.CreatedAt = parseTime(createdAt)
		m.LastAccessedAt = parseTime(lastAccessed)
		m.RelatedMemoryIDs = unmarshalStrings(related)
		out = append(out, &m)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) TouchMemories(ctx context.Context, ids []string, accessedAt time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	stmt, err := s.db.PrepareContext(ctx, "UPDATE memories SET last_accessed_at = ? WHERE id = ?")
	if err != nil {
		return fmt.Errorf("failed to prepare touch: %w", err)
	}
	defer stmt.Close()
	for _, id := range ids {
		if _, err := stmt.ExecContext(ctx, formatTime(accessedAt), id); err != nil {
			return fmt.Errorf("failed to touch memory %s: %w", id, err)
		}
	}
	return nil
}

func (s *SQLiteStore) LatestReflectionAt(ctx context.Context, agentID string) (time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var createdAt string
	err := s.db.QueryRowContext(ctx, `
		SELECT created_at FROM memories
		WHERE agent_id = ? AND kind = ?
		ORDER BY created_at DESC LIMIT 1`,
		agentID, string(types.MemoryReflection),
	).Scan(&createdAt)
	if err == sql.ErrNoRows {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to query latest reflection: %w", err)
	}
	return parseTime(createdAt), nil
}

func (s *SQLiteStore) SumObservationImportance(ctx context.Context, agentID string, since time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var total sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		SELECT SUM(importance) FROM memories
		WHERE agent_id = ? AND kind = ? AND created_at > ?`,
		agentID, string(types.MemoryObservation), formatTime(since),
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to sum importance: %w", err)
	}
	return int(total.Int64), nil
}

// ---------------------------------------------------------------------------
// Plans
// ---------------------------------------------------------------------------

func (s *SQLiteStore) CreatePlan(ctx context.Context, p *types.Plan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.upsertPlanLocked(ctx, p)
}

func (s *SQLiteStore) upsertPlanLocked(ctx context.Context, p *types.Plan) error {
	var completedAt any
	if p.CompletedAt != nil {
		completedAt = formatTime(*p.CompletedAt)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO plans
		(id, agent_id, description, location_id, max_duration_hours, stop_condition,
		 status, scratchpad, created_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.AgentID, p.Description, p.LocationID, p.MaxDurationHours,
		p.StopCondition, string(p.Status), marshalJSON(p.Scratchpad),
		formatTime(p.CreatedAt), completedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert plan: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetPlan(ctx context.Context, id string) (*types.Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row := s.db.QueryRowContext(ctx, `
		SELECT id, agent_id, description, location_id, max_duration_hours, stop_condition,
		       status, scratchpad, created_at, completed_at
		FROM plans WHERE id = ?`, id)
	p, err := scanPlan(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: plan %s", ErrNotFound, id)
	}
	return p, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPlan(row rowScanner) (*types.Plan, error) {
	var p types.Plan
	var status, scratchpad, createdAt string
	var completedAt sql.NullString
	if err := row.Scan(&p.ID, &p.AgentID, &p.Description, &p.LocationID,
		&p.MaxDurationHours, &p.StopCondition, &status, &scratchpad,
		&createdAt, &completedAt); err != nil {
		return nil, err
	}
	p.Status = types.PlanStatus(status)
	_ = json.Unmarshal([]byte(scratchpad), &p.Scratchpad)
	p.CreatedAt = parseTime(createdAt)
	if completedAt.Valid {
		t := parseTime(completedAt.String)
		p.CompletedAt = &t
	}
	return &p, nil
}

func (s *SQLiteStore) UpdatePlan(ctx context.Context, p *types.Plan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.upsertPlanLocked(ctx, p)
}

func (s *SQLiteStore) DeletePlans(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	stmt, err := s.db.PrepareContext(ctx, "DELETE FROM plans WHERE id = ?")
	if err != nil {
		return fmt.Errorf("failed to prepare delete: %w", err)
	}
	defer stmt.Close()
	for _, id := range ids {
		if _, err := stmt.ExecContext(ctx, id); err != nil {
			return fmt.Errorf("failed to delete plan %s: %w", id, err)
		}
	}
	return nil
}

func (s *SQLiteStore) ListPlans(ctx context.Context, agentID string) ([]*types.Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, agent_id, description, location_id, max_duration_hours, stop_condition,
		       status, scratchpad, created_at, completed_at
		FROM plans WHERE agent_id = ? ORDER BY created_at ASC`, agentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query plans: %w", err)
	}
	defer rows.Close()

	var out []*types.Plan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan plan: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ---------------------------------------------------------------------------
// Events
// ---------------------------------------------------------------------------

func (s *SQLiteStore) CreateEvent(ctx context.Context, e *types.Event) error {
	if err := validateEvent(e); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO events
		(id, world_id, timestamp, type, subtype, agent_id, description, location_id,
		 witness_ids, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.WorldID, formatTime(e.Timestamp), string(e.Type), string(e.Subtype),
		e.AgentID, e.Description, e.LocationID,
		marshalJSON(e.WitnessIDs), marshalJSON(e.Metadata),
	)
	if err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}
	return nil
}

func (s *SQLiteStore) RecentEvents(ctx context.Context, worldID string, limit int) ([]*types.Event, error) {
	if limit <= 0 {
		limit = 500
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, world_id, timestamp, type, subtype, agent_id, description, location_id,
		       witness_ids, metadata
		FROM events WHERE world_id = ? ORDER BY timestamp DESC LIMIT ?`, worldID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var out []*types.Event
	for rows.Next() {
		var e types.Event
		var ts, etype, subtype, witnesses, metadata string
		if err := rows.Scan(&e.ID, &e.WorldID, &ts, &etype, &subtype, &e.AgentID,
			&e.Description, &e.LocationID, &witnesses, &metadata); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		e.Timestamp = parseTime(ts)
		e.Type = types.EventType(etype)
		e.Subtype = types.MessageSubtype(subtype)
		e.WitnessIDs = unmarshalStrings(witnesses)
		e.Metadata = unmarshalStringMap(metadata)
		out = append(out, &e)
	}
	return out, rows.Err()
}
