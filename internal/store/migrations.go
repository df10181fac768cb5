// Versioned schema migrations. The schema version lives in the
// schema_version table; migrations apply in order inside a transaction.
package store

import (
	"fmt"

	"smalltown/internal/logging"
)

// Schema versions:
// v1: worlds, locations, agents, memories, plans, events, documents
const currentSchemaVersion = 1

var migrations = []string{
	// v1: full initial schema
	`
	CREATE TABLE IF NOT EXISTS worlds (
		id   TEXT PRIMARY KEY,
		name TEXT NOT NULL UNIQUE
	);

	CREATE TABLE IF NOT EXISTS locations (
		id                TEXT PRIMARY KEY,
		world_id          TEXT NOT NULL REFERENCES worlds(id),
		name              TEXT NOT NULL,
		description       TEXT NOT NULL DEFAULT '',
		channel_id        TEXT NOT NULL DEFAULT '',
		available_tools   TEXT NOT NULL DEFAULT '[]',
		allowed_agent_ids TEXT NOT NULL DEFAULT '[]'
	);
	CREATE INDEX IF NOT EXISTS idx_locations_world ON locations(world_id);

	CREATE TABLE IF NOT EXISTS agents (
		id                     TEXT PRIMARY KEY,
		world_id               TEXT NOT NULL REFERENCES worlds(id),
		full_name              TEXT NOT NULL,
		private_bio            TEXT NOT NULL DEFAULT '',
		public_bio             TEXT NOT NULL DEFAULT '',
		directives             TEXT NOT NULL DEFAULT '[]',
		location_id            TEXT NOT NULL,
		ordered_plan_ids       TEXT NOT NULL DEFAULT '[]',
		channel_token          TEXT NOT NULL DEFAULT '',
		last_checked_events_at TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_agents_world ON agents(world_id);

	CREATE TABLE IF NOT EXISTS memories (
		id                 TEXT PRIMARY KEY,
		agent_id           TEXT NOT NULL,
		kind               TEXT NOT NULL,
		description        TEXT NOT NULL,
		embedding          TEXT NOT NULL DEFAULT '[]',
		importance         INTEGER NOT NULL,
		created_at         TEXT NOT NULL,
		last_accessed_at   TEXT NOT NULL,
		related_memory_ids TEXT NOT NULL DEFAULT '[]'
	);
	CREATE INDEX IF NOT EXISTS idx_memories_agent ON memories(agent_id);
	CREATE INDEX IF NOT EXISTS idx_memories_agent_kind ON memories(agent_id, kind, created_at);

	CREATE TABLE IF NOT EXISTS plans (
		id                 TEXT PRIMARY KEY,
		agent_id           TEXT NOT NULL,
		description        TEXT NOT NULL,
		location_id        TEXT NOT NULL,
		max_duration_hours REAL NOT NULL,
		stop_condition     TEXT NOT NULL DEFAULT '',
		status             TEXT NOT NULL,
		scratchpad         TEXT NOT NULL DEFAULT '[]',
		created_at         TEXT NOT NULL,
		completed_at       TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_plans_agent ON plans(agent_id);

	CREATE TABLE IF NOT EXISTS events (
		id          TEXT PRIMARY KEY,
		world_id    TEXT NOT NULL,
		timestamp   TEXT NOT NULL,
		type        TEXT NOT NULL,
		subtype     TEXT NOT NULL DEFAULT '',
		agent_id    TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL,
		location_id TEXT NOT NULL,
		witness_ids TEXT NOT NULL DEFAULT '[]',
		metadata    TEXT NOT NULL DEFAULT 'null'
	);
	CREATE INDEX IF NOT EXISTS idx_events_world_ts ON events(world_id, timestamp DESC);

	CREATE TABLE IF NOT EXISTS documents (
		id               TEXT PRIMARY KEY,
		agent_id         TEXT NOT NULL,
		title            TEXT NOT NULL,
		normalized_title TEXT NOT NULL,
		content          TEXT NOT NULL,
		embedding        TEXT NOT NULL DEFAULT '[]',
		created_at       TEXT NOT NULL,
		updated_at       TEXT NOT NULL,
		UNIQUE(agent_id, normalized_title)
	);
	`,
}

// migrate brings the schema up to currentSchemaVersion.
func (s *SQLiteStore) migrate() error {
	timer := logging.StartTimer(logging.CategoryStore, "migrate")
	defer timer.Stop()

	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version    INTEGER NOT NULL,
			applied_at TEXT NOT NULL
		)`); err != nil {
		return fmt.Errorf("failed to create schema_version table: %w", err)
	}

	var version int
	if err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&version); err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	if version >= currentSchemaVersion {
		logging.StoreDebug("Schema up to date at v%d", version)
		return nil
	}

	logging.Store("Migrating schema from v%d to v%d", version, currentSchemaVersion)
	for v := version; v < currentSchemaVersion; v++ {
		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("failed to begin migration tx: %w", err)
		}
		if _, err := tx.Exec(migrations[v]); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration to v%d failed: %w", v+1, err)
		}
		if _, err := tx.Exec(
			"INSERT INTO schema_version (version, applied_at) VALUES (?, datetime('now'))",
			v+1,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration v%d: %w", v+1, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration v%d: %w", v+1, err)
		}
		logging.Store("Migration applied: v%d", v+1)
	}
	return nil
}
