package store

import (
	"context"
	"database/sql"
)

// migration is one idempotent forward step. Each step's DDL runs inside its
// own transaction together with the schema-version bump, matching spec
// §4.1: "each migration is idempotent ... the schema version is bumped in
// the same transaction as the DDL."
type migration struct {
	version int
	stmts   []string
}

var migrations = []migration{
	{version: 1, stmts: migrationV1Stmts},
	{version: 2, stmts: migrationV2Stmts},
	{version: 3, stmts: migrationV3Stmts},
}

func (s *Store) migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, `CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`); err != nil {
		return err
	}

	current, err := s.schemaVersion(ctx)
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		m := m
		err := s.db.DoTxn(ctx, nil, func(txCtx context.Context) error {
			for _, stmt := range m.stmts {
				if _, err := s.db.Exec(txCtx, stmt); err != nil {
					return err
				}
			}
			if _, err := s.db.Exec(txCtx, `DELETE FROM schema_version`); err != nil {
				return err
			}
			_, err := s.db.Exec(txCtx, `INSERT INTO schema_version (version) VALUES ($1)`, m.version)
			return err
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) schemaVersion(ctx context.Context) (int, error) {
	row := s.db.QueryRow(ctx, `SELECT version FROM schema_version LIMIT 1`)
	var v int
	if err := row.Scan(&v); err != nil {
		if err == sql.ErrNoRows {
			return 0, nil
		}
		return 0, err
	}
	return v, nil
}

// migrationV1Stmts creates the core four-layer memory tables plus the
// graph and audit tables.
var migrationV1Stmts = []string{
	`CREATE TABLE IF NOT EXISTS memory_entries (
		id TEXT PRIMARY KEY,
		agent_id TEXT NOT NULL,
		type TEXT NOT NULL,
		content TEXT NOT NULL,
		confidence REAL NOT NULL,
		model TEXT NOT NULL,
		source_conversation_id TEXT,
		tags TEXT NOT NULL DEFAULT '[]',
		status TEXT NOT NULL DEFAULT 'active',
		superseded_by TEXT,
		created_at TEXT NOT NULL,
		last_accessed TEXT NOT NULL,
		access_count INTEGER NOT NULL DEFAULT 0,
		valid_from TEXT NOT NULL,
		valid_until TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_memory_entries_agent_status ON memory_entries(agent_id, status)`,
	`CREATE INDEX IF NOT EXISTS idx_memory_entries_agent_last_accessed ON memory_entries(agent_id, last_accessed)`,

	`CREATE TABLE IF NOT EXISTS user_profile (
		version INTEGER PRIMARY KEY,
		content TEXT NOT NULL,
		token_count INTEGER NOT NULL DEFAULT 0,
		model TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'active',
		generated_at TEXT NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS profile_events (
		id TEXT PRIMARY KEY,
		agent_id TEXT NOT NULL,
		conversation_id TEXT,
		event_type TEXT NOT NULL,
		content TEXT NOT NULL,
		model TEXT,
		status TEXT NOT NULL DEFAULT 'active',
		incorporated_in INTEGER,
		created_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_profile_events_incorporated ON profile_events(incorporated_in)`,

	`CREATE TABLE IF NOT EXISTS user_edits (
		id TEXT PRIMARY KEY,
		content TEXT NOT NULL,
		created_at TEXT NOT NULL,
		deleted_at TEXT
	)`,

	`CREATE TABLE IF NOT EXISTS conversations (
		id TEXT PRIMARY KEY,
		agent_id TEXT NOT NULL,
		title TEXT,
		started_at TEXT NOT NULL,
		last_message_at TEXT NOT NULL,
		message_count INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL DEFAULT 'active'
	)`,
	`CREATE INDEX IF NOT EXISTS idx_conversations_agent ON conversations(agent_id)`,

	`CREATE TABLE IF NOT EXISTS chunks (
		id TEXT PRIMARY KEY,
		conversation_id TEXT NOT NULL,
		chunk_index INTEGER NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		token_count INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		UNIQUE(conversation_id, chunk_index)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_chunks_conversation ON chunks(conversation_id)`,

	`CREATE TABLE IF NOT EXISTS conversation_summaries (
		id TEXT PRIMARY KEY,
		agent_id TEXT NOT NULL,
		conversation_id TEXT NOT NULL,
		summary TEXT NOT NULL,
		token_count INTEGER NOT NULL DEFAULT 0,
		model TEXT NOT NULL,
		conversation_at TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'active',
		created_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_summaries_agent_conversation ON conversation_summaries(agent_id, conversation_id, status)`,

	`CREATE TABLE IF NOT EXISTS pending_signals (
		id TEXT PRIMARY KEY,
		agent_id TEXT NOT NULL,
		conversation_id TEXT NOT NULL,
		signal_type TEXT NOT NULL,
		user_message TEXT NOT NULL,
		assistant_message TEXT,
		status TEXT NOT NULL DEFAULT 'pending',
		created_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_pending_signals_conversation ON pending_signals(conversation_id, status)`,

	`CREATE TABLE IF NOT EXISTS graph_entities (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		type TEXT NOT NULL,
		metadata TEXT,
		model TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_graph_entities_name_type ON graph_entities(name, type)`,

	`CREATE TABLE IF NOT EXISTS graph_relationships (
		id TEXT PRIMARY KEY,
		source_id TEXT NOT NULL,
		target_id TEXT NOT NULL,
		relation TEXT NOT NULL,
		confidence REAL NOT NULL,
		model TEXT NOT NULL,
		valid_from TEXT NOT NULL,
		valid_until TEXT,
		created_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_graph_rel_source_relation ON graph_relationships(source_id, relation, valid_until)`,

	`CREATE TABLE IF NOT EXISTS processing_log (
		id TEXT PRIMARY KEY,
		agent_id TEXT NOT NULL,
		task_type TEXT NOT NULL,
		model TEXT,
		status TEXT NOT NULL,
		details TEXT,
		input_tokens INTEGER NOT NULL DEFAULT 0,
		output_tokens INTEGER NOT NULL DEFAULT 0,
		duration_ms INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_processing_log_created ON processing_log(created_at)`,

	`CREATE TABLE IF NOT EXISTS memory_events (
		id TEXT PRIMARY KEY,
		entry_id TEXT NOT NULL,
		event_type TEXT NOT NULL,
		agent_id TEXT,
		model TEXT,
		reason TEXT,
		created_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_memory_events_entry ON memory_events(entry_id)`,
}

// migrationV2Stmts adds the embedding index table used by SearchService's
// persisted-vector bookkeeping (VectorIndex itself stays in memory; this
// table lets a restart re-derive it without recomputing embeddings).
var migrationV2Stmts = []string{
	`CREATE TABLE IF NOT EXISTS embedding_index (
		source_type TEXT NOT NULL,
		source_id TEXT NOT NULL,
		embedding BLOB NOT NULL,
		model TEXT NOT NULL,
		created_at TEXT NOT NULL,
		PRIMARY KEY (source_type, source_id)
	)`,
}

// migrationV3Stmts adds the FTS5 lexical indices SearchService's keyword
// leg reads from, one per source type, mirroring the teacher's
// ai_memory_chunks_fts virtual table.
var migrationV3Stmts = []string{
	`CREATE VIRTUAL TABLE IF NOT EXISTS entries_fts USING fts5(
		content, source_id UNINDEXED, agent_id UNINDEXED
	)`,
	`CREATE VIRTUAL TABLE IF NOT EXISTS chunks_fts USING fts5(
		content, source_id UNINDEXED, agent_id UNINDEXED, conversation_id UNINDEXED
	)`,
	`CREATE VIRTUAL TABLE IF NOT EXISTS summaries_fts USING fts5(
		content, source_id UNINDEXED, agent_id UNINDEXED
	)`,
}
