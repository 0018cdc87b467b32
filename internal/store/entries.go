package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"sort"
	"time"
)

const timeFmt = time.RFC3339Nano

func formatTime(t time.Time) string { return t.UTC().Format(timeFmt) }

func parseTime(s string) time.Time {
	t, err := time.Parse(timeFmt, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func parseTimePtr(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t := parseTime(s.String)
	return &t
}

// InsertEntry inserts entry and writes a "created" memory event in one
// transaction, per spec §4.1. Returns a conflict error on primary-key
// collision.
func (s *Store) InsertEntry(ctx context.Context, e MemoryEntry) error {
	if e.ID == "" {
		e.ID = NewID()
	}
	tagsJSON, err := json.Marshal(e.Tags)
	if err != nil {
		return err
	}
	return s.DoTxn(ctx, func(txCtx context.Context) error {
		if err := s.insertEntryRow(txCtx, e, tagsJSON); err != nil {
			return err
		}
		return s.insertMemoryEvent(txCtx, MemoryEvent{
			ID:        NewLogID(),
			EntryID:   e.ID,
			EventType: MemoryEventCreated,
			AgentID:   e.AgentID,
			Model:     e.Model,
			CreatedAt: time.Now().UTC(),
		})
	})
}

func (s *Store) insertEntryRow(ctx context.Context, e MemoryEntry, tagsJSON []byte) error {
	var validUntil any
	if e.ValidUntil != nil {
		validUntil = formatTime(*e.ValidUntil)
	}
	var supersededBy any
	if e.SupersededBy != "" {
		supersededBy = e.SupersededBy
	}
	_, err := s.db.Exec(ctx,
		`INSERT INTO memory_entries
			(id, agent_id, type, content, confidence, model, source_conversation_id, tags,
			 status, superseded_by, created_at, last_accessed, access_count, valid_from, valid_until)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
		e.ID, e.AgentID, e.Type, e.Content, e.Confidence, e.Model, nullIfEmpty(e.SourceConversationID), string(tagsJSON),
		e.Status, supersededBy, formatTime(e.CreatedAt), formatTime(e.LastAccessed), e.AccessCount,
		formatTime(e.ValidFrom), validUntil,
	)
	if err != nil {
		if isUniqueConflict(err) {
			return NewConflictError(err)
		}
		return NewExecuteError(err)
	}
	return nil
}

func (s *Store) insertMemoryEvent(ctx context.Context, ev MemoryEvent) error {
	if ev.ID == "" {
		ev.ID = NewLogID()
	}
	_, err := s.db.Exec(ctx,
		`INSERT INTO memory_events (id, entry_id, event_type, agent_id, model, reason, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		ev.ID, ev.EntryID, ev.EventType, nullIfEmpty(ev.AgentID), nullIfEmpty(ev.Model), nullIfEmpty(ev.Reason), formatTime(ev.CreatedAt),
	)
	return err
}

// SupersedeAndInsert closes oldID (status=superseded, superseded_by=new.id,
// valid_until=now) and inserts newEntry, writing both "superseded" and
// "created" audit events, atomically.
func (s *Store) SupersedeAndInsert(ctx context.Context, oldID string, newEntry MemoryEntry, reason string) error {
	if newEntry.ID == "" {
		newEntry.ID = NewID()
	}
	tagsJSON, err := json.Marshal(newEntry.Tags)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	return s.DoTxn(ctx, func(txCtx context.Context) error {
		res, err := s.db.Exec(txCtx,
			`UPDATE memory_entries SET status=$1, superseded_by=$2, valid_until=$3
			 WHERE id=$4 AND status=$5`,
			EntryStatusSuperseded, newEntry.ID, formatTime(now), oldID, EntryStatusActive,
		)
		if err != nil {
			return NewExecuteError(err)
		}
		if rows, _ := res.RowsAffected(); rows == 0 {
			return NewConflictError(sql.ErrNoRows)
		}
		if err := s.insertEntryRow(txCtx, newEntry, tagsJSON); err != nil {
			return err
		}
		if err := s.insertMemoryEvent(txCtx, MemoryEvent{
			ID: NewLogID(), EntryID: oldID, EventType: MemoryEventSuperseded,
			AgentID: newEntry.AgentID, Model: newEntry.Model, Reason: reason, CreatedAt: now,
		}); err != nil {
			return err
		}
		return s.insertMemoryEvent(txCtx, MemoryEvent{
			ID: NewLogID(), EntryID: newEntry.ID, EventType: MemoryEventCreated,
			AgentID: newEntry.AgentID, Model: newEntry.Model, CreatedAt: now,
		})
	})
}

// LoadActiveEntries returns up to limit active entries for agentID,
// newest-last-accessed first when limit <= 0 all are returned (no limit).
func (s *Store) LoadActiveEntries(ctx context.Context, agentID string, limit int) ([]MemoryEntry, error) {
	q := `SELECT id, agent_id, type, content, confidence, model, source_conversation_id, tags,
	             status, superseded_by, created_at, last_accessed, access_count, valid_from, valid_until
	      FROM memory_entries WHERE agent_id=$1 AND status=$2 ORDER BY last_accessed DESC`
	args := []any{agentID, EntryStatusActive}
	if limit > 0 {
		q += " LIMIT $3"
		args = append(args, limit)
	}
	rows, err := s.db.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEntries(rows)
}

// EntriesAsOf returns entries valid at time t: valid_from <= t AND
// (valid_until IS NULL OR valid_until > t).
func (s *Store) EntriesAsOf(ctx context.Context, agentID string, t time.Time) ([]MemoryEntry, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, agent_id, type, content, confidence, model, source_conversation_id, tags,
		        status, superseded_by, created_at, last_accessed, access_count, valid_from, valid_until
		 FROM memory_entries
		 WHERE agent_id=$1 AND valid_from <= $2 AND (valid_until IS NULL OR valid_until > $2)
		 ORDER BY valid_from DESC`,
		agentID, formatTime(t),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEntries(rows)
}

func scanEntries(rows *sql.Rows) ([]MemoryEntry, error) {
	var out []MemoryEntry
	for rows.Next() {
		var e MemoryEntry
		var tagsJSON string
		var sourceConv, supersededBy sql.NullString
		var createdAt, lastAccessed, validFrom string
		var validUntil sql.NullString
		if err := rows.Scan(&e.ID, &e.AgentID, &e.Type, &e.Content, &e.Confidence, &e.Model,
			&sourceConv, &tagsJSON, &e.Status, &supersededBy, &createdAt, &lastAccessed,
			&e.AccessCount, &validFrom, &validUntil); err != nil {
			return nil, err
		}
		e.SourceConversationID = sourceConv.String
		e.SupersededBy = supersededBy.String
		e.CreatedAt = parseTime(createdAt)
		e.LastAccessed = parseTime(lastAccessed)
		e.ValidFrom = parseTime(validFrom)
		e.ValidUntil = parseTimePtr(validUntil)
		_ = json.Unmarshal([]byte(tagsJSON), &e.Tags)
		out = append(out, e)
	}
	return out, rows.Err()
}

// ArchiveExcess archives the (count - max) active entries with the lowest
// (last_accessed, access_count), oldest first, if the agent's active-entry
// count exceeds max. Returns the number archived. max <= 0 means
// unlimited.
func (s *Store) ArchiveExcess(ctx context.Context, agentID string, max int) (int, error) {
	if max <= 0 {
		return 0, nil
	}
	entries, err := s.LoadActiveEntries(ctx, agentID, 0)
	if err != nil {
		return 0, err
	}
	if len(entries) <= max {
		return 0, nil
	}
	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].LastAccessed.Equal(entries[j].LastAccessed) {
			return entries[i].LastAccessed.Before(entries[j].LastAccessed)
		}
		return entries[i].AccessCount < entries[j].AccessCount
	})
	toArchive := entries[:len(entries)-max]
	now := formatTime(time.Now().UTC())
	err = s.DoTxn(ctx, func(txCtx context.Context) error {
		for _, e := range toArchive {
			if _, err := s.db.Exec(txCtx,
				`UPDATE memory_entries SET status=$1, valid_until=$2 WHERE id=$3 AND status=$4`,
				EntryStatusArchived, now, e.ID, EntryStatusActive,
			); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(toArchive), nil
}

// TouchEntries batches last_accessed=now, access_count+=1 for the given
// ids, as used by ContextAssembler when it emits working-memory lines.
func (s *Store) TouchEntries(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	now := formatTime(time.Now().UTC())
	return s.DoTxn(ctx, func(txCtx context.Context) error {
		for _, id := range ids {
			if _, err := s.db.Exec(txCtx,
				`UPDATE memory_entries SET last_accessed=$1, access_count=access_count+1 WHERE id=$2`,
				now, id,
			); err != nil {
				return err
			}
		}
		return nil
	})
}

// CountActiveEntries returns the active-entry count for agentID, used by
// the GET /agents diagnostics endpoint.
func (s *Store) CountActiveEntries(ctx context.Context, agentID string) (int, error) {
	row := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM memory_entries WHERE agent_id=$1 AND status=$2`, agentID, EntryStatusActive)
	var n int
	err := row.Scan(&n)
	return n, err
}

// entryTypesForCounts enumerates the entry types the GET /agents breakdown
// reports, one scoped COUNT per type.
var entryTypesForCounts = []string{
	EntryTypeFact, EntryTypePreference, EntryTypeDecision,
	EntryTypeCorrection, EntryTypeCommitment, EntryTypeRelation, EntryTypeSkill,
}

// CountActiveEntriesByType returns a per-type breakdown of agentID's active
// entries, one scoped COUNT query per type, mirroring the teacher's
// buildSourceCounts (memory_manager.go): a fixed set of sources, each
// counted with its own narrowly-scoped query rather than one GROUP BY.
// Types with zero active entries are omitted.
func (s *Store) CountActiveEntriesByType(ctx context.Context, agentID string) (map[string]int, error) {
	out := make(map[string]int, len(entryTypesForCounts))
	for _, typ := range entryTypesForCounts {
		row := s.db.QueryRow(ctx,
			`SELECT COUNT(*) FROM memory_entries WHERE agent_id=$1 AND status=$2 AND type=$3`,
			agentID, EntryStatusActive, typ,
		)
		var n int
		if err := row.Scan(&n); err != nil {
			return nil, err
		}
		if n > 0 {
			out[typ] = n
		}
	}
	return out, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// isUniqueConflict reports whether err looks like a sqlite uniqueness
// violation. The mattn/go-sqlite3 driver surfaces these as
// sqlite3.ErrConstraintUnique / ErrConstraintPrimaryKey wrapped in
// sqlite3.Error; we match on the error text to avoid an explicit driver
// import here in favor of the narrower helper in conflict.go.
func isUniqueConflict(err error) bool {
	return containsConstraintText(err)
}
