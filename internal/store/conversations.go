package store

import (
	"context"
	"database/sql"
	"time"
)

// UpsertConversation creates the conversation row if absent, or bumps
// last_message_at if present. message_count is advanced by AppendChunk.
func (s *Store) UpsertConversation(ctx context.Context, id, agentID string) error {
	now := formatTime(time.Now().UTC())
	_, err := s.db.Exec(ctx,
		`INSERT INTO conversations (id, agent_id, started_at, last_message_at, message_count, status)
		 VALUES ($1,$2,$3,$3,0,$4)
		 ON CONFLICT(id) DO UPDATE SET last_message_at=excluded.last_message_at`,
		id, agentID, now, EntryStatusActive,
	)
	return err
}

func (s *Store) bumpConversationMessageCount(ctx context.Context, conversationID string) error {
	_, err := s.db.Exec(ctx,
		`UPDATE conversations SET message_count=message_count+1, last_message_at=$1 WHERE id=$2`,
		formatTime(time.Now().UTC()), conversationID,
	)
	return err
}

// AppendChunk inserts a chunk at the next chunk_index for conversationID
// and bumps the conversation's message_count, atomically. agentID is used
// only to populate the FTS filter column.
func (s *Store) AppendChunk(ctx context.Context, agentID, conversationID, role, content string, tokenCount int) (Chunk, error) {
	c := Chunk{
		ID:             NewID(),
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		TokenCount:     tokenCount,
		CreatedAt:      time.Now().UTC(),
	}
	err := s.DoTxn(ctx, func(txCtx context.Context) error {
		row := s.db.QueryRow(txCtx, `SELECT COALESCE(MAX(chunk_index), -1) + 1 FROM chunks WHERE conversation_id=$1`, conversationID)
		if err := row.Scan(&c.ChunkIndex); err != nil {
			return err
		}
		if _, err := s.db.Exec(txCtx,
			`INSERT INTO chunks (id, conversation_id, chunk_index, role, content, token_count, created_at)
			 VALUES ($1,$2,$3,$4,$5,$6,$7)`,
			c.ID, c.ConversationID, c.ChunkIndex, c.Role, c.Content, c.TokenCount, formatTime(c.CreatedAt),
		); err != nil {
			if isUniqueConflict(err) {
				return NewConflictError(err)
			}
			return NewExecuteError(err)
		}
		if _, err := s.db.Exec(txCtx,
			`INSERT INTO chunks_fts (content, source_id, agent_id, conversation_id) VALUES ($1,$2,$3,$4)`,
			c.Content, c.ID, agentID, c.ConversationID,
		); err != nil {
			return err
		}
		return s.bumpConversationMessageCount(txCtx, conversationID)
	})
	return c, err
}

// ChunksForConversation returns all chunks for a conversation in
// chunk_index order.
func (s *Store) ChunksForConversation(ctx context.Context, conversationID string) ([]Chunk, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, conversation_id, chunk_index, role, content, token_count, created_at
		 FROM chunks WHERE conversation_id=$1 ORDER BY chunk_index ASC`, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Chunk
	for rows.Next() {
		var c Chunk
		var createdAt string
		if err := rows.Scan(&c.ID, &c.ConversationID, &c.ChunkIndex, &c.Role, &c.Content, &c.TokenCount, &createdAt); err != nil {
			return nil, err
		}
		c.CreatedAt = parseTime(createdAt)
		out = append(out, c)
	}
	return out, rows.Err()
}

// ChunkByID loads a single chunk by id. Returns ok=false if not found.
func (s *Store) ChunkByID(ctx context.Context, id string) (Chunk, bool, error) {
	row := s.db.QueryRow(ctx,
		`SELECT id, conversation_id, chunk_index, role, content, token_count, created_at
		 FROM chunks WHERE id=$1`, id)
	var c Chunk
	var createdAt string
	if err := row.Scan(&c.ID, &c.ConversationID, &c.ChunkIndex, &c.Role, &c.Content, &c.TokenCount, &createdAt); err != nil {
		if err == sql.ErrNoRows {
			return Chunk{}, false, nil
		}
		return Chunk{}, false, err
	}
	c.CreatedAt = parseTime(createdAt)
	return c, true, nil
}

// InsertPendingSignal persists a raw turn. Never blocks on model work, per
// spec §4.7 step 1.
func (s *Store) InsertPendingSignal(ctx context.Context, sig PendingSignal) (string, error) {
	if sig.ID == "" {
		sig.ID = NewID()
	}
	if sig.Status == "" {
		sig.Status = SignalStatusPending
	}
	if sig.CreatedAt.IsZero() {
		sig.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.Exec(ctx,
		`INSERT INTO pending_signals (id, agent_id, conversation_id, signal_type, user_message, assistant_message, status, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		sig.ID, sig.AgentID, sig.ConversationID, sig.SignalType, sig.UserMessage,
		nullIfEmpty(sig.AssistantMessage), sig.Status, formatTime(sig.CreatedAt),
	)
	return sig.ID, err
}

// PendingSignalsForConversation returns pending signals for a conversation
// in creation order.
func (s *Store) PendingSignalsForConversation(ctx context.Context, conversationID string) ([]PendingSignal, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, agent_id, conversation_id, signal_type, user_message, assistant_message, status, created_at
		 FROM pending_signals WHERE conversation_id=$1 AND status=$2 ORDER BY created_at ASC`,
		conversationID, SignalStatusPending,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []PendingSignal
	for rows.Next() {
		var sig PendingSignal
		var assistant sql.NullString
		var createdAt string
		if err := rows.Scan(&sig.ID, &sig.AgentID, &sig.ConversationID, &sig.SignalType, &sig.UserMessage, &assistant, &sig.Status, &createdAt); err != nil {
			return nil, err
		}
		sig.AssistantMessage = assistant.String
		sig.CreatedAt = parseTime(createdAt)
		out = append(out, sig)
	}
	return out, rows.Err()
}

// DistinctConversationsWithPendingSignals enumerates (agent_id,
// conversation_id) pairs with at least one pending signal, used by
// recover_orphaned_signals at startup.
func (s *Store) DistinctConversationsWithPendingSignals(ctx context.Context) ([][2]string, error) {
	rows, err := s.db.Query(ctx,
		`SELECT DISTINCT agent_id, conversation_id FROM pending_signals WHERE status=$1`, SignalStatusPending)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out [][2]string
	for rows.Next() {
		var agentID, convID string
		if err := rows.Scan(&agentID, &convID); err != nil {
			return nil, err
		}
		out = append(out, [2]string{agentID, convID})
	}
	return out, rows.Err()
}

// InsertSummaryAndMarkProcessed inserts summary and flips all pending
// signals for that conversation to processed, atomically, per spec §4.1.
func (s *Store) InsertSummaryAndMarkProcessed(ctx context.Context, sum ConversationSummary) error {
	if sum.ID == "" {
		sum.ID = NewID()
	}
	if sum.Status == "" {
		sum.Status = EntryStatusActive
	}
	if sum.CreatedAt.IsZero() {
		sum.CreatedAt = time.Now().UTC()
	}
	return s.DoTxn(ctx, func(txCtx context.Context) error {
		if _, err := s.db.Exec(txCtx,
			`UPDATE conversation_summaries SET status=$1 WHERE agent_id=$2 AND conversation_id=$3 AND status=$4`,
			EntryStatusSuperseded, sum.AgentID, sum.ConversationID, EntryStatusActive,
		); err != nil {
			return err
		}
		if _, err := s.db.Exec(txCtx,
			`INSERT INTO conversation_summaries (id, agent_id, conversation_id, summary, token_count, model, conversation_at, status, created_at)
			 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
			sum.ID, sum.AgentID, sum.ConversationID, sum.Summary, sum.TokenCount, sum.Model,
			formatTime(sum.ConversationAt), sum.Status, formatTime(sum.CreatedAt),
		); err != nil {
			if isUniqueConflict(err) {
				return NewConflictError(err)
			}
			return NewExecuteError(err)
		}
		if _, err := s.db.Exec(txCtx,
			`INSERT INTO summaries_fts (content, source_id, agent_id) VALUES ($1,$2,$3)`,
			sum.Summary, sum.ID, sum.AgentID,
		); err != nil {
			return err
		}
		_, err := s.db.Exec(txCtx,
			`UPDATE pending_signals SET status=$1 WHERE conversation_id=$2 AND status=$3`,
			SignalStatusProcessed, sum.ConversationID, SignalStatusPending,
		)
		return err
	})
}

// SummariesForAgent returns active summaries for agentID within
// retentionDays (0 = all time), newest conversation_at first.
func (s *Store) SummariesForAgent(ctx context.Context, agentID string, retentionDays int) ([]ConversationSummary, error) {
	q := `SELECT id, agent_id, conversation_id, summary, token_count, model, conversation_at, status, created_at
	      FROM conversation_summaries WHERE agent_id=$1 AND status=$2`
	args := []any{agentID, EntryStatusActive}
	if retentionDays > 0 {
		cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays)
		q += " AND conversation_at >= $3"
		args = append(args, formatTime(cutoff))
	}
	q += " ORDER BY conversation_at DESC"
	rows, err := s.db.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ConversationSummary
	for rows.Next() {
		var sum ConversationSummary
		var conversationAt, createdAt string
		if err := rows.Scan(&sum.ID, &sum.AgentID, &sum.ConversationID, &sum.Summary, &sum.TokenCount,
			&sum.Model, &conversationAt, &sum.Status, &createdAt); err != nil {
			return nil, err
		}
		sum.ConversationAt = parseTime(conversationAt)
		sum.CreatedAt = parseTime(createdAt)
		out = append(out, sum)
	}
	return out, rows.Err()
}
