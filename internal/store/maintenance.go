package store

import (
	"context"
	"time"
)

// Optimize runs the fast, frequent maintenance pass.
func (s *Store) Optimize(ctx context.Context) error {
	_, err := s.db.Exec(ctx, "PRAGMA optimize")
	return err
}

// Vacuum runs the expensive, infrequent maintenance pass.
func (s *Store) Vacuum(ctx context.Context) error {
	_, err := s.db.Exec(ctx, "VACUUM")
	return err
}

// PurgeOldEventData deletes rows in memory_events, processing_log, and
// processed pending_signals older than retentionDays, per spec §4.1.
func (s *Store) PurgeOldEventData(ctx context.Context, retentionDays int) error {
	if retentionDays <= 0 {
		return nil
	}
	cutoff := formatTime(time.Now().UTC().AddDate(0, 0, -retentionDays))
	return s.DoTxn(ctx, func(txCtx context.Context) error {
		if _, err := s.db.Exec(txCtx, `DELETE FROM memory_events WHERE created_at < $1`, cutoff); err != nil {
			return err
		}
		if _, err := s.db.Exec(txCtx, `DELETE FROM processing_log WHERE created_at < $1`, cutoff); err != nil {
			return err
		}
		_, err := s.db.Exec(txCtx,
			`DELETE FROM pending_signals WHERE status=$1 AND created_at < $2`, SignalStatusProcessed, cutoff)
		return err
	})
}

// InsertProcessingLog writes one processing_log row.
func (s *Store) InsertProcessingLog(ctx context.Context, log ProcessingLog) error {
	if log.ID == "" {
		log.ID = NewLogID()
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.Exec(ctx,
		`INSERT INTO processing_log (id, agent_id, task_type, model, status, details, input_tokens, output_tokens, duration_ms, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		log.ID, log.AgentID, log.TaskType, nullIfEmpty(log.Model), log.Status, nullIfEmpty(log.Details),
		log.InputTokens, log.OutputTokens, log.DurationMS, formatTime(log.CreatedAt),
	)
	return err
}
