package store

import (
	"context"
	"database/sql"
	"time"
)

// CurrentProfile returns the highest-version profile row, if any.
func (s *Store) CurrentProfile(ctx context.Context) (*Profile, error) {
	row := s.db.QueryRow(ctx,
		`SELECT version, content, token_count, model, status, generated_at
		 FROM user_profile ORDER BY version DESC LIMIT 1`)
	var p Profile
	var generatedAt string
	if err := row.Scan(&p.Version, &p.Content, &p.TokenCount, &p.Model, &p.Status, &generatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	p.GeneratedAt = parseTime(generatedAt)
	return &p, nil
}

// InsertProfileVersion inserts profile with version = currentVersion+1 and
// marks the given contribution profile_event ids as incorporated in that
// new version, atomically — per spec §4.7 regenerate_profile().
func (s *Store) InsertProfileVersion(ctx context.Context, content, model string, tokenCount int, contributionIDs []string) (int, error) {
	current, err := s.CurrentProfile(ctx)
	if err != nil {
		return 0, err
	}
	newVersion := 1
	if current != nil {
		newVersion = current.Version + 1
	}
	now := time.Now().UTC()
	err = s.DoTxn(ctx, func(txCtx context.Context) error {
		if current != nil {
			if _, err := s.db.Exec(txCtx,
				`UPDATE user_profile SET status=$1 WHERE version=$2`,
				EntryStatusSuperseded, current.Version,
			); err != nil {
				return err
			}
		}
		if _, err := s.db.Exec(txCtx,
			`INSERT INTO user_profile (version, content, token_count, model, status, generated_at)
			 VALUES ($1,$2,$3,$4,$5,$6)`,
			newVersion, content, tokenCount, model, EntryStatusActive, formatTime(now),
		); err != nil {
			return NewExecuteError(err)
		}
		for _, id := range contributionIDs {
			if _, err := s.db.Exec(txCtx,
				`UPDATE profile_events SET incorporated_in=$1 WHERE id=$2`, newVersion, id,
			); err != nil {
				return err
			}
		}
		return s.insertProfileEventTx(txCtx, ProfileEvent{
			ID: NewID(), EventType: ProfileEventRegeneration, Model: model,
			Status: EntryStatusActive, CreatedAt: now,
		})
	})
	if err != nil {
		return 0, err
	}
	return newVersion, nil
}

// InsertProfileContribution records an unincorporated contribution
// profile_event, created during extraction.
func (s *Store) InsertProfileContribution(ctx context.Context, ev ProfileEvent) error {
	if ev.ID == "" {
		ev.ID = NewID()
	}
	ev.EventType = ProfileEventContribution
	if ev.Status == "" {
		ev.Status = EntryStatusActive
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	return s.insertProfileEventTx(ctx, ev)
}

func (s *Store) insertProfileEventTx(ctx context.Context, ev ProfileEvent) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO profile_events (id, agent_id, conversation_id, event_type, content, model, status, incorporated_in, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		ev.ID, ev.AgentID, nullIfEmpty(ev.ConversationID), ev.EventType, ev.Content,
		nullIfEmpty(ev.Model), ev.Status, ev.IncorporatedIn, formatTime(ev.CreatedAt),
	)
	return err
}

// ActiveUnincorporatedContributions returns contribution events not yet
// absorbed into a profile version.
func (s *Store) ActiveUnincorporatedContributions(ctx context.Context) ([]ProfileEvent, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, agent_id, conversation_id, event_type, content, model, status, incorporated_in, created_at
		 FROM profile_events WHERE event_type=$1 AND status=$2 AND incorporated_in IS NULL`,
		ProfileEventContribution, EntryStatusActive,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ProfileEvent
	for rows.Next() {
		var ev ProfileEvent
		var agentID, convID, model, createdAt sql.NullString
		var incorporated sql.NullInt64
		if err := rows.Scan(&ev.ID, &agentID, &convID, &ev.EventType, &ev.Content, &model, &ev.Status, &incorporated, &createdAt); err != nil {
			return nil, err
		}
		ev.AgentID = agentID.String
		ev.ConversationID = convID.String
		ev.Model = model.String
		ev.CreatedAt = parseTime(createdAt.String)
		if incorporated.Valid {
			v := int(incorporated.Int64)
			ev.IncorporatedIn = &v
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// ActiveUserEdits returns all non-deleted user edits.
func (s *Store) ActiveUserEdits(ctx context.Context) ([]UserEdit, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, content, created_at FROM user_edits WHERE deleted_at IS NULL ORDER BY created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []UserEdit
	for rows.Next() {
		var e UserEdit
		var createdAt string
		if err := rows.Scan(&e.ID, &e.Content, &createdAt); err != nil {
			return nil, err
		}
		e.CreatedAt = parseTime(createdAt)
		out = append(out, e)
	}
	return out, rows.Err()
}

// InsertUserEdit adds a manually-entered user edit.
func (s *Store) InsertUserEdit(ctx context.Context, content string) (string, error) {
	id := NewID()
	_, err := s.db.Exec(ctx,
		`INSERT INTO user_edits (id, content, created_at) VALUES ($1,$2,$3)`,
		id, content, formatTime(time.Now().UTC()),
	)
	return id, err
}

// DeleteUserEdit logically deletes a user edit; deleted edits must never
// appear in assembled context.
func (s *Store) DeleteUserEdit(ctx context.Context, id string) error {
	_, err := s.db.Exec(ctx, `UPDATE user_edits SET deleted_at=$1 WHERE id=$2`, formatTime(time.Now().UTC()), id)
	return err
}
