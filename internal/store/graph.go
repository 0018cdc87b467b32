package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"strings"
	"time"
)

// EntityID derives the deterministic 16-hex-character id for a graph
// entity from its case-folded name and type, per spec §3: "16-hex of
// SHA-256 over lower(name):type". Entity and relationship IDs must never
// be random, or graph dedup breaks (spec §9).
func EntityID(name, typ string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(name) + ":" + typ))
	return hex.EncodeToString(sum[:])[:16]
}

// RelationshipID derives the deterministic 16-hex id for an edge from
// source_id:relation:target_id.
func RelationshipID(sourceID, relation, targetID string) string {
	sum := sha256.Sum256([]byte(sourceID + ":" + relation + ":" + targetID))
	return hex.EncodeToString(sum[:])[:16]
}

// ResolveEntity returns an existing entity matching (lower(name), type). If
// none exists and type is "unknown", it returns any existing same-name
// entity regardless of type (merging the unknown-typed mention into it).
// Otherwise it inserts a new entity with a deterministic id and returns it.
// Idempotent for the same (name, type) pair.
func (s *Store) ResolveEntity(ctx context.Context, name, typ, model string) (GraphEntity, error) {
	if e, ok, err := s.findEntity(ctx, name, typ); err != nil {
		return GraphEntity{}, err
	} else if ok {
		return e, nil
	}

	if typ == EntityTypeUnknown {
		if e, ok, err := s.findEntityByNameAnyType(ctx, name); err != nil {
			return GraphEntity{}, err
		} else if ok {
			return e, nil
		}
	}

	now := time.Now().UTC()
	e := GraphEntity{
		ID:        EntityID(name, typ),
		Name:      name,
		Type:      typ,
		Model:     model,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err := s.DoTxn(ctx, func(txCtx context.Context) error {
		_, err := s.db.Exec(txCtx,
			`INSERT INTO graph_entities (id, name, type, metadata, model, created_at, updated_at)
			 VALUES ($1,$2,$3,$4,$5,$6,$7)
			 ON CONFLICT(name, type) DO NOTHING`,
			e.ID, e.Name, e.Type, nil, e.Model, formatTime(e.CreatedAt), formatTime(e.UpdatedAt),
		)
		return err
	})
	if err != nil {
		return GraphEntity{}, err
	}
	if resolved, ok, err := s.findEntity(ctx, name, typ); err != nil {
		return GraphEntity{}, err
	} else if ok {
		return resolved, nil
	}
	return e, nil
}

func (s *Store) findEntity(ctx context.Context, name, typ string) (GraphEntity, bool, error) {
	row := s.db.QueryRow(ctx,
		`SELECT id, name, type, metadata, model, created_at, updated_at
		 FROM graph_entities WHERE lower(name)=lower($1) AND type=$2`, name, typ)
	return scanEntity(row)
}

func (s *Store) findEntityByNameAnyType(ctx context.Context, name string) (GraphEntity, bool, error) {
	row := s.db.QueryRow(ctx,
		`SELECT id, name, type, metadata, model, created_at, updated_at
		 FROM graph_entities WHERE name=$1 LIMIT 1`, name)
	return scanEntity(row)
}

func scanEntity(row *sql.Row) (GraphEntity, bool, error) {
	var e GraphEntity
	var metadata sql.NullString
	var createdAt, updatedAt string
	if err := row.Scan(&e.ID, &e.Name, &e.Type, &metadata, &e.Model, &createdAt, &updatedAt); err != nil {
		if err == sql.ErrNoRows {
			return GraphEntity{}, false, nil
		}
		return GraphEntity{}, false, err
	}
	e.Metadata = metadata.String
	e.CreatedAt = parseTime(createdAt)
	e.UpdatedAt = parseTime(updatedAt)
	return e, true, nil
}

// InsertRelationship closes any active edge for (sourceID, relation) with a
// different target, then inserts the new edge with its deterministic id,
// ignoring conflicts on (source, relation, target) collisions.
func (s *Store) InsertRelationship(ctx context.Context, sourceID, targetID, relation string, confidence float64, model string) error {
	now := time.Now().UTC()
	id := RelationshipID(sourceID, relation, targetID)
	return s.DoTxn(ctx, func(txCtx context.Context) error {
		if _, err := s.db.Exec(txCtx,
			`UPDATE graph_relationships SET valid_until=$1
			 WHERE source_id=$2 AND relation=$3 AND target_id != $4 AND valid_until IS NULL`,
			formatTime(now), sourceID, relation, targetID,
		); err != nil {
			return err
		}
		_, err := s.db.Exec(txCtx,
			`INSERT INTO graph_relationships (id, source_id, target_id, relation, confidence, model, valid_from, valid_until, created_at)
			 VALUES ($1,$2,$3,$4,$5,$6,$7,NULL,$8)
			 ON CONFLICT(id) DO NOTHING`,
			id, sourceID, targetID, relation, confidence, model, formatTime(now), formatTime(now),
		)
		return err
	})
}

// ActiveRelationships returns up to limit active (valid_until IS NULL)
// relationships, most-recently-created first.
func (s *Store) ActiveRelationships(ctx context.Context, limit int) ([]GraphRelationship, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, source_id, target_id, relation, confidence, model, valid_from, valid_until, created_at
		 FROM graph_relationships WHERE valid_until IS NULL ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []GraphRelationship
	for rows.Next() {
		var r GraphRelationship
		var validFrom, createdAt string
		var validUntil sql.NullString
		if err := rows.Scan(&r.ID, &r.SourceID, &r.TargetID, &r.Relation, &r.Confidence, &r.Model, &validFrom, &validUntil, &createdAt); err != nil {
			return nil, err
		}
		r.ValidFrom = parseTime(validFrom)
		r.ValidUntil = parseTimePtr(validUntil)
		r.CreatedAt = parseTime(createdAt)
		out = append(out, r)
	}
	return out, rows.Err()
}

// EntityNameByID resolves a graph entity's display name for relationship
// formatting.
func (s *Store) EntityNameByID(ctx context.Context, id string) (string, error) {
	row := s.db.QueryRow(ctx, `SELECT name FROM graph_entities WHERE id=$1`, id)
	var name string
	if err := row.Scan(&name); err != nil {
		if err == sql.ErrNoRows {
			return id, nil
		}
		return "", err
	}
	return name, nil
}
