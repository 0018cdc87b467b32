package store

import (
	"context"
	"regexp"
	"strings"
)

var ftsTokenRE = regexp.MustCompile(`[A-Za-z0-9_]+`)

// BuildFTSQuery tokenizes raw text and joins the quoted tokens with AND,
// grounded on the teacher's pkg/memory/hybrid.go BuildFtsQuery.
func BuildFTSQuery(raw string) string {
	tokens := ftsTokenRE.FindAllString(raw, -1)
	if len(tokens) == 0 {
		return ""
	}
	quoted := make([]string, len(tokens))
	for i, t := range tokens {
		quoted[i] = `"` + t + `"`
	}
	return strings.Join(quoted, " AND ")
}

// KeywordHit is one FTS5 match: a source id with its bm25 rank (lower is
// better, matching SQLite's bm25() convention).
type KeywordHit struct {
	SourceID string
	Rank     float64
}

// SearchEntriesKeyword runs the FTS query against entries_fts scoped to
// agentID.
func (s *Store) SearchEntriesKeyword(ctx context.Context, agentID, query string, limit int) ([]KeywordHit, error) {
	return s.searchFTS(ctx, "entries_fts", agentID, query, limit, "")
}

// SearchChunksKeyword runs the FTS query against chunks_fts scoped to
// agentID.
func (s *Store) SearchChunksKeyword(ctx context.Context, agentID, query string, limit int) ([]KeywordHit, error) {
	return s.searchFTS(ctx, "chunks_fts", agentID, query, limit, "")
}

// SearchSummariesKeyword runs the FTS query against summaries_fts scoped to
// agentID.
func (s *Store) SearchSummariesKeyword(ctx context.Context, agentID, query string, limit int) ([]KeywordHit, error) {
	return s.searchFTS(ctx, "summaries_fts", agentID, query, limit, "")
}

func (s *Store) searchFTS(ctx context.Context, table, agentID, query string, limit int, extraWhere string) ([]KeywordHit, error) {
	ftsQuery := BuildFTSQuery(query)
	if ftsQuery == "" {
		return nil, nil
	}
	sql := `SELECT source_id, bm25(` + table + `) AS rank FROM ` + table +
		` WHERE ` + table + ` MATCH $1 AND agent_id=$2` + extraWhere +
		` ORDER BY rank LIMIT $3`
	rows, err := s.db.Query(ctx, sql, ftsQuery, agentID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []KeywordHit
	for rows.Next() {
		var hit KeywordHit
		if err := rows.Scan(&hit.SourceID, &hit.Rank); err != nil {
			return nil, err
		}
		out = append(out, hit)
	}
	return out, rows.Err()
}

// IndexEntryFTS inserts an entry's content into entries_fts. Called after
// InsertEntry / SupersedeAndInsert so the keyword leg sees it immediately.
func (s *Store) IndexEntryFTS(ctx context.Context, agentID, entryID, content string) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO entries_fts (content, source_id, agent_id) VALUES ($1,$2,$3)`,
		content, entryID, agentID,
	)
	return err
}
