package store

import (
	"context"
	"encoding/binary"
	"math"
	"time"
)

// UpsertEmbedding persists an embedding row for (sourceType, sourceID),
// letting SearchService rebuild its in-memory VectorIndex after a restart
// without recomputing embeddings.
func (s *Store) UpsertEmbedding(ctx context.Context, sourceType, sourceID string, vec []float64, model string) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO embedding_index (source_type, source_id, embedding, model, created_at)
		 VALUES ($1,$2,$3,$4,$5)
		 ON CONFLICT(source_type, source_id) DO UPDATE SET embedding=excluded.embedding, model=excluded.model`,
		sourceType, sourceID, encodeVector(vec), model, formatTime(time.Now().UTC()),
	)
	return err
}

// RemoveEmbedding deletes the embedding row for (sourceType, sourceID).
// Idempotent.
func (s *Store) RemoveEmbedding(ctx context.Context, sourceType, sourceID string) error {
	_, err := s.db.Exec(ctx, `DELETE FROM embedding_index WHERE source_type=$1 AND source_id=$2`, sourceType, sourceID)
	return err
}

// LoadEmbeddings returns every persisted embedding for sourceType, used to
// rebuild a VectorIndex at startup.
func (s *Store) LoadEmbeddings(ctx context.Context, sourceType string) (map[string][]float64, error) {
	rows, err := s.db.Query(ctx, `SELECT source_id, embedding FROM embedding_index WHERE source_type=$1`, sourceType)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string][]float64)
	for rows.Next() {
		var sourceID string
		var blob []byte
		if err := rows.Scan(&sourceID, &blob); err != nil {
			return nil, err
		}
		out[sourceID] = decodeVector(blob)
	}
	return out, rows.Err()
}

func encodeVector(vec []float64) []byte {
	buf := make([]byte, len(vec)*8)
	for i, v := range vec {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(v))
	}
	return buf
}

func decodeVector(buf []byte) []float64 {
	n := len(buf) / 8
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		out[i] = math.Float64frombits(binary.LittleEndian.Uint64(buf[i*8:]))
	}
	return out
}
