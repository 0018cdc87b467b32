// Package vectorindex implements an in-memory cosine-similarity index keyed
// by deterministic document IDs, so re-indexing the same (source_type,
// source_id) pair is idempotent and the reverse map SearchService keeps
// stays stable across restarts.
package vectorindex

import (
	"math"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// Namespace is the fixed UUID v5 namespace the memory core uses for all
// vector-index document IDs.
var Namespace = uuid.MustParse("8f14e45f-ceea-467e-8a76-1a36f6a6c69a")

// DocumentID derives the deterministic id for a (sourceType, sourceID) pair:
// v5(Namespace, sourceType|sourceID).
func DocumentID(sourceType, sourceID string) uuid.UUID {
	return uuid.NewSHA1(Namespace, []byte(sourceType+"|"+sourceID))
}

// Result is a single (id, score) hit returned by Search, in
// score-descending order.
type Result struct {
	ID    uuid.UUID
	Score float64
}

// Index is a single source-type's cosine-similarity index. Safe for
// concurrent use; callers typically hold one per source type (entries,
// chunks, summaries) as required by spec §4.5.
type Index struct {
	mu      sync.RWMutex
	vectors map[uuid.UUID][]float64
}

func New() *Index {
	return &Index{vectors: make(map[uuid.UUID][]float64)}
}

// Upsert inserts or overwrites the embedding for id.
func (ix *Index) Upsert(id uuid.UUID, embedding []float64) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	cp := make([]float64, len(embedding))
	copy(cp, embedding)
	ix.vectors[id] = cp
}

// Remove deletes id from the index. Idempotent: removing an absent id is a
// no-op.
func (ix *Index) Remove(id uuid.UUID) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	delete(ix.vectors, id)
}

// Len reports the number of indexed vectors.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.vectors)
}

// Search returns the top-K nearest vectors to query by cosine similarity,
// in score-descending order.
func (ix *Index) Search(query []float64, topK int) []Result {
	if topK <= 0 {
		return nil
	}
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	results := make([]Result, 0, len(ix.vectors))
	for id, vec := range ix.vectors {
		results = append(results, Result{ID: id, Score: cosineSimilarity(query, vec)})
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID.String() < results[j].ID.String()
	})
	if len(results) > topK {
		results = results[:topK]
	}
	return results
}

func cosineSimilarity(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, magA, magB float64
	for i := 0; i < n; i++ {
		dot += a[i] * b[i]
		magA += a[i] * a[i]
		magB += b[i] * b[i]
	}
	denom := math.Sqrt(magA) * math.Sqrt(magB)
	if denom < 1e-12 {
		return 0
	}
	return dot / denom
}
