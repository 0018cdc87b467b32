package search

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/osaurus/memory-core/internal/embedding"
	"github.com/osaurus/memory-core/internal/store"
	"github.com/osaurus/memory-core/internal/textsim"
	"github.com/osaurus/memory-core/internal/vectorindex"
)

const (
	sourceTypeEntry   = "entry"
	sourceTypeChunk   = "chunk"
	sourceTypeSummary = "summary"
)

// Service is the hybrid lexical+vector SearchService: one VectorIndex per
// source type plus a reverse map from index UUID back to (source_type,
// source_id), per spec §3's ownership note and §4.5.
type Service struct {
	st       *store.Store
	embedder *embedding.Provider
	log      zerolog.Logger

	entryIdx   *vectorindex.Index
	chunkIdx   *vectorindex.Index
	summaryIdx *vectorindex.Index

	reverseMu sync.RWMutex
	reverse   map[uuid.UUID]sourceRef

	warnOnce sync.Once
}

type sourceRef struct {
	sourceType string
	sourceID   string
}

// New constructs a Service and rehydrates its vector indices from
// persisted embeddings (if any), so a restart does not require
// re-embedding everything.
func New(ctx context.Context, st *store.Store, embedder *embedding.Provider, log zerolog.Logger) (*Service, error) {
	s := &Service{
		st:         st,
		embedder:   embedder,
		log:        log.With().Str("component", "search").Logger(),
		entryIdx:   vectorindex.New(),
		chunkIdx:   vectorindex.New(),
		summaryIdx: vectorindex.New(),
		reverse:    make(map[uuid.UUID]sourceRef),
	}
	for _, st2 := range []struct {
		sourceType string
		idx        *vectorindex.Index
	}{
		{sourceTypeEntry, s.entryIdx},
		{sourceTypeChunk, s.chunkIdx},
		{sourceTypeSummary, s.summaryIdx},
	} {
		vecs, err := st.LoadEmbeddings(ctx, st2.sourceType)
		if err != nil {
			return nil, err
		}
		for sourceID, vec := range vecs {
			id := vectorindex.DocumentID(st2.sourceType, sourceID)
			st2.idx.Upsert(id, vec)
			s.setReverse(id, st2.sourceType, sourceID)
		}
	}
	return s, nil
}

func (s *Service) setReverse(id uuid.UUID, sourceType, sourceID string) {
	s.reverseMu.Lock()
	s.reverse[id] = sourceRef{sourceType, sourceID}
	s.reverseMu.Unlock()
}

func (s *Service) embedderHealthy(ctx context.Context) bool {
	if s.embedder == nil {
		return false
	}
	healthy := s.embedder.Healthy(ctx)
	if !healthy {
		s.warnOnce.Do(func() {
			s.log.Warn().Msg("embedding backend unavailable, degrading to lexical-only search")
		})
	}
	return healthy
}

// IndexEntry embeds and indexes an entry's content (vector + FTS), a
// no-op on the vector side when the embedder is unavailable.
func (s *Service) IndexEntry(ctx context.Context, agentID, entryID, content string) error {
	if err := s.st.IndexEntryFTS(ctx, agentID, entryID, content); err != nil {
		return err
	}
	return s.indexVector(ctx, sourceTypeEntry, entryID, content, s.entryIdx)
}

// IndexSummary embeds and indexes a summary's content (vector leg only;
// FTS insertion happens inside InsertSummaryAndMarkProcessed).
func (s *Service) IndexSummary(ctx context.Context, summaryID, content string) error {
	return s.indexVector(ctx, sourceTypeSummary, summaryID, content, s.summaryIdx)
}

// IndexChunk embeds a chunk's content (vector leg only; FTS insertion
// happens inside Store.AppendChunk).
func (s *Service) IndexChunk(ctx context.Context, chunkID, content string) error {
	return s.indexVector(ctx, sourceTypeChunk, chunkID, content, s.chunkIdx)
}

func (s *Service) indexVector(ctx context.Context, sourceType, sourceID, content string, idx *vectorindex.Index) error {
	if !s.embedderHealthy(ctx) {
		return nil
	}
	vec, err := s.embedder.EmbedQuery(ctx, content)
	if err != nil {
		s.log.Warn().Err(err).Str("source_type", sourceType).Msg("embedding failed, skipping vector index")
		return nil
	}
	id := vectorindex.DocumentID(sourceType, sourceID)
	idx.Upsert(id, vec)
	s.setReverse(id, sourceType, sourceID)
	return s.st.UpsertEmbedding(ctx, sourceType, sourceID, vec, s.embedder.Model())
}

// RemoveEntry deletes an entry's embedding from the index (idempotent).
func (s *Service) RemoveEntry(ctx context.Context, entryID string) error {
	id := vectorindex.DocumentID(sourceTypeEntry, entryID)
	s.entryIdx.Remove(id)
	return s.st.RemoveEmbedding(ctx, sourceTypeEntry, entryID)
}

// ScoredEntry pairs a loaded entry with its fused retrieval score.
type ScoredEntry struct {
	Entry store.MemoryEntry
	Score float64
}

// Options configure one hybrid search call.
type Options struct {
	AgentID         string
	Query           string
	TopK            int
	Lambda          float64
	FetchMultiplier float64
	DaysWindow      int // 0 = unbounded; chunks/summaries only
	HalfLifeDays    int
	Alpha           float64
}

// SearchEntries returns up to opts.TopK active entries for the agent,
// ranked by fused lexical+vector score and MMR-reranked for diversity.
func (s *Service) SearchEntries(ctx context.Context, opts Options) ([]store.MemoryEntry, error) {
	scored, err := s.SearchEntriesWithScores(ctx, opts)
	if err != nil {
		return nil, err
	}
	out := make([]store.MemoryEntry, len(scored))
	for i, se := range scored {
		out[i] = se.Entry
	}
	return out, nil
}

// SearchEntriesWithScores is used by the verification pipeline's Layer 3
// semantic-dedup check (typically called with TopK=1).
func (s *Service) SearchEntriesWithScores(ctx context.Context, opts Options) ([]ScoredEntry, error) {
	fetchN := fetchCount(opts)
	entries, err := s.st.LoadActiveEntries(ctx, opts.AgentID, 0)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]store.MemoryEntry, len(entries))
	for _, e := range entries {
		byID[e.ID] = e
	}

	candidates, err := s.buildCandidates(ctx, opts, sourceTypeEntry, s.entryIdx, fetchN,
		func(sourceID string) (content string, createdAt time.Time, ok bool) {
			e, ok := byID[sourceID]
			if !ok {
				return "", time.Time{}, false
			}
			return e.Content, e.CreatedAt, true
		},
	)
	if err != nil {
		return nil, err
	}

	selected := s.rankAndRerank(candidates, opts)
	out := make([]ScoredEntry, 0, len(selected))
	for _, c := range selected {
		if e, ok := byID[c.SourceID]; ok {
			out = append(out, ScoredEntry{Entry: e, Score: c.FusedScore})
		}
	}
	return out, nil
}

// ScoredChunk pairs a loaded chunk with its fused retrieval score.
type ScoredChunk struct {
	Chunk store.Chunk
	Score float64
}

// SearchChunks returns up to opts.TopK chunks for the agent within
// opts.DaysWindow (0 = unbounded), ranked and MMR-reranked.
func (s *Service) SearchChunks(ctx context.Context, opts Options) ([]ScoredChunk, error) {
	fetchN := fetchCount(opts)

	// Chunks are scoped per-conversation in storage; the caller is
	// expected to have already narrowed opts.AgentID to the agent whose
	// conversations are relevant. We pull candidate chunk ids via FTS and
	// the vector index, then resolve their rows.
	hits, err := s.st.SearchChunksKeyword(ctx, opts.AgentID, opts.Query, fetchN)
	if err != nil {
		return nil, err
	}

	candidates, err := s.buildCandidatesFromHits(ctx, opts, sourceTypeChunk, s.chunkIdx, hits, fetchN,
		func(sourceID string) (string, time.Time, bool) {
			chunk, ok, err := s.resolveChunk(ctx, sourceID)
			if err != nil || !ok {
				return "", time.Time{}, false
			}
			return chunk.Content, chunk.CreatedAt, true
		},
	)
	if err != nil {
		return nil, err
	}
	selected := s.rankAndRerank(candidates, opts)

	out := make([]ScoredChunk, 0, len(selected))
	for _, c := range selected {
		chunk, ok, err := s.resolveChunk(ctx, c.SourceID)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, ScoredChunk{Chunk: chunk, Score: c.FusedScore})
		}
	}
	return out, nil
}

// ScoredSummary pairs a loaded summary with its fused retrieval score.
type ScoredSummary struct {
	Summary store.ConversationSummary
	Score   float64
}

// SearchSummaries returns up to opts.TopK summaries for the agent within
// opts.DaysWindow, ranked and MMR-reranked.
func (s *Service) SearchSummaries(ctx context.Context, opts Options) ([]ScoredSummary, error) {
	fetchN := fetchCount(opts)
	summaries, err := s.st.SummariesForAgent(ctx, opts.AgentID, opts.DaysWindow)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]store.ConversationSummary, len(summaries))
	for _, sum := range summaries {
		byID[sum.ID] = sum
	}

	candidates, err := s.buildCandidates(ctx, opts, sourceTypeSummary, s.summaryIdx, fetchN,
		func(sourceID string) (string, time.Time, bool) {
			sum, ok := byID[sourceID]
			if !ok {
				return "", time.Time{}, false
			}
			return sum.Summary, sum.ConversationAt, true
		},
	)
	if err != nil {
		return nil, err
	}
	selected := s.rankAndRerank(candidates, opts)
	out := make([]ScoredSummary, 0, len(selected))
	for _, c := range selected {
		if sum, ok := byID[c.SourceID]; ok {
			out = append(out, ScoredSummary{Summary: sum, Score: c.FusedScore})
		}
	}
	return out, nil
}

func fetchCount(opts Options) int {
	mult := opts.FetchMultiplier
	if mult <= 0 {
		mult = 2.0
	}
	n := int(math.Ceil(float64(opts.TopK) * mult))
	if n < opts.TopK {
		n = opts.TopK
	}
	return n
}

type contentLookup func(sourceID string) (content string, createdAt time.Time, ok bool)

func (s *Service) buildCandidates(ctx context.Context, opts Options, sourceType string, idx *vectorindex.Index, fetchN int, lookup contentLookup) ([]Candidate, error) {
	var hits []store.KeywordHit
	var err error
	switch sourceType {
	case sourceTypeEntry:
		hits, err = s.st.SearchEntriesKeyword(ctx, opts.AgentID, opts.Query, fetchN)
	case sourceTypeSummary:
		hits, err = s.st.SearchSummariesKeyword(ctx, opts.AgentID, opts.Query, fetchN)
	}
	if err != nil {
		return nil, err
	}
	return s.buildCandidatesFromHits(ctx, opts, sourceType, idx, hits, fetchN, lookup)
}

func (s *Service) buildCandidatesFromHits(ctx context.Context, opts Options, sourceType string, idx *vectorindex.Index, hits []store.KeywordHit, fetchN int, lookup contentLookup) ([]Candidate, error) {
	byID := make(map[string]*Candidate)

	for _, h := range hits {
		byID[h.SourceID] = &Candidate{SourceID: h.SourceID, LexicalRaw: h.Rank, HasLexical: true}
	}

	vectorAvailable := s.embedderHealthy(ctx) && opts.Query != ""
	if vectorAvailable {
		queryVec, err := s.embedder.EmbedQuery(ctx, opts.Query)
		if err != nil {
			s.log.Warn().Err(err).Msg("query embedding failed, degrading to lexical-only")
			vectorAvailable = false
		} else {
			for _, r := range idx.Search(queryVec, fetchN) {
				ref, ok := s.lookupReverse(r.ID)
				if !ok || ref.sourceType != sourceType {
					continue
				}
				c, exists := byID[ref.sourceID]
				if !exists {
					c = &Candidate{SourceID: ref.sourceID}
					byID[ref.sourceID] = c
				}
				c.VectorRaw = r.Score
				c.HasVector = true
			}
		}
	}

	now := time.Now().UTC()
	halfLife := opts.HalfLifeDays
	candidates := make([]Candidate, 0, len(byID))
	for sourceID, c := range byID {
		content, createdAt, ok := lookup(sourceID)
		if !ok {
			continue
		}
		if opts.DaysWindow > 0 && now.Sub(createdAt).Hours()/24 > float64(opts.DaysWindow) {
			continue
		}
		c.Tokens = textsim.Tokenize(content)
		c.CreatedAtNS = createdAt.UnixNano()
		ageDays := now.Sub(createdAt).Hours() / 24
		c.decayMultiplier = TemporalDecay(ageDays, halfLife)
		candidates = append(candidates, *c)
	}
	return candidates, nil
}

func (s *Service) rankAndRerank(candidates []Candidate, opts Options) []Candidate {
	alpha := opts.Alpha
	if alpha <= 0 {
		alpha = DefaultAlpha
	}
	vectorAvailable := s.embedder != nil
	FuseScores(candidates, alpha, vectorAvailable)
	for i := range candidates {
		candidates[i].FusedScore *= candidates[i].decayMultiplier
	}
	sortByScoreDesc(candidates)

	lambda := opts.Lambda
	if lambda <= 0 {
		lambda = 0.7
	}
	return MMRSelect(candidates, opts.TopK, lambda)
}

func (s *Service) lookupReverse(id uuid.UUID) (sourceRef, bool) {
	s.reverseMu.RLock()
	defer s.reverseMu.RUnlock()
	ref, ok := s.reverse[id]
	return ref, ok
}

func (s *Service) resolveChunk(ctx context.Context, chunkID string) (store.Chunk, bool, error) {
	return s.st.ChunkByID(ctx, chunkID)
}
