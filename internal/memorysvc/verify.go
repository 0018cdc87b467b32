package memorysvc

import (
	"context"

	"github.com/osaurus/memory-core/internal/search"
	"github.com/osaurus/memory-core/internal/store"
	"github.com/osaurus/memory-core/internal/textsim"
)

// contradictionJaccardThreshold is CONTRADICTION_JACCARD_THRESHOLD from
// spec §4.7.1.
const contradictionJaccardThreshold = 0.3

// verifyOutcome classifies what the verification pipeline did with one
// candidate, for processing_log.
type verifyOutcome string

const (
	outcomeSkipDuplicate    verifyOutcome = "skip_duplicate"
	outcomeSupersede        verifyOutcome = "supersede"
	outcomeSemanticSkip     verifyOutcome = "skip_duplicate"
	outcomeSemanticSupersed verifyOutcome = "supersede"
	outcomeKeepNovel        verifyOutcome = "keep_novel"
)

// verifyResult is the outcome of running one candidate through the
// pipeline, after any store writes have already happened.
type verifyResult struct {
	Outcome verifyOutcome
	EntryID string // the id that ended up active (new or pre-existing), empty on pure skip
}

// verifyAndInsert runs the deterministic three-layer verification pipeline
// (§4.7.1) against active entries for candidate.AgentID, writing the
// outcome to the store.
func (s *Service) verifyAndInsert(ctx context.Context, candidate store.MemoryEntry, active []store.MemoryEntry) (verifyResult, error) {
	candidateTokens := textsim.Tokenize(candidate.Content)

	// Layer 1: word-overlap dedup.
	for _, existing := range active {
		if existing.Type != candidate.Type {
			continue
		}
		if textsim.Jaccard(candidate.Content, existing.Content) > s.cfg.VerificationJaccardDedupThreshold {
			return verifyResult{Outcome: outcomeSkipDuplicate}, nil
		}
	}

	// Layer 2: contradiction supersede.
	for _, existing := range active {
		if !store.IsContradictable(candidate.Type, existing.Type) {
			continue
		}
		if existing.Content == candidate.Content {
			continue
		}
		if textsim.JaccardTokenized(candidateTokens, textsim.Tokenize(existing.Content)) > contradictionJaccardThreshold {
			if err := s.st.SupersedeAndInsert(ctx, existing.ID, candidate, "contradiction"); err != nil {
				return verifyResult{}, err
			}
			s.indexEntryBestEffort(ctx, candidate)
			return verifyResult{Outcome: outcomeSupersede, EntryID: candidate.ID}, nil
		}
	}

	// Layer 3: semantic.
	if s.search != nil {
		scored, err := s.search.SearchEntriesWithScores(ctx, search.Options{
			AgentID: candidate.AgentID, Query: candidate.Content, TopK: 1,
			FetchMultiplier: 3, Alpha: 0.5,
		})
		if err != nil {
			s.log.Warn().Err(err).Msg("semantic verification search failed, treating candidate as novel")
		} else if len(scored) > 0 && scored[0].Score >= s.cfg.VerificationSemanticDedupThreshold {
			match := scored[0].Entry
			jac := textsim.JaccardTokenized(candidateTokens, textsim.Tokenize(match.Content))
			switch {
			case jac >= s.cfg.VerificationJaccardDedupThreshold:
				return verifyResult{Outcome: outcomeSemanticSkip}, nil
			case store.IsContradictable(candidate.Type, match.Type) && match.Content != candidate.Content:
				if err := s.st.SupersedeAndInsert(ctx, match.ID, candidate, "semantic_contradiction"); err != nil {
					return verifyResult{}, err
				}
				s.indexEntryBestEffort(ctx, candidate)
				return verifyResult{Outcome: outcomeSemanticSupersed, EntryID: candidate.ID}, nil
			}
		}
	}

	if err := s.st.InsertEntry(ctx, candidate); err != nil {
		return verifyResult{}, err
	}
	s.indexEntryBestEffort(ctx, candidate)
	return verifyResult{Outcome: outcomeKeepNovel, EntryID: candidate.ID}, nil
}

// indexEntryBestEffort indexes a freshly written entry into SearchService.
// Indexing failures are logged, not propagated: the entry is already
// durable in the Store, which is the source of truth.
func (s *Service) indexEntryBestEffort(ctx context.Context, entry store.MemoryEntry) {
	if s.search == nil {
		return
	}
	if err := s.search.IndexEntry(ctx, entry.AgentID, entry.ID, entry.Content); err != nil {
		s.log.Warn().Err(err).Str("entry_id", entry.ID).Msg("failed to index entry")
	}
}
