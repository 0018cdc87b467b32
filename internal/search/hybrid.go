// Package search implements the hybrid lexical+vector retrieval engine:
// per-source-type VectorIndex instances, BM25-to-score normalization,
// fused scoring, temporal decay, and MMR diversity reranking. Grounded on
// the teacher's pkg/memory/hybrid.go and pkg/connector/memory_manager.go.
package search

import (
	"math"
	"sort"
)

// DefaultAlpha is the fusion weight given to the lexical score; the
// remainder (1-alpha) goes to the vector score, per spec §4.5.
const DefaultAlpha = 0.5

// BM25RankToScore converts a SQLite bm25() rank (lower is better, often
// negative) into a "higher is better" score that falls as rank rises:
// 1/(1+rank) for rank >= 0 and 2-1/(1-rank) below zero, so a more negative
// (better) rank always scores higher. Grounded on the teacher's
// BM25RankToScore.
func BM25RankToScore(rank float64) float64 {
	if !isFinite(rank) {
		return 0
	}
	if rank < 0 {
		return 2 - 1/(1-rank)
	}
	return 1 / (1 + rank)
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Candidate is one retrieval candidate before and after fusion.
type Candidate struct {
	SourceID    string
	LexicalRaw  float64 // bm25 rank, pre-normalization
	VectorRaw   float64 // cosine similarity, already in [-1,1]
	HasLexical  bool
	HasVector   bool
	FusedScore  float64
	CreatedAtNS int64 // for MMR tie-breaking, earlier created_at wins ties
	Tokens      map[string]struct{}

	decayMultiplier float64 // applied to FusedScore after fusion, before sort
}

// FuseScores computes fused = alpha*normalize(lexical) + (1-alpha)*vector
// across the candidate set, min-max normalizing each component
// independently. When no candidate carries a vector score, fusion
// collapses to lexical-only (alpha effectively becomes 1).
func FuseScores(candidates []Candidate, alpha float64, vectorAvailable bool) {
	if len(candidates) == 0 {
		return
	}
	lexScores := make([]float64, len(candidates))
	anyLex := false
	for i, c := range candidates {
		if c.HasLexical {
			lexScores[i] = BM25RankToScore(c.LexicalRaw)
			anyLex = true
		}
	}
	normLex := minMaxNormalize(lexScores)

	var normVec []float64
	anyVec := false
	if vectorAvailable {
		vecScores := make([]float64, len(candidates))
		for i, c := range candidates {
			if c.HasVector {
				vecScores[i] = c.VectorRaw
				anyVec = true
			}
		}
		normVec = minMaxNormalize(vecScores)
	}

	effectiveAlpha := alpha
	if !anyVec {
		effectiveAlpha = 1.0
	} else if !anyLex {
		effectiveAlpha = 0.0
	}

	for i := range candidates {
		fused := effectiveAlpha * normLex[i]
		if anyVec {
			fused += (1 - effectiveAlpha) * normVec[i]
		}
		candidates[i].FusedScore = fused
	}
}

func minMaxNormalize(scores []float64) []float64 {
	out := make([]float64, len(scores))
	if len(scores) == 0 {
		return out
	}
	lo, hi := scores[0], scores[0]
	for _, s := range scores {
		if s < lo {
			lo = s
		}
		if s > hi {
			hi = s
		}
	}
	spread := hi - lo
	for i, s := range scores {
		if spread < 1e-12 {
			out[i] = 0
		} else {
			out[i] = (s - lo) / spread
		}
	}
	return out
}

// TemporalDecay applies exp(-ln2 * ageDays / halfLifeDays). Decay is a
// no-op (multiplier 1.0) when halfLifeDays <= 0.
func TemporalDecay(ageDays float64, halfLifeDays int) float64 {
	if halfLifeDays <= 0 {
		return 1.0
	}
	return math.Exp(-math.Ln2 * ageDays / float64(halfLifeDays))
}

// sortByScoreDesc sorts candidates by FusedScore descending, stable.
func sortByScoreDesc(candidates []Candidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].FusedScore > candidates[j].FusedScore
	})
}
