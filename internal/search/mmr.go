package search

import "github.com/osaurus/memory-core/internal/textsim"

// MMRSelect performs Maximal Marginal Relevance reranking: iteratively
// selects the candidate maximizing lambda*relevance -
// (1-lambda)*max_jaccard_with_already_selected, until topK are picked or
// candidates are exhausted. Ties are broken by higher relevance, then
// earlier CreatedAtNS. Candidates must already be sorted by FusedScore
// descending and carry precomputed Tokens.
func MMRSelect(candidates []Candidate, topK int, lambda float64) []Candidate {
	if topK <= 0 || len(candidates) == 0 {
		return nil
	}
	remaining := make([]Candidate, len(candidates))
	copy(remaining, candidates)

	selected := make([]Candidate, 0, topK)
	for len(selected) < topK && len(remaining) > 0 {
		bestIdx := -1
		var bestScore float64
		for i, cand := range remaining {
			maxSim := 0.0
			for _, s := range selected {
				if sim := textsim.JaccardTokenized(cand.Tokens, s.Tokens); sim > maxSim {
					maxSim = sim
				}
			}
			mmrScore := lambda*cand.FusedScore - (1-lambda)*maxSim
			if bestIdx == -1 || isBetterMMR(mmrScore, cand, bestScore, remaining[bestIdx]) {
				bestIdx = i
				bestScore = mmrScore
			}
		}
		selected = append(selected, remaining[bestIdx])
		remaining = append(remaining[:bestIdx], remaining[bestIdx+1:]...)
	}
	return selected
}

func isBetterMMR(score float64, cand Candidate, bestScore float64, best Candidate) bool {
	if score != bestScore {
		return score > bestScore
	}
	if cand.FusedScore != best.FusedScore {
		return cand.FusedScore > best.FusedScore
	}
	return cand.CreatedAtNS < best.CreatedAtNS
}
