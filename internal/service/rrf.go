package service

import (
	"sort"

	"github.com/jharjadi/tokenwise/internal/model"
)

// DefaultRRFK is the conventional Reciprocal Rank Fusion constant.
const DefaultRRFK = 60

// MergeRRF fuses vector and full-text result lists of the vector index with
// Reciprocal Rank Fusion: RRF(c) = sum over lists of 1/(k + rank(c)), rank
// 1-based. Ties keep first-seen order, vector results first.
func MergeRRF(vecResults, textResults []model.IndexedChunk, rrfK int) []model.IndexedChunk {
	merged := make(map[string]*model.IndexedChunk)
	var order []string

	add := func(ic model.IndexedChunk, rank int, fromVec bool) {
		score := 1.0 / float64(rrfK+rank)
		existing, ok := merged[ic.ChunkID]
		if !ok {
			ic.RRFScore = 0
			existing = &ic
			merged[ic.ChunkID] = existing
			order = append(order, ic.ChunkID)
		}
		existing.RRFScore += score
		if fromVec {
			existing.Similarity = ic.Similarity
			existing.VecRank = rank
		} else {
			existing.TextScore = ic.TextScore
			existing.TextRank = rank
		}
	}

	for i := range vecResults {
		add(vecResults[i], i+1, true)
	}
	for i := range textResults {
		add(textResults[i], i+1, false)
	}

	results := make([]model.IndexedChunk, 0, len(order))
	for _, id := range order {
		results = append(results, *merged[id])
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].RRFScore > results[j].RRFScore
	})

	return results
}
