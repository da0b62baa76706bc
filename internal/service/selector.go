package service

import (
	"fmt"
	"sort"

	"github.com/jharjadi/tokenwise/internal/model"
)

// Select chooses a subset of scored chunks whose combined token count does
// not exceed budget. scored must be sorted by relevance, highest first. The
// result is sorted by relevance.
func Select(scored []model.ScoredChunk, budget int, opts model.OptimizationOptions) ([]model.ScoredChunk, error) {
	switch opts.Strategy {
	case model.StrategyTopN:
		selected, _ := SelectTopN(scored, budget, opts.MinRelevanceScore)
		return selected, nil
	case model.StrategyDiversity:
		return SelectDiverse(scored, budget, opts.MinRelevanceScore, opts.DiversityLambda), nil
	case model.StrategyDependency:
		return SelectWithDependencies(scored, budget, opts.MinRelevanceScore), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, opts.Strategy)
	}
}

// SelectTopN walks chunks in relevance order and stops at the first one that
// would overflow the budget. It returns the selection and its token total.
func SelectTopN(scored []model.ScoredChunk, budget int, minScore float64) ([]model.ScoredChunk, int) {
	if budget <= 0 {
		return nil, 0
	}

	var selected []model.ScoredChunk
	totalTokens := 0

	for _, sc := range scored {
		if sc.RelevanceScore < minScore {
			continue
		}
		if totalTokens+sc.Chunk.TokenCount > budget {
			break
		}
		selected = append(selected, sc)
		totalTokens += sc.Chunk.TokenCount
	}

	return selected, totalTokens
}

// SelectDiverse applies maximal marginal relevance. Each round scores every
// remaining candidate as lambda*relevance - (1-lambda)*max Jaccard similarity
// to the selection, then takes the best candidate that still fits. With an
// empty selection this reduces to picking the most relevant chunk that fits.
func SelectDiverse(scored []model.ScoredChunk, budget int, minScore, lambda float64) []model.ScoredChunk {
	var candidates []model.ScoredChunk
	for _, sc := range scored {
		if sc.RelevanceScore >= minScore {
			candidates = append(candidates, sc)
		}
	}

	type mmrCandidate struct {
		idx   int
		score float64
	}

	var selected []model.ScoredChunk
	remaining := budget

	for len(candidates) > 0 && remaining > 0 {
		ranked := make([]mmrCandidate, len(candidates))
		for i, c := range candidates {
			maxSim := 0.0
			for _, s := range selected {
				maxSim = max(maxSim, JaccardSimilarity(c.Chunk.Text, s.Chunk.Text))
			}
			ranked[i] = mmrCandidate{idx: i, score: lambda*c.RelevanceScore - (1-lambda)*maxSim}
		}
		sort.SliceStable(ranked, func(i, j int) bool {
			return ranked[i].score > ranked[j].score
		})

		picked := -1
		for _, r := range ranked {
			if candidates[r.idx].Chunk.TokenCount <= remaining {
				picked = r.idx
				break
			}
		}
		if picked < 0 {
			break
		}

		chosen := candidates[picked]
		selected = append(selected, chosen)
		remaining -= chosen.Chunk.TokenCount
		candidates = append(candidates[:picked:picked], candidates[picked+1:]...)
	}

	sortByRelevance(selected)
	return selected
}

// SelectWithDependencies seeds a cluster from every qualifying chunk in
// relevance order. A cluster is the seed plus the chunks it names directly in
// its relationships; dependencies of dependencies are not followed. A cluster
// is admitted whole when its full token cost fits, otherwise the seed alone is
// tried. Dependencies are pulled in regardless of their own score.
func SelectWithDependencies(scored []model.ScoredChunk, budget int, minScore float64) []model.ScoredChunk {
	pool := make(map[string]model.ScoredChunk, len(scored))
	for _, sc := range scored {
		pool[sc.Chunk.ID] = sc
	}

	selectedIDs := make(map[string]struct{})
	var selected []model.ScoredChunk
	used := 0

	add := func(sc model.ScoredChunk) {
		if _, ok := selectedIDs[sc.Chunk.ID]; ok {
			return
		}
		selectedIDs[sc.Chunk.ID] = struct{}{}
		selected = append(selected, sc)
		used += sc.Chunk.TokenCount
	}

	for _, sc := range scored {
		if sc.RelevanceScore < minScore {
			continue
		}
		if _, ok := selectedIDs[sc.Chunk.ID]; ok {
			continue
		}

		cluster := dependencyCluster(sc, pool)
		cost := 0
		for _, member := range cluster {
			cost += member.Chunk.TokenCount
		}

		if used+cost <= budget {
			for _, member := range cluster {
				add(member)
			}
			continue
		}
		if used+sc.Chunk.TokenCount <= budget {
			add(sc)
		}
	}

	sortByRelevance(selected)
	return selected
}

// dependencyCluster returns seed followed by its one-hop dependencies present
// in pool, in declaration order.
func dependencyCluster(seed model.ScoredChunk, pool map[string]model.ScoredChunk) []model.ScoredChunk {
	cluster := []model.ScoredChunk{seed}
	seen := map[string]struct{}{seed.Chunk.ID: {}}
	for _, rel := range seed.Chunk.Relationships {
		if _, ok := seen[rel]; ok {
			continue
		}
		dep, ok := pool[rel]
		if !ok {
			continue
		}
		seen[rel] = struct{}{}
		cluster = append(cluster, dep)
	}
	return cluster
}
