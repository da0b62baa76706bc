package service

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/jharjadi/tokenwise/internal/model"
)

const (
	recencyDecayPerHour = 0.01
	neutralRecency      = 0.5
	boostNote           = "Related to high-scoring chunk"
	reasonSeparator     = " + "
	lowRelevanceReason  = "Low relevance"
)

// Weights are the per-signal multipliers of the combined relevance score.
// They need not sum to 1.
type Weights struct {
	Embedding    float64
	Keyword      float64
	Recency      float64
	Relationship float64
}

// DefaultWeights returns 0.5/0.2/0.15/0.1.
func DefaultWeights() Weights {
	return Weights{Embedding: 0.5, Keyword: 0.2, Recency: 0.15, Relationship: 0.1}
}

// Vectorizer produces embedding vectors for texts.
type Vectorizer interface {
	EmbedOne(ctx context.Context, text string) ([]float32, error)
	EmbedMany(ctx context.Context, texts []string) ([][]float32, error)
}

// Ranker scores chunks against a query.
type Ranker struct {
	vectors     Vectorizer
	weights     Weights
	boostFactor float64
	now         func() time.Time
}

// NewRanker creates a Ranker. boostFactor is the relative boost applied to
// chunks related to the top tier (0.2 = +20%).
func NewRanker(vectors Vectorizer, weights Weights, boostFactor float64) *Ranker {
	return &Ranker{
		vectors:     vectors,
		weights:     weights,
		boostFactor: boostFactor,
		now:         time.Now,
	}
}

// Rank scores every chunk and returns them sorted by relevance, highest first.
// Ties keep input order.
func (r *Ranker) Rank(ctx context.Context, query string, chunks []model.Chunk) ([]model.ScoredChunk, error) {
	if len(chunks) == 0 {
		return nil, nil
	}

	queryVec, err := r.vectors.EmbedOne(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	texts := make([]string, len(chunks))
	ids := make(map[string]struct{}, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
		ids[c.ID] = struct{}{}
	}
	chunkVecs, err := r.vectors.EmbedMany(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed chunks: %w", err)
	}

	queryKeywords := ExtractKeywords(query, queryKeywordLimit)
	now := r.now()

	scored := make([]model.ScoredChunk, len(chunks))
	for i, c := range chunks {
		emb, err := CosineSimilarity(queryVec, chunkVecs[i])
		if err != nil {
			return nil, fmt.Errorf("chunk %s: %w", c.ID, err)
		}

		sc := model.ScoredChunk{
			Chunk:             c,
			EmbeddingScore:    clamp01(emb),
			KeywordScore:      keywordScore(queryKeywords, c.Text),
			RecencyScore:      recencyScore(c.Timestamp, now),
			RelationshipScore: relationshipScore(c, ids, len(chunks)),
		}
		sc.RelevanceScore = r.weights.Embedding*sc.EmbeddingScore +
			r.weights.Keyword*sc.KeywordScore +
			r.weights.Recency*sc.RecencyScore +
			r.weights.Relationship*sc.RelationshipScore
		sc.Reason = explain(sc)
		scored[i] = sc
	}

	sortByRelevance(scored)
	return scored, nil
}

// BoostRelated multiplies the score of every chunk outside the top ⌈N/5⌉ that
// shares a relationship edge, in either direction, with a top chunk. It is a
// single pass: boosted chunks do not propagate further. scored must already be
// sorted; it is re-sorted in place and returned.
func (r *Ranker) BoostRelated(scored []model.ScoredChunk) []model.ScoredChunk {
	n := len(scored)
	if n == 0 {
		return scored
	}
	top := max(1, (n+4)/5)

	highIDs := make(map[string]struct{}, top)
	highRefs := make(map[string]struct{})
	for _, sc := range scored[:top] {
		highIDs[sc.Chunk.ID] = struct{}{}
		for _, rel := range sc.Chunk.Relationships {
			highRefs[rel] = struct{}{}
		}
	}

	for i := top; i < n; i++ {
		c := &scored[i]
		if !relatedToHigh(c.Chunk, highIDs, highRefs) {
			continue
		}
		c.RelevanceScore *= 1 + r.boostFactor
		c.Reason += reasonSeparator + boostNote
	}

	sortByRelevance(scored)
	return scored
}

func relatedToHigh(c model.Chunk, highIDs, highRefs map[string]struct{}) bool {
	if _, ok := highRefs[c.ID]; ok {
		return true
	}
	for _, rel := range c.Relationships {
		if _, ok := highIDs[rel]; ok {
			return true
		}
	}
	return false
}

// keywordScore averages the fraction of query keywords among the chunk's
// keywords with the fraction found verbatim in the chunk text.
func keywordScore(queryKeywords []string, text string) float64 {
	if len(queryKeywords) == 0 {
		return 0
	}

	chunkKeywords := make(map[string]struct{})
	for _, k := range ExtractKeywords(text, chunkKeywordLimit) {
		chunkKeywords[k] = struct{}{}
	}
	lower := strings.ToLower(text)

	var overlap, exact int
	for _, k := range queryKeywords {
		if _, ok := chunkKeywords[k]; ok {
			overlap++
		}
		if strings.Contains(lower, k) {
			exact++
		}
	}

	n := float64(len(queryKeywords))
	return (float64(overlap)/n + math.Min(float64(exact)/n, 1)) / 2
}

// recencyScore decays exponentially with age in hours. Future timestamps
// count as age 0.
func recencyScore(ts *time.Time, now time.Time) float64 {
	if ts == nil {
		return neutralRecency
	}
	hours := math.Max(now.Sub(*ts).Hours(), 0)
	return math.Exp(-recencyDecayPerHour * hours)
}

// relationshipScore is the fraction of declared relationships that resolve to
// candidates, normalized by min(|relationships|, total-1).
func relationshipScore(c model.Chunk, ids map[string]struct{}, total int) float64 {
	if total <= 1 {
		return 0
	}

	seen := make(map[string]struct{}, len(c.Relationships))
	valid := 0
	for _, rel := range c.Relationships {
		if rel == c.ID {
			continue
		}
		if _, dup := seen[rel]; dup {
			continue
		}
		seen[rel] = struct{}{}
		if _, ok := ids[rel]; ok {
			valid++
		}
	}
	if len(seen) == 0 {
		return 0
	}

	return math.Min(float64(valid)/float64(min(len(seen), total-1)), 1)
}

type reasonTier struct {
	threshold float64
	label     string
}

type reasonRule struct {
	signal func(model.ScoredChunk) float64
	tiers  []reasonTier
}

// reasonRules are evaluated in order; within a rule the first tier whose
// threshold is exceeded contributes its label.
var reasonRules = []reasonRule{
	{
		signal: func(sc model.ScoredChunk) float64 { return sc.EmbeddingScore },
		tiers: []reasonTier{
			{0.7, "High semantic similarity"},
			{0.5, "Moderate semantic similarity"},
		},
	},
	{
		signal: func(sc model.ScoredChunk) float64 { return sc.KeywordScore },
		tiers: []reasonTier{
			{0.7, "Strong keyword match"},
			{0.4, "Partial keyword match"},
		},
	},
	{
		signal: func(sc model.ScoredChunk) float64 { return sc.RecencyScore },
		tiers:  []reasonTier{{0.8, "Recent content"}},
	},
	{
		signal: func(sc model.ScoredChunk) float64 { return sc.RelationshipScore },
		tiers:  []reasonTier{{0.5, "Connected to relevant chunks"}},
	},
}

func explain(sc model.ScoredChunk) string {
	var labels []string
	for _, rule := range reasonRules {
		v := rule.signal(sc)
		for _, tier := range rule.tiers {
			if v > tier.threshold {
				labels = append(labels, tier.label)
				break
			}
		}
	}
	if len(labels) == 0 {
		return lowRelevanceReason
	}
	return strings.Join(labels, reasonSeparator)
}

func sortByRelevance(scored []model.ScoredChunk) {
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].RelevanceScore > scored[j].RelevanceScore
	})
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(v, 1))
}
