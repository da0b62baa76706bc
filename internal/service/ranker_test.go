package service

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/jharjadi/tokenwise/internal/model"
)

// fakeVectors returns preset vectors by text and zero vectors otherwise.
type fakeVectors struct {
	dim  int
	vecs map[string][]float32
}

func (f fakeVectors) EmbedOne(_ context.Context, text string) ([]float32, error) {
	if v, ok := f.vecs[text]; ok {
		return v, nil
	}
	return make([]float32, f.dim), nil
}

func (f fakeVectors) EmbedMany(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i], _ = f.EmbedOne(ctx, t)
	}
	return out, nil
}

func approxEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestRank_OrdersBySemanticSimilarity(t *testing.T) {
	vecs := fakeVectors{dim: 2, vecs: map[string][]float32{
		"query":     {1, 0},
		"aligned":   {1, 0},
		"unrelated": {0, 1},
	}}
	r := NewRanker(vecs, DefaultWeights(), 0.2)

	chunks := []model.Chunk{
		{ID: "u", Text: "unrelated"},
		{ID: "a", Text: "aligned"},
	}
	scored, err := r.Rank(context.Background(), "query", chunks)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if scored[0].Chunk.ID != "a" {
		t.Fatalf("expected aligned chunk first, got %s", scored[0].Chunk.ID)
	}
	if scored[0].EmbeddingScore != 1 {
		t.Errorf("expected embedding score 1, got %f", scored[0].EmbeddingScore)
	}
	if scored[1].EmbeddingScore != 0 {
		t.Errorf("expected embedding score 0, got %f", scored[1].EmbeddingScore)
	}

	// 0.5*1 + 0.2*0 + 0.15*0.5 + 0.1*0
	if !approxEqual(scored[0].RelevanceScore, 0.575) {
		t.Errorf("expected relevance 0.575, got %f", scored[0].RelevanceScore)
	}
	if scored[0].Reason != "High semantic similarity" {
		t.Errorf("unexpected reason %q", scored[0].Reason)
	}
}

func TestRank_Empty(t *testing.T) {
	r := NewRanker(fakeVectors{dim: 2}, DefaultWeights(), 0.2)
	scored, err := r.Rank(context.Background(), "query", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(scored) != 0 {
		t.Errorf("expected no results, got %d", len(scored))
	}
}

func TestRank_DimensionMismatch(t *testing.T) {
	vecs := fakeVectors{dim: 2, vecs: map[string][]float32{"odd": {1, 0, 0}}}
	r := NewRanker(vecs, DefaultWeights(), 0.2)
	_, err := r.Rank(context.Background(), "query", []model.Chunk{{ID: "x", Text: "odd"}})
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("expected dimension mismatch, got %v", err)
	}
}

func TestRank_UsesInjectedClock(t *testing.T) {
	now := time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)
	ts := now.Add(-100 * time.Hour)

	r := NewRanker(fakeVectors{dim: 2}, DefaultWeights(), 0.2)
	r.now = func() time.Time { return now }

	scored, err := r.Rank(context.Background(), "query", []model.Chunk{{ID: "x", Text: "text", Timestamp: &ts}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !approxEqual(scored[0].RecencyScore, math.Exp(-1)) {
		t.Errorf("expected recency e^-1, got %f", scored[0].RecencyScore)
	}
}

func TestRecencyScore(t *testing.T) {
	now := time.Now()
	if got := recencyScore(nil, now); got != 0.5 {
		t.Errorf("expected neutral 0.5, got %f", got)
	}
	if got := recencyScore(&now, now); got != 1 {
		t.Errorf("expected 1 for age 0, got %f", got)
	}
	future := now.Add(time.Hour)
	if got := recencyScore(&future, now); got != 1 {
		t.Errorf("expected 1 for future timestamp, got %f", got)
	}
}

func TestKeywordScore(t *testing.T) {
	query := []string{"database", "indexing"}

	if got := keywordScore(query, "Database indexing improves queries"); got != 1 {
		t.Errorf("expected 1, got %f", got)
	}
	if got := keywordScore(query, "nothing relevant"); got != 0 {
		t.Errorf("expected 0, got %f", got)
	}
	// "databases" contains "database" as a substring but is a different keyword.
	if got := keywordScore(query, "databases everywhere"); !approxEqual(got, 0.25) {
		t.Errorf("expected 0.25, got %f", got)
	}
	if got := keywordScore(nil, "anything"); got != 0 {
		t.Errorf("expected 0 with no query keywords, got %f", got)
	}
}

func TestRelationshipScore(t *testing.T) {
	ids := map[string]struct{}{"a": {}, "b": {}, "c": {}}

	c := model.Chunk{ID: "a", Relationships: []string{"b", "missing"}}
	if got := relationshipScore(c, ids, 3); got != 0.5 {
		t.Errorf("expected 0.5, got %f", got)
	}

	c = model.Chunk{ID: "a", Relationships: []string{"b", "c"}}
	if got := relationshipScore(c, ids, 3); got != 1 {
		t.Errorf("expected 1, got %f", got)
	}

	if got := relationshipScore(c, ids, 1); got != 0 {
		t.Errorf("expected 0 with a single candidate, got %f", got)
	}

	c = model.Chunk{ID: "a"}
	if got := relationshipScore(c, ids, 3); got != 0 {
		t.Errorf("expected 0 with no relationships, got %f", got)
	}
}

func TestExplain(t *testing.T) {
	sc := model.ScoredChunk{EmbeddingScore: 0.8, KeywordScore: 0.5, RecencyScore: 0.5}
	if got := explain(sc); got != "High semantic similarity + Partial keyword match" {
		t.Errorf("unexpected reason %q", got)
	}

	sc = model.ScoredChunk{EmbeddingScore: 0.6, KeywordScore: 0.9, RecencyScore: 0.9, RelationshipScore: 0.6}
	want := "Moderate semantic similarity + Strong keyword match + Recent content + Connected to relevant chunks"
	if got := explain(sc); got != want {
		t.Errorf("expected %q, got %q", want, got)
	}

	if got := explain(model.ScoredChunk{}); got != "Low relevance" {
		t.Errorf("expected Low relevance, got %q", got)
	}
}

func TestBoostRelated_SinglePassBothDirections(t *testing.T) {
	r := NewRanker(fakeVectors{dim: 2}, DefaultWeights(), 0.2)
	scored := []model.ScoredChunk{
		scoredChunk("a", 10, 0.9, "top", "e"),
		scoredChunk("b", 10, 0.8, "plain"),
		scoredChunk("c", 10, 0.7, "points at top", "a"),
		scoredChunk("d", 10, 0.6, "plain"),
		scoredChunk("e", 10, 0.4, "referenced by top"),
	}
	for i := range scored {
		scored[i].Reason = "r"
	}

	out := r.BoostRelated(scored)
	if !sameIDs(out, "a", "c", "b", "d", "e") {
		t.Fatalf("expected [a c b d e], got %v", ids(out))
	}
	if !approxEqual(out[1].RelevanceScore, 0.84) {
		t.Errorf("expected c boosted to 0.84, got %f", out[1].RelevanceScore)
	}
	if out[1].Reason != "r + Related to high-scoring chunk" {
		t.Errorf("unexpected reason %q", out[1].Reason)
	}
	if !approxEqual(out[4].RelevanceScore, 0.48) {
		t.Errorf("expected e boosted to 0.48, got %f", out[4].RelevanceScore)
	}
	if out[2].RelevanceScore != 0.8 || out[2].Reason != "r" {
		t.Errorf("expected b untouched, got %f %q", out[2].RelevanceScore, out[2].Reason)
	}
}

func TestBoostRelated_HighSetIsCeilingOfFifth(t *testing.T) {
	r := NewRanker(fakeVectors{dim: 2}, DefaultWeights(), 0.5)
	scored := []model.ScoredChunk{
		scoredChunk("a", 10, 0.9, "x"),
		scoredChunk("b", 10, 0.8, "x", "f"),
		scoredChunk("c", 10, 0.7, "x"),
		scoredChunk("d", 10, 0.6, "x"),
		scoredChunk("e", 10, 0.5, "x"),
		scoredChunk("f", 10, 0.4, "x"),
	}

	// Six chunks: the top two form the high set, so b's edge to f counts.
	out := r.BoostRelated(scored)
	for _, sc := range out {
		if sc.Chunk.ID == "f" && !approxEqual(sc.RelevanceScore, 0.6) {
			t.Errorf("expected f boosted to 0.6, got %f", sc.RelevanceScore)
		}
		if sc.Chunk.ID == "b" && sc.RelevanceScore != 0.8 {
			t.Errorf("expected b unchanged, got %f", sc.RelevanceScore)
		}
	}
}
