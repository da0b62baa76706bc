package service

import (
	"context"
	"errors"
	"testing"

	"github.com/jharjadi/tokenwise/internal/model"
)

func newTestOptimizer(vecs Vectorizer) *Optimizer {
	return NewOptimizer(wordCounter{}, NewRanker(vecs, DefaultWeights(), 0.2), OptimizerConfig{
		DefaultBudget:        4000,
		Chunking:             model.DefaultChunkingOptions(),
		CostPerMillionTokens: 3.0,
	})
}

func TestOptimize_InputErrors(t *testing.T) {
	o := newTestOptimizer(fakeVectors{dim: 2})
	ctx := context.Background()
	opts := model.DefaultOptimizationOptions()
	items := []model.ContentItem{{ID: "a", Text: "some text"}}

	if _, err := o.Optimize(ctx, "  ", items, 100, opts); !errors.Is(err, ErrEmptyQuery) {
		t.Errorf("expected ErrEmptyQuery, got %v", err)
	}
	if _, err := o.Optimize(ctx, "query", nil, 100, opts); !errors.Is(err, ErrEmptyContent) {
		t.Errorf("expected ErrEmptyContent, got %v", err)
	}

	dup := []model.ContentItem{{ID: "a", Text: "x"}, {ID: "a", Text: "y"}}
	if _, err := o.Optimize(ctx, "query", dup, 100, opts); !errors.Is(err, ErrDuplicateItemID) {
		t.Errorf("expected ErrDuplicateItemID, got %v", err)
	}

	bad := opts
	bad.Strategy = "greedy"
	if _, err := o.Optimize(ctx, "query", items, 100, bad); !errors.Is(err, ErrUnknownStrategy) {
		t.Errorf("expected ErrUnknownStrategy, got %v", err)
	}

	bad = opts
	bad.Chunking = &model.ChunkingOptions{Strategy: "lines", ChunkSize: 10}
	if _, err := o.Optimize(ctx, "query", items, 100, bad); !errors.Is(err, ErrInvalidStrategy) {
		t.Errorf("expected ErrInvalidStrategy, got %v", err)
	}
}

func TestOptimize_NoChunksIsEmptyResult(t *testing.T) {
	o := newTestOptimizer(fakeVectors{dim: 2})
	res, err := o.Optimize(context.Background(), "query", []model.ContentItem{{ID: "a", Text: "   "}}, 100, model.DefaultOptimizationOptions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Chunks) != 0 {
		t.Errorf("expected no chunks, got %d", len(res.Chunks))
	}
	if res.Stats.OriginalTokens != 0 || res.Stats.ChunksAnalyzed != 0 || res.Stats.ReductionPercent != 0 {
		t.Errorf("expected zeroed stats, got %+v", res.Stats)
	}
}

func TestOptimize_SelectsRelevantItemWithinBudget(t *testing.T) {
	vecs := fakeVectors{dim: 2, vecs: map[string][]float32{
		"how does connection pooling work":                             {1, 0},
		"connection pooling keeps database connections open for reuse": {1, 0},
		"the weather today is sunny and warm":                          {0, 1},
	}}
	o := newTestOptimizer(vecs)

	items := []model.ContentItem{
		{ID: "weather", Text: "the weather today is sunny and warm", Type: model.ContentConversation},
		{ID: "pool", Text: "connection pooling keeps database connections open for reuse", Type: model.ContentDocs},
	}
	opts := model.DefaultOptimizationOptions()
	opts.Strategy = model.StrategyTopN

	res, err := o.Optimize(context.Background(), "how does connection pooling work", items, 9, opts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Chunks) != 1 || res.Chunks[0].Chunk.Source != "pool" {
		t.Fatalf("expected only the pool chunk, got %v", ids(res.Chunks))
	}

	s := res.Stats
	if s.ChunksAnalyzed != 2 || s.ChunksSelected != 1 {
		t.Errorf("expected 2 analyzed / 1 selected, got %d / %d", s.ChunksAnalyzed, s.ChunksSelected)
	}
	if s.OriginalTokens != 16 || s.OptimizedTokens != 9 {
		t.Errorf("expected 16 -> 9 tokens, got %d -> %d", s.OriginalTokens, s.OptimizedTokens)
	}
	if s.ReductionPercent != 43.8 {
		t.Errorf("expected 43.8%% reduction, got %f", s.ReductionPercent)
	}
}

func TestOptimize_ItemRelationshipsExpandToChunks(t *testing.T) {
	o := newTestOptimizer(fakeVectors{dim: 2})
	opts := model.DefaultOptimizationOptions()
	opts.Strategy = model.StrategyDependency
	opts.MinRelevanceScore = 0
	opts.Chunking = &model.ChunkingOptions{Strategy: model.ChunkFixed, ChunkSize: 2}

	items := []model.ContentItem{
		{ID: "lib", Text: "alpha beta gamma delta"},
		{ID: "app", Text: "epsilon zeta", Relationships: []string{"lib", "external-id"}},
	}
	res, err := o.Optimize(context.Background(), "query text", items, 100, opts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var app model.Chunk
	libIDs := map[string]bool{}
	for _, sc := range res.Chunks {
		switch sc.Chunk.Source {
		case "app":
			app = sc.Chunk
		case "lib":
			libIDs[sc.Chunk.ID] = true
		}
	}
	if len(libIDs) != 2 {
		t.Fatalf("expected both lib chunks selected, got %d", len(libIDs))
	}
	if len(app.Relationships) != 3 {
		t.Fatalf("expected 2 lib chunk ids plus the external id, got %v", app.Relationships)
	}
	for _, rel := range app.Relationships[:2] {
		if !libIDs[rel] {
			t.Errorf("expected relationship %s to name a lib chunk", rel)
		}
	}
	if app.Relationships[2] != "external-id" {
		t.Errorf("expected unresolved hint to be kept, got %s", app.Relationships[2])
	}
}

func TestOptimize_AssignsMissingIDs(t *testing.T) {
	o := newTestOptimizer(fakeVectors{dim: 2})
	opts := model.DefaultOptimizationOptions()
	opts.MinRelevanceScore = 0

	res, err := o.Optimize(context.Background(), "query", []model.ContentItem{{Text: "first"}, {Text: "second"}}, 100, opts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sources := map[string]bool{}
	for _, sc := range res.Chunks {
		sources[sc.Chunk.Source] = true
	}
	if !sources["item-0"] || !sources["item-1"] {
		t.Errorf("expected item-0 and item-1 sources, got %v", sources)
	}
}

func TestStatsHelpers(t *testing.T) {
	if got := ReductionPercent(0, 0); got != 0 {
		t.Errorf("expected 0, got %f", got)
	}
	if got := ReductionPercent(1000, 250); got != 75 {
		t.Errorf("expected 75, got %f", got)
	}
	if got := EstimateSavings(1_000_000, 500_000, 3.0); got != 1.5 {
		t.Errorf("expected 1.5, got %f", got)
	}
	if got := EstimateSavings(12345, 0, 3.0); got != 0.037 {
		t.Errorf("expected 0.037, got %f", got)
	}
}
