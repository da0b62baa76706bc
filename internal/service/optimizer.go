package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jharjadi/tokenwise/internal/metrics"
	"github.com/jharjadi/tokenwise/internal/model"
	"github.com/jharjadi/tokenwise/internal/tokenizer"
)

var optimizerTracer = otel.Tracer("tokenwise.optimizer")

// OptimizerConfig holds per-process optimizer settings.
type OptimizerConfig struct {
	DefaultBudget        int
	Chunking             model.ChunkingOptions
	CostPerMillionTokens float64
}

// Optimizer runs the chunk → rank → boost → select → assemble pipeline.
// It holds no per-request state and is safe for concurrent use.
type Optimizer struct {
	chunker *Chunker
	ranker  *Ranker
	cfg     OptimizerConfig
}

// NewOptimizer creates an Optimizer.
func NewOptimizer(counter tokenizer.Counter, ranker *Ranker, cfg OptimizerConfig) *Optimizer {
	if cfg.DefaultBudget <= 0 {
		cfg.DefaultBudget = 4000
	}
	if cfg.Chunking.Strategy == "" {
		cfg.Chunking = model.DefaultChunkingOptions()
	}
	return &Optimizer{
		chunker: NewChunker(counter),
		ranker:  ranker,
		cfg:     cfg,
	}
}

// Chunker returns the chunker used by the optimizer.
func (o *Optimizer) Chunker() *Chunker {
	return o.chunker
}

// DefaultChunking returns the configured chunking options.
func (o *Optimizer) DefaultChunking() model.ChunkingOptions {
	return o.cfg.Chunking
}

// Optimize selects the most relevant chunks of items for query within
// targetTokens. A non-positive targetTokens uses the configured default.
// Items without an id are named item-<index>.
func (o *Optimizer) Optimize(ctx context.Context, query string, items []model.ContentItem, targetTokens int, opts model.OptimizationOptions) (*model.OptimizationResult, error) {
	start := time.Now()

	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}
	if len(items) == 0 {
		return nil, ErrEmptyContent
	}
	switch opts.Strategy {
	case model.StrategyTopN, model.StrategyDiversity, model.StrategyDependency:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, opts.Strategy)
	}

	budget := targetTokens
	if budget <= 0 {
		budget = o.cfg.DefaultBudget
	}
	chunking := o.cfg.Chunking
	if opts.Chunking != nil {
		chunking = *opts.Chunking
		if chunking.Strategy == "" {
			chunking.Strategy = o.cfg.Chunking.Strategy
		}
	}

	ctx, span := optimizerTracer.Start(ctx, "optimizer.Optimize",
		trace.WithAttributes(
			attribute.String("optimizer.strategy", string(opts.Strategy)),
			attribute.Int("optimizer.budget", budget),
			attribute.Int("optimizer.items", len(items)),
		))
	defer span.End()

	result, err := o.run(ctx, query, items, budget, chunking, opts)
	status := "ok"
	if err != nil {
		status = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	metrics.OptimizationsTotal.WithLabelValues(string(opts.Strategy), status).Inc()
	if err != nil {
		return nil, err
	}

	elapsed := time.Since(start)
	result.Stats.ProcessingTimeMS = roundTo(float64(elapsed.Microseconds())/1000, 1)
	metrics.OptimizeDuration.WithLabelValues(string(opts.Strategy)).Observe(elapsed.Seconds())
	metrics.TokensSaved.Add(float64(result.Stats.OriginalTokens - result.Stats.OptimizedTokens))
	metrics.ChunksSelected.Observe(float64(result.Stats.ChunksSelected))

	span.SetAttributes(
		attribute.Int("optimizer.chunks_analyzed", result.Stats.ChunksAnalyzed),
		attribute.Int("optimizer.chunks_selected", result.Stats.ChunksSelected),
	)
	return result, nil
}

func (o *Optimizer) run(ctx context.Context, query string, items []model.ContentItem, budget int, chunking model.ChunkingOptions, opts model.OptimizationOptions) (*model.OptimizationResult, error) {
	chunks, err := o.chunkAll(items, chunking)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return &model.OptimizationResult{}, nil
	}

	originalTokens := 0
	for _, c := range chunks {
		originalTokens += c.TokenCount
	}

	scored, err := o.ranker.Rank(ctx, query, chunks)
	if err != nil {
		return nil, fmt.Errorf("rank chunks: %w", err)
	}
	scored = o.ranker.BoostRelated(scored)

	selected, err := Select(scored, budget, opts)
	if err != nil {
		return nil, err
	}
	assembled := Reorder(selected, opts.PreserveOrder)

	optimizedTokens := 0
	for _, sc := range assembled {
		optimizedTokens += sc.Chunk.TokenCount
	}

	slog.Debug("optimizer: selection complete",
		"chunks_analyzed", len(chunks),
		"chunks_selected", len(assembled),
		"budget", budget,
		"optimized_tokens", optimizedTokens,
	)

	return &model.OptimizationResult{
		Chunks: assembled,
		Stats: model.OptimizationStats{
			OriginalTokens:      originalTokens,
			OptimizedTokens:     optimizedTokens,
			ReductionPercent:    ReductionPercent(originalTokens, optimizedTokens),
			EstimatedSavingsUSD: EstimateSavings(originalTokens, optimizedTokens, o.cfg.CostPerMillionTokens),
			ChunksAnalyzed:      len(chunks),
			ChunksSelected:      len(assembled),
		},
	}, nil
}

// chunkAll chunks every item and resolves relationship hints. A hint naming a
// content item expands to all chunks of that item; any other hint is kept as
// a chunk id.
func (o *Optimizer) chunkAll(items []model.ContentItem, chunking model.ChunkingOptions) ([]model.Chunk, error) {
	named := make([]model.ContentItem, len(items))
	seen := make(map[string]struct{}, len(items))
	for i, item := range items {
		if item.ID == "" {
			item.ID = fmt.Sprintf("item-%d", i)
		}
		if _, dup := seen[item.ID]; dup {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateItemID, item.ID)
		}
		seen[item.ID] = struct{}{}
		named[i] = item
	}

	var all []model.Chunk
	byItem := make(map[string][]string, len(named))
	for _, item := range named {
		chunks, err := o.chunker.Chunk(item, chunking)
		if err != nil {
			return nil, fmt.Errorf("chunk item %s: %w", item.ID, err)
		}
		for _, c := range chunks {
			byItem[item.ID] = append(byItem[item.ID], c.ID)
		}
		all = append(all, chunks...)
	}

	for i := range all {
		all[i].Relationships = resolveRelationships(all[i], byItem)
	}
	return all, nil
}

func resolveRelationships(c model.Chunk, byItem map[string][]string) []string {
	if len(c.Relationships) == 0 {
		return nil
	}

	var out []string
	seen := map[string]struct{}{c.ID: {}}
	appendID := func(id string) {
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}

	for _, hint := range c.Relationships {
		if ids, ok := byItem[hint]; ok {
			for _, id := range ids {
				appendID(id)
			}
			continue
		}
		appendID(hint)
	}
	return out
}

// ReductionPercent returns (orig-opt)/orig*100 rounded to one decimal, or 0
// when orig is 0.
func ReductionPercent(orig, opt int) float64 {
	if orig <= 0 {
		return 0
	}
	return roundTo(float64(orig-opt)/float64(orig)*100, 1)
}

// EstimateSavings returns the USD saved by sending opt instead of orig tokens,
// rounded to four decimals.
func EstimateSavings(orig, opt int, costPerMillion float64) float64 {
	return roundTo(float64(orig-opt)/1_000_000*costPerMillion, 4)
}
