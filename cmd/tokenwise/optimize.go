package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jharjadi/tokenwise/internal/model"
	"github.com/jharjadi/tokenwise/internal/service"
	"github.com/jharjadi/tokenwise/internal/tokenizer"
)

var (
	optQuery         string
	optBudget        int
	optStrategy      string
	optMinScore      float64
	optLambda        float64
	optPreserveOrder bool
	optFormat        string
	optChunkStrategy string
	optChunkSize     int
	optOverlap       int
	optEmbedProvider string
	optEmbedModel    string
	optEmbedDim      int
)

var optimizeCmd = &cobra.Command{
	Use:   "optimize [paths or globs...]",
	Short: "Select the most relevant file chunks within a token budget",
	Long: `Reads the given files, splits them into chunks, ranks the chunks against
the query and prints the selection that fits the token budget.

Globs support ** (for example "internal/**/*.go").`,
	Args: cobra.MinimumNArgs(1),
	RunE: runOptimize,
}

func init() {
	f := optimizeCmd.Flags()
	f.StringVarP(&optQuery, "query", "q", "", "query to optimize for (required)")
	f.IntVarP(&optBudget, "budget", "b", 4000, "token budget")
	f.StringVarP(&optStrategy, "strategy", "s", string(model.StrategyDiversity), "selection strategy: top-n, diversity or dependency")
	f.Float64Var(&optMinScore, "min-score", 0.3, "minimum relevance score")
	f.Float64Var(&optLambda, "lambda", 0.5, "diversity trade-off between relevance (1) and novelty (0)")
	f.BoolVar(&optPreserveOrder, "preserve-order", false, "keep selected chunks in source order")
	f.StringVarP(&optFormat, "format", "f", "text", "output format: text or json")
	f.StringVar(&optChunkStrategy, "chunk-strategy", string(model.ChunkSemantic), "chunking strategy: fixed, semantic or sliding")
	f.IntVar(&optChunkSize, "chunk-size", 512, "target chunk size in tokens")
	f.IntVar(&optOverlap, "overlap", 50, "sliding window overlap in tokens")
	f.StringVar(&optEmbedProvider, "embed-provider", envOr("EMBED_PROVIDER", service.ProviderNone), "embedding provider: openai, http or none")
	f.StringVar(&optEmbedModel, "embed-model", envOr("EMBEDDING_MODEL", "text-embedding-3-small"), "embedding model")
	f.IntVar(&optEmbedDim, "embed-dim", 1536, "embedding dimension")
	_ = optimizeCmd.MarkFlagRequired("query")
	rootCmd.AddCommand(optimizeCmd)
}

func runOptimize(cmd *cobra.Command, args []string) error {
	if optFormat != "text" && optFormat != "json" {
		return fmt.Errorf("unknown format %q (expected text or json)", optFormat)
	}

	paths, err := expandInputs(args)
	if err != nil {
		return err
	}
	items, err := loadItems(paths)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	embedder, err := service.NewEmbedder(ctx, service.EmbedderConfig{
		Provider: optEmbedProvider,
		APIKey:   envOr("OPENAI_API_KEY", ""),
		BaseURL:  envOr("OPENAI_BASE_URL", ""),
		Model:    optEmbedModel,
		Endpoint: envOr("EMBED_ENDPOINT", ""),
		Dim:      optEmbedDim,
		Timeout:  30 * time.Second,
	})
	if err != nil {
		return err
	}
	vectors := service.NewEmbedService(embedder, optEmbedDim, 0, 0)
	ranker := service.NewRanker(vectors, service.DefaultWeights(), 0.2)
	optimizer := service.NewOptimizer(tokenizer.New(tokenizerModel), ranker, service.OptimizerConfig{
		DefaultBudget: optBudget,
		Chunking: model.ChunkingOptions{
			Strategy:  model.ChunkingStrategy(optChunkStrategy),
			ChunkSize: optChunkSize,
			Overlap:   optOverlap,
		},
		CostPerMillionTokens: 3.0,
	})

	result, err := optimizer.Optimize(ctx, optQuery, items, optBudget, model.OptimizationOptions{
		Strategy:          model.SelectionStrategy(optStrategy),
		IncludeMetadata:   true,
		PreserveOrder:     optPreserveOrder,
		MinRelevanceScore: optMinScore,
		DiversityLambda:   optLambda,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if optFormat == "json" {
		data, err := json.MarshalIndent(model.OptimizeResponse{
			OptimizedContext: service.ToOptimizedChunks(result.Chunks, true),
			Stats:            result.Stats,
		}, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal result: %w", err)
		}
		fmt.Fprintln(out, string(data))
		return nil
	}

	if len(result.Chunks) == 0 {
		fmt.Fprintln(out, "No chunks met the relevance threshold.")
	} else {
		fmt.Fprintln(out, service.FormatContext(result.Chunks))
	}
	s := result.Stats
	fmt.Fprintln(out)
	fmt.Fprintf(out, "%d/%d chunks, %d -> %d tokens (%.1f%% reduction, ~$%.4f saved) in %.1fms\n",
		s.ChunksSelected, s.ChunksAnalyzed, s.OriginalTokens, s.OptimizedTokens,
		s.ReductionPercent, s.EstimatedSavingsUSD, s.ProcessingTimeMS)
	return nil
}
