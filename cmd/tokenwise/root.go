package main

import (
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/jharjadi/tokenwise/internal/tokenizer"
)

var (
	verbose        bool
	tokenizerModel string
)

var rootCmd = &cobra.Command{
	Use:   "tokenwise",
	Short: "Token-budgeted context optimizer",
	Long: `Selects the parts of your files that matter for a query and packs them
into a fixed token budget. Chunks are ranked by embedding similarity, keyword
overlap, recency and relationships.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		_ = godotenv.Load()

		level := slog.LevelWarn
		if verbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&tokenizerModel, "tokenizer", envOr("TOKENIZER_MODEL", "gpt-3.5-turbo"),
		"model whose encoding counts tokens (\""+tokenizer.EstimatorModel+"\" for the offline estimator)")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
