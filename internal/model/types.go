// Package model defines the domain types for the context optimizer.
package model

import "time"

// ContentType classifies a content item. It drives the semantic chunker's
// segmentation rules.
type ContentType string

const (
	ContentCode         ContentType = "code"
	ContentDocs         ContentType = "docs"
	ContentConversation ContentType = "conversation"
	ContentOther        ContentType = "other"
)

// Normalize maps unknown or empty types to ContentOther.
func (t ContentType) Normalize() ContentType {
	switch t {
	case ContentCode, ContentDocs, ContentConversation, ContentOther:
		return t
	default:
		return ContentOther
	}
}

// ContentItem is a raw input supplied by the caller. It is never modified once
// handed to the pipeline.
type ContentItem struct {
	ID        string         `json:"id"`
	Text      string         `json:"text" validate:"required"`
	Type      ContentType    `json:"type" validate:"omitempty,oneof=code docs conversation other"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Timestamp *time.Time     `json:"timestamp,omitempty"`

	// Relationships are caller hints. Each entry names either another content
	// item id or a chunk id.
	Relationships []string `json:"relationships,omitempty"`
}

// Chunk is a contiguous slice of a content item's text.
type Chunk struct {
	ID            string
	Text          string
	Type          ContentType
	Source        string
	Position      int
	TotalChunks   int
	TokenCount    int
	Timestamp     *time.Time
	Metadata      map[string]any
	Relationships []string
}

// ScoredChunk is a chunk with its component scores and combined relevance.
// RelevanceScore may exceed 1.0 after the boosting pass.
type ScoredChunk struct {
	Chunk Chunk

	EmbeddingScore    float64
	KeywordScore      float64
	RecencyScore      float64
	RelationshipScore float64

	RelevanceScore float64
	Reason         string
}

// ChunkingStrategy selects how a content item is segmented.
type ChunkingStrategy string

const (
	ChunkFixed    ChunkingStrategy = "fixed"
	ChunkSemantic ChunkingStrategy = "semantic"
	ChunkSliding  ChunkingStrategy = "sliding"
)

// ChunkingOptions configures the chunker for one content item.
// PreserveCodeBlocks defaults to true when unset.
type ChunkingOptions struct {
	Strategy           ChunkingStrategy `json:"strategy" validate:"omitempty,oneof=fixed semantic sliding"`
	ChunkSize          int              `json:"chunk_size" validate:"gte=0"`
	Overlap            int              `json:"overlap" validate:"gte=0"`
	PreserveCodeBlocks *bool            `json:"preserve_code_blocks,omitempty"`
}

// KeepCodeBlocks reports whether semantic chunking splits code items at
// declaration boundaries.
func (o ChunkingOptions) KeepCodeBlocks() bool {
	return o.PreserveCodeBlocks == nil || *o.PreserveCodeBlocks
}

// DefaultChunkingOptions returns semantic chunking at 512 units with a 50 unit overlap.
func DefaultChunkingOptions() ChunkingOptions {
	return ChunkingOptions{
		Strategy:  ChunkSemantic,
		ChunkSize: 512,
		Overlap:   50,
	}
}

// SelectionStrategy selects the budget-constrained selection policy.
type SelectionStrategy string

const (
	StrategyTopN       SelectionStrategy = "top-n"
	StrategyDiversity  SelectionStrategy = "diversity"
	StrategyDependency SelectionStrategy = "dependency"
)

// OptimizationOptions are supplied per request.
type OptimizationOptions struct {
	Strategy          SelectionStrategy `json:"strategy" validate:"omitempty,oneof=top-n diversity dependency"`
	IncludeMetadata   bool              `json:"include_metadata"`
	PreserveOrder     bool              `json:"preserve_order"`
	MinRelevanceScore float64           `json:"min_relevance_score" validate:"gte=0"`
	DiversityLambda   float64           `json:"diversity_lambda" validate:"gte=0,lte=1"`

	// Chunking overrides the configured chunking defaults for every item.
	Chunking *ChunkingOptions `json:"chunking,omitempty"`
}

// DefaultOptimizationOptions returns the documented defaults.
func DefaultOptimizationOptions() OptimizationOptions {
	return OptimizationOptions{
		Strategy:          StrategyDiversity,
		IncludeMetadata:   true,
		PreserveOrder:     false,
		MinRelevanceScore: 0.3,
		DiversityLambda:   0.5,
	}
}

// OptimizationStats summarizes one optimization run.
type OptimizationStats struct {
	OriginalTokens      int     `json:"original_tokens"`
	OptimizedTokens     int     `json:"optimized_tokens"`
	ReductionPercent    float64 `json:"reduction_percent"`
	EstimatedSavingsUSD float64 `json:"estimated_savings_usd"`
	ProcessingTimeMS    float64 `json:"processing_time_ms"`
	ChunksAnalyzed      int     `json:"chunks_analyzed"`
	ChunksSelected      int     `json:"chunks_selected"`
}

// OptimizationResult is the assembled output of the pipeline.
type OptimizationResult struct {
	Chunks []ScoredChunk
	Stats  OptimizationStats
}
