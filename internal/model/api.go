package model

import "time"

// OptimizeRequest is the POST /v1/optimize request body.
type OptimizeRequest struct {
	Query        string               `json:"query" validate:"required"`
	Context      []ContentItem        `json:"context" validate:"required,min=1,dive"`
	TargetTokens int                  `json:"target_tokens" validate:"gte=0"`
	Options      *OptimizationOptions `json:"options,omitempty"`
}

// OptimizeResponse is the POST /v1/optimize response body.
type OptimizeResponse struct {
	OptimizedContext []OptimizedChunk  `json:"optimized_context"`
	Stats            OptimizationStats `json:"stats"`
}

// OptimizedChunk is a single selected chunk in the response.
type OptimizedChunk struct {
	ID             string         `json:"id"`
	Text           string         `json:"text"`
	RelevanceScore float64        `json:"relevance_score"`
	Reason         string         `json:"reason"`
	Source         string         `json:"source"`
	Position       int            `json:"position"`
	Metadata       map[string]any `json:"metadata"`
}

// IndexRequest is the POST /v1/index request body.
type IndexRequest struct {
	Item     ContentItem      `json:"item"`
	Chunking *ChunkingOptions `json:"chunking,omitempty"`
}

// IndexResponse is the POST /v1/index response body.
type IndexResponse struct {
	Status        string `json:"status"`
	RunID         string `json:"run_id"`
	ChunksIndexed int    `json:"chunks_indexed"`
	ContextID     string `json:"context_id"`
}

// SearchRequest is the POST /v1/index/search request body.
type SearchRequest struct {
	Query string `json:"query" validate:"required"`
	Limit int    `json:"limit" validate:"gte=0,lte=200"`
}

// SearchResponse is the POST /v1/index/search response body.
type SearchResponse struct {
	Results []IndexedChunk `json:"results"`
}

// IndexedChunk is a chunk row read back from the vector index.
type IndexedChunk struct {
	ChunkID     string    `json:"chunk_id"`
	Source      string    `json:"source"`
	ContentType string    `json:"type"`
	Position    int       `json:"position"`
	TokenCount  int       `json:"token_count"`
	Text        string    `json:"text"`
	CreatedAt   time.Time `json:"created_at"`

	// Similarity is the cosine similarity of the vector match, TextScore the
	// full-text rank. RRFScore fuses both result lists.
	Similarity float64 `json:"similarity"`
	TextScore  float64 `json:"text_score"`
	VecRank    int     `json:"vec_rank,omitempty"`
	TextRank   int     `json:"text_rank,omitempty"`
	RRFScore   float64 `json:"rrf_score"`
}

// StatsResponse is the GET /v1/stats response body.
type StatsResponse struct {
	Timestamp   time.Time         `json:"timestamp"`
	VectorIndex VectorIndexStats  `json:"vector_index"`
	Cache       CacheStats        `json:"cache"`
	Config      StatsConfigReport `json:"config"`
}

// VectorIndexStats reports vector index state.
type VectorIndexStats struct {
	Enabled     bool `json:"enabled"`
	TotalChunks int  `json:"total_chunks"`
}

// CacheStats reports response cache state.
type CacheStats struct {
	Backend    string `json:"type"`
	TTLSeconds int    `json:"ttl"`
}

// StatsConfigReport echoes the scoring configuration.
type StatsConfigReport struct {
	DefaultTokenBudget int                `json:"default_token_budget"`
	EmbeddingModel     string             `json:"embedding_model"`
	EmbeddingProvider  string             `json:"embedding_provider"`
	ScoringWeights     map[string]float64 `json:"scoring_weights"`
}

// StatusResponse is a generic {"status", "message"} body.
type StatusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// ErrorResponse is the standard error response body.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}
