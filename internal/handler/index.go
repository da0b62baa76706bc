package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	authmw "github.com/jharjadi/tokenwise/internal/middleware"
	"github.com/jharjadi/tokenwise/internal/model"
	"github.com/jharjadi/tokenwise/internal/service"
)

const defaultSearchLimit = 10

// VectorIndex persists chunk embeddings per tenant. *db.VectorStore
// implements it.
type VectorIndex interface {
	AddChunks(ctx context.Context, tenantID string, chunks []model.Chunk, vectors [][]float32) error
	Search(ctx context.Context, tenantID string, embedding []float32, k int) ([]model.IndexedChunk, error)
	SearchText(ctx context.Context, tenantID, query string, k int) ([]model.IndexedChunk, error)
	Count(ctx context.Context, tenantID string) (int, error)
	Clear(ctx context.Context, tenantID string) (int64, error)
}

// IndexHandler handles the /v1/index endpoints. A nil index disables them.
type IndexHandler struct {
	index    VectorIndex
	chunker  *service.Chunker
	vectors  service.Vectorizer
	chunking model.ChunkingOptions
}

// NewIndexHandler creates a new IndexHandler.
func NewIndexHandler(index VectorIndex, chunker *service.Chunker, vectors service.Vectorizer, chunking model.ChunkingOptions) *IndexHandler {
	return &IndexHandler{
		index:    index,
		chunker:  chunker,
		vectors:  vectors,
		chunking: chunking,
	}
}

func (h *IndexHandler) requireIndex(w http.ResponseWriter) bool {
	if h.index == nil {
		writeError(w, http.StatusServiceUnavailable, "index_disabled", "vector index is not configured (DATABASE_URL unset)")
		return false
	}
	return true
}

// Index handles POST /v1/index: chunk one content item, embed every chunk
// and upsert the result into the tenant's vector index.
func (h *IndexHandler) Index(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.requireIndex(w) {
		return
	}
	requestID := chimw.GetReqID(ctx)
	tenantID := authmw.TenantIDFromContext(ctx)

	var req model.IndexRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	item := req.Item
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	opts := h.chunking
	if req.Chunking != nil {
		opts = *req.Chunking
		if opts.Strategy == "" {
			opts.Strategy = h.chunking.Strategy
		}
	}

	runID := uuid.NewString()
	chunks, err := h.chunker.Chunk(item, opts)
	if err != nil {
		if errors.Is(err, service.ErrInvalidStrategy) {
			writeError(w, http.StatusBadRequest, "bad_request", err.Error())
			return
		}
		slog.Error("failed to chunk item", "error", err, "request_id", requestID)
		writeError(w, http.StatusInternalServerError, "internal", "failed to chunk item")
		return
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := h.vectors.EmbedMany(ctx, texts)
	if err != nil {
		slog.Error("failed to embed chunks", "error", err, "request_id", requestID)
		writeError(w, http.StatusInternalServerError, "internal", "failed to embed chunks")
		return
	}

	if err := h.index.AddChunks(ctx, tenantID, chunks, vectors); err != nil {
		slog.Error("failed to index chunks", "error", err, "request_id", requestID, "run_id", runID)
		writeError(w, http.StatusInternalServerError, "internal", "failed to index chunks")
		return
	}

	slog.Info("content indexed",
		"event", "index",
		"tenant_id", tenantID,
		"request_id", requestID,
		"run_id", runID,
		"context_id", item.ID,
		"chunks", len(chunks),
	)

	writeJSON(w, http.StatusOK, model.IndexResponse{
		Status:        "indexed",
		RunID:         runID,
		ChunksIndexed: len(chunks),
		ContextID:     item.ID,
	})
}

// Search handles POST /v1/index/search: vector and full-text search run in
// parallel and are fused with RRF.
func (h *IndexHandler) Search(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.requireIndex(w) {
		return
	}
	tenantID := authmw.TenantIDFromContext(ctx)

	var req model.SearchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	if req.Limit <= 0 {
		req.Limit = defaultSearchLimit
	}

	vec, err := h.vectors.EmbedOne(ctx, req.Query)
	if err != nil {
		slog.Error("failed to embed query", "error", err)
		writeError(w, http.StatusInternalServerError, "internal", "failed to embed query")
		return
	}

	var vecResults, textResults []model.IndexedChunk
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		vecResults, err = h.index.Search(gctx, tenantID, vec, req.Limit)
		return err
	})
	g.Go(func() error {
		var err error
		textResults, err = h.index.SearchText(gctx, tenantID, req.Query, req.Limit)
		return err
	})
	if err := g.Wait(); err != nil {
		slog.Error("index search failed", "error", err, "tenant_id", tenantID)
		writeError(w, http.StatusInternalServerError, "internal", "index search failed")
		return
	}

	results := service.MergeRRF(vecResults, textResults, service.DefaultRRFK)
	if len(results) > req.Limit {
		results = results[:req.Limit]
	}

	writeJSON(w, http.StatusOK, model.SearchResponse{Results: results})
}

// Clear handles POST /v1/index/clear. Admin only.
func (h *IndexHandler) Clear(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.requireIndex(w) {
		return
	}
	tenantID := authmw.TenantIDFromContext(ctx)

	n, err := h.index.Clear(ctx, tenantID)
	if err != nil {
		slog.Error("failed to clear index", "error", err, "tenant_id", tenantID)
		writeError(w, http.StatusInternalServerError, "internal", "failed to clear index")
		return
	}

	slog.Info("index cleared",
		"event", "index_clear",
		"tenant_id", tenantID,
		"user_id", authmw.UserIDFromContext(ctx),
		"chunks", n,
	)
	writeJSON(w, http.StatusOK, model.StatusResponse{
		Status:  "success",
		Message: fmt.Sprintf("removed %d indexed chunks", n),
	})
}
