package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/jharjadi/tokenwise/internal/cache"
	authmw "github.com/jharjadi/tokenwise/internal/middleware"
	"github.com/jharjadi/tokenwise/internal/model"
	"github.com/jharjadi/tokenwise/internal/service"
)

// OptimizeHandler handles POST /v1/optimize requests.
type OptimizeHandler struct {
	optimizer *service.Optimizer
	cache     *cache.Cache
}

// NewOptimizeHandler creates a new OptimizeHandler.
func NewOptimizeHandler(optimizer *service.Optimizer, c *cache.Cache) *OptimizeHandler {
	return &OptimizeHandler{
		optimizer: optimizer,
		cache:     c,
	}
}

// fingerprint is hashed into the response cache key. Two requests with equal
// fingerprints produce the same response.
type fingerprint struct {
	TenantID     string                    `json:"tenant_id"`
	Query        string                    `json:"query"`
	Items        []model.ContentItem       `json:"items"`
	TargetTokens int                       `json:"target_tokens"`
	Options      model.OptimizationOptions `json:"options"`
}

// Handle processes a POST /v1/optimize request:
// decode → validate → cache lookup → chunk/rank/select → response
func (h *OptimizeHandler) Handle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()
	requestID := chimw.GetReqID(ctx)

	tenantID := authmw.TenantIDFromContext(ctx)
	if tenantID == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "tenant_id is required")
		return
	}

	// Options omitted from the body keep their defaults.
	defaults := model.DefaultOptimizationOptions()
	req := model.OptimizeRequest{Options: &defaults}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	opts := model.DefaultOptimizationOptions()
	if req.Options != nil {
		opts = *req.Options
	}
	if opts.Strategy == "" {
		opts.Strategy = model.StrategyDiversity
	}

	key, err := cache.Key(fingerprint{
		TenantID:     tenantID,
		Query:        req.Query,
		Items:        req.Context,
		TargetTokens: req.TargetTokens,
		Options:      opts,
	})
	if err != nil {
		slog.Error("failed to build cache key", "error", err, "request_id", requestID)
		writeError(w, http.StatusInternalServerError, "internal", "failed to fingerprint request")
		return
	}

	body, hit, err := h.cache.GetOrLoad(ctx, key, func(ctx context.Context) ([]byte, error) {
		result, err := h.optimizer.Optimize(ctx, req.Query, req.Context, req.TargetTokens, opts)
		if err != nil {
			return nil, err
		}
		return json.Marshal(model.OptimizeResponse{
			OptimizedContext: service.ToOptimizedChunks(result.Chunks, opts.IncludeMetadata),
			Stats:            result.Stats,
		})
	})
	if err != nil {
		if service.IsInputError(err) {
			writeError(w, http.StatusBadRequest, "bad_request", err.Error())
			return
		}
		slog.Error("optimization failed", "error", err, "request_id", requestID, "tenant_id", tenantID)
		writeError(w, http.StatusInternalServerError, "internal", "optimization failed")
		return
	}

	var resp model.OptimizeResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		slog.Error("cached response is corrupt", "error", err, "request_id", requestID)
		writeError(w, http.StatusInternalServerError, "internal", "optimization failed")
		return
	}

	slog.Info("optimize",
		"tenant_id", tenantID,
		"request_id", requestID,
		"strategy", string(opts.Strategy),
		"chunks_analyzed", resp.Stats.ChunksAnalyzed,
		"chunks_selected", resp.Stats.ChunksSelected,
		"original_tokens", resp.Stats.OriginalTokens,
		"optimized_tokens", resp.Stats.OptimizedTokens,
		"cache_hit", hit,
		"latency_ms", time.Since(start).Milliseconds(),
	)

	w.Header().Set("X-Cache", cacheHeader(hit))
	writeJSON(w, http.StatusOK, resp)
}

func cacheHeader(hit bool) string {
	if hit {
		return "HIT"
	}
	return "MISS"
}

// CacheHandler handles response cache management.
type CacheHandler struct {
	cache *cache.Cache
}

// NewCacheHandler creates a new CacheHandler.
func NewCacheHandler(c *cache.Cache) *CacheHandler {
	return &CacheHandler{cache: c}
}

// Clear handles POST /v1/cache/clear.
func (h *CacheHandler) Clear(w http.ResponseWriter, r *http.Request) {
	n, err := h.cache.Clear(r.Context())
	if err != nil {
		slog.Error("failed to clear cache", "error", err)
		writeError(w, http.StatusInternalServerError, "internal", "failed to clear cache")
		return
	}

	slog.Info("cache cleared", "entries", n, "tenant_id", authmw.TenantIDFromContext(r.Context()))
	writeJSON(w, http.StatusOK, model.StatusResponse{
		Status:  "success",
		Message: fmt.Sprintf("cleared %d cached responses", n),
	})
}
