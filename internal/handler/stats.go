package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/jharjadi/tokenwise/internal/cache"
	authmw "github.com/jharjadi/tokenwise/internal/middleware"
	"github.com/jharjadi/tokenwise/internal/model"
	"github.com/jharjadi/tokenwise/internal/service"
)

// ServiceInfo describes the running service for GET / and GET /v1/stats.
type ServiceInfo struct {
	Name               string
	Version            string
	DefaultTokenBudget int
	EmbeddingModel     string
	EmbeddingProvider  string
	Weights            service.Weights
}

// StatsHandler serves health, service info and statistics.
type StatsHandler struct {
	info  ServiceInfo
	cache *cache.Cache
	index VectorIndex
	ping  func(*http.Request) error
}

// NewStatsHandler creates a new StatsHandler. index may be nil. ping, when
// set, is called by Health to check backing services.
func NewStatsHandler(info ServiceInfo, c *cache.Cache, index VectorIndex, ping func(*http.Request) error) *StatsHandler {
	return &StatsHandler{
		info:  info,
		cache: c,
		index: index,
		ping:  ping,
	}
}

// Health handles GET /health.
func (h *StatsHandler) Health(w http.ResponseWriter, r *http.Request) {
	if h.ping != nil {
		if err := h.ping(r); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "unhealthy",
				"error":  err.Error(),
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"version":   h.info.Version,
	})
}

// Info handles GET /.
func (h *StatsHandler) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"service": h.info.Name,
		"version": h.info.Version,
		"status":  "operational",
		"endpoints": map[string]string{
			"optimize": "/v1/optimize",
			"index":    "/v1/index",
			"search":   "/v1/index/search",
			"stats":    "/v1/stats",
			"health":   "/health",
			"metrics":  "/metrics",
		},
	})
}

// Stats handles GET /v1/stats.
func (h *StatsHandler) Stats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := authmw.TenantIDFromContext(ctx)

	resp := model.StatsResponse{
		Timestamp: time.Now().UTC(),
		Cache: model.CacheStats{
			Backend:    h.cache.Backend(),
			TTLSeconds: int(h.cache.TTL().Seconds()),
		},
		Config: model.StatsConfigReport{
			DefaultTokenBudget: h.info.DefaultTokenBudget,
			EmbeddingModel:     h.info.EmbeddingModel,
			EmbeddingProvider:  h.info.EmbeddingProvider,
			ScoringWeights: map[string]float64{
				"embedding":    h.info.Weights.Embedding,
				"keyword":      h.info.Weights.Keyword,
				"recency":      h.info.Weights.Recency,
				"relationship": h.info.Weights.Relationship,
			},
		},
	}

	if h.index != nil {
		n, err := h.index.Count(ctx, tenantID)
		if err != nil {
			slog.Error("failed to count indexed chunks", "error", err, "tenant_id", tenantID)
			writeError(w, http.StatusInternalServerError, "internal", "failed to read index stats")
			return
		}
		resp.VectorIndex = model.VectorIndexStats{Enabled: true, TotalChunks: n}
	}

	writeJSON(w, http.StatusOK, resp)
}
