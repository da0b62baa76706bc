package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jharjadi/tokenwise/internal/cache"
	authmw "github.com/jharjadi/tokenwise/internal/middleware"
	"github.com/jharjadi/tokenwise/internal/model"
	"github.com/jharjadi/tokenwise/internal/service"
	"github.com/jharjadi/tokenwise/internal/tokenizer"
)

// withAuthContext injects tenant_id, user_id, and role into the request context,
// simulating what the auth middleware does.
func withAuthContext(r *http.Request, tenantID, userID, role string) *http.Request {
	p := authmw.Principal{TenantID: tenantID, UserID: userID, Role: role}
	return r.WithContext(authmw.WithPrincipal(r.Context(), p))
}

func jsonRequest(t *testing.T, method, path string, v any) *http.Request {
	t.Helper()
	body, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return withAuthContext(req, "tenant-1", "user-1", "admin")
}

func newTestVectors() *service.EmbedService {
	return service.NewEmbedService(service.ZeroEmbedder{Dim: 4}, 4, 0, 0)
}

func newTestOptimizeHandler() *OptimizeHandler {
	ranker := service.NewRanker(newTestVectors(), service.DefaultWeights(), 0.2)
	opt := service.NewOptimizer(tokenizer.Estimator{}, ranker, service.OptimizerConfig{
		DefaultBudget:        4000,
		Chunking:             model.DefaultChunkingOptions(),
		CostPerMillionTokens: 3.0,
	})
	return NewOptimizeHandler(opt, cache.New(cache.NewMemoryStore(), time.Hour))
}

// fakeIndex is an in-memory VectorIndex.
type fakeIndex struct {
	chunks map[string][]model.Chunk
}

func newFakeIndex() *fakeIndex {
	return &fakeIndex{chunks: make(map[string][]model.Chunk)}
}

func (f *fakeIndex) AddChunks(_ context.Context, tenantID string, chunks []model.Chunk, _ [][]float32) error {
	f.chunks[tenantID] = append(f.chunks[tenantID], chunks...)
	return nil
}

func (f *fakeIndex) Search(_ context.Context, tenantID string, _ []float32, k int) ([]model.IndexedChunk, error) {
	var out []model.IndexedChunk
	for _, c := range f.chunks[tenantID] {
		if len(out) == k {
			break
		}
		out = append(out, model.IndexedChunk{ChunkID: c.ID, Source: c.Source, Text: c.Text})
	}
	return out, nil
}

func (f *fakeIndex) SearchText(_ context.Context, tenantID, query string, k int) ([]model.IndexedChunk, error) {
	var out []model.IndexedChunk
	for _, c := range f.chunks[tenantID] {
		if len(out) == k {
			break
		}
		if strings.Contains(c.Text, query) {
			out = append(out, model.IndexedChunk{ChunkID: c.ID, Source: c.Source, Text: c.Text})
		}
	}
	return out, nil
}

func (f *fakeIndex) Count(_ context.Context, tenantID string) (int, error) {
	return len(f.chunks[tenantID]), nil
}

func (f *fakeIndex) Clear(_ context.Context, tenantID string) (int64, error) {
	n := len(f.chunks[tenantID])
	delete(f.chunks, tenantID)
	return int64(n), nil
}
