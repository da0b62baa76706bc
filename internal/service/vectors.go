package service

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"sync"

	"github.com/cloudwego/eino/components/embedding"
	"golang.org/x/sync/errgroup"

	"github.com/jharjadi/tokenwise/internal/metrics"
)

// maxMemoEntries bounds the in-process embedding memo. The memo is reset once
// it reaches this size.
const maxMemoEntries = 20000

// EmbedService turns texts into vectors of a fixed dimension using an
// embedding.Embedder. Provider failures degrade to zero vectors per batch so a
// flaky provider never fails an optimization.
type EmbedService struct {
	embedder    embedding.Embedder
	dim         int
	batchSize   int
	concurrency int

	mu   sync.RWMutex
	memo map[[sha256.Size]byte][]float32
}

// NewEmbedService creates an EmbedService. batchSize and concurrency default
// to 64 and 4 when not positive.
func NewEmbedService(embedder embedding.Embedder, dim, batchSize, concurrency int) *EmbedService {
	if batchSize <= 0 {
		batchSize = 64
	}
	if concurrency <= 0 {
		concurrency = 4
	}
	return &EmbedService{
		embedder:    embedder,
		dim:         dim,
		batchSize:   batchSize,
		concurrency: concurrency,
		memo:        make(map[[sha256.Size]byte][]float32),
	}
}

// Dim returns the vector dimension.
func (s *EmbedService) Dim() int {
	return s.dim
}

// EmbedOne embeds a single text.
func (s *EmbedService) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	vecs, err := s.EmbedMany(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedMany embeds texts, returning one vector per input in input order.
// Texts whose batch failed get a zero vector. An error is returned only when
// ctx is done or the provider returns vectors of the wrong dimension.
func (s *EmbedService) EmbedMany(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))

	// Group cache misses by content so duplicate texts are embedded once.
	var (
		pending []string
		keys    [][sha256.Size]byte
		targets [][]int
	)
	seen := make(map[[sha256.Size]byte]int)

	s.mu.RLock()
	for i, text := range texts {
		if text == "" {
			out[i] = make([]float32, s.dim)
			continue
		}
		key := sha256.Sum256([]byte(text))
		if vec, ok := s.memo[key]; ok {
			out[i] = vec
			continue
		}
		if j, ok := seen[key]; ok {
			targets[j] = append(targets[j], i)
			continue
		}
		seen[key] = len(pending)
		pending = append(pending, text)
		keys = append(keys, key)
		targets = append(targets, []int{i})
	}
	s.mu.RUnlock()

	if len(pending) == 0 {
		return out, nil
	}

	results := make([][]float32, len(pending))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for start := 0; start < len(pending); start += s.batchSize {
		end := min(start+s.batchSize, len(pending))
		g.Go(func() error {
			return s.embedBatch(gctx, pending[start:end], results[start:end])
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	if len(s.memo)+len(pending) > maxMemoEntries {
		s.memo = make(map[[sha256.Size]byte][]float32)
	}
	for j, vec := range results {
		if vec == nil {
			vec = make([]float32, s.dim)
		} else {
			s.memo[keys[j]] = vec
		}
		for _, i := range targets[j] {
			out[i] = vec
		}
	}
	s.mu.Unlock()

	return out, nil
}

// embedBatch fills dst with vectors for batch. On provider failure dst is left
// nil and the failure is logged and counted.
func (s *EmbedService) embedBatch(ctx context.Context, batch []string, dst [][]float32) error {
	vecs, err := s.embedder.EmbedStrings(ctx, batch)
	if err == nil && len(vecs) != len(batch) {
		err = fmt.Errorf("provider returned %d vectors for %d texts", len(vecs), len(batch))
	}
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		slog.Warn("embedding batch failed, using zero vectors", "batch_size", len(batch), "error", err)
		metrics.EmbedFailuresTotal.Add(float64(len(batch)))
		return nil
	}

	for i, v64 := range vecs {
		if len(v64) != s.dim {
			return fmt.Errorf("%w: provider returned %d, configured %d", ErrDimensionMismatch, len(v64), s.dim)
		}
		v32 := make([]float32, len(v64))
		for j, v := range v64 {
			v32[j] = float32(v)
		}
		dst[i] = v32
	}
	return nil
}
