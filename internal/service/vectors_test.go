package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/cloudwego/eino/components/embedding"
)

// fakeEmbedder returns [len(text), 1] for each text and fails any batch that
// contains failOn.
type fakeEmbedder struct {
	mu     sync.Mutex
	calls  int
	dim    int
	failOn string
}

func (f *fakeEmbedder) EmbedStrings(_ context.Context, texts []string, _ ...embedding.Option) ([][]float64, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	out := make([][]float64, len(texts))
	for i, t := range texts {
		if t == f.failOn {
			return nil, errors.New("provider unavailable")
		}
		v := make([]float64, f.dim)
		v[0] = float64(len(t))
		if f.dim > 1 {
			v[1] = 1
		}
		out[i] = v
	}
	return out, nil
}

func (f *fakeEmbedder) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestEmbedService_PreservesOrderAndMemoizes(t *testing.T) {
	fake := &fakeEmbedder{dim: 2}
	svc := NewEmbedService(fake, 2, 64, 2)

	vecs, err := svc.EmbedMany(context.Background(), []string{"a", "bbb", "a"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vecs) != 3 {
		t.Fatalf("expected 3 vectors, got %d", len(vecs))
	}
	if vecs[0][0] != 1 || vecs[1][0] != 3 || vecs[2][0] != 1 {
		t.Errorf("unexpected vectors %v", vecs)
	}
	if fake.callCount() != 1 {
		t.Errorf("expected 1 provider call, got %d", fake.callCount())
	}

	if _, err := svc.EmbedOne(context.Background(), "bbb"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fake.callCount() != 1 {
		t.Errorf("expected memoized vector, got %d provider calls", fake.callCount())
	}
}

func TestEmbedService_FailedBatchDegradesToZeroVectors(t *testing.T) {
	fake := &fakeEmbedder{dim: 2, failOn: "bad"}
	svc := NewEmbedService(fake, 2, 2, 1)

	vecs, err := svc.EmbedMany(context.Background(), []string{"ok", "bad", "fine"})
	if err != nil {
		t.Fatalf("expected degradation, got error %v", err)
	}
	if vecs[0][0] != 0 || vecs[1][0] != 0 {
		t.Errorf("expected zero vectors for failed batch, got %v %v", vecs[0], vecs[1])
	}
	if vecs[2][0] != 4 {
		t.Errorf("expected healthy batch to be embedded, got %v", vecs[2])
	}
	if fake.callCount() != 2 {
		t.Errorf("expected 2 batches, got %d", fake.callCount())
	}

	// Failed texts are not memoized.
	fake.failOn = ""
	vecs, err = svc.EmbedMany(context.Background(), []string{"ok"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if vecs[0][0] != 2 {
		t.Errorf("expected retry to embed text, got %v", vecs[0])
	}
}

func TestEmbedService_DimensionMismatch(t *testing.T) {
	svc := NewEmbedService(&fakeEmbedder{dim: 3}, 2, 8, 1)
	_, err := svc.EmbedMany(context.Background(), []string{"x"})
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch, got %v", err)
	}
}

func TestEmbedService_EmptyTextIsZeroVector(t *testing.T) {
	fake := &fakeEmbedder{dim: 2}
	svc := NewEmbedService(fake, 2, 8, 1)
	vecs, err := svc.EmbedMany(context.Background(), []string{""})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vecs[0]) != 2 || vecs[0][0] != 0 {
		t.Errorf("expected zero vector, got %v", vecs[0])
	}
	if fake.callCount() != 0 {
		t.Errorf("expected no provider call, got %d", fake.callCount())
	}
}

func TestEmbedService_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	svc := NewEmbedService(cancelingEmbedder{}, 2, 8, 1)
	if _, err := svc.EmbedMany(ctx, []string{"x"}); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

type cancelingEmbedder struct{}

func (cancelingEmbedder) EmbedStrings(ctx context.Context, _ []string, _ ...embedding.Option) ([][]float64, error) {
	return nil, ctx.Err()
}
