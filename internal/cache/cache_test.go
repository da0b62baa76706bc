package cache

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestMemoryStore_TTL(t *testing.T) {
	m := NewMemoryStore()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }
	ctx := context.Background()

	if err := m.Set(ctx, KeyPrefix+"a", []byte("v"), time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	val, ok, _ := m.Get(ctx, KeyPrefix+"a")
	if !ok || string(val) != "v" {
		t.Errorf("expected hit with v, got ok=%v val=%q", ok, val)
	}

	now = now.Add(time.Minute)
	if _, ok, _ := m.Get(ctx, KeyPrefix+"a"); ok {
		t.Error("expected entry to expire after ttl")
	}
	if m.Len() != 0 {
		t.Errorf("expected expired entry to be dropped, got %d", m.Len())
	}
}

func TestMemoryStore_SweepAndClear(t *testing.T) {
	m := NewMemoryStore()
	now := time.Now()
	m.now = func() time.Time { return now }
	ctx := context.Background()

	m.Set(ctx, KeyPrefix+"short", []byte("1"), time.Second)
	m.Set(ctx, KeyPrefix+"long", []byte("2"), time.Hour)
	m.Set(ctx, "other:key", []byte("3"), time.Hour)

	now = now.Add(time.Minute)
	if n := m.Sweep(); n != 1 {
		t.Errorf("expected 1 swept, got %d", n)
	}

	n, err := m.Clear(ctx)
	if err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 cleared, got %d", n)
	}
	if m.Len() != 1 {
		t.Errorf("expected foreign key to survive, got %d entries", m.Len())
	}
}

func TestCache_GetOrLoad(t *testing.T) {
	c := New(NewMemoryStore(), time.Hour)
	ctx := context.Background()
	calls := 0
	load := func(context.Context) ([]byte, error) {
		calls++
		return []byte("result"), nil
	}

	val, hit, err := c.GetOrLoad(ctx, KeyPrefix+"k", load)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hit || string(val) != "result" {
		t.Errorf("expected miss with result, got hit=%v val=%q", hit, val)
	}

	val, hit, err = c.GetOrLoad(ctx, KeyPrefix+"k", load)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !hit || string(val) != "result" {
		t.Errorf("expected hit with result, got hit=%v val=%q", hit, val)
	}
	if calls != 1 {
		t.Errorf("expected 1 load, got %d", calls)
	}
}

func TestCache_LoadErrorNotCached(t *testing.T) {
	c := New(NewMemoryStore(), time.Hour)
	ctx := context.Background()
	boom := errors.New("boom")

	_, _, err := c.GetOrLoad(ctx, KeyPrefix+"k", func(context.Context) ([]byte, error) { return nil, boom })
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	val, hit, err := c.GetOrLoad(ctx, KeyPrefix+"k", func(context.Context) ([]byte, error) { return []byte("ok"), nil })
	if err != nil || hit || string(val) != "ok" {
		t.Errorf("expected fresh load after error, got hit=%v val=%q err=%v", hit, val, err)
	}
}

func TestCache_CoalescesConcurrentLoads(t *testing.T) {
	c := New(NewMemoryStore(), time.Hour)
	ctx := context.Background()

	var calls atomic.Int32
	release := make(chan struct{})
	load := func(context.Context) ([]byte, error) {
		calls.Add(1)
		<-release
		return []byte("v"), nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, _, err := c.GetOrLoad(ctx, KeyPrefix+"same", load); err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}

	// Give the goroutines time to join the in-flight load.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if calls.Load() != 1 {
		t.Errorf("expected 1 load, got %d", calls.Load())
	}
}

type failingStore struct{ *MemoryStore }

func (failingStore) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, errors.New("store down")
}

func TestCache_StoreErrorIsMiss(t *testing.T) {
	c := New(failingStore{NewMemoryStore()}, time.Hour)
	val, hit, err := c.GetOrLoad(context.Background(), KeyPrefix+"k", func(context.Context) ([]byte, error) {
		return []byte("fresh"), nil
	})
	if err != nil {
		t.Fatalf("expected store error to be tolerated, got %v", err)
	}
	if hit || string(val) != "fresh" {
		t.Errorf("expected fresh load, got hit=%v val=%q", hit, val)
	}
}

func TestKey(t *testing.T) {
	type req struct {
		Query  string         `json:"query"`
		Budget int            `json:"budget"`
		Meta   map[string]any `json:"meta"`
	}

	a, err := Key(req{Query: "q", Budget: 10, Meta: map[string]any{"x": 1, "y": 2}})
	if err != nil {
		t.Fatalf("Key: %v", err)
	}
	b, _ := Key(req{Query: "q", Budget: 10, Meta: map[string]any{"y": 2, "x": 1}})
	if a != b {
		t.Errorf("expected equal keys, got %s and %s", a, b)
	}
	if !strings.HasPrefix(a, KeyPrefix) {
		t.Errorf("expected prefix %s, got %s", KeyPrefix, a)
	}

	c, _ := Key(req{Query: "q", Budget: 11})
	if a == c {
		t.Error("expected different budgets to give different keys")
	}
}

func TestCache_CanceledCallerDoesNotFailPeers(t *testing.T) {
	c := New(NewMemoryStore(), time.Hour)

	started := make(chan struct{})
	release := make(chan struct{})
	load := func(ctx context.Context) ([]byte, error) {
		close(started)
		<-release
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return []byte("v"), nil
	}

	firstCtx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, _, err := c.GetOrLoad(firstCtx, KeyPrefix+"k", load)
		firstErr <- err
	}()
	<-started

	type outcome struct {
		val []byte
		err error
	}
	second := make(chan outcome, 1)
	go func() {
		val, _, err := c.GetOrLoad(context.Background(), KeyPrefix+"k", load)
		second <- outcome{val, err}
	}()

	// Give the second caller time to join the in-flight load.
	time.Sleep(50 * time.Millisecond)
	cancel()
	if err := <-firstErr; !errors.Is(err, context.Canceled) {
		t.Errorf("expected canceled caller to get context.Canceled, got %v", err)
	}
	close(release)

	got := <-second
	if got.err != nil {
		t.Fatalf("expected peer to succeed, got %v", got.err)
	}
	if string(got.val) != "v" {
		t.Errorf("expected v, got %q", got.val)
	}

	val, hit, err := c.GetOrLoad(context.Background(), KeyPrefix+"k", load)
	if err != nil || !hit || string(val) != "v" {
		t.Errorf("expected cached v after detached load, got hit=%v val=%q err=%v", hit, val, err)
	}
}
