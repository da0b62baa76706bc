package service

import (
	"strings"
	"testing"

	"github.com/jharjadi/tokenwise/internal/model"
)

func placed(id, source string, position int, score float64) model.ScoredChunk {
	return model.ScoredChunk{
		Chunk:          model.Chunk{ID: id, Source: source, Position: position, TotalChunks: 3, Text: "text " + id},
		RelevanceScore: score,
		Reason:         "Low relevance",
	}
}

func TestReorder_GroupsBySourceByBestScore(t *testing.T) {
	selected := []model.ScoredChunk{
		placed("b2", "b", 2, 0.95),
		placed("a1", "a", 1, 0.9),
		placed("a0", "a", 0, 0.5),
		placed("b0", "b", 0, 0.4),
	}

	out := Reorder(selected, false)
	if !sameIDs(out, "b0", "b2", "a0", "a1") {
		t.Errorf("expected [b0 b2 a0 a1], got %v", ids(out))
	}
	if selected[0].Chunk.ID != "b2" {
		t.Error("expected input slice to be left untouched")
	}
}

func TestReorder_PreserveOrderSortsByPosition(t *testing.T) {
	selected := []model.ScoredChunk{
		placed("a2", "a", 2, 0.9),
		placed("b0", "b", 0, 0.8),
		placed("a1", "a", 1, 0.7),
	}

	out := Reorder(selected, true)
	if !sameIDs(out, "b0", "a1", "a2") {
		t.Errorf("expected [b0 a1 a2], got %v", ids(out))
	}
}

func TestReorder_Empty(t *testing.T) {
	if out := Reorder(nil, false); len(out) != 0 {
		t.Errorf("expected empty result, got %d", len(out))
	}
}

func TestToOptimizedChunks_RoundsAndStripsMetadata(t *testing.T) {
	sc := placed("a", "src", 1, 0.123456)
	sc.Chunk.Metadata = map[string]any{"path": "main.go"}

	out := ToOptimizedChunks([]model.ScoredChunk{sc}, true)
	if out[0].RelevanceScore != 0.123 {
		t.Errorf("expected 0.123, got %f", out[0].RelevanceScore)
	}
	if out[0].Metadata["path"] != "main.go" {
		t.Error("expected metadata to be included")
	}
	if out[0].Source != "src" || out[0].Position != 1 {
		t.Errorf("unexpected source/position %s/%d", out[0].Source, out[0].Position)
	}

	out = ToOptimizedChunks([]model.ScoredChunk{sc}, false)
	if out[0].Metadata == nil || len(out[0].Metadata) != 0 {
		t.Errorf("expected empty metadata, got %v", out[0].Metadata)
	}
}

func TestFormatContext_MultipleChunks(t *testing.T) {
	chunks := []model.ScoredChunk{placed("a", "doc-a", 0, 0.9), placed("b", "doc-b", 2, 0.5)}

	result := FormatContext(chunks)

	if !strings.Contains(result, "Source: doc-a (chunk 1/3)") {
		t.Error("expected source header for first chunk")
	}
	if !strings.Contains(result, "Source: doc-b (chunk 3/3)") {
		t.Error("expected source header for second chunk")
	}
	if !strings.Contains(result, "ChunkID: a") {
		t.Error("expected ChunkID in context")
	}
	if !strings.Contains(result, "Relevance: 0.900 (Low relevance)") {
		t.Error("expected relevance line in context")
	}
	if !strings.Contains(result, "---") {
		t.Error("expected separator between chunks")
	}
}

func TestFormatContext_Empty(t *testing.T) {
	if result := FormatContext(nil); result != "" {
		t.Errorf("expected empty string, got %q", result)
	}
}
