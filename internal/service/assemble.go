package service

import (
	"fmt"
	"maps"
	"math"
	"sort"
	"strings"

	"github.com/jharjadi/tokenwise/internal/model"
)

// Reorder arranges selected chunks for output. With preserveOrder the chunks
// are sorted by position alone. Otherwise chunks are grouped by source, each
// group is sorted by position, and groups are ordered by their best relevance
// score. The input slice is not modified.
func Reorder(selected []model.ScoredChunk, preserveOrder bool) []model.ScoredChunk {
	out := make([]model.ScoredChunk, len(selected))
	copy(out, selected)

	byPosition := func(s []model.ScoredChunk) {
		sort.SliceStable(s, func(i, j int) bool {
			return s[i].Chunk.Position < s[j].Chunk.Position
		})
	}

	if preserveOrder {
		byPosition(out)
		return out
	}

	type group struct {
		chunks []model.ScoredChunk
		best   float64
	}
	var groups []*group
	index := make(map[string]*group)
	for _, sc := range out {
		g, ok := index[sc.Chunk.Source]
		if !ok {
			g = &group{best: math.Inf(-1)}
			index[sc.Chunk.Source] = g
			groups = append(groups, g)
		}
		g.chunks = append(g.chunks, sc)
		g.best = max(g.best, sc.RelevanceScore)
	}

	sort.SliceStable(groups, func(i, j int) bool {
		return groups[i].best > groups[j].best
	})

	out = out[:0]
	for _, g := range groups {
		byPosition(g.chunks)
		out = append(out, g.chunks...)
	}
	return out
}

// ToOptimizedChunks converts assembled chunks to the response shape. Scores
// are rounded to three decimals. Metadata is emptied unless includeMetadata.
func ToOptimizedChunks(chunks []model.ScoredChunk, includeMetadata bool) []model.OptimizedChunk {
	out := make([]model.OptimizedChunk, 0, len(chunks))
	for _, sc := range chunks {
		meta := map[string]any{}
		if includeMetadata && sc.Chunk.Metadata != nil {
			meta = maps.Clone(sc.Chunk.Metadata)
		}
		out = append(out, model.OptimizedChunk{
			ID:             sc.Chunk.ID,
			Text:           sc.Chunk.Text,
			RelevanceScore: roundTo(sc.RelevanceScore, 3),
			Reason:         sc.Reason,
			Source:         sc.Chunk.Source,
			Position:       sc.Chunk.Position,
			Metadata:       meta,
		})
	}
	return out
}

// FormatContext renders assembled chunks as a plain-text context block:
//
//	Source: <source> (chunk <position+1>/<total>)
//	ChunkID: <id>
//	Relevance: <score> (<reason>)
//	Text: <chunk text>
func FormatContext(chunks []model.ScoredChunk) string {
	var sb strings.Builder
	for i, sc := range chunks {
		if i > 0 {
			sb.WriteString("\n---\n")
		}
		c := sc.Chunk
		sb.WriteString(fmt.Sprintf("Source: %s (chunk %d/%d)\n", c.Source, c.Position+1, c.TotalChunks))
		sb.WriteString(fmt.Sprintf("ChunkID: %s\n", c.ID))
		sb.WriteString(fmt.Sprintf("Relevance: %.3f (%s)\n", sc.RelevanceScore, sc.Reason))
		sb.WriteString(fmt.Sprintf("Text: %s\n", c.Text))
	}
	return sb.String()
}

func roundTo(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
