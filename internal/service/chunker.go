package service

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"maps"
	"regexp"
	"strings"

	"github.com/jharjadi/tokenwise/internal/model"
	"github.com/jharjadi/tokenwise/internal/tokenizer"
)

const (
	// wordsPerToken converts unit budgets to whitespace words for the sliding
	// window. The counter works on sub-word tokens, so a word is ~1.33 tokens.
	wordsPerToken = 0.75

	// oversizeFactor bounds a single semantic unit before it is re-split with
	// the fixed-size algorithm.
	oversizeFactor = 1.5

	chunkIDPrefixRunes = 100
	minCodeBlockLen    = 20
)

// codeBoundaryPattern matches the start of a top-level function, class or
// type declaration in common languages.
var codeBoundaryPattern = regexp.MustCompile(
	`(?m)^(?:def\s+\w+.*?:|class\s+\w+.*?:|function\s+\w+.*?\{|const\s+\w+\s*=.*?=>|export\s+(?:default\s+)?(?:function|class)|func\s+|type\s+\w+\s+(?:struct|interface))`,
)

// piece is a chunk body before ids and positions are assigned.
type piece struct {
	text   string
	tokens int
}

// Chunker splits content items into ordered chunks.
type Chunker struct {
	counter tokenizer.Counter
}

// NewChunker creates a Chunker that measures text with counter.
func NewChunker(counter tokenizer.Counter) *Chunker {
	return &Chunker{counter: counter}
}

// Chunk splits item according to opts. Empty text yields no chunks.
func (c *Chunker) Chunk(item model.ContentItem, opts model.ChunkingOptions) ([]model.Chunk, error) {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = model.DefaultChunkingOptions().ChunkSize
	}
	if opts.Overlap < 0 {
		opts.Overlap = 0
	}
	itemType := item.Type.Normalize()

	var pieces []piece
	switch opts.Strategy {
	case model.ChunkFixed:
		pieces = c.fixed(item.Text, opts.ChunkSize)
	case model.ChunkSemantic:
		pieces = c.semantic(item.Text, itemType, opts)
	case model.ChunkSliding:
		pieces = c.sliding(item.Text, opts.ChunkSize, opts.Overlap)
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidStrategy, opts.Strategy)
	}

	return buildChunks(item, itemType, pieces), nil
}

// fixed greedily packs whitespace-delimited words until the next word would
// overflow size. The last partial accumulator is always emitted.
func (c *Chunker) fixed(text string, size int) []piece {
	var (
		out     []piece
		words   []string
		current int
	)
	for _, w := range strings.Fields(text) {
		wt := c.counter.Count(w)
		if current+wt > size && len(words) > 0 {
			out = append(out, piece{text: strings.Join(words, " "), tokens: current})
			words = words[:0]
			current = 0
		}
		words = append(words, w)
		current += wt
	}
	if len(words) > 0 {
		out = append(out, piece{text: strings.Join(words, " "), tokens: current})
	}
	return out
}

// semantic packs logical units (code blocks, paragraphs, sentences) into
// chunks of at most size units. Units larger than 1.5×size are re-split with
// fixed and spliced in place.
func (c *Chunker) semantic(text string, itemType model.ContentType, opts model.ChunkingOptions) []piece {
	var segments []string
	if itemType == model.ContentCode && opts.KeepCodeBlocks() {
		segments = splitCode(text)
	} else {
		segments = c.splitText(text, opts.ChunkSize)
	}

	var (
		out     []piece
		group   []string
		current int
	)
	flush := func() {
		if len(group) == 0 {
			return
		}
		out = append(out, piece{text: strings.Join(group, "\n\n"), tokens: current})
		group = nil
		current = 0
	}

	limit := float64(opts.ChunkSize) * oversizeFactor
	for _, seg := range segments {
		st := c.counter.Count(seg)

		if float64(st) > limit {
			flush()
			out = append(out, c.fixed(seg, opts.ChunkSize)...)
			continue
		}

		if current+st <= opts.ChunkSize {
			group = append(group, seg)
			current += st
			continue
		}

		flush()
		group = []string{seg}
		current = st
	}
	flush()
	return out
}

// sliding emits overlapping word windows. Each window starts
// wordsPerChunk-overlapWords words after the previous one.
func (c *Chunker) sliding(text string, size, overlap int) []piece {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	perChunk := int(float64(size) * wordsPerToken)
	if perChunk < 1 {
		perChunk = 1
	}
	step := perChunk - int(float64(overlap)*wordsPerToken)
	if step < 1 {
		step = perChunk
	}

	var out []piece
	for i := 0; i < len(words); i += step {
		end := min(i+perChunk, len(words))
		body := strings.Join(words[i:end], " ")
		out = append(out, piece{text: body, tokens: c.counter.Count(body)})
		if end >= len(words) {
			break
		}
	}
	return out
}

// splitText splits prose on blank lines and breaks paragraphs longer than
// size into sentences.
func (c *Chunker) splitText(text string, size int) []string {
	var segments []string
	for _, para := range splitBlankLines(text) {
		if c.counter.Count(para) > size {
			segments = append(segments, SplitSentences(para)...)
			continue
		}
		segments = append(segments, para)
	}
	return segments
}

// splitCode cuts source at declaration boundaries and re-joins the pieces
// until braces and parentheses balance. Without any boundary it falls back to
// blank-line separation.
func splitCode(code string) []string {
	locs := codeBoundaryPattern.FindAllStringIndex(code, -1)
	if len(locs) == 0 {
		return splitBlankLines(code)
	}

	parts := make([]string, 0, len(locs)+1)
	prev := 0
	for _, loc := range locs {
		parts = append(parts, code[prev:loc[0]])
		prev = loc[0]
	}
	parts = append(parts, code[prev:])

	var (
		segments []string
		current  strings.Builder
	)
	for _, p := range parts {
		if strings.TrimSpace(p) == "" {
			continue
		}
		current.WriteString(p)
		if block := current.String(); isCompleteCodeBlock(block) {
			segments = append(segments, strings.TrimSpace(block))
			current.Reset()
		}
	}
	if rest := strings.TrimSpace(current.String()); rest != "" {
		segments = append(segments, rest)
	}
	return segments
}

func isCompleteCodeBlock(code string) bool {
	return strings.Count(code, "{") == strings.Count(code, "}") &&
		strings.Count(code, "(") == strings.Count(code, ")") &&
		len(strings.TrimSpace(code)) > minCodeBlockLen
}

func splitBlankLines(text string) []string {
	var out []string
	for _, p := range strings.Split(text, "\n\n") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// buildChunks assigns positions and ids and back-fills TotalChunks.
func buildChunks(item model.ContentItem, itemType model.ContentType, pieces []piece) []model.Chunk {
	if len(pieces) == 0 {
		return nil
	}

	chunks := make([]model.Chunk, 0, len(pieces))
	for pos, p := range pieces {
		chunks = append(chunks, model.Chunk{
			ID:            ChunkID(item.ID, pos, p.text),
			Text:          p.text,
			Type:          itemType,
			Source:        item.ID,
			Position:      pos,
			TokenCount:    p.tokens,
			Timestamp:     item.Timestamp,
			Metadata:      maps.Clone(item.Metadata),
			Relationships: append([]string(nil), item.Relationships...),
		})
	}
	for i := range chunks {
		chunks[i].TotalChunks = len(chunks)
	}
	return chunks
}

// ChunkID derives a stable 16-hex-character id from the source, the position
// and the first 100 characters of the chunk text.
func ChunkID(source string, position int, text string) string {
	prefix := text
	if r := []rune(text); len(r) > chunkIDPrefixRunes {
		prefix = string(r[:chunkIDPrefixRunes])
	}
	sum := md5.Sum([]byte(fmt.Sprintf("%s_%d_%s", source, position, prefix)))
	return hex.EncodeToString(sum[:])[:16]
}
