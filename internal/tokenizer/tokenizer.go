// Package tokenizer converts text to a count of model tokens.
package tokenizer

import (
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

// DefaultEncoding is used when the configured model has no known encoding.
const DefaultEncoding = "cl100k_base"

// EstimatorModel selects the heuristic Estimator without loading BPE ranks.
const EstimatorModel = "estimate"

// Counter counts tokens in a string. Counts are not additive:
// Count(a+b) may differ from Count(a)+Count(b).
type Counter interface {
	Count(text string) int
}

// BPE counts tokens with a tiktoken byte-pair encoding.
type BPE struct {
	enc  *tiktoken.Tiktoken
	name string
}

// New returns a BPE counter for model. Unknown models fall back to
// DefaultEncoding. If no BPE ranks can be loaded at all (e.g. offline with no
// local cache), the heuristic Estimator is returned instead of failing.
func New(model string) Counter {
	if model == EstimatorModel {
		return Estimator{}
	}

	enc, err := tiktoken.EncodingForModel(model)
	if err == nil {
		return &BPE{enc: enc, name: model}
	}
	slog.Debug("tokenizer: unknown model, using default encoding", "model", model, "encoding", DefaultEncoding)

	enc, err = tiktoken.GetEncoding(DefaultEncoding)
	if err == nil {
		return &BPE{enc: enc, name: DefaultEncoding}
	}
	slog.Warn("tokenizer: BPE ranks unavailable, using estimator", "error", err)
	return Estimator{}
}

// Count returns the number of BPE tokens in text.
func (b *BPE) Count(text string) int {
	if text == "" {
		return 0
	}
	return len(b.enc.Encode(text, nil, nil))
}

// Name returns the model or encoding name backing the counter.
func (b *BPE) Name() string {
	return b.name
}

// Estimator approximates token counts at four characters per token.
type Estimator struct{}

// Count returns ceil(runes/4) for non-blank text and 0 otherwise.
func (Estimator) Count(text string) int {
	if strings.TrimSpace(text) == "" {
		return 0
	}
	n := utf8.RuneCountInString(text)
	return (n + 3) / 4
}
