package service

import (
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"
)

const (
	queryKeywordLimit = 15
	chunkKeywordLimit = 30
	minKeywordRunes   = 4
)

var (
	nonWordPattern    = regexp.MustCompile(`[^\p{L}\p{N}_\s]`)
	sentenceEndRegexp = regexp.MustCompile(`[.!?]+\s+`)
)

var stopWords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "and": {}, "or": {}, "but": {}, "in": {}, "on": {}, "at": {}, "to": {}, "for": {},
	"of": {}, "with": {}, "by": {}, "from": {}, "as": {}, "is": {}, "was": {}, "are": {}, "were": {}, "been": {},
	"be": {}, "have": {}, "has": {}, "had": {}, "do": {}, "does": {}, "did": {}, "will": {}, "would": {},
	"should": {}, "could": {}, "may": {}, "might": {}, "must": {}, "can": {}, "this": {}, "that": {},
	"these": {}, "those": {}, "i": {}, "you": {}, "he": {}, "she": {}, "it": {}, "we": {}, "they": {},
}

// ExtractKeywords returns up to topN salient words of text, most frequent
// first. Words are case-folded, punctuation is stripped, stop words and words
// shorter than four characters are dropped. Ties keep first-occurrence order.
func ExtractKeywords(text string, topN int) []string {
	if topN <= 0 {
		return nil
	}
	cleaned := nonWordPattern.ReplaceAllString(strings.ToLower(text), " ")

	freq := make(map[string]int)
	var order []string
	for _, w := range strings.Fields(cleaned) {
		if utf8.RuneCountInString(w) < minKeywordRunes {
			continue
		}
		if _, stop := stopWords[w]; stop {
			continue
		}
		if freq[w] == 0 {
			order = append(order, w)
		}
		freq[w]++
	}

	sort.SliceStable(order, func(i, j int) bool {
		return freq[order[i]] > freq[order[j]]
	})
	if len(order) > topN {
		order = order[:topN]
	}
	return order
}

// SplitSentences splits text after runs of sentence-ending punctuation
// followed by whitespace. The punctuation stays with its sentence.
func SplitSentences(text string) []string {
	var out []string
	start := 0
	for _, loc := range sentenceEndRegexp.FindAllStringIndex(text, -1) {
		end := loc[0] + len(strings.TrimRight(text[loc[0]:loc[1]], " \t\r\n\f\v"))
		if s := strings.TrimSpace(text[start:end]); s != "" {
			out = append(out, s)
		}
		start = loc[1]
	}
	if s := strings.TrimSpace(text[start:]); s != "" {
		out = append(out, s)
	}
	return out
}
