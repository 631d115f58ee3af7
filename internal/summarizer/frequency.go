// Package summarizer builds a short extractive overview of ingested pages.
package summarizer

import (
	"fmt"
	"math"
	"regexp"
	"slices"
	"strings"

	"studyrag/internal/domain"
)

var (
	tokenPattern    = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*`)
	sentencePattern = regexp.MustCompile(`[^.!?]+[.!?]+`)
)

// Sentence is one selected sentence with the page it came from.
type Sentence struct {
	Text     string
	Page     int
	SourceID string
}

// Summary lists the selected sentences in document order.
type Summary []Sentence

func (s Summary) String() string {
	parts := make([]string, len(s))
	for i, sent := range s {
		parts[i] = fmt.Sprintf("%s (p. %d)", sent.Text, sent.Page)
	}
	return strings.Join(parts, " ")
}

// Frequency ranks sentences by the normalised frequency of their non-stopword
// tokens, dampened by sentence length.
type Frequency struct {
	stopwords map[string]struct{}
}

func NewFrequency() *Frequency {
	return &Frequency{stopwords: defaultStopwords()}
}

func (f *Frequency) Summarize(blocks []domain.TextBlock, maxSentences int) Summary {
	if maxSentences <= 0 {
		maxSentences = 3
	}
	var sentences []Sentence
	for _, b := range blocks {
		for _, s := range sentencePattern.FindAllString(b.Text, -1) {
			s = strings.Join(strings.Fields(s), " ")
			if s != "" {
				sentences = append(sentences, Sentence{Text: s, Page: b.Page, SourceID: b.SourceID})
			}
		}
	}
	if len(sentences) == 0 {
		return nil
	}

	freq := map[string]float64{}
	maxF := 0.0
	for _, s := range sentences {
		for _, tok := range f.tokens(s.Text) {
			freq[tok]++
			maxF = max(maxF, freq[tok])
		}
	}

	type scored struct {
		idx   int
		score float64
	}
	scores := make([]scored, len(sentences))
	for i, s := range sentences {
		toks := f.tokens(s.Text)
		total := 0.0
		for _, tok := range toks {
			total += freq[tok] / maxF
		}
		if len(toks) > 0 {
			total /= math.Sqrt(float64(len(toks)))
		}
		scores[i] = scored{i, total}
	}
	slices.SortStableFunc(scores, func(a, b scored) int {
		switch {
		case a.score > b.score:
			return -1
		case a.score < b.score:
			return 1
		}
		return 0
	})

	n := min(maxSentences, len(scores))
	picked := make([]int, n)
	for i := range picked {
		picked[i] = scores[i].idx
	}
	slices.Sort(picked)
	out := make(Summary, n)
	for i, idx := range picked {
		out[i] = sentences[idx]
	}
	return out
}

// tokens returns the lower-cased non-stopword tokens of s.
func (f *Frequency) tokens(s string) []string {
	all := tokenPattern.FindAllString(strings.ToLower(s), -1)
	out := all[:0]
	for _, t := range all {
		if _, stop := f.stopwords[t]; !stop {
			out = append(out, t)
		}
	}
	return out
}

func defaultStopwords() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "for", "to", "of", "in", "on", "at", "by", "with", "as", "is", "are", "was", "were", "be", "been", "being", "it", "its", "this", "that", "these", "those", "from", "up", "down", "over", "under", "again", "further", "than", "so", "such", "into", "about", "between", "through", "during", "before", "after", "above", "below", "out", "off", "own", "same", "too", "very", "can", "will", "just", "should", "now", "also", "which", "who", "what", "when", "where", "how",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
