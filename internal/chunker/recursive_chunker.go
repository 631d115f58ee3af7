package chunker

import (
	"strings"

	"studyrag/internal/domain"
)

// DefaultSeparators are tried in order: paragraph, line, word, character.
var DefaultSeparators = []string{"\n\n", "\n", " ", ""}

// RecursiveChunker splits text at the coarsest boundary that keeps chunks
// within the size limit, then merges the pieces back into overlapping windows.
// Lengths are measured in runes.
type RecursiveChunker struct {
	chunkSize  int
	overlap    int
	separators []string
}

func NewRecursiveChunker(chunkSize, overlap int, separators []string) *RecursiveChunker {
	if chunkSize <= 0 {
		chunkSize = 1000
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= chunkSize {
		overlap = chunkSize / 5
	}
	if len(separators) == 0 {
		separators = DefaultSeparators
	}
	return &RecursiveChunker{
		chunkSize:  chunkSize,
		overlap:    overlap,
		separators: separators,
	}
}

// Split chunks every block independently; page and source are inherited.
// Whitespace-only blocks yield nothing.
func (c *RecursiveChunker) Split(blocks []domain.TextBlock) []domain.Chunk {
	var chunks []domain.Chunk
	for _, b := range blocks {
		if strings.TrimSpace(b.Text) == "" {
			continue
		}
		runes := []rune(b.Text)
		for _, w := range c.windows(runes) {
			chunks = append(chunks, domain.Chunk{
				Index:    len(chunks),
				Text:     string(runes[w.start:w.end]),
				Page:     b.Page,
				SourceID: b.SourceID,
				Offset:   w.start,
			})
		}
	}
	return chunks
}

type span struct{ start, end int }

func (s span) len() int { return s.end - s.start }

// windows merges pieces greedily. When the next piece does not fit, the
// current window is emitted and pieces are dropped from its front until the
// remainder fits the overlap budget.
func (c *RecursiveChunker) windows(runes []rune) []span {
	pieces := c.pieces(runes, span{0, len(runes)}, c.separators)

	var out []span
	var window []span
	total := 0
	for _, p := range pieces {
		if len(window) > 0 && total+p.len() > c.chunkSize {
			out = append(out, span{window[0].start, window[len(window)-1].end})
			for len(window) > 0 && (total > c.overlap || total+p.len() > c.chunkSize) {
				total -= window[0].len()
				window = window[1:]
			}
		}
		window = append(window, p)
		total += p.len()
	}
	if len(window) > 0 {
		out = append(out, span{window[0].start, window[len(window)-1].end})
	}
	return out
}

// pieces splits sp into contiguous spans, recursing to finer separators only
// for parts that are still too long. The empty separator splits by character.
func (c *RecursiveChunker) pieces(runes []rune, sp span, seps []string) []span {
	if sp.len() <= c.chunkSize {
		return []span{sp}
	}
	for i, sep := range seps {
		if sep == "" {
			return runeSpans(sp)
		}
		parts := splitAfter(runes, sp, []rune(sep))
		if len(parts) < 2 {
			continue
		}
		var out []span
		for _, p := range parts {
			if p.len() > c.chunkSize {
				out = append(out, c.pieces(runes, p, seps[i+1:])...)
				continue
			}
			out = append(out, p)
		}
		return out
	}
	// no separator applies: an indivisible unit longer than chunkSize
	return []span{sp}
}

// splitAfter cuts sp after every occurrence of sep, keeping the separator
// attached to the preceding part so parts stay contiguous.
func splitAfter(runes []rune, sp span, sep []rune) []span {
	var parts []span
	start := sp.start
	for i := sp.start; i+len(sep) <= sp.end; {
		if hasPrefixAt(runes, i, sep) {
			i += len(sep)
			parts = append(parts, span{start, i})
			start = i
			continue
		}
		i++
	}
	if start < sp.end {
		parts = append(parts, span{start, sp.end})
	}
	return parts
}

func hasPrefixAt(runes []rune, i int, sep []rune) bool {
	for j, r := range sep {
		if runes[i+j] != r {
			return false
		}
	}
	return true
}

func runeSpans(sp span) []span {
	out := make([]span, 0, sp.len())
	for s := sp.start; s < sp.end; s++ {
		out = append(out, span{s, s + 1})
	}
	return out
}
