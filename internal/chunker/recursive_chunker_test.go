package chunker

import (
	"strings"
	"testing"
	"unicode/utf8"

	"studyrag/internal/domain"
)

// words returns n runes of space separated prose.
func words(n int) string {
	vocab := []string{"chlorophyll", "light", "energy", "glucose", "leaf", "stomata", "carbon", "water"}
	var b strings.Builder
	for i := 0; b.Len() < n; i++ {
		b.WriteString(vocab[i%len(vocab)])
		b.WriteByte(' ')
	}
	return b.String()[:n]
}

func chunkEnd(c domain.Chunk) int { return c.Offset + utf8.RuneCountInString(c.Text) }

func TestSplitEmptyInput(t *testing.T) {
	c := NewRecursiveChunker(1000, 200, nil)
	if got := c.Split(nil); len(got) != 0 {
		t.Fatalf("expected no chunks, got %d", len(got))
	}
	got := c.Split([]domain.TextBlock{{Text: "  \n\n ", Page: 1, SourceID: "a.pdf"}})
	if len(got) != 0 {
		t.Fatalf("expected whitespace block to yield no chunks, got %d", len(got))
	}
}

func TestSplitShortBlockIsSingleChunk(t *testing.T) {
	c := NewRecursiveChunker(1000, 200, nil)
	text := "Photosynthesis converts light energy into chemical energy."
	got := c.Split([]domain.TextBlock{{Text: text, Page: 7, SourceID: "bio.pdf"}})
	if len(got) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(got))
	}
	want := domain.Chunk{Index: 0, Text: text, Page: 7, SourceID: "bio.pdf", Offset: 0}
	if got[0] != want {
		t.Errorf("got %+v, want %+v", got[0], want)
	}
}

func TestSplitThreePageScenario(t *testing.T) {
	blocks := []domain.TextBlock{
		{Text: words(1200), Page: 1, SourceID: "notes.pdf"},
		{Text: words(800), Page: 2, SourceID: "notes.pdf"},
		{Text: words(500), Page: 3, SourceID: "notes.pdf"},
	}
	c := NewRecursiveChunker(1000, 200, nil)
	chunks := c.Split(blocks)
	if len(chunks) < 3 {
		t.Fatalf("expected at least 3 chunks, got %d", len(chunks))
	}
	for i, ch := range chunks {
		if ch.Index != i {
			t.Errorf("chunk %d has index %d", i, ch.Index)
		}
		if n := utf8.RuneCountInString(ch.Text); n > 1000 {
			t.Errorf("chunk %d has %d runes", i, n)
		}
	}
	for i := 1; i < len(chunks); i++ {
		prev, cur := chunks[i-1], chunks[i]
		if prev.Page != cur.Page {
			if cur.Offset != 0 {
				t.Errorf("first chunk of page %d starts at %d", cur.Page, cur.Offset)
			}
			continue
		}
		overlap := chunkEnd(prev) - cur.Offset
		if overlap < 150 || overlap > 200 {
			t.Errorf("chunks %d/%d on page %d overlap by %d runes", i-1, i, cur.Page, overlap)
		}
	}
}

func TestSplitPrefersParagraphBoundaries(t *testing.T) {
	p1 := words(400)
	p2 := words(400)
	c := NewRecursiveChunker(500, 100, nil)
	chunks := c.Split([]domain.TextBlock{{Text: p1 + "\n\n" + p2, Page: 1, SourceID: "s"}})
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	if chunks[0].Text != p1+"\n\n" {
		t.Errorf("first chunk should end at the paragraph break")
	}
	if chunks[1].Text != p2 {
		t.Errorf("second chunk should be the second paragraph")
	}
}

func TestSplitFallsBackToCharacters(t *testing.T) {
	text := strings.Repeat("a", 2500)
	c := NewRecursiveChunker(1000, 200, nil)
	chunks := c.Split([]domain.TextBlock{{Text: text, Page: 1, SourceID: "s"}})
	wantOffsets := []int{0, 800, 1600}
	if len(chunks) != len(wantOffsets) {
		t.Fatalf("expected %d chunks, got %d", len(wantOffsets), len(chunks))
	}
	for i, off := range wantOffsets {
		if chunks[i].Offset != off {
			t.Errorf("chunk %d offset %d, want %d", i, chunks[i].Offset, off)
		}
	}
}

func TestSplitIndivisibleUnitMayExceedSize(t *testing.T) {
	text := strings.Repeat("b", 30)
	c := NewRecursiveChunker(10, 2, []string{"\n\n", " "})
	chunks := c.Split([]domain.TextBlock{{Text: text, Page: 1, SourceID: "s"}})
	if len(chunks) != 1 || chunks[0].Text != text {
		t.Fatalf("expected the unit as one oversized chunk, got %+v", chunks)
	}
}

func TestSplitCoverage(t *testing.T) {
	docs := []string{
		words(3100),
		words(700) + "\n\n" + words(300) + "\n" + words(900) + "\n\n\n\n" + words(50),
		"Überschrift\n\n" + strings.Repeat("ünïcödé ", 300),
		strings.Repeat("x", 1234) + " tail",
	}
	for _, size := range []int{100, 333, 1000} {
		c := NewRecursiveChunker(size, size/5, nil)
		for d, text := range docs {
			chunks := c.Split([]domain.TextBlock{{Text: text, Page: 1, SourceID: "doc"}})
			var rebuilt strings.Builder
			end := 0
			for _, ch := range chunks {
				runes := []rune(ch.Text)
				if len(runes) > size {
					t.Errorf("size %d doc %d: chunk of %d runes", size, d, len(runes))
				}
				if ch.Offset > end {
					t.Fatalf("size %d doc %d: gap between %d and %d", size, d, end, ch.Offset)
				}
				skip := end - ch.Offset
				if skip < len(runes) {
					rebuilt.WriteString(string(runes[skip:]))
				}
				end = max(end, chunkEnd(ch))
			}
			if rebuilt.String() != text {
				t.Errorf("size %d doc %d: reconstruction differs from source", size, d)
			}
		}
	}
}

func TestNewRecursiveChunkerDefaults(t *testing.T) {
	c := NewRecursiveChunker(0, -5, nil)
	if c.chunkSize != 1000 || c.overlap != 0 || len(c.separators) != 4 {
		t.Errorf("unexpected defaults: %+v", c)
	}
	c = NewRecursiveChunker(100, 100, nil)
	if c.overlap != 20 {
		t.Errorf("overlap >= size should be reduced, got %d", c.overlap)
	}
}
