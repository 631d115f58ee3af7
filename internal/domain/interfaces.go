package domain

import "context"

// TextBlock is one page (or equivalent logical unit) of extracted document text.
type TextBlock struct {
	Text     string
	Page     int
	SourceID string
}

// Chunk is a bounded-length segment of a TextBlock used for indexing.
// Index is the chunk's position in the sequence produced by a single split.
type Chunk struct {
	Index    int
	Text     string
	Page     int
	SourceID string
	Offset   int // rune offset inside the originating block
}

// IndexedChunk pairs a chunk with its embedding vector.
type IndexedChunk struct {
	Chunk  Chunk
	Vector []float32
}

// RetrievalResult is a read-only projection of a search hit.
type RetrievalResult struct {
	Text     string
	SourceID string
	Page     int
	Rank     int
	Score    float64
}

// IndexStats summarizes an ingest run.
type IndexStats struct {
	Collection string
	ChunkCount int
	Dimension  int
}

// Chunker splits page-tagged text blocks into chunks suitable for retrieval indexing.
type Chunker interface {
	Split(blocks []TextBlock) []Chunk
}

// Intent tells an embedding backend whether the text is indexed content or a search query.
type Intent int

const (
	IntentDocument Intent = iota
	IntentQuery
)

func (i Intent) String() string {
	if i == IntentQuery {
		return "query"
	}
	return "document"
}

// Embedder converts free text into a numeric vector representation.
// Implementations never fail: a backend error degrades to a deterministic vector.
type Embedder interface {
	Name() string
	Dimension() int
	Embed(ctx context.Context, text string, intent Intent) []float32
	EmbedBatch(ctx context.Context, texts []string, intent Intent) [][]float32
}

// Generator is an opaque text-completion function used to answer questions.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}
