// Package service implements the retrieval engine: ingesting documents into a
// named collection, restoring collections, and answering queries from the
// current one.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"studyrag/internal/answer"
	"studyrag/internal/domain"
	"studyrag/internal/events"
	"studyrag/internal/vectorstore"
)

var ErrNoGenerator = errors.New("no answer generator configured")

const DefaultTopK = 4

// Options tunes the engine. Zero values fall back to defaults.
type Options struct {
	TopK int
}

func DefaultOptions() Options {
	return Options{TopK: DefaultTopK}
}

// Answer is a generated reply with the passages it was grounded on.
type Answer struct {
	Question string
	Text     string
	Sources  []domain.RetrievalResult
}

// Engine is one retrieval session. It owns a single current vector store; an
// application may run several engines against different collections.
type Engine struct {
	chunker   domain.Chunker
	embedder  domain.Embedder
	store     *vectorstore.Store
	publisher events.Publisher
	generator domain.Generator
	prompts   *answer.PromptBuilder
	opts      Options
	logger    *slog.Logger
	tracer    trace.Tracer
}

// Option configures optional collaborators.
type Option func(*Engine)

func WithPublisher(p events.Publisher) Option {
	return func(e *Engine) { e.publisher = p }
}

func WithGenerator(g domain.Generator) Option {
	return func(e *Engine) { e.generator = g }
}

func WithPrompts(b *answer.PromptBuilder) Option {
	return func(e *Engine) { e.prompts = b }
}

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

func New(ch domain.Chunker, emb domain.Embedder, store *vectorstore.Store, opts Options, options ...Option) *Engine {
	if opts.TopK <= 0 {
		opts.TopK = DefaultTopK
	}
	e := &Engine{
		chunker:   ch,
		embedder:  emb,
		store:     store,
		publisher: events.Nop{},
		opts:      opts,
		logger:    slog.Default(),
		tracer:    otel.Tracer("studyrag/service"),
	}
	for _, o := range options {
		o(e)
	}
	if e.prompts == nil {
		e.prompts = answer.DefaultPromptBuilder()
	}
	return e
}

// Ingest chunks and embeds blocks, builds a fresh index and saves it under
// name, replacing any previous content. Blocks that yield no chunks leave the
// current store untouched.
func (e *Engine) Ingest(ctx context.Context, blocks []domain.TextBlock, name string) (domain.IndexStats, error) {
	ctx, span := e.tracer.Start(ctx, "engine.ingest", trace.WithAttributes(attribute.String("collection", name)))
	defer span.End()

	if err := domain.ValidateCollectionName(name); err != nil {
		return domain.IndexStats{}, fail(span, err)
	}
	start := time.Now()

	chunks := e.chunker.Split(blocks)
	if len(chunks) == 0 {
		e.logger.Warn("ingest produced no chunks", "collection", name, "blocks", len(blocks))
		return domain.IndexStats{Collection: name}, nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors := e.embedder.EmbedBatch(ctx, texts, domain.IntentDocument)

	items := make([]domain.IndexedChunk, len(chunks))
	for i := range chunks {
		items[i] = domain.IndexedChunk{Chunk: chunks[i], Vector: vectors[i]}
	}
	if err := e.store.Replace(ctx, name, items); err != nil {
		return domain.IndexStats{}, fail(span, fmt.Errorf("index collection: %w", err))
	}

	stats := domain.IndexStats{Collection: name, ChunkCount: len(chunks), Dimension: e.embedder.Dimension()}
	span.SetAttributes(attribute.Int("chunks", stats.ChunkCount), attribute.Int("dimension", stats.Dimension))
	e.logger.Info("collection indexed",
		"collection", name,
		"blocks", len(blocks),
		"chunks", stats.ChunkCount,
		"embedder", e.embedder.Name(),
		"elapsed", time.Since(start),
	)
	e.publish(ctx, events.TypeIndexed, stats)
	return stats, nil
}

// LoadCollection makes a previously saved collection current.
func (e *Engine) LoadCollection(ctx context.Context, name string) error {
	ctx, span := e.tracer.Start(ctx, "engine.load", trace.WithAttributes(attribute.String("collection", name)))
	defer span.End()

	if err := e.store.Load(ctx, name); err != nil {
		return fail(span, err)
	}
	info := e.store.Info()
	e.publish(ctx, events.TypeLoaded, domain.IndexStats{Collection: name, ChunkCount: info.Chunks, Dimension: info.Dimension})
	return nil
}

// Retrieve returns the k chunks nearest to query. k == 0 selects the
// configured default.
func (e *Engine) Retrieve(ctx context.Context, query string, k int) ([]domain.RetrievalResult, error) {
	ctx, span := e.tracer.Start(ctx, "engine.retrieve")
	defer span.End()

	if k == 0 {
		k = e.opts.TopK
	}
	span.SetAttributes(attribute.Int("k", k))
	if e.store.Info().State == vectorstore.StateEmpty {
		return nil, fail(span, domain.ErrNoStoreLoaded)
	}
	vec := e.embedder.Embed(ctx, query, domain.IntentQuery)
	results, err := e.store.Search(vec, k)
	if err != nil {
		return nil, fail(span, err)
	}
	e.logger.Debug("retrieved", "query_len", len(query), "k", k, "hits", len(results))
	return results, nil
}

// AssembleContext renders results, in order, as citation-tagged blocks.
func AssembleContext(results []domain.RetrievalResult) string {
	parts := make([]string, len(results))
	for i, r := range results {
		parts[i] = fmt.Sprintf("[Source %d - Page %d]\n%s\n", r.Rank, r.Page, r.Text)
	}
	return strings.Join(parts, "\n")
}

// Ask retrieves context for question and asks the generator to answer it.
func (e *Engine) Ask(ctx context.Context, question string, k int) (*Answer, error) {
	ctx, span := e.tracer.Start(ctx, "engine.ask")
	defer span.End()

	if e.generator == nil {
		return nil, fail(span, ErrNoGenerator)
	}
	results, err := e.Retrieve(ctx, question, k)
	if err != nil {
		return nil, fail(span, err)
	}
	prompt, err := e.prompts.Build(question, AssembleContext(results))
	if err != nil {
		return nil, fail(span, err)
	}
	text, err := e.generator.Generate(ctx, prompt)
	if err != nil {
		return nil, fail(span, err)
	}
	e.logger.Info("question answered", "sources", len(results), "answer_len", len(text))
	return &Answer{Question: question, Text: text, Sources: results}, nil
}

// Status describes the current collection.
type Status struct {
	Collection string
	State      vectorstore.State
	Chunks     int
	Dimension  int
	Metric     vectorstore.Metric
	Embedder   string
}

// Status reads one consistent view of the store, so the collection name
// always matches the index that is current.
func (e *Engine) Status() Status {
	info := e.store.Info()
	return Status{
		Collection: info.Collection,
		State:      info.State,
		Chunks:     info.Chunks,
		Dimension:  info.Dimension,
		Metric:     info.Metric,
		Embedder:   e.embedder.Name(),
	}
}

// publish never fails the calling operation.
func (e *Engine) publish(ctx context.Context, typ string, stats domain.IndexStats) {
	ev := events.Event{
		Type:       typ,
		Collection: stats.Collection,
		Chunks:     stats.ChunkCount,
		Dimension:  stats.Dimension,
		Embedder:   e.embedder.Name(),
		At:         time.Now().UTC(),
	}
	if err := e.publisher.Publish(ctx, ev); err != nil {
		e.logger.Warn("event publish failed", "type", typ, "collection", stats.Collection, "error", err)
	}
}

func fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
