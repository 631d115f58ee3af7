package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"

	"studyrag/internal/answer"
	"studyrag/internal/chunker"
	"studyrag/internal/config"
	"studyrag/internal/domain"
	"studyrag/internal/embedding"
	"studyrag/internal/embedding/ollama"
	"studyrag/internal/embedding/openai"
	"studyrag/internal/events"
	"studyrag/internal/loader"
	"studyrag/internal/resilience"
	"studyrag/internal/service"
	"studyrag/internal/summarizer"
	"studyrag/internal/tui"
	"studyrag/internal/vectorstore"
	"studyrag/internal/vectorstore/chromemstore"
	"studyrag/internal/vectorstore/fsstore"
	"studyrag/internal/vectorstore/qdrantstore"
)

func main() {
	_ = godotenv.Load()

	var cfgPath, collection, query string
	var ask, watch bool
	flag.StringVar(&cfgPath, "config", "", "Path to YAML config file (optional; uses ~/.config/studyrag/config.yaml if not provided)")
	flag.StringVar(&collection, "collection", "", "Collection to ingest into or load (default from config)")
	flag.StringVar(&query, "query", "", "Print the retrieved context for this query and exit instead of starting the UI")
	flag.BoolVar(&ask, "ask", false, "With --query, print a generated answer instead of the context")
	flag.BoolVar(&watch, "watch", false, "Print collection events from events.nats_url until interrupted")
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: studyrag [--config=config.yaml] [--collection=name] [--query=q [--ask]] [--watch] [file.pdf|file.md|file.txt ...]")
		flag.PrintDefaults()
	}
	flag.Parse()

	if err := run(cfgPath, collection, query, ask, watch, flag.Args()); err != nil {
		log.Fatal(err)
	}
}

func run(cfgPath, collection, query string, ask, watch bool, inputs []string) error {
	var cfg *config.AppConfig
	var err error
	if cfgPath == "" {
		cfg, cfgPath, err = config.LoadDefault()
	} else {
		cfg, err = config.Load(cfgPath)
	}
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if collection == "" {
		collection = cfg.Retrieval.Collection
	}

	logger, closeLog, err := newLogger(cfg.Log, cfgPath)
	if err != nil {
		return fmt.Errorf("failed to open log: %w", err)
	}
	defer closeLog()
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if watch {
		return runWatch(ctx, os.Stdout, cfg.Events)
	}

	// Assemble components
	emb, err := newEmbedder(ctx, cfg.Embedder, logger)
	if err != nil {
		return fmt.Errorf("embedder init failed: %w", err)
	}

	var repo vectorstore.Repository
	switch cfg.VectorStore.Type {
	case "fs":
		repo = fsstore.New(cfg.VectorStore.Dir)
	case "chromem":
		repo = chromemstore.New(cfg.VectorStore.Dir)
	case "qdrant":
		q, err := qdrantstore.New(qdrantstore.Config{
			Addr:    cfg.VectorStore.Qdrant.Addr,
			APIKey:  cfg.VectorStore.Qdrant.APIKey,
			Timeout: config.Seconds(cfg.VectorStore.Qdrant.TimeoutSecs),
		}, logger)
		if err != nil {
			return fmt.Errorf("qdrant init failed: %w", err)
		}
		defer q.Close()
		repo = q
	default:
		return fmt.Errorf("unknown vector store: %s", cfg.VectorStore.Type)
	}
	metric, err := vectorstore.ParseMetric(cfg.VectorStore.Metric)
	if err != nil {
		return fmt.Errorf("vector store: %w", err)
	}
	store := vectorstore.NewStore(repo, metric, logger)

	opts := []service.Option{service.WithLogger(logger)}
	if cfg.Events.NATSURL != "" {
		pub, err := events.Connect(cfg.Events.NATSURL, cfg.Events.SubjectPrefix)
		if err != nil {
			return fmt.Errorf("nats connect failed: %w", err)
		}
		defer pub.Close()
		opts = append(opts, service.WithPublisher(pub))
	}
	if cfg.Generator.Type == "openai" {
		gen, err := answer.NewChatGenerator(answer.Config{
			BaseURL:     cfg.Generator.BaseURL,
			APIKeyEnv:   cfg.Generator.APIKeyEnv,
			Model:       cfg.Generator.Model,
			Temperature: cfg.Generator.Temperature,
			MaxTokens:   cfg.Generator.MaxTokens,
			Timeout:     config.Seconds(cfg.Generator.TimeoutSecs),
		})
		if err != nil {
			return fmt.Errorf("generator init failed: %w", err)
		}
		prompts, err := answer.NewPromptBuilder("", cfg.Generator.PromptTemplatePath)
		if err != nil {
			return fmt.Errorf("generator init failed: %w", err)
		}
		opts = append(opts, service.WithGenerator(gen), service.WithPrompts(prompts))
	}

	ch := chunker.NewRecursiveChunker(cfg.Chunker.ChunkSize, cfg.Chunker.Overlap, cfg.Chunker.Separators)
	engine := service.New(ch, emb, store, service.Options{TopK: cfg.Retrieval.TopK}, opts...)

	summary := ""
	if len(inputs) > 0 {
		blocks, err := loader.Load(inputs...)
		if err != nil {
			return fmt.Errorf("load documents failed: %w", err)
		}
		stats, err := engine.Ingest(ctx, blocks, collection)
		if err != nil {
			return fmt.Errorf("ingest failed: %w", err)
		}
		summary = fmt.Sprintf("Indexed %d chunks into %q. %s", stats.ChunkCount, stats.Collection,
			summarizer.NewFrequency().Summarize(blocks, cfg.Summarizer.MaxSentences))
	} else {
		err := engine.LoadCollection(ctx, collection)
		if errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("collection %q not found; pass documents to ingest it", collection)
		}
		if err != nil {
			return fmt.Errorf("load failed: %w", err)
		}
		summary = fmt.Sprintf("Loaded collection %q.", collection)
	}

	if query != "" {
		return runQuery(ctx, os.Stdout, engine, query, ask)
	}

	m := tui.New(ctx, engine, summary, cfg.Retrieval.TopK)
	_, err = tea.NewProgram(m, tea.WithContext(ctx)).Run()
	return err
}

// newEmbedder fails when a remote backend answers with vectors of the wrong
// size. An unreachable backend only warns: embedding falls back per call.
func newEmbedder(ctx context.Context, cfg config.EmbedderConfig, logger *slog.Logger) (domain.Embedder, error) {
	var backend embedding.Backend
	switch cfg.Type {
	case "deterministic":
		return embedding.NewDeterministic(cfg.Dimension), nil
	case "openai":
		dims := 0
		if strings.HasPrefix(cfg.OpenAI.Model, "text-embedding-3") {
			dims = cfg.Dimension
		}
		client, err := openai.NewClient(openai.Config{
			BaseURL:    cfg.OpenAI.BaseURL,
			APIKeyEnv:  cfg.OpenAI.APIKeyEnv,
			Model:      cfg.OpenAI.Model,
			Timeout:    config.Seconds(cfg.OpenAI.TimeoutSecs),
			Dimensions: dims,
		})
		if err != nil {
			return nil, err
		}
		backend = client
	case "ollama":
		backend = ollama.NewClient(cfg.Ollama.Model, cfg.Ollama.URL, config.Seconds(cfg.Ollama.TimeoutSecs))
	default:
		return nil, fmt.Errorf("unknown embedder: %s", cfg.Type)
	}
	remote := embedding.NewRemote(backend, embedding.RemoteOptions{
		Dimension:      cfg.Dimension,
		DocumentPrefix: cfg.DocumentPrefix,
		QueryPrefix:    cfg.QueryPrefix,
		Breaker: resilience.BreakerOpts{
			FailThreshold: cfg.Breaker.FailThreshold,
			Cooldown:      config.Seconds(cfg.Breaker.CooldownSecs),
		},
		RatePerSecond: cfg.RateLimit.PerSecond,
		Burst:         cfg.RateLimit.Burst,
		Workers:       cfg.Workers,
		Logger:        logger,
	})
	err := remote.Verify(ctx)
	if errors.Is(err, domain.ErrDimensionMismatch) {
		return nil, fmt.Errorf("check embedder.dimension: %w", err)
	}
	if err != nil {
		logger.Warn("embedding backend unreachable at startup", "backend", backend.Name(), "error", err)
	}
	return remote, nil
}

// newLogger writes to a file because the terminal belongs to the UI.
func newLogger(cfg config.LogConfig, cfgPath string) (*slog.Logger, func(), error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, nil, err
	}
	path := cfg.File
	if path == "" {
		path = filepath.Join(filepath.Dir(cfgPath), "studyrag.log")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, err
	}
	logger := slog.New(slog.NewTextHandler(f, &slog.HandlerOptions{Level: level}))
	return logger, func() { f.Close() }, nil
}

func runQuery(ctx context.Context, w io.Writer, engine *service.Engine, query string, ask bool) error {
	if ask {
		ans, err := engine.Ask(ctx, query, 0)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(w, "%s\n\nSources:\n%s", ans.Text, service.AssembleContext(ans.Sources))
		return err
	}
	results, err := engine.Retrieve(ctx, query, 0)
	if err != nil {
		return err
	}
	_, err = fmt.Fprint(w, service.AssembleContext(results))
	return err
}

func runWatch(ctx context.Context, w io.Writer, cfg config.EventsConfig) error {
	if cfg.NATSURL == "" {
		return errors.New("--watch needs events.nats_url")
	}
	fmt.Fprintf(w, "Watching %s.* on %s\n", cfg.SubjectPrefix, cfg.NATSURL)
	return events.Watch(ctx, cfg.NATSURL, cfg.SubjectPrefix, func(_ context.Context, ev events.Event) {
		fmt.Fprintf(w, "%s %-7s %s chunks=%d dim=%d embedder=%s\n",
			ev.At.Local().Format(time.RFC3339), ev.Type, ev.Collection, ev.Chunks, ev.Dimension, ev.Embedder)
	})
}
