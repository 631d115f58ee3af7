package embedding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/time/rate"

	"studyrag/internal/domain"
	"studyrag/internal/fn"
	"studyrag/internal/resilience"
)

// RemoteOptions configures a Remote provider.
type RemoteOptions struct {
	Dimension      int
	DocumentPrefix string
	QueryPrefix    string
	Breaker        resilience.BreakerOpts
	// RatePerSecond <= 0 disables rate limiting.
	RatePerSecond float64
	Burst         int
	// Workers bounds concurrent backend calls in EmbedBatch.
	Workers int
	Logger  *slog.Logger
}

// Remote embeds through a Backend. A failed call (transport error, open
// circuit or limiter wait error) is logged and replaced by DeterministicVector
// for that single text. The vector size is a configuration contract checked
// once by Verify; a wrongly sized vector later on is logged as an error and
// replaced too, without counting against the circuit.
type Remote struct {
	backend     Backend
	dim         int
	docPrefix   string
	queryPrefix string
	breaker     *resilience.Breaker
	limiter     *rate.Limiter
	workers     int
	logger      *slog.Logger
}

func NewRemote(backend Backend, opts RemoteOptions) *Remote {
	if opts.Dimension <= 0 {
		opts.Dimension = DefaultDimension
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	limit := rate.Inf
	if opts.RatePerSecond > 0 {
		limit = rate.Limit(opts.RatePerSecond)
	}
	if opts.Burst <= 0 {
		opts.Burst = 1
	}
	return &Remote{
		backend:     backend,
		dim:         opts.Dimension,
		docPrefix:   opts.DocumentPrefix,
		queryPrefix: opts.QueryPrefix,
		breaker:     resilience.NewBreaker(opts.Breaker),
		limiter:     rate.NewLimiter(limit, opts.Burst),
		workers:     opts.Workers,
		logger:      opts.Logger.With("component", "embedding", "backend", backend.Name()),
	}
}

func (r *Remote) Name() string   { return r.backend.Name() }
func (r *Remote) Dimension() int { return r.dim }

// BreakerState reports the circuit state of the backend.
func (r *Remote) BreakerState() resilience.State { return r.breaker.State() }

func (r *Remote) Embed(ctx context.Context, text string, intent domain.Intent) []float32 {
	return r.call(ctx, r.prefix(intent)+text).AndThen(r.checkDimension).UnwrapOrElse(func(err error) []float32 {
		logf := r.logger.Warn
		if errors.Is(err, domain.ErrDimensionMismatch) {
			logf = r.logger.Error
		}
		logf("embedding backend failed, using deterministic vector",
			"intent", intent.String(), "chars", len(text), "error", err)
		return DeterministicVector(text, r.dim)
	})
}

// Verify embeds a sample text and returns domain.ErrDimensionMismatch when the
// backend's vectors do not have the configured size. Any other error means the
// backend could not be reached.
func (r *Remote) Verify(ctx context.Context) error {
	v, err := r.call(ctx, r.docPrefix+"dimension check").AndThen(r.checkDimension).Unwrap()
	if err != nil {
		return err
	}
	r.logger.Info("embedding backend verified", "dimension", len(v))
	return nil
}

func (r *Remote) EmbedBatch(ctx context.Context, texts []string, intent domain.Intent) [][]float32 {
	return fn.ParMap(texts, r.workers, func(_ int, text string) []float32 {
		return r.Embed(ctx, text, intent)
	})
}

func (r *Remote) prefix(intent domain.Intent) string {
	if intent == domain.IntentQuery {
		return r.queryPrefix
	}
	return r.docPrefix
}

func (r *Remote) call(ctx context.Context, text string) fn.Result[[]float32] {
	if err := r.limiter.Wait(ctx); err != nil {
		return fn.Err[[]float32](fmt.Errorf("%w: rate limiter: %v", domain.ErrBackendUnavailable, err))
	}
	return resilience.Call(ctx, r.breaker, func(ctx context.Context) fn.Result[[]float32] {
		return r.backend.Embed(ctx, text)
	})
}

func (r *Remote) checkDimension(v []float32) fn.Result[[]float32] {
	if len(v) != r.dim {
		return fn.Err[[]float32](fmt.Errorf("%w: backend returned %d values, want %d",
			domain.ErrDimensionMismatch, len(v), r.dim))
	}
	return fn.Ok(v)
}
