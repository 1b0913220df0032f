package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/cloo-solutions/draftdesk/internal/domain"
	"github.com/cloo-solutions/draftdesk/internal/telemetry"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

const embeddingService = "embedding"

// EmbeddingClient sends one embeddings request per call and returns one
// vector per input.
type EmbeddingClient interface {
	Embed(ctx context.Context, texts []string, task domain.EmbeddingTask) ([][]float32, error)
}

// BatcherConfig controls batch sizing, concurrency, retries and rate limits.
type BatcherConfig struct {
	BatchSize   int
	Concurrency int
	Dimensions  int
	Timeout     time.Duration

	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	RatePerSec float64
	Burst      int
}

// DefaultBatcherConfig provides sane defaults for the embedding batcher.
func DefaultBatcherConfig() BatcherConfig {
	return BatcherConfig{
		BatchSize:      10,
		Concurrency:    2,
		Dimensions:     1536,
		Timeout:        30 * time.Second,
		MaxAttempts:    4,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     8 * time.Second,
	}
}

// EmbeddedBatch is one confirmed group of vectors. Offset is the position of
// the first vector in the full input.
type EmbeddedBatch struct {
	Index   int
	Offset  int
	Vectors [][]float32
}

// BatchFunc receives each batch once its vectors are confirmed. The context
// is detached from caller cancellation so in-flight work can commit.
type BatchFunc func(ctx context.Context, batch EmbeddedBatch) error

// EmbeddingBatcher drives the embedding service in bounded-size batches.
type EmbeddingBatcher struct {
	client  EmbeddingClient
	cfg     BatcherConfig
	limiter *rate.Limiter
}

// NewEmbeddingBatcher creates a batcher. Zero-valued settings fall back to
// DefaultBatcherConfig.
func NewEmbeddingBatcher(client EmbeddingClient, cfg BatcherConfig) *EmbeddingBatcher {
	def := DefaultBatcherConfig()
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = def.InitialBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = def.MaxBackoff
	}

	limit := rate.Inf
	if cfg.RatePerSec > 0 {
		limit = rate.Limit(cfg.RatePerSec)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = max(1, cfg.Concurrency)
	}

	return &EmbeddingBatcher{
		client:  client,
		cfg:     cfg,
		limiter: rate.NewLimiter(limit, burst),
	}
}

// Dimensions returns the vector length every embedding must have.
func (b *EmbeddingBatcher) Dimensions() int {
	return b.cfg.Dimensions
}

// BatchSize returns the configured batch ceiling.
func (b *EmbeddingBatcher) BatchSize() int {
	return b.cfg.BatchSize
}

// EmbedBatch embeds texts in consecutive groups of at most batchSize and
// returns one vector per input in input order. A batchSize <= 0 uses the
// configured ceiling.
func (b *EmbeddingBatcher) EmbedBatch(ctx context.Context, texts []string, batchSize int) ([][]float32, error) {
	out := make([][]float32, len(texts))
	err := b.EmbedStream(ctx, texts, domain.EmbeddingTaskDocument, batchSize, func(_ context.Context, batch EmbeddedBatch) error {
		copy(out[batch.Offset:], batch.Vectors)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// EmbedQuery embeds a single question with the query task hint.
func (b *EmbeddingBatcher) EmbedQuery(ctx context.Context, question string) ([]float32, error) {
	if strings.TrimSpace(question) == "" {
		return nil, domain.InvalidArgument("question cannot be empty")
	}

	vectors, err := b.embedGroup(ctx, []string{question}, domain.EmbeddingTaskQuery, 0)
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedStream dispatches batches with bounded concurrency and calls fn as
// each batch is confirmed. After ctx is cancelled no further batches are
// dispatched; batches already in flight run to completion.
func (b *EmbeddingBatcher) EmbedStream(ctx context.Context, texts []string, task domain.EmbeddingTask, batchSize int, fn BatchFunc) error {
	if batchSize <= 0 {
		batchSize = b.cfg.BatchSize
	}
	if len(texts) == 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.cfg.Concurrency)

	var skipped atomic.Bool
	stopped := false
	for index, offset := 0, 0; offset < len(texts); index, offset = index+1, offset+batchSize {
		if gctx.Err() != nil {
			stopped = true
			break
		}

		end := min(offset+batchSize, len(texts))
		batchIndex, batchOffset, group := index, offset, texts[offset:end]

		g.Go(func() error {
			if gctx.Err() != nil {
				skipped.Store(true)
				return nil
			}

			vectors, err := b.embedGroup(gctx, group, task, batchIndex)
			if err != nil {
				return err
			}

			commitCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), b.cfg.Timeout)
			defer cancel()
			return fn(commitCtx, EmbeddedBatch{Index: batchIndex, Offset: batchOffset, Vectors: vectors})
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	if stopped || skipped.Load() {
		return fmt.Errorf("embedding stopped before all batches were dispatched: %w", ctx.Err())
	}
	return nil
}

// embedGroup sends one group with retries. Each attempt runs on a context
// detached from ctx and bounded by the per-call timeout; ctx only decides
// whether another attempt is made.
func (b *EmbeddingBatcher) embedGroup(ctx context.Context, texts []string, task domain.EmbeddingTask, batchIndex int) ([][]float32, error) {
	ctx, span := telemetry.StartSpan(ctx, "EmbeddingBatcher.embedGroup", telemetry.SpanAttributes{
		Operation: "embed_batch",
	})
	defer span.End()

	detached := context.WithoutCancel(ctx)
	var vectors [][]float32
	var lastErr error

	operation := func() error {
		callCtx, cancel := context.WithTimeout(detached, b.cfg.Timeout)
		defer cancel()

		if err := b.limiter.Wait(callCtx); err != nil {
			lastErr = domain.NewUpstreamServiceError(&domain.UpstreamError{Service: embeddingService, Timeout: true, Err: err})
			return lastErr
		}

		got, err := b.client.Embed(callCtx, texts, task)
		if err != nil {
			lastErr = err
			if !domain.IsRetryable(err) {
				return backoff.Permanent(err)
			}
			return err
		}

		if err := b.checkShape(texts, got); err != nil {
			lastErr = err
			return backoff.Permanent(err)
		}

		vectors = got
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = b.cfg.InitialBackoff
	policy.MaxInterval = b.cfg.MaxBackoff
	policy.MaxElapsedTime = 0

	notify := func(err error, wait time.Duration) {
		log.Printf("embedding: batch=%d size=%d retrying in %s: %v", batchIndex, len(texts), wait, err)
	}

	err := backoff.RetryNotify(operation,
		backoff.WithContext(backoff.WithMaxRetries(policy, uint64(b.cfg.MaxAttempts-1)), ctx),
		notify)
	if err != nil {
		// a cancelled retry loop reports the failure that caused the retry
		if lastErr != nil && errors.Is(err, ctx.Err()) {
			err = lastErr
		}
		span.SetError(err)
		return nil, err
	}

	return vectors, nil
}

func (b *EmbeddingBatcher) checkShape(texts []string, vectors [][]float32) error {
	if len(vectors) != len(texts) {
		return domain.NewResponseShapeError(embeddingService,
			fmt.Sprintf("expected %d vectors, got %d", len(texts), len(vectors)))
	}
	if b.cfg.Dimensions <= 0 {
		return nil
	}
	for i, v := range vectors {
		if len(v) != b.cfg.Dimensions {
			return domain.NewResponseShapeError(embeddingService,
				fmt.Sprintf("vector %d has %d dimensions, expected %d", i, len(v), b.cfg.Dimensions))
		}
	}
	return nil
}
