// Package embedclient is the stateless adapter to an embedding provider
// (C4). It truncates inputs via pkg/normalize before dispatch, batches
// under a provider-imposed cap, and never substitutes an empty vector on
// failure — callers receive ErrEmbeddingUnavailable instead.
package embedclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/qspcompliance/engine/internal/logging"
	"github.com/qspcompliance/engine/pkg/normalize"
)

// ErrEmbeddingUnavailable wraps any network or provider failure that
// survives retries (spec.md §4.4, §7).
var ErrEmbeddingUnavailable = errors.New("embedclient: embedding provider unavailable")

// Provider is implemented by a concrete embedding backend. A Provider call
// must return vectors in the same order as, and one-to-one with, the input
// texts.
type Provider interface {
	// EmbedBatch returns one dense vector per input text.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	// Dimensions reports the fixed vector width this provider returns.
	Dimensions() int
}

// RetryConfig configures the exponential-backoff retry used around every
// provider call, adapted from amanmcp's internal/embed retry convention.
type RetryConfig struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// DefaultRetryConfig matches spec.md §5's "3 attempts" default.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:   3,
		InitialDelay: 250 * time.Millisecond,
		MaxDelay:     4 * time.Second,
		Multiplier:   2.0,
	}
}

// Client is the stateless, no-caching adapter described by spec.md §4.4.
// Caching, if any, is the Section Store's concern (C5), not this client's.
type Client struct {
	provider  Provider
	maxChars  int
	batchSize int
	retry     RetryConfig
	logger    logging.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithMaxChars overrides the embed-time truncation limit (default
// normalize.DefaultEmbedMaxChars).
func WithMaxChars(n int) Option {
	return func(c *Client) { c.maxChars = n }
}

// WithBatchSize overrides the provider batch cap (default 64).
func WithBatchSize(n int) Option {
	return func(c *Client) { c.batchSize = n }
}

// WithRetry overrides the retry/backoff policy.
func WithRetry(r RetryConfig) Option {
	return func(c *Client) { c.retry = r }
}

// WithLogger attaches a structured logger; defaults to a no-op logger.
func WithLogger(l logging.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New builds a Client around the given Provider.
func New(provider Provider, opts ...Option) *Client {
	c := &Client{
		provider:  provider,
		maxChars:  normalize.DefaultEmbedMaxChars,
		batchSize: 64,
		retry:     DefaultRetryConfig(),
		logger:    logging.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Dimensions reports the provider's fixed vector width.
func (c *Client) Dimensions() int {
	return c.provider.Dimensions()
}

// EmbedBatch truncates every input (pkg/normalize.EmbedTruncate), splits
// the batch under the configured cap, and returns one vector per input in
// the same order. On provider failure that survives retries, it returns
// ErrEmbeddingUnavailable wrapping the underlying cause — no silent
// empty-vector substitution.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	truncated := make([]string, len(texts))
	for i, t := range texts {
		truncated[i] = normalize.EmbedTruncate(t, c.maxChars)
	}

	out := make([][]float32, 0, len(truncated))
	for start := 0; start < len(truncated); start += c.batchSize {
		end := start + c.batchSize
		if end > len(truncated) {
			end = len(truncated)
		}
		batch := truncated[start:end]

		vectors, err := c.embedWithRetry(ctx, batch)
		if err != nil {
			return nil, err
		}
		out = append(out, vectors...)
	}
	return out, nil
}

// Embed is a convenience wrapper around EmbedBatch for a single text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (c *Client) embedWithRetry(ctx context.Context, batch []string) ([][]float32, error) {
	delay := c.retry.InitialDelay
	var lastErr error

	for attempt := 0; attempt <= c.retry.MaxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		vectors, err := c.provider.EmbedBatch(ctx, batch)
		if err == nil {
			return vectors, nil
		}
		lastErr = err
		c.logger.Warn("embedding batch attempt failed", "attempt", attempt, "error", err)

		if attempt >= c.retry.MaxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
		delay = time.Duration(float64(delay) * c.retry.Multiplier)
		if delay > c.retry.MaxDelay {
			delay = c.retry.MaxDelay
		}
	}

	return nil, fmt.Errorf("%w: %v", ErrEmbeddingUnavailable, lastErr)
}
