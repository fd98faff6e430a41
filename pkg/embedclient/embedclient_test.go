package embedclient

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubProvider struct {
	dim        int
	calls      int
	failTimes  int
	lastInputs []string
}

func (s *stubProvider) Dimensions() int { return s.dim }

func (s *stubProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	s.calls++
	s.lastInputs = texts
	if s.calls <= s.failTimes {
		return nil, errors.New("provider timeout")
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = make([]float32, s.dim)
	}
	return out, nil
}

func TestEmbedBatch_TruncatesBeforeDispatch(t *testing.T) {
	provider := &stubProvider{dim: 4}
	c := New(provider, WithMaxChars(10))

	_, err := c.EmbedBatch(context.Background(), []string{strings.Repeat("a", 100)})
	require.NoError(t, err)
	require.Len(t, provider.lastInputs, 1)
	assert.Len(t, provider.lastInputs[0], 10)
}

func TestEmbedBatch_SplitsUnderBatchCap(t *testing.T) {
	provider := &stubProvider{dim: 4}
	c := New(provider, WithBatchSize(2))

	vectors, err := c.EmbedBatch(context.Background(), []string{"a", "b", "c", "d", "e"})
	require.NoError(t, err)
	assert.Len(t, vectors, 5)
	assert.Equal(t, 3, provider.calls) // ceil(5/2)
}

func TestEmbedBatch_RetriesThenSucceeds(t *testing.T) {
	provider := &stubProvider{dim: 4, failTimes: 2}
	c := New(provider, WithRetry(RetryConfig{
		MaxRetries: 3, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2,
	}))

	vectors, err := c.EmbedBatch(context.Background(), []string{"x"})
	require.NoError(t, err)
	assert.Len(t, vectors, 1)
	assert.Equal(t, 3, provider.calls)
}

func TestEmbedBatch_ExhaustsRetriesReturnsEmbeddingUnavailable(t *testing.T) {
	provider := &stubProvider{dim: 4, failTimes: 100}
	c := New(provider, WithRetry(RetryConfig{
		MaxRetries: 2, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, Multiplier: 2,
	}))

	_, err := c.EmbedBatch(context.Background(), []string{"x"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEmbeddingUnavailable)
}

func TestEmbedBatch_EmptyInputReturnsNilNoCall(t *testing.T) {
	provider := &stubProvider{dim: 4}
	c := New(provider)

	vectors, err := c.EmbedBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, vectors)
	assert.Equal(t, 0, provider.calls)
}
