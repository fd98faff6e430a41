// Package embedprovider is the one concrete embedclient.Provider this
// engine ships with: an HTTP client for an OpenAI-compatible /embeddings
// endpoint. Grounded on bbiangul-go-reason's llm.openAICompatClient —
// same doPost retry/backoff shape (exponential backoff, honoring
// Retry-After on 429), same bearer-token auth, adapted from a chat+embed
// client down to embeddings only.
package embedprovider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/qspcompliance/engine/internal/logging"
)

// Config names the external embedding provider to call.
type Config struct {
	BaseURL string // e.g. "https://api.openai.com"
	APIKey  string
	Model   string
	Dim     int
}

const (
	maxRetries        = 6
	baseRetryDelay    = 2 * time.Second
	minRateLimitDelay = 5 * time.Second
)

// Client implements embedclient.Provider against an OpenAI-compatible
// /v1/embeddings endpoint.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     logging.Logger
}

// New builds a provider client. A generous timeout accommodates
// self-hosted providers that may load a model cold on first request.
func New(cfg Config, logger logging.Logger) *Client {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 120 * time.Second},
		logger:     logger,
	}
}

// Dimensions reports the configured fixed vector width.
func (c *Client) Dimensions() int {
	return c.cfg.Dim
}

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

// EmbedBatch posts texts to the provider's /v1/embeddings endpoint and
// returns one vector per input, reordered by the response's index field.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	body := embeddingRequest{Model: c.cfg.Model, Input: texts}
	respBody, err := c.doPost(ctx, "/v1/embeddings", body)
	if err != nil {
		return nil, err
	}

	var resp embeddingResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("embedprovider: decoding response: %w", err)
	}

	vectors := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index >= 0 && d.Index < len(vectors) {
			vectors[d.Index] = d.Embedding
		}
	}
	return vectors, nil
}

func retryableStatusCode(code int) bool {
	return code == http.StatusTooManyRequests ||
		code == http.StatusBadGateway ||
		code == http.StatusServiceUnavailable ||
		code == http.StatusGatewayTimeout
}

func (c *Client) doPost(ctx context.Context, path string, body interface{}) ([]byte, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	url := c.cfg.BaseURL + path

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			delay := baseRetryDelay * time.Duration(1<<(attempt-1))
			c.logger.Warn("embedprovider: retrying request", "url", url, "attempt", attempt, "delay", delay, "error", lastErr)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		if c.cfg.APIKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = fmt.Errorf("request to %s failed: %w", url, err)
			continue
		}

		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("reading response body: %w", err)
			continue
		}

		if resp.StatusCode == http.StatusOK {
			return respBody, nil
		}
		lastErr = fmt.Errorf("embedding API error %d: %s", resp.StatusCode, string(respBody))

		if !retryableStatusCode(resp.StatusCode) {
			return nil, lastErr
		}
		if resp.StatusCode == http.StatusTooManyRequests {
			rateLimitDelay := minRateLimitDelay * time.Duration(1<<attempt)
			if ra := resp.Header.Get("Retry-After"); ra != "" {
				if seconds, err := strconv.Atoi(ra); err == nil && seconds > 0 {
					if headerDelay := time.Duration(seconds) * time.Second; headerDelay > rateLimitDelay {
						rateLimitDelay = headerDelay
					}
				}
			}
			select {
			case <-time.After(rateLimitDelay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	return nil, fmt.Errorf("embedprovider: max retries exceeded: %w", lastErr)
}
