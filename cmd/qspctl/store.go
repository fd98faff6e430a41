package main

import (
	"context"
	"fmt"

	"github.com/qspcompliance/engine/internal/embedprovider"
	"github.com/qspcompliance/engine/pkg/embedclient"
	"github.com/qspcompliance/engine/pkg/store"
)

func openStore(ctx context.Context) (*store.Store, error) {
	s, err := store.Open(ctx, dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening store at %s: %w", dbPath, err)
	}
	return s, nil
}

// newEmbedder wires the CLI's only concrete Embedder: an OpenAI-compatible
// HTTP provider configured by environment variables, since the embedding
// backend is an external collaborator per spec.md §6.
func newEmbedder() *embedclient.Client {
	provider := embedprovider.New(embedprovider.Config{
		BaseURL: envOr("EMBEDDING_API_BASE_URL", "https://api.openai.com"),
		APIKey:  envOr("EMBEDDING_API_KEY", ""),
		Model:   envOr("EMBEDDING_MODEL", "text-embedding-3-small"),
		Dim:     cfg.EmbeddingDim,
	}, appLogger)

	return embedclient.New(provider,
		embedclient.WithMaxChars(cfg.EmbeddingMaxChars),
		embedclient.WithLogger(appLogger),
		embedclient.WithRetry(embedclient.RetryConfig{
			MaxRetries:   cfg.EmbeddingRetryAttempts,
			InitialDelay: embedclient.DefaultRetryConfig().InitialDelay,
			MaxDelay:     embedclient.DefaultRetryConfig().MaxDelay,
			Multiplier:   embedclient.DefaultRetryConfig().Multiplier,
		}),
	)
}
