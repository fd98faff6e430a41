// Package config loads process-environment configuration for the
// compliance engine. Every option has a default (spec.md §6); Load never
// panics and reports malformed overrides instead of silently clamping them.
package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds every tunable named in spec.md §6, plus the standard-gate
// enforcement flag that resolves the open question in spec.md §9.
type Config struct {
	EmbeddingDim           int
	EmbeddingMaxChars      int
	ImpactSimThreshold     float64
	HybridBM25K            int
	HybridVecK             int
	DeltaFanout            int
	DeltaDeadlineSec       int
	RunDeadlineSec         int
	RerankEnabled          bool
	StandardGateEnforced   bool
	EmbeddingPoolSize      int
	EmbeddingRetryAttempts int
}

// Default returns the configuration with every spec.md §6 default applied.
func Default() Config {
	return Config{
		EmbeddingDim:           1536,
		EmbeddingMaxChars:      16000,
		ImpactSimThreshold:     0.55,
		HybridBM25K:            50,
		HybridVecK:             50,
		DeltaFanout:            8,
		DeltaDeadlineSec:       30,
		RunDeadlineSec:         600,
		RerankEnabled:          true,
		StandardGateEnforced:   true,
		EmbeddingPoolSize:      16,
		EmbeddingRetryAttempts: 3,
	}
}

// Load starts from Default and applies any recognized environment variable
// overrides. It returns an error naming the first malformed variable rather
// than ignoring it.
func Load() (Config, error) {
	cfg := Default()

	if err := overrideInt(&cfg.EmbeddingDim, "EMBEDDING_DIM"); err != nil {
		return cfg, err
	}
	if err := overrideInt(&cfg.EmbeddingMaxChars, "EMBEDDING_MAX_CHARS"); err != nil {
		return cfg, err
	}
	if err := overrideFloat(&cfg.ImpactSimThreshold, "IMPACT_SIM_THRESHOLD"); err != nil {
		return cfg, err
	}
	if err := overrideInt(&cfg.HybridBM25K, "HYBRID_BM25_K"); err != nil {
		return cfg, err
	}
	if err := overrideInt(&cfg.HybridVecK, "HYBRID_VEC_K"); err != nil {
		return cfg, err
	}
	if err := overrideInt(&cfg.DeltaFanout, "DELTA_FANOUT"); err != nil {
		return cfg, err
	}
	if err := overrideInt(&cfg.DeltaDeadlineSec, "DELTA_DEADLINE_SEC"); err != nil {
		return cfg, err
	}
	if err := overrideInt(&cfg.RunDeadlineSec, "RUN_DEADLINE_SEC"); err != nil {
		return cfg, err
	}
	if err := overrideBool(&cfg.RerankEnabled, "RERANK_ENABLED"); err != nil {
		return cfg, err
	}
	if err := overrideBool(&cfg.StandardGateEnforced, "STANDARD_GATE_ENFORCED"); err != nil {
		return cfg, err
	}
	if err := overrideInt(&cfg.EmbeddingPoolSize, "EMBEDDING_POOL_SIZE"); err != nil {
		return cfg, err
	}
	if err := overrideInt(&cfg.EmbeddingRetryAttempts, "EMBEDDING_RETRY_ATTEMPTS"); err != nil {
		return cfg, err
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate rejects configurations that would make the engine misbehave
// silently (e.g. a zero fan-out would never process any delta).
func (c Config) Validate() error {
	switch {
	case c.EmbeddingDim <= 0:
		return fmt.Errorf("config: EMBEDDING_DIM must be positive, got %d", c.EmbeddingDim)
	case c.EmbeddingMaxChars <= 0:
		return fmt.Errorf("config: EMBEDDING_MAX_CHARS must be positive, got %d", c.EmbeddingMaxChars)
	case c.ImpactSimThreshold < 0 || c.ImpactSimThreshold > 1:
		return fmt.Errorf("config: IMPACT_SIM_THRESHOLD must be in [0,1], got %f", c.ImpactSimThreshold)
	case c.HybridBM25K <= 0:
		return fmt.Errorf("config: HYBRID_BM25_K must be positive, got %d", c.HybridBM25K)
	case c.HybridVecK <= 0:
		return fmt.Errorf("config: HYBRID_VEC_K must be positive, got %d", c.HybridVecK)
	case c.DeltaFanout <= 0:
		return fmt.Errorf("config: DELTA_FANOUT must be positive, got %d", c.DeltaFanout)
	case c.DeltaDeadlineSec <= 0:
		return fmt.Errorf("config: DELTA_DEADLINE_SEC must be positive, got %d", c.DeltaDeadlineSec)
	case c.RunDeadlineSec <= 0:
		return fmt.Errorf("config: RUN_DEADLINE_SEC must be positive, got %d", c.RunDeadlineSec)
	case c.EmbeddingPoolSize <= 0:
		return fmt.Errorf("config: EMBEDDING_POOL_SIZE must be positive, got %d", c.EmbeddingPoolSize)
	case c.EmbeddingRetryAttempts < 0:
		return fmt.Errorf("config: EMBEDDING_RETRY_ATTEMPTS must be non-negative, got %d", c.EmbeddingRetryAttempts)
	}
	return nil
}

func overrideInt(dst *int, envVar string) error {
	raw, ok := os.LookupEnv(envVar)
	if !ok || raw == "" {
		return nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fmt.Errorf("config: %s=%q is not an integer: %w", envVar, raw, err)
	}
	*dst = v
	return nil
}

func overrideFloat(dst *float64, envVar string) error {
	raw, ok := os.LookupEnv(envVar)
	if !ok || raw == "" {
		return nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fmt.Errorf("config: %s=%q is not a number: %w", envVar, raw, err)
	}
	*dst = v
	return nil
}

func overrideBool(dst *bool, envVar string) error {
	raw, ok := os.LookupEnv(envVar)
	if !ok || raw == "" {
		return nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return fmt.Errorf("config: %s=%q is not a bool: %w", envVar, raw, err)
	}
	*dst = v
	return nil
}
