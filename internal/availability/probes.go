package availability

import (
	"context"
	"errors"
	"fmt"

	"github.com/scrypster/rallygraph/internal/config"
	"github.com/scrypster/rallygraph/internal/llm"
	"github.com/scrypster/rallygraph/internal/storage"
)

// GraphStoreProbe validates the storage configuration, pings the store and
// checks that every stored embedding has the deployment dimension.
func GraphStoreProbe(cfg *config.Config, store storage.HealthProvider) ProbeFunc {
	return func(ctx context.Context) error {
		if err := cfg.CheckStorage(); err != nil {
			return NewFault(ConfigurationFault, GraphStore, err)
		}
		if store == nil {
			return NewFault(ConfigurationFault, GraphStore, errors.New("no graph store configured"))
		}
		if err := store.Ping(ctx); err != nil {
			return NewFault(ConnectivityFault, GraphStore, err)
		}
		dims, err := store.EmbeddingDimensions(ctx)
		if err != nil {
			return NewFault(ConnectivityFault, GraphStore, err)
		}
		for _, d := range dims {
			if d != cfg.Embedding.Dimension {
				return NewFault(ConfigurationFault, GraphStore,
					fmt.Errorf("stored embeddings have %d dimensions, deployment uses %d: %w",
						d, cfg.Embedding.Dimension, storage.ErrDimensionMismatch))
			}
		}
		return nil
	}
}

// EmbeddingProbe validates the embedding configuration and embeds a probe
// text whose length must equal the deployment dimension.
func EmbeddingProbe(cfg *config.Config, embedder llm.EmbeddingGenerator) ProbeFunc {
	return func(ctx context.Context) error {
		if err := cfg.CheckEmbedding(); err != nil {
			return NewFault(ConfigurationFault, EmbeddingModel, err)
		}
		if embedder == nil {
			return NewFault(ConfigurationFault, EmbeddingModel, errors.New("no embedding model configured"))
		}
		vec, err := embedder.Embed(ctx, "volleyball")
		if err != nil {
			return NewFault(ConnectivityFault, EmbeddingModel, err)
		}
		if len(vec) != cfg.Embedding.Dimension {
			return NewFault(ConfigurationFault, EmbeddingModel,
				fmt.Errorf("model %s returns %d dimensions, deployment uses %d: %w",
					embedder.GetModel(), len(vec), cfg.Embedding.Dimension, storage.ErrDimensionMismatch))
		}
		return nil
	}
}

// LanguageModelProbe validates the provider configuration and, when the
// generator supports it, runs its health check.
func LanguageModelProbe(cfg *config.Config, generator llm.TextGenerator) ProbeFunc {
	return func(ctx context.Context) error {
		if err := cfg.CheckLLM(); err != nil {
			return NewFault(ConfigurationFault, LanguageModel, err)
		}
		if generator == nil {
			return NewFault(ConfigurationFault, LanguageModel, errors.New("no language model configured"))
		}
		hc, ok := generator.(llm.HealthChecker)
		if !ok {
			return nil
		}
		if err := hc.HealthCheck(ctx); err != nil {
			var statusErr *llm.StatusError
			switch {
			case errors.Is(err, llm.ErrModelNotInstalled):
				return NewFault(ConfigurationFault, LanguageModel, err)
			case errors.As(err, &statusErr) && (statusErr.StatusCode == 401 || statusErr.StatusCode == 403):
				return NewFault(ConfigurationFault, LanguageModel, err)
			}
			return NewFault(ConnectivityFault, LanguageModel, err)
		}
		return nil
	}
}

// Probes builds the standard probe set.
func Probes(cfg *config.Config, store storage.HealthProvider, embedder llm.EmbeddingGenerator, generator llm.TextGenerator) map[Subsystem]ProbeFunc {
	probes := map[Subsystem]ProbeFunc{
		GraphStore:    GraphStoreProbe(cfg, store),
		LanguageModel: LanguageModelProbe(cfg, generator),
	}
	if embedder != nil {
		probes[EmbeddingModel] = EmbeddingProbe(cfg, embedder)
	}
	return probes
}
